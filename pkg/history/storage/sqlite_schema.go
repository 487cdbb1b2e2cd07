package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the history database schema.
// Times are stored as Unix nanoseconds so both SQLite drivers agree on the
// encoding.
const Schema = `
CREATE TABLE IF NOT EXISTS history (
    id TEXT PRIMARY KEY,
    request_id TEXT,
    time_ns INTEGER NOT NULL,

    host TEXT NOT NULL,
    method TEXT NOT NULL,
    path TEXT NOT NULL,

    target TEXT NOT NULL,
    backend TEXT,

    status INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    bytes_written INTEGER NOT NULL,
    websocket BOOLEAN NOT NULL,

    error TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_time ON history(time_ns);
CREATE INDEX IF NOT EXISTS idx_history_host ON history(host);
CREATE INDEX IF NOT EXISTS idx_history_backend ON history(backend);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const insertRecord = `
INSERT INTO history (
    id, request_id, time_ns,
    host, method, path,
    target, backend,
    status, duration_ns, bytes_written, websocket,
    error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectColumns = `id, request_id, time_ns, host, method, path, target, backend,
    status, duration_ns, bytes_written, websocket, error`
