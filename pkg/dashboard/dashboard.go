package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"incipit-hq/incipit/pkg/config"
	"incipit-hq/incipit/pkg/history"
	"incipit-hq/incipit/pkg/routing"
	"incipit-hq/incipit/pkg/telemetry/health"
	"incipit-hq/incipit/pkg/telemetry/metrics"
)

// SnapshotSource provides the current configuration snapshot.
// *config.Store implements it.
type SnapshotSource interface {
	Snapshot() *config.Snapshot
}

// StatsSource provides routing statistics. *routing.ConfigRouter's Stats
// implements it.
type StatsSource interface {
	Snapshot() routing.StatsSnapshot
}

// TunnelCounter reports the number of open tunnels. *proxy.Tunnel
// implements it.
type TunnelCounter interface {
	Active() int
}

// Config configures the dashboard handler. Only Store is required.
type Config struct {
	Store   SnapshotSource
	Stats   StatsSource
	Tunnels TunnelCounter

	// History is nil when request history is disabled.
	History history.Storage

	// Metrics is served at MetricsPath when set.
	Metrics     *metrics.Collector
	MetricsPath string

	Checker *health.Checker
	Version health.VersionInfo
	Logger  *slog.Logger
}

// Handler serves the dashboard host.
type Handler struct {
	mux       *http.ServeMux
	store     SnapshotSource
	stats     StatsSource
	tunnels   TunnelCounter
	history   history.Storage
	version   health.VersionInfo
	startedAt time.Time
	logger    *slog.Logger
}

// New creates the dashboard handler and mounts its routes.
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		mux:       http.NewServeMux(),
		store:     cfg.Store,
		stats:     cfg.Stats,
		tunnels:   cfg.Tunnels,
		history:   cfg.History,
		version:   cfg.Version,
		startedAt: time.Now(),
		logger:    logger.With("component", "dashboard"),
	}

	checker := cfg.Checker
	if checker == nil {
		checker = health.New(0)
		checker.RegisterCheck("config", health.ConfigCheck(cfg.Store))
		if cfg.History != nil {
			checker.RegisterCheck("history", health.PingCheck("history storage", cfg.History))
		}
	}
	health.Register(h.mux, checker, cfg.Version)

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = config.DefaultMetricsPath
		}
		h.mux.Handle(path, cfg.Metrics.Handler())
	}

	h.mux.HandleFunc("/api/services", h.handleServices)
	h.mux.HandleFunc("/api/history", h.handleHistory)
	h.mux.HandleFunc("/{$}", h.handleSummary)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// ServiceEntry is one row of the /api/services response.
type ServiceEntry struct {
	Host    string `json:"host"`
	Service string `json:"service,omitempty"`
	Target  string `json:"target"`
	Backend string `json:"backend,omitempty"`
}

// ServicesResponse is the body of /api/services.
type ServicesResponse struct {
	Version  uint64         `json:"version"`
	LoadedAt time.Time      `json:"loaded_at"`
	Path     string         `json:"path,omitempty"`
	Routes   []ServiceEntry `json:"routes"`
	Warnings []string       `json:"warnings,omitempty"`
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	snap := h.store.Snapshot()
	resp := ServicesResponse{Routes: []ServiceEntry{}}
	if snap != nil {
		resp.Version = snap.Version
		resp.LoadedAt = snap.LoadedAt
		resp.Path = snap.Path
		resp.Warnings = snap.Config.Warnings()
		for _, route := range routing.Routes(snap.Config) {
			resp.Routes = append(resp.Routes, ServiceEntry{
				Host:    route.Host,
				Service: route.Service,
				Target:  route.Target.Kind().String(),
				Backend: route.Target.Addr(),
			})
		}
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HistoryResponse is the body of /api/history.
type HistoryResponse struct {
	Records []*history.Record `json:"records"`
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}
	if h.history == nil {
		writeJSONError(w, r, http.StatusNotFound, "request history is disabled")
		return
	}

	q, err := history.ParseQuery(r.URL.Query())
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.history.Query(r.Context(), q)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "history query failed", "error", err)
		writeJSONError(w, r, http.StatusInternalServerError, "history query failed")
		return
	}
	total, err := h.history.Count(r.Context(), &history.Query{
		Since:     q.Since,
		Until:     q.Until,
		Host:      q.Host,
		Backend:   q.Backend,
		WebSocket: q.WebSocket,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "history count failed", "error", err)
		writeJSONError(w, r, http.StatusInternalServerError, "history query failed")
		return
	}

	if records == nil {
		records = []*history.Record{}
	}
	writeJSON(w, r, http.StatusOK, HistoryResponse{
		Records: records,
		Total:   total,
		Limit:   q.EffectiveLimit(),
		Offset:  q.Offset,
	})
}

// Summary is the body of /.
type Summary struct {
	Version       health.VersionInfo     `json:"version"`
	Uptime        string                 `json:"uptime"`
	ConfigVersion uint64                 `json:"config_version"`
	Services      int                    `json:"services"`
	ActiveTunnels int                    `json:"active_tunnels"`
	History       bool                   `json:"history"`
	Resolutions   *routing.StatsSnapshot `json:"resolutions,omitempty"`
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	s := Summary{
		Version: h.version,
		Uptime:  time.Since(h.startedAt).Round(time.Second).String(),
		History: h.history != nil,
	}
	if snap := h.store.Snapshot(); snap != nil {
		s.ConfigVersion = snap.Version
		s.Services = len(snap.Config.Services)
	}
	if h.tunnels != nil {
		s.ActiveTunnels = h.tunnels.Active()
	}
	if h.stats != nil {
		stats := h.stats.Snapshot()
		s.Resolutions = &stats
	}

	writeJSON(w, r, http.StatusOK, s)
}

func allowRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeJSONError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, r, code, map[string]string{"error": msg})
}
