package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jpillora/sizestr"
	"github.com/spf13/cobra"
	"incipit-hq/incipit/pkg/cli"
	"incipit-hq/incipit/pkg/config"
	"incipit-hq/incipit/pkg/history"
	"incipit-hq/incipit/pkg/history/retention"
	"incipit-hq/incipit/pkg/history/storage"
)

var historyFlags struct {
	limit      int
	offset     int
	host       string
	backend    string
	since      time.Duration
	websocket  string
	format     string
	days       int
	maxRecords int64
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the request history database",
	Long: `Inspect and maintain the request history recorded by "incipit run".

Subcommands:
  list   - List recent requests with filters
  prune  - Apply the retention policy now

The history database is read from db_path in the configuration.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded requests",
	Long: `List recorded requests, newest first.

Examples:
  # Last 100 requests
  incipit history list

  # Requests for one host in the last hour
  incipit history list --host app.example.com --since 1h

  # WebSocket tunnels only, as JSON
  incipit history list --websocket true --format json`,
	RunE: listHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete records outside the retention policy",
	Long: `Delete records older than the retention period and trim the database to
the configured maximum number of records.

Examples:
  # Apply the configured policy
  incipit history prune

  # Keep only the last day
  incipit history prune --days 1`,
	RunE: pruneHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyPruneCmd)

	historyListCmd.Flags().IntVar(&historyFlags.limit, "limit", history.DefaultQueryLimit, "max results")
	historyListCmd.Flags().IntVar(&historyFlags.offset, "offset", 0, "pagination offset")
	historyListCmd.Flags().StringVar(&historyFlags.host, "host", "", "filter by Host header")
	historyListCmd.Flags().StringVar(&historyFlags.backend, "backend", "", "filter by backend address")
	historyListCmd.Flags().DurationVar(&historyFlags.since, "since", 0, "only records newer than this (e.g. 1h)")
	historyListCmd.Flags().StringVar(&historyFlags.websocket, "websocket", "", "filter tunnels (true) or plain requests (false)")
	historyListCmd.Flags().StringVar(&historyFlags.format, "format", "text", "output format: text, json, csv")

	historyPruneCmd.Flags().IntVar(&historyFlags.days, "days", -1, "override retention_days")
	historyPruneCmd.Flags().Int64Var(&historyFlags.maxRecords, "max-records", -1, "override max_records")
}

// openHistory opens the configured history database for offline use.
func openHistory(cfg *config.Config) (history.Storage, error) {
	if cfg.History.Driver == storage.DriverMemory {
		return nil, cli.NewConfigError("history.driver", "the memory driver keeps no records between runs")
	}
	s, err := storage.Open(cfg.History.Driver, cfg.DBPath, nil)
	if err != nil {
		return nil, cli.NewCommandError("history", fmt.Errorf("failed to open %s: %w", cfg.DBPath, err))
	}
	return s, nil
}

// historyTable renders records as rows.
type historyTable struct {
	Records []*history.Record `json:"records"`
	Total   int64             `json:"total"`
}

func (t historyTable) Header() []string {
	return []string{"TIME", "HOST", "METHOD", "PATH", "TARGET", "STATUS", "DURATION", "SIZE", "ERROR"}
}

func (t historyTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Records))
	for _, r := range t.Records {
		target := r.Target
		if r.Backend != "" {
			target = r.Target + "(" + r.Backend + ")"
		}
		if r.WebSocket {
			target += " ws"
		}
		rows = append(rows, []string{
			r.Time.Format(time.RFC3339),
			r.Host,
			r.Method,
			r.Path,
			target,
			strconv.Itoa(r.Status),
			r.Duration.Round(time.Millisecond).String(),
			sizestr.ToString(r.BytesWritten),
			dash(r.Error),
		})
	}
	return rows
}

func buildHistoryQuery(now time.Time) (*history.Query, error) {
	q := &history.Query{
		Limit:   historyFlags.limit,
		Offset:  historyFlags.offset,
		Host:    historyFlags.host,
		Backend: historyFlags.backend,
	}
	if historyFlags.since > 0 {
		since := now.Add(-historyFlags.since)
		q.Since = &since
	}
	if historyFlags.websocket != "" {
		ws, err := strconv.ParseBool(historyFlags.websocket)
		if err != nil {
			return nil, &history.QueryError{Field: "websocket", Err: err}
		}
		q.WebSocket = &ws
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func listHistory(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(historyFlags.format)
	if err != nil {
		return cli.NewCommandError("history", err)
	}

	query, err := buildHistoryQuery(time.Now())
	if err != nil {
		return cli.NewCommandError("history", err)
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("history", err)
	}
	total, err := store.Count(ctx, query)
	if err != nil {
		return cli.NewCommandError("history", err)
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), historyTable{Records: records, Total: total})
}

func pruneHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	policy := retention.Config{
		RetentionDays: cfg.History.RetentionDays,
		MaxRecords:    cfg.History.MaxRecords,
	}
	if historyFlags.days >= 0 {
		policy.RetentionDays = historyFlags.days
	}
	if historyFlags.maxRecords >= 0 {
		policy.MaxRecords = historyFlags.maxRecords
	}

	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := retention.NewPruner(store, policy, nil, nil).Prune(ctx)
	if err != nil {
		return cli.NewCommandError("history", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %d records\n", deleted)
	return nil
}
