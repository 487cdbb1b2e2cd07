package main

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"incipit-hq/incipit/pkg/cli"
	"incipit-hq/incipit/pkg/config"
	"incipit-hq/incipit/pkg/routing"
)

var routesFlags struct {
	format  string
	check   bool
	timeout time.Duration
}

var routesCmd = &cobra.Command{
	Use:   "routes [host...]",
	Short: "Print the routing table",
	Long: `Print the routing table of the current configuration.

Without arguments every reachable host is listed, dashboard first. With
arguments each host is resolved the way the proxy would resolve it,
including unknown hosts.

Examples:
  # List all routes
  incipit routes

  # Resolve specific hosts
  incipit routes app.example.com www.example.org

  # Probe every backend port
  incipit routes --check

  # Export as CSV
  incipit routes --format csv`,
	RunE: printRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)

	routesCmd.Flags().StringVar(&routesFlags.format, "format", "text", "output format: text, json, csv")
	routesCmd.Flags().BoolVar(&routesFlags.check, "check", false, "probe each backend with a TCP connect")
	routesCmd.Flags().DurationVar(&routesFlags.timeout, "timeout", 2*time.Second, "probe timeout")
}

type routeRow struct {
	Host    string `json:"host"`
	Service string `json:"service,omitempty"`
	Target  string `json:"target"`
	Status  string `json:"status,omitempty"`
}

type routeTable struct {
	Routes  []routeRow `json:"routes"`
	checked bool
}

func (t routeTable) Header() []string {
	h := []string{"HOST", "SERVICE", "TARGET"}
	if t.checked {
		h = append(h, "STATUS")
	}
	return h
}

func (t routeTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Routes))
	for _, r := range t.Routes {
		row := []string{r.Host, dash(r.Service), r.Target}
		if t.checked {
			row = append(row, dash(r.Status))
		}
		rows = append(rows, row)
	}
	return rows
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// buildRouteTable returns the full table of cfg, or one row per host when
// hosts are given.
func buildRouteTable(cfg *config.Config, hosts []string) routeTable {
	routes := routing.Routes(cfg)

	if len(hosts) == 0 {
		table := routeTable{Routes: make([]routeRow, 0, len(routes))}
		for _, r := range routes {
			table.Routes = append(table.Routes, routeRow{Host: r.Host, Service: r.Service, Target: r.Target.String()})
		}
		return table
	}

	services := make(map[string]string, len(routes))
	for _, r := range routes {
		services[r.Host] = r.Service
	}

	table := routeTable{Routes: make([]routeRow, 0, len(hosts))}
	for _, host := range hosts {
		t := routing.ResolveConfig(cfg, host)
		table.Routes = append(table.Routes, routeRow{Host: host, Service: services[host], Target: t.String()})
	}
	return table
}

// probeBackends dials every backend row and fills in its status. It
// returns the number of unreachable backends.
func probeBackends(ctx context.Context, cfg *config.Config, table *routeTable, timeout time.Duration, progress cli.ProgressReporter) int {
	table.checked = true

	var backends []int
	for i, r := range table.Routes {
		if routing.ResolveConfig(cfg, r.Host).IsBackend() {
			backends = append(backends, i)
		}
	}

	progress.Start(int64(len(backends)))
	var down atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for _, i := range backends {
		addr := routing.ResolveConfig(cfg, table.Routes[i].Host).Addr()
		g.Go(func() error {
			defer progress.Increment()

			d := net.Dialer{Timeout: timeout}
			conn, err := d.DialContext(gctx, "tcp", addr)
			if err != nil {
				down.Add(1)
				table.Routes[i].Status = "down"
				return nil
			}
			conn.Close()
			table.Routes[i].Status = "up"
			return nil
		})
	}
	_ = g.Wait()
	progress.Finish()

	return int(down.Load())
}

func printRoutes(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(routesFlags.format)
	if err != nil {
		return cli.NewCommandError("routes", err)
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	table := buildRouteTable(cfg, args)

	var down int
	if routesFlags.check {
		progress := cli.NewProgressReporter(cmd.ErrOrStderr(), "Checking backends")
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		down = probeBackends(ctx, cfg, &table, routesFlags.timeout, progress)
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), table); err != nil {
		return cli.NewCommandError("routes", err)
	}

	if down > 0 {
		return cli.NewCommandError("routes", fmt.Errorf("%d backend(s) unreachable", down))
	}
	return nil
}
