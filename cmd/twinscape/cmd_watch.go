package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/twinscape/twinscape/internal/watcher"
	"github.com/twinscape/twinscape/telemetry"
)

var (
	watchInterval    time.Duration
	watchMetricsPort int
	watchAutoFix     bool
	watchContainer   string
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously watch storage container role compliance",
	Long: `Run a long-lived loop that checks the scene storage container's role
assignments at a fixed interval, exporting Prometheus metrics and
optionally repairing drift as it appears.

Features:
- Immediate first check, then interval-based rechecks
- Prometheus metrics on /metrics
- Health check on /health
- Graceful shutdown on SIGTERM/SIGINT`,
	Example: `  twinscape watch                      # Check every 5 minutes
  twinscape watch --interval 1m        # Tighter loop
  twinscape watch --fix                # Repair drift automatically
  twinscape watch --metrics-port 9090  # Custom metrics port`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Minute, "Compliance check interval")
	watchCmd.Flags().IntVar(&watchMetricsPort, "metrics-port", 2112, "Metrics HTTP server port")
	watchCmd.Flags().BoolVar(&watchAutoFix, "fix", false, "Assign missing roles automatically")
	watchCmd.Flags().StringVar(&watchContainer, "container", "", "Container URL to watch (defaults to the configured one)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	adapter, cfg, err := buildAdapter()
	if err != nil {
		return err
	}

	ctx := context.Background()
	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "twinscape",
		ServiceVersion: version,
		OTELEndpoint:   cfg.OTELEndpoint,
		Insecure:       true,
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutCtx)
	}()

	logger := telemetry.NewLogger("watch")
	w := watcher.New(adapter, watcher.Config{
		Interval:     watchInterval,
		ContainerURL: watchContainer,
		AutoFix:      watchAutoFix,
	}, logger.Logger)

	var g run.Group

	// Compliance loop
	loopCtx, loopCancel := context.WithCancel(ctx)
	g.Add(func() error {
		return w.Run(loopCtx)
	}, func(error) {
		loopCancel()
	})

	// Metrics and health HTTP server
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", watchMetricsPort))
	if err != nil {
		return fmt.Errorf("failed to bind metrics port: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(w.Health())
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	g.Add(func() error {
		return srv.Serve(ln)
	}, func(error) {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	})

	// Signal handling
	g.Add(run.SignalHandler(ctx, syscall.SIGTERM, syscall.SIGINT))

	fmt.Printf("Watching role compliance every %s (metrics on :%d)\n", watchInterval, watchMetricsPort)
	err = g.Run()
	var sigErr run.SignalError
	if err != nil && !errors.As(err, &sigErr) {
		return err
	}
	fmt.Printf("Stopped after %d check(s)\n", w.CheckCount())
	return nil
}
