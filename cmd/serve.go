package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/devops-atlas/internal/config"
	"github.com/CosmoTheDev/devops-atlas/internal/gateway"
	"github.com/CosmoTheDev/devops-atlas/internal/store"
)

var (
	servePort      int
	serveLogDir    string
	serveIngestDir string
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"gateway"},
	Short:   "Start the local REST API for the dashboard",
	Long: `Starts the atlas gateway: a long-running local HTTP API (default
http://127.0.0.1:6090) that serves scan data, filtered views, permission
graphs and logic container management to the browser dashboard.

When gateway.ingest_dir (or --ingest-dir) is set, snapshot files dropped
there by the scan job are ingested on the gateway.ingest_schedule cron.

Quick API reference:
  GET  /health                          liveness check
  GET  /api/status                      store and ingest status
  GET  /api/orgs                        ingested organisations
  GET  /api/orgs/{org}/resources/{type} protected resources
  GET  /api/orgs/{org}/pipelines        pipelines with previews
  POST /api/dashboard                   filtered view plus graph
  GET  /api/containers                  logic containers
  POST /api/ingest                      upload a snapshot
  GET  /events                          SSE stream of ingest and container events`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0,
		"HTTP port to listen on (default 6090, overrides config)")
	serveCmd.Flags().StringVar(&serveLogDir, "log-dir", "",
		"also write gateway logs to this directory")
	serveCmd.Flags().StringVar(&serveIngestDir, "ingest-dir", "",
		"directory watched for snapshot files (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down gateway gracefully...")
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if servePort > 0 {
		cfg.Gateway.Port = servePort
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 6090
	}
	if serveIngestDir != "" {
		cfg.Gateway.IngestDir = serveIngestDir
	}

	logFilePath := ""
	if serveLogDir != "" {
		path, closeLog, err := setupGatewayFileLogger(serveLogDir)
		if err != nil {
			return fmt.Errorf("initialising gateway logger: %w", err)
		}
		defer closeLog()
		logFilePath = path
	}

	s, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	fmt.Println(headerStyle.Render("atlas gateway starting"))
	fmt.Printf("  Store      : %s\n", s.Engine())
	fmt.Printf("  API        : http://127.0.0.1:%d\n", cfg.Gateway.Port)
	fmt.Printf("  Events     : http://127.0.0.1:%d/events\n", cfg.Gateway.Port)
	if cfg.Gateway.IngestDir != "" {
		fmt.Printf("  Watching   : %s (%s)\n", cfg.Gateway.IngestDir, cfg.Gateway.IngestSchedule)
	}
	if logFilePath != "" {
		fmt.Printf("  Logs       : %s\n", logFilePath)
	}
	fmt.Println()
	fmt.Println(dimStyle.Render("Press Ctrl+C to stop gracefully."))
	fmt.Println()

	return gateway.New(cfg, s).Start(ctx)
}

func setupGatewayFileLogger(logDir string) (string, func(), error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating log dir %s: %w", logDir, err)
	}

	ts := time.Now().UTC().Format("20060102-150405")
	runLogPath := filepath.Join(logDir, fmt.Sprintf("gateway-%s.log", ts))
	runFile, err := os.OpenFile(runLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("opening run log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, runFile), &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler))

	return runLogPath, func() { _ = runFile.Close() }, nil
}
