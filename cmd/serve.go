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

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
	"github.com/CosmoTheDev/ctrlnotify/internal/events"
	"github.com/CosmoTheDev/ctrlnotify/internal/gateway"
)

var servePort int
var serveLogDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ctrlnotify gateway daemon",
	Long: `Starts the ctrlnotify gateway: a long-running daemon that feeds the
notification registry from every configured event source and exposes a local
HTTP API (default: http://127.0.0.1:6090).

Event sources:
  • REST     POST /api/events and /api/events/batch
  • Cron     scheduled SQL queries from the "scheduled" config section
  • Kafka    the configured topic, when kafka.brokers is set

Quick API reference:
  GET    /health                        liveness check
  GET    /api/status                    gateway status snapshot
  POST   /api/events                    dispatch one event
  POST   /api/events/batch              dispatch {"events":[...]}
  GET    /api/registry                  summary + configurations (?event_type=)
  GET    /api/history                   sent-message history
  DELETE /api/history                   clear the history
  GET    /api/scheduled                 list scheduled queries
  POST   /api/scheduled/{name}/run      run a scheduled query now
  GET    /events                        SSE stream of notification results
  GET    /metrics                       Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0,
		"HTTP port to listen on (default 6090, overrides config)")
	serveCmd.Flags().StringVar(&serveLogDir, "log-dir", "logs",
		"directory to write gateway logs for later inspection")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down gateway gracefully...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logFilePath, closeLog, err := setupGatewayFileLogger(serveLogDir)
	if err != nil {
		return fmt.Errorf("initialising gateway logger: %w", err)
	}
	defer closeLog()

	if servePort > 0 {
		cfg.Gateway.Port = servePort
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = config.DefaultGatewayPort
	}

	svc, err := buildServices(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	var kafkaSrc *events.Kafka
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSrc, err = events.NewKafka(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("kafka source: %w", err)
		}
	}

	kafkaInfo := "disabled"
	if kafkaSrc != nil {
		kafkaInfo = fmt.Sprintf("%s @ %v", cfg.Kafka.Topic, cfg.Kafka.Brokers)
	}

	fmt.Printf("ctrlnotify gateway starting\n")
	fmt.Printf("  Configs    : %d\n", len(cfg.Notifications))
	fmt.Printf("  Channels   : %v\n", svc.channels.Names())
	fmt.Printf("  Scheduled  : %d queries\n", len(cfg.Scheduled))
	fmt.Printf("  Kafka      : %s\n", kafkaInfo)
	fmt.Printf("  API        : http://127.0.0.1:%d\n", cfg.Gateway.Port)
	fmt.Printf("  Events     : http://127.0.0.1:%d/events\n", cfg.Gateway.Port)
	fmt.Printf("  Metrics    : http://127.0.0.1:%d/metrics\n\n", cfg.Gateway.Port)
	fmt.Printf("  Logs       : %s\n\n", logFilePath)
	fmt.Println("Press Ctrl+C to stop gracefully.")
	fmt.Println()

	slog.Info("gateway logger initialised", "file", logFilePath)
	gw := gateway.New(cfg, svc.registry, gateway.Options{
		Scheduled: svc.scheduled,
		Kafka:     kafkaSrc,
	})
	return gw.Start(ctx)
}

func setupGatewayFileLogger(logDir string) (string, func(), error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating log dir %s: %w", logDir, err)
	}

	ts := time.Now().UTC().Format("20060102-150405")
	runLogPath := filepath.Join(logDir, fmt.Sprintf("gateway-%s.log", ts))
	runFile, err := os.OpenFile(runLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("opening run log file: %w", err)
	}

	latestPath := filepath.Join(logDir, "gateway.log")
	latestFile, err := os.OpenFile(latestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = runFile.Close()
		return "", nil, fmt.Errorf("opening latest log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, runFile, latestFile), &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler))
	slog.SetLogLoggerLevel(level)

	cleanup := func() {
		_ = latestFile.Close()
		_ = runFile.Close()
	}
	return runLogPath, cleanup, nil
}
