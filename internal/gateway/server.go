package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
	"github.com/CosmoTheDev/ctrlnotify/internal/events"
	"github.com/CosmoTheDev/ctrlnotify/internal/metrics"
	"github.com/CosmoTheDev/ctrlnotify/internal/registry"
	"github.com/CosmoTheDev/ctrlnotify/models"
)

// Gateway is the long-running daemon that feeds the registry from:
//   - a REST API (POST /api/events)
//   - cron-driven scheduled SQL queries
//   - an optional Kafka topic
//
// and streams every result to SSE subscribers.
type Gateway struct {
	cfg         *config.Config
	reg         *registry.Registry
	scheduled   *events.Scheduled
	kafka       *events.Kafka
	metrics     *metrics.Metrics
	promReg     *prometheus.Registry
	broadcaster *Broadcaster
	startedAt   time.Time

	mu             sync.RWMutex
	eventsReceived int64
	lastEventAt    string
}

// Options carries the optional event sources.
type Options struct {
	Scheduled *events.Scheduled
	Kafka     *events.Kafka
}

// New creates a Gateway around reg. Call Start to begin serving.
func New(cfg *config.Config, reg *registry.Registry, opts Options) *Gateway {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gw := &Gateway{
		cfg:         cfg,
		reg:         reg,
		scheduled:   opts.Scheduled,
		kafka:       opts.Kafka,
		metrics:     metrics.New(promReg, reg.HistoryLen),
		promReg:     promReg,
		broadcaster: newBroadcaster(),
		startedAt:   time.Now(),
	}
	reg.AddObserver(gw.metrics.Observe)
	reg.AddObserver(func(r models.NotificationResult) {
		gw.broadcaster.send(SSEEvent{Type: "notification." + r.Outcome(), Payload: r})
	})
	return gw
}

// Handler returns the HTTP handler with every route wired.
func (gw *Gateway) Handler() http.Handler { return buildHandler(gw) }

// process runs evts through the registry and records stats.
func (gw *Gateway) process(ctx context.Context, source string, evts []models.NotificationEvent) []models.NotificationResult {
	var results []models.NotificationResult
	gw.metrics.Track(source, len(evts), func() {
		results = gw.reg.ProcessEvents(ctx, evts)
	})

	now := time.Now().UTC().Format(time.RFC3339)
	gw.mu.Lock()
	gw.eventsReceived += int64(len(evts))
	gw.lastEventAt = now
	gw.mu.Unlock()

	slog.Info("gateway: processed events", "source", source, "events", len(evts), "results", len(results))
	return results
}

// handle adapts process to the push-based event sources.
func (gw *Gateway) handle(source string) events.Handler {
	return func(ctx context.Context, evts []models.NotificationEvent) {
		gw.process(ctx, source, evts)
	}
}

func (gw *Gateway) currentStatus() Status {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return Status{
		UptimeSeconds:  int64(time.Since(gw.startedAt).Seconds()),
		EventsReceived: gw.eventsReceived,
		LastEventAt:    gw.lastEventAt,
		Configurations: len(gw.reg.Configurations("")),
		HistorySize:    gw.reg.HistoryLen(),
		Scheduled:      gw.scheduled != nil,
		Kafka:          gw.kafka != nil,
	}
}

// Start runs the gateway until ctx is cancelled. It:
//  1. Starts the cron runner for scheduled queries
//  2. Starts the Kafka consumer in a background goroutine
//  3. Binds the HTTP server (blocks until shutdown)
func (gw *Gateway) Start(ctx context.Context) error {
	port := gw.cfg.Gateway.Port
	if port == 0 {
		port = config.DefaultGatewayPort
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if gw.scheduled != nil {
		if err := gw.scheduled.Start(ctx, gw.handle("scheduled")); err != nil {
			return fmt.Errorf("starting scheduled queries: %w", err)
		}
	}

	var wg sync.WaitGroup
	if gw.kafka != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gw.kafka.Consume(ctx, gw.handle("kafka")); err != nil {
				slog.Error("gateway: kafka consumer stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           buildHandler(gw),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if gw.scheduled != nil {
			gw.scheduled.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway: listening", "addr", "http://"+addr)
	gw.broadcaster.send(SSEEvent{
		Type:    "gateway.started",
		Payload: map[string]string{"addr": "http://" + addr},
	})

	err := srv.ListenAndServe()
	cancel()
	wg.Wait()
	if gw.kafka != nil {
		_ = gw.kafka.Close()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
