package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
	"github.com/CosmoTheDev/ctrlnotify/internal/database"
	"github.com/CosmoTheDev/ctrlnotify/internal/dedup"
	"github.com/CosmoTheDev/ctrlnotify/internal/events"
	"github.com/CosmoTheDev/ctrlnotify/internal/notify"
	"github.com/CosmoTheDev/ctrlnotify/internal/registry"
	"github.com/CosmoTheDev/ctrlnotify/internal/templates"
)

// services bundles the collaborators every command builds from config.
type services struct {
	cfg       *config.Config
	engine    *templates.Engine
	channels  notify.Set
	registry  *registry.Registry
	db        database.DB
	scheduled *events.Scheduled
}

// buildServices wires the template engine, channels, dedup policies and the
// registry, then registers cfg.Notifications. With withStorage the database
// is opened and cfg.Scheduled is registered as well.
func buildServices(ctx context.Context, cfg *config.Config, withStorage bool) (*services, error) {
	rt := &services{
		cfg:      cfg,
		engine:   templates.NewEngine(cfg.Templates.Dir),
		channels: notify.Build(cfg.Channels, notify.Options{}),
	}

	policies, err := dedup.Build(cfg.Dedup)
	if err != nil {
		return nil, fmt.Errorf("dedup config: %w", err)
	}

	rt.registry = registry.New(rt.engine, rt.channels, policies, registry.WithLogger(slog.Default()))
	if err := rt.registry.RegisterNotifications(cfg.Notifications...); err != nil {
		return nil, fmt.Errorf("registering notifications: %w", err)
	}
	slog.Debug("registry ready", "configs", len(cfg.Notifications), "channels", rt.channels.Names())

	if !withStorage || len(cfg.Scheduled) == 0 {
		return rt, nil
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	rt.db = db
	rt.scheduled = events.NewScheduled(db)
	for _, q := range cfg.Scheduled {
		if err := rt.scheduled.Register(ctx, q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("registering scheduled query %q: %w", q.Name, err)
		}
	}
	return rt, nil
}

// Close releases the database, if one was opened.
func (rt *services) Close() {
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

func loadServices(ctx context.Context, withStorage bool) (*services, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return buildServices(ctx, cfg, withStorage)
}
