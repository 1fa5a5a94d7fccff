package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
	"github.com/CosmoTheDev/ctrlnotify/internal/registry"
	"github.com/CosmoTheDev/ctrlnotify/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Templates: config.TemplatesConfig{Dir: filepath.Join(dir, "templates")},
		Channels: config.ChannelsConfig{
			Email: config.EmailChannelConfig{OutputDir: filepath.Join(dir, "outbox")},
		},
		Dedup: config.DedupConfig{Window: "1h", Bucket: "1h"},
		Notifications: []models.NotificationConfig{{
			EventType:      "user_signup",
			Channel:        "email",
			Template:       "welcome_email.txt",
			RecipientField: "user_email",
		}},
		Database: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "notify.db")},
	}
}

func TestBuildServicesRegistersNotifications(t *testing.T) {
	cfg := testConfig(t)
	svc, err := buildServices(context.Background(), cfg, true)
	if err != nil {
		t.Fatalf("buildServices: %v", err)
	}
	defer svc.Close()

	if got := len(svc.registry.Configurations("user_signup")); got != 1 {
		t.Fatalf("expected 1 config, got %d", got)
	}
	if svc.db != nil || svc.scheduled != nil {
		t.Fatal("database should not be opened without scheduled queries")
	}

	results := svc.registry.ProcessEvent(context.Background(), "user_signup", map[string]any{
		"user_email": "a@x.com",
		"user_name":  "Alice",
	})
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestBuildServicesWithScheduledQueries(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduled = []config.ScheduledQueryConfig{{
		Name:      "daily_stats",
		Query:     "SELECT 'ops@x.com' AS user_email, 'Ops' AS user_name",
		EventType: "user_signup",
		Schedule:  "daily",
	}}
	svc, err := buildServices(context.Background(), cfg, true)
	if err != nil {
		t.Fatalf("buildServices: %v", err)
	}
	defer svc.Close()

	if svc.scheduled == nil {
		t.Fatal("expected scheduled source")
	}
	queries, err := svc.scheduled.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(queries) != 1 || queries[0].Name != "daily_stats" {
		t.Fatalf("unexpected queries: %+v", queries)
	}
}

func TestBuildServicesRejectsBadNotification(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notifications[0].Channel = "pager"
	_, err := buildServices(context.Background(), cfg, false)
	if !errors.Is(err, registry.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestBuildServicesRejectsBadDedupWindow(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dedup.Window = "eventually"
	if _, err := buildServices(context.Background(), cfg, false); err == nil {
		t.Fatal("expected error for bad dedup window")
	}
}

func TestRedactDSN(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"user:secret@tcp(db:3306)/notify", "user:***@tcp(db:3306)/notify"},
		{"user@tcp(db:3306)/notify", "user@tcp(db:3306)/notify"},
		{"u:p@ss@tcp(db:3306)/notify?x=1", "u:***@tcp(db:3306)/notify?x=1"},
	}
	for _, c := range cases {
		if got := redactDSN(c.in); got != c.want {
			t.Errorf("redactDSN(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
