package tui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbletea"

	"github.com/CosmoTheDev/ctrlnotify/internal/registry"
	"github.com/CosmoTheDev/ctrlnotify/internal/templates"
	"github.com/CosmoTheDev/ctrlnotify/models"
)

type fakeBackend struct {
	snap    Snapshot
	cleared int
}

func (f *fakeBackend) Snapshot(context.Context) (Snapshot, error) { return f.snap, nil }

func (f *fakeBackend) ClearHistory(context.Context) (int, error) {
	n := len(f.snap.History)
	f.snap.History = nil
	f.cleared++
	return n, nil
}

func testSnapshot() Snapshot {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Snapshot{
		Summary: registry.Summary{
			TotalConfigs: 2,
			EventTypes:   map[string]int{"user_signup": 2},
			Channels:     map[string]int{"email": 1, "slack": 1},
			Policies:     map[string]int{},
			SentCount:    2,
		},
		Configurations: []models.NotificationConfig{
			{EventType: "user_signup", Channel: "email", Template: "welcome_email.txt", RecipientField: "user_email"},
			{EventType: "user_signup", Channel: "slack", Template: "slack_welcome.txt", RecipientField: "slack_channel",
				Metadata: map[string]any{"username": "Bot"}},
		},
		History: []models.NotificationMessage{
			{Channel: "email", Recipient: "old@x.com", EventType: "user_signup", Content: "first", CreatedAt: t0},
			{Channel: "slack", Recipient: "#general", EventType: "user_signup", Content: "second", CreatedAt: t0.Add(time.Minute)},
		},
	}
}

func loadedApp(t *testing.T, backend Backend) *App {
	t.Helper()
	app := NewApp(backend, templates.NewEngine(""))
	app.Update(tea.WindowSizeMsg{Width: 140, Height: 50})
	msg := app.loadCmd()()
	app.Update(msg)
	return app
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestOverviewShowsCounts(t *testing.T) {
	app := loadedApp(t, &fakeBackend{snap: testSnapshot()})
	view := app.View()
	for _, want := range []string{"ctrlnotify", "CONFIGS", "email", "slack", "user_signup", "local registry"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in overview", want)
		}
	}
}

func TestHistoryNewestFirstAndFilter(t *testing.T) {
	app := loadedApp(t, &fakeBackend{snap: testSnapshot()})
	app.Update(key("3"))
	if app.activeTab != TabHistory {
		t.Fatalf("expected history tab, got %d", app.activeTab)
	}
	if got := app.history.visible()[0].Recipient; got != "#general" {
		t.Fatalf("expected newest entry first, got %s", got)
	}

	app.Update(key("e"))
	vis := app.history.visible()
	if len(vis) != 1 || vis[0].Channel != "email" {
		t.Fatalf("email filter returned %+v", vis)
	}
	if !strings.Contains(app.View(), "old@x.com") {
		t.Fatal("filtered row missing from view")
	}
}

func TestClearHistoryKey(t *testing.T) {
	backend := &fakeBackend{snap: testSnapshot()}
	app := loadedApp(t, backend)
	app.Update(key("3"))

	_, cmd := app.Update(key("x"))
	if cmd == nil {
		t.Fatal("expected clear command")
	}
	app.Update(cmd())
	if backend.cleared != 1 {
		t.Fatal("backend ClearHistory not called")
	}
	if app.statusMsg != "cleared 2 history entries" {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
}

func TestConfigsCursorShowsMetadata(t *testing.T) {
	app := loadedApp(t, &fakeBackend{snap: testSnapshot()})
	app.Update(key("2"))
	app.Update(key("j"))
	if app.configs.cursor != 1 {
		t.Fatalf("expected cursor 1, got %d", app.configs.cursor)
	}
	app.Update(key("j"))
	if app.configs.cursor != 1 {
		t.Fatal("cursor must stop at the last row")
	}
	if !strings.Contains(app.View(), "username=Bot") {
		t.Fatal("selected config metadata missing from view")
	}
}

func TestTemplatesTabListsBundled(t *testing.T) {
	app := loadedApp(t, &fakeBackend{snap: testSnapshot()})
	app.Update(app.templates.loadCmd()())
	app.Update(key("4"))
	view := app.View()
	for _, want := range []string{"welcome_email.txt", "daily_stats.txt", "bundled", "total_users"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in templates view", want)
		}
	}
}

func TestGatewayClientSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/registry", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"summary":{"total_configs":1,"sent_count":1},"configurations":[{"event_type":"user_signup","channel":"email","template":"welcome_email.txt","recipient_field":"user_email"}]}`))
	})
	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"channel":"email","recipient":"a@x.com","content":"hi"}],"total":1}`))
	})
	mux.HandleFunc("DELETE /api/history", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"cleared":1}`))
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewGatewayClient(srv.URL + "/")
	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snap.Remote || snap.Summary.TotalConfigs != 1 || len(snap.Configurations) != 1 || snap.History[0].Recipient != "a@x.com" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	n, err := c.ClearHistory(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ClearHistory = %d, %v", n, err)
	}
}

func TestGatewayClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, err := NewGatewayClient(srv.URL).Snapshot(context.Background()); err == nil {
		t.Fatal("expected error on 404")
	}
}
