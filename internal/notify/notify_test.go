package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
)

func TestEmailValidateRecipient(t *testing.T) {
	e := NewEmail(config.EmailChannelConfig{OutputDir: t.TempDir()})
	for addr, want := range map[string]bool{
		"a@x.com":         true,
		"first.last@a.io": true,
		"":                false,
		"no-at.example":   false,
		"@x.com":          false,
		"a@nodot":         false,
		"a@x.":            false,
		"a@b@c.com":       false,
	} {
		if got := e.ValidateRecipient(addr); got != want {
			t.Fatalf("ValidateRecipient(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestEmailSendWritesFile(t *testing.T) {
	dir := t.TempDir()
	e := NewEmail(config.EmailChannelConfig{OutputDir: dir, From: "noreply@x.com", Subject: "Notification"})
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	detail, err := e.Send(context.Background(), "Hello Alice", "a@x.com", map[string]any{"subject": "Welcome"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one file, got %d (%v)", len(entries), err)
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "20260301T120000_a_x.com_") || !strings.HasSuffix(name, ".txt") {
		t.Fatalf("unexpected file name %q", name)
	}
	if !strings.Contains(detail, name) {
		t.Fatalf("detail %q should mention %q", detail, name)
	}
	data, _ := os.ReadFile(filepath.Join(dir, name))
	for _, want := range []string{"From: noreply@x.com", "To: a@x.com", "Subject: Welcome", "Hello Alice"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("expected %q in:\n%s", want, data)
		}
	}
}

func TestEmailSendFailsOnUnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	e := NewEmail(config.EmailChannelConfig{OutputDir: file})
	if _, err := e.Send(context.Background(), "x", "a@x.com", nil); !errors.Is(err, ErrChannelDelivery) {
		t.Fatalf("expected ErrChannelDelivery, got %v", err)
	}
}

func TestSlackSendPrintsPost(t *testing.T) {
	var buf bytes.Buffer
	s := NewSlack(config.SlackChannelConfig{Username: "Notification Bot", IconEmoji: ":bell:"}, &buf)

	if !s.ValidateRecipient("#general") || !s.ValidateRecipient("@alice") || s.ValidateRecipient("general") || s.ValidateRecipient("#") {
		t.Fatal("unexpected recipient validation")
	}
	if _, err := s.Send(context.Background(), "New user *Alice*", "#general", map[string]any{"username": "Welcome Bot"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"#general", ":bell: Welcome Bot", "New user *Alice*"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}

func TestSlackSendCancelledContext(t *testing.T) {
	s := NewSlack(config.SlackChannelConfig{}, io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Send(ctx, "x", "#a", nil); !errors.Is(err, ErrChannelDelivery) {
		t.Fatalf("expected ErrChannelDelivery, got %v", err)
	}
}

func TestWebhookSignsPayload(t *testing.T) {
	var gotSig string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get(SignatureHeader) != "sha256="+Sign("s3cret", body) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		gotSig = r.Header.Get(SignatureHeader)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w := NewWebhook(config.WebhookChannelConfig{URL: srv.URL, Secret: "s3cret"})
	if _, err := w.Send(context.Background(), "hello", "ops", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotSig == "" {
		t.Fatal("expected signature header")
	}
	if gotBody["recipient"] != "ops" || gotBody["content"] != "hello" {
		t.Fatalf("unexpected payload: %v", gotBody)
	}
}

func TestWebhookNon2xxIsDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(config.WebhookChannelConfig{URL: srv.URL})
	_, err := w.Send(context.Background(), "hello", "ops", nil)
	if !errors.Is(err, ErrChannelDelivery) || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected delivery error with status, got %v", err)
	}
}

func TestBuildRegistersConfiguredChannels(t *testing.T) {
	set := Build(config.ChannelsConfig{
		Email: config.EmailChannelConfig{OutputDir: t.TempDir()},
	}, Options{SlackOut: io.Discard})

	if got := strings.Join(set.Names(), ","); got != "email,slack" {
		t.Fatalf("expected email,slack got %s", got)
	}
	if _, ok := set.Get("EMAIL"); !ok {
		t.Fatal("lookup should be case-insensitive")
	}

	set = Build(config.ChannelsConfig{Webhook: config.WebhookChannelConfig{URL: "http://127.0.0.1:1"}}, Options{SlackOut: io.Discard})
	if _, ok := set.Get("webhook"); !ok {
		t.Fatal("webhook should be registered when a URL is set")
	}
}
