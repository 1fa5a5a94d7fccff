package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
	"github.com/CosmoTheDev/ctrlnotify/internal/dedup"
	"github.com/CosmoTheDev/ctrlnotify/internal/notify"
	"github.com/CosmoTheDev/ctrlnotify/internal/templates"
	"github.com/CosmoTheDev/ctrlnotify/models"
)

type sentCall struct {
	content   string
	recipient string
	opts      map[string]any
}

// spyChannel records every Send and optionally fails.
type spyChannel struct {
	name    string
	failErr error
	reject  bool

	mu    sync.Mutex
	calls []sentCall
}

func (s *spyChannel) Name() string       { return s.name }
func (s *spyChannel) IsConfigured() bool { return true }
func (s *spyChannel) ValidateRecipient(r string) bool {
	return !s.reject
}

func (s *spyChannel) Send(_ context.Context, content, recipient string, opts map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sentCall{content: content, recipient: recipient, opts: opts})
	if s.failErr != nil {
		return "", fmt.Errorf("%w: %v", notify.ErrChannelDelivery, s.failErr)
	}
	return "sent to " + recipient, nil
}

func (s *spyChannel) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	reg   *Registry
	email *spyChannel
	slack *spyChannel
	clock *fakeClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	policies, err := dedup.Build(config.DedupConfig{Window: "1h", Bucket: "1h"})
	if err != nil {
		t.Fatalf("dedup.Build: %v", err)
	}
	f := &fixture{
		email: &spyChannel{name: "email"},
		slack: &spyChannel{name: "slack"},
		clock: &fakeClock{t: t0},
	}
	opts = append([]Option{WithClock(f.clock.now)}, opts...)
	f.reg = New(templates.NewEngine(t.TempDir()), map[string]notify.Channel{
		"email": f.email,
		"slack": f.slack,
	}, policies, opts...)
	return f
}

func signupEmail() models.NotificationConfig {
	return models.NotificationConfig{
		EventType:      "user_signup",
		Channel:        "email",
		Template:       "welcome_email.txt",
		RecipientField: "user_email",
	}
}

func signupSlack() models.NotificationConfig {
	return models.NotificationConfig{
		EventType:      "user_signup",
		Channel:        "slack",
		Template:       "slack_welcome.txt",
		RecipientField: "slack_channel",
	}
}

func signupData() map[string]any {
	return map[string]any{"user_email": "a@x.com", "user_name": "Alice", "slack_channel": "#general"}
}

func TestProcessEventNoMatchReturnsEmpty(t *testing.T) {
	f := newFixture(t)
	if err := f.reg.RegisterNotifications(signupEmail()); err != nil {
		t.Fatal(err)
	}
	res := f.reg.ProcessEvent(context.Background(), "order_placed", signupData())
	if res == nil || len(res) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", res)
	}
	if f.reg.ProcessEvent(context.Background(), "USER_SIGNUP", signupData()); f.email.count() != 0 {
		t.Fatal("event type matching must be case-sensitive")
	}
}

func TestProcessEventUserSignupEmail(t *testing.T) {
	f := newFixture(t)
	if err := f.reg.RegisterNotifications(signupEmail()); err != nil {
		t.Fatal(err)
	}
	res := f.reg.ProcessEvent(context.Background(), "user_signup", signupData())
	if len(res) != 1 {
		t.Fatalf("expected 1 result, got %d", len(res))
	}
	r := res[0]
	if !r.Success || r.Recipient != "a@x.com" || r.Channel != "email" || r.Reason != models.ReasonNone {
		t.Fatalf("unexpected result: %+v", r)
	}
	if f.email.count() != 1 || !strings.Contains(f.email.calls[0].content, "Alice") {
		t.Fatalf("expected rendered content with Alice, got %+v", f.email.calls)
	}
	if f.email.calls[0].opts["subject"] != "Welcome to our platform!" {
		t.Fatalf("template subject should reach the channel, got %v", f.email.calls[0].opts)
	}
	if f.reg.HistoryLen() != 1 {
		t.Fatalf("expected 1 history entry, got %d", f.reg.HistoryLen())
	}
}

func TestProcessEventFansOutPerChannel(t *testing.T) {
	f := newFixture(t)
	f.slack.failErr = errors.New("slack down")
	if err := f.reg.RegisterNotifications(signupEmail(), signupSlack()); err != nil {
		t.Fatal(err)
	}
	res := f.reg.ProcessEvent(context.Background(), "user_signup", signupData())
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].Channel != "email" || !res[0].Success {
		t.Fatalf("email result: %+v", res[0])
	}
	if res[1].Channel != "slack" || res[1].Success || res[1].Reason != models.ReasonChannelError {
		t.Fatalf("slack result: %+v", res[1])
	}
	if f.reg.HistoryLen() != 1 {
		t.Fatalf("failed deliveries must not enter history, got %d entries", f.reg.HistoryLen())
	}
}

func TestMissingRecipientSkipsDispatch(t *testing.T) {
	f := newFixture(t)
	if err := f.reg.RegisterNotifications(signupEmail()); err != nil {
		t.Fatal(err)
	}
	for _, data := range []map[string]any{
		{"user_name": "Alice"},
		{"user_name": "Alice", "user_email": nil},
		{"user_name": "Alice", "user_email": "  "},
	} {
		res := f.reg.ProcessEvent(context.Background(), "user_signup", data)
		if len(res) != 1 || res[0].Success || res[0].Reason != models.ReasonMissingRecipient {
			t.Fatalf("expected missing_recipient, got %+v", res)
		}
	}
	if f.email.count() != 0 {
		t.Fatalf("channel must not be invoked, got %d calls", f.email.count())
	}
}

func TestRecipientRejectedByChannel(t *testing.T) {
	f := newFixture(t)
	f.email.reject = true
	if err := f.reg.RegisterNotifications(signupEmail()); err != nil {
		t.Fatal(err)
	}
	res := f.reg.ProcessEvent(context.Background(), "user_signup", signupData())
	if res[0].Reason != models.ReasonMissingRecipient || f.email.count() != 0 {
		t.Fatalf("expected missing_recipient without dispatch, got %+v", res[0])
	}
}

func TestTemplateErrorIsReported(t *testing.T) {
	f := newFixture(t)
	if err := f.reg.RegisterNotifications(signupEmail()); err != nil {
		t.Fatal(err)
	}
	res := f.reg.ProcessEvent(context.Background(), "user_signup", map[string]any{"user_email": "a@x.com"})
	if len(res) != 1 || res[0].Reason != models.ReasonTemplateError || res[0].Error == "" {
		t.Fatalf("expected template_error, got %+v", res)
	}
	if f.email.count() != 0 {
		t.Fatal("channel must not be invoked after a render failure")
	}
}

func TestDuplicateConfigFiresTwice(t *testing.T) {
	f := newFixture(t)
	cfg := signupEmail()
	if err := f.reg.RegisterNotifications(cfg, cfg); err != nil {
		t.Fatal(err)
	}
	res := f.reg.ProcessEvent(context.Background(), "user_signup", signupData())
	if len(res) != 2 || !res[0].Success || !res[1].Success {
		t.Fatalf("expected two successful dispatches, got %+v", res)
	}
	if f.email.count() != 2 {
		t.Fatalf("expected 2 sends, got %d", f.email.count())
	}
}

func TestContentDedupWindow(t *testing.T) {
	f := newFixture(t)
	cfg := signupEmail()
	cfg.DeduplicationPolicy = dedup.ContentBased
	if err := f.reg.RegisterNotifications(cfg); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	first := f.reg.ProcessEvent(ctx, "user_signup", signupData())
	f.clock.advance(1800 * time.Second)
	second := f.reg.ProcessEvent(ctx, "user_signup", signupData())
	f.clock.advance(1900 * time.Second) // t=3700
	third := f.reg.ProcessEvent(ctx, "user_signup", signupData())

	if !first[0].Success {
		t.Fatalf("first send should succeed: %+v", first[0])
	}
	if second[0].Success || second[0].Reason != models.ReasonDuplicateSuppressed || !second[0].Suppressed() {
		t.Fatalf("second send should be suppressed: %+v", second[0])
	}
	if !third[0].Success {
		t.Fatalf("send after window should succeed: %+v", third[0])
	}
	if f.email.count() != 2 || f.reg.HistoryLen() != 2 {
		t.Fatalf("expected 2 dispatches, got %d (history %d)", f.email.count(), f.reg.HistoryLen())
	}
}

func TestNoPolicyMeansNoDedup(t *testing.T) {
	f := newFixture(t)
	if err := f.reg.RegisterNotifications(signupEmail()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		f.reg.ProcessEvent(context.Background(), "user_signup", signupData())
	}
	if f.email.count() != 3 {
		t.Fatalf("expected 3 sends without a policy, got %d", f.email.count())
	}
}

func TestClearHistoryReenablesSuppressed(t *testing.T) {
	f := newFixture(t)
	cfg := signupEmail()
	cfg.DeduplicationPolicy = dedup.ContentBased
	if err := f.reg.RegisterNotifications(cfg); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	f.reg.ProcessEvent(ctx, "user_signup", signupData())
	f.reg.ClearHistory()
	if res := f.reg.ProcessEvent(ctx, "user_signup", signupData()); !res[0].Success {
		t.Fatalf("expected send after ClearHistory, got %+v", res[0])
	}
}

func TestProcessEventsPreservesOrder(t *testing.T) {
	f := newFixture(t)
	if err := f.reg.RegisterNotifications(signupEmail(), signupSlack()); err != nil {
		t.Fatal(err)
	}
	e1 := models.NewEvent("user_signup", map[string]any{"user_email": "a@x.com", "user_name": "Alice", "slack_channel": "#a"}, "e1", "test")
	e2 := models.NewEvent("user_signup", map[string]any{"user_email": "b@x.com", "user_name": "Bob", "slack_channel": "#b"}, "e2", "test")

	res := f.reg.ProcessEvents(context.Background(), []models.NotificationEvent{e1, e2})
	if len(res) != 4 {
		t.Fatalf("expected 4 results, got %d", len(res))
	}
	want := []struct{ id, ch string }{{"e1", "email"}, {"e1", "slack"}, {"e2", "email"}, {"e2", "slack"}}
	for i, w := range want {
		if res[i].EventID != w.id || res[i].Channel != w.ch {
			t.Fatalf("result %d: got (%s,%s) want (%s,%s)", i, res[i].EventID, res[i].Channel, w.id, w.ch)
		}
	}
}

func TestProcessEventsContinuesAfterFailures(t *testing.T) {
	f := newFixture(t)
	f.email.failErr = errors.New("smtp down")
	if err := f.reg.RegisterNotifications(signupEmail()); err != nil {
		t.Fatal(err)
	}
	events := []models.NotificationEvent{
		models.NewEvent("user_signup", signupData(), "", ""),
		models.NewEvent("user_signup", signupData(), "", ""),
	}
	res := f.reg.ProcessEvents(context.Background(), events)
	if len(res) != 2 || f.email.count() != 2 {
		t.Fatalf("expected both events attempted, got %d results / %d sends", len(res), f.email.count())
	}
}

func TestRegisterRejectsInvalidConfigsAtomically(t *testing.T) {
	cases := map[string]func(*models.NotificationConfig){
		"unknown channel":  func(c *models.NotificationConfig) { c.Channel = "pager" },
		"unknown template": func(c *models.NotificationConfig) { c.Template = "nope.txt" },
		"unknown policy":   func(c *models.NotificationConfig) { c.DeduplicationPolicy = "fuzzy" },
		"no event type":    func(c *models.NotificationConfig) { c.EventType = "" },
		"no recipient":     func(c *models.NotificationConfig) { c.RecipientField = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			bad := signupEmail()
			mutate(&bad)

			err := f.reg.RegisterNotifications(signupEmail(), bad)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			var cerr *ConfigurationError
			if !errors.As(err, &cerr) || cerr.Index != 1 {
				t.Fatalf("expected *ConfigurationError at index 1, got %#v", err)
			}
			if n := len(f.reg.Configurations("")); n != 0 {
				t.Fatalf("nothing should be registered, got %d", n)
			}
		})
	}
}

func TestChannelNamesAreCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	cfg := signupEmail()
	cfg.Channel = "Email"
	if err := f.reg.RegisterNotification(cfg); err != nil {
		t.Fatalf("RegisterNotification: %v", err)
	}
	if res := f.reg.ProcessEvent(context.Background(), "user_signup", signupData()); !res[0].Success {
		t.Fatalf("expected success, got %+v", res[0])
	}
}

func TestMetadataOverridesTemplateOptions(t *testing.T) {
	f := newFixture(t)
	cfg := signupEmail()
	cfg.Metadata = map[string]any{"subject": "Hi there", "from_email": "team@x.com"}
	if err := f.reg.RegisterNotifications(cfg); err != nil {
		t.Fatal(err)
	}
	f.reg.ProcessEvent(context.Background(), "user_signup", signupData())
	opts := f.email.calls[0].opts
	if opts["subject"] != "Hi there" || opts["from_email"] != "team@x.com" {
		t.Fatalf("unexpected options: %v", opts)
	}
}

func TestObserversSeeEveryResult(t *testing.T) {
	var seen []string
	f := newFixture(t, WithObserver(func(r models.NotificationResult) {
		seen = append(seen, r.Channel+":"+r.Outcome())
	}))
	if err := f.reg.RegisterNotifications(signupEmail(), signupSlack()); err != nil {
		t.Fatal(err)
	}
	f.reg.ProcessEvent(context.Background(), "user_signup", map[string]any{"user_email": "a@x.com", "user_name": "A"})
	if got := strings.Join(seen, ","); got != "email:sent,slack:missing_recipient" {
		t.Fatalf("unexpected observations: %s", got)
	}
}

func TestConcurrentProcessingDedupsOnce(t *testing.T) {
	f := newFixture(t)
	cfg := signupEmail()
	cfg.DeduplicationPolicy = dedup.ContentBased
	if err := f.reg.RegisterNotifications(cfg); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.reg.ProcessEvent(context.Background(), "user_signup", signupData())
		}()
	}
	wg.Wait()
	if f.email.count() != 1 || f.reg.HistoryLen() != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", f.email.count())
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	dup := signupEmail()
	dup.DeduplicationPolicy = dedup.ContentBased
	if err := f.reg.RegisterNotifications(dup, signupSlack()); err != nil {
		t.Fatal(err)
	}
	f.reg.ProcessEvent(context.Background(), "user_signup", signupData())

	s := f.reg.Summary()
	if s.TotalConfigs != 2 || s.EventTypes["user_signup"] != 2 || s.Channels["email"] != 1 || s.Policies[dedup.ContentBased] != 1 || s.SentCount != 2 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	var b strings.Builder
	if _, err := s.WriteTo(&b); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.String(), "Total configurations: 2") || !strings.Contains(b.String(), "user_signup") {
		t.Fatalf("unexpected summary text:\n%s", b.String())
	}
}

func TestSummaryFoldsChannelCase(t *testing.T) {
	f := newFixture(t)
	upper := signupEmail()
	upper.Channel = "Email"
	if err := f.reg.RegisterNotifications(signupEmail(), upper); err != nil {
		t.Fatal(err)
	}
	s := f.reg.Summary()
	if len(s.Channels) != 1 || s.Channels["email"] != 2 {
		t.Fatalf("expected both configs counted under email, got %v", s.Channels)
	}
}
