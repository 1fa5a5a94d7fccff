// Package registry matches events to notification configs and drives each
// match through render, deduplication and channel dispatch.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/CosmoTheDev/ctrlnotify/internal/dedup"
	"github.com/CosmoTheDev/ctrlnotify/internal/notify"
	"github.com/CosmoTheDev/ctrlnotify/internal/templates"
	"github.com/CosmoTheDev/ctrlnotify/models"
)

var (
	// ErrConfiguration is wrapped by every registration failure.
	ErrConfiguration = errors.New("invalid notification configuration")
	// ErrMissingRecipient marks results whose recipient could not be resolved.
	ErrMissingRecipient = errors.New("missing recipient")
)

// ConfigurationError describes the first invalid config in a registration call.
type ConfigurationError struct {
	Index  int
	Config models.NotificationConfig
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("notification config #%d (event_type=%q channel=%q template=%q): %s",
		e.Index, e.Config.EventType, e.Config.Channel, e.Config.Template, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// Observer is called with every result the registry produces.
type Observer func(models.NotificationResult)

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used to stamp messages and results.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithObserver adds an observer. Observers run synchronously after each event.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observers = append(r.observers, o) }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// templateChecker is implemented by renderers that can tell whether a
// template exists.
type templateChecker interface {
	Has(name string) bool
}

// templateOptioner is implemented by renderers whose templates carry channel
// options.
type templateOptioner interface {
	Options(name string) map[string]any
}

// Registry owns the notification configs and the sent-message history.
// It is safe for concurrent use; event processing is serialized.
type Registry struct {
	renderer templates.Renderer
	channels map[string]notify.Channel
	policies map[string]dedup.Policy
	now      func() time.Time
	log      *slog.Logger

	mu        sync.Mutex
	configs   []models.NotificationConfig
	history   []models.NotificationMessage
	observers []Observer
}

// New creates a Registry from explicit collaborators. Channel names are
// matched case-insensitively; policy names exactly.
func New(renderer templates.Renderer, channels map[string]notify.Channel, policies map[string]dedup.Policy, opts ...Option) *Registry {
	r := &Registry{
		renderer: renderer,
		channels: make(map[string]notify.Channel, len(channels)),
		policies: make(map[string]dedup.Policy, len(policies)),
		now:      time.Now,
		log:      slog.Default(),
	}
	for name, ch := range channels {
		r.channels[strings.ToLower(name)] = ch
	}
	for name, p := range policies {
		r.policies[name] = p
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterNotifications validates every config and appends them in order.
// If any config is invalid nothing is registered and a *ConfigurationError
// is returned. Configs are not deduplicated.
func (r *Registry) RegisterNotifications(configs ...models.NotificationConfig) error {
	for i, cfg := range configs {
		if reason := r.validate(cfg); reason != "" {
			return &ConfigurationError{Index: i, Config: cfg, Reason: reason}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range configs {
		r.configs = append(r.configs, cloneConfig(cfg))
	}
	r.log.Debug("registry: registered notifications", "count", len(configs), "total", len(r.configs))
	return nil
}

// RegisterNotification registers a single config.
func (r *Registry) RegisterNotification(cfg models.NotificationConfig) error {
	return r.RegisterNotifications(cfg)
}

func (r *Registry) validate(cfg models.NotificationConfig) string {
	switch {
	case strings.TrimSpace(cfg.EventType) == "":
		return "event_type is required"
	case strings.TrimSpace(cfg.RecipientField) == "":
		return "recipient_field is required"
	case strings.TrimSpace(cfg.Template) == "":
		return "template is required"
	}
	if _, ok := r.channels[strings.ToLower(cfg.Channel)]; !ok {
		return fmt.Sprintf("unknown channel %q", cfg.Channel)
	}
	if tc, ok := r.renderer.(templateChecker); ok && !tc.Has(cfg.Template) {
		return fmt.Sprintf("unknown template %q", cfg.Template)
	}
	if cfg.DeduplicationPolicy != "" {
		if _, ok := r.policies[cfg.DeduplicationPolicy]; !ok {
			return fmt.Sprintf("unknown deduplication policy %q", cfg.DeduplicationPolicy)
		}
	}
	return ""
}

// Configurations returns the registered configs for eventType, or all of
// them when eventType is empty.
func (r *Registry) Configurations(eventType string) []models.NotificationConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.NotificationConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		if eventType == "" || cfg.EventType == eventType {
			out = append(out, cloneConfig(cfg))
		}
	}
	return out
}

// ProcessEvent applies every config registered for eventType to data.
// A type with no configs yields an empty slice. Per-config failures are
// reported as results, never as errors.
func (r *Registry) ProcessEvent(ctx context.Context, eventType string, data map[string]any) []models.NotificationResult {
	return r.Process(ctx, models.NewEvent(eventType, data, "", "direct"))
}

// Process applies every matching config to a fully formed event.
func (r *Registry) Process(ctx context.Context, evt models.NotificationEvent) []models.NotificationResult {
	r.mu.Lock()
	results := r.processLocked(ctx, evt)
	r.mu.Unlock()

	r.notify(results)
	return results
}

// ProcessEvents processes events in order and concatenates their results.
func (r *Registry) ProcessEvents(ctx context.Context, events []models.NotificationEvent) []models.NotificationResult {
	out := make([]models.NotificationResult, 0, len(events))
	for _, evt := range events {
		out = append(out, r.Process(ctx, evt)...)
	}
	return out
}

func (r *Registry) processLocked(ctx context.Context, evt models.NotificationEvent) []models.NotificationResult {
	results := make([]models.NotificationResult, 0)
	for _, cfg := range r.configs {
		if cfg.EventType != evt.EventType {
			continue
		}
		res := r.apply(ctx, cfg, evt)
		r.log.Debug("registry: processed notification",
			"event_type", evt.EventType,
			"event_id", evt.EventID,
			"channel", res.Channel,
			"recipient", res.Recipient,
			"outcome", res.Outcome(),
		)
		results = append(results, res)
	}
	if len(results) == 0 {
		r.log.Debug("registry: no notifications configured", "event_type", evt.EventType)
	}
	return results
}

func (r *Registry) apply(ctx context.Context, cfg models.NotificationConfig, evt models.NotificationEvent) models.NotificationResult {
	now := r.now()
	res := models.NotificationResult{
		Channel:   cfg.Channel,
		EventType: evt.EventType,
		Template:  cfg.Template,
		EventID:   evt.EventID,
		Timestamp: now,
	}
	fail := func(reason models.Reason, msg string, err error) models.NotificationResult {
		res.Reason = reason
		res.Message = msg
		if err != nil {
			res.Error = err.Error()
		}
		return res
	}

	ch, ok := r.channels[strings.ToLower(cfg.Channel)]
	if !ok {
		return fail(models.ReasonChannelError, "channel not available",
			fmt.Errorf("%w: unknown channel %q", notify.ErrChannelDelivery, cfg.Channel))
	}

	recipient, ok := lookupRecipient(evt.Data, cfg.RecipientField)
	if !ok {
		return fail(models.ReasonMissingRecipient, "recipient not found in event data",
			fmt.Errorf("%w: field %q", ErrMissingRecipient, cfg.RecipientField))
	}
	res.Recipient = recipient
	if !ch.ValidateRecipient(recipient) {
		return fail(models.ReasonMissingRecipient, "recipient rejected by channel",
			fmt.Errorf("%w: %q is not a valid %s recipient", ErrMissingRecipient, recipient, ch.Name()))
	}

	content, err := r.renderer.Render(cfg.Template, evt.Data)
	if err != nil {
		return fail(models.ReasonTemplateError, "template rendering failed", err)
	}

	msg := models.NotificationMessage{
		Content:   content,
		Channel:   cfg.Channel,
		Recipient: recipient,
		EventType: evt.EventType,
		Template:  cfg.Template,
		EventID:   evt.EventID,
		Metadata:  r.sendOptions(cfg),
		CreatedAt: now,
	}

	if cfg.DeduplicationPolicy != "" {
		policy, ok := r.policies[cfg.DeduplicationPolicy]
		if ok && !policy.ShouldSend(msg, r.history) {
			return fail(models.ReasonDuplicateSuppressed,
				fmt.Sprintf("duplicate suppressed by %s policy", policy.Name()), nil)
		}
	}

	detail, err := ch.Send(ctx, content, recipient, msg.Metadata)
	if err != nil {
		r.log.Warn("registry: channel send failed", "channel", cfg.Channel, "recipient", recipient, "error", err)
		return fail(models.ReasonChannelError, "delivery failed", err)
	}

	r.history = append(r.history, msg)
	res.Success = true
	res.Message = detail
	return res
}

// sendOptions merges template frontmatter options with config metadata;
// metadata wins.
func (r *Registry) sendOptions(cfg models.NotificationConfig) map[string]any {
	var base map[string]any
	if to, ok := r.renderer.(templateOptioner); ok {
		base = to.Options(cfg.Template)
	}
	if len(base) == 0 && len(cfg.Metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(cfg.Metadata))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range cfg.Metadata {
		out[k] = v
	}
	return out
}

// AddObserver registers an observer after construction.
func (r *Registry) AddObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

func (r *Registry) notify(results []models.NotificationResult) {
	r.mu.Lock()
	observers := r.observers
	r.mu.Unlock()
	for _, res := range results {
		for _, o := range observers {
			o(res)
		}
	}
}

// History returns a copy of the sent-message history in dispatch order.
func (r *Registry) History() []models.NotificationMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.NotificationMessage, len(r.history))
	copy(out, r.history)
	return out
}

// HistoryLen returns the number of messages dispatched so far.
func (r *Registry) HistoryLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

// ClearHistory forgets every sent message, re-enabling anything that was
// being suppressed.
func (r *Registry) ClearHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}

// lookupRecipient resolves data[field]. Missing, nil and blank values are
// treated as absent.
func lookupRecipient(data map[string]any, field string) (string, bool) {
	v, ok := data[field]
	if !ok || v == nil {
		return "", false
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return "", false
	}
	return s, true
}

func cloneConfig(cfg models.NotificationConfig) models.NotificationConfig {
	if cfg.Metadata != nil {
		m := make(map[string]any, len(cfg.Metadata))
		for k, v := range cfg.Metadata {
			m[k] = v
		}
		cfg.Metadata = m
	}
	return cfg
}
