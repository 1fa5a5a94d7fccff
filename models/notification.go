package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationConfig binds an event type to one channel/template pair.
// Several configs may share an EventType; each one fires independently.
type NotificationConfig struct {
	EventType string `mapstructure:"event_type" json:"event_type" yaml:"event_type"`
	Channel   string `mapstructure:"channel"    json:"channel"    yaml:"channel"`
	Template  string `mapstructure:"template"   json:"template"   yaml:"template"`
	// RecipientField is the key in the event data holding the recipient address.
	RecipientField string `mapstructure:"recipient_field" json:"recipient_field" yaml:"recipient_field"`
	// DeduplicationPolicy names a dedup policy ("content_based", "time_bucketed"). Empty = none.
	DeduplicationPolicy string `mapstructure:"deduplication_policy" json:"deduplication_policy,omitempty" yaml:"deduplication_policy,omitempty"`
	// EventSource is informational: which source is expected to emit this event type.
	EventSource string `mapstructure:"event_source" json:"event_source,omitempty" yaml:"event_source,omitempty"`
	// Metadata is passed to the channel as send options (subject, username, ...).
	Metadata map[string]any `mapstructure:"metadata" json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NotificationEvent is a single application event, consumed once by the registry.
type NotificationEvent struct {
	EventType string         `json:"event_type" yaml:"event_type"`
	Data      map[string]any `json:"data"       yaml:"data"`
	Timestamp time.Time      `json:"timestamp"  yaml:"timestamp"`
	EventID   string         `json:"event_id,omitempty" yaml:"event_id,omitempty"`
	Source    string         `json:"source,omitempty"   yaml:"source,omitempty"`
}

// NewEvent builds an event stamped with the current time. An empty id is
// replaced by a random UUID.
func NewEvent(eventType string, data map[string]any, eventID, source string) NotificationEvent {
	if eventID == "" {
		eventID = uuid.NewString()
	}
	if source == "" {
		source = "unknown"
	}
	if data == nil {
		data = map[string]any{}
	}
	return NotificationEvent{
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now(),
		EventID:   eventID,
		Source:    source,
	}
}

// NotificationMessage is a rendered message ready for dispatch. It is the
// unit deduplication operates on.
type NotificationMessage struct {
	Content   string         `json:"content"`
	Channel   string         `json:"channel"`
	Recipient string         `json:"recipient"`
	EventType string         `json:"event_type"`
	Template  string         `json:"template"`
	EventID   string         `json:"event_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Reason classifies an unsuccessful NotificationResult.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonMissingRecipient    Reason = "missing_recipient"
	ReasonTemplateError       Reason = "template_error"
	ReasonDuplicateSuppressed Reason = "duplicate_suppressed"
	ReasonChannelError        Reason = "channel_error"
)

// NotificationResult is the outcome of one config applied to one event.
type NotificationResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	EventType string    `json:"event_type"`
	Template  string    `json:"template"`
	EventID   string    `json:"event_id,omitempty"`
	Reason    Reason    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Suppressed reports whether the result is an intentional dedup skip rather
// than a failure.
func (r NotificationResult) Suppressed() bool {
	return r.Reason == ReasonDuplicateSuppressed
}

// Outcome is a short label for logs and metrics: "sent", "suppressed" or the reason code.
func (r NotificationResult) Outcome() string {
	switch {
	case r.Success:
		return "sent"
	case r.Suppressed():
		return "suppressed"
	case r.Reason != ReasonNone:
		return string(r.Reason)
	default:
		return "failed"
	}
}
