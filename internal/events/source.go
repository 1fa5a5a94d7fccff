// Package events produces NotificationEvents for the registry: an in-memory
// realtime buffer, SQL queries run on a schedule, and a Kafka stream.
package events

import (
	"context"
	"errors"

	"github.com/CosmoTheDev/ctrlnotify/models"
)

// ErrSource is wrapped by event retrieval failures.
var ErrSource = errors.New("event source error")

// Params narrows what a Source returns. Zero values mean "no filter".
type Params struct {
	EventType string
	// Limit caps the number of events returned (realtime only).
	Limit int
	// Clear empties the realtime buffer after reading.
	Clear bool
	// QueryName restricts a scheduled source to one query.
	QueryName string
	// Force runs scheduled queries even when they are not due.
	Force bool
}

// Source is implemented by pull-based event sources.
type Source interface {
	Name() string
	Events(ctx context.Context, p Params) ([]models.NotificationEvent, error)
}

// Handler receives events from push-based sources (cron, Kafka).
type Handler func(ctx context.Context, evts []models.NotificationEvent)

func filterType(evts []models.NotificationEvent, eventType string) []models.NotificationEvent {
	if eventType == "" {
		return evts
	}
	out := evts[:0:0]
	for _, e := range evts {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
