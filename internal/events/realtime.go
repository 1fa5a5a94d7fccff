package events

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.yaml.in/yaml/v3"

	"github.com/CosmoTheDev/ctrlnotify/models"
)

type pending struct {
	eventType string
	data      map[string]any
	eventID   string
}

// Realtime buffers events handed to it in-process until they are read.
type Realtime struct {
	mu  sync.Mutex
	buf []pending
}

// NewRealtime returns an empty buffer.
func NewRealtime() *Realtime { return &Realtime{} }

func (r *Realtime) Name() string { return "realtime" }

// Add appends one event. An empty eventID is assigned when read.
func (r *Realtime) Add(eventType string, data map[string]any, eventID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, pending{eventType: eventType, data: data, eventID: eventID})
}

// AddRaw appends loosely shaped event maps:
//
//	{"event_type": "...", "data": {...}, "event_id": "..."}
//
// A missing event_type becomes "unknown"; a missing data map means the whole
// item is the data.
func (r *Realtime) AddRaw(items []map[string]any) {
	for _, item := range items {
		eventType, _ := item["event_type"].(string)
		if eventType == "" {
			eventType = "unknown"
		}
		data, ok := item["data"].(map[string]any)
		if !ok {
			data = item
		}
		var id string
		if v, ok := item["event_id"]; ok && v != nil {
			id = fmt.Sprint(v)
		}
		r.Add(eventType, data, id)
	}
}

// LoadFile reads a YAML or JSON file holding either a list of event maps or
// {"events": [...]} and buffers them. It returns the number of events added.
func (r *Realtime) LoadFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: reading %s: %v", ErrSource, path, err)
	}
	items, err := decodeBatch(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing %s: %v", ErrSource, path, err)
	}
	r.AddRaw(items)
	return len(items), nil
}

func decodeBatch(raw []byte) ([]map[string]any, error) {
	var list []map[string]any
	if err := yaml.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Events []map[string]any `yaml:"events"`
	}
	if err := yaml.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Events, nil
}

// Events returns buffered events, oldest first. Entries without a data map
// are skipped.
func (r *Realtime) Events(_ context.Context, p Params) ([]models.NotificationEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.NotificationEvent, 0, len(r.buf))
	for _, e := range r.buf {
		if p.EventType != "" && e.eventType != p.EventType {
			continue
		}
		if p.Limit > 0 && len(out) >= p.Limit {
			break
		}
		if e.data == nil {
			continue
		}
		out = append(out, models.NewEvent(e.eventType, e.data, e.eventID, r.Name()))
	}
	if p.Clear {
		r.buf = nil
	}
	return out, nil
}

// Len returns the number of buffered events.
func (r *Realtime) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Clear drops every buffered event.
func (r *Realtime) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = nil
}
