package events

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRealtimeFilterLimitClear(t *testing.T) {
	r := NewRealtime()
	r.Add("user_signup", map[string]any{"user_email": "a@x.com"}, "e1")
	r.Add("order_placed", map[string]any{"order": 1}, "")
	r.Add("user_signup", map[string]any{"user_email": "b@x.com"}, "e3")

	evts, err := r.Events(context.Background(), Params{EventType: "user_signup", Limit: 1})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(evts) != 1 || evts[0].EventID != "e1" || evts[0].Source != "realtime" {
		t.Fatalf("unexpected events: %+v", evts)
	}
	if r.Len() != 3 {
		t.Fatalf("reading without Clear must keep the buffer, len=%d", r.Len())
	}

	all, _ := r.Events(context.Background(), Params{Clear: true})
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[1].EventID == "" {
		t.Fatal("missing ids should be generated")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty buffer after Clear, got %d", r.Len())
	}
}

func TestRealtimeAddRaw(t *testing.T) {
	r := NewRealtime()
	r.AddRaw([]map[string]any{
		{"event_type": "user_signup", "data": map[string]any{"user_name": "Alice"}, "event_id": 7},
		{"user_name": "Bob"},
	})
	evts, _ := r.Events(context.Background(), Params{})
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evts))
	}
	if evts[0].EventType != "user_signup" || evts[0].Data["user_name"] != "Alice" || evts[0].EventID != "7" {
		t.Fatalf("unexpected first event: %+v", evts[0])
	}
	if evts[1].EventType != "unknown" || evts[1].Data["user_name"] != "Bob" {
		t.Fatalf("whole item should become data: %+v", evts[1])
	}
}

func TestRealtimeLoadFile(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.yaml")
	if err := os.WriteFile(list, []byte(`
- event_type: user_signup
  data:
    user_email: a@x.com
    user_name: Alice
- event_type: user_signup
  data:
    user_email: b@x.com
    user_name: Bob
`), 0o600); err != nil {
		t.Fatal(err)
	}
	wrapped := filepath.Join(dir, "wrapped.json")
	if err := os.WriteFile(wrapped, []byte(`{"events":[{"event_type":"daily_stats","data":{"date":"2026-03-01"}}]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewRealtime()
	if n, err := r.LoadFile(list); err != nil || n != 2 {
		t.Fatalf("LoadFile(list) = %d, %v", n, err)
	}
	if n, err := r.LoadFile(wrapped); err != nil || n != 1 {
		t.Fatalf("LoadFile(wrapped) = %d, %v", n, err)
	}
	evts, _ := r.Events(context.Background(), Params{})
	if len(evts) != 3 || evts[1].Data["user_name"] != "Bob" || evts[2].EventType != "daily_stats" {
		t.Fatalf("unexpected events: %+v", evts)
	}

	if _, err := r.LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
