package registry

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Summary describes the registry's current state.
type Summary struct {
	TotalConfigs int            `json:"total_configs"`
	EventTypes   map[string]int `json:"event_types"`
	Channels     map[string]int `json:"channels"`
	Policies     map[string]int `json:"policies"`
	SentCount    int            `json:"sent_count"`
}

// Summary counts configs by event type, channel and dedup policy.
func (r *Registry) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{
		TotalConfigs: len(r.configs),
		EventTypes:   map[string]int{},
		Channels:     map[string]int{},
		Policies:     map[string]int{},
		SentCount:    len(r.history),
	}
	for _, cfg := range r.configs {
		s.EventTypes[cfg.EventType]++
		s.Channels[strings.ToLower(cfg.Channel)]++
		if cfg.DeduplicationPolicy != "" {
			s.Policies[cfg.DeduplicationPolicy]++
		}
	}
	return s
}

// WriteTo prints s as plain text.
func (s Summary) WriteTo(w io.Writer) (int64, error) {
	var n int64
	p := func(format string, args ...any) error {
		m, err := fmt.Fprintf(w, format, args...)
		n += int64(m)
		return err
	}
	if err := p("Total configurations: %d\nMessages sent:        %d\n", s.TotalConfigs, s.SentCount); err != nil {
		return n, err
	}
	for _, sec := range []struct {
		title  string
		counts map[string]int
	}{
		{"By event type", s.EventTypes},
		{"By channel", s.Channels},
		{"By dedup policy", s.Policies},
	} {
		if len(sec.counts) == 0 {
			continue
		}
		if err := p("\n%s:\n", sec.title); err != nil {
			return n, err
		}
		for _, k := range sortedKeys(sec.counts) {
			if err := p("  %-24s %d\n", k, sec.counts[k]); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
