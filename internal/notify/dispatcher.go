package notify

import (
	"io"
	"os"
	"sort"
	"strings"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
)

// Set maps lower-case channel names to channel instances.
type Set map[string]Channel

// Options tweak Build for tests and embedding.
type Options struct {
	// SlackOut receives Slack posts (default: os.Stdout).
	SlackOut io.Writer
}

// Build constructs every channel from cfg and returns the configured ones,
// keyed by name.
func Build(cfg config.ChannelsConfig, opts Options) Set {
	out := opts.SlackOut
	if out == nil {
		out = os.Stdout
	}
	channels := []Channel{
		NewEmail(cfg.Email),
		NewSlack(cfg.Slack, out),
		NewWebhook(cfg.Webhook),
	}
	set := make(Set, len(channels))
	for _, ch := range channels {
		if ch.IsConfigured() {
			set.Add(ch)
		}
	}
	return set
}

// Add registers ch under its lower-cased name, replacing any previous entry.
func (s Set) Add(ch Channel) {
	s[strings.ToLower(ch.Name())] = ch
}

// Get looks a channel up case-insensitively.
func (s Set) Get(name string) (Channel, bool) {
	ch, ok := s[strings.ToLower(name)]
	return ch, ok
}

// Names returns the registered channel names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
