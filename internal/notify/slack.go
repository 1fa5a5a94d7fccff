package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
)

// SlackChannel prints Slack-style posts to a writer instead of calling the
// Slack API.
type SlackChannel struct {
	cfg config.SlackChannelConfig

	mu  sync.Mutex
	out io.Writer
}

// NewSlack creates a SlackChannel writing to out.
func NewSlack(cfg config.SlackChannelConfig, out io.Writer) *SlackChannel {
	return &SlackChannel{cfg: cfg, out: out}
}

func (s *SlackChannel) Name() string       { return "slack" }
func (s *SlackChannel) IsConfigured() bool { return s.out != nil }

// ValidateRecipient accepts "#channel" and "@user".
func (s *SlackChannel) ValidateRecipient(recipient string) bool {
	r := strings.TrimSpace(recipient)
	return len(r) > 1 && (r[0] == '#' || r[0] == '@')
}

// Send prints a framed post. Options: username, icon_emoji.
func (s *SlackChannel) Send(ctx context.Context, content, recipient string, opts map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", deliveryError(s.Name(), err)
	}
	username := optString(opts, "username", s.cfg.Username)
	icon := optString(opts, "icon_emoji", s.cfg.IconEmoji)

	rule := strings.Repeat("─", 50)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "%s\nSlack → %s\n%s %s\n%s\n%s\n",
		rule, recipient, icon, username, strings.TrimSpace(content), rule)
	if err != nil {
		return "", deliveryError(s.Name(), err)
	}
	return fmt.Sprintf("posted to %s as %s", recipient, username), nil
}
