package notify

import (
	"context"
	"errors"
	"fmt"
)

// ErrChannelDelivery is wrapped by every Send failure.
var ErrChannelDelivery = errors.New("channel delivery failed")

// Channel is implemented by each delivery medium.
type Channel interface {
	// Name is the identifier notification configs use to select the channel.
	Name() string
	IsConfigured() bool
	// ValidateRecipient reports whether recipient is addressable on this channel.
	ValidateRecipient(recipient string) bool
	// Send delivers content and returns a short human-readable delivery detail.
	Send(ctx context.Context, content, recipient string, opts map[string]any) (string, error)
}

func deliveryError(channel string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrChannelDelivery, channel, err)
}

// optString returns opts[key] as a string, or def when absent or empty.
func optString(opts map[string]any, key, def string) string {
	if v, ok := opts[key]; ok && v != nil {
		if s := fmt.Sprint(v); s != "" {
			return s
		}
	}
	return def
}
