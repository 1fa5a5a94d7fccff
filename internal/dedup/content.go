package dedup

import (
	"time"

	"github.com/CosmoTheDev/ctrlnotify/models"
)

// ContentBasedPolicy suppresses a message when an identical one (same channel,
// recipient and content) was sent within a sliding window ending at the
// candidate's CreatedAt.
type ContentBasedPolicy struct {
	window time.Duration
}

// NewContentBased returns a policy with the given look-back window.
// A non-positive window falls back to DefaultWindow.
func NewContentBased(window time.Duration) *ContentBasedPolicy {
	if window <= 0 {
		window = DefaultWindow
	}
	return &ContentBasedPolicy{window: window}
}

func (p *ContentBasedPolicy) Name() string          { return ContentBased }
func (p *ContentBasedPolicy) Window() time.Duration { return p.window }

func (p *ContentBasedPolicy) Key(msg models.NotificationMessage) string {
	return ContentKey(msg)
}

func (p *ContentBasedPolicy) ShouldSend(msg models.NotificationMessage, history []models.NotificationMessage) bool {
	if len(history) == 0 {
		return true
	}
	key := p.Key(msg)
	cutoff := msg.CreatedAt.Add(-p.window)
	for _, sent := range history {
		if sent.CreatedAt.Before(cutoff) {
			continue
		}
		if p.Key(sent) == key {
			return false
		}
	}
	return true
}
