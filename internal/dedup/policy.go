// Package dedup decides whether a rendered notification is a repeat of one
// already delivered. Policies are stateless: the caller owns the sent-history
// and passes it in on every check.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
	"github.com/CosmoTheDev/ctrlnotify/models"
)

const (
	ContentBased = "content_based"
	TimeBucketed = "time_bucketed"

	DefaultWindow = time.Hour
	DefaultBucket = time.Hour
)

// Policy is implemented by each deduplication strategy.
type Policy interface {
	// Name returns the identifier configs use to select this policy.
	Name() string
	// Key returns a stable identifier; messages with equal keys are duplicates
	// of one another, subject to the policy's time rules.
	Key(msg models.NotificationMessage) string
	// ShouldSend reports whether msg may be dispatched given the messages
	// already sent. An empty history always allows sending.
	ShouldSend(msg models.NotificationMessage, history []models.NotificationMessage) bool
}

// IsDuplicate is the negation of p.ShouldSend.
func IsDuplicate(p Policy, msg models.NotificationMessage, history []models.NotificationMessage) bool {
	return !p.ShouldSend(msg, history)
}

// FilterDuplicates returns messages with every repeat key after the first removed.
// Time windows are not considered.
func FilterDuplicates(p Policy, messages []models.NotificationMessage) []models.NotificationMessage {
	seen := make(map[string]bool, len(messages))
	out := make([]models.NotificationMessage, 0, len(messages))
	for _, m := range messages {
		k := p.Key(m)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, m)
	}
	return out
}

// ContentKey hashes the canonical form of a message:
//
//	lower(channel) NUL lower(recipient) NUL trimspace(content)
//
// and returns the hex SHA-256 digest.
func ContentKey(msg models.NotificationMessage) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(msg.Channel))
	b.WriteByte(0)
	b.WriteString(strings.ToLower(msg.Recipient))
	b.WriteByte(0)
	b.WriteString(strings.TrimSpace(msg.Content))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// factories maps policy identifiers to constructors.
var factories = map[string]func(cfg config.DedupConfig) (Policy, error){
	ContentBased: func(cfg config.DedupConfig) (Policy, error) {
		window, err := parseDuration(cfg.Window, DefaultWindow)
		if err != nil {
			return nil, fmt.Errorf("dedup: window: %w", err)
		}
		return NewContentBased(window), nil
	},
	TimeBucketed: func(cfg config.DedupConfig) (Policy, error) {
		bucket, err := parseDuration(cfg.Bucket, DefaultBucket)
		if err != nil {
			return nil, fmt.Errorf("dedup: bucket: %w", err)
		}
		return NewTimeBucketed(bucket), nil
	},
}

// Build constructs every known policy from cfg, keyed by Name().
func Build(cfg config.DedupConfig) (map[string]Policy, error) {
	out := make(map[string]Policy, len(factories))
	for name, f := range factories {
		p, err := f(cfg)
		if err != nil {
			return nil, err
		}
		out[name] = p
	}
	return out, nil
}

// Names lists the known policy identifiers in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", raw)
	}
	return d, nil
}
