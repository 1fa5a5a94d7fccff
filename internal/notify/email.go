package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
)

// EmailChannel "sends" email by writing each message to a file in OutputDir.
type EmailChannel struct {
	cfg config.EmailChannelConfig
	now func() time.Time
}

// NewEmail creates an EmailChannel from cfg.
func NewEmail(cfg config.EmailChannelConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg, now: time.Now}
}

func (e *EmailChannel) Name() string       { return "email" }
func (e *EmailChannel) IsConfigured() bool { return e.cfg.OutputDir != "" }

// ValidateRecipient accepts local@domain.tld.
func (e *EmailChannel) ValidateRecipient(recipient string) bool {
	local, domain, ok := strings.Cut(strings.TrimSpace(recipient), "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return false
	}
	dot := strings.LastIndex(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// Send writes a header block and content to <output_dir>/<ts>_<recipient>_<id>.txt.
// Options: subject, from_email.
func (e *EmailChannel) Send(ctx context.Context, content, recipient string, opts map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", deliveryError(e.Name(), err)
	}
	if err := os.MkdirAll(e.cfg.OutputDir, 0o750); err != nil {
		return "", deliveryError(e.Name(), err)
	}

	now := e.now().UTC()
	subject := optString(opts, "subject", e.cfg.Subject)
	from := optString(opts, "from_email", e.cfg.From)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", from)
	fmt.Fprintf(&b, "To: %s\n", recipient)
	fmt.Fprintf(&b, "Subject: %s\n", subject)
	fmt.Fprintf(&b, "Date: %s\n", now.Format(time.RFC1123Z))
	b.WriteString("\n")
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}

	name := fmt.Sprintf("%s_%s_%s.txt", now.Format("20060102T150405"), safeFileName(recipient), uuid.NewString()[:8])
	path := filepath.Join(e.cfg.OutputDir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o640); err != nil {
		return "", deliveryError(e.Name(), err)
	}
	return fmt.Sprintf("email written to %s", path), nil
}

func safeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
