package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body when a
// secret is configured.
const SignatureHeader = "X-Ctrlnotify-Signature"

// WebhookChannel posts notifications to a generic HTTP endpoint with optional
// HMAC-SHA256 signing. The recipient is forwarded in the payload.
type WebhookChannel struct {
	cfg    config.WebhookChannelConfig
	client *http.Client
}

// NewWebhook creates a WebhookChannel from cfg.
func NewWebhook(cfg config.WebhookChannelConfig) *WebhookChannel {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookChannel{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (w *WebhookChannel) Name() string       { return "webhook" }
func (w *WebhookChannel) IsConfigured() bool { return w.cfg.URL != "" }

func (w *WebhookChannel) ValidateRecipient(recipient string) bool {
	return strings.TrimSpace(recipient) != ""
}

func (w *WebhookChannel) Send(ctx context.Context, content, recipient string, opts map[string]any) (string, error) {
	target := optString(opts, "url", w.cfg.URL)
	if _, err := url.ParseRequestURI(target); err != nil {
		return "", deliveryError(w.Name(), fmt.Errorf("invalid url %q", target))
	}

	payload := map[string]any{
		"recipient": recipient,
		"content":   content,
		"ts":        time.Now().UTC().Format(time.RFC3339),
	}
	if len(opts) > 0 {
		payload["options"] = opts
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", deliveryError(w.Name(), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(b))
	if err != nil {
		return "", deliveryError(w.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(w.cfg.Secret, b))
	}
	resp, err := w.client.Do(req) // #nosec G107 -- URL is a user-configured webhook endpoint
	if err != nil {
		return "", deliveryError(w.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", deliveryError(w.Name(), fmt.Errorf("webhook returned %d", resp.StatusCode))
	}
	return fmt.Sprintf("webhook accepted (%d)", resp.StatusCode), nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
