package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/CosmoTheDev/ctrlnotify/internal/registry"
	"github.com/CosmoTheDev/ctrlnotify/models"
)

// Snapshot is everything the browser shows about registry state.
type Snapshot struct {
	Summary        registry.Summary
	Configurations []models.NotificationConfig
	History        []models.NotificationMessage
	Remote         bool
}

// Backend supplies snapshots: either an in-process registry or a running gateway.
type Backend interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	// ClearHistory empties the sent-history and returns how many entries were dropped.
	ClearHistory(ctx context.Context) (int, error)
}

// Local reads straight from a Registry.
type Local struct {
	Registry *registry.Registry
}

func (l Local) Snapshot(_ context.Context) (Snapshot, error) {
	return Snapshot{
		Summary:        l.Registry.Summary(),
		Configurations: l.Registry.Configurations(""),
		History:        l.Registry.History(),
	}, nil
}

func (l Local) ClearHistory(_ context.Context) (int, error) {
	n := l.Registry.HistoryLen()
	l.Registry.ClearHistory()
	return n, nil
}

// GatewayClient reads from the gateway REST API.
type GatewayClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewGatewayClient returns a client for the gateway at baseURL, e.g. "http://127.0.0.1:6090".
func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Ping reports whether the gateway answers /health.
func (c *GatewayClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil)
}

func (c *GatewayClient) Snapshot(ctx context.Context) (Snapshot, error) {
	var reg struct {
		Summary        registry.Summary            `json:"summary"`
		Configurations []models.NotificationConfig `json:"configurations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/registry", &reg); err != nil {
		return Snapshot{}, err
	}
	var hist struct {
		Items []models.NotificationMessage `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/history", &hist); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Summary:        reg.Summary,
		Configurations: reg.Configurations,
		History:        hist.Items,
		Remote:         true,
	}, nil
}

func (c *GatewayClient) ClearHistory(ctx context.Context) (int, error) {
	var resp struct {
		Cleared int `json:"cleared"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/history", &resp); err != nil {
		return 0, err
	}
	return resp.Cleared, nil
}

func (c *GatewayClient) do(ctx context.Context, method, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("gateway %s %s: status %d", method, path, resp.StatusCode)
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("gateway %s %s: decoding response: %w", method, path, err)
	}
	return nil
}
