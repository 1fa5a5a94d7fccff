package gateway

import "github.com/CosmoTheDev/ctrlnotify/models"

// SSEEvent is serialised as JSON and pushed over the GET /events SSE stream.
type SSEEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Status is a live snapshot of the gateway.
type Status struct {
	UptimeSeconds  int64  `json:"uptime_seconds"`
	EventsReceived int64  `json:"events_received"`
	LastEventAt    string `json:"last_event_at,omitempty"`
	Configurations int    `json:"configurations"`
	HistorySize    int    `json:"history_size"`
	Scheduled      bool   `json:"scheduled_enabled"`
	Kafka          bool   `json:"kafka_enabled"`
}

// eventRequest is the body of POST /api/events.
type eventRequest struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
	EventID   string         `json:"event_id,omitempty"`
}

// batchRequest is the body of POST /api/events/batch.
type batchRequest struct {
	Events []eventRequest `json:"events"`
}

type resultsResponse struct {
	Results    []models.NotificationResult `json:"results"`
	Sent       int                         `json:"sent"`
	Suppressed int                         `json:"suppressed"`
	Failed     int                         `json:"failed"`
}

func newResultsResponse(results []models.NotificationResult) resultsResponse {
	resp := resultsResponse{Results: results}
	for _, r := range results {
		switch {
		case r.Success:
			resp.Sent++
		case r.Suppressed():
			resp.Suppressed++
		default:
			resp.Failed++
		}
	}
	return resp
}
