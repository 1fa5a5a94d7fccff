package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CosmoTheDev/ctrlnotify/internal/events"
	"github.com/CosmoTheDev/ctrlnotify/models"
)

// buildHandler wires all REST and SSE routes onto a new ServeMux.
func buildHandler(gw *Gateway) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", gw.handleRoot)
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /api/status", gw.handleStatus)

	// Event intake
	mux.HandleFunc("POST /api/events", gw.handlePostEvent)
	mux.HandleFunc("POST /api/events/batch", gw.handlePostBatch)

	// Registry state
	mux.HandleFunc("GET /api/registry", gw.handleRegistry)
	mux.HandleFunc("GET /api/history", gw.handleHistory)
	mux.HandleFunc("DELETE /api/history", gw.handleClearHistory)

	// Scheduled queries
	mux.HandleFunc("GET /api/scheduled", gw.handleListScheduled)
	mux.HandleFunc("POST /api/scheduled/{name}/run", gw.handleRunScheduled)

	mux.HandleFunc("GET /events", gw.handleEvents)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gw.promReg, promhttp.HandlerOpts{}))

	return mux
}

func (gw *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   "ctrlnotify gateway",
		"status": "running",
		"endpoints": []string{
			"GET /health",
			"GET /api/status",
			"POST /api/events",
			"POST /api/events/batch",
			"GET /api/registry",
			"GET /api/history",
			"DELETE /api/history",
			"GET /api/scheduled",
			"POST /api/scheduled/{name}/run",
			"GET /events",
			"GET /metrics",
		},
	})
}

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (gw *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gw.currentStatus())
}

func (req eventRequest) event(source string) (models.NotificationEvent, error) {
	if strings.TrimSpace(req.EventType) == "" {
		return models.NotificationEvent{}, fmt.Errorf("event_type is required")
	}
	return models.NewEvent(req.EventType, req.Data, req.EventID, source), nil
}

func (gw *Gateway) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	evt, err := req.event("http")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results := gw.process(r.Context(), "http", []models.NotificationEvent{evt})
	writeJSON(w, http.StatusOK, newResultsResponse(results))
}

func (gw *Gateway) handlePostBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "events must not be empty")
		return
	}
	evts := make([]models.NotificationEvent, 0, len(req.Events))
	for i, er := range req.Events {
		evt, err := er.event("http")
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("events[%d]: %v", i, err))
			return
		}
		evts = append(evts, evt)
	}
	results := gw.process(r.Context(), "http", evts)
	writeJSON(w, http.StatusOK, newResultsResponse(results))
}

func (gw *Gateway) handleRegistry(w http.ResponseWriter, r *http.Request) {
	eventType := strings.TrimSpace(r.URL.Query().Get("event_type"))
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":        gw.reg.Summary(),
		"configurations": gw.reg.Configurations(eventType),
	})
}

func (gw *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := gw.reg.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"items": history,
		"total": len(history),
	})
}

func (gw *Gateway) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	n := gw.reg.HistoryLen()
	gw.reg.ClearHistory()
	gw.broadcaster.send(SSEEvent{Type: "history.cleared", Payload: map[string]int{"cleared": n}})
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (gw *Gateway) handleListScheduled(w http.ResponseWriter, r *http.Request) {
	if gw.scheduled == nil {
		writeError(w, http.StatusNotFound, "scheduled queries are not enabled")
		return
	}
	queries, err := gw.scheduled.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if queries == nil {
		queries = []events.Query{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": queries})
}

func (gw *Gateway) handleRunScheduled(w http.ResponseWriter, r *http.Request) {
	if gw.scheduled == nil {
		writeError(w, http.StatusNotFound, "scheduled queries are not enabled")
		return
	}
	name := r.PathValue("name")
	evts, err := gw.scheduled.RunQuery(r.Context(), name)
	if errors.Is(err, events.ErrUnknownQuery) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	results := gw.process(r.Context(), "scheduled", evts)
	writeJSON(w, http.StatusOK, newResultsResponse(results))
}

// handleEvents streams SSE frames until the client disconnects.
func (gw *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch := gw.broadcaster.subscribe()
	defer gw.broadcaster.unsubscribe(ch)

	if frame, err := encodeFrame(SSEEvent{Type: "connected", Payload: gw.currentStatus()}); err == nil {
		_, _ = w.Write(frame)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			// nosemgrep: go.lang.security.audit.xss.no-direct-write-to-responsewriter.no-direct-write-to-responsewriter
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
