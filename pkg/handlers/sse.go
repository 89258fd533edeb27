package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/models"
)

// Stream event types.
const (
	EventProgress = "progress"
	EventField    = "field"
	EventDone     = "done"
	EventError    = "error"
)

// StreamEvent is one Server-Sent Event of a batch operation.
type StreamEvent struct {
	Type     string                     `json:"type"`
	Progress *models.BatchProgress      `json:"progress,omitempty"`
	Field    *models.EnrichmentProgress `json:"field,omitempty"`
	Data     any                        `json:"data,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

// wantsEventStream reports whether the client asked for SSE.
func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// streamEvents runs work in the background and writes every event it emits
// as SSE. The channel is always drained so work never blocks on a slow or
// disconnected client.
func streamEvents(w http.ResponseWriter, logger *zap.Logger, work func(emit func(StreamEvent))) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("SSE not supported")
		if err := ErrorResponse(w, http.StatusInternalServerError, "sse_unsupported", "SSE not supported"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	eventChan := make(chan StreamEvent, 100)
	go func() {
		defer close(eventChan)
		work(func(ev StreamEvent) { eventChan <- ev })
	}()

	writeFailed := false
	for event := range eventChan {
		if writeFailed {
			continue
		}
		data, err := json.Marshal(event)
		if err != nil {
			logger.Error("Failed to marshal event", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			logger.Debug("Client went away during stream", zap.Error(err))
			writeFailed = true
			continue
		}
		flusher.Flush()
	}
}

// progressEmitter adapts emit to the progress callbacks the services take.
func progressEmitter(emit func(StreamEvent)) (func(models.BatchProgress), func(models.EnrichmentProgress)) {
	onProgress := func(p models.BatchProgress) {
		emit(StreamEvent{Type: EventProgress, Progress: &p})
	}
	onField := func(p models.EnrichmentProgress) {
		emit(StreamEvent{Type: EventField, Field: &p})
	}
	return onProgress, onField
}
