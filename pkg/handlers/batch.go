package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/services"
)

// ChatRequest for POST /api/tables/{tid}/chat
type ChatRequest struct {
	Message    string           `json:"message"`
	Mode       models.ChatMode  `json:"mode"`
	Selection  models.Selection `json:"selection"`
	OrgContext string           `json:"org_context,omitempty"`
}

// ChatResponse pairs the classification with what the dispatcher did.
type ChatResponse struct {
	Analysis *models.AnalyzeChatResult `json:"analysis"`
	Outcome  *services.DispatchOutcome `json:"outcome"`
}

// EnrichRequest for POST /api/tables/{tid}/enrich
type EnrichRequest struct {
	ColumnIDs  []string `json:"column_ids"`
	RowIDs     []string `json:"row_ids,omitempty"`
	OrgContext string   `json:"org_context,omitempty"`
}

// GenerateRequest for POST /api/tables/{tid}/generate
type GenerateRequest struct {
	Count      int      `json:"count"`
	Prompt     string   `json:"prompt"`
	ColumnIDs  []string `json:"column_ids,omitempty"`
	OrgContext string   `json:"org_context,omitempty"`
}

// BatchResponse is the final state of an enrich or generate run.
type BatchResponse struct {
	Table  *models.Table       `json:"table"`
	Result *models.BatchResult `json:"result"`
}

// CancelResponse for POST /api/tables/{tid}/batch/cancel
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// BatchHandler handles chat and batch enrichment HTTP requests.
type BatchHandler struct {
	classifier   services.IntentClassifier
	dispatcher   services.ToolDispatcher
	runner       services.BatchRunner
	tracker      *services.BatchTracker
	tableService services.TableService
	logger       *zap.Logger
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(
	classifier services.IntentClassifier,
	dispatcher services.ToolDispatcher,
	runner services.BatchRunner,
	tracker *services.BatchTracker,
	tableService services.TableService,
	logger *zap.Logger,
) *BatchHandler {
	return &BatchHandler{
		classifier:   classifier,
		dispatcher:   dispatcher,
		runner:       runner,
		tracker:      tracker,
		tableService: tableService,
		logger:       logger,
	}
}

// RegisterRoutes registers the batch handler's routes on the given mux.
func (h *BatchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tables/{tid}/chat", h.Chat)
	mux.HandleFunc("POST /api/tables/{tid}/enrich", h.Enrich)
	mux.HandleFunc("POST /api/tables/{tid}/generate", h.Generate)
	mux.HandleFunc("POST /api/tables/{tid}/batch/cancel", h.Cancel)
}

// Chat handles POST /api/tables/{tid}/chat
// Enrich and generate requests in agent mode hold the table lock while they run.
func (h *BatchHandler) Chat(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_request", "Invalid request body")
		return
	}
	if req.Mode != models.ChatModeAgent {
		req.Mode = models.ChatModeChat
	}

	table, err := h.tableService.GetTable(r.Context(), tableID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to load table for chat", err, zap.String("table_id", tableID.String()))
		return
	}

	analysis := h.classifier.Analyze(r.Context(), services.ChatRequest{
		Message:   req.Message,
		Table:     table,
		Selection: req.Selection,
		Mode:      req.Mode,
	})

	ctx := r.Context()
	if analysis.Tool.IsMutation() && req.Mode == models.ChatModeAgent {
		runCtx, finish, err := h.tracker.Begin(ctx, tableID)
		if err != nil {
			writeServiceError(w, h.logger, "Batch rejected", err, zap.String("table_id", tableID.String()))
			return
		}
		defer finish()
		ctx = runCtx
	}

	outcome, err := h.dispatcher.Dispatch(ctx, services.DispatchRequest{
		Result:     analysis,
		Table:      table,
		Selection:  req.Selection,
		Mode:       req.Mode,
		OrgContext: req.OrgContext,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Failed to dispatch tool", err,
			zap.String("table_id", tableID.String()),
			zap.String("tool", string(analysis.Tool)))
		return
	}

	writeOK(w, h.logger, http.StatusOK, ChatResponse{Analysis: analysis, Outcome: outcome})
}

// Enrich handles POST /api/tables/{tid}/enrich
// With Accept: text/event-stream the run is streamed as SSE.
func (h *BatchHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	var req EnrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_request", "Invalid request body")
		return
	}

	h.runBatch(w, r, tableID, func(ctx context.Context, table *models.Table, onProgress services.ProgressFunc, onField services.EnrichmentProgressSink) (*models.Table, *models.BatchResult, error) {
		return h.runner.EnrichRows(ctx, services.EnrichRequest{
			Table:      table,
			RowIDs:     req.RowIDs,
			ColumnIDs:  req.ColumnIDs,
			OrgContext: req.OrgContext,
			FieldSink:  onField,
		}, onProgress)
	})
}

// Generate handles POST /api/tables/{tid}/generate
// With Accept: text/event-stream the run is streamed as SSE.
func (h *BatchHandler) Generate(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_request", "Invalid request body")
		return
	}

	h.runBatch(w, r, tableID, func(ctx context.Context, table *models.Table, onProgress services.ProgressFunc, onField services.EnrichmentProgressSink) (*models.Table, *models.BatchResult, error) {
		return h.runner.GenerateRows(ctx, services.GenerateRequest{
			Table:      table,
			Count:      req.Count,
			Prompt:     req.Prompt,
			ColumnIDs:  req.ColumnIDs,
			OrgContext: req.OrgContext,
			FieldSink:  onField,
		}, onProgress)
	})
}

type batchFunc func(ctx context.Context, table *models.Table, onProgress services.ProgressFunc, onField services.EnrichmentProgressSink) (*models.Table, *models.BatchResult, error)

// runBatch loads the table, takes the table lock and runs fn either as a
// plain JSON request or as an SSE stream.
func (h *BatchHandler) runBatch(w http.ResponseWriter, r *http.Request, tableID uuid.UUID, fn batchFunc) {
	table, err := h.tableService.GetTable(r.Context(), tableID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to load table for batch", err, zap.String("table_id", tableID.String()))
		return
	}

	runCtx, finish, err := h.tracker.Begin(r.Context(), tableID)
	if err != nil {
		writeServiceError(w, h.logger, "Batch rejected", err, zap.String("table_id", tableID.String()))
		return
	}
	defer finish()

	if !wantsEventStream(r) {
		updated, result, err := fn(runCtx, table, nil, nil)
		if err != nil {
			writeServiceError(w, h.logger, "Batch failed", err, zap.String("table_id", tableID.String()))
			return
		}
		writeOK(w, h.logger, http.StatusOK, BatchResponse{Table: updated, Result: result})
		return
	}

	streamEvents(w, h.logger, func(emit func(StreamEvent)) {
		onProgress, onField := progressEmitter(emit)
		updated, result, err := fn(runCtx, table, onProgress, onField)
		if err != nil {
			h.logger.Warn("Batch failed", zap.String("table_id", tableID.String()), zap.Error(err))
			_, code := statusForError(err)
			emit(StreamEvent{Type: EventError, Error: code + ": " + err.Error()})
			return
		}
		emit(StreamEvent{Type: EventDone, Data: BatchResponse{Table: updated, Result: result}})
	})
}

// Cancel handles POST /api/tables/{tid}/batch/cancel
func (h *BatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tableID, ok := ParseTableID(w, r, h.logger)
	if !ok {
		return
	}

	cancelled, err := h.tracker.Cancel(r.Context(), tableID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to cancel batch", err, zap.String("table_id", tableID.String()))
		return
	}

	writeOK(w, h.logger, http.StatusOK, CancelResponse{Cancelled: cancelled})
}
