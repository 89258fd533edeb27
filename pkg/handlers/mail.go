package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/services"
)

// MailCredentialRequest for PUT /api/users/{uid}/mail-credential
type MailCredentialRequest struct {
	Provider     string    `json:"provider,omitempty"`
	Sender       string    `json:"sender"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// MailHandler handles outbound mail HTTP requests.
type MailHandler struct {
	bulkSend services.BulkSendService
	logger   *zap.Logger
}

// NewMailHandler creates a new mail handler.
func NewMailHandler(bulkSend services.BulkSendService, logger *zap.Logger) *MailHandler {
	return &MailHandler{
		bulkSend: bulkSend,
		logger:   logger,
	}
}

// RegisterRoutes registers the mail handler's routes on the given mux.
func (h *MailHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT /api/users/{uid}/mail-credential", h.SaveCredential)
	mux.HandleFunc("POST /api/users/{uid}/bulk-send", h.BulkSend)
}

// SaveCredential handles PUT /api/users/{uid}/mail-credential
func (h *MailHandler) SaveCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	var req MailCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_request", "Invalid request body")
		return
	}

	err := h.bulkSend.SaveCredential(r.Context(), models.MailCredential{
		UserID:       userID,
		Provider:     req.Provider,
		Sender:       req.Sender,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Failed to save mail credential", err, zap.String("user_id", userID.String()))
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Mail credential saved"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// BulkSend handles POST /api/users/{uid}/bulk-send
// With Accept: text/event-stream progress is streamed as SSE.
func (h *MailHandler) BulkSend(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.BulkSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_request", "Invalid request body")
		return
	}

	if !wantsEventStream(r) {
		result, err := h.bulkSend.Send(r.Context(), userID, req, nil)
		if err != nil {
			writeServiceError(w, h.logger, "Bulk send failed", err, zap.String("user_id", userID.String()))
			return
		}
		writeOK(w, h.logger, http.StatusOK, result)
		return
	}

	streamEvents(w, h.logger, func(emit func(StreamEvent)) {
		onProgress, _ := progressEmitter(emit)
		result, err := h.bulkSend.Send(r.Context(), userID, req, onProgress)
		if err != nil {
			h.logger.Warn("Bulk send failed", zap.String("user_id", userID.String()), zap.Error(err))
			_, code := statusForError(err)
			emit(StreamEvent{Type: EventError, Error: code + ": " + err.Error()})
			return
		}
		emit(StreamEvent{Type: EventDone, Data: result})
	})
}
