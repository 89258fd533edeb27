package models

import (
	"time"

	"github.com/google/uuid"
)

// Confidence is the model's self-reported certainty about an extracted value.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence normalizes a model-supplied label. Anything unrecognized is low.
func ParseConfidence(s string) Confidence {
	switch Confidence(s) {
	case ConfidenceHigh, ConfidenceMedium:
		return Confidence(s)
	}
	switch s {
	case "High", "HIGH", "高":
		return ConfidenceHigh
	case "Medium", "MEDIUM", "中":
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// EnrichmentResult is one extracted field value that survived the confidence gate.
type EnrichmentResult struct {
	Field      string     `json:"field"`
	Value      any        `json:"value"`
	Confidence Confidence `json:"confidence"`
	SourceURL  string     `json:"sourceUrl,omitempty"`
}

// FieldStatus is the terminal state of one (row, column) enrichment.
type FieldStatus string

const (
	FieldFound     FieldStatus = "found"
	FieldNotFound  FieldStatus = "not_found"
	FieldDiscarded FieldStatus = "discarded"
	FieldError     FieldStatus = "error"
	FieldCancelled FieldStatus = "cancelled"
)

// FieldOutcome is the typed result of enriching one field. Result is non-nil
// only when Status is FieldFound.
type FieldOutcome struct {
	Status FieldStatus       `json:"status"`
	Result *EnrichmentResult `json:"result,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

// Found reports whether the outcome carries a value to write back.
func (o FieldOutcome) Found() bool {
	return o.Status == FieldFound && o.Result != nil
}

// EnrichmentPhase is a state of the per-field enrichment state machine.
type EnrichmentPhase string

const (
	PhaseDiscovery  EnrichmentPhase = "discovery"
	PhaseExtraction EnrichmentPhase = "extraction"
	PhaseFinancial  EnrichmentPhase = "financial"
	PhaseComplete   EnrichmentPhase = "complete"
	PhaseError      EnrichmentPhase = "error"
)

// EnrichmentProgress is an ephemeral phase update keyed by row and column.
type EnrichmentProgress struct {
	RowID    string            `json:"rowId"`
	ColumnID string            `json:"columnId"`
	Phase    EnrichmentPhase   `json:"phase"`
	Result   *EnrichmentResult `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Key identifies the (row, column) pair this update belongs to.
func (p EnrichmentProgress) Key() string {
	return p.RowID + "/" + p.ColumnID
}

// BatchProgress is reported after each unit of batch work.
type BatchProgress struct {
	Total       int    `json:"total"`
	Completed   int    `json:"completed"`
	Successful  int    `json:"successful"`
	Failed      int    `json:"failed"`
	CurrentItem string `json:"currentItem,omitempty"`
}

// BatchResult tallies an enrich or generate batch.
// Rows with a blank key are counted in Skipped, not in Successful or Failed.
type BatchResult struct {
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
	Cancelled  bool     `json:"cancelled,omitempty"`
	Refused    string   `json:"refused,omitempty"`
	Fields     int      `json:"fieldsWritten"`
	DurationMs int64    `json:"durationMs"`
}

// BulkSendResult tallies a bulk mail send.
type BulkSendResult struct {
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors"`
}

// MailCredential is a stored per-user outbound mail credential.
// Token fields hold ciphertext when persisted.
type MailCredential struct {
	UserID       uuid.UUID `json:"user_id"`
	Provider     string    `json:"provider"`
	Sender       string    `json:"sender"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
