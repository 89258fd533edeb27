package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-crm/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// It is returned as the text of an IsError result so the calling model sees
// the code and can correct its parameters.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable errors (invalid parameters, unknown table or
// column, a busy table). System failures are returned as Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
//
// Example:
//
//	return NewErrorResultWithDetails(
//	    "unknown_column",
//	    "column \"ceo_name\" does not exist",
//	    map[string]any{"valid_columns": []string{"company_name", "ceo"}},
//	), nil
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// ServiceErrorCode maps a service error to a tool error code. Returns "" for
// errors the caller cannot act on.
func ServiceErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, apperrors.ErrValidation):
		return "invalid_parameters"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrConflict):
		return "batch_running"
	case errors.Is(err, apperrors.ErrConfiguration):
		return "configuration_error"
	}
	return ""
}

// serviceErrorResult turns actionable service errors into error results and
// passes everything else through as a Go error.
func serviceErrorResult(err error) (*mcp.CallToolResult, error) {
	if code := ServiceErrorCode(err); code != "" {
		return NewErrorResult(code, err.Error()), nil
	}
	return nil, err
}
