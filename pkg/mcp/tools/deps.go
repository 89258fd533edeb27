// Package tools provides MCP tool implementations for ekaya-crm.
package tools

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/services"
)

// CRMToolDeps contains dependencies for the table tools.
type CRMToolDeps struct {
	Tables     services.TableService
	Classifier services.IntentClassifier
	Dispatcher services.ToolDispatcher
	Runner     services.BatchRunner
	// Tracker holds the per-table lock shared with the HTTP API.
	Tracker *services.BatchTracker
	Logger  *zap.Logger
}

// RegisterCRMTools registers every table tool.
func RegisterCRMTools(s *server.MCPServer, deps *CRMToolDeps) {
	registerListTablesTool(s, deps)
	registerGetTableTool(s, deps)
	registerFilterRowsTool(s, deps)
	registerSortRowsTool(s, deps)
	registerAggregateColumnTool(s, deps)
	registerEnrichRowsTool(s, deps)
	registerGenerateRowsTool(s, deps)
	registerAnalyzeRequestTool(s, deps)
}
