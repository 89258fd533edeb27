package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/services"
)

type analyzeResult struct {
	Analysis *models.AnalyzeChatResult `json:"analysis"`
	Outcome  *services.DispatchOutcome `json:"outcome,omitempty"`
}

func registerAnalyzeRequestTool(s *server.MCPServer, deps *CRMToolDeps) {
	tool := mcp.NewTool(
		"analyze_request",
		mcp.WithDescription(
			"Classifies a natural-language request about a table into one operation "+
				"(filter, sort, aggregate, enrich or generate_data) with resolved parameters. "+
				"Read-only operations are also executed and their outcome returned. "+
				"Enrich and generate are never run here; call enrich_rows or generate_rows with the returned parameters.",
		),
		mcp.WithString("table_id", mcp.Required(), mcp.Description("Table UUID")),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user's request")),
		rowIDsParam,
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, errResult, err := loadTable(ctx, deps, req)
		if errResult != nil || err != nil {
			return errResult, err
		}
		message, err := req.RequireString("message")
		if err != nil {
			return NewErrorResult("invalid_parameters", "parameter 'message' is required"), nil
		}
		sel, _, errResult := selectionArg(req, deps.Logger)
		if errResult != nil {
			return errResult, nil
		}

		// Agent mode so mutations are classified with their parameters
		// instead of being turned into an advisory.
		analysis := deps.Classifier.Analyze(ctx, services.ChatRequest{
			Message:   message,
			Table:     table,
			Selection: sel,
			Mode:      models.ChatModeAgent,
		})

		resp := analyzeResult{Analysis: analysis}
		if analysis.Tool != models.ToolNone && !analysis.Tool.IsMutation() {
			outcome, err := deps.Dispatcher.Dispatch(ctx, services.DispatchRequest{
				Result:    analysis,
				Table:     table,
				Selection: sel,
				Mode:      models.ChatModeChat,
			})
			if err != nil {
				return serviceErrorResult(err)
			}
			resp.Outcome = outcome
		}
		return jsonResult(resp)
	})
}
