package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/services"
)

type batchToolResult struct {
	TableID uuid.UUID           `json:"table_id"`
	Result  *models.BatchResult `json:"result"`
	Rows    int                 `json:"rows"`
}

func registerEnrichRowsTool(s *server.MCPServer, deps *CRMToolDeps) {
	tool := mcp.NewTool(
		"enrich_rows",
		mcp.WithDescription(
			"Researches company facts on the web and writes them into the given columns. "+
				"Only values found with a cited source overwrite existing cells. "+
				"Requires a company name column. Fails with batch_running if the table is already being enriched. "+
				"Example: enrich_rows(table_id='...', columns=['CEO', 'Revenue'])",
		),
		mcp.WithString("table_id", mcp.Required(), mcp.Description("Table UUID")),
		mcp.WithArray(
			"columns",
			mcp.Required(),
			mcp.Description("Column ids or names to fill"),
		),
		rowIDsParam,
		mcp.WithString(
			"org_context",
			mcp.Description("Optional: description of the user's organization, used to score fit columns"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, errResult, err := loadTable(ctx, deps, req)
		if errResult != nil || err != nil {
			return errResult, err
		}

		refs, err := extractStringSlice(toolArgs(req), "columns", deps.Logger)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if len(refs) == 0 {
			return NewErrorResult("invalid_parameters", "parameter 'columns' must name at least one column"), nil
		}
		columnIDs, errResult := resolveColumns(table, refs)
		if errResult != nil {
			return errResult, nil
		}
		sel, _, errResult := selectionArg(req, deps.Logger)
		if errResult != nil {
			return errResult, nil
		}

		return runLocked(ctx, deps, req, table.ID, func(runCtx context.Context, onProgress services.ProgressFunc) (*models.Table, *models.BatchResult, error) {
			return deps.Runner.EnrichRows(runCtx, services.EnrichRequest{
				Table:      table,
				RowIDs:     sel.TargetRowIDs(),
				ColumnIDs:  columnIDs,
				OrgContext: getOptionalString(req, "org_context"),
			}, onProgress)
		})
	})
}

func registerGenerateRowsTool(s *server.MCPServer, deps *CRMToolDeps) {
	tool := mcp.NewTool(
		"generate_rows",
		mcp.WithDescription(
			"Adds new company rows matching a description and researches their columns. "+
				"Companies already in the table are skipped. "+
				"Example: generate_rows(table_id='...', count=5, prompt='fintech startups in Tokyo')",
		),
		mcp.WithString("table_id", mcp.Required(), mcp.Description("Table UUID")),
		mcp.WithNumber("count", mcp.Required(), mcp.Description("Number of rows to add")),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("What kind of companies to add")),
		mcp.WithArray(
			"columns",
			mcp.Description("Optional: column ids or names to research. Omit to research every column."),
		),
		mcp.WithString(
			"org_context",
			mcp.Description("Optional: description of the user's organization, used to score fit columns"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, errResult, err := loadTable(ctx, deps, req)
		if errResult != nil || err != nil {
			return errResult, err
		}

		count, ok := getOptionalFloat(req, "count")
		if !ok || count < 1 || count != float64(int(count)) {
			return NewErrorResult("invalid_parameters", "parameter 'count' must be a positive integer"), nil
		}
		prompt := trimString(getOptionalString(req, "prompt"))
		if prompt == "" {
			return NewErrorResult("invalid_parameters", "parameter 'prompt' cannot be empty"), nil
		}
		refs, err := extractStringSlice(toolArgs(req), "columns", deps.Logger)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		columnIDs, errResult := resolveColumns(table, refs)
		if errResult != nil {
			return errResult, nil
		}

		return runLocked(ctx, deps, req, table.ID, func(runCtx context.Context, onProgress services.ProgressFunc) (*models.Table, *models.BatchResult, error) {
			return deps.Runner.GenerateRows(runCtx, services.GenerateRequest{
				Table:      table,
				Count:      int(count),
				Prompt:     prompt,
				ColumnIDs:  columnIDs,
				OrgContext: getOptionalString(req, "org_context"),
			}, onProgress)
		})
	})
}

type batchRun func(ctx context.Context, onProgress services.ProgressFunc) (*models.Table, *models.BatchResult, error)

// runLocked holds the table lock for the duration of run and relays progress
// to the client when the call carried a progress token.
func runLocked(ctx context.Context, deps *CRMToolDeps, req mcp.CallToolRequest, tableID uuid.UUID, run batchRun) (*mcp.CallToolResult, error) {
	runCtx, finish, err := deps.Tracker.Begin(ctx, tableID)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return NewErrorResult("batch_running",
				fmt.Sprintf("a batch operation is already running on table %s", tableID)), nil
		}
		return nil, fmt.Errorf("failed to lock table: %w", err)
	}
	defer finish()

	updated, result, err := run(runCtx, progressNotifier(ctx, req, deps.Logger))
	if err != nil {
		return serviceErrorResult(err)
	}

	rows := 0
	if updated != nil {
		rows = len(updated.Rows)
	}
	return jsonResult(batchToolResult{TableID: tableID, Result: result, Rows: rows})
}

// progressNotifier returns a ProgressFunc that sends notifications/progress,
// or nil when the client did not ask for progress.
func progressNotifier(ctx context.Context, req mcp.CallToolRequest, logger *zap.Logger) services.ProgressFunc {
	if req.Params.Meta == nil || req.Params.Meta.ProgressToken == nil {
		return nil
	}
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return nil
	}
	token := req.Params.Meta.ProgressToken

	return func(p models.BatchProgress) {
		params := map[string]any{
			"progressToken": token,
			"progress":      p.Completed,
			"total":         p.Total,
		}
		if p.CurrentItem != "" {
			params["message"] = p.CurrentItem
		}
		if err := srv.SendNotificationToClient(ctx, "notifications/progress", params); err != nil {
			logger.Debug("Failed to send progress notification", zap.Error(err))
		}
	}
}
