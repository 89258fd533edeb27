package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/models"
)

type tableSummary struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Columns     int       `json:"columns"`
	Rows        int       `json:"rows"`
}

// maxRowsInResult bounds how many rows a read tool returns.
const maxRowsInResult = 200

type rowsResult struct {
	TableID   uuid.UUID    `json:"table_id"`
	Total     int          `json:"total"`
	Truncated bool         `json:"truncated,omitempty"`
	Rows      []models.Row `json:"rows"`
}

func newRowsResult(tableID uuid.UUID, rows []models.Row) rowsResult {
	res := rowsResult{TableID: tableID, Total: len(rows), Rows: rows}
	if len(rows) > maxRowsInResult {
		res.Rows = rows[:maxRowsInResult]
		res.Truncated = true
	}
	return res
}

func registerListTablesTool(s *server.MCPServer, deps *CRMToolDeps) {
	tool := mcp.NewTool(
		"list_tables",
		mcp.WithDescription("Lists the CRM tables of an organization with their column and row counts."),
		mcp.WithString(
			"org_id",
			mcp.Required(),
			mcp.Description("Organization UUID"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		orgID, errResult := requireUUID(req, "org_id")
		if errResult != nil {
			return errResult, nil
		}

		tables, err := deps.Tables.ListTables(ctx, orgID)
		if err != nil {
			return serviceErrorResult(err)
		}

		out := make([]tableSummary, 0, len(tables))
		for _, t := range tables {
			out = append(out, tableSummary{
				ID:          t.ID,
				Name:        t.Name,
				Description: t.Description,
				Columns:     len(t.Columns),
				Rows:        len(t.Rows),
			})
		}
		return jsonResult(map[string]any{"tables": out})
	})
}

func registerGetTableTool(s *server.MCPServer, deps *CRMToolDeps) {
	tool := mcp.NewTool(
		"get_table",
		mcp.WithDescription(
			"Returns a table's column definitions and, unless include_rows is false, its rows. "+
				"Row values are keyed by column id.",
		),
		mcp.WithString(
			"table_id",
			mcp.Required(),
			mcp.Description("Table UUID"),
		),
		mcp.WithBoolean(
			"include_rows",
			mcp.Description("Include rows (default: true)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, errResult, err := loadTable(ctx, deps, req)
		if errResult != nil || err != nil {
			return errResult, err
		}

		resp := map[string]any{
			"id":      table.ID,
			"name":    table.Name,
			"columns": table.SortedColumns(),
		}
		if includeRows, ok := getOptionalBool(req, "include_rows"); !ok || includeRows {
			resp["rows"] = newRowsResult(table.ID, table.Rows)
		}
		return jsonResult(resp)
	})
}

// loadTable fetches the table named by the table_id argument.
func loadTable(ctx context.Context, deps *CRMToolDeps, req mcp.CallToolRequest) (*models.Table, *mcp.CallToolResult, error) {
	tableID, errResult := requireUUID(req, "table_id")
	if errResult != nil {
		return nil, errResult, nil
	}
	table, err := deps.Tables.GetTable(ctx, tableID)
	if err != nil {
		if code := ServiceErrorCode(err); code != "" {
			return nil, NewErrorResult(code, fmt.Sprintf("table %s: %v", tableID, err)), nil
		}
		deps.Logger.Error("Failed to load table", zap.String("table_id", tableID.String()), zap.Error(err))
		return nil, nil, fmt.Errorf("failed to load table: %w", err)
	}
	return table, nil, nil
}

// resolveColumn maps a column id or name to its id.
func resolveColumn(table *models.Table, ref string) (string, *mcp.CallToolResult) {
	col, ok := table.Column(trimString(ref))
	if !ok {
		valid := make([]string, 0, len(table.Columns))
		for _, c := range table.SortedColumns() {
			valid = append(valid, c.ID)
		}
		return "", NewErrorResultWithDetails("unknown_column",
			fmt.Sprintf("column %q does not exist", ref),
			map[string]any{"valid_columns": valid})
	}
	return col.ID, nil
}

// resolveColumns maps every reference, failing on the first unknown one.
func resolveColumns(table *models.Table, refs []string) ([]string, *mcp.CallToolResult) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		id, errResult := resolveColumn(table, ref)
		if errResult != nil {
			return nil, errResult
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// selectionArg reads the optional row_ids argument as a selection.
func selectionArg(req mcp.CallToolRequest, logger *zap.Logger) (models.Selection, models.Scope, *mcp.CallToolResult) {
	rowIDs, err := extractStringSlice(toolArgs(req), "row_ids", logger)
	if err != nil {
		return models.Selection{}, "", NewErrorResult("invalid_parameters", err.Error())
	}
	if len(rowIDs) == 0 {
		return models.Selection{}, models.ScopeAll, nil
	}
	return models.Selection{RowIDs: rowIDs}, models.ScopeSelected, nil
}
