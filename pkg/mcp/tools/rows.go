package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/services"
)

var rowIDsParam = mcp.WithArray(
	"row_ids",
	mcp.Description("Optional: restrict to these row ids. Omit to use every row."),
)

func registerFilterRowsTool(s *server.MCPServer, deps *CRMToolDeps) {
	tool := mcp.NewTool(
		"filter_rows",
		mcp.WithDescription(
			"Returns the rows whose column value matches. 'contains' and 'equals' compare text as written; "+
				"'greater' and 'less' compare numbers and never match non-numeric cells. "+
				"Example: filter_rows(table_id='...', column='Revenue', operator='greater', value='1000000')",
		),
		mcp.WithString("table_id", mcp.Required(), mcp.Description("Table UUID")),
		mcp.WithString("column", mcp.Required(), mcp.Description("Column id or name")),
		mcp.WithString(
			"operator",
			mcp.Required(),
			mcp.Description("One of 'contains', 'equals', 'greater', 'less'"),
			mcp.Enum("contains", "equals", "greater", "less"),
		),
		mcp.WithString("value", mcp.Required(), mcp.Description("Value to compare against")),
		rowIDsParam,
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

		columnID, errResult := resolveColumn(table, getOptionalString(req, "column"))
		if errResult != nil {
			return errResult, nil
		}
		op := models.FilterOperator(strings.ToLower(trimString(getOptionalString(req, "operator"))))
		if !op.IsValid() {
			return NewErrorResult("invalid_parameters",
				fmt.Sprintf("invalid operator %q: must be one of 'contains', 'equals', 'greater', 'less'", op)), nil
		}
		sel, scope, errResult := selectionArg(req, deps.Logger)
		if errResult != nil {
			return errResult, nil
		}

		rows := services.FilterRows(table, models.Filter{
			ColumnID: columnID,
			Operator: op,
			Value:    getOptionalString(req, "value"),
			Scope:    scope,
		}, sel)
		return jsonResult(newRowsResult(table.ID, rows))
	})
}

func registerSortRowsTool(s *server.MCPServer, deps *CRMToolDeps) {
	tool := mcp.NewTool(
		"sort_rows",
		mcp.WithDescription(
			"Returns rows ordered by one column. Numeric columns sort numerically; blank cells sort last in either direction.",
		),
		mcp.WithString("table_id", mcp.Required(), mcp.Description("Table UUID")),
		mcp.WithString("column", mcp.Required(), mcp.Description("Column id or name")),
		mcp.WithString(
			"direction",
			mcp.Description("'asc' (default) or 'desc'"),
			mcp.Enum("asc", "desc"),
		),
		rowIDsParam,
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

		columnID, errResult := resolveColumn(table, getOptionalString(req, "column"))
		if errResult != nil {
			return errResult, nil
		}
		dir := models.SortAsc
		switch strings.ToLower(trimString(getOptionalString(req, "direction"))) {
		case "", "asc":
		case "desc":
			dir = models.SortDesc
		default:
			return NewErrorResult("invalid_parameters", "direction must be 'asc' or 'desc'"), nil
		}
		sel, scope, errResult := selectionArg(req, deps.Logger)
		if errResult != nil {
			return errResult, nil
		}

		rows := services.SortRows(table, models.SortState{ColumnID: columnID, Direction: dir}, scope, sel)
		return jsonResult(newRowsResult(table.ID, rows))
	})
}

func registerAggregateColumnTool(s *server.MCPServer, deps *CRMToolDeps) {
	tool := mcp.NewTool(
		"aggregate_column",
		mcp.WithDescription(
			"Computes max, min, mean, sum or count over the numeric cells of one column. "+
				"no_data is true when no cell held a number.",
		),
		mcp.WithString("table_id", mcp.Required(), mcp.Description("Table UUID")),
		mcp.WithString("column", mcp.Required(), mcp.Description("Column id or name")),
		mcp.WithString(
			"op",
			mcp.Required(),
			mcp.Description("One of 'max', 'min', 'mean', 'sum', 'count'"),
			mcp.Enum("max", "min", "mean", "sum", "count"),
		),
		rowIDsParam,
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

		columnID, errResult := resolveColumn(table, getOptionalString(req, "column"))
		if errResult != nil {
			return errResult, nil
		}
		op := models.AggregateOp(strings.ToLower(trimString(getOptionalString(req, "op"))))
		if op == "average" || op == "avg" {
			op = models.AggregateMean
		}
		if !op.IsValid() {
			return NewErrorResult("invalid_parameters",
				fmt.Sprintf("invalid op %q: must be one of 'max', 'min', 'mean', 'sum', 'count'", op)), nil
		}
		sel, scope, errResult := selectionArg(req, deps.Logger)
		if errResult != nil {
			return errResult, nil
		}

		agg := services.AggregateColumn(table, columnID, op, scope, sel)
		return jsonResult(map[string]any{
			"op":      agg.Op,
			"column":  agg.ColumnID,
			"value":   agg.Value,
			"count":   agg.Count,
			"no_data": agg.NoData,
		})
	})
}
