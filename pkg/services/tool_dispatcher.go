package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/models"
)

// DispatchRequest carries a classified request and the state it applies to.
type DispatchRequest struct {
	Result     *models.AnalyzeChatResult
	Table      *models.Table
	Selection  models.Selection
	Mode       models.ChatMode
	OrgContext string
	Progress   ProgressFunc
	FieldSink  EnrichmentProgressSink
}

// DispatchOutcome is the result of one tool. Rows is set for filter and sort,
// Aggregate for aggregate, Table and Batch for enrich and generate.
type DispatchOutcome struct {
	Tool            models.ToolKind         `json:"tool"`
	Reply           string                  `json:"reply"`
	SuggestedAction string                  `json:"suggestedAction,omitempty"`
	Rows            []models.Row            `json:"rows,omitempty"`
	Aggregate       *models.AggregateResult `json:"aggregate,omitempty"`
	Table           *models.Table           `json:"table,omitempty"`
	Batch           *models.BatchResult     `json:"batch,omitempty"`
}

// ToolDispatcher executes a classified tool call.
type ToolDispatcher interface {
	// Dispatch returns an error only when a batch request is invalid.
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchOutcome, error)
}

type toolDispatcher struct {
	runner BatchRunner
	logger *zap.Logger
}

// NewToolDispatcher creates a tool dispatcher.
func NewToolDispatcher(runner BatchRunner, logger *zap.Logger) ToolDispatcher {
	return &toolDispatcher{
		runner: runner,
		logger: logger.Named("tool-dispatcher"),
	}
}

var _ ToolDispatcher = (*toolDispatcher)(nil)

func (s *toolDispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchOutcome, error) {
	res := req.Result
	if res == nil {
		res = chatReply(FallbackReply)
	}
	out := &DispatchOutcome{Tool: models.ToolNone, Reply: res.Reply, SuggestedAction: res.SuggestedAction}

	call := res.Call
	if call == nil || req.Table == nil || call.Kind() != res.Tool {
		return out, nil
	}

	if call.Kind().IsMutation() && req.Mode != models.ChatModeAgent {
		s.logger.Warn("Mutation tool blocked in read-only mode",
			zap.String("tool", string(call.Kind())),
			zap.String("table_id", req.Table.ID.String()))
		advisory := readOnlyAdvisory(res, res.SuggestedAction)
		out.Reply, out.SuggestedAction = advisory.Reply, advisory.SuggestedAction
		return out, nil
	}

	switch c := call.(type) {
	case models.FilterParams:
		out.Tool = models.ToolFilter
		out.Rows = FilterRows(req.Table, c.Filter, req.Selection)

	case models.SortParams:
		out.Tool = models.ToolSort
		out.Rows = SortRows(req.Table, c.SortState, c.Scope, req.Selection)

	case models.AggregateParams:
		out.Tool = models.ToolAggregate
		agg := AggregateColumn(req.Table, c.ColumnID, c.Op, c.Scope, req.Selection)
		out.Aggregate = &agg

	case models.EnrichParams:
		var rowIDs []string
		if c.Scope.Resolve(req.Selection) == models.ScopeSelected {
			rowIDs = req.Selection.TargetRowIDs()
		}
		table, batch, err := s.runner.EnrichRows(ctx, EnrichRequest{
			Table:      req.Table,
			RowIDs:     rowIDs,
			ColumnIDs:  c.ColumnIDs,
			OrgContext: req.OrgContext,
			FieldSink:  req.FieldSink,
		}, req.Progress)
		if err != nil {
			return nil, err
		}
		out.Tool, out.Table, out.Batch = models.ToolEnrich, table, batch

	case models.GenerateParams:
		table, batch, err := s.runner.GenerateRows(ctx, GenerateRequest{
			Table:      req.Table,
			Count:      c.Count,
			Prompt:     c.Prompt,
			ColumnIDs:  c.ColumnIDs,
			OrgContext: req.OrgContext,
			FieldSink:  req.FieldSink,
		}, req.Progress)
		if err != nil {
			return nil, err
		}
		out.Tool, out.Table, out.Batch = models.ToolGenerate, table, batch
	}

	s.logger.Debug("Tool dispatched",
		zap.String("tool", string(out.Tool)),
		zap.String("table_id", req.Table.ID.String()))
	return out, nil
}
