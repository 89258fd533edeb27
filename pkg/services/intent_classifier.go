package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-crm/pkg/llm"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/prompts"
)

const (
	// FallbackReply is returned whenever the request could not be classified.
	FallbackReply = "Sorry, I couldn't process that request. Please try rephrasing it."
	// EmptyMessageReply is returned for a blank message.
	EmptyMessageReply = "Please tell me what you would like to do with this table."
	// AgentModeRequiredReply is used when a read-only session asks for a change.
	AgentModeRequiredReply = "Changing data requires agent mode. Switch to agent mode and ask again."
)

// ChatRequest is one user message about a table.
type ChatRequest struct {
	Message   string
	Table     *models.Table
	Selection models.Selection
	Mode      models.ChatMode
}

// IntentClassifier turns a user message into one table operation.
type IntentClassifier interface {
	// Analyze never fails: any gateway or parse problem yields a CHAT fallback.
	Analyze(ctx context.Context, req ChatRequest) *models.AnalyzeChatResult
}

type intentClassifier struct {
	gateway llm.Gateway
	logger  *zap.Logger
}

// NewIntentClassifier creates an intent classifier.
func NewIntentClassifier(gateway llm.Gateway, logger *zap.Logger) IntentClassifier {
	return &intentClassifier{
		gateway: gateway,
		logger:  logger.Named("intent-classifier"),
	}
}

var _ IntentClassifier = (*intentClassifier)(nil)

// rawAnalyzeResult mirrors the model's reply before normalization.
type rawAnalyzeResult struct {
	Intent          string          `json:"intent"`
	Tool            string          `json:"tool"`
	Reply           string          `json:"reply"`
	FilterParams    json.RawMessage `json:"filterParams"`
	SortParams      json.RawMessage `json:"sortParams"`
	AggregateParams json.RawMessage `json:"aggregateParams"`
	EnrichParams    json.RawMessage `json:"enrichParams"`
	GenerateParams  json.RawMessage `json:"generateParams"`
	SuggestedAction string          `json:"suggestedAction"`
}

func (s *intentClassifier) Analyze(ctx context.Context, req ChatRequest) *models.AnalyzeChatResult {
	if strings.TrimSpace(req.Message) == "" {
		return chatReply(EmptyMessageReply)
	}
	if req.Table == nil {
		return chatReply(FallbackReply)
	}

	start := time.Now()
	prompt := prompts.BuildIntentPrompt(buildIntentInput(req))

	result, err := s.gateway.Generate(ctx, prompt, llm.GenerateOptions{
		System:   prompts.BuildIntentSystemMessage(),
		JSONMode: true,
	})
	if err != nil {
		s.logger.Warn("Intent classification call failed",
			zap.String("table_id", req.Table.ID.String()),
			zap.Error(err))
		return chatReply(FallbackReply)
	}

	raw, err := llm.ParseJSON[rawAnalyzeResult](result.Text)
	if err != nil {
		s.logger.Warn("Intent classification reply unparseable",
			zap.String("table_id", req.Table.ID.String()),
			zap.Error(err))
		return chatReply(FallbackReply)
	}

	out := normalizeAnalyzeResult(raw, req.Table)
	if req.Mode != models.ChatModeAgent && out.Tool.IsMutation() {
		out = readOnlyAdvisory(out, raw.SuggestedAction)
	}

	s.logger.Debug("Intent classified",
		zap.String("table_id", req.Table.ID.String()),
		zap.String("intent", string(out.Intent)),
		zap.String("tool", string(out.Tool)),
		zap.Duration("elapsed", time.Since(start)))
	return out
}

func chatReply(reply string) *models.AnalyzeChatResult {
	return &models.AnalyzeChatResult{Intent: models.IntentChat, Tool: models.ToolNone, Reply: reply}
}

func buildIntentInput(req ChatRequest) prompts.IntentInput {
	cols := req.Table.SortedColumns()
	in := prompts.IntentInput{
		Message:         strings.TrimSpace(req.Message),
		Columns:         make([]prompts.ColumnSummary, 0, len(cols)),
		SelectedRows:    len(req.Selection.TargetRowIDs()),
		SelectedCellIDs: req.Selection.CellIDs,
		AgentMode:       req.Mode == models.ChatModeAgent,
	}
	for _, c := range cols {
		in.Columns = append(in.Columns, prompts.ColumnSummary{ID: c.ID, Name: c.Name, Type: string(c.Type)})
	}

	if selected := req.Selection.TargetRowIDs(); len(selected) > 0 {
		for _, row := range req.Table.RowsByID(selected) {
			if len(in.SampleRows) == prompts.MaxSampleRows {
				break
			}
			sample := make(map[string]string, len(cols))
			for _, c := range cols {
				if v := row.Value(c.ID); v != "" {
					sample[c.ID] = v
				}
			}
			in.SampleRows = append(in.SampleRows, sample)
		}
	}
	return in
}

// normalizeAnalyzeResult validates the model's choice and decodes only the
// params of the chosen tool. Missing or unusable params degrade to no tool.
func normalizeAnalyzeResult(raw rawAnalyzeResult, table *models.Table) *models.AnalyzeChatResult {
	out := &models.AnalyzeChatResult{
		Reply:           strings.TrimSpace(raw.Reply),
		Tool:            models.ParseToolKind(strings.ToLower(strings.TrimSpace(raw.Tool))),
		SuggestedAction: strings.TrimSpace(raw.SuggestedAction),
	}

	var call models.ToolCall
	switch out.Tool {
	case models.ToolFilter:
		call = decodeFilterParams(raw.FilterParams, table)
	case models.ToolSort:
		call = decodeSortParams(raw.SortParams, table)
	case models.ToolAggregate:
		call = decodeAggregateParams(raw.AggregateParams, table)
	case models.ToolEnrich:
		call = decodeEnrichParams(raw.EnrichParams, table)
	case models.ToolGenerate:
		call = decodeGenerateParams(raw.GenerateParams, table)
	}
	if call == nil {
		out.Tool = models.ToolNone
	}
	out.Call = call

	out.Intent = models.Intent(strings.ToUpper(strings.TrimSpace(raw.Intent)))
	if !out.Intent.IsValid() || out.Tool == models.ToolNone {
		out.Intent = intentForTool(out.Tool)
	}
	if out.Reply == "" && out.Tool == models.ToolNone {
		out.Reply = FallbackReply
	}
	return out
}

func intentForTool(tool models.ToolKind) models.Intent {
	switch tool {
	case models.ToolFilter:
		return models.IntentFilter
	case models.ToolSort:
		return models.IntentSort
	case models.ToolEnrich, models.ToolGenerate:
		return models.IntentEdit
	}
	return models.IntentChat
}

func readOnlyAdvisory(res *models.AnalyzeChatResult, suggested string) *models.AnalyzeChatResult {
	if suggested == "" {
		suggested = describeToolCall(res.Call)
	}
	reply := res.Reply
	if reply == "" {
		reply = AgentModeRequiredReply
	} else {
		reply = reply + "\n\n" + AgentModeRequiredReply
	}
	return &models.AnalyzeChatResult{
		Intent:          models.IntentChat,
		Tool:            models.ToolNone,
		Reply:           reply,
		SuggestedAction: suggested,
	}
}

func describeToolCall(call models.ToolCall) string {
	switch c := call.(type) {
	case models.EnrichParams:
		return "enrich columns " + strings.Join(c.ColumnIDs, ", ")
	case models.GenerateParams:
		return "generate rows: " + c.Prompt
	}
	return ""
}

// ============================================================================
// Params decoding
// ============================================================================

func decodeParams(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// resolveColumnID accepts a column id or a display name and returns the id.
func resolveColumnID(table *models.Table, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	col, ok := table.Column(ref)
	if !ok {
		return "", false
	}
	return col.ID, true
}

func parseScope(raw json.RawMessage) models.Scope {
	if models.Scope(strings.ToLower(jsonutil.FlexibleStringValue(raw))) == models.ScopeSelected {
		return models.ScopeSelected
	}
	return models.ScopeAll
}

func decodeFilterParams(raw json.RawMessage, table *models.Table) models.ToolCall {
	m := decodeParams(raw)
	if m == nil {
		return nil
	}
	colID, ok := resolveColumnID(table, jsonutil.FlexibleStringValue(m["columnId"]))
	if !ok {
		return nil
	}
	op := models.FilterOperator(strings.ToLower(jsonutil.FlexibleStringValue(m["operator"])))
	if !op.IsValid() {
		return nil
	}
	return models.FilterParams{Filter: models.Filter{
		ColumnID: colID,
		Operator: op,
		Value:    jsonutil.FlexibleStringValue(m["value"]),
		Scope:    parseScope(m["scope"]),
	}}
}

func decodeSortParams(raw json.RawMessage, table *models.Table) models.ToolCall {
	m := decodeParams(raw)
	if m == nil {
		return nil
	}
	colID, ok := resolveColumnID(table, jsonutil.FlexibleStringValue(m["columnId"]))
	if !ok {
		return nil
	}
	dir := models.SortAsc
	if strings.ToLower(jsonutil.FlexibleStringValue(m["direction"])) == string(models.SortDesc) {
		dir = models.SortDesc
	}
	return models.SortParams{
		SortState: models.SortState{ColumnID: colID, Direction: dir},
		Scope:     parseScope(m["scope"]),
	}
}

func decodeAggregateParams(raw json.RawMessage, table *models.Table) models.ToolCall {
	m := decodeParams(raw)
	if m == nil {
		return nil
	}
	colID, ok := resolveColumnID(table, jsonutil.FlexibleStringValue(m["columnId"]))
	if !ok {
		return nil
	}
	op := models.AggregateOp(strings.ToLower(jsonutil.FlexibleStringValue(m["op"])))
	if op == "average" || op == "avg" {
		op = models.AggregateMean
	}
	if !op.IsValid() {
		return nil
	}
	return models.AggregateParams{ColumnID: colID, Op: op, Scope: parseScope(m["scope"])}
}

func decodeColumnIDs(raw json.RawMessage, table *models.Table) []string {
	var ids []string
	seen := map[string]bool{}
	for _, ref := range jsonutil.FlexibleStringSlice(raw) {
		if id, ok := resolveColumnID(table, ref); ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func decodeEnrichParams(raw json.RawMessage, table *models.Table) models.ToolCall {
	m := decodeParams(raw)
	if m == nil {
		return nil
	}
	ids := decodeColumnIDs(m["columnIds"], table)
	if len(ids) == 0 {
		return nil
	}
	return models.EnrichParams{ColumnIDs: ids, Scope: parseScope(m["scope"])}
}

func decodeGenerateParams(raw json.RawMessage, table *models.Table) models.ToolCall {
	m := decodeParams(raw)
	if m == nil {
		return nil
	}
	count, ok := jsonutil.FlexibleInt(m["count"])
	if !ok || count <= 0 {
		return nil
	}
	prompt := strings.TrimSpace(jsonutil.FlexibleStringValue(m["prompt"]))
	if prompt == "" {
		return nil
	}
	return models.GenerateParams{
		Count:     count,
		Prompt:    prompt,
		ColumnIDs: decodeColumnIDs(m["columnIds"], table),
	}
}
