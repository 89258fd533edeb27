package models

import "encoding/json"

// Intent is the coarse category of a user chat message.
type Intent string

const (
	IntentFilter Intent = "FILTER"
	IntentSort   Intent = "SORT"
	IntentEdit   Intent = "EDIT"
	IntentChat   Intent = "CHAT"
)

// IsValid reports whether i is a known intent.
func (i Intent) IsValid() bool {
	switch i {
	case IntentFilter, IntentSort, IntentEdit, IntentChat:
		return true
	}
	return false
}

// ChatMode controls whether the assistant may mutate the table.
type ChatMode string

const (
	// ChatModeChat is read-only: only filter, sort and aggregate may run.
	ChatModeChat ChatMode = "chat"
	// ChatModeAgent allows enrich and generate.
	ChatModeAgent ChatMode = "agent"
)

// ToolKind names one of the fixed table operations.
type ToolKind string

const (
	ToolNone      ToolKind = "none"
	ToolFilter    ToolKind = "filter"
	ToolSort      ToolKind = "sort"
	ToolAggregate ToolKind = "aggregate"
	ToolEnrich    ToolKind = "enrich"
	ToolGenerate  ToolKind = "generate_data"
)

// ParseToolKind normalizes a tool tag. Unknown tags map to ToolNone.
func ParseToolKind(s string) ToolKind {
	switch ToolKind(s) {
	case ToolFilter, ToolSort, ToolAggregate, ToolEnrich, ToolGenerate:
		return ToolKind(s)
	}
	switch s {
	case "filter_rows":
		return ToolFilter
	case "sort_rows":
		return ToolSort
	case "generate", "generate_rows":
		return ToolGenerate
	case "enrich_rows", "enrich_data":
		return ToolEnrich
	}
	return ToolNone
}

// IsMutation reports whether the tool writes to the table.
func (k ToolKind) IsMutation() bool {
	return k == ToolEnrich || k == ToolGenerate
}

// ToolCall is the typed parameter payload of a classified tool.
// Implemented only by the *Params types in this package.
type ToolCall interface {
	Kind() ToolKind
	isToolCall()
}

// FilterParams carries a filter tool call.
type FilterParams struct {
	Filter
}

// SortParams carries a sort tool call.
type SortParams struct {
	SortState
	Scope Scope `json:"scope"`
}

// AggregateParams carries an aggregate tool call.
type AggregateParams struct {
	ColumnID string      `json:"columnId"`
	Op       AggregateOp `json:"op"`
	Scope    Scope       `json:"scope"`
}

// EnrichParams carries an enrich tool call. ColumnIDs are the target columns.
type EnrichParams struct {
	ColumnIDs []string `json:"columnIds"`
	Scope     Scope    `json:"scope"`
}

// GenerateParams carries a generate_data tool call.
type GenerateParams struct {
	Count     int      `json:"count"`
	Prompt    string   `json:"prompt"`
	ColumnIDs []string `json:"columnIds,omitempty"`
}

func (FilterParams) Kind() ToolKind    { return ToolFilter }
func (SortParams) Kind() ToolKind      { return ToolSort }
func (AggregateParams) Kind() ToolKind { return ToolAggregate }
func (EnrichParams) Kind() ToolKind    { return ToolEnrich }
func (GenerateParams) Kind() ToolKind  { return ToolGenerate }

func (FilterParams) isToolCall()    {}
func (SortParams) isToolCall()      {}
func (AggregateParams) isToolCall() {}
func (EnrichParams) isToolCall()    {}
func (GenerateParams) isToolCall()  {}

// AnalyzeChatResult is the classifier's decision for one user message.
// Call is nil when Tool is ToolNone; otherwise Call.Kind() == Tool.
type AnalyzeChatResult struct {
	Intent          Intent
	Tool            ToolKind
	Reply           string
	Call            ToolCall
	SuggestedAction string
}

type analyzeChatResultJSON struct {
	Intent          Intent           `json:"intent"`
	Tool            ToolKind         `json:"tool"`
	Reply           string           `json:"reply"`
	FilterParams    *FilterParams    `json:"filterParams,omitempty"`
	SortParams      *SortParams      `json:"sortParams,omitempty"`
	AggregateParams *AggregateParams `json:"aggregateParams,omitempty"`
	EnrichParams    *EnrichParams    `json:"enrichParams,omitempty"`
	GenerateParams  *GenerateParams  `json:"generateParams,omitempty"`
	SuggestedAction string           `json:"suggestedAction,omitempty"`
}

// MarshalJSON emits the per-tool params under their own keys.
func (r AnalyzeChatResult) MarshalJSON() ([]byte, error) {
	out := analyzeChatResultJSON{
		Intent:          r.Intent,
		Tool:            r.Tool,
		Reply:           r.Reply,
		SuggestedAction: r.SuggestedAction,
	}
	switch c := r.Call.(type) {
	case FilterParams:
		out.FilterParams = &c
	case SortParams:
		out.SortParams = &c
	case AggregateParams:
		out.AggregateParams = &c
	case EnrichParams:
		out.EnrichParams = &c
	case GenerateParams:
		out.GenerateParams = &c
	}
	return json.Marshal(out)
}
