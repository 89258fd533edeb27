package models

import "strings"

// Scope selects which rows a table operation targets.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeSelected Scope = "selected"
)

// Resolve applies the selection fallback: "selected" with nothing selected means "all".
// Selected cells count as a selection of their rows.
func (s Scope) Resolve(sel Selection) Scope {
	if s == ScopeSelected && len(sel.TargetRowIDs()) > 0 {
		return ScopeSelected
	}
	return ScopeAll
}

// Selection is the user's current grid selection. Cell ids have the form
// "<rowID>:<columnID>".
type Selection struct {
	RowIDs  []string `json:"row_ids,omitempty"`
	CellIDs []string `json:"cell_ids,omitempty"`
}

// TargetRowIDs returns the selected rows followed by the rows of selected
// cells, without duplicates.
func (s Selection) TargetRowIDs() []string {
	if len(s.CellIDs) == 0 {
		return s.RowIDs
	}
	seen := make(map[string]struct{}, len(s.RowIDs)+len(s.CellIDs))
	out := make([]string, 0, len(s.RowIDs)+len(s.CellIDs))
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range s.RowIDs {
		add(id)
	}
	for _, cell := range s.CellIDs {
		rowID, _, _ := strings.Cut(cell, ":")
		add(rowID)
	}
	return out
}

// IsEmpty reports whether nothing is selected.
func (s Selection) IsEmpty() bool {
	return len(s.RowIDs) == 0 && len(s.CellIDs) == 0
}

// FilterOperator is the comparison applied by a Filter.
type FilterOperator string

const (
	FilterContains FilterOperator = "contains"
	FilterEquals   FilterOperator = "equals"
	FilterGreater  FilterOperator = "greater"
	FilterLess     FilterOperator = "less"
)

// IsValid reports whether op is a known operator.
func (op FilterOperator) IsValid() bool {
	switch op {
	case FilterContains, FilterEquals, FilterGreater, FilterLess:
		return true
	}
	return false
}

// Filter selects rows by one column's stringified value.
type Filter struct {
	ColumnID string         `json:"columnId"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value"`
	Scope    Scope          `json:"scope"`
}

// SortDirection is ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortState orders rows by one column.
type SortState struct {
	ColumnID  string        `json:"columnId"`
	Direction SortDirection `json:"direction"`
}

// AggregateOp is a numeric reduction over one column.
type AggregateOp string

const (
	AggregateMax   AggregateOp = "max"
	AggregateMin   AggregateOp = "min"
	AggregateMean  AggregateOp = "mean"
	AggregateSum   AggregateOp = "sum"
	AggregateCount AggregateOp = "count"
)

// IsValid reports whether op is a known aggregate.
func (op AggregateOp) IsValid() bool {
	switch op {
	case AggregateMax, AggregateMin, AggregateMean, AggregateSum, AggregateCount:
		return true
	}
	return false
}

// AggregateResult is the outcome of an aggregate. NoData is set when no cell in
// scope held a numeric value; Value is then meaningless.
type AggregateResult struct {
	Op       AggregateOp `json:"op"`
	ColumnID string      `json:"columnId"`
	Value    float64     `json:"value"`
	Count    int         `json:"count"`
	NoData   bool        `json:"noData"`
}
