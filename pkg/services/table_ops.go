package services

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-crm/pkg/models"
)

// ParseNumber reads a cell as a number. Surrounding whitespace and thousands
// separators are ignored; anything else that is not a plain number fails.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// scopedRows returns the rows a read-only operation targets.
func scopedRows(table *models.Table, scope models.Scope, sel models.Selection) []models.Row {
	if scope.Resolve(sel) == models.ScopeSelected {
		return table.RowsByID(sel.TargetRowIDs())
	}
	return table.RowsByID(nil)
}

// FilterRows keeps the rows matching f. Non-numeric cells never match
// greater or less.
func FilterRows(table *models.Table, f models.Filter, sel models.Selection) []models.Row {
	rows := scopedRows(table, f.Scope, sel)
	out := make([]models.Row, 0, len(rows))
	for _, row := range rows {
		if matchFilter(row.Value(f.ColumnID), f) {
			out = append(out, row)
		}
	}
	return out
}

func matchFilter(cell string, f models.Filter) bool {
	switch f.Operator {
	case models.FilterContains:
		return strings.Contains(cell, f.Value)
	case models.FilterEquals:
		return cell == f.Value
	case models.FilterGreater, models.FilterLess:
		a, ok := ParseNumber(cell)
		if !ok {
			return false
		}
		b, ok := ParseNumber(f.Value)
		if !ok {
			return false
		}
		if f.Operator == models.FilterGreater {
			return a > b
		}
		return a < b
	}
	return false
}

// SortRows returns the scoped rows ordered by s. The sort is stable and rows
// with an empty value come last in both directions. Numeric cells come before
// text cells in both directions; direction orders values within each group.
func SortRows(table *models.Table, s models.SortState, scope models.Scope, sel models.Selection) []models.Row {
	rows := scopedRows(table, scope, sel)
	desc := s.Direction == models.SortDesc

	sort.SliceStable(rows, func(i, j int) bool {
		a := strings.TrimSpace(rows[i].Value(s.ColumnID))
		b := strings.TrimSpace(rows[j].Value(s.ColumnID))
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		c, sameGroup := compareCells(a, b)
		if !sameGroup {
			return c < 0
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
	return rows
}

// compareCells orders two non-empty cells within their group and reports
// whether they belong to the same group at all.
func compareCells(a, b string) (c int, sameGroup bool) {
	na, okA := ParseNumber(a)
	nb, okB := ParseNumber(b)
	switch {
	case okA && okB:
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		}
		return 0, true
	case okA:
		return -1, false
	case okB:
		return 1, false
	}
	return strings.Compare(a, b), true
}

// AggregateColumn reduces the numeric cells of one column. Non-numeric cells
// are skipped; with nothing numeric the result has NoData set.
func AggregateColumn(table *models.Table, columnID string, op models.AggregateOp, scope models.Scope, sel models.Selection) models.AggregateResult {
	result := models.AggregateResult{Op: op, ColumnID: columnID}

	var values []float64
	for _, row := range scopedRows(table, scope, sel) {
		if v, ok := ParseNumber(row.Value(columnID)); ok {
			values = append(values, v)
		}
	}
	result.Count = len(values)
	if len(values) == 0 {
		result.NoData = op != models.AggregateCount
		return result
	}

	switch op {
	case models.AggregateCount:
		result.Value = float64(len(values))
	case models.AggregateSum, models.AggregateMean:
		var sum float64
		for _, v := range values {
			sum += v
		}
		result.Value = sum
		if op == models.AggregateMean {
			result.Value = sum / float64(len(values))
		}
	case models.AggregateMax:
		result.Value = values[0]
		for _, v := range values[1:] {
			result.Value = math.Max(result.Value, v)
		}
	case models.AggregateMin:
		result.Value = values[0]
		for _, v := range values[1:] {
			result.Value = math.Min(result.Value, v)
		}
	}
	return result
}
