package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() *Table {
	return &Table{
		Name: "Leads",
		Columns: []ColumnDefinition{
			{ID: "ceo", Name: "CEO", Type: ColumnTypeText, Order: 2},
			{ID: "company_name", Name: "会社名", Type: ColumnTypeText, Order: 1},
		},
		Rows: []Row{
			{ID: "r1", Values: map[string]any{"company_name": "Acme Inc"}},
			{ID: "r2", Values: map[string]any{"company_name": "Globex", "ceo": "Hank"}},
		},
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"whole float", float64(1200), "1200"},
		{"fraction", 3.25, "3.25"},
		{"int", 42, "42"},
		{"bool", true, "true"},
		{"json number", json.Number("7.5"), "7.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stringify(tt.in))
		})
	}
}

func TestRow_MissingKeyIsEmpty(t *testing.T) {
	r := Row{ID: "r1"}
	assert.Equal(t, "", r.Value("anything"))
	assert.True(t, r.IsBlank("anything"))
}

func TestRow_WithDoesNotMutateOriginal(t *testing.T) {
	r := Row{ID: "r1", Values: map[string]any{"a": "1"}}
	r2 := r.With("a", "2")

	assert.Equal(t, "1", r.Value("a"))
	assert.Equal(t, "2", r2.Value("a"))
}

func TestTable_WithRowReturnsNewValue(t *testing.T) {
	tbl := testTable()
	updated := tbl.WithRow(Row{ID: "r1", Values: map[string]any{"company_name": "Acme Inc", "ceo": "Wile"}})

	assert.Equal(t, "", tbl.Rows[0].Value("ceo"), "original table must be unchanged")
	assert.Equal(t, "Wile", updated.Rows[0].Value("ceo"))
	assert.Len(t, updated.Rows, 2)

	appended := tbl.WithRow(Row{ID: "r3"})
	assert.Len(t, appended.Rows, 3)
	assert.Len(t, tbl.Rows, 2)
}

func TestTable_AppendRowsKeepsOrder(t *testing.T) {
	tbl := testTable()
	out := tbl.AppendRows(Row{ID: "a"}, Row{ID: "b"})

	require.Len(t, out.Rows, 4)
	assert.Equal(t, "a", out.Rows[2].ID)
	assert.Equal(t, "b", out.Rows[3].ID)
}

func TestTable_ColumnLookup(t *testing.T) {
	tbl := testTable()

	col, ok := tbl.Column("ceo")
	require.True(t, ok)
	assert.Equal(t, "CEO", col.Name)

	col, ok = tbl.Column("会社名")
	require.True(t, ok)
	assert.Equal(t, "company_name", col.ID)

	_, ok = tbl.Column("missing")
	assert.False(t, ok)

	sorted := tbl.SortedColumns()
	assert.Equal(t, "company_name", sorted[0].ID)
}

func TestTable_RowsByID(t *testing.T) {
	tbl := testTable()
	assert.Len(t, tbl.RowsByID(nil), 2)

	rows := tbl.RowsByID([]string{"r2", "missing"})
	require.Len(t, rows, 1)
	assert.Equal(t, "r2", rows[0].ID)
}

func TestColumnDefinition_AddTagOption(t *testing.T) {
	col := ColumnDefinition{ID: "status", Type: ColumnTypeTag}

	require.NoError(t, col.AddTagOption(TagOption{Label: "Hot", Color: "red"}))
	assert.Error(t, col.AddTagOption(TagOption{Label: "hot"}))
	assert.Error(t, col.AddTagOption(TagOption{Label: "  "}))
	assert.Len(t, col.Options, 1)
	assert.NotEmpty(t, col.Options[0].ID)
}

func TestScope_Resolve(t *testing.T) {
	assert.Equal(t, ScopeAll, ScopeSelected.Resolve(Selection{}))
	assert.Equal(t, ScopeSelected, ScopeSelected.Resolve(Selection{RowIDs: []string{"r1"}}))
	assert.Equal(t, ScopeAll, ScopeAll.Resolve(Selection{RowIDs: []string{"r1"}}))
	assert.Equal(t, ScopeAll, Scope("").Resolve(Selection{}))
	assert.Equal(t, ScopeSelected, ScopeSelected.Resolve(Selection{CellIDs: []string{"r2:ceo"}}))
}

func TestSelection_TargetRowIDs(t *testing.T) {
	sel := Selection{
		RowIDs:  []string{"r1"},
		CellIDs: []string{"r2:ceo", "r1:revenue", "r2:revenue", "r3"},
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, sel.TargetRowIDs())
	assert.Empty(t, Selection{}.TargetRowIDs())
}

func TestParseToolKind(t *testing.T) {
	assert.Equal(t, ToolFilter, ParseToolKind("filter"))
	assert.Equal(t, ToolGenerate, ParseToolKind("generate_data"))
	assert.Equal(t, ToolGenerate, ParseToolKind("generate"))
	assert.Equal(t, ToolNone, ParseToolKind("drop_table"))
	assert.True(t, ToolEnrich.IsMutation())
	assert.False(t, ToolAggregate.IsMutation())
}

func TestAnalyzeChatResult_MarshalJSON(t *testing.T) {
	r := AnalyzeChatResult{
		Intent: IntentFilter,
		Tool:   ToolFilter,
		Reply:  "Filtering",
		Call:   FilterParams{Filter{ColumnID: "ceo", Operator: FilterContains, Value: "H", Scope: ScopeAll}},
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "FILTER", decoded["intent"])
	assert.Equal(t, "filter", decoded["tool"])
	params, ok := decoded["filterParams"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ceo", params["columnId"])
	assert.NotContains(t, decoded, "sortParams")
}

func TestParseConfidence(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ParseConfidence("high"))
	assert.Equal(t, ConfidenceMedium, ParseConfidence("MEDIUM"))
	assert.Equal(t, ConfidenceLow, ParseConfidence("unsure"))
	assert.Equal(t, ConfidenceLow, ParseConfidence(""))
}
