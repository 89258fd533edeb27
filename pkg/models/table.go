package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ColumnType is the display/storage type of a table column.
type ColumnType string

const (
	ColumnTypeText   ColumnType = "text"
	ColumnTypeNumber ColumnType = "number"
	ColumnTypeTag    ColumnType = "tag"
	ColumnTypeURL    ColumnType = "url"
	ColumnTypeEmail  ColumnType = "email"
	ColumnTypeDate   ColumnType = "date"
)

// ValidColumnTypes lists all supported column types.
var ValidColumnTypes = []ColumnType{
	ColumnTypeText, ColumnTypeNumber, ColumnTypeTag,
	ColumnTypeURL, ColumnTypeEmail, ColumnTypeDate,
}

// IsValid reports whether t is a supported column type.
func (t ColumnType) IsValid() bool {
	for _, v := range ValidColumnTypes {
		if t == v {
			return true
		}
	}
	return false
}

// OverflowMode controls how long cell values are displayed.
type OverflowMode string

const (
	OverflowClip OverflowMode = "clip"
	OverflowWrap OverflowMode = "wrap"
)

// TagOption is a selectable value of a tag column.
// Labels are unique case-insensitively within one column.
type TagOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// ColumnDefinition describes one column of a table.
type ColumnDefinition struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Type        ColumnType   `json:"type"`
	Order       int          `json:"order"`
	Description string       `json:"description,omitempty"`
	Required    bool         `json:"required,omitempty"`
	Overflow    OverflowMode `json:"overflow,omitempty"`
	Options     []TagOption  `json:"options,omitempty"`
}

// HasTagLabel reports whether the column already has an option with this label
// (case-insensitive).
func (c *ColumnDefinition) HasTagLabel(label string) bool {
	for _, o := range c.Options {
		if strings.EqualFold(o.Label, label) {
			return true
		}
	}
	return false
}

// AddTagOption appends a tag option, rejecting labels that already exist.
func (c *ColumnDefinition) AddTagOption(opt TagOption) error {
	if strings.TrimSpace(opt.Label) == "" {
		return fmt.Errorf("tag label is empty")
	}
	if c.HasTagLabel(opt.Label) {
		return fmt.Errorf("tag label %q already exists in column %s", opt.Label, c.ID)
	}
	if opt.ID == "" {
		opt.ID = uuid.NewString()
	}
	c.Options = append(c.Options, opt)
	return nil
}

// Row is one record of a table. Keys of Values are column ids; missing keys read as "".
type Row struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// Value returns the stringified cell value for a column.
func (r Row) Value(columnID string) string {
	if r.Values == nil {
		return ""
	}
	return Stringify(r.Values[columnID])
}

// IsBlank reports whether the cell for columnID is absent or whitespace only.
func (r Row) IsBlank(columnID string) bool {
	return strings.TrimSpace(r.Value(columnID)) == ""
}

// Clone returns a deep copy of the row's value map.
func (r Row) Clone() Row {
	values := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return Row{ID: r.ID, Values: values}
}

// With returns a copy of the row with one cell replaced.
func (r Row) With(columnID string, value any) Row {
	c := r.Clone()
	c.Values[columnID] = value
	return c
}

// Stringify converts a scalar cell value to its display string.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Table is a typed grid of rows. Treat a Table as a value: helpers that change
// rows return a new Table and leave the receiver untouched.
type Table struct {
	ID          uuid.UUID          `json:"id"`
	OrgID       uuid.UUID          `json:"org_id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Columns     []ColumnDefinition `json:"columns"`
	Rows        []Row              `json:"rows"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// SortedColumns returns the columns in display order.
func (t *Table) SortedColumns() []ColumnDefinition {
	cols := make([]ColumnDefinition, len(t.Columns))
	copy(cols, t.Columns)
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Order < cols[j].Order })
	return cols
}

// Column finds a column by id, falling back to a case-insensitive name match.
func (t *Table) Column(idOrName string) (*ColumnDefinition, bool) {
	for i := range t.Columns {
		if t.Columns[i].ID == idOrName {
			return &t.Columns[i], true
		}
	}
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, idOrName) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Row finds a row by id.
func (t *Table) Row(rowID string) (Row, bool) {
	for _, r := range t.Rows {
		if r.ID == rowID {
			return r, true
		}
	}
	return Row{}, false
}

// shallowCopy copies the table header and the row slice (not the row maps).
func (t *Table) shallowCopy() *Table {
	c := *t
	c.Rows = make([]Row, len(t.Rows))
	copy(c.Rows, t.Rows)
	return &c
}

// WithRow returns a new Table in which the row with the same id is replaced.
// If no such row exists the row is appended.
func (t *Table) WithRow(row Row) *Table {
	c := t.shallowCopy()
	for i := range c.Rows {
		if c.Rows[i].ID == row.ID {
			c.Rows[i] = row
			return c
		}
	}
	c.Rows = append(c.Rows, row)
	return c
}

// AppendRows returns a new Table with rows appended in the given order.
func (t *Table) AppendRows(rows ...Row) *Table {
	c := t.shallowCopy()
	c.Rows = append(c.Rows, rows...)
	return c
}

// RowsByID returns the rows whose ids are in ids, in table order.
// A nil or empty ids returns all rows.
func (t *Table) RowsByID(ids []string) []Row {
	if len(ids) == 0 {
		out := make([]Row, len(t.Rows))
		copy(out, t.Rows)
		return out
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []Row
	for _, r := range t.Rows {
		if _, ok := want[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// WithColumns returns a new Table with the column list replaced.
func (t *Table) WithColumns(cols []ColumnDefinition) *Table {
	c := t.shallowCopy()
	c.Columns = cols
	return c
}
