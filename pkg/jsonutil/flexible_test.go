package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name  string
		input json.RawMessage
		want  string
	}{
		{"string value", json.RawMessage(`"hello"`), "hello"},
		{"integer value", json.RawMessage(`42`), "42"},
		{"large integer", json.RawMessage(`1200000000`), "1200000000"},
		{"float value", json.RawMessage(`3.14`), "3.14"},
		{"boolean", json.RawMessage(`false`), "false"},
		{"null value", json.RawMessage(`null`), ""},
		{"empty", nil, ""},
		{"object falls back to raw", json.RawMessage(`{"a":1}`), `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlexibleStringValue(tt.input))
		})
	}
}

func TestFlexibleInt(t *testing.T) {
	tests := []struct {
		input  json.RawMessage
		want   int
		wantOK bool
	}{
		{json.RawMessage(`3`), 3, true},
		{json.RawMessage(`"5"`), 5, true},
		{json.RawMessage(`" 7 "`), 7, true},
		{json.RawMessage(`4.0`), 4, true},
		{json.RawMessage(`"ten"`), 0, false},
		{json.RawMessage(`null`), 0, false},
	}

	for _, tt := range tests {
		got, ok := FlexibleInt(tt.input)
		assert.Equal(t, tt.wantOK, ok, string(tt.input))
		assert.Equal(t, tt.want, got, string(tt.input))
	}
}

func TestFlexibleStringSlice(t *testing.T) {
	assert.Equal(t, []string{"ceo", "revenue"}, FlexibleStringSlice(json.RawMessage(`["ceo", " revenue ", ""]`)))
	assert.Equal(t, []string{"1", "x"}, FlexibleStringSlice(json.RawMessage(`[1, "x"]`)))
	assert.Equal(t, []string{"ceo", "revenue"}, FlexibleStringSlice(json.RawMessage(`"ceo, revenue"`)))
	assert.Equal(t, []string{"ceo"}, FlexibleStringSlice(json.RawMessage(`"ceo"`)))
	assert.Nil(t, FlexibleStringSlice(json.RawMessage(`null`)))
}
