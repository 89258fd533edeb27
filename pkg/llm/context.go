package llm

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

type contextKey string

const gatewayContextKey contextKey = "gateway_context"

// WithContext returns a context carrying log fields for gateway calls.
// Values are merged with any already present.
func WithContext(ctx context.Context, values map[string]string) context.Context {
	merged := GetContext(ctx)
	if merged == nil {
		merged = make(map[string]string, len(values))
	}
	for k, v := range values {
		merged[k] = v
	}
	return context.WithValue(ctx, gatewayContextKey, merged)
}

// GetContext returns a copy of the gateway log fields, or nil.
func GetContext(ctx context.Context) map[string]string {
	c, ok := ctx.Value(gatewayContextKey).(map[string]string)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// WithEnrichmentContext tags calls made while enriching one (row, column) pair.
func WithEnrichmentContext(ctx context.Context, tableID, rowID, columnID, phase string) context.Context {
	values := map[string]string{"phase": phase}
	if tableID != "" {
		values["table_id"] = tableID
	}
	if rowID != "" {
		values["row_id"] = rowID
	}
	if columnID != "" {
		values["column_id"] = columnID
	}
	return WithContext(ctx, values)
}

// contextFields renders the gateway context as zap fields in key order.
func contextFields(ctx context.Context) []zap.Field {
	values := GetContext(ctx)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+4)
	for _, k := range keys {
		fields = append(fields, zap.String(k, values[k]))
	}
	return fields
}
