package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/repositories"
	"github.com/ekaya-inc/ekaya-crm/pkg/services"
)

// apiEnvelope decodes an ApiResponse while keeping Data raw.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env apiEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !env.Success {
		t.Fatalf("expected success response, got %s", rec.Body.String())
	}
	if v == nil {
		return
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body["error"]
}

// parseEvents splits an SSE body into its events.
func parseEvents(t *testing.T, body string) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if !strings.HasPrefix(chunk, "data: ") {
			t.Fatalf("unexpected SSE chunk %q", chunk)
		}
		var ev StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(chunk, "data: ")), &ev); err != nil {
			t.Fatalf("failed to decode event %q: %v", chunk, err)
		}
		events = append(events, ev)
	}
	return events
}

// seedCompanies creates a table with a company key column and three rows.
func seedCompanies(t *testing.T, svc services.TableService) *models.Table {
	t.Helper()
	ctx := context.Background()
	table, err := svc.CreateTable(ctx, services.CreateTableRequest{
		OrgID: uuid.New(),
		Name:  "Prospects",
		Columns: []models.ColumnDefinition{
			{Name: "Company Name"},
			{Name: "CEO"},
			{Name: "Revenue", Type: models.ColumnTypeNumber},
		},
	})
	if err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	for _, vals := range []map[string]any{
		{"company_name": "Acme", "revenue": float64(300)},
		{"company_name": "Globex", "revenue": float64(100)},
		{"company_name": "Initech"},
	} {
		if _, err := svc.AddRow(ctx, table.ID, vals); err != nil {
			t.Fatalf("failed to add row: %v", err)
		}
	}
	table, err = svc.GetTable(ctx, table.ID)
	if err != nil {
		t.Fatalf("failed to reload table: %v", err)
	}
	return table
}

func newTableService() services.TableService {
	return services.NewTableService(repositories.NewMemoryTableRepository(), zap.NewNop())
}

func doRequestRaw(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
