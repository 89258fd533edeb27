package handlers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/services"
)

func newTablesMux() (*http.ServeMux, services.TableService) {
	svc := newTableService()
	mux := http.NewServeMux()
	NewTablesHandler(svc, zap.NewNop()).RegisterRoutes(mux)
	return mux, svc
}

func TestTablesHandler_CreateAndGet(t *testing.T) {
	mux, _ := newTablesMux()
	orgID := uuid.New()

	rec := doRequest(t, mux, http.MethodPost, "/api/orgs/"+orgID.String()+"/tables", map[string]any{
		"name":    "Leads",
		"columns": []map[string]any{{"name": "Company Name"}, {"name": "Revenue", "type": "number"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var created models.Table
	decodeData(t, rec, &created)
	if created.OrgID != orgID {
		t.Errorf("expected org %s, got %s", orgID, created.OrgID)
	}
	if len(created.Columns) != 2 || created.Columns[0].ID != "company_name" {
		t.Errorf("expected normalized columns, got %+v", created.Columns)
	}

	rec = doRequest(t, mux, http.MethodGet, "/api/tables/"+created.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var got models.Table
	decodeData(t, rec, &got)
	if got.Name != "Leads" {
		t.Errorf("expected name 'Leads', got '%s'", got.Name)
	}

	rec = doRequest(t, mux, http.MethodGet, "/api/orgs/"+orgID.String()+"/tables", nil)
	var list []models.Table
	decodeData(t, rec, &list)
	if len(list) != 1 {
		t.Errorf("expected 1 table for org, got %d", len(list))
	}
}

func TestTablesHandler_CreateValidation(t *testing.T) {
	mux, _ := newTablesMux()

	rec := doRequest(t, mux, http.MethodPost, "/api/orgs/"+uuid.NewString()+"/tables", map[string]any{"name": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "validation_error" {
		t.Errorf("expected error 'validation_error', got '%s'", code)
	}
}

func TestTablesHandler_GetMissingTable(t *testing.T) {
	mux, _ := newTablesMux()

	rec := doRequest(t, mux, http.MethodGet, "/api/tables/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	rec = doRequest(t, mux, http.MethodGet, "/api/tables/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestTablesHandler_RowOperations(t *testing.T) {
	mux, svc := newTablesMux()
	table := seedCompanies(t, svc)
	base := "/api/tables/" + table.ID.String()

	rec := doRequest(t, mux, http.MethodPost, base+"/rows", AddRowRequest{Values: map[string]any{"company_name": "Umbrella"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add row: expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var row models.Row
	decodeData(t, rec, &row)

	rec = doRequest(t, mux, http.MethodPost, base+"/rows", AddRowRequest{Values: map[string]any{"Company Name": "Bad"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("add row keyed by name: expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	rec = doRequest(t, mux, http.MethodPatch, base+"/rows/"+row.ID, AddRowRequest{Values: map[string]any{"ceo": "Albert Wesker"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("update row: expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var updated models.Row
	decodeData(t, rec, &updated)
	if updated.Value("ceo") != "Albert Wesker" || updated.Value("company_name") != "Umbrella" {
		t.Errorf("expected merged values, got %+v", updated.Values)
	}

	rec = doRequest(t, mux, http.MethodPost, base+"/rows/delete", DeleteRowsRequest{RowIDs: []string{row.ID, "missing"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete rows: expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var deleted DeleteRowsResponse
	decodeData(t, rec, &deleted)
	if deleted.Deleted != 1 {
		t.Errorf("expected 1 row deleted, got %d", deleted.Deleted)
	}

	rec = doRequest(t, mux, http.MethodPost, base+"/rows/delete", DeleteRowsRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("delete nothing: expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestTablesHandler_Delete(t *testing.T) {
	mux, svc := newTablesMux()
	table := seedCompanies(t, svc)

	rec := doRequest(t, mux, http.MethodDelete, "/api/tables/"+table.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	rec = doRequest(t, mux, http.MethodDelete, "/api/tables/"+table.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestTablesHandler_InvalidBody(t *testing.T) {
	mux, _ := newTablesMux()

	req := doRequestRaw(mux, http.MethodPost, "/api/orgs/"+uuid.NewString()+"/tables", "{not json")
	if req.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, req.Code)
	}
}
