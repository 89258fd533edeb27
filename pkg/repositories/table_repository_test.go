//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-crm/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/testhelpers"
)

// tableTestContext holds test dependencies for table repository tests.
type tableTestContext struct {
	t     *testing.T
	repo  TableRepository
	mail  MailCredentialRepository
	orgID uuid.UUID
}

func setupTableTest(t *testing.T) *tableTestContext {
	t.Helper()
	crmDB := testhelpers.GetCRMDB(t)
	return &tableTestContext{
		t:     t,
		repo:  NewTableRepository(crmDB.DB),
		mail:  NewMailCredentialRepository(crmDB.DB),
		orgID: uuid.New(),
	}
}

func (tc *tableTestContext) createTable(ctx context.Context) *models.Table {
	tc.t.Helper()
	table := &models.Table{
		OrgID: tc.orgID,
		Name:  "Companies",
		Columns: []models.ColumnDefinition{
			{ID: "company_name", Name: "Company", Type: models.ColumnTypeText},
			{ID: "employees", Name: "Employees", Type: models.ColumnTypeNumber, Order: 1},
		},
	}
	if err := tc.repo.CreateTable(ctx, table); err != nil {
		tc.t.Fatalf("CreateTable failed: %v", err)
	}
	tc.t.Cleanup(func() {
		_ = tc.repo.DeleteTable(context.Background(), table.ID)
	})
	return table
}

func TestTableRepository_CreateAndGet(t *testing.T) {
	tc := setupTableTest(t)
	ctx := context.Background()

	table := tc.createTable(ctx)

	got, err := tc.repo.GetTable(ctx, table.ID)
	if err != nil {
		t.Fatalf("GetTable failed: %v", err)
	}
	if got.Name != "Companies" {
		t.Errorf("expected name Companies, got %q", got.Name)
	}
	if len(got.Columns) != 2 {
		t.Errorf("expected 2 columns, got %d", len(got.Columns))
	}
	if len(got.Rows) != 0 {
		t.Errorf("expected no rows, got %d", len(got.Rows))
	}
}

func TestTableRepository_GetMissing(t *testing.T) {
	tc := setupTableTest(t)

	_, err := tc.repo.GetTable(context.Background(), uuid.New())
	if err != apperrors.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTableRepository_RowLifecycle(t *testing.T) {
	tc := setupTableTest(t)
	ctx := context.Background()
	table := tc.createTable(ctx)

	first, err := tc.repo.CreateRow(ctx, table.ID, map[string]any{"company_name": "Acme"})
	if err != nil {
		t.Fatalf("CreateRow failed: %v", err)
	}
	if _, err := tc.repo.CreateRow(ctx, table.ID, map[string]any{"company_name": "Globex"}); err != nil {
		t.Fatalf("CreateRow failed: %v", err)
	}

	updated, err := tc.repo.UpdateRow(ctx, table.ID, first.ID, map[string]any{"employees": 120})
	if err != nil {
		t.Fatalf("UpdateRow failed: %v", err)
	}
	if updated.Value("company_name") != "Acme" || updated.Value("employees") != "120" {
		t.Errorf("expected merged values, got %v", updated.Values)
	}

	rows, err := tc.repo.ListRows(ctx, table.ID)
	if err != nil {
		t.Fatalf("ListRows failed: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != first.ID {
		t.Fatalf("expected rows in insertion order, got %v", rows)
	}

	n, err := tc.repo.DeleteRows(ctx, table.ID, []string{first.ID, "not-a-uuid"})
	if err != nil {
		t.Fatalf("DeleteRows failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted row, got %d", n)
	}

	if _, err := tc.repo.UpdateRow(ctx, table.ID, first.ID, map[string]any{"employees": 1}); err != apperrors.ErrNotFound {
		t.Errorf("expected ErrNotFound updating deleted row, got %v", err)
	}
}

func TestTableRepository_UpdateColumns(t *testing.T) {
	tc := setupTableTest(t)
	ctx := context.Background()
	table := tc.createTable(ctx)

	cols := append(table.Columns, models.ColumnDefinition{ID: "fit_score", Name: "Fit", Type: models.ColumnTypeNumber, Order: 2})
	if err := tc.repo.UpdateColumns(ctx, table.ID, cols); err != nil {
		t.Fatalf("UpdateColumns failed: %v", err)
	}

	tables, err := tc.repo.ListTables(ctx, tc.orgID)
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	if len(tables) != 1 || len(tables[0].Columns) != 3 {
		t.Errorf("expected one table with 3 columns, got %+v", tables)
	}

	if err := tc.repo.UpdateColumns(ctx, uuid.New(), cols); err != apperrors.ErrNotFound {
		t.Errorf("expected ErrNotFound for missing table, got %v", err)
	}
}

func TestMailCredentialRepository_Upsert(t *testing.T) {
	tc := setupTableTest(t)
	ctx := context.Background()
	userID := uuid.New()
	t.Cleanup(func() { _ = tc.mail.Delete(context.Background(), userID) })

	cred := &models.MailCredential{
		UserID:      userID,
		Provider:    "gmail",
		Sender:      "sales@example.com",
		AccessToken: "ciphertext-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	if err := tc.mail.Upsert(ctx, cred); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	cred.AccessToken = "ciphertext-2"
	if err := tc.mail.Upsert(ctx, cred); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	got, err := tc.mail.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AccessToken != "ciphertext-2" {
		t.Errorf("expected updated token, got %q", got.AccessToken)
	}
}
