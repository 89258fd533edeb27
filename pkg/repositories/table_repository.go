package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-crm/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-crm/pkg/database"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
)

// TableRepository is the record store for tables and their rows.
// CreateRow and CreateTable are not idempotent: a blind retry duplicates.
type TableRepository interface {
	CreateTable(ctx context.Context, table *models.Table) error
	GetTable(ctx context.Context, tableID uuid.UUID) (*models.Table, error)
	ListTables(ctx context.Context, orgID uuid.UUID) ([]*models.Table, error)
	UpdateColumns(ctx context.Context, tableID uuid.UUID, columns []models.ColumnDefinition) error
	DeleteTable(ctx context.Context, tableID uuid.UUID) error

	ListRows(ctx context.Context, tableID uuid.UUID) ([]models.Row, error)
	CreateRow(ctx context.Context, tableID uuid.UUID, values map[string]any) (*models.Row, error)
	// UpdateRow merges values into the row; keys not in values are kept.
	UpdateRow(ctx context.Context, tableID uuid.UUID, rowID string, values map[string]any) (*models.Row, error)
	DeleteRows(ctx context.Context, tableID uuid.UUID, rowIDs []string) (int, error)
}

type tableRepository struct {
	db *database.DB
}

// NewTableRepository creates a PostgreSQL-backed TableRepository.
func NewTableRepository(db *database.DB) TableRepository {
	return &tableRepository{db: db}
}

var _ TableRepository = (*tableRepository)(nil)

// ============================================================================
// Tables
// ============================================================================

func (r *tableRepository) CreateTable(ctx context.Context, table *models.Table) error {
	if table.ID == uuid.Nil {
		table.ID = uuid.New()
	}
	columns, err := json.Marshal(nonNilColumns(table.Columns))
	if err != nil {
		return fmt.Errorf("failed to encode columns: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO crm_tables (id, org_id, name, description, columns, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		table.ID, table.OrgID, table.Name, table.Description, columns, now, now,
	).Scan(&table.CreatedAt, &table.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func (r *tableRepository) GetTable(ctx context.Context, tableID uuid.UUID) (*models.Table, error) {
	query := `
		SELECT id, org_id, name, description, columns, created_at, updated_at
		FROM crm_tables
		WHERE id = $1`

	table, err := scanTable(r.db.QueryRow(ctx, query, tableID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get table: %w", err)
	}

	rows, err := r.ListRows(ctx, tableID)
	if err != nil {
		return nil, err
	}
	table.Rows = rows
	return table, nil
}

func (r *tableRepository) ListTables(ctx context.Context, orgID uuid.UUID) ([]*models.Table, error) {
	query := `
		SELECT id, org_id, name, description, columns, created_at, updated_at
		FROM crm_tables
		WHERE org_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []*models.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}
	return tables, nil
}

func (r *tableRepository) UpdateColumns(ctx context.Context, tableID uuid.UUID, columns []models.ColumnDefinition) error {
	data, err := json.Marshal(nonNilColumns(columns))
	if err != nil {
		return fmt.Errorf("failed to encode columns: %w", err)
	}

	result, err := r.db.Exec(ctx,
		`UPDATE crm_tables SET columns = $2, updated_at = now() WHERE id = $1`, tableID, data)
	if err != nil {
		return fmt.Errorf("failed to update columns: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *tableRepository) DeleteTable(ctx context.Context, tableID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM crm_tables WHERE id = $1`, tableID)
	if err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ============================================================================
// Rows
// ============================================================================

func (r *tableRepository) ListRows(ctx context.Context, tableID uuid.UUID) ([]models.Row, error) {
	query := `
		SELECT id, values
		FROM crm_rows
		WHERE table_id = $1
		ORDER BY position`

	rows, err := r.db.Query(ctx, query, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	defer rows.Close()

	out := []models.Row{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

func (r *tableRepository) CreateRow(ctx context.Context, tableID uuid.UUID, values map[string]any) (*models.Row, error) {
	data, err := encodeValues(values)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO crm_rows (table_id, values)
		VALUES ($1, $2)
		RETURNING id, values`

	row, err := scanRow(r.db.QueryRow(ctx, query, tableID, data))
	if err != nil {
		return nil, fmt.Errorf("failed to create row: %w", err)
	}
	return row, nil
}

func (r *tableRepository) UpdateRow(ctx context.Context, tableID uuid.UUID, rowID string, values map[string]any) (*models.Row, error) {
	id, err := uuid.Parse(rowID)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}
	data, err := encodeValues(values)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE crm_rows
		SET values = values || $3::jsonb, updated_at = now()
		WHERE table_id = $1 AND id = $2
		RETURNING id, values`

	row, err := scanRow(r.db.QueryRow(ctx, query, tableID, id, data))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update row: %w", err)
	}
	return row, nil
}

func (r *tableRepository) DeleteRows(ctx context.Context, tableID uuid.UUID, rowIDs []string) (int, error) {
	ids := make([]uuid.UUID, 0, len(rowIDs))
	for _, s := range rowIDs {
		if id, err := uuid.Parse(s); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.Exec(ctx,
		`DELETE FROM crm_rows WHERE table_id = $1 AND id = ANY($2)`, tableID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rows: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// ============================================================================
// Helpers
// ============================================================================

func scanTable(row pgx.Row) (*models.Table, error) {
	var t models.Table
	var columns []byte
	if err := row.Scan(&t.ID, &t.OrgID, &t.Name, &t.Description, &columns, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(columns, &t.Columns); err != nil {
		return nil, fmt.Errorf("decode columns: %w", err)
	}
	t.Rows = []models.Row{}
	return &t, nil
}

func scanRow(row pgx.Row) (*models.Row, error) {
	var id uuid.UUID
	var data []byte
	if err := row.Scan(&id, &data); err != nil {
		return nil, err
	}
	values := map[string]any{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode row values: %w", err)
	}
	return &models.Row{ID: id.String(), Values: values}, nil
}

func encodeValues(values map[string]any) ([]byte, error) {
	if values == nil {
		values = map[string]any{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row values: %w", err)
	}
	return data, nil
}

func nonNilColumns(cols []models.ColumnDefinition) []models.ColumnDefinition {
	if cols == nil {
		return []models.ColumnDefinition{}
	}
	return cols
}
