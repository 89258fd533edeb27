package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-crm/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
)

// memoryTableRepository keeps tables in process memory. Used when no database
// is configured and in unit tests.
type memoryTableRepository struct {
	mu     sync.RWMutex
	tables map[uuid.UUID]*models.Table
}

// NewMemoryTableRepository creates an in-memory TableRepository.
func NewMemoryTableRepository() TableRepository {
	return &memoryTableRepository{tables: make(map[uuid.UUID]*models.Table)}
}

var _ TableRepository = (*memoryTableRepository)(nil)

func (r *memoryTableRepository) CreateTable(ctx context.Context, table *models.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if table.ID == uuid.Nil {
		table.ID = uuid.New()
	}
	if _, exists := r.tables[table.ID]; exists {
		return apperrors.ErrConflict
	}
	now := time.Now()
	table.CreatedAt, table.UpdatedAt = now, now

	stored := cloneTable(table)
	stored.Rows = []models.Row{}
	for _, row := range table.Rows {
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		stored.Rows = append(stored.Rows, row.Clone())
	}
	r.tables[table.ID] = stored
	table.Rows = cloneRows(stored.Rows)
	return nil
}

func (r *memoryTableRepository) GetTable(ctx context.Context, tableID uuid.UUID) (*models.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[tableID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneTable(t), nil
}

func (r *memoryTableRepository) ListTables(ctx context.Context, orgID uuid.UUID) ([]*models.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Table
	for _, t := range r.tables {
		if t.OrgID == orgID {
			c := cloneTable(t)
			c.Rows = []models.Row{}
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryTableRepository) UpdateColumns(ctx context.Context, tableID uuid.UUID, columns []models.ColumnDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[tableID]
	if !ok {
		return apperrors.ErrNotFound
	}
	t.Columns = cloneColumns(columns)
	t.UpdatedAt = time.Now()
	return nil
}

func (r *memoryTableRepository) DeleteTable(ctx context.Context, tableID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tables[tableID]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.tables, tableID)
	return nil
}

func (r *memoryTableRepository) ListRows(ctx context.Context, tableID uuid.UUID) ([]models.Row, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[tableID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneRows(t.Rows), nil
}

func (r *memoryTableRepository) CreateRow(ctx context.Context, tableID uuid.UUID, values map[string]any) (*models.Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[tableID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	row := models.Row{ID: uuid.NewString(), Values: map[string]any{}}
	for k, v := range values {
		row.Values[k] = v
	}
	t.Rows = append(t.Rows, row)
	out := row.Clone()
	return &out, nil
}

func (r *memoryTableRepository) UpdateRow(ctx context.Context, tableID uuid.UUID, rowID string, values map[string]any) (*models.Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[tableID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	for i := range t.Rows {
		if t.Rows[i].ID != rowID {
			continue
		}
		merged := t.Rows[i].Clone()
		for k, v := range values {
			merged.Values[k] = v
		}
		t.Rows[i] = merged
		out := merged.Clone()
		return &out, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *memoryTableRepository) DeleteRows(ctx context.Context, tableID uuid.UUID, rowIDs []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[tableID]
	if !ok {
		return 0, apperrors.ErrNotFound
	}
	drop := make(map[string]struct{}, len(rowIDs))
	for _, id := range rowIDs {
		drop[id] = struct{}{}
	}
	kept := t.Rows[:0:0]
	for _, row := range t.Rows {
		if _, ok := drop[row.ID]; !ok {
			kept = append(kept, row)
		}
	}
	deleted := len(t.Rows) - len(kept)
	t.Rows = kept
	return deleted, nil
}

func cloneTable(t *models.Table) *models.Table {
	c := *t
	c.Columns = cloneColumns(t.Columns)
	c.Rows = cloneRows(t.Rows)
	return &c
}

func cloneColumns(cols []models.ColumnDefinition) []models.ColumnDefinition {
	out := make([]models.ColumnDefinition, len(cols))
	for i, col := range cols {
		out[i] = col
		if col.Options != nil {
			out[i].Options = append([]models.TagOption(nil), col.Options...)
		}
	}
	return out
}

func cloneRows(rows []models.Row) []models.Row {
	out := make([]models.Row, len(rows))
	for i, row := range rows {
		out[i] = row.Clone()
	}
	return out
}
