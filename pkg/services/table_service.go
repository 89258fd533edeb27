package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/repositories"
)

// CreateTableRequest is the input of the table creation wizard.
type CreateTableRequest struct {
	OrgID       uuid.UUID                 `json:"-"`
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Columns     []models.ColumnDefinition `json:"columns"`
}

// TableService manages tables and rows with input validation.
type TableService interface {
	CreateTable(ctx context.Context, req CreateTableRequest) (*models.Table, error)
	GetTable(ctx context.Context, tableID uuid.UUID) (*models.Table, error)
	ListTables(ctx context.Context, orgID uuid.UUID) ([]*models.Table, error)
	DeleteTable(ctx context.Context, tableID uuid.UUID) error

	AddRow(ctx context.Context, tableID uuid.UUID, values map[string]any) (*models.Row, error)
	UpdateRow(ctx context.Context, tableID uuid.UUID, rowID string, values map[string]any) (*models.Row, error)
	DeleteRows(ctx context.Context, tableID uuid.UUID, rowIDs []string) (int, error)
}

type tableService struct {
	store  repositories.TableRepository
	logger *zap.Logger
}

// NewTableService creates a table service.
func NewTableService(store repositories.TableRepository, logger *zap.Logger) TableService {
	return &tableService{
		store:  store,
		logger: logger.Named("table-service"),
	}
}

var _ TableService = (*tableService)(nil)

func (s *tableService) CreateTable(ctx context.Context, req CreateTableRequest) (*models.Table, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name", "table name is required")
	}
	if req.OrgID == uuid.Nil {
		return nil, apperrors.NewValidationError("org_id", "organization is required")
	}

	cols, err := normalizeColumns(req.Columns)
	if err != nil {
		return nil, err
	}

	if _, ok := ResolveCompanyKeyColumn(cols); !ok {
		s.logger.Warn("Table has no company key column; enrichment will be refused",
			zap.String("name", name))
	}

	table := &models.Table{
		OrgID:       req.OrgID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Columns:     cols,
	}
	if err := s.store.CreateTable(ctx, table); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}

	s.logger.Info("Table created",
		zap.String("table_id", table.ID.String()),
		zap.String("org_id", table.OrgID.String()),
		zap.Int("columns", len(cols)))
	return table, nil
}

// normalizeColumns assigns ids and order and rejects invalid definitions.
func normalizeColumns(in []models.ColumnDefinition) ([]models.ColumnDefinition, error) {
	if len(in) == 0 {
		return nil, apperrors.NewValidationError("columns", "at least one column is required")
	}

	out := make([]models.ColumnDefinition, 0, len(in))
	ids := map[string]bool{}
	for i, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, apperrors.NewValidationError("columns", fmt.Sprintf("column %d has no name", i+1))
		}
		if c.Type == "" {
			c.Type = models.ColumnTypeText
		}
		if !c.Type.IsValid() {
			return nil, apperrors.NewValidationError("columns", fmt.Sprintf("column %q has invalid type %q", c.Name, c.Type))
		}

		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			c.ID = columnSlug(c.Name, i)
		}
		if ids[c.ID] {
			return nil, apperrors.NewValidationError("columns", fmt.Sprintf("duplicate column id %q", c.ID))
		}
		ids[c.ID] = true
		c.Order = i

		options := c.Options
		c.Options = nil
		if c.Type == models.ColumnTypeTag {
			for _, opt := range options {
				if err := c.AddTagOption(opt); err != nil {
					return nil, apperrors.NewValidationError("columns", err.Error())
				}
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// columnSlug derives an id from an ASCII column name, e.g. "Company Name" ->
// "company_name". Names without ASCII letters get a positional id.
func columnSlug(name string, index int) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore && b.Len() > 0:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		return fmt.Sprintf("col_%d", index+1)
	}
	return slug
}

func (s *tableService) GetTable(ctx context.Context, tableID uuid.UUID) (*models.Table, error) {
	return s.store.GetTable(ctx, tableID)
}

func (s *tableService) ListTables(ctx context.Context, orgID uuid.UUID) ([]*models.Table, error) {
	return s.store.ListTables(ctx, orgID)
}

func (s *tableService) DeleteTable(ctx context.Context, tableID uuid.UUID) error {
	if err := s.store.DeleteTable(ctx, tableID); err != nil {
		return err
	}
	s.logger.Info("Table deleted", zap.String("table_id", tableID.String()))
	return nil
}

func (s *tableService) AddRow(ctx context.Context, tableID uuid.UUID, values map[string]any) (*models.Row, error) {
	if err := s.checkRowKeys(ctx, tableID, values); err != nil {
		return nil, err
	}
	return s.store.CreateRow(ctx, tableID, values)
}

func (s *tableService) UpdateRow(ctx context.Context, tableID uuid.UUID, rowID string, values map[string]any) (*models.Row, error) {
	if len(values) == 0 {
		return nil, apperrors.NewValidationError("values", "no values to update")
	}
	if err := s.checkRowKeys(ctx, tableID, values); err != nil {
		return nil, err
	}
	return s.store.UpdateRow(ctx, tableID, rowID, values)
}

func (s *tableService) DeleteRows(ctx context.Context, tableID uuid.UUID, rowIDs []string) (int, error) {
	if len(rowIDs) == 0 {
		return 0, apperrors.NewValidationError("row_ids", "no rows selected")
	}
	return s.store.DeleteRows(ctx, tableID, rowIDs)
}

// checkRowKeys rejects values keyed by anything but a column id.
func (s *tableService) checkRowKeys(ctx context.Context, tableID uuid.UUID, values map[string]any) error {
	table, err := s.store.GetTable(ctx, tableID)
	if err != nil {
		return err
	}
	for k := range values {
		found := false
		for _, c := range table.Columns {
			if c.ID == k {
				found = true
				break
			}
		}
		if !found {
			return apperrors.NewValidationError("values", fmt.Sprintf("unknown column %q", k))
		}
	}
	return nil
}
