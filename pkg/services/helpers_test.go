package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-crm/pkg/llm"
	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/repositories"
)

func companyColumns() []models.ColumnDefinition {
	return []models.ColumnDefinition{
		{ID: "company_name", Name: "Company", Type: models.ColumnTypeText, Order: 0},
		{ID: "ceo", Name: "CEO", Type: models.ColumnTypeText, Order: 1},
		{ID: "revenue", Name: "Revenue", Type: models.ColumnTypeNumber, Order: 2},
	}
}

// seedTable stores a table with the given rows and returns it with row ids.
func seedTable(t *testing.T, repo repositories.TableRepository, cols []models.ColumnDefinition, rows ...map[string]any) *models.Table {
	t.Helper()
	table := &models.Table{OrgID: uuid.New(), Name: "Companies", Columns: cols}
	for _, values := range rows {
		table.Rows = append(table.Rows, models.Row{Values: values})
	}
	require.NoError(t, repo.CreateTable(context.Background(), table))
	return table
}

// memTable builds an unsaved table with sequential row ids r1, r2, ...
func memTable(cols []models.ColumnDefinition, rows ...map[string]any) *models.Table {
	table := &models.Table{ID: uuid.New(), Name: "Companies", Columns: cols}
	for i, values := range rows {
		table.Rows = append(table.Rows, models.Row{ID: "r" + string(rune('1'+i)), Values: values})
	}
	return table
}

func rowIDs(rows []models.Row) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

// promptKind names the prompt a gateway call was made with.
func promptKind(prompt string) string {
	switch {
	case strings.Contains(prompt, "# Source Discovery"):
		return "discovery"
	case strings.Contains(prompt, "# Field Extraction"):
		return "extraction"
	case strings.Contains(prompt, "# Financial Figure Lookup"):
		return "financial"
	case strings.Contains(prompt, "# Customer Fit Classification"):
		return "fit"
	case strings.Contains(prompt, "# Table Request Classification"):
		return "intent"
	case strings.Contains(prompt, " List\n"):
		return "names"
	}
	return "unknown"
}

func callsOfKind(m *llm.MockGateway, kind string) int {
	return m.CountWhere(func(c llm.MockCall) bool { return promptKind(c.Prompt) == kind })
}

// progressLog records batch progress in call order.
type progressLog struct {
	mu     sync.Mutex
	events []models.BatchProgress
}

func (p *progressLog) record(ev models.BatchProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *progressLog) all() []models.BatchProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.BatchProgress, len(p.events))
	copy(out, p.events)
	return out
}
