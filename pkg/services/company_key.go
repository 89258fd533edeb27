package services

import (
	"strings"

	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/prompts"
)

// CompanyKeyColumnID is the reserved id of the join key column.
const CompanyKeyColumnID = "company_name"

// ResolveCompanyKeyColumn picks the column that identifies the entity of each
// row. The reserved id wins; otherwise the first column in definition order
// whose name contains a key keyword. Returns false when nothing matches.
func ResolveCompanyKeyColumn(columns []models.ColumnDefinition) (*models.ColumnDefinition, bool) {
	for i := range columns {
		if columns[i].ID == CompanyKeyColumnID {
			return &columns[i], true
		}
	}

	keywords := prompts.DefaultKeywords().KeyColumnKeywords
	for i := range columns {
		name := strings.ToLower(columns[i].Name)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
				return &columns[i], true
			}
		}
	}
	return nil, false
}
