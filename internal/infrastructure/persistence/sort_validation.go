package persistence

import (
	"strings"

	"github.com/erp/ledger/internal/domain/shared"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// orderClause builds a whitelisted ORDER BY with id as tie breaker so pages
// are stable
func orderClause(filter shared.Filter, allowed map[string]bool, defaultField string) string {
	field := ValidateSortField(filter.OrderBy, allowed, defaultField)
	dir := ValidateSortOrder(filter.OrderDir)
	if field == "id" {
		return "id " + dir
	}
	return field + " " + dir + ", id " + dir
}

// DocumentSortFields contains allowed sort fields for financial documents
var DocumentSortFields = map[string]bool{
	"id":                true,
	"created_at":        true,
	"updated_at":        true,
	"number":            true,
	"status":            true,
	"document_date":     true,
	"due_date":          true,
	"gross_amount":      true,
	"counterparty_name": true,
	"posted_at":         true,
}

// OpenItemSortFields contains allowed sort fields for open items
var OpenItemSortFields = map[string]bool{
	"id":               true,
	"created_at":       true,
	"document_number":  true,
	"document_date":    true,
	"due_date":         true,
	"remaining_amount": true,
	"original_amount":  true,
	"status":           true,
}

// TemplateSortFields contains allowed sort fields for recurring templates
var TemplateSortFields = map[string]bool{
	"id":            true,
	"created_at":    true,
	"updated_at":    true,
	"name":          true,
	"status":        true,
	"frequency":     true,
	"next_run_date": true,
	"run_count":     true,
}

// ExecutionSortFields contains allowed sort fields for recurring executions
var ExecutionSortFields = map[string]bool{
	"executed_at":  true,
	"posting_date": true,
	"run_number":   true,
}
