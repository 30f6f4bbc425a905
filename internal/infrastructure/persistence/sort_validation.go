package persistence

import (
	"strings"
)

// SortDescending reports whether a client-supplied direction asks for
// descending order. Anything other than "asc" sorts newest first.
func SortDescending(dir string) bool {
	return !strings.EqualFold(strings.TrimSpace(dir), "asc")
}

// ValidateSortField returns sortField when it is whitelisted in allowed and
// defaultField otherwise. Field names are matched exactly.
func ValidateSortField(sortField string, allowed map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed != "" && allowed[trimmed] {
		return trimmed
	}
	return defaultField
}

// ClientSortFields are the client columns a listing may sort on
var ClientSortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"full_name":  true,
	"status":     true,
}
