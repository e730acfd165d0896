package domain

import (
	"strings"
	"time"
)

// Budget is a per-month cap in cents. An empty CategoryID is the overall
// monthly expense budget; rows are unique on (Month, CategoryID).
type Budget struct {
	Month       string `json:"month"` // YYYY-MM
	CategoryID  string `json:"category_id"`
	BudgetCents int64  `json:"budget_cents"`
}

// ValidMonth reports whether m is a well-formed YYYY-MM month.
func ValidMonth(m string) bool {
	_, err := time.Parse("2006-01", strings.TrimSpace(m))
	return err == nil
}

// NormalizeText trims and collapses internal whitespace, lowercased, for
// name grouping and duplicate keys.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
