package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/domain"
	"github.com/dvloznov/budget-backend/internal/storage"
)

const timestampLayout = time.RFC3339

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y", "t":
		return true
	}
	return false
}

func formatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func parseTimestamp(v string) time.Time {
	t, err := time.Parse(timestampLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

func categoryFromRow(row storage.Row) (domain.Category, error) {
	id := strings.TrimSpace(row["id"])
	if id == "" {
		return domain.Category{}, apperr.CorruptCollection("category row has no id")
	}
	kind := domain.Kind(strings.TrimSpace(row["kind"]))
	if !domain.ValidKind(kind) {
		return domain.Category{}, apperr.CorruptCollection(
			fmt.Sprintf("category %s has unknown kind %q", id, row["kind"]))
	}
	return domain.Category{
		ID:        id,
		Name:      row["name"],
		Kind:      kind,
		ParentID:  strings.TrimSpace(row["parent_id"]),
		Active:    parseBool(row["active"]),
		CreatedAt: parseTimestamp(row["created_at"]),
		UpdatedAt: parseTimestamp(row["updated_at"]),
	}, nil
}

func categoryToRow(c domain.Category) storage.Row {
	return storage.Row{
		"id":         c.ID,
		"name":       c.Name,
		"kind":       string(c.Kind),
		"parent_id":  c.ParentID,
		"active":     formatBool(c.Active),
		"created_at": formatTimestamp(c.CreatedAt),
		"updated_at": formatTimestamp(c.UpdatedAt),
	}
}

func transactionFromRow(row storage.Row) (domain.Transaction, error) {
	id := strings.TrimSpace(row["id"])
	if id == "" {
		return domain.Transaction{}, apperr.CorruptCollection("transaction row has no id")
	}
	date, err := civil.ParseDate(strings.TrimSpace(row["date"]))
	if err != nil {
		return domain.Transaction{}, apperr.CorruptCollection(
			fmt.Sprintf("transaction %s has invalid date %q", id, row["date"]))
	}
	cents, err := strconv.ParseInt(strings.TrimSpace(row["amount_cents"]), 10, 64)
	if err != nil {
		return domain.Transaction{}, apperr.CorruptCollection(
			fmt.Sprintf("transaction %s has non-numeric amount %q", id, row["amount_cents"]))
	}

	t := domain.Transaction{
		ID:          id,
		Date:        date,
		AmountCents: cents,
		CategoryID:  strings.TrimSpace(row["category_id"]),
		Merchant:    row["merchant"],
		Notes:       row["notes"],
		CreatedAt:   parseTimestamp(row["created_at"]),
		UpdatedAt:   parseTimestamp(row["updated_at"]),
		Deleted:     parseBool(row["deleted"]),
	}
	for col, v := range row {
		if strings.HasPrefix(col, domain.ExtrasPrefix) && v != "" {
			if t.Extras == nil {
				t.Extras = map[string]string{}
			}
			t.Extras[col] = v
		}
	}
	return t, nil
}

func transactionToRow(t domain.Transaction) storage.Row {
	row := storage.Row{
		"id":           t.ID,
		"date":         t.Date.String(),
		"amount_cents": strconv.FormatInt(t.AmountCents, 10),
		"category_id":  t.CategoryID,
		"merchant":     t.Merchant,
		"notes":        t.Notes,
		"created_at":   formatTimestamp(t.CreatedAt),
		"updated_at":   formatTimestamp(t.UpdatedAt),
		"deleted":      formatBool(t.Deleted),
	}
	for col, v := range t.Extras {
		if strings.HasPrefix(col, domain.ExtrasPrefix) {
			row[col] = v
		}
	}
	return row
}

func budgetFromRow(row storage.Row) (domain.Budget, error) {
	month := strings.TrimSpace(row["month"])
	if !domain.ValidMonth(month) {
		return domain.Budget{}, apperr.CorruptCollection(
			fmt.Sprintf("budget row has invalid month %q", row["month"]))
	}
	cents, err := strconv.ParseInt(strings.TrimSpace(row["budget_cents"]), 10, 64)
	if err != nil {
		return domain.Budget{}, apperr.CorruptCollection(
			fmt.Sprintf("budget row for %s has non-numeric amount %q", month, row["budget_cents"]))
	}
	return domain.Budget{
		Month:       month,
		CategoryID:  strings.TrimSpace(row["category_id"]),
		BudgetCents: cents,
	}, nil
}

func budgetToRow(b domain.Budget) storage.Row {
	return storage.Row{
		"month":        b.Month,
		"category_id":  b.CategoryID,
		"budget_cents": strconv.FormatInt(b.BudgetCents, 10),
	}
}
