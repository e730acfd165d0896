package store

import (
	"context"

	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/domain"
)

// GetBudget returns the budget for (month, categoryID), where an empty
// categoryID is the overall monthly budget. The second return is false when
// no row exists.
func (s *Store) GetBudget(month, categoryID string) (domain.Budget, bool, error) {
	if !domain.ValidMonth(month) {
		return domain.Budget{}, false, apperr.Validation("Invalid month format (expected YYYY-MM)").
			WithDetails(map[string]interface{}{"month": month})
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Last row wins if the file carries duplicates; upsert de-dupes.
	found := false
	var out domain.Budget
	for _, b := range s.budgets {
		if b.Month == month && b.CategoryID == categoryID {
			out = b
			found = true
		}
	}
	return out, found, nil
}

// UpsertBudget replaces the budget row for (month, categoryID).
func (s *Store) UpsertBudget(ctx context.Context, b domain.Budget) (domain.Budget, error) {
	if !domain.ValidMonth(b.Month) {
		return domain.Budget{}, apperr.Validation("Invalid month format (expected YYYY-MM)").
			WithDetails(map[string]interface{}{"month": b.Month})
	}
	if b.BudgetCents < 0 {
		return domain.Budget{}, apperr.Validation("budget_cents must be non-negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b.CategoryID != "" {
		if _, ok := s.categoryByIDLocked(b.CategoryID); !ok {
			return domain.Budget{}, apperr.Validation("Unknown category_id").
				WithDetails(map[string]interface{}{"category_id": b.CategoryID})
		}
	}

	next := make([]domain.Budget, 0, len(s.budgets)+1)
	for _, existing := range s.budgets {
		if existing.Month == b.Month && existing.CategoryID == b.CategoryID {
			continue
		}
		next = append(next, existing)
	}
	next = append(next, b)

	if err := s.persistBudgets(ctx, next); err != nil {
		return domain.Budget{}, err
	}
	return b, nil
}

// DeleteBudget removes the budget row for (month, categoryID). It reports
// whether a row was actually removed.
func (s *Store) DeleteBudget(ctx context.Context, month, categoryID string) (bool, error) {
	if !domain.ValidMonth(month) {
		return false, apperr.Validation("Invalid month format (expected YYYY-MM)").
			WithDetails(map[string]interface{}{"month": month})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]domain.Budget, 0, len(s.budgets))
	removed := false
	for _, b := range s.budgets {
		if b.Month == month && b.CategoryID == categoryID {
			removed = true
			continue
		}
		next = append(next, b)
	}
	if !removed {
		return false, nil
	}
	if err := s.persistBudgets(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}
