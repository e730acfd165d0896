package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/domain"
)

// maxNameLen caps category names, matching the importer's truncation.
const maxNameLen = 200

// CategoryPatch carries the updatable category fields. Nil means "leave
// unchanged"; ParentID set to an empty string clears the parent.
type CategoryPatch struct {
	Name     *string `json:"name"`
	ParentID *string `json:"parent_id"`
	Active   *bool   `json:"active"`
}

// ListCategories returns all categories in file order.
func (s *Store) ListCategories() []domain.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Category(nil), s.categories...)
}

// GetCategory looks up a category by id.
func (s *Store) GetCategory(id string) (domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.ID == id {
			return c, nil
		}
	}
	return domain.Category{}, apperr.NotFound("Category not found").
		WithDetails(map[string]interface{}{"id": id})
}

// CreateCategory validates and persists a new category. A missing ID is
// assigned; Kind is immutable afterwards.
func (s *Store) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	if c.Name == "" {
		return domain.Category{}, apperr.Validation("name is required")
	}
	if len(c.Name) > maxNameLen {
		c.Name = c.Name[:maxNameLen]
	}
	if !domain.ValidKind(c.Kind) {
		return domain.Category{}, apperr.Validation(
			fmt.Sprintf("kind must be %q or %q", domain.KindExpense, domain.KindIncome))
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.categoryIndexLocked(c.ID) >= 0 {
		return domain.Category{}, apperr.Conflict("Category id already exists").
			WithDetails(map[string]interface{}{"id": c.ID})
	}
	if c.ParentID != "" {
		parent, ok := s.categoryByIDLocked(c.ParentID)
		if !ok {
			return domain.Category{}, apperr.Validation("Unknown parent_id").
				WithDetails(map[string]interface{}{"parent_id": c.ParentID})
		}
		if parent.Kind != c.Kind {
			return domain.Category{}, apperr.Validation("parent category has a different kind")
		}
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	next := append(append([]domain.Category(nil), s.categories...), c)
	if err := s.persistCategories(ctx, next); err != nil {
		return domain.Category{}, err
	}
	return c, nil
}

// UpdateCategory applies a patch. Kind cannot change. A parent change is
// rejected when it would introduce a cycle, leaving the tree unchanged.
func (s *Store) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.categoryIndexLocked(id)
	if idx < 0 {
		return domain.Category{}, apperr.NotFound("Category not found").
			WithDetails(map[string]interface{}{"id": id})
	}

	next := append([]domain.Category(nil), s.categories...)
	c := next[idx]

	if patch.Name != nil {
		if *patch.Name == "" {
			return domain.Category{}, apperr.Validation("name cannot be empty")
		}
		c.Name = *patch.Name
		if len(c.Name) > maxNameLen {
			c.Name = c.Name[:maxNameLen]
		}
	}
	if patch.ParentID != nil {
		newParent := *patch.ParentID
		if newParent != "" {
			if newParent == id {
				return domain.Category{}, apperr.Validation("category cannot be its own parent")
			}
			parent, ok := s.categoryByIDLocked(newParent)
			if !ok {
				return domain.Category{}, apperr.Validation("Unknown parent_id").
					WithDetails(map[string]interface{}{"parent_id": newParent})
			}
			if parent.Kind != c.Kind {
				return domain.Category{}, apperr.Validation("parent category has a different kind")
			}
			if s.wouldCycleLocked(id, newParent) {
				return domain.Category{}, apperr.Validation("parent change would create a cycle").
					WithDetails(map[string]interface{}{"id": id, "parent_id": newParent})
			}
		}
		c.ParentID = newParent
	}
	if patch.Active != nil {
		c.Active = *patch.Active
	}

	c.UpdatedAt = time.Now().UTC()
	next[idx] = c

	if err := s.persistCategories(ctx, next); err != nil {
		return domain.Category{}, err
	}
	return c, nil
}

// DeleteCategory removes a category after reassigning its referencing
// transactions and budgets to reassignTo, which must exist and share the
// deleted category's kind. Children of the deleted category become roots.
func (s *Store) DeleteCategory(ctx context.Context, id, reassignTo string) error {
	if id == "" {
		return apperr.Validation("category id is required")
	}
	if reassignTo == "" {
		return apperr.Validation("reassignTo is required")
	}
	if reassignTo == id {
		return apperr.Validation("reassignTo cannot equal the deleted category")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	victim, ok := s.categoryByIDLocked(id)
	if !ok {
		return apperr.NotFound("Category not found").
			WithDetails(map[string]interface{}{"id": id})
	}
	target, ok := s.categoryByIDLocked(reassignTo)
	if !ok {
		return apperr.Validation("Unknown reassignTo category").
			WithDetails(map[string]interface{}{"reassignTo": reassignTo})
	}
	if victim.Kind != target.Kind {
		return apperr.Validation("reassignTo kind mismatch").
			WithDetails(map[string]interface{}{
				"category_kind":   string(victim.Kind),
				"reassignTo_kind": string(target.Kind),
			})
	}

	now := time.Now().UTC()

	// Reassign transactions, deleted ones included, to keep history consistent.
	txChanged := false
	nextTx := append([]domain.Transaction(nil), s.transactions...)
	for i := range nextTx {
		if nextTx[i].CategoryID == id {
			nextTx[i].CategoryID = reassignTo
			nextTx[i].UpdatedAt = now
			txChanged = true
		}
	}
	if txChanged {
		if err := s.persistTransactions(ctx, nextTx); err != nil {
			return err
		}
	}

	budChanged := false
	nextBud := append([]domain.Budget(nil), s.budgets...)
	for i := range nextBud {
		if nextBud[i].CategoryID == id {
			nextBud[i].CategoryID = reassignTo
			budChanged = true
		}
	}
	if budChanged {
		if err := s.persistBudgets(ctx, nextBud); err != nil {
			return err
		}
	}

	nextCat := make([]domain.Category, 0, len(s.categories)-1)
	for _, c := range s.categories {
		if c.ID == id {
			continue
		}
		if c.ParentID == id {
			c.ParentID = ""
			c.UpdatedAt = now
		}
		nextCat = append(nextCat, c)
	}
	return s.persistCategories(ctx, nextCat)
}

func (s *Store) categoryIndexLocked(id string) int {
	for i, c := range s.categories {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) categoryByIDLocked(id string) (domain.Category, bool) {
	if i := s.categoryIndexLocked(id); i >= 0 {
		return s.categories[i], true
	}
	return domain.Category{}, false
}

// wouldCycleLocked reports whether making newParent the parent of id closes
// a loop, i.e. id is an ancestor of newParent.
func (s *Store) wouldCycleLocked(id, newParent string) bool {
	seen := map[string]bool{}
	cur := newParent
	for cur != "" && !seen[cur] {
		if cur == id {
			return true
		}
		seen[cur] = true
		p, ok := s.categoryByIDLocked(cur)
		if !ok {
			return false
		}
		cur = p.ParentID
	}
	return false
}
