package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/domain"
)

// TransactionFilter narrows and pages ListTransactions. Zero values mean
// "no constraint".
type TransactionFilter struct {
	From        *civil.Date
	To          *civil.Date
	CategoryIDs []string
	Query       string // substring match on merchant or notes
	MinAmount   *int64
	MaxAmount   *int64
	Sort        string // date | amount_cents | created_at | updated_at
	Order       string // asc | desc (default desc)
	Limit       int    // clamped to [1, 1000], default 100
	Offset      int
}

// TransactionPage is one page of filtered results plus the unpaged total.
type TransactionPage struct {
	Items  []domain.Transaction `json:"items"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// TransactionPatch carries the updatable transaction fields.
type TransactionPatch struct {
	Date        *civil.Date `json:"date"`
	AmountCents *int64      `json:"amount_cents"`
	CategoryID  *string     `json:"category_id"`
	Merchant    *string     `json:"merchant"`
	Notes       *string     `json:"notes"`
}

// ListTransactions filters, sorts and pages the live (non-deleted) set.
func (s *Store) ListTransactions(f TransactionFilter) TransactionPage {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	catSet := map[string]bool{}
	for _, id := range f.CategoryIDs {
		if id = strings.TrimSpace(id); id != "" {
			catSet[id] = true
		}
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))

	matched := make([]domain.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		if t.Deleted {
			continue
		}
		if f.From != nil && t.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && t.Date.After(*f.To) {
			continue
		}
		if len(catSet) > 0 && !catSet[t.CategoryID] {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(t.Merchant), query) &&
			!strings.Contains(strings.ToLower(t.Notes), query) {
			continue
		}
		if f.MinAmount != nil && t.AmountCents < *f.MinAmount {
			continue
		}
		if f.MaxAmount != nil && t.AmountCents > *f.MaxAmount {
			continue
		}
		matched = append(matched, t)
	}

	asc := strings.EqualFold(f.Order, "asc")
	less := transactionLess(f.Sort)
	sort.SliceStable(matched, func(i, j int) bool {
		if asc {
			return less(matched[i], matched[j])
		}
		return less(matched[j], matched[i])
	})

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return TransactionPage{
		Items:  append([]domain.Transaction(nil), matched[offset:end]...),
		Total:  total,
		Limit:  limit,
		Offset: f.Offset,
	}
}

func transactionLess(field string) func(a, b domain.Transaction) bool {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "amount_cents", "amountcents":
		return func(a, b domain.Transaction) bool { return a.AmountCents < b.AmountCents }
	case "created_at", "createdat":
		return func(a, b domain.Transaction) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "updated_at", "updatedat":
		return func(a, b domain.Transaction) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	default:
		return func(a, b domain.Transaction) bool { return a.Date.Before(b.Date) }
	}
}

// GetTransaction looks up a live transaction by id.
func (s *Store) GetTransaction(id string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.transactions {
		if t.ID == id && !t.Deleted {
			return t, nil
		}
	}
	return domain.Transaction{}, apperr.NotFound("Transaction not found").
		WithDetails(map[string]interface{}{"id": id})
}

// CreateTransaction validates and persists a new transaction. The amount
// sign must be consistent with the referenced category's kind at write time.
func (s *Store) CreateTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	if t.CategoryID == "" {
		return domain.Transaction{}, apperr.Validation("category_id is required")
	}
	if !t.Date.IsValid() {
		return domain.Transaction{}, apperr.Validation("date is required")
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cat, ok := s.categoryByIDLocked(t.CategoryID)
	if !ok {
		return domain.Transaction{}, apperr.Validation("Unknown category_id").
			WithDetails(map[string]interface{}{"category_id": t.CategoryID})
	}
	if !domain.AmountSignOK(cat.Kind, t.AmountCents) {
		return domain.Transaction{}, apperr.Validation(
			"amount sign is inconsistent with the category kind").
			WithDetails(map[string]interface{}{
				"kind":         string(cat.Kind),
				"amount_cents": t.AmountCents,
			})
	}
	for _, existing := range s.transactions {
		if existing.ID == t.ID {
			return domain.Transaction{}, apperr.Conflict("Transaction id already exists").
				WithDetails(map[string]interface{}{"id": t.ID})
		}
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Deleted = false

	next := append(append([]domain.Transaction(nil), s.transactions...), t)
	if err := s.persistTransactions(ctx, next); err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

// UpdateTransaction applies a patch to a live transaction. The sign/kind
// constraint is re-checked against the effective category and amount.
func (s *Store) UpdateTransaction(ctx context.Context, id string, patch TransactionPatch) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, t := range s.transactions {
		if t.ID == id && !t.Deleted {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Transaction{}, apperr.NotFound("Transaction not found").
			WithDetails(map[string]interface{}{"id": id})
	}

	next := append([]domain.Transaction(nil), s.transactions...)
	t := next[idx]

	if patch.CategoryID != nil {
		if *patch.CategoryID == "" {
			return domain.Transaction{}, apperr.Validation("category_id cannot be empty")
		}
		t.CategoryID = *patch.CategoryID
	}
	if patch.Date != nil {
		if !patch.Date.IsValid() {
			return domain.Transaction{}, apperr.Validation("invalid date")
		}
		t.Date = *patch.Date
	}
	if patch.AmountCents != nil {
		t.AmountCents = *patch.AmountCents
	}
	if patch.Merchant != nil {
		t.Merchant = *patch.Merchant
	}
	if patch.Notes != nil {
		t.Notes = *patch.Notes
	}

	cat, ok := s.categoryByIDLocked(t.CategoryID)
	if !ok {
		return domain.Transaction{}, apperr.Validation("Unknown category_id").
			WithDetails(map[string]interface{}{"category_id": t.CategoryID})
	}
	if !domain.AmountSignOK(cat.Kind, t.AmountCents) {
		return domain.Transaction{}, apperr.Validation(
			"amount sign is inconsistent with the category kind").
			WithDetails(map[string]interface{}{
				"kind":         string(cat.Kind),
				"amount_cents": t.AmountCents,
			})
	}

	t.UpdatedAt = time.Now().UTC()
	next[idx] = t

	if err := s.persistTransactions(ctx, next); err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

// DeleteTransaction soft-deletes: the row stays in the collection file with
// deleted=true and drops out of listings and duplicate keys.
func (s *Store) DeleteTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, t := range s.transactions {
		if t.ID == id && !t.Deleted {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Transaction{}, apperr.NotFound("Transaction not found").
			WithDetails(map[string]interface{}{"id": id})
	}

	next := append([]domain.Transaction(nil), s.transactions...)
	next[idx].Deleted = true
	next[idx].UpdatedAt = time.Now().UTC()

	if err := s.persistTransactions(ctx, next); err != nil {
		return domain.Transaction{}, err
	}
	return next[idx], nil
}
