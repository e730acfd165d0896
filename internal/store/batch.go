package store

import (
	"context"

	"github.com/dvloznov/budget-backend/internal/domain"
)

// LiveTransactionKeys returns the duplicate-detection keys of every
// non-deleted transaction. The importer matches candidates against this set.
func (s *Store) LiveTransactionKeys() map[domain.DupKey]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[domain.DupKey]bool, len(s.transactions))
	for _, t := range s.transactions {
		if t.Deleted {
			continue
		}
		keys[t.Key()] = true
	}
	return keys
}

// ApplyImport commits an import batch: all new categories first, then all
// new transactions, as two collection writes under a single critical
// section. If the transaction write fails the categories stay written; the
// import is not transactional across the two collections.
func (s *Store) ApplyImport(ctx context.Context, cats []domain.Category, txs []domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(cats) > 0 {
		next := append(append([]domain.Category(nil), s.categories...), cats...)
		if err := s.persistCategories(ctx, next); err != nil {
			return err
		}
	}
	if len(txs) > 0 {
		next := append(append([]domain.Transaction(nil), s.transactions...), txs...)
		if err := s.persistTransactions(ctx, next); err != nil {
			return err
		}
	}
	return nil
}
