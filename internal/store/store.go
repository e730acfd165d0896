// Package store is the in-memory record store backed by the collection
// files. It owns the in-memory truth while the process runs: reads are pure
// lookups, every mutation persists the full collection through the durable
// writer and swaps the in-memory set only after the disk write succeeds.
package store

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/domain"
	"github.com/dvloznov/budget-backend/internal/storage"
)

// Store holds all record collections. Mutations are mutually exclusive;
// reads may proceed concurrently and never observe a half-applied mutation.
type Store struct {
	mu  sync.RWMutex
	w   *storage.Writer
	log zerolog.Logger

	categories   []domain.Category
	transactions []domain.Transaction
	budgets      []domain.Budget
}

// Open loads every collection from disk. The schema migrator must have run
// first; rows that still fail to parse are corrupt, not unmigrated.
func Open(w *storage.Writer, log zerolog.Logger) (*Store, error) {
	s := &Store{w: w, log: log}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads every collection from disk, replacing the in-memory sets.
// Called at startup and after a sync pull rewrites local files.
func (s *Store) Reload() error {
	cats, err := loadCategories(s.w)
	if err != nil {
		return err
	}
	txs, err := loadTransactions(s.w)
	if err != nil {
		return err
	}
	buds, err := loadBudgets(s.w)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.categories = cats
	s.transactions = txs
	s.budgets = buds
	s.mu.Unlock()

	s.log.Info().
		Int("categories", len(cats)).
		Int("transactions", len(txs)).
		Int("budgets", len(buds)).
		Msg("Collections loaded")
	return nil
}

func loadCategories(w *storage.Writer) ([]domain.Category, error) {
	rows, err := storage.ReadCollection(w.CollectionPath(storage.CategoriesSpec), storage.CategoriesSpec)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(rows))
	for _, row := range rows {
		c, err := categoryFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func loadTransactions(w *storage.Writer) ([]domain.Transaction, error) {
	rows, err := storage.ReadCollection(w.CollectionPath(storage.TransactionsSpec), storage.TransactionsSpec)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := transactionFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func loadBudgets(w *storage.Writer) ([]domain.Budget, error) {
	rows, err := storage.ReadCollection(w.CollectionPath(storage.BudgetsSpec), storage.BudgetsSpec)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Budget, 0, len(rows))
	for _, row := range rows {
		b, err := budgetFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// persistCategories writes the given set and swaps it in on success.
// Callers must hold s.mu.
func (s *Store) persistCategories(ctx context.Context, next []domain.Category) error {
	rows := make([]storage.Row, len(next))
	for i, c := range next {
		rows[i] = categoryToRow(c)
	}
	if err := s.w.WriteCollection(ctx, storage.CategoriesSpec, rows); err != nil {
		return err
	}
	s.categories = next
	return nil
}

// persistTransactions writes the given set and swaps it in on success.
// Callers must hold s.mu.
func (s *Store) persistTransactions(ctx context.Context, next []domain.Transaction) error {
	rows := make([]storage.Row, len(next))
	for i, t := range next {
		rows[i] = transactionToRow(t)
	}
	if err := s.w.WriteCollection(ctx, storage.TransactionsSpec, rows); err != nil {
		return err
	}
	s.transactions = next
	return nil
}

// persistBudgets writes the given set and swaps it in on success.
// Callers must hold s.mu.
func (s *Store) persistBudgets(ctx context.Context, next []domain.Budget) error {
	rows := make([]storage.Row, len(next))
	for i, b := range next {
		rows[i] = budgetToRow(b)
	}
	if err := s.w.WriteCollection(ctx, storage.BudgetsSpec, rows); err != nil {
		return err
	}
	s.budgets = next
	return nil
}
