package store

import (
	"context"
	"testing"

	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/domain"
)

func TestBudgetMonthValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, month := range []string{"", "2024", "2024-13", "March 2024"} {
		if _, _, err := s.GetBudget(month, ""); !apperr.IsCode(err, apperr.CodeValidation) {
			t.Errorf("GetBudget(%q) error = %v, want %s", month, err, apperr.CodeValidation)
		}
		if _, err := s.UpsertBudget(ctx, domain.Budget{Month: month, BudgetCents: 100}); !apperr.IsCode(err, apperr.CodeValidation) {
			t.Errorf("UpsertBudget(%q) error = %v, want %s", month, err, apperr.CodeValidation)
		}
		if _, err := s.DeleteBudget(ctx, month, ""); !apperr.IsCode(err, apperr.CodeValidation) {
			t.Errorf("DeleteBudget(%q) error = %v, want %s", month, err, apperr.CodeValidation)
		}
	}
}

func TestUpsertBudgetValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertBudget(ctx, domain.Budget{Month: "2024-01", BudgetCents: -1}); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Errorf("negative cents error = %v", err)
	}
	if _, err := s.UpsertBudget(ctx, domain.Budget{Month: "2024-01", CategoryID: "nope", BudgetCents: 1}); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Errorf("unknown category error = %v", err)
	}
}

func TestUpsertBudgetReplacesRow(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	food := mustCategory(t, s, "Food", domain.KindExpense, "")

	if _, err := s.UpsertBudget(ctx, domain.Budget{Month: "2024-06", CategoryID: food.ID, BudgetCents: 20000}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertBudget(ctx, domain.Budget{Month: "2024-06", CategoryID: food.ID, BudgetCents: 35000}); err != nil {
		t.Fatal(err)
	}

	b, found, err := s.GetBudget("2024-06", food.ID)
	if err != nil || !found {
		t.Fatalf("GetBudget() = %v, %v", found, err)
	}
	if b.BudgetCents != 35000 {
		t.Errorf("BudgetCents = %d, want the replacing value 35000", b.BudgetCents)
	}
}

func TestOverallBudgetNeedsNoCategory(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertBudget(ctx, domain.Budget{Month: "2024-07", BudgetCents: 150000}); err != nil {
		t.Fatalf("overall UpsertBudget() error = %v", err)
	}

	b, found, err := s.GetBudget("2024-07", "")
	if err != nil || !found || b.BudgetCents != 150000 {
		t.Errorf("overall GetBudget() = %+v, %v, %v", b, found, err)
	}

	// Per-category and overall rows for the same month are distinct.
	food := mustCategory(t, s, "Food", domain.KindExpense, "")
	if _, err := s.UpsertBudget(ctx, domain.Budget{Month: "2024-07", CategoryID: food.ID, BudgetCents: 40000}); err != nil {
		t.Fatal(err)
	}
	if b, _, _ := s.GetBudget("2024-07", ""); b.BudgetCents != 150000 {
		t.Errorf("overall budget clobbered, got %d", b.BudgetCents)
	}
}

func TestDeleteBudgetReportsRemoval(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	removed, err := s.DeleteBudget(ctx, "2024-08", "")
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("DeleteBudget() removed a row that never existed")
	}

	if _, err := s.UpsertBudget(ctx, domain.Budget{Month: "2024-08", BudgetCents: 100}); err != nil {
		t.Fatal(err)
	}
	removed, err = s.DeleteBudget(ctx, "2024-08", "")
	if err != nil || !removed {
		t.Errorf("DeleteBudget() = %v, %v; want removed", removed, err)
	}
	if _, found, _ := s.GetBudget("2024-08", ""); found {
		t.Error("budget still present after delete")
	}
}
