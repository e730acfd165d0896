package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/api/middleware"
	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/domain"
	"github.com/dvloznov/budget-backend/internal/store"
)

// BudgetsHandler handles budget endpoints. The overall monthly budget is
// the row with an empty category id.
type BudgetsHandler struct {
	store *store.Store
	log   zerolog.Logger
}

// NewBudgetsHandler creates a new budgets handler.
func NewBudgetsHandler(s *store.Store, log zerolog.Logger) *BudgetsHandler {
	return &BudgetsHandler{store: s, log: log}
}

// GetBudget handles GET /api/budgets?month=YYYY-MM[&category_id=<id>]
// and GET /api/budgets/overall?month=YYYY-MM.
func (h *BudgetsHandler) GetBudget(w http.ResponseWriter, r *http.Request, overall bool) {
	month, categoryID, err := budgetParams(r, overall)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	b, found, err := h.store.GetBudget(month, categoryID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if !found {
		middleware.WriteError(w, apperr.NotFound("Budget not found").
			WithDetails(map[string]interface{}{"month": month, "category_id": categoryID}))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, b)
}

// UpsertBudget handles PUT /api/budgets and PUT /api/budgets/overall.
func (h *BudgetsHandler) UpsertBudget(w http.ResponseWriter, r *http.Request, overall bool) {
	var req struct {
		Month       string `json:"month"`
		CategoryID  string `json:"category_id"`
		BudgetCents int64  `json:"budget_cents"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if overall {
		req.CategoryID = ""
	}

	saved, err := h.store.UpsertBudget(r.Context(), domain.Budget{
		Month:       req.Month,
		CategoryID:  req.CategoryID,
		BudgetCents: req.BudgetCents,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, saved)
}

// DeleteBudget handles DELETE /api/budgets and DELETE /api/budgets/overall.
func (h *BudgetsHandler) DeleteBudget(w http.ResponseWriter, r *http.Request, overall bool) {
	month, categoryID, err := budgetParams(r, overall)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	if _, err := h.store.DeleteBudget(r.Context(), month, categoryID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w)
}

func budgetParams(r *http.Request, overall bool) (month, categoryID string, err error) {
	q := r.URL.Query()
	month = q.Get("month")
	if month == "" {
		return "", "", apperr.Validation("month is required")
	}
	if !domain.ValidMonth(month) {
		return "", "", apperr.Validation("Invalid month format (expected YYYY-MM).").
			WithDetails(map[string]interface{}{"month": month})
	}
	if !overall {
		categoryID = q.Get("category_id")
	}
	return month, categoryID, nil
}
