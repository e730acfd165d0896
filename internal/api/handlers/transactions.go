package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/api/middleware"
	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/domain"
	"github.com/dvloznov/budget-backend/internal/store"
)

// TransactionsHandler handles transaction endpoints.
type TransactionsHandler struct {
	store *store.Store
	log   zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(s *store.Store, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{store: s, log: log}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTransactionFilter(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.store.ListTransactions(filter))
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request, id string) {
	t, err := h.store.GetTransaction(id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, t)
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date        civil.Date `json:"date"`
		AmountCents int64      `json:"amount_cents"`
		CategoryID  string     `json:"category_id"`
		Merchant    string     `json:"merchant"`
		Notes       string     `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	created, err := h.store.CreateTransaction(r.Context(), domain.Transaction{
		Date:        req.Date,
		AmountCents: req.AmountCents,
		CategoryID:  req.CategoryID,
		Merchant:    req.Merchant,
		Notes:       req.Notes,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// UpdateTransaction handles PUT/PATCH /api/transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request, id string) {
	var patch store.TransactionPatch
	if err := decodeJSON(r, &patch); err != nil {
		middleware.WriteError(w, err)
		return
	}

	updated, err := h.store.UpdateTransaction(r.Context(), id, patch)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

// DeleteTransaction handles DELETE /api/transactions/{id} (soft delete).
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.DeleteTransaction(r.Context(), id); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w)
}

// parseTransactionFilter reads the list query parameters, accepting both the
// snake_case and camelCase aliases the frontend has used over time.
func parseTransactionFilter(r *http.Request) (store.TransactionFilter, error) {
	q := r.URL.Query()
	var f store.TransactionFilter

	if v := q.Get("from"); v != "" {
		d, err := civil.ParseDate(v)
		if err != nil {
			return f, apperr.Validation("Invalid from date (expected YYYY-MM-DD).")
		}
		f.From = &d
	}
	if v := q.Get("to"); v != "" {
		d, err := civil.ParseDate(v)
		if err != nil {
			return f, apperr.Validation("Invalid to date (expected YYYY-MM-DD).")
		}
		f.To = &d
	}

	categories := q.Get("category_id")
	if categories == "" {
		categories = q.Get("categoryId")
	}
	if categories != "" {
		for _, id := range strings.Split(categories, ",") {
			if id = strings.TrimSpace(id); id != "" {
				f.CategoryIDs = append(f.CategoryIDs, id)
			}
		}
	}

	f.Query = q.Get("q")

	var err error
	if f.MinAmount, err = queryInt64(q.Get("min_amount"), q.Get("minAmountCents")); err != nil {
		return f, apperr.Validation("Invalid min amount.")
	}
	if f.MaxAmount, err = queryInt64(q.Get("max_amount"), q.Get("maxAmountCents")); err != nil {
		return f, apperr.Validation("Invalid max amount.")
	}

	f.Sort = q.Get("sort")
	f.Order = q.Get("order")

	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, apperr.Validation("Invalid limit.")
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil {
			return f, apperr.Validation("Invalid offset.")
		}
	}
	return f, nil
}

func queryInt64(primary, alias string) (*int64, error) {
	v := primary
	if v == "" {
		v = alias
	}
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
