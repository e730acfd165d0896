package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/api/middleware"
	"github.com/dvloznov/budget-backend/internal/domain"
	"github.com/dvloznov/budget-backend/internal/store"
)

// CategoriesHandler handles category endpoints.
type CategoriesHandler struct {
	store *store.Store
	log   zerolog.Logger
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(s *store.Store, log zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{store: s, log: log}
}

// ListCategories handles GET /api/categories
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.store.ListCategories())
}

// GetCategory handles GET /api/categories/{id}
func (h *CategoriesHandler) GetCategory(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.store.GetCategory(id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, c)
}

// CreateCategory handles POST /api/categories
func (h *CategoriesHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string      `json:"name"`
		Kind     domain.Kind `json:"kind"`
		ParentID string      `json:"parent_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	created, err := h.store.CreateCategory(r.Context(), domain.Category{
		Name:     req.Name,
		Kind:     req.Kind,
		ParentID: req.ParentID,
		Active:   true,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// UpdateCategory handles PUT/PATCH /api/categories/{id}
func (h *CategoriesHandler) UpdateCategory(w http.ResponseWriter, r *http.Request, id string) {
	var patch store.CategoryPatch
	if err := decodeJSON(r, &patch); err != nil {
		middleware.WriteError(w, err)
		return
	}

	updated, err := h.store.UpdateCategory(r.Context(), id, patch)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

// DeleteCategory handles DELETE /api/categories/{id}?reassignTo=<id>
func (h *CategoriesHandler) DeleteCategory(w http.ResponseWriter, r *http.Request, id string) {
	reassignTo := r.URL.Query().Get("reassignTo")
	if reassignTo == "" {
		reassignTo = r.URL.Query().Get("reassign_to")
	}

	if err := h.store.DeleteCategory(r.Context(), id, reassignTo); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w)
}
