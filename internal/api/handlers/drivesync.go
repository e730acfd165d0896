package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/api/middleware"
	"github.com/dvloznov/budget-backend/internal/drive"
)

// DriveHandler handles Google Drive sync endpoints.
type DriveHandler struct {
	engine *drive.Engine
	log    zerolog.Logger
}

// NewDriveHandler creates a new drive handler.
func NewDriveHandler(e *drive.Engine, log zerolog.Logger) *DriveHandler {
	return &DriveHandler{engine: e, log: log}
}

// Status handles GET /api/drive/status
func (h *DriveHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, st)
}

// Sync handles POST /api/drive/sync
func (h *DriveHandler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Sync(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Push handles POST /api/drive/sync/push
func (h *DriveHandler) Push(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Push(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Pull handles POST /api/drive/sync/pull
func (h *DriveHandler) Pull(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Pull(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Disconnect handles POST /api/drive/disconnect
func (h *DriveHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Disconnect(); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOK(w)
}
