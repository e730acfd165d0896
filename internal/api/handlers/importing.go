package handlers

import (
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/api/middleware"
	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/importer"
)

// maxUploadBytes caps the accepted import payload.
const maxUploadBytes = 32 << 20

// ImportHandler handles bulk import endpoints.
type ImportHandler struct {
	importer *importer.Importer
	log      zerolog.Logger
}

// NewImportHandler creates a new import handler.
func NewImportHandler(imp *importer.Importer, log zerolog.Logger) *ImportHandler {
	return &ImportHandler{importer: imp, log: log}
}

// ImportCashew handles POST /api/import/cashew. The CSV arrives as the
// multipart field "file"; commit defaults to false so a plain upload is a
// dry run.
func (h *ImportHandler) ImportCashew(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		middleware.WriteError(w, apperr.Validation("Expected a multipart upload with a file field.").WithCause(err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, apperr.Validation("Missing file field."))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		middleware.WriteError(w, apperr.IO("could not read upload", err))
		return
	}
	if len(data) > maxUploadBytes {
		middleware.WriteError(w, apperr.Validation("Upload too large."))
		return
	}

	filename := header.Filename
	if filename == "" {
		filename = "cashew.csv"
	}

	opts := importer.Options{
		Commit:         queryBool(r, "commit", false),
		SkipDuplicates: queryBool(r, "skipDuplicates", true),
		PreserveExtras: queryBool(r, "preserveExtras", false),
	}

	report, err := h.importer.ImportCashew(r.Context(), data, filename, opts)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}
