package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/api/middleware"
	"github.com/dvloznov/budget-backend/internal/export"
)

// ExportHandler handles archive download endpoints.
type ExportHandler struct {
	exporter *export.Exporter
	log      zerolog.Logger
}

// NewExportHandler creates a new export handler.
func NewExportHandler(e *export.Exporter, log zerolog.Logger) *ExportHandler {
	return &ExportHandler{exporter: e, log: log}
}

// ExportZip handles GET /api/export/zip
func (h *ExportHandler) ExportZip(w http.ResponseWriter, r *http.Request) {
	data, err := h.exporter.Zip()
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeAttachment(w, data, export.ZipContentType, export.Filename("zip", time.Now()))
}

// ExportXlsx handles GET /api/export/xlsx
func (h *ExportHandler) ExportXlsx(w http.ResponseWriter, r *http.Request) {
	data, err := h.exporter.Xlsx()
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeAttachment(w, data, export.XlsxContentType, export.Filename("xlsx", time.Now()))
}

func writeAttachment(w http.ResponseWriter, data []byte, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
