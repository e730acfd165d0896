// Package handlers implements the HTTP API over the record store, the
// importer, the sync engine and the exporter. Handlers stay thin: they
// decode the request, call one operation and map the result or error onto
// the JSON envelope.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dvloznov/budget-backend/internal/api/middleware"
	"github.com/dvloznov/budget-backend/internal/apperr"
)

// okResponse is the body of mutations that return no record.
type okResponse struct {
	OK bool `json:"ok"`
}

func writeOK(w http.ResponseWriter) {
	middleware.WriteJSON(w, http.StatusOK, okResponse{OK: true})
}

// decodeJSON decodes a request body, mapping malformed JSON to a
// validation error.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("Invalid request body.").WithCause(err)
	}
	return nil
}

// queryBool parses a boolean query parameter with a default.
func queryBool(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	switch v {
	case "":
		return def
	case "true", "1", "yes":
		return true
	}
	return false
}
