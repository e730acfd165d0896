package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/budget-backend/internal/api/middleware"
	"github.com/dvloznov/budget-backend/internal/apperr"
)

// Deps bundles the handlers mounted on the router.
type Deps struct {
	Categories   *CategoriesHandler
	Transactions *TransactionsHandler
	Budgets      *BudgetsHandler
	Import       *ImportHandler
	Export       *ExportHandler
	Drive        *DriveHandler
}

func methodNotAllowed(w http.ResponseWriter) {
	middleware.WriteJSON(w, http.StatusMethodNotAllowed, middleware.ErrorEnvelope{
		Error: middleware.ErrorBody{Code: apperr.CodeValidation, Message: "Method not allowed"},
	})
}

// NewRouter mounts every API route on a fresh mux.
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			d.Categories.ListCategories(w, r)
		case http.MethodPost:
			d.Categories.CreateCategory(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/categories/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/categories/")
		if id == "" || strings.Contains(id, "/") {
			middleware.WriteError(w, apperr.NotFound("Category not found"))
			return
		}
		switch r.Method {
		case http.MethodGet:
			d.Categories.GetCategory(w, r, id)
		case http.MethodPut, http.MethodPatch:
			d.Categories.UpdateCategory(w, r, id)
		case http.MethodDelete:
			d.Categories.DeleteCategory(w, r, id)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			d.Transactions.ListTransactions(w, r)
		case http.MethodPost:
			d.Transactions.CreateTransaction(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		if id == "" || strings.Contains(id, "/") {
			middleware.WriteError(w, apperr.NotFound("Transaction not found"))
			return
		}
		switch r.Method {
		case http.MethodGet:
			d.Transactions.GetTransaction(w, r, id)
		case http.MethodPut, http.MethodPatch:
			d.Transactions.UpdateTransaction(w, r, id)
		case http.MethodDelete:
			d.Transactions.DeleteTransaction(w, r, id)
		default:
			methodNotAllowed(w)
		}
	})

	budgetRoute := func(overall bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				d.Budgets.GetBudget(w, r, overall)
			case http.MethodPut:
				d.Budgets.UpsertBudget(w, r, overall)
			case http.MethodDelete:
				d.Budgets.DeleteBudget(w, r, overall)
			default:
				methodNotAllowed(w)
			}
		}
	}
	mux.HandleFunc("/api/budgets", budgetRoute(false))
	mux.HandleFunc("/api/budgets/overall", budgetRoute(true))

	mux.HandleFunc("/api/import/cashew", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		d.Import.ImportCashew(w, r)
	})

	mux.HandleFunc("/api/export/zip", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		d.Export.ExportZip(w, r)
	})

	mux.HandleFunc("/api/export/xlsx", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		d.Export.ExportXlsx(w, r)
	})

	mux.HandleFunc("/api/drive/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		d.Drive.Status(w, r)
	})

	mux.HandleFunc("/api/drive/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		d.Drive.Sync(w, r)
	})

	mux.HandleFunc("/api/drive/sync/push", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		d.Drive.Push(w, r)
	})

	mux.HandleFunc("/api/drive/sync/pull", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		d.Drive.Pull(w, r)
	})

	mux.HandleFunc("/api/drive/disconnect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		d.Drive.Disconnect(w, r)
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}
