// Package importer ingests Cashew CSV exports into the local store. It maps
// the external columns onto categories and transactions, collects per-row
// errors instead of aborting, de-duplicates against existing records and
// supports a dry run that reports exactly what a commit would do.
package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/domain"
	"github.com/dvloznov/budget-backend/internal/store"
)

// maxRowErrors caps how many row errors one report carries.
const maxRowErrors = 50

// fallbackCategory receives rows with no usable category name.
const fallbackCategory = "Uncategorized"

// Options control one import invocation.
type Options struct {
	Commit         bool
	SkipDuplicates bool
	PreserveExtras bool
}

// RowError is one unparseable source row; Row is the 1-based line number in
// the uploaded file (the header is line 1).
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Report is the outcome of an import run. A dry run (Commit=false) reports
// the same counts a commit of the same input would produce.
type Report struct {
	Filename       string `json:"filename"`
	Commit         bool   `json:"commit"`
	SkipDuplicates bool   `json:"skip_duplicates"`
	PreserveExtras bool   `json:"preserve_extras"`

	TotalRows   int `json:"total_rows"`
	ParsedRows  int `json:"parsed_rows"`
	InvalidRows int `json:"invalid_rows"`

	CategoriesCreated   int `json:"categories_created"`
	TransactionsCreated int `json:"transactions_created"`
	TransactionsSkipped int `json:"transactions_skipped"`

	ColumnMapping map[string]string `json:"column_mapping"`
	Warnings      []string          `json:"warnings"`
	Errors        []RowError        `json:"errors"`
}

// Importer parses Cashew exports against a record store.
type Importer struct {
	store *store.Store
	log   zerolog.Logger
}

// New creates an importer over the given store.
func New(s *store.Store, log zerolog.Logger) *Importer {
	return &Importer{store: s, log: log}
}

// pathKey groups rows by normalized (category, subcategory) names.
type pathKey struct {
	cat string
	sub string
}

// pathStats tallies row kinds per path so mixed paths can pick a majority.
type pathStats struct {
	incomeCount  int
	expenseCount int
	incomeTotal  int64
	expenseTotal int64
}

type parsedRow struct {
	rowNum   int
	date     civil.Date
	cents    int64
	kind     domain.Kind
	merchant string
	notes    string
	path     pathKey
	extras   map[string]string
}

// ImportCashew runs one import. Row-level failures land in the report; only
// file-level problems (empty upload, unparseable CSV, missing required
// columns) return an error.
func (imp *Importer) ImportCashew(ctx context.Context, data []byte, filename string, opts Options) (*Report, error) {
	if len(data) == 0 {
		return nil, apperr.Validation("Empty upload.")
	}

	records, err := readCSV(data)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Filename:       filename,
		Commit:         opts.Commit,
		SkipDuplicates: opts.SkipDuplicates,
		PreserveExtras: opts.PreserveExtras,
		ColumnMapping:  map[string]string{},
		Warnings:       []string{},
		Errors:         []RowError{},
	}
	if len(records) <= 1 {
		report.Warnings = append(report.Warnings, "CSV contained only headers (no rows).")
		return report, nil
	}

	header := records[0]
	colIdx, dupHeaders := normalizedColumnIndex(header)
	cols := resolveCashewColumns(colIdx)

	if len(dupHeaders) > 0 {
		sort.Strings(dupHeaders)
		report.Warnings = append(report.Warnings,
			"Some CSV columns normalize to the same key; the importer used the first occurrence: "+
				strings.Join(dupHeaders, ", "))
	}

	if _, ok := cols["amount"]; !ok {
		return nil, missingColumnsErr(header, colIdx)
	}
	if _, ok := cols["date"]; !ok {
		return nil, missingColumnsErr(header, colIdx)
	}
	for logical, idx := range cols {
		report.ColumnMapping[logical] = header[idx]
	}

	rows := records[1:]
	report.TotalRows = len(rows)

	parsed := make([]parsedRow, 0, len(rows))
	stats := map[pathKey]*pathStats{}
	display := map[pathKey][2]string{}

	for i, rec := range rows {
		rowNum := i + 2 // header is row 1
		pr, dispCat, dispSub, err := parseRow(rec, cols, header, opts.PreserveExtras)
		if err != nil {
			if len(report.Errors) < maxRowErrors {
				report.Errors = append(report.Errors, RowError{Row: rowNum, Message: err.Error()})
			}
			continue
		}
		pr.rowNum = rowNum

		if _, ok := display[pr.path]; !ok {
			display[pr.path] = [2]string{dispCat, dispSub}
		}
		st := stats[pr.path]
		if st == nil {
			st = &pathStats{}
			stats[pr.path] = st
		}
		if pr.kind == domain.KindIncome {
			st.incomeCount++
			if pr.cents > 0 {
				st.incomeTotal += pr.cents
			}
		} else {
			st.expenseCount++
			if pr.cents < 0 {
				st.expenseTotal += -pr.cents
			}
		}
		parsed = append(parsed, pr)
	}

	report.ParsedRows = len(parsed)
	report.InvalidRows = report.TotalRows - len(parsed)
	if report.InvalidRows > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("Skipped %d invalid row(s).", report.InvalidRows))
	}
	if len(parsed) == 0 {
		return report, nil
	}

	// Resolve or create categories, parents before children.
	existingRoot, existingChild := imp.existingCategoryMaps()
	creator := &categoryCreator{
		now:           time.Now().UTC(),
		existingRoot:  existingRoot,
		existingChild: existingChild,
		createdRoot:   map[rootKey]string{},
		createdChild:  map[childKey]string{},
	}

	leafByPathKind := map[pathKindKey]string{}
	for path, st := range stats {
		disp := display[path]
		baseParent := strings.TrimSpace(disp[0])
		if baseParent == "" {
			baseParent = fallbackCategory
		}
		baseChild := strings.TrimSpace(disp[1])

		var kindsNeeded []domain.Kind
		if st.expenseCount > 0 {
			kindsNeeded = append(kindsNeeded, domain.KindExpense)
		}
		if st.incomeCount > 0 {
			kindsNeeded = append(kindsNeeded, domain.KindIncome)
		}

		mixed := st.incomeCount > 0 && st.expenseCount > 0
		majority := majorityKind(st)

		for _, kind := range kindsNeeded {
			parentName := baseParent
			if mixed && kind != majority {
				suffix := " (Expense)"
				if kind == domain.KindIncome {
					suffix = " (Income)"
				}
				if !strings.HasSuffix(parentName, suffix) {
					parentName += suffix
				}
			}

			parentID := creator.rootID(kind, parentName)
			leafID := parentID
			if baseChild != "" {
				leafID = creator.childID(kind, parentID, baseChild)
			}
			leafByPathKind[pathKindKey{path, kind}] = leafID
		}
	}

	// Build transactions with duplicate handling.
	var existingKeys map[domain.DupKey]bool
	if opts.SkipDuplicates {
		existingKeys = imp.store.LiveTransactionKeys()
	}
	newKeys := map[domain.DupKey]bool{}
	now := creator.now

	var newTx []domain.Transaction
	for _, pr := range parsed {
		leafID, ok := leafByPathKind[pathKindKey{pr.path, pr.kind}]
		if !ok {
			// Should not happen; keep the import resilient.
			leafID = creator.rootID(pr.kind, fallbackCategory)
		}

		t := domain.Transaction{
			ID:          uuid.New().String(),
			Date:        pr.date,
			AmountCents: pr.cents,
			CategoryID:  leafID,
			Merchant:    pr.merchant,
			Notes:       pr.notes,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if opts.PreserveExtras && len(pr.extras) > 0 {
			t.Extras = pr.extras
		}

		key := t.Key()
		if opts.SkipDuplicates && (existingKeys[key] || newKeys[key]) {
			report.TransactionsSkipped++
			continue
		}
		newKeys[key] = true
		newTx = append(newTx, t)
	}

	report.CategoriesCreated = len(creator.created)
	report.TransactionsCreated = len(newTx)
	if opts.SkipDuplicates && report.TransactionsSkipped > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("Skipped %d duplicate transaction(s).", report.TransactionsSkipped))
	}

	if opts.Commit {
		if err := imp.store.ApplyImport(ctx, creator.created, newTx); err != nil {
			return nil, err
		}
		imp.log.Info().
			Str("filename", filename).
			Int("categories_created", report.CategoriesCreated).
			Int("transactions_created", report.TransactionsCreated).
			Int("transactions_skipped", report.TransactionsSkipped).
			Msg("Import committed")
	}
	return report, nil
}

type pathKindKey struct {
	path pathKey
	kind domain.Kind
}

func majorityKind(st *pathStats) domain.Kind {
	if st.incomeCount != st.expenseCount {
		if st.incomeCount > st.expenseCount {
			return domain.KindIncome
		}
		return domain.KindExpense
	}
	if st.incomeTotal != st.expenseTotal {
		if st.incomeTotal > st.expenseTotal {
			return domain.KindIncome
		}
		return domain.KindExpense
	}
	return domain.KindExpense
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1 // ragged rows become row errors, not file errors
	records, err := r.ReadAll()
	if err != nil {
		return nil, apperr.Validation("Failed to parse CSV file.").
			WithDetails(map[string]interface{}{"error": err.Error()})
	}
	return records, nil
}

func missingColumnsErr(header []string, colIdx map[string]int) error {
	found := make([]string, 0, len(colIdx))
	for k := range colIdx {
		found = append(found, k)
	}
	sort.Strings(found)
	return apperr.Validation("Missing required Cashew CSV columns.").
		WithDetails(map[string]interface{}{
			"required":         []string{"amount", "date"},
			"found":            header,
			"normalized_found": found,
		})
}
