package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"sort"

	"github.com/dvloznov/budget-backend/internal/apperr"
)

// Row is one record of a collection, keyed by column name. Columns outside
// the collection's canonical set are preserved opaquely.
type Row map[string]string

// Spec describes one collection file: its canonical columns and the default
// value for each column when a row (or an old file) lacks it.
type Spec struct {
	Name     string
	Filename string
	Columns  []string
	Defaults map[string]string
}

// Collection specs. Column order is the canonical header order.
var (
	TransactionsSpec = Spec{
		Name:     "transactions",
		Filename: "transactions.csv",
		Columns: []string{
			"id", "date", "amount_cents", "category_id",
			"merchant", "notes", "created_at", "updated_at", "deleted",
		},
		Defaults: map[string]string{"amount_cents": "0", "deleted": "false"},
	}

	CategoriesSpec = Spec{
		Name:     "categories",
		Filename: "categories.csv",
		Columns: []string{
			"id", "name", "kind", "parent_id", "active", "created_at", "updated_at",
		},
		Defaults: map[string]string{"kind": "expense", "active": "true"},
	}

	BudgetsSpec = Spec{
		Name:     "budgets",
		Filename: "budgets.csv",
		Columns:  []string{"month", "category_id", "budget_cents"},
		Defaults: map[string]string{"budget_cents": "0"},
	}
)

// Specs lists every collection in canonical order.
var Specs = []Spec{TransactionsSpec, CategoriesSpec, BudgetsSpec}

// ReadCollection parses the collection file at path. Missing canonical
// columns are filled from the spec defaults; extra columns are kept per row.
// A missing file yields zero rows. Unparseable content fails with
// CorruptCollection.
func ReadCollection(path string, spec Spec) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.IO(fmt.Sprintf("could not read collection %s", spec.Name), err)
	}
	return DecodeCollection(data, spec)
}

// DecodeCollection parses collection bytes; see ReadCollection.
func DecodeCollection(data []byte, spec Spec) ([]Row, error) {
	if len(data) == 0 {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	records, err := r.ReadAll()
	if err != nil {
		return nil, apperr.CorruptCollection(
			fmt.Sprintf("collection %s is not valid CSV: %v", spec.Name, err))
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		for _, col := range spec.Columns {
			if _, ok := row[col]; !ok {
				row[col] = spec.Defaults[col]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// EncodeCollection serializes rows with the canonical columns first and any
// extra columns after them in sorted order, so repeated encodes of the same
// rows are byte-identical.
func EncodeCollection(rows []Row, spec Spec) ([]byte, error) {
	header := append([]string(nil), spec.Columns...)
	canonical := make(map[string]bool, len(spec.Columns))
	for _, c := range spec.Columns {
		canonical[c] = true
	}

	extraSet := map[string]bool{}
	for _, row := range rows {
		for col := range row {
			if !canonical[col] && !extraSet[col] {
				extraSet[col] = true
			}
		}
	}
	extras := make([]string, 0, len(extraSet))
	for col := range extraSet {
		extras = append(extras, col)
	}
	sort.Strings(extras)
	header = append(header, extras...)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	rec := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			v, ok := row[col]
			if !ok && canonical[col] {
				v = spec.Defaults[col]
			}
			rec[i] = v
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("encode row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
