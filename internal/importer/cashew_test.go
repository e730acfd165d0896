package importer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/domain"
	"github.com/dvloznov/budget-backend/internal/storage"
	"github.com/dvloznov/budget-backend/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	lock := storage.NewWriterLock(filepath.Join(dir, ".lock"), time.Second)
	w := storage.NewWriter(dir, filepath.Join(dir, "backups"), lock, zerolog.Nop())
	s, err := store.Open(w, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

const sampleCSV = `account,amount,currency,title,note,date,income,type,category name,subcategory name
Main,-12.50,USD,Coffee shop,morning,2024-03-01,false,,Food,Cafes
Main,-40.00,USD,Grocer,,2024-03-02,false,,Food,Groceries
Main,2500.00,USD,Employer,march,2024-03-05,true,,Salary,
Main,-12.50,USD,Coffee shop,morning,2024-03-01,false,,Food,Cafes
Main,not-a-number,USD,Broken,,2024-03-06,false,,Food,
Main,-9.99,USD,Cinema,,bad-date,false,,Fun,
Main,-15.00,USD,Taxi,,2024-03-07,false,,Transport,
`

func TestImportCashewDryRunMatchesCommit(t *testing.T) {
	ctx := context.Background()

	dry := newTestStore(t)
	dryReport, err := New(dry, zerolog.Nop()).ImportCashew(ctx, []byte(sampleCSV), "cashew.csv",
		Options{Commit: false, SkipDuplicates: true})
	if err != nil {
		t.Fatalf("ImportCashew(dry) error = %v", err)
	}
	if got := len(dry.ListCategories()); got != 0 {
		t.Fatalf("dry run created %d categories, want 0", got)
	}

	wet := newTestStore(t)
	wetReport, err := New(wet, zerolog.Nop()).ImportCashew(ctx, []byte(sampleCSV), "cashew.csv",
		Options{Commit: true, SkipDuplicates: true})
	if err != nil {
		t.Fatalf("ImportCashew(commit) error = %v", err)
	}

	if dryReport.TotalRows != wetReport.TotalRows ||
		dryReport.ParsedRows != wetReport.ParsedRows ||
		dryReport.InvalidRows != wetReport.InvalidRows ||
		dryReport.CategoriesCreated != wetReport.CategoriesCreated ||
		dryReport.TransactionsCreated != wetReport.TransactionsCreated ||
		dryReport.TransactionsSkipped != wetReport.TransactionsSkipped {
		t.Fatalf("dry run %+v disagrees with commit %+v", dryReport, wetReport)
	}

	if wetReport.TotalRows != 7 {
		t.Errorf("TotalRows = %d, want 7", wetReport.TotalRows)
	}
	if wetReport.ParsedRows != 5 {
		t.Errorf("ParsedRows = %d, want 5", wetReport.ParsedRows)
	}
	if wetReport.InvalidRows != 2 {
		t.Errorf("InvalidRows = %d, want 2", wetReport.InvalidRows)
	}
	// Food, Food>Cafes, Food>Groceries, Salary, Fun, Transport.
	if wetReport.CategoriesCreated != 6 {
		t.Errorf("CategoriesCreated = %d, want 6", wetReport.CategoriesCreated)
	}
	if wetReport.TransactionsCreated != 4 {
		t.Errorf("TransactionsCreated = %d, want 4", wetReport.TransactionsCreated)
	}
	if wetReport.TransactionsSkipped != 1 {
		t.Errorf("TransactionsSkipped = %d, want 1", wetReport.TransactionsSkipped)
	}

	if got := len(wet.ListCategories()); got != wetReport.CategoriesCreated {
		t.Errorf("store has %d categories, report says %d", got, wetReport.CategoriesCreated)
	}
	page := wet.ListTransactions(store.TransactionFilter{Limit: 100})
	if page.Total != wetReport.TransactionsCreated {
		t.Errorf("store has %d transactions, report says %d", page.Total, wetReport.TransactionsCreated)
	}
}

func TestImportCashewSecondRunSkipsEverything(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	imp := New(s, zerolog.Nop())

	first, err := imp.ImportCashew(ctx, []byte(sampleCSV), "cashew.csv",
		Options{Commit: true, SkipDuplicates: true})
	if err != nil {
		t.Fatalf("first import error = %v", err)
	}

	second, err := imp.ImportCashew(ctx, []byte(sampleCSV), "cashew.csv",
		Options{Commit: true, SkipDuplicates: true})
	if err != nil {
		t.Fatalf("second import error = %v", err)
	}
	if second.TransactionsCreated != 0 {
		t.Errorf("second run created %d transactions, want 0", second.TransactionsCreated)
	}
	if second.TransactionsSkipped != first.TransactionsCreated+first.TransactionsSkipped {
		t.Errorf("second run skipped %d, want %d",
			second.TransactionsSkipped, first.TransactionsCreated+first.TransactionsSkipped)
	}
	if second.CategoriesCreated != 0 {
		t.Errorf("second run created %d categories, want 0", second.CategoriesCreated)
	}
}

func TestImportCashewMixedKindPath(t *testing.T) {
	csvData := `amount,date,category name
-10.00,2024-01-01,Side Gig
-20.00,2024-01-02,Side Gig
5.00,2024-01-03,Side Gig
`
	s := newTestStore(t)
	_, err := New(s, zerolog.Nop()).ImportCashew(context.Background(), []byte(csvData), "mixed.csv",
		Options{Commit: true})
	if err != nil {
		t.Fatalf("ImportCashew() error = %v", err)
	}

	names := map[string]domain.Kind{}
	for _, c := range s.ListCategories() {
		names[c.Name] = c.Kind
	}
	if kind, ok := names["Side Gig"]; !ok || kind != domain.KindExpense {
		t.Errorf("majority category = %v (present=%v), want expense Side Gig", kind, ok)
	}
	if kind, ok := names["Side Gig (Income)"]; !ok || kind != domain.KindIncome {
		t.Errorf("minority category = %v (present=%v), want income Side Gig (Income)", kind, ok)
	}
}

func TestImportCashewMissingRequiredColumns(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"no amount", "date,title\n2024-01-01,x\n"},
		{"no date", "amount,title\n-1.00,x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			_, err := New(s, zerolog.Nop()).ImportCashew(context.Background(), []byte(tt.csv), "f.csv", Options{})
			if !apperr.IsCode(err, apperr.CodeValidation) {
				t.Errorf("ImportCashew() error = %v, want %s", err, apperr.CodeValidation)
			}
		})
	}
}

func TestImportCashewEmptyAndHeaderOnly(t *testing.T) {
	s := newTestStore(t)
	imp := New(s, zerolog.Nop())

	if _, err := imp.ImportCashew(context.Background(), nil, "f.csv", Options{}); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Errorf("empty upload error = %v, want %s", err, apperr.CodeValidation)
	}

	report, err := imp.ImportCashew(context.Background(), []byte("amount,date\n"), "f.csv", Options{})
	if err != nil {
		t.Fatalf("header-only error = %v", err)
	}
	if report.TotalRows != 0 || len(report.Warnings) == 0 {
		t.Errorf("header-only report = %+v, want zero rows and a warning", report)
	}
}

func TestImportCashewPreservesExtras(t *testing.T) {
	csvData := `account,amount,currency,date,category name
Savings,-3.50,EUR,2024-02-01,Food
`
	s := newTestStore(t)
	_, err := New(s, zerolog.Nop()).ImportCashew(context.Background(), []byte(csvData), "f.csv",
		Options{Commit: true, PreserveExtras: true})
	if err != nil {
		t.Fatalf("ImportCashew() error = %v", err)
	}

	page := s.ListTransactions(store.TransactionFilter{Limit: 10})
	if len(page.Items) != 1 {
		t.Fatalf("got %d transactions, want 1", len(page.Items))
	}
	extras := page.Items[0].Extras
	if extras[domain.ExtrasPrefix+"account"] != "Savings" {
		t.Errorf("extras[account] = %q, want Savings", extras[domain.ExtrasPrefix+"account"])
	}
	if extras[domain.ExtrasPrefix+"currency"] != "EUR" {
		t.Errorf("extras[currency] = %q, want EUR", extras[domain.ExtrasPrefix+"currency"])
	}
}

func TestParseAmountCents(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name   string
		raw    string
		income *bool
		want   int64
		exact  bool
	}{
		{"plain decimal", "12.34", nil, 1234, true},
		{"leading minus", "-12.34", nil, -1234, true},
		{"leading plus", "+12.34", &no, 1234, true},
		{"parentheses", "(7.50)", &yes, -750, true},
		{"currency symbol", "$1,234.56", nil, 123456, true},
		{"european decimal comma", "99,95", nil, 9995, true},
		{"thousands comma", "1,234", nil, 123400, true},
		{"income flag signs", "20.00", &yes, 2000, true},
		{"expense flag signs", "20.00", &no, -2000, true},
		{"half-up rounding", "0.005", nil, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAmountCents(tt.raw, tt.income)
			if err != nil {
				t.Fatalf("parseAmountCents(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("parseAmountCents(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}

	for _, raw := range []string{"", "   ", "abc", "$"} {
		if _, err := parseAmountCents(raw, nil); err == nil {
			t.Errorf("parseAmountCents(%q) succeeded, want error", raw)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"2024-03-01", "2024-03-01"},
		{"2024-03-01 13:45:09", "2024-03-01"},
		{"2024-03-01T13:45:09", "2024-03-01"},
		{"2024/03/01", "2024-03-01"},
		{"2024-03-01T13:45:09Z", "2024-03-01"},
	}
	for _, tt := range tests {
		got, err := parseDate(tt.raw)
		if err != nil {
			t.Fatalf("parseDate(%q) error = %v", tt.raw, err)
		}
		if got.String() != tt.want {
			t.Errorf("parseDate(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}

	if _, err := parseDate("March 1st"); err == nil {
		t.Error("parseDate with unknown format succeeded, want error")
	}
}

func TestNormalizedColumnResolution(t *testing.T) {
	header := []string{"Amount", "Date", "Category name", "Subcategory Name", "note"}
	colIdx, dupes := normalizedColumnIndex(header)
	if len(dupes) != 0 {
		t.Fatalf("unexpected duplicate headers: %v", dupes)
	}
	cols := resolveCashewColumns(colIdx)

	want := map[string]int{
		"amount":           0,
		"date":             1,
		"category_name":    2,
		"subcategory_name": 3,
		"note":             4,
	}
	for logical, idx := range want {
		if cols[logical] != idx {
			t.Errorf("cols[%s] = %d, want %d", logical, cols[logical], idx)
		}
	}
}

func TestImportCashewSubcategoryPromotion(t *testing.T) {
	csvData := `amount,date,category name,subcategory name
-5.00,2024-01-01,,Snacks
-6.00,2024-01-02,,
`
	s := newTestStore(t)
	_, err := New(s, zerolog.Nop()).ImportCashew(context.Background(), []byte(csvData), "f.csv",
		Options{Commit: true})
	if err != nil {
		t.Fatalf("ImportCashew() error = %v", err)
	}

	var names []string
	for _, c := range s.ListCategories() {
		names = append(names, c.Name)
		if c.ParentID != "" {
			t.Errorf("category %s has a parent, want promotion to root", c.Name)
		}
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "Snacks") || !strings.Contains(joined, fallbackCategory) {
		t.Errorf("categories = %v, want Snacks and %s", names, fallbackCategory)
	}
}
