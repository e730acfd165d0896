package importer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/budget-backend/internal/domain"
)

// cashewLogicalColumns maps each logical field to the normalized header
// names it may appear under in a Cashew export, in preference order.
var cashewLogicalColumns = map[string][]string{
	"account":          {"account"},
	"amount":           {"amount"},
	"currency":         {"currency"},
	"title":            {"title"},
	"note":             {"note", "notes"},
	"date":             {"date", "notedate"},
	"income":           {"income"},
	"type":             {"type"},
	"category_name":    {"categoryname", "category"},
	"subcategory_name": {"subcategoryname", "subcategory"},
	"color":            {"color"},
	"icon":             {"icon"},
	"emoji":            {"emoji"},
	"budget":           {"budget"},
	"objective":        {"objective"},
}

// extraColumns are the logical fields carried opaquely on a transaction when
// extras preservation is requested.
var extraColumns = []string{
	"account", "currency", "income", "type", "category_name",
	"subcategory_name", "color", "icon", "emoji", "budget", "objective",
}

// normHeader strips everything but letters and digits and lowercases, so
// "Category name", "category_name" and "CategoryName" all match.
func normHeader(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizedColumnIndex maps normalized header names to column indexes,
// keeping the first occurrence and reporting duplicates.
func normalizedColumnIndex(header []string) (map[string]int, []string) {
	idx := map[string]int{}
	var dupes []string
	for i, col := range header {
		n := normHeader(col)
		if n == "" {
			continue
		}
		if prev, ok := idx[n]; ok {
			if header[prev] != col {
				dupes = append(dupes, n)
			}
			continue
		}
		idx[n] = i
	}
	return idx, dupes
}

// resolveCashewColumns picks the column index for each logical field present
// in the file.
func resolveCashewColumns(colIdx map[string]int) map[string]int {
	out := map[string]int{}
	for logical, keys := range cashewLogicalColumns {
		for _, k := range keys {
			if i, ok := colIdx[k]; ok {
				out[logical] = i
				break
			}
		}
	}
	return out
}

func cell(rec []string, cols map[string]int, logical string) string {
	i, ok := cols[logical]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y", "t":
		return true
	}
	return false
}

// parseRow turns one source record into a candidate transaction row plus the
// display names of its category path.
func parseRow(rec []string, cols map[string]int, header []string, preserveExtras bool) (parsedRow, string, string, error) {
	amountRaw := cell(rec, cols, "amount")
	dateRaw := cell(rec, cols, "date")
	if strings.TrimSpace(amountRaw) == "" {
		return parsedRow{}, "", "", errors.New("amount is empty")
	}
	if strings.TrimSpace(dateRaw) == "" {
		return parsedRow{}, "", "", errors.New("date is empty")
	}

	var incomeFlag *bool
	if _, ok := cols["income"]; ok {
		f := parseFlag(cell(rec, cols, "income"))
		incomeFlag = &f
	}

	cents, err := parseAmountCents(amountRaw, incomeFlag)
	if err != nil {
		return parsedRow{}, "", "", err
	}
	date, err := parseDate(dateRaw)
	if err != nil {
		return parsedRow{}, "", "", err
	}

	merchant := strings.TrimSpace(cell(rec, cols, "title"))
	notes := strings.TrimSpace(cell(rec, cols, "note"))

	cat := strings.TrimSpace(cell(rec, cols, "category_name"))
	sub := strings.TrimSpace(cell(rec, cols, "subcategory_name"))

	// A subcategory without a category is promoted.
	if cat == "" && sub != "" {
		cat, sub = sub, ""
	}
	if cat == "" {
		cat = fallbackCategory
	}

	kind := kindFromCents(cents, incomeFlag)

	pr := parsedRow{
		date:     date,
		cents:    cents,
		kind:     kind,
		merchant: merchant,
		notes:    notes,
		path: pathKey{
			cat: domain.NormalizeText(cat),
			sub: domain.NormalizeText(sub),
		},
	}

	if preserveExtras {
		extras := map[string]string{}
		for _, logical := range extraColumns {
			if _, ok := cols[logical]; ok {
				extras[domain.ExtrasPrefix+logical] = cell(rec, cols, logical)
			}
		}
		if len(extras) > 0 {
			pr.extras = extras
		}
	}
	return pr, cat, sub, nil
}

func kindFromCents(cents int64, incomeFlag *bool) domain.Kind {
	if cents > 0 {
		return domain.KindIncome
	}
	if cents < 0 {
		return domain.KindExpense
	}
	if incomeFlag != nil && *incomeFlag {
		return domain.KindIncome
	}
	return domain.KindExpense
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
}

// parseDate accepts the date shapes Cashew exports produce and reduces them
// to a calendar date.
func parseDate(v string) (civil.Date, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return civil.Date{}, errors.New("date is empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return civil.DateOf(t), nil
	}
	return civil.Date{}, fmt.Errorf("unrecognized date format: %s", s)
}

var centsFactor = decimal.NewFromInt(100)

// parseAmountCents converts an external amount string into signed cents.
// Sign precedence: parentheses or leading minus, leading plus, then the
// income flag, then positive. Thousands and decimal separators are
// disambiguated from their positions.
func parseAmountCents(raw string, incomeFlag *bool) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errors.New("amount is empty")
	}

	explicitNegative := false
	explicitPositive := false

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		explicitNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		explicitNegative = true
		s = strings.TrimSpace(s[1:])
	} else if strings.HasPrefix(s, "+") {
		explicitPositive = true
		s = strings.TrimSpace(s[1:])
	}

	var cleaned strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			cleaned.WriteRune(r)
		}
	}
	num := cleaned.String()
	if num == "" {
		return 0, fmt.Errorf("amount is not numeric: %s", raw)
	}

	switch {
	case strings.Contains(num, ".") && strings.Contains(num, ","):
		// 1,234.56: commas are thousands separators.
		num = strings.ReplaceAll(num, ",", "")
	case strings.Contains(num, ","):
		parts := strings.Split(num, ",")
		if len(parts) == 2 && len(parts[1]) == 2 {
			// 123,45: comma is the decimal separator.
			num = parts[0] + "." + parts[1]
		} else {
			num = strings.Join(parts, "")
		}
	}

	dec, err := decimal.NewFromString(num)
	if err != nil {
		return 0, fmt.Errorf("amount is not numeric: %s", raw)
	}
	centsAbs := dec.Mul(centsFactor).Round(0).IntPart()

	switch {
	case explicitNegative:
		return -centsAbs, nil
	case explicitPositive:
		return centsAbs, nil
	case incomeFlag != nil && *incomeFlag:
		return centsAbs, nil
	case incomeFlag != nil && !*incomeFlag:
		return -centsAbs, nil
	}
	return centsAbs, nil
}
