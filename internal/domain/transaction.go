package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// ExtrasPrefix is the reserved column-name prefix for unmapped importer
// columns carried opaquely on a transaction row.
const ExtrasPrefix = "cashew_"

// Transaction is one financial record. AmountCents is signed: negative for
// expenses, positive for income, matching the referenced category's kind at
// write time. Deleted rows stay in the collection file for history.
type Transaction struct {
	ID          string     `json:"id"`
	Date        civil.Date `json:"date"`
	AmountCents int64      `json:"amount_cents"`
	CategoryID  string     `json:"category_id"`
	Merchant    string     `json:"merchant,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Deleted     bool       `json:"deleted"`

	// Extras holds opaque columns under ExtrasPrefix, preserved per row
	// when an importer requests compatibility mode.
	Extras map[string]string `json:"extras,omitempty"`
}

// DupKey identifies a transaction for duplicate detection:
// (date, amount, category, normalized merchant, normalized notes).
type DupKey struct {
	Date        string
	AmountCents int64
	CategoryID  string
	Merchant    string
	Notes       string
}

// Key builds the duplicate-detection key for t.
func (t Transaction) Key() DupKey {
	return DupKey{
		Date:        t.Date.String(),
		AmountCents: t.AmountCents,
		CategoryID:  t.CategoryID,
		Merchant:    NormalizeText(t.Merchant),
		Notes:       NormalizeText(t.Notes),
	}
}
