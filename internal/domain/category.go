// Package domain holds the record types persisted in the collection files.
package domain

import "time"

// Kind classifies a category as spending or income.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// ValidKind reports whether k is a known category kind.
func ValidKind(k Kind) bool {
	return k == KindExpense || k == KindIncome
}

// Category is one node of the category tree. ParentID is empty for roots;
// a parent must exist and carry the same Kind. Kind is immutable after
// creation.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	ParentID  string    `json:"parent_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AmountSignOK reports whether cents is a legal amount for a transaction in
// a category of kind k: expense categories hold non-positive amounts,
// income categories non-negative ones.
func AmountSignOK(k Kind, cents int64) bool {
	switch k {
	case KindExpense:
		return cents <= 0
	case KindIncome:
		return cents >= 0
	}
	return false
}
