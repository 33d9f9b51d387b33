// Package model defines the canonical records shared by every beansync
// component: transactions, accounts, categories, and balance assertions.
// Instances returned from the local store or the remote client are treated
// as values; components mutate copies and exchange mutation records.
package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the central record mirrored between the remote ledger
// service and the local archive. The id is assigned by the remote and
// never changes; everything else is governed by a per-field resolution
// strategy during pull/push.
type Transaction struct {
	ID             int64
	Date           Date
	Amount         decimal.Decimal
	Currency       string
	AccountID      int64
	CategoryID     *int64
	Payee          string
	Narration      string
	Labels         LabelSet
	NeedsReview    bool
	IsTransfer     bool
	PairedID       *int64
	SuspectReason  string
	ClosingBalance *decimal.Decimal
	UpdatedAt      time.Time
}

// FieldNames lists the resolvable transaction fields in declaration
// order. Mutations and log entries for a transaction are always emitted
// in this order so changelog replay is deterministic.
var FieldNames = []string{
	"date",
	"amount",
	"currency",
	"account_id",
	"category_id",
	"payee",
	"narration",
	"labels",
	"needs_review",
	"is_transfer",
	"paired_id",
	"suspect_reason",
	"closing_balance",
	"updated_at",
}

// Clone returns a deep copy of the transaction.
func (t Transaction) Clone() Transaction {
	c := t
	if t.CategoryID != nil {
		v := *t.CategoryID
		c.CategoryID = &v
	}
	if t.PairedID != nil {
		v := *t.PairedID
		c.PairedID = &v
	}
	if t.ClosingBalance != nil {
		v := *t.ClosingBalance
		c.ClosingBalance = &v
	}
	c.Labels = t.Labels.Clone()
	return c
}

// TouchUpdatedAt advances UpdatedAt to now, never moving it backwards.
func (t *Transaction) TouchUpdatedAt(now time.Time) {
	if now.After(t.UpdatedAt) {
		t.UpdatedAt = now
	}
}

// Outflow reports whether the amount leaves the account.
func (t Transaction) Outflow() bool {
	return t.Amount.IsNegative()
}

// SortTransactions orders transactions by ascending id in place.
// Workflows process transactions in this order.
func SortTransactions(txns []Transaction) {
	sort.Slice(txns, func(i, j int) bool { return txns[i].ID < txns[j].ID })
}
