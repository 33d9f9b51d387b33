// Package remote implements the ledger-service REST client: paginated
// reads, rate-limited writes with bounded retries, and conversion
// between the wire shapes and the canonical model.
package remote

import (
	"context"
	"time"

	"github.com/beansync/beansync/internal/model"
)

// User identifies the authenticated account holder.
type User struct {
	ID    int64
	Login string
}

// TransactionQuery scopes a transaction listing. Zero fields are
// omitted from the request.
type TransactionQuery struct {
	// UpdatedSince limits results to transactions touched at or after
	// the instant. This is the pull watermark.
	UpdatedSince time.Time
	// Window bounds the transaction dates.
	Window model.DateWindow
	// AccountID limits results to one account.
	AccountID int64
}

// Update names the transaction fields to write. Nil pointers leave the
// remote value alone.
type Update struct {
	Payee       *string
	Note        *string
	Labels      *[]string
	CategoryID  *int64
	NeedsReview *bool
	IsTransfer  *bool
}

// Empty reports whether the update names no fields.
func (u Update) Empty() bool {
	return u.Payee == nil && u.Note == nil && u.Labels == nil &&
		u.CategoryID == nil && u.NeedsReview == nil && u.IsTransfer == nil
}

// Client is the remote surface the orchestrator works against.
type Client interface {
	// CurrentUser returns the authenticated user.
	CurrentUser(ctx context.Context) (User, error)
	// Accounts lists the user's accounts.
	Accounts(ctx context.Context) ([]model.Account, error)
	// Categories lists the user's categories, flattened.
	Categories(ctx context.Context) ([]model.Category, error)
	// Transactions lists transactions matching the query, following
	// pagination to exhaustion.
	Transactions(ctx context.Context, q TransactionQuery) ([]model.Transaction, error)
	// Transaction fetches a single transaction by id.
	Transaction(ctx context.Context, id int64) (model.Transaction, error)
	// UpdateTransaction writes the named fields and returns the
	// post-update remote state.
	UpdateTransaction(ctx context.Context, id int64, u Update) (model.Transaction, error)
}

// NoteFor renders the remote note field for a transaction, embedding
// its pairing annotations in the [key:value] grammar.
func NoteFor(t *model.Transaction) string { return encodeNote(t) }
