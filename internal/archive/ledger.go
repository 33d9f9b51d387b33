package archive

import (
	"sort"

	"github.com/beansync/beansync/internal/model"
)

// Ledger is the in-memory image of an archive. The store owns the
// on-disk representation; callers get value copies of transactions and
// hand mutations back through Put.
type Ledger struct {
	accounts     map[int64]*model.Account
	categories   map[int64]*model.Category
	transactions map[int64]*model.Transaction
	assertions   []model.BalanceAssertion
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts:     make(map[int64]*model.Account),
		categories:   make(map[int64]*model.Category),
		transactions: make(map[int64]*model.Transaction),
	}
}

// PutAccount inserts or replaces an account, preserving an earlier
// observed opening date.
func (l *Ledger) PutAccount(a model.Account) {
	if prev, ok := l.accounts[a.ID]; ok && !prev.OpeningDate.IsZero() {
		a.ObserveOpening(prev.OpeningDate)
	}
	l.accounts[a.ID] = &a
}

// Account returns a copy of the account, if present.
func (l *Ledger) Account(id int64) (model.Account, bool) {
	a, ok := l.accounts[id]
	if !ok {
		return model.Account{}, false
	}
	return *a, true
}

// Accounts returns all accounts ordered by id.
func (l *Ledger) Accounts() []model.Account {
	out := make([]model.Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PutCategory inserts or replaces a category.
func (l *Ledger) PutCategory(c model.Category) {
	l.categories[c.ID] = &c
}

// Category returns a copy of the category, if present.
func (l *Ledger) Category(id int64) (model.Category, bool) {
	c, ok := l.categories[id]
	if !ok {
		return model.Category{}, false
	}
	return *c, true
}

// Categories returns all categories ordered by id.
func (l *Ledger) Categories() []model.Category {
	out := make([]model.Category, 0, len(l.categories))
	for _, c := range l.categories {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CategoryTitle renders a category id as its ledger account name, or
// empty when unknown.
func (l *Ledger) CategoryTitle(id int64) string {
	c, ok := l.categories[id]
	if !ok {
		return ""
	}
	return categoryName(c)
}

// CategoryID resolves a ledger account name back to a category id.
func (l *Ledger) CategoryID(title string) (int64, bool) {
	for id, c := range l.categories {
		if categoryName(c) == title {
			return id, true
		}
	}
	return 0, false
}

// AccountName renders an account id as its display name, or empty.
func (l *Ledger) AccountName(id int64) string {
	a, ok := l.accounts[id]
	if !ok {
		return ""
	}
	return a.DisplayName
}

// Put inserts or replaces a transaction and lowers the owning
// account's opening date when the transaction predates it.
func (l *Ledger) Put(t model.Transaction) {
	c := t.Clone()
	l.transactions[t.ID] = &c
	if a, ok := l.accounts[t.AccountID]; ok {
		a.ObserveOpening(t.Date)
	}
}

// Transaction returns a copy of the transaction, if present.
func (l *Ledger) Transaction(id int64) (model.Transaction, bool) {
	t, ok := l.transactions[id]
	if !ok {
		return model.Transaction{}, false
	}
	return t.Clone(), true
}

// Transactions returns copies of every transaction, ordered by id.
func (l *Ledger) Transactions() []model.Transaction {
	out := make([]model.Transaction, 0, len(l.transactions))
	for _, t := range l.transactions {
		out = append(out, t.Clone())
	}
	model.SortTransactions(out)
	return out
}

// TransactionsIn returns copies of the transactions whose date falls
// inside the window, ordered by id.
func (l *Ledger) TransactionsIn(w model.DateWindow) []model.Transaction {
	var out []model.Transaction
	for _, t := range l.transactions {
		if w.Contains(t.Date) {
			out = append(out, t.Clone())
		}
	}
	model.SortTransactions(out)
	return out
}

// Len counts the transactions held.
func (l *Ledger) Len() int { return len(l.transactions) }

// AddAssertion records a balance checkpoint.
func (l *Ledger) AddAssertion(b model.BalanceAssertion) {
	l.assertions = append(l.assertions, b)
}

// Assertions returns the recorded balance checkpoints.
func (l *Ledger) Assertions() []model.BalanceAssertion {
	return l.assertions
}

// Currencies returns the distinct currency codes across accounts,
// sorted.
func (l *Ledger) Currencies() []string {
	seen := make(map[string]struct{})
	for _, a := range l.accounts {
		if a.Currency != "" {
			seen[a.Currency] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
