package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/beansync/beansync/internal/model"
)

func date(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func seedLedger(t *testing.T) *Ledger {
	t.Helper()
	l := NewLedger()
	l.PutAccount(model.Account{
		ID: 3, DisplayName: "Everyday Checking", Type: model.AccountAsset, Currency: "USD",
		OpeningDate: date(t, "2023-12-01"),
	})
	l.PutAccount(model.Account{
		ID: 4, DisplayName: "Rewards Card", Type: model.AccountLiability, Currency: "USD",
	})
	l.PutCategory(model.Category{ID: 12, Title: "Groceries"})
	l.PutCategory(model.Category{ID: 15, Title: "Transfer"})

	paired := int64(1002)
	closing := decimal.RequireFromString("1250.00")
	l.Put(model.Transaction{
		ID: 1001, Date: date(t, "2024-01-15"),
		Amount: decimal.RequireFromString("-500.00"), Currency: "USD",
		AccountID: 3, Payee: "Internal Move", Narration: "to savings",
		Labels:    model.NewLabelSet("internal"),
		PairedID:  &paired, SuspectReason: "date-delay-3d",
		ClosingBalance: &closing,
		UpdatedAt:      time.Date(2024, 1, 16, 9, 30, 0, 0, time.UTC),
	})
	cat := int64(12)
	l.Put(model.Transaction{
		ID: 2001, Date: date(t, "2024-02-03"),
		Amount: decimal.RequireFromString("-82.35"), Currency: "USD",
		AccountID: 4, CategoryID: &cat,
		Payee: "Woolworths", Narration: "weekly shop",
		Labels:      model.NewLabelSet("groceries", "weekly"),
		NeedsReview: true,
		UpdatedAt:   time.Date(2024, 2, 3, 20, 0, 0, 0, time.UTC),
	})
	l.AddAssertion(model.BalanceAssertion{
		AccountID: 3, Date: date(t, "2024-02-01"), Amount: decimal.RequireFromString("1250.00"),
	})
	return l
}

func requireTxnEqual(t *testing.T, want, got model.Transaction) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.True(t, want.Date.Equal(got.Date), "date %s vs %s", want.Date, got.Date)
	assert.True(t, want.Amount.Equal(got.Amount), "amount %s vs %s", want.Amount, got.Amount)
	assert.Equal(t, want.Currency, got.Currency)
	assert.Equal(t, want.AccountID, got.AccountID)
	assert.Equal(t, want.Payee, got.Payee)
	assert.Equal(t, want.Narration, got.Narration)
	assert.Equal(t, want.Labels.Tokens(), got.Labels.Tokens())
	assert.Equal(t, want.NeedsReview, got.NeedsReview)
	assert.Equal(t, want.IsTransfer, got.IsTransfer)
	assert.Equal(t, want.SuspectReason, got.SuspectReason)
	if want.PairedID == nil {
		assert.Nil(t, got.PairedID)
	} else {
		require.NotNil(t, got.PairedID)
		assert.Equal(t, *want.PairedID, *got.PairedID)
	}
	if want.CategoryID == nil {
		assert.Nil(t, got.CategoryID)
	} else {
		require.NotNil(t, got.CategoryID)
		assert.Equal(t, *want.CategoryID, *got.CategoryID)
	}
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at %s vs %s", want.UpdatedAt, got.UpdatedAt)
}

func TestHierarchicalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := Create(dir, LayoutHierarchical, zap.NewNop())
	require.NoError(t, err)

	seed := seedLedger(t)
	require.NoError(t, store.Save(seed))

	// Monthly files under year directories, plus the primary.
	assert.FileExists(t, filepath.Join(dir, "main.beancount"))
	assert.FileExists(t, filepath.Join(dir, "2024", "2024-01.beancount"))
	assert.FileExists(t, filepath.Join(dir, "2024", "2024-02.beancount"))

	reopened, err := Open(dir, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, LayoutHierarchical, reopened.Layout())

	loaded, err := reopened.Load()
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	for _, want := range seed.Transactions() {
		got, ok := loaded.Transaction(want.ID)
		require.True(t, ok, "transaction %d survives the round trip", want.ID)
		requireTxnEqual(t, want, got)
	}

	acct, ok := loaded.Account(3)
	require.True(t, ok)
	assert.Equal(t, "Everyday Checking", acct.DisplayName)
	assert.Equal(t, model.AccountAsset, acct.Type)
	assert.True(t, date(t, "2023-12-01").Equal(acct.OpeningDate))

	card, ok := loaded.Account(4)
	require.True(t, ok)
	assert.Equal(t, model.AccountLiability, card.Type)

	require.Len(t, loaded.Assertions(), 1)
	assert.Equal(t, int64(3), loaded.Assertions()[0].AccountID)
}

func TestSingleFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := Create(dir, LayoutSingle, zap.NewNop())
	require.NoError(t, err)

	seed := seedLedger(t)
	require.NoError(t, store.Save(seed))

	reopened, err := Open(store.Primary(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, LayoutSingle, reopened.Layout())

	loaded, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
}

func TestUncategorizedFallback(t *testing.T) {
	dir := t.TempDir()
	store, err := Create(dir, LayoutSingle, zap.NewNop())
	require.NoError(t, err)

	l := NewLedger()
	l.PutAccount(model.Account{ID: 3, DisplayName: "Checking", Type: model.AccountAsset, Currency: "USD"})
	l.Put(model.Transaction{
		ID: 1, Date: date(t, "2024-01-10"),
		Amount: decimal.RequireFromString("250.00"), Currency: "USD",
		AccountID: 3, Payee: "Employer",
	})
	require.NoError(t, store.Save(l))

	data, err := os.ReadFile(store.Primary())
	require.NoError(t, err)
	assert.Contains(t, string(data), "Income:Uncategorized")

	loaded, err := store.Load()
	require.NoError(t, err)
	got, ok := loaded.Transaction(1)
	require.True(t, ok)
	assert.Nil(t, got.CategoryID, "uncategorized bucket carries no id")
}

func TestOpeningDateLoweredByTransactions(t *testing.T) {
	l := NewLedger()
	l.PutAccount(model.Account{
		ID: 3, DisplayName: "Checking", Type: model.AccountAsset, Currency: "USD",
		OpeningDate: date(t, "2024-06-01"),
	})
	l.Put(model.Transaction{
		ID: 1, Date: date(t, "2024-01-10"),
		Amount: decimal.RequireFromString("-1.00"), Currency: "USD", AccountID: 3,
	})

	acct, ok := l.Account(3)
	require.True(t, ok)
	assert.True(t, date(t, "2024-01-10").Equal(acct.OpeningDate))
}

func TestTransactionsInWindow(t *testing.T) {
	l := seedLedger(t)
	w := model.DateWindow{From: date(t, "2024-02-01"), To: date(t, "2024-02-29")}
	got := l.TransactionsIn(w)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2001), got[0].ID)
}

func TestOpenDetectsSoleLedgerFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.beancount")
	require.NoError(t, os.WriteFile(path, []byte("2024-01-01 open Expenses:Uncategorized\n"), 0o644))

	store, err := Open(dir, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, path, store.Primary())
	assert.Equal(t, path+".log", store.LogPath())
}

func TestOpenFailsOnEmptyDirectory(t *testing.T) {
	_, err := Open(t.TempDir(), zap.NewNop())
	require.Error(t, err)

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "detect", ae.Op)
}

func TestLockIsExclusive(t *testing.T) {
	dir := t.TempDir()
	store, err := Create(dir, LayoutSingle, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Lock())

	other, err := Create(dir, LayoutSingle, zap.NewNop())
	require.NoError(t, err)
	err = other.Lock()
	require.Error(t, err)
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "lock", ae.Op)

	store.Unlock()
	require.NoError(t, other.Lock())
	other.Unlock()

	// Unlock without the lock is a no-op.
	store.Unlock()
}

func TestParseErrorNamesLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.beancount")
	require.NoError(t, os.WriteFile(path, []byte("2024-01-01 frobnicate Assets:X\n"), 0o644))

	store, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	_, err = store.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
	assert.Contains(t, err.Error(), "frobnicate")
}

func TestQuotedFieldsSurviveEscapes(t *testing.T) {
	dir := t.TempDir()
	store, err := Create(dir, LayoutSingle, zap.NewNop())
	require.NoError(t, err)

	l := NewLedger()
	l.PutAccount(model.Account{ID: 3, DisplayName: "Checking", Type: model.AccountAsset, Currency: "USD"})
	l.Put(model.Transaction{
		ID: 1, Date: date(t, "2024-01-10"),
		Amount: decimal.RequireFromString("-5.00"), Currency: "USD", AccountID: 3,
		Payee: `Joe's "Famous" Pizza`, Narration: `half \ half`,
	})
	require.NoError(t, store.Save(l))

	loaded, err := store.Load()
	require.NoError(t, err)
	got, ok := loaded.Transaction(1)
	require.True(t, ok)
	assert.Equal(t, `Joe's "Famous" Pizza`, got.Payee)
	assert.Equal(t, `half \ half`, got.Narration)
}

func TestCategoryTitleLookups(t *testing.T) {
	l := NewLedger()
	l.PutCategory(model.Category{ID: 12, Title: "Groceries"})

	assert.Equal(t, "Expenses:Groceries", l.CategoryTitle(12))
	id, ok := l.CategoryID("Expenses:Groceries")
	require.True(t, ok)
	assert.Equal(t, int64(12), id)
	_, ok = l.CategoryID("Expenses:Nope")
	assert.False(t, ok)
}
