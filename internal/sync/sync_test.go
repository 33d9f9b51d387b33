package sync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/beansync/beansync/internal/archive"
	"github.com/beansync/beansync/internal/changelog"
	"github.com/beansync/beansync/internal/model"
	"github.com/beansync/beansync/internal/remote"
	"github.com/beansync/beansync/internal/transfers"
)

// fakeRemote is an in-memory remote.Client that records queries and
// applies updates to its stored transactions.
type fakeRemote struct {
	mu         sync.Mutex
	accounts   []model.Account
	categories []model.Category
	txns       map[int64]model.Transaction
	queries    []remote.TransactionQuery
	updates    map[int64][]remote.Update
	failUpdate map[int64]error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		txns:       make(map[int64]model.Transaction),
		updates:    make(map[int64][]remote.Update),
		failUpdate: make(map[int64]error),
	}
}

func (f *fakeRemote) CurrentUser(context.Context) (remote.User, error) {
	return remote.User{ID: 42, Login: "pat"}, nil
}

func (f *fakeRemote) Accounts(context.Context) ([]model.Account, error) {
	return append([]model.Account(nil), f.accounts...), nil
}

func (f *fakeRemote) Categories(context.Context) ([]model.Category, error) {
	return append([]model.Category(nil), f.categories...), nil
}

func (f *fakeRemote) Transactions(_ context.Context, q remote.TransactionQuery) ([]model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	var out []model.Transaction
	for _, t := range f.txns {
		if !q.Window.Contains(t.Date) {
			continue
		}
		out = append(out, t.Clone())
	}
	model.SortTransactions(out)
	return out, nil
}

func (f *fakeRemote) Transaction(_ context.Context, id int64) (model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txns[id]
	if !ok {
		return model.Transaction{}, fmt.Errorf("no transaction %d", id)
	}
	return t.Clone(), nil
}

func (f *fakeRemote) UpdateTransaction(_ context.Context, id int64, u remote.Update) (model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failUpdate[id]; err != nil {
		return model.Transaction{}, err
	}
	t, ok := f.txns[id]
	if !ok {
		return model.Transaction{}, fmt.Errorf("no transaction %d", id)
	}

	f.updates[id] = append(f.updates[id], u)
	if u.Payee != nil {
		t.Payee = *u.Payee
	}
	if u.Note != nil {
		text, meta := model.DecodeNoteMetadata(*u.Note)
		t.Narration = text
		t.PairedID = nil
		t.SuspectReason = meta["suspect_reason"]
		if raw, ok := meta["paired"]; ok {
			var pid int64
			fmt.Sscanf(raw, "%d", &pid)
			t.PairedID = &pid
		}
	}
	if u.Labels != nil {
		t.Labels = model.NewLabelSet(*u.Labels...)
	}
	if u.CategoryID != nil {
		v := *u.CategoryID
		t.CategoryID = &v
	}
	if u.NeedsReview != nil {
		t.NeedsReview = *u.NeedsReview
	}
	if u.IsTransfer != nil {
		t.IsTransfer = *u.IsTransfer
	}
	f.txns[id] = t
	return t.Clone(), nil
}

func (f *fakeRemote) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, us := range f.updates {
		n += len(us)
	}
	return n
}

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func seedRemote(t *testing.T) *fakeRemote {
	t.Helper()
	f := newFakeRemote()
	f.accounts = []model.Account{
		{ID: 3, DisplayName: "Everyday Checking", Type: model.AccountAsset, Currency: "USD"},
		{ID: 4, DisplayName: "Rewards Card", Type: model.AccountLiability, Currency: "USD"},
	}
	f.categories = []model.Category{
		{ID: 12, Title: "Groceries"},
		{ID: 15, Title: "Transfer"},
		{ID: 22, Title: "Transport"},
	}
	cat := int64(12)
	f.txns[1001] = model.Transaction{
		ID: 1001, Date: mustDate(t, "2024-01-15"),
		Amount: decimal.RequireFromString("-45.80"), Currency: "USD",
		AccountID: 3, CategoryID: &cat,
		Payee: "Woolworths", Narration: "weekly shop",
		Labels:    model.NewLabelSet("groceries"),
		UpdatedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	f.txns[1002] = model.Transaction{
		ID: 1002, Date: mustDate(t, "2024-01-20"),
		Amount: decimal.RequireFromString("1500.00"), Currency: "USD",
		AccountID: 3, Payee: "Employer", Narration: "salary",
		UpdatedAt: time.Date(2024, 1, 20, 8, 0, 0, 0, time.UTC),
	}
	return f
}

type harness struct {
	orch *Orchestrator
	fake *fakeRemote
	out  *bytes.Buffer
	dir  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := archive.Create(dir, archive.LayoutHierarchical, zap.NewNop())
	require.NoError(t, err)

	fake := seedRemote(t)
	out := &bytes.Buffer{}
	orch := New(fake, store, changelog.Open(store.LogPath()), zap.NewNop(), out)
	return &harness{orch: orch, fake: fake, out: out, dir: dir}
}

func (h *harness) clone(t *testing.T) {
	t.Helper()
	require.NoError(t, h.orch.Clone(context.Background(), model.DateWindow{}))
}

func (h *harness) reload(t *testing.T) *archive.Ledger {
	t.Helper()
	ledger, err := h.orch.Store.Load()
	require.NoError(t, err)
	return ledger
}

func (h *harness) editLocal(t *testing.T, id int64, edit func(*model.Transaction)) {
	t.Helper()
	ledger := h.reload(t)
	txn, ok := ledger.Transaction(id)
	require.True(t, ok)
	edit(&txn)
	ledger.Put(txn)
	require.NoError(t, h.orch.Store.Save(ledger))
}

func (h *harness) logEntries(t *testing.T) []changelog.Entry {
	t.Helper()
	entries, err := h.orch.Log.Entries()
	require.NoError(t, err)
	return entries
}

func entriesOfOp(entries []changelog.Entry, op changelog.Op) []changelog.Entry {
	var out []changelog.Entry
	for _, e := range entries {
		if e.Op == op {
			out = append(out, e)
		}
	}
	return out
}

func TestCloneThenPullIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.clone(t)

	entries := h.logEntries(t)
	require.Len(t, entriesOfOp(entries, changelog.OpClone), 1)
	require.Len(t, entriesOfOp(entries, changelog.OpUpdate), 2, "one creation per cloned transaction")

	report, err := h.orch.Pull(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.Identical, "round-tripped archive matches the remote exactly")
	assert.Zero(t, report.Summary.Differs)
	assert.Zero(t, report.Summary.OnlyRemote)
	assert.Zero(t, h.fake.updateCount())

	// The pull carried the clone watermark.
	last := h.fake.queries[len(h.fake.queries)-1]
	assert.False(t, last.UpdatedSince.IsZero())

	// The header still lands, advancing the watermark.
	assert.Len(t, entriesOfOp(h.logEntries(t), changelog.OpPull), 1)
}

func TestPullAppliesBothSides(t *testing.T) {
	h := newHarness(t)
	h.clone(t)

	h.editLocal(t, 1001, func(txn *model.Transaction) {
		txn.Payee = "Woolworths Metro"
	})
	rt := h.fake.txns[1001]
	rt.NeedsReview = true
	require.NoError(t, rt.Labels.Add("staple"))
	rt.UpdatedAt = time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC)
	h.fake.txns[1001] = rt

	report, err := h.orch.Pull(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Summary.Differs)

	// The local payee was promoted to the remote, nothing else.
	require.Len(t, h.fake.updates[1001], 1)
	u := h.fake.updates[1001][0]
	require.NotNil(t, u.Payee)
	assert.Equal(t, "Woolworths Metro", *u.Payee)
	assert.Nil(t, u.Labels, "merged labels already match the remote")
	assert.Nil(t, u.NeedsReview)

	// Remote-owned fields landed locally.
	got, ok := h.reload(t).Transaction(1001)
	require.True(t, ok)
	assert.Equal(t, "Woolworths Metro", got.Payee)
	assert.True(t, got.NeedsReview)
	assert.True(t, got.Labels.Contains("staple"))
	assert.True(t, got.UpdatedAt.Equal(rt.UpdatedAt))

	fields := make([]string, 0)
	for _, e := range entriesOfOp(h.logEntries(t), changelog.OpUpdate) {
		if e.TxnID == 1001 {
			fields = append(fields, e.Field)
		}
	}
	assert.Contains(t, fields, "payee")
	assert.Contains(t, fields, "labels")
	assert.Contains(t, fields, "needs_review")
	assert.Contains(t, fields, "updated_at")
}

func TestPullCreatesUnseenRemoteTransaction(t *testing.T) {
	h := newHarness(t)
	h.clone(t)

	h.fake.txns[1003] = model.Transaction{
		ID: 1003, Date: mustDate(t, "2024-01-25"),
		Amount: decimal.RequireFromString("-12.00"), Currency: "USD",
		AccountID: 4, Payee: "Cafe", Narration: "lunch",
		UpdatedAt: time.Date(2024, 1, 25, 13, 0, 0, 0, time.UTC),
	}

	report, err := h.orch.Pull(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.OnlyRemote)

	_, ok := h.reload(t).Transaction(1003)
	assert.True(t, ok)

	var created bool
	for _, e := range entriesOfOp(h.logEntries(t), changelog.OpUpdate) {
		if e.TxnID == 1003 && e.Field == "created" {
			created = true
			assert.Empty(t, e.Old, "creations render without the arrow")
		}
	}
	assert.True(t, created)
}

func TestPushPromotesLocalCategory(t *testing.T) {
	h := newHarness(t)
	h.clone(t)

	h.editLocal(t, 1001, func(txn *model.Transaction) {
		id := int64(15)
		txn.CategoryID = &id
	})

	report, err := h.orch.Push(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Summary.Differs)

	require.Len(t, h.fake.updates[1001], 1)
	u := h.fake.updates[1001][0]
	require.NotNil(t, u.CategoryID)
	assert.Equal(t, int64(15), *u.CategoryID)

	entries := h.logEntries(t)
	require.Len(t, entriesOfOp(entries, changelog.OpPush), 1)
	var logged bool
	for _, e := range entriesOfOp(entries, changelog.OpUpdate) {
		if e.TxnID == 1001 && e.Field == "category_id" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestPullDryRunTouchesNothing(t *testing.T) {
	h := newHarness(t)
	h.clone(t)

	rt := h.fake.txns[1001]
	rt.NeedsReview = true
	rt.UpdatedAt = rt.UpdatedAt.Add(time.Hour)
	h.fake.txns[1001] = rt

	before, err := os.ReadFile(filepath.Join(h.dir, "2024", "2024-01.beancount"))
	require.NoError(t, err)
	logBefore := len(h.logEntries(t))

	h.orch.DryRun = true
	report, err := h.orch.Pull(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Summary.Differs)

	assert.Zero(t, h.fake.updateCount())
	assert.Len(t, h.logEntries(t), logBefore, "dry-run appends nothing")
	after, err := os.ReadFile(filepath.Join(h.dir, "2024", "2024-01.beancount"))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	assert.Contains(t, h.out.String(), "PULL")
	assert.Contains(t, h.out.String(), "needs_review")
}

func TestPullPartialFailureKeepsCompletedWork(t *testing.T) {
	h := newHarness(t)
	h.clone(t)

	h.editLocal(t, 1001, func(txn *model.Transaction) { txn.Payee = "Woolworths Metro" })
	h.editLocal(t, 1002, func(txn *model.Transaction) { txn.Payee = "Employer Inc" })
	h.fake.failUpdate[1002] = fmt.Errorf("boom")

	_, err := h.orch.Pull(context.Background(), Options{})
	require.Error(t, err)

	entries := h.logEntries(t)
	require.Len(t, entriesOfOp(entries, changelog.OpPull), 1, "a completed mutation pins the header")

	var saw1001, saw1002 bool
	for _, e := range entriesOfOp(entries, changelog.OpUpdate) {
		if e.Field != "payee" {
			continue
		}
		switch e.TxnID {
		case 1001:
			saw1001 = true
		case 1002:
			saw1002 = true
		}
	}
	assert.True(t, saw1001, "the update that landed is logged")
	assert.False(t, saw1002, "the failed update is not")
}

func TestDiffModes(t *testing.T) {
	h := newHarness(t)
	h.clone(t)

	rt := h.fake.txns[1001]
	rt.NeedsReview = true
	h.fake.txns[1001] = rt

	logBefore := len(h.logEntries(t))

	_, err := h.orch.Diff(context.Background(), DiffOptions{Mode: DiffSummary})
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "differs:     1")

	h.out.Reset()
	_, err = h.orch.Diff(context.Background(), DiffOptions{Mode: DiffIDs})
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "differs 1001")

	h.out.Reset()
	_, err = h.orch.Diff(context.Background(), DiffOptions{Mode: DiffChangelog})
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "DIFF 1001 needs_review false <> true")

	h.out.Reset()
	_, err = h.orch.Diff(context.Background(), DiffOptions{Mode: DiffFields})
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "false | true")

	assert.Len(t, h.logEntries(t), logBefore, "diff never writes")
	assert.Zero(t, h.fake.updateCount())
}

func TestDetectTransfersAnnotatesPairs(t *testing.T) {
	h := newHarness(t)

	out := int64(2001)
	in := int64(2002)
	h.fake.txns = map[int64]model.Transaction{
		out: {
			ID: out, Date: mustDate(t, "2024-03-01"),
			Amount: decimal.RequireFromString("-300.00"), Currency: "USD",
			AccountID: 3, Payee: "Transfer out",
			UpdatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		in: {
			ID: in, Date: mustDate(t, "2024-03-02"),
			Amount: decimal.RequireFromString("300.00"), Currency: "USD",
			AccountID: 4, Payee: "Transfer in",
			UpdatedAt: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
		},
	}
	h.clone(t)

	result, changes, err := h.orch.DetectTransfers(context.Background(), transfers.DefaultCriteria(), Options{})
	require.NoError(t, err)
	require.Len(t, result.Confirmed, 1)
	require.NotEmpty(t, changes)

	ledger := h.reload(t)
	src, ok := ledger.Transaction(out)
	require.True(t, ok)
	dst, ok := ledger.Transaction(in)
	require.True(t, ok)

	assert.True(t, src.IsTransfer)
	assert.True(t, dst.IsTransfer)
	require.NotNil(t, src.PairedID)
	require.NotNil(t, dst.PairedID)
	assert.Equal(t, in, *src.PairedID)
	assert.Equal(t, out, *dst.PairedID)
	require.NotNil(t, src.CategoryID)
	assert.Equal(t, int64(15), *src.CategoryID, "the transfer category applies to confirmed pairs")

	var pairedEntries int
	for _, e := range entriesOfOp(h.logEntries(t), changelog.OpUpdate) {
		if e.Field == "paired_id" {
			pairedEntries++
		}
	}
	assert.Equal(t, 2, pairedEntries)

	// Re-running yields no further changes.
	_, changes, err = h.orch.DetectTransfers(context.Background(), transfers.DefaultCriteria(), Options{})
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestApplyRulesLogsApplications(t *testing.T) {
	h := newHarness(t)
	h.fake.txns = map[int64]model.Transaction{
		3001: {
			ID: 3001, Date: mustDate(t, "2024-04-02"),
			Amount: decimal.RequireFromString("-23.40"), Currency: "USD",
			AccountID: 3, Payee: "Uber Trip Help",
			UpdatedAt: time.Date(2024, 4, 2, 19, 0, 0, 0, time.UTC),
		},
	}
	h.clone(t)

	rulesPath := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(`
- id: 7
  if:
    merchant: uber
  then:
    - category: Expenses:Transport
    - labels: [rideshare]
`), 0o644))

	apps, err := h.orch.ApplyRules(context.Background(), rulesPath, Options{})
	require.NoError(t, err)
	require.Len(t, apps, 2)

	got, ok := h.reload(t).Transaction(3001)
	require.True(t, ok)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, int64(22), *got.CategoryID)
	assert.True(t, got.Labels.Contains("rideshare"))

	applies := entriesOfOp(h.logEntries(t), changelog.OpApply)
	require.Len(t, applies, 2)
	assert.Equal(t, int64(7), applies[0].RuleID)
	assert.Equal(t, "category_id", applies[0].Field)

	// Idempotent re-run.
	apps, err = h.orch.ApplyRules(context.Background(), rulesPath, Options{})
	require.NoError(t, err)
	assert.Empty(t, apps)
}

var _ remote.Client = (*fakeRemote)(nil)
