// Package sync orchestrates the clone, pull, push, and diff workflows
// plus the local-only rule and transfer passes. Each workflow follows
// the same shape: fetch, compare, resolve, apply, log. The orchestrator
// itself is sequential; parallelism is confined to remote update
// dispatch, bounded by the concurrency ceiling.
package sync

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/beansync/beansync/internal/archive"
	"github.com/beansync/beansync/internal/changelog"
	"github.com/beansync/beansync/internal/model"
	"github.com/beansync/beansync/internal/remote"
	"github.com/beansync/beansync/internal/resolve"
)

const defaultConcurrency = 4

// Orchestrator wires the remote client, the local store, and the
// changelog into workflows. DryRun suppresses every write, including
// changelog appends; intended operations are printed to Out instead.
type Orchestrator struct {
	Remote   remote.Client
	Store    *archive.Store
	Log      *changelog.Log
	Resolver *resolve.Resolver
	Logger   *zap.Logger
	Out      io.Writer

	DryRun bool
	// Concurrency bounds parallel remote updates during push. Zero
	// means the default of 4.
	Concurrency int

	now func() time.Time
}

// New builds an orchestrator over opened components.
func New(client remote.Client, store *archive.Store, log *changelog.Log, logger *zap.Logger, out io.Writer) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		Remote:   client,
		Store:    store,
		Log:      log,
		Resolver: &resolve.Resolver{},
		Logger:   logger,
		Out:      out,
		now:      time.Now,
	}
}

// Options scope a pull, push, or diff.
type Options struct {
	// Window bounds transaction dates; zero means unbounded.
	Window model.DateWindow
	// ID targets a single transaction; zero means all.
	ID int64
}

func remoteQuery(w model.DateWindow) remote.TransactionQuery {
	return remote.TransactionQuery{Window: w}
}

// windowArg renders a window boundary for a changelog header; an open
// boundary renders as the empty bracket pair.
func windowArg(d model.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func (s *Orchestrator) concurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return defaultConcurrency
}

func (s *Orchestrator) printf(format string, args ...any) {
	if s.Out != nil {
		fmt.Fprintf(s.Out, format, args...)
	}
}

// loadLedger opens the archive image and points the resolver's
// category renderer at it.
func (s *Orchestrator) loadLedger() (*archive.Ledger, error) {
	ledger, err := s.Store.Load()
	if err != nil {
		return nil, err
	}
	s.Resolver.CategoryName = ledger.CategoryTitle
	return ledger, nil
}

// refreshDirectory pulls the remote account and category lists into the
// ledger so new ids resolve during comparison.
func (s *Orchestrator) refreshDirectory(ctx context.Context, ledger *archive.Ledger) error {
	accounts, err := s.Remote.Accounts(ctx)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		ledger.PutAccount(a)
	}
	categories, err := s.Remote.Categories(ctx)
	if err != nil {
		return err
	}
	for _, c := range categories {
		ledger.PutCategory(c)
	}
	return nil
}

// updateFor translates a resolution's remote-side mutations into the
// field set for one remote write. The note field is rebuilt whenever
// narration or a pairing annotation moved, since all three share it.
func updateFor(res resolve.Result) remote.Update {
	var u remote.Update
	desired := res.RemoteDesired
	for _, m := range res.Mutations(resolve.TargetRemote) {
		switch m.Field {
		case "payee":
			v := desired.Payee
			u.Payee = &v
		case "narration", "paired_id", "suspect_reason":
			if u.Note == nil {
				note := remote.NoteFor(&desired)
				u.Note = &note
			}
		case "labels":
			tokens := desired.Labels.Tokens()
			u.Labels = &tokens
		case "category_id":
			if desired.CategoryID != nil {
				v := *desired.CategoryID
				u.CategoryID = &v
			}
		case "needs_review":
			v := desired.NeedsReview
			u.NeedsReview = &v
		case "is_transfer":
			v := desired.IsTransfer
			u.IsTransfer = &v
		}
	}
	return u
}

// entryBuffer collects a workflow's changelog entries so the header and
// its updates land only once the workflow knows they happened. Dry-run
// renders the buffer instead of appending it.
type entryBuffer struct {
	header  changelog.Entry
	entries []changelog.Entry
}

func newEntryBuffer(op changelog.Op, args ...string) *entryBuffer {
	return &entryBuffer{header: changelog.Header(op, args...)}
}

func (b *entryBuffer) add(e changelog.Entry) { b.entries = append(b.entries, e) }

func (b *entryBuffer) mutations() int { return len(b.entries) }

// flush appends the header followed by the buffered entries.
// headerAlways writes the header even with no mutations, which is how
// pull advances the watermark on a no-op delta.
func (b *entryBuffer) flush(log *changelog.Log, headerAlways bool) error {
	if len(b.entries) == 0 && !headerAlways {
		return nil
	}
	if err := log.Append(b.header); err != nil {
		return err
	}
	for _, e := range b.entries {
		if err := log.Append(e); err != nil {
			return err
		}
	}
	return nil
}

// render prints the buffer the way it would have been logged.
func (b *entryBuffer) render(w io.Writer, stamp time.Time) {
	if w == nil {
		return
	}
	b.header.Time = stamp
	fmt.Fprintln(w, b.header.String())
	for _, e := range b.entries {
		e.Time = stamp
		fmt.Fprintln(w, e.String())
	}
}

// creationEntry logs a transaction that entered the archive whole. The
// missing arrow marks a creation in the changelog grammar.
func creationEntry(t *model.Transaction) changelog.Entry {
	return changelog.Update(t.ID, "created", "",
		fmt.Sprintf("%s %s %s", t.Date, t.Amount.StringFixed(2), t.Currency))
}
