package sync

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beansync/beansync/internal/changelog"
	"github.com/beansync/beansync/internal/compare"
	"github.com/beansync/beansync/internal/model"
	"github.com/beansync/beansync/internal/resolve"
)

// Push promotes local values to the remote. The working set is the
// explicit id or every transaction in the window; each candidate is
// compared against its current remote state in the push direction and
// only the remote side mutates. Updates dispatch in parallel under the
// concurrency ceiling; the changelog entries still land in ascending
// id order, covering only the updates that succeeded.
func (s *Orchestrator) Push(ctx context.Context, opts Options) (compare.Report, error) {
	ledger, err := s.loadLedger()
	if err != nil {
		return compare.Report{}, err
	}
	if err := s.refreshDirectory(ctx, ledger); err != nil {
		return compare.Report{}, err
	}

	var remoteTxns []model.Transaction
	if opts.ID != 0 {
		t, err := s.Remote.Transaction(ctx, opts.ID)
		if err != nil {
			return compare.Report{}, err
		}
		remoteTxns = []model.Transaction{t}
	} else {
		remoteTxns, err = s.Remote.Transactions(ctx, remoteQuery(opts.Window))
		if err != nil {
			return compare.Report{}, err
		}
	}

	report := compare.Compare(s.Resolver, ledger.Transactions(), remoteTxns, compare.Options{
		Window: opts.Window, ID: opts.ID, Direction: resolve.Push,
	})

	differing := report.Differing()
	for _, res := range differing {
		for _, c := range res.Resolution.Conflicts() {
			s.Logger.Warn("immutable field differs",
				zap.Int64("txn", res.ID), zap.String("field", c.Field),
				zap.String("local", c.Local), zap.String("remote", c.Remote))
		}
	}

	applied := make([]bool, len(differing))
	var runErr error
	if s.DryRun {
		for i := range applied {
			applied[i] = true
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency())
		for i := range differing {
			i := i
			res := differing[i]
			u := updateFor(res.Resolution)
			if u.Empty() {
				continue
			}
			g.Go(func() error {
				if _, err := s.Remote.UpdateTransaction(gctx, res.ID, u); err != nil {
					return err
				}
				applied[i] = true
				return nil
			})
		}
		runErr = g.Wait()
	}

	buf := newEntryBuffer(changelog.OpPush, windowArg(opts.Window.From), windowArg(opts.Window.To))
	for i, res := range differing {
		if !applied[i] {
			continue
		}
		for _, m := range res.Resolution.Mutations(resolve.TargetRemote) {
			buf.add(changelog.Update(m.TxnID, m.Field, m.Old, m.New))
		}
	}

	if s.DryRun {
		buf.render(s.Out, s.now())
		return report, runErr
	}

	if err := buf.flush(s.Log, false); err != nil && runErr == nil {
		runErr = err
	}
	if runErr == nil {
		s.Logger.Info("push complete",
			zap.Int("candidates", report.Summary.Total()),
			zap.Int("updated", buf.mutations()))
	}
	return report, runErr
}
