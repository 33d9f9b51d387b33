package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/beansync/beansync/internal/changelog"
	"github.com/beansync/beansync/internal/compare"
	"github.com/beansync/beansync/internal/model"
	"github.com/beansync/beansync/internal/resolve"
)

const watermarkLayout = "2006-01-02 15:04:05"

// Pull fetches the remote delta since the watermark, resolves each pair
// in the pull direction, applies the local side, and writes back the
// fields the archive owns. Ids are processed in ascending order; the
// PULL header lands after every mutation has succeeded, which is what
// advances the watermark. On a mid-run failure the completed mutations
// are persisted and logged under the header so the archive never
// forgets work the remote already saw.
func (s *Orchestrator) Pull(ctx context.Context, opts Options) (compare.Report, error) {
	ledger, err := s.loadLedger()
	if err != nil {
		return compare.Report{}, err
	}
	if err := s.refreshDirectory(ctx, ledger); err != nil {
		return compare.Report{}, err
	}

	mark, haveMark, err := s.Log.LatestWatermark()
	if err != nil {
		return compare.Report{}, err
	}

	var (
		remoteTxns []model.Transaction
		since      string
	)
	if opts.ID != 0 {
		t, err := s.Remote.Transaction(ctx, opts.ID)
		if err != nil {
			return compare.Report{}, err
		}
		remoteTxns = []model.Transaction{t}
	} else {
		q := remoteQuery(opts.Window)
		if haveMark {
			q.UpdatedSince = mark
			since = mark.Format(watermarkLayout)
		}
		remoteTxns, err = s.Remote.Transactions(ctx, q)
		if err != nil {
			return compare.Report{}, err
		}
	}

	report := compare.Compare(s.Resolver, ledger.Transactions(), remoteTxns, compare.Options{
		Window: opts.Window, ID: opts.ID, Direction: resolve.Pull,
	})

	buf := newEntryBuffer(changelog.OpPull, since, windowArg(opts.Window.From), windowArg(opts.Window.To))

	var runErr error
	for i := range report.Results {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		res := &report.Results[i]

		switch res.Class {
		case compare.OnlyRemote:
			if !s.DryRun {
				ledger.Put(*res.Remote)
			}
			buf.add(creationEntry(res.Remote))

		case compare.Differs:
			for _, c := range res.Resolution.Conflicts() {
				s.Logger.Warn("immutable field differs",
					zap.Int64("txn", res.ID), zap.String("field", c.Field),
					zap.String("local", c.Local), zap.String("remote", c.Remote))
			}

			u := updateFor(res.Resolution)
			if !u.Empty() && !s.DryRun {
				if _, err := s.Remote.UpdateTransaction(ctx, res.ID, u); err != nil {
					runErr = err
					break
				}
			}
			if !s.DryRun {
				ledger.Put(res.Resolution.LocalDesired)
			}
			for _, m := range res.Resolution.AllMutations() {
				buf.add(changelog.Update(m.TxnID, m.Field, m.Old, m.New))
			}
		}
		if runErr != nil {
			break
		}
	}

	if s.DryRun {
		buf.render(s.Out, s.now())
		return report, runErr
	}

	if err := s.Store.Save(ledger); err != nil {
		if runErr == nil {
			runErr = err
		}
		return report, runErr
	}
	// A clean run records the header even with no mutations, advancing
	// the watermark. An interrupted run records it only when some
	// mutation actually landed.
	if err := buf.flush(s.Log, runErr == nil); err != nil && runErr == nil {
		runErr = err
	}

	if runErr == nil {
		s.Logger.Info("pull complete",
			zap.Int("fetched", len(remoteTxns)),
			zap.Int("differed", report.Summary.Differs),
			zap.Int("created", report.Summary.OnlyRemote),
			zap.Int("mutations", buf.mutations()))
	}
	return report, runErr
}
