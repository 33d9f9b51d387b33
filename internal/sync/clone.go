package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/beansync/beansync/internal/archive"
	"github.com/beansync/beansync/internal/changelog"
	"github.com/beansync/beansync/internal/model"
)

// Clone materializes a fresh archive from the remote: the full account
// and category directory plus every transaction inside the window. The
// CLONE header it writes becomes the first watermark, so later pulls
// fetch only the delta.
func (s *Orchestrator) Clone(ctx context.Context, window model.DateWindow) error {
	user, err := s.Remote.CurrentUser(ctx)
	if err != nil {
		return err
	}
	s.Logger.Info("cloning", zap.Int64("user", user.ID), zap.String("login", user.Login))

	ledger := archive.NewLedger()
	if err := s.refreshDirectory(ctx, ledger); err != nil {
		return err
	}
	s.Resolver.CategoryName = ledger.CategoryTitle

	txns, err := s.Remote.Transactions(ctx, remoteQuery(window))
	if err != nil {
		return err
	}

	buf := newEntryBuffer(changelog.OpClone, windowArg(window.From), windowArg(window.To))
	for i := range txns {
		ledger.Put(txns[i])
		buf.add(creationEntry(&txns[i]))
	}

	if s.DryRun {
		s.printf("clone (dry-run): %d accounts, %d categories, %d transactions\n",
			len(ledger.Accounts()), len(ledger.Categories()), ledger.Len())
		buf.render(s.Out, s.now())
		return nil
	}

	if err := s.Store.Save(ledger); err != nil {
		return err
	}
	if err := buf.flush(s.Log, true); err != nil {
		return err
	}
	s.Logger.Info("clone complete",
		zap.Int("transactions", ledger.Len()), zap.String("primary", s.Store.Primary()))
	return nil
}
