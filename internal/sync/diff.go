package sync

import (
	"context"

	"github.com/beansync/beansync/internal/changelog"
	"github.com/beansync/beansync/internal/compare"
	"github.com/beansync/beansync/internal/model"
	"github.com/beansync/beansync/internal/resolve"
)

// DiffMode selects the diff presentation.
type DiffMode int

const (
	// DiffSummary prints per-class counts.
	DiffSummary DiffMode = iota
	// DiffIDs prints one "<class> <id>" line per non-identical id.
	DiffIDs
	// DiffChangelog prints one DIFF grammar line per differing field.
	DiffChangelog
	// DiffFields prints differing fields with the local and remote
	// values side by side.
	DiffFields
)

// DiffOptions scope a diff run.
type DiffOptions struct {
	Options
	Mode DiffMode
}

// Diff compares local and remote state without mutating either side.
// Output goes to Out only; DIFF lines never reach the changelog.
func (s *Orchestrator) Diff(ctx context.Context, opts DiffOptions) (compare.Report, error) {
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
		Window: opts.Window, ID: opts.ID, Direction: resolve.Pull,
	})

	stamp := s.now()
	switch opts.Mode {
	case DiffIDs:
		for _, res := range report.Results {
			if res.Class == compare.Identical {
				continue
			}
			s.printf("%s %d\n", res.Class, res.ID)
		}

	case DiffChangelog:
		for _, res := range report.Results {
			if res.Class != compare.Differs {
				continue
			}
			for _, f := range res.Resolution.Fields {
				e := changelog.Diff(res.ID, f.Field, f.Local, f.Remote)
				e.Time = stamp
				s.printf("%s\n", e)
			}
		}

	case DiffFields:
		for _, res := range report.Results {
			switch res.Class {
			case compare.OnlyLocal:
				s.printf("%-10d %-16s only local\n", res.ID, "")
			case compare.OnlyRemote:
				s.printf("%-10d %-16s only remote\n", res.ID, "")
			case compare.Differs:
				for _, f := range res.Resolution.Fields {
					s.printf("%-10d %-16s %s | %s\n", res.ID, f.Field, f.Local, f.Remote)
				}
			}
		}

	default:
		s.printf("identical:   %d\n", report.Summary.Identical)
		s.printf("differs:     %d\n", report.Summary.Differs)
		s.printf("only-local:  %d\n", report.Summary.OnlyLocal)
		s.printf("only-remote: %d\n", report.Summary.OnlyRemote)
		s.printf("total:       %d\n", report.Summary.Total())
	}

	return report, nil
}
