package sync

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/beansync/beansync/internal/archive"
	"github.com/beansync/beansync/internal/changelog"
	"github.com/beansync/beansync/internal/model"
	"github.com/beansync/beansync/internal/rules"
	"github.com/beansync/beansync/internal/transfers"
)

// ApplyRules runs the rule engine over the working set and persists the
// local edits. Rule application never touches the remote; the push
// command promotes the results later. Each applied transform is logged
// as an APPLY entry, headerless since there is no sync exchange to
// stamp.
func (s *Orchestrator) ApplyRules(ctx context.Context, rulesPath string, opts Options) ([]rules.Application, error) {
	ledger, err := s.loadLedger()
	if err != nil {
		return nil, err
	}
	engine, err := s.ruleEngine(rulesPath, ledger)
	if err != nil {
		return nil, err
	}

	var all []rules.Application
	var entries []changelog.Entry
	changed := false
	for _, txn := range s.workingSet(ledger, opts) {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		apps := engine.Apply(&txn, matchContext(ledger, &txn))
		if len(apps) == 0 {
			continue
		}
		all = append(all, apps...)
		for _, app := range apps {
			if app.Status == rules.StatusInvalid {
				continue
			}
			entries = append(entries, changelog.Apply(app.TxnID, app.RuleID, app.Field, app.Old, app.New))
		}
		if applied(apps) {
			changed = true
			if !s.DryRun {
				ledger.Put(txn)
			}
		}
	}

	if s.DryRun {
		stamp := s.now()
		for _, e := range entries {
			e.Time = stamp
			s.printf("%s\n", e)
		}
		return all, nil
	}

	if changed {
		if err := s.Store.Save(ledger); err != nil {
			return all, err
		}
	}
	for _, e := range entries {
		if err := s.Log.Append(e); err != nil {
			return all, err
		}
	}
	s.Logger.Info("rules applied", zap.Int("applications", len(entries)))
	return all, nil
}

// LookupRule reports which rule would fire for one transaction.
func (s *Orchestrator) LookupRule(rulesPath string, id int64) (*rules.Rule, error) {
	ledger, err := s.loadLedger()
	if err != nil {
		return nil, err
	}
	engine, err := s.ruleEngine(rulesPath, ledger)
	if err != nil {
		return nil, err
	}
	txn, ok := ledger.Transaction(id)
	if !ok {
		return nil, fmt.Errorf("transaction %d not in archive", id)
	}
	return engine.Lookup(&txn, matchContext(ledger, &txn)), nil
}

// DetectTransfers pairs opposing transactions in the window and
// persists the pairing annotations. Local-only, idempotent on re-run.
func (s *Orchestrator) DetectTransfers(ctx context.Context, criteria transfers.DetectionCriteria, opts Options) (transfers.Result, []transfers.Change, error) {
	ledger, err := s.loadLedger()
	if err != nil {
		return transfers.Result{}, nil, err
	}

	detector, err := transfers.NewDetector(criteria, s.Logger)
	if err != nil {
		return transfers.Result{}, nil, err
	}
	detector.AccountName = ledger.AccountName

	txns := s.workingSet(ledger, opts)
	ptrs := make([]*model.Transaction, len(txns))
	for i := range txns {
		ptrs[i] = &txns[i]
	}
	result := detector.Detect(ptrs)

	applier := transfers.NewApplier(transferCategoryID(ledger), s.Logger)
	applier.CategoryName = ledger.CategoryTitle
	changes := applier.Apply(result)

	if err := ctx.Err(); err != nil {
		return result, changes, err
	}

	if s.DryRun {
		stamp := s.now()
		for _, c := range changes {
			e := changelog.Update(c.TxnID, c.Field, c.Old, c.New)
			e.Time = stamp
			s.printf("%s\n", e)
		}
		return result, changes, nil
	}

	if len(changes) > 0 {
		touched := make(map[int64]bool, len(changes))
		for _, c := range changes {
			touched[c.TxnID] = true
		}
		for _, p := range ptrs {
			if touched[p.ID] {
				ledger.Put(*p)
			}
		}
		if err := s.Store.Save(ledger); err != nil {
			return result, changes, err
		}
		for _, c := range changes {
			if err := s.Log.Append(changelog.Update(c.TxnID, c.Field, c.Old, c.New)); err != nil {
				return result, changes, err
			}
		}
	}

	s.Logger.Info("transfer detection complete",
		zap.Int("confirmed", len(result.Confirmed)),
		zap.Int("suspected", len(result.Suspected)),
		zap.Int("changes", len(changes)))
	return result, changes, nil
}

func (s *Orchestrator) ruleEngine(rulesPath string, ledger *archive.Ledger) (*rules.Engine, error) {
	var loader rules.Loader
	set, err := loader.Load(rulesPath)
	if err != nil {
		return nil, err
	}
	engine := rules.NewEngine(set, s.Logger)
	engine.CategoryID = ledger.CategoryID
	engine.CategoryName = ledger.CategoryTitle
	return engine, nil
}

// workingSet selects the transactions a local pass operates on.
func (s *Orchestrator) workingSet(ledger *archive.Ledger, opts Options) []model.Transaction {
	if opts.ID != 0 {
		t, ok := ledger.Transaction(opts.ID)
		if !ok {
			return nil
		}
		return []model.Transaction{t}
	}
	return ledger.TransactionsIn(opts.Window)
}

func matchContext(ledger *archive.Ledger, t *model.Transaction) rules.MatchContext {
	var ctx rules.MatchContext
	if a, ok := ledger.Account(t.AccountID); ok {
		ctx.Account = &a
	}
	if t.CategoryID != nil {
		ctx.CategoryTitle = ledger.CategoryTitle(*t.CategoryID)
	}
	return ctx
}

// transferCategoryID finds the remote category that marks transfers, by
// title. Archive-loaded titles carry their ledger root, so only the
// last segment is matched. Zero when the user has none.
func transferCategoryID(ledger *archive.Ledger) int64 {
	for _, c := range ledger.Categories() {
		title := c.Title
		if i := strings.LastIndexByte(title, ':'); i >= 0 {
			title = title[i+1:]
		}
		if strings.EqualFold(title, "transfer") || strings.EqualFold(title, "transfers") {
			return c.ID
		}
	}
	return 0
}

func applied(apps []rules.Application) bool {
	for _, a := range apps {
		if a.Status != rules.StatusInvalid {
			return true
		}
	}
	return false
}
