package rules

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/beansync/beansync/internal/model"
)

// Status is the outcome of a single transform.
type Status string

const (
	// StatusApplied means the transform changed the transaction.
	StatusApplied Status = "applied"
	// StatusInvalid means the transform's target could not be resolved
	// (e.g. unknown category name). Other transforms in the rule still
	// apply.
	StatusInvalid Status = "invalid"
	// StatusConflict means the transform applied but overwrote a
	// differing non-empty value.
	StatusConflict Status = "conflict-warning"
)

// Application records one applied (or failed) transform for logging.
type Application struct {
	RuleID int64
	TxnID  int64
	Field  string
	Old    string
	New    string
	Status Status
}

// Engine matches and applies a loaded rule set. Application is a
// local-only operation: it mutates the transaction value passed in and
// reports what changed; pushing those changes to the remote is the push
// command's job alone.
type Engine struct {
	rules []Rule

	// CategoryID resolves a category name to its id.
	CategoryID func(name string) (int64, bool)
	// CategoryName renders a category id for log entries.
	CategoryName func(id int64) string

	logger *zap.Logger
}

// NewEngine builds an engine over a sorted rule set.
func NewEngine(rules []Rule, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	sortRules(rules)
	return &Engine{rules: rules, logger: logger}
}

// Rules returns the sorted rule set.
func (e *Engine) Rules() []Rule { return e.rules }

// Lookup returns the rule that would fire for the transaction, or nil.
func (e *Engine) Lookup(txn *model.Transaction, ctx MatchContext) *Rule {
	return FirstMatch(e.rules, txn, ctx)
}

// Apply runs first-match-wins rule application against one transaction,
// mutating it in place. Re-running over an already-transformed
// transaction yields no applications: label adds are set operations and
// memo/category sets compare before emitting.
func (e *Engine) Apply(txn *model.Transaction, ctx MatchContext) []Application {
	rule := FirstMatch(e.rules, txn, ctx)
	if rule == nil {
		return nil
	}

	var out []Application
	for _, tr := range rule.Then {
		apps := e.applyTransform(rule, tr, txn)
		out = append(out, apps...)
	}
	return out
}

func (e *Engine) applyTransform(rule *Rule, tr Transform, txn *model.Transaction) []Application {
	switch tr.Kind {
	case TransformCategory:
		return e.applyCategory(rule, tr, txn)
	case TransformLabels:
		return e.applyLabels(rule, tr, txn)
	case TransformMemo:
		return e.applyMemo(rule, tr, txn)
	case TransformMetadata:
		return e.applyMetadata(rule, tr, txn)
	}
	return nil
}

func (e *Engine) applyCategory(rule *Rule, tr Transform, txn *model.Transaction) []Application {
	if e.CategoryID == nil {
		return []Application{{
			RuleID: rule.ID, TxnID: txn.ID, Field: "category_id",
			New: tr.Category, Status: StatusInvalid,
		}}
	}
	id, ok := e.CategoryID(tr.Category)
	if !ok {
		e.logger.Warn("rule category not resolvable",
			zap.Int64("rule", rule.ID), zap.String("category", tr.Category))
		return []Application{{
			RuleID: rule.ID, TxnID: txn.ID, Field: "category_id",
			New: tr.Category, Status: StatusInvalid,
		}}
	}
	if txn.CategoryID != nil && *txn.CategoryID == id {
		return nil
	}

	old := "null"
	if txn.CategoryID != nil {
		old = e.renderCategory(*txn.CategoryID)
	}
	txn.CategoryID = &id
	return []Application{{
		RuleID: rule.ID, TxnID: txn.ID, Field: "category_id",
		Old: old, New: tr.Category, Status: StatusApplied,
	}}
}

func (e *Engine) applyLabels(rule *Rule, tr Transform, txn *model.Transaction) []Application {
	next := txn.Labels.Clone()
	for _, raw := range tr.Labels {
		switch {
		case len(raw) > 0 && raw[0] == '-':
			next.Remove(raw[1:])
		case len(raw) > 0 && raw[0] == '+':
			if err := next.Add(raw[1:]); err != nil {
				return []Application{{
					RuleID: rule.ID, TxnID: txn.ID, Field: "labels",
					New: raw, Status: StatusInvalid,
				}}
			}
		default:
			if err := next.Add(raw); err != nil {
				return []Application{{
					RuleID: rule.ID, TxnID: txn.ID, Field: "labels",
					New: raw, Status: StatusInvalid,
				}}
			}
		}
	}
	if next.Equal(txn.Labels) {
		return nil
	}

	old := txn.Labels.String()
	txn.Labels = next
	return []Application{{
		RuleID: rule.ID, TxnID: txn.ID, Field: "labels",
		Old: old, New: next.String(), Status: StatusApplied,
	}}
}

func (e *Engine) applyMemo(rule *Rule, tr Transform, txn *model.Transaction) []Application {
	if txn.Narration == tr.Memo {
		return nil
	}
	status := StatusApplied
	if txn.Narration != "" {
		status = StatusConflict
		e.logger.Warn("memo transform overwrites existing narration",
			zap.Int64("rule", rule.ID), zap.Int64("txn", txn.ID),
			zap.String("old", txn.Narration))
	}
	old := txn.Narration
	txn.Narration = tr.Memo
	return []Application{{
		RuleID: rule.ID, TxnID: txn.ID, Field: "narration",
		Old: old, New: tr.Memo, Status: status,
	}}
}

func (e *Engine) applyMetadata(rule *Rule, tr Transform, txn *model.Transaction) []Application {
	text, meta := model.DecodeNoteMetadata(txn.Narration)
	changed := false
	for k, v := range tr.Metadata {
		if meta[k] != v {
			meta[k] = v
			changed = true
		}
	}
	if !changed {
		return nil
	}

	old := txn.Narration
	txn.Narration = model.EncodeNoteMetadata(text, meta)
	return []Application{{
		RuleID: rule.ID, TxnID: txn.ID, Field: "narration",
		Old: old, New: txn.Narration, Status: StatusApplied,
	}}
}

func (e *Engine) renderCategory(id int64) string {
	if e.CategoryName != nil {
		if name := e.CategoryName(id); name != "" {
			return name
		}
	}
	return fmt.Sprintf("%d", id)
}
