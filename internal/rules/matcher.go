package rules

import (
	"strconv"
	"strings"

	"github.com/beansync/beansync/internal/model"
)

// MatchContext carries the resolved context a precondition needs beyond
// the transaction itself: the account record and the category title,
// both optional.
type MatchContext struct {
	Account       *model.Account
	CategoryTitle string
}

// Matches evaluates the precondition against a transaction. Missing
// condition keys match anything; present keys must all match.
func (p *Precondition) Matches(txn *model.Transaction, ctx MatchContext) bool {
	if p.merchantRe != nil && !p.merchantRe.MatchString(txn.Payee) {
		return false
	}

	if p.accountRe != nil {
		// Account predicates are scoped to asset/liability accounts;
		// with no account record there is nothing to match against.
		if ctx.Account == nil {
			return false
		}
		if !p.accountRe.MatchString(ctx.Account.DisplayName) {
			return false
		}
	}

	if p.categoryRe != nil {
		if ctx.CategoryTitle == "" || !categoryMatchable(ctx.CategoryTitle) {
			return false
		}
		if !p.categoryRe.MatchString(ctx.CategoryTitle) {
			return false
		}
	}

	if len(p.metadataRe) > 0 {
		meta := transactionMetadata(txn)
		for key, re := range p.metadataRe {
			val, ok := meta[key]
			if !ok || !re.MatchString(val) {
				return false
			}
		}
	}

	return true
}

// categoryMatchable scopes category predicates to income/expense
// categories. Balance-sheet titles never classify.
func categoryMatchable(title string) bool {
	root := title
	if i := strings.Index(title, ":"); i > 0 {
		root = title[:i]
	}
	switch root {
	case "Assets", "Liabilities", "Equity":
		return false
	}
	return true
}

// transactionMetadata flattens the transaction into the string map that
// metadata predicates match against: flags as "true"/"false", labels as
// a space-joined list, plus any note-embedded metadata.
func transactionMetadata(txn *model.Transaction) map[string]string {
	meta := map[string]string{
		"needs_review": strconv.FormatBool(txn.NeedsReview),
		"is_transfer":  strconv.FormatBool(txn.IsTransfer),
		"labels":       strings.Join(txn.Labels.Tokens(), " "),
	}
	if txn.SuspectReason != "" {
		meta["suspect_reason"] = txn.SuspectReason
	}
	if txn.PairedID != nil {
		meta["paired"] = strconv.FormatInt(*txn.PairedID, 10)
	}
	_, noteMeta := model.DecodeNoteMetadata(txn.Narration)
	for k, v := range noteMeta {
		meta[k] = v
	}
	return meta
}

// FirstMatch returns the first rule (ascending id order) whose
// precondition matches, or nil.
func FirstMatch(sorted []Rule, txn *model.Transaction, ctx MatchContext) *Rule {
	for i := range sorted {
		if sorted[i].Disabled {
			continue
		}
		if sorted[i].If.Matches(txn, ctx) {
			return &sorted[i]
		}
	}
	return nil
}
