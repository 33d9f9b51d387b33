package transfers

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/beansync/beansync/internal/model"
)

// Pair is a matched transfer. Source is the outflow side, Dest the
// inflow side; when both sides share a sign the lower id is Source.
type Pair struct {
	Source *model.Transaction
	Dest   *model.Transaction
	// Confirmed pairs meet every strict criterion; suspected pairs
	// carry the comma-joined Reason tokens instead.
	Confirmed bool
	Reason    string
}

// PatternNote reports that several suspected pairs share one reason,
// suggesting the criteria may want adjusting.
type PatternNote struct {
	Reason string
	Count  int
}

// Result is the outcome of one detection run.
type Result struct {
	Confirmed []Pair
	Suspected []Pair
	Unmatched []*model.Transaction
	Patterns  []PatternNote
}

// TotalPairs counts confirmed plus suspected pairs.
func (r Result) TotalPairs() int { return len(r.Confirmed) + len(r.Suspected) }

// Detector finds transfer pairs over a transaction set. Matching is
// greedy: each transaction takes its nearest-by-date eligible candidate
// (smallest id breaking ties) and both leave the pool.
type Detector struct {
	criteria DetectionCriteria
	descRe   *regexp.Regexp
	logger   *zap.Logger

	// AccountName renders an account id for FX matching. Without it no
	// account counts as FX-enabled.
	AccountName func(id int64) string
}

// NewDetector builds a detector over the given criteria.
func NewDetector(criteria DetectionCriteria, logger *zap.Logger) (*Detector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	re, err := criteria.descriptionPattern()
	if err != nil {
		return nil, err
	}
	return &Detector{criteria: criteria, descRe: re, logger: logger}, nil
}

// Detect runs both passes over the transactions: confirmed first with
// the strict window and tolerance, then suspected with the relaxed
// ones. Transactions already paired to a counterpart present in the
// input are skipped, so a re-run over annotated data matches nothing.
func (d *Detector) Detect(txns []*model.Transaction) Result {
	ordered := make([]*model.Transaction, len(txns))
	copy(ordered, txns)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	byID := make(map[int64]*model.Transaction, len(ordered))
	for _, t := range ordered {
		byID[t.ID] = t
	}

	paired := make(map[int64]bool)
	for _, t := range ordered {
		if t.PairedID == nil {
			continue
		}
		other, ok := byID[*t.PairedID]
		if ok && other.PairedID != nil && *other.PairedID == t.ID {
			paired[t.ID] = true
			paired[other.ID] = true
		}
	}

	idx := buildIndex(ordered, d.criteria.SuspectedDateDays)
	var byDate []*model.Transaction
	if idx.degenerate(d.criteria.BucketThreshold) {
		d.logger.Warn("candidate index degenerate, falling back to sorted scan",
			zap.Int("largest_bucket", idx.maxCell),
			zap.Int("threshold", d.criteria.BucketThreshold))
		byDate = make([]*model.Transaction, len(ordered))
		copy(byDate, ordered)
		sort.Slice(byDate, func(i, j int) bool { return byDate[i].Date.Before(byDate[j].Date) })
		idx = nil
	}

	lookup := func(t *model.Transaction, maxDays int, tolerance decimal.Decimal) []*model.Transaction {
		if idx != nil {
			return idx.candidates(t, maxDays, tolerance)
		}
		return sortedScan(byDate, t, maxDays, tolerance)
	}

	var result Result

	// Confirmed pass: strict date window, absolute amount tolerance.
	for _, t := range ordered {
		if paired[t.ID] {
			continue
		}
		cands := lookup(t, d.criteria.ConfirmedDateDays, d.criteria.AmountTolerance)
		sortCandidates(t, cands)
		for _, c := range cands {
			if paired[c.ID] || !oppositeSigns(t, c) {
				continue
			}
			result.Confirmed = append(result.Confirmed, makePair(t, c, true, ""))
			paired[t.ID], paired[c.ID] = true, true
			break
		}
	}

	// Suspected pass: relaxed date window, FX-relative amount tolerance.
	for _, t := range ordered {
		if paired[t.ID] {
			continue
		}
		tolerance := t.Amount.Abs().Mul(d.criteria.FXTolerancePercent).Div(decimal.NewFromInt(100))
		cands := lookup(t, d.criteria.SuspectedDateDays, tolerance)
		sortCandidates(t, cands)
		for _, c := range cands {
			if paired[c.ID] {
				continue
			}
			reasons := d.suspectReasons(t, c)
			if len(reasons) == 0 {
				continue
			}
			result.Suspected = append(result.Suspected, makePair(t, c, false, strings.Join(reasons, ",")))
			paired[t.ID], paired[c.ID] = true, true
			break
		}
	}

	for _, t := range ordered {
		if !paired[t.ID] {
			result.Unmatched = append(result.Unmatched, t)
		}
	}

	result.Patterns = d.patterns(result.Suspected)
	return result
}

// suspectReasons collects every reason the pair looks like a transfer
// without being confirmable. Empty means no suspicion.
func (d *Detector) suspectReasons(t, c *model.Transaction) []string {
	var reasons []string
	if !oppositeSigns(t, c) {
		reasons = append(reasons, "same-direction")
	}
	if d.fxAmountMismatch(t, c) {
		reasons = append(reasons, "amount-mismatch-fx")
	}
	if days := model.DaysBetween(t.Date, c.Date); days > d.criteria.ConfirmedDateDays {
		reasons = append(reasons, fmt.Sprintf("date-delay-%dd", days))
	}
	if d.descriptionSuggests(t) || d.descriptionSuggests(c) {
		reasons = append(reasons, "description-based")
	}
	return reasons
}

// fxAmountMismatch reports whether the absolute amounts differ by at
// most the FX tolerance percent (of their average) and at least one
// side sits on an FX-enabled account. An exact match is not a mismatch.
func (d *Detector) fxAmountMismatch(t, c *model.Transaction) bool {
	if !d.fxEnabled(t.AccountID) && !d.fxEnabled(c.AccountID) {
		return false
	}
	a, b := t.Amount.Abs(), c.Amount.Abs()
	diff := a.Sub(b).Abs()
	if diff.IsZero() {
		return false
	}
	avg := a.Add(b).Div(decimal.NewFromInt(2))
	if avg.IsZero() {
		return false
	}
	percent := diff.Div(avg).Mul(decimal.NewFromInt(100))
	return percent.LessThanOrEqual(d.criteria.FXTolerancePercent)
}

func (d *Detector) fxEnabled(accountID int64) bool {
	if d.AccountName == nil || len(d.criteria.FXAccounts) == 0 {
		return false
	}
	name := strings.ToLower(d.AccountName(accountID))
	if name == "" {
		return false
	}
	for _, fx := range d.criteria.FXAccounts {
		if strings.Contains(name, strings.ToLower(fx)) {
			return true
		}
	}
	return false
}

// descriptionSuggests reports whether the free text mentions "transfer"
// next to a configured account-holder name variation.
func (d *Detector) descriptionSuggests(t *model.Transaction) bool {
	if d.descRe == nil {
		return false
	}
	text := t.Payee + " " + t.Narration
	if !strings.Contains(strings.ToLower(text), "transfer") {
		return false
	}
	return d.descRe.MatchString(text)
}

// patterns aggregates suspected reasons that recur at or above the
// pattern threshold, sorted by reason token.
func (d *Detector) patterns(suspected []Pair) []PatternNote {
	counts := make(map[string]int)
	for _, p := range suspected {
		for _, reason := range strings.Split(p.Reason, ",") {
			counts[reason]++
		}
	}

	var notes []PatternNote
	for reason, n := range counts {
		if n >= d.criteria.PatternThreshold {
			notes = append(notes, PatternNote{Reason: reason, Count: n})
		}
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Reason < notes[j].Reason })
	for _, note := range notes {
		d.logger.Info("suspected transfer pattern",
			zap.String("reason", note.Reason), zap.Int("count", note.Count))
	}
	return notes
}

func oppositeSigns(a, b *model.Transaction) bool {
	return a.Amount.Sign()*b.Amount.Sign() < 0
}

// makePair orders the sides so the outflow is Source. Same-direction
// suspects have no natural source, so the lower id takes it.
func makePair(t, c *model.Transaction, confirmed bool, reason string) Pair {
	source, dest := t, c
	switch {
	case c.Amount.IsNegative() && !t.Amount.IsNegative():
		source, dest = c, t
	case t.Amount.Sign() == c.Amount.Sign() && c.ID < t.ID:
		source, dest = c, t
	}
	return Pair{Source: source, Dest: dest, Confirmed: confirmed, Reason: reason}
}

// sortCandidates orders by date proximity to t, then ascending id.
func sortCandidates(t *model.Transaction, cands []*model.Transaction) {
	sort.Slice(cands, func(i, j int) bool {
		di, dj := model.DaysBetween(cands[i].Date, t.Date), model.DaysBetween(cands[j].Date, t.Date)
		if di != dj {
			return di < dj
		}
		return cands[i].ID < cands[j].ID
	})
}
