package resolve

import (
	"strconv"

	"github.com/beansync/beansync/internal/model"
)

// fieldSpec binds a transaction field to its strategy and the typed
// accessors the resolver needs. Specs are iterated in declaration order
// (model.FieldNames order) so emitted mutations are reproducible.
type fieldSpec struct {
	name     string
	strategy func(Direction) Strategy
	equal    func(a, b *model.Transaction) bool
	render   func(t *model.Transaction, r *Resolver) string
	copyTo   func(dst, src *model.Transaction)
}

func fixed(s Strategy) func(Direction) Strategy {
	return func(Direction) Strategy { return s }
}

var fieldSpecs = []fieldSpec{
	{
		name:     "date",
		strategy: fixed(Immutable),
		equal:    func(a, b *model.Transaction) bool { return a.Date.Equal(b.Date) },
		render:   func(t *model.Transaction, _ *Resolver) string { return t.Date.String() },
		copyTo:   func(dst, src *model.Transaction) { dst.Date = src.Date },
	},
	{
		name:     "amount",
		strategy: fixed(Immutable),
		equal:    func(a, b *model.Transaction) bool { return a.Amount.Equal(b.Amount) },
		render:   func(t *model.Transaction, _ *Resolver) string { return t.Amount.StringFixed(2) },
		copyTo:   func(dst, src *model.Transaction) { dst.Amount = src.Amount },
	},
	{
		name:     "currency",
		strategy: fixed(Immutable),
		equal:    func(a, b *model.Transaction) bool { return a.Currency == b.Currency },
		render:   func(t *model.Transaction, _ *Resolver) string { return t.Currency },
		copyTo:   func(dst, src *model.Transaction) { dst.Currency = src.Currency },
	},
	{
		name:     "account_id",
		strategy: fixed(Immutable),
		equal:    func(a, b *model.Transaction) bool { return a.AccountID == b.AccountID },
		render: func(t *model.Transaction, _ *Resolver) string {
			return strconv.FormatInt(t.AccountID, 10)
		},
		copyTo: func(dst, src *model.Transaction) { dst.AccountID = src.AccountID },
	},
	{
		name: "category_id",
		strategy: func(d Direction) Strategy {
			// The push command intentionally inverts the pull-time
			// strategy so user corrections can be promoted.
			if d == Push {
				return LocalWins
			}
			return RemoteWins
		},
		equal: func(a, b *model.Transaction) bool { return int64PtrEqual(a.CategoryID, b.CategoryID) },
		render: func(t *model.Transaction, r *Resolver) string {
			if t.CategoryID == nil {
				return "null"
			}
			if r != nil && r.CategoryName != nil {
				if name := r.CategoryName(*t.CategoryID); name != "" {
					return name
				}
			}
			return strconv.FormatInt(*t.CategoryID, 10)
		},
		copyTo: func(dst, src *model.Transaction) { dst.CategoryID = clonePtr(src.CategoryID) },
	},
	{
		name:     "payee",
		strategy: fixed(LocalWins),
		equal:    func(a, b *model.Transaction) bool { return a.Payee == b.Payee },
		render:   func(t *model.Transaction, _ *Resolver) string { return t.Payee },
		copyTo:   func(dst, src *model.Transaction) { dst.Payee = src.Payee },
	},
	{
		name:     "narration",
		strategy: fixed(LocalWins),
		equal:    func(a, b *model.Transaction) bool { return a.Narration == b.Narration },
		render:   func(t *model.Transaction, _ *Resolver) string { return t.Narration },
		copyTo:   func(dst, src *model.Transaction) { dst.Narration = src.Narration },
	},
	{
		name:     "labels",
		strategy: fixed(MergeSet),
		equal:    func(a, b *model.Transaction) bool { return a.Labels.Equal(b.Labels) },
		render:   func(t *model.Transaction, _ *Resolver) string { return t.Labels.String() },
		copyTo:   func(dst, src *model.Transaction) { dst.Labels = src.Labels.Clone() },
	},
	{
		name:     "needs_review",
		strategy: fixed(RemoteWins),
		equal:    func(a, b *model.Transaction) bool { return a.NeedsReview == b.NeedsReview },
		render:   func(t *model.Transaction, _ *Resolver) string { return strconv.FormatBool(t.NeedsReview) },
		copyTo:   func(dst, src *model.Transaction) { dst.NeedsReview = src.NeedsReview },
	},
	{
		name:     "is_transfer",
		strategy: fixed(LocalWins),
		equal:    func(a, b *model.Transaction) bool { return a.IsTransfer == b.IsTransfer },
		render:   func(t *model.Transaction, _ *Resolver) string { return strconv.FormatBool(t.IsTransfer) },
		copyTo:   func(dst, src *model.Transaction) { dst.IsTransfer = src.IsTransfer },
	},
	{
		name:     "paired_id",
		strategy: fixed(LocalWins),
		equal:    func(a, b *model.Transaction) bool { return int64PtrEqual(a.PairedID, b.PairedID) },
		render: func(t *model.Transaction, _ *Resolver) string {
			if t.PairedID == nil {
				return "null"
			}
			return strconv.FormatInt(*t.PairedID, 10)
		},
		copyTo: func(dst, src *model.Transaction) { dst.PairedID = clonePtr(src.PairedID) },
	},
	{
		name:     "suspect_reason",
		strategy: fixed(LocalWins),
		equal:    func(a, b *model.Transaction) bool { return a.SuspectReason == b.SuspectReason },
		render: func(t *model.Transaction, _ *Resolver) string {
			if t.SuspectReason == "" {
				return "null"
			}
			return t.SuspectReason
		},
		copyTo: func(dst, src *model.Transaction) { dst.SuspectReason = src.SuspectReason },
	},
	{
		name:     "closing_balance",
		strategy: fixed(Immutable),
		equal: func(a, b *model.Transaction) bool {
			if (a.ClosingBalance == nil) != (b.ClosingBalance == nil) {
				return false
			}
			return a.ClosingBalance == nil || a.ClosingBalance.Equal(*b.ClosingBalance)
		},
		render: func(t *model.Transaction, _ *Resolver) string {
			if t.ClosingBalance == nil {
				return "null"
			}
			return t.ClosingBalance.StringFixed(2)
		},
		copyTo: func(dst, src *model.Transaction) {
			if src.ClosingBalance == nil {
				dst.ClosingBalance = nil
				return
			}
			v := *src.ClosingBalance
			dst.ClosingBalance = &v
		},
	},
	{
		name:     "updated_at",
		strategy: fixed(RemoteOverwrite),
		equal:    func(a, b *model.Transaction) bool { return a.UpdatedAt.Equal(b.UpdatedAt) },
		render: func(t *model.Transaction, _ *Resolver) string {
			if t.UpdatedAt.IsZero() {
				return "null"
			}
			return t.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		},
		copyTo: func(dst, src *model.Transaction) { dst.UpdatedAt = src.UpdatedAt },
	},
}

func int64PtrEqual(a, b *int64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func clonePtr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// FieldResolution is the outcome of resolving a single differing field.
type FieldResolution struct {
	Field    string
	Strategy Strategy
	Kind     Kind
	Local    string
	Remote   string
}

// Result carries the full resolution of one transaction pair: the
// desired state of both sides, the per-field diagnostics, and the
// mutation records that realize the desired state.
type Result struct {
	ID            int64
	Fields        []FieldResolution
	LocalDesired  model.Transaction
	RemoteDesired model.Transaction
	mutations     []Mutation
}

// Mutations returns the mutation records for one side, in field
// declaration order.
func (r Result) Mutations(target Target) []Mutation {
	var out []Mutation
	for _, m := range r.mutations {
		if m.Target == target {
			out = append(out, m)
		}
	}
	return out
}

// AllMutations returns every mutation in field declaration order.
func (r Result) AllMutations() []Mutation {
	return append([]Mutation(nil), r.mutations...)
}

// Conflicts returns the immutable-field conflict warnings.
func (r Result) Conflicts() []FieldResolution {
	var out []FieldResolution
	for _, f := range r.Fields {
		if f.Kind == KindConflict {
			out = append(out, f)
		}
	}
	return out
}

// Changed reports whether any field differed between the two sides.
func (r Result) Changed() bool { return len(r.Fields) > 0 }

// Resolver resolves transaction pairs. The zero value is usable;
// CategoryName, when set, renders category ids as human-readable titles
// in mutation records and diagnostics.
type Resolver struct {
	CategoryName func(id int64) string
}

// Resolve applies the per-field strategies to a (local, remote) pair.
// It is deterministic and performs no I/O. If updated_at is missing on
// one side it is treated as the earliest representable instant, making
// the other side newer; equal timestamps fall through to the strategy
// defaults, which is also the only behavior the strategies need.
func (r *Resolver) Resolve(local, remote model.Transaction, dir Direction) Result {
	res := Result{
		ID:            remote.ID,
		LocalDesired:  local.Clone(),
		RemoteDesired: remote.Clone(),
	}
	if res.ID == 0 {
		res.ID = local.ID
	}

	for _, spec := range fieldSpecs {
		if spec.equal(&local, &remote) {
			continue
		}

		localStr := spec.render(&local, r)
		remoteStr := spec.render(&remote, r)
		fr := FieldResolution{
			Field:    spec.name,
			Strategy: spec.strategy(dir),
			Local:    localStr,
			Remote:   remoteStr,
		}

		switch fr.Strategy {
		case Immutable:
			fr.Kind = KindConflict

		case LocalWins:
			fr.Kind = KindAppliedLocal
			spec.copyTo(&res.RemoteDesired, &local)
			res.mutations = append(res.mutations, Mutation{
				TxnID: res.ID, Field: spec.name,
				Old: remoteStr, New: localStr, Target: TargetRemote,
			})

		case RemoteOverwrite, RemoteWins:
			fr.Kind = KindAppliedRemote
			spec.copyTo(&res.LocalDesired, &remote)
			res.mutations = append(res.mutations, Mutation{
				TxnID: res.ID, Field: spec.name,
				Old: localStr, New: remoteStr, Target: TargetLocal,
			})

		case MergeSet:
			fr.Kind = KindMerged
			merged := local.Labels.Union(remote.Labels)
			mergedStr := merged.String()
			if !merged.Equal(local.Labels) {
				res.LocalDesired.Labels = merged.Clone()
				res.mutations = append(res.mutations, Mutation{
					TxnID: res.ID, Field: spec.name,
					Old: localStr, New: mergedStr, Target: TargetLocal,
				})
			}
			if !merged.Equal(remote.Labels) {
				res.RemoteDesired.Labels = merged.Clone()
				res.mutations = append(res.mutations, Mutation{
					TxnID: res.ID, Field: spec.name,
					Old: remoteStr, New: mergedStr, Target: TargetRemote,
				})
			}
		}

		res.Fields = append(res.Fields, fr)
	}

	return res
}
