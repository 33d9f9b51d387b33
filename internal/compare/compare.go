// Package compare pairs local and remote transactions by identity and
// computes field-level diffs through the resolver. It never mutates
// either side; callers decide what to do with the resulting report.
package compare

import (
	"sort"

	"github.com/beansync/beansync/internal/model"
	"github.com/beansync/beansync/internal/resolve"
)

// Class is the per-id comparison outcome. Every id falls into exactly
// one class.
type Class string

const (
	OnlyLocal  Class = "only-local"
	OnlyRemote Class = "only-remote"
	Identical  Class = "identical"
	Differs    Class = "differs"
)

// Result is the comparison outcome for one transaction id.
type Result struct {
	ID     int64
	Class  Class
	Local  *model.Transaction
	Remote *model.Transaction
	// Resolution is populated only for Differs pairs.
	Resolution resolve.Result
}

// Summary counts results per class.
type Summary struct {
	Identical  int
	Differs    int
	OnlyLocal  int
	OnlyRemote int
}

// Total returns the number of compared ids.
func (s Summary) Total() int {
	return s.Identical + s.Differs + s.OnlyLocal + s.OnlyRemote
}

// Report is the full comparison output, ordered by ascending id.
type Report struct {
	Results []Result
	Summary Summary
}

// Differing returns the Differs results in order.
func (r Report) Differing() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Class == Differs {
			out = append(out, res)
		}
	}
	return out
}

// Options scope a comparison.
type Options struct {
	// Window restricts comparison to transactions dated inside it.
	Window model.DateWindow
	// ID, when non-zero, restricts comparison to a single transaction.
	ID int64
	// Direction selects pull- or push-time strategies.
	Direction resolve.Direction
}

// Compare pairs the two collections by id and resolves each pair.
// Unknown ids on either side are classified rather than guessed at;
// this system never deletes locally, so only-local is a report, not an
// action.
func Compare(resolver *resolve.Resolver, local, remote []model.Transaction, opts Options) Report {
	localByID := index(local, opts)
	remoteByID := index(remote, opts)

	ids := make([]int64, 0, len(localByID)+len(remoteByID))
	seen := make(map[int64]bool, len(localByID)+len(remoteByID))
	for id := range localByID {
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	for id := range remoteByID {
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	report := Report{Results: make([]Result, 0, len(ids))}
	for _, id := range ids {
		l, haveLocal := localByID[id]
		r, haveRemote := remoteByID[id]

		res := Result{ID: id}
		switch {
		case haveLocal && !haveRemote:
			res.Class = OnlyLocal
			res.Local = &l
			report.Summary.OnlyLocal++
		case !haveLocal && haveRemote:
			res.Class = OnlyRemote
			res.Remote = &r
			report.Summary.OnlyRemote++
		default:
			res.Local = &l
			res.Remote = &r
			res.Resolution = resolver.Resolve(l, r, opts.Direction)
			if res.Resolution.Changed() {
				res.Class = Differs
				report.Summary.Differs++
			} else {
				res.Class = Identical
				report.Summary.Identical++
			}
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func index(txns []model.Transaction, opts Options) map[int64]model.Transaction {
	out := make(map[int64]model.Transaction, len(txns))
	for _, t := range txns {
		if opts.ID != 0 && t.ID != opts.ID {
			continue
		}
		if !opts.Window.Contains(t.Date) {
			continue
		}
		out[t.ID] = t
	}
	return out
}
