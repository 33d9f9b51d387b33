package transfers

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/beansync/beansync/internal/model"
)

// bucketKey addresses one cell of the two-dimensional candidate index:
// a date bucket of SuspectedDateDays width and a hybrid amount bucket.
type bucketKey struct {
	date   int
	amount int
}

// amountBucket maps an absolute amount onto a hybrid scale: unit
// buckets under 10, tens to 100, fifties to 1000, five-hundreds to
// 10000, then one bucket per decade. Most personal transactions land
// under 1000, so the fine end carries most of the discrimination.
func amountBucket(abs decimal.Decimal) int {
	v, _ := abs.Float64()
	switch {
	case v < 1:
		return 0
	case v < 10:
		return int(v)
	case v < 100:
		return 10 + int(v/10)
	case v < 1000:
		return 20 + int(v/50)
	case v < 10000:
		return 40 + int(v/500)
	default:
		return 60 + int(math.Floor(math.Log10(v)))
	}
}

// txnIndex holds transactions hashed by (date bucket, amount bucket).
// Candidate lookup draws from the three adjacent date buckets crossed
// with the amount buckets spanned by the tolerance range, then filters
// exactly.
type txnIndex struct {
	dateBucketDays int
	cells          map[bucketKey][]*model.Transaction
	maxCell        int
}

func buildIndex(txns []*model.Transaction, dateBucketDays int) *txnIndex {
	idx := &txnIndex{
		dateBucketDays: dateBucketDays,
		cells:          make(map[bucketKey][]*model.Transaction),
	}
	for _, t := range txns {
		key := bucketKey{
			date:   idx.dateBucket(t.Date),
			amount: amountBucket(t.Amount.Abs()),
		}
		cell := append(idx.cells[key], t)
		idx.cells[key] = cell
		if len(cell) > idx.maxCell {
			idx.maxCell = len(cell)
		}
	}
	return idx
}

func (idx *txnIndex) dateBucket(d model.Date) int {
	days := d.EpochDays()
	// Floor division so negative epoch days bucket consistently.
	b := days / idx.dateBucketDays
	if days < 0 && days%idx.dateBucketDays != 0 {
		b--
	}
	return b
}

// degenerate reports whether any cell exceeds the threshold, in which
// case bucketed lookup no longer prunes and the caller should use the
// sorted scan instead.
func (idx *txnIndex) degenerate(threshold int) bool {
	return idx.maxCell > threshold
}

// candidates returns transactions within maxDays of t whose absolute
// amount lies inside [|t.amount|-tol, |t.amount|+tol] and whose account
// differs from t's. Pairing state is the caller's concern.
func (idx *txnIndex) candidates(t *model.Transaction, maxDays int, tolerance decimal.Decimal) []*model.Transaction {
	abs := t.Amount.Abs()
	lo, hi := abs.Sub(tolerance), abs.Add(tolerance)

	amountBuckets := map[int]struct{}{amountBucket(abs): {}}
	if tolerance.IsPositive() {
		first, last := amountBucket(lo), amountBucket(hi)
		for b := first; b <= last; b++ {
			amountBuckets[b] = struct{}{}
		}
	}

	db := idx.dateBucket(t.Date)
	var out []*model.Transaction
	for d := db - 1; d <= db+1; d++ {
		for ab := range amountBuckets {
			for _, c := range idx.cells[bucketKey{date: d, amount: ab}] {
				if matchesCandidate(t, c, maxDays, lo, hi) {
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// sortedScan is the degeneracy fallback: txns must be sorted by date.
// It binary-searches the symmetric date window around t and filters
// linearly.
func sortedScan(byDate []*model.Transaction, t *model.Transaction, maxDays int, tolerance decimal.Decimal) []*model.Transaction {
	abs := t.Amount.Abs()
	lo, hi := abs.Sub(tolerance), abs.Add(tolerance)

	from := t.Date.AddDays(-maxDays)
	start := sort.Search(len(byDate), func(i int) bool {
		return !byDate[i].Date.Before(from)
	})

	var out []*model.Transaction
	for i := start; i < len(byDate); i++ {
		c := byDate[i]
		if model.DaysBetween(c.Date, t.Date) > maxDays {
			break
		}
		if matchesCandidate(t, c, maxDays, lo, hi) {
			out = append(out, c)
		}
	}
	return out
}

func matchesCandidate(t, c *model.Transaction, maxDays int, lo, hi decimal.Decimal) bool {
	if c.ID == t.ID || c.AccountID == t.AccountID {
		return false
	}
	if model.DaysBetween(c.Date, t.Date) > maxDays {
		return false
	}
	abs := c.Amount.Abs()
	return abs.GreaterThanOrEqual(lo) && abs.LessThanOrEqual(hi)
}
