package transfers

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/beansync/beansync/internal/model"
)

// Change records one field mutation made by the applier, in the shape
// the changelog wants.
type Change struct {
	TxnID int64
	Field string
	Old   string
	New   string
}

// Applier writes detection results onto the transactions themselves.
// Confirmed pairs get is_transfer, cross-linked paired ids, and the
// transfer category; suspected pairs get only the paired id and the
// suspect reason. Writes are symmetric and skipped when the value is
// already in place, so re-applying a result is a no-op.
type Applier struct {
	// TransferCategoryID is the remote id of the user's transfer
	// category, resolved before detection starts. Zero leaves
	// categories untouched.
	TransferCategoryID int64
	// CategoryName renders category ids in change records.
	CategoryName func(id int64) string

	logger *zap.Logger
}

// NewApplier builds an applier targeting the given transfer category.
func NewApplier(transferCategoryID int64, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{TransferCategoryID: transferCategoryID, logger: logger}
}

// Apply mutates both sides of every pair in place and returns the
// changes in pair order, fields in declaration order within each
// transaction.
func (a *Applier) Apply(result Result) []Change {
	var changes []Change
	for _, p := range result.Confirmed {
		changes = append(changes, a.applyConfirmed(p.Source, p.Dest)...)
		changes = append(changes, a.applyConfirmed(p.Dest, p.Source)...)
	}
	for _, p := range result.Suspected {
		changes = append(changes, a.applySuspected(p.Source, p.Dest, p.Reason)...)
		changes = append(changes, a.applySuspected(p.Dest, p.Source, p.Reason)...)
	}
	return changes
}

func (a *Applier) applyConfirmed(t, other *model.Transaction) []Change {
	var changes []Change

	if a.TransferCategoryID != 0 && (t.CategoryID == nil || *t.CategoryID != a.TransferCategoryID) {
		old := a.renderCategory(t.CategoryID)
		id := a.TransferCategoryID
		t.CategoryID = &id
		changes = append(changes, Change{
			TxnID: t.ID, Field: "category_id",
			Old: old, New: a.renderCategory(t.CategoryID),
		})
	}

	if !t.IsTransfer {
		t.IsTransfer = true
		changes = append(changes, Change{
			TxnID: t.ID, Field: "is_transfer", Old: "false", New: "true",
		})
	}

	changes = append(changes, a.setPaired(t, other.ID)...)

	if t.SuspectReason != "" {
		changes = append(changes, Change{
			TxnID: t.ID, Field: "suspect_reason", Old: t.SuspectReason, New: "null",
		})
		t.SuspectReason = ""
	}

	return changes
}

func (a *Applier) applySuspected(t, other *model.Transaction, reason string) []Change {
	var changes []Change

	if t.IsTransfer {
		// A suspected pairing never demotes an established transfer.
		a.logger.Warn("suspected pair overlaps confirmed transfer, skipping",
			zap.Int64("txn", t.ID), zap.Int64("counterpart", other.ID))
		return nil
	}

	changes = append(changes, a.setPaired(t, other.ID)...)

	if t.SuspectReason != reason {
		old := t.SuspectReason
		if old == "" {
			old = "null"
		}
		t.SuspectReason = reason
		changes = append(changes, Change{
			TxnID: t.ID, Field: "suspect_reason", Old: old, New: reason,
		})
	}

	return changes
}

func (a *Applier) setPaired(t *model.Transaction, otherID int64) []Change {
	if t.PairedID != nil && *t.PairedID == otherID {
		return nil
	}
	old := "null"
	if t.PairedID != nil {
		old = strconv.FormatInt(*t.PairedID, 10)
	}
	t.PairedID = &otherID
	return []Change{{
		TxnID: t.ID, Field: "paired_id",
		Old: old, New: strconv.FormatInt(otherID, 10),
	}}
}

func (a *Applier) renderCategory(id *int64) string {
	if id == nil {
		return "null"
	}
	if a.CategoryName != nil {
		if name := a.CategoryName(*id); name != "" {
			return name
		}
	}
	return strconv.FormatInt(*id, 10)
}
