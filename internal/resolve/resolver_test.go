package resolve

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beansync/beansync/internal/model"
)

func baseTxn() model.Transaction {
	return model.Transaction{
		ID:        42,
		Date:      model.NewDate(2024, time.January, 15),
		Amount:    decimal.RequireFromString("-10.00"),
		Currency:  "AUD",
		AccountID: 1,
		Payee:     "Starbucks #42",
		Labels:    model.NewLabelSet("coffee"),
		UpdatedAt: time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC),
	}
}

func TestResolveIdenticalIsEmpty(t *testing.T) {
	var r Resolver
	res := r.Resolve(baseTxn(), baseTxn(), Pull)
	assert.False(t, res.Changed())
	assert.Empty(t, res.AllMutations())
}

func TestImmutableConflictEmitsWarningNoMutation(t *testing.T) {
	// Scenario S2: local -10.00 vs remote -10.50.
	local := baseTxn()
	remote := baseTxn()
	remote.Amount = decimal.RequireFromString("-10.50")

	var r Resolver
	res := r.Resolve(local, remote, Pull)

	require.Len(t, res.Fields, 1)
	assert.Equal(t, "amount", res.Fields[0].Field)
	assert.Equal(t, KindConflict, res.Fields[0].Kind)
	assert.Empty(t, res.AllMutations())
	assert.True(t, res.LocalDesired.Amount.Equal(local.Amount), "local stays -10.00")
}

func TestMergeSetUnion(t *testing.T) {
	// Scenario S1: local [coffee], remote [coffee morning].
	local := baseTxn()
	remote := baseTxn()
	remote.Labels = model.NewLabelSet("coffee", "morning")

	var r Resolver
	res := r.Resolve(local, remote, Pull)

	locals := res.Mutations(TargetLocal)
	require.Len(t, locals, 1)
	assert.Equal(t, "labels", locals[0].Field)
	assert.Equal(t, "[coffee]", locals[0].Old)
	assert.Equal(t, "[coffee morning]", locals[0].New)

	assert.Empty(t, res.Mutations(TargetRemote), "local is a subset; remote untouched")
	assert.Equal(t, []string{"coffee", "morning"}, res.LocalDesired.Labels.Tokens())
}

func TestMergeSetUpdatesBothSides(t *testing.T) {
	local := baseTxn()
	local.Labels = model.NewLabelSet("coffee", "work")
	remote := baseTxn()
	remote.Labels = model.NewLabelSet("coffee", "morning")

	var r Resolver
	res := r.Resolve(local, remote, Pull)

	require.Len(t, res.Mutations(TargetLocal), 1)
	require.Len(t, res.Mutations(TargetRemote), 1)
	assert.Equal(t, "[coffee morning work]", res.Mutations(TargetLocal)[0].New)
	assert.True(t, res.LocalDesired.Labels.Equal(res.RemoteDesired.Labels))
}

func TestLocalWinsWritesBack(t *testing.T) {
	local := baseTxn()
	local.Narration = "team lunch"
	remote := baseTxn()
	remote.Narration = ""

	var r Resolver
	res := r.Resolve(local, remote, Pull)

	remotes := res.Mutations(TargetRemote)
	require.Len(t, remotes, 1)
	assert.Equal(t, "narration", remotes[0].Field)
	assert.Equal(t, "team lunch", remotes[0].New)
	assert.Empty(t, res.Mutations(TargetLocal))
	assert.Equal(t, "team lunch", res.RemoteDesired.Narration)
}

func TestCategoryDirectionDependent(t *testing.T) {
	// Scenario S6: local category promoted on push, remote wins on pull.
	localCat, remoteCat := int64(7), int64(9)
	local := baseTxn()
	local.CategoryID = &localCat
	remote := baseTxn()
	remote.CategoryID = &remoteCat

	r := Resolver{CategoryName: func(id int64) string {
		if id == 7 {
			return "Expenses:Groceries"
		}
		return "Expenses:Uncategorized"
	}}

	pull := r.Resolve(local, remote, Pull)
	require.Len(t, pull.Mutations(TargetLocal), 1)
	assert.Equal(t, "Expenses:Uncategorized", pull.Mutations(TargetLocal)[0].New)
	assert.Empty(t, pull.Mutations(TargetRemote))

	push := r.Resolve(local, remote, Push)
	remotes := push.Mutations(TargetRemote)
	require.Len(t, remotes, 1)
	assert.Equal(t, "category_id", remotes[0].Field)
	assert.Equal(t, "Expenses:Uncategorized", remotes[0].Old)
	assert.Equal(t, "Expenses:Groceries", remotes[0].New)
	assert.Empty(t, push.Mutations(TargetLocal))
}

func TestRemoteWinsOverwritesLocal(t *testing.T) {
	local := baseTxn()
	local.NeedsReview = true
	remote := baseTxn()
	remote.NeedsReview = false

	var r Resolver
	res := r.Resolve(local, remote, Pull)

	locals := res.Mutations(TargetLocal)
	require.Len(t, locals, 1)
	assert.Equal(t, "needs_review", locals[0].Field)
	assert.False(t, res.LocalDesired.NeedsReview)
}

func TestResolveIsPure(t *testing.T) {
	local := baseTxn()
	local.Narration = "a"
	local.Labels = model.NewLabelSet("coffee", "work")
	remote := baseTxn()
	remote.Narration = "b"
	remote.Labels = model.NewLabelSet("morning")
	remote.NeedsReview = true

	var r Resolver
	first := r.Resolve(local, remote, Pull)
	second := r.Resolve(local, remote, Pull)

	assert.Equal(t, first.Fields, second.Fields)
	assert.Equal(t, first.AllMutations(), second.AllMutations())
}

func TestMutationsInDeclarationOrder(t *testing.T) {
	local := baseTxn()
	local.Narration = "x"
	local.SuspectReason = "same-direction"
	remote := baseTxn()
	remote.NeedsReview = true

	var r Resolver
	res := r.Resolve(local, remote, Pull)

	var fields []string
	for _, m := range res.AllMutations() {
		fields = append(fields, m.Field)
	}
	assert.Equal(t, []string{"narration", "needs_review", "suspect_reason"}, fields)
}
