package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beansync/beansync/internal/model"
	"github.com/beansync/beansync/internal/rules"
)

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestResolveWindowExplicitBounds(t *testing.T) {
	w, err := windowSpec{from: "2024-01-01", to: "2024-03-31"}.resolveWindow(time.Now())
	require.NoError(t, err)
	assert.True(t, mustDate(t, "2024-01-01").Equal(w.From))
	assert.True(t, mustDate(t, "2024-03-31").Equal(w.To))
}

func TestResolveWindowOpenEnded(t *testing.T) {
	w, err := windowSpec{from: "2024-01-01"}.resolveWindow(time.Now())
	require.NoError(t, err)
	assert.False(t, w.From.IsZero())
	assert.True(t, w.To.IsZero())

	w, err = windowSpec{}.resolveWindow(time.Now())
	require.NoError(t, err)
	assert.True(t, w.IsZero())
}

func TestResolveWindowToWithoutFrom(t *testing.T) {
	_, err := windowSpec{to: "2024-03-31"}.resolveWindow(time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--to requires --from")
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestResolveWindowInvertedBounds(t *testing.T) {
	_, err := windowSpec{from: "2024-03-31", to: "2024-01-01"}.resolveWindow(time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before")
}

func TestResolveWindowNamedShortcuts(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	w, err := windowSpec{thisMonth: true}.resolveWindow(now)
	require.NoError(t, err)
	assert.True(t, mustDate(t, "2024-03-01").Equal(w.From))
	assert.True(t, mustDate(t, "2024-03-31").Equal(w.To))

	w, err = windowSpec{lastMonth: true}.resolveWindow(now)
	require.NoError(t, err)
	assert.True(t, mustDate(t, "2024-02-01").Equal(w.From))
	assert.True(t, mustDate(t, "2024-02-29").Equal(w.To), "leap February")

	w, err = windowSpec{thisYear: true}.resolveWindow(now)
	require.NoError(t, err)
	assert.True(t, mustDate(t, "2024-01-01").Equal(w.From))
	assert.True(t, mustDate(t, "2024-12-31").Equal(w.To))

	w, err = windowSpec{lastYear: true}.resolveWindow(now)
	require.NoError(t, err)
	assert.True(t, mustDate(t, "2023-01-01").Equal(w.From))
}

func TestResolveWindowShortcutConflicts(t *testing.T) {
	_, err := windowSpec{thisMonth: true, lastYear: true}.resolveWindow(time.Now())
	require.Error(t, err)

	_, err = windowSpec{thisMonth: true, from: "2024-01-01"}.resolveWindow(time.Now())
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestResolveWindowJanuaryRollsBack(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	w, err := windowSpec{lastMonth: true}.resolveWindow(now)
	require.NoError(t, err)
	assert.True(t, mustDate(t, "2023-12-01").Equal(w.From))
	assert.True(t, mustDate(t, "2023-12-31").Equal(w.To))
}

func TestRuleAddAndRemoveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "rules.yaml")

	ruleAddID = 11
	ruleAddMerchant = "uber"
	ruleAddCategory = "Expenses:Transport"
	ruleAddLabels = []string{"rideshare"}
	ruleAddMemo = ""
	t.Cleanup(func() {
		ruleAddID, ruleAddMerchant, ruleAddCategory, ruleAddLabels = 0, "", "", nil
	})

	require.NoError(t, appendRule(target))

	var loader rules.Loader
	set, err := loader.Load(target)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, int64(11), set[0].ID)
	assert.Equal(t, "uber", set[0].If.Merchant)
	require.Len(t, set[0].Then, 2)

	// Appending a second rule keeps the first.
	ruleAddID = 12
	ruleAddMerchant = "lyft"
	require.NoError(t, appendRule(target))
	set, err = loader.Load(target)
	require.NoError(t, err)
	require.Len(t, set, 2)

	removed, err := removeRule(target, 11)
	require.NoError(t, err)
	assert.True(t, removed)

	set, err = loader.Load(target)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, int64(12), set[0].ID)

	removed, err = removeRule(target, 99)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRuleAddRollsBackOnBadPattern(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(target, []byte("- id: 1\n  if:\n    merchant: ok\n  then:\n    - labels: [a]\n"), 0o644))

	ruleAddID = 2
	ruleAddMerchant = "(unclosed"
	ruleAddCategory = "Expenses:X"
	t.Cleanup(func() { ruleAddID, ruleAddMerchant, ruleAddCategory = 0, "", "" })

	require.Error(t, appendRule(target))

	var loader rules.Loader
	set, err := loader.Load(target)
	require.NoError(t, err, "original file is restored")
	require.Len(t, set, 1)
	assert.Equal(t, int64(1), set[0].ID)
}

func TestExitCodeClassification(t *testing.T) {
	assert.Equal(t, exitUsage, exitCode(usagef("bad flags")))
	assert.Equal(t, exitError, exitCode(os.ErrClosed))
}
