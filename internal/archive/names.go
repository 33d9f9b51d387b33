package archive

import (
	"regexp"
	"strings"

	"github.com/beansync/beansync/internal/model"
)

const (
	uncategorizedExpense = "Expenses:Uncategorized"
	uncategorizedIncome  = "Income:Uncategorized"
)

var (
	invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9\-]`)
	dashRuns         = regexp.MustCompile(`-+`)
)

// sanitizeName folds arbitrary display text into a valid ledger
// account segment: hyphens for anything non-alphanumeric, title case,
// no leading or trailing hyphens.
func sanitizeName(name string) string {
	name = strings.TrimLeft(name, "_")
	name = strings.ReplaceAll(name, " ", "-")
	name = invalidNameChars.ReplaceAllString(name, "-")
	name = dashRuns.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	return titleCase(name)
}

// titleCase capitalizes the first letter of every hyphen-separated
// segment, lowercasing the rest.
func titleCase(s string) string {
	parts := strings.Split(s, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "-")
}

// accountName renders the ledger account for a real account: the
// balance-sheet root plus the sanitized display name.
func accountName(a *model.Account) string {
	root := "Assets"
	if a.Type == model.AccountLiability {
		root = "Liabilities"
	}
	return root + ":" + sanitizeName(a.DisplayName)
}

// categoryName renders the ledger account for a category. Titles that
// already carry a root (from a previous render) pass through.
func categoryName(c *model.Category) string {
	if strings.ContainsRune(c.Title, ':') {
		return c.Title
	}
	seg := sanitizeName(c.Title)
	switch {
	case strings.EqualFold(seg, "transfer") || strings.EqualFold(seg, "transfers"):
		return "Transfers:" + seg
	case strings.EqualFold(seg, "income"):
		return "Income:" + seg
	default:
		return "Expenses:" + seg
	}
}

// fallbackCategory picks the uncategorized bucket by money direction.
func fallbackCategory(t *model.Transaction) string {
	if t.Amount.IsPositive() {
		return uncategorizedIncome
	}
	return uncategorizedExpense
}
