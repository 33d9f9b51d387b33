package archive

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/beansync/beansync/internal/model"
)

// quote escapes a string for a double-quoted ledger field.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// printTransaction renders one transaction entry: the header line with
// flag, payee, narration, and tags; the metadata block; and the two
// postings. The owning account carries the signed amount, the category
// the counter-amount.
func printTransaction(l *Ledger, t *model.Transaction) string {
	flag := "*"
	if t.NeedsReview {
		flag = "!"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s %s", t.Date, flag, quote(t.Payee), quote(t.Narration))
	for _, tag := range t.Labels.Tokens() {
		fmt.Fprintf(&b, " #%s", tag)
	}
	b.WriteByte('\n')

	fmt.Fprintf(&b, "    id: %d\n", t.ID)
	if !t.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "    last_modified: %s\n", quote(t.UpdatedAt.UTC().Format(time.RFC3339)))
	}
	if t.IsTransfer {
		b.WriteString("    is_transfer: \"true\"\n")
	}
	if t.PairedID != nil {
		fmt.Fprintf(&b, "    paired: %d\n", *t.PairedID)
	}
	if t.SuspectReason != "" {
		fmt.Fprintf(&b, "    suspect_reason: %s\n", quote(t.SuspectReason))
	}
	if t.ClosingBalance != nil {
		fmt.Fprintf(&b, "    closing_balance: %s\n", t.ClosingBalance.StringFixed(2))
	}

	owning := "Assets:Unknown"
	if a, ok := l.accounts[t.AccountID]; ok {
		owning = accountName(a)
	}
	category := fallbackCategory(t)
	if t.CategoryID != nil {
		if title := l.CategoryTitle(*t.CategoryID); title != "" {
			category = title
		}
	}

	fmt.Fprintf(&b, "  %s  %s %s\n", owning, t.Amount.StringFixed(2), t.Currency)
	fmt.Fprintf(&b, "  %s  %s %s", category, t.Amount.Neg().StringFixed(2), t.Currency)
	return b.String()
}

// printDeclarations renders the commodity, account, and category open
// directives plus balance assertions for the primary file.
func printDeclarations(l *Ledger) string {
	var b strings.Builder

	earliest := earliestOpening(l)
	for _, cur := range l.Currencies() {
		fmt.Fprintf(&b, "%s commodity %s\n", earliest, strings.ToUpper(cur))
	}
	if len(l.Currencies()) > 0 {
		b.WriteByte('\n')
	}

	var accountLines []string
	for _, a := range l.Accounts() {
		open := a.OpeningDate
		opened := earliest
		if !open.IsZero() {
			opened = open.String()
		}
		accountLines = append(accountLines,
			fmt.Sprintf("%s open %s %s\n    id: %d", opened, accountName(&a), strings.ToUpper(a.Currency), a.ID))
	}
	sort.Strings(accountLines)
	for _, line := range accountLines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if len(accountLines) > 0 {
		b.WriteByte('\n')
	}

	var categoryLines []string
	for _, c := range l.Categories() {
		categoryLines = append(categoryLines,
			fmt.Sprintf("%s open %s\n    id: %d", earliest, categoryName(&c), c.ID))
	}
	sort.Strings(categoryLines)
	for _, line := range categoryLines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if len(categoryLines) > 0 {
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "%s open %s\n", earliest, uncategorizedExpense)
	fmt.Fprintf(&b, "%s open %s\n", earliest, uncategorizedIncome)

	if len(l.assertions) > 0 {
		b.WriteByte('\n')
		assertions := make([]model.BalanceAssertion, len(l.assertions))
		copy(assertions, l.assertions)
		sort.Slice(assertions, func(i, j int) bool {
			if !assertions[i].Date.Equal(assertions[j].Date) {
				return assertions[i].Date.Before(assertions[j].Date)
			}
			return assertions[i].AccountID < assertions[j].AccountID
		})
		for _, as := range assertions {
			acct, ok := l.accounts[as.AccountID]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "%s balance %s %s %s\n",
				as.Date, accountName(acct), as.Amount.StringFixed(2), strings.ToUpper(acct.Currency))
		}
	}

	return b.String()
}

// earliestOpening finds the earliest opening date across accounts and
// transactions, defaulting to the earliest transaction date and then
// to today-less semantics via the zero guard at call sites.
func earliestOpening(l *Ledger) string {
	var earliest model.Date
	for _, a := range l.accounts {
		if a.OpeningDate.IsZero() {
			continue
		}
		if earliest.IsZero() || a.OpeningDate.Before(earliest) {
			earliest = a.OpeningDate
		}
	}
	for _, t := range l.transactions {
		if earliest.IsZero() || t.Date.Before(earliest) {
			earliest = t.Date
		}
	}
	if earliest.IsZero() {
		return "1970-01-01"
	}
	return earliest.String()
}

// monthKey groups a date as YYYY-MM.
func monthKey(d model.Date) string {
	return fmt.Sprintf("%04d-%02d", d.Year(), int(d.Month()))
}

// printMonth renders the transactions of one calendar month, ordered
// by date then id.
func printMonth(l *Ledger, txns []model.Transaction) string {
	sorted := make([]model.Transaction, len(txns))
	copy(sorted, txns)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].ID < sorted[j].ID
	})

	entries := make([]string, 0, len(sorted))
	for i := range sorted {
		entries = append(entries, printTransaction(l, &sorted[i]))
	}
	return strings.Join(entries, "\n\n") + "\n"
}

// printIncludes renders include directives for the given month keys.
func printIncludes(months []string) string {
	sorted := make([]string, len(months))
	copy(sorted, months)
	sort.Strings(sorted)

	var b strings.Builder
	for _, m := range sorted {
		year := m[:4]
		fmt.Fprintf(&b, "include %s\n", quote(year+"/"+m+monthExt))
	}
	return b.String()
}
