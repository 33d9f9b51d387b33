package archive

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/beansync/beansync/internal/model"
)

// parser folds ledger text into an in-progress Ledger. Open directives
// must be seen before the postings that reference their accounts, which
// the primary-file-first load order guarantees.
type parser struct {
	ledger *Ledger

	// Ledger account name to remote id, split by kind.
	accountIDs  map[string]int64
	categoryIDs map[string]int64

	// Includes found in the primary file, relative paths.
	includes []string

	path string
	line int
}

func newParser(ledger *Ledger) *parser {
	return &parser{
		ledger:      ledger,
		accountIDs:  make(map[string]int64),
		categoryIDs: make(map[string]int64),
	}
}

func (p *parser) errf(format string, args ...any) error {
	return &Error{Op: "parse", Path: p.path, Err: fmt.Errorf("line %d: "+format, append([]any{p.line}, args...)...)}
}

// parseFile consumes one file's text. Entries are a dated directive
// line followed by indented metadata (4 spaces) and posting (2 spaces)
// lines.
func (p *parser) parseFile(path, content string) error {
	p.path = path
	p.line = 0

	type pendingKind int
	const (
		pendingNone pendingKind = iota
		pendingTxn
		pendingOpen
	)

	var (
		kind    = pendingNone
		txn     *model.Transaction
		postAcc []string
		postAmt []decimal.Decimal
		postCur []string
		openAcc string
		openCur string
		openDt  model.Date
		openID  int64
	)

	flushOpen := func() {
		if kind != pendingOpen || openAcc == "" {
			return
		}
		p.registerOpen(openAcc, openCur, openDt, openID)
		openAcc, openCur, openID = "", "", 0
	}
	flushTxn := func() error {
		if kind != pendingTxn || txn == nil {
			return nil
		}
		if err := p.finishTransaction(txn, postAcc, postAmt, postCur); err != nil {
			return err
		}
		txn, postAcc, postAmt, postCur = nil, nil, nil, nil
		return nil
	}
	flush := func() error {
		flushOpen()
		if err := flushTxn(); err != nil {
			return err
		}
		kind = pendingNone
		return nil
	}

	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		p.line++
		raw := sc.Text()
		trimmed := strings.TrimSpace(raw)

		if trimmed == "" || strings.HasPrefix(trimmed, ";") {
			continue
		}

		// Indented continuation of the current entry.
		if raw != trimmed && (raw[0] == ' ' || raw[0] == '\t') {
			switch kind {
			case pendingTxn:
				if strings.HasPrefix(raw, "    ") {
					key, val, err := splitMeta(trimmed)
					if err != nil {
						return p.errf("%v", err)
					}
					if err := applyTxnMeta(txn, key, val); err != nil {
						return p.errf("%v", err)
					}
				} else {
					acc, amt, cur, err := splitPosting(trimmed)
					if err != nil {
						return p.errf("%v", err)
					}
					postAcc = append(postAcc, acc)
					postAmt = append(postAmt, amt)
					postCur = append(postCur, cur)
				}
			case pendingOpen:
				key, val, err := splitMeta(trimmed)
				if err != nil {
					return p.errf("%v", err)
				}
				if key == "id" {
					id, err := strconv.ParseInt(val, 10, 64)
					if err != nil {
						return p.errf("bad id %q", val)
					}
					openID = id
				}
			default:
				return p.errf("indented line outside an entry")
			}
			continue
		}

		// New top-level line closes the previous entry.
		if err := flush(); err != nil {
			return err
		}

		if strings.HasPrefix(trimmed, "include ") {
			inc := strings.TrimSpace(strings.TrimPrefix(trimmed, "include "))
			inc = strings.Trim(inc, `"`)
			p.includes = append(p.includes, inc)
			continue
		}
		if strings.HasPrefix(trimmed, "option ") {
			continue
		}

		date, rest, err := splitDate(trimmed)
		if err != nil {
			return p.errf("%v", err)
		}

		word, rest := nextWord(rest)
		switch word {
		case "commodity":
			// Informational; currencies are derived from accounts.
		case "open":
			acc, after := nextWord(rest)
			cur, _ := nextWord(after)
			kind, openAcc, openCur, openDt = pendingOpen, acc, cur, date
		case "balance":
			acc, after := nextWord(rest)
			amtStr, _ := nextWord(after)
			amt, err := decimal.NewFromString(amtStr)
			if err != nil {
				return p.errf("bad balance amount %q", amtStr)
			}
			if id, ok := p.accountIDs[acc]; ok {
				p.ledger.AddAssertion(model.BalanceAssertion{AccountID: id, Date: date, Amount: amt})
			}
		case "*", "!":
			t, err := parseTxnHeader(date, word, rest)
			if err != nil {
				return p.errf("%v", err)
			}
			kind, txn = pendingTxn, t
		default:
			return p.errf("unknown directive %q", word)
		}
	}
	if err := sc.Err(); err != nil {
		return &Error{Op: "parse", Path: path, Err: err}
	}
	return flush()
}

func (p *parser) registerOpen(acc, cur string, date model.Date, id int64) {
	root := acc
	if i := strings.IndexByte(acc, ':'); i > 0 {
		root = acc[:i]
	}
	switch root {
	case "Assets", "Liabilities":
		if id == 0 {
			return
		}
		p.accountIDs[acc] = id
		typ := model.AccountAsset
		if root == "Liabilities" {
			typ = model.AccountLiability
		}
		display := acc
		if i := strings.IndexByte(acc, ':'); i > 0 {
			display = strings.ReplaceAll(acc[i+1:], "-", " ")
		}
		p.ledger.PutAccount(model.Account{
			ID:          id,
			DisplayName: display,
			Type:        typ,
			Currency:    cur,
			OpeningDate: date,
		})
	default:
		// Category accounts; the uncategorized buckets carry no id.
		if id == 0 {
			return
		}
		p.categoryIDs[acc] = id
		p.ledger.PutCategory(model.Category{ID: id, Title: acc})
	}
}

// finishTransaction resolves the postings back to account and category
// ids and stores the transaction.
func (p *parser) finishTransaction(t *model.Transaction, accs []string, amts []decimal.Decimal, curs []string) error {
	if len(accs) == 0 {
		return fmt.Errorf("transaction %d has no postings", t.ID)
	}
	resolved := false
	for i, acc := range accs {
		if id, ok := p.accountIDs[acc]; ok {
			t.AccountID = id
			t.Amount = amts[i]
			t.Currency = curs[i]
			resolved = true
			continue
		}
		if id, ok := p.categoryIDs[acc]; ok {
			cid := id
			t.CategoryID = &cid
		}
	}
	if !resolved {
		return fmt.Errorf("transaction %d references no declared account", t.ID)
	}
	p.ledger.Put(*t)
	return nil
}

// parseTxnHeader reads the payee, narration, and #tags off the header.
func parseTxnHeader(date model.Date, flag, rest string) (*model.Transaction, error) {
	payee, rest, err := scanQuoted(rest)
	if err != nil {
		return nil, fmt.Errorf("payee: %w", err)
	}
	narration, rest, err := scanQuoted(rest)
	if err != nil {
		return nil, fmt.Errorf("narration: %w", err)
	}

	var labels []string
	for _, f := range strings.Fields(rest) {
		if strings.HasPrefix(f, "#") {
			labels = append(labels, strings.TrimPrefix(f, "#"))
		}
	}

	return &model.Transaction{
		Date:        date,
		Payee:       payee,
		Narration:   narration,
		Labels:      model.NewLabelSet(labels...),
		NeedsReview: flag == "!",
	}, nil
}

func applyTxnMeta(t *model.Transaction, key, val string) error {
	switch key {
	case "id":
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("bad id %q", val)
		}
		t.ID = id
	case "last_modified":
		ts, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return fmt.Errorf("bad last_modified %q", val)
		}
		t.UpdatedAt = ts
	case "is_transfer":
		t.IsTransfer = val == "true"
	case "paired":
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("bad paired id %q", val)
		}
		t.PairedID = &id
	case "suspect_reason":
		t.SuspectReason = val
	case "closing_balance":
		amt, err := decimal.NewFromString(val)
		if err != nil {
			return fmt.Errorf("bad closing_balance %q", val)
		}
		t.ClosingBalance = &amt
	}
	// Unknown keys are preserved-by-ignore: the writer never emits them.
	return nil
}

// splitMeta splits a "key: value" metadata line, unquoting the value.
func splitMeta(line string) (string, string, error) {
	i := strings.Index(line, ":")
	if i <= 0 {
		return "", "", fmt.Errorf("malformed metadata line %q", line)
	}
	key := strings.TrimSpace(line[:i])
	val := strings.TrimSpace(line[i+1:])
	if strings.HasPrefix(val, `"`) {
		unquoted, _, err := scanQuoted(val)
		if err != nil {
			return "", "", fmt.Errorf("metadata %s: %w", key, err)
		}
		val = unquoted
	}
	return key, val, nil
}

// splitPosting splits "Account  amount CUR".
func splitPosting(line string) (string, decimal.Decimal, string, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", decimal.Decimal{}, "", fmt.Errorf("malformed posting %q", line)
	}
	amt, err := decimal.NewFromString(fields[1])
	if err != nil {
		return "", decimal.Decimal{}, "", fmt.Errorf("bad posting amount %q", fields[1])
	}
	return fields[0], amt, fields[2], nil
}

// splitDate reads the leading YYYY-MM-DD off a directive line.
func splitDate(line string) (model.Date, string, error) {
	word, rest := nextWord(line)
	d, err := model.ParseDate(word)
	if err != nil {
		return model.Date{}, "", err
	}
	return d, rest, nil
}

func nextWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// scanQuoted reads a leading double-quoted string, honouring backslash
// escapes, and returns the remainder.
func scanQuoted(s string) (string, string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, `"`) {
		return "", "", fmt.Errorf("expected quoted string at %q", s)
	}
	var b strings.Builder
	escaped := false
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			b.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(c)
		}
	}
	return "", "", fmt.Errorf("unterminated quoted string")
}
