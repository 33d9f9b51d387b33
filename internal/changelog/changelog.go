// Package changelog implements the append-only audit log that records
// every workflow header and field mutation. One entry per line, UTF-8,
// local-zone timestamps. The log doubles as the sync watermark: the
// newest CLONE or PULL header timestamp is the updated_since parameter
// for the next delta fetch.
package changelog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Op is the entry kind.
type Op string

const (
	OpClone  Op = "CLONE"
	OpPull   Op = "PULL"
	OpPush   Op = "PUSH"
	OpUpdate Op = "UPDATE"
	OpApply  Op = "APPLY"
	OpDiff   Op = "DIFF"
)

const timeLayout = "2006-01-02 15:04:05"

// Entry is a single changelog line.
//
//	[<ts>] CLONE [<from>] [<to>]
//	[<ts>] PULL  [<since>] [<from>] [<to>]
//	[<ts>] PUSH  [<from>] [<to>]
//	[<ts>] UPDATE <txn-id> <field> <old> → <new>
//	[<ts>] APPLY  <txn-id> RULE <rule-id> <field> <old> → <new>
//	[<ts>] DIFF   <txn-id> <field> <local> <> <remote>
type Entry struct {
	Time  time.Time
	Op    Op
	TxnID int64
	// RuleID is set for APPLY entries only.
	RuleID int64
	Field  string
	Old    string
	New    string
	// Args are the bracketed header arguments (since/from/to). Empty
	// strings render as [].
	Args []string
}

// Header builds a CLONE/PULL/PUSH header entry.
func Header(op Op, args ...string) Entry {
	return Entry{Op: op, Args: args}
}

// Update builds an UPDATE entry. An empty old value renders without the
// arrow, which marks a creation.
func Update(txnID int64, field, old, new string) Entry {
	return Entry{Op: OpUpdate, TxnID: txnID, Field: field, Old: old, New: new}
}

// Apply builds an APPLY entry for a rule application.
func Apply(txnID, ruleID int64, field, old, new string) Entry {
	return Entry{Op: OpApply, TxnID: txnID, RuleID: ruleID, Field: field, Old: old, New: new}
}

// Diff builds a DIFF entry. DIFF lines go to stdout only, never to the
// log file; Log.Append rejects them.
func Diff(txnID int64, field, local, remote string) Entry {
	return Entry{Op: OpDiff, TxnID: txnID, Field: field, Old: local, New: remote}
}

// String renders the entry in the changelog grammar.
func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Time.Format(timeLayout), e.Op)

	switch e.Op {
	case OpClone, OpPull, OpPush:
		for _, a := range e.Args {
			fmt.Fprintf(&b, " [%s]", a)
		}
	case OpUpdate:
		fmt.Fprintf(&b, " %d %s", e.TxnID, e.Field)
		if e.Old == "" {
			fmt.Fprintf(&b, " %s", e.New)
		} else {
			fmt.Fprintf(&b, " %s → %s", e.Old, e.New)
		}
	case OpApply:
		fmt.Fprintf(&b, " %d RULE %d %s", e.TxnID, e.RuleID, e.Field)
		if e.Old == "" {
			fmt.Fprintf(&b, " %s", e.New)
		} else {
			fmt.Fprintf(&b, " %s → %s", e.Old, e.New)
		}
	case OpDiff:
		fmt.Fprintf(&b, " %d %s %s <> %s", e.TxnID, e.Field, e.Old, e.New)
	}
	return b.String()
}

// Parse reads an entry back from its line form. Field values containing
// spaces survive because the old/new split keys off the arrow.
func Parse(line string) (Entry, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") {
		return Entry{}, fmt.Errorf("malformed changelog line: %q", line)
	}
	end := strings.Index(line, "]")
	if end < 0 {
		return Entry{}, fmt.Errorf("malformed changelog timestamp: %q", line)
	}
	ts, err := time.ParseInLocation(timeLayout, line[1:end], time.Local)
	if err != nil {
		return Entry{}, fmt.Errorf("malformed changelog timestamp: %w", err)
	}

	rest := strings.TrimSpace(line[end+1:])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Entry{}, fmt.Errorf("malformed changelog line: %q", line)
	}

	e := Entry{Time: ts, Op: Op(fields[0])}
	body := strings.TrimSpace(rest[len(fields[0]):])

	switch e.Op {
	case OpClone, OpPull, OpPush:
		for _, a := range strings.Fields(body) {
			e.Args = append(e.Args, strings.Trim(a, "[]"))
		}
	case OpUpdate:
		parts := strings.Fields(body)
		if len(parts) < 2 {
			return Entry{}, fmt.Errorf("malformed UPDATE entry: %q", line)
		}
		e.TxnID, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("malformed transaction id: %w", err)
		}
		e.Field = parts[1]
		e.Old, e.New = splitArrow(strings.TrimSpace(body[len(parts[0])+1+len(parts[1]):]))
	case OpApply:
		parts := strings.Fields(body)
		if len(parts) < 4 || parts[1] != "RULE" {
			return Entry{}, fmt.Errorf("malformed APPLY entry: %q", line)
		}
		e.TxnID, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("malformed transaction id: %w", err)
		}
		e.RuleID, err = strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("malformed rule id: %w", err)
		}
		e.Field = parts[3]
		idx := strings.Index(body, parts[3]) + len(parts[3])
		e.Old, e.New = splitArrow(strings.TrimSpace(body[idx:]))
	default:
		return Entry{}, fmt.Errorf("unknown changelog op %q", fields[0])
	}
	return e, nil
}

func splitArrow(s string) (old, new string) {
	if i := strings.Index(s, " → "); i >= 0 {
		return s[:i], s[i+len(" → "):]
	}
	return "", s
}

// Log appends entries to a changelog file. It is a single-writer
// resource; the orchestrator serializes access for the duration of a
// workflow.
type Log struct {
	path string
	now  func() time.Time
}

// Open returns a log backed by the given file. The file is created on
// first append.
func Open(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Path returns the backing file path.
func (l *Log) Path() string { return l.path }

// Append writes one entry, stamping it with the current local time when
// the entry carries none. DIFF entries are stdout-only and rejected.
func (l *Log) Append(e Entry) error {
	if e.Op == OpDiff {
		return fmt.Errorf("DIFF entries are not written to the changelog")
	}
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open changelog: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(e.String() + "\n"); err != nil {
		return fmt.Errorf("append changelog: %w", err)
	}
	return nil
}

// Entries reads every well-formed entry in file order. Malformed lines
// are skipped; the log is append-only and old hand-edits should not
// block a sync.
func (l *Log) Entries() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open changelog: %w", err)
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		e, err := Parse(line)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read changelog: %w", err)
	}
	return out, nil
}

// LatestWatermark returns the timestamp of the most recent CLONE or
// PULL header, and whether one exists.
func (l *Log) LatestWatermark() (time.Time, bool, error) {
	entries, err := l.Entries()
	if err != nil {
		return time.Time{}, false, err
	}
	var mark time.Time
	var found bool
	for _, e := range entries {
		if (e.Op == OpClone || e.Op == OpPull) && !e.Time.Before(mark) {
			mark = e.Time
			found = true
		}
	}
	return mark, found, nil
}
