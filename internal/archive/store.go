// Package archive owns the on-disk plain-text ledger: a primary file
// with account, category, and commodity declarations plus either
// monthly transaction files under year directories or a single flat
// file. A sibling <primary>.log carries the changelog.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/beansync/beansync/internal/model"
)

const (
	monthExt    = ".beancount"
	primaryName = "main.beancount"
)

// Layout names the two supported archive shapes.
type Layout int

const (
	// LayoutSingle keeps everything in the primary file.
	LayoutSingle Layout = iota
	// LayoutHierarchical keeps one transaction file per calendar month
	// under YYYY/ directories, included from the primary file.
	LayoutHierarchical
)

func (l Layout) String() string {
	if l == LayoutHierarchical {
		return "hierarchical"
	}
	return "single-file"
}

// Error is a typed local-store failure.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("archive: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("archive: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Store reads and writes one archive. Lock enforces single-writer
// access for the duration of a workflow.
type Store struct {
	primary string
	layout  Layout
	logger  *zap.Logger
	locked  bool
}

// Open binds a store to an existing archive. path may be the primary
// file itself or a directory holding one; empty means the working
// directory. Detection requires the sibling changelog for anything but
// a fresh clone target, which Create handles instead.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = "."
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Op: "open", Path: path, Err: err}
	}

	primary := path
	if info.IsDir() {
		primary, err = findPrimary(path)
		if err != nil {
			return nil, err
		}
	}

	layout := LayoutSingle
	if hasIncludes(primary) {
		layout = LayoutHierarchical
	}
	logger.Debug("opened archive",
		zap.String("primary", primary), zap.Stringer("layout", layout))
	return &Store{primary: primary, layout: layout, logger: logger}, nil
}

// Create binds a store to a destination for clone, creating the
// directory. The archive is written on the first Save.
func Create(dir string, layout Layout, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Op: "create", Path: dir, Err: err}
	}
	return &Store{primary: filepath.Join(dir, primaryName), layout: layout, logger: logger}, nil
}

// findPrimary locates the archive's primary file in a directory: the
// conventional main file, or the sole ledger file with a sibling log.
func findPrimary(dir string) (string, error) {
	conventional := filepath.Join(dir, primaryName)
	if _, err := os.Stat(conventional); err == nil {
		return conventional, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", &Error{Op: "detect", Path: dir, Err: err}
	}
	var candidates []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), monthExt) {
			continue
		}
		candidates = append(candidates, filepath.Join(dir, e.Name()))
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", &Error{Op: "detect", Path: dir, Err: fmt.Errorf("no archive found")}
	default:
		sort.Strings(candidates)
		// Prefer a candidate with a sibling changelog.
		for _, c := range candidates {
			if _, err := os.Stat(c + ".log"); err == nil {
				return c, nil
			}
		}
		return "", &Error{Op: "detect", Path: dir, Err: fmt.Errorf("multiple archive candidates, none with a sibling changelog")}
	}
}

// hasIncludes peeks at the primary to see whether it pulls in monthly
// files.
func hasIncludes(primary string) bool {
	data, err := os.ReadFile(primary)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "\ninclude ") || strings.HasPrefix(string(data), "include ")
}

// Primary returns the path of the primary archive file.
func (s *Store) Primary() string { return s.primary }

// Layout returns the archive shape.
func (s *Store) Layout() Layout { return s.layout }

// LogPath returns the sibling changelog path.
func (s *Store) LogPath() string { return s.primary + ".log" }

// Root returns the directory holding the archive.
func (s *Store) Root() string { return filepath.Dir(s.primary) }

// lockPath returns the sibling lock file path.
func (s *Store) lockPath() string { return s.primary + ".lock" }

// Lock takes the single-writer lock by creating the sibling lock file
// exclusively. A live lock file from another run makes Lock fail; a
// crashed run leaves the file behind and the error names it so the
// operator can remove it.
func (s *Store) Lock() error {
	f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return &Error{Op: "lock", Path: s.lockPath(),
				Err: fmt.Errorf("archive is in use by another run (remove the file if that run crashed)")}
		}
		return &Error{Op: "lock", Path: s.lockPath(), Err: err}
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	if err := f.Close(); err != nil {
		os.Remove(s.lockPath())
		return &Error{Op: "lock", Path: s.lockPath(), Err: err}
	}
	s.locked = true
	return nil
}

// Unlock releases the single-writer lock. Safe to call without holding
// it.
func (s *Store) Unlock() {
	if !s.locked {
		return
	}
	s.locked = false
	if err := os.Remove(s.lockPath()); err != nil {
		s.logger.Warn("failed to remove lock file",
			zap.String("path", s.lockPath()), zap.Error(err))
	}
}

// Load parses the whole archive into memory: the primary file first so
// account and category declarations are known, then every included
// monthly file.
func (s *Store) Load() (*Ledger, error) {
	ledger := NewLedger()
	p := newParser(ledger)

	data, err := os.ReadFile(s.primary)
	if err != nil {
		return nil, &Error{Op: "load", Path: s.primary, Err: err}
	}
	if err := p.parseFile(s.primary, string(data)); err != nil {
		return nil, err
	}

	root := s.Root()
	for _, inc := range p.includes {
		path := filepath.Join(root, filepath.FromSlash(inc))
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Op: "load", Path: path, Err: err}
		}
		if err := p.parseFile(path, string(data)); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("loaded archive",
		zap.Int("transactions", ledger.Len()),
		zap.Int("accounts", len(ledger.accounts)),
		zap.Int("categories", len(ledger.categories)))
	return ledger, nil
}

// Save writes the ledger back out, atomically per file: content goes
// to a temp sibling and renames over the target.
func (s *Store) Save(ledger *Ledger) error {
	switch s.layout {
	case LayoutHierarchical:
		return s.saveHierarchical(ledger)
	default:
		return s.saveSingle(ledger)
	}
}

func (s *Store) saveSingle(ledger *Ledger) error {
	var b strings.Builder
	b.WriteString(printDeclarations(ledger))

	txns := ledger.Transactions()
	if len(txns) > 0 {
		b.WriteByte('\n')
		b.WriteString(printMonth(ledger, txns))
	}
	return writeAtomic(s.primary, b.String())
}

func (s *Store) saveHierarchical(ledger *Ledger) error {
	byMonth := make(map[string][]model.Transaction)
	for _, t := range ledger.Transactions() {
		key := monthKey(t.Date)
		byMonth[key] = append(byMonth[key], t)
	}

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	root := s.Root()
	for _, m := range months {
		dir := filepath.Join(root, m[:4])
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &Error{Op: "save", Path: dir, Err: err}
		}
		path := filepath.Join(dir, m+monthExt)
		if err := writeAtomic(path, printMonth(ledger, byMonth[m])); err != nil {
			return err
		}
	}

	var b strings.Builder
	b.WriteString(printDeclarations(ledger))
	if len(months) > 0 {
		b.WriteByte('\n')
		b.WriteString(printIncludes(months))
	}
	return writeAtomic(s.primary, b.String())
}

func writeAtomic(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return &Error{Op: "save", Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &Error{Op: "save", Path: path, Err: err}
	}
	return nil
}
