// Package rules implements the declarative classification engine:
// YAML-loaded rules with regex preconditions and per-field transforms.
// Loading is fail-fast with aggregate diagnostics; application is
// local-only and idempotent.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Precondition is the `if` half of a rule: a conjunction of regex
// predicates. Missing keys match anything. All patterns are compiled
// case-insensitively at load time.
type Precondition struct {
	Merchant string
	Account  string
	Category string
	Metadata map[string]string

	merchantRe *regexp.Regexp
	accountRe  *regexp.Regexp
	categoryRe *regexp.Regexp
	metadataRe map[string]*regexp.Regexp
}

func (p *Precondition) compile() error {
	var err error
	compile := func(pattern string) (*regexp.Regexp, error) {
		return regexp.Compile("(?i)" + pattern)
	}
	if p.Merchant != "" {
		if p.merchantRe, err = compile(p.Merchant); err != nil {
			return fmt.Errorf("merchant pattern: %w", err)
		}
	}
	if p.Account != "" {
		if p.accountRe, err = compile(p.Account); err != nil {
			return fmt.Errorf("account pattern: %w", err)
		}
	}
	if p.Category != "" {
		if p.categoryRe, err = compile(p.Category); err != nil {
			return fmt.Errorf("category pattern: %w", err)
		}
	}
	if len(p.Metadata) > 0 {
		p.metadataRe = make(map[string]*regexp.Regexp, len(p.Metadata))
		for k, pattern := range p.Metadata {
			re, cerr := compile(pattern)
			if cerr != nil {
				return fmt.Errorf("metadata.%s pattern: %w", k, cerr)
			}
			p.metadataRe[k] = re
		}
	}
	return nil
}

// TransformKind names a transform key.
type TransformKind string

const (
	TransformCategory TransformKind = "category"
	TransformLabels   TransformKind = "labels"
	TransformMemo     TransformKind = "memo"
	TransformMetadata TransformKind = "metadata"
)

// Transform is one entry of a rule's `then` list. Transforms compose in
// the order they appear in the rule file.
type Transform struct {
	Kind TransformKind
	// Category is the category name to resolve and set.
	Category string
	// Labels are add/remove tokens: "+tag" or bare adds, "-tag" removes.
	Labels []string
	// Memo replaces the narration.
	Memo string
	// Metadata entries are serialized into the note [key:value] grammar.
	Metadata map[string]string
}

// Rule is a single classification rule. Ids are globally unique across
// every file in the rules directory; matching is first-match-wins in
// ascending id order.
type Rule struct {
	ID       int64
	Disabled bool
	If       Precondition
	Then     []Transform
	// File is the defining rule file, kept for diagnostics.
	File string
}

// ValidationError describes one problem found while loading rules.
type ValidationError struct {
	File    string
	RuleID  int64
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	var b strings.Builder
	if e.File != "" {
		fmt.Fprintf(&b, "%s: ", e.File)
	}
	if e.RuleID != 0 {
		fmt.Fprintf(&b, "rule %d: ", e.RuleID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "%s: ", e.Field)
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors aggregates every loading problem. A partial rule set
// is never returned: surprising matching order is worse than a failed
// load.
type ValidationErrors struct {
	Errors []ValidationError
}

func (e *ValidationErrors) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("%d rule validation error(s):\n%s", len(e.Errors), strings.Join(msgs, "\n"))
}

// sortRules orders rules by ascending id.
func sortRules(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
}
