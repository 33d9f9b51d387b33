package model

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var labelTokenRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// NormalizeLabel lowercases a raw label token and replaces interior
// whitespace and underscores with hyphens. It returns an error when the
// normalized token still does not satisfy the label grammar.
func NormalizeLabel(raw string) (string, error) {
	tok := strings.ToLower(strings.TrimSpace(raw))
	tok = strings.Trim(tok, "#")
	tok = strings.ReplaceAll(tok, "_", "-")
	tok = strings.Join(strings.Fields(tok), "-")
	if !labelTokenRe.MatchString(tok) {
		return "", fmt.Errorf("invalid label token %q", raw)
	}
	return tok, nil
}

// LabelSet is an ordered label container with set semantics: tokens are
// normalized, duplicates collapse, and comparison ignores order.
// Serialization is always sorted so diffs are stable.
type LabelSet struct {
	tokens []string
}

// NewLabelSet builds a set from raw tokens, dropping any that do not
// normalize to a valid label.
func NewLabelSet(raw ...string) LabelSet {
	var s LabelSet
	for _, r := range raw {
		if tok, err := NormalizeLabel(r); err == nil {
			s.add(tok)
		}
	}
	return s
}

func (s *LabelSet) add(tok string) {
	for _, have := range s.tokens {
		if have == tok {
			return
		}
	}
	s.tokens = append(s.tokens, tok)
	sort.Strings(s.tokens)
}

// Add inserts a raw token after normalization.
func (s *LabelSet) Add(raw string) error {
	tok, err := NormalizeLabel(raw)
	if err != nil {
		return err
	}
	s.add(tok)
	return nil
}

// Remove deletes a token if present.
func (s *LabelSet) Remove(raw string) {
	tok, err := NormalizeLabel(raw)
	if err != nil {
		return
	}
	out := s.tokens[:0]
	for _, have := range s.tokens {
		if have != tok {
			out = append(out, have)
		}
	}
	s.tokens = out
}

// Contains reports membership after normalization.
func (s LabelSet) Contains(raw string) bool {
	tok, err := NormalizeLabel(raw)
	if err != nil {
		return false
	}
	for _, have := range s.tokens {
		if have == tok {
			return true
		}
	}
	return false
}

// Union returns the set union of s and other.
func (s LabelSet) Union(other LabelSet) LabelSet {
	out := s.Clone()
	for _, tok := range other.tokens {
		out.add(tok)
	}
	return out
}

// Equal compares two sets ignoring order.
func (s LabelSet) Equal(other LabelSet) bool {
	if len(s.tokens) != len(other.tokens) {
		return false
	}
	for i := range s.tokens {
		if s.tokens[i] != other.tokens[i] {
			return false
		}
	}
	return true
}

// Len returns the number of tokens.
func (s LabelSet) Len() int { return len(s.tokens) }

// Tokens returns the tokens in sorted order.
func (s LabelSet) Tokens() []string {
	out := make([]string, len(s.tokens))
	copy(out, s.tokens)
	return out
}

// Clone returns an independent copy.
func (s LabelSet) Clone() LabelSet {
	return LabelSet{tokens: append([]string(nil), s.tokens...)}
}

// String renders the set as a bracketed sorted list, e.g. [coffee morning].
func (s LabelSet) String() string {
	return "[" + strings.Join(s.tokens, " ") + "]"
}
