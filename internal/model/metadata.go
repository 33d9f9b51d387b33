package model

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// The remote service exposes no schema for transfer metadata, so it is
// carried inside the free-text note as [key:value] tokens appended to
// the user's text, e.g. "User note [paired:12345] [suspect_reason:date-delay-3d]".
// The parser tolerates any order and interleaving with user text; the
// writer emits a stable order so re-serialization round-trips.

var noteMetaRe = regexp.MustCompile(`\[(\w+):([^\]]+)\]`)

// metadata keys emitted first, in this order. Remaining keys follow
// lexicographically.
var noteMetaKeyOrder = []string{"paired", "suspect_reason"}

// DecodeNoteMetadata splits a remote note into its user text and the
// embedded metadata tokens. User text is preserved verbatim apart from
// collapsed runs of spaces left behind by removed tokens.
func DecodeNoteMetadata(note string) (string, map[string]string) {
	meta := make(map[string]string)
	for _, m := range noteMetaRe.FindAllStringSubmatch(note, -1) {
		meta[m[1]] = m[2]
	}
	clean := noteMetaRe.ReplaceAllString(note, "")
	clean = regexp.MustCompile(` {2,}`).ReplaceAllString(clean, " ")
	return strings.TrimSpace(clean), meta
}

// EncodeNoteMetadata renders user text plus metadata back into the
// remote note representation. Existing metadata tokens in the text are
// stripped first so encode is idempotent.
func EncodeNoteMetadata(text string, meta map[string]string) string {
	clean, _ := DecodeNoteMetadata(text)

	keys := make([]string, 0, len(meta))
	for k, v := range meta {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return noteKeyRank(keys[i]) < noteKeyRank(keys[j]) ||
			(noteKeyRank(keys[i]) == noteKeyRank(keys[j]) && keys[i] < keys[j])
	})

	parts := make([]string, 0, len(keys)+1)
	if clean != "" {
		parts = append(parts, clean)
	}
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("[%s:%s]", k, meta[k]))
	}
	return strings.Join(parts, " ")
}

func noteKeyRank(key string) int {
	for i, k := range noteMetaKeyOrder {
		if k == key {
			return i
		}
	}
	return len(noteMetaKeyOrder)
}
