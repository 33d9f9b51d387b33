package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Loader reads rule files from a file or directory. Every *.yaml and
// *.yml file under the path is a rule document: a YAML list of rule
// maps. Loading either returns the complete, sorted rule set or a
// ValidationErrors listing every offending file.
type Loader struct {
	// IncludeDisabled loads rules marked disabled: true instead of
	// skipping them. Used by `rule list --all`.
	IncludeDisabled bool
}

// Load reads and validates all rules under path.
func (l *Loader) Load(path string) ([]Rule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ValidationErrors{Errors: []ValidationError{{
			File: path, Field: "path", Message: fmt.Sprintf("cannot stat rules path: %v", err),
		}}}
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, &ValidationErrors{Errors: []ValidationError{{
				File: path, Field: "path", Message: fmt.Sprintf("cannot read rules directory: %v", err),
			}}}
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := filepath.Ext(e.Name())
			if ext == ".yaml" || ext == ".yml" {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
		if len(files) == 0 {
			return nil, &ValidationErrors{Errors: []ValidationError{{
				File: path, Field: "directory", Message: "no rule files found",
			}}}
		}
	} else {
		files = []string{path}
	}

	var (
		rules    []Rule
		errs     []ValidationError
		idOrigin = make(map[int64][]string)
	)

	for _, file := range files {
		fileRules, fileErrs := l.loadFile(file)
		errs = append(errs, fileErrs...)
		for _, r := range fileRules {
			idOrigin[r.ID] = append(idOrigin[r.ID], file)
			rules = append(rules, r)
		}
	}

	// Duplicate ids abort the load and name every defining file.
	for id, origins := range idOrigin {
		if len(origins) > 1 {
			for _, file := range origins {
				errs = append(errs, ValidationError{
					File: file, RuleID: id, Field: "id",
					Message: fmt.Sprintf("duplicate rule id %d (defined in %d files)", id, len(origins)),
				})
			}
		}
	}

	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool {
			if errs[i].File != errs[j].File {
				return errs[i].File < errs[j].File
			}
			return errs[i].RuleID < errs[j].RuleID
		})
		return nil, &ValidationErrors{Errors: errs}
	}

	sortRules(rules)
	return rules, nil
}

// rawRule is the YAML shape of a rule. `if` and `then` are kept as
// nodes so both the mapping and list-of-maps forms parse, and so the
// transform order in the file is preserved.
type rawRule struct {
	ID       int64     `yaml:"id"`
	Disabled bool      `yaml:"disabled"`
	If       yaml.Node `yaml:"if"`
	Then     yaml.Node `yaml:"then"`
}

func (l *Loader) loadFile(path string) ([]Rule, []ValidationError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []ValidationError{{File: path, Field: "file", Message: fmt.Sprintf("cannot read file: %v", err)}}
	}

	var raw []rawRule
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, []ValidationError{{File: path, Field: "yaml", Message: fmt.Sprintf("parse error: %v", err)}}
	}

	var (
		rules []Rule
		errs  []ValidationError
	)
	for i, rr := range raw {
		if rr.ID <= 0 {
			errs = append(errs, ValidationError{
				File: path, Field: "id",
				Message: fmt.Sprintf("rule #%d: id must be a positive integer", i+1),
			})
			continue
		}
		if rr.Disabled && !l.IncludeDisabled {
			continue
		}

		rule := Rule{ID: rr.ID, Disabled: rr.Disabled, File: path}

		pre, perrs := parsePrecondition(&rr.If, path, rr.ID)
		errs = append(errs, perrs...)
		rule.If = pre

		then, terrs := parseTransforms(&rr.Then, path, rr.ID)
		errs = append(errs, terrs...)
		rule.Then = then

		if len(perrs) == 0 {
			if err := rule.If.compile(); err != nil {
				errs = append(errs, ValidationError{File: path, RuleID: rr.ID, Field: "if", Message: err.Error()})
			}
		}
		if len(perrs) == 0 && len(terrs) == 0 {
			if len(rule.Then) == 0 {
				errs = append(errs, ValidationError{File: path, RuleID: rr.ID, Field: "then", Message: "at least one transform is required"})
				continue
			}
			rules = append(rules, rule)
		}
	}
	return rules, errs
}

// conditionMaps flattens the mapping or list-of-maps YAML shapes into
// key/value node pairs in document order.
func conditionMaps(node *yaml.Node) ([][2]*yaml.Node, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	var pairs [][2]*yaml.Node
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			pairs = append(pairs, [2]*yaml.Node{node.Content[i], node.Content[i+1]})
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("list entries must be mappings")
			}
			for i := 0; i+1 < len(item.Content); i += 2 {
				pairs = append(pairs, [2]*yaml.Node{item.Content[i], item.Content[i+1]})
			}
		}
	default:
		return nil, fmt.Errorf("must be a mapping or a list of mappings")
	}
	return pairs, nil
}

func parsePrecondition(node *yaml.Node, file string, ruleID int64) (Precondition, []ValidationError) {
	var pre Precondition
	pairs, err := conditionMaps(node)
	if err != nil {
		return pre, []ValidationError{{File: file, RuleID: ruleID, Field: "if", Message: err.Error()}}
	}

	var errs []ValidationError
	for _, pair := range pairs {
		key, val := pair[0].Value, pair[1]
		switch key {
		case "merchant":
			pre.Merchant = val.Value
		case "account":
			pre.Account = val.Value
		case "category":
			pre.Category = val.Value
		case "metadata":
			meta := make(map[string]string)
			if err := val.Decode(&meta); err != nil {
				errs = append(errs, ValidationError{File: file, RuleID: ruleID, Field: "if.metadata", Message: err.Error()})
				continue
			}
			if pre.Metadata == nil {
				pre.Metadata = make(map[string]string)
			}
			for k, v := range meta {
				pre.Metadata[k] = v
			}
		default:
			errs = append(errs, ValidationError{
				File: file, RuleID: ruleID, Field: "if",
				Message: fmt.Sprintf("unknown condition key %q (want merchant, account, category, metadata)", key),
			})
		}
	}
	return pre, errs
}

func parseTransforms(node *yaml.Node, file string, ruleID int64) ([]Transform, []ValidationError) {
	pairs, err := conditionMaps(node)
	if err != nil {
		return nil, []ValidationError{{File: file, RuleID: ruleID, Field: "then", Message: err.Error()}}
	}

	var (
		out  []Transform
		errs []ValidationError
	)
	for _, pair := range pairs {
		key, val := pair[0].Value, pair[1]
		switch key {
		case "category":
			out = append(out, Transform{Kind: TransformCategory, Category: val.Value})
		case "labels", "tags":
			labels, lerr := decodeLabels(val)
			if lerr != nil {
				errs = append(errs, ValidationError{File: file, RuleID: ruleID, Field: "then.labels", Message: lerr.Error()})
				continue
			}
			out = append(out, Transform{Kind: TransformLabels, Labels: labels})
		case "memo", "narration":
			out = append(out, Transform{Kind: TransformMemo, Memo: val.Value})
		case "metadata":
			meta := make(map[string]string)
			if err := val.Decode(&meta); err != nil {
				errs = append(errs, ValidationError{File: file, RuleID: ruleID, Field: "then.metadata", Message: err.Error()})
				continue
			}
			out = append(out, Transform{Kind: TransformMetadata, Metadata: meta})
		default:
			errs = append(errs, ValidationError{
				File: file, RuleID: ruleID, Field: "then",
				Message: fmt.Sprintf("unknown transform key %q (want category, labels, memo, metadata)", key),
			})
		}
	}
	return out, errs
}

// decodeLabels accepts a scalar ("a,b" or "a b") or a sequence of
// scalars.
func decodeLabels(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return splitLabelScalar(node.Value), nil
	case yaml.SequenceNode:
		var out []string
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("label entries must be strings")
			}
			out = append(out, item.Value)
		}
		return out, nil
	}
	return nil, fmt.Errorf("labels must be a string or a list of strings")
}

func splitLabelScalar(s string) []string {
	var parts []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		if r == ',' || r == ' ' || r == '\t' {
			flush()
			continue
		}
		cur = append(cur, r)
	}
	flush()
	return parts
}
