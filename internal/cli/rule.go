package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/beansync/beansync/internal/rules"
	syncer "github.com/beansync/beansync/internal/sync"
)

var (
	rulesPath string

	ruleListAll bool
	ruleApplyID int64

	ruleAddID       int64
	ruleAddMerchant string
	ruleAddAccount  string
	ruleAddCategory string
	ruleAddLabels   []string
	ruleAddMemo     string
	ruleAddFile     string

	ruleRmID int64
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage and apply classification rules",
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the loaded rules in matching order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveRulesPath()
		if err != nil {
			return err
		}
		loader := rules.Loader{IncludeDisabled: ruleListAll}
		set, err := loader.Load(path)
		if err != nil {
			return err
		}
		for _, r := range set {
			fmt.Println(ruleSummary(r))
		}
		return nil
	},
}

var ruleApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the rules to the archive",
	Long: `Run first-match-wins rule application over the window and persist the
results. Rule application is local-only; use push to promote the
changes to the remote.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveRulesPath()
		if err != nil {
			return err
		}
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signalContext()
		defer stop()
		apps, err := a.orch.ApplyRules(ctx, path, syncer.Options{Window: a.window, ID: ruleApplyID})
		if err != nil {
			return err
		}
		for _, app := range apps {
			if app.Status == rules.StatusInvalid {
				fmt.Printf("rule %d: %s %s could not be resolved\n", app.RuleID, app.Field, app.New)
				continue
			}
			fmt.Printf("rule %d: txn %d %s %s -> %s\n", app.RuleID, app.TxnID, app.Field, app.Old, app.New)
		}
		return nil
	},
}

var ruleLookupCmd = &cobra.Command{
	Use:   "lookup <transaction-id>",
	Short: "Show which rule would fire for a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return usagef("invalid transaction id %q", args[0])
		}
		path, err := resolveRulesPath()
		if err != nil {
			return err
		}
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		rule, err := a.orch.LookupRule(path, id)
		if err != nil {
			return err
		}
		if rule == nil {
			fmt.Printf("no rule matches transaction %d\n", id)
			return nil
		}
		fmt.Println(ruleSummary(*rule))
		return nil
	},
}

var ruleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a rule to the rules file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ruleAddID <= 0 {
			return usagef("--id must be a positive integer")
		}
		if ruleAddMerchant == "" && ruleAddAccount == "" {
			return usagef("at least one of --merchant or --account is required")
		}
		if ruleAddCategory == "" && len(ruleAddLabels) == 0 && ruleAddMemo == "" {
			return usagef("at least one of --category, --label, --memo is required")
		}

		target := ruleAddFile
		if target == "" {
			path, err := resolveRulesPath()
			if err != nil {
				return err
			}
			target = path
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				target = filepath.Join(path, "rules.yaml")
			}
		}
		return appendRule(target)
	},
}

var ruleRmCmd = &cobra.Command{
	Use:   "rm",
	Short: "Remove a rule by id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ruleRmID <= 0 {
			return usagef("--id must be a positive integer")
		}
		path, err := resolveRulesPath()
		if err != nil {
			return err
		}
		removed, err := removeRule(path, ruleRmID)
		if err != nil {
			return err
		}
		if !removed {
			return usagef("no rule with id %d", ruleRmID)
		}
		fmt.Printf("removed rule %d\n", ruleRmID)
		return nil
	},
}

func resolveRulesPath() (string, error) {
	if rulesPath != "" {
		return rulesPath, nil
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Rules.Path, nil
}

// ruleSummary renders one rule for listings.
func ruleSummary(r rules.Rule) string {
	var conds []string
	if r.If.Merchant != "" {
		conds = append(conds, "merchant~"+r.If.Merchant)
	}
	if r.If.Account != "" {
		conds = append(conds, "account~"+r.If.Account)
	}
	if r.If.Category != "" {
		conds = append(conds, "category~"+r.If.Category)
	}
	for k, v := range r.If.Metadata {
		conds = append(conds, k+"~"+v)
	}

	var actions []string
	for _, tr := range r.Then {
		switch tr.Kind {
		case rules.TransformCategory:
			actions = append(actions, "category="+tr.Category)
		case rules.TransformLabels:
			actions = append(actions, "labels="+strings.Join(tr.Labels, ","))
		case rules.TransformMemo:
			actions = append(actions, "memo="+tr.Memo)
		case rules.TransformMetadata:
			actions = append(actions, "metadata")
		}
	}

	status := ""
	if r.Disabled {
		status = " (disabled)"
	}
	return fmt.Sprintf("%d%s: %s -> %s  [%s]",
		r.ID, status, strings.Join(conds, " "), strings.Join(actions, " "), filepath.Base(r.File))
}

// appendRule renders the new rule as YAML, appends it, and verifies the
// file still loads, restoring the original content when it does not.
func appendRule(target string) error {
	original, readErr := os.ReadFile(target)
	if readErr != nil && !os.IsNotExist(readErr) {
		return fmt.Errorf("read rules file %s: %w", target, readErr)
	}

	var b strings.Builder
	if len(original) > 0 && !strings.HasSuffix(string(original), "\n") {
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "- id: %d\n", ruleAddID)
	b.WriteString("  if:\n")
	if ruleAddMerchant != "" {
		fmt.Fprintf(&b, "    merchant: %q\n", ruleAddMerchant)
	}
	if ruleAddAccount != "" {
		fmt.Fprintf(&b, "    account: %q\n", ruleAddAccount)
	}
	b.WriteString("  then:\n")
	if ruleAddCategory != "" {
		fmt.Fprintf(&b, "    - category: %q\n", ruleAddCategory)
	}
	if len(ruleAddLabels) > 0 {
		quoted := make([]string, len(ruleAddLabels))
		for i, l := range ruleAddLabels {
			quoted[i] = fmt.Sprintf("%q", l)
		}
		fmt.Fprintf(&b, "    - labels: [%s]\n", strings.Join(quoted, ", "))
	}
	if ruleAddMemo != "" {
		fmt.Fprintf(&b, "    - memo: %q\n", ruleAddMemo)
	}

	updated := append(append([]byte{}, original...), []byte(b.String())...)
	if err := os.WriteFile(target, updated, 0o644); err != nil {
		return fmt.Errorf("write rules file %s: %w", target, err)
	}

	var loader rules.Loader
	if _, err := loader.Load(target); err != nil {
		if readErr == nil {
			_ = os.WriteFile(target, original, 0o644)
		} else {
			_ = os.Remove(target)
		}
		return err
	}
	fmt.Printf("added rule %d to %s\n", ruleAddID, target)
	return nil
}

// removeRule deletes the sequence item with the given id from whichever
// rules file defines it, preserving the other entries.
func removeRule(path string, id int64) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat rules path %s: %w", path, err)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return false, fmt.Errorf("read rules directory %s: %w", path, err)
		}
		files = files[:0]
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
	}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return false, fmt.Errorf("read rules file %s: %w", file, err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return false, fmt.Errorf("parse rules file %s: %w", file, err)
		}
		if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.SequenceNode {
			continue
		}
		seq := doc.Content[0]

		kept := seq.Content[:0]
		removed := false
		for _, item := range seq.Content {
			if ruleNodeID(item) == id {
				removed = true
				continue
			}
			kept = append(kept, item)
		}
		if !removed {
			continue
		}
		seq.Content = kept

		out, err := yaml.Marshal(&doc)
		if err != nil {
			return false, fmt.Errorf("render rules file %s: %w", file, err)
		}
		if len(seq.Content) == 0 {
			out = []byte("[]\n")
		}
		if err := os.WriteFile(file, out, 0o644); err != nil {
			return false, fmt.Errorf("write rules file %s: %w", file, err)
		}
		return true, nil
	}
	return false, nil
}

// ruleNodeID reads the id scalar off a rule mapping node.
func ruleNodeID(item *yaml.Node) int64 {
	if item.Kind != yaml.MappingNode {
		return 0
	}
	for i := 0; i+1 < len(item.Content); i += 2 {
		if item.Content[i].Value != "id" {
			continue
		}
		id, err := strconv.ParseInt(item.Content[i+1].Value, 10, 64)
		if err != nil {
			return 0
		}
		return id
	}
	return 0
}

func init() {
	rootCmd.AddCommand(ruleCmd)
	ruleCmd.AddCommand(ruleListCmd, ruleApplyCmd, ruleLookupCmd, ruleAddCmd, ruleRmCmd)

	ruleCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "rules file or directory (default: rules.path from config)")

	ruleListCmd.Flags().BoolVar(&ruleListAll, "all", false, "include disabled rules")
	ruleApplyCmd.Flags().Int64Var(&ruleApplyID, "id", 0, "apply to a single transaction by id")

	ruleAddCmd.Flags().Int64Var(&ruleAddID, "id", 0, "unique rule id")
	ruleAddCmd.Flags().StringVar(&ruleAddMerchant, "merchant", "", "merchant pattern the rule matches")
	ruleAddCmd.Flags().StringVar(&ruleAddAccount, "account", "", "account pattern the rule matches")
	ruleAddCmd.Flags().StringVar(&ruleAddCategory, "category", "", "category the rule assigns")
	ruleAddCmd.Flags().StringSliceVar(&ruleAddLabels, "label", nil, "label the rule adds (repeatable)")
	ruleAddCmd.Flags().StringVar(&ruleAddMemo, "memo", "", "memo the rule sets")
	ruleAddCmd.Flags().StringVar(&ruleAddFile, "file", "", "rules file to append to")

	ruleRmCmd.Flags().Int64Var(&ruleRmID, "id", 0, "rule id to remove")
}
