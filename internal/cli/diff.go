package cli

import (
	"github.com/spf13/cobra"

	syncer "github.com/beansync/beansync/internal/sync"
)

var (
	diffID        int64
	diffIDs       bool
	diffChangelog bool
	diffFields    bool
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare the archive against the remote without changing anything",
	Long: `Report where the archive and the remote disagree. The default output
is a per-class summary; --ids lists the disagreeing transaction ids,
--changelog prints DIFF lines in the changelog grammar, and --diff
shows local and remote values side by side. Nothing is written
anywhere.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := syncer.DiffSummary
		set := 0
		for _, s := range []bool{diffIDs, diffChangelog, diffFields} {
			if s {
				set++
			}
		}
		if set > 1 {
			return usagef("at most one of --ids, --changelog, --diff may be given")
		}
		switch {
		case diffIDs:
			mode = syncer.DiffIDs
		case diffChangelog:
			mode = syncer.DiffChangelog
		case diffFields:
			mode = syncer.DiffFields
		}

		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signalContext()
		defer stop()
		_, err = a.orch.Diff(ctx, syncer.DiffOptions{
			Options: syncer.Options{Window: a.window, ID: diffID},
			Mode:    mode,
		})
		return err
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().Int64Var(&diffID, "id", 0, "diff a single transaction by id")
	diffCmd.Flags().BoolVar(&diffIDs, "ids", false, "list disagreeing transaction ids")
	diffCmd.Flags().BoolVar(&diffChangelog, "changelog", false, "print DIFF lines in the changelog grammar")
	diffCmd.Flags().BoolVar(&diffFields, "diff", false, "show local and remote values side by side")
}
