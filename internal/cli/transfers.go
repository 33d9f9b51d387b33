package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	syncer "github.com/beansync/beansync/internal/sync"
)

var detectTransfersCmd = &cobra.Command{
	Use:   "detect-transfers",
	Short: "Pair opposing transactions as transfers",
	Long: `Scan the window for transaction pairs that look like money moving
between the user's own accounts. Confirmed pairs are marked as
transfers and cross-linked; near-miss pairs are linked and annotated
with the reasons they fell short. The operation is local-only and safe
to re-run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signalContext()
		defer stop()
		result, changes, err := a.orch.DetectTransfers(ctx, a.cfg.Transfers.Criteria(), syncer.Options{Window: a.window})
		if err != nil {
			return err
		}

		fmt.Printf("confirmed: %d pairs\n", len(result.Confirmed))
		fmt.Printf("suspected: %d pairs\n", len(result.Suspected))
		for _, p := range result.Patterns {
			fmt.Printf("pattern: %s (%d pairs)\n", p.Reason, p.Count)
		}
		fmt.Printf("changes:   %d\n", len(changes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectTransfersCmd)
}
