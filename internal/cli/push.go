package cli

import (
	"github.com/spf13/cobra"

	syncer "github.com/beansync/beansync/internal/sync"
)

var pushID int64

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Promote local edits to the remote",
	Long: `Compare the archive against the current remote state and write the
local values of the fields the archive owns, including the category,
to the remote. The archive itself is not modified.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signalContext()
		defer stop()
		_, err = a.orch.Push(ctx, syncer.Options{Window: a.window, ID: pushID})
		return err
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
	pushCmd.Flags().Int64Var(&pushID, "id", 0, "push a single transaction by id")
}
