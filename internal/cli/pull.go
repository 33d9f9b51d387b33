package cli

import (
	"github.com/spf13/cobra"

	syncer "github.com/beansync/beansync/internal/sync"
)

var pullID int64

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Merge remote changes into the archive",
	Long: `Fetch the remote delta since the last watermark, merge the fields the
remote owns into the archive, and write the fields the archive owns
back to the remote. Immutable-field differences are reported, never
resolved.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signalContext()
		defer stop()
		_, err = a.orch.Pull(ctx, syncer.Options{Window: a.window, ID: pullID})
		return err
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
	pullCmd.Flags().Int64Var(&pullID, "id", 0, "pull a single transaction by id")
}
