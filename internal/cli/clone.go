package cli

import (
	"github.com/spf13/cobra"
)

var cloneCmd = &cobra.Command{
	Use:   "clone [directory]",
	Short: "Materialize a fresh archive from the remote",
	Long: `Fetch the account and category directory plus every transaction in
the window and write them out as a new archive. The clone stamps the
changelog watermark later pulls start from.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest := ""
		if len(args) == 1 {
			dest = args[0]
		}
		a, err := createApp(dest)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signalContext()
		defer stop()
		return a.orch.Clone(ctx, a.window)
	},
}

func init() {
	rootCmd.AddCommand(cloneCmd)
}
