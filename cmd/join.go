package cmd

import (
	"context"

	"github.com/BioHazard786/Roomdrop/internal/ui"
	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id|link>",
	Aliases: []string{"j", "receive"},
	Short:   "Join an existing room",
	Long: `Join a room by its code or share link and open the chat view.

Examples:
  roomdrop join AB12
  roomdrop join https://roomdrop.qzz.io/r/AB12
  roomdrop join AB12 --dir ~/Downloads --zip`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		run, err := connect(ctx)
		if err != nil {
			return err
		}

		if err := run.sess.Join(ctx, args[0]); err != nil {
			run.client.Close()
			return err
		}
		ui.PrintSuccessf("Joined room %s", run.sess.Room().ID)

		return run.chat(nil)
	},
}

func init() {
	joinCmd.Flags().BoolVar(&flagZip, "zip", false, "bundle received files into one archive on exit")
	rootCmd.AddCommand(joinCmd)
}
