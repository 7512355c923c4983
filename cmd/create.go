package cmd

import (
	"context"
	"fmt"

	"github.com/BioHazard786/Roomdrop/internal/files"
	"github.com/BioHazard786/Roomdrop/internal/ui"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:     "create [files...]",
	Aliases: []string{"c", "send"},
	Short:   "Create a room and wait for a peer",
	Long: `Create a new room and print its code and share link. Files given on the
command line are sent as soon as the peer connects; more can be sent from the
chat view with /send.

Examples:
  roomdrop create
  roomdrop create report.pdf photo.png
  roomdrop create --relay auto`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			infos, err := files.Validate(args)
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(ui.FileTableView(ui.FileItems(infos)))
		}

		ctx := context.Background()
		run, err := connect(ctx)
		if err != nil {
			return err
		}

		roomID, err := run.sess.Create(ctx)
		if err != nil {
			run.client.Close()
			return err
		}

		fmt.Println()
		ui.RenderRoomInfo(roomID, run.cfg.GetRoomLink(roomID))
		fmt.Println()

		return run.chat(args)
	},
}

func init() {
	createCmd.Flags().BoolVar(&flagZip, "zip", false, "bundle received files into one archive on exit")
	rootCmd.AddCommand(createCmd)
}
