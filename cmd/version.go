package cmd

import (
	"fmt"

	"github.com/BioHazard786/Roomdrop/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the roomdrop version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("roomdrop %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
