package main

import (
	"github.com/spf13/cobra"

	"github.com/ternarybob/decoupled/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("%s version %s\n", common.AppName, common.GetFullVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
