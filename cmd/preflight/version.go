package main

import (
	"fmt"

	"github.com/aretw0/preflight"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of preflight",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "preflight version %s\n", preflight.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
