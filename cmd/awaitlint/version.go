package main

import (
	"github.com/spf13/cobra"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the awaitlint version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("awaitlint %s\n", version)
	},
}
