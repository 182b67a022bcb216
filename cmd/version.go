package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxionwatt/daqbridge/internal/version"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s (commit %s, built %s)\n", version.ProductName, version.Version, version.CommitSHA, version.BUILDTIME)
	},
}
