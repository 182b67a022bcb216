package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fluxionwatt/daqbridge/internal/version"
)

var cfgFile string
var debug bool

var rootCmd = &cobra.Command{
	Use:   version.ProgramName,
	Short: "Bridge a data acquisition unit's analog/counter/alarm inputs onto Modbus and a TLS control channel",
	Long: `daqbridge reads an SRU descriptor and CSV mapping files, exposes the
resulting register map over Modbus TCP, accepts line-delimited control
commands over TLS, and optionally drives a simulated data source for
testing without hardware attached.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./"+version.ProgramName+".yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}
