package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/porticodev/portico/internal/version"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "portico",
	Short: "Portico - local AI completion gateway",
	Long: `Portico is a loopback gateway that load balances AI completion requests
across a pool of upstream providers, bans failing endpoints, and rewrites
requests for OpenAI-compatible upstreams.

For more information, visit: https://github.com/porticodev/portico`,
	Version: version.Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
