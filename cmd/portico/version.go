package main

import (
	"log"
	"runtime"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/porticodev/portico/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		vlog := log.New(log.Writer(), "", 0)
		version.PrintVersionInfo(true, vlog)
		pterm.Printf("Go Version: %s\n", runtime.Version())
		pterm.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
