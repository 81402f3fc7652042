// Package main implements sbusctl, a cobra CLI that issues admin
// commands against a running sbusd over its Unix Domain Socket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var socketPath string

var rootCmd = &cobra.Command{
	Use:     "sbusctl",
	Short:   "Operator CLI for the software bus admin channel",
	Version: "0.1.0",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/sbus.sock", "admin socket path")

	rootCmd.AddCommand(noopCmd)
	rootCmd.AddCommand(resetCountersCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(writeRoutingInfoCmd)
	rootCmd.AddCommand(writePipeInfoCmd)
	rootCmd.AddCommand(writeMapInfoCmd)
	rootCmd.AddCommand(enableRouteCmd)
	rootCmd.AddCommand(disableRouteCmd)
	rootCmd.AddCommand(enableSubReportingCmd)
	rootCmd.AddCommand(disableSubReportingCmd)
	rootCmd.AddCommand(sendPrevSubsCmd)
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
