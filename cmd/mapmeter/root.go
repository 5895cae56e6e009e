package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mapmeter",
	Short: "Usage and quota tracking for metered Google Maps APIs",
	Long: `mapmeter tracks consumption of metered Google Maps Platform APIs
against per-product monthly quotas.

It pulls request counts from Cloud Monitoring, classifies them into
products by backend hostname, and reconciles them with a locally kept
bump ledger for usage the monitoring backend cannot see.

Quick start:
  mapmeter serve     # Start the HTTP API
  mapmeter report    # Print the current month's usage report
  mapmeter bump --service "Roads API" --amount 3`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "mapmeter.yaml", "config file path")
}
