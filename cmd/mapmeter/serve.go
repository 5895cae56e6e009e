package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mapmeter/mapmeter/bootstrap"
	"github.com/mapmeter/mapmeter/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the usage API server",
	Long: `Start the mapmeter HTTP server.

The server will:
  - Load configuration from mapmeter.yaml (or --config)
  - Or load configuration from MAPMETER_* environment variables
  - Open the local counter database
  - Serve usage reports, bumps, and the local ledger summary

Environment variables (for Docker deployments):
  MAPMETER_PROJECT_ID        - GCP project to query (enables remote reports)
  MAPMETER_CREDENTIALS_FILE  - Service account key path (default: ADC)
  MAPMETER_DATABASE_DSN      - Database path (default: mapmeter.db)
  MAPMETER_SERVER_PORT       - Server port (default: 8080)
  MAPMETER_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  mapmeter serve
  mapmeter serve --config /etc/mapmeter/config.yaml
  mapmeter serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var app *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with config file
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}

		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}

		app, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
