package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mapmeter/mapmeter/adapters/sqlite"
	"github.com/mapmeter/mapmeter/config"
)

const (
	checkMark = "✓"
	crossMark = "✗"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the mapmeter configuration file.

Checks:
  - YAML syntax is valid
  - Product table and quotas are well-formed
  - Database is writable (optional)

Examples:
  mapmeter validate
  mapmeter validate --config /etc/mapmeter/config.yaml`,
	RunE: runValidate,
}

var validateCheckDatabase bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config syntax valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config syntax valid\n", checkMark)

	fmt.Printf("  %s %d products, %d ignored hosts\n", checkMark, len(cfg.Products), len(cfg.IgnoredHosts))

	if cfg.GoogleCloud.ProjectID == "" {
		fmt.Printf("  %s No project id: remote usage reports will be disabled\n", crossMark)
	} else {
		fmt.Printf("  %s Project id set (%s)\n", checkMark, cfg.GoogleCloud.ProjectID)
	}

	if validateCheckDatabase {
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			fmt.Printf("  %s Database writable\n", crossMark)
			return fmt.Errorf("database error: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			fmt.Printf("  %s Database writable\n", crossMark)
			return fmt.Errorf("database error: %w", err)
		}
		fmt.Printf("  %s Database writable\n", checkMark)
	}

	fmt.Println("\nConfiguration is valid.")
	return nil
}
