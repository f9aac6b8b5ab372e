package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/offgridhq/offgrid/pkg/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import servers from a CSV inventory",
	Long: `Imports server records from a CSV file. Recognized columns: name,
host, port, folder, kind, username, password, notes. Only name and host
are required; folders named in the file are created as needed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		result, err := importer.ParseCSV(f)
		if err != nil {
			return err
		}
		for _, warning := range result.Warnings {
			fmt.Printf("Warning: %s\n", warning)
		}
		for _, skipped := range result.Skipped {
			fmt.Printf("Skipped line %d: %s\n", skipped.Line, skipped.Reason)
		}
		if len(result.Servers) == 0 {
			return fmt.Errorf("nothing to import")
		}

		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		records, err := importer.Import(v, result)
		if err != nil {
			return fmt.Errorf("import stopped after %d servers: %w", len(records), err)
		}
		fmt.Printf("Imported %d servers.\n", len(records))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
