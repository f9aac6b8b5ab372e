package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offgridhq/offgrid/pkg/audit"
	"github.com/offgridhq/offgrid/pkg/vault"
)

var migrateFile string

var migrateCmd = &cobra.Command{
	Use:   "migrate <embedded|file>",
	Short: "Move the vault between the embedded store and a vault file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var target vault.StorageKind
		switch args[0] {
		case "embedded":
			target = vault.StorageEmbedded
		case "file":
			target = vault.StorageFile
		default:
			return fmt.Errorf("unknown storage %q, want embedded or file", args[0])
		}

		if target == vault.StorageFile && migrateFile != "" {
			cfg.VaultFile = migrateFile
			if err := cfg.Save(); err != nil {
				return err
			}
			if err := reopenVault(); err != nil {
				return err
			}
		}

		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		if err := v.Migrate(target); err != nil {
			logActivity(activity.Failure(audit.OpVaultMigrate, "", err))
			return err
		}
		logActivity(activity.Success(audit.OpVaultMigrate, ""))

		switch target {
		case vault.StorageFile:
			fmt.Printf("Vault migrated to %s\n", cfg.VaultFile)
		default:
			fmt.Printf("Vault migrated to the embedded store in %s\n", cfg.VaultDir)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateFile, "file", "", "Vault file path for file storage")
}
