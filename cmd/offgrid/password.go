package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offgridhq/offgrid/pkg/audit"
	"github.com/offgridhq/offgrid/pkg/vault"
)

var changePasswordCmd = &cobra.Command{
	Use:   "change-password",
	Short: "Change the master password",
	Long: `Re-encrypts every record under a key derived from the new password
with a fresh salt. The old password must be entered first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		oldPassword, err := promptPassword("Current master password: ")
		if err != nil {
			return err
		}
		newPassword, err := promptPassword("New master password: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassword("Confirm new master password: ")
		if err != nil {
			return err
		}
		if string(newPassword) != string(confirm) {
			return fmt.Errorf("passwords do not match")
		}

		report, err := vault.ValidateMasterPassword(newPassword)
		if err != nil {
			return err
		}
		for _, warning := range report.Warnings {
			fmt.Printf("Warning: %s\n", warning)
		}

		if err := v.ChangePassword(oldPassword, newPassword); err != nil {
			logActivity(activity.Failure(audit.OpPasswordChange, "", err))
			return err
		}
		logActivity(activity.Success(audit.OpPasswordChange, ""))
		fmt.Println("Master password changed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changePasswordCmd)
}
