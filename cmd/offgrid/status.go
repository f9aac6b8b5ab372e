package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/offgridhq/offgrid/pkg/vault"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault state and statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		state := v.State()
		fmt.Printf("State:   %s\n", state)
		if state == vault.StateUninitialized {
			fmt.Println("Run 'offgrid init' to create a vault.")
			return nil
		}

		kind, err := v.StorageKind()
		if err != nil {
			return err
		}
		fmt.Printf("Storage: %s\n", kind)
		if kind == vault.StorageFile {
			fmt.Printf("File:    %s\n", cfg.VaultFile)
		}

		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		stats, err := v.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("Servers: %d (%d credentials) in %d folders\n",
			stats.Servers, stats.Credentials, stats.Folders)
		fmt.Printf("Saves:   %s\n", v.SaveStatus())
		return nil
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings [name value]",
	Short: "Show or change vault settings",
	Long: `Without arguments, prints the current settings. With a name and a
value, updates that setting. Names: auto-lock-seconds, auto-save-delay-ms,
clipboard-clear-seconds, auto-save-enabled, show-save-indicator.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer lockVault()

		settings, err := v.Settings()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			fmt.Printf("auto-lock-seconds:       %d\n", settings.AutoLockSeconds)
			fmt.Printf("auto-save-delay-ms:      %d\n", settings.AutoSaveDelayMs)
			fmt.Printf("clipboard-clear-seconds: %d\n", settings.ClipboardClearSeconds)
			fmt.Printf("auto-save-enabled:       %t\n", settings.AutoSaveEnabled)
			fmt.Printf("show-save-indicator:     %t\n", settings.ShowSaveIndicator)
			return nil
		}
		if len(args) != 2 {
			return fmt.Errorf("expected a setting name and a value")
		}

		name, value := args[0], args[1]
		switch name {
		case "auto-lock-seconds", "auto-save-delay-ms", "clipboard-clear-seconds":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid value %q for %s", value, name)
			}
			switch name {
			case "auto-lock-seconds":
				settings.AutoLockSeconds = n
			case "auto-save-delay-ms":
				settings.AutoSaveDelayMs = n
			case "clipboard-clear-seconds":
				settings.ClipboardClearSeconds = n
			}
		case "auto-save-enabled", "show-save-indicator":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid value %q for %s", value, name)
			}
			if name == "auto-save-enabled" {
				settings.AutoSaveEnabled = b
			} else {
				settings.ShowSaveIndicator = b
			}
		default:
			return fmt.Errorf("unknown setting %q", name)
		}

		if err := v.UpdateSettings(settings); err != nil {
			return err
		}
		fmt.Printf("%s set to %s\n", name, value)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(settingsCmd)
}
