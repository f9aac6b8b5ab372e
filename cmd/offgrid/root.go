package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/offgridhq/offgrid/internal/config"
	"github.com/offgridhq/offgrid/pkg/audit"
	"github.com/offgridhq/offgrid/pkg/vault"
)

var (
	cfg      *config.Config
	logger   zerolog.Logger
	v        *vault.Vault
	activity *audit.Logger
)

var rootCmd = &cobra.Command{
	Use:   "offgrid",
	Short: "offgrid is an offline encrypted vault for connection credentials",
	Long: `offgrid keeps server connection credentials in a local encrypted vault.
Everything stays on this machine: records are encrypted with a key derived
from your master password and stored either in an embedded database or in
a single vault file you choose.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		level, parseErr := zerolog.ParseLevel(cfg.LogLevel)
		if parseErr != nil {
			level = zerolog.WarnLevel
		}
		logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

		v, err = vault.Open(cfg.VaultDir, cfg.VaultFile, logger)
		if err != nil {
			return err
		}
		activity = audit.NewLogger(cfg.VaultDir)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if v == nil {
			return nil
		}
		return v.Close()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := vault.StorageEmbedded
		if initFile != "" {
			kind = vault.StorageFile
			cfg.VaultFile = initFile
			if err := cfg.Save(); err != nil {
				return err
			}
			if err := reopenVault(); err != nil {
				return err
			}
		}

		password, err := promptPassword("Enter master password: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassword("Confirm master password: ")
		if err != nil {
			return err
		}
		if string(password) != string(confirm) {
			return fmt.Errorf("passwords do not match")
		}

		report, err := vault.ValidateMasterPassword(password)
		if err != nil {
			return err
		}
		fmt.Printf("Password strength: %s\n", report.Level)
		for _, warning := range report.Warnings {
			fmt.Printf("Warning: %s\n", warning)
		}

		if err := v.Create(password, kind); err != nil {
			return err
		}
		defer lockVault()
		startActivityLog()
		logActivity(activity.Success(audit.OpVaultCreate, ""))

		switch kind {
		case vault.StorageFile:
			fmt.Printf("Vault created in %s\n", cfg.VaultFile)
		default:
			fmt.Printf("Vault created in %s\n", cfg.VaultDir)
		}
		return nil
	},
}

var initFile string

func init() {
	initCmd.Flags().StringVar(&initFile, "file", "", "Create the vault as a single file at this path")
}

// reopenVault replaces the vault handle after a config change (e.g. a new
// vault file path picked by init or migrate).
func reopenVault() error {
	if err := v.Close(); err != nil {
		return err
	}
	var err error
	v, err = vault.Open(cfg.VaultDir, cfg.VaultFile, logger)
	return err
}

// ensureUnlocked prompts for the master password and unlocks the vault for
// the duration of the command. Callers pair it with defer lockVault().
func ensureUnlocked() error {
	password, err := promptPassword("Enter master password: ")
	if err != nil {
		return err
	}

	if err := v.Unlock(password); err != nil {
		if errors.Is(err, vault.ErrWrongPassword) {
			logActivity(activity.Failure(audit.OpVaultUnlockFailed, "", err))
			return fmt.Errorf("wrong password (%d failed attempts)", v.FailedUnlockAttempts())
		}
		return err
	}
	startActivityLog()
	logActivity(activity.Success(audit.OpVaultUnlock, ""))
	return nil
}

func lockVault() {
	if v.State() != vault.StateUnlocked {
		return
	}
	if err := v.Lock(); err != nil {
		logger.Warn().Err(err).Msg("lock failed")
		return
	}
	logActivity(activity.Success(audit.OpVaultLock, ""))
}

// startActivityLog derives the activity-log key once the vault key exists.
// Best effort: a vault without a working activity log still works.
func startActivityLog() {
	key, err := v.ActivityKey()
	if err != nil {
		logger.Warn().Err(err).Msg("activity log disabled")
		return
	}
	if err := activity.SetKey(key); err != nil {
		logger.Warn().Err(err).Msg("activity log disabled")
	}
}

// logActivity reports activity-log failures without failing the command.
func logActivity(err error) {
	if err != nil && !errors.Is(err, audit.ErrKeyNotSet) {
		logger.Warn().Err(err).Msg("activity log write failed")
	}
}

// promptPassword reads a password without echo from a terminal, or a
// single line otherwise so commands stay scriptable. EOF on the prompt is
// treated as the user cancelling.
func promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		password, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", vault.ErrCancelled, err)
		}
		return password, nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("%w: input closed", vault.ErrCancelled)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// promptLine reads one line of non-secret input.
func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("%w: input closed", vault.ErrCancelled)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// copyToClipboard copies a secret and, when configured, blocks until the
// clipboard is cleared again. Clipboard failures are logged, never fatal:
// the secret is still printed or usable through other paths.
func copyToClipboard(secret string, settings vault.Settings) {
	if err := clipboard.WriteAll(secret); err != nil {
		logger.Warn().Err(err).Msg("clipboard copy failed")
		fmt.Println("Could not access the clipboard.")
		return
	}

	timeout := settings.ClipboardClearTimeout()
	if timeout <= 0 {
		fmt.Println("Copied to clipboard.")
		return
	}

	fmt.Printf("Copied to clipboard, clearing in %s...\n", timeout)
	time.Sleep(timeout)
	if err := clipboard.WriteAll(""); err != nil {
		logger.Warn().Err(err).Msg("clipboard clear failed")
		return
	}
	fmt.Println("Clipboard cleared.")
}
