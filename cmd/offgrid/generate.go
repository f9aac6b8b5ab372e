package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offgridhq/offgrid/pkg/crypto"
	"github.com/offgridhq/offgrid/pkg/vault"
)

var (
	genLength    int
	genNoUpper   bool
	genNoLower   bool
	genNoNumbers bool
	genNoSymbols bool
	genCopy      bool

	genWords      int
	genSeparator  string
	genCapitalize bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate passwords and passphrases",
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.AddCommand(generatePasswordCmd)
	generateCmd.AddCommand(generatePassphraseCmd)

	generatePasswordCmd.Flags().IntVar(&genLength, "length", 16, "Password length")
	generatePasswordCmd.Flags().BoolVar(&genNoUpper, "no-uppercase", false, "Exclude uppercase letters")
	generatePasswordCmd.Flags().BoolVar(&genNoLower, "no-lowercase", false, "Exclude lowercase letters")
	generatePasswordCmd.Flags().BoolVar(&genNoNumbers, "no-numbers", false, "Exclude digits")
	generatePasswordCmd.Flags().BoolVar(&genNoSymbols, "no-symbols", false, "Exclude symbols")
	generatePasswordCmd.Flags().BoolVar(&genCopy, "copy", false, "Copy to clipboard instead of printing")

	generatePassphraseCmd.Flags().IntVar(&genWords, "words", 5, "Number of words")
	generatePassphraseCmd.Flags().StringVar(&genSeparator, "separator", "-", "Word separator")
	generatePassphraseCmd.Flags().BoolVar(&genCapitalize, "capitalize", false, "Capitalize each word")
	generatePassphraseCmd.Flags().BoolVar(&genCopy, "copy", false, "Copy to clipboard instead of printing")
}

var generatePasswordCmd = &cobra.Command{
	Use:   "password",
	Short: "Generate a random password",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := crypto.PasswordOptions{
			Length:    genLength,
			Uppercase: !genNoUpper,
			Lowercase: !genNoLower,
			Numbers:   !genNoNumbers,
			Symbols:   !genNoSymbols,
		}
		password, err := crypto.GeneratePassword(opts)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Entropy: ~%d bits\n", crypto.PasswordEntropy(opts))
		return emitSecret(password)
	},
}

var generatePassphraseCmd = &cobra.Command{
	Use:   "passphrase",
	Short: "Generate a random word passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := crypto.PassphraseOptions{
			Words:      genWords,
			Separator:  genSeparator,
			Capitalize: genCapitalize,
		}
		passphrase, err := crypto.GeneratePassphrase(opts)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Entropy: ~%d bits\n", crypto.PassphraseEntropy(genWords))
		return emitSecret(passphrase)
	},
}

// emitSecret prints the generated secret, or copies it when --copy is set
// so it never lands in the terminal scrollback.
func emitSecret(secret string) error {
	if !genCopy {
		fmt.Println(secret)
		return nil
	}
	settings, err := v.Settings()
	if err != nil {
		// No vault yet; fall back to the default auto-clear.
		settings = vault.DefaultSettings()
	}
	copyToClipboard(secret, settings)
	return nil
}
