package crypto

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Character pools for password generation. The symbol pool deliberately has
// 28 characters; entropy estimates depend on these exact sizes.
const (
	poolLowercase = "abcdefghijklmnopqrstuvwxyz"
	poolUppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	poolDigits    = "0123456789"
	poolSymbols   = "!@#$%^&*()-_=+[]{};:,.<>?/~|"
)

// PasswordOptions selects the character classes and length for
// GeneratePassword. Disabling every class falls back to a default pool of
// lowercase letters and digits rather than failing.
type PasswordOptions struct {
	Length    int
	Uppercase bool
	Lowercase bool
	Numbers   bool
	Symbols   bool
}

// PassphraseOptions configures GeneratePassphrase.
type PassphraseOptions struct {
	Words      int
	Separator  string
	Capitalize bool
}

// DefaultPasswordOptions is a 16-character password over all four classes.
var DefaultPasswordOptions = PasswordOptions{
	Length:    16,
	Uppercase: true,
	Lowercase: true,
	Numbers:   true,
	Symbols:   true,
}

// pool returns the character pool implied by the options, falling back to
// lowercase+digits when every class is disabled.
func (o PasswordOptions) pool() string {
	var b strings.Builder
	if o.Lowercase {
		b.WriteString(poolLowercase)
	}
	if o.Uppercase {
		b.WriteString(poolUppercase)
	}
	if o.Numbers {
		b.WriteString(poolDigits)
	}
	if o.Symbols {
		b.WriteString(poolSymbols)
	}
	if b.Len() == 0 {
		return poolLowercase + poolDigits
	}
	return b.String()
}

// GeneratePassword produces a random password from the selected character
// pools using crypto/rand. It never uses a non-cryptographic generator:
// generated passwords are key material.
func GeneratePassword(opts PasswordOptions) (string, error) {
	if opts.Length <= 0 {
		opts.Length = DefaultPasswordOptions.Length
	}

	pool := opts.pool()
	poolLen := big.NewInt(int64(len(pool)))
	password := make([]byte, opts.Length)

	for i := range password {
		idx, err := rand.Int(rand.Reader, poolLen)
		if err != nil {
			return "", fmt.Errorf("crypto: failed to generate random index: %w", err)
		}
		password[i] = pool[idx.Int64()]
	}

	return string(password), nil
}

// GeneratePassphrase produces a random passphrase from the fixed word list
// using crypto/rand, joined by the separator (default "-").
func GeneratePassphrase(opts PassphraseOptions) (string, error) {
	if opts.Words <= 0 {
		opts.Words = 5
	}
	if opts.Separator == "" {
		opts.Separator = "-"
	}

	listLen := big.NewInt(int64(len(wordList)))
	words := make([]string, opts.Words)

	for i := range words {
		idx, err := rand.Int(rand.Reader, listLen)
		if err != nil {
			return "", fmt.Errorf("crypto: failed to generate random index: %w", err)
		}
		word := wordList[idx.Int64()]
		if opts.Capitalize {
			word = strings.ToUpper(word[:1]) + word[1:]
		}
		words[i] = word
	}

	return strings.Join(words, opts.Separator), nil
}

// PasswordEntropy estimates the entropy in bits of a password generated
// with the given options: floor(length * log2(poolSize)). Pure and
// deterministic; used only for strength labeling, never for security
// decisions.
func PasswordEntropy(opts PasswordOptions) int {
	if opts.Length <= 0 {
		return 0
	}
	return int(math.Floor(float64(opts.Length) * math.Log2(float64(len(opts.pool())))))
}

// PassphraseEntropy estimates the entropy in bits of a passphrase of
// wordCount words drawn from the fixed word list:
// floor(wordCount * log2(wordListSize)).
func PassphraseEntropy(wordCount int) int {
	if wordCount <= 0 {
		return 0
	}
	return int(math.Floor(float64(wordCount) * math.Log2(float64(len(wordList)))))
}

// WordListSize returns the number of words in the passphrase word list.
func WordListSize() int {
	return len(wordList)
}
