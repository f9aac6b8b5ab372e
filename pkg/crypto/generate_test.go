package crypto

import (
	"strings"
	"testing"
)

func TestGeneratePasswordLength(t *testing.T) {
	opts := PasswordOptions{
		Length:    16,
		Uppercase: true,
		Lowercase: true,
		Numbers:   true,
		Symbols:   true,
	}

	for i := 0; i < 20; i++ {
		password, err := GeneratePassword(opts)
		if err != nil {
			t.Fatalf("GeneratePassword failed: %v", err)
		}
		if len(password) != 16 {
			t.Fatalf("expected 16 characters, got %d", len(password))
		}
	}
}

func TestGeneratePasswordFallbackPool(t *testing.T) {
	// Disabling every character class still returns a non-empty password
	// from the default pool.
	password, err := GeneratePassword(PasswordOptions{Length: 12})
	if err != nil {
		t.Fatalf("GeneratePassword failed: %v", err)
	}
	if len(password) != 12 {
		t.Fatalf("expected 12 characters, got %d", len(password))
	}
	fallback := poolLowercase + poolDigits
	for _, c := range password {
		if !strings.ContainsRune(fallback, c) {
			t.Errorf("character %q not in fallback pool", c)
		}
	}
}

func TestGeneratePasswordRespectsPool(t *testing.T) {
	password, err := GeneratePassword(PasswordOptions{Length: 64, Numbers: true})
	if err != nil {
		t.Fatalf("GeneratePassword failed: %v", err)
	}
	for _, c := range password {
		if !strings.ContainsRune(poolDigits, c) {
			t.Errorf("character %q not in digits pool", c)
		}
	}
}

func TestGeneratePassphrase(t *testing.T) {
	phrase, err := GeneratePassphrase(PassphraseOptions{Words: 4, Separator: "."})
	if err != nil {
		t.Fatalf("GeneratePassphrase failed: %v", err)
	}
	parts := strings.Split(phrase, ".")
	if len(parts) != 4 {
		t.Fatalf("expected 4 words, got %d", len(parts))
	}
	for _, w := range parts {
		if w == "" {
			t.Error("empty word in passphrase")
		}
	}
}

func TestGeneratePassphraseCapitalize(t *testing.T) {
	phrase, err := GeneratePassphrase(PassphraseOptions{Words: 6, Capitalize: true})
	if err != nil {
		t.Fatalf("GeneratePassphrase failed: %v", err)
	}
	for _, w := range strings.Split(phrase, "-") {
		if w[0] < 'A' || w[0] > 'Z' {
			t.Errorf("word %q not capitalized", w)
		}
	}
}

func TestPasswordEntropy(t *testing.T) {
	// 16 characters over all four classes: pool = 26+26+10+28 = 90,
	// floor(16 * log2(90)) = 103.
	bits := PasswordEntropy(PasswordOptions{
		Length:    16,
		Uppercase: true,
		Lowercase: true,
		Numbers:   true,
		Symbols:   true,
	})
	if bits != 103 {
		t.Errorf("PasswordEntropy = %d, want 103", bits)
	}

	if got := PasswordEntropy(PasswordOptions{Length: 0}); got != 0 {
		t.Errorf("PasswordEntropy for zero length = %d, want 0", got)
	}

	// Digits only: floor(8 * log2(10)) = 26.
	if got := PasswordEntropy(PasswordOptions{Length: 8, Numbers: true}); got != 26 {
		t.Errorf("PasswordEntropy digits-only = %d, want 26", got)
	}
}

func TestPassphraseEntropy(t *testing.T) {
	// 256-word list: exactly 8 bits per word.
	if got := PassphraseEntropy(5); got != 40 {
		t.Errorf("PassphraseEntropy(5) = %d, want 40", got)
	}
	if got := PassphraseEntropy(0); got != 0 {
		t.Errorf("PassphraseEntropy(0) = %d, want 0", got)
	}
}

func TestSymbolPoolSize(t *testing.T) {
	// The entropy estimate assumes exactly 28 symbols.
	if len(poolSymbols) != 28 {
		t.Errorf("symbol pool has %d characters, want 28", len(poolSymbols))
	}
	if len(wordList) != 256 {
		t.Errorf("word list has %d words, want 256", len(wordList))
	}
}
