package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

// TestDeriveKey tests the PBKDF2 key derivation function
func TestDeriveKey(t *testing.T) {
	password := []byte("test-password-123")
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt failed: %v", err)
	}

	key := DeriveKey(password, salt)
	if len(key) != KeyLength {
		t.Errorf("DeriveKey() returned key of length %d, want %d", len(key), KeyLength)
	}

	// Same password + salt produces same key (deterministic)
	key2 := DeriveKey(password, salt)
	if !bytes.Equal(key, key2) {
		t.Error("DeriveKey() with same inputs should produce identical keys")
	}

	// Different password produces different key
	if bytes.Equal(key, DeriveKey([]byte("different-password"), salt)) {
		t.Error("DeriveKey() with different password should produce different key")
	}

	// Different salt produces different key
	salt2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt failed: %v", err)
	}
	if bytes.Equal(key, DeriveKey(password, salt2)) {
		t.Error("DeriveKey() with different salt should produce different key")
	}
}

// TestDeriveKeyParameters verifies the fixed interoperability parameters
func TestDeriveKeyParameters(t *testing.T) {
	if Iterations != 100_000 {
		t.Errorf("Iterations = %d, want 100000", Iterations)
	}
	if KeyLength != 32 {
		t.Errorf("KeyLength = %d, want 32 (256-bit)", KeyLength)
	}
	if SaltLength != 16 {
		t.Errorf("SaltLength = %d, want 16", SaltLength)
	}
	if IVLength != 12 {
		t.Errorf("IVLength = %d, want 12", IVLength)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	plaintexts := [][]byte{
		[]byte("secret data to encrypt"),
		[]byte(""),
		[]byte(`{"name":"prod-db","host":"10.0.0.4"}`),
		bytes.Repeat([]byte{0xAB}, 4096),
	}

	for _, plaintext := range plaintexts {
		blob, err := Encrypt(key, plaintext)
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if len(blob.IV) != IVLength {
			t.Errorf("Encrypt() iv length = %d, want %d", len(blob.IV), IVLength)
		}

		decrypted, err := Decrypt(key, blob)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if !bytes.Equal(decrypted, plaintext) {
			t.Error("round-trip plaintext mismatch")
		}
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key1 := make([]byte, KeyLength)
	key2 := make([]byte, KeyLength)
	if _, err := rand.Read(key1); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	if _, err := rand.Read(key2); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	blob, err := Encrypt(key1, []byte("sensitive"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := Decrypt(key2, blob); err != ErrDecryptionFailed {
		t.Errorf("Decrypt() with wrong key: got %v, want ErrDecryptionFailed", err)
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	blob, err := Encrypt(key, []byte("sensitive"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tampered := &Blob{
		Ciphertext: append([]byte(nil), blob.Ciphertext...),
		IV:         blob.IV,
	}
	tampered.Ciphertext[0] ^= 0x01

	if _, err := Decrypt(key, tampered); err != ErrDecryptionFailed {
		t.Errorf("Decrypt() with tampered ciphertext: got %v, want ErrDecryptionFailed", err)
	}

	// Tampered IV must fail the same way; the two causes are
	// indistinguishable to callers.
	badIV := &Blob{
		Ciphertext: blob.Ciphertext,
		IV:         append([]byte(nil), blob.IV...),
	}
	badIV.IV[0] ^= 0x01
	if _, err := Decrypt(key, badIV); err != ErrDecryptionFailed {
		t.Errorf("Decrypt() with tampered iv: got %v, want ErrDecryptionFailed", err)
	}
}

func TestDecryptInvalidInputs(t *testing.T) {
	key := make([]byte, KeyLength)

	if _, err := Decrypt([]byte("short"), &Blob{IV: make([]byte, IVLength)}); err != ErrInvalidKeyLength {
		t.Errorf("expected ErrInvalidKeyLength, got %v", err)
	}
	if _, err := Decrypt(key, nil); err != ErrInvalidIVLength {
		t.Errorf("expected ErrInvalidIVLength for nil blob, got %v", err)
	}
	if _, err := Decrypt(key, &Blob{IV: []byte{1, 2, 3}}); err != ErrInvalidIVLength {
		t.Errorf("expected ErrInvalidIVLength, got %v", err)
	}
	if _, err := Decrypt(key, &Blob{Ciphertext: []byte{1}, IV: make([]byte, IVLength)}); err != ErrDecryptionFailed {
		t.Errorf("expected ErrDecryptionFailed for short ciphertext, got %v", err)
	}
}

// TestIVUniqueness verifies that repeated encryptions of the same plaintext
// with the same key draw distinct IVs and decrypt independently.
func TestIVUniqueness(t *testing.T) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	plaintext := []byte("same plaintext every time")

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		blob, err := Encrypt(key, plaintext)
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if seen[string(blob.IV)] {
			t.Fatal("Encrypt() reused an iv")
		}
		seen[string(blob.IV)] = true

		decrypted, err := Decrypt(key, blob)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if !bytes.Equal(decrypted, plaintext) {
			t.Fatal("round-trip plaintext mismatch")
		}
	}
}

func TestVerifyPassword(t *testing.T) {
	password := []byte("correct-horse")
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt failed: %v", err)
	}

	key := DeriveKey(password, salt)
	token, err := GenerateVerificationToken(key)
	if err != nil {
		t.Fatalf("GenerateVerificationToken failed: %v", err)
	}

	// Correct password returns a usable key
	got := VerifyPassword(password, salt, token)
	if got == nil {
		t.Fatal("VerifyPassword returned nil for correct password")
	}
	if !bytes.Equal(got, key) {
		t.Error("VerifyPassword returned a different key than DeriveKey")
	}

	// Wrong password returns nil, never an error
	if VerifyPassword([]byte("wrong-password"), salt, token) != nil {
		t.Error("VerifyPassword returned a key for wrong password")
	}

	// Wrong salt returns nil
	salt2, _ := GenerateSalt()
	if VerifyPassword(password, salt2, token) != nil {
		t.Error("VerifyPassword returned a key for wrong salt")
	}

	// Tampered token returns nil
	tampered := &Blob{
		Ciphertext: append([]byte(nil), token.Ciphertext...),
		IV:         token.IV,
	}
	tampered.Ciphertext[0] ^= 0x01
	if VerifyPassword(password, salt, tampered) != nil {
		t.Error("VerifyPassword returned a key for tampered token")
	}

	// Degenerate inputs must not panic
	if VerifyPassword(password, nil, token) != nil {
		t.Error("VerifyPassword returned a key for nil salt")
	}
	if VerifyPassword(password, salt, nil) != nil {
		t.Error("VerifyPassword returned a key for nil token")
	}
}

func TestSecureWipe(t *testing.T) {
	b := []byte("sensitive key material")
	SecureWipe(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not wiped", i)
		}
	}
}
