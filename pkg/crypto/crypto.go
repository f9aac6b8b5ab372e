// Package crypto provides the cryptographic primitives for offgrid.
//
// This package implements AES-256-GCM authenticated encryption over
// PBKDF2-derived keys, plus the password verification token used to check
// a master password without decrypting any vault data.
//
// # Security Features
//
//   - AES-256-GCM authenticated encryption (confidentiality + integrity)
//   - PBKDF2 key derivation (100,000 iterations, SHA-256, 256-bit keys)
//   - Cryptographically secure random salt and IV generation
//   - Secure memory wiping for sensitive data
//
// All parameters are fixed: blobs written by one build must decrypt in any
// other, and the share codec relies on the exact same derivation.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
)

// Fixed derivation and cipher parameters. Changing any of these breaks
// compatibility with existing vault files and share links.
const (
	// Iterations is the PBKDF2 iteration count.
	Iterations = 100_000

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// SaltLength is the length of key-derivation salts in bytes.
	SaltLength = 16

	// IVLength is the length of GCM IVs in bytes (96 bits).
	IVLength = 12
)

// verificationMarker is the fixed plaintext encrypted into a verification
// token. Matching it after decryption proves the candidate key is correct.
var verificationMarker = []byte("offgrid-vault-verify-v1")

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidIVLength indicates the IV is not 12 bytes.
	ErrInvalidIVLength = errors.New("crypto: invalid iv length, must be 12 bytes")

	// ErrDecryptionFailed indicates decryption failed. A wrong key and a
	// tampered or corrupted ciphertext are indistinguishable by design;
	// callers must not assume which occurred.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
)

// Blob is the universal encryption envelope: a ciphertext paired with the
// IV it was produced under. A Blob is never persisted or transmitted
// without its IV, and never reused across keys.
type Blob struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
}

// DeriveKey derives a 256-bit encryption key from a password using PBKDF2
// with SHA-256 and 100,000 iterations. Deterministic for identical
// (password, salt) pairs.
func DeriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, Iterations, KeyLength, sha256.New)
}

// GenerateSalt returns 16 bytes of cryptographically secure random data.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// Encrypt encrypts plaintext with AES-256-GCM under key, drawing a fresh
// random 12-byte IV. The returned Blob carries both the ciphertext (with
// the GCM tag appended) and the IV.
func Encrypt(key, plaintext []byte) (*Blob, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, IVLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate iv: %w", err)
	}

	return &Blob{
		Ciphertext: gcm.Seal(nil, iv, plaintext, nil),
		IV:         iv,
	}, nil
}

// Decrypt decrypts a Blob with AES-256-GCM under key, verifying the
// authentication tag. Returns ErrDecryptionFailed on a wrong key or any
// corruption of ciphertext or IV.
func Decrypt(key []byte, blob *Blob) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	if blob == nil || len(blob.IV) != IVLength {
		return nil, ErrInvalidIVLength
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob.Ciphertext) < gcm.Overhead() {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, blob.IV, blob.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// GenerateVerificationToken encrypts the fixed marker value under key. The
// token is stored in vault metadata and later checked by VerifyPassword.
func GenerateVerificationToken(key []byte) (*Blob, error) {
	return Encrypt(key, verificationMarker)
}

// VerifyPassword derives a candidate key from password and salt and
// attempts to decrypt the verification token. Returns the derived key on a
// marker match and nil on any failure, including genuine decryption
// failure. This is the sole password-check mechanism; it never returns an
// error and never panics.
func VerifyPassword(password, salt []byte, token *Blob) []byte {
	if token == nil || len(salt) != SaltLength {
		return nil
	}

	key := DeriveKey(password, salt)
	marker, err := Decrypt(key, token)
	if err != nil || !bytes.Equal(marker, verificationMarker) {
		SecureWipe(key)
		return nil
	}
	return key
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the writes are not optimized away since b
	// is still "in use" after the loop.
	runtime.KeepAlive(b)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}
