// Package share implements the self-contained share codec: a credential
// payload sealed into a single copy-pasteable string with optional
// password protection, expiry, and an advisory view limit.
//
// Shares are stateless. Everything needed to open one travels inside the
// transport string; there is no server and no registry. The view count is
// therefore advisory only: a recipient who keeps the original string can
// open it again, and the limit binds only honest clients.
package share

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/offgridhq/offgrid/pkg/crypto"
)

// Share envelope identity. The type tag and version are checked on every
// open; an unknown version is rejected, never best-effort parsed.
const (
	EnvelopeType    = "offgrid-share"
	EnvelopeVersion = 1
)

// now is stubbed in tests to exercise expiry without sleeping.
var now = time.Now

// Options controls share construction.
type Options struct {
	// TTL is how long the share stays openable. Zero means no expiry.
	TTL time.Duration

	// MaxViews caps how many times the share may be opened. Zero means
	// unlimited. Advisory; see the package comment.
	MaxViews int
}

// Share is an opened share: the payload plus its envelope fields.
type Share struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt *time.Time
	MaxViews  int
	ViewCount int
	Protected bool
}

// envelope is the encrypted inner document. Timestamps are Unix
// milliseconds; ExpiresAt nil means the share never expires.
type envelope struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt *int64 `json:"expiresAt,omitempty"`
	MaxViews  int    `json:"maxViews"`
	ViewCount int    `json:"viewCount"`
	Data      []byte `json:"data"`
}

// transport is the outer document, base64-encoded into the share string.
// Only the salt and the protection flag are visible without the password.
type transport struct {
	Salt      []byte       `json:"s"`
	Encrypted *crypto.Blob `json:"e"`
	Protected bool         `json:"p"`
}

// Build seals data into a transport string. A fresh salt is generated per
// share; an empty password produces an unprotected share that any client
// can open.
func Build(data, password []byte, opts Options) (string, error) {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return "", err
	}

	env := envelope{
		Type:      EnvelopeType,
		Version:   EnvelopeVersion,
		CreatedAt: now().UnixMilli(),
		MaxViews:  opts.MaxViews,
		Data:      data,
	}
	if opts.TTL > 0 {
		exp := now().Add(opts.TTL).UnixMilli()
		env.ExpiresAt = &exp
	}

	return encode(env, password, salt)
}

// Open decodes and decrypts a transport string, enforces expiry and the
// view limit, and returns the share along with a re-issued transport
// string whose view count is incremented. Callers hand the re-issued
// string onward in place of the original.
func Open(s string, password []byte) (*Share, string, error) {
	tp, env, err := decode(s, password)
	if err != nil {
		return nil, "", err
	}

	if env.ExpiresAt != nil && now().UnixMilli() > *env.ExpiresAt {
		return nil, "", ErrShareExpired
	}
	if env.MaxViews > 0 && env.ViewCount >= env.MaxViews {
		return nil, "", ErrViewLimitReached
	}

	opened := &Share{
		Data:      env.Data,
		CreatedAt: time.UnixMilli(env.CreatedAt),
		MaxViews:  env.MaxViews,
		ViewCount: env.ViewCount + 1,
		Protected: tp.Protected,
	}
	if env.ExpiresAt != nil {
		exp := time.UnixMilli(*env.ExpiresAt)
		opened.ExpiresAt = &exp
	}

	env.ViewCount++
	reissued, err := encode(*env, password, tp.Salt)
	if err != nil {
		return nil, "", err
	}
	return opened, reissued, nil
}

// Inspect parses a transport string far enough to report whether it is a
// share and whether it needs a password. No decryption happens.
func Inspect(s string) (protected bool, err error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidShare, err)
	}
	var tp transport
	if err := json.Unmarshal(raw, &tp); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidShare, err)
	}
	if tp.Encrypted == nil || len(tp.Salt) == 0 {
		return false, fmt.Errorf("%w: missing envelope", ErrInvalidShare)
	}
	return tp.Protected, nil
}

func encode(env envelope, password, salt []byte) (string, error) {
	plain, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("share: failed to marshal envelope: %w", err)
	}

	key := crypto.DeriveKey(password, salt)
	defer crypto.SecureWipe(key)

	blob, err := crypto.Encrypt(key, plain)
	if err != nil {
		return "", fmt.Errorf("share: failed to encrypt envelope: %w", err)
	}

	tp := transport{Salt: salt, Encrypted: blob, Protected: len(password) > 0}
	raw, err := json.Marshal(tp)
	if err != nil {
		return "", fmt.Errorf("share: failed to marshal transport: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// decode reverses encode. Wrong passwords and mangled transports are both
// ErrInvalidShare; the codec never says which.
func decode(s string, password []byte) (*transport, *envelope, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidShare, err)
	}

	var tp transport
	if err := json.Unmarshal(raw, &tp); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidShare, err)
	}
	if tp.Encrypted == nil || len(tp.Salt) == 0 {
		return nil, nil, fmt.Errorf("%w: missing envelope", ErrInvalidShare)
	}

	key := crypto.DeriveKey(password, tp.Salt)
	defer crypto.SecureWipe(key)

	plain, err := crypto.Decrypt(key, tp.Encrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidShare, err)
	}

	var env envelope
	if err := json.Unmarshal(plain, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidShare, err)
	}
	if env.Type != EnvelopeType {
		return nil, nil, fmt.Errorf("%w: unrecognized envelope type", ErrInvalidShare)
	}
	if env.Version != EnvelopeVersion {
		return nil, nil, fmt.Errorf("%w: unsupported envelope version %d", ErrInvalidShare, env.Version)
	}
	return &tp, &env, nil
}
