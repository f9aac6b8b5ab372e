package vault

import "errors"

// Sentinel errors for the vault engine. The wrong-password and
// corrupted-data cases must stay generic at the surface: callers display a
// single message for both to avoid acting as a decryption oracle.
var (
	// ErrVaultExists indicates a vault is already initialized at the target.
	ErrVaultExists = errors.New("vault: vault already exists")

	// ErrVaultNotFound indicates no vault is initialized at the target.
	ErrVaultNotFound = errors.New("vault: vault not found")

	// ErrVaultLocked indicates the operation requires an unlocked vault.
	ErrVaultLocked = errors.New("vault: vault is locked")

	// ErrVaultUnlocked indicates the vault is already unlocked.
	ErrVaultUnlocked = errors.New("vault: vault is already unlocked")

	// ErrWrongPassword indicates the verification token did not match.
	// Recoverable: the user retries. The engine counts failed attempts but
	// enforces no lockout.
	ErrWrongPassword = errors.New("vault: wrong password")

	// ErrCorruptData indicates stored data could not be parsed or
	// decrypted. Recoverable only by restoring from a backup; never
	// auto-repaired.
	ErrCorruptData = errors.New("vault: data is corrupted")

	// ErrUnsupportedVersion indicates a vault file with a format version
	// this build does not understand. Fatal for that file; never a silent
	// best-effort parse.
	ErrUnsupportedVersion = errors.New("vault: unsupported file format version")

	// ErrPermissionDenied indicates the host declined file access.
	// Recoverable by re-prompting or choosing a different file.
	ErrPermissionDenied = errors.New("vault: file permission denied")

	// ErrCancelled indicates the user dismissed a host prompt. A normal
	// outcome, not a failure; state is left unchanged.
	ErrCancelled = errors.New("vault: operation cancelled")

	// ErrStorageUnavailable indicates the host lacks a required storage
	// capability. Fatal at startup.
	ErrStorageUnavailable = errors.New("vault: storage unavailable")

	// ErrServerNotFound indicates no server record with the given id.
	ErrServerNotFound = errors.New("vault: server not found")

	// ErrFolderNotFound indicates no folder record with the given id.
	ErrFolderNotFound = errors.New("vault: folder not found")

	// ErrFolderCircular indicates a folder move that would create a cycle.
	ErrFolderCircular = errors.New("vault: circular folder reference")

	// ErrFolderSelfParent indicates a folder given itself as parent.
	ErrFolderSelfParent = errors.New("vault: folder cannot be its own parent")

	// ErrNoFileConfigured indicates a file-backend operation without a
	// configured vault file path.
	ErrNoFileConfigured = errors.New("vault: no vault file configured")

	// ErrInvalidState indicates an operation invoked from the wrong
	// lifecycle state (e.g. migrating while locked).
	ErrInvalidState = errors.New("vault: invalid lifecycle state")
)
