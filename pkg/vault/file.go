package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/offgridhq/offgrid/pkg/crypto"
)

// Vault file format constants. The version is checked on every load; an
// unknown version is fatal for that file, never a best-effort parse.
const (
	FileFormatName    = "offgrid-vault"
	FileFormatVersion = 2
)

// vaultFile is the on-disk document: a plaintext JSON container whose leaf
// values are already-encrypted blobs. Written in full on every save.
type vaultFile struct {
	Format   string         `json:"format"`
	Version  int            `json:"version"`
	Metadata *Metadata      `json:"metadata"`
	Servers  []ServerRecord `json:"servers"`
	Folders  []FolderRecord `json:"folders"`
}

// FileBackend persists the whole vault to a single user-chosen file.
// Records arrive individually encrypted; this layer adds no cryptography
// beyond password verification on load.
type FileBackend struct {
	path string
}

// NewFileBackend wraps the given vault file path. The file need not exist
// yet; Save creates it.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the configured vault file path.
func (f *FileBackend) Path() string {
	return f.path
}

// Exists reports whether a vault file reference is configured and present
// on disk.
func (f *FileBackend) Exists() bool {
	if f.path == "" {
		return false
	}
	_, err := os.Stat(f.path)
	return err == nil
}

// RequestPermission re-checks read/write access to the configured file.
// Grants are not guaranteed to persist across sessions, so callers probe
// before the first use. Returns false rather than an error on denial.
func (f *FileBackend) RequestPermission() bool {
	if f.path == "" {
		return false
	}
	h, err := os.OpenFile(f.path, os.O_RDWR, FileMode)
	if err != nil {
		return false
	}
	h.Close()
	return true
}

// Load reads the whole vault file, validates its envelope, verifies the
// password against the metadata token, and returns the derived key, the
// metadata, and the record payload in a single read.
//
// Failure modes: ErrNoFileConfigured, ErrVaultNotFound (missing file),
// ErrPermissionDenied, ErrCorruptData (unparseable document or metadata),
// ErrUnsupportedVersion, ErrWrongPassword.
func (f *FileBackend) Load(password []byte) ([]byte, *Metadata, *Payload, error) {
	doc, err := f.read()
	if err != nil {
		return nil, nil, nil, err
	}

	key := crypto.VerifyPassword(password, doc.Metadata.Salt, doc.Metadata.VerificationToken)
	if key == nil {
		return nil, nil, nil, ErrWrongPassword
	}

	doc.Metadata.Settings = doc.Metadata.Settings.normalize()
	return key, doc.Metadata, &Payload{Servers: doc.Servers, Folders: doc.Folders}, nil
}

// ReadMetadata parses the file envelope without verifying any password.
// Used to inspect storage kind and settings while the vault is locked.
func (f *FileBackend) ReadMetadata() (*Metadata, error) {
	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	doc.Metadata.Settings = doc.Metadata.Settings.normalize()
	return doc.Metadata, nil
}

func (f *FileBackend) read() (*vaultFile, error) {
	if f.path == "" {
		return nil, ErrNoFileConfigured
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, ErrVaultNotFound
		case os.IsPermission(err):
			return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		default:
			return nil, fmt.Errorf("vault: failed to read vault file: %w", err)
		}
	}

	var doc vaultFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	if doc.Format != FileFormatName || doc.Metadata == nil {
		return nil, fmt.Errorf("%w: not an offgrid vault file", ErrCorruptData)
	}
	if doc.Version != FileFormatVersion {
		return nil, fmt.Errorf("%w: got %d, supported %d",
			ErrUnsupportedVersion, doc.Version, FileFormatVersion)
	}
	return &doc, nil
}

// Save serializes the full document and replaces the file content. The
// write is atomic from the caller's perspective: the document lands in a
// temporary file in the same directory, is synced, and is renamed over
// the target, so a failed save never leaves a truncated vault behind.
func (f *FileBackend) Save(meta *Metadata, payload *Payload) error {
	if f.path == "" {
		return ErrNoFileConfigured
	}
	if payload == nil {
		payload = &Payload{}
	}

	doc := vaultFile{
		Format:   FileFormatName,
		Version:  FileFormatVersion,
		Metadata: meta,
		Servers:  payload.Servers,
		Folders:  payload.Folders,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: failed to marshal vault file: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".offgrid-vault-*")
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return fmt.Errorf("vault: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := tmp.Chmod(FileMode); err != nil {
		cleanup()
		return fmt.Errorf("vault: failed to set vault file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("vault: failed to write vault file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("vault: failed to sync vault file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("vault: failed to close vault file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return fmt.Errorf("vault: failed to replace vault file: %w", err)
	}
	return nil
}

// Remove deletes the vault file. Missing files are not an error.
func (f *FileBackend) Remove() error {
	if f.path == "" {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("vault: failed to remove vault file: %w", err)
	}
	return nil
}
