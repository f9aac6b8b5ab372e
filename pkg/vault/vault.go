package vault

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/hkdf"

	"github.com/offgridhq/offgrid/pkg/crypto"
)

// State is the vault lifecycle state.
type State string

const (
	// StateUninitialized means no vault exists yet in either backend.
	StateUninitialized State = "uninitialized"
	// StateLocked means a vault exists but no key is in memory.
	StateLocked State = "locked"
	// StateUnlocked means the key is in memory and operations are allowed.
	StateUnlocked State = "unlocked"
	// StateMigrating means records are being copied between backends.
	StateMigrating State = "migrating"
)

// ServerEntry pairs a server record with its decrypted details, for
// callers that render lists.
type ServerEntry struct {
	Record  ServerRecord
	Details ServerDetails
}

// FolderEntry pairs a folder record with its decrypted name.
type FolderEntry struct {
	Record FolderRecord
	Name   string
}

// Vault is the engine facade: one lifecycle state machine over exactly one
// active backend. All methods are safe for concurrent use; the engine is
// still single-writer with respect to the underlying files.
type Vault struct {
	logger zerolog.Logger
	store  *RecordStore
	file   *FileBackend

	mu            sync.RWMutex
	state         State
	meta          *Metadata
	key           []byte
	mirror        *Payload
	scheduler     *AutoSaveScheduler
	autoLock      *time.Timer
	failedUnlocks int
}

// Open prepares a vault engine over the embedded store in dir and the
// optional vault file at filePath. It determines the initial state but
// derives no keys; the vault starts Locked or Uninitialized.
func Open(dir, filePath string, logger zerolog.Logger) (*Vault, error) {
	store, err := OpenStore(dir)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		logger: logger.With().Str("component", "vault").Logger(),
		store:  store,
		file:   NewFileBackend(filePath),
		state:  StateUninitialized,
	}

	has, err := store.HasMetadata()
	if err != nil {
		store.Close()
		return nil, err
	}
	if has || v.file.Exists() {
		v.state = StateLocked
	}
	return v, nil
}

// Close locks the vault if needed and releases the embedded store.
func (v *Vault) Close() error {
	v.mu.RLock()
	unlocked := v.state == StateUnlocked
	v.mu.RUnlock()

	var lockErr error
	if unlocked {
		lockErr = v.Lock()
	}
	if err := v.store.Close(); err != nil {
		return err
	}
	return lockErr
}

// State returns the current lifecycle state.
func (v *Vault) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// StorageKind returns the active backend kind. Only meaningful once a
// vault exists.
func (v *Vault) StorageKind() (StorageKind, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.meta != nil {
		return v.meta.StorageKind, nil
	}
	meta, err := v.peekMetadata()
	if err != nil {
		return "", err
	}
	return meta.StorageKind, nil
}

// FailedUnlockAttempts returns the number of consecutive failed unlocks
// since the last success. Informational only; no lockout is enforced.
func (v *Vault) FailedUnlockAttempts() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.failedUnlocks
}

// Create initializes a new vault in the chosen backend and leaves it
// unlocked. Fails with ErrVaultExists if a vault is already present.
func (v *Vault) Create(password []byte, kind StorageKind) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateUninitialized {
		return ErrVaultExists
	}
	if _, err := ValidateMasterPassword(password); err != nil {
		return err
	}
	if kind == StorageFile && v.file.Path() == "" {
		return ErrNoFileConfigured
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	key := crypto.DeriveKey(password, salt)
	token, err := crypto.GenerateVerificationToken(key)
	if err != nil {
		crypto.SecureWipe(key)
		return err
	}

	now := time.Now().UTC()
	meta := &Metadata{
		Salt:              salt,
		VerificationToken: token,
		StorageKind:       kind,
		Settings:          DefaultSettings(),
		CreatedAt:         now,
		LastAccessedAt:    now,
	}

	payload := &Payload{}
	switch kind {
	case StorageEmbedded:
		err = v.store.SaveMetadata(meta)
	case StorageFile:
		err = v.file.Save(meta, payload)
	default:
		err = fmt.Errorf("%w: unknown storage kind %q", ErrInvalidState, kind)
	}
	if err != nil {
		crypto.SecureWipe(key)
		return err
	}

	v.beginSessionLocked(key, meta, payload)
	v.logger.Info().Str("storage", string(kind)).Msg("vault created")
	return nil
}

// Unlock verifies the password against the active backend and loads the
// record set. On a wrong password the state stays Locked and the failed
// attempt counter increments.
func (v *Vault) Unlock(password []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch v.state {
	case StateLocked:
	case StateUninitialized:
		return ErrVaultNotFound
	case StateUnlocked:
		return ErrVaultUnlocked
	default:
		return ErrInvalidState
	}

	key, meta, payload, err := v.loadBackendLocked(password)
	if err != nil {
		if errors.Is(err, ErrWrongPassword) {
			v.failedUnlocks++
			v.logger.Warn().Int("attempts", v.failedUnlocks).Msg("unlock failed")
		}
		return err
	}

	meta.LastAccessedAt = time.Now().UTC()
	if meta.StorageKind == StorageEmbedded {
		if err := v.store.SaveMetadata(meta); err != nil {
			crypto.SecureWipe(key)
			return err
		}
	}

	v.failedUnlocks = 0
	v.beginSessionLocked(key, meta, payload)
	v.logger.Info().Str("storage", string(meta.StorageKind)).Msg("vault unlocked")
	return nil
}

// loadBackendLocked reads metadata and records from whichever backend
// holds the vault and verifies the password.
func (v *Vault) loadBackendLocked(password []byte) ([]byte, *Metadata, *Payload, error) {
	has, err := v.store.HasMetadata()
	if err != nil {
		return nil, nil, nil, err
	}
	if !has {
		return v.file.Load(password)
	}

	meta, err := v.store.LoadMetadata()
	if err != nil {
		return nil, nil, nil, err
	}
	key := crypto.VerifyPassword(password, meta.Salt, meta.VerificationToken)
	if key == nil {
		return nil, nil, nil, ErrWrongPassword
	}

	servers, err := v.store.ListServers()
	if err != nil {
		crypto.SecureWipe(key)
		return nil, nil, nil, err
	}
	folders, err := v.store.ListFolders()
	if err != nil {
		crypto.SecureWipe(key)
		return nil, nil, nil, err
	}
	return key, meta, &Payload{Servers: servers, Folders: folders}, nil
}

// peekMetadata reads metadata from the active backend without a password.
func (v *Vault) peekMetadata() (*Metadata, error) {
	has, err := v.store.HasMetadata()
	if err != nil {
		return nil, err
	}
	if has {
		return v.store.LoadMetadata()
	}
	return v.file.ReadMetadata()
}

// beginSessionLocked installs the unlocked session: key, metadata, record
// mirror, auto-save scheduler for the file backend, and the auto-lock
// timer.
func (v *Vault) beginSessionLocked(key []byte, meta *Metadata, payload *Payload) {
	v.key = key
	v.meta = meta
	v.mirror = payload
	v.state = StateUnlocked

	if meta.StorageKind == StorageFile && meta.Settings.AutoSaveEnabled {
		v.scheduler = NewAutoSaveScheduler(meta.Settings.AutoSaveDelay(), v.saveSnapshot)
	}
	v.armAutoLockLocked()
}

// Lock flushes pending saves, wipes the key and decrypted mirrors, and
// returns the vault to Locked. The vault locks even when the final flush
// fails; the flush error is returned so callers can warn.
func (v *Vault) Lock() error {
	v.mu.Lock()
	if v.state != StateUnlocked {
		state := v.state
		v.mu.Unlock()
		if state == StateMigrating {
			return ErrInvalidState
		}
		return ErrVaultLocked
	}
	scheduler := v.scheduler
	v.mu.Unlock()

	// Flush outside the state lock: the save callback reads vault fields.
	var flushErr error
	if scheduler != nil {
		flushErr = scheduler.Flush()
		scheduler.Close()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateUnlocked {
		return flushErr
	}

	if v.autoLock != nil {
		v.autoLock.Stop()
		v.autoLock = nil
	}
	crypto.SecureWipe(v.key)
	v.key = nil
	v.meta = nil
	v.mirror = nil
	v.scheduler = nil
	v.state = StateLocked
	v.logger.Info().Msg("vault locked")
	return flushErr
}

// saveSnapshot is the scheduler's save callback: it snapshots metadata
// under a read lock and writes the given payload to the vault file.
func (v *Vault) saveSnapshot(payload *Payload) error {
	v.mu.RLock()
	if v.meta == nil {
		v.mu.RUnlock()
		return ErrVaultLocked
	}
	meta := *v.meta
	v.mu.RUnlock()
	return v.file.Save(&meta, payload)
}

// SaveStatus returns the auto-save pipeline state. Vaults without a
// scheduler (embedded backend, or auto-save disabled) are always saved:
// their writes are synchronous.
func (v *Vault) SaveStatus() SaveStatus {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.scheduler == nil {
		return SaveStatusSaved
	}
	return v.scheduler.Status()
}

// SaveChanges returns the save-status observer channel, or nil when no
// scheduler is running.
func (v *Vault) SaveChanges() <-chan StatusChange {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.scheduler == nil {
		return nil
	}
	return v.scheduler.Changes()
}

// Flush forces any pending auto-save to complete now.
func (v *Vault) Flush() error {
	v.mu.RLock()
	scheduler := v.scheduler
	v.mu.RUnlock()
	if scheduler == nil {
		return nil
	}
	return scheduler.Flush()
}

// Settings returns the current vault settings.
func (v *Vault) Settings() (Settings, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.meta != nil {
		return v.meta.Settings, nil
	}
	meta, err := v.peekMetadata()
	if err != nil {
		return Settings{}, err
	}
	return meta.Settings, nil
}

// UpdateSettings replaces the vault settings and re-arms the timers and
// scheduler that depend on them, so auto-save and auto-lock changes take
// effect in the running session. Requires an unlocked vault.
func (v *Vault) UpdateSettings(s Settings) error {
	v.mu.Lock()
	if err := v.requireUnlockedLocked(); err != nil {
		v.mu.Unlock()
		return err
	}
	old := v.scheduler
	v.scheduler = nil
	v.mu.Unlock()

	// Drain the outgoing scheduler outside the state lock: its save
	// callback reads vault fields.
	var flushErr error
	if old != nil {
		flushErr = old.Flush()
		old.Close()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return err
	}
	if flushErr != nil {
		// The old settings stay in force; rebuild the scheduler they
		// called for and surface the stranded save.
		v.scheduler = NewAutoSaveScheduler(v.meta.Settings.AutoSaveDelay(), v.saveSnapshot)
		return flushErr
	}

	v.meta.Settings = s.normalize()
	if v.meta.StorageKind == StorageFile && v.meta.Settings.AutoSaveEnabled {
		v.scheduler = NewAutoSaveScheduler(v.meta.Settings.AutoSaveDelay(), v.saveSnapshot)
	}
	v.armAutoLockLocked()
	return v.persistMetadataLocked()
}

// Stats returns server, credential, and folder counts. Credentials live
// inside encrypted server blobs, so counting them decrypts each record.
func (v *Vault) Stats() (*Stats, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return nil, err
	}

	stats := &Stats{
		Servers: len(v.mirror.Servers),
		Folders: len(v.mirror.Folders),
	}
	for i := range v.mirror.Servers {
		var details ServerDetails
		if err := decryptJSON(v.key, v.mirror.Servers[i].EncryptedData, &details); err != nil {
			return nil, err
		}
		stats.Credentials += len(details.Credentials)
	}
	return stats, nil
}

// AddServer encrypts details and stores a new server record, optionally
// filed under a folder.
func (v *Vault) AddServer(details ServerDetails, folderID *string) (*ServerRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return nil, err
	}
	for _, cred := range details.Credentials {
		if err := cred.Validate(); err != nil {
			return nil, err
		}
	}
	if folderID != nil && v.findFolderLocked(*folderID) < 0 {
		return nil, ErrFolderNotFound
	}

	blob, err := encryptJSON(v.key, details)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := ServerRecord{
		ID:            uuid.NewString(),
		FolderID:      folderID,
		EncryptedData: blob,
		HealthStatus:  HealthUnknown,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	v.mirror.Servers = append(v.mirror.Servers, rec)
	if err := v.persistServerLocked(&rec); err != nil {
		v.mirror.Servers = v.mirror.Servers[:len(v.mirror.Servers)-1]
		return nil, err
	}
	v.touchLocked()
	return &rec, nil
}

// GetServer returns a server record with its decrypted details.
func (v *Vault) GetServer(id string) (*ServerEntry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return nil, err
	}

	i := v.findServerLocked(id)
	if i < 0 {
		return nil, ErrServerNotFound
	}
	entry := &ServerEntry{Record: v.mirror.Servers[i]}
	if err := decryptJSON(v.key, entry.Record.EncryptedData, &entry.Details); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListServers returns every server with decrypted details, sorted by name.
func (v *Vault) ListServers() ([]ServerEntry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return nil, err
	}

	entries := make([]ServerEntry, 0, len(v.mirror.Servers))
	for i := range v.mirror.Servers {
		entry := ServerEntry{Record: v.mirror.Servers[i]}
		if err := decryptJSON(v.key, entry.Record.EncryptedData, &entry.Details); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Details.Name < entries[j].Details.Name
	})
	return entries, nil
}

// UpdateServer replaces the details of an existing server record.
func (v *Vault) UpdateServer(id string, details ServerDetails) (*ServerRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return nil, err
	}
	for _, cred := range details.Credentials {
		if err := cred.Validate(); err != nil {
			return nil, err
		}
	}

	i := v.findServerLocked(id)
	if i < 0 {
		return nil, ErrServerNotFound
	}

	blob, err := encryptJSON(v.key, details)
	if err != nil {
		return nil, err
	}
	rec := &v.mirror.Servers[i]
	rec.EncryptedData = blob
	rec.UpdatedAt = time.Now().UTC()
	if err := v.persistServerLocked(rec); err != nil {
		return nil, err
	}
	v.touchLocked()
	return rec, nil
}

// MoveServer re-files a server under a folder; nil unfiles it.
func (v *Vault) MoveServer(id string, folderID *string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return err
	}

	i := v.findServerLocked(id)
	if i < 0 {
		return ErrServerNotFound
	}
	if folderID != nil && v.findFolderLocked(*folderID) < 0 {
		return ErrFolderNotFound
	}

	rec := &v.mirror.Servers[i]
	rec.FolderID = folderID
	rec.UpdatedAt = time.Now().UTC()
	if err := v.persistServerLocked(rec); err != nil {
		return err
	}
	v.touchLocked()
	return nil
}

// SetServerHealth records an advisory reachability status for a server.
func (v *Vault) SetServerHealth(id string, status HealthStatus) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return err
	}

	i := v.findServerLocked(id)
	if i < 0 {
		return ErrServerNotFound
	}
	rec := &v.mirror.Servers[i]
	rec.HealthStatus = status
	rec.UpdatedAt = time.Now().UTC()
	if err := v.persistServerLocked(rec); err != nil {
		return err
	}
	v.touchLocked()
	return nil
}

// DeleteServer removes a server record.
func (v *Vault) DeleteServer(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return err
	}

	i := v.findServerLocked(id)
	if i < 0 {
		return ErrServerNotFound
	}
	v.mirror.Servers = append(v.mirror.Servers[:i], v.mirror.Servers[i+1:]...)

	if v.meta.StorageKind == StorageEmbedded {
		if err := v.store.DeleteServer(id); err != nil {
			return err
		}
	} else if err := v.scheduleSaveLocked(); err != nil {
		return err
	}
	v.touchLocked()
	return nil
}

// AddFolder creates a folder with the given name under an optional parent.
// Sort order appends to the end of the sibling list.
func (v *Vault) AddFolder(name string, parentID *string) (*FolderRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return nil, err
	}
	if parentID != nil && v.findFolderLocked(*parentID) < 0 {
		return nil, ErrFolderNotFound
	}

	blob, err := encryptJSON(v.key, name)
	if err != nil {
		return nil, err
	}

	order := 0
	for i := range v.mirror.Folders {
		if v.mirror.Folders[i].SortOrder >= order {
			order = v.mirror.Folders[i].SortOrder + 1
		}
	}

	rec := FolderRecord{
		ID:            uuid.NewString(),
		EncryptedName: blob,
		ParentID:      parentID,
		SortOrder:     order,
	}
	v.mirror.Folders = append(v.mirror.Folders, rec)
	if err := v.persistFolderLocked(&rec); err != nil {
		v.mirror.Folders = v.mirror.Folders[:len(v.mirror.Folders)-1]
		return nil, err
	}
	v.touchLocked()
	return &rec, nil
}

// ListFolders returns every folder with its decrypted name, in sort order.
func (v *Vault) ListFolders() ([]FolderEntry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return nil, err
	}

	entries := make([]FolderEntry, 0, len(v.mirror.Folders))
	for i := range v.mirror.Folders {
		entry := FolderEntry{Record: v.mirror.Folders[i]}
		if err := decryptJSON(v.key, entry.Record.EncryptedName, &entry.Name); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Record.SortOrder < entries[j].Record.SortOrder
	})
	return entries, nil
}

// RenameFolder replaces a folder's encrypted name.
func (v *Vault) RenameFolder(id, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return err
	}

	i := v.findFolderLocked(id)
	if i < 0 {
		return ErrFolderNotFound
	}
	blob, err := encryptJSON(v.key, name)
	if err != nil {
		return err
	}
	rec := &v.mirror.Folders[i]
	rec.EncryptedName = blob
	if err := v.persistFolderLocked(rec); err != nil {
		return err
	}
	v.touchLocked()
	return nil
}

// MoveFolder re-parents a folder. Self-parenting and moves under a
// descendant are rejected, so cycles are never constructible.
func (v *Vault) MoveFolder(id string, parentID *string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return err
	}

	i := v.findFolderLocked(id)
	if i < 0 {
		return ErrFolderNotFound
	}
	if parentID != nil {
		if *parentID == id {
			return ErrFolderSelfParent
		}
		if v.findFolderLocked(*parentID) < 0 {
			return ErrFolderNotFound
		}
		if v.isDescendantLocked(*parentID, id) {
			return ErrFolderCircular
		}
	}

	rec := &v.mirror.Folders[i]
	rec.ParentID = parentID
	if err := v.persistFolderLocked(rec); err != nil {
		return err
	}
	v.touchLocked()
	return nil
}

// DeleteFolder removes a folder. Its child folders and servers are
// re-parented to the deleted folder's parent rather than deleted.
func (v *Vault) DeleteFolder(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return err
	}

	i := v.findFolderLocked(id)
	if i < 0 {
		return ErrFolderNotFound
	}
	parent := v.mirror.Folders[i].ParentID
	v.mirror.Folders = append(v.mirror.Folders[:i], v.mirror.Folders[i+1:]...)

	embedded := v.meta.StorageKind == StorageEmbedded
	for j := range v.mirror.Folders {
		f := &v.mirror.Folders[j]
		if f.ParentID != nil && *f.ParentID == id {
			f.ParentID = parent
			if embedded {
				if err := v.store.PutFolder(f); err != nil {
					return err
				}
			}
		}
	}
	for j := range v.mirror.Servers {
		srv := &v.mirror.Servers[j]
		if srv.FolderID != nil && *srv.FolderID == id {
			srv.FolderID = parent
			srv.UpdatedAt = time.Now().UTC()
			if embedded {
				if err := v.store.PutServer(srv); err != nil {
					return err
				}
			}
		}
	}

	if embedded {
		if err := v.store.DeleteFolder(id); err != nil {
			return err
		}
	} else if err := v.scheduleSaveLocked(); err != nil {
		return err
	}
	v.touchLocked()
	return nil
}

// isDescendantLocked reports whether candidate sits in ancestor's subtree.
func (v *Vault) isDescendantLocked(candidate, ancestor string) bool {
	seen := make(map[string]bool, len(v.mirror.Folders))
	cur := candidate
	for {
		if cur == ancestor {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		i := v.findFolderLocked(cur)
		if i < 0 || v.mirror.Folders[i].ParentID == nil {
			return false
		}
		cur = *v.mirror.Folders[i].ParentID
	}
}

// ActivityKey derives a 32-byte sub-key for collaborators that need key
// material without touching record encryption (the activity log). Scoped
// by HKDF so the vault key itself never leaves this package.
func (v *Vault) ActivityKey() ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return nil, err
	}

	r := hkdf.New(sha256.New, v.key, v.meta.Salt, []byte("offgrid-subkey-activity"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("vault: failed to derive activity key: %w", err)
	}
	return key, nil
}

// ChangePassword re-derives the vault key from a fresh salt and
// re-encrypts every record and the verification token. The old password
// must verify first.
func (v *Vault) ChangePassword(oldPassword, newPassword []byte) error {
	v.mu.RLock()
	scheduler := v.scheduler
	v.mu.RUnlock()
	if scheduler != nil {
		if err := scheduler.Flush(); err != nil {
			return err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireUnlockedLocked(); err != nil {
		return err
	}
	if crypto.VerifyPassword(oldPassword, v.meta.Salt, v.meta.VerificationToken) == nil {
		return ErrWrongPassword
	}
	if _, err := ValidateMasterPassword(newPassword); err != nil {
		return err
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	newKey := crypto.DeriveKey(newPassword, salt)
	token, err := crypto.GenerateVerificationToken(newKey)
	if err != nil {
		crypto.SecureWipe(newKey)
		return err
	}

	// Re-encrypt into a fresh payload first; the live mirror and backend
	// stay untouched until every record converts.
	next := &Payload{
		Servers: make([]ServerRecord, len(v.mirror.Servers)),
		Folders: make([]FolderRecord, len(v.mirror.Folders)),
	}
	for i := range v.mirror.Servers {
		var details ServerDetails
		if err := decryptJSON(v.key, v.mirror.Servers[i].EncryptedData, &details); err != nil {
			crypto.SecureWipe(newKey)
			return err
		}
		blob, err := encryptJSON(newKey, details)
		if err != nil {
			crypto.SecureWipe(newKey)
			return err
		}
		next.Servers[i] = v.mirror.Servers[i]
		next.Servers[i].EncryptedData = blob
		next.Servers[i].UpdatedAt = time.Now().UTC()
	}
	for i := range v.mirror.Folders {
		var name string
		if err := decryptJSON(v.key, v.mirror.Folders[i].EncryptedName, &name); err != nil {
			crypto.SecureWipe(newKey)
			return err
		}
		blob, err := encryptJSON(newKey, name)
		if err != nil {
			crypto.SecureWipe(newKey)
			return err
		}
		next.Folders[i] = v.mirror.Folders[i]
		next.Folders[i].EncryptedName = blob
	}

	meta := *v.meta
	meta.Salt = salt
	meta.VerificationToken = token

	switch v.meta.StorageKind {
	case StorageEmbedded:
		if err := v.store.SaveMetadata(&meta); err != nil {
			crypto.SecureWipe(newKey)
			return err
		}
		for i := range next.Servers {
			if err := v.store.PutServer(&next.Servers[i]); err != nil {
				crypto.SecureWipe(newKey)
				return err
			}
		}
		for i := range next.Folders {
			if err := v.store.PutFolder(&next.Folders[i]); err != nil {
				crypto.SecureWipe(newKey)
				return err
			}
		}
	case StorageFile:
		if err := v.file.Save(&meta, next); err != nil {
			crypto.SecureWipe(newKey)
			return err
		}
	}

	crypto.SecureWipe(v.key)
	v.key = newKey
	*v.meta = meta
	v.mirror = next
	v.touchLocked()
	v.logger.Info().Msg("master password changed")
	return nil
}

// Migrate copies the vault to the target backend without re-encrypting
// records, then clears the source. The vault stays unlocked throughout;
// the active-backend pointer switches only after the destination write
// succeeds.
func (v *Vault) Migrate(target StorageKind) error {
	v.mu.Lock()
	if v.state != StateUnlocked {
		state := v.state
		v.mu.Unlock()
		if state == StateMigrating {
			return ErrInvalidState
		}
		return ErrVaultLocked
	}
	if v.meta.StorageKind == target {
		v.mu.Unlock()
		return fmt.Errorf("%w: already on %q storage", ErrInvalidState, target)
	}
	if target == StorageFile && v.file.Path() == "" {
		v.mu.Unlock()
		return ErrNoFileConfigured
	}
	scheduler := v.scheduler
	v.state = StateMigrating
	v.mu.Unlock()

	var flushErr error
	if scheduler != nil {
		flushErr = scheduler.Flush()
		scheduler.Close()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.scheduler = nil
	if flushErr != nil {
		v.state = StateUnlocked
		return flushErr
	}

	meta := *v.meta
	meta.StorageKind = target

	var err error
	switch target {
	case StorageFile:
		if err = v.file.Save(&meta, v.mirror); err == nil {
			err = v.store.Destroy()
		}
	case StorageEmbedded:
		err = v.copyToStoreLocked(&meta)
		if err == nil {
			if rmErr := v.file.Remove(); rmErr != nil {
				v.logger.Warn().Err(rmErr).Msg("could not remove old vault file")
			}
		}
	default:
		err = fmt.Errorf("%w: unknown storage kind %q", ErrInvalidState, target)
	}
	if err != nil {
		v.state = StateUnlocked
		v.armAutoLockLocked()
		return err
	}

	*v.meta = meta
	v.state = StateUnlocked
	if target == StorageFile && meta.Settings.AutoSaveEnabled {
		v.scheduler = NewAutoSaveScheduler(meta.Settings.AutoSaveDelay(), v.saveSnapshot)
	}
	v.armAutoLockLocked()
	v.logger.Info().Str("storage", string(target)).Msg("vault migrated")
	return nil
}

func (v *Vault) copyToStoreLocked(meta *Metadata) error {
	if err := v.store.SaveMetadata(meta); err != nil {
		return err
	}
	if err := v.store.ClearServers(); err != nil {
		return err
	}
	if err := v.store.ClearFolders(); err != nil {
		return err
	}
	for i := range v.mirror.Servers {
		if err := v.store.PutServer(&v.mirror.Servers[i]); err != nil {
			return err
		}
	}
	for i := range v.mirror.Folders {
		if err := v.store.PutFolder(&v.mirror.Folders[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vault) requireUnlockedLocked() error {
	switch v.state {
	case StateUnlocked:
		return nil
	case StateMigrating:
		return ErrInvalidState
	default:
		return ErrVaultLocked
	}
}

func (v *Vault) findServerLocked(id string) int {
	for i := range v.mirror.Servers {
		if v.mirror.Servers[i].ID == id {
			return i
		}
	}
	return -1
}

func (v *Vault) findFolderLocked(id string) int {
	for i := range v.mirror.Folders {
		if v.mirror.Folders[i].ID == id {
			return i
		}
	}
	return -1
}

// persistServerLocked writes one server mutation through the active
// backend: a direct transactional put for the embedded store, a debounced
// full-file save otherwise.
func (v *Vault) persistServerLocked(rec *ServerRecord) error {
	if v.meta.StorageKind == StorageEmbedded {
		return v.store.PutServer(rec)
	}
	return v.scheduleSaveLocked()
}

func (v *Vault) persistFolderLocked(rec *FolderRecord) error {
	if v.meta.StorageKind == StorageEmbedded {
		return v.store.PutFolder(rec)
	}
	return v.scheduleSaveLocked()
}

func (v *Vault) persistMetadataLocked() error {
	if v.meta.StorageKind == StorageEmbedded {
		return v.store.SaveMetadata(v.meta)
	}
	return v.scheduleSaveLocked()
}

// scheduleSaveLocked hands a snapshot to the scheduler, or saves
// synchronously when auto-save is disabled. The synchronous path reports
// failures to the caller: the mutation must not claim success when
// nothing reached disk.
func (v *Vault) scheduleSaveLocked() error {
	if v.scheduler != nil {
		v.scheduler.Schedule(v.mirror.Clone())
		return nil
	}
	meta := *v.meta
	if err := v.file.Save(&meta, v.mirror); err != nil {
		v.logger.Error().Err(err).Msg("synchronous save failed")
		return err
	}
	return nil
}

// touchLocked records activity: updates the access time and re-arms the
// auto-lock timer.
func (v *Vault) touchLocked() {
	v.meta.LastAccessedAt = time.Now().UTC()
	v.armAutoLockLocked()
}

func (v *Vault) armAutoLockLocked() {
	if v.autoLock != nil {
		v.autoLock.Stop()
		v.autoLock = nil
	}
	timeout := v.meta.Settings.AutoLockTimeout()
	if timeout <= 0 {
		return
	}
	v.autoLock = time.AfterFunc(timeout, func() {
		if err := v.Lock(); err != nil && !errors.Is(err, ErrVaultLocked) {
			v.logger.Error().Err(err).Msg("auto-lock failed")
		} else {
			v.logger.Info().Msg("vault auto-locked after inactivity")
		}
	})
}
