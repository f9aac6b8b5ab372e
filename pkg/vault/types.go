// Package vault implements the encrypted storage and sharing engine for
// offgrid: key derivation and verification, the dual persistence backends
// (embedded SQLite store and user-selected vault file), debounced
// auto-save, and the create/unlock/lock/migrate lifecycle.
//
// Records are encrypted individually with the vault key; backends only
// ever see crypto.Blob values. The key exists in memory for the duration
// of an unlocked session and is wiped on lock.
package vault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/offgridhq/offgrid/pkg/crypto"
)

// StorageKind identifies which persistence backend holds the vault.
// Exactly one backend is active at a time.
type StorageKind string

const (
	// StorageEmbedded is the SQLite record store in the vault directory.
	StorageEmbedded StorageKind = "embedded"
	// StorageFile is a single user-selected vault file.
	StorageFile StorageKind = "file"
)

// HealthStatus is the advisory reachability state of a server record.
// It is plaintext: reachability is observable anyway and keeping it
// outside the blob lets lists render without decryption.
type HealthStatus string

const (
	HealthUnknown     HealthStatus = "unknown"
	HealthReachable   HealthStatus = "reachable"
	HealthUnreachable HealthStatus = "unreachable"
)

// Metadata describes one vault. Created once at vault creation, mutated
// only by settings updates and access-time touches, destroyed with the
// vault.
type Metadata struct {
	Salt              []byte       `json:"salt"`
	VerificationToken *crypto.Blob `json:"verification_token"`
	StorageKind       StorageKind  `json:"storage_kind"`
	Settings          Settings     `json:"settings"`
	CreatedAt         time.Time    `json:"created_at"`
	LastAccessedAt    time.Time    `json:"last_accessed_at"`
}

// ServerRecord is a stored server entry. The encrypted payload decrypts to
// a ServerDetails value; everything sensitive lives inside the blob.
type ServerRecord struct {
	ID            string       `json:"id"`
	FolderID      *string      `json:"folder_id,omitempty"`
	EncryptedData *crypto.Blob `json:"encrypted_data"`
	HealthStatus  HealthStatus `json:"health_status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ServerDetails is the decrypted payload of a ServerRecord, including the
// ordered credential list. Credentials have no identity outside their
// parent server: they serialize and deserialize with it.
type ServerDetails struct {
	Name        string       `json:"name"`
	Host        string       `json:"host"`
	Port        int          `json:"port,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	Credentials []Credential `json:"credentials,omitempty"`
}

// FolderRecord is a stored folder entry. Folders form a tree via ParentID;
// ordering is carried explicitly in SortOrder, never by storage order.
type FolderRecord struct {
	ID            string       `json:"id"`
	EncryptedName *crypto.Blob `json:"encrypted_name"`
	ParentID      *string      `json:"parent_id,omitempty"`
	SortOrder     int          `json:"sort_order"`
}

// Payload is the full record set moved between backends and held as the
// decrypted-at-rest mirror of an unlocked session. The records inside are
// still individually encrypted.
type Payload struct {
	Servers []ServerRecord `json:"servers"`
	Folders []FolderRecord `json:"folders"`
}

// Clone returns a deep-enough copy of the payload for handing to the
// auto-save scheduler: slices are copied so later mutations do not race a
// pending save.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return &Payload{}
	}
	out := &Payload{
		Servers: make([]ServerRecord, len(p.Servers)),
		Folders: make([]FolderRecord, len(p.Folders)),
	}
	copy(out.Servers, p.Servers)
	copy(out.Folders, p.Folders)
	return out
}

// Stats are the read-only vault statistics exposed to collaborators.
type Stats struct {
	Servers     int `json:"servers"`
	Credentials int `json:"credentials"`
	Folders     int `json:"folders"`
}

// encryptJSON marshals v and encrypts it under key.
func encryptJSON(key []byte, v any) (*crypto.Blob, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to marshal payload: %w", err)
	}
	blob, err := crypto.Encrypt(key, data)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to encrypt payload: %w", err)
	}
	return blob, nil
}

// decryptJSON decrypts blob under key and unmarshals it into v. Decryption
// and parse failures both surface as ErrCorruptData wrapped around the
// cause; the caller must not distinguish wrong-key from tampering.
func decryptJSON(key []byte, blob *crypto.Blob, v any) error {
	data, err := crypto.Decrypt(key, blob)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	return nil
}
