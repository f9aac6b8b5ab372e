package vault

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/offgridhq/offgrid/pkg/crypto"
	_ "modernc.org/sqlite"
)

// Embedded store constants.
const (
	DBFileName = "vault.db"
	FileMode   = 0600
	DirMode    = 0700

	// metadataRowID keys the singleton metadata row.
	metadataRowID = 1
)

// RecordStore is the embedded transactional backend: three SQLite
// collections (metadata singleton, servers, folders), each operation in
// its own transaction. No atomicity is guaranteed across separate calls;
// callers needing multi-record consistency design their retries around
// that.
type RecordStore struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the embedded store in dir. Returns
// ErrStorageUnavailable when SQLite cannot be opened at all.
func OpenStore(dir string) (*RecordStore, error) {
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	dbPath := filepath.Join(dir, DBFileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	// Single-connection mode avoids "database is locked" errors; the
	// engine is single-writer by design.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &RecordStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	if err := os.Chmod(dbPath, FileMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("vault: failed to set database permissions: %w", err)
	}

	return s, nil
}

// Close closes the underlying database handle.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

func (s *RecordStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vault_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			data BLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS servers (
			id TEXT PRIMARY KEY,
			folder_id TEXT,
			ciphertext BLOB NOT NULL,
			iv BLOB NOT NULL,
			health TEXT NOT NULL DEFAULT 'unknown',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_servers_folder ON servers(folder_id)`,
		`CREATE TABLE IF NOT EXISTS folders (
			id TEXT PRIMARY KEY,
			ciphertext BLOB NOT NULL,
			iv BLOB NOT NULL,
			parent_id TEXT,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_folders_order ON folders(sort_order)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// HasMetadata reports whether a vault has been initialized in this store.
func (s *RecordStore) HasMetadata() (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM vault_meta WHERE id = ?", metadataRowID).Scan(&n); err != nil {
		return false, fmt.Errorf("vault: failed to check metadata: %w", err)
	}
	return n > 0, nil
}

// SaveMetadata upserts the singleton metadata row.
func (s *RecordStore) SaveMetadata(meta *Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("vault: failed to marshal metadata: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO vault_meta (id, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP
	`, metadataRowID, data)
	if err != nil {
		return fmt.Errorf("vault: failed to save metadata: %w", err)
	}
	return nil
}

// LoadMetadata reads the singleton metadata row. Returns ErrVaultNotFound
// when the store holds no vault and ErrCorruptData when the row cannot be
// parsed.
func (s *RecordStore) LoadMetadata() (*Metadata, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM vault_meta WHERE id = ?", metadataRowID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVaultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	meta.Settings = meta.Settings.normalize()
	return &meta, nil
}

// PutServer upserts a server record.
func (s *RecordStore) PutServer(rec *ServerRecord) error {
	if rec.EncryptedData == nil {
		return fmt.Errorf("vault: server record has no encrypted data")
	}
	_, err := s.db.Exec(`
		INSERT INTO servers (id, folder_id, ciphertext, iv, health, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			folder_id = excluded.folder_id,
			ciphertext = excluded.ciphertext,
			iv = excluded.iv,
			health = excluded.health,
			updated_at = excluded.updated_at
	`, rec.ID, rec.FolderID, rec.EncryptedData.Ciphertext, rec.EncryptedData.IV,
		string(rec.HealthStatus), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("vault: failed to save server: %w", err)
	}
	return nil
}

// GetServer reads one server record by id.
func (s *RecordStore) GetServer(id string) (*ServerRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, folder_id, ciphertext, iv, health, created_at, updated_at
		FROM servers WHERE id = ?`, id)
	rec, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServerNotFound
	}
	return rec, err
}

// ListServers returns every server record. Order is not guaranteed and
// must not be relied upon.
func (s *RecordStore) ListServers() ([]ServerRecord, error) {
	return s.queryServers(`
		SELECT id, folder_id, ciphertext, iv, health, created_at, updated_at
		FROM servers`)
}

// ListServersByFolder returns server records in the given folder; a nil
// folderID selects unfiled servers.
func (s *RecordStore) ListServersByFolder(folderID *string) ([]ServerRecord, error) {
	if folderID == nil {
		return s.queryServers(`
			SELECT id, folder_id, ciphertext, iv, health, created_at, updated_at
			FROM servers WHERE folder_id IS NULL`)
	}
	return s.queryServers(`
		SELECT id, folder_id, ciphertext, iv, health, created_at, updated_at
		FROM servers WHERE folder_id = ?`, *folderID)
}

// DeleteServer removes a server record by id.
func (s *RecordStore) DeleteServer(id string) error {
	result, err := s.db.Exec("DELETE FROM servers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("vault: failed to delete server: %w", err)
	}
	return checkAffected(result, ErrServerNotFound)
}

// ClearServers removes every server record.
func (s *RecordStore) ClearServers() error {
	if _, err := s.db.Exec("DELETE FROM servers"); err != nil {
		return fmt.Errorf("vault: failed to clear servers: %w", err)
	}
	return nil
}

// PutFolder upserts a folder record.
func (s *RecordStore) PutFolder(rec *FolderRecord) error {
	if rec.EncryptedName == nil {
		return fmt.Errorf("vault: folder record has no encrypted name")
	}
	_, err := s.db.Exec(`
		INSERT INTO folders (id, ciphertext, iv, parent_id, sort_order)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			iv = excluded.iv,
			parent_id = excluded.parent_id,
			sort_order = excluded.sort_order
	`, rec.ID, rec.EncryptedName.Ciphertext, rec.EncryptedName.IV, rec.ParentID, rec.SortOrder)
	if err != nil {
		return fmt.Errorf("vault: failed to save folder: %w", err)
	}
	return nil
}

// GetFolder reads one folder record by id.
func (s *RecordStore) GetFolder(id string) (*FolderRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, ciphertext, iv, parent_id, sort_order
		FROM folders WHERE id = ?`, id)
	rec, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFolderNotFound
	}
	return rec, err
}

// ListFolders returns every folder record ordered by sort key. Ordering
// that matters is carried in sort_order, not storage order.
func (s *RecordStore) ListFolders() ([]FolderRecord, error) {
	return s.queryFolders(`
		SELECT id, ciphertext, iv, parent_id, sort_order
		FROM folders ORDER BY sort_order`)
}

// ListFoldersByParent returns folders under the given parent; nil selects
// root folders.
func (s *RecordStore) ListFoldersByParent(parentID *string) ([]FolderRecord, error) {
	if parentID == nil {
		return s.queryFolders(`
			SELECT id, ciphertext, iv, parent_id, sort_order
			FROM folders WHERE parent_id IS NULL ORDER BY sort_order`)
	}
	return s.queryFolders(`
		SELECT id, ciphertext, iv, parent_id, sort_order
		FROM folders WHERE parent_id = ? ORDER BY sort_order`, *parentID)
}

// DeleteFolder removes a folder record by id.
func (s *RecordStore) DeleteFolder(id string) error {
	result, err := s.db.Exec("DELETE FROM folders WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("vault: failed to delete folder: %w", err)
	}
	return checkAffected(result, ErrFolderNotFound)
}

// ClearFolders removes every folder record.
func (s *RecordStore) ClearFolders() error {
	if _, err := s.db.Exec("DELETE FROM folders"); err != nil {
		return fmt.Errorf("vault: failed to clear folders: %w", err)
	}
	return nil
}

// Destroy removes every record and the metadata row, deleting the vault.
func (s *RecordStore) Destroy() error {
	for _, stmt := range []string{"DELETE FROM servers", "DELETE FROM folders", "DELETE FROM vault_meta"} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("vault: failed to destroy store: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row rowScanner) (*ServerRecord, error) {
	var rec ServerRecord
	var folderID sql.NullString
	var ciphertext, iv []byte
	var health string
	var createdAt, updatedAt time.Time

	if err := row.Scan(&rec.ID, &folderID, &ciphertext, &iv, &health, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("vault: failed to scan server row: %w", err)
	}

	if folderID.Valid {
		rec.FolderID = &folderID.String
	}
	rec.EncryptedData = blobFromColumns(ciphertext, iv)
	rec.HealthStatus = HealthStatus(health)
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	return &rec, nil
}

func scanFolder(row rowScanner) (*FolderRecord, error) {
	var rec FolderRecord
	var parentID sql.NullString
	var ciphertext, iv []byte

	if err := row.Scan(&rec.ID, &ciphertext, &iv, &parentID, &rec.SortOrder); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("vault: failed to scan folder row: %w", err)
	}

	if parentID.Valid {
		rec.ParentID = &parentID.String
	}
	rec.EncryptedName = blobFromColumns(ciphertext, iv)
	return &rec, nil
}

func (s *RecordStore) queryServers(query string, args ...any) ([]ServerRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to query servers: %w", err)
	}
	defer rows.Close()

	var records []ServerRecord
	for rows.Next() {
		rec, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vault: error iterating servers: %w", err)
	}
	return records, nil
}

func (s *RecordStore) queryFolders(query string, args ...any) ([]FolderRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to query folders: %w", err)
	}
	defer rows.Close()

	var records []FolderRecord
	for rows.Next() {
		rec, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vault: error iterating folders: %w", err)
	}
	return records, nil
}

func checkAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("vault: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func blobFromColumns(ciphertext, iv []byte) *crypto.Blob {
	return &crypto.Blob{Ciphertext: ciphertext, IV: iv}
}
