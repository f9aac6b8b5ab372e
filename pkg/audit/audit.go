// Package audit records vault activity as an append-only JSONL log with an
// HMAC chain for tamper detection. The log key is derived from the vault
// key via HKDF, so log entries can only be written and verified while the
// vault is unlocked, and never expose the vault key itself.
package audit

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// Operation names recorded in the activity log.
const (
	OpVaultCreate       = "vault.create"
	OpVaultUnlock       = "vault.unlock"
	OpVaultUnlockFailed = "vault.unlock_failed"
	OpVaultLock         = "vault.lock"
	OpVaultMigrate      = "vault.migrate"
	OpPasswordChange    = "vault.password_change"

	OpServerAdd    = "server.add"
	OpServerGet    = "server.get"
	OpServerUpdate = "server.update"
	OpServerDelete = "server.delete"

	OpFolderAdd    = "folder.add"
	OpFolderDelete = "folder.delete"

	OpShareCreate = "share.create"
	OpShareOpen   = "share.open"
)

// Result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// LogFileName is the activity log inside the vault directory.
const LogFileName = "activity.log"

const genesisHash = "genesis"

// ErrChainBroken indicates a log whose HMAC chain does not verify: an
// entry was altered, removed, or reordered after it was written.
var ErrChainBroken = errors.New("audit: log chain broken")

// ErrKeyNotSet indicates a log operation before the log key was derived.
var ErrKeyNotSet = errors.New("audit: log key not set")

// Event is one activity record. The chain fields bind each event to its
// predecessor; subject names are HMACed rather than stored in the clear.
type Event struct {
	ID          string `json:"id"`
	Timestamp   string `json:"ts"`
	Operation   string `json:"op"`
	SubjectHMAC string `json:"subject,omitempty"`
	Result      string `json:"result"`
	Detail      string `json:"detail,omitempty"`

	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger appends chained events to the activity log. Safe for concurrent
// use; entries are written one JSON document per line.
type Logger struct {
	mu       sync.Mutex
	path     string
	key      []byte
	sequence int64
	prevHash string
}

// NewLogger prepares a logger writing to dir/activity.log. The log key
// must be set with SetKey before the first write.
func NewLogger(dir string) *Logger {
	return &Logger{
		path:     filepath.Join(dir, LogFileName),
		prevHash: genesisHash,
	}
}

// SetKey derives the 32-byte log key from the vault key with HKDF-SHA256
// and resumes the chain from the last entry on disk.
func (l *Logger) SetKey(vaultKey []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := hkdf.New(sha256.New, vaultKey, nil, []byte("offgrid-activity-log-v1"))
	key := make([]byte, 32)
	if _, err := r.Read(key); err != nil {
		return fmt.Errorf("audit: failed to derive log key: %w", err)
	}
	l.key = key

	last, err := l.lastEvent()
	if err != nil {
		return err
	}
	if last != nil {
		l.sequence = last.Sequence
		l.prevHash = last.HMAC
	} else {
		l.sequence = 0
		l.prevHash = genesisHash
	}
	return nil
}

// Log appends one event. The subject, when present, is HMACed so the log
// leaks no record names; detail is free-form and must not carry secrets.
func (l *Logger) Log(op, subject, result, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.key == nil {
		return ErrKeyNotSet
	}

	event := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Result:    result,
		Detail:    detail,
	}
	if subject != "" {
		event.SubjectHMAC = l.hmacHex([]byte(subject))
	}

	l.sequence++
	event.Sequence = l.sequence
	event.PrevHash = l.prevHash
	event.HMAC = l.hmacHex(chainInput(&event))
	l.prevHash = event.HMAC

	return l.append(&event)
}

// Success records a successful operation.
func (l *Logger) Success(op, subject string) error {
	return l.Log(op, subject, ResultSuccess, "")
}

// Failure records a failed operation with its error text.
func (l *Logger) Failure(op, subject string, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return l.Log(op, subject, ResultError, detail)
}

// Verify replays the log and checks every entry's HMAC and chain linkage.
// Returns the number of valid entries, or ErrChainBroken at the first
// entry that fails.
func (l *Logger) Verify() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.key == nil {
		return 0, ErrKeyNotSet
	}

	events, err := l.readAll()
	if err != nil {
		return 0, err
	}

	prev := genesisHash
	for i := range events {
		e := &events[i]
		if e.Sequence != int64(i+1) || e.PrevHash != prev {
			return i, fmt.Errorf("%w: entry %d out of sequence", ErrChainBroken, i+1)
		}
		if l.hmacHex(chainInput(e)) != e.HMAC {
			return i, fmt.Errorf("%w: entry %d HMAC mismatch", ErrChainBroken, i+1)
		}
		prev = e.HMAC
	}
	return len(events), nil
}

func (l *Logger) hmacHex(data []byte) string {
	mac := hmac.New(sha256.New, l.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// chainInput is the byte string bound by an event's HMAC: every field
// except the HMAC itself.
func chainInput(e *Event) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d|%s",
		e.ID, e.Timestamp, e.Operation, e.SubjectHMAC, e.Result, e.Detail,
		e.Sequence, e.PrevHash))
}

func (l *Logger) append(event *Event) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("audit: failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return f.Sync()
}

func (l *Logger) readAll() ([]Event, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("%w: unparseable entry", ErrChainBroken)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read log: %w", err)
	}
	return events, nil
}

func (l *Logger) lastEvent() (*Event, error) {
	events, err := l.readAll()
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[len(events)-1], nil
}
