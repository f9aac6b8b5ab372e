package vault

import "time"

// Default settings values. Resolved exactly once when metadata is created
// or loaded; call sites never re-derive fallbacks.
const (
	DefaultAutoLockSeconds       = 300
	DefaultAutoSaveDelayMs       = 500
	DefaultClipboardClearSeconds = 30
)

// Settings is the fully-specified vault configuration. Zero timeouts are
// meaningful (they disable the corresponding timer), so defaults are
// applied only when a settings block is absent, not per field.
type Settings struct {
	// AutoLockSeconds is the idle timeout before the vault locks itself.
	// 0 disables auto-lock.
	AutoLockSeconds int `json:"auto_lock_seconds"`

	// AutoSaveDelayMs is the debounce window for coalescing saves on the
	// file backend.
	AutoSaveDelayMs int `json:"auto_save_delay_ms"`

	// ClipboardClearSeconds is how long a copied secret stays on the
	// clipboard before a best-effort clear. 0 disables clearing.
	ClipboardClearSeconds int `json:"clipboard_clear_seconds"`

	// AutoSaveEnabled toggles debounced auto-save; when false every
	// mutation saves synchronously.
	AutoSaveEnabled bool `json:"auto_save_enabled"`

	// ShowSaveIndicator toggles the save-status indicator in consumers.
	ShowSaveIndicator bool `json:"show_save_indicator"`
}

// DefaultSettings returns the settings written into new vault metadata.
func DefaultSettings() Settings {
	return Settings{
		AutoLockSeconds:       DefaultAutoLockSeconds,
		AutoSaveDelayMs:       DefaultAutoSaveDelayMs,
		ClipboardClearSeconds: DefaultClipboardClearSeconds,
		AutoSaveEnabled:       true,
		ShowSaveIndicator:     true,
	}
}

// normalize clamps negative values to zero. Negative durations have no
// meaning and would arm timers immediately.
func (s Settings) normalize() Settings {
	if s.AutoLockSeconds < 0 {
		s.AutoLockSeconds = 0
	}
	if s.AutoSaveDelayMs < 0 {
		s.AutoSaveDelayMs = 0
	}
	if s.ClipboardClearSeconds < 0 {
		s.ClipboardClearSeconds = 0
	}
	return s
}

// AutoLockTimeout returns the idle timeout as a duration; 0 means disabled.
func (s Settings) AutoLockTimeout() time.Duration {
	return time.Duration(s.AutoLockSeconds) * time.Second
}

// AutoSaveDelay returns the debounce window as a duration.
func (s Settings) AutoSaveDelay() time.Duration {
	return time.Duration(s.AutoSaveDelayMs) * time.Millisecond
}

// ClipboardClearTimeout returns the clipboard-clear delay; 0 means never.
func (s Settings) ClipboardClearTimeout() time.Duration {
	return time.Duration(s.ClipboardClearSeconds) * time.Second
}
