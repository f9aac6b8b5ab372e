package vault

import (
	"sync"
	"time"
)

// SaveStatus is the externally observable state of the auto-save pipeline.
type SaveStatus string

const (
	// SaveStatusSaved means no changes are pending and the last save
	// succeeded (or nothing was ever scheduled).
	SaveStatusSaved SaveStatus = "saved"
	// SaveStatusPending means a change is waiting out the debounce window.
	SaveStatusPending SaveStatus = "pending"
	// SaveStatusSaving means a save is executing right now.
	SaveStatusSaving SaveStatus = "saving"
	// SaveStatusError means the last save failed and its payload is still
	// pending. No automatic retry; the next schedule or Flush picks it up.
	SaveStatusError SaveStatus = "error"
)

// StatusChange is one transition of the scheduler, delivered to observers.
// Err is non-nil only when Status is SaveStatusError.
type StatusChange struct {
	Status SaveStatus
	Err    error
}

// SaveFunc persists one payload snapshot. It runs outside the scheduler
// lock and must be safe to call from the scheduler's timer goroutine.
type SaveFunc func(*Payload) error

// AutoSaveScheduler coalesces rapid mutations into single writes: each
// Schedule call replaces the pending payload and restarts the debounce
// timer, so a burst of edits produces one save carrying the final state.
// Changes arriving while a save is in flight are queued and saved in a
// follow-up pass rather than lost.
type AutoSaveScheduler struct {
	save  SaveFunc
	delay time.Duration

	mu      sync.Mutex
	done    sync.Cond
	timer   *time.Timer
	pending *Payload
	saving  bool
	status  SaveStatus
	lastErr error
	changes chan StatusChange
	closed  bool
}

// NewAutoSaveScheduler builds a scheduler that debounces for delay and
// persists through save.
func NewAutoSaveScheduler(delay time.Duration, save SaveFunc) *AutoSaveScheduler {
	s := &AutoSaveScheduler{
		save:    save,
		delay:   delay,
		status:  SaveStatusSaved,
		changes: make(chan StatusChange, 16),
	}
	s.done.L = &s.mu
	return s
}

// Changes returns the status stream. Delivery is best-effort: if the
// observer falls behind, transitions are dropped rather than blocking a
// save. Status() always reflects the current state regardless.
func (s *AutoSaveScheduler) Changes() <-chan StatusChange {
	return s.changes
}

// Status returns the current save status.
func (s *AutoSaveScheduler) Status() SaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError returns the error from the most recent failed save, or nil.
func (s *AutoSaveScheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Schedule records payload as the state to persist and (re)starts the
// debounce timer. Later calls within the window replace the payload; only
// the last one is written.
func (s *AutoSaveScheduler) Schedule(payload *Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.pending = payload
	s.setStatusLocked(StatusChange{Status: SaveStatusPending})

	if s.saving {
		// The running save drains the queue when it finishes; arming a
		// timer now would race it.
		return
	}
	s.armTimerLocked()
}

// Flush persists any pending payload immediately and waits for in-flight
// work to finish. Returns the save error, if any. Used on lock and exit,
// where the debounce window must not outlive the key.
func (s *AutoSaveScheduler) Flush() error {
	s.mu.Lock()
	for {
		for s.saving {
			s.done.Wait()
		}
		if s.pending == nil {
			err := s.lastErr
			s.mu.Unlock()
			return err
		}
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.mu.Unlock()

		s.run()

		s.mu.Lock()
		if s.lastErr != nil {
			err := s.lastErr
			s.mu.Unlock()
			return err
		}
	}
}

// Close stops the scheduler. Pending work is not flushed; callers that
// need the final state on disk call Flush first.
func (s *AutoSaveScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	close(s.changes)
}

func (s *AutoSaveScheduler) armTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.run)
}

// run executes one save pass: take the pending payload, write it, then
// either settle or run a follow-up pass for changes queued meanwhile.
func (s *AutoSaveScheduler) run() {
	s.mu.Lock()
	if s.closed || s.saving || s.pending == nil {
		s.mu.Unlock()
		return
	}
	payload := s.pending
	s.pending = nil
	s.saving = true
	s.timer = nil
	s.setStatusLocked(StatusChange{Status: SaveStatusSaving})
	s.mu.Unlock()

	err := s.save(payload)

	var rerun bool
	s.mu.Lock()
	s.saving = false
	s.lastErr = err
	switch {
	case err != nil:
		// Keep the failed payload pending so Flush or the next Schedule
		// retries it, unless a newer payload already replaced it.
		if s.pending == nil {
			s.pending = payload
		}
		s.setStatusLocked(StatusChange{Status: SaveStatusError, Err: err})
	case s.pending != nil:
		// Changes queued behind an in-flight save already sat out their
		// debounce window; write them now instead of waiting again.
		s.setStatusLocked(StatusChange{Status: SaveStatusPending})
		rerun = !s.closed
	default:
		s.setStatusLocked(StatusChange{Status: SaveStatusSaved})
	}
	s.done.Broadcast()
	s.mu.Unlock()

	if rerun {
		s.run()
	}
}

func (s *AutoSaveScheduler) setStatusLocked(change StatusChange) {
	s.status = change.Status
	if change.Status != SaveStatusError {
		s.lastErr = nil
	}
	if s.closed {
		return
	}
	select {
	case s.changes <- change:
	default:
	}
}
