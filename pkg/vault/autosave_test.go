package vault

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingSaver captures every payload handed to the scheduler, with an
// optional error script.
type recordingSaver struct {
	mu     sync.Mutex
	saved  []*Payload
	errs   []error
	paused chan struct{}
}

func (r *recordingSaver) save(p *Payload) error {
	if r.paused != nil {
		<-r.paused
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, p)
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return err
	}
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func (r *recordingSaver) last() *Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saved) == 0 {
		return nil
	}
	return r.saved[len(r.saved)-1]
}

func payloadWithServers(n int) *Payload {
	p := &Payload{Servers: make([]ServerRecord, n)}
	for i := range p.Servers {
		p.Servers[i].ID = string(rune('a' + i))
	}
	return p
}

func TestScheduleCoalesces(t *testing.T) {
	saver := &recordingSaver{}
	s := NewAutoSaveScheduler(50*time.Millisecond, saver.save)
	defer s.Close()

	// Three rapid schedules inside one debounce window.
	s.Schedule(payloadWithServers(1))
	s.Schedule(payloadWithServers(2))
	s.Schedule(payloadWithServers(3))

	if got := s.Status(); got != SaveStatusPending {
		t.Errorf("status during debounce = %q, want pending", got)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if saver.count() != 1 {
		t.Fatalf("got %d saves, want 1 coalesced save", saver.count())
	}
	if last := saver.last(); len(last.Servers) != 3 {
		t.Errorf("saved payload has %d servers, want the last scheduled (3)", len(last.Servers))
	}
	if got := s.Status(); got != SaveStatusSaved {
		t.Errorf("status after flush = %q, want saved", got)
	}
}

func TestDebounceFiresWithoutFlush(t *testing.T) {
	saver := &recordingSaver{}
	s := NewAutoSaveScheduler(10*time.Millisecond, saver.save)
	defer s.Close()

	s.Schedule(payloadWithServers(1))

	deadline := time.After(2 * time.Second)
	for saver.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("debounced save never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestScheduleDuringSaveQueues(t *testing.T) {
	saver := &recordingSaver{paused: make(chan struct{})}
	s := NewAutoSaveScheduler(time.Millisecond, saver.save)
	defer s.Close()

	s.Schedule(payloadWithServers(1))

	// Wait for the save to start, then schedule more work while it is
	// blocked inside the save callback.
	deadline := time.After(2 * time.Second)
	for s.Status() != SaveStatusSaving {
		select {
		case <-deadline:
			t.Fatal("save never started")
		case <-time.After(time.Millisecond):
		}
	}
	s.Schedule(payloadWithServers(2))
	close(saver.paused)

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if saver.count() != 2 {
		t.Fatalf("got %d saves, want 2 (original + queued)", saver.count())
	}
	if last := saver.last(); len(last.Servers) != 2 {
		t.Errorf("second save has %d servers, want 2", len(last.Servers))
	}
}

func TestSaveErrorKeepsPayloadPending(t *testing.T) {
	boom := errors.New("disk full")
	saver := &recordingSaver{errs: []error{boom}}
	s := NewAutoSaveScheduler(time.Millisecond, saver.save)
	defer s.Close()

	s.Schedule(payloadWithServers(1))

	deadline := time.After(2 * time.Second)
	for s.Status() != SaveStatusError {
		select {
		case <-deadline:
			t.Fatalf("status = %q, never reached error", s.Status())
		case <-time.After(time.Millisecond):
		}
	}
	if !errors.Is(s.LastError(), boom) {
		t.Errorf("LastError = %v, want %v", s.LastError(), boom)
	}

	// No automatic retry: the count stays at one failed attempt.
	time.Sleep(20 * time.Millisecond)
	if saver.count() != 1 {
		t.Errorf("got %d save attempts, want 1 (no auto-retry)", saver.count())
	}

	// Flush retries the kept payload and succeeds.
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush after error failed: %v", err)
	}
	if saver.count() != 2 {
		t.Errorf("got %d save attempts after flush, want 2", saver.count())
	}
	if got := s.Status(); got != SaveStatusSaved {
		t.Errorf("status after recovering flush = %q, want saved", got)
	}
}

func TestFlushWithNothingPending(t *testing.T) {
	saver := &recordingSaver{}
	s := NewAutoSaveScheduler(time.Millisecond, saver.save)
	defer s.Close()

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush on idle scheduler failed: %v", err)
	}
	if saver.count() != 0 {
		t.Errorf("idle flush triggered %d saves, want 0", saver.count())
	}
}

func TestStatusChangesPublished(t *testing.T) {
	saver := &recordingSaver{}
	s := NewAutoSaveScheduler(time.Millisecond, saver.save)
	defer s.Close()

	s.Schedule(payloadWithServers(1))
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	var seen []SaveStatus
	deadline := time.After(time.Second)
	for len(seen) < 3 {
		select {
		case change := <-s.Changes():
			seen = append(seen, change.Status)
		case <-deadline:
			t.Fatalf("observed %v, want pending/saving/saved", seen)
		}
	}
	want := []SaveStatus{SaveStatusPending, SaveStatusSaving, SaveStatusSaved}
	for i, status := range want {
		if seen[i] != status {
			t.Errorf("transition %d = %q, want %q", i, seen[i], status)
		}
	}
}

func TestScheduleAfterCloseIsNoop(t *testing.T) {
	saver := &recordingSaver{}
	s := NewAutoSaveScheduler(time.Millisecond, saver.save)
	s.Close()

	s.Schedule(payloadWithServers(1))
	time.Sleep(10 * time.Millisecond)
	if saver.count() != 0 {
		t.Errorf("closed scheduler ran %d saves, want 0", saver.count())
	}
}

func TestQueuedSaveRunsAfterInFlight(t *testing.T) {
	saver := &recordingSaver{paused: make(chan struct{})}
	s := NewAutoSaveScheduler(500*time.Millisecond, saver.save)
	defer s.Close()

	s.Schedule(payloadWithServers(1))

	deadline := time.After(2 * time.Second)
	for s.Status() != SaveStatusSaving {
		select {
		case <-deadline:
			t.Fatal("save never started")
		case <-time.After(time.Millisecond):
		}
	}
	s.Schedule(payloadWithServers(2))
	close(saver.paused)

	// The queued payload already sat out its debounce window: it must be
	// written right after the in-flight save, not after another delay.
	limit := time.After(250 * time.Millisecond)
	for saver.count() < 2 {
		select {
		case <-limit:
			t.Fatalf("queued payload not saved promptly (%d saves)", saver.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if last := saver.last(); len(last.Servers) != 2 {
		t.Errorf("follow-up save has %d servers, want 2", len(last.Servers))
	}
}
