// Package sessions tracks live calls so shutdown can warn and drain them.
package sessions

import (
	"context"
	"sort"
	"sync"
	"time"
)

type Handle struct {
	Room   string
	Cancel func()
	Warn   func(code, message string) error
}

// Info describes one live call.
type Info struct {
	ID    string
	Room  string
	Since time.Time
}

type Tracker struct {
	mu    sync.Mutex
	calls map[string]*trackedCall
	wg    sync.WaitGroup
	now   func() time.Time
}

type trackedCall struct {
	handle Handle
	since  time.Time
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		calls: make(map[string]*trackedCall),
		now:   time.Now,
	}
}

// Register adds a live call. Registering an id again replaces the earlier
// entry. The returned func is idempotent.
func (t *Tracker) Register(callID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	t.mu.Lock()
	if t.calls == nil {
		t.calls = make(map[string]*trackedCall)
	}
	if t.now == nil {
		t.now = time.Now
	}
	entry := &trackedCall{handle: h, since: t.now()}
	old := t.calls[callID]
	t.calls[callID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(callID, old)
	}

	return func() { t.unregister(callID, entry) }
}

func (t *Tracker) unregister(callID string, entry *trackedCall) {
	entry.once.Do(func() {
		t.mu.Lock()
		if t.calls[callID] == entry {
			delete(t.calls, callID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// Snapshot lists live calls, oldest first.
func (t *Tracker) Snapshot() []Info {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	out := make([]Info, 0, len(t.calls))
	for id, entry := range t.calls {
		out = append(out, Info{ID: id, Room: entry.handle.Room, Since: entry.since})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].ID < out[j].ID
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out
}

// WarnAll sends a warning to every live call and reports how many were
// delivered.
func (t *Tracker) WarnAll(code, message string) (sent int) {
	if t == nil {
		return 0
	}

	var warns []func(code, message string) error
	t.mu.Lock()
	for _, entry := range t.calls {
		if entry.handle.Warn != nil {
			warns = append(warns, entry.handle.Warn)
		}
	}
	t.mu.Unlock()

	for _, warn := range warns {
		if err := warn(code, message); err == nil {
			sent++
		}
	}
	return sent
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.calls {
		if entry.handle.Cancel != nil {
			cancels = append(cancels, entry.handle.Cancel)
		}
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered call has unregistered or ctx ends.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
