package sessions

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTracker_RegisterUnregister_CountAndWait(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	u1 := tr.Register("c1", Handle{Room: "call_+15550001"})
	u2 := tr.Register("c2", Handle{Room: "call_+15550002"})
	if tr.Count() != 2 {
		t.Fatalf("count=%d, want 2", tr.Count())
	}

	u1()
	u1()
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}

	u2()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); !ok {
		t.Fatalf("expected Wait to return true")
	}
}

func TestTracker_WaitTimesOutWithLiveCall(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	unregister := tr.Register("c1", Handle{})
	defer unregister()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if ok := tr.Wait(ctx); ok {
		t.Fatalf("expected Wait to give up while a call is live")
	}
}

func TestTracker_ReRegisterReplaces(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	first := tr.Register("c1", Handle{Room: "old"})
	second := tr.Register("c1", Handle{Room: "new"})
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}
	first()
	if snap := tr.Snapshot(); len(snap) != 1 || snap[0].Room != "new" {
		t.Fatalf("snapshot=%+v", snap)
	}
	second()
	if ok := tr.Wait(context.Background()); !ok {
		t.Fatalf("expected Wait to return after both unregistered")
	}
}

func TestTracker_SnapshotOldestFirst(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tick := 0
	tr := NewTracker()
	tr.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	tr.Register("b", Handle{Room: "second"})
	tr.Register("a", Handle{Room: "third"})
	tr.Register("z", Handle{Room: "fourth"})

	snap := tr.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len=%d, want 3", len(snap))
	}
	if snap[0].ID != "b" || snap[1].ID != "a" || snap[2].ID != "z" {
		t.Fatalf("order=%q,%q,%q", snap[0].ID, snap[1].ID, snap[2].ID)
	}
}

func TestTracker_CancelAll_CallsCancel(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	var c1, c2 atomic.Int64
	tr.Register("c1", Handle{Cancel: func() { c1.Add(1) }})
	tr.Register("c2", Handle{Cancel: func() { c2.Add(1) }})
	tr.Register("c3", Handle{})

	if n := tr.CancelAll(); n != 2 {
		t.Fatalf("canceled=%d, want 2", n)
	}
	if c1.Load() != 1 || c2.Load() != 1 {
		t.Fatalf("cancel calls=%d/%d, want 1/1", c1.Load(), c2.Load())
	}
}

func TestTracker_WarnAll_CountsDelivered(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	var got atomic.Value
	tr.Register("c1", Handle{Warn: func(code, message string) error {
		got.Store(code + ":" + message)
		return nil
	}})
	tr.Register("c2", Handle{Warn: func(code, message string) error {
		return errors.New("socket gone")
	}})

	if sent := tr.WarnAll("draining", "server is shutting down"); sent != 1 {
		t.Fatalf("sent=%d, want 1", sent)
	}
	if v, _ := got.Load().(string); v != "draining:server is shutting down" {
		t.Fatalf("warning=%q", v)
	}
}

func TestTracker_NilSafe(t *testing.T) {
	t.Parallel()

	var tr *Tracker
	tr.Register("c1", Handle{})()
	if tr.Count() != 0 || tr.WarnAll("x", "y") != 0 || tr.CancelAll() != 0 || tr.Snapshot() != nil {
		t.Fatalf("nil tracker should be inert")
	}
	if !tr.Wait(context.Background()) {
		t.Fatalf("nil tracker Wait should return true")
	}
}
