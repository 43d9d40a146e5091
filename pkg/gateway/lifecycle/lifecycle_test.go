package lifecycle

import "testing"

func TestLifecycle_DrainingKeepsFirstTime(t *testing.T) {
	t.Parallel()

	var l Lifecycle
	if l.IsDraining() {
		t.Fatalf("zero Lifecycle should not be draining")
	}
	l.SetDraining(true)
	first, ok := l.DrainingSince()
	if !ok || first.IsZero() {
		t.Fatalf("DrainingSince=(%v,%v)", first, ok)
	}
	l.SetDraining(true)
	if again, _ := l.DrainingSince(); !again.Equal(first) {
		t.Fatalf("since moved from %v to %v", first, again)
	}
	l.SetDraining(false)
	if l.IsDraining() {
		t.Fatalf("expected draining cleared")
	}
}

func TestLifecycle_NilIsNeverDraining(t *testing.T) {
	t.Parallel()

	var l *Lifecycle
	l.SetDraining(true)
	if l.IsDraining() {
		t.Fatalf("nil Lifecycle reported draining")
	}
}
