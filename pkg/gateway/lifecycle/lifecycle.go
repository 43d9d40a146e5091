// Package lifecycle holds process state shared by the readiness check and the
// call endpoint.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// Lifecycle records whether the process is draining and since when. A nil
// Lifecycle is never draining.
type Lifecycle struct {
	since atomic.Int64
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	if !draining {
		l.since.Store(0)
		return
	}
	l.since.CompareAndSwap(0, time.Now().UnixNano())
}

func (l *Lifecycle) IsDraining() bool {
	_, ok := l.DrainingSince()
	return ok
}

// DrainingSince reports when draining began. Repeated SetDraining(true)
// calls keep the first time.
func (l *Lifecycle) DrainingSince() (time.Time, bool) {
	if l == nil {
		return time.Time{}, false
	}
	ns := l.since.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}
