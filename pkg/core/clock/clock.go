// Package clock renders the owner's local time the way it is spoken.
package clock

import (
	"fmt"
	"time"
)

// SpokenLayout reads as "Monday, March 02, 2026 at 09:05 AM PST".
const SpokenLayout = "Monday, January 02, 2006 at 03:04 PM MST"

const DefaultZone = "America/Los_Angeles"

type Clock struct {
	Location *time.Location
	// NowFunc defaults to time.Now.
	NowFunc func() time.Time
}

// New loads zone. An empty zone means DefaultZone.
func New(zone string) (Clock, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Clock{}, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return Clock{Location: loc}, nil
}

func (c Clock) Now() time.Time {
	now := time.Now
	if c.NowFunc != nil {
		now = c.NowFunc
	}
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

// Spoken is Now formatted with SpokenLayout.
func (c Clock) Spoken() string {
	return c.Now().Format(SpokenLayout)
}
