package clock

import "time"

// SystemClock returns the current wall-clock time.
// It is truncated to microseconds, the resolution Postgres stores, so a record read back
// compares equal to the one that was written.
type SystemClock struct{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
