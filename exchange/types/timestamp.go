package types

import (
	"sync/atomic"
	"time"
)

// Timestamp orders submissions for time priority. The wall-clock
// nanosecond component is combined with a process-wide sequence so two
// orders can never carry the same Timestamp, even when the clock does
// not advance between them.
type Timestamp struct {
	WallNanos int64
	Seq       uint64
}

var tsSeq uint64

// Now returns the next strictly monotonic Timestamp.
func Now() Timestamp {
	return Timestamp{
		WallNanos: time.Now().UnixNano(),
		Seq:       atomic.AddUint64(&tsSeq, 1),
	}
}

// Before reports whether t precedes other. The sequence is the real
// priority key; wall nanos exist for display.
func (t Timestamp) Before(other Timestamp) bool {
	return t.Seq < other.Seq
}

// IsZero reports whether t was never assigned.
func (t Timestamp) IsZero() bool {
	return t.Seq == 0
}

// Time returns the wall-clock time of the timestamp.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, t.WallNanos)
}
