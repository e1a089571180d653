package bcilog

import (
	"time"

	"github.com/bcilog/bcilog/bcifile"
)

// Timestamper stamps samples with the low 32 bits of UTC milliseconds at the
// moment they are finalized. The 32-bit value wraps about every 49.7 days;
// a wrap is counted and logged but not corrected, since stored files keep the
// raw 32-bit value.
type Timestamper struct {
	clock     func() time.Time
	last      uint32
	valid     bool
	rollovers int
}

// NewTimestamper returns a Timestamper reading clock, or time.Now if clock is nil.
func NewTimestamper(clock func() time.Time) *Timestamper {
	if clock == nil {
		clock = time.Now
	}
	return &Timestamper{clock: clock}
}

// Millis32 returns t's UTC milliseconds modulo 2^32.
func Millis32(t time.Time) uint32 {
	return uint32(t.UnixMilli())
}

// Stamp returns s with its Timestamp set to the current time.
func (ts *Timestamper) Stamp(s bcifile.Sample) bcifile.Sample {
	now := Millis32(ts.clock())
	if ts.valid && now < ts.last {
		ts.rollovers++
		UpdateLogger.Printf("Timestamp rollover: %d ms followed %d ms (rollover #%d)\n",
			now, ts.last, ts.rollovers)
	}
	ts.last = now
	ts.valid = true
	s.Timestamp = now
	return s
}

// Rollovers returns how many times the stamped value went backwards.
func (ts *Timestamper) Rollovers() int {
	return ts.rollovers
}
