package bcilog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bcilog/bcilog/bcifile"
)

type fakeClock struct {
	now time.Time
}

func (fc *fakeClock) Now() time.Time { return fc.now }

func (fc *fakeClock) advance(d time.Duration) { fc.now = fc.now.Add(d) }

func TestMillis32(t *testing.T) {
	assert.Equal(t, uint32(4), Millis32(time.UnixMilli(4294967300)))
	assert.Equal(t, uint32(4294967295), Millis32(time.UnixMilli(4294967295)))
	assert.Equal(t, uint32(0), Millis32(time.UnixMilli(1<<33)))
	assert.Equal(t, uint32(1234), Millis32(time.UnixMilli(1234).In(time.FixedZone("X", 3600))))
}

func TestTimestamperRollover(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(4294967290)}
	ts := NewTimestamper(clock.Now)

	s := ts.Stamp(bcifile.Sample{Flags: bcifile.Partial})
	assert.Equal(t, uint32(4294967290), s.Timestamp)
	assert.Equal(t, bcifile.Partial, s.Flags, "Stamp must not touch other fields")
	assert.Equal(t, 0, ts.Rollovers())

	clock.advance(5 * time.Millisecond)
	assert.Equal(t, uint32(4294967295), ts.Stamp(bcifile.Sample{}).Timestamp)
	assert.Equal(t, 0, ts.Rollovers())

	clock.advance(10 * time.Millisecond)
	assert.Equal(t, uint32(9), ts.Stamp(bcifile.Sample{}).Timestamp)
	assert.Equal(t, 1, ts.Rollovers())

	// Equal stamps are not rollovers.
	assert.Equal(t, uint32(9), ts.Stamp(bcifile.Sample{}).Timestamp)
	assert.Equal(t, 1, ts.Rollovers())
}

func TestTimestamperDefaultClock(t *testing.T) {
	ts := NewTimestamper(nil)
	before := Millis32(time.Now())
	got := ts.Stamp(bcifile.Sample{}).Timestamp
	assert.GreaterOrEqual(t, got-before, uint32(0))
	assert.Less(t, got-before, uint32(1000))
}
