package bcilog

import (
	"fmt"
	"strings"
	"time"

	"github.com/bcilog/bcilog/bcifile"
	"github.com/bcilog/bcilog/packets"
)

// Parity selects which counter parity carries the primary board's channels.
type Parity int

// Names for the possible values of Parity
const (
	ParityAuto Parity = iota // decided by the first packet of the session
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityAuto:
		return "auto"
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	}
	return fmt.Sprintf("Parity(%d)", int(p))
}

// ParseParity converts "auto", "even" or "odd" to a Parity.
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ParityAuto, nil
	case "even":
		return ParityEven, nil
	case "odd":
		return ParityOdd, nil
	}
	return ParityAuto, fmt.Errorf("primary parity %q is not one of auto, even, odd", s)
}

func parityOf(counter uint8) Parity {
	if counter%2 == 0 {
		return ParityEven
	}
	return ParityOdd
}

// MergeState names the two states of a ChannelMerger.
type MergeState int

// Names for the possible values of MergeState
const (
	Empty           MergeState = iota // nothing held
	AwaitingPartner                   // a primary half waits for its daisy half
)

func (s MergeState) String() string {
	if s == AwaitingPartner {
		return "AwaitingPartner"
	}
	return "Empty"
}

// ChannelMerger pairs the primary and daisy physical packets that together
// make one 16-channel sample. Only a primary half is ever held. Every packet
// pushed ends up in exactly one emitted sample: complete, or partial with the
// missing half zero-filled and flagged.
type ChannelMerger struct {
	configured    Parity
	primaryParity Parity // resolved to Even or Odd by the first packet

	pending       packets.Packet
	pendingGap    bool
	pendingSince  time.Time
	state         MergeState
	partnerExpiry time.Duration

	out []bcifile.Sample
}

// NewChannelMerger creates a merger. With ParityAuto the first packet's parity
// is taken as the primary parity. A pending half older than partnerExpiry is
// given up on by Expire; zero means Expire never fires.
func NewChannelMerger(parity Parity, partnerExpiry time.Duration) *ChannelMerger {
	m := &ChannelMerger{configured: parity, partnerExpiry: partnerExpiry}
	m.Reset()
	return m
}

// Reset drops any pending half and forgets an automatically chosen parity.
func (m *ChannelMerger) Reset() {
	m.primaryParity = m.configured
	m.state = Empty
	m.pendingGap = false
}

// State returns the current state.
func (m *ChannelMerger) State() MergeState {
	return m.state
}

// PrimaryParity returns the parity carrying primary channels, or ParityAuto if
// no packet has been seen yet.
func (m *ChannelMerger) PrimaryParity() Parity {
	return m.primaryParity
}

// IsPrimary reports whether a packet with this counter is a primary half,
// fixing the parity convention first if it is still undecided.
func (m *ChannelMerger) IsPrimary(counter uint8) bool {
	if m.primaryParity == ParityAuto {
		m.primaryParity = parityOf(counter)
	}
	return parityOf(counter) == m.primaryParity
}

// Push feeds one accepted packet together with the wire gap the
// SequenceTracker saw before it. It returns the samples finalized by this
// packet (zero, one or two of them) without timestamps. The returned slice is
// reused by the next call.
func (m *ChannelMerger) Push(p *packets.Packet, gap uint32, now time.Time) []bcifile.Sample {
	m.out = m.out[:0]
	primary := m.IsPrimary(p.Counter)

	if m.state == AwaitingPartner {
		if !primary && p.Counter == m.pending.Counter+1 {
			var flags bcifile.Flags
			if m.pendingGap || gap > 0 {
				flags = bcifile.GapBefore
			}
			m.out = append(m.out, combine(&m.pending, p, flags))
			m.state = Empty
			return m.out
		}
		// The pending primary's partner is not coming.
		m.out = append(m.out, m.abandonPending())
	}

	if primary {
		m.pending = *p
		m.pendingGap = gap > 0
		m.pendingSince = now
		m.state = AwaitingPartner
		return m.out
	}
	// A daisy half with no primary to pair with.
	m.out = append(m.out, combine(nil, p, bcifile.GapBefore|bcifile.Partial))
	return m.out
}

// Expire gives up on a pending half that has waited longer than the partner
// expiry, returning it as a partial sample.
func (m *ChannelMerger) Expire(now time.Time) []bcifile.Sample {
	m.out = m.out[:0]
	if m.state == AwaitingPartner && m.partnerExpiry > 0 && now.Sub(m.pendingSince) >= m.partnerExpiry {
		m.out = append(m.out, m.abandonPending())
	}
	return m.out
}

// Drain returns any pending half as a partial sample, as at end of session.
func (m *ChannelMerger) Drain() []bcifile.Sample {
	m.out = m.out[:0]
	if m.state == AwaitingPartner {
		m.out = append(m.out, m.abandonPending())
	}
	return m.out
}

func (m *ChannelMerger) abandonPending() bcifile.Sample {
	m.state = Empty
	return combine(&m.pending, nil, bcifile.GapBefore|bcifile.Partial)
}

// combine builds a sample from the primary and daisy halves; a nil half
// leaves its channels zero.
func combine(primary, daisy *packets.Packet, flags bcifile.Flags) bcifile.Sample {
	s := bcifile.Sample{Flags: flags}
	if primary != nil {
		copy(s.Channels[:packets.NCHAN], primary.Channels[:])
	}
	if daisy != nil {
		copy(s.Channels[packets.NCHAN:], daisy.Channels[:])
	}
	return s
}
