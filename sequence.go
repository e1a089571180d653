package bcilog

// SequenceOutcome is what a SequenceTracker learned from one packet counter.
type SequenceOutcome struct {
	Duplicate bool   // same counter as the previous packet
	Gap       uint32 // packets missing before this one (0 when Duplicate)
}

// Fresh reports whether the packet is new, i.e. not a duplicate.
func (o SequenceOutcome) Fresh() bool {
	return !o.Duplicate
}

// SequenceTracker remembers the last hardware packet counter and classifies
// each new counter. It only annotates; it never drops packets itself.
type SequenceTracker struct {
	last  uint8
	valid bool // false until the first counter after Reset
}

// CounterGap returns how many counters were skipped going from c1 to c2,
// modulo 256. It is 0 for consecutive counters, including 255 -> 0.
func CounterGap(c1, c2 uint8) uint32 {
	return uint32(c2 - c1 - 1)
}

// Observe classifies counter and records it as the last one seen. The first
// counter after Reset is always Fresh with gap 0. Out-of-order arrivals look
// like gaps: only counters are compared, not arrival order.
func (st *SequenceTracker) Observe(counter uint8) SequenceOutcome {
	if !st.valid {
		st.valid = true
		st.last = counter
		return SequenceOutcome{}
	}
	if counter == st.last {
		return SequenceOutcome{Duplicate: true}
	}
	gap := CounterGap(st.last, counter)
	st.last = counter
	return SequenceOutcome{Gap: gap}
}

// Last returns the last counter observed, and whether there is one.
func (st *SequenceTracker) Last() (uint8, bool) {
	return st.last, st.valid
}

// Reset forgets the last counter, as at the start of a session.
func (st *SequenceTracker) Reset() {
	st.last = 0
	st.valid = false
}
