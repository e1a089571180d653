package bcilog

import "fmt"

// Stats accumulates what happened to the data during one session.
type Stats struct {
	Packets        int64 // datagrams received
	Malformed      int64 // datagrams dropped by the packet decoder
	Duplicates     int64 // packets repeating the previous counter, not merged
	GapEvents      int64 // discontinuities in the packet counter
	MissingPackets int64 // packets implied lost by those discontinuities
	Samples        int64 // logical samples emitted
	Partial        int64 // emitted samples missing one half
	Rollovers      int64 // 32-bit millisecond timestamp wraps
	RecvErrors     int64 // socket receive errors that were logged and skipped
	Records        int64 // records known to be on disk
}

func (s Stats) String() string {
	return fmt.Sprintf("%d packets (%d malformed, %d duplicate), %d gaps losing %d packets, "+
		"%d samples (%d partial), %d rollovers, %d receive errors, %d records on disk",
		s.Packets, s.Malformed, s.Duplicates, s.GapEvents, s.MissingPackets,
		s.Samples, s.Partial, s.Rollovers, s.RecvErrors, s.Records)
}
