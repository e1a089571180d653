// Package bcifile defines the logical 16-channel sample and the binary .bci
// file format that stores a stream of them, with a buffered writer and a
// reader that tolerates truncated files.
//
// A file is a fixed 16-byte header followed by fixed-size records. All
// multi-byte integers are big-endian.
//
//	header:  "BCIL" | version u16 | nchan u16 | rate u32 | bytes/value u8 | record size u8 | 2 reserved
//	record:  timestamp_ms32 u32 | nchan x int24 | flags u8
//
// A file is valid up to its last complete record.
package bcifile

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/bcilog/bcilog/packets"
)

// Fixed hardware profile and format constants.
const (
	NCHAN      = 2 * packets.NCHAN // primary channels followed by daisy channels
	SAMPLERATE = 2000              // nominal samples per second
	VERSION    = 1
	MAGIC      = "BCIL"

	HEADERLEN  = 16
	VALUELEN   = packets.BYTESPERCH
	RECORDLEN  = 4 + NCHAN*VALUELEN + 1
	flagOffset = RECORDLEN - 1
)

// Flags mark data loss on a single sample.
type Flags uint8

// Flag bits stored in the last byte of every record.
const (
	GapBefore Flags = 1 << iota // packets were lost on the wire before this sample
	Partial                     // one half was missing; its 8 channels are zero
)

// GapBefore reports whether the gap flag is set.
func (f Flags) GapBefore() bool { return f&GapBefore != 0 }

// Partial reports whether the partial flag is set.
func (f Flags) Partial() bool { return f&Partial != 0 }

func (f Flags) String() string {
	var names []string
	if f.GapBefore() {
		names = append(names, "gap_before")
	}
	if f.Partial() {
		names = append(names, "partial")
	}
	if rest := f &^ (GapBefore | Partial); rest != 0 {
		names = append(names, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Sample is one logical sample: both halves of a daisy-chained reading,
// stamped with the low 32 bits of UTC milliseconds when it was finalized.
type Sample struct {
	Timestamp uint32
	Channels  [NCHAN]int32
	Flags     Flags
}

// Header is the fixed file header.
type Header struct {
	Version    uint16
	Nchan      uint16
	SampleRate uint32
	ValueLen   uint8
	RecordLen  uint8
}

// DefaultHeader returns the header for the fixed hardware profile.
func DefaultHeader() Header {
	return Header{
		Version:    VERSION,
		Nchan:      NCHAN,
		SampleRate: SAMPLERATE,
		ValueLen:   VALUELEN,
		RecordLen:  RECORDLEN,
	}
}

// Bytes encodes the header.
func (h Header) Bytes() []byte {
	b := make([]byte, HEADERLEN)
	copy(b, MAGIC)
	binary.BigEndian.PutUint16(b[4:], h.Version)
	binary.BigEndian.PutUint16(b[6:], h.Nchan)
	binary.BigEndian.PutUint32(b[8:], h.SampleRate)
	b[12] = h.ValueLen
	b[13] = h.RecordLen
	return b
}

// ParseHeader decodes and validates a header.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HEADERLEN {
		return h, fmt.Errorf("header is %d bytes, want %d", len(b), HEADERLEN)
	}
	if string(b[:4]) != MAGIC {
		return h, fmt.Errorf("file must begin with %q, found %q", MAGIC, b[:4])
	}
	h.Version = binary.BigEndian.Uint16(b[4:])
	h.Nchan = binary.BigEndian.Uint16(b[6:])
	h.SampleRate = binary.BigEndian.Uint32(b[8:])
	h.ValueLen = b[12]
	h.RecordLen = b[13]
	if h.Version != VERSION {
		return h, fmt.Errorf("file version %d is not supported (want %d)", h.Version, VERSION)
	}
	if h.Nchan != NCHAN || h.ValueLen != VALUELEN || h.RecordLen != RECORDLEN {
		return h, fmt.Errorf("file has %d channels of %d bytes in %d-byte records, want %d of %d in %d",
			h.Nchan, h.ValueLen, h.RecordLen, NCHAN, VALUELEN, RECORDLEN)
	}
	return h, nil
}

// AppendRecord appends the encoded sample to b and returns the extended slice.
func AppendRecord(b []byte, s *Sample) []byte {
	n := len(b)
	b = append(b, make([]byte, RECORDLEN)...)
	PutRecord(b[n:], s)
	return b
}

// PutRecord encodes s into b, which must hold at least RECORDLEN bytes.
func PutRecord(b []byte, s *Sample) {
	binary.BigEndian.PutUint32(b, s.Timestamp)
	for i, v := range s.Channels {
		packets.PutInt24(b[4+i*VALUELEN:], v)
	}
	b[flagOffset] = byte(s.Flags)
}

// ParseRecord decodes one record from b, which must hold at least RECORDLEN bytes.
func ParseRecord(b []byte) (s Sample, err error) {
	if len(b) < RECORDLEN {
		return s, fmt.Errorf("record is %d bytes, want %d", len(b), RECORDLEN)
	}
	s.Timestamp = binary.BigEndian.Uint32(b)
	for i := range s.Channels {
		s.Channels[i] = packets.Int24(b[4+i*VALUELEN:])
	}
	s.Flags = Flags(b[flagOffset])
	return s, nil
}
