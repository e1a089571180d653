// Package packets decodes and encodes the 33-byte data packets streamed by an
// OpenBCI Cyton+Daisy board through its WiFi shield.
package packets

import (
	"errors"
	"fmt"
)

// Packet layout constants.
const (
	PACKETLEN   = 33   // bytes in one physical packet
	STARTMARKER = 0xA0 // first byte of every packet
	STOPMIN     = 0xC0 // lowest accepted stop byte
	STOPMAX     = 0xCF // highest accepted stop byte

	NCHAN      = 8 // channels carried by one physical packet
	BYTESPERCH = 3 // 24-bit samples
	AUXLEN     = 6 // auxiliary bytes between channel data and the stop byte

	chanOffset = 2
	auxOffset  = chanOffset + NCHAN*BYTESPERCH
	stopOffset = auxOffset + AUXLEN
)

// Channel values are 24-bit two's complement, so they span this range.
const (
	MinChannelValue = -(1 << 23)
	MaxChannelValue = 1<<23 - 1
)

// Packet is one decoded physical packet.
type Packet struct {
	StartMarker byte
	Counter     uint8
	Channels    [NCHAN]int32
	Aux         [AUXLEN]byte
	StopMarker  byte
}

// ErrorKind classifies a FrameError.
type ErrorKind int

// Enumeration of the ways a datagram can fail to be a valid packet.
const (
	WrongLength ErrorKind = iota + 1
	BadStartMarker
	BadStopMarker
)

// Sentinel errors, one per ErrorKind, so callers can use errors.Is.
var (
	ErrWrongLength    = errors.New("wrong packet length")
	ErrBadStartMarker = errors.New("bad start marker")
	ErrBadStopMarker  = errors.New("bad stop marker")
)

func (k ErrorKind) String() string {
	switch k {
	case WrongLength:
		return "WrongLength"
	case BadStartMarker:
		return "BadStartMarker"
	case BadStopMarker:
		return "BadStopMarker"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) sentinel() error {
	switch k {
	case WrongLength:
		return ErrWrongLength
	case BadStartMarker:
		return ErrBadStartMarker
	case BadStopMarker:
		return ErrBadStopMarker
	}
	return nil
}

// FrameError reports a datagram that is not a valid packet. Value holds the
// offending length (WrongLength) or marker byte.
type FrameError struct {
	Kind  ErrorKind
	Value int
}

func (e *FrameError) Error() string {
	switch e.Kind {
	case WrongLength:
		return fmt.Sprintf("packet length is %d, want %d", e.Value, PACKETLEN)
	case BadStartMarker:
		return fmt.Sprintf("start marker was 0x%02x, want 0x%02x", e.Value, STARTMARKER)
	case BadStopMarker:
		return fmt.Sprintf("stop marker was 0x%02x, want 0x%02x-0x%02x", e.Value, STOPMIN, STOPMAX)
	}
	return fmt.Sprintf("frame error kind %d value %d", int(e.Kind), e.Value)
}

// Is lets errors.Is match a FrameError against its kind's sentinel.
func (e *FrameError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Decode validates a datagram and returns the packet it carries. It never
// panics: any input that is not exactly one valid packet yields a *FrameError.
func Decode(data []byte) (*Packet, error) {
	if len(data) != PACKETLEN {
		return nil, &FrameError{Kind: WrongLength, Value: len(data)}
	}
	if data[0] != STARTMARKER {
		return nil, &FrameError{Kind: BadStartMarker, Value: int(data[0])}
	}
	stop := data[stopOffset]
	if stop < STOPMIN || stop > STOPMAX {
		return nil, &FrameError{Kind: BadStopMarker, Value: int(stop)}
	}

	p := &Packet{
		StartMarker: data[0],
		Counter:     data[1],
		StopMarker:  stop,
	}
	for i := range p.Channels {
		p.Channels[i] = Int24(data[chanOffset+i*BYTESPERCH:])
	}
	copy(p.Aux[:], data[auxOffset:stopOffset])
	return p, nil
}

// Bytes encodes the packet into its 33-byte wire form. Channel values outside
// the 24-bit range are truncated to their low 24 bits.
func (p *Packet) Bytes() []byte {
	data := make([]byte, PACKETLEN)
	p.Put(data)
	return data
}

// Put encodes the packet into data, which must hold at least PACKETLEN bytes.
func (p *Packet) Put(data []byte) {
	data[0] = p.StartMarker
	data[1] = p.Counter
	for i, v := range p.Channels {
		PutInt24(data[chanOffset+i*BYTESPERCH:], v)
	}
	copy(data[auxOffset:stopOffset], p.Aux[:])
	data[stopOffset] = p.StopMarker
}

// NewPacket returns a valid packet with the given counter and channel values.
func NewPacket(counter uint8, channels [NCHAN]int32) *Packet {
	return &Packet{
		StartMarker: STARTMARKER,
		Counter:     counter,
		Channels:    channels,
		StopMarker:  STOPMIN,
	}
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet #%3d stop=0x%02x ch=%v aux=% x", p.Counter, p.StopMarker, p.Channels, p.Aux)
}

// Int24 sign-extends the 24-bit big-endian value in b[0:3].
func Int24(b []byte) int32 {
	v := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	return v << 8 >> 8
}

// PutInt24 writes the low 24 bits of v big-endian into b[0:3].
func PutInt24(b []byte, v int32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}
