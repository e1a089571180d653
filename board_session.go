package bcilog

import (
	"context"
	"fmt"
)

// BoardSession is the command channel to the acquisition board. Configure and
// StartStream failures abort a session before any data is ingested. All
// methods fail with a *ControlError.
type BoardSession interface {
	// Configure sets the sample rate and per-channel gains (NCHAN entries).
	Configure(ctx context.Context, sampleRate int, gains []int) error
	// StartStream tells the board to stream datagrams to this host on port.
	StartStream(ctx context.Context, port int) error
	StopStream(ctx context.Context) error
}

// ControlErrorKind classifies a ControlError.
type ControlErrorKind int

// Names for the possible values of ControlErrorKind
const (
	Unreachable ControlErrorKind = iota + 1 // no usable answer from the board
	Rejected                                // the board, or our validation, refused the request
)

func (k ControlErrorKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("ControlErrorKind(%d)", int(k))
}

// ControlError reports a failed board command.
type ControlError struct {
	Kind ControlErrorKind
	Op   string // e.g. "configure", "start stream"
	Err  error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("board %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ControlError) Unwrap() error { return e.Err }

// NewControlError returns a *ControlError of the given kind.
func NewControlError(kind ControlErrorKind, op string, err error) *ControlError {
	return &ControlError{Kind: kind, Op: op, Err: err}
}
