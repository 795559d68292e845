package avews

import (
	"errors"
	"fmt"
)

// Domain errors for the AVE bridge package.
var (
	// ErrNotConnected is returned by Send when no controller connection is open.
	ErrNotConnected = errors.New("avews: not connected to controller")

	// ErrMalformedFrame is returned for an inbound frame that cannot be decoded.
	ErrMalformedFrame = errors.New("avews: malformed frame")

	// ErrDuplicateDevice is returned when two devices share the same (type, id).
	ErrDuplicateDevice = errors.New("avews: duplicate device")

	// ErrInvalidRecord is returned when a status record cannot be parsed.
	ErrInvalidRecord = errors.New("avews: invalid record")

	// ErrUnknownLight is returned when a light command names an id the bridge
	// has never seen reported by the controller.
	ErrUnknownLight = errors.New("avews: unknown light")
)

// FrameError describes a single inbound frame that failed to decode.
// Sibling frames in the same transport message are unaffected.
type FrameError struct {
	Index int
	Frame string
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("avews: frame %d: %v", e.Index, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
