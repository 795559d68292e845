package avews

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Wire markers used by the AVE web server protocol.
const (
	StartMarker       byte = 0x02
	EndOfMessage      byte = 0x03
	FieldSeparator    byte = 0x1D
	RecordSeparator   byte = 0x1E
	EndOfTransmission byte = 0x04
)

// minFrameLength is the shortest fragment treated as a frame. Anything
// shorter (typically the empty tail after the last EOT) is skipped.
const minFrameLength = 3

// trailerLength covers ETX plus the two checksum characters.
const trailerLength = 3

const hexDigits = "0123456789ABCDEF"

// Message is one decoded controller frame. Values are treated as read-only
// once Decode returns them.
type Message struct {
	// Name is the raw command token, e.g. "gsf" or "upd".
	Name string

	// Parameters are the FS-separated fields following the command token.
	Parameters []string

	// Records are the RS-separated rows of the frame body, each split on FS.
	Records [][]string
}

// Command returns the closed command kind of the message.
func (m Message) Command() Command {
	return ParseCommand(m.Name)
}

// Param returns the parameter at index i, or "" when absent.
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Parameters) {
		return ""
	}
	return m.Parameters[i]
}

// String renders the message for logs.
func (m Message) String() string {
	return fmt.Sprintf("%s%v records=%d", m.Name, m.Parameters, len(m.Records))
}

// Checksum returns the two hex characters appended after ETX.
//
// All payload bytes are XOR-ed together, the result is subtracted from 0xFF,
// and each nibble is rendered as one uppercase hex digit.
func Checksum(payload string) string {
	var acc byte
	for i := 0; i < len(payload); i++ {
		acc ^= payload[i]
	}
	crc := 0xFF - acc
	return string([]byte{hexDigits[crc>>4], hexDigits[crc&0x0F]})
}

// Encode builds an outbound frame: STX, command, optional FS-prefixed
// FS-joined parameters, ETX, checksum, EOT.
func Encode(command string, parameters ...string) []byte {
	var b strings.Builder
	b.Grow(len(command) + 8 + 4*len(parameters))

	b.WriteByte(StartMarker)
	b.WriteString(command)
	if len(parameters) > 0 {
		b.WriteByte(FieldSeparator)
		b.WriteString(strings.Join(parameters, string(FieldSeparator)))
	}
	b.WriteByte(EndOfMessage)

	payload := b.String()
	b.WriteString(Checksum(payload))
	b.WriteByte(EndOfTransmission)

	return []byte(b.String())
}

// Decode splits one transport message into frames and parses each.
//
// The first byte of each frame is dropped without looking at it and the
// checksum is not verified. A frame that is not valid UTF-8 text is
// reported as a *FrameError and decoding continues with the next frame.
func Decode(raw []byte) ([]Message, []error) {
	frames := strings.Split(string(raw), string(EndOfTransmission))

	msgs := make([]Message, 0, len(frames))
	var errs []error

	for i, frame := range frames {
		if len(frame) < minFrameLength {
			continue
		}

		msg, err := decodeFrame(frame)
		if err != nil {
			errs = append(errs, &FrameError{Index: i, Frame: frame, Err: err})
			continue
		}
		msgs = append(msgs, msg)
	}

	return msgs, errs
}

// decodeFrame parses a single frame without its EOT delimiter.
func decodeFrame(frame string) (Message, error) {
	if !utf8.ValidString(frame) {
		return Message{}, fmt.Errorf("%w: not valid UTF-8", ErrMalformedFrame)
	}

	body := ""
	if end := len(frame) - trailerLength; end > 1 {
		body = frame[1:end]
	}

	parts := strings.Split(body, string(RecordSeparator))
	head := strings.Split(parts[0], string(FieldSeparator))

	msg := Message{
		Name:       head[0],
		Parameters: head[1:],
	}

	if len(parts) > 1 {
		msg.Records = make([][]string, 0, len(parts)-1)
		for _, rec := range parts[1:] {
			msg.Records = append(msg.Records, strings.Split(rec, string(FieldSeparator)))
		}
	}

	return msg, nil
}
