package serialapi

// Z-Wave Serial API data frame codec.
// Layout: SOF(1) + len(1) + type(1) + func(1) + payload(N) + checksum(1).
// len counts type..checksum; checksum is 0xFF XOR len..last payload byte.

import (
	"errors"
	"fmt"
)

// Link-layer frame starts.
const (
	SOF byte = 0x01
	ACK byte = 0x06
	NAK byte = 0x15
	CAN byte = 0x18
)

// MessageType is the request/response class of a data frame.
type MessageType uint8

const (
	Request  MessageType = 0x00
	Response MessageType = 0x01
)

func (t MessageType) String() string {
	switch t {
	case Request:
		return "Request"
	case Response:
		return "Response"
	default:
		return fmt.Sprintf("0x%02X", uint8(t))
	}
}

const (
	frameOverhead = 5 // SOF + len + type + func + checksum
	minFrameSize  = frameOverhead
	maxFrameSize  = 0xFF + 2
)

var (
	// ErrFraming is returned for frames whose shape is wrong: no SOF, too short,
	// or a declared length that disagrees with the buffer.
	ErrFraming = errors.New("serialapi: framing error")
	// ErrChecksum is returned when the trailing checksum does not match.
	// It matches ErrFraming under errors.Is.
	ErrChecksum = fmt.Errorf("%w: checksum mismatch", ErrFraming)
)

// Frame is a parsed Serial API data frame.
type Frame struct {
	Type     MessageType
	Function Function
	Payload  Payload
}

// NewRequest builds an outbound request frame.
func NewRequest(fn Function, payload []byte) *Frame {
	p := make(Payload, len(payload))
	copy(p, payload)
	return &Frame{Type: Request, Function: fn, Payload: p}
}

// NewResponse builds a response frame. Controllers send these; tests use it to fake them.
func NewResponse(fn Function, payload []byte) *Frame {
	f := NewRequest(fn, payload)
	f.Type = Response
	return f
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s %s [%X]", f.Type, f.Function, []byte(f.Payload))
}

// Encode serializes the frame including SOF and checksum.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload)+frameOverhead > maxFrameSize {
		return nil, fmt.Errorf("%w: payload too large: %d bytes", ErrFraming, len(f.Payload))
	}
	buf := make([]byte, len(f.Payload)+frameOverhead)
	buf[0] = SOF
	buf[1] = byte(len(f.Payload) + 3)
	buf[2] = byte(f.Type)
	buf[3] = byte(f.Function)
	copy(buf[4:], f.Payload)
	buf[len(buf)-1] = Checksum(buf[1 : len(buf)-1])
	return buf, nil
}

// Checksum computes the Serial API checksum: 0xFF XORed with every byte of
// data. Frames pass LEN through the last payload byte, so the sum starts at
// offset 1 and covers LEN as well, not only TYPE onwards (offset 2).
func Checksum(data []byte) byte {
	chk := byte(0xFF)
	for _, b := range data {
		chk ^= b
	}
	return chk
}

// Decode parses a complete data frame, SOF included.
func Decode(data []byte) (*Frame, error) {
	if len(data) < minFrameSize {
		return nil, fmt.Errorf("%w: frame too short: %d bytes", ErrFraming, len(data))
	}
	if data[0] != SOF {
		return nil, fmt.Errorf("%w: bad start byte 0x%02X", ErrFraming, data[0])
	}
	if declared := int(data[1]) + 2; declared != len(data) {
		return nil, fmt.Errorf("%w: declared length %d, have %d", ErrFraming, declared, len(data))
	}
	want := Checksum(data[1 : len(data)-1])
	if got := data[len(data)-1]; got != want {
		return nil, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrChecksum, got, want)
	}

	f := &Frame{
		Type:     MessageType(data[2]),
		Function: Function(data[3]),
	}
	if n := len(data) - frameOverhead; n > 0 {
		f.Payload = make(Payload, n)
		copy(f.Payload, data[4:len(data)-1])
	}
	return f, nil
}

// Equal reports whether two frames carry the same type, function and payload.
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}
	if f.Type != o.Type || f.Function != o.Function || len(f.Payload) != len(o.Payload) {
		return false
	}
	for i := range f.Payload {
		if f.Payload[i] != o.Payload[i] {
			return false
		}
	}
	return true
}
