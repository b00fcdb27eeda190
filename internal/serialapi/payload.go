package serialapi

import (
	"errors"
	"fmt"
)

// ErrFieldOutOfRange is matched by every *FieldOutOfRangeError.
var ErrFieldOutOfRange = errors.New("serialapi: field out of range")

// FieldOutOfRangeError reports a read past the end of a payload.
type FieldOutOfRangeError struct {
	Offset int
	Width  int
	Len    int
}

func (e *FieldOutOfRangeError) Error() string {
	return fmt.Sprintf("serialapi: field at offset %d (width %d) out of range for %d-byte payload", e.Offset, e.Width, e.Len)
}

func (e *FieldOutOfRangeError) Is(target error) bool {
	return target == ErrFieldOutOfRange
}

// Payload is the byte body of a frame or of an application command.
// Multi-byte fields are big-endian as on the Z-Wave wire.
type Payload []byte

// Len returns the payload length.
func (p Payload) Len() int { return len(p) }

// Check reports a *FieldOutOfRangeError unless width bytes at off are present.
func (p Payload) Check(off, width int) error {
	if off < 0 || width < 0 || off+width > len(p) {
		return &FieldOutOfRangeError{Offset: off, Width: width, Len: len(p)}
	}
	return nil
}

// ByteAt returns the byte at off.
func (p Payload) ByteAt(off int) (byte, error) {
	if err := p.Check(off, 1); err != nil {
		return 0, err
	}
	return p[off], nil
}

// SignedByteAt returns the byte at off as a two's-complement value.
func (p Payload) SignedByteAt(off int) (int8, error) {
	b, err := p.ByteAt(off)
	return int8(b), err
}

// WordAt returns the big-endian 16-bit value at off.
func (p Payload) WordAt(off int) (uint16, error) {
	if err := p.Check(off, 2); err != nil {
		return 0, err
	}
	return uint16(p[off])<<8 | uint16(p[off+1]), nil
}

// Word24At returns the big-endian 24-bit value at off (wake-up intervals).
func (p Payload) Word24At(off int) (uint32, error) {
	if err := p.Check(off, 3); err != nil {
		return 0, err
	}
	return uint32(p[off])<<16 | uint32(p[off+1])<<8 | uint32(p[off+2]), nil
}

// ValueAt decodes a signed big-endian integer of size 1, 2 or 4 bytes.
func (p Payload) ValueAt(off, size int) (int32, error) {
	switch size {
	case 1, 2, 4:
	default:
		return 0, fmt.Errorf("serialapi: unsupported value size %d", size)
	}
	if err := p.Check(off, size); err != nil {
		return 0, err
	}
	var v uint32
	for i := 0; i < size; i++ {
		v = v<<8 | uint32(p[off+i])
	}
	switch size {
	case 1:
		return int32(int8(v)), nil
	case 2:
		return int32(int16(v)), nil
	default:
		return int32(v), nil
	}
}

// Slice returns p[off:], or an error if off is past the end.
func (p Payload) Slice(off int) (Payload, error) {
	if off < 0 || off > len(p) {
		return nil, &FieldOutOfRangeError{Offset: off, Width: 0, Len: len(p)}
	}
	return p[off:], nil
}

// PutValue appends v as a big-endian integer of the given size.
func PutValue(buf []byte, v int32, size int) []byte {
	for i := size - 1; i >= 0; i-- {
		buf = append(buf, byte(uint32(v)>>(8*uint(i))))
	}
	return buf
}

// ValueSize returns the smallest of 1, 2 or 4 bytes that holds v signed.
func ValueSize(v int32) int {
	switch {
	case v >= -128 && v <= 127:
		return 1
	case v >= -32768 && v <= 32767:
		return 2
	default:
		return 4
	}
}
