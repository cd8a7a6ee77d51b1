// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bytecodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MaxSafeInteger defines the biggest compact size value accepted by Reader.
const MaxSafeInteger uint64 = 1<<53 - 1

var (
	// ErrOutOfBounds defines that there are not enough bytes left to read the value.
	ErrOutOfBounds = errors.New("read out of bounds")
	// ErrVarIntOverflow defines compact size integer that exceeds MaxSafeInteger.
	ErrVarIntOverflow = errors.New("compact size integer overflows safe range")
	// ErrNonCanonicalVarInt defines compact size integer encoded with a longer form than needed.
	ErrNonCanonicalVarInt = errors.New("non-canonical compact size integer")
)

// Reader reads little-endian encoded values advancing the internal cursor.
type Reader struct {
	buf    []byte
	offset int
}

// NewReader is a constructor for Reader.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the cursor position.
func (r *Reader) Offset() int {
	return r.offset
}

// Remaining returns how many bytes are left.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.offset
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.ReadSlice(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

// ReadUint16 reads unsigned 16 bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.ReadSlice(2)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(b), nil
}

// ReadInt32 reads signed 32 bit integer.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()

	return int32(v), err
}

// ReadUint32 reads unsigned 32 bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadSlice(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads unsigned 64 bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.ReadSlice(8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

// ReadVarInt reads bitcoin compact size integer.
func (r *Reader) ReadVarInt() (uint64, error) {
	marker, err := r.ReadUint8()
	if err != nil {
		return 0, err
	}

	var value, min uint64
	switch marker {
	case varIntMarker16:
		v, err := r.ReadUint16()
		if err != nil {
			return 0, err
		}

		value, min = uint64(v), uint64(varIntMarker16)
	case varIntMarker32:
		v, err := r.ReadUint32()
		if err != nil {
			return 0, err
		}

		value, min = uint64(v), math.MaxUint16+1
	case varIntMarker64:
		v, err := r.ReadUint64()
		if err != nil {
			return 0, err
		}

		if v > MaxSafeInteger {
			return 0, ErrVarIntOverflow
		}

		value, min = v, math.MaxUint32+1
	default:
		return uint64(marker), nil
	}

	if value < min {
		return 0, fmt.Errorf("%w: %d encoded with marker 0x%02x", ErrNonCanonicalVarInt, value, marker)
	}

	return value, nil
}

// ReadSlice reads n raw bytes. Returned slice shares memory with the underlying buffer.
func (r *Reader) ReadSlice(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrOutOfBounds, n, r.Remaining())
	}

	b := r.buf[r.offset : r.offset+n]
	r.offset += n

	return b, nil
}

// Peek returns next n bytes without advancing the cursor.
func (r *Reader) Peek(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrOutOfBounds, n, r.Remaining())
	}

	return r.buf[r.offset : r.offset+n], nil
}

// ReadVarSlice reads compact size length prefixed bytes.
func (r *Reader) ReadVarSlice() ([]byte, error) {
	n, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}

	if n > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrOutOfBounds, n, r.Remaining())
	}

	return r.ReadSlice(int(n))
}

// ReadVector reads compact size count of length prefixed bytes.
func (r *Reader) ReadVector() ([][]byte, error) {
	count, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}

	// every item takes at least one byte.
	if count > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: vector of %d items, have %d bytes", ErrOutOfBounds, count, r.Remaining())
	}

	vector := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		item, err := r.ReadVarSlice()
		if err != nil {
			return nil, err
		}

		vector = append(vector, item)
	}

	return vector, nil
}
