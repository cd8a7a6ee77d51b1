// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bytecodec

import (
	"encoding/binary"
	"math"
)

const (
	// varIntMarker16 defines compact size prefix for 16 bit values.
	varIntMarker16 byte = 0xfd
	// varIntMarker32 defines compact size prefix for 32 bit values.
	varIntMarker32 byte = 0xfe
	// varIntMarker64 defines compact size prefix for 64 bit values.
	varIntMarker64 byte = 0xff
)

// Writer appends little-endian encoded values to the preallocated buffer.
// INFO: Writer never grows past the capacity it was created with silently,
// callers use Len to assert the exact size they computed in advance.
type Writer struct {
	buf []byte
}

// NewWriter is a constructor for Writer with the capacity of the expected output.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteUint16 appends unsigned 16 bit integer.
func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteInt32 appends signed 32 bit integer.
func (w *Writer) WriteInt32(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

// WriteUint32 appends unsigned 32 bit integer.
func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteUint64 appends unsigned 64 bit integer.
func (w *Writer) WriteUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteVarInt appends bitcoin compact size integer.
func (w *Writer) WriteVarInt(v uint64) {
	switch {
	case v < uint64(varIntMarker16):
		w.buf = append(w.buf, byte(v))
	case v <= math.MaxUint16:
		w.buf = append(w.buf, varIntMarker16)
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(v))
	case v <= math.MaxUint32:
		w.buf = append(w.buf, varIntMarker32)
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
	default:
		w.buf = append(w.buf, varIntMarker64)
		w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	}
}

// WriteSlice appends raw bytes.
func (w *Writer) WriteSlice(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteVarSlice appends bytes prefixed with their compact size length.
func (w *Writer) WriteVarSlice(b []byte) {
	w.WriteVarInt(uint64(len(b)))
	w.WriteSlice(b)
}

// WriteVector appends compact size count followed by each item as var slice.
func (w *Writer) WriteVector(vector [][]byte) {
	w.WriteVarInt(uint64(len(vector)))
	for _, item := range vector {
		w.WriteVarSlice(item)
	}
}

// Len returns number of written bytes.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// VarIntSize returns encoded size of the compact size integer.
func VarIntSize(v uint64) int {
	switch {
	case v < uint64(varIntMarker16):
		return 1
	case v <= math.MaxUint16:
		return 3
	case v <= math.MaxUint32:
		return 5
	default:
		return 9
	}
}

// VarSliceSize returns encoded size of the length prefixed bytes.
func VarSliceSize(b []byte) int {
	return VarIntSize(uint64(len(b))) + len(b)
}

// VectorSize returns encoded size of the vector of length prefixed bytes.
func VectorSize(vector [][]byte) int {
	size := VarIntSize(uint64(len(vector)))
	for _, item := range vector {
		size += VarSliceSize(item)
	}

	return size
}
