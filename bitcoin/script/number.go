// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package script

import (
	"errors"
	"fmt"
)

const (
	// DefaultNumberLength defines maximum length of numeric operands of the arithmetic opcodes.
	DefaultNumberLength = 4
	// LocktimeNumberLength defines maximum length of OP_CHECKLOCKTIMEVERIFY and OP_CHECKSEQUENCEVERIFY operands.
	LocktimeNumberLength = 5
	// maxNumberLength defines the longest script number that fits into int64.
	maxNumberLength = 8
)

var (
	// ErrNumberTooLong defines script number longer than allowed.
	ErrNumberTooLong = errors.New("script number too long")
	// ErrNonMinimalNumber defines script number with redundant padding.
	ErrNonMinimalNumber = errors.New("non-minimally encoded script number")
)

// EncodeNumber returns minimal little-endian sign-magnitude encoding of n.
// INFO: zero encodes as empty bytes, sign is the highest bit of the last byte.
func EncodeNumber(n int64) []byte {
	if n == 0 {
		return []byte{}
	}

	negative := n < 0
	magnitude := uint64(n)
	if negative {
		magnitude = uint64(-n)
	}

	result := make([]byte, 0, maxNumberLength+1)
	for magnitude > 0 {
		result = append(result, byte(magnitude&0xff))
		magnitude >>= 8
	}

	// when the highest bit is taken by the magnitude one more byte carries the sign.
	switch {
	case result[len(result)-1]&0x80 != 0 && negative:
		result = append(result, 0x80)
	case result[len(result)-1]&0x80 != 0:
		result = append(result, 0x00)
	case negative:
		result[len(result)-1] |= 0x80
	}

	return result
}

// DecodeNumber returns script number encoded in b.
// Rejects encodings longer than maxLength and, when minimal is true, encodings with redundant padding.
func DecodeNumber(b []byte, maxLength int, minimal bool) (int64, error) {
	if maxLength <= 0 || maxLength > maxNumberLength {
		maxLength = maxNumberLength
	}
	if len(b) > maxLength {
		return 0, fmt.Errorf("%w: %d bytes, max %d", ErrNumberTooLong, len(b), maxLength)
	}
	if len(b) == 0 {
		return 0, nil
	}
	if minimal && !isMinimalNumber(b) {
		return 0, fmt.Errorf("%w: %x", ErrNonMinimalNumber, b)
	}

	var result uint64
	for i, v := range b {
		result |= uint64(v) << (8 * uint(i))
	}

	signBit := uint64(0x80) << (8 * uint(len(b)-1))
	if result&signBit != 0 {
		return -int64(result &^ signBit), nil
	}

	return int64(result), nil
}

// isMinimalNumber returns false if the last byte only carries the sign while
// the previous byte has a free highest bit.
func isMinimalNumber(b []byte) bool {
	last := b[len(b)-1]
	if last&0x7f != 0 {
		return true
	}

	return len(b) > 1 && b[len(b)-2]&0x80 != 0
}
