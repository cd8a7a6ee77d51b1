// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package script

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/BoostyLabs/psbtkit/internal/bytecodec"
)

var (
	// ErrMalformedPush defines script with truncated or inconsistent push length.
	ErrMalformedPush = errors.New("malformed push")
	// ErrNotPushOnly defines script that contains non push opcodes where only pushes are allowed.
	ErrNotPushOnly = errors.New("script is not push only")
)

// Element is a decompiled script item: either an opcode or a data push.
// INFO: for pushes Opcode holds the push opcode (direct length or OP_PUSHDATA1/2/4),
// so compiling a decompiled script reproduces the original bytes.
type Element struct {
	Opcode byte
	Data   []byte
}

// Op returns non push element.
func Op(op byte) Element {
	return Element{Opcode: op}
}

// Data returns push element with the minimal push encoding of the data.
// INFO: empty data becomes OP_0 and single byte 1..16 or 0x81 becomes OP_1..OP_16 or OP_1NEGATE.
func Data(data []byte) Element {
	switch {
	case len(data) == 0:
		return Element{Opcode: OP_0}
	case len(data) == 1 && data[0] >= 1 && data[0] <= 16:
		return Element{Opcode: OP_1 + data[0] - 1}
	case len(data) == 1 && data[0] == 0x81:
		return Element{Opcode: OP_1NEGATE}
	}

	return Element{Opcode: minimalPushOpcode(len(data)), Data: data}
}

// Number returns element that pushes n as script number with the smallest encoding.
func Number(n int64) Element {
	if n == -1 {
		return Element{Opcode: OP_1NEGATE}
	}
	if n >= 0 && n <= 16 {
		op, _ := SmallIntOpcode(int(n))

		return Element{Opcode: op}
	}

	return Data(EncodeNumber(n))
}

// IsData returns true if element carries push data.
func (e Element) IsData() bool {
	return e.Opcode > OP_0 && e.Opcode <= OP_PUSHDATA4
}

// IsPush returns true if element only pushes onto the stack: data pushes, OP_0, OP_1NEGATE, OP_1..OP_16.
func (e Element) IsPush() bool {
	return e.Opcode <= OP_16 && e.Opcode != OP_RESERVED
}

// Equal returns true if elements have the same opcode and data.
func (e Element) Equal(other Element) bool {
	return e.Opcode == other.Opcode && bytes.Equal(e.Data, other.Data)
}

// minimalPushOpcode returns the smallest push opcode able to carry n bytes.
func minimalPushOpcode(n int) byte {
	switch {
	case n < int(OP_PUSHDATA1):
		return byte(n)
	case n <= math.MaxUint8:
		return OP_PUSHDATA1
	case n <= math.MaxUint16:
		return OP_PUSHDATA2
	default:
		return OP_PUSHDATA4
	}
}

// pushOpcodeFits returns true if push opcode is able to carry n bytes.
func pushOpcodeFits(op byte, n int) bool {
	switch op {
	case OP_PUSHDATA1:
		return n <= math.MaxUint8
	case OP_PUSHDATA2:
		return n <= math.MaxUint16
	case OP_PUSHDATA4:
		return uint64(n) <= math.MaxUint32
	default:
		return int(op) == n && op > OP_0 && op < OP_PUSHDATA1
	}
}

// pushSize returns compiled size of the element.
func (e Element) pushSize() int {
	if !e.IsData() {
		return 1
	}

	op := e.Opcode
	if !pushOpcodeFits(op, len(e.Data)) {
		op = minimalPushOpcode(len(e.Data))
	}

	switch op {
	case OP_PUSHDATA1:
		return 2 + len(e.Data)
	case OP_PUSHDATA2:
		return 3 + len(e.Data)
	case OP_PUSHDATA4:
		return 5 + len(e.Data)
	default:
		return 1 + len(e.Data)
	}
}

// Compile returns flat script bytes of the elements.
// INFO: push opcode of the element is kept when it is able to carry the data, otherwise the minimal one is used.
func Compile(elements []Element) []byte {
	size := 0
	for _, e := range elements {
		size += e.pushSize()
	}

	w := bytecodec.NewWriter(size)
	for _, e := range elements {
		if !e.IsData() {
			w.WriteUint8(e.Opcode)
			continue
		}

		op := e.Opcode
		if !pushOpcodeFits(op, len(e.Data)) {
			op = minimalPushOpcode(len(e.Data))
		}

		w.WriteUint8(op)
		switch op {
		case OP_PUSHDATA1:
			w.WriteUint8(uint8(len(e.Data)))
		case OP_PUSHDATA2:
			w.WriteUint16(uint16(len(e.Data)))
		case OP_PUSHDATA4:
			w.WriteUint32(uint32(len(e.Data)))
		}
		w.WriteSlice(e.Data)
	}

	return w.Bytes()
}

// Decompile returns elements of the compiled script.
// Fails with ErrMalformedPush on truncated or inconsistent push lengths.
func Decompile(script []byte) ([]Element, error) {
	var (
		r        = bytecodec.NewReader(script)
		elements = make([]Element, 0, len(script)/2+1)
	)
	for r.Remaining() > 0 {
		offset := r.Offset()
		op, _ := r.ReadUint8()

		if op == OP_0 || op > OP_PUSHDATA4 {
			elements = append(elements, Element{Opcode: op})
			continue
		}

		var (
			n   int
			err error
		)
		switch op {
		case OP_PUSHDATA1:
			var v uint8
			v, err = r.ReadUint8()
			n = int(v)
		case OP_PUSHDATA2:
			var v uint16
			v, err = r.ReadUint16()
			n = int(v)
		case OP_PUSHDATA4:
			var v uint32
			v, err = r.ReadUint32()
			if uint64(v) > uint64(r.Remaining()) {
				return nil, fmt.Errorf("%w: push of %d bytes at offset %d", ErrMalformedPush, v, offset)
			}
			n = int(v)
		default:
			n = int(op)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: truncated push length at offset %d", ErrMalformedPush, offset)
		}

		data, err := r.ReadSlice(n)
		if err != nil {
			return nil, fmt.Errorf("%w: push of %d bytes at offset %d", ErrMalformedPush, n, offset)
		}

		elements = append(elements, Element{Opcode: op, Data: data})
	}

	return elements, nil
}

// MustDecompile uses Decompile, panics in case of error.
func MustDecompile(script []byte) []Element {
	elements, err := Decompile(script)
	if err != nil {
		panic(err)
	}

	return elements
}

// IsPushOnly returns true if every element only pushes onto the stack.
func IsPushOnly(elements []Element) bool {
	for _, e := range elements {
		if !e.IsPush() {
			return false
		}
	}

	return true
}

// CountNonPushOnlyOps returns number of elements that are not pushes.
func CountNonPushOnlyOps(elements []Element) int {
	count := 0
	for _, e := range elements {
		if !e.IsPush() {
			count++
		}
	}

	return count
}

// ToStack returns stack items produced by the push only elements.
func ToStack(elements []Element) ([][]byte, error) {
	stack := make([][]byte, 0, len(elements))
	for _, e := range elements {
		switch {
		case e.IsData():
			stack = append(stack, e.Data)
		case e.Opcode == OP_0:
			stack = append(stack, []byte{})
		case e.Opcode == OP_1NEGATE:
			stack = append(stack, EncodeNumber(-1))
		case e.Opcode >= OP_1 && e.Opcode <= OP_16:
			stack = append(stack, EncodeNumber(int64(SmallIntValue(e.Opcode))))
		default:
			return nil, fmt.Errorf("%w: %s", ErrNotPushOnly, OpcodeName(e.Opcode))
		}
	}

	return stack, nil
}

// FromStack returns push elements for the stack items.
func FromStack(stack [][]byte) []Element {
	elements := make([]Element, len(stack))
	for i, item := range stack {
		elements[i] = Data(item)
	}

	return elements
}

// RemoveCodeSeparators returns the script without OP_CODESEPARATOR opcodes.
func RemoveCodeSeparators(script []byte) ([]byte, error) {
	elements, err := Decompile(script)
	if err != nil {
		return nil, err
	}

	filtered := elements[:0]
	for _, e := range elements {
		if e.Opcode != OP_CODESEPARATOR {
			filtered = append(filtered, e)
		}
	}

	return Compile(filtered), nil
}
