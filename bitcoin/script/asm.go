// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package script

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/txscript"

	"github.com/BoostyLabs/psbtkit/internal/sequencereader"
)

// ErrInvalidASM defines ASM text that can not be parsed into script.
var ErrInvalidASM = errors.New("invalid asm")

// ToASM returns human-readable representation of the elements.
// INFO: data pushes are rendered as lowercase hex, OP_0 and OP_1..OP_16 as decimal numbers.
// Pushes that are the smallest encoding of a 4 bytes script number are rendered as decimal too,
// hex that would read as a decimal number gets the 0x prefix.
func ToASM(elements []Element) string {
	tokens := make([]string, len(elements))
	for i, e := range elements {
		switch {
		case e.IsData():
			tokens[i] = dataToken(e)
		case IsSmallInt(e.Opcode):
			tokens[i] = strconv.Itoa(SmallIntValue(e.Opcode))
		default:
			tokens[i] = OpcodeName(e.Opcode)
		}
	}

	return strings.Join(tokens, " ")
}

// ScriptToASM decompiles the script and returns its ASM.
func ScriptToASM(script []byte) (string, error) {
	elements, err := Decompile(script)
	if err != nil {
		return "", err
	}

	return ToASM(elements), nil
}

// FromASM parses ASM into elements.
// Tokens are read in order: decimal script numbers, opcode mnemonics, then hex data pushes.
// NOTE: hex pushes are taken as written, "05" is a one byte push and not OP_5.
func FromASM(asm string) ([]Element, error) {
	var (
		tokens   = sequencereader.New(strings.Fields(asm))
		elements = make([]Element, 0, tokens.Len())
	)
	for tokens.HasNext() {
		token, err := tokens.Next()
		if err != nil {
			return nil, err
		}

		element, err := parseToken(token)
		if err != nil {
			return nil, err
		}

		elements = append(elements, element)
	}

	return elements, nil
}

// ASMToScript parses ASM and compiles it.
func ASMToScript(asm string) ([]byte, error) {
	elements, err := FromASM(asm)
	if err != nil {
		return nil, err
	}

	return Compile(elements), nil
}

// parseToken returns element for a single ASM token.
func parseToken(token string) (Element, error) {
	if n, ok := parseDecimal(token); ok {
		if n > math.MaxInt32 || n < -math.MaxInt32 {
			return Element{}, fmt.Errorf("%w: number %s out of range", ErrInvalidASM, token)
		}

		return Number(n), nil
	}

	if op, ok := opcodesByName[token]; ok {
		return opcodeElement(token, op)
	}

	// aliases such as OP_FALSE, OP_TRUE, OP_NOP2 and OP_UNKNOWN<n>.
	if op, ok := txscript.OpcodeByName[token]; ok {
		return opcodeElement(token, op)
	}

	if strings.HasPrefix(token, "OP_") {
		return Element{}, fmt.Errorf("%w: unknown opcode %q", ErrInvalidASM, token)
	}

	data, err := hex.DecodeString(strings.TrimPrefix(token, "0x"))
	if err != nil {
		return Element{}, errors.Join(fmt.Errorf("%w: token %q", ErrInvalidASM, token), err)
	}
	if len(data) == 0 {
		return Element{}, fmt.Errorf("%w: empty push %q", ErrInvalidASM, token)
	}

	return Element{Opcode: minimalPushOpcode(len(data)), Data: data}, nil
}

// dataToken renders push as decimal if parsing the decimal back gives the same element.
func dataToken(e Element) string {
	if len(e.Data) <= DefaultNumberLength {
		if n, err := DecodeNumber(e.Data, DefaultNumberLength, true); err == nil && Number(n).Equal(e) {
			return strconv.FormatInt(n, 10)
		}
	}

	token := hex.EncodeToString(e.Data)
	if _, ok := parseDecimal(token); ok {
		return "0x" + token
	}

	return token
}

// parseDecimal returns number if token is its canonical decimal form.
func parseDecimal(token string) (int64, bool) {
	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil || strconv.FormatInt(n, 10) != token {
		return 0, false
	}

	return n, true
}

// opcodeElement rejects push opcodes written without their data.
func opcodeElement(token string, op byte) (Element, error) {
	if op > OP_0 && op <= OP_PUSHDATA4 {
		return Element{}, fmt.Errorf("%w: push opcode %q without data", ErrInvalidASM, token)
	}

	return Element{Opcode: op}, nil
}
