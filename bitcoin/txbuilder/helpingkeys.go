// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/BoostyLabs/psbtkit/bitcoin/psbt"
)

var (
	// ErrUnknownInputsHelpingKey defines that inputs help keys is unknown.
	ErrUnknownInputsHelpingKey = errors.New("unknown inputs help keys")
	// ErrTooManyInputs defines input index that doesn't fit into one byte of helping data.
	ErrTooManyInputs = errors.New("too many inputs")
)

// InputsHelpingKey defines type for additional data in PSBT global unknowns
// to distinguish input types and their indexes.
// INFO: key is one byte, value is a list of one byte input indexes.
type InputsHelpingKey byte

const (
	// TaprootInputsHelpingKey defines key for taproot inputs.
	TaprootInputsHelpingKey InputsHelpingKey = 0x10
	// PaymentInputsHelpingKey defines key for payment (btc) inputs.
	PaymentInputsHelpingKey InputsHelpingKey = 0x20
	// FeePayerTaprootInputsHelpingKey defines key for taproot inputs for fee payer.
	FeePayerTaprootInputsHelpingKey InputsHelpingKey = 0x11
	// FeePayerPaymentInputsHelpingKey defines key for payment (btc) inputs for fee payer.
	FeePayerPaymentInputsHelpingKey InputsHelpingKey = 0x21
)

// InputsHelpingKeyFromBytes parses bytes array into InputsHelpingKey if any.
func InputsHelpingKeyFromBytes(b []byte) (InputsHelpingKey, error) {
	if len(b) != 1 {
		return 0, ErrUnknownInputsHelpingKey
	}

	switch key := InputsHelpingKey(b[0]); key {
	case TaprootInputsHelpingKey, PaymentInputsHelpingKey, FeePayerTaprootInputsHelpingKey, FeePayerPaymentInputsHelpingKey:
		return key, nil
	}

	return 0, ErrUnknownInputsHelpingKey
}

// Byte returns InputsHelpingKey as byte.
func (k InputsHelpingKey) Byte() byte {
	return byte(k)
}

// Bytes returns InputsHelpingKey as bytes array.
func (k InputsHelpingKey) Bytes() []byte {
	return []byte{byte(k)}
}

// helpingUnknowns encodes input index groups as psbt global unknowns sorted by key.
func helpingUnknowns(groups map[InputsHelpingKey][]int) ([]psbt.Unknown, error) {
	keys := make([]InputsHelpingKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	unknowns := make([]psbt.Unknown, 0, len(keys))
	for _, key := range keys {
		value := make([]byte, len(groups[key]))
		for i, index := range groups[key] {
			if index > math.MaxUint8 {
				return nil, fmt.Errorf("%w: input %d", ErrTooManyInputs, index)
			}

			value[i] = byte(index)
		}

		unknowns = append(unknowns, psbt.Unknown{Key: key.Bytes(), Value: value})
	}

	return unknowns, nil
}
