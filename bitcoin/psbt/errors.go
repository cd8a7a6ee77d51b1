// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidMagic defines data that does not start with psbt magic bytes.
	ErrInvalidMagic = errors.New("invalid psbt magic bytes")
	// ErrInvalidFormat defines malformed psbt.
	ErrInvalidFormat = errors.New("invalid psbt format")
	// ErrDuplicateKey defines key that occurs twice in a map.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidKey defines key with unexpected key data.
	ErrInvalidKey = errors.New("invalid key")
	// ErrInvalidValue defines value that can't be parsed for the key type.
	ErrInvalidValue = errors.New("invalid value")
	// ErrUnsupportedVersion defines psbt version other than 0.
	ErrUnsupportedVersion = errors.New("unsupported psbt version")
	// ErrUnsignedTxHasScripts defines unsigned transaction with scriptSig or witness.
	ErrUnsignedTxHasScripts = errors.New("unsigned transaction must not have scriptSig or witness")

	// ErrInputIndex defines input index out of range.
	ErrInputIndex = errors.New("input index out of range")
	// ErrOutputIndex defines output index out of range.
	ErrOutputIndex = errors.New("output index out of range")
	// ErrDuplicateInput defines input spending the outpoint already spent by another input.
	ErrDuplicateInput = errors.New("duplicate input")
	// ErrConflict defines two values of the same field that differ.
	ErrConflict = errors.New("conflicting values")
	// ErrTxMismatch defines combining of psbts with different unsigned transactions.
	ErrTxMismatch = errors.New("unsigned transactions differ")
	// ErrSignaturesCommit defines modification prevented by existing signatures.
	ErrSignaturesCommit = errors.New("existing signatures commit to the modified data")

	// ErrMissingUtxo defines input without utxo data required to compute sighash.
	ErrMissingUtxo = errors.New("missing utxo data")
	// ErrUtxoMismatch defines non witness utxo that does not match the outpoint.
	ErrUtxoMismatch = errors.New("utxo does not match outpoint")
	// ErrSigHashType defines sighash type that is not allowed for the input.
	ErrSigHashType = errors.New("sighash type is not allowed")
	// ErrScriptMismatch defines redeem or witness script that does not match the utxo script.
	ErrScriptMismatch = errors.New("script does not match utxo")
	// ErrNoMatchingKey defines signer whose key is not used by the input.
	ErrNoMatchingKey = errors.New("signer key is not used by the input")
	// ErrInputFinalized defines operation on the finalized input.
	ErrInputFinalized = errors.New("input is finalized")
	// ErrNoSignatures defines input without signatures.
	ErrNoSignatures = errors.New("no signatures")
	// ErrInvalidSignature defines signature that does not verify.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrFinalize defines finalization failure.
	ErrFinalize = errors.New("can't finalize input")
	// ErrNotFinalized defines extraction of psbt with non finalized inputs.
	ErrNotFinalized = errors.New("not all inputs are finalized")
	// ErrNegativeFee defines outputs exceeding inputs.
	ErrNegativeFee = errors.New("outputs exceed inputs")
	// ErrFeeRate defines fee rate exceeding maximum.
	ErrFeeRate = errors.New("fee rate is too high")
)

// FinalizeError describes input that can't be finalized.
type FinalizeError struct {
	Input       int
	Reason      string
	MissingKeys [][]byte
	Err         error // cause returned by the finalizer, if any.
}

// Error returns error message.
func (e *FinalizeError) Error() string {
	if len(e.MissingKeys) == 0 {
		return fmt.Sprintf("can't finalize input %d: %s", e.Input, e.Reason)
	}

	keys := make([]string, len(e.MissingKeys))
	for i, key := range e.MissingKeys {
		keys[i] = fmt.Sprintf("%x", key)
	}

	return fmt.Sprintf("can't finalize input %d: %s, missing signatures of: %s", e.Input, e.Reason, strings.Join(keys, ", "))
}

// Is implements errors.Is interface.
func (e *FinalizeError) Is(target error) bool {
	return target == ErrFinalize
}

// Unwrap returns the cause of the failure.
func (e *FinalizeError) Unwrap() error {
	return e.Err
}

// FeeRateError describes fee rate above configured maximum.
type FeeRateError struct {
	Fee     uint64 // in satoshi.
	FeeRate uint64 // in satoshi per virtual byte.
	Maximum uint64 // in satoshi per virtual byte.
}

// Error returns error message.
func (e *FeeRateError) Error() string {
	return fmt.Sprintf("fee rate %d sat/vB exceeds maximum %d sat/vB (fee %d sat)", e.FeeRate, e.Maximum, e.Fee)
}

// Is implements errors.Is interface.
func (e *FeeRateError) Is(target error) bool {
	return target == ErrFeeRate
}
