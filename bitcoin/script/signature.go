// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package script

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

const (
	// sigHashAnyoneCanPay defines ANYONECANPAY modifier bit of the hash type.
	sigHashAnyoneCanPay byte = 0x80

	// SchnorrSignatureLen defines BIP340 signature length without hash type.
	SchnorrSignatureLen = 64
)

var (
	// ErrInvalidHashType defines hash type outside of the defined set.
	ErrInvalidHashType = errors.New("invalid hash type")
	// ErrInvalidSignature defines signature with the wrong length or not strict DER encoding.
	ErrInvalidSignature = errors.New("invalid signature encoding")
)

// ScriptSignature is a signature as it is pushed in scripts and witnesses.
type ScriptSignature struct {
	Signature []byte // 64 bytes: r || s for ECDSA, BIP340 signature for Schnorr.
	HashType  byte
}

// IsCanonicalPubKey returns true if p has compressed or uncompressed point shape.
// NOTE: curve membership is not verified.
func IsCanonicalPubKey(p []byte) bool {
	switch len(p) {
	case 33:
		return p[0] == 0x02 || p[0] == 0x03
	case 65:
		return p[0] == 0x04
	default:
		return false
	}
}

// IsDefinedHashType returns true for ALL, NONE, SINGLE with optional ANYONECANPAY.
func IsDefinedHashType(hashType byte) bool {
	base := hashType &^ sigHashAnyoneCanPay

	return base > 0x00 && base < 0x04
}

// IsDefinedTaprootHashType returns true for DEFAULT and the defined legacy hash types.
func IsDefinedTaprootHashType(hashType byte) bool {
	return hashType == 0x00 || IsDefinedHashType(hashType)
}

// IsCanonicalScriptSignature returns true if sig is strict DER followed by the defined hash type.
func IsCanonicalScriptSignature(sig []byte) bool {
	if len(sig) == 0 || !IsDefinedHashType(sig[len(sig)-1]) {
		return false
	}

	return checkDER(sig[:len(sig)-1]) == nil
}

// EncodeSignature returns strict DER of 64 bytes r || s signature followed by the hash type.
func EncodeSignature(signature []byte, hashType byte) ([]byte, error) {
	if !IsDefinedHashType(hashType) {
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidHashType, hashType)
	}
	if len(signature) != 64 {
		return nil, fmt.Errorf("%w: %d bytes instead of 64", ErrInvalidSignature, len(signature))
	}

	var r, s btcec.ModNScalar
	if r.SetByteSlice(signature[:32]) || s.SetByteSlice(signature[32:]) {
		return nil, fmt.Errorf("%w: component out of the curve order", ErrInvalidSignature)
	}
	if r.IsZero() || s.IsZero() {
		return nil, fmt.Errorf("%w: zero component", ErrInvalidSignature)
	}

	// NOTE: S is serialized in its low form.
	der := ecdsa.NewSignature(&r, &s).Serialize()

	return append(der, hashType), nil
}

// DecodeSignature parses strict DER signature followed by the hash type.
func DecodeSignature(b []byte) (ScriptSignature, error) {
	if len(b) == 0 {
		return ScriptSignature{}, fmt.Errorf("%w: empty", ErrInvalidSignature)
	}

	hashType := b[len(b)-1]
	if !IsDefinedHashType(hashType) {
		return ScriptSignature{}, fmt.Errorf("%w: 0x%02x", ErrInvalidHashType, hashType)
	}

	der := b[:len(b)-1]
	if err := checkDER(der); err != nil {
		return ScriptSignature{}, err
	}

	parsed, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return ScriptSignature{}, errors.Join(ErrInvalidSignature, err)
	}

	r, s := parsed.R(), parsed.S()
	signature := make([]byte, 64)
	r.PutBytesUnchecked(signature[:32])
	s.PutBytesUnchecked(signature[32:])

	return ScriptSignature{Signature: signature, HashType: hashType}, nil
}

// EncodeSchnorrSignature returns BIP340 signature with the hash type appended unless it is DEFAULT.
func EncodeSchnorrSignature(signature []byte, hashType byte) ([]byte, error) {
	if !IsDefinedTaprootHashType(hashType) {
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidHashType, hashType)
	}
	if len(signature) != SchnorrSignatureLen {
		return nil, fmt.Errorf("%w: %d bytes instead of 64", ErrInvalidSignature, len(signature))
	}

	if hashType == 0x00 {
		return bytes.Clone(signature), nil
	}

	return append(bytes.Clone(signature), hashType), nil
}

// DecodeSchnorrSignature parses 64 bytes signature or 65 bytes signature with explicit non DEFAULT hash type.
func DecodeSchnorrSignature(b []byte) (ScriptSignature, error) {
	switch len(b) {
	case SchnorrSignatureLen:
		return ScriptSignature{Signature: b, HashType: 0x00}, nil
	case SchnorrSignatureLen + 1:
		hashType := b[SchnorrSignatureLen]
		if hashType == 0x00 || !IsDefinedHashType(hashType) {
			return ScriptSignature{}, fmt.Errorf("%w: 0x%02x", ErrInvalidHashType, hashType)
		}

		return ScriptSignature{Signature: b[:SchnorrSignatureLen], HashType: hashType}, nil
	default:
		return ScriptSignature{}, fmt.Errorf("%w: %d bytes schnorr signature", ErrInvalidSignature, len(b))
	}
}

// checkDER validates BIP66 strict DER signature without the hash type.
// INFO: Format: 0x30 [total-length] 0x02 [R-length] [R] 0x02 [S-length] [S].
func checkDER(sig []byte) error {
	fail := func(reason string) error {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, reason)
	}

	if len(sig) < 8 {
		return fail("too short")
	}
	if len(sig) > 72 {
		return fail("too long")
	}
	if sig[0] != 0x30 {
		return fail("wrong sequence tag")
	}
	if int(sig[1]) != len(sig)-2 {
		return fail("wrong sequence length")
	}
	if sig[2] != 0x02 {
		return fail("wrong R tag")
	}

	lenR := int(sig[3])
	switch {
	case lenR == 0:
		return fail("zero length R")
	case 5+lenR >= len(sig):
		return fail("R overflows signature")
	case sig[4]&0x80 != 0:
		return fail("negative R")
	case lenR > 1 && sig[4] == 0x00 && sig[5]&0x80 == 0:
		return fail("R has excessive padding")
	}

	if sig[4+lenR] != 0x02 {
		return fail("wrong S tag")
	}

	lenS := int(sig[5+lenR])
	switch {
	case lenS == 0:
		return fail("zero length S")
	case 6+lenR+lenS != len(sig):
		return fail("wrong S length")
	case sig[6+lenR]&0x80 != 0:
		return fail("negative S")
	case lenS > 1 && sig[6+lenR] == 0x00 && sig[7+lenR]&0x80 == 0:
		return fail("S has excessive padding")
	}

	return nil
}
