// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/psbt"
)

var (
	// ErrInvalidDerivationPath defines path that is not m/i/i'/... .
	ErrInvalidDerivationPath = errors.New("invalid derivation path")
	// ErrPublicExtendedKey defines extended key without private part.
	ErrPublicExtendedKey = errors.New("extended key is public")
)

var _ psbt.HDSigner = (*HDSigner)(nil)

// HDSigner derives KeySigner instances from BIP32 master key.
type HDSigner struct {
	master      *hdkeychain.ExtendedKey
	fingerprint uint32
	curve       *crypto.CheckedCurve
}

// NewHDSigner returns HDSigner of the master key generated from the seed.
func NewHDSigner(seed []byte, network *chaincfg.Params, curve *crypto.CheckedCurve) (*HDSigner, error) {
	master, err := hdkeychain.NewMaster(seed, network)
	if err != nil {
		return nil, err
	}

	return NewHDSignerFromKey(master, curve)
}

// NewHDSignerFromString returns HDSigner of the base58 encoded extended private key.
func NewHDSignerFromString(key string, curve *crypto.CheckedCurve) (*HDSigner, error) {
	master, err := hdkeychain.NewKeyFromString(key)
	if err != nil {
		return nil, err
	}

	return NewHDSignerFromKey(master, curve)
}

// NewHDSignerFromKey returns HDSigner of the extended private key.
func NewHDSignerFromKey(master *hdkeychain.ExtendedKey, curve *crypto.CheckedCurve) (*HDSigner, error) {
	if !master.IsPrivate() {
		return nil, ErrPublicExtendedKey
	}
	if curve == nil {
		curve = crypto.DefaultCurve()
	}

	publicKey, err := master.ECPubKey()
	if err != nil {
		return nil, err
	}

	return &HDSigner{
		master:      master,
		fingerprint: binary.LittleEndian.Uint32(crypto.Default.Hash160(publicKey.SerializeCompressed())[:4]),
		curve:       curve,
	}, nil
}

// Fingerprint returns master key fingerprint in the byte order of psbt key origins.
func (s *HDSigner) Fingerprint() uint32 {
	return s.fingerprint
}

// DerivePath returns signer of the child key.
func (s *HDSigner) DerivePath(path []uint32) (psbt.Signer, error) {
	key := s.master
	for _, index := range path {
		var err error
		if key, err = key.Derive(index); err != nil {
			return nil, err
		}
	}

	privateKey, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}

	return NewKeySigner(privateKey.Serialize(), s.curve)
}

// ParseDerivationPath parses path in m/84'/0'/0'/0/1 form, h and H mark hardened indexes as well.
func ParseDerivationPath(path string) ([]uint32, error) {
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDerivationPath, path)
	}

	indexes := make([]uint32, 0, len(parts)-1)
	for _, part := range parts[1:] {
		var hardened bool
		if trimmed := strings.TrimRight(part, "'hH"); len(trimmed) == len(part)-1 {
			part, hardened = trimmed, true
		}

		index, err := strconv.ParseUint(part, 10, 32)
		if err != nil || index >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDerivationPath, path)
		}
		if hardened {
			index += hdkeychain.HardenedKeyStart
		}

		indexes = append(indexes, uint32(index))
	}

	return indexes, nil
}
