// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/psbt"
	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
)

// ErrInvalidPrivateKey defines private key outside of the curve order.
var ErrInvalidPrivateKey = errors.New("invalid private key")

var _ psbt.TweakableSigner = (*KeySigner)(nil)

// KeySigner signs with a single private key through the checked curve.
type KeySigner struct {
	curve      *crypto.CheckedCurve
	privateKey []byte
	publicKey  []byte
}

// NewKeySigner is a constructor for KeySigner, nil curve stands for crypto.DefaultCurve.
func NewKeySigner(privateKey []byte, curve *crypto.CheckedCurve) (*KeySigner, error) {
	if curve == nil {
		curve = crypto.DefaultCurve()
	}

	publicKey, err := curve.PointFromScalar(privateKey, true)
	if err != nil {
		return nil, errors.Join(ErrInvalidPrivateKey, err)
	}

	return &KeySigner{
		curve:      curve,
		privateKey: bytes.Clone(privateKey),
		publicKey:  publicKey,
	}, nil
}

// NewKeySignerFromBtcec returns KeySigner of the btcec private key.
func NewKeySignerFromBtcec(privateKey *btcec.PrivateKey) (*KeySigner, error) {
	return NewKeySigner(privateKey.Serialize(), nil)
}

// PublicKey returns compressed public key.
func (s *KeySigner) PublicKey() []byte {
	return bytes.Clone(s.publicKey)
}

// XOnlyPublicKey returns x-only public key.
func (s *KeySigner) XOnlyPublicKey() []byte {
	return taproot.XOnly(s.PublicKey())
}

// Sign returns 64 bytes r || s ECDSA signature.
func (s *KeySigner) Sign(hash []byte) ([]byte, error) {
	return s.curve.SignECDSA(hash, s.privateKey)
}

// SignSchnorr returns BIP340 signature.
func (s *KeySigner) SignSchnorr(hash []byte) ([]byte, error) {
	return s.curve.SignSchnorr(hash, s.privateKey)
}

// Tweak returns signer of the taproot output key with the merkle root, nil root for key path only outputs.
func (s *KeySigner) Tweak(merkleRoot []byte) (psbt.Signer, error) {
	tweaked, err := taproot.TweakPrivateKey(s.curve, s.privateKey, merkleRoot)
	if err != nil {
		return nil, err
	}

	return NewKeySigner(tweaked, s.curve)
}
