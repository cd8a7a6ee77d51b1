// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package crypto

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

var (
	// ErrInvalidTweak defines tweak that is out of the curve order or produces point at infinity.
	ErrInvalidTweak = errors.New("invalid tweak")
	// ErrInvalidPrivateKey defines private key out of the curve order or zero.
	ErrInvalidPrivateKey = errors.New("invalid private key")
	// ErrInvalidPoint defines bytes that do not encode a valid curve point.
	ErrInvalidPoint = errors.New("invalid point")
)

const (
	// pubKeyBytesLenUncompressed is the length of 0x04 || x || y point encoding.
	pubKeyBytesLenUncompressed = 65
	// pubKeyFormatCompressedEven is the compressed point prefix for even y.
	pubKeyFormatCompressedEven byte = 0x02
)

// XOnlyTweakResult defines x-only point tweak result.
type XOnlyTweakResult struct {
	Parity byte   // 0 - even y, 1 - odd y.
	XOnly  []byte // 32 bytes.
}

// Curve defines secp256k1 operations capability.
// INFO: implementations are treated as a trust boundary, wrap them with NewCheckedCurve before use.
type Curve interface {
	// Name returns implementation identity.
	Name() string
	// Version returns implementation version.
	Version() string

	// IsPoint returns true if p is a valid compressed or uncompressed point.
	IsPoint(p []byte) bool
	// IsXOnlyPoint returns true if p is a valid 32 bytes x-only point.
	IsXOnlyPoint(p []byte) bool
	// XOnlyPointAddTweak returns p + tweak*G, fails with ErrInvalidTweak.
	XOnlyPointAddTweak(p, tweak []byte) (XOnlyTweakResult, error)
	// PointFromScalar returns d*G serialized.
	PointFromScalar(d []byte, compressed bool) ([]byte, error)
	// PrivateAdd returns d + tweak mod n.
	PrivateAdd(d, tweak []byte) ([]byte, error)
	// PrivateNegate returns n - d.
	PrivateNegate(d []byte) ([]byte, error)

	// SignECDSA returns 64 bytes compact r || s signature with low s.
	SignECDSA(hash, d []byte) ([]byte, error)
	// VerifyECDSA verifies 64 bytes compact r || s signature.
	VerifyECDSA(hash, pubKey, sig []byte) bool
	// SignSchnorr returns 64 bytes BIP340 signature.
	SignSchnorr(hash, d []byte) ([]byte, error)
	// VerifySchnorr verifies BIP340 signature against x-only public key.
	VerifySchnorr(hash, xOnlyPubKey, sig []byte) bool
}

// btcecCurve implements Curve over btcec/v2.
type btcecCurve struct{}

// Btcec returns Curve implemented with github.com/btcsuite/btcd/btcec/v2.
func Btcec() Curve {
	return btcecCurve{}
}

// Name returns implementation identity.
func (btcecCurve) Name() string {
	return "btcec"
}

// Version returns implementation version.
func (btcecCurve) Version() string {
	return "v2"
}

// IsPoint returns true if p is a valid compressed or uncompressed point.
func (btcecCurve) IsPoint(p []byte) bool {
	if len(p) != btcec.PubKeyBytesLenCompressed && len(p) != pubKeyBytesLenUncompressed {
		return false
	}

	_, err := btcec.ParsePubKey(p)

	return err == nil
}

// IsXOnlyPoint returns true if p is a valid 32 bytes x-only point.
func (btcecCurve) IsXOnlyPoint(p []byte) bool {
	if len(p) != schnorr.PubKeyBytesLen {
		return false
	}

	_, err := schnorr.ParsePubKey(p)

	return err == nil
}

// XOnlyPointAddTweak returns p + tweak*G.
func (btcecCurve) XOnlyPointAddTweak(p, tweak []byte) (XOnlyTweakResult, error) {
	pubKey, err := schnorr.ParsePubKey(p)
	if err != nil {
		return XOnlyTweakResult{}, errors.Join(ErrInvalidPoint, err)
	}

	var tweakScalar btcec.ModNScalar
	if len(tweak) != 32 || tweakScalar.SetByteSlice(tweak) {
		return XOnlyTweakResult{}, ErrInvalidTweak
	}

	var point, tweakPoint, result btcec.JacobianPoint
	pubKey.AsJacobian(&point)
	btcec.ScalarBaseMultNonConst(&tweakScalar, &tweakPoint)
	btcec.AddNonConst(&point, &tweakPoint, &result)

	result.Z.Normalize()
	if result.Z.IsZero() {
		return XOnlyTweakResult{}, ErrInvalidTweak
	}

	result.ToAffine()
	tweaked := btcec.NewPublicKey(&result.X, &result.Y).SerializeCompressed()

	return XOnlyTweakResult{
		Parity: tweaked[0] - pubKeyFormatCompressedEven,
		XOnly:  tweaked[1:],
	}, nil
}

// PointFromScalar returns d*G serialized.
func (btcecCurve) PointFromScalar(d []byte, compressed bool) ([]byte, error) {
	privKey, err := parsePrivateKey(d)
	if err != nil {
		return nil, err
	}

	if compressed {
		return privKey.PubKey().SerializeCompressed(), nil
	}

	return privKey.PubKey().SerializeUncompressed(), nil
}

// PrivateAdd returns d + tweak mod n.
func (btcecCurve) PrivateAdd(d, tweak []byte) ([]byte, error) {
	privKey, err := parsePrivateKey(d)
	if err != nil {
		return nil, err
	}

	var tweakScalar btcec.ModNScalar
	if len(tweak) != 32 || tweakScalar.SetByteSlice(tweak) {
		return nil, ErrInvalidTweak
	}

	sum := privKey.Key
	sum.Add(&tweakScalar)
	if sum.IsZero() {
		return nil, ErrInvalidTweak
	}

	b := sum.Bytes()

	return b[:], nil
}

// PrivateNegate returns n - d.
func (btcecCurve) PrivateNegate(d []byte) ([]byte, error) {
	privKey, err := parsePrivateKey(d)
	if err != nil {
		return nil, err
	}

	negated := privKey.Key
	negated.Negate()
	b := negated.Bytes()

	return b[:], nil
}

// SignECDSA returns 64 bytes compact r || s signature.
func (btcecCurve) SignECDSA(hash, d []byte) ([]byte, error) {
	privKey, err := parsePrivateKey(d)
	if err != nil {
		return nil, err
	}

	// INFO: compact signature is [recovery code] + r + s.
	compact := ecdsa.SignCompact(privKey, hash, true)

	return compact[1:], nil
}

// VerifyECDSA verifies 64 bytes compact r || s signature.
func (btcecCurve) VerifyECDSA(hash, pubKey, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}

	key, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return false
	}

	var r, s btcec.ModNScalar
	if r.SetByteSlice(sig[:32]) || s.SetByteSlice(sig[32:]) || r.IsZero() || s.IsZero() {
		return false
	}

	return ecdsa.NewSignature(&r, &s).Verify(hash, key)
}

// SignSchnorr returns 64 bytes BIP340 signature.
func (btcecCurve) SignSchnorr(hash, d []byte) ([]byte, error) {
	privKey, err := parsePrivateKey(d)
	if err != nil {
		return nil, err
	}

	sig, err := schnorr.Sign(privKey, hash)
	if err != nil {
		return nil, err
	}

	return sig.Serialize(), nil
}

// VerifySchnorr verifies BIP340 signature against x-only public key.
func (btcecCurve) VerifySchnorr(hash, xOnlyPubKey, sig []byte) bool {
	key, err := schnorr.ParsePubKey(xOnlyPubKey)
	if err != nil {
		return false
	}

	signature, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}

	return signature.Verify(hash, key)
}

// parsePrivateKey returns private key for 32 bytes scalar in range [1; n).
func parsePrivateKey(d []byte) (*btcec.PrivateKey, error) {
	var scalar btcec.ModNScalar
	if len(d) != btcec.PrivKeyBytesLen || scalar.SetByteSlice(d) || scalar.IsZero() {
		return nil, ErrInvalidPrivateKey
	}

	return btcec.PrivKeyFromScalar(&scalar), nil
}
