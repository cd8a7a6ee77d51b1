// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrCurveSelfCheck defines curve capability that failed known test vectors.
	ErrCurveSelfCheck = errors.New("curve capability self check failed")
	// ErrCurveIdentity defines curve capability without self-reported name or version.
	ErrCurveIdentity = errors.New("curve capability has no identity")
)

// CheckedCurve is a Curve that passed identity and test vector validation
// or was explicitly trusted by the caller.
type CheckedCurve struct {
	Curve
}

// CheckOption configures NewCheckedCurve.
type CheckOption func(*checkConfig)

type checkConfig struct {
	skipSelfCheck bool
}

// SkipSelfCheck disables test vector validation for trusted call sites.
// NOTE: identity is still required.
func SkipSelfCheck() CheckOption {
	return func(c *checkConfig) {
		c.skipSelfCheck = true
	}
}

// NewCheckedCurve validates curve capability and returns its checked wrapper.
func NewCheckedCurve(curve Curve, opts ...CheckOption) (*CheckedCurve, error) {
	var cfg checkConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if curve == nil || curve.Name() == "" || curve.Version() == "" {
		return nil, ErrCurveIdentity
	}

	if !cfg.skipSelfCheck {
		if err := selfCheck(curve); err != nil {
			return nil, errors.Join(ErrCurveSelfCheck, fmt.Errorf("%s %s: %w", curve.Name(), curve.Version(), err))
		}
	}

	return &CheckedCurve{Curve: curve}, nil
}

// MustCheckedCurve uses NewCheckedCurve, panics in case of error.
func MustCheckedCurve(curve Curve, opts ...CheckOption) *CheckedCurve {
	checked, err := NewCheckedCurve(curve, opts...)
	if err != nil {
		panic(err)
	}

	return checked
}

// DefaultCurve returns checked btcec curve.
// INFO: self check runs once per process, the result is immutable.
var DefaultCurve = sync.OnceValue(func() *CheckedCurve {
	return MustCheckedCurve(Btcec())
})

var (
	vectorOne          = mustHex("0000000000000000000000000000000000000000000000000000000000000001")
	vectorTwo          = mustHex("0000000000000000000000000000000000000000000000000000000000000002")
	vectorOrder        = mustHex("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")
	vectorOrderMinus1  = mustHex("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364140")
	vectorGenerator    = mustHex("0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	vectorGeneratorX2X = mustHex("c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5")
	vectorNotPoint     = mustHex("020000000000000000000000000000000000000000000000000000000000000000")
	vectorHash         = mustHex("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
)

// selfCheck runs curve operations against known secp256k1 vectors.
func selfCheck(curve Curve) error {
	switch {
	case !curve.IsPoint(vectorGenerator):
		return errors.New("generator is not a point")
	case curve.IsPoint(vectorNotPoint):
		return errors.New("accepted invalid point")
	case !curve.IsXOnlyPoint(vectorGenerator[1:]):
		return errors.New("generator is not an x-only point")
	case curve.IsXOnlyPoint(make([]byte, 32)):
		return errors.New("accepted zero x-only point")
	}

	g, err := curve.PointFromScalar(vectorOne, true)
	if err != nil || !bytes.Equal(g, vectorGenerator) {
		return errors.New("1*G is not the generator")
	}

	tweaked, err := curve.XOnlyPointAddTweak(vectorGenerator[1:], vectorOne)
	if err != nil || tweaked.Parity != 0 || !bytes.Equal(tweaked.XOnly, vectorGeneratorX2X) {
		return errors.New("G + 1*G is not 2*G")
	}

	if _, err = curve.XOnlyPointAddTweak(vectorGenerator[1:], vectorOrder); err == nil {
		return errors.New("accepted tweak equal to the curve order")
	}

	sum, err := curve.PrivateAdd(vectorOne, vectorOne)
	if err != nil || !bytes.Equal(sum, vectorTwo) {
		return errors.New("1 + 1 is not 2")
	}

	negated, err := curve.PrivateNegate(vectorOne)
	if err != nil || !bytes.Equal(negated, vectorOrderMinus1) {
		return errors.New("-1 is not n - 1")
	}

	sig, err := curve.SignECDSA(vectorHash, vectorTwo)
	if err != nil || len(sig) != 64 {
		return errors.New("ecdsa signing failed")
	}

	pubKey, _ := curve.PointFromScalar(vectorTwo, true)
	if !curve.VerifyECDSA(vectorHash, pubKey, sig) || curve.VerifyECDSA(vectorOne, pubKey, sig) {
		return errors.New("ecdsa verification mismatch")
	}

	schnorrSig, err := curve.SignSchnorr(vectorHash, vectorTwo)
	if err != nil || len(schnorrSig) != 64 {
		return errors.New("schnorr signing failed")
	}

	if !curve.VerifySchnorr(vectorHash, pubKey[1:], schnorrSig) || curve.VerifySchnorr(vectorOne, pubKey[1:], schnorrSig) {
		return errors.New("schnorr verification mismatch")
	}

	return nil
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}

	return b
}
