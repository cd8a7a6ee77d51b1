// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package taproot

import (
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
)

// TweakedKey defines taproot output key.
type TweakedKey struct {
	Parity byte   // 0 - even y, 1 - odd y.
	XOnly  []byte // 32 bytes.
}

// TapTweakHash returns TapTweak(pubKey || merkleRoot).
// INFO: merkleRoot may be nil for key-path only outputs.
func TapTweakHash(pubKey, merkleRoot []byte) []byte {
	return crypto.Default.TaggedHash(crypto.TagTapTweak, pubKey, merkleRoot)
}

// TweakKey returns output key for the x-only internal key and the script tree root.
// Returns None if the key is not a valid x-only point or the tweak is out of range.
func TweakKey(curve *crypto.CheckedCurve, pubKey, merkleRoot []byte) fn.Option[TweakedKey] {
	if len(pubKey) != 32 || !curve.IsXOnlyPoint(pubKey) {
		return fn.None[TweakedKey]()
	}

	tweaked, err := curve.XOnlyPointAddTweak(pubKey, TapTweakHash(pubKey, merkleRoot))
	if err != nil {
		return fn.None[TweakedKey]()
	}

	return fn.Some(TweakedKey{Parity: tweaked.Parity, XOnly: tweaked.XOnly})
}

// TweakPrivateKey returns private key of the output key for the internal private key and the tree root.
// The key is negated first when its public key has odd y.
func TweakPrivateKey(curve *crypto.CheckedCurve, privateKey, merkleRoot []byte) ([]byte, error) {
	pubKey, err := curve.PointFromScalar(privateKey, true)
	if err != nil {
		return nil, err
	}

	if pubKey[0] == 0x03 {
		if privateKey, err = curve.PrivateNegate(privateKey); err != nil {
			return nil, err
		}
	}

	return curve.PrivateAdd(privateKey, TapTweakHash(pubKey[1:], merkleRoot))
}

// XOnly returns x-only form of the 33 bytes compressed or 32 bytes x-only public key.
func XOnly(pubKey []byte) []byte {
	if len(pubKey) == 33 {
		return pubKey[1:]
	}

	return pubKey
}
