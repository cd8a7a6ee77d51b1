// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package crypto

import (
	"crypto/sha1" // #nosec G505 -- OP_SHA1 is part of the bitcoin script language.

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // bitcoin consensus requires RIPEMD-160.
)

const (
	// TagTapLeaf defines BIP341 tag for leaf hashes.
	TagTapLeaf = "TapLeaf"
	// TagTapBranch defines BIP341 tag for branch hashes.
	TagTapBranch = "TapBranch"
	// TagTapTweak defines BIP341 tag for key tweaks.
	TagTapTweak = "TapTweak"
	// TagTapSighash defines BIP341 tag for signature hashes.
	TagTapSighash = "TapSighash"
)

// Digest defines raw hash primitives capability.
// Implementations must be pure functions.
type Digest interface {
	SHA256(data []byte) []byte
	SHA1(data []byte) []byte
	RIPEMD160(data []byte) []byte
}

// StdDigest implements Digest over chainhash and x/crypto primitives.
type StdDigest struct{}

// SHA256 returns sha256 of the data.
func (StdDigest) SHA256(data []byte) []byte {
	return chainhash.HashB(data)
}

// SHA1 returns sha1 of the data.
func (StdDigest) SHA1(data []byte) []byte {
	sum := sha1.Sum(data) // #nosec G401

	return sum[:]
}

// RIPEMD160 returns ripemd160 of the data.
func (StdDigest) RIPEMD160(data []byte) []byte {
	h := ripemd160.New()
	_, _ = h.Write(data)

	return h.Sum(nil)
}

// Hasher provides hash compositions used across bitcoin over the Digest capability.
type Hasher struct {
	digest Digest
}

// Default is the hasher over StdDigest.
var Default = NewHasher(StdDigest{})

// NewHasher is a constructor for Hasher.
func NewHasher(digest Digest) Hasher {
	return Hasher{digest: digest}
}

// SHA256 returns single sha256 of the data.
func (h Hasher) SHA256(data []byte) []byte {
	return h.digest.SHA256(data)
}

// SHA1 returns sha1 of the data.
func (h Hasher) SHA1(data []byte) []byte {
	return h.digest.SHA1(data)
}

// RIPEMD160 returns ripemd160 of the data.
func (h Hasher) RIPEMD160(data []byte) []byte {
	return h.digest.RIPEMD160(data)
}

// Hash160 returns ripemd160(sha256(data)).
func (h Hasher) Hash160(data []byte) []byte {
	return h.digest.RIPEMD160(h.digest.SHA256(data))
}

// Hash256 returns sha256(sha256(data)).
func (h Hasher) Hash256(data []byte) []byte {
	return h.digest.SHA256(h.digest.SHA256(data))
}

// TaggedHash returns BIP340 tagged hash: sha256(sha256(tag) || sha256(tag) || msgs...).
func (h Hasher) TaggedHash(tag string, msgs ...[]byte) []byte {
	tagHash := h.digest.SHA256([]byte(tag))

	size := 2 * len(tagHash)
	for _, msg := range msgs {
		size += len(msg)
	}

	preimage := make([]byte, 0, size)
	preimage = append(preimage, tagHash...)
	preimage = append(preimage, tagHash...)
	for _, msg := range msgs {
		preimage = append(preimage, msg...)
	}

	return h.digest.SHA256(preimage)
}
