// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package merkle_test

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/psbtkit/bitcoin/merkle"
)

func TestFastMerkleRoot(t *testing.T) {
	a, b, c := chainhash.HashB([]byte("a")), chainhash.HashB([]byte("b")), chainhash.HashB([]byte("c"))

	concat := func(values ...[]byte) []byte {
		var result []byte
		for _, v := range values {
			result = append(result, v...)
		}

		return result
	}

	t.Run("single", func(t *testing.T) {
		root, err := merkle.FastMerkleRoot([][]byte{a}, chainhash.DoubleHashB)
		require.NoError(t, err)
		require.Equal(t, a, root)
	})

	t.Run("pair", func(t *testing.T) {
		root, err := merkle.FastMerkleRoot([][]byte{a, b}, chainhash.DoubleHashB)
		require.NoError(t, err)
		require.Equal(t, chainhash.DoubleHashB(concat(a, b)), root)
	})

	t.Run("odd level duplicates last", func(t *testing.T) {
		values := [][]byte{a, b, c}
		root, err := merkle.FastMerkleRoot(values, chainhash.DoubleHashB)
		require.NoError(t, err)

		ab := chainhash.DoubleHashB(concat(a, b))
		cc := chainhash.DoubleHashB(concat(c, c))
		require.Equal(t, chainhash.DoubleHashB(concat(ab, cc)), root)
		require.Equal(t, [][]byte{a, b, c}, values)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := merkle.FastMerkleRoot(nil, chainhash.DoubleHashB)
		require.ErrorIs(t, err, merkle.ErrNoValues)
	})
}
