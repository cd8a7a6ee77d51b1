// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package sequencereader_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/psbtkit/internal/sequencereader"
)

func TestSequenceReader(t *testing.T) {
	tokens := strings.Fields("OP_DUP OP_HASH160 89abcdefabbaabbaabbaabbaabbaabbaabbaabba OP_EQUALVERIFY")

	t.Run("HasNext", func(t *testing.T) {
		sr := sequencereader.New(tokens)
		require.True(t, sr.HasNext())

		_, _ = sr.Next()
		_, _ = sr.Next()
		_, _ = sr.Next()
		require.True(t, sr.HasNext())

		_, _ = sr.Next()
		require.False(t, sr.HasNext())
	})

	t.Run("Next", func(t *testing.T) {
		sr := sequencereader.New(tokens)
		for i, expected := range tokens {
			require.Equal(t, i, sr.Position())

			val, err := sr.Next()
			require.NoError(t, err)
			require.Equal(t, expected, val)
		}

		_, err := sr.Next()
		require.ErrorIs(t, err, sequencereader.ErrSequenceEnded)
	})

	t.Run("Len", func(t *testing.T) {
		sr := sequencereader.New(tokens)
		for left := len(tokens); left > 0; left-- {
			require.Equal(t, left, sr.Len())
			_, _ = sr.Next()
		}

		require.Zero(t, sr.Len())
		require.False(t, sr.HasNext())
	})

	t.Run("empty", func(t *testing.T) {
		sr := sequencereader.New[byte](nil)
		require.False(t, sr.HasNext())
		require.Zero(t, sr.Len())

		val, err := sr.Next()
		require.ErrorIs(t, err, sequencereader.ErrSequenceEnded)
		require.Zero(t, val)
	})
}
