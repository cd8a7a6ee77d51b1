// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package merkle

import (
	"errors"
)

// ErrNoValues defines merkle root requested for the empty list.
var ErrNoValues = errors.New("no values to build merkle root")

// DigestFunc hashes concatenation of the pair of nodes.
type DigestFunc func(data []byte) []byte

// FastMerkleRoot reduces values pairwise with digest until one node is left.
// INFO: on odd levels the last node is paired with itself, single value is returned as is.
func FastMerkleRoot(values [][]byte, digest DigestFunc) ([]byte, error) {
	if len(values) == 0 {
		return nil, ErrNoValues
	}

	level := make([][]byte, len(values))
	copy(level, values)

	for len(level) > 1 {
		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			left, right := level[i], level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}

			pair := make([]byte, 0, len(left)+len(right))
			pair = append(pair, left...)
			pair = append(pair, right...)
			next = append(next, digest(pair))
		}

		level = next
	}

	return level[0], nil
}
