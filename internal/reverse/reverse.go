// Copyright (C) 2022 Creditor Corp. Group.
// See LICENSE for copying information.

package reverse

import (
	"bytes"
)

// Bytes reverses value in place and returns it.
func Bytes(value []byte) []byte {
	for i, j := 0, len(value)-1; i < j; i, j = i+1, j-1 {
		value[i], value[j] = value[j], value[i]
	}

	return value
}

// Copy returns reversed copy of value, value itself is left untouched.
// INFO: used for hashes that are displayed in reversed byte order, e.g. txid.
func Copy(value []byte) []byte {
	return Bytes(bytes.Clone(value))
}
