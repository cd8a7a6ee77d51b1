// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"errors"
	"math/big"
)

var (
	// ErrInsufficientNativeBalance defines utxos that can't cover requested amount.
	ErrInsufficientNativeBalance = errors.New("insufficient native balance")
	// ErrInvalidUTXOAmount defines request for more utxos than available.
	ErrInvalidUTXOAmount = errors.New("invalid utxo amount")
)

// UTXO describes unspent transaction output data.
type UTXO struct {
	TxHash  string   // transaction id in display byte order.
	Index   uint32   // output index in transaction outputs.
	Amount  *big.Int // in Satoshi.
	Script  []byte   // ScriptPubKey.
	Address string   // output recipient address.
	RawTx   []byte   // serialized transaction, required to spend legacy outputs.
}
