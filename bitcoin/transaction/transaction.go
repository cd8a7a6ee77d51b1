// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package transaction

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/BoostyLabs/psbtkit/internal/reverse"
)

const (
	// DefaultVersion defines version of the newly created transactions.
	DefaultVersion int32 = 2
	// DefaultSequence defines final sequence of the input.
	DefaultSequence uint32 = 0xffffffff
	// MaxMoney defines maximum amount of satoshis: 21 000 000 BTC.
	MaxMoney uint64 = 21_000_000 * 100_000_000
	// WitnessScaleFactor defines weight of the non witness byte.
	WitnessScaleFactor = 4
)

var (
	// ErrValueOutOfRange defines output value above MaxMoney.
	ErrValueOutOfRange = errors.New("output value out of range")
	// ErrInvalidTxID defines text that is not 32 bytes hex.
	ErrInvalidTxID = errors.New("invalid transaction id")
)

// Input defines transaction input.
// INFO: Hash is the previous transaction hash in internal byte order, TxID is its reversed display form.
type Input struct {
	Hash     chainhash.Hash
	Index    uint32
	Script   []byte
	Sequence uint32
	Witness  [][]byte
}

// TxID returns display hex of the spent transaction.
func (in *Input) TxID() string {
	return TxIDFromHash(in.Hash)
}

// Output defines transaction output.
type Output struct {
	Value  uint64
	Script []byte
}

// Validate returns ErrValueOutOfRange for values above MaxMoney.
func (out *Output) Validate() error {
	if out.Value > MaxMoney {
		return fmt.Errorf("%w: %d", ErrValueOutOfRange, out.Value)
	}

	return nil
}

// Transaction defines bitcoin transaction.
type Transaction struct {
	Version  int32
	Inputs   []Input
	Outputs  []Output
	Locktime uint32
}

// New is a constructor for Transaction.
func New() *Transaction {
	return &Transaction{Version: DefaultVersion}
}

// AddInput appends input spending hash:index, returns its index.
func (tx *Transaction) AddInput(hash chainhash.Hash, index uint32, sequence uint32, script []byte) int {
	tx.Inputs = append(tx.Inputs, Input{
		Hash:     hash,
		Index:    index,
		Script:   script,
		Sequence: sequence,
	})

	return len(tx.Inputs) - 1
}

// AddOutput appends output, returns its index.
func (tx *Transaction) AddOutput(script []byte, value uint64) (int, error) {
	output := Output{Value: value, Script: script}
	if err := output.Validate(); err != nil {
		return 0, err
	}

	tx.Outputs = append(tx.Outputs, output)

	return len(tx.Outputs) - 1, nil
}

// HasWitnesses returns true if any input carries witness data.
func (tx *Transaction) HasWitnesses() bool {
	for i := range tx.Inputs {
		if len(tx.Inputs[i].Witness) != 0 {
			return true
		}
	}

	return false
}

// IsCoinbase returns true for the transaction with the single input spending null outpoint.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].Hash == (chainhash.Hash{}) && tx.Inputs[0].Index == 0xffffffff
}

// Clone returns deep copy of the transaction.
func (tx *Transaction) Clone() *Transaction {
	clone := &Transaction{
		Version:  tx.Version,
		Inputs:   make([]Input, len(tx.Inputs)),
		Outputs:  make([]Output, len(tx.Outputs)),
		Locktime: tx.Locktime,
	}

	for i, in := range tx.Inputs {
		clone.Inputs[i] = Input{
			Hash:     in.Hash,
			Index:    in.Index,
			Script:   bytes.Clone(in.Script),
			Sequence: in.Sequence,
			Witness:  cloneWitness(in.Witness),
		}
	}

	for i, out := range tx.Outputs {
		clone.Outputs[i] = Output{Value: out.Value, Script: bytes.Clone(out.Script)}
	}

	return clone
}

// Equal returns true if transactions serialize to the same bytes.
func (tx *Transaction) Equal(other *Transaction) bool {
	return bytes.Equal(tx.Serialize(), other.Serialize())
}

// cloneWitness returns deep copy of the witness stack, nil stays nil.
func cloneWitness(witness [][]byte) [][]byte {
	if witness == nil {
		return nil
	}

	clone := make([][]byte, len(witness))
	for i, item := range witness {
		clone[i] = bytes.Clone(item)
	}

	return clone
}

// TxIDFromHash returns display hex of the hash: reversed byte order.
func TxIDFromHash(hash chainhash.Hash) string {
	return hex.EncodeToString(reverse.Bytes(hash[:]))
}

// HashFromTxID parses display hex into the hash in internal byte order.
func HashFromTxID(txID string) (chainhash.Hash, error) {
	b, err := hex.DecodeString(txID)
	if err != nil || len(b) != chainhash.HashSize {
		return chainhash.Hash{}, fmt.Errorf("%w: %q", ErrInvalidTxID, txID)
	}

	var hash chainhash.Hash
	copy(hash[:], reverse.Copy(b))

	return hash, nil
}
