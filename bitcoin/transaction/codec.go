// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package transaction

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/internal/bytecodec"
)

const (
	// witnessMarker and witnessFlag follow the version in the witness serialization.
	witnessMarker byte = 0x00
	witnessFlag   byte = 0x01
)

var (
	// ErrTrailingBytes defines serialized transaction followed by unexpected data.
	ErrTrailingBytes = errors.New("transaction has unexpected data after locktime")
	// ErrSuperfluousWitness defines witness serialization without any witness data.
	ErrSuperfluousWitness = errors.New("transaction has superfluous witness data")
)

// ByteLength returns serialized size with or without witness data.
func (tx *Transaction) ByteLength(withWitness bool) int {
	hasWitnesses := withWitness && tx.HasWitnesses()

	size := 4 + 4 + bytecodec.VarIntSize(uint64(len(tx.Inputs))) + bytecodec.VarIntSize(uint64(len(tx.Outputs)))
	if hasWitnesses {
		size += 2
	}

	for i := range tx.Inputs {
		size += 32 + 4 + bytecodec.VarSliceSize(tx.Inputs[i].Script) + 4
		if hasWitnesses {
			size += bytecodec.VectorSize(tx.Inputs[i].Witness)
		}
	}

	for i := range tx.Outputs {
		size += 8 + bytecodec.VarSliceSize(tx.Outputs[i].Script)
	}

	return size
}

// Weight returns BIP141 weight: base size * 3 + total size.
func (tx *Transaction) Weight() int {
	return tx.ByteLength(false)*(WitnessScaleFactor-1) + tx.ByteLength(true)
}

// VirtualSize returns weight divided by 4 rounded up.
func (tx *Transaction) VirtualSize() int {
	return (tx.Weight() + WitnessScaleFactor - 1) / WitnessScaleFactor
}

// Serialize returns serialization with witness data when any input carries it.
func (tx *Transaction) Serialize() []byte {
	return tx.serialize(true)
}

// SerializeNoWitness returns serialization without witness data.
func (tx *Transaction) SerializeNoWitness() []byte {
	return tx.serialize(false)
}

// Hex returns hex of Serialize.
func (tx *Transaction) Hex() string {
	return hex.EncodeToString(tx.Serialize())
}

func (tx *Transaction) serialize(withWitness bool) []byte {
	hasWitnesses := withWitness && tx.HasWitnesses()

	w := bytecodec.NewWriter(tx.ByteLength(withWitness))
	w.WriteInt32(tx.Version)
	if hasWitnesses {
		w.WriteUint8(witnessMarker)
		w.WriteUint8(witnessFlag)
	}

	w.WriteVarInt(uint64(len(tx.Inputs)))
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		w.WriteSlice(in.Hash[:])
		w.WriteUint32(in.Index)
		w.WriteVarSlice(in.Script)
		w.WriteUint32(in.Sequence)
	}

	w.WriteVarInt(uint64(len(tx.Outputs)))
	for i := range tx.Outputs {
		w.WriteUint64(tx.Outputs[i].Value)
		w.WriteVarSlice(tx.Outputs[i].Script)
	}

	if hasWitnesses {
		for i := range tx.Inputs {
			w.WriteVector(tx.Inputs[i].Witness)
		}
	}

	w.WriteUint32(tx.Locktime)

	return w.Bytes()
}

// Deserialize parses transaction in witness or non witness serialization.
func Deserialize(b []byte) (*Transaction, error) {
	return deserialize(b, true)
}

// DeserializeNoWitness parses transaction that is known to have no witness serialization,
// e.g. the unsigned transaction of PSBT that may have no inputs.
func DeserializeNoWitness(b []byte) (*Transaction, error) {
	return deserialize(b, false)
}

// FromHex parses hex of the serialized transaction.
func FromHex(s string) (*Transaction, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}

	return Deserialize(b)
}

func deserialize(b []byte, allowWitness bool) (*Transaction, error) {
	var (
		r   = bytecodec.NewReader(b)
		tx  = new(Transaction)
		err error
	)

	if tx.Version, err = r.ReadInt32(); err != nil {
		return nil, err
	}

	hasWitnesses := false
	if allowWitness {
		if marker, err := r.Peek(2); err == nil && marker[0] == witnessMarker && marker[1] == witnessFlag {
			_, _ = r.ReadSlice(2)
			hasWitnesses = true
		}
	}

	inputsCount, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	// every input takes at least 41 bytes.
	if inputsCount > uint64(r.Remaining()/41) {
		return nil, fmt.Errorf("%w: %d inputs", bytecodec.ErrOutOfBounds, inputsCount)
	}

	tx.Inputs = make([]Input, inputsCount)
	for i := range tx.Inputs {
		if err = readInput(r, &tx.Inputs[i]); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	outputsCount, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	// every output takes at least 9 bytes.
	if outputsCount > uint64(r.Remaining()/9) {
		return nil, fmt.Errorf("%w: %d outputs", bytecodec.ErrOutOfBounds, outputsCount)
	}

	tx.Outputs = make([]Output, outputsCount)
	for i := range tx.Outputs {
		out := &tx.Outputs[i]
		if out.Value, err = r.ReadUint64(); err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		if out.Script, err = r.ReadVarSlice(); err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
	}

	if hasWitnesses {
		for i := range tx.Inputs {
			if tx.Inputs[i].Witness, err = r.ReadVector(); err != nil {
				return nil, fmt.Errorf("witness %d: %w", i, err)
			}
		}

		if !tx.HasWitnesses() {
			return nil, ErrSuperfluousWitness
		}
	}

	if tx.Locktime, err = r.ReadUint32(); err != nil {
		return nil, err
	}

	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingBytes, r.Remaining())
	}

	return tx, nil
}

func readInput(r *bytecodec.Reader, in *Input) error {
	hash, err := r.ReadSlice(chainhash.HashSize)
	if err != nil {
		return err
	}
	copy(in.Hash[:], hash)

	if in.Index, err = r.ReadUint32(); err != nil {
		return err
	}
	if in.Script, err = r.ReadVarSlice(); err != nil {
		return err
	}
	if in.Sequence, err = r.ReadUint32(); err != nil {
		return err
	}

	return nil
}

// Hash returns double sha256 of the non witness serialization in internal byte order.
func (tx *Transaction) Hash() chainhash.Hash {
	return hashOf(tx.SerializeNoWitness())
}

// WitnessHash returns double sha256 of the witness serialization (wtxid) in internal byte order.
func (tx *Transaction) WitnessHash() chainhash.Hash {
	if !tx.HasWitnesses() {
		return tx.Hash()
	}

	return hashOf(tx.Serialize())
}

// TxID returns display hex of the transaction hash.
func (tx *Transaction) TxID() string {
	return TxIDFromHash(tx.Hash())
}

// WTxID returns display hex of the witness transaction hash.
func (tx *Transaction) WTxID() string {
	return TxIDFromHash(tx.WitnessHash())
}

func hashOf(b []byte) chainhash.Hash {
	var hash chainhash.Hash
	copy(hash[:], crypto.Default.Hash256(b))

	return hash
}
