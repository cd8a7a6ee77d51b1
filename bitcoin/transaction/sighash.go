// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package transaction

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
	"github.com/BoostyLabs/psbtkit/internal/bytecodec"
)

// Signature hash types.
const (
	SigHashDefault      uint32 = 0x00
	SigHashAll          uint32 = 0x01
	SigHashNone         uint32 = 0x02
	SigHashSingle       uint32 = 0x03
	SigHashAnyoneCanPay uint32 = 0x80

	sigHashOutputMask uint32 = 0x03
	sigHashInputMask  uint32 = 0x80
)

const (
	// taprootSigHashEpoch prefixes BIP341 signature message.
	taprootSigHashEpoch byte = 0x00
	// taprootKeyVersion defines BIP342 key version of the tapscript.
	taprootKeyVersion byte = 0x00
	// noCodeSeparator defines code separator position when no OP_CODESEPARATOR was executed.
	noCodeSeparator uint32 = 0xffffffff
	// blankOutputValue defines value of the outputs blanked by SIGHASH_SINGLE: -1 as int64.
	blankOutputValue uint64 = 0xffffffffffffffff
)

var (
	// ErrSigHashType defines hash type not allowed for the signature hash algorithm.
	ErrSigHashType = errors.New("invalid sighash type")
	// ErrInputIndex defines input index out of range.
	ErrInputIndex = errors.New("input index out of range")
	// ErrPrevOuts defines missing or inconsistent previous outputs.
	ErrPrevOuts = errors.New("previous outputs do not match inputs")
)

// legacySigHashOne is the signature hash legacy algorithm returns for inputs
// out of range and for SIGHASH_SINGLE without matching output.
var legacySigHashOne = chainhash.Hash{0x01}

// SigHashCache caches intermediate hashes of signature hash algorithms over a snapshot of the transaction.
// INFO: the cache clones the transaction on creation, after the transaction is modified a new cache is required.
type SigHashCache struct {
	tx       *Transaction
	prevOuts []Output

	legacySkeleton *Transaction

	v0 *witnessV0Hashes
	v1 *witnessV1Hashes
}

// witnessV0Hashes defines double sha256 hashes of BIP143.
type witnessV0Hashes struct {
	prevouts  []byte
	sequences []byte
	outputs   []byte
}

// witnessV1Hashes defines single sha256 hashes of BIP341.
type witnessV1Hashes struct {
	prevouts  []byte
	amounts   []byte
	scripts   []byte
	sequences []byte
	outputs   []byte
}

// NewSigHashCache is a constructor for SigHashCache.
// prevOuts are outputs spent by the inputs in the same order, required only by HashForWitnessV1.
func NewSigHashCache(tx *Transaction, prevOuts []Output) *SigHashCache {
	return &SigHashCache{tx: tx.Clone(), prevOuts: prevOuts}
}

// HashForSignature returns legacy signature hash of the input.
func (tx *Transaction) HashForSignature(inIndex int, prevOutScript []byte, hashType uint32) (chainhash.Hash, error) {
	return NewSigHashCache(tx, nil).HashForSignature(inIndex, prevOutScript, hashType)
}

// HashForWitnessV0 returns BIP143 signature hash of the input.
func (tx *Transaction) HashForWitnessV0(inIndex int, scriptCode []byte, value uint64, hashType uint32) (chainhash.Hash, error) {
	return NewSigHashCache(tx, nil).HashForWitnessV0(inIndex, scriptCode, value, hashType)
}

// HashForWitnessV1 returns BIP341 signature hash of the input.
// leafHash selects script path spending, annex is optional.
func (tx *Transaction) HashForWitnessV1(inIndex int, prevOutScripts [][]byte, values []uint64, hashType uint32, leafHash, annex []byte) (chainhash.Hash, error) {
	if len(prevOutScripts) != len(values) {
		return chainhash.Hash{}, fmt.Errorf("%w: %d scripts and %d values", ErrPrevOuts, len(prevOutScripts), len(values))
	}

	prevOuts := make([]Output, len(values))
	for i := range prevOuts {
		prevOuts[i] = Output{Value: values[i], Script: prevOutScripts[i]}
	}

	return NewSigHashCache(tx, prevOuts).HashForWitnessV1(inIndex, hashType, leafHash, annex)
}

// HashForSignature returns legacy signature hash of the input.
// INFO: out of range input and SIGHASH_SINGLE without matching output produce hash 1 as in bitcoin core.
func (c *SigHashCache) HashForSignature(inIndex int, prevOutScript []byte, hashType uint32) (chainhash.Hash, error) {
	if inIndex < 0 || inIndex >= len(c.tx.Inputs) {
		return legacySigHashOne, nil
	}

	ourScript, err := script.RemoveCodeSeparators(prevOutScript)
	if err != nil {
		return chainhash.Hash{}, err
	}

	skeleton := c.skeleton()
	txTmp := &Transaction{
		Version:  skeleton.Version,
		Inputs:   append([]Input(nil), skeleton.Inputs...),
		Outputs:  skeleton.Outputs,
		Locktime: skeleton.Locktime,
	}

	switch hashType & 0x1f {
	case SigHashNone:
		txTmp.Outputs = nil
		zeroOtherSequences(txTmp, inIndex)
	case SigHashSingle:
		if inIndex >= len(c.tx.Outputs) {
			return legacySigHashOne, nil
		}

		txTmp.Outputs = make([]Output, inIndex+1)
		for i := 0; i < inIndex; i++ {
			txTmp.Outputs[i] = Output{Value: blankOutputValue}
		}
		txTmp.Outputs[inIndex] = skeleton.Outputs[inIndex]
		zeroOtherSequences(txTmp, inIndex)
	}

	if hashType&SigHashAnyoneCanPay != 0 {
		txTmp.Inputs = []Input{txTmp.Inputs[inIndex]}
		txTmp.Inputs[0].Script = ourScript
	} else {
		txTmp.Inputs[inIndex].Script = ourScript
	}

	serialized := txTmp.SerializeNoWitness()
	w := bytecodec.NewWriter(len(serialized) + 4)
	w.WriteSlice(serialized)
	w.WriteUint32(hashType)

	return hashOf(w.Bytes()), nil
}

// HashForWitnessV0 returns BIP143 signature hash of the input.
// scriptCode is the script being executed: witness script for P2WSH, P2PKH script for P2WPKH.
func (c *SigHashCache) HashForWitnessV0(inIndex int, scriptCode []byte, value uint64, hashType uint32) (chainhash.Hash, error) {
	if inIndex < 0 || inIndex >= len(c.tx.Inputs) {
		return chainhash.Hash{}, fmt.Errorf("%w: %d", ErrInputIndex, inIndex)
	}

	var (
		zero           = make([]byte, chainhash.HashSize)
		hashes         = c.witnessV0Hashes()
		baseType       = hashType & 0x1f
		anyoneCanPay   = hashType&SigHashAnyoneCanPay != 0
		hashPrevouts   = zero
		hashSequence   = zero
		hashOutputs    = zero
		in             = &c.tx.Inputs[inIndex]
		singleOrNone   = baseType == SigHashSingle || baseType == SigHashNone
		scriptCodeSize = bytecodec.VarSliceSize(scriptCode)
	)

	if !anyoneCanPay {
		hashPrevouts = hashes.prevouts
	}
	if !anyoneCanPay && !singleOrNone {
		hashSequence = hashes.sequences
	}

	switch {
	case !singleOrNone:
		hashOutputs = hashes.outputs
	case baseType == SigHashSingle && inIndex < len(c.tx.Outputs):
		hashOutputs = crypto.Default.Hash256(serializeOutputs(c.tx.Outputs[inIndex : inIndex+1]))
	}

	w := bytecodec.NewWriter(4 + 32 + 32 + 36 + scriptCodeSize + 8 + 4 + 32 + 4 + 4)
	w.WriteInt32(c.tx.Version)
	w.WriteSlice(hashPrevouts)
	w.WriteSlice(hashSequence)
	w.WriteSlice(in.Hash[:])
	w.WriteUint32(in.Index)
	w.WriteVarSlice(scriptCode)
	w.WriteUint64(value)
	w.WriteUint32(in.Sequence)
	w.WriteSlice(hashOutputs)
	w.WriteUint32(c.tx.Locktime)
	w.WriteUint32(hashType)

	return hashOf(w.Bytes()), nil
}

// HashForWitnessV1 returns BIP341 signature hash of the input.
// leafHash selects script path spending, annex is optional and must start with 0x50.
func (c *SigHashCache) HashForWitnessV1(inIndex int, hashType uint32, leafHash, annex []byte) (chainhash.Hash, error) {
	if inIndex < 0 || inIndex >= len(c.tx.Inputs) {
		return chainhash.Hash{}, fmt.Errorf("%w: %d", ErrInputIndex, inIndex)
	}
	if len(c.prevOuts) != len(c.tx.Inputs) {
		return chainhash.Hash{}, fmt.Errorf("%w: %d previous outputs for %d inputs", ErrPrevOuts, len(c.prevOuts), len(c.tx.Inputs))
	}
	if hashType > 0xff || !script.IsDefinedTaprootHashType(byte(hashType)) {
		return chainhash.Hash{}, fmt.Errorf("%w: 0x%02x", ErrSigHashType, hashType)
	}
	if leafHash != nil && len(leafHash) != chainhash.HashSize {
		return chainhash.Hash{}, fmt.Errorf("leaf hash of %d bytes", len(leafHash))
	}

	outputType := hashType & sigHashOutputMask
	if hashType == SigHashDefault {
		outputType = SigHashAll
	}

	var (
		anyoneCanPay = hashType&sigHashInputMask == SigHashAnyoneCanPay
		isNone       = outputType == SigHashNone
		isSingle     = outputType == SigHashSingle
		hashes       = c.witnessV1Hashes()
		in           = &c.tx.Inputs[inIndex]
		prevOut      = &c.prevOuts[inIndex]
	)

	if isSingle && inIndex >= len(c.tx.Outputs) {
		return chainhash.Hash{}, fmt.Errorf("%w: SIGHASH_SINGLE input %d without matching output", ErrSigHashType, inIndex)
	}

	spendType := byte(0)
	if leafHash != nil {
		spendType |= 2
	}
	if annex != nil {
		spendType |= 1
	}

	w := bytecodec.NewWriter(1 + c.witnessV1MessageSize(anyoneCanPay, isNone, prevOut, leafHash != nil, annex != nil))
	w.WriteUint8(taprootSigHashEpoch)
	w.WriteUint8(byte(hashType))
	w.WriteInt32(c.tx.Version)
	w.WriteUint32(c.tx.Locktime)

	if !anyoneCanPay {
		w.WriteSlice(hashes.prevouts)
		w.WriteSlice(hashes.amounts)
		w.WriteSlice(hashes.scripts)
		w.WriteSlice(hashes.sequences)
	}
	if !isNone && !isSingle {
		w.WriteSlice(hashes.outputs)
	}

	w.WriteUint8(spendType)
	if anyoneCanPay {
		w.WriteSlice(in.Hash[:])
		w.WriteUint32(in.Index)
		w.WriteUint64(prevOut.Value)
		w.WriteVarSlice(prevOut.Script)
		w.WriteUint32(in.Sequence)
	} else {
		w.WriteUint32(uint32(inIndex))
	}

	if annex != nil {
		annexWriter := bytecodec.NewWriter(bytecodec.VarSliceSize(annex))
		annexWriter.WriteVarSlice(annex)
		w.WriteSlice(crypto.Default.SHA256(annexWriter.Bytes()))
	}
	if isSingle {
		w.WriteSlice(crypto.Default.SHA256(serializeOutputs(c.tx.Outputs[inIndex : inIndex+1])))
	}
	if leafHash != nil {
		w.WriteSlice(leafHash)
		w.WriteUint8(taprootKeyVersion)
		w.WriteUint32(noCodeSeparator)
	}

	var hash chainhash.Hash
	copy(hash[:], crypto.Default.TaggedHash(crypto.TagTapSighash, w.Bytes()))

	return hash, nil
}

// witnessV1MessageSize returns BIP341 signature message size without the epoch byte.
func (c *SigHashCache) witnessV1MessageSize(anyoneCanPay, isNone bool, prevOut *Output, scriptPath, withAnnex bool) int {
	size := 1 + 4 + 4 + 1
	if !anyoneCanPay {
		size += 4 * 32
	}
	if !isNone {
		size += 32
	}
	if anyoneCanPay {
		size += 36 + 8 + bytecodec.VarSliceSize(prevOut.Script) + 4
	} else {
		size += 4
	}
	if withAnnex {
		size += 32
	}
	if scriptPath {
		size += 32 + 1 + 4
	}

	return size
}

// skeleton returns transaction copy with every input script and witness blanked.
func (c *SigHashCache) skeleton() *Transaction {
	if c.legacySkeleton != nil {
		return c.legacySkeleton
	}

	skeleton := &Transaction{
		Version:  c.tx.Version,
		Inputs:   make([]Input, len(c.tx.Inputs)),
		Outputs:  c.tx.Outputs,
		Locktime: c.tx.Locktime,
	}
	for i, in := range c.tx.Inputs {
		skeleton.Inputs[i] = Input{Hash: in.Hash, Index: in.Index, Sequence: in.Sequence}
	}

	c.legacySkeleton = skeleton

	return skeleton
}

func (c *SigHashCache) witnessV0Hashes() *witnessV0Hashes {
	if c.v0 == nil {
		c.v0 = &witnessV0Hashes{
			prevouts:  crypto.Default.Hash256(serializePrevouts(c.tx.Inputs)),
			sequences: crypto.Default.Hash256(serializeSequences(c.tx.Inputs)),
			outputs:   crypto.Default.Hash256(serializeOutputs(c.tx.Outputs)),
		}
	}

	return c.v0
}

func (c *SigHashCache) witnessV1Hashes() *witnessV1Hashes {
	if c.v1 == nil {
		amounts := bytecodec.NewWriter(8 * len(c.prevOuts))
		scriptsSize := 0
		for i := range c.prevOuts {
			amounts.WriteUint64(c.prevOuts[i].Value)
			scriptsSize += bytecodec.VarSliceSize(c.prevOuts[i].Script)
		}

		scripts := bytecodec.NewWriter(scriptsSize)
		for i := range c.prevOuts {
			scripts.WriteVarSlice(c.prevOuts[i].Script)
		}

		c.v1 = &witnessV1Hashes{
			prevouts:  crypto.Default.SHA256(serializePrevouts(c.tx.Inputs)),
			amounts:   crypto.Default.SHA256(amounts.Bytes()),
			scripts:   crypto.Default.SHA256(scripts.Bytes()),
			sequences: crypto.Default.SHA256(serializeSequences(c.tx.Inputs)),
			outputs:   crypto.Default.SHA256(serializeOutputs(c.tx.Outputs)),
		}
	}

	return c.v1
}

func zeroOtherSequences(tx *Transaction, inIndex int) {
	for i := range tx.Inputs {
		if i != inIndex {
			tx.Inputs[i].Sequence = 0
		}
	}
}

func serializePrevouts(inputs []Input) []byte {
	w := bytecodec.NewWriter(36 * len(inputs))
	for i := range inputs {
		w.WriteSlice(inputs[i].Hash[:])
		w.WriteUint32(inputs[i].Index)
	}

	return w.Bytes()
}

func serializeSequences(inputs []Input) []byte {
	w := bytecodec.NewWriter(4 * len(inputs))
	for i := range inputs {
		w.WriteUint32(inputs[i].Sequence)
	}

	return w.Bytes()
}

func serializeOutputs(outputs []Output) []byte {
	size := 0
	for i := range outputs {
		size += 8 + bytecodec.VarSliceSize(outputs[i].Script)
	}

	w := bytecodec.NewWriter(size)
	for i := range outputs {
		w.WriteUint64(outputs[i].Value)
		w.WriteVarSlice(outputs[i].Script)
	}

	return w.Bytes()
}
