// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/BoostyLabs/psbtkit/bitcoin/payments"
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
)

// TxInput defines input to add: outpoint with optional sequence and input map data.
type TxInput struct {
	Hash     chainhash.Hash // previous transaction hash in internal byte order.
	Index    uint32
	Sequence fn.Option[uint32]
	Input    Input
}

// TxOutput defines output to add: Address or Script, value and output map data.
type TxOutput struct {
	Address string
	Script  []byte
	Value   uint64
	Output  Output
}

// AddInput appends input to the unsigned transaction and returns its index.
// NOTE: existing signatures must be SIGHASH_ANYONECANPAY.
func (p *Psbt) AddInput(txIn TxInput) (int, error) {
	for _, in := range p.Global.UnsignedTx.Inputs {
		if in.Hash == txIn.Hash && in.Index == txIn.Index {
			return 0, fmt.Errorf("%w: %s:%d", ErrDuplicateInput, transaction.TxIDFromHash(txIn.Hash), txIn.Index)
		}
	}

	if err := p.checkSignatures(-1, func(hashType uint32) bool {
		return hashType&transaction.SigHashAnyoneCanPay != 0
	}); err != nil {
		return 0, err
	}

	var in Input
	if err := mergeInput(&in, txIn.Input.clone()); err != nil {
		return 0, err
	}
	if in.NonWitnessUtxo != nil && in.NonWitnessUtxo.Hash() != txIn.Hash {
		return 0, fmt.Errorf("%w: non witness utxo %s", ErrUtxoMismatch, in.NonWitnessUtxo.TxID())
	}
	if err := checkInputData(len(p.Inputs), &in, txIn.Index); err != nil {
		return 0, err
	}

	index := p.Global.UnsignedTx.AddInput(txIn.Hash, txIn.Index, txIn.Sequence.UnwrapOr(transaction.DefaultSequence), nil)
	p.Inputs = append(p.Inputs, in)

	log.Debugf("added input %d spending %s:%d", index, transaction.TxIDFromHash(txIn.Hash), txIn.Index)

	return index, nil
}

// AddOutput appends output to the unsigned transaction and returns its index.
// NOTE: existing signatures must be SIGHASH_NONE or SIGHASH_SINGLE.
func (p *Psbt) AddOutput(txOut TxOutput) (int, error) {
	pkScript := txOut.Script
	if pkScript == nil {
		var err error
		if pkScript, err = payments.ToOutputScript(txOut.Address, p.cfg.Network); err != nil {
			return 0, err
		}
	}

	if err := p.checkSignatures(-1, func(hashType uint32) bool {
		base := hashType &^ transaction.SigHashAnyoneCanPay
		return base == transaction.SigHashNone || base == transaction.SigHashSingle
	}); err != nil {
		return 0, err
	}

	var out Output
	if err := mergeOutput(&out, txOut.Output.clone()); err != nil {
		return 0, err
	}

	index, err := p.Global.UnsignedTx.AddOutput(pkScript, txOut.Value)
	if err != nil {
		return 0, err
	}
	p.Outputs = append(p.Outputs, out)

	log.Debugf("added output %d of %d sat", index, txOut.Value)

	return index, nil
}

// UpdateInput merges update into the input map, conflicting values are rejected.
// Utxo data and scripts of the merged input are checked against each other.
func (p *Psbt) UpdateInput(index int, update Input) error {
	if index < 0 || index >= len(p.Inputs) {
		return ErrInputIndex
	}

	merged := p.Inputs[index].clone()
	if err := mergeInput(&merged, update.clone()); err != nil {
		return fmt.Errorf("input %d: %w", index, err)
	}

	txIn := p.Global.UnsignedTx.Inputs[index]
	if merged.NonWitnessUtxo != nil && merged.NonWitnessUtxo.Hash() != txIn.Hash {
		return fmt.Errorf("input %d: %w", index, ErrUtxoMismatch)
	}
	if err := checkInputData(index, &merged, txIn.Index); err != nil {
		return err
	}

	p.Inputs[index] = merged

	return nil
}

// checkInputData fails if utxo data or scripts of the input contradict each other.
// INFO: scripts are checked once the spent output is known, absent scripts are allowed.
func checkInputData(index int, in *Input, outIndex uint32) error {
	prevOut := in.WitnessUtxo
	if in.NonWitnessUtxo != nil {
		if int(outIndex) >= len(in.NonWitnessUtxo.Outputs) {
			return fmt.Errorf("%w: input %d spends missing output %d", ErrUtxoMismatch, index, outIndex)
		}

		spent := &in.NonWitnessUtxo.Outputs[outIndex]
		if prevOut != nil && (prevOut.Value != spent.Value || !bytes.Equal(prevOut.Script, spent.Script)) {
			return fmt.Errorf("%w: input %d witness utxo differs from non witness utxo", ErrUtxoMismatch, index)
		}

		prevOut = spent
	}
	if prevOut == nil {
		return nil
	}

	s := prevOut.Script
	switch {
	case payments.ClassifyOutput(s) == payments.TypeP2SH:
		if in.RedeemScript == nil {
			return nil
		}
		if err := matchRedeemScript(index, s, in.RedeemScript); err != nil {
			return err
		}

		s = in.RedeemScript
	case in.RedeemScript != nil:
		return fmt.Errorf("%w: input %d has redeem script for non p2sh utxo", ErrScriptMismatch, index)
	}

	if in.WitnessScript == nil {
		return nil
	}
	if payments.ClassifyOutput(s) != payments.TypeP2WSH {
		return fmt.Errorf("%w: input %d has witness script for non p2wsh utxo", ErrScriptMismatch, index)
	}

	return matchWitnessScript(index, s, in.WitnessScript)
}

// UpdateOutput merges update into the output map, conflicting values are rejected.
func (p *Psbt) UpdateOutput(index int, update Output) error {
	if index < 0 || index >= len(p.Outputs) {
		return ErrOutputIndex
	}
	if update.TapTree != nil {
		if _, err := taproot.ToTapTreeList(update.TapTree); err != nil {
			return fmt.Errorf("output %d: %w", index, err)
		}
	}

	merged := p.Outputs[index].clone()
	if err := mergeOutput(&merged, update.clone()); err != nil {
		return fmt.Errorf("output %d: %w", index, err)
	}

	p.Outputs[index] = merged

	return nil
}

// UpdateGlobal merges xpubs and unknowns of update into the global map.
// NOTE: UnsignedTx of update is ignored.
func (p *Psbt) UpdateGlobal(update Global) error {
	merged := p.Global.clone()
	if err := mergeGlobal(&merged, update.clone()); err != nil {
		return err
	}

	p.Global = merged

	return nil
}

// SetVersion sets version of the unsigned transaction.
func (p *Psbt) SetVersion(version int32) error {
	if err := p.checkSignatures(-1, func(uint32) bool { return false }); err != nil {
		return err
	}

	p.Global.UnsignedTx.Version = version

	return nil
}

// SetLocktime sets locktime of the unsigned transaction.
func (p *Psbt) SetLocktime(locktime uint32) error {
	if err := p.checkSignatures(-1, func(uint32) bool { return false }); err != nil {
		return err
	}

	p.Global.UnsignedTx.Locktime = locktime

	return nil
}

// SetInputSequence sets sequence of the input.
// NOTE: the input must have no signatures, signatures of other inputs must not commit to sequences.
func (p *Psbt) SetInputSequence(index int, sequence uint32) error {
	if index < 0 || index >= len(p.Inputs) {
		return ErrInputIndex
	}
	if status, _ := p.InputStatus(index); status != StatusUnsigned {
		return fmt.Errorf("input %d: %w", index, ErrSignaturesCommit)
	}

	if err := p.checkSignatures(index, func(hashType uint32) bool {
		base := hashType &^ transaction.SigHashAnyoneCanPay
		return hashType&transaction.SigHashAnyoneCanPay != 0 || base == transaction.SigHashNone || base == transaction.SigHashSingle
	}); err != nil {
		return err
	}

	p.Global.UnsignedTx.Inputs[index].Sequence = sequence

	return nil
}

// checkSignatures fails if any signature of inputs other than skip has hash type rejected by allow.
// INFO: hash type of finalized inputs is unknown, they are treated as SIGHASH_ALL.
func (p *Psbt) checkSignatures(skip int, allow func(hashType uint32) bool) error {
	for i := range p.Inputs {
		if i == skip {
			continue
		}

		for _, hashType := range p.Inputs[i].signatureHashTypes() {
			if !allow(hashType) {
				return fmt.Errorf("%w: input %d signed with sighash type 0x%02x", ErrSignaturesCommit, i, hashType)
			}
		}
	}

	return nil
}

// signatureHashTypes returns hash types of all signatures of the input.
func (in *Input) signatureHashTypes() []uint32 {
	if in.IsFinalized() {
		return []uint32{transaction.SigHashAll}
	}

	var hashTypes []uint32
	for _, sig := range in.PartialSigs {
		if len(sig.Signature) > 0 {
			hashTypes = append(hashTypes, uint32(sig.Signature[len(sig.Signature)-1]))
		}
	}

	schnorrHashType := func(sig []byte) uint32 {
		decoded, err := script.DecodeSchnorrSignature(sig)
		if err != nil || decoded.HashType == byte(transaction.SigHashDefault) {
			return transaction.SigHashAll
		}

		return uint32(decoded.HashType)
	}
	if in.TapKeySig != nil {
		hashTypes = append(hashTypes, schnorrHashType(in.TapKeySig))
	}
	for _, sig := range in.TapScriptSigs {
		hashTypes = append(hashTypes, schnorrHashType(sig.Signature))
	}

	return hashTypes
}
