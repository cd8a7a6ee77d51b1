// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/payments"
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
)

// spendInfo describes how the input spends its utxo.
type spendInfo struct {
	prevOut transaction.Output
	// script is the innermost script: redeem script, witness script or utxo script.
	script []byte
	// scriptType is the type of the innermost script.
	scriptType payments.ScriptType
	// scriptCode is BIP143 script code of segwit v0 inputs.
	scriptCode []byte

	isP2SH    bool
	isP2WSH   bool
	isSegwit  bool
	isTaproot bool
}

// prevOut returns output spent by the input.
func (p *Psbt) prevOut(index int) (transaction.Output, error) {
	in, txIn := &p.Inputs[index], &p.Global.UnsignedTx.Inputs[index]
	switch {
	case in.NonWitnessUtxo != nil:
		if in.NonWitnessUtxo.Hash() != txIn.Hash {
			return transaction.Output{}, fmt.Errorf("%w: non witness utxo %s spent as %s", ErrUtxoMismatch, in.NonWitnessUtxo.TxID(), txIn.TxID())
		}
		if int(txIn.Index) >= len(in.NonWitnessUtxo.Outputs) {
			return transaction.Output{}, fmt.Errorf("%w: output %d does not exist", ErrUtxoMismatch, txIn.Index)
		}

		return in.NonWitnessUtxo.Outputs[txIn.Index], nil
	case in.WitnessUtxo != nil:
		return *in.WitnessUtxo, nil
	default:
		return transaction.Output{}, fmt.Errorf("%w: input %d", ErrMissingUtxo, index)
	}
}

// prevOuts returns outputs spent by all inputs.
func (p *Psbt) prevOuts() ([]transaction.Output, error) {
	prevOuts := make([]transaction.Output, len(p.Inputs))
	for i := range p.Inputs {
		prevOut, err := p.prevOut(i)
		if err != nil {
			return nil, err
		}

		prevOuts[i] = prevOut
	}

	return prevOuts, nil
}

// sigHashCache returns cache over the unsigned transaction.
// INFO: previous outputs are attached when every input has utxo data, they are required by taproot only.
func (p *Psbt) sigHashCache() *transaction.SigHashCache {
	prevOuts, err := p.prevOuts()
	if err != nil {
		prevOuts = nil
	}

	return transaction.NewSigHashCache(p.Global.UnsignedTx, prevOuts)
}

// spendInfo resolves redeem and witness scripts of the input against its utxo.
func (p *Psbt) spendInfo(index int) (spendInfo, error) {
	prevOut, err := p.prevOut(index)
	if err != nil {
		return spendInfo{}, err
	}

	in := &p.Inputs[index]
	info := spendInfo{prevOut: prevOut, script: prevOut.Script}

	if payments.ClassifyOutput(info.script) == payments.TypeP2SH {
		if in.RedeemScript == nil {
			return spendInfo{}, fmt.Errorf("%w: input %d has no redeem script", ErrScriptMismatch, index)
		}
		if err := matchRedeemScript(index, prevOut.Script, in.RedeemScript); err != nil {
			return spendInfo{}, err
		}

		info.isP2SH, info.script = true, in.RedeemScript
	}

	switch payments.ClassifyOutput(info.script) {
	case payments.TypeP2WPKH:
		p2pkh, err := payments.P2PKH(payments.Payment{Hash: info.script[2:]}, payments.WithNetwork(p.cfg.Network))
		if err != nil {
			return spendInfo{}, err
		}

		info.isSegwit, info.scriptCode = true, p2pkh.Output
	case payments.TypeP2WSH:
		if in.WitnessScript == nil {
			return spendInfo{}, fmt.Errorf("%w: input %d has no witness script", ErrScriptMismatch, index)
		}
		if err := matchWitnessScript(index, info.script, in.WitnessScript); err != nil {
			return spendInfo{}, err
		}

		info.isSegwit, info.isP2WSH = true, true
		info.script, info.scriptCode = in.WitnessScript, in.WitnessScript
	case payments.TypeP2TR:
		if info.isP2SH {
			return spendInfo{}, fmt.Errorf("%w: input %d wraps taproot into p2sh", ErrScriptMismatch, index)
		}

		info.isTaproot = true
	default:
		if in.NonWitnessUtxo == nil {
			return spendInfo{}, fmt.Errorf("%w: input %d spends non segwit output without non witness utxo", ErrMissingUtxo, index)
		}
	}

	info.scriptType = payments.ClassifyOutput(info.script)

	return info, nil
}

// matchRedeemScript fails if the redeem script does not hash into the p2sh output script.
func matchRedeemScript(index int, p2sh, redeemScript []byte) error {
	if !bytes.Equal(p2sh[2:22], crypto.Default.Hash160(redeemScript)) {
		return fmt.Errorf("%w: input %d redeem script hash", ErrScriptMismatch, index)
	}

	return nil
}

// matchWitnessScript fails if the witness script does not hash into the p2wsh program.
func matchWitnessScript(index int, p2wsh, witnessScript []byte) error {
	if !bytes.Equal(p2wsh[2:], crypto.Default.SHA256(witnessScript)) {
		return fmt.Errorf("%w: input %d witness script hash", ErrScriptMismatch, index)
	}

	return nil
}

// ecdsaSigHash returns legacy or BIP143 signature hash of the input.
func ecdsaSigHash(cache *transaction.SigHashCache, index int, info spendInfo, hashType uint32) (chainhash.Hash, error) {
	if info.isSegwit {
		return cache.HashForWitnessV0(index, info.scriptCode, info.prevOut.Value, hashType)
	}

	return cache.HashForSignature(index, info.script, hashType)
}

// sigHashTypeFor returns hash type of the input, fails if it is not allowed.
func sigHashTypeFor(in *Input, allowed []uint32, defaultType uint32) (uint32, error) {
	if len(allowed) == 0 {
		allowed = []uint32{defaultType}
	}

	hashType := in.SighashType.UnwrapOr(defaultType)
	if !slices.Contains(allowed, hashType) {
		return 0, fmt.Errorf("%w: 0x%02x, allowed %v", ErrSigHashType, hashType, allowed)
	}

	return hashType, nil
}

// scriptHasKey returns true if the script pushes the public key or its hash160.
func scriptHasKey(s, pubKey []byte) bool {
	elements, err := script.Decompile(s)
	if err != nil {
		return false
	}

	pubKeyHash := crypto.Default.Hash160(pubKey)
	for _, e := range elements {
		if e.IsData() && (bytes.Equal(e.Data, pubKey) || bytes.Equal(e.Data, pubKeyHash)) {
			return true
		}
	}

	return false
}
