// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt

import (
	"bytes"
	"slices"

	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
)

// Clone returns deep copy of the psbt.
func (p *Psbt) Clone() *Psbt {
	cloned := &Psbt{
		Global:  p.Global.clone(),
		Inputs:  make([]Input, len(p.Inputs)),
		Outputs: make([]Output, len(p.Outputs)),
		cfg:     p.cfg,
	}
	for i := range p.Inputs {
		cloned.Inputs[i] = p.Inputs[i].clone()
	}
	for i := range p.Outputs {
		cloned.Outputs[i] = p.Outputs[i].clone()
	}

	return cloned
}

func (g Global) clone() Global {
	cloned := Global{Version: g.Version, Unknowns: cloneUnknowns(g.Unknowns)}
	if g.UnsignedTx != nil {
		cloned.UnsignedTx = g.UnsignedTx.Clone()
	}
	for _, xpub := range g.Xpubs {
		cloned.Xpubs = append(cloned.Xpubs, Xpub{
			ExtendedKey:       bytes.Clone(xpub.ExtendedKey),
			MasterFingerprint: xpub.MasterFingerprint,
			Path:              slices.Clone(xpub.Path),
		})
	}

	return cloned
}

func (in Input) clone() Input {
	cloned := Input{
		SighashType:         in.SighashType,
		RedeemScript:        bytes.Clone(in.RedeemScript),
		WitnessScript:       bytes.Clone(in.WitnessScript),
		Bip32Derivations:    cloneBip32(in.Bip32Derivations),
		FinalScriptSig:      bytes.Clone(in.FinalScriptSig),
		FinalScriptWitness:  cloneStack(in.FinalScriptWitness),
		TapKeySig:           bytes.Clone(in.TapKeySig),
		TapBip32Derivations: cloneTapBip32(in.TapBip32Derivations),
		TapInternalKey:      bytes.Clone(in.TapInternalKey),
		TapMerkleRoot:       bytes.Clone(in.TapMerkleRoot),
		Unknowns:            cloneUnknowns(in.Unknowns),
	}
	if in.NonWitnessUtxo != nil {
		cloned.NonWitnessUtxo = in.NonWitnessUtxo.Clone()
	}
	if in.WitnessUtxo != nil {
		cloned.WitnessUtxo = &transaction.Output{Value: in.WitnessUtxo.Value, Script: bytes.Clone(in.WitnessUtxo.Script)}
	}
	for _, sig := range in.PartialSigs {
		cloned.PartialSigs = append(cloned.PartialSigs, PartialSig{PubKey: bytes.Clone(sig.PubKey), Signature: bytes.Clone(sig.Signature)})
	}
	for _, sig := range in.TapScriptSigs {
		cloned.TapScriptSigs = append(cloned.TapScriptSigs, TapScriptSig{
			XOnlyPubKey: bytes.Clone(sig.XOnlyPubKey),
			LeafHash:    bytes.Clone(sig.LeafHash),
			Signature:   bytes.Clone(sig.Signature),
		})
	}
	for _, leaf := range in.TapLeafScripts {
		cloned.TapLeafScripts = append(cloned.TapLeafScripts, TapLeafScript{
			ControlBlock: bytes.Clone(leaf.ControlBlock),
			Script:       bytes.Clone(leaf.Script),
			LeafVersion:  leaf.LeafVersion,
		})
	}

	return cloned
}

// clone copies output map.
// NOTE: TapTree is immutable and shared.
func (out Output) clone() Output {
	return Output{
		RedeemScript:        bytes.Clone(out.RedeemScript),
		WitnessScript:       bytes.Clone(out.WitnessScript),
		Bip32Derivations:    cloneBip32(out.Bip32Derivations),
		TapInternalKey:      bytes.Clone(out.TapInternalKey),
		TapTree:             out.TapTree,
		TapBip32Derivations: cloneTapBip32(out.TapBip32Derivations),
		Unknowns:            cloneUnknowns(out.Unknowns),
	}
}

func cloneUnknowns(unknowns []Unknown) []Unknown {
	var cloned []Unknown
	for _, u := range unknowns {
		cloned = append(cloned, Unknown{Key: bytes.Clone(u.Key), Value: bytes.Clone(u.Value)})
	}

	return cloned
}

func cloneBip32(derivations []Bip32Derivation) []Bip32Derivation {
	var cloned []Bip32Derivation
	for _, d := range derivations {
		cloned = append(cloned, Bip32Derivation{
			PubKey:            bytes.Clone(d.PubKey),
			MasterFingerprint: d.MasterFingerprint,
			Path:              slices.Clone(d.Path),
		})
	}

	return cloned
}

func cloneTapBip32(derivations []TapBip32Derivation) []TapBip32Derivation {
	var cloned []TapBip32Derivation
	for _, d := range derivations {
		cloned = append(cloned, TapBip32Derivation{
			XOnlyPubKey:       bytes.Clone(d.XOnlyPubKey),
			LeafHashes:        cloneStack(d.LeafHashes),
			MasterFingerprint: d.MasterFingerprint,
			Path:              slices.Clone(d.Path),
		})
	}

	return cloned
}

func cloneStack(stack [][]byte) [][]byte {
	if stack == nil {
		return nil
	}

	cloned := make([][]byte, len(stack))
	for i, item := range stack {
		cloned[i] = bytes.Clone(item)
	}

	return cloned
}
