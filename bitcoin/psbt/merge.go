// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
)

// mergeBytes returns the non nil value of a and b, fails if both are set and differ.
func mergeBytes(field string, a, b []byte) ([]byte, error) {
	switch {
	case a == nil:
		return b, nil
	case b == nil || bytes.Equal(a, b):
		return a, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrConflict, field)
	}
}

// mergeList returns sorted union of a and b, items with equal keys must be equal.
func mergeList[T any](field string, a, b []T, compare func(a, b T) int, equal func(a, b T) bool) ([]T, error) {
	merged := slices.Clone(a)
	for _, item := range b {
		i, found := slices.BinarySearchFunc(merged, item, compare)
		if !found {
			merged = slices.Insert(merged, i, item)
			continue
		}
		if !equal(merged[i], item) {
			return nil, fmt.Errorf("%w: %s", ErrConflict, field)
		}
	}

	return merged, nil
}

func mergeGlobal(dst *Global, src Global) error {
	var err error
	if dst.Version != src.Version {
		return fmt.Errorf("%w: version", ErrConflict)
	}
	if dst.Xpubs, err = mergeList("xpub", dst.Xpubs, src.Xpubs, compareXpubs, func(a, b Xpub) bool {
		return a.MasterFingerprint == b.MasterFingerprint && slices.Equal(a.Path, b.Path)
	}); err != nil {
		return err
	}

	dst.Unknowns, err = mergeUnknowns(dst.Unknowns, src.Unknowns)

	return err
}

// mergeInput merges src into dst.
// Partial data of the finalized result is dropped.
func mergeInput(dst *Input, src Input) error {
	var err error
	switch {
	case dst.NonWitnessUtxo == nil:
		dst.NonWitnessUtxo = src.NonWitnessUtxo
	case src.NonWitnessUtxo != nil && !dst.NonWitnessUtxo.Equal(src.NonWitnessUtxo):
		return fmt.Errorf("%w: non witness utxo", ErrConflict)
	}

	switch {
	case dst.WitnessUtxo == nil:
		dst.WitnessUtxo = src.WitnessUtxo
	case src.WitnessUtxo != nil && !outputsEqual(dst.WitnessUtxo, src.WitnessUtxo):
		return fmt.Errorf("%w: witness utxo", ErrConflict)
	}

	switch {
	case dst.SighashType.IsNone():
		dst.SighashType = src.SighashType
	case src.SighashType.IsSome() && dst.SighashType.UnwrapOr(0) != src.SighashType.UnwrapOr(0):
		return fmt.Errorf("%w: sighash type", ErrConflict)
	}

	if dst.RedeemScript, err = mergeBytes("redeem script", dst.RedeemScript, src.RedeemScript); err != nil {
		return err
	}
	if dst.WitnessScript, err = mergeBytes("witness script", dst.WitnessScript, src.WitnessScript); err != nil {
		return err
	}
	if dst.FinalScriptSig, err = mergeBytes("final scriptSig", dst.FinalScriptSig, src.FinalScriptSig); err != nil {
		return err
	}

	switch {
	case dst.FinalScriptWitness == nil:
		dst.FinalScriptWitness = src.FinalScriptWitness
	case src.FinalScriptWitness != nil && !slices.EqualFunc(dst.FinalScriptWitness, src.FinalScriptWitness, bytes.Equal):
		return fmt.Errorf("%w: final witness", ErrConflict)
	}

	if dst.TapKeySig, err = mergeBytes("taproot key signature", dst.TapKeySig, src.TapKeySig); err != nil {
		return err
	}
	if dst.TapInternalKey, err = mergeBytes("taproot internal key", dst.TapInternalKey, src.TapInternalKey); err != nil {
		return err
	}
	if dst.TapMerkleRoot, err = mergeBytes("taproot merkle root", dst.TapMerkleRoot, src.TapMerkleRoot); err != nil {
		return err
	}

	if dst.PartialSigs, err = mergeList("partial signature", dst.PartialSigs, src.PartialSigs, comparePartialSigs, func(a, b PartialSig) bool {
		return bytes.Equal(a.Signature, b.Signature)
	}); err != nil {
		return err
	}
	if dst.Bip32Derivations, err = mergeList("bip32 derivation", dst.Bip32Derivations, src.Bip32Derivations, compareBip32, bip32Equal); err != nil {
		return err
	}
	if dst.TapScriptSigs, err = mergeList("taproot script signature", dst.TapScriptSigs, src.TapScriptSigs, compareTapScriptSigs, func(a, b TapScriptSig) bool {
		return bytes.Equal(a.Signature, b.Signature)
	}); err != nil {
		return err
	}
	if dst.TapLeafScripts, err = mergeList("taproot leaf script", dst.TapLeafScripts, src.TapLeafScripts, compareTapLeafScripts, func(a, b TapLeafScript) bool {
		return a.LeafVersion == b.LeafVersion && bytes.Equal(a.Script, b.Script)
	}); err != nil {
		return err
	}
	if dst.TapBip32Derivations, err = mergeList("taproot bip32 derivation", dst.TapBip32Derivations, src.TapBip32Derivations, compareTapBip32, tapBip32Equal); err != nil {
		return err
	}
	if dst.Unknowns, err = mergeUnknowns(dst.Unknowns, src.Unknowns); err != nil {
		return err
	}

	if dst.IsFinalized() {
		dst.clearPartialData()
	}

	return nil
}

func mergeOutput(dst *Output, src Output) error {
	var err error
	if dst.RedeemScript, err = mergeBytes("redeem script", dst.RedeemScript, src.RedeemScript); err != nil {
		return err
	}
	if dst.WitnessScript, err = mergeBytes("witness script", dst.WitnessScript, src.WitnessScript); err != nil {
		return err
	}
	if dst.TapInternalKey, err = mergeBytes("taproot internal key", dst.TapInternalKey, src.TapInternalKey); err != nil {
		return err
	}

	switch {
	case dst.TapTree == nil:
		dst.TapTree = src.TapTree
	case src.TapTree != nil:
		a, errA := taproot.ToTapTreeList(dst.TapTree)
		b, errB := taproot.ToTapTreeList(src.TapTree)
		if errA != nil || errB != nil || !bytes.Equal(a, b) {
			return fmt.Errorf("%w: taproot tree", ErrConflict)
		}
	}

	if dst.Bip32Derivations, err = mergeList("bip32 derivation", dst.Bip32Derivations, src.Bip32Derivations, compareBip32, bip32Equal); err != nil {
		return err
	}
	if dst.TapBip32Derivations, err = mergeList("taproot bip32 derivation", dst.TapBip32Derivations, src.TapBip32Derivations, compareTapBip32, tapBip32Equal); err != nil {
		return err
	}

	dst.Unknowns, err = mergeUnknowns(dst.Unknowns, src.Unknowns)

	return err
}

func mergeUnknowns(a, b []Unknown) ([]Unknown, error) {
	return mergeList("unknown", a, b, compareUnknowns, func(a, b Unknown) bool { return bytes.Equal(a.Value, b.Value) })
}

func bip32Equal(a, b Bip32Derivation) bool {
	return a.MasterFingerprint == b.MasterFingerprint && slices.Equal(a.Path, b.Path)
}

func tapBip32Equal(a, b TapBip32Derivation) bool {
	return a.MasterFingerprint == b.MasterFingerprint && slices.Equal(a.Path, b.Path) &&
		slices.EqualFunc(a.LeafHashes, b.LeafHashes, bytes.Equal)
}

func outputsEqual(a, b *transaction.Output) bool {
	return a.Value == b.Value && bytes.Equal(a.Script, b.Script)
}

// clearPartialData drops everything of the finalized input except utxo, final scripts and unknowns.
func (in *Input) clearPartialData() {
	*in = Input{
		NonWitnessUtxo:     in.NonWitnessUtxo,
		WitnessUtxo:        in.WitnessUtxo,
		FinalScriptSig:     in.FinalScriptSig,
		FinalScriptWitness: in.FinalScriptWitness,
		Unknowns:           in.Unknowns,
	}
}
