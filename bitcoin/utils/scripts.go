// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/psbt"
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
)

// maxMultiSigKeys defines max keys count in the multi-sig leaf script.
const maxMultiSigKeys = 999

// NewTaprootMultiSigLeafTapScript generates N of N multi-sig locking script for taproot leaf.
// INFO: Script will have the next format: {<pubKey1> OP_CHECKSIG [<pubKey2> OP_CHECKSIGADD [<pubKey3> OP_CHECKSIGADD ...]] <signListSize> OP_EQUAL}.
// NOTE: At least 2 public keys for multi-sig script generation is required, compressed keys are converted to x-only.
func NewTaprootMultiSigLeafTapScript(pubKeys ...[]byte) ([]byte, error) {
	if len(pubKeys) < 2 {
		return nil, errors.New("at least 2 public keys are required")
	}
	if len(pubKeys) > maxMultiSigKeys {
		return nil, fmt.Errorf("max allowed public keys: %d", maxMultiSigKeys)
	}

	checkSigOp := script.OP_CHECKSIG
	elements := make([]script.Element, 0, 2*len(pubKeys)+2)
	for i, pubKey := range pubKeys {
		xOnly := taproot.XOnly(pubKey)
		if !crypto.DefaultCurve().IsXOnlyPoint(xOnly) {
			return nil, fmt.Errorf("invalid public key %x", pubKey)
		}

		elements = append(elements, script.Data(xOnly), script.Op(checkSigOp))
		if i == 0 {
			checkSigOp = script.OP_CHECKSIGADD
		}
	}

	elements = append(elements, script.Number(int64(len(pubKeys))), script.Op(script.OP_EQUAL))

	return script.Compile(elements), nil
}

// MustTaprootMultiSigLeafTapScript uses NewTaprootMultiSigLeafTapScript, panics in case of error.
func MustTaprootMultiSigLeafTapScript(pubKeys ...[]byte) []byte {
	leafScript, err := NewTaprootMultiSigLeafTapScript(pubKeys...)
	if err != nil {
		panic(err)
	}

	return leafScript
}

// NewUnspendableScript builds provably unspendable script (e.g. OP_RETURN) with optional data added after.
// INFO: Def: https://en.bitcoin.it/wiki/OP_RETURN.
func NewUnspendableScript(msg ...byte) []byte {
	elements := []script.Element{script.Op(script.OP_RETURN)}
	if len(msg) > 0 {
		elements = append(elements, script.Data(msg))
	}

	return script.Compile(elements)
}

// NewTapScriptTreeFromRawScripts builds tapScript tree from provided raw leaf scripts.
// INFO: leaves are paired into branches, the odd last leaf joins the last branch,
// then branches are merged pairwise in queue order until the root remains.
func NewTapScriptTreeFromRawScripts(leafScripts ...[]byte) (taproot.Tree, error) {
	switch len(leafScripts) {
	case 0:
		return nil, errors.New("no leaf scripts provided")
	case 1:
		return taproot.NewLeaf(leafScripts[0]), nil
	}

	branches := make([]taproot.Tree, 0, len(leafScripts)/2)
	for i := 0; i+1 < len(leafScripts); i += 2 {
		branches = append(branches, taproot.Branch{
			Left:  taproot.NewLeaf(leafScripts[i]),
			Right: taproot.NewLeaf(leafScripts[i+1]),
		})
	}
	if len(leafScripts)%2 == 1 {
		last := len(branches) - 1
		branches[last] = taproot.Branch{Left: branches[last], Right: taproot.NewLeaf(leafScripts[len(leafScripts)-1])}
	}

	for len(branches) > 1 {
		branches = append(branches[2:], taproot.Branch{Left: branches[0], Right: branches[1]})
	}

	return branches[0], nil
}

// MustTapScriptTreeFromRawScripts uses NewTapScriptTreeFromRawScripts, panics in case of error.
func MustTapScriptTreeFromRawScripts(leafScripts ...[]byte) taproot.Tree {
	tree, err := NewTapScriptTreeFromRawScripts(leafScripts...)
	if err != nil {
		panic(err)
	}

	return tree
}

// UpdatePSBTInputWithTapScriptLeafData updates provided psbt input with all data needed to sign
// taproot utxo with the leaf script of the tree.
// NOTE: TapInternalKey of the input must be set, existing leaf scripts and merkle root are kept.
func UpdatePSBTInputWithTapScriptLeafData(input *psbt.Input, tree taproot.Tree, leafScript []byte) error {
	if len(input.TapInternalKey) == 0 {
		return errors.New("no taproot internal key provided")
	}
	if len(leafScript) == 0 {
		return errors.New("no leaf script provided")
	}

	hashTree, err := taproot.ToHashTree(tree)
	if err != nil {
		return err
	}

	tweaked, err := taproot.TweakKey(crypto.DefaultCurve(), input.TapInternalKey, hashTree.Hash).
		UnwrapOrErr(fmt.Errorf("invalid taproot internal key %x", input.TapInternalKey))
	if err != nil {
		return err
	}

	leaf := taproot.NewLeaf(leafScript)
	controlBlock, err := taproot.NewControlBlock(hashTree, leaf, input.TapInternalKey, tweaked.Parity)
	if err != nil {
		return err
	}

	tapLeafScript := psbt.TapLeafScript{
		ControlBlock: controlBlock.Bytes(),
		Script:       leaf.Script,
		LeafVersion:  leaf.LeafVersion(),
	}

	exists := false
	for _, existing := range input.TapLeafScripts {
		if bytes.Equal(existing.ControlBlock, tapLeafScript.ControlBlock) {
			exists = true
			break
		}
	}
	if !exists {
		input.TapLeafScripts = append(input.TapLeafScripts, tapLeafScript)
	}

	if len(input.TapMerkleRoot) == 0 {
		input.TapMerkleRoot = hashTree.Hash
	}

	return nil
}
