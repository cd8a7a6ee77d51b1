// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package payments

import (
	"bytes"

	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
)

// P2TR returns pay to taproot payment.
// Derivable from: Address, Output, Pubkey (output key), InternalPubkey with optional
// ScriptTree or Hash, or script path Witness.
// INFO: script path witness is derived from Redeem (Output, Witness) when ScriptTree and InternalPubkey are known.
func P2TR(in Payment, opts ...Option) (*Payment, error) {
	o := newOptions(in.Network, opts)
	if in.Address == "" && in.Output == nil && in.Pubkey == nil && in.InternalPubkey == nil && in.Witness == nil {
		return nil, notEnoughData(NameP2TR)
	}

	outputKey := field{payment: NameP2TR, validate: o.Validate}
	internalKey := field{payment: NameP2TR, validate: o.Validate}
	root := field{payment: NameP2TR, validate: o.Validate}
	signature := field{payment: NameP2TR, validate: o.Validate}

	if in.Address != "" {
		program, err := decodeSegwitAddress(NameP2TR, in.Address, 1, taprootLen, o)
		if err != nil {
			return nil, err
		}

		if err := outputKey.set("address", program); err != nil {
			return nil, err
		}
	}

	if in.Output != nil {
		if !isP2TROutput(in.Output) {
			return nil, mismatch(NameP2TR, "output", "not a p2tr output script")
		}
		if err := outputKey.set("output", in.Output[2:]); err != nil {
			return nil, err
		}
	}

	if in.Pubkey != nil {
		if len(in.Pubkey) != taprootLen {
			return nil, mismatch(NameP2TR, "pubkey", "invalid length %d", len(in.Pubkey))
		}
		if err := outputKey.set("pubkey", in.Pubkey); err != nil {
			return nil, err
		}
	}

	var hashTree *taproot.HashTree
	if in.ScriptTree != nil {
		var err error
		if hashTree, err = taproot.ToHashTree(in.ScriptTree); err != nil {
			return nil, mismatch(NameP2TR, "scriptTree", err.Error())
		}

		if err := root.set("scriptTree", hashTree.Hash); err != nil {
			return nil, err
		}
	}

	if in.Hash != nil {
		if len(in.Hash) != 32 {
			return nil, mismatch(NameP2TR, "hash", "invalid length %d", len(in.Hash))
		}
		if err := root.set("hash", in.Hash); err != nil {
			return nil, err
		}
	}

	if err := signature.set("signature", in.Signature); err != nil {
		return nil, err
	}

	var (
		fromWitness  *Payment
		controlBlock *taproot.ControlBlock
	)
	if in.Witness != nil {
		stack := stripAnnex(in.Witness)
		switch {
		case len(stack) == 0:
			return nil, mismatch(NameP2TR, "witness", "empty witness")
		case len(stack) == 1:
			if err := signature.set("witness", stack[0]); err != nil {
				return nil, err
			}
		default:
			var err error
			if controlBlock, err = taproot.ParseControlBlock(stack[len(stack)-1]); err != nil {
				return nil, mismatch(NameP2TR, "witness", err.Error())
			}

			leaf := taproot.Leaf{Script: stack[len(stack)-2], Version: controlBlock.LeafVersion}
			fromWitness = &Payment{
				Network:       o.Network,
				Output:        leaf.Script,
				Witness:       stack[:len(stack)-2],
				RedeemVersion: leaf.LeafVersion(),
			}

			if err := internalKey.set("witness", controlBlock.InternalKey); err != nil {
				return nil, err
			}
			if err := root.set("witness", controlBlock.RootHash(leaf.Hash())); err != nil {
				return nil, err
			}
		}
	}

	if err := internalKey.set("internalPubkey", in.InternalPubkey); err != nil {
		return nil, err
	}

	var parity byte
	if internalKey.value != nil {
		tweaked, err := taproot.TweakKey(o.Curve, internalKey.value, root.value).
			UnwrapOrErr(mismatch(NameP2TR, internalKey.name, "invalid internal key or tweak"))
		if err != nil {
			return nil, err
		}

		parity = tweaked.Parity
		if err := outputKey.set(internalKey.name, tweaked.XOnly); err != nil {
			return nil, err
		}
		if o.Validate && controlBlock != nil && controlBlock.OutputKeyParity != parity {
			return nil, mismatch(NameP2TR, "witness", "control block parity mismatch")
		}
	}

	if outputKey.value == nil {
		return nil, notEnoughData(NameP2TR)
	}
	if o.Validate && !o.Curve.IsXOnlyPoint(outputKey.value) {
		return nil, mismatch(NameP2TR, "pubkey", "invalid x-only point")
	}

	redeem, err := p2trRedeem(in, fromWitness, hashTree, o)
	if err != nil {
		return nil, err
	}

	address, err := ToBech32(outputKey.value, 1, o.Network.Bech32HRPSegwit)
	if err != nil {
		return nil, mismatch(NameP2TR, "pubkey", err.Error())
	}

	p := &Payment{
		Name:           NameP2TR,
		Network:        o.Network,
		Address:        address,
		Output:         p2trOutput(outputKey.value),
		Pubkey:         outputKey.value,
		InternalPubkey: internalKey.value,
		Hash:           root.value,
		ScriptTree:     in.ScriptTree,
		Signature:      signature.value,
		Redeem:         redeem,
	}
	if redeem != nil {
		p.RedeemVersion = redeem.RedeemVersion
	}

	switch {
	case in.Witness != nil:
		p.Witness = in.Witness
	case p.Signature != nil:
		p.Witness = [][]byte{p.Signature}
	case redeem != nil && redeem.Output != nil && redeem.Witness != nil && hashTree != nil && p.InternalPubkey != nil:
		leaf := taproot.Leaf{Script: redeem.Output, Version: redeem.RedeemVersion}
		cb, err := taproot.NewControlBlock(hashTree, leaf, p.InternalPubkey, parity)
		if err != nil {
			return nil, mismatch(NameP2TR, "redeem.output", err.Error())
		}

		p.Witness = append(append([][]byte{}, redeem.Witness...), redeem.Output, cb.Bytes())
	}
	if p.Witness != nil {
		p.Input = []byte{}
	}

	return p, nil
}

// p2trRedeem returns redeem leaf collected from Redeem and Witness fields.
func p2trRedeem(in Payment, fromWitness *Payment, hashTree *taproot.HashTree, o Options) (*Payment, error) {
	var redeem *Payment
	if in.Redeem != nil {
		copied := *in.Redeem
		redeem = &copied
		if redeem.RedeemVersion == 0 {
			redeem.RedeemVersion = in.RedeemVersion
		}
		if redeem.RedeemVersion == 0 {
			redeem.RedeemVersion = taproot.LeafVersionTapScript
		}
	}

	switch {
	case redeem == nil:
		redeem = fromWitness
	case fromWitness != nil:
		if o.Validate && redeem.Output != nil && !bytes.Equal(redeem.Output, fromWitness.Output) {
			return nil, mismatch(NameP2TR, "redeem.output", "conflicts with witness")
		}
		if o.Validate && redeem.RedeemVersion != fromWitness.RedeemVersion {
			return nil, mismatch(NameP2TR, "redeemVersion", "conflicts with witness")
		}
		if redeem.Output == nil {
			redeem.Output = fromWitness.Output
		}
		if redeem.Witness == nil {
			redeem.Witness = fromWitness.Witness
		}
	}

	if redeem != nil && o.Validate && hashTree != nil && redeem.Output != nil {
		leaf := taproot.Leaf{Script: redeem.Output, Version: redeem.RedeemVersion}
		if taproot.FindScriptPath(hashTree, leaf.Hash()).IsNone() {
			return nil, mismatch(NameP2TR, "redeem.output", "leaf is not a part of the script tree")
		}
	}

	return redeem, nil
}
