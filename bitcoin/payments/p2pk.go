// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package payments

import (
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
)

// P2PK returns pay to public key payment.
// Derivable from: Output or Pubkey, Input requires Signature.
func P2PK(in Payment, opts ...Option) (*Payment, error) {
	o := newOptions(in.Network, opts)
	if in.Output == nil && in.Pubkey == nil && in.Input == nil && in.Signature == nil {
		return nil, notEnoughData(NameP2PK)
	}

	pubkey := field{payment: NameP2PK, validate: o.Validate}
	signature := field{payment: NameP2PK, validate: o.Validate}

	if in.Output != nil {
		elements, err := script.Decompile(in.Output)
		if err != nil || !isP2PKOutput(elements) {
			return nil, mismatch(NameP2PK, "output", "not a p2pk output script")
		}

		if err := pubkey.set("output", elements[0].Data); err != nil {
			return nil, err
		}
	}

	if err := pubkey.set("pubkey", in.Pubkey); err != nil {
		return nil, err
	}
	if err := signature.set("signature", in.Signature); err != nil {
		return nil, err
	}

	if in.Input != nil {
		stack, err := pushStack(NameP2PK, in.Input)
		if err != nil {
			return nil, err
		}
		if len(stack) != 1 {
			return nil, mismatch(NameP2PK, "input", "expected 1 push, got %d", len(stack))
		}
		if o.Validate && !script.IsCanonicalScriptSignature(stack[0]) {
			return nil, mismatch(NameP2PK, "input", "invalid signature")
		}
		if err := signature.set("input", stack[0]); err != nil {
			return nil, err
		}
	}

	if pubkey.value != nil && o.Validate && !o.Curve.IsPoint(pubkey.value) {
		return nil, mismatch(NameP2PK, "pubkey", "invalid point")
	}

	p := &Payment{
		Name:      NameP2PK,
		Network:   o.Network,
		Pubkey:    pubkey.value,
		Signature: signature.value,
	}
	if p.Pubkey != nil {
		p.Output = script.Compile([]script.Element{script.Data(p.Pubkey), script.Op(script.OP_CHECKSIG)})
	}
	if p.Signature != nil {
		p.Input = script.Compile([]script.Element{script.Data(p.Signature)})
		p.Witness = [][]byte{}
	}

	if p.Output == nil && p.Input == nil {
		return nil, notEnoughData(NameP2PK)
	}

	return p, nil
}
