// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package payments

import (
	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
)

// P2PKH returns pay to public key hash payment.
// Derivable from: Address, Hash, Output, Pubkey or Input.
func P2PKH(in Payment, opts ...Option) (*Payment, error) {
	o := newOptions(in.Network, opts)
	if in.Address == "" && in.Hash == nil && in.Output == nil && in.Pubkey == nil && in.Input == nil {
		return nil, notEnoughData(NameP2PKH)
	}

	hash := field{payment: NameP2PKH, validate: o.Validate}
	pubkey := field{payment: NameP2PKH, validate: o.Validate}
	signature := field{payment: NameP2PKH, validate: o.Validate}

	if in.Address != "" {
		decoded, err := FromBase58Check(in.Address)
		if err != nil {
			return nil, mismatch(NameP2PKH, "address", err.Error())
		}
		if o.Validate && decoded.Version != o.Network.PubKeyHashAddrID {
			return nil, mismatch(NameP2PKH, "address", "invalid version 0x%02x", decoded.Version)
		}

		if err := hash.set("address", decoded.Hash); err != nil {
			return nil, err
		}
	}

	if in.Hash != nil {
		if len(in.Hash) != hashLen {
			return nil, mismatch(NameP2PKH, "hash", "invalid length %d", len(in.Hash))
		}
		if err := hash.set("hash", in.Hash); err != nil {
			return nil, err
		}
	}

	if in.Output != nil {
		if !isP2PKHOutput(in.Output) {
			return nil, mismatch(NameP2PKH, "output", "not a p2pkh output script")
		}
		if err := hash.set("output", in.Output[3:23]); err != nil {
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
		stack, err := pushStack(NameP2PKH, in.Input)
		if err != nil {
			return nil, err
		}
		if len(stack) != 2 {
			return nil, mismatch(NameP2PKH, "input", "expected 2 pushes, got %d", len(stack))
		}
		if o.Validate && !script.IsCanonicalScriptSignature(stack[0]) {
			return nil, mismatch(NameP2PKH, "input", "invalid signature")
		}
		if err := signature.set("input", stack[0]); err != nil {
			return nil, err
		}
		if err := pubkey.set("input", stack[1]); err != nil {
			return nil, err
		}
	}

	if pubkey.value != nil {
		if o.Validate && !o.Curve.IsPoint(pubkey.value) {
			return nil, mismatch(NameP2PKH, "pubkey", "invalid point")
		}
		if err := hash.set(pubkey.name, crypto.Default.Hash160(pubkey.value)); err != nil {
			return nil, err
		}
	}

	if hash.value == nil {
		return nil, notEnoughData(NameP2PKH)
	}

	p := &Payment{
		Name:      NameP2PKH,
		Network:   o.Network,
		Hash:      hash.value,
		Output:    p2pkhOutput(hash.value),
		Address:   ToBase58Check(hash.value, o.Network.PubKeyHashAddrID),
		Pubkey:    pubkey.value,
		Signature: signature.value,
	}
	if p.Pubkey != nil && p.Signature != nil {
		p.Input = script.Compile(script.FromStack([][]byte{p.Signature, p.Pubkey}))
		p.Witness = [][]byte{}
	}

	return p, nil
}

// pushStack decompiles push only script into stack items.
func pushStack(payment string, b []byte) ([][]byte, error) {
	elements, err := script.Decompile(b)
	if err != nil {
		return nil, mismatch(payment, "input", err.Error())
	}
	if !script.IsPushOnly(elements) {
		return nil, mismatch(payment, "input", "not push only")
	}

	stack, err := script.ToStack(elements)
	if err != nil {
		return nil, mismatch(payment, "input", err.Error())
	}

	return stack, nil
}
