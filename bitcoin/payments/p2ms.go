// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package payments

import (
	"bytes"
	"slices"

	"github.com/BoostyLabs/psbtkit/bitcoin/script"
)

// MaxMultisigKeys defines maximum number of public keys in bare multisig script.
const MaxMultisigKeys = 16

// P2MS returns m of n bare multisig payment.
// Derivable from: Output or M with Pubkeys, Input requires Signatures.
// INFO: public keys keep the given order unless WithSortedKeys is passed.
func P2MS(in Payment, opts ...Option) (*Payment, error) {
	o := newOptions(in.Network, opts)
	if in.Output == nil && in.Pubkeys == nil && in.Input == nil && in.Signatures == nil {
		return nil, notEnoughData(NameP2MS)
	}

	p := &Payment{Name: NameP2MS, Network: o.Network, M: in.M, N: in.N}

	if in.Output != nil {
		elements, err := script.Decompile(in.Output)
		if err != nil {
			return nil, mismatch(NameP2MS, "output", err.Error())
		}

		m, n, pubkeys, ok := parseP2MS(elements)
		if !ok {
			return nil, mismatch(NameP2MS, "output", "not a p2ms output script")
		}
		if o.Validate && p.M != 0 && p.M != m {
			return nil, mismatch(NameP2MS, "m", "conflicts with output")
		}
		if o.Validate && p.N != 0 && p.N != n {
			return nil, mismatch(NameP2MS, "n", "conflicts with output")
		}
		if o.Validate && in.Pubkeys != nil && !stacksEqual(in.Pubkeys, pubkeys) {
			return nil, mismatch(NameP2MS, "pubkeys", "conflicts with output")
		}

		p.M, p.N, p.Pubkeys = m, n, pubkeys
	}

	if p.Pubkeys == nil && in.Pubkeys != nil {
		p.Pubkeys = slices.Clone(in.Pubkeys)
		if o.SortKeys {
			slices.SortFunc(p.Pubkeys, bytes.Compare)
		}
		if o.Validate && p.N != 0 && p.N != len(p.Pubkeys) {
			return nil, mismatch(NameP2MS, "n", "conflicts with pubkeys")
		}

		p.N = len(p.Pubkeys)
	}

	if p.Pubkeys != nil {
		if p.M < 1 || p.M > p.N || p.N > MaxMultisigKeys {
			return nil, mismatch(NameP2MS, "m", "expected 1 <= m <= n <= %d, got m=%d n=%d", MaxMultisigKeys, p.M, p.N)
		}
		if o.Validate {
			for _, pubkey := range p.Pubkeys {
				if !o.Curve.IsPoint(pubkey) {
					return nil, mismatch(NameP2MS, "pubkeys", "invalid point %x", pubkey)
				}
			}
		}

		elements := make([]script.Element, 0, p.N+3)
		elements = append(elements, script.Number(int64(p.M)))
		for _, pubkey := range p.Pubkeys {
			elements = append(elements, script.Data(pubkey))
		}
		elements = append(elements, script.Number(int64(p.N)), script.Op(script.OP_CHECKMULTISIG))
		p.Output = script.Compile(elements)
	}

	p.Signatures = in.Signatures
	if in.Input != nil {
		stack, err := pushStack(NameP2MS, in.Input)
		if err != nil {
			return nil, err
		}
		if len(stack) == 0 || len(stack[0]) != 0 {
			return nil, mismatch(NameP2MS, "input", "must start with OP_0")
		}
		if o.Validate && p.Signatures != nil && !stacksEqual(p.Signatures, stack[1:]) {
			return nil, mismatch(NameP2MS, "signatures", "conflicts with input")
		}

		p.Signatures = stack[1:]
	}

	if p.Signatures != nil {
		if o.Validate {
			if p.M != 0 && len(p.Signatures) != p.M {
				return nil, mismatch(NameP2MS, "signatures", "expected %d signatures, got %d", p.M, len(p.Signatures))
			}
			for _, sig := range p.Signatures {
				if !script.IsCanonicalScriptSignature(sig) {
					return nil, mismatch(NameP2MS, "signatures", "invalid signature")
				}
			}
		}

		p.Input = script.Compile(append([]script.Element{script.Op(script.OP_0)}, script.FromStack(p.Signatures)...))
		p.Witness = [][]byte{}
	}

	if p.Output == nil && p.Input == nil {
		return nil, notEnoughData(NameP2MS)
	}

	return p, nil
}
