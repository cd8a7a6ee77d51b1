// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package payments

import (
	"bytes"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
)

// P2WSH returns pay to witness script hash payment.
// Derivable from: Address, Hash, Output, Redeem or Witness.
// INFO: redeem Input (e.g. p2ms) is converted into witness items.
func P2WSH(in Payment, opts ...Option) (*Payment, error) {
	o := newOptions(in.Network, opts)
	if in.Address == "" && in.Hash == nil && in.Output == nil && in.Redeem == nil && in.Witness == nil {
		return nil, notEnoughData(NameP2WSH)
	}

	hash := field{payment: NameP2WSH, validate: o.Validate}

	if in.Address != "" {
		program, err := decodeSegwitAddress(NameP2WSH, in.Address, 0, witnessV0SLen, o)
		if err != nil {
			return nil, err
		}

		if err := hash.set("address", program); err != nil {
			return nil, err
		}
	}

	if in.Hash != nil {
		if len(in.Hash) != witnessV0SLen {
			return nil, mismatch(NameP2WSH, "hash", "invalid length %d", len(in.Hash))
		}
		if err := hash.set("hash", in.Hash); err != nil {
			return nil, err
		}
	}

	if in.Output != nil {
		if !isP2WSHOutput(in.Output) {
			return nil, mismatch(NameP2WSH, "output", "not a p2wsh output script")
		}
		if err := hash.set("output", in.Output[2:]); err != nil {
			return nil, err
		}
	}

	redeem, err := p2wshRedeem(in, o)
	if err != nil {
		return nil, err
	}

	if redeem != nil && redeem.Output != nil {
		if err := hash.set("redeem.output", crypto.Default.SHA256(redeem.Output)); err != nil {
			return nil, err
		}
	}

	if hash.value == nil {
		return nil, notEnoughData(NameP2WSH)
	}

	address, err := ToBech32(hash.value, 0, o.Network.Bech32HRPSegwit)
	if err != nil {
		return nil, mismatch(NameP2WSH, "hash", err.Error())
	}

	p := &Payment{
		Name:    NameP2WSH,
		Network: o.Network,
		Hash:    hash.value,
		Output:  p2wshOutput(hash.value),
		Address: address,
		Redeem:  redeem,
	}

	if redeem != nil {
		if redeem.Name != "" {
			p.Name = NameP2WSH + "-" + redeem.Name
		}

		if redeem.Output != nil && redeem.Witness != nil {
			p.Witness = append(append([][]byte{}, redeem.Witness...), redeem.Output)
			p.Input = []byte{}
		}
	}

	if o.Validate {
		if len(in.Input) != 0 {
			return nil, mismatch(NameP2WSH, "input", "must be empty")
		}
		if in.Witness != nil && p.Witness != nil && !stacksEqual(in.Witness, p.Witness) {
			return nil, mismatch(NameP2WSH, "witness", "conflicts with redeem")
		}
	}

	return p, nil
}

// p2wshRedeem returns redeem payment collected from Redeem and Witness fields.
func p2wshRedeem(in Payment, o Options) (*Payment, error) {
	var fromWitness *Payment
	if len(in.Witness) > 0 {
		fromWitness = &Payment{
			Network: o.Network,
			Output:  in.Witness[len(in.Witness)-1],
			Witness: in.Witness[:len(in.Witness)-1],
		}
	}

	var redeem *Payment
	if in.Redeem != nil {
		copied := *in.Redeem
		redeem = &copied

		// input only redeem (e.g. p2ms) becomes witness stack.
		if len(redeem.Input) > 0 && len(redeem.Witness) == 0 {
			if o.Validate {
				if err := validateRedeem(NameP2WSH, redeem, o); err != nil {
					return nil, err
				}
			}

			stack, err := pushStack(NameP2WSH, redeem.Input)
			if err != nil {
				return nil, err
			}

			redeem.Witness = stack
			redeem.Input = []byte{}
		}
	}

	switch {
	case redeem == nil && fromWitness == nil:
		return nil, nil
	case redeem == nil:
		redeem = fromWitness
	case fromWitness != nil:
		if o.Validate && redeem.Output != nil && !bytes.Equal(redeem.Output, fromWitness.Output) {
			return nil, mismatch(NameP2WSH, "redeem.output", "conflicts with witness")
		}
		if redeem.Output == nil {
			redeem.Output = fromWitness.Output
		}
		if redeem.Witness == nil {
			redeem.Witness = fromWitness.Witness
		}
	}

	if o.Validate {
		if err := validateRedeem(NameP2WSH, redeem, o); err != nil {
			return nil, err
		}
		if err := checkWitnessPubkeys(redeem); err != nil {
			return nil, err
		}
	}

	return redeem, nil
}

// checkWitnessPubkeys rejects uncompressed public keys in the witness script and the stack.
func checkWitnessPubkeys(redeem *Payment) error {
	if redeem.Output != nil {
		elements, err := script.Decompile(redeem.Output)
		if err != nil {
			return mismatch(NameP2WSH, "redeem.output", err.Error())
		}

		for _, e := range elements {
			if e.IsData() && len(e.Data) == 65 && script.IsCanonicalPubKey(e.Data) {
				return mismatch(NameP2WSH, "redeem.output", "uncompressed public key")
			}
		}
	}

	for _, item := range redeem.Witness {
		if len(item) == 65 && script.IsCanonicalPubKey(item) {
			return mismatch(NameP2WSH, "redeem.witness", "uncompressed public key")
		}
	}

	return nil
}
