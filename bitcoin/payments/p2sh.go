// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package payments

import (
	"bytes"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
)

// P2SH returns pay to script hash payment.
// Derivable from: Address, Hash, Output, Redeem or Input.
// INFO: for nested segwit the redeem payment carries Witness and an empty Input.
func P2SH(in Payment, opts ...Option) (*Payment, error) {
	o := newOptions(in.Network, opts)
	if in.Address == "" && in.Hash == nil && in.Output == nil && in.Redeem == nil && in.Input == nil {
		return nil, notEnoughData(NameP2SH)
	}

	hash := field{payment: NameP2SH, validate: o.Validate}

	if in.Address != "" {
		decoded, err := FromBase58Check(in.Address)
		if err != nil {
			return nil, mismatch(NameP2SH, "address", err.Error())
		}
		if o.Validate && decoded.Version != o.Network.ScriptHashAddrID {
			return nil, mismatch(NameP2SH, "address", "invalid version 0x%02x", decoded.Version)
		}

		if err := hash.set("address", decoded.Hash); err != nil {
			return nil, err
		}
	}

	if in.Hash != nil {
		if len(in.Hash) != hashLen {
			return nil, mismatch(NameP2SH, "hash", "invalid length %d", len(in.Hash))
		}
		if err := hash.set("hash", in.Hash); err != nil {
			return nil, err
		}
	}

	if in.Output != nil {
		if !isP2SHOutput(in.Output) {
			return nil, mismatch(NameP2SH, "output", "not a p2sh output script")
		}
		if err := hash.set("output", in.Output[2:22]); err != nil {
			return nil, err
		}
	}

	redeem, err := p2shRedeem(in, o)
	if err != nil {
		return nil, err
	}

	if redeem != nil && redeem.Output != nil {
		if err := hash.set("redeem.output", crypto.Default.Hash160(redeem.Output)); err != nil {
			return nil, err
		}
	}

	if hash.value == nil {
		return nil, notEnoughData(NameP2SH)
	}

	p := &Payment{
		Name:    NameP2SH,
		Network: o.Network,
		Hash:    hash.value,
		Output:  p2shOutput(hash.value),
		Address: ToBase58Check(hash.value, o.Network.ScriptHashAddrID),
		Redeem:  redeem,
	}

	if redeem != nil {
		if redeem.Name != "" {
			p.Name = NameP2SH + "-" + redeem.Name
		}

		if redeem.Input != nil && redeem.Output != nil {
			elements, err := script.Decompile(redeem.Input)
			if err != nil {
				return nil, mismatch(NameP2SH, "redeem.input", err.Error())
			}

			p.Input = script.Compile(append(elements, script.Data(redeem.Output)))
		}

		switch {
		case len(redeem.Witness) > 0:
			p.Witness = redeem.Witness
		case p.Input != nil:
			p.Witness = [][]byte{}
		}
	}

	if o.Validate && in.Input != nil && p.Input != nil && !bytes.Equal(in.Input, p.Input) {
		return nil, mismatch(NameP2SH, "input", "conflicts with redeem")
	}
	if o.Validate && in.Witness != nil && p.Witness != nil && !stacksEqual(in.Witness, p.Witness) {
		return nil, mismatch(NameP2SH, "witness", "conflicts with redeem")
	}

	return p, nil
}

// p2shRedeem returns redeem payment collected from Redeem and Input fields.
func p2shRedeem(in Payment, o Options) (*Payment, error) {
	var fromInput *Payment
	if in.Input != nil {
		elements, err := script.Decompile(in.Input)
		if err != nil {
			return nil, mismatch(NameP2SH, "input", err.Error())
		}
		if len(elements) == 0 || !script.IsPushOnly(elements) {
			return nil, mismatch(NameP2SH, "input", "expected push only script with redeem script")
		}

		last := elements[len(elements)-1]
		redeemOutput, err := script.ToStack([]script.Element{last})
		if err != nil {
			return nil, mismatch(NameP2SH, "input", err.Error())
		}

		fromInput = &Payment{
			Network: o.Network,
			Output:  redeemOutput[0],
			Input:   script.Compile(elements[:len(elements)-1]),
			Witness: in.Witness,
		}
	}

	redeem := in.Redeem
	switch {
	case redeem == nil && fromInput == nil:
		return nil, nil
	case redeem == nil:
		redeem = fromInput
	case fromInput != nil:
		if o.Validate && redeem.Output != nil && !bytes.Equal(redeem.Output, fromInput.Output) {
			return nil, mismatch(NameP2SH, "redeem.output", "conflicts with input")
		}
		if o.Validate && redeem.Input != nil && !bytes.Equal(redeem.Input, fromInput.Input) {
			return nil, mismatch(NameP2SH, "redeem.input", "conflicts with input")
		}

		merged := *redeem
		if merged.Output == nil {
			merged.Output = fromInput.Output
		}
		if merged.Input == nil {
			merged.Input = fromInput.Input
		}
		if merged.Witness == nil {
			merged.Witness = fromInput.Witness
		}
		redeem = &merged
	}

	if o.Validate {
		if err := validateRedeem(NameP2SH, redeem, o); err != nil {
			return nil, err
		}
	}

	return redeem, nil
}

// validateRedeem checks redeem payment shared by p2sh and p2wsh.
func validateRedeem(payment string, redeem *Payment, o Options) error {
	if redeem.Network != nil && redeem.Network.Name != o.Network.Name {
		return mismatch(payment, "redeem.network", "network mismatch")
	}

	if redeem.Output != nil {
		elements, err := script.Decompile(redeem.Output)
		if err != nil {
			return mismatch(payment, "redeem.output", err.Error())
		}
		if len(elements) == 0 {
			return mismatch(payment, "redeem.output", "empty redeem script")
		}
	}

	if len(redeem.Input) > 0 {
		if len(redeem.Witness) > 0 {
			return mismatch(payment, "redeem", "input and witness provided")
		}

		elements, err := script.Decompile(redeem.Input)
		if err != nil || !script.IsPushOnly(elements) {
			return mismatch(payment, "redeem.input", "not push only")
		}
	}

	return nil
}
