// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package payments

import (
	"strings"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
)

// P2WPKH returns pay to witness public key hash payment.
// Derivable from: Address, Hash, Output, Pubkey or Witness.
func P2WPKH(in Payment, opts ...Option) (*Payment, error) {
	o := newOptions(in.Network, opts)
	if in.Address == "" && in.Hash == nil && in.Output == nil && in.Pubkey == nil && in.Witness == nil {
		return nil, notEnoughData(NameP2WPKH)
	}

	hash := field{payment: NameP2WPKH, validate: o.Validate}
	pubkey := field{payment: NameP2WPKH, validate: o.Validate}
	signature := field{payment: NameP2WPKH, validate: o.Validate}

	if in.Address != "" {
		program, err := decodeSegwitAddress(NameP2WPKH, in.Address, 0, witnessV0Len, o)
		if err != nil {
			return nil, err
		}

		if err := hash.set("address", program); err != nil {
			return nil, err
		}
	}

	if in.Hash != nil {
		if len(in.Hash) != hashLen {
			return nil, mismatch(NameP2WPKH, "hash", "invalid length %d", len(in.Hash))
		}
		if err := hash.set("hash", in.Hash); err != nil {
			return nil, err
		}
	}

	if in.Output != nil {
		if !isP2WPKHOutput(in.Output) {
			return nil, mismatch(NameP2WPKH, "output", "not a p2wpkh output script")
		}
		if err := hash.set("output", in.Output[2:]); err != nil {
			return nil, err
		}
	}

	if err := pubkey.set("pubkey", in.Pubkey); err != nil {
		return nil, err
	}
	if err := signature.set("signature", in.Signature); err != nil {
		return nil, err
	}

	if in.Witness != nil {
		if len(in.Witness) != 2 {
			return nil, mismatch(NameP2WPKH, "witness", "expected 2 items, got %d", len(in.Witness))
		}
		if o.Validate && !script.IsCanonicalScriptSignature(in.Witness[0]) {
			return nil, mismatch(NameP2WPKH, "witness", "invalid signature")
		}
		if err := signature.set("witness", in.Witness[0]); err != nil {
			return nil, err
		}
		if err := pubkey.set("witness", in.Witness[1]); err != nil {
			return nil, err
		}
	}

	if pubkey.value != nil {
		if o.Validate && (len(pubkey.value) != 33 || !o.Curve.IsPoint(pubkey.value)) {
			return nil, mismatch(NameP2WPKH, "pubkey", "expected compressed point")
		}
		if err := hash.set(pubkey.name, crypto.Default.Hash160(pubkey.value)); err != nil {
			return nil, err
		}
	}

	if hash.value == nil {
		return nil, notEnoughData(NameP2WPKH)
	}

	address, err := ToBech32(hash.value, 0, o.Network.Bech32HRPSegwit)
	if err != nil {
		return nil, mismatch(NameP2WPKH, "hash", err.Error())
	}

	p := &Payment{
		Name:      NameP2WPKH,
		Network:   o.Network,
		Hash:      hash.value,
		Output:    p2wpkhOutput(hash.value),
		Address:   address,
		Pubkey:    pubkey.value,
		Signature: signature.value,
	}
	if p.Pubkey != nil && p.Signature != nil {
		p.Witness = [][]byte{p.Signature, p.Pubkey}
		p.Input = []byte{}
	}

	if o.Validate && len(in.Input) != 0 {
		return nil, mismatch(NameP2WPKH, "input", "must be empty")
	}

	return p, nil
}

// decodeSegwitAddress returns witness program of the address with expected version and program length.
func decodeSegwitAddress(payment, address string, version byte, length int, o Options) ([]byte, error) {
	decoded, err := FromBech32(address)
	if err != nil {
		return nil, mismatch(payment, "address", err.Error())
	}
	if o.Validate && !strings.EqualFold(decoded.Prefix, o.Network.Bech32HRPSegwit) {
		return nil, mismatch(payment, "address", "invalid prefix %s", decoded.Prefix)
	}
	if decoded.Version != version || len(decoded.Program) != length {
		return nil, mismatch(payment, "address", "invalid version %d or program length %d", decoded.Version, len(decoded.Program))
	}

	return decoded.Program, nil
}
