// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt

import (
	"fmt"

	"github.com/BoostyLabs/psbtkit/bitcoin/script"
	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
)

// ValidateSignaturesOfInput verifies every partial signature of the input.
func (p *Psbt) ValidateSignaturesOfInput(index int) error {
	if index < 0 || index >= len(p.Inputs) {
		return ErrInputIndex
	}

	in := &p.Inputs[index]
	if len(in.PartialSigs) == 0 && in.TapKeySig == nil && len(in.TapScriptSigs) == 0 {
		return fmt.Errorf("input %d: %w", index, ErrNoSignatures)
	}

	info, err := p.spendInfo(index)
	if err != nil {
		return err
	}

	if info.isTaproot {
		return p.validateTaprootSignatures(index, info)
	}

	cache := p.sigHashCache()
	for _, sig := range in.PartialSigs {
		decoded, err := script.DecodeSignature(sig.Signature)
		if err != nil {
			return fmt.Errorf("input %d: %w: %w", index, ErrInvalidSignature, err)
		}

		hash, err := ecdsaSigHash(cache, index, info, uint32(decoded.HashType))
		if err != nil {
			return err
		}
		if !p.cfg.Curve.VerifyECDSA(hash[:], sig.PubKey, decoded.Signature) {
			return fmt.Errorf("input %d: %w: key %x", index, ErrInvalidSignature, sig.PubKey)
		}
	}

	return nil
}

func (p *Psbt) validateTaprootSignatures(index int, info spendInfo) error {
	prevOuts, err := p.prevOuts()
	if err != nil {
		return err
	}

	var (
		in    = &p.Inputs[index]
		cache = transaction.NewSigHashCache(p.Global.UnsignedTx, prevOuts)
	)

	verify := func(signature, xOnly, leafHash []byte) error {
		decoded, err := script.DecodeSchnorrSignature(signature)
		if err != nil {
			return fmt.Errorf("input %d: %w: %w", index, ErrInvalidSignature, err)
		}

		hash, err := cache.HashForWitnessV1(index, uint32(decoded.HashType), leafHash, nil)
		if err != nil {
			return err
		}
		if !p.cfg.Curve.VerifySchnorr(hash[:], xOnly, decoded.Signature) {
			return fmt.Errorf("input %d: %w: key %x", index, ErrInvalidSignature, xOnly)
		}

		return nil
	}

	if in.TapKeySig != nil {
		if err := verify(in.TapKeySig, info.prevOut.Script[2:], nil); err != nil {
			return err
		}
	}
	for _, sig := range in.TapScriptSigs {
		if err := verify(sig.Signature, sig.XOnlyPubKey, sig.LeafHash); err != nil {
			return err
		}
	}

	return nil
}

// ValidateSignaturesOfAllInputs verifies signatures of every non finalized input.
func (p *Psbt) ValidateSignaturesOfAllInputs() error {
	for i := range p.Inputs {
		if p.Inputs[i].IsFinalized() {
			continue
		}

		if err := p.ValidateSignaturesOfInput(i); err != nil {
			return err
		}
	}

	return nil
}
