// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/BoostyLabs/psbtkit/bitcoin/payments"
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
)

// Signer defines signing capability of a single key.
type Signer interface {
	// PublicKey returns 33 bytes compressed or 65 bytes uncompressed public key.
	PublicKey() []byte
	// Sign returns 64 bytes r || s ECDSA signature of the hash.
	Sign(hash []byte) ([]byte, error)
	// SignSchnorr returns 64 bytes BIP340 signature of the hash.
	SignSchnorr(hash []byte) ([]byte, error)
}

// TweakableSigner defines signer of the taproot internal key.
type TweakableSigner interface {
	Signer
	// Tweak returns signer of the output key for the merkle root, nil root stands for key path only output.
	Tweak(merkleRoot []byte) (Signer, error)
}

// HDSigner defines BIP32 master key.
type HDSigner interface {
	// Fingerprint returns master key fingerprint as it is stored in key origins.
	Fingerprint() uint32
	// DerivePath returns signer of the child key.
	DerivePath(path []uint32) (Signer, error)
}

// signableInput returns input that is allowed to be signed.
func (p *Psbt) signableInput(index int) (*Input, error) {
	if index < 0 || index >= len(p.Inputs) {
		return nil, ErrInputIndex
	}

	in := &p.Inputs[index]
	if in.IsFinalized() {
		return nil, fmt.Errorf("input %d: %w", index, ErrInputFinalized)
	}

	return in, nil
}

// SignInput signs the input with the signer, taproot inputs are signed with SignTaprootInput.
// allowedSighashTypes defaults to SIGHASH_ALL, SIGHASH_DEFAULT for taproot.
// INFO: signing again with the same key overwrites the signature.
func (p *Psbt) SignInput(index int, signer Signer, allowedSighashTypes ...uint32) error {
	in, err := p.signableInput(index)
	if err != nil {
		return err
	}

	info, err := p.spendInfo(index)
	if err != nil {
		return err
	}
	if info.isTaproot {
		return p.SignTaprootInput(index, signer, nil, allowedSighashTypes...)
	}

	pubKey := signer.PublicKey()
	if !scriptHasKey(info.script, pubKey) {
		return fmt.Errorf("%w: input %d, key %x", ErrNoMatchingKey, index, pubKey)
	}

	hashType, err := sigHashTypeFor(in, allowedSighashTypes, transaction.SigHashAll)
	if err != nil {
		return err
	}

	hash, err := ecdsaSigHash(p.sigHashCache(), index, info, hashType)
	if err != nil {
		return err
	}

	signature, err := signer.Sign(hash[:])
	if err != nil {
		return err
	}
	if !p.cfg.Curve.VerifyECDSA(hash[:], pubKey, signature) {
		return fmt.Errorf("%w: input %d, key %x", ErrInvalidSignature, index, pubKey)
	}

	encoded, err := script.EncodeSignature(signature, byte(hashType))
	if err != nil {
		return err
	}

	in.PartialSigs = sortedUpsert(in.PartialSigs, PartialSig{PubKey: pubKey, Signature: encoded}, comparePartialSigs)

	log.Debugf("signed input %d (%s) with key %x, sighash type 0x%02x", index, info.scriptType, pubKey, hashType)

	return nil
}

// SignTaprootInput signs taproot input.
// Without leafHashes the key path is signed if the signer holds the internal or the output key,
// and every leaf script that uses the signer key is signed. With leafHashes only those leaves are signed.
func (p *Psbt) SignTaprootInput(index int, signer Signer, leafHashes [][]byte, allowedSighashTypes ...uint32) error {
	in, err := p.signableInput(index)
	if err != nil {
		return err
	}

	prevOut, err := p.prevOut(index)
	if err != nil {
		return err
	}
	if payments.ClassifyOutput(prevOut.Script) != payments.TypeP2TR {
		return fmt.Errorf("%w: input %d is not taproot", ErrScriptMismatch, index)
	}

	prevOuts, err := p.prevOuts()
	if err != nil {
		return err
	}

	hashType, err := sigHashTypeFor(in, allowedSighashTypes, transaction.SigHashDefault)
	if err != nil {
		return err
	}

	var (
		cache     = transaction.NewSigHashCache(p.Global.UnsignedTx, prevOuts)
		outputKey = prevOut.Script[2:]
		xOnly     = taproot.XOnly(signer.PublicKey())
		signed    bool
	)

	if len(leafHashes) == 0 {
		keySigner, err := keyPathSigner(in, signer, outputKey)
		if err != nil {
			return err
		}

		if keySigner != nil {
			signature, err := p.signSchnorr(cache, index, keySigner, outputKey, hashType, nil)
			if err != nil {
				return err
			}

			in.TapKeySig, signed = signature, true
			log.Debugf("signed input %d key path, sighash type 0x%02x", index, hashType)
		}
	}

	for _, leaf := range in.TapLeafScripts {
		leafHash := leaf.LeafHash()
		if len(leafHashes) > 0 && !containsHash(leafHashes, leafHash) {
			continue
		}
		if !scriptHasKey(leaf.Script, xOnly) {
			continue
		}

		signature, err := p.signSchnorr(cache, index, signer, xOnly, hashType, leafHash)
		if err != nil {
			return err
		}

		in.TapScriptSigs = sortedUpsert(in.TapScriptSigs, TapScriptSig{
			XOnlyPubKey: xOnly,
			LeafHash:    leafHash,
			Signature:   signature,
		}, compareTapScriptSigs)
		signed = true

		log.Debugf("signed input %d leaf %x with key %x, sighash type 0x%02x", index, leafHash, xOnly, hashType)
	}

	if !signed {
		return fmt.Errorf("%w: input %d, key %x", ErrNoMatchingKey, index, xOnly)
	}

	return nil
}

// keyPathSigner returns signer of the output key or nil if the signer can't sign the key path.
func keyPathSigner(in *Input, signer Signer, outputKey []byte) (Signer, error) {
	xOnly := taproot.XOnly(signer.PublicKey())
	if bytes.Equal(xOnly, outputKey) {
		return signer, nil
	}
	if in.TapInternalKey == nil || !bytes.Equal(xOnly, in.TapInternalKey) {
		return nil, nil
	}

	tweakable, ok := signer.(TweakableSigner)
	if !ok {
		return nil, fmt.Errorf("%w: internal key signer can't be tweaked", ErrNoMatchingKey)
	}

	tweaked, err := tweakable.Tweak(in.TapMerkleRoot)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(taproot.XOnly(tweaked.PublicKey()), outputKey) {
		return nil, fmt.Errorf("%w: tweaked internal key is not the output key", ErrScriptMismatch)
	}

	return tweaked, nil
}

func (p *Psbt) signSchnorr(cache *transaction.SigHashCache, index int, signer Signer, xOnly []byte, hashType uint32, leafHash []byte) ([]byte, error) {
	hash, err := cache.HashForWitnessV1(index, hashType, leafHash, nil)
	if err != nil {
		return nil, err
	}

	signature, err := signer.SignSchnorr(hash[:])
	if err != nil {
		return nil, err
	}
	if !p.cfg.Curve.VerifySchnorr(hash[:], xOnly, signature) {
		return nil, fmt.Errorf("%w: input %d, key %x", ErrInvalidSignature, index, xOnly)
	}

	return script.EncodeSchnorrSignature(signature, byte(hashType))
}

// SignAllInputs signs every input that uses the signer key.
func (p *Psbt) SignAllInputs(signer Signer, allowedSighashTypes ...uint32) error {
	return p.signAll(func(index int) error {
		return p.SignInput(index, signer, allowedSighashTypes...)
	})
}

// SignInputHD signs the input with keys derived from the master key along the input key origins.
func (p *Psbt) SignInputHD(index int, hd HDSigner, allowedSighashTypes ...uint32) error {
	in, err := p.signableInput(index)
	if err != nil {
		return err
	}

	var (
		fingerprint = hd.Fingerprint()
		signed      bool
	)

	for _, d := range cloneBip32(in.Bip32Derivations) {
		if d.MasterFingerprint != fingerprint {
			continue
		}

		signer, err := hd.DerivePath(d.Path)
		if err != nil {
			return err
		}
		if !bytes.Equal(signer.PublicKey(), d.PubKey) {
			return fmt.Errorf("%w: derived key %x is not %x", ErrNoMatchingKey, signer.PublicKey(), d.PubKey)
		}

		if err = p.SignInput(index, signer, allowedSighashTypes...); err != nil {
			return err
		}
		signed = true
	}

	for _, d := range cloneTapBip32(in.TapBip32Derivations) {
		if d.MasterFingerprint != fingerprint {
			continue
		}

		signer, err := hd.DerivePath(d.Path)
		if err != nil {
			return err
		}
		if !bytes.Equal(taproot.XOnly(signer.PublicKey()), d.XOnlyPubKey) {
			return fmt.Errorf("%w: derived key %x is not %x", ErrNoMatchingKey, signer.PublicKey(), d.XOnlyPubKey)
		}

		if err = p.SignTaprootInput(index, signer, d.LeafHashes, allowedSighashTypes...); err != nil {
			return err
		}
		signed = true
	}

	if !signed {
		return fmt.Errorf("%w: input %d, fingerprint %08x", ErrNoMatchingKey, index, fingerprint)
	}

	return nil
}

// SignAllInputsHD signs every input with key origins of the master key.
func (p *Psbt) SignAllInputsHD(hd HDSigner, allowedSighashTypes ...uint32) error {
	return p.signAll(func(index int) error {
		return p.SignInputHD(index, hd, allowedSighashTypes...)
	})
}

// signAll applies sign to every non finalized input, fails if no input was signed.
func (p *Psbt) signAll(sign func(index int) error) error {
	var signed int
	for i := range p.Inputs {
		if p.Inputs[i].IsFinalized() {
			continue
		}

		err := sign(i)
		switch {
		case errors.Is(err, ErrNoMatchingKey):
			continue
		case err != nil:
			return fmt.Errorf("input %d: %w", i, err)
		}

		signed++
	}

	if signed == 0 {
		return ErrNoMatchingKey
	}

	return nil
}

func containsHash(hashes [][]byte, hash []byte) bool {
	for _, h := range hashes {
		if bytes.Equal(h, hash) {
			return true
		}
	}

	return false
}
