// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/payments"
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
)

// FinalizerFunc returns unlocking payment of the innermost script of the input:
// witness script for p2wsh, redeem script for p2sh, utxo script otherwise.
// The payment carries Input (push only) or Witness, it is wrapped into p2sh and p2wsh by the caller.
// For taproot inputs Witness is used as the final witness as is.
type FinalizerFunc func(index int, in *Input, script []byte) (*payments.Payment, error)

// FinalizeInput builds final scriptSig and witness of the input from its signatures.
// Supported scripts: p2pk, p2pkh, p2ms, p2wpkh, p2sh and p2wsh wrapping them,
// taproot key path and taproot leaves of CHECKSIG, CHECKSIGVERIFY and CHECKSIGADD threshold scripts.
func (p *Psbt) FinalizeInput(index int) error {
	return p.FinalizeInputWith(index, nil)
}

// FinalizeInputWith finalizes the input with custom finalizer, nil finalizer stands for the default one.
func (p *Psbt) FinalizeInputWith(index int, finalizer FinalizerFunc) error {
	in, err := p.signableInput(index)
	if err != nil {
		return err
	}

	info, err := p.spendInfo(index)
	if err != nil {
		return err
	}

	if finalizer == nil {
		finalizer = func(index int, in *Input, _ []byte) (*payments.Payment, error) {
			if info.isTaproot {
				return finalizeTaproot(index, in)
			}

			return p.finalizeScript(index, in, info)
		}
	}

	unlocking, err := finalizer(index, in, info.script)
	if err != nil {
		var finalizeErr *FinalizeError
		if errors.As(err, &finalizeErr) {
			return err
		}

		return finalizeError(index, err)
	}

	scriptSig, witness, err := p.wrapUnlocking(info, unlocking)
	if err != nil {
		return finalizeError(index, err)
	}

	if len(scriptSig) == 0 {
		scriptSig = nil
	}
	if len(witness) == 0 {
		witness = nil
	}
	if scriptSig == nil && witness == nil {
		return &FinalizeError{Input: index, Reason: "empty unlocking data"}
	}

	in.FinalScriptSig, in.FinalScriptWitness = scriptSig, witness
	in.clearPartialData()

	log.Debugf("finalized input %d (%s)", index, info.scriptType)

	return nil
}

// FinalizeAllInputs finalizes every non finalized input.
func (p *Psbt) FinalizeAllInputs() error {
	var errs []error
	for i := range p.Inputs {
		if p.Inputs[i].IsFinalized() {
			continue
		}

		if err := p.FinalizeInput(i); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func finalizeError(index int, err error) error {
	return &FinalizeError{Input: index, Reason: err.Error(), Err: err}
}

// wrapUnlocking returns final scriptSig and witness of the unlocking payment of the innermost script.
func (p *Psbt) wrapUnlocking(info spendInfo, unlocking *payments.Payment) ([]byte, [][]byte, error) {
	if unlocking == nil {
		return nil, nil, errors.New("no unlocking data")
	}

	opts := p.paymentOptions()
	switch {
	case info.isTaproot:
		if _, err := payments.P2TR(payments.Payment{Output: info.prevOut.Script, Witness: unlocking.Witness}, opts...); err != nil {
			return nil, nil, err
		}

		return nil, unlocking.Witness, nil
	case info.isP2WSH:
		p2wsh, err := payments.P2WSH(payments.Payment{Redeem: &payments.Payment{
			Output:  info.script,
			Input:   unlocking.Input,
			Witness: unlocking.Witness,
		}}, opts...)
		if err != nil {
			return nil, nil, err
		}

		return p.nest(info, p2wsh)
	case info.isSegwit:
		return p.nest(info, unlocking)
	case info.isP2SH:
		p2sh, err := payments.P2SH(payments.Payment{Redeem: &payments.Payment{
			Output:  info.script,
			Input:   unlocking.Input,
			Witness: [][]byte{},
		}}, opts...)
		if err != nil {
			return nil, nil, err
		}

		return p2sh.Input, nil, nil
	default:
		return unlocking.Input, nil, nil
	}
}

// nest wraps segwit payment into p2sh when the utxo is p2sh.
func (p *Psbt) nest(info spendInfo, segwit *payments.Payment) ([]byte, [][]byte, error) {
	if !info.isP2SH {
		return nil, segwit.Witness, nil
	}

	p2sh, err := payments.P2SH(payments.Payment{Redeem: segwit}, p.paymentOptions()...)
	if err != nil {
		return nil, nil, err
	}

	return p2sh.Input, p2sh.Witness, nil
}

func (p *Psbt) paymentOptions() []payments.Option {
	return []payments.Option{payments.WithNetwork(p.cfg.Network), payments.WithCurve(p.cfg.Curve)}
}

// finalizeScript returns unlocking payment of the standard ECDSA script.
func (p *Psbt) finalizeScript(index int, in *Input, info spendInfo) (*payments.Payment, error) {
	opts := p.paymentOptions()
	switch info.scriptType {
	case payments.TypeP2PKH, payments.TypeP2WPKH:
		var keyHash []byte
		if info.scriptType == payments.TypeP2PKH {
			keyHash = info.script[3:23]
		} else {
			keyHash = info.script[2:22]
		}

		i := slices.IndexFunc(in.PartialSigs, func(sig PartialSig) bool {
			return bytes.Equal(crypto.Default.Hash160(sig.PubKey), keyHash)
		})
		if i < 0 {
			return nil, &FinalizeError{Input: index, Reason: fmt.Sprintf("no signature of the key with hash %x", keyHash)}
		}

		payment := payments.Payment{Output: info.script, Pubkey: in.PartialSigs[i].PubKey, Signature: in.PartialSigs[i].Signature}
		if info.scriptType == payments.TypeP2PKH {
			return wrapPayment(index)(payments.P2PKH(payment, opts...))
		}

		return wrapPayment(index)(payments.P2WPKH(payment, opts...))
	case payments.TypeP2PK:
		elements, err := script.Decompile(info.script)
		if err != nil {
			return nil, finalizeError(index, err)
		}

		sig, ok := partialSigOf(in, elements[0].Data)
		if !ok {
			return nil, &FinalizeError{Input: index, Reason: "no signature", MissingKeys: [][]byte{elements[0].Data}}
		}

		return wrapPayment(index)(payments.P2PK(payments.Payment{Output: info.script, Signature: sig}, opts...))
	case payments.TypeP2MS:
		multisig, err := payments.P2MS(payments.Payment{Output: info.script}, opts...)
		if err != nil {
			return nil, finalizeError(index, err)
		}

		var signatures, missing [][]byte
		for _, pubKey := range multisig.Pubkeys {
			sig, ok := partialSigOf(in, pubKey)
			switch {
			case !ok:
				missing = append(missing, pubKey)
			case len(signatures) < multisig.M:
				signatures = append(signatures, sig)
			}
		}
		if len(signatures) < multisig.M {
			return nil, &FinalizeError{
				Input:       index,
				Reason:      fmt.Sprintf("%d of %d signatures", len(signatures), multisig.M),
				MissingKeys: missing,
			}
		}

		return wrapPayment(index)(payments.P2MS(payments.Payment{Output: info.script, Signatures: signatures}, opts...))
	default:
		return nil, &FinalizeError{Input: index, Reason: fmt.Sprintf("unsupported script type %s", info.scriptType)}
	}
}

func wrapPayment(index int) func(*payments.Payment, error) (*payments.Payment, error) {
	return func(payment *payments.Payment, err error) (*payments.Payment, error) {
		if err != nil {
			return nil, finalizeError(index, err)
		}

		return payment, nil
	}
}

func partialSigOf(in *Input, pubKey []byte) ([]byte, bool) {
	i, found := slices.BinarySearchFunc(in.PartialSigs, PartialSig{PubKey: pubKey}, comparePartialSigs)
	if !found {
		return nil, false
	}

	return in.PartialSigs[i].Signature, true
}

// finalizeTaproot returns key path witness or the witness of the leaf with the shortest control block
// that has enough signatures.
func finalizeTaproot(index int, in *Input) (*payments.Payment, error) {
	if in.TapKeySig != nil {
		return &payments.Payment{Witness: [][]byte{in.TapKeySig}}, nil
	}
	if len(in.TapScriptSigs) == 0 {
		return nil, &FinalizeError{Input: index, Reason: "no taproot signatures"}
	}

	leaves := slices.Clone(in.TapLeafScripts)
	slices.SortStableFunc(leaves, func(a, b TapLeafScript) int { return len(a.ControlBlock) - len(b.ControlBlock) })

	var missing [][]byte
	for _, leaf := range leaves {
		witness, leafMissing, ok := tapLeafWitness(in, leaf)
		if ok {
			return &payments.Payment{Witness: witness}, nil
		}

		for _, key := range leafMissing {
			if !containsHash(missing, key) {
				missing = append(missing, key)
			}
		}
	}

	return nil, &FinalizeError{Input: index, Reason: "no leaf script with enough signatures", MissingKeys: missing}
}

// tapLeafWitness returns script path witness of the leaf: signatures in reverse key order, script and control block.
// Scripts ending with <m> OP_EQUAL or OP_NUMEQUAL are threshold scripts where absent signatures are empty pushes,
// other scripts require signatures of every key.
func tapLeafWitness(in *Input, leaf TapLeafScript) ([][]byte, [][]byte, bool) {
	elements, err := script.Decompile(leaf.Script)
	if err != nil {
		return nil, nil, false
	}

	keys := tapLeafKeys(elements)
	if len(keys) == 0 {
		return nil, nil, false
	}

	threshold, isThreshold := tapLeafThreshold(elements)
	if !isThreshold {
		threshold = len(keys)
	}

	leafHash := leaf.LeafHash()
	signatures := make([][]byte, len(keys))

	var (
		count   int
		missing [][]byte
	)
	for i, key := range keys {
		j, found := slices.BinarySearchFunc(in.TapScriptSigs, TapScriptSig{XOnlyPubKey: key, LeafHash: leafHash}, compareTapScriptSigs)
		switch {
		case !found:
			missing = append(missing, key)
			signatures[i] = []byte{}
		case count < threshold:
			signatures[i] = in.TapScriptSigs[j].Signature
			count++
		default:
			signatures[i] = []byte{}
		}
	}

	if count < threshold || (!isThreshold && len(missing) > 0) {
		return nil, missing, false
	}

	witness := make([][]byte, 0, len(keys)+2)
	for i := len(signatures) - 1; i >= 0; i-- {
		witness = append(witness, signatures[i])
	}

	return append(witness, leaf.Script, leaf.ControlBlock), nil, true
}

// tapLeafKeys returns x-only keys checked by CHECKSIG, CHECKSIGVERIFY or CHECKSIGADD in script order.
func tapLeafKeys(elements []script.Element) [][]byte {
	var keys [][]byte
	for i := 0; i+1 < len(elements); i++ {
		if !elements[i].IsData() || len(elements[i].Data) != 32 {
			continue
		}

		switch elements[i+1].Opcode {
		case script.OP_CHECKSIG, script.OP_CHECKSIGVERIFY, script.OP_CHECKSIGADD:
			keys = append(keys, elements[i].Data)
		}
	}

	return keys
}

// tapLeafThreshold returns m of the script ending with <m> OP_EQUAL, OP_NUMEQUAL or OP_NUMEQUALVERIFY.
func tapLeafThreshold(elements []script.Element) (int, bool) {
	if len(elements) < 2 {
		return 0, false
	}

	switch elements[len(elements)-1].Opcode {
	case script.OP_EQUAL, script.OP_NUMEQUAL, script.OP_NUMEQUALVERIFY:
	default:
		return 0, false
	}

	m := elements[len(elements)-2]
	switch {
	case script.IsSmallInt(m.Opcode):
		return script.SmallIntValue(m.Opcode), true
	case m.IsData():
		n, err := script.DecodeNumber(m.Data, 4, true)
		if err != nil || n < 0 {
			return 0, false
		}

		return int(n), true
	default:
		return 0, false
	}
}
