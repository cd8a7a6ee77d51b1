// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/BoostyLabs/psbtkit/bitcoin"
	"github.com/BoostyLabs/psbtkit/bitcoin/payments"
	"github.com/BoostyLabs/psbtkit/bitcoin/psbt"
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
)

var (
	// ErrPSBTInputBuilder defines errors class for prepare address data method.
	ErrPSBTInputBuilder = errors.New("prepare address data")
	// ErrUnsupportedAddressType defines address which inputs can't be prepared from the public key only.
	ErrUnsupportedAddressType = errors.New("unsupported address type")
)

// PSBTInputBuilder is a helping tool to prepare psbt input based on address type.
// Supported addresses: p2tr (key path), p2wpkh, p2sh-p2wpkh and p2pkh.
type PSBTInputBuilder struct {
	params       *chaincfg.Params
	scriptType   payments.ScriptType
	outputScript []byte
	publicKey    []byte
	xOnlyPubKey  []byte
	redeemScript []byte
}

// NewPSBTInputBuilder is a constructor for PSBTInputBuilder.
// pubKey is hex encoded compressed public key, x-only key is accepted for taproot addresses.
func NewPSBTInputBuilder(pubKey, address string, networkParams *chaincfg.Params) (pib *PSBTInputBuilder, err error) {
	pib = &PSBTInputBuilder{params: networkParams}

	defer func(err *error) {
		if err != nil && *err != nil {
			*err = errors.Join(ErrPSBTInputBuilder, *err)
		}
	}(&err)

	pib.publicKey, err = hex.DecodeString(pubKey)
	if err != nil {
		return pib, err
	}

	pib.outputScript, err = payments.ToOutputScript(address, pib.params)
	if err != nil {
		return pib, err
	}

	pib.scriptType = payments.ClassifyOutput(pib.outputScript)
	if pib.scriptType != payments.TypeP2TR && !script.IsCanonicalPubKey(pib.publicKey) {
		return pib, fmt.Errorf("invalid public key %x", pib.publicKey)
	}

	opts := []payments.Option{payments.WithNetwork(pib.params)}
	switch pib.scriptType {
	case payments.TypeP2TR:
		if len(pib.publicKey) != 32 && len(pib.publicKey) != 33 {
			return pib, fmt.Errorf("invalid taproot public key %x", pib.publicKey)
		}

		pib.xOnlyPubKey = taproot.XOnly(pib.publicKey)
	case payments.TypeP2WPKH:
		_, err = payments.P2WPKH(payments.Payment{Pubkey: pib.publicKey, Output: pib.outputScript}, opts...)
	case payments.TypeP2PKH:
		_, err = payments.P2PKH(payments.Payment{Pubkey: pib.publicKey, Output: pib.outputScript}, opts...)
	case payments.TypeP2SH:
		var p2wpkh *payments.Payment
		if p2wpkh, err = payments.P2WPKH(payments.Payment{Pubkey: pib.publicKey}, opts...); err != nil {
			return pib, err
		}

		pib.redeemScript = p2wpkh.Output
		_, err = payments.P2SH(payments.Payment{Redeem: &payments.Payment{Output: p2wpkh.Output}, Output: pib.outputScript}, opts...)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedAddressType, pib.scriptType)
	}
	if err != nil {
		return pib, err
	}

	return pib, nil
}

// PrepareInput updates input with utxo and required data based on address type.
func (pib *PSBTInputBuilder) PrepareInput(input *psbt.Input, utxo *bitcoin.UTXO) error {
	switch pib.scriptType {
	case payments.TypeP2TR:
		input.TapInternalKey = pib.xOnlyPubKey
	case payments.TypeP2SH:
		input.RedeemScript = pib.redeemScript
	}

	if pib.scriptType != payments.TypeP2PKH {
		input.WitnessUtxo = &transaction.Output{Value: utxo.Amount.Uint64(), Script: pib.outputScript}
		return nil
	}

	if len(utxo.RawTx) == 0 {
		return errors.Join(ErrPSBTInputBuilder, fmt.Errorf("%w: legacy utxo %s:%d", psbt.ErrMissingUtxo, utxo.TxHash, utxo.Index))
	}

	prevTx, err := transaction.Deserialize(utxo.RawTx)
	if err != nil {
		return errors.Join(ErrPSBTInputBuilder, err)
	}

	input.NonWitnessUtxo = prevTx

	return nil
}

// InputsHelpingKey return InputsHelpingKey for wallet input indexes distinguishing.
func (pib *PSBTInputBuilder) InputsHelpingKey(isForFeePayer bool) InputsHelpingKey {
	switch {
	case isForFeePayer && pib.scriptType == payments.TypeP2TR:
		return FeePayerTaprootInputsHelpingKey
	case !isForFeePayer && pib.scriptType == payments.TypeP2TR:
		return TaprootInputsHelpingKey
	case isForFeePayer:
		return FeePayerPaymentInputsHelpingKey
	default:
		return PaymentInputsHelpingKey
	}
}

// ScriptType returns underlying script type.
func (pib *PSBTInputBuilder) ScriptType() payments.ScriptType {
	return pib.scriptType
}

// OutputScript returns script of the address.
func (pib *PSBTInputBuilder) OutputScript() []byte {
	return pib.outputScript
}
