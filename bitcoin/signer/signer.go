// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/BoostyLabs/psbtkit/bitcoin/psbt"
)

// SignParams defines parameters for Sign method.
type SignParams struct {
	SerializedPSBT []byte
	Inputs         []int // inputs indexes, every input that uses the key if empty.
	PrivateKey     *btcec.PrivateKey
	SighashTypes   []uint32 // allowed sighash types, see psbt.SignInput.
}

// Signer provides serialized psbt signing related logic.
type Signer struct {
	networkParams *chaincfg.Params
}

// NewSigner is a constructor for Signer.
func NewSigner(networkParams *chaincfg.Params) *Signer {
	return &Signer{
		networkParams: networkParams,
	}
}

// Sign signs inputs by provided indexes, returns updated serialized PSBT.
// INFO: taproot inputs are signed on the key path when the key is the internal key
// and on every leaf of TapLeafScripts that uses the key.
func (signer *Signer) Sign(params SignParams) ([]byte, error) {
	packet, err := psbt.Parse(params.SerializedPSBT, psbt.Config{Network: signer.networkParams})
	if err != nil {
		return nil, err
	}

	keySigner, err := NewKeySignerFromBtcec(params.PrivateKey)
	if err != nil {
		return nil, err
	}

	if len(params.Inputs) == 0 {
		if err = packet.SignAllInputs(keySigner, params.SighashTypes...); err != nil {
			return nil, err
		}

		return packet.Serialize(), nil
	}

	for _, input := range params.Inputs {
		if input < 0 || len(packet.Inputs) <= input {
			return nil, errors.New("invalid input index")
		}

		if err = packet.SignInput(input, keySigner, params.SighashTypes...); err != nil {
			return nil, err
		}
	}

	return packet.Serialize(), nil
}
