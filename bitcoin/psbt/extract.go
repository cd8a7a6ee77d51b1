// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
	"github.com/BoostyLabs/psbtkit/internal/numbers"
)

// ExtractTransaction returns signed transaction of the finalized psbt.
// Unless disableFeeCheck is set, fee rate above Config.MaximumFeeRate fails with *FeeRateError.
func (p *Psbt) ExtractTransaction(disableFeeCheck bool) (*transaction.Transaction, error) {
	for i := range p.Inputs {
		if !p.Inputs[i].IsFinalized() {
			return nil, fmt.Errorf("%w: input %d", ErrNotFinalized, i)
		}
	}

	tx := p.Global.UnsignedTx.Clone()
	for i := range p.Inputs {
		tx.Inputs[i].Script = bytes.Clone(p.Inputs[i].FinalScriptSig)
		tx.Inputs[i].Witness = cloneStack(p.Inputs[i].FinalScriptWitness)
	}

	if !disableFeeCheck {
		fee, err := p.Fee()
		if err != nil {
			return nil, err
		}

		feeRate := fee / uint64(tx.VirtualSize())
		if feeRate > p.cfg.MaximumFeeRate {
			return nil, &FeeRateError{Fee: fee, FeeRate: feeRate, Maximum: p.cfg.MaximumFeeRate}
		}
	}

	log.Debugf("extracted transaction %s", tx.TxID())

	return tx, nil
}

// Fee returns difference between inputs and outputs values in satoshi.
func (p *Psbt) Fee() (uint64, error) {
	prevOuts, err := p.prevOuts()
	if err != nil {
		return 0, err
	}

	inputs, outputs := new(big.Int), new(big.Int)
	for _, prevOut := range prevOuts {
		inputs.Add(inputs, new(big.Int).SetUint64(prevOut.Value))
	}
	for _, out := range p.Global.UnsignedTx.Outputs {
		outputs.Add(outputs, new(big.Int).SetUint64(out.Value))
	}

	fee := new(big.Int).Sub(inputs, outputs)
	if numbers.IsNegative(fee) {
		return 0, fmt.Errorf("%w: inputs %s, outputs %s", ErrNegativeFee, inputs, outputs)
	}

	return fee.Uint64(), nil
}

// FeeRate returns fee rate in satoshi per virtual byte of the finalized psbt.
func (p *Psbt) FeeRate() (uint64, error) {
	fee, err := p.Fee()
	if err != nil {
		return 0, err
	}

	tx, err := p.ExtractTransaction(true)
	if err != nil {
		return 0, err
	}

	return fee / uint64(tx.VirtualSize()), nil
}
