// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/BoostyLabs/psbtkit/bitcoin"
	"github.com/BoostyLabs/psbtkit/bitcoin/payments"
	"github.com/BoostyLabs/psbtkit/bitcoin/psbt"
	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
	"github.com/BoostyLabs/psbtkit/internal/numbers"
)

const (
	// txVersion defines transaction version for this builder.
	txVersion int32 = 2
	// signHashType define signature hash type for ECDSA input signing.
	// INFO: taproot inputs keep SIGHASH_DEFAULT.
	signHashType = transaction.SigHashAll
)

var (
	// headerSizeVBytes defined rough tx header size in vBytes.
	headerSizeVBytes = big.NewInt(11)
	// inputSizeVBytes defined rough tx input size in vBytes.
	inputSizeVBytes = big.NewInt(90)
	// outputSizeVBytes defined rough tx output size in vBytes.
	outputSizeVBytes = big.NewInt(30)

	// nonDustBitcoinAmount defined the smallest output amount in satoshi.
	nonDustBitcoinAmount = big.NewInt(546)
)

// ErrDustOutput defines output below dust limit.
var ErrDustOutput = errors.New("output amount is below dust limit")

// Recipient describes output of the transaction.
type Recipient struct {
	Address string
	Amount  *big.Int // in satoshi.
}

// TransferParams describes data needed to build bitcoin transfer psbt.
type TransferParams struct {
	UTXOs                   []bitcoin.UTXO // must be sorted by btc amount desc.
	Recipients              []Recipient
	SatoshiPerKVByte        *big.Int // fee rate in satoshi per kilo virtual byte.
	SatoshiCommissionAmount *big.Int // additional commission in satoshi to be charged from sender.
	CommissionAddress       string   // service commission address.
	SenderPubKey            string   // hex encoded public key of utxos owner.
	SenderAddress           string   // sender change address.
}

// PSBTParams describes inputs and outputs of the psbt.
type PSBTParams struct {
	Inputs  []InputParams
	Outputs []Recipient
}

// InputParams describes utxo to spend with the public key of its owner.
type InputParams struct {
	UTXO          *bitcoin.UTXO
	PubKey        string
	IsForFeePayer bool
}

// TxBuilder provides transaction building related logic.
type TxBuilder struct {
	networkParams *chaincfg.Params
}

// NewTxBuilder is a constructor for TxBuilder.
func NewTxBuilder(networkParams *chaincfg.Params) *TxBuilder {
	return &TxBuilder{
		networkParams: networkParams,
	}
}

// BuildTransferPSBT selects utxos to cover recipients, commission and rough estimated fee,
// and returns psbt with estimated fee in satoshi.
//
//	outputs:
//	┌─────────┬──────────────┬────────────────────────────────────────┐
//	│  index  │     type     │             description                │
//	├=========┼==============┼========================================┤
//	│   0 - k │ recipients   │ mandatory, in the order of params.     │
//	├─────────┼──────────────┼────────────────────────────────────────┤
//	│     k+1 │ commission   │ optional, if satoshi commission amount │
//	│         │              │ is not 0.                              │
//	├─────────┼──────────────┼────────────────────────────────────────┤
//	│     k+2 │ change       │ optional, if change is not dust.       │
//	└─────────┴──────────────┴────────────────────────────────────────┘
func (b *TxBuilder) BuildTransferPSBT(params TransferParams) (*psbt.Psbt, *big.Int, error) {
	if len(params.Recipients) == 0 {
		return nil, nil, errors.New("no recipients")
	}
	if params.SatoshiPerKVByte == nil || numbers.IsNegative(params.SatoshiPerKVByte) {
		return nil, nil, fmt.Errorf("invalid fee rate %v", params.SatoshiPerKVByte)
	}

	outputs := append([]Recipient{}, params.Recipients...)
	if params.SatoshiCommissionAmount != nil && numbers.IsPositive(params.SatoshiCommissionAmount) {
		outputs = append(outputs, Recipient{Address: params.CommissionAddress, Amount: params.SatoshiCommissionAmount})
	}

	transferAmount := big.NewInt(0)
	for _, output := range outputs {
		if err := checkOutputAmount(output.Amount); err != nil {
			return nil, nil, err
		}

		transferAmount.Add(transferAmount, output.Amount)
	}

	// one more output for the change.
	usedUTXOs, totalAmount, fee, err := PrepareUTXOs(params.UTXOs, 0, len(outputs)+1, transferAmount, params.SatoshiPerKVByte)
	if err != nil {
		if errors.Is(err, bitcoin.ErrInsufficientNativeBalance) {
			need := new(big.Int).Mul(RoughTxSizeEstimate(len(params.UTXOs), len(outputs)+1), params.SatoshiPerKVByte)
			need.Div(need, big.NewInt(1000)).Add(need, transferAmount)

			return nil, nil, NewInsufficientError(InsufficientErrorTypeBitcoin, nil, nil).
				setCauser(CauserSender).
				clarify(need, totalUTXOsAmount(params.UTXOs))
		}

		return nil, nil, err
	}

	change := new(big.Int).Sub(totalAmount, transferAmount)
	change.Sub(change, fee)
	if !numbers.IsLess(change, nonDustBitcoinAmount) {
		outputs = append(outputs, Recipient{Address: params.SenderAddress, Amount: change})
	} else {
		// dust change is left to miners.
		fee.Add(fee, change)
	}

	inputs := make([]InputParams, len(usedUTXOs))
	for i, utxo := range usedUTXOs {
		inputs[i] = InputParams{UTXO: utxo, PubKey: params.SenderPubKey}
	}

	p, err := b.BuildPSBT(PSBTParams{Inputs: inputs, Outputs: outputs})
	if err != nil {
		return nil, nil, err
	}

	return p, fee, nil
}

// BuildPSBT creates psbt spending provided utxos to provided outputs.
// Inputs are prepared for signing according to their address types, input indexes of every
// type are stored in global unknowns under InputsHelpingKey.
func (b *TxBuilder) BuildPSBT(params PSBTParams) (*psbt.Psbt, error) {
	p := psbt.New(psbt.Config{Network: b.networkParams})
	if err := p.SetVersion(txVersion); err != nil {
		return nil, err
	}

	var (
		inputsAmount  = big.NewInt(0)
		outputsAmount = big.NewInt(0)
		groups        = make(map[InputsHelpingKey][]int, 2)
	)
	for _, in := range params.Inputs {
		if in.UTXO == nil || !numbers.IsSatoshiAmount(in.UTXO.Amount) {
			return nil, bitcoin.ErrInvalidUTXOAmount
		}

		inputBuilder, err := NewPSBTInputBuilder(in.PubKey, in.UTXO.Address, b.networkParams)
		if err != nil {
			return nil, err
		}

		hash, err := chainhash.NewHashFromStr(in.UTXO.TxHash)
		if err != nil {
			return nil, err
		}

		var input psbt.Input
		if err = inputBuilder.PrepareInput(&input, in.UTXO); err != nil {
			return nil, err
		}
		if inputBuilder.ScriptType() != payments.TypeP2TR {
			input.SighashType = fn.Some(signHashType)
		}

		index, err := p.AddInput(psbt.TxInput{Hash: *hash, Index: in.UTXO.Index, Input: input})
		if err != nil {
			return nil, err
		}

		key := inputBuilder.InputsHelpingKey(in.IsForFeePayer)
		groups[key] = append(groups[key], index)
		inputsAmount.Add(inputsAmount, in.UTXO.Amount)
	}

	for _, out := range params.Outputs {
		if err := checkOutputAmount(out.Amount); err != nil {
			return nil, err
		}

		if _, err := p.AddOutput(psbt.TxOutput{Address: out.Address, Value: out.Amount.Uint64()}); err != nil {
			return nil, err
		}

		outputsAmount.Add(outputsAmount, out.Amount)
	}

	if numbers.IsLess(inputsAmount, outputsAmount) {
		return nil, NewInsufficientError(InsufficientErrorTypeBitcoin, outputsAmount, inputsAmount)
	}

	unknowns, err := helpingUnknowns(groups)
	if err != nil {
		return nil, err
	}
	if err = p.UpdateGlobal(psbt.Global{Unknowns: unknowns}); err != nil {
		return nil, err
	}

	return p, nil
}

// PrepareUTXOs selects utxos to cover rough estimated fee.
// Returns used utxos, total satoshi amount of utxos, rough estimation in satoshi and error if any.
func PrepareUTXOs(utxos []bitcoin.UTXO, inputs, outputs int, transferAmount, satoshiPerKVByte *big.Int) (usedUTXOs []*bitcoin.UTXO, totalAmount, roughEstimate *big.Int, err error) {
	satFn := func(u *bitcoin.UTXO) *big.Int { return u.Amount }

	for i := 1; i <= len(utxos); i++ {
		// vB * ( sat / kvB ) = 1000 sat.
		roughEstimate = new(big.Int).Mul(RoughTxSizeEstimate(i+inputs, outputs), satoshiPerKVByte)
		roughEstimate.Div(roughEstimate, big.NewInt(1000)) // sat.

		usedUTXOs, totalAmount, err = SelectUTXO(utxos, satFn, new(big.Int).Add(roughEstimate, transferAmount), i, bitcoin.ErrInsufficientNativeBalance)
		if err != nil {
			if errors.Is(err, bitcoin.ErrInsufficientNativeBalance) {
				continue
			}

			return nil, nil, nil, err
		}

		return usedUTXOs, totalAmount, roughEstimate, nil
	}

	return nil, nil, nil, bitcoin.ErrInsufficientNativeBalance
}

// RoughTxSizeEstimate returns Tx rough estimated size in vBytes.
func RoughTxSizeEstimate(inputs, outputs int) *big.Int {
	size := new(big.Int).Set(headerSizeVBytes)
	size.Add(size, new(big.Int).Mul(inputSizeVBytes, big.NewInt(int64(inputs))))
	size.Add(size, new(big.Int).Mul(outputSizeVBytes, big.NewInt(int64(outputs))))

	return size
}

// SelectUTXO is a partly greedy selection algorithm for UTXOs with 'requiredUTXOs' parameter.
// Returns list of selected by algorithm UTXOs with total amount, counted by passed amount function.
func SelectUTXO(utxos []bitcoin.UTXO, amountFn func(*bitcoin.UTXO) *big.Int, minAmount *big.Int, requiredUTXOs int,
	insufficientBalanceError error) (usedUTXOs []*bitcoin.UTXO, totalAmount *big.Int, _ error) {
	if requiredUTXOs <= 0 || len(utxos) < requiredUTXOs {
		return nil, nil, bitcoin.ErrInvalidUTXOAmount
	}

	usedUTXOs = make([]*bitcoin.UTXO, 0, requiredUTXOs)
	totalAmount = big.NewInt(0)
	var startIdx = 0
	var usedIdxs = make([]int, 0, requiredUTXOs)

	// find the closest by amount UTXO that is grater then minAmount or take the biggest possible.
	for idx := range utxos {
		if numbers.IsGreater(minAmount, amountFn(&utxos[idx])) {
			break
		}

		startIdx = idx
	}

	usedIdxs = append(usedIdxs, startIdx)
	totalAmount.Add(totalAmount, amountFn(&utxos[startIdx]))
	usedUTXOs = append(usedUTXOs, &utxos[startIdx])
	requiredUTXOs--

	// pick bigger amount if total amount do not cover minAmount, otherwise - the smallest to pass requiredUTXOs.
	for ; requiredUTXOs > 0; requiredUTXOs-- {
		idx := selectUnused(startIdx, len(utxos), usedIdxs, !numbers.IsGreater(minAmount, totalAmount))
		if idx == -1 {
			idx = selectUnused(0, startIdx, usedIdxs, true)
		}
		if idx == -1 {
			return nil, nil, bitcoin.ErrInvalidUTXOAmount
		}

		usedIdxs = append(usedIdxs, idx)
		totalAmount.Add(totalAmount, amountFn(&utxos[idx]))
		usedUTXOs = append(usedUTXOs, &utxos[idx])
	}

	if numbers.IsGreater(minAmount, totalAmount) {
		return nil, nil, insufficientBalanceError
	}

	return usedUTXOs, totalAmount, nil
}

// checkOutputAmount returns error if amount is not a valid non dust output value.
func checkOutputAmount(amount *big.Int) error {
	if !numbers.IsSatoshiAmount(amount) {
		return fmt.Errorf("invalid output amount %v", amount)
	}
	if numbers.IsLess(amount, nonDustBitcoinAmount) {
		return fmt.Errorf("%w: %s", ErrDustOutput, amount)
	}

	return nil
}

// totalUTXOsAmount returns sum of utxos amounts.
func totalUTXOsAmount(utxos []bitcoin.UTXO) *big.Int {
	total := big.NewInt(0)
	for _, utxo := range utxos {
		total.Add(total, utxo.Amount)
	}

	return total
}

// selectUnused returns first unused idx depending on search direction.
func selectUnused(start, end int, usedIdxs []int, reversed bool) int {
	if reversed {
		for idx := end - 1; idx >= start; idx-- {
			if !isUsed(idx, usedIdxs) {
				return idx
			}
		}
	} else {
		for idx := start; idx < end; idx++ {
			if !isUsed(idx, usedIdxs) {
				return idx
			}
		}
	}

	return -1
}

// isUsed returns true id idx is in usedIdxs.
func isUsed(idx int, usedIdxs []int) bool {
	for _, used := range usedIdxs {
		if used == idx {
			return true
		}
	}

	return false
}
