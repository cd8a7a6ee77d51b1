// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/psbtkit/bitcoin"
	"github.com/BoostyLabs/psbtkit/bitcoin/psbt"
	"github.com/BoostyLabs/psbtkit/bitcoin/signer"
	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
	"github.com/BoostyLabs/psbtkit/bitcoin/txbuilder"
)

const recipientAddress = "tb1p9m40h0uj4uk37hsgvm97h4shhx2kyhehvfax8rysfhwjdp2ycvgqtxqsu0"

func TestTxBuilder(t *testing.T) {
	net := &chaincfg.TestNet3Params
	txBuilder := txbuilder.NewTxBuilder(net)

	t.Run("SelectUTXO", func(t *testing.T) {
		utxos := []bitcoin.UTXO{ // sorted by btc utxos.
			{Amount: big.NewInt(150000)},
			{Amount: big.NewInt(75000)},
			{Amount: big.NewInt(25000)},
			{Amount: big.NewInt(10000)},
			{Amount: big.NewInt(5000)},
			{Amount: big.NewInt(546)},
		}

		tests := []struct {
			minAmount     *big.Int
			totalAmount   *big.Int
			requiredUTXOs int
			utxos         []*bitcoin.UTXO
			err           error
		}{
			{big.NewInt(150000), big.NewInt(150000), 1, []*bitcoin.UTXO{&utxos[0]}, nil},
			{big.NewInt(149000), big.NewInt(150000), 1, []*bitcoin.UTXO{&utxos[0]}, nil},
			{big.NewInt(75000), big.NewInt(75000), 1, []*bitcoin.UTXO{&utxos[1]}, nil},
			{big.NewInt(74000), big.NewInt(75000), 1, []*bitcoin.UTXO{&utxos[1]}, nil},
			{big.NewInt(150000), big.NewInt(150546), 2, []*bitcoin.UTXO{&utxos[0], &utxos[5]}, nil},
			{big.NewInt(10020), big.NewInt(25546), 2, []*bitcoin.UTXO{&utxos[2], &utxos[5]}, nil},
			{big.NewInt(11000), big.NewInt(30546), 3, []*bitcoin.UTXO{&utxos[2], &utxos[5], &utxos[4]}, nil},
			{big.NewInt(255000), nil, 2, nil, bitcoin.ErrInsufficientNativeBalance},
			{big.NewInt(255000), big.NewInt(260000), 4, []*bitcoin.UTXO{&utxos[0], &utxos[1], &utxos[2], &utxos[3]}, nil},
			{big.NewInt(255000), big.NewInt(260546), 5, []*bitcoin.UTXO{&utxos[0], &utxos[1], &utxos[2], &utxos[3], &utxos[5]}, nil},
			{big.NewInt(200000), nil, 1, nil, bitcoin.ErrInsufficientNativeBalance},
			{big.NewInt(200000), nil, 8, nil, bitcoin.ErrInvalidUTXOAmount},
			{big.NewInt(200000), nil, 0, nil, bitcoin.ErrInvalidUTXOAmount},
		}

		utxoFn := func(utxo *bitcoin.UTXO) *big.Int { return utxo.Amount }
		for _, test := range tests {
			usedUTXOs, totalAmount, err := txbuilder.SelectUTXO(utxos, utxoFn, test.minAmount, test.requiredUTXOs, bitcoin.ErrInsufficientNativeBalance)
			require.Equal(t, test.err, err, test.minAmount.String())
			require.Equal(t, test.utxos, usedUTXOs, test.minAmount.String())
			require.EqualValues(t, test.totalAmount, totalAmount, test.minAmount.String())
		}
	})

	t.Run("RoughTxSizeEstimate", func(t *testing.T) {
		require.EqualValues(t, big.NewInt(11), txbuilder.RoughTxSizeEstimate(0, 0))
		require.EqualValues(t, big.NewInt(161), txbuilder.RoughTxSizeEstimate(1, 2))
		require.EqualValues(t, big.NewInt(281), txbuilder.RoughTxSizeEstimate(2, 3))
	})

	privKey, pubKey := btcec.PrivKeyFromBytes(mustHex("0c28fca386c7a227600b2fe50b7cae11ec86d3bf1fbe471be89827e19d72aa1d"))
	pubKeyHex := hex.EncodeToString(pubKey.SerializeCompressed())
	pubKeyHash := btcutil.Hash160(pubKey.SerializeCompressed())

	taprootAddress, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(txscript.ComputeTaprootKeyNoScript(pubKey)), net)
	require.NoError(t, err)
	segwitAddress, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, net)
	require.NoError(t, err)
	legacyAddress, err := btcutil.NewAddressPubKeyHash(pubKeyHash, net)
	require.NoError(t, err)

	segwitScript, err := txscript.PayToAddrScript(segwitAddress)
	require.NoError(t, err)
	nestedAddress, err := btcutil.NewAddressScriptHash(segwitScript, net)
	require.NoError(t, err)

	tests := []struct {
		name    string
		address btcutil.Address
		key     txbuilder.InputsHelpingKey
	}{
		{"p2tr", taprootAddress, txbuilder.TaprootInputsHelpingKey},
		{"p2wpkh", segwitAddress, txbuilder.PaymentInputsHelpingKey},
		{"p2sh-p2wpkh", nestedAddress, txbuilder.PaymentInputsHelpingKey},
		{"p2pkh", legacyAddress, txbuilder.PaymentInputsHelpingKey},
	}
	for _, test := range tests {
		t.Run("BuildTransferPSBT "+test.name, func(t *testing.T) {
			pkScript, err := txscript.PayToAddrScript(test.address)
			require.NoError(t, err)

			// funding transaction for the legacy input.
			prevTx := transaction.New()
			prevTx.AddInput(mustHash(t, "d78a52d61c43ec43d56e270e8f87ebe952f3bb5fe0a042494ed6ebf753285746"), 0, transaction.DefaultSequence, nil)
			_, err = prevTx.AddOutput(pkScript, 100000)
			require.NoError(t, err)
			_, err = prevTx.AddOutput(pkScript, 50000)
			require.NoError(t, err)

			utxos := []bitcoin.UTXO{
				{TxHash: prevTx.TxID(), Index: 0, Amount: big.NewInt(100000), Script: pkScript, Address: test.address.String(), RawTx: prevTx.Serialize()},
				{TxHash: prevTx.TxID(), Index: 1, Amount: big.NewInt(50000), Script: pkScript, Address: test.address.String(), RawTx: prevTx.Serialize()},
			}

			p, fee, err := txBuilder.BuildTransferPSBT(txbuilder.TransferParams{
				UTXOs:            utxos,
				Recipients:       []txbuilder.Recipient{{Address: recipientAddress, Amount: big.NewInt(30000)}},
				SatoshiPerKVByte: big.NewInt(5000), // 5 sat/vB.
				SenderPubKey:     pubKeyHex,
				SenderAddress:    test.address.String(),
			})
			require.NoError(t, err)
			require.EqualValues(t, big.NewInt(805), fee)
			require.Len(t, p.Inputs, 1)
			require.EqualValues(t, 1, p.Global.UnsignedTx.Inputs[0].Index)
			require.Len(t, p.Outputs, 2)
			require.EqualValues(t, 30000, p.Global.UnsignedTx.Outputs[0].Value)
			require.EqualValues(t, 50000-30000-805, p.Global.UnsignedTx.Outputs[1].Value)
			require.Equal(t, pkScript, p.Global.UnsignedTx.Outputs[1].Script)

			indexes, err := txbuilder.InputIndexes(p)
			require.NoError(t, err)
			require.Equal(t, map[txbuilder.InputsHelpingKey][]int{test.key: {0}}, indexes)

			signed, err := signer.NewSigner(net).Sign(signer.SignParams{
				SerializedPSBT: p.Serialize(),
				Inputs:         indexes[test.key],
				PrivateKey:     privKey,
			})
			require.NoError(t, err)

			signedPacket, err := psbt.Parse(signed, psbt.Config{Network: net})
			require.NoError(t, err)
			require.NoError(t, signedPacket.FinalizeAllInputs())

			packetFee, err := signedPacket.Fee()
			require.NoError(t, err)
			require.EqualValues(t, fee.Uint64(), packetFee)

			tx, err := signedPacket.ExtractTransaction(false)
			require.NoError(t, err)
			execute(t, tx, pkScript, 50000)
		})
	}

	t.Run("dust change", func(t *testing.T) {
		p, fee, err := txBuilder.BuildTransferPSBT(txbuilder.TransferParams{
			UTXOs: []bitcoin.UTXO{
				{TxHash: "d78a52d61c43ec43d56e270e8f87ebe952f3bb5fe0a042494ed6ebf753285746", Index: 2, Amount: big.NewInt(31000), Address: segwitAddress.String()},
			},
			Recipients:       []txbuilder.Recipient{{Address: recipientAddress, Amount: big.NewInt(30000)}},
			SatoshiPerKVByte: big.NewInt(5000),
			SenderPubKey:     pubKeyHex,
			SenderAddress:    segwitAddress.String(),
		})
		require.NoError(t, err)
		require.Len(t, p.Outputs, 1)
		require.EqualValues(t, big.NewInt(1000), fee)
	})

	t.Run("commission", func(t *testing.T) {
		p, _, err := txBuilder.BuildTransferPSBT(txbuilder.TransferParams{
			UTXOs: []bitcoin.UTXO{
				{TxHash: "d78a52d61c43ec43d56e270e8f87ebe952f3bb5fe0a042494ed6ebf753285746", Index: 2, Amount: big.NewInt(100000), Address: segwitAddress.String()},
			},
			Recipients:              []txbuilder.Recipient{{Address: recipientAddress, Amount: big.NewInt(30000)}},
			SatoshiPerKVByte:        big.NewInt(5000),
			SatoshiCommissionAmount: big.NewInt(7800),
			CommissionAddress:       nestedAddress.String(),
			SenderPubKey:            pubKeyHex,
			SenderAddress:           segwitAddress.String(),
		})
		require.NoError(t, err)
		require.Len(t, p.Outputs, 3)
		require.EqualValues(t, 7800, p.Global.UnsignedTx.Outputs[1].Value)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		_, _, err := txBuilder.BuildTransferPSBT(txbuilder.TransferParams{
			UTXOs: []bitcoin.UTXO{
				{TxHash: "d78a52d61c43ec43d56e270e8f87ebe952f3bb5fe0a042494ed6ebf753285746", Index: 2, Amount: big.NewInt(1000), Address: segwitAddress.String()},
			},
			Recipients:       []txbuilder.Recipient{{Address: recipientAddress, Amount: big.NewInt(30000)}},
			SatoshiPerKVByte: big.NewInt(5000),
			SenderPubKey:     pubKeyHex,
			SenderAddress:    segwitAddress.String(),
		})
		require.ErrorIs(t, err, bitcoin.ErrInsufficientNativeBalance)

		var insufficientErr *txbuilder.InsufficientError
		require.True(t, errors.As(err, &insufficientErr))
		require.Equal(t, txbuilder.CauserSender, insufficientErr.Causer)
		require.EqualValues(t, big.NewInt(1000), insufficientErr.Have)
		require.EqualValues(t, big.NewInt(30805), insufficientErr.Need)
	})

	t.Run("dust output", func(t *testing.T) {
		_, _, err := txBuilder.BuildTransferPSBT(txbuilder.TransferParams{
			Recipients:       []txbuilder.Recipient{{Address: recipientAddress, Amount: big.NewInt(100)}},
			SatoshiPerKVByte: big.NewInt(5000),
		})
		require.ErrorIs(t, err, txbuilder.ErrDustOutput)
	})

	t.Run("BuildPSBT", func(t *testing.T) {
		utxo := func(index uint32, address btcutil.Address, amount int64) *bitcoin.UTXO {
			return &bitcoin.UTXO{
				TxHash:  "d78a52d61c43ec43d56e270e8f87ebe952f3bb5fe0a042494ed6ebf753285746",
				Index:   index,
				Amount:  big.NewInt(amount),
				Address: address.String(),
			}
		}

		p, err := txBuilder.BuildPSBT(txbuilder.PSBTParams{
			Inputs: []txbuilder.InputParams{
				{UTXO: utxo(0, taprootAddress, 10000), PubKey: pubKeyHex},
				{UTXO: utxo(1, segwitAddress, 20000), PubKey: pubKeyHex},
				{UTXO: utxo(2, nestedAddress, 30000), PubKey: pubKeyHex, IsForFeePayer: true},
				{UTXO: utxo(3, segwitAddress, 40000), PubKey: pubKeyHex},
			},
			Outputs: []txbuilder.Recipient{{Address: recipientAddress, Amount: big.NewInt(99000)}},
		})
		require.NoError(t, err)
		require.EqualValues(t, 2, p.Global.UnsignedTx.Version)
		require.Equal(t, []psbt.Unknown{
			{Key: []byte{0x10}, Value: []byte{0}},
			{Key: []byte{0x20}, Value: []byte{1, 3}},
			{Key: []byte{0x21}, Value: []byte{2}},
		}, p.Global.Unknowns)

		require.Equal(t, schnorr.SerializePubKey(pubKey), p.Inputs[0].TapInternalKey)
		require.True(t, p.Inputs[0].SighashType.IsNone())
		require.Equal(t, segwitScript, p.Inputs[2].RedeemScript)
		require.Equal(t, uint32(transaction.SigHashAll), p.Inputs[1].SighashType.UnwrapOr(0))

		fee, err := p.Fee()
		require.NoError(t, err)
		require.EqualValues(t, 1000, fee)

		t.Run("outputs exceed inputs", func(t *testing.T) {
			_, err := txBuilder.BuildPSBT(txbuilder.PSBTParams{
				Inputs:  []txbuilder.InputParams{{UTXO: utxo(0, segwitAddress, 10000), PubKey: pubKeyHex}},
				Outputs: []txbuilder.Recipient{{Address: recipientAddress, Amount: big.NewInt(20000)}},
			})
			require.ErrorIs(t, err, bitcoin.ErrInsufficientNativeBalance)
		})

		t.Run("legacy without raw transaction", func(t *testing.T) {
			_, err := txBuilder.BuildPSBT(txbuilder.PSBTParams{
				Inputs:  []txbuilder.InputParams{{UTXO: utxo(0, legacyAddress, 10000), PubKey: pubKeyHex}},
				Outputs: []txbuilder.Recipient{{Address: recipientAddress, Amount: big.NewInt(9000)}},
			})
			require.ErrorIs(t, err, psbt.ErrMissingUtxo)
			require.ErrorIs(t, err, txbuilder.ErrPSBTInputBuilder)
		})

		t.Run("foreign key", func(t *testing.T) {
			_, otherKey := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{0x11}, 32))
			_, err := txBuilder.BuildPSBT(txbuilder.PSBTParams{
				Inputs: []txbuilder.InputParams{
					{UTXO: utxo(0, segwitAddress, 10000), PubKey: hex.EncodeToString(otherKey.SerializeCompressed())},
				},
				Outputs: []txbuilder.Recipient{{Address: recipientAddress, Amount: big.NewInt(9000)}},
			})
			require.ErrorIs(t, err, txbuilder.ErrPSBTInputBuilder)
		})

		t.Run("invalid utxo amount", func(t *testing.T) {
			_, err := txBuilder.BuildPSBT(txbuilder.PSBTParams{
				Inputs:  []txbuilder.InputParams{{UTXO: utxo(0, segwitAddress, -1), PubKey: pubKeyHex}},
				Outputs: []txbuilder.Recipient{{Address: recipientAddress, Amount: big.NewInt(9000)}},
			})
			require.ErrorIs(t, err, bitcoin.ErrInvalidUTXOAmount)
		})
	})
}

func execute(t *testing.T, tx *transaction.Transaction, pkScript []byte, value int64) {
	t.Helper()

	msgTx := wire.NewMsgTx(2)
	require.NoError(t, msgTx.Deserialize(bytes.NewReader(tx.Serialize())))

	prevFetcher := txscript.NewCannedPrevOutputFetcher(pkScript, value)
	sigHashes := txscript.NewTxSigHashes(msgTx, prevFetcher)

	vm, err := txscript.NewEngine(pkScript, msgTx, 0, txscript.StandardVerifyFlags, nil, sigHashes, value, prevFetcher)
	require.NoError(t, err)
	require.NoError(t, vm.Execute())
}

func mustHex(s string) []byte {
	b, _ := hex.DecodeString(s)

	return b
}

func mustHash(t *testing.T, s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	require.NoError(t, err)

	return *h
}
