// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils_test

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/psbtkit/bitcoin/payments"
	"github.com/BoostyLabs/psbtkit/bitcoin/psbt"
	"github.com/BoostyLabs/psbtkit/bitcoin/signer"
	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
	"github.com/BoostyLabs/psbtkit/bitcoin/utils"
)

func TestScripts(t *testing.T) {
	keys := privateKeys(3)

	t.Run("multi-sig leaf script", func(t *testing.T) {
		leafScript, err := utils.NewTaprootMultiSigLeafTapScript(keys[0].PubKey().SerializeCompressed(), schnorr.SerializePubKey(keys[1].PubKey()))
		require.NoError(t, err)

		expected, err := txscript.NewScriptBuilder().
			AddData(schnorr.SerializePubKey(keys[0].PubKey())).AddOp(txscript.OP_CHECKSIG).
			AddData(schnorr.SerializePubKey(keys[1].PubKey())).AddOp(txscript.OP_CHECKSIGADD).
			AddInt64(2).AddOp(txscript.OP_EQUAL).
			Script()
		require.NoError(t, err)
		require.Equal(t, expected, leafScript)

		_, err = utils.NewTaprootMultiSigLeafTapScript(keys[0].PubKey().SerializeCompressed())
		require.Error(t, err)

		_, err = utils.NewTaprootMultiSigLeafTapScript(make([]byte, 32), make([]byte, 32))
		require.Error(t, err)

		require.Panics(t, func() { utils.MustTaprootMultiSigLeafTapScript() })
	})

	t.Run("unspendable script", func(t *testing.T) {
		require.Equal(t, []byte{txscript.OP_RETURN}, utils.NewUnspendableScript())
		require.Equal(t, []byte{txscript.OP_RETURN, 0x02, 0xca, 0xfe}, utils.NewUnspendableScript(0xca, 0xfe))
	})

	t.Run("tree", func(t *testing.T) {
		_, err := utils.NewTapScriptTreeFromRawScripts()
		require.Error(t, err)

		for count := 1; count <= 7; count++ {
			leafScripts := make([][]byte, count)
			tapLeaves := make([]txscript.TapLeaf, count)
			for i := range leafScripts {
				leafScripts[i] = utils.NewUnspendableScript(byte(i))
				tapLeaves[i] = txscript.NewBaseTapLeaf(leafScripts[i])
			}

			hashTree, err := taproot.ToHashTree(utils.MustTapScriptTreeFromRawScripts(leafScripts...))
			require.NoError(t, err)

			expected := txscript.AssembleTaprootScriptTree(tapLeaves...).RootNode.TapHash()
			require.Equal(t, expected[:], hashTree.Hash, "leaves: %d", count)
		}
	})
}

func TestAddresses(t *testing.T) {
	keys := privateKeys(3)
	internalKey := keys[2].PubKey()

	leafScript := utils.MustTaprootMultiSigLeafTapScript(keys[0].PubKey().SerializeCompressed(), keys[1].PubKey().SerializeCompressed())
	address := utils.MustTaprootAddressWithMultiSig(&chaincfg.TestNet3Params, internalKey.SerializeCompressed(),
		keys[0].PubKey().SerializeCompressed(), keys[1].PubKey().SerializeCompressed())

	rootHash := txscript.NewBaseTapLeaf(leafScript).TapHash()
	outputKey := txscript.ComputeTaprootOutputKey(internalKey, rootHash[:])
	expected, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), &chaincfg.TestNet3Params)
	require.NoError(t, err)
	require.Equal(t, expected.EncodeAddress(), address)

	_, err = utils.NewTaprootAddressFromScripts(&chaincfg.TestNet3Params, internalKey.SerializeCompressed())
	require.Error(t, err)
}

func TestUpdatePSBTInputWithTapScriptLeafData(t *testing.T) {
	net := &chaincfg.TestNet3Params
	keys := privateKeys(3)
	internalKey := schnorr.SerializePubKey(keys[2].PubKey())

	multiSig := utils.MustTaprootMultiSigLeafTapScript(keys[0].PubKey().SerializeCompressed(), keys[1].PubKey().SerializeCompressed())
	unspendable := utils.NewUnspendableScript([]byte("psbtkit")...)
	tree := utils.MustTapScriptTreeFromRawScripts(multiSig, unspendable)

	address := utils.MustTaprootAddressFromScripts(net, internalKey, multiSig, unspendable)
	pkScript, err := payments.ToOutputScript(address, net)
	require.NoError(t, err)

	t.Run("no internal key", func(t *testing.T) {
		require.Error(t, utils.UpdatePSBTInputWithTapScriptLeafData(&psbt.Input{}, tree, multiSig))
	})

	t.Run("leaf not in tree", func(t *testing.T) {
		err := utils.UpdatePSBTInputWithTapScriptLeafData(&psbt.Input{TapInternalKey: internalKey}, tree, []byte{txscript.OP_TRUE})
		require.ErrorIs(t, err, taproot.ErrLeafNotFound)
	})

	t.Run("script path spend", func(t *testing.T) {
		input := psbt.Input{
			WitnessUtxo:    &transaction.Output{Value: 50000, Script: pkScript},
			TapInternalKey: internalKey,
		}
		require.NoError(t, utils.UpdatePSBTInputWithTapScriptLeafData(&input, tree, multiSig))
		require.NoError(t, utils.UpdatePSBTInputWithTapScriptLeafData(&input, tree, multiSig))
		require.Len(t, input.TapLeafScripts, 1)
		require.Equal(t, multiSig, input.TapLeafScripts[0].Script)

		p := psbt.New(psbt.Config{Network: net})
		_, err := p.AddInput(psbt.TxInput{Hash: chainhash.Hash{0x01}, Index: 0, Input: input})
		require.NoError(t, err)
		_, err = p.AddOutput(psbt.TxOutput{Address: address, Value: 49000})
		require.NoError(t, err)

		for _, key := range keys[:2] {
			keySigner, err := signer.NewKeySignerFromBtcec(key)
			require.NoError(t, err)
			require.NoError(t, p.SignTaprootInput(0, keySigner, nil))
		}
		require.Len(t, p.Inputs[0].TapScriptSigs, 2)
		require.NoError(t, p.FinalizeAllInputs())

		tx, err := p.ExtractTransaction(false)
		require.NoError(t, err)

		msgTx := wire.NewMsgTx(2)
		require.NoError(t, msgTx.Deserialize(bytes.NewReader(tx.Serialize())))

		prevFetcher := txscript.NewCannedPrevOutputFetcher(pkScript, 50000)
		vm, err := txscript.NewEngine(pkScript, msgTx, 0, txscript.StandardVerifyFlags, nil,
			txscript.NewTxSigHashes(msgTx, prevFetcher), 50000, prevFetcher)
		require.NoError(t, err)
		require.NoError(t, vm.Execute())
	})
}

func privateKeys(n int) []*btcec.PrivateKey {
	keys := make([]*btcec.PrivateKey, n)
	for i := range keys {
		keys[i], _ = btcec.PrivKeyFromBytes(bytes.Repeat([]byte{byte(i + 1)}, 32))
	}

	return keys
}
