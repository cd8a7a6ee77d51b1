// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/payments"
	"github.com/BoostyLabs/psbtkit/bitcoin/psbt"
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
	"github.com/BoostyLabs/psbtkit/bitcoin/signer"
	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
)

const (
	inputValue  = 100000
	outputValue = 99000
)

var destination = mustHex("0014" + "751e76e8199196d454941c45d1b3a323f1433bd6")

func TestUpdater(t *testing.T) {
	k1 := key(t, 1)
	p2wpkh, err := payments.P2WPKH(payments.Payment{Pubkey: k1.PublicKey()})
	require.NoError(t, err)

	newPacket := func(t *testing.T, sighashType uint32) *psbt.Psbt {
		packet := psbt.New(psbt.Config{})

		_, err := packet.AddInput(psbt.TxInput{
			Hash:  chainhash.Hash{0x01},
			Input: psbt.Input{WitnessUtxo: &transaction.Output{Value: inputValue, Script: p2wpkh.Output}, SighashType: fn.Some(sighashType)},
		})
		require.NoError(t, err)

		_, err = packet.AddOutput(psbt.TxOutput{Script: destination, Value: outputValue})
		require.NoError(t, err)

		return packet
	}

	t.Run("duplicate input", func(t *testing.T) {
		packet := newPacket(t, transaction.SigHashAll)

		_, err := packet.AddInput(psbt.TxInput{Hash: chainhash.Hash{0x01}})
		require.ErrorIs(t, err, psbt.ErrDuplicateInput)
	})

	t.Run("sequence", func(t *testing.T) {
		packet := newPacket(t, transaction.SigHashAll)
		require.Equal(t, transaction.DefaultSequence, packet.Global.UnsignedTx.Inputs[0].Sequence)

		index, err := packet.AddInput(psbt.TxInput{Hash: chainhash.Hash{0x02}, Sequence: fn.Some[uint32](0xfffffffd)})
		require.NoError(t, err)
		require.Equal(t, 1, index)
		require.Equal(t, uint32(0xfffffffd), packet.Global.UnsignedTx.Inputs[1].Sequence)

		require.NoError(t, packet.SetInputSequence(1, 10))
		require.Equal(t, uint32(10), packet.Global.UnsignedTx.Inputs[1].Sequence)
		require.ErrorIs(t, packet.SetInputSequence(2, 10), psbt.ErrInputIndex)
	})

	t.Run("signatures commit to all", func(t *testing.T) {
		packet := newPacket(t, transaction.SigHashAll)
		require.NoError(t, packet.SignInput(0, k1))

		_, err := packet.AddInput(psbt.TxInput{Hash: chainhash.Hash{0x02}})
		require.ErrorIs(t, err, psbt.ErrSignaturesCommit)

		_, err = packet.AddOutput(psbt.TxOutput{Script: destination, Value: 1})
		require.ErrorIs(t, err, psbt.ErrSignaturesCommit)

		require.ErrorIs(t, packet.SetLocktime(100), psbt.ErrSignaturesCommit)
		require.ErrorIs(t, packet.SetVersion(1), psbt.ErrSignaturesCommit)
		require.ErrorIs(t, packet.SetInputSequence(0, 1), psbt.ErrSignaturesCommit)

		require.Len(t, packet.Global.UnsignedTx.Inputs, 1)
		require.Len(t, packet.Global.UnsignedTx.Outputs, 1)
	})

	t.Run("single anyone can pay", func(t *testing.T) {
		hashType := transaction.SigHashSingle | transaction.SigHashAnyoneCanPay
		packet := newPacket(t, hashType)
		require.NoError(t, packet.SignInput(0, k1, hashType))

		_, err := packet.AddInput(psbt.TxInput{Hash: chainhash.Hash{0x02}})
		require.NoError(t, err)

		_, err = packet.AddOutput(psbt.TxOutput{Script: destination, Value: 1})
		require.NoError(t, err)

		require.ErrorIs(t, packet.SetLocktime(100), psbt.ErrSignaturesCommit)
		require.NoError(t, packet.SetInputSequence(1, 5))
	})

	t.Run("update input", func(t *testing.T) {
		packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{SighashType: fn.Some(transaction.SigHashAll)})

		require.NoError(t, packet.UpdateInput(0, psbt.Input{WitnessScript: []byte{script.OP_TRUE}}))
		require.NoError(t, packet.UpdateInput(0, psbt.Input{WitnessScript: []byte{script.OP_TRUE}}))
		require.ErrorIs(t, packet.UpdateInput(0, psbt.Input{WitnessScript: []byte{script.OP_DUP}}), psbt.ErrConflict)
		require.ErrorIs(t, packet.UpdateInput(0, psbt.Input{SighashType: fn.Some(transaction.SigHashNone)}), psbt.ErrConflict)
		require.ErrorIs(t, packet.UpdateInput(1, psbt.Input{}), psbt.ErrInputIndex)
		require.Equal(t, []byte{script.OP_TRUE}, packet.Inputs[0].WitnessScript)

		prevTx := transaction.New()
		prevTx.AddInput(chainhash.Hash{0xaa}, 0, transaction.DefaultSequence, nil)
		_, err := prevTx.AddOutput(p2wpkh.Output, inputValue)
		require.NoError(t, err)

		require.ErrorIs(t, packet.UpdateInput(0, psbt.Input{NonWitnessUtxo: prevTx}), psbt.ErrUtxoMismatch)
		require.Nil(t, packet.Inputs[0].NonWitnessUtxo)

		_, err = packet.AddInput(psbt.TxInput{Hash: chainhash.Hash{0x03}, Input: psbt.Input{NonWitnessUtxo: prevTx}})
		require.ErrorIs(t, err, psbt.ErrUtxoMismatch)

		_, err = packet.AddInput(psbt.TxInput{Hash: prevTx.Hash(), Input: psbt.Input{NonWitnessUtxo: prevTx}})
		require.NoError(t, err)
	})

	t.Run("contradicting input data", func(t *testing.T) {
		p2wsh, err := payments.P2WSH(payments.Payment{Redeem: &payments.Payment{Output: []byte{script.OP_TRUE}}})
		require.NoError(t, err)

		p2shP2WSH, err := payments.P2SH(payments.Payment{Redeem: &payments.Payment{Output: p2wsh.Output}})
		require.NoError(t, err)

		prevTx := transaction.New()
		prevTx.AddInput(chainhash.Hash{0xaa}, 0, transaction.DefaultSequence, nil)
		_, err = prevTx.AddOutput(p2shP2WSH.Output, inputValue)
		require.NoError(t, err)

		packet := psbt.New(psbt.Config{})
		_, err = packet.AddInput(psbt.TxInput{Hash: prevTx.Hash(), Input: psbt.Input{NonWitnessUtxo: prevTx}})
		require.NoError(t, err)

		// redeem script hash does not match p2sh utxo.
		err = packet.UpdateInput(0, psbt.Input{RedeemScript: p2wpkh.Output})
		require.ErrorIs(t, err, psbt.ErrScriptMismatch)
		require.Nil(t, packet.Inputs[0].RedeemScript)

		// witness script hash does not match nested p2wsh.
		require.NoError(t, packet.UpdateInput(0, psbt.Input{RedeemScript: p2wsh.Output}))
		err = packet.UpdateInput(0, psbt.Input{WitnessScript: []byte{script.OP_DUP}})
		require.ErrorIs(t, err, psbt.ErrScriptMismatch)
		require.Nil(t, packet.Inputs[0].WitnessScript)
		require.NoError(t, packet.UpdateInput(0, psbt.Input{WitnessScript: []byte{script.OP_TRUE}}))

		// witness utxo differs from the spent output of non witness utxo.
		err = packet.UpdateInput(0, psbt.Input{WitnessUtxo: &transaction.Output{Value: inputValue + 1, Script: p2shP2WSH.Output}})
		require.ErrorIs(t, err, psbt.ErrUtxoMismatch)
		require.Nil(t, packet.Inputs[0].WitnessUtxo)
		require.NoError(t, packet.UpdateInput(0, psbt.Input{WitnessUtxo: &transaction.Output{Value: inputValue, Script: p2shP2WSH.Output}}))

		// witness script on non p2wsh utxo.
		packet = newPacket(t, transaction.SigHashAll)
		err = packet.UpdateInput(0, psbt.Input{WitnessScript: []byte{script.OP_TRUE}})
		require.ErrorIs(t, err, psbt.ErrScriptMismatch)

		// redeem script on non p2sh utxo.
		err = packet.UpdateInput(0, psbt.Input{RedeemScript: []byte{script.OP_TRUE}})
		require.ErrorIs(t, err, psbt.ErrScriptMismatch)

		_, err = packet.AddInput(psbt.TxInput{
			Hash:  chainhash.Hash{0x02},
			Input: psbt.Input{WitnessUtxo: &transaction.Output{Value: inputValue, Script: p2wsh.Output}, WitnessScript: []byte{script.OP_DUP}},
		})
		require.ErrorIs(t, err, psbt.ErrScriptMismatch)
		require.Len(t, packet.Inputs, 1)
	})

	t.Run("output by address", func(t *testing.T) {
		packet := newPacket(t, transaction.SigHashAll)

		index, err := packet.AddOutput(psbt.TxOutput{Address: p2wpkh.Address, Value: 500})
		require.NoError(t, err)
		require.Equal(t, p2wpkh.Output, packet.Global.UnsignedTx.Outputs[index].Script)

		_, err = packet.AddOutput(psbt.TxOutput{Address: "bc1qinvalid", Value: 500})
		require.Error(t, err)
		require.Len(t, packet.Outputs, 2)
	})

	t.Run("update output", func(t *testing.T) {
		packet := newPacket(t, transaction.SigHashAll)
		tree := taproot.Branch{Left: taproot.NewLeaf([]byte{script.OP_TRUE}), Right: taproot.NewLeaf([]byte{script.OP_RETURN})}

		require.NoError(t, packet.UpdateOutput(0, psbt.Output{TapInternalKey: k1.XOnlyPublicKey(), TapTree: tree}))
		require.NoError(t, packet.UpdateOutput(0, psbt.Output{TapTree: tree}))
		require.ErrorIs(t, packet.UpdateOutput(0, psbt.Output{TapTree: taproot.NewLeaf([]byte{script.OP_TRUE})}), psbt.ErrConflict)
		require.ErrorIs(t, packet.UpdateOutput(0, psbt.Output{TapTree: taproot.Branch{Left: tree}}), taproot.ErrEmptyTree)
		require.ErrorIs(t, packet.UpdateOutput(1, psbt.Output{}), psbt.ErrOutputIndex)

		parsed, err := psbt.Parse(packet.Serialize(), psbt.Config{})
		require.NoError(t, err)
		require.Equal(t, packet.Serialize(), parsed.Serialize())
	})

	t.Run("global unknowns", func(t *testing.T) {
		packet := newPacket(t, transaction.SigHashAll)
		unknown := psbt.Unknown{Key: []byte{0xfc, 0x01}, Value: []byte{0x01}}

		require.NoError(t, packet.UpdateGlobal(psbt.Global{Unknowns: []psbt.Unknown{unknown}}))
		require.ErrorIs(t, packet.UpdateGlobal(psbt.Global{Unknowns: []psbt.Unknown{{Key: unknown.Key, Value: []byte{0x02}}}}), psbt.ErrConflict)
		require.Equal(t, []psbt.Unknown{unknown}, packet.Global.Unknowns)
	})
}

func TestSign(t *testing.T) {
	k1, k2 := key(t, 1), key(t, 2)
	p2wpkh, err := payments.P2WPKH(payments.Payment{Pubkey: k1.PublicKey()})
	require.NoError(t, err)

	packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{WitnessUtxo: &transaction.Output{Value: inputValue, Script: p2wpkh.Output}})

	status, err := packet.InputStatus(0)
	require.NoError(t, err)
	require.Equal(t, psbt.StatusUnsigned, status)

	require.ErrorIs(t, packet.SignInput(0, k2), psbt.ErrNoMatchingKey)
	require.ErrorIs(t, packet.SignAllInputs(k2), psbt.ErrNoMatchingKey)
	require.ErrorIs(t, packet.SignInput(1, k1), psbt.ErrInputIndex)
	require.ErrorIs(t, packet.ValidateSignaturesOfInput(0), psbt.ErrNoSignatures)

	require.NoError(t, packet.UpdateInput(0, psbt.Input{SighashType: fn.Some(transaction.SigHashNone)}))
	require.ErrorIs(t, packet.SignInput(0, k1), psbt.ErrSigHashType)
	require.NoError(t, packet.SignInput(0, k1, transaction.SigHashAll, transaction.SigHashNone))
	require.NoError(t, packet.ValidateSignaturesOfInput(0))

	sig, err := script.DecodeSignature(packet.Inputs[0].PartialSigs[0].Signature)
	require.NoError(t, err)
	require.Equal(t, byte(transaction.SigHashNone), sig.HashType)

	status, err = packet.InputStatus(0)
	require.NoError(t, err)
	require.Equal(t, psbt.StatusPartiallySigned, status)

	t.Run("tampered signature", func(t *testing.T) {
		tampered := packet.Clone()
		tampered.Inputs[0].WitnessUtxo.Value++

		require.ErrorIs(t, tampered.ValidateSignaturesOfInput(0), psbt.ErrInvalidSignature)
		require.NoError(t, packet.ValidateSignaturesOfInput(0))
	})

	require.NoError(t, packet.FinalizeInput(0))

	status, err = packet.InputStatus(0)
	require.NoError(t, err)
	require.Equal(t, psbt.StatusFinalized, status)
	require.Empty(t, packet.Inputs[0].PartialSigs)
	require.NotNil(t, packet.Inputs[0].WitnessUtxo)

	require.ErrorIs(t, packet.SignInput(0, k1), psbt.ErrInputFinalized)
	require.ErrorIs(t, packet.FinalizeInput(0), psbt.ErrInputFinalized)

	t.Run("missing utxo", func(t *testing.T) {
		packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{})

		require.ErrorIs(t, packet.SignInput(0, k1), psbt.ErrMissingUtxo)
		require.ErrorIs(t, packet.FinalizeInput(0), psbt.ErrMissingUtxo)

		_, err := packet.Fee()
		require.ErrorIs(t, err, psbt.ErrMissingUtxo)
	})

	t.Run("legacy without non witness utxo", func(t *testing.T) {
		p2pkh, err := payments.P2PKH(payments.Payment{Pubkey: k1.PublicKey()})
		require.NoError(t, err)

		packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{WitnessUtxo: &transaction.Output{Value: inputValue, Script: p2pkh.Output}})
		require.ErrorIs(t, packet.SignInput(0, k1), psbt.ErrMissingUtxo)
	})

	t.Run("witness script mismatch", func(t *testing.T) {
		p2wsh, err := payments.P2WSH(payments.Payment{Redeem: &payments.Payment{Output: []byte{script.OP_TRUE}}})
		require.NoError(t, err)

		packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{
			WitnessUtxo:   &transaction.Output{Value: inputValue, Script: p2wsh.Output},
			WitnessScript: []byte{script.OP_TRUE},
		})
		packet.Inputs[0].WitnessScript = []byte{script.OP_DUP}
		require.ErrorIs(t, packet.SignInput(0, k1), psbt.ErrScriptMismatch)
	})
}

func TestCombine(t *testing.T) {
	k1, k2, k3 := key(t, 1), key(t, 2), key(t, 3)

	multisig, err := payments.P2MS(payments.Payment{M: 2, Pubkeys: [][]byte{k1.PublicKey(), k2.PublicKey(), k3.PublicKey()}})
	require.NoError(t, err)

	p2wsh, err := payments.P2WSH(payments.Payment{Redeem: &payments.Payment{Output: multisig.Output}})
	require.NoError(t, err)

	prevOut := transaction.Output{Value: inputValue, Script: p2wsh.Output}
	base := newSingleInputPacket(t, psbt.Config{}, psbt.Input{WitnessUtxo: &prevOut, WitnessScript: multisig.Output})

	a := base.Clone()
	require.NoError(t, a.SignInput(0, k1))

	b := base.Clone()
	require.NoError(t, b.SignInput(0, k2))

	require.Empty(t, base.Inputs[0].PartialSigs)

	ab, err := a.Combine(b)
	require.NoError(t, err)

	ba, err := b.Combine(a)
	require.NoError(t, err)
	require.Equal(t, ab.Serialize(), ba.Serialize())

	aa, err := a.Combine(a, a)
	require.NoError(t, err)
	require.Equal(t, a.Serialize(), aa.Serialize())

	require.Len(t, ab.Inputs[0].PartialSigs, 2)
	require.NoError(t, ab.ValidateSignaturesOfAllInputs())

	t.Run("not enough signatures", func(t *testing.T) {
		err := a.Clone().FinalizeInput(0)
		require.ErrorIs(t, err, psbt.ErrFinalize)

		var finalizeErr *psbt.FinalizeError
		require.True(t, errors.As(err, &finalizeErr))
		require.Equal(t, 0, finalizeErr.Input)
		require.Equal(t, [][]byte{k2.PublicKey(), k3.PublicKey()}, finalizeErr.MissingKeys)
	})

	t.Run("finalize", func(t *testing.T) {
		finalized := ab.Clone()
		require.NoError(t, finalized.FinalizeAllInputs())
		require.Nil(t, finalized.Inputs[0].FinalScriptSig)
		require.Len(t, finalized.Inputs[0].FinalScriptWitness, 4)
		require.Empty(t, finalized.Inputs[0].FinalScriptWitness[0])
		require.Nil(t, finalized.Inputs[0].WitnessScript)

		tx, err := finalized.ExtractTransaction(false)
		require.NoError(t, err)
		verify(t, tx, prevOut)

		// finalized input wins over partial data of another psbt.
		combined, err := finalized.Combine(a)
		require.NoError(t, err)
		require.Empty(t, combined.Inputs[0].PartialSigs)
		require.Equal(t, finalized.Serialize(), combined.Serialize())
	})

	t.Run("conflict", func(t *testing.T) {
		c := base.Clone()
		c.Inputs[0].WitnessScript = []byte{script.OP_TRUE}

		_, err := a.Combine(c)
		require.ErrorIs(t, err, psbt.ErrConflict)
	})

	t.Run("different transactions", func(t *testing.T) {
		c := base.Clone()
		require.NoError(t, c.SetLocktime(1))

		_, err := a.Combine(c)
		require.ErrorIs(t, err, psbt.ErrTxMismatch)
	})
}

func TestFinalize(t *testing.T) {
	k1, k2, k3 := key(t, 1), key(t, 2), key(t, 3)

	t.Run("taproot key path", func(t *testing.T) {
		p2tr, err := payments.P2TR(payments.Payment{InternalPubkey: k1.XOnlyPublicKey()})
		require.NoError(t, err)

		prevOut := transaction.Output{Value: inputValue, Script: p2tr.Output}
		packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{WitnessUtxo: &prevOut, TapInternalKey: k1.XOnlyPublicKey()})

		require.NoError(t, packet.SignAllInputs(k1))
		require.Len(t, packet.Inputs[0].TapKeySig, 64)
		require.NoError(t, packet.ValidateSignaturesOfAllInputs())
		require.NoError(t, packet.FinalizeAllInputs())
		require.Nil(t, packet.Inputs[0].TapInternalKey)

		tx, err := packet.ExtractTransaction(false)
		require.NoError(t, err)
		require.Len(t, tx.Inputs[0].Witness, 1)
		verify(t, tx, prevOut)
	})

	t.Run("taproot script path", func(t *testing.T) {
		leaf := taproot.NewLeaf(script.Compile([]script.Element{
			script.Data(k1.XOnlyPublicKey()),
			script.Op(script.OP_CHECKSIG),
			script.Data(k2.XOnlyPublicKey()),
			script.Op(script.OP_CHECKSIGADD),
			script.Number(2),
			script.Op(script.OP_EQUAL),
		}))
		tree := taproot.Branch{Left: leaf, Right: taproot.NewLeaf([]byte{script.OP_RETURN})}
		internalKey := k3.XOnlyPublicKey()

		p2tr, err := payments.P2TR(payments.Payment{InternalPubkey: internalKey, ScriptTree: tree})
		require.NoError(t, err)

		hashTree, err := taproot.ToHashTree(tree)
		require.NoError(t, err)

		outputKey, err := taproot.TweakKey(crypto.DefaultCurve(), internalKey, hashTree.Hash).UnwrapOrErr(errors.New("invalid internal key"))
		require.NoError(t, err)
		require.Equal(t, p2tr.Output[2:], outputKey.XOnly)

		controlBlock, err := taproot.NewControlBlock(hashTree, leaf, internalKey, outputKey.Parity)
		require.NoError(t, err)

		prevOut := transaction.Output{Value: inputValue, Script: p2tr.Output}
		packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{
			WitnessUtxo:    &prevOut,
			TapInternalKey: internalKey,
			TapMerkleRoot:  hashTree.Hash,
			TapLeafScripts: []psbt.TapLeafScript{{ControlBlock: controlBlock.Bytes(), Script: leaf.Script, LeafVersion: taproot.LeafVersionTapScript}},
		})

		require.NoError(t, packet.SignTaprootInput(0, k1, nil))

		err = packet.Clone().FinalizeInput(0)
		var finalizeErr *psbt.FinalizeError
		require.True(t, errors.As(err, &finalizeErr))
		require.Equal(t, [][]byte{k2.XOnlyPublicKey()}, finalizeErr.MissingKeys)

		require.NoError(t, packet.SignTaprootInput(0, k2, [][]byte{leaf.Hash()}))
		require.Len(t, packet.Inputs[0].TapScriptSigs, 2)
		require.Nil(t, packet.Inputs[0].TapKeySig)
		require.NoError(t, packet.ValidateSignaturesOfInput(0))
		require.NoError(t, packet.FinalizeInput(0))

		tx, err := packet.ExtractTransaction(false)
		require.NoError(t, err)
		require.Len(t, tx.Inputs[0].Witness, 4)
		require.Equal(t, leaf.Script, tx.Inputs[0].Witness[2])
		require.Equal(t, controlBlock.Bytes(), tx.Inputs[0].Witness[3])
		verify(t, tx, prevOut)
	})

	t.Run("p2pkh", func(t *testing.T) {
		p2pkh, err := payments.P2PKH(payments.Payment{Pubkey: k1.PublicKey()})
		require.NoError(t, err)

		prevTx := transaction.New()
		prevTx.AddInput(chainhash.Hash{0xaa}, 0, transaction.DefaultSequence, nil)
		_, err = prevTx.AddOutput(p2pkh.Output, inputValue)
		require.NoError(t, err)

		packet := psbt.New(psbt.Config{})
		_, err = packet.AddInput(psbt.TxInput{Hash: prevTx.Hash(), Input: psbt.Input{NonWitnessUtxo: prevTx}})
		require.NoError(t, err)
		_, err = packet.AddOutput(psbt.TxOutput{Script: destination, Value: outputValue})
		require.NoError(t, err)

		require.NoError(t, packet.SignInput(0, k1))
		require.NoError(t, packet.FinalizeInput(0))
		require.NotNil(t, packet.Inputs[0].FinalScriptSig)
		require.Nil(t, packet.Inputs[0].FinalScriptWitness)

		tx, err := packet.ExtractTransaction(false)
		require.NoError(t, err)
		verify(t, tx, prevTx.Outputs[0])
	})

	t.Run("p2sh-p2wpkh", func(t *testing.T) {
		p2wpkh, err := payments.P2WPKH(payments.Payment{Pubkey: k2.PublicKey()})
		require.NoError(t, err)

		p2sh, err := payments.P2SH(payments.Payment{Redeem: &payments.Payment{Output: p2wpkh.Output}})
		require.NoError(t, err)

		prevOut := transaction.Output{Value: inputValue, Script: p2sh.Output}
		packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{WitnessUtxo: &prevOut, RedeemScript: p2wpkh.Output})

		require.NoError(t, packet.SignInput(0, k2))
		require.NoError(t, packet.FinalizeInput(0))
		require.Equal(t, append([]byte{0x16}, p2wpkh.Output...), packet.Inputs[0].FinalScriptSig)
		require.Len(t, packet.Inputs[0].FinalScriptWitness, 2)

		tx, err := packet.ExtractTransaction(false)
		require.NoError(t, err)
		verify(t, tx, prevOut)
	})

	t.Run("custom finalizer", func(t *testing.T) {
		preimage := []byte("psbtkit")
		hashLock := script.Compile([]script.Element{
			script.Op(script.OP_SHA256),
			script.Data(crypto.Default.SHA256(preimage)),
			script.Op(script.OP_EQUAL),
		})

		p2wsh, err := payments.P2WSH(payments.Payment{Redeem: &payments.Payment{Output: hashLock}})
		require.NoError(t, err)

		prevOut := transaction.Output{Value: inputValue, Script: p2wsh.Output}
		packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{WitnessUtxo: &prevOut, WitnessScript: hashLock})

		err = packet.FinalizeInput(0)
		require.ErrorIs(t, err, psbt.ErrFinalize)

		errNoPreimage := errors.New("no preimage")
		err = packet.FinalizeInputWith(0, func(int, *psbt.Input, []byte) (*payments.Payment, error) {
			return nil, errNoPreimage
		})
		require.ErrorIs(t, err, psbt.ErrFinalize)
		require.ErrorIs(t, err, errNoPreimage)

		var finalizeErr *psbt.FinalizeError
		require.ErrorAs(t, err, &finalizeErr)
		require.Equal(t, 0, finalizeErr.Input)
		require.False(t, packet.Inputs[0].IsFinalized())

		require.NoError(t, packet.FinalizeInputWith(0, func(index int, in *psbt.Input, s []byte) (*payments.Payment, error) {
			require.Equal(t, 0, index)
			require.Equal(t, hashLock, s)

			return &payments.Payment{Witness: [][]byte{preimage}}, nil
		}))
		require.Equal(t, [][]byte{preimage, hashLock}, packet.Inputs[0].FinalScriptWitness)

		tx, err := packet.ExtractTransaction(false)
		require.NoError(t, err)
		verify(t, tx, prevOut)
	})

	t.Run("empty unlocking data", func(t *testing.T) {
		p2wpkh, err := payments.P2WPKH(payments.Payment{Pubkey: k1.PublicKey()})
		require.NoError(t, err)

		packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{WitnessUtxo: &transaction.Output{Value: inputValue, Script: p2wpkh.Output}})

		err = packet.FinalizeInputWith(0, func(int, *psbt.Input, []byte) (*payments.Payment, error) {
			return &payments.Payment{}, nil
		})
		require.ErrorIs(t, err, psbt.ErrFinalize)
		require.False(t, packet.Inputs[0].IsFinalized())
	})
}

func TestExtract(t *testing.T) {
	k1 := key(t, 1)
	p2wpkh, err := payments.P2WPKH(payments.Payment{Pubkey: k1.PublicKey()})
	require.NoError(t, err)

	prevOut := transaction.Output{Value: inputValue, Script: p2wpkh.Output}

	t.Run("not finalized", func(t *testing.T) {
		packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{WitnessUtxo: &prevOut})

		_, err := packet.ExtractTransaction(true)
		require.ErrorIs(t, err, psbt.ErrNotFinalized)
	})

	t.Run("fee", func(t *testing.T) {
		packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{WitnessUtxo: &prevOut})
		require.NoError(t, packet.SignInput(0, k1))
		require.NoError(t, packet.FinalizeInput(0))

		fee, err := packet.Fee()
		require.NoError(t, err)
		require.Equal(t, uint64(inputValue-outputValue), fee)

		tx, err := packet.ExtractTransaction(false)
		require.NoError(t, err)

		feeRate, err := packet.FeeRate()
		require.NoError(t, err)
		require.Equal(t, fee/uint64(tx.VirtualSize()), feeRate)

		// extracted transaction is independent of the psbt.
		tx.Inputs[0].Witness[0][0] ^= 0xff
		require.NotEqual(t, tx.Inputs[0].Witness[0], packet.Inputs[0].FinalScriptWitness[0])
	})

	t.Run("fee rate too high", func(t *testing.T) {
		cheap := transaction.Output{Value: 10 * inputValue, Script: p2wpkh.Output}
		packet := newSingleInputPacket(t, psbt.Config{MaximumFeeRate: 10}, psbt.Input{WitnessUtxo: &cheap})
		require.NoError(t, packet.SignInput(0, k1))
		require.NoError(t, packet.FinalizeInput(0))

		_, err := packet.ExtractTransaction(false)
		require.ErrorIs(t, err, psbt.ErrFeeRate)

		var feeRateErr *psbt.FeeRateError
		require.True(t, errors.As(err, &feeRateErr))
		require.Equal(t, uint64(10*inputValue-outputValue), feeRateErr.Fee)
		require.Equal(t, uint64(10), feeRateErr.Maximum)

		_, err = packet.ExtractTransaction(true)
		require.NoError(t, err)
	})

	t.Run("negative fee", func(t *testing.T) {
		small := transaction.Output{Value: outputValue - 1, Script: p2wpkh.Output}
		packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{WitnessUtxo: &small})

		_, err := packet.Fee()
		require.ErrorIs(t, err, psbt.ErrNegativeFee)
	})
}

func TestClone(t *testing.T) {
	k1 := key(t, 1)
	p2wpkh, err := payments.P2WPKH(payments.Payment{Pubkey: k1.PublicKey()})
	require.NoError(t, err)

	packet := newSingleInputPacket(t, psbt.Config{}, psbt.Input{WitnessUtxo: &transaction.Output{Value: inputValue, Script: p2wpkh.Output}})
	require.NoError(t, packet.SignInput(0, k1))

	clone := packet.Clone()
	require.Equal(t, packet.Serialize(), clone.Serialize())

	clone.Inputs[0].PartialSigs[0].PubKey[0] ^= 0xff
	clone.Inputs[0].WitnessUtxo.Script[0] ^= 0xff
	clone.Global.UnsignedTx.Outputs[0].Value = 1

	require.Equal(t, k1.PublicKey(), packet.Inputs[0].PartialSigs[0].PubKey)
	require.Equal(t, p2wpkh.Output, packet.Inputs[0].WitnessUtxo.Script)
	require.Equal(t, uint64(outputValue), packet.Global.UnsignedTx.Outputs[0].Value)
}

// newSingleInputPacket returns psbt spending one input to the destination.
func newSingleInputPacket(t *testing.T, cfg psbt.Config, in psbt.Input) *psbt.Psbt {
	t.Helper()

	packet := psbt.New(cfg)

	_, err := packet.AddInput(psbt.TxInput{Hash: chainhash.Hash{0x01}, Index: 1, Input: in})
	require.NoError(t, err)

	_, err = packet.AddOutput(psbt.TxOutput{Script: destination, Value: outputValue})
	require.NoError(t, err)

	return packet
}

// key returns signer of the private key equal to b.
func key(t *testing.T, b byte) *signer.KeySigner {
	t.Helper()

	privateKey := make([]byte, 32)
	privateKey[31] = b

	s, err := signer.NewKeySigner(privateKey, nil)
	require.NoError(t, err)

	return s
}

// verify executes every input of the transaction with btcd script engine.
func verify(t *testing.T, tx *transaction.Transaction, prevOuts ...transaction.Output) {
	t.Helper()

	msgTx := wire.NewMsgTx(2)
	require.NoError(t, msgTx.Deserialize(bytes.NewReader(tx.Serialize())))
	require.Len(t, prevOuts, len(msgTx.TxIn))

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range msgTx.TxIn {
		fetcher.AddPrevOut(txIn.PreviousOutPoint, wire.NewTxOut(int64(prevOuts[i].Value), prevOuts[i].Script))
	}

	sigHashes := txscript.NewTxSigHashes(msgTx, fetcher)
	for i := range msgTx.TxIn {
		vm, err := txscript.NewEngine(prevOuts[i].Script, msgTx, i, txscript.StandardVerifyFlags, nil, sigHashes, int64(prevOuts[i].Value), fetcher)
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d", i)
	}
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}

	return b
}
