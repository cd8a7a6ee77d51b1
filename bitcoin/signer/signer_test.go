// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer_test

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/psbtkit/bitcoin/psbt"
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
	"github.com/BoostyLabs/psbtkit/bitcoin/signer"
	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
)

func TestSigner(t *testing.T) {
	s := signer.NewSigner(&chaincfg.MainNetParams)

	privKey, pubKey := btcec.PrivKeyFromBytes(mustHex("0c28fca386c7a227600b2fe50b7cae11ec86d3bf1fbe471be89827e19d72aa1d"))
	prevHash := mustHash("5aa4e4e957b467d07413aa75cdab5e4ce9ff2b714cd81b6af0e90bfee5ff070c")
	destination := mustHex("512015ae9a1bdfb273684b8c1107cc2dccf51f2235d8c79fe8b8e6555ad826415011")

	newPacket := func(t *testing.T, in psbt.Input) []byte {
		packet := psbt.New(psbt.Config{})

		_, err := packet.AddInput(psbt.TxInput{Hash: *prevHash, Index: 0, Input: in})
		require.NoError(t, err)

		_, err = packet.AddOutput(psbt.TxOutput{Script: destination, Value: 42000})
		require.NoError(t, err)

		return packet.Serialize()
	}

	extract := func(t *testing.T, signed []byte) *transaction.Transaction {
		packet, err := psbt.Parse(signed, psbt.Config{})
		require.NoError(t, err)
		require.NoError(t, packet.ValidateSignaturesOfAllInputs())
		require.NoError(t, packet.FinalizeAllInputs())

		tx, err := packet.ExtractTransaction(false)
		require.NoError(t, err)

		return tx
	}

	t.Run("simple taproot", func(t *testing.T) {
		pkScript, err := txscript.PayToTaprootScript(txscript.ComputeTaprootKeyNoScript(pubKey))
		require.NoError(t, err)

		signed, err := s.Sign(signer.SignParams{
			SerializedPSBT: newPacket(t, psbt.Input{
				WitnessUtxo:    &transaction.Output{Value: 43000, Script: pkScript},
				TapInternalKey: schnorr.SerializePubKey(pubKey),
			}),
			Inputs:     []int{0},
			PrivateKey: privKey,
		})
		require.NoError(t, err)

		tx := extract(t, signed)
		require.Len(t, tx.Inputs[0].Witness, 1)
		require.Len(t, tx.Inputs[0].Witness[0], 64)
		execute(t, tx, pkScript, 43000)
	})

	t.Run("p2wpkh", func(t *testing.T) {
		address, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubKey.SerializeCompressed()), &chaincfg.MainNetParams)
		require.NoError(t, err)

		pkScript, err := txscript.PayToAddrScript(address)
		require.NoError(t, err)

		signed, err := s.Sign(signer.SignParams{
			SerializedPSBT: newPacket(t, psbt.Input{WitnessUtxo: &transaction.Output{Value: 43000, Script: pkScript}}),
			PrivateKey:     privKey,
		})
		require.NoError(t, err)

		tx := extract(t, signed)
		require.Len(t, tx.Inputs[0].Witness, 2)
		execute(t, tx, pkScript, 43000)
	})

	t.Run("invalid input index", func(t *testing.T) {
		_, err := s.Sign(signer.SignParams{
			SerializedPSBT: newPacket(t, psbt.Input{}),
			Inputs:         []int{1},
			PrivateKey:     privKey,
		})
		require.Error(t, err)
	})

	t.Run("foreign key", func(t *testing.T) {
		otherKey, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{0x11}, 32))
		pkScript, err := txscript.PayToTaprootScript(txscript.ComputeTaprootKeyNoScript(pubKey))
		require.NoError(t, err)

		_, err = s.Sign(signer.SignParams{
			SerializedPSBT: newPacket(t, psbt.Input{WitnessUtxo: &transaction.Output{Value: 43000, Script: pkScript}}),
			PrivateKey:     otherKey,
		})
		require.ErrorIs(t, err, psbt.ErrNoMatchingKey)
	})
}

func TestKeySigner(t *testing.T) {
	privKey, pubKey := btcec.PrivKeyFromBytes(mustHex("b7e151628aed2a6abf7158809cf4f3c762e7160f38b4da56a784d9045190cfef"))
	hash := chainhash.DoubleHashB([]byte("psbtkit"))

	keySigner, err := signer.NewKeySignerFromBtcec(privKey)
	require.NoError(t, err)
	require.Equal(t, pubKey.SerializeCompressed(), keySigner.PublicKey())
	require.Equal(t, schnorr.SerializePubKey(pubKey), keySigner.XOnlyPublicKey())

	t.Run("ecdsa", func(t *testing.T) {
		signature, err := keySigner.Sign(hash)
		require.NoError(t, err)
		require.Len(t, signature, 64)

		encoded, err := script.EncodeSignature(signature, byte(txscript.SigHashAll))
		require.NoError(t, err)

		parsed, err := ecdsa.ParseDERSignature(encoded[:len(encoded)-1])
		require.NoError(t, err)
		require.True(t, parsed.Verify(hash, pubKey))
	})

	t.Run("schnorr", func(t *testing.T) {
		signature, err := keySigner.SignSchnorr(hash)
		require.NoError(t, err)

		parsed, err := schnorr.ParseSignature(signature)
		require.NoError(t, err)
		require.True(t, parsed.Verify(hash, pubKey))
	})

	t.Run("tweak", func(t *testing.T) {
		root := chainhash.HashB([]byte("root"))
		for _, merkleRoot := range [][]byte{nil, root} {
			tweaked, err := keySigner.Tweak(merkleRoot)
			require.NoError(t, err)

			expected := txscript.TweakTaprootPrivKey(*privKey, merkleRoot)
			require.Equal(t, expected.PubKey().SerializeCompressed(), tweaked.PublicKey())
		}
	})

	t.Run("invalid private key", func(t *testing.T) {
		_, err := signer.NewKeySigner(make([]byte, 32), nil)
		require.ErrorIs(t, err, signer.ErrInvalidPrivateKey)
	})
}

func TestHDSigner(t *testing.T) {
	seed := mustHex("000102030405060708090a0b0c0d0e0f")

	hdSigner, err := signer.NewHDSigner(seed, &chaincfg.MainNetParams, nil)
	require.NoError(t, err)

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	masterPubKey, err := master.ECPubKey()
	require.NoError(t, err)
	require.Equal(t, binary.LittleEndian.Uint32(btcutil.Hash160(masterPubKey.SerializeCompressed())[:4]), hdSigner.Fingerprint())

	t.Run("derive", func(t *testing.T) {
		path, err := signer.ParseDerivationPath("m/0'/1/2'")
		require.NoError(t, err)

		child := master
		for _, index := range path {
			child, err = child.Derive(index)
			require.NoError(t, err)
		}

		childPubKey, err := child.ECPubKey()
		require.NoError(t, err)

		derived, err := hdSigner.DerivePath(path)
		require.NoError(t, err)
		require.Equal(t, childPubKey.SerializeCompressed(), derived.PublicKey())
	})

	t.Run("from string", func(t *testing.T) {
		fromString, err := signer.NewHDSignerFromString(master.String(), nil)
		require.NoError(t, err)
		require.Equal(t, hdSigner.Fingerprint(), fromString.Fingerprint())

		neutered, err := master.Neuter()
		require.NoError(t, err)

		_, err = signer.NewHDSignerFromString(neutered.String(), nil)
		require.ErrorIs(t, err, signer.ErrPublicExtendedKey)
	})

	t.Run("sign psbt", func(t *testing.T) {
		path := []uint32{hdkeychain.HardenedKeyStart + 84, hdkeychain.HardenedKeyStart, hdkeychain.HardenedKeyStart, 0, 0}
		derived, err := hdSigner.DerivePath(path)
		require.NoError(t, err)

		address, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(derived.PublicKey()), &chaincfg.MainNetParams)
		require.NoError(t, err)

		pkScript, err := txscript.PayToAddrScript(address)
		require.NoError(t, err)

		packet := psbt.New(psbt.Config{})
		_, err = packet.AddInput(psbt.TxInput{
			Hash: chainhash.Hash{0x01},
			Input: psbt.Input{
				WitnessUtxo: &transaction.Output{Value: 10000, Script: pkScript},
				Bip32Derivations: []psbt.Bip32Derivation{{
					PubKey:            derived.PublicKey(),
					MasterFingerprint: hdSigner.Fingerprint(),
					Path:              path,
				}},
			},
		})
		require.NoError(t, err)

		_, err = packet.AddOutput(psbt.TxOutput{Script: pkScript, Value: 9000})
		require.NoError(t, err)

		require.NoError(t, packet.SignAllInputsHD(hdSigner))
		require.NoError(t, packet.FinalizeAllInputs())

		tx, err := packet.ExtractTransaction(false)
		require.NoError(t, err)
		execute(t, tx, pkScript, 10000)
	})
}

func TestParseDerivationPath(t *testing.T) {
	tests := []struct {
		path     string
		expected []uint32
		valid    bool
	}{
		{path: "m", expected: []uint32{}, valid: true},
		{path: "m/0/1", expected: []uint32{0, 1}, valid: true},
		{path: "m/84'/0h/2H", expected: []uint32{0x80000054, 0x80000000, 0x80000002}, valid: true},
		{path: "m/2147483647'", expected: []uint32{0xffffffff}, valid: true},
		{path: "", valid: false},
		{path: "0/1", valid: false},
		{path: "m/", valid: false},
		{path: "m/x", valid: false},
		{path: "m/1''", valid: false},
		{path: "m/2147483648", valid: false},
	}

	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			path, err := signer.ParseDerivationPath(test.path)
			if !test.valid {
				require.ErrorIs(t, err, signer.ErrInvalidDerivationPath)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.expected, path)
		})
	}
}

// execute runs the first input of the transaction through btcd script engine.
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

func mustHash(s string) *chainhash.Hash {
	h, _ := chainhash.NewHashFromStr(s)

	return h
}
