// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils

import (
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/BoostyLabs/psbtkit/bitcoin/payments"
	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
)

// NewTaprootAddressWithMultiSig generates taproot address with one leaf tapScript that holds multi-sig locking script build on provided pubKeys.
// NOTE: At least 2 public keys for multi-sig script generation is required.
func NewTaprootAddressWithMultiSig(chainParams *chaincfg.Params, internalPubKey []byte, pubKeys ...[]byte) (string, error) {
	leafTapScript, err := NewTaprootMultiSigLeafTapScript(pubKeys...)
	if err != nil {
		return "", err
	}

	return NewTaprootAddressFromScripts(chainParams, internalPubKey, leafTapScript)
}

// MustTaprootAddressWithMultiSig uses NewTaprootAddressWithMultiSig, panics in case of error.
func MustTaprootAddressWithMultiSig(chainParams *chaincfg.Params, internalPubKey []byte, pubKeys ...[]byte) string {
	address, err := NewTaprootAddressWithMultiSig(chainParams, internalPubKey, pubKeys...)
	if err != nil {
		panic(err)
	}

	return address
}

// NewTaprootAddressFromScripts generates taproot address with tree built from provided leaf scripts.
func NewTaprootAddressFromScripts(chainParams *chaincfg.Params, internalPubKey []byte, leafScripts ...[]byte) (string, error) {
	tree, err := NewTapScriptTreeFromRawScripts(leafScripts...)
	if err != nil {
		return "", err
	}

	p2tr, err := payments.P2TR(payments.Payment{
		InternalPubkey: taproot.XOnly(internalPubKey),
		ScriptTree:     tree,
	}, payments.WithNetwork(chainParams))
	if err != nil {
		return "", err
	}

	return p2tr.Address, nil
}

// MustTaprootAddressFromScripts uses NewTaprootAddressFromScripts, panics in case of error.
func MustTaprootAddressFromScripts(chainParams *chaincfg.Params, internalPubKey []byte, leafScripts ...[]byte) string {
	address, err := NewTaprootAddressFromScripts(chainParams, internalPubKey, leafScripts...)
	if err != nil {
		panic(err)
	}

	return address
}
