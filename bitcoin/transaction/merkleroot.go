// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package transaction

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/merkle"
)

// ErrNoWitnessCommitment defines coinbase without witness reserved value.
var ErrNoWitnessCommitment = errors.New("coinbase has no witness reserved value")

// CalculateMerkleRoot returns merkle root of the block transactions.
// When forWitness is true it returns BIP141 witness commitment: hash256 of the
// wtxid merkle root and the coinbase witness reserved value.
func CalculateMerkleRoot(txs []*Transaction, forWitness bool) (chainhash.Hash, error) {
	hashes := make([][]byte, len(txs))
	for i, tx := range txs {
		var hash chainhash.Hash
		switch {
		case forWitness && i == 0 && tx.IsCoinbase():
			// wtxid of the coinbase is zero.
		case forWitness:
			hash = tx.WitnessHash()
		default:
			hash = tx.Hash()
		}

		hashes[i] = hash[:]
	}

	root, err := merkle.FastMerkleRoot(hashes, crypto.Default.Hash256)
	if err != nil {
		return chainhash.Hash{}, err
	}

	if forWitness {
		coinbase := txs[0]
		if !coinbase.IsCoinbase() || len(coinbase.Inputs[0].Witness) == 0 {
			return chainhash.Hash{}, ErrNoWitnessCommitment
		}

		root = crypto.Default.Hash256(append(root, coinbase.Inputs[0].Witness[0]...))
	}

	var result chainhash.Hash
	copy(result[:], root)

	return result, nil
}
