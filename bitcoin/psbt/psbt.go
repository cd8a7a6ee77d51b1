// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt

import (
	"bytes"
	"cmp"
	"slices"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
)

// DefaultMaximumFeeRate defines default maximum fee rate in satoshi per virtual byte.
const DefaultMaximumFeeRate = 5000

// Config defines psbt configuration.
type Config struct {
	Network        *chaincfg.Params
	Curve          *crypto.CheckedCurve
	MaximumFeeRate uint64 // in satoshi per virtual byte.
}

func (cfg Config) withDefaults() Config {
	if cfg.Network == nil {
		cfg.Network = &chaincfg.MainNetParams
	}
	if cfg.Curve == nil {
		cfg.Curve = crypto.DefaultCurve()
	}
	if cfg.MaximumFeeRate == 0 {
		cfg.MaximumFeeRate = DefaultMaximumFeeRate
	}

	return cfg
}

// Psbt defines partially signed bitcoin transaction.
// INFO: a Psbt is not safe for concurrent use, every participant works on its own copy.
type Psbt struct {
	Global  Global
	Inputs  []Input
	Outputs []Output

	cfg Config
}

// Global defines psbt global map.
type Global struct {
	UnsignedTx *transaction.Transaction
	Xpubs      []Xpub
	Version    uint32
	Unknowns   []Unknown
}

// Xpub defines global extended public key with its origin.
type Xpub struct {
	ExtendedKey       []byte // 78 bytes serialized BIP32 key.
	MasterFingerprint uint32
	Path              []uint32
}

// Unknown defines key-value pair with key type unknown to the package.
type Unknown struct {
	Key   []byte // key type and key data.
	Value []byte
}

// PartialSig defines ECDSA signature of the input.
type PartialSig struct {
	PubKey    []byte
	Signature []byte // DER with sighash type.
}

// Bip32Derivation defines origin of the public key.
type Bip32Derivation struct {
	PubKey            []byte
	MasterFingerprint uint32
	Path              []uint32
}

// TapBip32Derivation defines origin of the x-only public key and the leaves it is used in.
type TapBip32Derivation struct {
	XOnlyPubKey       []byte
	LeafHashes        [][]byte
	MasterFingerprint uint32
	Path              []uint32
}

// TapScriptSig defines Schnorr signature of the leaf script.
type TapScriptSig struct {
	XOnlyPubKey []byte
	LeafHash    []byte
	Signature   []byte // 64 or 65 bytes.
}

// TapLeafScript defines leaf script with its control block.
type TapLeafScript struct {
	ControlBlock []byte
	Script       []byte
	LeafVersion  byte
}

// LeafHash returns hash of the leaf.
func (l TapLeafScript) LeafHash() []byte {
	return taproot.TapLeafHash(taproot.Leaf{Script: l.Script, Version: l.LeafVersion})
}

// Input defines psbt input map.
type Input struct {
	NonWitnessUtxo      *transaction.Transaction
	WitnessUtxo         *transaction.Output
	PartialSigs         []PartialSig
	SighashType         fn.Option[uint32]
	RedeemScript        []byte
	WitnessScript       []byte
	Bip32Derivations    []Bip32Derivation
	FinalScriptSig      []byte
	FinalScriptWitness  [][]byte
	TapKeySig           []byte
	TapScriptSigs       []TapScriptSig
	TapLeafScripts      []TapLeafScript
	TapBip32Derivations []TapBip32Derivation
	TapInternalKey      []byte
	TapMerkleRoot       []byte
	Unknowns            []Unknown
}

// IsFinalized returns true if input has final scriptSig or witness.
func (in *Input) IsFinalized() bool {
	return in.FinalScriptSig != nil || in.FinalScriptWitness != nil
}

// Output defines psbt output map.
type Output struct {
	RedeemScript        []byte
	WitnessScript       []byte
	Bip32Derivations    []Bip32Derivation
	TapInternalKey      []byte
	TapTree             taproot.Tree
	TapBip32Derivations []TapBip32Derivation
	Unknowns            []Unknown
}

// InputStatus defines signing progress of the input.
type InputStatus int

const (
	// StatusUnsigned defines input without signatures.
	StatusUnsigned InputStatus = iota
	// StatusPartiallySigned defines input with at least one signature.
	StatusPartiallySigned
	// StatusFinalized defines input with final scriptSig or witness.
	StatusFinalized
)

// String returns status name.
func (s InputStatus) String() string {
	switch s {
	case StatusUnsigned:
		return "unsigned"
	case StatusPartiallySigned:
		return "partially signed"
	case StatusFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// New creates psbt with empty version 2 transaction.
func New(cfg Config) *Psbt {
	return &Psbt{
		Global: Global{UnsignedTx: transaction.New()},
		cfg:    cfg.withDefaults(),
	}
}

// NewFromTransaction creates psbt for the unsigned transaction.
func NewFromTransaction(tx *transaction.Transaction, cfg Config) (*Psbt, error) {
	if err := checkUnsignedTx(tx); err != nil {
		return nil, err
	}

	return &Psbt{
		Global:  Global{UnsignedTx: tx.Clone()},
		Inputs:  make([]Input, len(tx.Inputs)),
		Outputs: make([]Output, len(tx.Outputs)),
		cfg:     cfg.withDefaults(),
	}, nil
}

func checkUnsignedTx(tx *transaction.Transaction) error {
	for _, in := range tx.Inputs {
		if len(in.Script) != 0 || len(in.Witness) != 0 {
			return ErrUnsignedTxHasScripts
		}
	}

	return nil
}

// Config returns psbt configuration.
func (p *Psbt) Config() Config {
	return p.cfg
}

// InputStatus returns signing progress of the input.
func (p *Psbt) InputStatus(index int) (InputStatus, error) {
	if index < 0 || index >= len(p.Inputs) {
		return StatusUnsigned, ErrInputIndex
	}

	in := &p.Inputs[index]
	switch {
	case in.IsFinalized():
		return StatusFinalized, nil
	case len(in.PartialSigs) > 0 || len(in.TapKeySig) > 0 || len(in.TapScriptSigs) > 0:
		return StatusPartiallySigned, nil
	default:
		return StatusUnsigned, nil
	}
}

// sortedUpsert inserts or replaces item keeping the slice sorted by key.
func sortedUpsert[T any](items []T, item T, compare func(a, b T) int) []T {
	i, found := slices.BinarySearchFunc(items, item, compare)
	if found {
		items[i] = item

		return items
	}

	return slices.Insert(items, i, item)
}

func comparePartialSigs(a, b PartialSig) int { return bytes.Compare(a.PubKey, b.PubKey) }

func compareBip32(a, b Bip32Derivation) int { return bytes.Compare(a.PubKey, b.PubKey) }

func compareTapBip32(a, b TapBip32Derivation) int { return bytes.Compare(a.XOnlyPubKey, b.XOnlyPubKey) }

func compareTapScriptSigs(a, b TapScriptSig) int {
	return cmp.Or(bytes.Compare(a.XOnlyPubKey, b.XOnlyPubKey), bytes.Compare(a.LeafHash, b.LeafHash))
}

func compareTapLeafScripts(a, b TapLeafScript) int {
	return bytes.Compare(a.ControlBlock, b.ControlBlock)
}

func compareUnknowns(a, b Unknown) int { return bytes.Compare(a.Key, b.Key) }

func compareXpubs(a, b Xpub) int { return bytes.Compare(a.ExtendedKey, b.ExtendedKey) }
