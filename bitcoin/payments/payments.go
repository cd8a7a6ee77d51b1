// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package payments

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
)

// Payment names.
const (
	NameP2PK   = "p2pk"
	NameP2PKH  = "p2pkh"
	NameP2SH   = "p2sh"
	NameP2WPKH = "p2wpkh"
	NameP2WSH  = "p2wsh"
	NameP2TR   = "p2tr"
	NameP2MS   = "p2ms"
	NameEmbed  = "embed"
)

// DefaultMaxEmbedSize defines standard maximum size of the null data output script.
const DefaultMaxEmbedSize = 83

var (
	// ErrNotEnoughData defines payment that can't be derived from the provided fields.
	ErrNotEnoughData = errors.New("not enough data")
	// ErrMismatch defines payment with malformed or mutually inconsistent fields.
	ErrMismatch = errors.New("payment data mismatch")
)

// FieldError describes the payment field that is malformed or contradicts other fields.
type FieldError struct {
	Payment string
	Field   string
	Reason  string
}

// Error returns error message.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Payment, e.Field, e.Reason)
}

// Is implements errors.Is interface.
func (e *FieldError) Is(target error) bool {
	return target == ErrMismatch
}

func mismatch(payment, field, reason string, args ...any) error {
	return &FieldError{Payment: payment, Field: field, Reason: fmt.Sprintf(reason, args...)}
}

func notEnoughData(payment string) error {
	return fmt.Errorf("%s: %w", payment, ErrNotEnoughData)
}

// Payment describes one of the standard script templates.
// Constructors accept any sufficient subset of the fields and return a new Payment
// with every derivable field filled in. A returned Payment is never modified.
type Payment struct {
	Name    string
	Network *chaincfg.Params

	Address string
	Hash    []byte // pubkey hash, script hash or taproot merkle root.
	Output  []byte // scriptPubKey.
	Input   []byte // scriptSig.
	Witness [][]byte

	Pubkey     []byte // for p2tr it is x-only output key.
	Signature  []byte
	Pubkeys    [][]byte
	Signatures [][]byte
	M          int
	N          int

	Data [][]byte

	Redeem         *Payment
	InternalPubkey []byte
	ScriptTree     taproot.Tree
	RedeemVersion  byte // leaf version of the p2tr redeem script.
}

// Options defines payment construction options.
type Options struct {
	Network     *chaincfg.Params
	Curve       *crypto.CheckedCurve
	Validate    bool
	SortKeys    bool
	MaxDataSize int
}

// Option configures payment construction.
type Option func(*Options)

// WithNetwork sets network parameters used for addresses, mainnet by default.
func WithNetwork(network *chaincfg.Params) Option {
	return func(o *Options) {
		o.Network = network
	}
}

// WithCurve sets curve capability used for point checks and key tweaking.
func WithCurve(curve *crypto.CheckedCurve) Option {
	return func(o *Options) {
		o.Curve = curve
	}
}

// WithoutValidation disables consistency and point checks, fields are only derived.
func WithoutValidation() Option {
	return func(o *Options) {
		o.Validate = false
	}
}

// WithSortedKeys sorts p2ms public keys lexicographically.
func WithSortedKeys() Option {
	return func(o *Options) {
		o.SortKeys = true
	}
}

// WithMaxDataSize sets maximum size of the null data output script, 0 disables the check.
func WithMaxDataSize(size int) Option {
	return func(o *Options) {
		o.MaxDataSize = size
	}
}

func newOptions(network *chaincfg.Params, opts []Option) Options {
	o := Options{
		Network:     network,
		Validate:    true,
		MaxDataSize: DefaultMaxEmbedSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.Network == nil {
		o.Network = &chaincfg.MainNetParams
	}
	if o.Curve == nil {
		o.Curve = crypto.DefaultCurve()
	}

	return o
}

// field holds value of the payment field collected from several sources.
// The first source wins, others are compared against it when validation is enabled.
type field struct {
	payment  string
	validate bool
	name     string
	value    []byte
}

func (f *field) set(source string, value []byte) error {
	if value == nil {
		return nil
	}

	if f.value == nil {
		f.value = value
		f.name = source

		return nil
	}

	if f.validate && !bytes.Equal(f.value, value) {
		return mismatch(f.payment, source, "conflicts with %s", f.name)
	}

	return nil
}

func stacksEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}

	return true
}
