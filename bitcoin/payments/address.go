// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package payments

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/BoostyLabs/psbtkit/bitcoin/script"
)

const (
	hashLen       = 20
	witnessV0Len  = 20
	witnessV0SLen = 32
	taprootLen    = 32
)

var (
	// ErrInvalidAddress defines address that can't be decoded.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNetworkMismatch defines address of another network.
	ErrNetworkMismatch = errors.New("address network mismatch")
	// ErrNoAddress defines output script that has no address form.
	ErrNoAddress = errors.New("output script has no address form")
)

// Base58Address defines decoded base58check address.
type Base58Address struct {
	Version byte
	Hash    []byte
}

// Bech32Address defines decoded segwit address.
type Bech32Address struct {
	Version byte
	Program []byte
	Prefix  string
}

// FromBase58Check decodes base58check address.
func FromBase58Check(address string) (Base58Address, error) {
	hash, version, err := base58.CheckDecode(address)
	if err != nil {
		return Base58Address{}, errors.Join(ErrInvalidAddress, err)
	}
	if len(hash) != hashLen {
		return Base58Address{}, fmt.Errorf("%w: %d bytes hash", ErrInvalidAddress, len(hash))
	}

	return Base58Address{Version: version, Hash: hash}, nil
}

// ToBase58Check encodes base58check address.
func ToBase58Check(hash []byte, version byte) string {
	return base58.CheckEncode(hash, version)
}

// FromBech32 decodes segwit address, bech32 for version 0 and bech32m for the later versions.
func FromBech32(address string) (Bech32Address, error) {
	prefix, data, encoding, err := bech32.DecodeGeneric(address)
	if err != nil {
		return Bech32Address{}, errors.Join(ErrInvalidAddress, err)
	}
	if len(data) == 0 {
		return Bech32Address{}, fmt.Errorf("%w: empty data", ErrInvalidAddress)
	}

	version := data[0]
	if version > 16 {
		return Bech32Address{}, fmt.Errorf("%w: witness version %d", ErrInvalidAddress, version)
	}
	if (version == 0 && encoding != bech32.Version0) || (version != 0 && encoding != bech32.VersionM) {
		return Bech32Address{}, fmt.Errorf("%w: wrong checksum variant for version %d", ErrInvalidAddress, version)
	}

	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return Bech32Address{}, errors.Join(ErrInvalidAddress, err)
	}
	if len(program) < 2 || len(program) > 40 {
		return Bech32Address{}, fmt.Errorf("%w: %d bytes witness program", ErrInvalidAddress, len(program))
	}
	if version == 0 && len(program) != witnessV0Len && len(program) != witnessV0SLen {
		return Bech32Address{}, fmt.Errorf("%w: %d bytes version 0 program", ErrInvalidAddress, len(program))
	}

	return Bech32Address{Version: version, Program: program, Prefix: prefix}, nil
}

// ToBech32 encodes segwit address.
func ToBech32(program []byte, version byte, prefix string) (string, error) {
	data, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", errors.Join(ErrInvalidAddress, err)
	}

	data = append([]byte{version}, data...)
	if version == 0 {
		return bech32.Encode(prefix, data)
	}

	return bech32.EncodeM(prefix, data)
}

// ToOutputScript returns output script paying to the address.
func ToOutputScript(address string, network *chaincfg.Params) ([]byte, error) {
	if network == nil {
		network = &chaincfg.MainNetParams
	}

	if decoded, err := FromBase58Check(address); err == nil {
		switch decoded.Version {
		case network.PubKeyHashAddrID:
			return p2pkhOutput(decoded.Hash), nil
		case network.ScriptHashAddrID:
			return p2shOutput(decoded.Hash), nil
		default:
			return nil, fmt.Errorf("%w: version 0x%02x", ErrNetworkMismatch, decoded.Version)
		}
	}

	decoded, err := FromBech32(address)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(decoded.Prefix, network.Bech32HRPSegwit) {
		return nil, fmt.Errorf("%w: prefix %s", ErrNetworkMismatch, decoded.Prefix)
	}

	switch {
	case decoded.Version == 0 && len(decoded.Program) == witnessV0Len:
		return p2wpkhOutput(decoded.Program), nil
	case decoded.Version == 0:
		return p2wshOutput(decoded.Program), nil
	case decoded.Version == 1 && len(decoded.Program) == taprootLen:
		return p2trOutput(decoded.Program), nil
	default:
		return witnessOutput(decoded.Version, decoded.Program), nil
	}
}

// FromOutputScript returns address of the output script.
func FromOutputScript(output []byte, network *chaincfg.Params) (string, error) {
	if network == nil {
		network = &chaincfg.MainNetParams
	}

	switch ClassifyOutput(output) {
	case TypeP2PKH:
		return ToBase58Check(output[3:23], network.PubKeyHashAddrID), nil
	case TypeP2SH:
		return ToBase58Check(output[2:22], network.ScriptHashAddrID), nil
	case TypeP2WPKH, TypeP2WSH, TypeP2TR, TypeWitnessUnknown:
		return ToBech32(output[2:], byte(script.SmallIntValue(output[0])), network.Bech32HRPSegwit)
	default:
		return "", ErrNoAddress
	}
}

func witnessOutput(version byte, program []byte) []byte {
	op, _ := script.SmallIntOpcode(int(version))

	return script.Compile([]script.Element{script.Op(op), script.Data(program)})
}
