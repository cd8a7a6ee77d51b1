// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package payments

import (
	"github.com/BoostyLabs/psbtkit/bitcoin/script"
	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
)

// ScriptType defines recognized script template.
type ScriptType string

// Script types.
const (
	TypeP2PK           ScriptType = NameP2PK
	TypeP2PKH          ScriptType = NameP2PKH
	TypeP2SH           ScriptType = NameP2SH
	TypeP2WPKH         ScriptType = NameP2WPKH
	TypeP2WSH          ScriptType = NameP2WSH
	TypeP2TR           ScriptType = NameP2TR
	TypeP2MS           ScriptType = NameP2MS
	TypeEmbed          ScriptType = NameEmbed
	TypeWitnessUnknown ScriptType = "witnessunknown"
	TypeNonStandard    ScriptType = "nonstandard"
)

// ClassifyOutput returns template of the output script.
func ClassifyOutput(output []byte) ScriptType {
	switch {
	case isP2WPKHOutput(output):
		return TypeP2WPKH
	case isP2WSHOutput(output):
		return TypeP2WSH
	case isP2TROutput(output):
		return TypeP2TR
	case isP2PKHOutput(output):
		return TypeP2PKH
	case isP2SHOutput(output):
		return TypeP2SH
	case isWitnessOutput(output):
		return TypeWitnessUnknown
	}

	elements, err := script.Decompile(output)
	if err != nil {
		return TypeNonStandard
	}

	switch {
	case isP2MSOutput(elements):
		return TypeP2MS
	case isP2PKOutput(elements):
		return TypeP2PK
	case isEmbedOutput(elements):
		return TypeEmbed
	default:
		return TypeNonStandard
	}
}

// ClassifyInput returns template of the input script.
// INFO: p2sh is recognized by the last push being a standard output script.
func ClassifyInput(input []byte) ScriptType {
	elements, err := script.Decompile(input)
	if err != nil || len(elements) == 0 || !script.IsPushOnly(elements) {
		return TypeNonStandard
	}

	stack, err := script.ToStack(elements)
	if err != nil {
		return TypeNonStandard
	}

	switch {
	case len(stack) == 2 && script.IsCanonicalScriptSignature(stack[0]) && script.IsCanonicalPubKey(stack[1]):
		return TypeP2PKH
	case isP2SHInput(stack):
		return TypeP2SH
	case len(stack) >= 2 && len(stack[0]) == 0 && allCanonicalSignatures(stack[1:]):
		return TypeP2MS
	case len(stack) == 1 && script.IsCanonicalScriptSignature(stack[0]):
		return TypeP2PK
	default:
		return TypeNonStandard
	}
}

// ClassifyWitness returns template of the witness stack.
func ClassifyWitness(witness [][]byte) ScriptType {
	switch {
	case len(witness) == 2 && script.IsCanonicalScriptSignature(witness[0]) && len(witness[1]) == 33 &&
		script.IsCanonicalPubKey(witness[1]):
		return TypeP2WPKH
	case len(witness) == 1 && (len(witness[0]) == 64 || len(witness[0]) == 65):
		return TypeP2TR
	case len(witness) >= 1 && isStandardRedeem(witness[len(witness)-1]):
		return TypeP2WSH
	}

	stack := stripAnnex(witness)
	if len(stack) == 1 && len(witness) == 2 && (len(stack[0]) == 64 || len(stack[0]) == 65) {
		return TypeP2TR
	}
	if len(stack) >= 2 {
		if _, err := taproot.ParseControlBlock(stack[len(stack)-1]); err == nil &&
			stack[len(stack)-1][0]&taproot.LeafVersionMask == taproot.LeafVersionTapScript {
			return TypeP2TR
		}
	}

	return TypeNonStandard
}

func isP2SHInput(stack [][]byte) bool {
	if len(stack) == 0 {
		return false
	}

	redeem := stack[len(stack)-1]
	if !isStandardRedeem(redeem) {
		return false
	}

	// nested segwit: only the redeem script is pushed.
	switch ClassifyOutput(redeem) {
	case TypeP2WPKH, TypeP2WSH:
		return len(stack) == 1
	}

	rest := make([]script.Element, 0, len(stack)-1)
	for _, item := range stack[:len(stack)-1] {
		rest = append(rest, script.Data(item))
	}

	return len(rest) == 0 || ClassifyInput(script.Compile(rest)) != TypeNonStandard
}

func isStandardRedeem(b []byte) bool {
	if len(b) == 0 {
		return false
	}

	switch ClassifyOutput(b) {
	case TypeNonStandard, TypeEmbed:
		return false
	default:
		return true
	}
}

func allCanonicalSignatures(sigs [][]byte) bool {
	for _, sig := range sigs {
		if !script.IsCanonicalScriptSignature(sig) {
			return false
		}
	}

	return true
}

// stripAnnex returns witness without the annex.
func stripAnnex(witness [][]byte) [][]byte {
	if len(witness) >= 2 {
		last := witness[len(witness)-1]
		if len(last) > 0 && last[0] == annexTag {
			return witness[:len(witness)-1]
		}
	}

	return witness
}

const annexTag = 0x50

func isP2PKHOutput(s []byte) bool {
	return len(s) == 25 && s[0] == script.OP_DUP && s[1] == script.OP_HASH160 && s[2] == 0x14 &&
		s[23] == script.OP_EQUALVERIFY && s[24] == script.OP_CHECKSIG
}

func isP2SHOutput(s []byte) bool {
	return len(s) == 23 && s[0] == script.OP_HASH160 && s[1] == 0x14 && s[22] == script.OP_EQUAL
}

func isP2WPKHOutput(s []byte) bool {
	return len(s) == 22 && s[0] == script.OP_0 && s[1] == 0x14
}

func isP2WSHOutput(s []byte) bool {
	return len(s) == 34 && s[0] == script.OP_0 && s[1] == 0x20
}

func isP2TROutput(s []byte) bool {
	return len(s) == 34 && s[0] == script.OP_1 && s[1] == 0x20
}

// isWitnessOutput returns true for version byte followed by a single 2..40 bytes direct push.
func isWitnessOutput(s []byte) bool {
	if len(s) < 4 || len(s) > 42 {
		return false
	}

	return script.IsSmallInt(s[0]) && int(s[1]) == len(s)-2
}

func isP2PKOutput(elements []script.Element) bool {
	return len(elements) == 2 && elements[0].IsData() && script.IsCanonicalPubKey(elements[0].Data) &&
		elements[1].Opcode == script.OP_CHECKSIG
}

func isP2MSOutput(elements []script.Element) bool {
	_, _, _, ok := parseP2MS(elements)

	return ok
}

func isEmbedOutput(elements []script.Element) bool {
	return len(elements) >= 1 && elements[0].Opcode == script.OP_RETURN && script.IsPushOnly(elements[1:])
}

// parseP2MS returns m, n and public keys of the multisig output elements.
func parseP2MS(elements []script.Element) (m int, n int, pubkeys [][]byte, ok bool) {
	if len(elements) < 4 || elements[len(elements)-1].Opcode != script.OP_CHECKMULTISIG {
		return 0, 0, nil, false
	}

	mOp, nOp := elements[0].Opcode, elements[len(elements)-2].Opcode
	if mOp == script.OP_0 || nOp == script.OP_0 || !script.IsSmallInt(mOp) || !script.IsSmallInt(nOp) {
		return 0, 0, nil, false
	}

	m, n = script.SmallIntValue(mOp), script.SmallIntValue(nOp)
	keys := elements[1 : len(elements)-2]
	if m > n || n != len(keys) {
		return 0, 0, nil, false
	}

	pubkeys = make([][]byte, 0, n)
	for _, key := range keys {
		if !key.IsData() || !script.IsCanonicalPubKey(key.Data) {
			return 0, 0, nil, false
		}

		pubkeys = append(pubkeys, key.Data)
	}

	return m, n, pubkeys, true
}

func p2pkhOutput(hash []byte) []byte {
	return script.Compile([]script.Element{
		script.Op(script.OP_DUP), script.Op(script.OP_HASH160), script.Data(hash),
		script.Op(script.OP_EQUALVERIFY), script.Op(script.OP_CHECKSIG),
	})
}

func p2shOutput(hash []byte) []byte {
	return script.Compile([]script.Element{script.Op(script.OP_HASH160), script.Data(hash), script.Op(script.OP_EQUAL)})
}

func p2wpkhOutput(hash []byte) []byte {
	return script.Compile([]script.Element{script.Op(script.OP_0), script.Data(hash)})
}

func p2wshOutput(hash []byte) []byte {
	return script.Compile([]script.Element{script.Op(script.OP_0), script.Data(hash)})
}

func p2trOutput(outputKey []byte) []byte {
	return script.Compile([]script.Element{script.Op(script.OP_1), script.Data(outputKey)})
}
