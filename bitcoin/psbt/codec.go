// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/BoostyLabs/psbtkit/bitcoin/script"
	"github.com/BoostyLabs/psbtkit/bitcoin/taproot"
	"github.com/BoostyLabs/psbtkit/bitcoin/transaction"
	"github.com/BoostyLabs/psbtkit/internal/bytecodec"
)

// Magic defines psbt magic bytes: "psbt" followed by 0xff separator.
var Magic = []byte{0x70, 0x73, 0x62, 0x74, 0xff}

// Global key types.
const (
	GlobalUnsignedTx uint64 = 0x00
	GlobalXpub       uint64 = 0x01
	GlobalVersion    uint64 = 0xfb
)

// Input key types.
const (
	InNonWitnessUtxo     uint64 = 0x00
	InWitnessUtxo        uint64 = 0x01
	InPartialSig         uint64 = 0x02
	InSighashType        uint64 = 0x03
	InRedeemScript       uint64 = 0x04
	InWitnessScript      uint64 = 0x05
	InBip32Derivation    uint64 = 0x06
	InFinalScriptSig     uint64 = 0x07
	InFinalScriptWitness uint64 = 0x08
	InTapKeySig          uint64 = 0x13
	InTapScriptSig       uint64 = 0x14
	InTapLeafScript      uint64 = 0x15
	InTapBip32Derivation uint64 = 0x16
	InTapInternalKey     uint64 = 0x17
	InTapMerkleRoot      uint64 = 0x18
)

// Output key types.
const (
	OutRedeemScript       uint64 = 0x00
	OutWitnessScript      uint64 = 0x01
	OutBip32Derivation    uint64 = 0x02
	OutTapInternalKey     uint64 = 0x05
	OutTapTree            uint64 = 0x06
	OutTapBip32Derivation uint64 = 0x07
)

const (
	xpubLen        = 78
	xOnlyLen       = 32
	leafHashLen    = 32
	fingerprintLen = 4
)

// keyValue defines raw map entry.
type keyValue struct {
	keyType uint64
	keyData []byte
	key     []byte // raw key: key type and key data.
	value   []byte
}

// Parse parses binary psbt.
func Parse(b []byte, cfg Config) (*Psbt, error) {
	if !bytes.HasPrefix(b, Magic) {
		return nil, ErrInvalidMagic
	}

	r := bytecodec.NewReader(b[len(Magic):])

	globalMap, err := readMap(r)
	if err != nil {
		return nil, fmt.Errorf("global map: %w", err)
	}

	p := &Psbt{cfg: cfg.withDefaults()}
	if err = p.Global.decode(globalMap); err != nil {
		return nil, fmt.Errorf("global map: %w", err)
	}

	tx := p.Global.UnsignedTx
	p.Inputs = make([]Input, len(tx.Inputs))
	for i := range p.Inputs {
		kvs, err := readMap(r)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if err = p.Inputs[i].decode(kvs); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	p.Outputs = make([]Output, len(tx.Outputs))
	for i := range p.Outputs {
		kvs, err := readMap(r)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		if err = p.Outputs[i].decode(kvs); err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
	}

	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidFormat, r.Remaining())
	}

	log.Tracef("parsed psbt %s with %d inputs and %d outputs", tx.TxID(), len(p.Inputs), len(p.Outputs))

	return p, nil
}

// ParseBase64 parses base64 encoded psbt.
func ParseBase64(s string, cfg Config) (*Psbt, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Join(ErrInvalidFormat, err)
	}

	return Parse(b, cfg)
}

// ParseHex parses hex encoded psbt.
func ParseHex(s string, cfg Config) (*Psbt, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Join(ErrInvalidFormat, err)
	}

	return Parse(b, cfg)
}

// Serialize returns binary psbt.
// INFO: entries of every map are written sorted by key, so equal psbts serialize equally.
func (p *Psbt) Serialize() []byte {
	w := bytecodec.NewWriter(0)
	w.WriteSlice(Magic)

	writeMap(w, p.Global.encode())
	for i := range p.Inputs {
		writeMap(w, p.Inputs[i].encode())
	}
	for i := range p.Outputs {
		writeMap(w, p.Outputs[i].encode())
	}

	return w.Bytes()
}

// Base64 returns base64 encoded psbt.
func (p *Psbt) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Serialize())
}

// Hex returns hex encoded psbt.
func (p *Psbt) Hex() string {
	return hex.EncodeToString(p.Serialize())
}

func readMap(r *bytecodec.Reader) ([]keyValue, error) {
	var (
		kvs  []keyValue
		seen = make(map[string]struct{})
	)
	for {
		key, err := r.ReadVarSlice()
		if err != nil {
			return nil, errors.Join(ErrInvalidFormat, err)
		}
		if len(key) == 0 {
			return kvs, nil
		}

		value, err := r.ReadVarSlice()
		if err != nil {
			return nil, errors.Join(ErrInvalidFormat, err)
		}

		if _, ok := seen[string(key)]; ok {
			return nil, fmt.Errorf("%w: %x", ErrDuplicateKey, key)
		}
		seen[string(key)] = struct{}{}

		keyReader := bytecodec.NewReader(key)
		keyType, err := keyReader.ReadVarInt()
		if err != nil {
			return nil, errors.Join(ErrInvalidKey, err)
		}

		kvs = append(kvs, keyValue{keyType: keyType, keyData: key[keyReader.Offset():], key: key, value: value})
	}
}

func writeMap(w *bytecodec.Writer, kvs []keyValue) {
	slices.SortFunc(kvs, func(a, b keyValue) int { return bytes.Compare(a.key, b.key) })
	for _, kv := range kvs {
		w.WriteVarSlice(kv.key)
		w.WriteVarSlice(kv.value)
	}
	w.WriteUint8(0x00)
}

func newKey(keyType uint64, keyData ...[]byte) []byte {
	w := bytecodec.NewWriter(0)
	w.WriteVarInt(keyType)
	for _, data := range keyData {
		w.WriteSlice(data)
	}

	return w.Bytes()
}

func entry(keyType uint64, value []byte, keyData ...[]byte) keyValue {
	return keyValue{keyType: keyType, key: newKey(keyType, keyData...), value: value}
}

func invalidValue(kv keyValue, reason string, args ...any) error {
	return fmt.Errorf("%w: key type 0x%02x: %s", ErrInvalidValue, kv.keyType, fmt.Sprintf(reason, args...))
}

func requireEmptyKeyData(kv keyValue) error {
	if len(kv.keyData) != 0 {
		return fmt.Errorf("%w: key type 0x%02x must not have key data", ErrInvalidKey, kv.keyType)
	}

	return nil
}

func (g *Global) decode(kvs []keyValue) error {
	for _, kv := range kvs {
		switch kv.keyType {
		case GlobalUnsignedTx:
			if err := requireEmptyKeyData(kv); err != nil {
				return err
			}

			tx, err := transaction.DeserializeNoWitness(kv.value)
			if err != nil {
				return invalidValue(kv, err.Error())
			}
			if err = checkUnsignedTx(tx); err != nil {
				return err
			}

			g.UnsignedTx = tx
		case GlobalXpub:
			if len(kv.keyData) != xpubLen {
				return fmt.Errorf("%w: xpub of %d bytes", ErrInvalidKey, len(kv.keyData))
			}

			fingerprint, path, err := decodeOrigin(kv.value)
			if err != nil {
				return invalidValue(kv, err.Error())
			}

			g.Xpubs = sortedUpsert(g.Xpubs, Xpub{ExtendedKey: kv.keyData, MasterFingerprint: fingerprint, Path: path}, compareXpubs)
		case GlobalVersion:
			if err := requireEmptyKeyData(kv); err != nil {
				return err
			}
			if len(kv.value) != 4 {
				return invalidValue(kv, "expected 4 bytes")
			}

			g.Version = binary.LittleEndian.Uint32(kv.value)
			if g.Version != 0 {
				return fmt.Errorf("%w: %d", ErrUnsupportedVersion, g.Version)
			}
		default:
			g.Unknowns = sortedUpsert(g.Unknowns, Unknown{Key: kv.key, Value: kv.value}, compareUnknowns)
		}
	}

	if g.UnsignedTx == nil {
		return fmt.Errorf("%w: no unsigned transaction", ErrInvalidFormat)
	}

	return nil
}

func (g *Global) encode() []keyValue {
	kvs := []keyValue{entry(GlobalUnsignedTx, g.UnsignedTx.SerializeNoWitness())}
	for _, xpub := range g.Xpubs {
		kvs = append(kvs, entry(GlobalXpub, encodeOrigin(xpub.MasterFingerprint, xpub.Path), xpub.ExtendedKey))
	}
	if g.Version != 0 {
		value := make([]byte, 4)
		binary.LittleEndian.PutUint32(value, g.Version)
		kvs = append(kvs, entry(GlobalVersion, value))
	}

	return appendUnknowns(kvs, g.Unknowns)
}

func (in *Input) decode(kvs []keyValue) error {
	for _, kv := range kvs {
		if err := in.decodeEntry(kv); err != nil {
			return err
		}
	}

	return nil
}

func (in *Input) decodeEntry(kv keyValue) error {
	switch kv.keyType {
	case InNonWitnessUtxo:
		if err := requireEmptyKeyData(kv); err != nil {
			return err
		}

		tx, err := transaction.Deserialize(kv.value)
		if err != nil {
			return invalidValue(kv, err.Error())
		}

		in.NonWitnessUtxo = tx
	case InWitnessUtxo:
		if err := requireEmptyKeyData(kv); err != nil {
			return err
		}

		out, err := decodeTxOut(kv.value)
		if err != nil {
			return invalidValue(kv, err.Error())
		}

		in.WitnessUtxo = out
	case InPartialSig:
		if !script.IsCanonicalPubKey(kv.keyData) {
			return fmt.Errorf("%w: partial signature public key %x", ErrInvalidKey, kv.keyData)
		}
		if len(kv.value) == 0 {
			return invalidValue(kv, "empty signature")
		}

		in.PartialSigs = sortedUpsert(in.PartialSigs, PartialSig{PubKey: kv.keyData, Signature: kv.value}, comparePartialSigs)
	case InSighashType:
		if err := requireEmptyKeyData(kv); err != nil {
			return err
		}
		if len(kv.value) != 4 {
			return invalidValue(kv, "expected 4 bytes")
		}

		in.SighashType = fn.Some(binary.LittleEndian.Uint32(kv.value))
	case InRedeemScript:
		if err := requireEmptyKeyData(kv); err != nil {
			return err
		}

		in.RedeemScript = kv.value
	case InWitnessScript:
		if err := requireEmptyKeyData(kv); err != nil {
			return err
		}

		in.WitnessScript = kv.value
	case InBip32Derivation:
		derivation, err := decodeBip32(kv)
		if err != nil {
			return err
		}

		in.Bip32Derivations = sortedUpsert(in.Bip32Derivations, derivation, compareBip32)
	case InFinalScriptSig:
		if err := requireEmptyKeyData(kv); err != nil {
			return err
		}

		in.FinalScriptSig = kv.value
	case InFinalScriptWitness:
		if err := requireEmptyKeyData(kv); err != nil {
			return err
		}

		r := bytecodec.NewReader(kv.value)
		witness, err := r.ReadVector()
		if err != nil || r.Remaining() != 0 {
			return invalidValue(kv, "malformed witness")
		}

		in.FinalScriptWitness = witness
	case InTapKeySig:
		if err := requireEmptyKeyData(kv); err != nil {
			return err
		}
		if _, err := script.DecodeSchnorrSignature(kv.value); err != nil {
			return invalidValue(kv, err.Error())
		}

		in.TapKeySig = kv.value
	case InTapScriptSig:
		if len(kv.keyData) != xOnlyLen+leafHashLen {
			return fmt.Errorf("%w: tap script signature key of %d bytes", ErrInvalidKey, len(kv.keyData))
		}
		if _, err := script.DecodeSchnorrSignature(kv.value); err != nil {
			return invalidValue(kv, err.Error())
		}

		in.TapScriptSigs = sortedUpsert(in.TapScriptSigs, TapScriptSig{
			XOnlyPubKey: kv.keyData[:xOnlyLen],
			LeafHash:    kv.keyData[xOnlyLen:],
			Signature:   kv.value,
		}, compareTapScriptSigs)
	case InTapLeafScript:
		if _, err := taproot.ParseControlBlock(kv.keyData); err != nil {
			return errors.Join(ErrInvalidKey, err)
		}
		if len(kv.value) == 0 {
			return invalidValue(kv, "no leaf version")
		}

		in.TapLeafScripts = sortedUpsert(in.TapLeafScripts, TapLeafScript{
			ControlBlock: kv.keyData,
			Script:       kv.value[:len(kv.value)-1],
			LeafVersion:  kv.value[len(kv.value)-1],
		}, compareTapLeafScripts)
	case InTapBip32Derivation:
		derivation, err := decodeTapBip32(kv)
		if err != nil {
			return err
		}

		in.TapBip32Derivations = sortedUpsert(in.TapBip32Derivations, derivation, compareTapBip32)
	case InTapInternalKey:
		if err := requireEmptyKeyData(kv); err != nil {
			return err
		}
		if len(kv.value) != xOnlyLen {
			return invalidValue(kv, "expected 32 bytes")
		}

		in.TapInternalKey = kv.value
	case InTapMerkleRoot:
		if err := requireEmptyKeyData(kv); err != nil {
			return err
		}
		if len(kv.value) != 32 {
			return invalidValue(kv, "expected 32 bytes")
		}

		in.TapMerkleRoot = kv.value
	default:
		in.Unknowns = sortedUpsert(in.Unknowns, Unknown{Key: kv.key, Value: kv.value}, compareUnknowns)
	}

	return nil
}

func (in *Input) encode() []keyValue {
	var kvs []keyValue
	if in.NonWitnessUtxo != nil {
		kvs = append(kvs, entry(InNonWitnessUtxo, in.NonWitnessUtxo.Serialize()))
	}
	if in.WitnessUtxo != nil {
		kvs = append(kvs, entry(InWitnessUtxo, encodeTxOut(in.WitnessUtxo)))
	}
	for _, sig := range in.PartialSigs {
		kvs = append(kvs, entry(InPartialSig, sig.Signature, sig.PubKey))
	}
	in.SighashType.WhenSome(func(sighashType uint32) {
		value := make([]byte, 4)
		binary.LittleEndian.PutUint32(value, sighashType)
		kvs = append(kvs, entry(InSighashType, value))
	})
	if in.RedeemScript != nil {
		kvs = append(kvs, entry(InRedeemScript, in.RedeemScript))
	}
	if in.WitnessScript != nil {
		kvs = append(kvs, entry(InWitnessScript, in.WitnessScript))
	}
	for _, d := range in.Bip32Derivations {
		kvs = append(kvs, entry(InBip32Derivation, encodeOrigin(d.MasterFingerprint, d.Path), d.PubKey))
	}
	if in.FinalScriptSig != nil {
		kvs = append(kvs, entry(InFinalScriptSig, in.FinalScriptSig))
	}
	if in.FinalScriptWitness != nil {
		w := bytecodec.NewWriter(bytecodec.VectorSize(in.FinalScriptWitness))
		w.WriteVector(in.FinalScriptWitness)
		kvs = append(kvs, entry(InFinalScriptWitness, w.Bytes()))
	}
	if in.TapKeySig != nil {
		kvs = append(kvs, entry(InTapKeySig, in.TapKeySig))
	}
	for _, sig := range in.TapScriptSigs {
		kvs = append(kvs, entry(InTapScriptSig, sig.Signature, sig.XOnlyPubKey, sig.LeafHash))
	}
	for _, leaf := range in.TapLeafScripts {
		kvs = append(kvs, entry(InTapLeafScript, append(bytes.Clone(leaf.Script), leaf.LeafVersion), leaf.ControlBlock))
	}
	for _, d := range in.TapBip32Derivations {
		kvs = append(kvs, entry(InTapBip32Derivation, encodeTapOrigin(d), d.XOnlyPubKey))
	}
	if in.TapInternalKey != nil {
		kvs = append(kvs, entry(InTapInternalKey, in.TapInternalKey))
	}
	if in.TapMerkleRoot != nil {
		kvs = append(kvs, entry(InTapMerkleRoot, in.TapMerkleRoot))
	}

	return appendUnknowns(kvs, in.Unknowns)
}

func (out *Output) decode(kvs []keyValue) error {
	for _, kv := range kvs {
		switch kv.keyType {
		case OutRedeemScript:
			if err := requireEmptyKeyData(kv); err != nil {
				return err
			}

			out.RedeemScript = kv.value
		case OutWitnessScript:
			if err := requireEmptyKeyData(kv); err != nil {
				return err
			}

			out.WitnessScript = kv.value
		case OutBip32Derivation:
			derivation, err := decodeBip32(kv)
			if err != nil {
				return err
			}

			out.Bip32Derivations = sortedUpsert(out.Bip32Derivations, derivation, compareBip32)
		case OutTapInternalKey:
			if err := requireEmptyKeyData(kv); err != nil {
				return err
			}
			if len(kv.value) != xOnlyLen {
				return invalidValue(kv, "expected 32 bytes")
			}

			out.TapInternalKey = kv.value
		case OutTapTree:
			if err := requireEmptyKeyData(kv); err != nil {
				return err
			}

			tree, err := taproot.FromTapTreeList(kv.value)
			if err != nil {
				return invalidValue(kv, err.Error())
			}

			out.TapTree = tree
		case OutTapBip32Derivation:
			derivation, err := decodeTapBip32(kv)
			if err != nil {
				return err
			}

			out.TapBip32Derivations = sortedUpsert(out.TapBip32Derivations, derivation, compareTapBip32)
		default:
			out.Unknowns = sortedUpsert(out.Unknowns, Unknown{Key: kv.key, Value: kv.value}, compareUnknowns)
		}
	}

	return nil
}

func (out *Output) encode() []keyValue {
	var kvs []keyValue
	if out.RedeemScript != nil {
		kvs = append(kvs, entry(OutRedeemScript, out.RedeemScript))
	}
	if out.WitnessScript != nil {
		kvs = append(kvs, entry(OutWitnessScript, out.WitnessScript))
	}
	for _, d := range out.Bip32Derivations {
		kvs = append(kvs, entry(OutBip32Derivation, encodeOrigin(d.MasterFingerprint, d.Path), d.PubKey))
	}
	if out.TapInternalKey != nil {
		kvs = append(kvs, entry(OutTapInternalKey, out.TapInternalKey))
	}
	if out.TapTree != nil {
		// tree is validated when it is set.
		if value, err := taproot.ToTapTreeList(out.TapTree); err == nil {
			kvs = append(kvs, entry(OutTapTree, value))
		}
	}
	for _, d := range out.TapBip32Derivations {
		kvs = append(kvs, entry(OutTapBip32Derivation, encodeTapOrigin(d), d.XOnlyPubKey))
	}

	return appendUnknowns(kvs, out.Unknowns)
}

func appendUnknowns(kvs []keyValue, unknowns []Unknown) []keyValue {
	for _, u := range unknowns {
		kvs = append(kvs, keyValue{key: u.Key, value: u.Value})
	}

	return kvs
}

func decodeTxOut(b []byte) (*transaction.Output, error) {
	r := bytecodec.NewReader(b)
	value, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}

	pkScript, err := r.ReadVarSlice()
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Remaining())
	}

	return &transaction.Output{Value: value, Script: pkScript}, nil
}

func encodeTxOut(out *transaction.Output) []byte {
	w := bytecodec.NewWriter(8 + bytecodec.VarSliceSize(out.Script))
	w.WriteUint64(out.Value)
	w.WriteVarSlice(out.Script)

	return w.Bytes()
}

// decodeOrigin parses master key fingerprint followed by derivation path.
func decodeOrigin(b []byte) (uint32, []uint32, error) {
	if len(b) < fingerprintLen || len(b)%4 != 0 {
		return 0, nil, fmt.Errorf("key origin of %d bytes", len(b))
	}

	fingerprint := binary.LittleEndian.Uint32(b)
	path := make([]uint32, 0, len(b)/4-1)
	for offset := fingerprintLen; offset < len(b); offset += 4 {
		path = append(path, binary.LittleEndian.Uint32(b[offset:]))
	}

	return fingerprint, path, nil
}

func encodeOrigin(fingerprint uint32, path []uint32) []byte {
	b := make([]byte, fingerprintLen+4*len(path))
	binary.LittleEndian.PutUint32(b, fingerprint)
	for i, index := range path {
		binary.LittleEndian.PutUint32(b[fingerprintLen+4*i:], index)
	}

	return b
}

func decodeBip32(kv keyValue) (Bip32Derivation, error) {
	if !script.IsCanonicalPubKey(kv.keyData) {
		return Bip32Derivation{}, fmt.Errorf("%w: derivation public key %x", ErrInvalidKey, kv.keyData)
	}

	fingerprint, path, err := decodeOrigin(kv.value)
	if err != nil {
		return Bip32Derivation{}, invalidValue(kv, err.Error())
	}

	return Bip32Derivation{PubKey: kv.keyData, MasterFingerprint: fingerprint, Path: path}, nil
}

func decodeTapBip32(kv keyValue) (TapBip32Derivation, error) {
	if len(kv.keyData) != xOnlyLen {
		return TapBip32Derivation{}, fmt.Errorf("%w: x-only public key of %d bytes", ErrInvalidKey, len(kv.keyData))
	}

	r := bytecodec.NewReader(kv.value)
	count, err := r.ReadVarInt()
	if err != nil {
		return TapBip32Derivation{}, invalidValue(kv, err.Error())
	}
	if count > uint64(r.Remaining()/leafHashLen) {
		return TapBip32Derivation{}, invalidValue(kv, "%d leaf hashes do not fit", count)
	}

	leafHashes := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		leafHash, err := r.ReadSlice(leafHashLen)
		if err != nil {
			return TapBip32Derivation{}, invalidValue(kv, err.Error())
		}

		leafHashes = append(leafHashes, leafHash)
	}

	origin, _ := r.ReadSlice(r.Remaining())
	fingerprint, path, err := decodeOrigin(origin)
	if err != nil {
		return TapBip32Derivation{}, invalidValue(kv, err.Error())
	}

	return TapBip32Derivation{XOnlyPubKey: kv.keyData, LeafHashes: leafHashes, MasterFingerprint: fingerprint, Path: path}, nil
}

func encodeTapOrigin(d TapBip32Derivation) []byte {
	w := bytecodec.NewWriter(0)
	w.WriteVarInt(uint64(len(d.LeafHashes)))
	for _, leafHash := range d.LeafHashes {
		w.WriteSlice(leafHash)
	}
	w.WriteSlice(encodeOrigin(d.MasterFingerprint, d.Path))

	return w.Bytes()
}
