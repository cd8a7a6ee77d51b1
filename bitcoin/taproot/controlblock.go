// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package taproot

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	// controlBlockBaseSize defines control block size without path: version byte and internal key.
	controlBlockBaseSize = 33
	// nodeSize defines size of the path node.
	nodeSize = 32
)

var (
	// ErrInvalidControlBlock defines control block with invalid size.
	ErrInvalidControlBlock = errors.New("invalid control block")
	// ErrLeafNotFound defines leaf that is not a part of the tree.
	ErrLeafNotFound = errors.New("leaf not found in script tree")
)

// ControlBlock defines BIP341 control block: proof of the leaf inclusion into the output key.
type ControlBlock struct {
	LeafVersion     byte
	OutputKeyParity byte
	InternalKey     []byte // 32 bytes x-only.
	Path            [][]byte
}

// ParseControlBlock parses serialized control block.
func ParseControlBlock(b []byte) (*ControlBlock, error) {
	switch {
	case len(b) < controlBlockBaseSize:
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidControlBlock, len(b))
	case (len(b)-controlBlockBaseSize)%nodeSize != 0:
		return nil, fmt.Errorf("%w: path of %d bytes", ErrInvalidControlBlock, len(b)-controlBlockBaseSize)
	case (len(b)-controlBlockBaseSize)/nodeSize > MaxDepth:
		return nil, fmt.Errorf("%w: %w", ErrInvalidControlBlock, ErrTreeTooDeep)
	}

	cb := &ControlBlock{
		LeafVersion:     b[0] & LeafVersionMask,
		OutputKeyParity: b[0] & 0x01,
		InternalKey:     bytes.Clone(b[1:controlBlockBaseSize]),
		Path:            make([][]byte, 0, (len(b)-controlBlockBaseSize)/nodeSize),
	}
	for offset := controlBlockBaseSize; offset < len(b); offset += nodeSize {
		cb.Path = append(cb.Path, bytes.Clone(b[offset:offset+nodeSize]))
	}

	return cb, nil
}

// NewControlBlock builds control block for the leaf of the hash tree.
func NewControlBlock(tree *HashTree, leaf Leaf, internalKey []byte, outputKeyParity byte) (*ControlBlock, error) {
	if len(internalKey) != 32 {
		return nil, fmt.Errorf("%w: internal key of %d bytes", ErrInvalidControlBlock, len(internalKey))
	}

	path, err := FindScriptPath(tree, TapLeafHash(leaf)).UnwrapOrErr(ErrLeafNotFound)
	if err != nil {
		return nil, err
	}

	return &ControlBlock{
		LeafVersion:     leaf.LeafVersion(),
		OutputKeyParity: outputKeyParity & 0x01,
		InternalKey:     bytes.Clone(internalKey),
		Path:            path,
	}, nil
}

// Bytes returns serialized control block.
func (cb *ControlBlock) Bytes() []byte {
	b := make([]byte, 0, controlBlockBaseSize+nodeSize*len(cb.Path))
	b = append(b, cb.LeafVersion&LeafVersionMask|cb.OutputKeyParity&0x01)
	b = append(b, cb.InternalKey...)
	for _, node := range cb.Path {
		b = append(b, node...)
	}

	return b
}

// RootHash returns merkle root reconstructed from the leaf hash and the path.
func (cb *ControlBlock) RootHash(leafHash []byte) []byte {
	k := leafHash
	for _, node := range cb.Path {
		k = TapBranchHash(k, node)
	}

	return k
}
