// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package taproot

import (
	"errors"
	"fmt"

	"github.com/BoostyLabs/psbtkit/internal/bytecodec"
)

// ErrInvalidTapTree defines BIP371 tap tree that does not describe a complete binary tree.
var ErrInvalidTapTree = errors.New("invalid tap tree")

// ToTapTreeList returns BIP371 PSBT_OUT_TAP_TREE value: depth, leaf version and script of every leaf
// in depth first order.
func ToTapTreeList(tree Tree) ([]byte, error) {
	if _, err := ToHashTree(tree); err != nil {
		return nil, err
	}

	leaves := Leaves(tree)
	w := bytecodec.NewWriter(0)
	for _, leaf := range leaves {
		w.WriteUint8(uint8(leaf.Depth))
		w.WriteUint8(leaf.Leaf.LeafVersion())
		w.WriteVarSlice(leaf.Leaf.Script)
	}

	return w.Bytes(), nil
}

// FromTapTreeList rebuilds script tree from BIP371 PSBT_OUT_TAP_TREE value.
func FromTapTreeList(b []byte) (Tree, error) {
	r := bytecodec.NewReader(b)

	// stack of partially built subtrees, each remembers its depth.
	type node struct {
		tree  Tree
		depth int
	}
	var stack []node

	for r.Remaining() > 0 {
		depth, err := r.ReadUint8()
		if err != nil {
			return nil, errors.Join(ErrInvalidTapTree, err)
		}

		version, err := r.ReadUint8()
		if err != nil {
			return nil, errors.Join(ErrInvalidTapTree, err)
		}

		script, err := r.ReadVarSlice()
		if err != nil {
			return nil, errors.Join(ErrInvalidTapTree, err)
		}

		if int(depth) > MaxDepth {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTapTree, ErrTreeTooDeep)
		}
		if version&^LeafVersionMask != 0 {
			return nil, fmt.Errorf("%w: %w: 0x%02x", ErrInvalidTapTree, ErrInvalidLeafVersion, version)
		}

		stack = append(stack, node{tree: Leaf{Script: script, Version: version}, depth: int(depth)})

		// merge siblings of equal depth.
		for len(stack) >= 2 {
			right, left := stack[len(stack)-1], stack[len(stack)-2]
			if left.depth != right.depth {
				break
			}
			if left.depth == 0 {
				return nil, fmt.Errorf("%w: more than one root", ErrInvalidTapTree)
			}

			stack = append(stack[:len(stack)-2], node{
				tree:  Branch{Left: left.tree, Right: right.tree},
				depth: left.depth - 1,
			})
		}
	}

	if len(stack) != 1 || stack[0].depth != 0 {
		return nil, fmt.Errorf("%w: incomplete tree", ErrInvalidTapTree)
	}

	return stack[0].tree, nil
}
