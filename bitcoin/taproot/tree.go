// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package taproot

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/BoostyLabs/psbtkit/bitcoin/crypto"
	"github.com/BoostyLabs/psbtkit/internal/bytecodec"
)

const (
	// LeafVersionTapScript defines BIP342 leaf version.
	LeafVersionTapScript byte = 0xc0
	// LeafVersionMask defines bits of the control block first byte that carry leaf version.
	LeafVersionMask byte = 0xfe
	// MaxDepth defines maximum depth of the script tree.
	MaxDepth = 128
)

var (
	// ErrEmptyTree defines tree or subtree that is nil.
	ErrEmptyTree = errors.New("empty script tree")
	// ErrTreeTooDeep defines tree deeper than MaxDepth.
	ErrTreeTooDeep = errors.New("script tree is too deep")
	// ErrInvalidLeafVersion defines leaf version with the lowest bit set.
	ErrInvalidLeafVersion = errors.New("invalid leaf version")
)

// Tree defines script tree: either Leaf or Branch.
type Tree interface {
	isTree()
}

// Leaf defines script tree leaf.
// INFO: zero Version stands for LeafVersionTapScript.
type Leaf struct {
	Script  []byte
	Version byte
}

// Branch defines script tree node with two subtrees.
type Branch struct {
	Left  Tree
	Right Tree
}

func (Leaf) isTree()   {}
func (Branch) isTree() {}

// NewLeaf returns tapscript leaf.
func NewLeaf(script []byte) Leaf {
	return Leaf{Script: script, Version: LeafVersionTapScript}
}

// LeafVersion returns leaf version with default applied.
func (l Leaf) LeafVersion() byte {
	if l.Version == 0 {
		return LeafVersionTapScript
	}

	return l.Version
}

// Hash returns leaf hash.
func (l Leaf) Hash() []byte {
	return TapLeafHash(l)
}

// HashTree defines script tree with hashes of every node.
type HashTree struct {
	Hash  []byte
	Leaf  *Leaf // set for leaves only.
	Left  *HashTree
	Right *HashTree
}

// IsLeaf returns true for leaf node.
func (h *HashTree) IsLeaf() bool {
	return h.Leaf != nil
}

// ToHashTree computes hashes of every node of the tree.
func ToHashTree(tree Tree) (*HashTree, error) {
	return toHashTree(tree, 0)
}

func toHashTree(tree Tree, depth int) (*HashTree, error) {
	if depth > MaxDepth {
		return nil, ErrTreeTooDeep
	}

	switch node := tree.(type) {
	case Leaf:
		if node.LeafVersion()&^LeafVersionMask != 0 {
			return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidLeafVersion, node.Version)
		}

		return &HashTree{Hash: TapLeafHash(node), Leaf: &node}, nil
	case *Leaf:
		if node == nil {
			return nil, ErrEmptyTree
		}

		return toHashTree(*node, depth)
	case Branch:
		left, err := toHashTree(node.Left, depth+1)
		if err != nil {
			return nil, err
		}

		right, err := toHashTree(node.Right, depth+1)
		if err != nil {
			return nil, err
		}

		return &HashTree{Hash: TapBranchHash(left.Hash, right.Hash), Left: left, Right: right}, nil
	case *Branch:
		if node == nil {
			return nil, ErrEmptyTree
		}

		return toHashTree(*node, depth)
	default:
		return nil, ErrEmptyTree
	}
}

// FindScriptPath returns sibling hashes from the leaf with leafHash up to the root.
// Returns empty path for the single leaf tree and None if there is no such leaf.
func FindScriptPath(node *HashTree, leafHash []byte) fn.Option[[][]byte] {
	if node == nil {
		return fn.None[[][]byte]()
	}

	if node.IsLeaf() {
		if bytes.Equal(node.Hash, leafHash) {
			return fn.Some([][]byte{})
		}

		return fn.None[[][]byte]()
	}

	if path := FindScriptPath(node.Left, leafHash); path.IsSome() {
		return fn.Some(append(path.UnwrapOr(nil), node.Right.Hash))
	}

	if path := FindScriptPath(node.Right, leafHash); path.IsSome() {
		return fn.Some(append(path.UnwrapOr(nil), node.Left.Hash))
	}

	return fn.None[[][]byte]()
}

// Leaves returns leaves of the tree in depth first order with their depth.
func Leaves(tree Tree) []LeafInfo {
	var leaves []LeafInfo
	collectLeaves(tree, 0, &leaves)

	return leaves
}

// LeafInfo defines leaf with its depth in the tree.
type LeafInfo struct {
	Leaf  Leaf
	Depth int
}

func collectLeaves(tree Tree, depth int, leaves *[]LeafInfo) {
	switch node := tree.(type) {
	case Leaf:
		*leaves = append(*leaves, LeafInfo{Leaf: node, Depth: depth})
	case *Leaf:
		if node != nil {
			*leaves = append(*leaves, LeafInfo{Leaf: *node, Depth: depth})
		}
	case Branch:
		collectLeaves(node.Left, depth+1, leaves)
		collectLeaves(node.Right, depth+1, leaves)
	case *Branch:
		if node != nil {
			collectLeaves(*node, depth, leaves)
		}
	}
}

// TapLeafHash returns tagged hash of the leaf: TapLeaf(version || compact size(script) || script).
func TapLeafHash(leaf Leaf) []byte {
	w := bytecodec.NewWriter(1 + bytecodec.VarSliceSize(leaf.Script))
	w.WriteUint8(leaf.LeafVersion())
	w.WriteVarSlice(leaf.Script)

	return crypto.Default.TaggedHash(crypto.TagTapLeaf, w.Bytes())
}

// TapBranchHash returns tagged hash of the lexicographically sorted pair of child hashes.
func TapBranchHash(a, b []byte) []byte {
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}

	return crypto.Default.TaggedHash(crypto.TagTapBranch, a, b)
}

// RootHashFromPath returns merkle root computed from leaf hash and the path of the control block.
func RootHashFromPath(controlBlock []byte, leafHash []byte) ([]byte, error) {
	cb, err := ParseControlBlock(controlBlock)
	if err != nil {
		return nil, err
	}

	return cb.RootHash(leafHash), nil
}
