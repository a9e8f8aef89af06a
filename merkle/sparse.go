// Copyright 2016 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merkle

import "fmt"

// SparsePath is a fixed-width bit path addressing a leaf of the
// sparse tree, most-significant-bit first.
type SparsePath []byte

// NthMSB returns the n-th bit counting from the most significant bit
// of the path (bit 0 is the top-most bit).
func (p SparsePath) NthMSB(n int) bool {
	return p[n/8]&(0x80>>uint(n%8)) != 0
}

func (p SparsePath) withNthMSB(n int, set bool) SparsePath {
	q := make(SparsePath, len(p))
	copy(q, p)
	mask := byte(0x80 >> uint(n%8))
	if set {
		q[n/8] |= mask
	} else {
		q[n/8] &^= mask
	}
	return q
}

type sparseNodeType int

const (
	sparseInternal sparseNodeType = iota
	sparseLeaf
)

// sparseNode is a node of the sparse tree: either an INTERNAL node
// (possibly with a dirty/cleared cached hash) or a LEAF carrying the
// full path that landed there and its hash. This is a direct
// translation of the original's TreeNode union (path_ optional,
// hash_ string, type_ enum).
type sparseNode struct {
	typ  sparseNodeType
	hash []byte // cached for INTERNAL when non-nil; always set for LEAF
	path SparsePath
}

// SparseTree is a height-W*8 authenticated map, lazily materializing
// only the non-null subtrees.
//
// SparseTree is not safe for concurrent use: it is owned by a single
// integrator task.
type SparseTree struct {
	hasher     Hasher
	nullHashes NullHashes
	bits       int // W*8

	// tree holds one map per level, from level 0 (a direct child of
	// the root) to bits-1 (a single leaf). tree[d] maps the first d+1
	// bits of some path to the node at that position.
	tree []map[string]*sparseNode

	root []byte // cached CurrentRoot; nil means dirty
}

// NewSparseTree returns an empty sparse tree over the given hasher.
// The tree has height hasher.Size()*8.
func NewSparseTree(hasher Hasher) *SparseTree {
	bits := hasher.Size() * 8
	return &SparseTree{
		hasher:     hasher,
		nullHashes: NewNullHashes(hasher, bits),
		bits:       bits,
	}
}

func (t *SparseTree) ensureLevel(depth int) {
	for len(t.tree) < depth+1 {
		t.tree = append(t.tree, make(map[string]*sparseNode))
	}
}

// SetLeaf inserts or updates the leaf at path with the given data,
// following a four-case algorithm: insert, mark-dirty-and-descend,
// replace, or collide-and-push-down.
func (t *SparseTree) SetLeaf(path SparsePath, data []byte) {
	if len(path) != t.hasher.Size() {
		panic(fmt.Sprintf("merkle: SetLeaf path length %d != digest size %d", len(path), t.hasher.Size()))
	}
	t.root = nil
	leafHash := t.hasher.HashLeaf(data)

	// Tree level `depth` is keyed by the first depth+1 bits of a path.
	for depth := 0; depth < t.bits; depth++ {
		t.ensureLevel(depth)
		key := maskedPrefixKey(path, depth+1)

		node, ok := t.tree[depth][key]
		switch {
		case !ok:
			t.tree[depth][key] = &sparseNode{typ: sparseLeaf, hash: leafHash, path: clonePath(path)}
			return
		case node.typ == sparseInternal:
			node.hash = nil // mark dirty
			continue
		case pathsEqual(node.path, path):
			node.hash = leafHash
			return
		default:
			if depth >= t.bits-1 {
				panic(fmt.Sprintf("merkle: SetLeaf collision unresolved at max depth for path %x", []byte(path)))
			}
			t.ensureLevel(depth + 1)
			childKey := maskedPrefixKey(node.path, depth+2)
			t.tree[depth+1][childKey] = &sparseNode{typ: sparseLeaf, hash: node.hash, path: node.path}
			node.typ = sparseInternal
			node.hash = nil
			node.path = nil
		}
	}
	panic(fmt.Sprintf("merkle: SetLeaf failed to resolve path %x", []byte(path)))
}

func clonePath(p SparsePath) SparsePath {
	q := make(SparsePath, len(p))
	copy(q, p)
	return q
}

func pathsEqual(a, b SparsePath) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// maskedPrefixKey returns a map key for the first `depth` bits of
// path, with trailing bits in the last partial byte zeroed so that
// two paths sharing the same depth-bit prefix always produce the same
// key regardless of what follows.
func maskedPrefixKey(path SparsePath, depth int) string {
	nbytes := (depth + 7) / 8
	buf := make([]byte, nbytes)
	copy(buf, path[:nbytes])
	if depth%8 != 0 {
		var mask byte = 0xFF << uint(8-depth%8)
		buf[nbytes-1] &= mask
	}
	return string(buf)
}

// SubtreeHash computes the digest of the subtree rooted at tree level
// `depth` (whose path prefix is the first depth+1 bits of prefix),
// memoizing the result on INTERNAL nodes.
func (t *SparseTree) SubtreeHash(depth int, prefix SparsePath) []byte {
	if depth >= len(t.tree) {
		return t.nullHashes.At(depth)
	}
	key := maskedPrefixKey(prefix, depth+1)
	node, ok := t.tree[depth][key]
	if !ok {
		return t.nullHashes.At(depth)
	}
	switch node.typ {
	case sparseInternal:
		if node.hash != nil {
			return node.hash
		}
		left := t.SubtreeHash(depth+1, prefix.withNthMSB(depth+1, false))
		right := t.SubtreeHash(depth+1, prefix.withNthMSB(depth+1, true))
		node.hash = t.hasher.HashChildren(left, right)
		return node.hash
	default: // sparseLeaf
		h := node.hash
		for i := t.bits - 1; i > depth; i-- {
			if node.path.NthMSB(i) {
				h = t.hasher.HashChildren(t.nullHashes.At(i), h)
			} else {
				h = t.hasher.HashChildren(h, t.nullHashes.At(i))
			}
		}
		return h
	}
}

// CurrentRoot returns HashChildren(SubtreeHash(0,0-prefix),
// SubtreeHash(0,1-prefix)), cached until the next SetLeaf.
func (t *SparseTree) CurrentRoot() []byte {
	if t.root == nil {
		zero := make(SparsePath, t.hasher.Size())
		one := zero.withNthMSB(0, true)
		t.root = t.hasher.HashChildren(t.SubtreeHash(0, zero), t.SubtreeHash(0, one))
	}
	return t.root
}

// InclusionProof returns the sibling digest at each of the t.bits
// levels for path. proof[d] is the sibling at tree level d, so
// proof[0] is the root's other child and proof[t.bits-1] is the
// leaf's sibling; VerifyInclusionProof folds it from the leaf end.
func (t *SparseTree) InclusionProof(path SparsePath) [][]byte {
	proof := make([][]byte, t.bits)
	for depth := 0; depth < t.bits; depth++ {
		sibling := path.withNthMSB(depth, !path.NthMSB(depth))
		// sibling's bits after depth don't matter for SubtreeHash,
		// which only reads the first depth+1 bits via maskedPrefixKey.
		proof[depth] = t.SubtreeHash(depth, sibling)
	}
	return proof
}

// VerifyInclusionProof recomputes the root implied by leafData, path
// and proof, and compares it to root.
func VerifyInclusionProof(hasher Hasher, path SparsePath, leafData []byte, proof [][]byte, root []byte) error {
	h := hasher.HashLeaf(leafData)
	bits := hasher.Size() * 8
	if len(proof) != bits {
		return fmt.Errorf("merkle: inclusion proof has %d entries, want %d", len(proof), bits)
	}
	for i := bits - 1; i >= 0; i-- {
		if path.NthMSB(i) {
			h = hasher.HashChildren(proof[i], h)
		} else {
			h = hasher.HashChildren(h, proof[i])
		}
	}
	if len(h) != len(root) {
		return fmt.Errorf("merkle: inclusion proof root length mismatch")
	}
	for i := range h {
		if h[i] != root[i] {
			return fmt.Errorf("merkle: inclusion proof does not verify")
		}
	}
	return nil
}
