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

import (
	"bytes"
	"fmt"
)

// DenseTree is a compact, append-only Merkle tree representation. It
// uses O(log(size)) "dangling" frontier nodes to keep CurrentRoot()
// and AddLeafHash() cheap, and also retains every leaf hash appended
// so far, which lets it reconstruct the classic RFC 6962 audit and
// consistency proofs (see proof.go) for any historical tree size up
// to the current one.
//
// DenseTree is not safe for concurrent use; LogLookup publishes
// immutable snapshots of it rather than sharing a live value across
// goroutines.
type DenseTree struct {
	hasher Hasher

	// nodes holds the dangling left-hand frontier nodes; nodes[i] is
	// the hash of a subtree of size 1<<i, if included at the current
	// size.
	nodes [][]byte
	size  int64
	root  []byte

	leafHashes [][]byte
}

// NewDenseTree returns an empty DenseTree using hasher.
func NewDenseTree(hasher Hasher) *DenseTree {
	return &DenseTree{
		hasher: hasher,
		root:   hasher.EmptyRoot(),
		nodes:  make([][]byte, 0),
	}
}

// CurrentRoot returns the current root hash.
func (t *DenseTree) CurrentRoot() []byte {
	return t.root
}

// Size returns the number of leaves appended so far.
func (t *DenseTree) Size() int64 {
	return t.size
}

// LeafHash returns the hash of the leaf at the given 0-based index.
func (t *DenseTree) LeafHash(index int64) ([]byte, error) {
	if index < 0 || index >= t.size {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0, %d)", index, t.size)
	}
	return t.leafHashes[index], nil
}

func (t *DenseTree) recalculateRoot() {
	if t.size == 0 {
		return
	}
	var newRoot []byte
	first := true
	mask := int64(1)
	numBits := 0
	for s := t.size; s != 0; s >>= 1 {
		numBits++
	}
	for bit := 0; bit < numBits; bit++ {
		if t.size&mask != 0 {
			if first {
				newRoot = t.nodes[bit]
				first = false
			} else {
				newRoot = t.hasher.HashChildren(t.nodes[bit], newRoot)
			}
		}
		mask <<= 1
	}
	t.root = newRoot
}

// AddLeaf hashes data and appends it to the tree, returning the
// sequence number assigned to it (equal to Size()-1 after the call)
// and the leaf hash.
func (t *DenseTree) AddLeaf(data []byte) (int64, []byte) {
	h := t.hasher.HashLeaf(data)
	seq := t.AddLeafHash(h)
	return seq, h
}

// AddLeafHash appends the given leaf hash to the tree, returning the
// assigned sequence number. It updates the dangling frontier and also
// retains the leaf hash itself for later proof construction.
func (t *DenseTree) AddLeafHash(leafHash []byte) int64 {
	assignedSeq := t.size
	t.leafHashes = append(t.leafHashes, leafHash)

	defer func() {
		t.size++
		t.recalculateRoot()
	}()

	if t.size == 0 {
		t.nodes = append(t.nodes, leafHash)
		return assignedSeq
	}

	hash := leafHash
	bit := 0
	for mask := t.size; mask > 0; mask >>= 1 {
		if mask&1 == 0 {
			t.nodes[bit] = hash
			return assignedSeq
		}
		hash = t.hasher.HashChildren(t.nodes[bit], hash)
		t.nodes[bit] = nil
		if bit+1 >= len(t.nodes) {
			t.nodes = append(t.nodes, hash)
			return assignedSeq
		} else if mask&0x02 == 0 {
			t.nodes[bit+1] = hash
			return assignedSeq
		}
		bit++
	}
	panic(fmt.Sprintf("AddLeafHash: running hash not cleared, seq=%d", assignedSeq))
}

// RootAtSize returns the root hash of the tree as it was when it
// contained exactly size leaves. size must be <= t.Size().
func (t *DenseTree) RootAtSize(size int64) ([]byte, error) {
	if size < 0 || size > t.size {
		return nil, fmt.Errorf("merkle: size %d out of range [0, %d]", size, t.size)
	}
	if size == 0 {
		return t.hasher.EmptyRoot(), nil
	}
	return t.subtreeHash(0, size), nil
}

// subtreeHash returns MTH(leafHashes[lo:hi]), the classic RFC 6962
// Merkle Tree Hash of the leaf range [lo, hi).
func (t *DenseTree) subtreeHash(lo, hi int64) []byte {
	n := hi - lo
	if n == 1 {
		return t.leafHashes[lo]
	}
	k := largestPowerOfTwoLessThan(n)
	left := t.subtreeHash(lo, lo+k)
	right := t.subtreeHash(lo+k, hi)
	return t.hasher.HashChildren(left, right)
}

// largestPowerOfTwoLessThan returns the largest power of two strictly
// less than n, for n > 1. This is the "k" in RFC 6962's MTH/PATH
// recursion.
func largestPowerOfTwoLessThan(n int64) int64 {
	k := int64(1)
	for k*2 < n {
		k *= 2
	}
	return k
}

// Snapshot returns an independent, immutable copy of the tree as it
// stands at the time of the call. The returned tree shares its
// leaf-hash backing storage with t (capped so later appends to t
// cannot write through to the snapshot) but owns its own frontier
// slice, since AddLeafHash mutates frontier entries in place. Callers
// publish the result of Snapshot rather than sharing *t itself across
// goroutines, per the copy-on-publish rule for reads against a frozen
// STH.
func (t *DenseTree) Snapshot() *DenseTree {
	nodes := make([][]byte, len(t.nodes))
	copy(nodes, t.nodes)
	return &DenseTree{
		hasher:     t.hasher,
		nodes:      nodes,
		size:       t.size,
		root:       t.root,
		leafHashes: t.leafHashes[:t.size:t.size],
	}
}

func (t *DenseTree) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "DenseTree size=%d root=%x\n", t.size, t.root)
	return buf.String()
}
