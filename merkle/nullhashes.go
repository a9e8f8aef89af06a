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

// NullHashes is the cached vector of null-subtree digests a sparse
// tree uses to represent subtrees with no leaves beneath them,
// without materializing them. It is computed once, at construction,
// and stored as a plain value on whichever tree holds it -- never as
// a package-level singleton, per the no-global-mutable-state design
// note.
//
// hashes[d], for d in [0, bits), is the null hash of the subtree
// addressed by a depth-(d+1)-bit prefix (i.e. depth d in the
// SparseTree's tree-level convention, where a node's own prefix
// length is depth+1 bits). hashes[bits-1] == hasher.HashLeaf(nil) (a
// single empty leaf); hashes[d] == hasher.HashChildren(hashes[d+1],
// hashes[d+1]).
type NullHashes struct {
	hashes [][]byte
	bits   int
}

// NewNullHashes builds the null-hash vector for a tree of the given
// height in bits (typically hasher.Size()*8).
func NewNullHashes(hasher Hasher, bits int) NullHashes {
	r := make([][]byte, bits)
	r[bits-1] = hasher.HashLeaf(nil)
	for d := bits - 2; d >= 0; d-- {
		r[d] = hasher.HashChildren(r[d+1], r[d+1])
	}
	return NullHashes{hashes: r, bits: bits}
}

// At returns the null hash for the given tree level, where level 0
// spans half the tree (a direct child of the root) and level bits-1
// spans a single leaf.
func (n NullHashes) At(depth int) []byte {
	return n.hashes[depth]
}

// Bits returns the tree height in bits this vector was built for.
func (n NullHashes) Bits() int {
	return n.bits
}
