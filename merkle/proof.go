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

// AuditProof is the classic RFC 6962 §2.1.1 audit path: the sequence
// of sibling hashes from a leaf up to the root of a tree of the given
// size.
type AuditProof struct {
	LeafIndex int64
	TreeSize  int64
	Path      [][]byte
}

// AuditProofByIndex builds the audit proof for the leaf at leafIndex,
// against the tree as it stood at treeSize leaves. treeSize must be
// <= t.Size(); leafIndex must be < treeSize.
func (t *DenseTree) AuditProofByIndex(leafIndex, treeSize int64) (*AuditProof, error) {
	if treeSize < 1 || treeSize > t.size {
		return nil, fmt.Errorf("merkle: tree size %d out of range [1, %d]", treeSize, t.size)
	}
	if leafIndex < 0 || leafIndex >= treeSize {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0, %d)", leafIndex, treeSize)
	}
	path := t.path(leafIndex, 0, treeSize)
	return &AuditProof{LeafIndex: leafIndex, TreeSize: treeSize, Path: path}, nil
}

// AuditProofByHash locates the leaf whose hash equals leafHash within
// the first treeSize leaves and returns its audit proof. Returns an
// error if no such leaf exists.
func (t *DenseTree) AuditProofByHash(leafHash []byte, treeSize int64) (*AuditProof, error) {
	if treeSize < 0 || treeSize > t.size {
		return nil, fmt.Errorf("merkle: tree size %d out of range [0, %d]", treeSize, t.size)
	}
	for i := int64(0); i < treeSize; i++ {
		if bytes.Equal(t.leafHashes[i], leafHash) {
			return t.AuditProofByIndex(i, treeSize)
		}
	}
	return nil, errNotFound
}

var errNotFound = fmt.Errorf("merkle: leaf hash not found")

// IsNotFound reports whether err is the "no such leaf" error
// AuditProofByHash returns, so callers can map it to the NotFound
// error kind without string matching.
func IsNotFound(err error) bool { return err == errNotFound }

// path implements RFC 6962's recursive PATH(m, D[lo:lo+n]) over the
// leaf range [lo, lo+n), returning the sibling hashes for leaf m
// (0-based within that range).
func (t *DenseTree) path(m int64, lo, n int64) [][]byte {
	if n == 1 {
		return nil
	}
	k := largestPowerOfTwoLessThan(n)
	if m < k {
		sibling := t.subtreeHash(lo+k, lo+n)
		return append(t.path(m, lo, k), sibling)
	}
	sibling := t.subtreeHash(lo, lo+k)
	return append(t.path(m-k, lo+k, n-k), sibling)
}

// VerifyAuditProof recomputes the root implied by leafHash, proof and
// checks it equals root. This is the client-side (and test-side)
// counterpart to AuditProofByIndex/AuditProofByHash.
func VerifyAuditProof(hasher Hasher, proof *AuditProof, leafHash, root []byte) error {
	computed, err := rootFromAuditPath(hasher, proof.LeafIndex, proof.TreeSize, leafHash, proof.Path)
	if err != nil {
		return err
	}
	if !bytes.Equal(computed, root) {
		return fmt.Errorf("merkle: audit proof does not verify: got root %x, want %x", computed, root)
	}
	return nil
}

func rootFromAuditPath(hasher Hasher, m, n int64, leafHash []byte, path [][]byte) ([]byte, error) {
	hash, rest, err := rootFromPath(hasher, m, 0, n, leafHash, path)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("merkle: audit proof has %d unconsumed elements", len(rest))
	}
	return hash, nil
}

func rootFromPath(hasher Hasher, m, lo, n int64, leafHash []byte, path [][]byte) ([]byte, [][]byte, error) {
	if n == 1 {
		return leafHash, path, nil
	}
	k := largestPowerOfTwoLessThan(n)
	if len(path) == 0 {
		return nil, nil, fmt.Errorf("merkle: audit proof too short")
	}
	if m < k {
		sub, rest, err := rootFromPath(hasher, m, lo, k, leafHash, path[:len(path)-1])
		if err != nil {
			return nil, nil, err
		}
		return hasher.HashChildren(sub, path[len(path)-1]), rest, nil
	}
	sub, rest, err := rootFromPath(hasher, m-k, lo+k, n-k, leafHash, path[:len(path)-1])
	if err != nil {
		return nil, nil, err
	}
	return hasher.HashChildren(path[len(path)-1], sub), rest, nil
}

// ConsistencyProof builds the RFC 6962 §2.1.2 consistency proof
// between tree sizes first and second, where first <= second <=
// t.Size(). The proof is empty iff first == 0 or first == second.
func (t *DenseTree) ConsistencyProof(first, second int64) ([][]byte, error) {
	if first < 0 || first > second || second > t.size {
		return nil, fmt.Errorf("merkle: invalid consistency range [%d, %d] against size %d", first, second, t.size)
	}
	if first == 0 || first == second {
		return nil, nil
	}
	return t.subProof(first, 0, second, true), nil
}

// subProof implements RFC 6962's recursive SUBPROOF(m, D[lo:lo+n], b)
// where b records whether the (m, n) subtree is a complete subtree of
// the full range starting at lo.
func (t *DenseTree) subProof(m, lo, n int64, b bool) [][]byte {
	if m == n {
		if b {
			return nil
		}
		return [][]byte{t.subtreeHash(lo, lo+n)}
	}
	k := largestPowerOfTwoLessThan(n)
	if m <= k {
		return append(t.subProof(m, lo, k, b), t.subtreeHash(lo+k, lo+n))
	}
	sub := t.subProof(m-k, lo+k, n-k, false)
	return append(sub, t.subtreeHash(lo, lo+k))
}

// VerifyConsistencyProof checks that proof demonstrates tree root2
// (at size second) is an append-only extension of root1 (at size
// first). The verification walks the same recursion subProof used to
// construct the proof, consuming elements from the front of proof in
// the order subProof appended them.
func VerifyConsistencyProof(hasher Hasher, first, second int64, root1, root2 []byte, proof [][]byte) error {
	if first == second {
		if !bytes.Equal(root1, root2) {
			return fmt.Errorf("merkle: roots differ at equal size %d", first)
		}
		return nil
	}
	if first == 0 {
		return nil
	}
	if first > second {
		return fmt.Errorf("merkle: first %d > second %d", first, second)
	}
	q := proof
	gotFirst, gotSecond, rest, err := verifySubProof(hasher, first, second, true, root1, q)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("merkle: consistency proof has %d unconsumed elements", len(rest))
	}
	if !bytes.Equal(gotFirst, root1) {
		return fmt.Errorf("merkle: consistency proof does not verify first root: got %x, want %x", gotFirst, root1)
	}
	if !bytes.Equal(gotSecond, root2) {
		return fmt.Errorf("merkle: consistency proof does not verify second root: got %x, want %x", gotSecond, root2)
	}
	return nil
}

// verifySubProof mirrors subProof's recursion, returning the hash of
// the m-sized prefix and the hash of the full n-sized range it
// reconstructs, plus the unconsumed tail of proof.
func verifySubProof(hasher Hasher, m, n int64, b bool, root1 []byte, proof [][]byte) (hm, hn []byte, rest [][]byte, err error) {
	if m == n {
		if b {
			return root1, root1, proof, nil
		}
		if len(proof) == 0 {
			return nil, nil, nil, fmt.Errorf("merkle: consistency proof too short")
		}
		return proof[0], proof[0], proof[1:], nil
	}
	k := largestPowerOfTwoLessThan(n)
	if m <= k {
		hmLeft, hkLeft, rest, err := verifySubProof(hasher, m, k, b, root1, proof)
		if err != nil {
			return nil, nil, nil, err
		}
		if len(rest) == 0 {
			return nil, nil, nil, fmt.Errorf("merkle: consistency proof too short")
		}
		right := rest[0]
		rest = rest[1:]
		return hmLeft, hasher.HashChildren(hkLeft, right), rest, nil
	}
	hmRight, hnRight, rest, err := verifySubProof(hasher, m-k, n-k, false, root1, proof)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(rest) == 0 {
		return nil, nil, nil, fmt.Errorf("merkle: consistency proof too short")
	}
	left := rest[0]
	rest = rest[1:]
	return hasher.HashChildren(left, hmRight), hasher.HashChildren(left, hnRight), rest, nil
}
