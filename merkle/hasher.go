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

// Package merkle implements the dense and sparse Merkle tree engines
// that back the log's cryptographic commitments.
package merkle

import (
	"crypto"
)

const (
	leafHashPrefix     = 0
	internalHashPrefix = 1
)

// Hasher provides RFC 6962-style domain-separated hashing over a
// configurable digest primitive. The zero value is not usable; use
// NewHasher.
type Hasher struct {
	hash crypto.Hash
}

// NewHasher returns a Hasher using h as the underlying digest. h must
// be linked into the binary (crypto.SHA256 is registered by importing
// the stdlib crypto/sha256 package for its side effects).
func NewHasher(h crypto.Hash) Hasher {
	return Hasher{hash: h}
}

// DefaultHasher is the SHA-256 hasher used throughout the log unless a
// test substitutes another digest width.
var DefaultHasher = NewHasher(crypto.SHA256)

// Size returns the width W, in bytes, of digests produced by h.
func (h Hasher) Size() int {
	return h.hash.Size()
}

// HashEmpty returns the hash of an empty input, i.e. HashLeaf(nil).
func (h Hasher) HashEmpty() []byte {
	return h.HashLeaf(nil)
}

// HashLeaf returns H(0x00 || data), the domain-separated leaf hash.
func (h Hasher) HashLeaf(data []byte) []byte {
	d := h.hash.New()
	d.Write([]byte{leafHashPrefix})
	d.Write(data)
	return d.Sum(nil)
}

// HashChildren returns H(0x01 || left || right), the domain-separated
// internal node hash.
func (h Hasher) HashChildren(left, right []byte) []byte {
	d := h.hash.New()
	d.Write([]byte{internalHashPrefix})
	d.Write(left)
	d.Write(right)
	return d.Sum(nil)
}

// EmptyRoot returns the root hash of a dense tree with no leaves,
// HashLeaf(nil).
func (h Hasher) EmptyRoot() []byte {
	return h.HashLeaf(nil)
}
