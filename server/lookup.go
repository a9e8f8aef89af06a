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

package server

import (
	"fmt"
	"sync"

	"github.com/transparency-node/logcore/merkle"
)

// snapshot bundles an STH with the dense tree state it was computed
// over. A LogLookup only ever hands out snapshot, never a live,
// mutable *merkle.DenseTree, so a reader can never observe a tree
// mutating underneath it.
type snapshot struct {
	sth  STH
	tree *merkle.DenseTree
}

// LogLookup is the read-side authority for proof and entry lookups.
// All proof endpoints read through it rather than the mutable append
// path, so served proofs are always consistent with the STH being
// served alongside them.
type LogLookup struct {
	mu   sync.RWMutex
	curr *snapshot
}

// NewLogLookup returns a LogLookup over an empty log.
func NewLogLookup(hasher merkle.Hasher) *LogLookup {
	return &LogLookup{
		curr: &snapshot{
			sth:  STH{RootHash: hasher.EmptyRoot()},
			tree: merkle.NewDenseTree(hasher),
		},
	}
}

// Publish atomically swaps in a new (sth, tree) snapshot. Callers
// (the integrator) must pass a tree obtained via DenseTree.Snapshot,
// never one still being mutated.
func (l *LogLookup) Publish(sth STH, tree *merkle.DenseTree) {
	l.mu.Lock()
	l.curr = &snapshot{sth: sth, tree: tree}
	l.mu.Unlock()
}

// current returns the currently published snapshot under a read lock.
func (l *LogLookup) current() *snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.curr
}

// GetSTH returns the currently published STH. tree_size and root_hash
// are read together, so callers always observe a consistent pair.
func (l *LogLookup) GetSTH() STH {
	return l.current().sth
}

// AuditProofByHash returns the audit proof for leafHash against the
// tree as it stood at treeSize, which must not exceed the currently
// published STH's tree size.
func (l *LogLookup) AuditProofByHash(leafHash []byte, treeSize int64) (*merkle.AuditProof, error) {
	snap := l.current()
	if treeSize > snap.tree.Size() {
		return nil, fmt.Errorf("server: tree_size %d exceeds published STH size %d", treeSize, snap.tree.Size())
	}
	return snap.tree.AuditProofByHash(leafHash, treeSize)
}

// ConsistencyProof returns the consistency proof between first and
// second, both of which must not exceed the currently published STH's
// tree size.
func (l *LogLookup) ConsistencyProof(first, second int64) ([][]byte, error) {
	snap := l.current()
	if second > snap.tree.Size() {
		return nil, fmt.Errorf("server: tree_size %d exceeds published STH size %d", second, snap.tree.Size())
	}
	return snap.tree.ConsistencyProof(first, second)
}

// CurrentTreeSize returns the tree size of the currently published STH.
func (l *LogLookup) CurrentTreeSize() int64 {
	return l.current().tree.Size()
}
