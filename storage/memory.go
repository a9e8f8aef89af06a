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

package storage

import (
	"crypto/sha256"
	"sync"
)

// MemoryDatabase is an in-memory Database, guarded by a single mutex.
// It never returns StatusResourceExhausted. Intended for tests and
// single-process demos.
type MemoryDatabase struct {
	mu      sync.Mutex
	entries []LeafEntry
	byHash  map[[sha256.Size]byte]int // leaf identity hash -> index into entries
}

// NewMemoryDatabase returns an empty MemoryDatabase.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{byHash: make(map[[sha256.Size]byte]int)}
}

// Append implements Database.
func (d *MemoryDatabase) Append(entry LeafEntry) (LeafEntry, Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	hash := entry.LeafIdentityHash()
	if idx, ok := d.byHash[hash]; ok {
		return d.entries[idx], StatusAlreadyExists, nil
	}

	entry.SequenceNumber = int64(len(d.entries))
	d.entries = append(d.entries, entry)
	d.byHash[hash] = len(d.entries) - 1
	return entry, StatusOK, nil
}

// ScanEntries implements Database.
func (d *MemoryDatabase) ScanEntries(from int64) (EntryIterator, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := from
	if start < 0 {
		start = 0
	}
	var snapshot []LeafEntry
	if start < int64(len(d.entries)) {
		snapshot = append(snapshot, d.entries[start:]...)
	}
	return &memoryIterator{entries: snapshot}, nil
}

// LookupByHash implements Database.
func (d *MemoryDatabase) LookupByHash(leafHash [sha256.Size]byte) (LeafEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx, ok := d.byHash[leafHash]
	if !ok {
		return LeafEntry{}, fmtNotFound(leafHash)
	}
	entry := d.entries[idx]
	if !entry.HasSequenceNumber() {
		return LeafEntry{}, ErrPending
	}
	return entry, nil
}

type memoryIterator struct {
	entries []LeafEntry
	pos     int
}

func (it *memoryIterator) Next() (LeafEntry, bool, error) {
	if it.pos >= len(it.entries) {
		return LeafEntry{}, false, nil
	}
	entry := it.entries[it.pos]
	it.pos++
	return entry, true, nil
}

func (it *memoryIterator) Close() error { return nil }
