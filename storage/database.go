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

// Package storage declares the Database contract the core consumes
// and its implementations. The database owns persisted entries: a
// LeafEntry's canonical form -- including the SCT it was issued --
// lives here, not in the admission frontend.
package storage

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// unassignedSequenceNumber marks a LeafEntry that has not yet been
// assigned a position in the dense tree.
const unassignedSequenceNumber = int64(-1)

// SCT is a Signed Certificate Timestamp.
type SCT struct {
	Version         int
	LogID           [sha256.Size]byte
	TimestampMillis int64
	Extensions      []byte
	Signature       []byte
}

// LeafEntry is a submitted chain's canonical serialization plus the
// remainder of the chain and the SCT issued for it.
type LeafEntry struct {
	LeafInput      []byte
	ExtraData      []byte
	SCT            SCT
	SequenceNumber int64
}

// LeafIdentityHash is the key Append and LookupByHash dedupe on: the
// SHA-256 of LeafInput. Two submissions with the same LeafInput are
// the same logical entry.
func (e LeafEntry) LeafIdentityHash() [sha256.Size]byte {
	return sha256.Sum256(e.LeafInput)
}

// HasSequenceNumber reports whether e has been assigned a position in
// the dense tree.
func (e LeafEntry) HasSequenceNumber() bool {
	return e.SequenceNumber != unassignedSequenceNumber
}

// Status is the outcome of a Database operation.
type Status int

const (
	// StatusOK indicates the operation completed as requested.
	StatusOK Status = iota
	// StatusAlreadyExists indicates Append found an existing entry with
	// the same LeafIdentityHash; the returned LeafEntry is the
	// previously stored one, SCT included.
	StatusAlreadyExists
	// StatusResourceExhausted indicates admission backpressure.
	StatusResourceExhausted
)

// ErrNotFound is returned by LookupByHash when no entry with the
// given leaf hash has ever been appended.
var ErrNotFound = errors.New("storage: leaf not found")

// ErrPending is returned by LookupByHash when the entry has been
// appended but not yet assigned a sequence number.
var ErrPending = errors.New("storage: leaf pending sequencing")

// Database is the append/scan/lookup contract implemented by three
// interchangeable backends.
type Database interface {
	// Append durably stores entry and returns the stored LeafEntry
	// (with SequenceNumber and SCT populated) along with a Status.
	// StatusOK means entry was newly stored; StatusAlreadyExists means
	// an entry with the same LeafIdentityHash already existed, and the
	// returned LeafEntry is that one, not a freshly constructed one.
	Append(entry LeafEntry) (LeafEntry, Status, error)

	// ScanEntries returns an EntryIterator over every entry with
	// SequenceNumber >= from, in ascending sequence-number order.
	ScanEntries(from int64) (EntryIterator, error)

	// LookupByHash returns the entry whose LeafInput hashes to
	// leafHash. It returns ErrNotFound if no such entry was ever
	// appended, or ErrPending if it was appended but not yet
	// sequenced.
	LookupByHash(leafHash [sha256.Size]byte) (LeafEntry, error)
}

// EntryIterator yields LeafEntry values in ascending sequence-number
// order.
type EntryIterator interface {
	// Next returns the next entry, or ok=false if the scan has reached
	// the end of the log. err is non-nil only on a genuine read
	// failure.
	Next() (entry LeafEntry, ok bool, err error)
	// Close releases any resources held by the iterator.
	Close() error
}

// ErrSequenceGap is returned by callers that discover Next returned an
// entry whose SequenceNumber does not immediately follow the previous
// one, which would indicate a storage bug rather than end-of-log.
var ErrSequenceGap = errors.New("storage: non-contiguous sequence numbers")

func fmtNotFound(leafHash [sha256.Size]byte) error {
	return fmt.Errorf("%w: %x", ErrNotFound, leafHash)
}
