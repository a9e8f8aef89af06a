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
	"fmt"
	"testing"
)

// databaseUnderTest returns a fresh, isolated MemoryDatabase for the
// property tests in this file, which run against the in-memory backend
// only. The bolt and sqlite backends are covered by their own tests in
// bolt_test.go and sqlite_test.go.
func databaseUnderTest(t *testing.T) Database {
	t.Helper()
	return NewMemoryDatabase()
}

func TestAppendAssignsSequentialSequenceNumbers(t *testing.T) {
	db := databaseUnderTest(t)
	for i := 0; i < 5; i++ {
		entry := LeafEntry{LeafInput: []byte(fmt.Sprintf("leaf-%d", i))}
		stored, status, err := db.Append(entry)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if status != StatusOK {
			t.Fatalf("Append #%d status = %v, want StatusOK", i, status)
		}
		if stored.SequenceNumber != int64(i) {
			t.Errorf("Append #%d SequenceNumber = %d, want %d", i, stored.SequenceNumber, i)
		}
	}
}

func TestAppendDedupeReturnsOriginalSCT(t *testing.T) {
	db := databaseUnderTest(t)
	original := LeafEntry{
		LeafInput: []byte("same-leaf"),
		SCT:       SCT{Version: 0, TimestampMillis: 12345, Signature: []byte("original-signature")},
	}
	stored, status, err := db.Append(original)
	if err != nil || status != StatusOK {
		t.Fatalf("first Append: status=%v err=%v", status, err)
	}

	dup := LeafEntry{
		LeafInput: []byte("same-leaf"),
		SCT:       SCT{Version: 0, TimestampMillis: 99999, Signature: []byte("a-different-signature")},
	}
	got, status, err := db.Append(dup)
	if err != nil {
		t.Fatalf("second Append: %v", err)
	}
	if status != StatusAlreadyExists {
		t.Fatalf("second Append status = %v, want StatusAlreadyExists", status)
	}
	if got.SCT.TimestampMillis != stored.SCT.TimestampMillis || string(got.SCT.Signature) != string(stored.SCT.Signature) {
		t.Errorf("dedupe Append returned a different SCT than the original: got %+v, want %+v", got.SCT, stored.SCT)
	}
}

func TestScanEntriesIsContiguousAndOrdered(t *testing.T) {
	db := databaseUnderTest(t)
	for i := 0; i < 10; i++ {
		if _, _, err := db.Append(LeafEntry{LeafInput: []byte(fmt.Sprintf("leaf-%d", i))}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	it, err := db.ScanEntries(3)
	if err != nil {
		t.Fatalf("ScanEntries: %v", err)
	}
	defer it.Close()

	want := int64(3)
	for {
		entry, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		if entry.SequenceNumber != want {
			t.Errorf("got sequence number %d, want %d", entry.SequenceNumber, want)
		}
		want++
	}
	if want != 10 {
		t.Errorf("scan stopped after sequence number %d, want to reach 10", want)
	}
}

func TestLookupByHashNotFound(t *testing.T) {
	db := databaseUnderTest(t)
	var hash [32]byte
	if _, err := db.LookupByHash(hash); err == nil {
		t.Errorf("LookupByHash on an empty database returned no error")
	}
}

func TestLookupByHashFindsAppendedEntry(t *testing.T) {
	db := databaseUnderTest(t)
	entry := LeafEntry{LeafInput: []byte("findable-leaf")}
	if _, _, err := db.Append(entry); err != nil {
		t.Fatalf("Append: %v", err)
	}

	found, err := db.LookupByHash(entry.LeafIdentityHash())
	if err != nil {
		t.Fatalf("LookupByHash: %v", err)
	}
	if string(found.LeafInput) != string(entry.LeafInput) {
		t.Errorf("LookupByHash returned LeafInput %q, want %q", found.LeafInput, entry.LeafInput)
	}
}
