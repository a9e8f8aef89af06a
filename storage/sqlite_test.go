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
	"path/filepath"
	"testing"
)

func openSQLiteForTest(t *testing.T) *SQLiteDatabase {
	t.Helper()
	db, err := OpenSQLiteDatabase(filepath.Join(t.TempDir(), "ctnode.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLiteDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteDatabaseAppendAndLookup(t *testing.T) {
	db := openSQLiteForTest(t)

	entry := LeafEntry{LeafInput: []byte("sqlite-leaf"), SCT: SCT{TimestampMillis: 7}}
	stored, status, err := db.Append(entry)
	if err != nil || status != StatusOK {
		t.Fatalf("Append: status=%v err=%v", status, err)
	}
	if stored.SequenceNumber != 0 {
		t.Errorf("SequenceNumber = %d, want 0", stored.SequenceNumber)
	}

	dup, status, err := db.Append(entry)
	if err != nil {
		t.Fatalf("dedupe Append: %v", err)
	}
	if status != StatusAlreadyExists {
		t.Errorf("dedupe Append status = %v, want StatusAlreadyExists", status)
	}
	if dup.SCT.TimestampMillis != stored.SCT.TimestampMillis {
		t.Errorf("dedupe Append returned a different SCT")
	}

	found, err := db.LookupByHash(entry.LeafIdentityHash())
	if err != nil {
		t.Fatalf("LookupByHash: %v", err)
	}
	if found.SequenceNumber != 0 {
		t.Errorf("LookupByHash SequenceNumber = %d, want 0", found.SequenceNumber)
	}
}

func TestSQLiteDatabaseScanEntries(t *testing.T) {
	db := openSQLiteForTest(t)
	for i := 0; i < 6; i++ {
		if _, _, err := db.Append(LeafEntry{LeafInput: []byte(fmt.Sprintf("leaf-%d", i))}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	it, err := db.ScanEntries(2)
	if err != nil {
		t.Fatalf("ScanEntries: %v", err)
	}
	defer it.Close()

	want := int64(2)
	for {
		entry, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		if entry.SequenceNumber != want {
			t.Errorf("got sequence %d, want %d", entry.SequenceNumber, want)
		}
		want++
	}
	if want != 6 {
		t.Errorf("scan stopped at %d, want 6", want)
	}
}
