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
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/golang/glog"
	bolt "go.etcd.io/bbolt"
)

var (
	entriesBucket = []byte("entries") // sequence number (big-endian uint64) -> JSON LeafEntry
	hashIndexBucket = []byte("leaf_hash_index") // leaf identity hash -> sequence number
)

// BoltDatabase is a Database backed by a single bbolt file, following
// bbolt's own "buckets as indices" idiom: one bucket holding entries
// keyed by sequence number, a second mapping leaf identity hash to
// sequence number for LookupByHash.
type BoltDatabase struct {
	db *bolt.DB
}

// OpenBoltDatabase opens (creating if necessary) a BoltDatabase at
// path.
func OpenBoltDatabase(path string) (*BoltDatabase, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open bolt database %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entriesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(hashIndexBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: failed to initialize bolt buckets: %w", err)
	}
	return &BoltDatabase{db: db}, nil
}

// Close releases the underlying bbolt file.
func (d *BoltDatabase) Close() error {
	return d.db.Close()
}

func seqKey(seq int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}

// Append implements Database.
func (d *BoltDatabase) Append(entry LeafEntry) (LeafEntry, Status, error) {
	var result LeafEntry
	var status Status
	err := d.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		index := tx.Bucket(hashIndexBucket)

		hash := entry.LeafIdentityHash()
		if existingSeq := index.Get(hash[:]); existingSeq != nil {
			raw := entries.Get(existingSeq)
			if raw == nil {
				return fmt.Errorf("storage: dangling hash index entry for %x", hash)
			}
			if err := json.Unmarshal(raw, &result); err != nil {
				return fmt.Errorf("storage: failed to decode stored entry: %w", err)
			}
			status = StatusAlreadyExists
			return nil
		}

		seq, err := entries.NextSequence()
		if err != nil {
			return err
		}
		entry.SequenceNumber = int64(seq) - 1
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("storage: failed to encode entry: %w", err)
		}
		key := seqKey(entry.SequenceNumber)
		if err := entries.Put(key, raw); err != nil {
			return err
		}
		if err := index.Put(hash[:], key); err != nil {
			return err
		}
		result = entry
		status = StatusOK
		return nil
	})
	if err != nil {
		return LeafEntry{}, StatusOK, err
	}
	return result, status, nil
}

// ScanEntries implements Database.
func (d *BoltDatabase) ScanEntries(from int64) (EntryIterator, error) {
	var snapshot []LeafEntry
	err := d.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(entriesBucket).Cursor()
		for k, v := c.Seek(seqKey(from)); k != nil; k, v = c.Next() {
			var entry LeafEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("storage: failed to decode entry at key %x: %w", k, err)
			}
			snapshot = append(snapshot, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &memoryIterator{entries: snapshot}, nil
}

// LookupByHash implements Database.
func (d *BoltDatabase) LookupByHash(leafHash [sha256.Size]byte) (LeafEntry, error) {
	var entry LeafEntry
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(hashIndexBucket).Get(leafHash[:])
		if key == nil {
			return nil
		}
		raw := tx.Bucket(entriesBucket).Get(key)
		if raw == nil {
			glog.Warningf("storage: dangling hash index entry for %x", leafHash)
			return nil
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("storage: failed to decode entry: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return LeafEntry{}, err
	}
	if !found {
		return LeafEntry{}, fmtNotFound(leafHash)
	}
	if !entry.HasSequenceNumber() {
		return LeafEntry{}, ErrPending
	}
	return entry, nil
}
