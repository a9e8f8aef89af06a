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
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS leaves (
	sequence_number  INTEGER PRIMARY KEY AUTOINCREMENT,
	leaf_identity_hash TEXT NOT NULL,
	leaf_input       BLOB NOT NULL,
	extra_data       BLOB,
	sct_version      INTEGER NOT NULL,
	sct_log_id       TEXT NOT NULL,
	sct_timestamp_ms INTEGER NOT NULL,
	sct_extensions   BLOB,
	sct_signature    BLOB
);
CREATE UNIQUE INDEX IF NOT EXISTS leaves_identity_hash_idx ON leaves(leaf_identity_hash);
`

// SQLiteDatabase is a Database backed by a SQLite file accessed
// through database/sql, realizing dedupe as a unique-index
// constraint violation on leaf_identity_hash.
type SQLiteDatabase struct {
	db *sql.DB
}

// OpenSQLiteDatabase opens (creating and migrating if necessary) a
// SQLiteDatabase at path.
func OpenSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open sqlite database %q: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: failed to apply sqlite schema: %w", err)
	}
	return &SQLiteDatabase{db: db}, nil
}

// Close releases the underlying sqlite connection.
func (d *SQLiteDatabase) Close() error {
	return d.db.Close()
}

// Append implements Database.
func (d *SQLiteDatabase) Append(entry LeafEntry) (LeafEntry, Status, error) {
	hash := entry.LeafIdentityHash()
	hashHex := hex.EncodeToString(hash[:])

	res, err := d.db.Exec(
		`INSERT INTO leaves (leaf_identity_hash, leaf_input, extra_data, sct_version, sct_log_id, sct_timestamp_ms, sct_extensions, sct_signature)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		hashHex, entry.LeafInput, entry.ExtraData, entry.SCT.Version, hex.EncodeToString(entry.SCT.LogID[:]),
		entry.SCT.TimestampMillis, entry.SCT.Extensions, entry.SCT.Signature)
	if err != nil {
		if isUniqueConstraintErr(err) {
			existing, lookupErr := d.lookupByHashHex(hashHex)
			if lookupErr != nil {
				return LeafEntry{}, StatusOK, fmt.Errorf("storage: dedupe lookup after constraint violation: %w", lookupErr)
			}
			return existing, StatusAlreadyExists, nil
		}
		return LeafEntry{}, StatusOK, fmt.Errorf("storage: failed to insert leaf: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return LeafEntry{}, StatusOK, fmt.Errorf("storage: failed to read assigned sequence number: %w", err)
	}
	entry.SequenceNumber = seq - 1 // AUTOINCREMENT starts at 1; sequence numbers start at 0
	return entry, StatusOK, nil
}

// ScanEntries implements Database.
func (d *SQLiteDatabase) ScanEntries(from int64) (EntryIterator, error) {
	rows, err := d.db.Query(
		`SELECT sequence_number, leaf_input, extra_data, sct_version, sct_log_id, sct_timestamp_ms, sct_extensions, sct_signature
		 FROM leaves WHERE sequence_number >= ? ORDER BY sequence_number ASC`, from+1)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to scan entries: %w", err)
	}
	return &sqlIterator{rows: rows}, nil
}

// LookupByHash implements Database.
func (d *SQLiteDatabase) LookupByHash(leafHash [sha256.Size]byte) (LeafEntry, error) {
	return d.lookupByHashHex(hex.EncodeToString(leafHash[:]))
}

func (d *SQLiteDatabase) lookupByHashHex(hashHex string) (LeafEntry, error) {
	row := d.db.QueryRow(
		`SELECT sequence_number, leaf_input, extra_data, sct_version, sct_log_id, sct_timestamp_ms, sct_extensions, sct_signature
		 FROM leaves WHERE leaf_identity_hash = ?`, hashHex)
	entry, err := scanLeafEntry(row)
	if err == sql.ErrNoRows {
		var hash [sha256.Size]byte
		if decoded, decErr := hex.DecodeString(hashHex); decErr == nil {
			copy(hash[:], decoded)
		}
		return LeafEntry{}, fmtNotFound(hash)
	}
	if err != nil {
		return LeafEntry{}, err
	}
	if !entry.HasSequenceNumber() {
		return LeafEntry{}, ErrPending
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLeafEntry(row rowScanner) (LeafEntry, error) {
	var (
		entry      LeafEntry
		logIDHex   string
		sequence   int64
	)
	err := row.Scan(&sequence, &entry.LeafInput, &entry.ExtraData, &entry.SCT.Version, &logIDHex,
		&entry.SCT.TimestampMillis, &entry.SCT.Extensions, &entry.SCT.Signature)
	if err != nil {
		return LeafEntry{}, err
	}
	entry.SequenceNumber = sequence - 1
	if decoded, err := hex.DecodeString(logIDHex); err == nil {
		copy(entry.SCT.LogID[:], decoded)
	}
	return entry, nil
}

type sqlIterator struct {
	rows *sql.Rows
}

func (it *sqlIterator) Next() (LeafEntry, bool, error) {
	if !it.rows.Next() {
		return LeafEntry{}, false, it.rows.Err()
	}
	entry, err := scanLeafEntry(it.rows)
	if err != nil {
		return LeafEntry{}, false, err
	}
	return entry, true, nil
}

func (it *sqlIterator) Close() error {
	return it.rows.Close()
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
