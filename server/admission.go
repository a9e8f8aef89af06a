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
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"

	"github.com/golang/glog"
	"github.com/transparency-node/logcore/ctcrypto"
	"github.com/transparency-node/logcore/storage"
)

// Frontend is the admission frontend: it validates add-chain /
// add-pre-chain requests, issues an SCT, and durably queues the
// entry.
type Frontend struct {
	logID   [sha256.Size]byte
	checker *ctcrypto.CertChecker
	signer  *ctcrypto.Signer
	db      storage.Database
	now     func() int64 // wall clock, in milliseconds; overridable for tests
}

// NewFrontend builds a Frontend over checker, signer and db.
func NewFrontend(checker *ctcrypto.CertChecker, signer *ctcrypto.Signer, db storage.Database, nowMillis func() int64) (*Frontend, error) {
	logID, err := signer.LogID()
	if err != nil {
		return nil, err
	}
	return &Frontend{logID: logID, checker: checker, signer: signer, db: db, now: nowMillis}, nil
}

// AddChain handles add-chain (isPrecert=false) or add-pre-chain
// (isPrecert=true). body is the raw JSON request.
func (f *Frontend) AddChain(body []byte, isPrecert bool) (*addChainResponse, *Error) {
	var req addChainRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, BadRequest("could not parse add-chain request body: %v", err)
	}
	if len(req.Chain) == 0 {
		return nil, BadRequest("certificate chain was empty")
	}

	validPath, err := f.checker.ValidateChain(req.Chain)
	if err != nil {
		return nil, BadRequest("chain failed to verify: %v", err)
	}

	gotPrecert, err := ctcrypto.IsPrecertificate(validPath[0])
	if err != nil {
		return nil, BadRequest("precertificate check failed: %v", err)
	}
	if gotPrecert != isPrecert {
		return nil, BadRequest("certificate / pre-certificate type mismatch: got precert=%v, want %v", gotPrecert, isPrecert)
	}

	timestampMillis := f.now()
	var ikh [sha256.Size]byte
	if isPrecert && len(validPath) > 1 {
		ikh = issuerKeyHash(validPath[1])
	}

	leafInput, err := buildMerkleTreeLeaf(isPrecert, timestampMillis, validPath[0], ikh)
	if err != nil {
		return nil, Internalf(err, "failed to build Merkle tree leaf")
	}
	tbs, err := buildSCTSignatureInput(isPrecert, timestampMillis, validPath[0], ikh)
	if err != nil {
		return nil, Internalf(err, "failed to build SCT signature input")
	}
	signature, err := f.signer.Sign(tbs)
	if err != nil {
		return nil, Internalf(err, "failed to sign SCT")
	}

	extraData, err := marshalExtraData(validPath)
	if err != nil {
		return nil, Internalf(err, "failed to marshal extra data")
	}

	entry := storage.LeafEntry{
		LeafInput: leafInput,
		ExtraData: extraData,
		SCT: storage.SCT{
			Version:         0,
			LogID:           f.logID,
			TimestampMillis: timestampMillis,
			Signature:       signature,
		},
	}

	stored, status, err := f.db.Append(entry)
	if err != nil {
		return nil, Internalf(err, "database append failed")
	}
	switch status {
	case storage.StatusResourceExhausted:
		return nil, OverCapacityf("log is not currently accepting new entries")
	case storage.StatusAlreadyExists:
		glog.V(1).Infof("server: add-chain dedupe, returning original SCT (timestamp=%d)", stored.SCT.TimestampMillis)
	}

	ds, err := digitallySignedSCTSignature(stored.SCT.Signature)
	if err != nil {
		return nil, Internalf(err, "failed to encode SCT signature")
	}

	return &addChainResponse{
		SCTVersion: int(stored.SCT.Version),
		ID:         base64.StdEncoding.EncodeToString(stored.SCT.LogID[:]),
		Timestamp:  stored.SCT.TimestampMillis,
		Extensions: "",
		Signature:  base64.StdEncoding.EncodeToString(ds),
	}, nil
}

// marshalExtraData serializes the certificate chain beyond the leaf
// (the intermediates the client submitted) as the entry's extra_data:
// retrievable alongside the entry but never hashed into the tree.
// Each certificate is stored uint24-length-prefixed, mirroring the
// encoding leaf.go uses for DER blobs.
func marshalExtraData(chain []*x509.Certificate) ([]byte, error) {
	var buf bytes.Buffer
	for _, cert := range chain[1:] {
		if err := writeUint24Prefixed(&buf, cert.Raw); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
