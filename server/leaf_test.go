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
	"testing"

	ct "github.com/google/certificate-transparency-go"
	"github.com/google/certificate-transparency-go/tls"

	"github.com/transparency-node/logcore/storage"
)

func TestBuildMerkleTreeLeafX509(t *testing.T) {
	cert := &x509.Certificate{Raw: []byte("fake-der-certificate")}
	leaf, err := buildMerkleTreeLeaf(false, 12345, cert, [sha256.Size]byte{})
	if err != nil {
		t.Fatalf("buildMerkleTreeLeaf: %v", err)
	}

	var decoded ct.MerkleTreeLeaf
	if rest, err := tls.Unmarshal(leaf, &decoded); err != nil || len(rest) != 0 {
		t.Fatalf("tls.Unmarshal(leaf) = %v, %d bytes left, want no error and no leftover", err, len(rest))
	}
	if decoded.Version != ct.V1 || decoded.LeafType != ct.TimestampedEntryLeafType {
		t.Errorf("decoded leaf = %+v, want V1/TimestampedEntryLeafType", decoded)
	}
	if decoded.TimestampedEntry.EntryType != ct.X509LogEntryType {
		t.Errorf("EntryType = %v, want X509LogEntryType", decoded.TimestampedEntry.EntryType)
	}
	if !bytes.Equal(decoded.TimestampedEntry.X509Entry.Data, cert.Raw) {
		t.Errorf("decoded leaf does not contain the certificate DER")
	}
}

func TestBuildMerkleTreeLeafPrecert(t *testing.T) {
	root, rootKey := generateTestRoot(t)
	precert := issueTestLeaf(t, root, rootKey, true)
	ikh := issuerKeyHash(root)

	leaf, err := buildMerkleTreeLeaf(true, 999, precert, ikh)
	if err != nil {
		t.Fatalf("buildMerkleTreeLeaf: %v", err)
	}

	var decoded ct.MerkleTreeLeaf
	if rest, err := tls.Unmarshal(leaf, &decoded); err != nil || len(rest) != 0 {
		t.Fatalf("tls.Unmarshal(leaf) = %v, %d bytes left, want no error and no leftover", err, len(rest))
	}
	if decoded.TimestampedEntry.EntryType != ct.PrecertLogEntryType {
		t.Errorf("EntryType = %v, want PrecertLogEntryType", decoded.TimestampedEntry.EntryType)
	}
	if decoded.TimestampedEntry.PrecertEntry.IssuerKeyHash != ikh {
		t.Errorf("IssuerKeyHash mismatch")
	}
	tbs := decoded.TimestampedEntry.PrecertEntry.TBSCertificate
	if len(tbs) == 0 || bytes.Equal(tbs, precert.RawTBSCertificate) {
		t.Errorf("leaf's TBSCertificate was not defanged: got the raw TBS bytes back unchanged")
	}
}

func TestBuildSCTSignatureInputDiffersByType(t *testing.T) {
	root, rootKey := generateTestRoot(t)
	leafCert := issueTestLeaf(t, root, rootKey, false)
	precert := issueTestLeaf(t, root, rootKey, true)
	ikh := issuerKeyHash(root)

	x509Input, err := buildSCTSignatureInput(false, 1, leafCert, [sha256.Size]byte{})
	if err != nil {
		t.Fatalf("buildSCTSignatureInput(x509): %v", err)
	}
	precertInput, err := buildSCTSignatureInput(true, 1, precert, ikh)
	if err != nil {
		t.Fatalf("buildSCTSignatureInput(precert): %v", err)
	}
	if bytes.Equal(x509Input, precertInput) {
		t.Errorf("x509 and precert signature inputs must differ")
	}
}

func TestWriteUint24PrefixedRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	data := []byte("some blob of data")
	if err := writeUint24Prefixed(&buf, data); err != nil {
		t.Fatalf("writeUint24Prefixed: %v", err)
	}
	got := buf.Bytes()
	wantLen := len(data)
	gotLen := int(got[0])<<16 | int(got[1])<<8 | int(got[2])
	if gotLen != wantLen {
		t.Errorf("encoded length = %d, want %d", gotLen, wantLen)
	}
	if !bytes.Equal(got[3:], data) {
		t.Errorf("encoded payload does not match input")
	}
}

func TestWriteUint24PrefixedRejectsOversizedBlob(t *testing.T) {
	var buf bytes.Buffer
	oversized := make([]byte, 1<<24)
	if err := writeUint24Prefixed(&buf, oversized); err == nil {
		t.Errorf("writeUint24Prefixed(16MiB blob) = nil error, want error")
	}
}

func TestBuildSTHSignatureInputDeterministic(t *testing.T) {
	root := sha256.Sum256([]byte("root"))
	a, err := buildSTHSignatureInput(42, 1000, root[:])
	if err != nil {
		t.Fatalf("buildSTHSignatureInput: %v", err)
	}
	b, err := buildSTHSignatureInput(42, 1000, root[:])
	if err != nil {
		t.Fatalf("buildSTHSignatureInput: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("buildSTHSignatureInput is not deterministic")
	}
	c, err := buildSTHSignatureInput(43, 1000, root[:])
	if err != nil {
		t.Fatalf("buildSTHSignatureInput: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Errorf("buildSTHSignatureInput ignores tree size")
	}
}

func TestIssuerKeyHash(t *testing.T) {
	issuer := &x509.Certificate{RawSubjectPublicKeyInfo: []byte("spki-bytes")}
	want := sha256.Sum256(issuer.RawSubjectPublicKeyInfo)
	if got := issuerKeyHash(issuer); got != want {
		t.Errorf("issuerKeyHash() = %x, want %x", got, want)
	}
}

func TestEncodeSCTRoundTripsLength(t *testing.T) {
	sct := storage.SCT{
		Version:         0,
		LogID:           sha256.Sum256([]byte("log")),
		TimestampMillis: 1700000000000,
		Signature:       []byte("fake-signature-bytes"),
	}
	encoded := encodeSCT(sct)
	// version(1) + logID(32) + timestamp(8) + ext_len(2) + hash_alg(1) + sig_alg(1) + sig_len(2) + sig
	want := 1 + 32 + 8 + 2 + 1 + 1 + 2 + len(sct.Signature)
	if len(encoded) != want {
		t.Errorf("encodeSCT length = %d, want %d", len(encoded), want)
	}
	if !bytes.Equal(encoded[:1+32], append([]byte{byte(sct.Version)}, sct.LogID[:]...)) {
		t.Errorf("encodeSCT prefix mismatch")
	}

	var decoded ct.SignedCertificateTimestamp
	if rest, err := tls.Unmarshal(encoded, &decoded); err != nil || len(rest) != 0 {
		t.Fatalf("tls.Unmarshal(encoded) = %v, %d bytes left, want no error and no leftover", err, len(rest))
	}
	if decoded.Timestamp != uint64(sct.TimestampMillis) {
		t.Errorf("decoded Timestamp = %d, want %d", decoded.Timestamp, sct.TimestampMillis)
	}
	if !bytes.Equal(decoded.Signature.Signature, sct.Signature) {
		t.Errorf("decoded Signature does not round-trip")
	}
}
