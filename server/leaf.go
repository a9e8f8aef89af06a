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
	"fmt"

	ct "github.com/google/certificate-transparency-go"
	"github.com/google/certificate-transparency-go/tls"
	ctx509 "github.com/google/certificate-transparency-go/x509"

	"github.com/transparency-node/logcore/storage"
)

// timestampedEntry builds the RFC 6962 §3.4 TimestampedEntry for
// leafCert. issuerKeyHash is only meaningful (and only used) for a
// pre-certificate. A precertificate's TBSCertificate is always
// defanged first: RFC 6962 §3.2 requires the CT poison extension to
// be stripped before the bytes are hashed or signed, since it is
// never present in the certificate the CA ultimately issues.
func timestampedEntry(isPrecert bool, timestampMillis int64, leafCert *x509.Certificate, issuerKeyHash [sha256.Size]byte) (*ct.TimestampedEntry, error) {
	if isPrecert {
		defangedTBS, err := ctx509.RemoveCTPoison(leafCert.RawTBSCertificate)
		if err != nil {
			return nil, fmt.Errorf("server: failed to remove poison extension: %w", err)
		}
		return &ct.TimestampedEntry{
			Timestamp: uint64(timestampMillis),
			EntryType: ct.PrecertLogEntryType,
			PrecertEntry: &ct.PreCert{
				IssuerKeyHash:  issuerKeyHash,
				TBSCertificate: defangedTBS,
			},
		}, nil
	}
	return &ct.TimestampedEntry{
		Timestamp: uint64(timestampMillis),
		EntryType: ct.X509LogEntryType,
		X509Entry: &ct.ASN1Cert{Data: leafCert.Raw},
	}, nil
}

// buildMerkleTreeLeaf serializes the RFC 6962 §3.4 MerkleTreeLeaf for
// the leaf certificate at the head of chain, which becomes the
// leaf_input hashed into the dense tree. For a pre-certificate,
// issuerKeyHash is the SHA-256 of the issuing certificate's public
// key (RFC 6962 §3.2's PreCert.issuer_key_hash); for an ordinary
// certificate it is unused.
//
// Serialization goes through the TLS presentation-language codec
// (tls.Marshal over the ct package's struct tags) rather than
// hand-rolled field encoding, so the wire shape tracks the same
// struct definitions used to parse and validate SCTs elsewhere.
func buildMerkleTreeLeaf(isPrecert bool, timestampMillis int64, leafCert *x509.Certificate, issuerKeyHash [sha256.Size]byte) ([]byte, error) {
	entry, err := timestampedEntry(isPrecert, timestampMillis, leafCert, issuerKeyHash)
	if err != nil {
		return nil, err
	}
	leaf := ct.MerkleTreeLeaf{
		Version:          ct.V1,
		LeafType:         ct.TimestampedEntryLeafType,
		TimestampedEntry: entry,
	}
	return tls.Marshal(leaf)
}

// buildSCTSignatureInput serializes the RFC 6962 §3.2
// digitally-signed struct an SCT's signature covers.
func buildSCTSignatureInput(isPrecert bool, timestampMillis int64, leafCert *x509.Certificate, issuerKeyHash [sha256.Size]byte) ([]byte, error) {
	entry, err := timestampedEntry(isPrecert, timestampMillis, leafCert, issuerKeyHash)
	if err != nil {
		return nil, err
	}
	leaf := ct.MerkleTreeLeaf{
		Version:          ct.V1,
		LeafType:         ct.TimestampedEntryLeafType,
		TimestampedEntry: entry,
	}
	sct := ct.SignedCertificateTimestamp{
		SCTVersion: ct.V1,
		Timestamp:  uint64(timestampMillis),
		Extensions: ct.CTExtensions{},
	}
	return ct.SerializeSCTSignatureInput(sct, ct.LogEntry{Leaf: leaf})
}

// buildSTHSignatureInput serializes the RFC 6962 §3.5 digitally-signed
// struct a Signed Tree Head's signature covers.
func buildSTHSignatureInput(treeSize, timestampMillis int64, rootHash []byte) ([]byte, error) {
	var hash ct.SHA256Hash
	copy(hash[:], rootHash)
	sth := ct.SignedTreeHead{
		Version:        ct.V1,
		TreeSize:       uint64(treeSize),
		Timestamp:      uint64(timestampMillis),
		SHA256RootHash: hash,
	}
	return ct.SerializeSTHSignatureInput(sth)
}

// sctHashAlgSHA256 and sctSigAlgECDSA are RFC 6962 §3.2's
// HashAlgorithm/SignatureAlgorithm TLS enum values for the signing
// setup this log uses (SHA-256 digest, ECDSA signature).
const (
	sctHashAlgSHA256 = tls.SHA256
	sctSigAlgECDSA   = tls.ECDSA
)

// encodeSCT serializes sct in the RFC 6962 §3.2 SignedCertificateTimestamp
// wire shape, via the same tls.Marshal codec buildMerkleTreeLeaf uses.
// This is used only by the get-entries include_scts extension, a
// non-standard addition for peer nodes.
func encodeSCT(sct storage.SCT) []byte {
	out := ct.SignedCertificateTimestamp{
		SCTVersion: ct.Version(sct.Version),
		LogID:      ct.LogID{KeyID: sct.LogID},
		Timestamp:  uint64(sct.TimestampMillis),
		Extensions: ct.CTExtensions(sct.Extensions),
		Signature: ct.DigitallySigned{
			Algorithm: tls.SignatureAndHashAlgorithm{
				Hash:      sctHashAlgSHA256,
				Signature: sctSigAlgECDSA,
			},
			Signature: sct.Signature,
		},
	}
	encoded, err := tls.Marshal(out)
	if err != nil {
		// out is built entirely from already-stored, already-validated
		// fields; a marshal failure here would mean storage holds a
		// corrupt SCT, which Append would never have accepted.
		panic(fmt.Sprintf("server: failed to marshal stored SCT: %v", err))
	}
	return encoded
}

// digitallySignedSCTSignature serializes an SCT's raw signature bytes
// as the RFC 6962 §3.2 DigitallySigned struct (hash algorithm,
// signature algorithm, length-prefixed signature), the form the
// add-chain/add-pre-chain response's "signature" field and the
// get-entries SCT wire encoding both carry.
func digitallySignedSCTSignature(sig []byte) ([]byte, error) {
	ds := ct.DigitallySigned{
		Algorithm: tls.SignatureAndHashAlgorithm{
			Hash:      sctHashAlgSHA256,
			Signature: sctSigAlgECDSA,
		},
		Signature: sig,
	}
	return tls.Marshal(ds)
}

// writeUint24Prefixed writes a uint24 big-endian length prefix
// followed by data, the encoding this log uses for the DER blobs
// making up an entry's extra_data (the certificate chain beyond the
// leaf). This is a log-local storage convention, not an RFC 6962 wire
// structure, so it is not part of the ct/tls codec.
func writeUint24Prefixed(buf *bytes.Buffer, data []byte) error {
	if len(data) > 1<<24-1 {
		return fmt.Errorf("server: blob too long for uint24 length prefix: %d bytes", len(data))
	}
	var lenBytes [3]byte
	lenBytes[0] = byte(len(data) >> 16)
	lenBytes[1] = byte(len(data) >> 8)
	lenBytes[2] = byte(len(data))
	buf.Write(lenBytes[:])
	buf.Write(data)
	return nil
}

// issuerKeyHash computes RFC 6962 §3.2's issuer_key_hash: the SHA-256
// of the issuing certificate's DER-encoded SubjectPublicKeyInfo.
func issuerKeyHash(issuer *x509.Certificate) [sha256.Size]byte {
	return sha256.Sum256(issuer.RawSubjectPublicKeyInfo)
}
