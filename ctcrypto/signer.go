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

package ctcrypto

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// Signer signs SCTs and STHs on behalf of a log, using whatever
// crypto.Signer holds the log's private key. It treats the signing
// primitive as an opaque oracle, deferring all key management and
// algorithm choice to whatever crypto.Signer the caller supplies.
type Signer struct {
	signer crypto.Signer
	hash   crypto.Hash
}

// NewSigner wraps an in-memory or external crypto.Signer.
func NewSigner(signer crypto.Signer, hash crypto.Hash) *Signer {
	return &Signer{signer: signer, hash: hash}
}

// NewSignerFromPrivatePEMFile loads a PEM-encoded PKCS#1, PKCS#8 or
// SEC1 private key from path (optionally password protected) and
// returns a Signer over it.
func NewSignerFromPrivatePEMFile(path, password string) (*Signer, error) {
	pemData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ctcrypto: failed to read key file %q: %w", path, err)
	}
	block, rest := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("ctcrypto: no PEM block found in %q", path)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("ctcrypto: trailing data after PEM block in %q", path)
	}

	der := block.Bytes
	//nolint:staticcheck // x509.IsEncryptedPEMBlock/DecryptPEMBlock: no stdlib replacement exists.
	if password != "" && x509.IsEncryptedPEMBlock(block) {
		decrypted, err := x509.DecryptPEMBlock(block, []byte(password))
		if err != nil {
			return nil, fmt.Errorf("ctcrypto: failed to decrypt key: %w", err)
		}
		der = decrypted
	}

	key, err := parsePrivateKey(der)
	if err != nil {
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("ctcrypto: key of type %T does not implement crypto.Signer", key)
	}
	return NewSigner(signer, crypto.SHA256), nil
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("ctcrypto: could not parse private key as PKCS1, PKCS8 or SEC1")
}

// Public returns the log's public key.
func (s *Signer) Public() crypto.PublicKey {
	return s.signer.Public()
}

// LogID returns the log's identifier, the SHA-256 hash of its
// DER-encoded public key, per RFC 6962 §3.2.
func (s *Signer) LogID() ([sha256.Size]byte, error) {
	pub, err := x509.MarshalPKIXPublicKey(s.signer.Public())
	if err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("ctcrypto: failed to marshal public key: %w", err)
	}
	return sha256.Sum256(pub), nil
}

// Sign hashes data and signs the digest with the log's private key.
func (s *Signer) Sign(data []byte) ([]byte, error) {
	h := s.hash.New()
	h.Write(data)
	digest := h.Sum(nil)
	return s.signer.Sign(rand.Reader, digest, s.hash)
}
