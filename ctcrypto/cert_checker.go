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
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"errors"
	"fmt"
)

// ctPoisonExtensionOID is the OID of the critical extension RFC
// 6962 uses to mark pre-certificates.
var ctPoisonExtensionOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 3}

// asn1NullBytes is the DER encoding of ASN.1 NULL, the only value RFC
// 6962 permits for the poison extension.
var asn1NullBytes = []byte{0x05, 0x00}

// IsPrecertificate reports whether cert carries the CT poison
// extension. It returns an error if the extension is present but
// isn't the critical ASN.1 NULL the RFC requires.
func IsPrecertificate(cert *x509.Certificate) (bool, error) {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(ctPoisonExtensionOID) {
			continue
		}
		if !ext.Critical || !bytes.Equal(asn1NullBytes, ext.Value) {
			return false, fmt.Errorf("ctcrypto: CT poison extension not critical or not ASN.1 NULL: %v", ext)
		}
		return true, nil
	}
	return false, nil
}

// CertChecker validates submitted chains against a pool of trusted
// roots.
type CertChecker struct {
	TrustedRoots *PEMCertPool
}

// NewCertChecker returns a CertChecker that trusts roots.
func NewCertChecker(roots *PEMCertPool) *CertChecker {
	return &CertChecker{TrustedRoots: roots}
}

// ValidateChain decodes jsonChain (a list of base64-DER certificates,
// leaf first), checks that it forms a path to a trusted root, and
// that the verified path uses every submitted intermediate in
// submission order, per RFC 6962 §3.1. It returns the chain up to but
// excluding the root.
func (c *CertChecker) ValidateChain(jsonChain []string) ([]*x509.Certificate, error) {
	if len(jsonChain) == 0 {
		return nil, errors.New("ctcrypto: certificate chain is empty")
	}

	chain := make([]*x509.Certificate, 0, len(jsonChain))
	intermediates := x509.NewCertPool()
	for i, certB64 := range jsonChain {
		certDER, err := base64.StdEncoding.DecodeString(certB64)
		if err != nil {
			return nil, fmt.Errorf("ctcrypto: chain[%d] is not valid base64: %w", i, err)
		}
		cert, err := x509.ParseCertificate(certDER)
		if err != nil {
			return nil, fmt.Errorf("ctcrypto: chain[%d] does not parse as X.509: %w", i, err)
		}
		chain = append(chain, cert)
		if i > 0 {
			intermediates.AddCert(cert)
		}
	}

	leaf := chain[0]
	leaf.UnhandledCriticalExtensions = nil // the CT poison extension is expected and handled separately

	verifiedChains, err := leaf.Verify(x509.VerifyOptions{
		Roots:         c.TrustedRoots.CertPool(),
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, fmt.Errorf("ctcrypto: chain does not verify: %w", err)
	}

	for _, verified := range verifiedChains {
		chainMinusRoot := verified[:len(verified)-1]
		if len(chainMinusRoot) != len(chain) {
			continue
		}
		allMatch := true
		for i, cert := range chainMinusRoot {
			if cert != chain[i] {
				allMatch = false
				break
			}
		}
		if allMatch {
			return chainMinusRoot, nil
		}
	}

	return nil, errors.New("ctcrypto: no RFC 6962 compliant path to a trusted root")
}
