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
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"

	"github.com/golang/glog"
)

// PEMCertPool wraps x509.CertPool so callers can also recover the raw
// DER bytes of every certificate it holds, needed to answer
// get-roots. CertPool on its own only exposes the parsed subjects.
type PEMCertPool struct {
	seen     map[[sha1.Size]byte]bool
	certs    []*x509.Certificate
	certPool *x509.CertPool
}

// NewPEMCertPool returns a new, empty PEMCertPool.
func NewPEMCertPool() *PEMCertPool {
	return &PEMCertPool{
		seen:     make(map[[sha1.Size]byte]bool),
		certPool: x509.NewCertPool(),
	}
}

// AddCert adds cert to the pool, de-duplicating by SHA-1 fingerprint.
func (p *PEMCertPool) AddCert(cert *x509.Certificate) {
	fingerprint := sha1.Sum(cert.Raw)
	if p.seen[fingerprint] {
		return
	}
	p.seen[fingerprint] = true
	p.certPool.AddCert(cert)
	p.certs = append(p.certs, cert)
}

// AppendCertsFromPEM adds every CERTIFICATE block found in pemCerts to
// the pool. It reports whether at least one certificate was found and
// every certificate found parsed successfully.
func (p *PEMCertPool) AppendCertsFromPEM(pemCerts []byte) bool {
	found := false
	for len(pemCerts) > 0 {
		var block *pem.Block
		block, pemCerts = pem.Decode(pemCerts)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" || len(block.Headers) != 0 {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			glog.Warningf("ctcrypto: error parsing PEM certificate: %v", err)
			return false
		}
		p.AddCert(cert)
		found = true
	}
	return found
}

// RawCertificates returns every certificate currently in the pool, in
// the order they were added.
func (p *PEMCertPool) RawCertificates() []*x509.Certificate {
	return p.certs
}

// CertPool returns the underlying x509.CertPool, for use with
// x509.Certificate.Verify.
func (p *PEMCertPool) CertPool() *x509.CertPool {
	return p.certPool
}
