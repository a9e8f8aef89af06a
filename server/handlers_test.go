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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/transparency-node/logcore/cluster"
	"github.com/transparency-node/logcore/ctcrypto"
	"github.com/transparency-node/logcore/merkle"
	"github.com/transparency-node/logcore/metrics"
	"github.com/transparency-node/logcore/storage"
)

// fakeCounter/fakeHistogram/fakeFactory are minimal metrics.Factory
// stand-ins so handler tests don't depend on a global Prometheus
// registry (which MustRegister would panic on across repeated tests).
type fakeCounter struct{}

func (fakeCounter) Inc(labelVals ...string)             {}
func (fakeCounter) Add(val float64, labelVals ...string) {}

type fakeHistogram struct{}

func (fakeHistogram) Observe(val float64, labelVals ...string) {}

type fakeGauge struct{}

func (fakeGauge) Set(val float64, labelVals ...string) {}

type fakeFactory struct{}

func (fakeFactory) NewCounter(name, help string, labelNames ...string) metrics.Counter     { return fakeCounter{} }
func (fakeFactory) NewGauge(name, help string, labelNames ...string) metrics.Gauge         { return fakeGauge{} }
func (fakeFactory) NewHistogram(name, help string, labelNames ...string) metrics.Histogram { return fakeHistogram{} }

type stubProxy struct {
	called bool
}

func (p *stubProxy) Forward(w http.ResponseWriter, r *http.Request) {
	p.called = true
	w.WriteHeader(http.StatusTeapot)
}

func newTestContext(t *testing.T, db storage.Database, lookup *LogLookup, proxy Proxy, fresh *FreshnessChecker) *Context {
	t.Helper()
	roots := ctcrypto.NewPEMCertPool()
	root, _ := generateTestRoot(t)
	roots.AddCert(root)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("ecdsa.GenerateKey: %v", err)
	}
	signer := ctcrypto.NewSigner(key, crypto.SHA256)
	frontend, err := NewFrontend(ctcrypto.NewCertChecker(roots), signer, db, func() int64 { return 1700000000000 })
	if err != nil {
		t.Fatalf("NewFrontend: %v", err)
	}

	return &Context{
		TrustedRoots:              roots,
		Lookup:                    lookup,
		Frontend:                  frontend,
		DB:                        db,
		Freshness:                 fresh,
		Proxy:                     proxy,
		Hasher:                    merkle.DefaultHasher,
		MaxLeafEntriesPerResponse: 3,
		Metrics:                   fakeFactory{},
		Pool:                      NewPool(4),
	}
}

func serveRequest(c *Context, method, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	c.RegisterHandlers(mux)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleGetSTH(t *testing.T) {
	db := storage.NewMemoryDatabase()
	lookup := NewLogLookup(merkle.DefaultHasher)
	c := newTestContext(t, db, lookup, nil, nil)

	rec := serveRequest(c, http.MethodGet, "/ct/v1/get-sth")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	var resp getSTHResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if resp.TreeSize != 0 {
		t.Errorf("TreeSize = %d, want 0", resp.TreeSize)
	}
}

func TestHandleGetRoots(t *testing.T) {
	db := storage.NewMemoryDatabase()
	lookup := NewLogLookup(merkle.DefaultHasher)
	c := newTestContext(t, db, lookup, nil, nil)

	rec := serveRequest(c, http.MethodGet, "/ct/v1/get-roots")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp getRootsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if len(resp.Certificates) != 1 {
		t.Errorf("len(Certificates) = %d, want 1", len(resp.Certificates))
	}
}

func TestHandleGetSTHWrongMethodRejected(t *testing.T) {
	db := storage.NewMemoryDatabase()
	lookup := NewLogLookup(merkle.DefaultHasher)
	c := newTestContext(t, db, lookup, nil, nil)

	rec := serveRequest(c, http.MethodPost, "/ct/v1/get-sth")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleGetProofByHashMissingParam(t *testing.T) {
	db := storage.NewMemoryDatabase()
	lookup := NewLogLookup(merkle.DefaultHasher)
	c := newTestContext(t, db, lookup, nil, nil)

	rec := serveRequest(c, http.MethodGet, "/ct/v1/get-proof-by-hash")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleGetProofByHashNotFound(t *testing.T) {
	db := storage.NewMemoryDatabase()
	lookup := NewLogLookup(merkle.DefaultHasher)
	tree := merkle.NewDenseTree(merkle.DefaultHasher)
	tree.AddLeaf([]byte("leaf-0"))
	lookup.Publish(STH{TreeSize: 1, RootHash: tree.CurrentRoot()}, tree.Snapshot())
	c := newTestContext(t, db, lookup, nil, nil)

	rec := serveRequest(c, http.MethodGet, "/ct/v1/get-proof-by-hash?hash=bm9wZQ%3D%3D&tree_size=1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body=%s", rec.Code, rec.Body.String())
	}
}

// buildEntriesLog appends n sequential entries directly to a fresh
// MemoryDatabase and runs one integrator pass over them (which
// publishes an STH when n > 0), returning the DB and LogLookup a
// Context can be built from.
func buildEntriesLog(t *testing.T, n int) (storage.Database, *LogLookup) {
	t.Helper()
	db := storage.NewMemoryDatabase()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("ecdsa.GenerateKey: %v", err)
	}
	signer := ctcrypto.NewSigner(key, crypto.SHA256)
	lookup := NewLogLookup(merkle.DefaultHasher)
	in := NewIntegrator(db, signer, lookup, merkle.DefaultHasher, func() int64 { return 1700000000000 }, 0)

	for i := 0; i < n; i++ {
		if _, _, err := db.Append(storage.LeafEntry{LeafInput: []byte{byte(i)}}); err != nil {
			t.Fatalf("db.Append: %v", err)
		}
	}
	if _, err := in.IntegratePass(); err != nil {
		t.Fatalf("IntegratePass: %v", err)
	}
	return db, lookup
}

func TestHandleGetEntriesClampsToMaxPerResponse(t *testing.T) {
	db, lookup := buildEntriesLog(t, 10)
	c := newTestContext(t, db, lookup, nil, nil) // MaxLeafEntriesPerResponse = 3

	rec := serveRequest(c, http.MethodGet, "/ct/v1/get-entries?start=0&end=9")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	var resp getEntriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if len(resp.Entries) != 3 {
		t.Errorf("len(Entries) = %d, want 3 (clamped to MaxLeafEntriesPerResponse)", len(resp.Entries))
	}
}

func TestHandleGetEntriesTruncatesAtEndOfLog(t *testing.T) {
	db, lookup := buildEntriesLog(t, 2)
	c := newTestContext(t, db, lookup, nil, nil)

	rec := serveRequest(c, http.MethodGet, "/ct/v1/get-entries?start=0&end=9")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	var resp getEntriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Errorf("len(Entries) = %d, want 2 (truncated at end of log, not a 400)", len(resp.Entries))
	}
}

func TestHandleGetEntriesEmptyResultIsNotFound(t *testing.T) {
	db, lookup := buildEntriesLog(t, 0)
	c := newTestContext(t, db, lookup, nil, nil)

	rec := serveRequest(c, http.MethodGet, "/ct/v1/get-entries?start=0&end=9")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 (zero entries returned)", rec.Code)
	}
}

func TestHandleGetEntriesRejectsStartAfterEnd(t *testing.T) {
	db, lookup := buildEntriesLog(t, 5)
	c := newTestContext(t, db, lookup, nil, nil)

	rec := serveRequest(c, http.MethodGet, "/ct/v1/get-entries?start=5&end=1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleGetEntriesIncludeSCTs(t *testing.T) {
	db, lookup := buildEntriesLog(t, 1)
	c := newTestContext(t, db, lookup, nil, nil)

	rec := serveRequest(c, http.MethodGet, "/ct/v1/get-entries?start=0&end=0&include_scts=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	var resp getEntriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if len(resp.Entries) != 1 || len(resp.Entries[0].SCT) == 0 {
		t.Errorf("include_scts=true did not populate an SCT: %+v", resp.Entries)
	}
}

func TestHandleGetEntriesOmitsSCTsByDefault(t *testing.T) {
	db, lookup := buildEntriesLog(t, 1)
	c := newTestContext(t, db, lookup, nil, nil)

	rec := serveRequest(c, http.MethodGet, "/ct/v1/get-entries?start=0&end=0")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	var resp getEntriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if len(resp.Entries) != 1 || len(resp.Entries[0].SCT) != 0 {
		t.Errorf("SCT was populated without include_scts=true: %+v", resp.Entries)
	}
}

func TestStaleNodeForwardsToProxy(t *testing.T) {
	db := storage.NewMemoryDatabase()
	lookup := NewLogLookup(merkle.DefaultHasher)
	proxy := &stubProxy{}
	fresh := NewFreshnessChecker(&stubController{stale: true}, 0)
	fresh.runCheck() // populate the cached staleness flag synchronously
	c := newTestContext(t, db, lookup, proxy, fresh)

	rec := serveRequest(c, http.MethodGet, "/ct/v1/get-sth")
	if !proxy.called {
		t.Errorf("stale node did not forward to the proxy")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418 (from the stub proxy)", rec.Code)
	}
}

func TestFreshNodeDoesNotForwardToProxy(t *testing.T) {
	db := storage.NewMemoryDatabase()
	lookup := NewLogLookup(merkle.DefaultHasher)
	proxy := &stubProxy{}
	fresh := NewFreshnessChecker(cluster.NewStaticController(), 0)
	fresh.runCheck()
	c := newTestContext(t, db, lookup, proxy, fresh)

	rec := serveRequest(c, http.MethodGet, "/ct/v1/get-sth")
	if proxy.called {
		t.Errorf("fresh node forwarded to the proxy")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
