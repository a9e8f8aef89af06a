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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/transparency-node/logcore/ctcrypto"
	"github.com/transparency-node/logcore/merkle"
	"github.com/transparency-node/logcore/metrics"
	"github.com/transparency-node/logcore/storage"
)

const (
	contentTypeHeader = "Content-Type"
	contentTypeJSON   = "application/json"

	paramStart       = "start"
	paramEnd         = "end"
	paramIncludeSCTs = "include_scts"
	paramHash        = "hash"
	paramTreeSize    = "tree_size"
	paramFirst       = "first"
	paramSecond      = "second"

	// DefaultMaxLeafEntriesPerResponse is the default cap on how many
	// entries a single get-entries response returns.
	DefaultMaxLeafEntriesPerResponse = 1000
)

// Context holds everything a handler needs to serve one log.
type Context struct {
	TrustedRoots              *ctcrypto.PEMCertPool
	Lookup                    *LogLookup
	Frontend                  *Frontend
	DB                        storage.Database
	Freshness                 *FreshnessChecker
	Proxy                     Proxy
	Hasher                    merkle.Hasher
	MaxLeafEntriesPerResponse int64
	Metrics                   metrics.Factory
	// Pool bounds how many requests may concurrently run database
	// reads and chain validations. Required; handlers run directly on
	// the caller's goroutine if nil, which only a test should rely on.
	Pool *Pool
}

// handlerFunc is the shape of every local (non-proxied) handler. It
// writes the response itself on success and returns a non-nil *Error
// on failure, mirroring handlers.go's (int, error) convention but with
// the status implied by the Error's Kind.
type handlerFunc func(*Context, http.ResponseWriter, *http.Request) *Error

type route struct {
	path    string
	method  string
	name    string
	handler handlerFunc
	// skipPool is set for handlers that only read from the LogLookup's
	// in-memory snapshot: get-sth, get-proof-by-hash and
	// get-sth-consistency never touch the database or do chain
	// validation, so they run directly on the I/O goroutine rather
	// than occupying a pool worker.
	skipPool bool
}

var routes = []route{
	{"/ct/v1/get-sth", http.MethodGet, "GetSTH", handleGetSTH, true},
	{"/ct/v1/get-sth-consistency", http.MethodGet, "GetSTHConsistency", handleGetSTHConsistency, true},
	{"/ct/v1/get-proof-by-hash", http.MethodGet, "GetProofByHash", handleGetProofByHash, true},
	{"/ct/v1/get-entries", http.MethodGet, "GetEntries", handleGetEntries, false},
	{"/ct/v1/get-roots", http.MethodGet, "GetRoots", handleGetRoots, false},
	{"/ct/v1/add-chain", http.MethodPost, "AddChain", handleAddChain, false},
	{"/ct/v1/add-pre-chain", http.MethodPost, "AddPreChain", handleAddPreChain, false},
}

// RegisterHandlers binds every CT v1 endpoint to mux, each wrapped
// twice: a latency-measuring outer wrapper around a proxy-intercepting
// inner one, so that proxied requests are accounted for in the latency
// figures too.
func (c *Context) RegisterHandlers(mux *http.ServeMux) {
	requests := c.Metrics.NewCounter("http_requests", "Count of HTTP requests by handler and status.", "handler", "status")
	latency := c.Metrics.NewHistogram("http_request_latency_seconds", "HTTP request latency by handler.", "handler")

	for _, rt := range routes {
		rt := rt
		proxyWrapped := c.wrapProxy(rt.name, rt.method, rt.handler, rt.skipPool)
		mux.Handle(rt.path, wrapLatency(rt.name, proxyWrapped, requests, latency))
	}
}

// wrapProxy is the inner wrap: if this node is stale, forward to a
// fresher peer off the I/O thread's blocking concerns (the controller
// lookup already happened in the background freshness task; this call
// only reads the cached flag); otherwise enforce the method and run
// the local handler, through the worker pool unless skipPool is set.
func (c *Context) wrapProxy(name, method string, h handlerFunc, skipPool bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.Freshness != nil && c.Freshness.IsStale() && c.Proxy != nil {
			glog.V(1).Infof("server: %s: node stale, proxying request", name)
			c.Proxy.Forward(w, r)
			return
		}
		if r.Method != method {
			sendHTTPError(w, MethodNotAllowedf("method not allowed: %s", r.Method))
			return
		}
		if r.Method == http.MethodGet {
			if err := r.ParseForm(); err != nil {
				sendHTTPError(w, BadRequest("could not parse request parameters: %v", err))
				return
			}
		}

		run := func() *Error { return h(c, w, r) }
		if c.Pool != nil && !skipPool {
			var handlerErr *Error
			if err := c.Pool.Do(r.Context(), func() error {
				handlerErr = run()
				return nil
			}); err != nil {
				sendHTTPError(w, Internalf(err, "%s: request cancelled waiting for a worker", name))
				return
			}
			if handlerErr != nil {
				glog.Warningf("server: %s: %v", name, handlerErr)
				sendHTTPError(w, handlerErr)
			}
			return
		}
		if err := run(); err != nil {
			glog.Warningf("server: %s: %v", name, err)
			sendHTTPError(w, err)
		}
	}
}

// wrapLatency is the outer wrap: times the full request, including
// any proxy forward, and publishes it through the metrics Factory.
func wrapLatency(name string, inner http.HandlerFunc, requests metrics.Counter, latency metrics.Histogram) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		inner(rec, r)
		latency.Observe(time.Since(start).Seconds(), name)
		requests.Inc(name, strconv.Itoa(rec.status))
	})
}

// statusRecorder captures the status code a handler wrote, for the
// latency wrapper's request counter labels.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func sendHTTPError(w http.ResponseWriter, err *Error) {
	http.Error(w, err.Message, err.StatusCode())
}

func writeJSON(w http.ResponseWriter, v interface{}) *Error {
	w.Header().Set(contentTypeHeader, contentTypeJSON)
	data, err := json.Marshal(v)
	if err != nil {
		return Internalf(err, "failed to marshal response")
	}
	if _, err := w.Write(data); err != nil {
		return Internalf(err, "failed to write response")
	}
	return nil
}

func handleAddChain(c *Context, w http.ResponseWriter, r *http.Request) *Error {
	return addChainImpl(c, w, r, false)
}

func handleAddPreChain(c *Context, w http.ResponseWriter, r *http.Request) *Error {
	return addChainImpl(c, w, r, true)
}

func addChainImpl(c *Context, w http.ResponseWriter, r *http.Request, isPrecert bool) *Error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return BadRequest("failed to read request body: %v", err)
	}
	resp, addErr := c.Frontend.AddChain(body, isPrecert)
	if addErr != nil {
		return addErr
	}
	return writeJSON(w, resp)
}

func handleGetSTH(c *Context, w http.ResponseWriter, r *http.Request) *Error {
	sth := c.Lookup.GetSTH()
	return writeJSON(w, &getSTHResponse{
		TreeSize:        sth.TreeSize,
		TimestampMillis: sth.TimestampMillis,
		RootHash:        sth.RootHash,
		Signature:       sth.Signature,
	})
}

func handleGetSTHConsistency(c *Context, w http.ResponseWriter, r *http.Request) *Error {
	first, second, err := parseSTHConsistencyRange(r)
	if err != nil {
		return BadRequest("%v", err)
	}
	proof, err := c.Lookup.ConsistencyProof(first, second)
	if err != nil {
		return BadRequest("%v", err)
	}
	return writeJSON(w, &getSTHConsistencyResponse{Consistency: proof})
}

func handleGetProofByHash(c *Context, w http.ResponseWriter, r *http.Request) *Error {
	hashB64 := r.FormValue(paramHash)
	if hashB64 == "" {
		return BadRequest("missing hash parameter")
	}
	leafHash, err := base64.StdEncoding.DecodeString(hashB64)
	if err != nil {
		return BadRequest("invalid base64 hash: %v", err)
	}
	treeSize, err := strconv.ParseInt(r.FormValue(paramTreeSize), 10, 64)
	if err != nil || treeSize < 1 {
		return BadRequest("missing or invalid tree_size")
	}
	proof, err := c.Lookup.AuditProofByHash(leafHash, treeSize)
	if err != nil {
		if merkle.IsNotFound(err) {
			return NotFoundf("Couldn't find hash.")
		}
		return BadRequest("%v", err)
	}
	return writeJSON(w, &getProofByHashResponse{LeafIndex: proof.LeafIndex, AuditPath: proof.Path})
}

func handleGetRoots(c *Context, w http.ResponseWriter, r *http.Request) *Error {
	certs := c.TrustedRoots.RawCertificates()
	resp := getRootsResponse{Certificates: make([][]byte, 0, len(certs))}
	for _, cert := range certs {
		resp.Certificates = append(resp.Certificates, cert.Raw)
	}
	return writeJSON(w, &resp)
}

// handleGetEntries accumulates entries from start, stopping (without
// error) at the first gap, scan end, or clamp boundary; a zero-length
// result is the only case that is a 400.
func handleGetEntries(c *Context, w http.ResponseWriter, r *http.Request) *Error {
	start, end, err := parseEntriesRange(r, c.MaxLeafEntriesPerResponse)
	if err != nil {
		return BadRequest("%v", err)
	}
	includeSCTs := r.FormValue(paramIncludeSCTs) == "true"

	it, err := c.DB.ScanEntries(start)
	if err != nil {
		return Internalf(err, "failed to scan entries")
	}
	defer it.Close()

	resp := getEntriesResponse{}
	for i := start; i <= end; i++ {
		entry, ok, err := it.Next()
		if err != nil {
			return Internalf(err, "failed to read entry %d", i)
		}
		if !ok || entry.SequenceNumber != i {
			break
		}
		e := getEntriesEntry{LeafInput: entry.LeafInput, ExtraData: entry.ExtraData}
		if includeSCTs {
			e.SCT = encodeSCT(entry.SCT)
		}
		resp.Entries = append(resp.Entries, e)
	}
	if len(resp.Entries) == 0 {
		return NotFoundf("Entry not found.")
	}
	return writeJSON(w, &resp)
}

func parseEntriesRange(r *http.Request, maxPerResponse int64) (int64, int64, error) {
	start, err := strconv.ParseInt(r.FormValue(paramStart), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start parameter")
	}
	end, err := strconv.ParseInt(r.FormValue(paramEnd), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end parameter")
	}
	if start < 0 || end < 0 {
		return 0, 0, fmt.Errorf("start (%d) and end (%d) must be >= 0", start, end)
	}
	if start > end {
		return 0, 0, fmt.Errorf("start (%d) > end (%d)", start, end)
	}
	if maxPerResponse <= 0 {
		maxPerResponse = DefaultMaxLeafEntriesPerResponse
	}
	if clamped := start + maxPerResponse - 1; end > clamped {
		end = clamped
	}
	return start, end, nil
}

func parseSTHConsistencyRange(r *http.Request) (int64, int64, error) {
	first, err := strconv.ParseInt(r.FormValue(paramFirst), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid first parameter")
	}
	second, err := strconv.ParseInt(r.FormValue(paramSecond), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid second parameter")
	}
	if first < 0 || second < 0 {
		return 0, 0, fmt.Errorf("first (%d) and second (%d) must be >= 0", first, second)
	}
	if first > second {
		return 0, 0, fmt.Errorf("first (%d) > second (%d)", first, second)
	}
	return first, second, nil
}
