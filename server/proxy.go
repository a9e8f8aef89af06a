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
	"net/http"
	"net/http/httputil"
	"net/url"
)

// Proxy forwards a request to a fresher peer when this node is stale.
// It is a narrow collaborator interface so tests can substitute a
// stub rather than stand up a real peer.
type Proxy interface {
	Forward(w http.ResponseWriter, r *http.Request)
}

// ReverseProxy forwards requests to target using
// net/http/httputil.ReverseProxy, the direct, idiomatic choice for
// this single-hop, same-protocol forward.
type ReverseProxy struct {
	proxy *httputil.ReverseProxy
}

// NewReverseProxy builds a ReverseProxy that forwards to target.
func NewReverseProxy(target *url.URL) *ReverseProxy {
	return &ReverseProxy{proxy: httputil.NewSingleHostReverseProxy(target)}
}

// Forward implements Proxy.
func (p *ReverseProxy) Forward(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}
