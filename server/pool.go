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
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool bounds how many database reads and chain validations run
// concurrently, independent of how many HTTP requests are in flight.
// The caller's goroutine blocks on Do until the work completes; only
// the number of closures actually running against the database and
// cert checker is bounded.
type Pool struct {
	sem chan struct{}
}

// NewPool returns a Pool that runs at most size closures concurrently.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Do runs fn on a pool worker, blocking the caller until fn completes
// or ctx is cancelled while still waiting for a free worker.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case p.sem <- struct{}{}:
		case <-gctx.Done():
			return gctx.Err()
		}
		defer func() { <-p.sem }()
		return fn()
	})
	return g.Wait()
}
