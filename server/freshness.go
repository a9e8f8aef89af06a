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
	"sync"
	"time"

	"github.com/transparency-node/logcore/cluster"
)

// DefaultStalenessCheckDelay is the default period of the freshness
// task.
const DefaultStalenessCheckDelay = 5 * time.Second

// FreshnessChecker is a periodic task that re-queries the cluster
// controller for whether this node has fallen behind, caching the
// result under a mutex for handlers to read without blocking. The
// task is an open chain of
// delay -> callback -> delay, cancelled by marking the task inactive;
// the callback checks inactivity before scheduling its next delay,
// which is the only shutdown interlock this core needs.
type FreshnessChecker struct {
	controller cluster.StateController
	delay      time.Duration

	mu     sync.Mutex
	stale  bool
	active bool
	timer  *time.Timer
}

// NewFreshnessChecker builds a FreshnessChecker that polls controller
// every delay.
func NewFreshnessChecker(controller cluster.StateController, delay time.Duration) *FreshnessChecker {
	return &FreshnessChecker{controller: controller, delay: delay}
}

// Start begins the delay -> callback -> delay chain. It is a no-op if
// already started.
func (f *FreshnessChecker) Start() {
	f.mu.Lock()
	if f.active {
		f.mu.Unlock()
		return
	}
	f.active = true
	f.mu.Unlock()
	f.scheduleNext()
}

// Stop marks the task inactive and cancels any pending timer. It is
// safe to call multiple times.
func (f *FreshnessChecker) Stop() {
	f.mu.Lock()
	f.active = false
	t := f.timer
	f.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// IsStale reports the most recently observed staleness, read under the
// same lock the background task writes it under.
func (f *FreshnessChecker) IsStale() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stale
}

func (f *FreshnessChecker) scheduleNext() {
	f.mu.Lock()
	active := f.active
	f.mu.Unlock()
	if !active {
		return
	}
	timer := time.AfterFunc(f.delay, f.runCheck)
	f.mu.Lock()
	f.timer = timer
	f.mu.Unlock()
}

// runCheck calls the (possibly blocking) controller off the I/O thread
// — it runs on the timer's own goroutine — caches the result, then
// re-arms itself unless the task has since been stopped.
func (f *FreshnessChecker) runCheck() {
	stale := f.controller.NodeIsStale()
	f.mu.Lock()
	f.stale = stale
	f.mu.Unlock()
	f.scheduleNext()
}
