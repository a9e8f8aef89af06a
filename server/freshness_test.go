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
	"sync/atomic"
	"testing"
	"time"
)

type stubController struct {
	mu    sync.Mutex
	stale bool
	calls int32
}

func (s *stubController) NodeIsStale() bool {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

func (s *stubController) setStale(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = v
}

func TestFreshnessCheckerStartsFresh(t *testing.T) {
	f := NewFreshnessChecker(&stubController{}, time.Hour)
	if f.IsStale() {
		t.Errorf("IsStale() before Start() = true, want false")
	}
}

func TestFreshnessCheckerPicksUpStaleness(t *testing.T) {
	ctrl := &stubController{stale: true}
	f := NewFreshnessChecker(ctrl, 10*time.Millisecond)
	f.Start()
	defer f.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if f.IsStale() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("IsStale() never became true after controller reported staleness")
}

func TestFreshnessCheckerStopPreventsFurtherChecks(t *testing.T) {
	ctrl := &stubController{}
	f := NewFreshnessChecker(ctrl, 5*time.Millisecond)
	f.Start()
	time.Sleep(20 * time.Millisecond)
	f.Stop()
	seenAtStop := atomic.LoadInt32(&ctrl.calls)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&ctrl.calls); got != seenAtStop {
		t.Errorf("controller called %d more times after Stop()", got-seenAtStop)
	}
}

func TestFreshnessCheckerStartIsIdempotent(t *testing.T) {
	f := NewFreshnessChecker(&stubController{}, time.Hour)
	f.Start()
	f.Start() // must not panic or double-schedule
	f.Stop()
}
