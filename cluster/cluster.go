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

// Package cluster supplies the ClusterStateController contract the
// serving core consumes to decide whether its locally-known STH has
// fallen behind the cluster's authoritative one.
package cluster

import "context"

// StateController answers whether this node's locally-known STH lags
// the cluster's authoritative one. Implementations may block briefly
// on an internal lock; callers must not invoke it on the I/O thread.
type StateController interface {
	// NodeIsStale reports whether the local serving snapshot is older
	// than the cluster's.
	NodeIsStale() bool
}

// MasterPublisher is implemented by StateControllers that participate
// in cluster mastership and, while holding it, publish this node's
// served tree size as the cluster's authoritative one. A
// StateController with no notion of mastership (StaticController)
// does not implement this.
type MasterPublisher interface {
	// Campaign blocks until this node becomes the cluster master, or
	// ctx is done.
	Campaign(ctx context.Context) error
	// Resign releases mastership so another node may campaign for it.
	Resign(ctx context.Context) error
	// PublishTreeSize records this node's served tree size as the
	// cluster's authoritative one. Callers should only do this while
	// holding mastership.
	PublishTreeSize(ctx context.Context, treeSize int64) error
}

// LocalSTH reports the tree size of the STH this node is currently
// serving, for comparison against the cluster's authoritative one.
type LocalSTH func() (treeSize int64)

// StaticController always reports freshness. It is the
// StateController for single-node deployments and for tests that have
// no cluster to be stale relative to.
type StaticController struct{}

// NewStaticController returns a StateController that never considers
// the node stale.
func NewStaticController() *StaticController {
	return &StaticController{}
}

// NodeIsStale implements StateController.
func (*StaticController) NodeIsStale() bool {
	return false
}
