// Copyright 2017 Google Inc. All Rights Reserved.
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

package cluster

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang/glog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

var (
	_ StateController = (*EtcdController)(nil)
	_ MasterPublisher = (*EtcdController)(nil)
)

// EtcdController is a StateController backed by etcd: the cluster's
// current master publishes its tree size under clusterSTHKey, and
// every node — master or not — compares that value against its own
// LocalSTH to decide staleness. Mastership participation uses
// concurrency.Election, the same primitive used for master election
// elsewhere in this codebase's lineage.
type EtcdController struct {
	client         *clientv3.Client
	session        *concurrency.Session
	election       *concurrency.Election
	clusterSTHKey  string
	localSTH       LocalSTH
	requestTimeout time.Duration
}

// NewEtcdController builds an EtcdController. client must remain valid
// for the controller's lifetime. clusterSTHKey is the etcd key the
// cluster's master publishes its served tree size under. localSTH
// reports this node's own served tree size.
func NewEtcdController(client *clientv3.Client, electionDir, resourceID, clusterSTHKey string, localSTH LocalSTH) (*EtcdController, error) {
	session, err := concurrency.NewSession(client)
	if err != nil {
		return nil, fmt.Errorf("cluster: failed to create etcd session: %w", err)
	}
	lockFile := fmt.Sprintf("%s/%s", electionDir, resourceID)
	return &EtcdController{
		client:         client,
		session:        session,
		election:       concurrency.NewElection(session, lockFile),
		clusterSTHKey:  clusterSTHKey,
		localSTH:       localSTH,
		requestTimeout: 2 * time.Second,
	}, nil
}

// NodeIsStale implements StateController. It reads the cluster's
// published tree size from etcd and reports whether the local tree
// size is smaller. A node that cannot reach etcd treats itself as
// stale, since it cannot prove freshness.
func (c *EtcdController) NodeIsStale() bool {
	clusterSize, err := c.clusterTreeSize()
	if err != nil {
		glog.Warningf("cluster: failed to read cluster STH: %v", err)
		return true
	}
	return c.localSTH() < clusterSize
}

func (c *EtcdController) clusterTreeSize() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
	defer cancel()
	resp, err := c.client.Get(ctx, c.clusterSTHKey)
	if err != nil {
		return 0, err
	}
	if len(resp.Kvs) == 0 {
		return 0, nil
	}
	return strconv.ParseInt(string(resp.Kvs[0].Value), 10, 64)
}

// Campaign blocks until this node becomes the cluster master for
// clusterSTHKey's resource. Only the master is expected to publish
// tree sizes via PublishTreeSize.
func (c *EtcdController) Campaign(ctx context.Context) error {
	return c.election.Campaign(ctx, c.clusterSTHKey)
}

// Resign releases mastership so another node may campaign for it.
func (c *EtcdController) Resign(ctx context.Context) error {
	return c.election.Resign(ctx)
}

// PublishTreeSize records this node's served tree size as the
// cluster's authoritative one. Callers should only do this while
// holding mastership (see Campaign).
func (c *EtcdController) PublishTreeSize(ctx context.Context, treeSize int64) error {
	_, err := c.client.Put(ctx, c.clusterSTHKey, strconv.FormatInt(treeSize, 10))
	return err
}

// Close releases the etcd session and resigns any held mastership.
func (c *EtcdController) Close(ctx context.Context) error {
	if err := c.election.Resign(ctx); err != nil && err != concurrency.ErrElectionNotLeader {
		glog.Warningf("cluster: resign on close: %v", err)
	}
	return c.session.Close()
}
