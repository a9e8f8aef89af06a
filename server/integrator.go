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
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/transparency-node/logcore/cluster"
	"github.com/transparency-node/logcore/ctcrypto"
	"github.com/transparency-node/logcore/merkle"
	"github.com/transparency-node/logcore/storage"
)

// publishTimeout bounds how long a single cluster tree-size publish
// may take, so a wedged etcd call cannot stall integration passes.
const publishTimeout = 2 * time.Second

// Integrator is the background task that periodically folds newly
// queued database entries into the dense tree and publishes a fresh,
// signed STH through a LogLookup. It is the sole mutator of its
// DenseTree: one task owns the tree, so appends never race with each
// other. The loop shape is poll, process, sleep, repeat until told to
// stop.
//
// If given a cluster.MasterPublisher, it also campaigns for cluster
// mastership and, while holding it, publishes its tree size after
// every pass that integrates at least one entry — the write side that
// makes a cluster.EtcdController's staleness check meaningful.
type Integrator struct {
	db     storage.Database
	signer *ctcrypto.Signer
	lookup *LogLookup
	tree   *merkle.DenseTree
	now    func() int64

	period time.Duration

	publisher cluster.MasterPublisher
	isMaster  atomic.Bool
}

// NewIntegrator builds an Integrator that folds entries from db into
// tree's hasher and publishes STHs through lookup every period.
func NewIntegrator(db storage.Database, signer *ctcrypto.Signer, lookup *LogLookup, hasher merkle.Hasher, nowMillis func() int64, period time.Duration) *Integrator {
	return &Integrator{
		db:     db,
		signer: signer,
		lookup: lookup,
		tree:   merkle.NewDenseTree(hasher),
		now:    nowMillis,
		period: period,
	}
}

// SetPublisher attaches the cluster.MasterPublisher this Integrator
// should campaign for mastership through and publish tree sizes to.
// Call it before RunLoop; a nil publisher (the default) leaves the
// Integrator single-node, publishing nothing.
func (in *Integrator) SetPublisher(publisher cluster.MasterPublisher) {
	in.publisher = publisher
}

// IntegratePass scans the database from the tree's current size to
// the end of the log, appends every entry found, and — if at least
// one was appended — signs and publishes a new STH. Returns the
// number of entries integrated.
func (in *Integrator) IntegratePass() (int, error) {
	it, err := in.db.ScanEntries(in.tree.Size())
	if err != nil {
		return 0, fmt.Errorf("server: integrator scan failed: %w", err)
	}
	defer it.Close()

	n := 0
	for {
		entry, ok, err := it.Next()
		if err != nil {
			return n, fmt.Errorf("server: integrator scan failed after %d entries: %w", n, err)
		}
		if !ok {
			break
		}
		if entry.SequenceNumber != in.tree.Size() {
			return n, fmt.Errorf("server: integrator expected sequence %d, got %d: %w", in.tree.Size(), entry.SequenceNumber, storage.ErrSequenceGap)
		}
		in.tree.AddLeaf(entry.LeafInput)
		n++
	}
	if n == 0 {
		return 0, nil
	}

	sth, err := in.signSTH()
	if err != nil {
		return n, err
	}
	in.lookup.Publish(sth, in.tree.Snapshot())
	in.publishTreeSize(sth.TreeSize)
	return n, nil
}

// publishTreeSize records sth's tree size with the cluster, if this
// Integrator has a publisher and currently holds mastership. Errors
// are logged, not returned: a failed cluster publish does not affect
// this node's own serving, only other nodes' staleness checks.
func (in *Integrator) publishTreeSize(treeSize int64) {
	if in.publisher == nil || !in.isMaster.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := in.publisher.PublishTreeSize(ctx, treeSize); err != nil {
		glog.Warningf("server: failed to publish cluster tree size: %v", err)
	}
}

func (in *Integrator) signSTH() (STH, error) {
	root := in.tree.CurrentRoot()
	timestampMillis := in.now()
	tbs, err := buildSTHSignatureInput(in.tree.Size(), timestampMillis, root)
	if err != nil {
		return STH{}, fmt.Errorf("server: failed to build STH signature input: %w", err)
	}
	sig, err := in.signer.Sign(tbs)
	if err != nil {
		return STH{}, fmt.Errorf("server: failed to sign STH: %w", err)
	}
	return STH{
		TreeSize:        in.tree.Size(),
		TimestampMillis: timestampMillis,
		RootHash:        root,
		Signature:       sig,
	}, nil
}

// campaignLoop campaigns for cluster mastership, retrying every period
// after a failed campaign, until it wins or ctx is done. Once elected
// it holds mastership until ctx is done and then resigns; a loss of
// mastership while held is not detected and starts no new campaign.
// in.isMaster reflects the outcome for publishTreeSize to read.
func (in *Integrator) campaignLoop(ctx context.Context) {
	defer in.isMaster.Store(false)
	for ctx.Err() == nil {
		if err := in.publisher.Campaign(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			glog.Warningf("server: cluster mastership campaign failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(in.period):
			}
			continue
		}
		in.isMaster.Store(true)
		glog.Infof("server: acquired cluster mastership")
		<-ctx.Done()
		in.isMaster.Store(false)
		resignCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := in.publisher.Resign(resignCtx); err != nil {
			glog.Warningf("server: failed to resign cluster mastership: %v", err)
		}
		cancel()
		return
	}
}

// RunLoop runs IntegratePass every period until ctx is cancelled. If a
// publisher is set, it also campaigns for cluster mastership for the
// loop's lifetime. Background failures are logged, not fatal: a
// transient database or signing error should not take the whole node
// down.
func (in *Integrator) RunLoop(ctx context.Context) {
	if in.publisher != nil {
		go in.campaignLoop(ctx)
	}
	for {
		if n, err := in.IntegratePass(); err != nil {
			glog.Warningf("server: integrator pass failed: %v", err)
		} else if n > 0 {
			glog.V(1).Infof("server: integrated %d entries, tree_size=%d", n, in.tree.Size())
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(in.period):
		}
	}
}
