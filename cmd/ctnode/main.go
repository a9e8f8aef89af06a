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

// Binary ctnode serves one Certificate Transparency log: it validates
// and sequences add-chain submissions, periodically integrates them
// into a Merkle tree, and serves the RFC 6962 read endpoints over
// HTTP. Process bootstrapping is deliberately minimal: flags in, an
// HTTP server out, with deployment and orchestration left to whatever
// wraps this binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/transparency-node/logcore/cluster"
	"github.com/transparency-node/logcore/ctcrypto"
	"github.com/transparency-node/logcore/merkle"
	"github.com/transparency-node/logcore/metrics"
	"github.com/transparency-node/logcore/server"
	"github.com/transparency-node/logcore/storage"
)

var (
	listenAddr = flag.String("addr", ":6962", "address to serve the CT log on")

	storageBackend = flag.String("storage_backend", "memory", "one of: memory, bolt, sqlite")
	storagePath    = flag.String("storage_path", "", "path to the bolt or sqlite database file (ignored for memory)")

	trustedRootsFile = flag.String("trusted_roots", "", "file containing one or more concatenated trusted root certs in PEM format")
	privateKeyFile   = flag.String("private_key", "", "PEM file containing the log's private key")
	privateKeyPass   = flag.String("private_key_password", "", "password for the log private key, if encrypted")

	maxLeafEntriesPerResponse = flag.Int64("max_leaf_entries_per_response", server.DefaultMaxLeafEntriesPerResponse, "maximum number of entries get-entries returns in one response")
	workerPoolSize            = flag.Int("worker_pool_size", 32, "maximum number of concurrent database reads and chain validations")
	integratePeriod           = flag.Duration("integrate_period", time.Second, "how often queued entries are folded into the tree and a new STH is published")

	stalenessCheckDelay = flag.Duration("staleness_check_delay", server.DefaultStalenessCheckDelay, "how often this node re-checks whether it has fallen behind the cluster")
	etcdServers         = flag.String("etcd_servers", "", "comma-separated etcd endpoints; if empty, this node always considers itself fresh")
	etcdElectionDir     = flag.String("etcd_election_dir", "/ctnode/election", "etcd key prefix used for mastership elections")
	etcdClusterSTHKey   = flag.String("etcd_cluster_sth_key", "/ctnode/cluster_sth", "etcd key the cluster's master publishes its served tree size under")
	resourceID          = flag.String("resource_id", "", "identifies this log instance for election purposes; defaults to the hostname")
	peerAddr            = flag.String("peer_addr", "", "base URL of a fresher peer node to forward reads to while this node reports itself stale; if empty, staleness is reported but never forwarded")

	metricsPrefix = flag.String("metrics_prefix", "ctnode_", "prefix for all exported Prometheus metric names")
)

func loadTrustedRoots() (*ctcrypto.PEMCertPool, error) {
	if *trustedRootsFile == "" {
		return nil, errors.New("the --trusted_roots flag must be set to reference a valid PEM file")
	}
	data, err := os.ReadFile(*trustedRootsFile)
	if err != nil {
		return nil, err
	}
	roots := ctcrypto.NewPEMCertPool()
	if !roots.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %q", *trustedRootsFile)
	}
	return roots, nil
}

func openDatabase() (storage.Database, error) {
	switch *storageBackend {
	case "memory":
		return storage.NewMemoryDatabase(), nil
	case "bolt":
		if *storagePath == "" {
			return nil, errors.New("--storage_path is required for the bolt backend")
		}
		return storage.OpenBoltDatabase(*storagePath)
	case "sqlite":
		if *storagePath == "" {
			return nil, errors.New("--storage_path is required for the sqlite backend")
		}
		return storage.OpenSQLiteDatabase(*storagePath)
	default:
		return nil, fmt.Errorf("unknown --storage_backend %q", *storageBackend)
	}
}

// newStateController builds the cluster.StateController a FreshnessChecker
// polls. With no etcd servers configured, this node always serves as a
// single-node deployment would.
func newStateController(localSTH cluster.LocalSTH) (cluster.StateController, error) {
	if *etcdServers == "" {
		return cluster.NewStaticController(), nil
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   strings.Split(*etcdServers, ","),
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd at %v: %w", *etcdServers, err)
	}
	resource := *resourceID
	if resource == "" {
		resource, _ = os.Hostname()
	}
	return cluster.NewEtcdController(client, *etcdElectionDir, resource, *etcdClusterSTHKey, localSTH)
}

// newProxy builds the server.Proxy stale nodes forward reads to, from
// --peer_addr. Returns nil (no forwarding) if the flag is unset.
func newProxy() (server.Proxy, error) {
	if *peerAddr == "" {
		return nil, nil
	}
	target, err := url.Parse(*peerAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid --peer_addr %q: %w", *peerAddr, err)
	}
	return server.NewReverseProxy(target), nil
}

func main() {
	flag.Parse()

	trustedRoots, err := loadTrustedRoots()
	if err != nil {
		glog.Fatalf("Failed to load trusted roots: %v", err)
	}

	signer, err := ctcrypto.NewSignerFromPrivatePEMFile(*privateKeyFile, *privateKeyPass)
	if err != nil {
		glog.Fatalf("Failed to load log private key: %v", err)
	}

	db, err := openDatabase()
	if err != nil {
		glog.Fatalf("Failed to open storage backend %q: %v", *storageBackend, err)
	}

	hasher := merkle.DefaultHasher
	lookup := server.NewLogLookup(hasher)
	frontend, err := server.NewFrontend(ctcrypto.NewCertChecker(trustedRoots), signer, db, nowMillis)
	if err != nil {
		glog.Fatalf("Failed to build admission frontend: %v", err)
	}

	controller, err := newStateController(func() int64 { return lookup.CurrentTreeSize() })
	if err != nil {
		glog.Fatalf("Failed to build cluster state controller: %v", err)
	}
	freshness := server.NewFreshnessChecker(controller, *stalenessCheckDelay)
	freshness.Start()
	defer freshness.Stop()

	integrator := server.NewIntegrator(db, signer, lookup, hasher, nowMillis, *integratePeriod)
	if publisher, ok := controller.(cluster.MasterPublisher); ok {
		integrator.SetPublisher(publisher)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go integrator.RunLoop(ctx)

	proxy, err := newProxy()
	if err != nil {
		glog.Fatalf("Failed to build peer proxy: %v", err)
	}

	promFactory := metrics.PrometheusFactory{Prefix: *metricsPrefix}
	logCtx := &server.Context{
		TrustedRoots:              trustedRoots,
		Lookup:                    lookup,
		Frontend:                  frontend,
		DB:                        db,
		Freshness:                 freshness,
		Proxy:                     proxy,
		Hasher:                    hasher,
		MaxLeafEntriesPerResponse: *maxLeafEntriesPerResponse,
		Metrics:                   promFactory,
		Pool:                      server.NewPool(*workerPoolSize),
	}

	mux := http.NewServeMux()
	logCtx.RegisterHandlers(mux)

	glog.Infof("ctnode serving on %s (storage=%s)", *listenAddr, *storageBackend)
	glog.Fatalf("Server exited: %v", http.ListenAndServe(*listenAddr, mux))
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
