// Package node implements the process-level bootstrap §5 describes: for
// the configured tier, start one worker goroutine per thread, each
// running its own independent event loop, and serve the seed responder
// from thread 0.
package node

import (
	"fmt"

	"github.com/driftkv/driftkv/internal/addr"
	"github.com/driftkv/driftkv/internal/config"
	"github.com/driftkv/driftkv/internal/logging"
	"github.com/driftkv/driftkv/internal/replication"
	"github.com/driftkv/driftkv/internal/telemetry"
	"github.com/driftkv/driftkv/internal/transport"
	"github.com/driftkv/driftkv/internal/wire"
	"github.com/driftkv/driftkv/internal/worker"
)

// Node owns one tier's worker pool for this process.
type Node struct {
	log     logging.ILogger
	workers []*worker.Worker
	seed    *transport.ReqServer
	errs    chan error
}

// Start builds and runs one worker per configured thread of cfg's tier.
// It returns once every worker is constructed (or at the first
// construction failure); each worker's bind, bootstrap and event loop
// run in a background goroutine, and a bind or bootstrap error surfaces
// through Wait.
func Start(cfg *config.Config) (*Node, error) {
	codec, err := wire.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	tierThreads := map[addr.Tier]int{}
	tierDefaults := map[addr.Tier]replication.Factor{}
	for tier, settings := range cfg.Tiers {
		tierThreads[tier] = settings.Threads
		tierDefaults[tier] = replication.Factor{Global: settings.GlobalReplication, Local: cfg.LocalReplication}
	}

	var seedAddr, mgmtJoinCountAddr, mgmtPushAddr string
	if cfg.Server.SeedIP != "" {
		seedAddr = addr.SeedConnectAddr(cfg.Server.SeedIP)
	}
	if cfg.Server.ManagementEnabled() {
		mgmtJoinCountAddr = addr.ManagementConnectAddr(cfg.Server.MgmtIP, "/join-count")
		mgmtPushAddr = addr.ManagementPushAddr(cfg.Server.MgmtIP)
	}

	n := &Node{
		log:  logging.CreateLogger("node"),
		errs: make(chan error, cfg.ThreadCount()),
	}

	threads := cfg.ThreadCount()
	for tid := 0; tid < threads; tid++ {
		wcfg := worker.Config{
			Self: addr.ServerThread{
				Tier:      cfg.SelfTier,
				PublicIP:  cfg.Server.PublicIP,
				PrivateIP: cfg.Server.PrivateIP,
				Tid:       uint32(tid),
			},
			TierThreads:             tierThreads,
			TierDefaults:            tierDefaults,
			LocalReplication:        cfg.LocalReplication,
			DataDir:                 cfg.DataDir,
			Codec:                   codec,
			SeedAddr:                seedAddr,
			ManagementJoinCountAddr: mgmtJoinCountAddr,
			ManagementPushAddr:      mgmtPushAddr,
			RoutingAddrs:            cfg.Server.Routing,
			MonitoringAddrs:         cfg.Server.Monitoring,
		}

		w, err := worker.New(wcfg)
		if err != nil {
			_ = n.Close()
			return nil, fmt.Errorf("node: constructing thread %d: %w", tid, err)
		}
		n.workers = append(n.workers, w)
	}

	for _, w := range n.workers {
		w := w
		go func() {
			n.errs <- w.Run()
		}()
	}

	if threads > 0 {
		srv, err := n.workers[0].ServeSeed(addr.SeedBindAddr(cfg.Server.PrivateIP))
		if err != nil {
			n.log.Warningf("seed responder not started: %v", err)
		} else {
			n.seed = srv
		}
	}

	go telemetry.RunMetricsServer(cfg.Server.PrivateIP)

	n.log.Infof("node started: tier=%s threads=%d", cfg.SelfTier, threads)
	return n, nil
}

// Wait blocks until any worker's event loop returns an error, or until
// every worker exits cleanly (e.g. all self-departed).
func (n *Node) Wait() error {
	remaining := len(n.workers)
	for remaining > 0 {
		err, ok := <-n.errs
		if !ok {
			return nil
		}
		if err != nil {
			return err
		}
		remaining--
	}
	return nil
}

// Close requests every worker to stop and releases the seed responder.
func (n *Node) Close() error {
	if n.seed != nil {
		_ = n.seed.Close()
	}
	var firstErr error
	for _, w := range n.workers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
