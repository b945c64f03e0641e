// Package worker implements §4.E–J: the per-thread event loop that owns
// one shard of the key space. Every piece of state in a Worker is
// touched by exactly one goroutine — its own Run loop — so nothing here
// takes a lock; siblings (other threads, other nodes) are addressed as
// peers over the transport package, never through shared memory. This
// mirrors the teacher's own "one goroutine, no shared state" shard
// convention, generalized from a single Store to a full gossiping
// worker.
package worker

import (
	"math/rand"
	"time"

	"github.com/driftkv/driftkv/internal/addr"
	"github.com/driftkv/driftkv/internal/lattice"
	"github.com/driftkv/driftkv/internal/logging"
	"github.com/driftkv/driftkv/internal/replication"
	"github.com/driftkv/driftkv/internal/ring"
	"github.com/driftkv/driftkv/internal/storage"
	"github.com/driftkv/driftkv/internal/storage/diskserializer"
	"github.com/driftkv/driftkv/internal/storage/memserializer"
	"github.com/driftkv/driftkv/internal/telemetry"
	"github.com/driftkv/driftkv/internal/transport"
	"github.com/driftkv/driftkv/internal/wire"
)

// allLatticeTypes is the closed set of six kinds known at compile time
// (§9: "avoid virtual-dispatch hierarchies; a closed set of six lattice
// kinds is known at compile time").
var allLatticeTypes = []lattice.Type{
	lattice.LWW, lattice.SET, lattice.OrderedSet,
	lattice.SingleCausal, lattice.MultiCausal, lattice.Priority,
}

// allTiers is the closed set of storage tiers this module implements.
var allTiers = []addr.Tier{addr.TierMemory, addr.TierDisk}

// Config is the configuration handed to a worker at construction — per
// §9's "runtime constants should be an immutable configuration value
// passed into each worker at construction, not process-wide mutable
// state". The one field changed afterward is Self.JoinEpoch, which
// bootstrap fills in from the management collaborator.
type Config struct {
	Self addr.ServerThread

	TierThreads    map[addr.Tier]int
	TierDefaults   map[addr.Tier]replication.Factor // global/local replication defaults per tier
	LocalReplication int                             // applied as every tier's local default when TierDefaults omits one

	DataDir string
	Codec   wire.Codec

	SeedAddr                string // http://host:port/seed, blocking request/reply, bootstrap-only
	ManagementJoinCountAddr string // http://host:port/join-count, blocking request/reply, bootstrap-only
	ManagementPushAddr      string // tcp:// or unix://, fire-and-forget PUSH; reply lands on PurposeManagementResponse
	RoutingAddrs            []string
	MonitoringAddrs         []string

	GossipPeriod           time.Duration
	ReportPeriod           time.Duration
	KeyMonitoringWindow    time.Duration
	RedistributeThreshold  int
}

func (c Config) withDefaults() Config {
	if c.GossipPeriod <= 0 {
		c.GossipPeriod = 100 * time.Millisecond
	}
	if c.ReportPeriod <= 0 {
		c.ReportPeriod = 15 * time.Second // kServerReportThreshold
	}
	if c.KeyMonitoringWindow <= 0 {
		c.KeyMonitoringWindow = 60 * time.Second // kKeyMonitoringThreshold
	}
	if c.RedistributeThreshold <= 0 {
		c.RedistributeThreshold = 50 // DATA_REDISTRIBUTE_THRESHOLD
	}
	return c
}

type pendingOp struct {
	RequestID    string
	ReplyAddress string
	Op           wire.KeyOp
	LatticeType  lattice.Type
	Payload      []byte
}

type pendingGossipItem struct {
	LatticeType lattice.Type
	Payload     []byte
}

// Worker is one server thread: its rings, its replication knowledge, its
// storage, and its event loop.
type Worker struct {
	cfg Config
	log logging.ILogger

	globalRings map[addr.Tier]*ring.GlobalHashRing
	localRings  map[addr.Tier]*ring.LocalHashRing
	repl        *replication.Map

	serializers  map[lattice.Type]storage.Serializer
	storedKeys   map[string]storage.KeyProperty

	pendingRequests map[string][]pendingOp
	pendingGossip   map[string][]pendingGossipItem
	localChangeset  map[string]struct{}

	keyAccess   map[string][]time.Time
	accessCount uint64

	cacheIPToKeys map[string]map[string]struct{}
	keyToCacheIPs map[string]map[string]struct{}
	extantCaches  map[string]struct{}
	cacheRid      uint64

	joinGossipMap  map[string]map[string]struct{} // dest address -> keys pending shipment
	joinRemoveSet  map[string]struct{}
	seenJoinEpochs map[string]uint64 // private IP -> highest join_epoch thread 0 has rebroadcast

	pullers map[addr.Purpose]*transport.Puller   // unix-domain, same-node traffic
	tcpPullers map[addr.Purpose]*transport.Puller // tcp, cross-node traffic
	inbound map[addr.Purpose]chan *wire.Envelope  // fan-in of the two above, what Run selects on
	pusher  *transport.Pusher
	req     *transport.ReqClient

	rnd      *rand.Rand
	reporter *telemetry.Reporter

	seedRequests chan seedQuery

	workingTime          time.Duration
	workingTimeByPurpose map[addr.Purpose]time.Duration
	epoch                uint64
	reportStart          time.Time

	closing chan struct{}
}

// New constructs a Worker for cfg.Self and opens its own-tier
// serializers, but does not bind any sockets or join the cluster; Run
// binds and bootstraps before entering the event loop.
func New(cfg Config) (*Worker, error) {
	cfg = cfg.withDefaults()

	defaults := map[addr.Tier]replication.Factor{}
	for _, t := range allTiers {
		f := cfg.TierDefaults[t]
		if f.Local <= 0 {
			f.Local = cfg.LocalReplication
			if f.Local <= 0 {
				f.Local = 1
			}
		}
		if f.Global <= 0 {
			f.Global = 1
		}
		defaults[t] = f
	}

	w := &Worker{
		cfg:             cfg,
		log:             logging.CreateLogger("worker/" + cfg.Self.String()),
		globalRings:     map[addr.Tier]*ring.GlobalHashRing{},
		localRings:      map[addr.Tier]*ring.LocalHashRing{},
		repl:            replication.NewMap(replication.NewDefaults(defaults)),
		serializers:     map[lattice.Type]storage.Serializer{},
		storedKeys:      map[string]storage.KeyProperty{},
		pendingRequests: map[string][]pendingOp{},
		pendingGossip:   map[string][]pendingGossipItem{},
		localChangeset:  map[string]struct{}{},
		keyAccess:            map[string][]time.Time{},
		workingTimeByPurpose: map[addr.Purpose]time.Duration{},
		cacheIPToKeys:   map[string]map[string]struct{}{},
		keyToCacheIPs:   map[string]map[string]struct{}{},
		extantCaches:    map[string]struct{}{},
		joinGossipMap:   map[string]map[string]struct{}{},
		joinRemoveSet:   map[string]struct{}{},
		seenJoinEpochs:  map[string]uint64{},
		pusher:          transport.NewPusher(cfg.Codec),
		req:             transport.NewReqClient(cfg.Codec),
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano() + int64(cfg.Self.Tid))),
		reporter:        telemetry.NewReporter(string(cfg.Self.Tier) + "-" + itoa(cfg.Self.Tid)),
		pullers:         map[addr.Purpose]*transport.Puller{},
		tcpPullers:      map[addr.Purpose]*transport.Puller{},
		inbound:         map[addr.Purpose]chan *wire.Envelope{},
		seedRequests:    make(chan seedQuery),
		closing:         make(chan struct{}),
		reportStart:     time.Now(),
	}

	for _, t := range allTiers {
		w.globalRings[t] = ring.NewGlobalHashRing()
		w.localRings[t] = ring.NewLocalHashRing()
		for tid := 0; tid < cfg.TierThreads[t]; tid++ {
			w.localRings[t].Insert(addr.ServerThread{Tier: t, Tid: uint32(tid)})
		}
	}

	for _, kind := range allLatticeTypes {
		s, err := w.openSerializer(kind)
		if err != nil {
			return nil, err
		}
		w.serializers[kind] = s
	}

	return w, nil
}

func (w *Worker) openSerializer(kind lattice.Type) (storage.Serializer, error) {
	if w.cfg.Self.Tier == addr.TierDisk {
		return diskserializer.Open(w.cfg.DataDir, w.cfg.Self.Tid, kind)
	}
	return memserializer.New(kind), nil
}

func itoa(tid uint32) string {
	const digits = "0123456789"
	if tid == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for tid > 0 {
		i--
		buf[i] = digits[tid%10]
		tid /= 10
	}
	return string(buf[i:])
}

// bind opens both the Unix-domain (same-node) and TCP (cross-node)
// puller for every purpose this thread listens on, fanning both into one
// channel per purpose so the event loop selects on a single case.
func (w *Worker) bind() error {
	for _, p := range addr.InboundPurposes() {
		unixPuller, err := transport.Listen(addr.BindAddressUnix(w.cfg.Self.PrivateIP, w.cfg.Self.Tid, p), w.cfg.Codec)
		if err != nil {
			return err
		}
		tcpPuller, err := transport.Listen(addr.BindAddressTCP(w.cfg.Self.PrivateIP, w.cfg.Self.Tid, p), w.cfg.Codec)
		if err != nil {
			return err
		}
		w.pullers[p] = unixPuller
		w.tcpPullers[p] = tcpPuller

		ch := make(chan *wire.Envelope)
		w.inbound[p] = ch
		go fanIn(ch, unixPuller.Recv(), tcpPuller.Recv())
	}
	return nil
}

// fanIn relays every envelope arriving on either source channel onto
// dst, letting a thread listen on two transports while presenting the
// event loop with exactly one receive case per purpose.
func fanIn(dst chan<- *wire.Envelope, a, b <-chan *wire.Envelope) {
	for a != nil || b != nil {
		select {
		case env, ok := <-a:
			if !ok {
				a = nil
				continue
			}
			dst <- env
		case env, ok := <-b:
			if !ok {
				b = nil
				continue
			}
			dst <- env
		}
	}
	close(dst)
}

func (w *Worker) send(target addr.ServerThread, p addr.Purpose, env wire.Envelope) {
	to := addr.ConnectAddress(w.cfg.Self.PrivateIP, target, p)
	if err := w.pusher.Send(to, env); err != nil {
		w.log.Warningf("send to %s (%s) failed: %v", target, p, err)
	}
}

func (w *Worker) sendAddr(rawAddr string, env wire.Envelope) {
	if rawAddr == "" {
		return
	}
	if err := w.pusher.Send(rawAddr, env); err != nil {
		w.log.Warningf("send to %s failed: %v", rawAddr, err)
	}
}

// Run executes the worker's single-threaded event loop until Close is
// called or a self-depart has been handled. It multiplexes every inbound purpose plus the gossip and
// report tickers through one select, per §5: "the only blocking call is
// the multiplexed poll over the nine inbound queues".
func (w *Worker) Run() error {
	if err := w.bind(); err != nil {
		return err
	}
	if err := w.bootstrap(); err != nil {
		return err
	}

	gossipTicker := time.NewTicker(w.cfg.GossipPeriod)
	reportTicker := time.NewTicker(w.cfg.ReportPeriod)
	defer gossipTicker.Stop()
	defer reportTicker.Stop()

	join := w.inbound[addr.PurposeJoin]
	depart := w.inbound[addr.PurposeDepart]
	selfDepart := w.inbound[addr.PurposeSelfDepart]
	request := w.inbound[addr.PurposeRequest]
	gossip := w.inbound[addr.PurposeGossip]
	replResp := w.inbound[addr.PurposeReplicationResponse]
	replChange := w.inbound[addr.PurposeReplicationChange]
	cacheResp := w.inbound[addr.PurposeCacheIPResponse]
	mgmtResp := w.inbound[addr.PurposeManagementResponse]

	for {
		select {
		case env := <-join:
			w.handleJoin(env)
		case env := <-depart:
			w.handleDepart(env)
		case env := <-selfDepart:
			w.handleSelfDepart(env)
			return nil
		case env := <-request:
			w.handleKeyRequestEnvelope(env)
		case env := <-gossip:
			w.handleGossipEnvelope(env)
		case env := <-replResp:
			w.handleReplicationResponse(env)
		case env := <-replChange:
			w.handleReplicationChange(env)
		case env := <-cacheResp:
			w.handleCacheIPReport(env)
		case env := <-mgmtResp:
			w.handleManagementResponse(env)
		case q := <-w.seedRequests:
			w.handleSeedQuery(q)
		case <-gossipTicker.C:
			w.tickGossip()
			w.drainRedistribution()
		case <-reportTicker.C:
			w.tickReport()
		case <-w.closing:
			return nil
		}
	}
}

// Close requests the event loop exit without going through the
// self-depart protocol (used for process shutdown, not cluster leave).
func (w *Worker) Close() error {
	close(w.closing)
	for _, p := range w.pullers {
		_ = p.Close()
	}
	for _, p := range w.tcpPullers {
		_ = p.Close()
	}
	w.pusher.Close()
	w.req.Close()
	var firstErr error
	for _, s := range w.serializers {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// recordDuration feeds one handler's service time into the aggregate
// occupancy accumulator (§4.J: occupancy = sum(working_time)/duration),
// into the telemetry reporter's EWMA rate, and into purpose's own slot
// of workingTimeByPurpose, the per-pollitem occupancy breakdown the
// epoch report logs alongside the aggregate figure.
func (w *Worker) recordDuration(p addr.Purpose, d time.Duration) {
	w.workingTime += d
	w.workingTimeByPurpose[p] += d
	w.reporter.RecordRequest(d)
}
