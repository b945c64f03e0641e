package telemetry

import (
	"fmt"
	"net/http"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/VictoriaMetrics/metrics"

	"github.com/driftkv/driftkv/internal/logging"
)

// Reporter tracks one worker thread's telemetry state between epoch
// reports (§4.J): storage consumption, per-key access counts, and a
// working-time meter used to answer "how busy is this thread" without
// a dedicated sampling goroutine.
//
// A VictoriaMetrics registry backs the outward Prometheus-style
// /metrics surface a monitoring collaborator scrapes directly; a
// go-metrics registry backs the EWMA-smoothed internal timer and meters
// exposed on /metrics/internal, whose working-time rate the epoch
// reporter logs alongside its occupancy figure. The two libraries serve different consumers of the same
// numbers, which is why both earn a place here instead of just one.
type Reporter struct {
	workingTime  gometrics.Timer
	keyAccess    gometrics.Registry
	requestCount *metrics.Counter
	gossipCount  *metrics.Counter

	sizeHist *SizeHistogram

	startedAt time.Time
}

// NewReporter builds a Reporter for one worker thread, identified by
// threadLabel in the outward metrics (e.g. "MEMORY-3"). Its VictoriaMetrics
// counters register into the process-wide default set Handler exposes on
// /metrics; its go-metrics timer and per-key meters register into
// gometrics.DefaultRegistry under a threadLabel-prefixed name so
// InternalHandler can walk the same instances this Reporter updates,
// instead of a private registry nothing ever reads back.
func NewReporter(threadLabel string) *Reporter {
	return &Reporter{
		workingTime:  gometrics.GetOrRegisterTimer("driftkv.working_time."+threadLabel, gometrics.DefaultRegistry),
		keyAccess:    gometrics.NewPrefixedChildRegistry(gometrics.DefaultRegistry, "driftkv.key_access."+threadLabel+"."),
		requestCount: metrics.GetOrCreateCounter(`driftkv_requests_total{thread="` + threadLabel + `"}`),
		gossipCount:  metrics.GetOrCreateCounter(`driftkv_gossip_messages_total{thread="` + threadLabel + `"}`),
		sizeHist:     NewSizeHistogram(),
		startedAt:    time.Now(),
	}
}

// RecordRequest accounts for one handled inbound message (of any
// purpose) taking d to service, feeding both the outward counter and
// the EWMA-smoothed working-time timer.
func (r *Reporter) RecordRequest(d time.Duration) {
	r.requestCount.Inc()
	r.workingTime.Update(d)
}

// RecordGossipSent accounts for one outbound gossip round.
func (r *Reporter) RecordGossipSent() {
	r.gossipCount.Inc()
}

// RecordKeyAccess marks key's access meter, creating it on first use.
// The meter's Count() is cumulative until the meter is dropped; the
// kKeyMonitoringThreshold purge in the worker's reporter calls
// ForgetKey once a key falls out of the monitored set.
func (r *Reporter) RecordKeyAccess(key string) {
	gometrics.GetOrRegisterMeter(key, r.keyAccess).Mark(1)
}

// KeyAccessCount returns key's access count since it started being
// monitored, or 0 if it isn't being tracked.
func (r *Reporter) KeyAccessCount(key string) int64 {
	m := r.keyAccess.Get(key)
	if m == nil {
		return 0
	}
	meter, ok := m.(gometrics.Meter)
	if !ok {
		return 0
	}
	return meter.Count()
}

// ForgetKey drops key's access meter, called once it ages out of the
// kKeyMonitoringThreshold window.
func (r *Reporter) ForgetKey(key string) {
	r.keyAccess.Unregister(key)
}

// RecordKeySize folds size into the storage-consumption estimator that
// backs §4.J's storage_consumption_kb report.
func (r *Reporter) RecordKeySize(size int) {
	r.sizeHist.AddSample(size)
}

// StorageConsumptionKB reports the running estimate of this thread's
// storage footprint in kilobytes.
func (r *Reporter) StorageConsumptionKB() int64 {
	return int64(r.sizeHist.AverageSize()) * r.sizeHist.GetCount() / 1024
}

// WorkingTimeRate1 returns the one-minute EWMA rate of recorded
// handler events, in events per second. §4.J's occupancy field is
// computed separately from the worker's accumulated working time.
func (r *Reporter) WorkingTimeRate1() float64 {
	return r.workingTime.Rate1()
}

// Uptime reports how long this Reporter has been accumulating samples.
func (r *Reporter) Uptime() time.Duration {
	return time.Since(r.startedAt)
}

// Handler returns the http.Handler a node mounts at /metrics so an
// external monitoring collaborator can scrape this process directly,
// independent of the metadata-PUT based reporting §4.J also performs.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		metrics.WritePrometheus(w, true)
	})
}

// InternalHandler exposes the go-metrics DefaultRegistry every Reporter's
// workingTime timer and keyAccess meters register into, as JSON. Mounted
// alongside Handler so these EWMA-smoothed figures are visible to an
// operator.
func InternalHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		gometrics.WriteJSONOnce(gometrics.DefaultRegistry, w)
	})
}

// MetricsPort is the fixed port the /metrics endpoint listens on,
// independent of any per-purpose worker port block.
const MetricsPort = 9100

// RunMetricsServer blocks serving /metrics on bindIP:MetricsPort. Errors
// (most commonly the port already being bound by another process on the
// same host during local multi-node testing) are non-fatal: the node
// keeps running without an outward scrape endpoint.
func RunMetricsServer(bindIP string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.Handle("/metrics/internal", InternalHandler())
	addr := fmt.Sprintf("%s:%d", bindIP, MetricsPort)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.CreateLogger("telemetry").Warningf("metrics server on %s: %v", addr, err)
	}
}
