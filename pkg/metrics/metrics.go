// Package metrics provides Prometheus metrics export for bit.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bit"

var (
	enabled         bool
	enabledMutex    sync.RWMutex
	defaultRegistry *Registry
)

// Init enables metrics and creates the default registry.
func Init() {
	enabledMutex.Lock()
	defer enabledMutex.Unlock()
	enabled = true
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry()
	}
}

// Enabled returns true if metrics are enabled.
func Enabled() bool {
	enabledMutex.RLock()
	defer enabledMutex.RUnlock()
	return enabled
}

// Default returns the default metrics registry.
func Default() *Registry {
	enabledMutex.RLock()
	r := defaultRegistry
	enabledMutex.RUnlock()
	if r == nil {
		Init()
		return Default()
	}
	return r
}

// Registry holds all bit metrics on a private Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	commits          prometheus.Counter
	committedActions prometheus.Counter
	pulls            *prometheus.CounterVec
	pulledCommits    prometheus.Counter
	pushes           *prometheus.CounterVec
	merges           *prometheus.CounterVec
	conflicts        *prometheus.CounterVec
	integrity        *prometheus.CounterVec
	syncDuration     *prometheus.HistogramVec
	remoteHead       prometheus.Gauge
}

// NewRegistry creates a new metrics registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "commits_total",
			Help: "Local commits created.",
		}),
		committedActions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "committed_actions_total",
			Help: "Actions bundled into local commits.",
		}),
		pulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pulls_total",
			Help: "Pull operations by outcome.",
		}, []string{"outcome"}),
		pulledCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pulled_commits_total",
			Help: "Remote commits applied by pulls.",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pushes_total",
			Help: "Pushed commits by outcome.",
		}, []string{"outcome"}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "server_merges_total",
			Help: "Push requests handled by the server, by outcome.",
		}, []string{"outcome"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "document_conflicts_total",
			Help: "Documents that turned to conflict status.",
		}, []string{"storage_id"}),
		integrity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "integrity_failures_total",
			Help: "Rejected objects with invalid signatures or broken chains.",
		}, []string{"kind"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sync_duration_seconds",
			Help:    "Duration of pull, push and merge operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		remoteHead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "remote_commits",
			Help: "Commits in the remote log known to this repository.",
		}),
	}
	r.reg.MustRegister(r.commits, r.committedActions, r.pulls, r.pulledCommits,
		r.pushes, r.merges, r.conflicts, r.integrity, r.syncDuration, r.remoteHead)
	return r
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordCommit records a local commit of n actions.
func (r *Registry) RecordCommit(n int) {
	r.commits.Inc()
	r.committedActions.Add(float64(n))
}

// RecordPull records a pull that applied n commits.
func (r *Registry) RecordPull(n int, duration time.Duration, err error) {
	r.pulls.WithLabelValues(outcome(err)).Inc()
	r.pulledCommits.Add(float64(n))
	r.syncDuration.WithLabelValues("pull").Observe(duration.Seconds())
}

// RecordPush records one pushed commit. result is "accepted", "stale" or "error".
func (r *Registry) RecordPush(result string, duration time.Duration) {
	r.pushes.WithLabelValues(result).Inc()
	r.syncDuration.WithLabelValues("push").Observe(duration.Seconds())
}

// RecordMerge records a push request handled by the server.
func (r *Registry) RecordMerge(result string, duration time.Duration) {
	r.merges.WithLabelValues(result).Inc()
	r.syncDuration.WithLabelValues("merge").Observe(duration.Seconds())
}

// RecordConflict records a document turning to conflict.
func (r *Registry) RecordConflict(storageID string) {
	r.conflicts.WithLabelValues(storageID).Inc()
}

// RecordIntegrityFailure records a rejected object.
func (r *Registry) RecordIntegrityFailure(kind string) {
	r.integrity.WithLabelValues(kind).Inc()
}

// SetRemoteCommits sets the size of the known remote log.
func (r *Registry) SetRemoteCommits(n int) {
	r.remoteHead.Set(float64(n))
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
