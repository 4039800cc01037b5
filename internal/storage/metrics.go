package storage

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks engine activity. Prometheus collectors are always
// registered so /metrics serves a stable set of series; counting is active
// only when enabled (DEBUG_MODE), matching the engine's contract.
type Metrics struct {
	enabled bool

	l1Hits  prometheus.Counter
	l2Hits  prometheus.Counter
	l3Hits  prometheus.Counter
	misses  prometheus.Counter
	writes  prometheus.Counter
	deletes prometheus.Counter
	l1Size  prometheus.Gauge

	// Shadow counters back the JSON stats endpoint without scraping.
	nL1Hits  atomic.Int64
	nL2Hits  atomic.Int64
	nL3Hits  atomic.Int64
	nMisses  atomic.Int64
	nWrites  atomic.Int64
	nDeletes atomic.Int64
}

// Stats is a point-in-time snapshot of engine metrics.
type Stats struct {
	L1Hits        int64   `json:"l1_hits"`
	L2Hits        int64   `json:"l2_hits"`
	L3Hits        int64   `json:"l3_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	Writes        int64   `json:"writes"`
	Deletes       int64   `json:"deletes"`
	L1MemorySize  int     `json:"l1_memory_size"`
	CacheHitRatio float64 `json:"cache_hit_ratio"`
}

// NewMetrics registers the engine collectors on reg. Pass a private
// registry in tests.
func NewMetrics(reg prometheus.Registerer, enabled bool) *Metrics {
	m := &Metrics{
		enabled: enabled,
		l1Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketbridge", Subsystem: "storage", Name: "l1_hits_total",
			Help: "Reads served by the in-memory tier.",
		}),
		l2Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketbridge", Subsystem: "storage", Name: "l2_hits_total",
			Help: "Reads served by the redis tier.",
		}),
		l3Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketbridge", Subsystem: "storage", Name: "l3_hits_total",
			Help: "Reads served by the durable tier.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketbridge", Subsystem: "storage", Name: "misses_total",
			Help: "Reads that found no tier holding the key.",
		}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketbridge", Subsystem: "storage", Name: "writes_total",
			Help: "Write-through operations.",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticketbridge", Subsystem: "storage", Name: "deletes_total",
			Help: "Delete operations.",
		}),
		l1Size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ticketbridge", Subsystem: "storage", Name: "l1_entries",
			Help: "Entries currently held by the in-memory tier.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.l1Hits, m.l2Hits, m.l3Hits, m.misses, m.writes, m.deletes, m.l1Size)
	}
	return m
}

func (m *Metrics) hit(layer Layer) {
	if m == nil || !m.enabled {
		return
	}
	switch layer {
	case LayerMemory:
		m.l1Hits.Inc()
		m.nL1Hits.Add(1)
	case LayerRedis:
		m.l2Hits.Inc()
		m.nL2Hits.Add(1)
	case LayerPostgres:
		m.l3Hits.Inc()
		m.nL3Hits.Add(1)
	}
}

func (m *Metrics) miss() {
	if m == nil || !m.enabled {
		return
	}
	m.misses.Inc()
	m.nMisses.Add(1)
}

func (m *Metrics) write() {
	if m == nil || !m.enabled {
		return
	}
	m.writes.Inc()
	m.nWrites.Add(1)
}

func (m *Metrics) delete() {
	if m == nil || !m.enabled {
		return
	}
	m.deletes.Inc()
	m.nDeletes.Add(1)
}

func (m *Metrics) setL1Size(n int) {
	if m == nil {
		return
	}
	m.l1Size.Set(float64(n))
}

// Snapshot returns current counters plus the derived hit ratio, expressed
// as a percentage of reads served by a cache tier.
func (m *Metrics) Snapshot(l1Size int) Stats {
	if m == nil {
		return Stats{L1MemorySize: l1Size}
	}
	s := Stats{
		L1Hits:       m.nL1Hits.Load(),
		L2Hits:       m.nL2Hits.Load(),
		L3Hits:       m.nL3Hits.Load(),
		CacheMisses:  m.nMisses.Load(),
		Writes:       m.nWrites.Load(),
		Deletes:      m.nDeletes.Load(),
		L1MemorySize: l1Size,
	}
	// A durable read counts as a hit: the key was found, just not by a
	// cache tier. Only reads that found nothing anywhere are misses.
	hits := s.L1Hits + s.L2Hits + s.L3Hits
	if total := hits + s.CacheMisses; total > 0 {
		s.CacheHitRatio = float64(hits) / float64(total) * 100
	}
	return s
}
