package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BioHazard786/Rendezvous/internal/matching"
)

// Metrics holds the matchmaking collectors on a private registry.
type Metrics struct {
	mu          sync.Mutex
	lastMatches uint64

	registry    *prometheus.Registry
	connected   prometheus.Gauge
	waiting     prometheus.Gauge
	paired      prometheus.Gauge
	matches     prometheus.Counter
	rematches   prometheus.Counter
	disconnects prometheus.Counter
	relayed     *prometheus.CounterVec
	relayErrors *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	connected := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "clients_connected", Help: "Registered client sessions."})
	waiting := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "clients_waiting", Help: "Clients in the waiting pool."})
	paired := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "clients_paired", Help: "Clients with a live partner."})
	r.MustRegister(connected, waiting, paired)

	matches := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "matches_total", Help: "Pairs formed."})
	rematches := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rematches_total", Help: "Next-partner requests that split a pair."})
	disconnects := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "disconnects_total", Help: "Client connections closed."})
	r.MustRegister(matches, rematches, disconnects)

	relayed := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "relayed_total", Help: "Payloads relayed between partners."}, []string{"kind"})
	relayErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "relay_errors_total", Help: "Rejected or undeliverable relays."}, []string{"kind", "reason"})
	r.MustRegister(relayed, relayErrors)

	return &Metrics{
		registry:    r,
		connected:   connected,
		waiting:     waiting,
		paired:      paired,
		matches:     matches,
		rematches:   rematches,
		disconnects: disconnects,
		relayed:     relayed,
		relayErrors: relayErrors,
	}
}

// Observe sets the gauges from an engine snapshot and advances the match
// counter by however many pairs formed since the previous snapshot.
func (m *Metrics) Observe(s matching.Stats) {
	m.connected.Set(float64(s.Connected))
	m.waiting.Set(float64(s.Waiting))
	m.paired.Set(float64(s.Paired))

	m.mu.Lock()
	if s.Matches > m.lastMatches {
		m.matches.Add(float64(s.Matches - m.lastMatches))
		m.lastMatches = s.Matches
	}
	m.mu.Unlock()
}

func (m *Metrics) Rematched() {
	m.rematches.Inc()
}

func (m *Metrics) Disconnected() {
	m.disconnects.Inc()
}

func (m *Metrics) Relayed(kind matching.Kind) {
	m.relayed.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) RelayFailed(kind matching.Kind, reason string) {
	m.relayErrors.WithLabelValues(string(kind), reason).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
