// Package metrics exposes Prometheus counters for sessions, mints and
// collection refreshes.
package metrics

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nftmint/internal/mint"
	"nftmint/internal/nft"
)

type Registry struct {
	registry         *prometheus.Registry
	connectsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	failuresTotal    *prometheus.CounterVec
	refreshesTotal   *prometheus.CounterVec
	connected        prometheus.Gauge
}

func NewRegistry() *Registry {
	connects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmint_connect_attempts_total",
		Help: "Wallet connect attempts by outcome",
	}, []string{"result"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmint_mint_transitions_total",
		Help: "Mint job state transitions",
	}, []string{"state"})

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmint_mint_failures_total",
		Help: "Failed mint jobs by cause",
	}, []string{"cause"})

	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nftmint_collection_refreshes_total",
		Help: "Collection refreshes by outcome",
	}, []string{"result"})

	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nftmint_session_connected",
		Help: "1 while a wallet session is connected",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(connects, transitions, failures, refreshes, connected)

	return &Registry{
		registry:         r,
		connectsTotal:    connects,
		transitionsTotal: transitions,
		failuresTotal:    failures,
		refreshesTotal:   refreshes,
		connected:        connected,
	}
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Registry) IncConnect(result string) {
	m.connectsTotal.WithLabelValues(result).Inc()
}

func (m *Registry) IncRefresh(result string) {
	m.refreshesTotal.WithLabelValues(result).Inc()
}

// Transition implements mint.Observer.
func (m *Registry) Transition(job mint.Job) {
	m.transitionsTotal.WithLabelValues(job.State.String()).Inc()
	if job.State == mint.Failed {
		m.failuresTotal.WithLabelValues(string(job.Cause)).Inc()
	}
}

// Connected implements session.Listener.
func (m *Registry) Connected(*nft.Handle, common.Address) {
	m.connected.Set(1)
}

// Disconnected implements session.Listener.
func (m *Registry) Disconnected() {
	m.connected.Set(0)
}
