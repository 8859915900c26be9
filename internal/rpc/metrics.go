package rpc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// nodeMetrics holds the Prometheus collectors exposed on /metrics. Gauges are
// refreshed on each scrape from live chain/mempool/peer state rather than
// updated at the call sites, so they can never drift from the values the
// corresponding JSON-RPC methods report.
type nodeMetrics struct {
	registry     *prometheus.Registry
	chainHeight  prometheus.GaugeFunc
	mempoolSize  prometheus.GaugeFunc
	mempoolBytes prometheus.GaugeFunc
	peerCount    prometheus.GaugeFunc
}

// newNodeMetrics builds and registers the node's metric collectors. chain,
// pool, and p2pNode may be nil (e.g. in tests that don't wire them), in which
// case the corresponding gauge reports 0.
func newNodeMetrics(s *Server) *nodeMetrics {
	m := &nodeMetrics{registry: prometheus.NewRegistry()}

	m.chainHeight = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tsengcoin",
		Subsystem: "chain",
		Name:      "height",
		Help:      "Current best chain height.",
	}, func() float64 {
		if s.chain == nil {
			return 0
		}
		return float64(s.chain.Height())
	})

	m.mempoolSize = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tsengcoin",
		Subsystem: "mempool",
		Name:      "transactions",
		Help:      "Number of transactions currently held in the mempool.",
	}, func() float64 {
		if s.pool == nil {
			return 0
		}
		return float64(s.pool.Count())
	})

	m.mempoolBytes = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tsengcoin",
		Subsystem: "mempool",
		Name:      "orphans",
		Help:      "Number of orphan transactions awaiting their missing inputs.",
	}, func() float64 {
		if s.pool == nil {
			return 0
		}
		return float64(s.pool.OrphanCount())
	})

	m.peerCount = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tsengcoin",
		Subsystem: "net",
		Name:      "peers",
		Help:      "Number of connected P2P peers.",
	}, func() float64 {
		if s.p2pNode == nil {
			return 0
		}
		return float64(s.p2pNode.PeerCount())
	})

	m.registry.MustRegister(m.chainHeight, m.mempoolSize, m.mempoolBytes, m.peerCount)
	return m
}

// handler returns the HTTP handler to mount at /metrics.
func (m *nodeMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
