package discovery

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for one discovery instance.
// Uses an isolated prometheus.Registry so metrics from concurrently
// running instances (as in tests) don't collide on the global default
// registry. Every method is nil-safe: calling any method on a nil
// *Metrics is a no-op, so callers never branch on whether metrics are
// enabled.
type Metrics struct {
	Registry *prometheus.Registry

	AnnouncesTotal    *prometheus.CounterVec
	UnannouncesTotal  prometheus.Counter
	LookupsTotal      *prometheus.CounterVec
	TokensIssuedTotal prometheus.Counter
	TokensRejectedTotal prometheus.Counter
	PushesSentTotal   *prometheus.CounterVec
	WhoamiTotal       *prometheus.CounterVec
	MDNSDiscoveredTotal *prometheus.CounterVec
	PeerStoreSize     prometheus.Gauge
	SubscriptionCount prometheus.Gauge
	BuildInfo         *prometheus.GaugeVec
}

// NewMetrics creates a Metrics instance with every collector registered
// on a fresh, isolated registry.
func NewMetrics(version, goVersion string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		AnnouncesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddisc_announces_total",
				Help: "Total announce outcomes by result.",
			},
			[]string{"result"},
		),
		UnannouncesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ddisc_unannounces_total",
				Help: "Total unannounce operations processed.",
			},
		),
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddisc_lookups_total",
				Help: "Total lookup outcomes by result.",
			},
			[]string{"result"},
		),
		TokensIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ddisc_tokens_issued_total",
				Help: "Total tokens issued in response to probes.",
			},
		),
		TokensRejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ddisc_tokens_rejected_total",
				Help: "Total announce/unannounce/lookup payloads rejected for a bad token.",
			},
		),
		PushesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddisc_pushes_sent_total",
				Help: "Total push notifications sent to subscribers by result.",
			},
			[]string{"result"},
		),
		WhoamiTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddisc_whoami_total",
				Help: "Total whoami outcomes by result.",
			},
			[]string{"result"},
		),
		MDNSDiscoveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddisc_mdns_discovered_total",
				Help: "Total mDNS discovery events by result.",
			},
			[]string{"result"},
		),
		PeerStoreSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ddisc_peer_store_size",
				Help: "Current total peer count across all topics in the main store.",
			},
		),
		SubscriptionCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ddisc_subscription_count",
				Help: "Current total subscriber count across all topics.",
			},
		),
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ddisc_info",
				Help: "Build information for the running instance.",
			},
			[]string{"version", "go_version"},
		),
	}

	reg.MustRegister(
		m.AnnouncesTotal,
		m.UnannouncesTotal,
		m.LookupsTotal,
		m.TokensIssuedTotal,
		m.TokensRejectedTotal,
		m.PushesSentTotal,
		m.WhoamiTotal,
		m.MDNSDiscoveredTotal,
		m.PeerStoreSize,
		m.SubscriptionCount,
		m.BuildInfo,
	)
	m.BuildInfo.WithLabelValues(version, goVersion).Set(1)

	return m
}

// Handler returns an http.Handler serving this instance's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncAnnounce(result string) {
	if m == nil {
		return
	}
	m.AnnouncesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncUnannounce() {
	if m == nil {
		return
	}
	m.UnannouncesTotal.Inc()
}

func (m *Metrics) IncLookup(result string) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncTokenIssued() {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.Inc()
}

func (m *Metrics) IncTokenRejected() {
	if m == nil {
		return
	}
	m.TokensRejectedTotal.Inc()
}

func (m *Metrics) IncPush(result string) {
	if m == nil {
		return
	}
	m.PushesSentTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncWhoami(result string) {
	if m == nil {
		return
	}
	m.WhoamiTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncMDNSDiscovered(result string) {
	if m == nil {
		return
	}
	m.MDNSDiscoveredTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPeerStoreSize(n int) {
	if m == nil {
		return
	}
	m.PeerStoreSize.Set(float64(n))
}

func (m *Metrics) SetSubscriptionCount(n int) {
	if m == nil {
		return
	}
	m.SubscriptionCount.Set(float64(n))
}
