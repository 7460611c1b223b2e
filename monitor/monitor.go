// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlineSessions    prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	MessagesReceived  prometheus.Counter
	MessageLatency    prometheus.Histogram
	CommandsRejected  *prometheus.CounterVec
	OutboundCoalesced prometheus.Counter
	OutboundBytes     prometheus.Counter
	Ticks             prometheus.Counter
}

// NewMetrics registers every collector on reg, so several monitors (and
// tests) can coexist in one process.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlineSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_sessions",
			Help:      "Number of connected sessions",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of active rooms",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		CommandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Rejected client commands by error code",
		}, []string{"code"}),
		OutboundCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_coalesced_total",
			Help:      "State frames dropped or merged before sending",
		}),
		OutboundBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_bytes_total",
			Help:      "Bytes written to client sockets",
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Simulation ticks processed",
		}),
	}

	reg.MustRegister(
		m.OnlineSessions,
		m.ActiveRooms,
		m.MessagesReceived,
		m.MessageLatency,
		m.CommandsRejected,
		m.OutboundCoalesced,
		m.OutboundBytes,
		m.Ticks,
	)

	return m
}

// Monitor wraps the metrics. A nil *Monitor records nothing.
type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
	}
}

// Registry exposes the registry for scraping in tests.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves /metrics and /debug/vars.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

var publishOnce sync.Once

func (m *Monitor) StartServer(addr string) *http.Server {
	// 添加expvar指标
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})

	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	go srv.ListenAndServe()
	return srv
}

func (m *Monitor) IncOnlineSessions() {
	if m == nil {
		return
	}
	m.metrics.OnlineSessions.Inc()
}

func (m *Monitor) DecOnlineSessions() {
	if m == nil {
		return
	}
	m.metrics.OnlineSessions.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	if m == nil {
		return
	}
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived() {
	if m == nil {
		return
	}
	m.metrics.MessagesReceived.Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

func (m *Monitor) IncRejected(code string) {
	if m == nil {
		return
	}
	m.metrics.CommandsRejected.WithLabelValues(code).Inc()
}

func (m *Monitor) IncCoalesced() {
	if m == nil {
		return
	}
	m.metrics.OutboundCoalesced.Inc()
}

func (m *Monitor) AddOutboundBytes(n int) {
	if m == nil {
		return
	}
	m.metrics.OutboundBytes.Add(float64(n))
}

func (m *Monitor) IncTicks() {
	if m == nil {
		return
	}
	m.metrics.Ticks.Inc()
}
