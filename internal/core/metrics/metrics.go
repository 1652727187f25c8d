package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// DefaultNamespace 默认指标前缀
const DefaultNamespace = "relay"

// Metrics 指标集合，并发安全
type Metrics struct {
	registry *prometheus.Registry

	connsOpened *prometheus.CounterVec
	connsClosed *prometheus.CounterVec
	connErrors  *prometheus.CounterVec
	connsActive prometheus.Gauge

	pingRTT          prometheus.Histogram
	pingFailures     prometheus.Counter
	pingUnresponsive prometheus.Counter

	identify *prometheus.CounterVec

	reservations       *prometheus.CounterVec
	reservationsActive prometheus.Gauge
	circuitRequests    *prometheus.CounterVec
	circuitsActive     prometheus.Gauge
	circuitBytes       *prometheus.CounterVec
	circuitsClosed     *prometheus.CounterVec

	loopEvents    *prometheus.CounterVec
	externalAddrs prometheus.Gauge
}

// New 在独立 Registry 上注册全部指标
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	counterVec := func(sub, name, help string, labels ...string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub, Name: name, Help: help,
		}, labels)
		reg.MustRegister(c)
		return c
	}
	counter := func(sub, name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub, Name: name, Help: help,
		})
		reg.MustRegister(c)
		return c
	}
	gauge := func(sub, name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: sub, Name: name, Help: help,
		})
		reg.MustRegister(g)
		return g
	}

	m := &Metrics{registry: reg}

	m.connsOpened = counterVec("swarm", "connections_opened_total", "Upgraded connections opened.", "direction")
	m.connsClosed = counterVec("swarm", "connections_closed_total", "Connections closed.", "direction")
	m.connErrors = counterVec("swarm", "connection_errors_total", "Connections dropped during dial or upgrade.", "direction")
	m.connsActive = gauge("swarm", "connections_active", "Currently open connections.")

	m.pingRTT = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "ping", Name: "rtt_seconds",
		Help:    "Round trip time of successful pings.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})
	reg.MustRegister(m.pingRTT)
	m.pingFailures = counter("ping", "failures_total", "Failed ping probes.")
	m.pingUnresponsive = counter("ping", "unresponsive_total", "Peers declared unresponsive.")

	m.identify = counterVec("identify", "total", "Identify exchanges.", "result")

	m.reservations = counterVec("circuit", "reservations_total", "Reservation requests.", "result")
	m.reservationsActive = gauge("circuit", "reservations_active", "Live reservations.")
	m.circuitRequests = counterVec("circuit", "requests_total", "Circuit requests.", "result")
	m.circuitsActive = gauge("circuit", "active", "Circuits currently forwarding.")
	m.circuitBytes = counterVec("circuit", "bytes_total", "Bytes relayed.", "direction")
	m.circuitsClosed = counterVec("circuit", "closed_total", "Circuits ended.", "state")

	m.loopEvents = counterVec("eventloop", "events_total", "Events dispatched by the event loop.", "kind")
	m.externalAddrs = gauge("eventloop", "external_addrs", "Addresses in the external address set.")

	return m
}

// Registry 供 HTTP 暴露使用
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ConnOpened 连接升级完成
func (m *Metrics) ConnOpened(direction string) {
	if m == nil {
		return
	}
	m.connsOpened.WithLabelValues(direction).Inc()
	m.connsActive.Inc()
}

// ConnClosed 连接关闭
func (m *Metrics) ConnClosed(direction string) {
	if m == nil {
		return
	}
	m.connsClosed.WithLabelValues(direction).Inc()
	m.connsActive.Dec()
}

// ConnError 拨号或升级失败
func (m *Metrics) ConnError(direction string) {
	if m == nil {
		return
	}
	m.connErrors.WithLabelValues(direction).Inc()
}

// PingSuccess 记录往返时间
func (m *Metrics) PingSuccess(rtt time.Duration) {
	if m == nil {
		return
	}
	m.pingRTT.Observe(rtt.Seconds())
}

// PingFailure 单次探测失败
func (m *Metrics) PingFailure() {
	if m == nil {
		return
	}
	m.pingFailures.Inc()
}

// PeerUnresponsive 连续失败达到阈值
func (m *Metrics) PeerUnresponsive() {
	if m == nil {
		return
	}
	m.pingUnresponsive.Inc()
}

// Identify 结果: received / sent / error
func (m *Metrics) Identify(result string) {
	if m == nil {
		return
	}
	m.identify.WithLabelValues(result).Inc()
}

// Reservation 结果: accepted / refused；active 为当前预约数
func (m *Metrics) Reservation(result string, active int) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(result).Inc()
	m.reservationsActive.Set(float64(active))
}

// ReservationsActive 更新预约数（过期清理后）
func (m *Metrics) ReservationsActive(active int) {
	if m == nil {
		return
	}
	m.reservationsActive.Set(float64(active))
}

// CircuitRequest 电路请求结果: accepted / 拒绝原因
func (m *Metrics) CircuitRequest(result string) {
	if m == nil {
		return
	}
	m.circuitRequests.WithLabelValues(result).Inc()
}

// CircuitOpened 电路开始转发
func (m *Metrics) CircuitOpened() {
	if m == nil {
		return
	}
	m.circuitsActive.Inc()
}

// CircuitClosed 电路结束: expired / released
func (m *Metrics) CircuitClosed(state string, toDst, toSrc int64) {
	if m == nil {
		return
	}
	m.circuitsActive.Dec()
	m.circuitsClosed.WithLabelValues(state).Inc()
	m.circuitBytes.WithLabelValues("src_to_dst").Add(float64(toDst))
	m.circuitBytes.WithLabelValues("dst_to_src").Add(float64(toSrc))
}

// LoopEvent 事件循环分发一次事件
func (m *Metrics) LoopEvent(kind string) {
	if m == nil {
		return
	}
	m.loopEvents.WithLabelValues(kind).Inc()
}

// ExternalAddrs 外部地址集大小
func (m *Metrics) ExternalAddrs(n int) {
	if m == nil {
		return
	}
	m.externalAddrs.Set(float64(n))
}
