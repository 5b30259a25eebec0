package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 链路业务指标
type AppMetrics struct {
	FramesReceived   prometheus.Counter
	FramesSent       prometheus.Counter
	BytesReceived    prometheus.Counter
	BytesSent        prometheus.Counter
	ParseTotal       *prometheus.CounterVec // labels: result=ok|error|fec_error
	TECRouteTotal    *prometheus.CounterVec // labels: cmd
	TXDropTotal      *prometheus.CounterVec // labels: reason
	CmdQueueDrops    prometheus.Counter
	StateTransitions *prometheus.CounterVec // labels: state
	TXStateGauge     prometheus.Gauge       // 0=off 1=on 2=no_beacon
	RSSIGauge        prometheus.Gauge
	SNRGauge         prometheus.Gauge
	BeaconTotal      prometheus.Counter
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "link_frames_received_total",
			Help: "Total frames received over the air.",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "link_frames_sent_total",
			Help: "Total frames transmitted over the air.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "link_bytes_received_total",
			Help: "Total frame bytes received over the air.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "link_bytes_sent_total",
			Help: "Total frame bytes transmitted over the air.",
		}),
		ParseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link_parse_total",
			Help: "Frame parse attempts.",
		}, []string{"result"}),
		TECRouteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link_tec_route_total",
			Help: "Executed telecommands by command.",
		}, []string{"cmd"}),
		TXDropTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link_tx_drop_total",
			Help: "Outbound frames dropped before transmit.",
		}, []string{"reason"}),
		CmdQueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "link_cmd_queue_drop_total",
			Help: "Inbound commands dropped due to a full queue.",
		}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link_state_transition_total",
			Help: "State machine transitions by target state.",
		}, []string{"state"}),
		TXStateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "link_tx_state",
			Help: "Current transmitter policy (0=off 1=on 2=no_beacon).",
		}),
		RSSIGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "link_rssi_dbm",
			Help: "RSSI of the last received frame.",
		}),
		SNRGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "link_snr_db",
			Help: "SNR of the last received frame.",
		}),
		BeaconTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "link_beacon_total",
			Help: "Beacons enqueued by the scheduler.",
		}),
	}
	reg.MustRegister(
		m.FramesReceived, m.FramesSent, m.BytesReceived, m.BytesSent,
		m.ParseTotal, m.TECRouteTotal, m.TXDropTotal, m.CmdQueueDrops,
		m.StateTransitions, m.TXStateGauge, m.RSSIGauge, m.SNRGauge, m.BeaconTotal,
	)
	return m
}
