// Package observability exports driver statistics and gateway activity as
// prometheus metrics, plus the gin middleware the admin server mounts.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	driverbase "github.com/Brazilian-Institute-of-Robotics/ros-driver-base"
)

var (
	registerOnce sync.Once

	packetsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iogw",
			Subsystem: "gateway",
			Name:      "packets_published_total",
			Help:      "Packets extracted from the device and published.",
		},
		[]string{"device", "subject"},
	)
	readErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iogw",
			Subsystem: "gateway",
			Name:      "read_errors_total",
			Help:      "Driver read failures by kind.",
		},
		[]string{"device", "kind"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iogw",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"device", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "iogw",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"device", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(packetsPublished, readErrors, httpRequests, httpDuration)
	})
}

func RecordPacketPublished(device, subject string) {
	RegisterMetrics()
	packetsPublished.WithLabelValues(device, subject).Inc()
}

func RecordReadError(device, kind string) {
	RegisterMetrics()
	readErrors.WithLabelValues(device, kind).Inc()
}

func RecordHTTPRequest(device, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(device, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(device, method, path, statusLabel).Observe(duration.Seconds())
}

var (
	descGoodRx = prometheus.NewDesc("driverbase_rx_good_bytes_total",
		"Bytes received as part of well-formed frames.", []string{"device"}, nil)
	descBadRx = prometheus.NewDesc("driverbase_rx_bad_bytes_total",
		"Bytes discarded as garbage.", []string{"device"}, nil)
	descTx = prometheus.NewDesc("driverbase_tx_bytes_total",
		"Bytes written through the driver.", []string{"device"}, nil)
)

// StatusCollector exposes a driver's Status counters. The status function is
// called on every scrape; callers hand in a snapshot accessor that is safe
// in their own scheduling model.
type StatusCollector struct {
	device string
	status func() driverbase.Status
}

func NewStatusCollector(device string, status func() driverbase.Status) *StatusCollector {
	return &StatusCollector{device: device, status: status}
}

func (c *StatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descGoodRx
	ch <- descBadRx
	ch <- descTx
}

func (c *StatusCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.status()
	ch <- prometheus.MustNewConstMetric(descGoodRx, prometheus.CounterValue, float64(s.GoodRx), c.device)
	ch <- prometheus.MustNewConstMetric(descBadRx, prometheus.CounterValue, float64(s.BadRx), c.device)
	ch <- prometheus.MustNewConstMetric(descTx, prometheus.CounterValue, float64(s.Tx), c.device)
}
