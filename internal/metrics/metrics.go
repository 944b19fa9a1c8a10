// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Command outcomes recorded by the dispatcher.
const (
	OutcomeConfirmed  = "confirmed"
	OutcomeReverted   = "reverted"
	OutcomeSuperseded = "superseded"
)

// Metrics groups every collector the bridge updates.
type Metrics struct {
	Commands         *prometheus.CounterVec
	Updates          *prometheus.CounterVec
	StopsDetected    *prometheus.CounterVec
	Reconnects       prometheus.Counter
	GatewayConnected prometheus.Gauge
	Position         *prometheus.GaugeVec
	Battery          *prometheus.GaugeVec
	HTTPRequests     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blinds_commands_total",
			Help: "Position commands by device and outcome.",
		}, []string{"device", "outcome"}),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blinds_device_updates_total",
			Help: "Device-updated pushes received from the gateway.",
		}, []string{"device"}),
		StopsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blinds_stops_detected_total",
			Help: "Times a blind was considered stopped after the debounce window.",
		}, []string{"device"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blinds_gateway_reconnects_total",
			Help: "Successful gateway connects after the first one.",
		}),
		GatewayConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blinds_gateway_connected",
			Help: "1 while the observe channel is open.",
		}),
		Position: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "blinds_current_position_percent",
			Help: "Current position in accessory coordinates (100 = open).",
		}, []string{"device"}),
		Battery: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "blinds_battery_percent",
			Help: "Last reported battery level.",
		}, []string{"device"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total requests by endpoint, method, and status.",
		}, []string{"endpoint", "method", "status"}),
	}
	reg.MustRegister(
		m.Commands,
		m.Updates,
		m.StopsDetected,
		m.Reconnects,
		m.GatewayConnected,
		m.Position,
		m.Battery,
		m.HTTPRequests,
	)
	return m
}

// GinMiddleware counts requests by route template, method and status.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(endpoint, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
