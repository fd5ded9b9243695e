package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the service-level collectors. All increment helpers are
// nil-safe so components can run without metrics wired (tests do).
type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	EventsProcessed  *prometheus.CounterVec
	CountsProcessed  prometheus.Counter

	BrokerConnected  prometheus.Gauge
	BrokerReconnects prometheus.Counter

	DevicesCreated    *prometheus.CounterVec
	DevicesTombstoned prometheus.Counter
	TopologyRefreshes *prometheus.CounterVec
	ActiveEvents      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "frigate_occupancy",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Messages received from the broker, by feed",
			},
			[]string{"feed"},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "frigate_occupancy",
				Subsystem: "messages",
				Name:      "dropped_total",
				Help:      "Messages dropped before reconciliation, by reason",
			},
			[]string{"reason"},
		),
		EventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "frigate_occupancy",
				Subsystem: "events",
				Name:      "processed_total",
				Help:      "Lifecycle events reconciled, by type",
			},
			[]string{"type"},
		),
		CountsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "frigate_occupancy",
				Subsystem: "counts",
				Name:      "processed_total",
				Help:      "Count feed messages reconciled",
			},
		),
		BrokerConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "frigate_occupancy",
				Subsystem: "broker",
				Name:      "connected",
				Help:      "Broker connection state (0=down, 1=up)",
			},
		),
		BrokerReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "frigate_occupancy",
				Subsystem: "broker",
				Name:      "reconnects_total",
				Help:      "Broker reconnect attempts",
			},
		),
		DevicesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "frigate_occupancy",
				Subsystem: "devices",
				Name:      "created_total",
				Help:      "Devices created, by kind",
			},
			[]string{"kind"},
		),
		DevicesTombstoned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "frigate_occupancy",
				Subsystem: "devices",
				Name:      "tombstoned_total",
				Help:      "Devices tombstoned after dropping out of topology",
			},
		),
		TopologyRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "frigate_occupancy",
				Subsystem: "topology",
				Name:      "refreshes_total",
				Help:      "Topology fetch attempts, by status",
			},
			[]string{"status"},
		),
		ActiveEvents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "frigate_occupancy",
				Subsystem: "events",
				Name:      "active",
				Help:      "Lifecycle events currently in flight",
			},
		),
	}

	prometheus.MustRegister(
		m.MessagesReceived,
		m.MessagesDropped,
		m.EventsProcessed,
		m.CountsProcessed,
		m.BrokerConnected,
		m.BrokerReconnects,
		m.DevicesCreated,
		m.DevicesTombstoned,
		m.TopologyRefreshes,
		m.ActiveEvents,
	)
	return m
}

func (m *Metrics) IncReceived(feed string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(feed).Inc()
}

func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncEvent(eventType string) {
	if m == nil {
		return
	}
	m.EventsProcessed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncCount() {
	if m == nil {
		return
	}
	m.CountsProcessed.Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.BrokerConnected.Set(1)
	} else {
		m.BrokerConnected.Set(0)
	}
}

func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.BrokerReconnects.Inc()
}

func (m *Metrics) IncDeviceCreated(kind string) {
	if m == nil {
		return
	}
	m.DevicesCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncTombstoned() {
	if m == nil {
		return
	}
	m.DevicesTombstoned.Inc()
}

func (m *Metrics) IncTopologyRefresh(status string) {
	if m == nil {
		return
	}
	m.TopologyRefreshes.WithLabelValues(status).Inc()
}

func (m *Metrics) SetActiveEvents(n int) {
	if m == nil {
		return
	}
	m.ActiveEvents.Set(float64(n))
}

// Serve runs the metrics endpoint until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
