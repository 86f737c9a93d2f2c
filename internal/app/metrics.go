package app

import (
	"errors"

	"github.com/dkeye/Relay/internal/mailbox"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons.
const (
	ReasonMalformed   = "malformed"
	ReasonInvalid     = "invalid"
	ReasonUnknownRoom = "unknown_room"
	ReasonReceive     = "receive_error"
)

type Metrics struct {
	FramesReceived   *prometheus.CounterVec
	FramesDropped    *prometheus.CounterVec
	Deliveries       prometheus.Counter
	DeliveryFailures *prometheus.CounterVec
	Rooms            prometheus.Gauge
	Members          prometheus.Gauge
}

// NewMetrics registers the router metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "frames_received_total",
			Help:      "Frames received on the global channel, by kind.",
		}, []string{"kind"}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "frames_dropped_total",
			Help:      "Frames discarded without a reply, by reason.",
		}, []string{"reason"}),
		Deliveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "deliveries_total",
			Help:      "Frames successfully enqueued on a private channel.",
		}),
		DeliveryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "delivery_failures_total",
			Help:      "Failed sends to private channels, by reason.",
		}, []string{"reason"}),
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "rooms",
			Help:      "Rooms in the registry.",
		}),
		Members: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "members",
			Help:      "Memberships across all rooms.",
		}),
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, mailbox.ErrFull):
		return "full"
	case errors.Is(err, mailbox.ErrInvalidHandle):
		return "invalid_handle"
	case errors.Is(err, mailbox.ErrRemoved):
		return "removed"
	case errors.Is(err, mailbox.ErrClosed):
		return "closed"
	default:
		return "other"
	}
}
