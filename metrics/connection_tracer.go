// Package metrics provides a Prometheus implementation of the tracer
// callbacks.
package metrics

import (
	"errors"
	"net"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quivernet/quic/logging"
)

const metricNamespace = "quic"

var (
	packetsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "sent_packets_total",
			Help:      "Sent Packets",
		},
		[]string{"space"},
	)
	packetsLost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "lost_packets_total",
			Help:      "Lost Packets",
		},
		[]string{"space", "reason"},
	)
	spuriousLosses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "spurious_losses_total",
			Help:      "Packets declared lost that were later acknowledged",
		},
		[]string{"space"},
	)
	batchesFlushed = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      "flushed_batch_size_packets",
			Help:      "Number of packets per flushed batch",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 45},
		},
	)
	packetsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "dropped_packets_total",
			Help:      "Buffered packets dropped after a write error",
		},
	)
	pathValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "path_validations_total",
			Help:      "Concluded Path Validations",
		},
		[]string{"result"},
	)
)

// NewConnectionTracer creates a connection tracer registering with the
// default Prometheus registerer.
func NewConnectionTracer() *logging.ConnectionTracer {
	return NewConnectionTracerWithRegisterer(prometheus.DefaultRegisterer)
}

// NewConnectionTracerWithRegisterer creates a connection tracer registering
// with the given Prometheus registerer.
func NewConnectionTracerWithRegisterer(registerer prometheus.Registerer) *logging.ConnectionTracer {
	for _, c := range [...]prometheus.Collector{
		packetsSent,
		packetsLost,
		spuriousLosses,
		batchesFlushed,
		packetsDropped,
		pathValidations,
	} {
		if err := registerer.Register(c); err != nil {
			if ok := errors.As(err, &prometheus.AlreadyRegisteredError{}); !ok {
				panic(err)
			}
		}
	}

	return &logging.ConnectionTracer{
		SentPacket: func(space logging.PacketNumberSpace, _ logging.PacketNumber, _ logging.ByteCount, _ bool) {
			packetsSent.WithLabelValues(space.String()).Inc()
		},
		LostPacket: func(space logging.PacketNumberSpace, _ logging.PacketNumber, reason logging.PacketLossReason) {
			packetsLost.WithLabelValues(space.String(), reason.String()).Inc()
		},
		SpuriousLoss: func(space logging.PacketNumberSpace, _ logging.PacketNumber) {
			spuriousLosses.WithLabelValues(space.String()).Inc()
		},
		BatchFlushed: func(numPackets int, _ logging.ByteCount) {
			batchesFlushed.Observe(float64(numPackets))
		},
		DroppedPackets: func(numPackets int) {
			packetsDropped.Add(float64(numPackets))
		},
		ConcludedPathValidation: func(_ net.Addr, result logging.PathValidationResult) {
			pathValidations.WithLabelValues(result.String()).Inc()
		},
	}
}
