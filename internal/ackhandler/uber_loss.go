package ackhandler

import (
	"time"

	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/internal/utils"
	"github.com/quivernet/quic/logging"
)

// TunedParameters is a (reordering shift, reordering threshold) pair supplied by a Tuner.
type TunedParameters struct {
	// ReorderingShift determines the time threshold: lossDelay = rtt + rtt>>shift.
	ReorderingShift uint8
	// ReorderingThreshold is the packet number distance before a packet is declared lost.
	ReorderingThreshold protocol.PacketNumber
}

// A Tuner adjusts the loss detection thresholds at runtime.
// Start is called once, after a minimum RTT sample and the application
// identity are known and at least one reordering event was observed.
// Finish receives the final statistics when the connection is closed.
type Tuner interface {
	Start(current TunedParameters) (TunedParameters, bool)
	Finish(DetectionStats)
}

// The uberLossDetector fans loss detection out over the three packet number
// spaces and merges their statistics.
type uberLossDetector struct {
	detectors [protocol.NumPacketNumberSpaces]lossDetector

	tuner        Tuner
	tunerStarted bool
	// tuning requirements
	minRTTAvailable          bool
	applicationIdentityKnown bool
	reorderingObserved       bool

	stats DetectionStats
}

func newUberLossDetector(adaptive bool, tracer *logging.ConnectionTracer, logger utils.Logger) *uberLossDetector {
	return &uberLossDetector{
		detectors: [protocol.NumPacketNumberSpaces]lossDetector{
			newLossDetector(protocol.PacketNumberSpaceInitial, adaptive, tracer, logger),
			newLossDetector(protocol.PacketNumberSpaceHandshake, adaptive, tracer, logger),
			newLossDetector(protocol.PacketNumberSpaceAppData, adaptive, tracer, logger),
		},
	}
}

func (u *uberLossDetector) OnPacketSent(space protocol.PacketNumberSpace, pn protocol.PacketNumber) {
	u.detectors[space].OnPacketSent(pn)
}

func (u *uberLossDetector) OnAckReceived(space protocol.PacketNumberSpace, largestAcked protocol.PacketNumber) {
	u.detectors[space].OnAckReceived(largestAcked)
}

// DetectLosses runs loss detection across all three packet number spaces.
// Spaces in which nothing was sent, or in which nothing is tracked below the
// largest acked, are skipped.
func (u *uberLossDetector) DetectLosses(histories *[protocol.NumPacketNumberSpaces]*sentPacketHistory, now time.Time, rttStats *utils.RTTStats) (DetectionStats, []*Packet) {
	var stats DetectionStats
	var lostPackets []*Packet
	for space := range u.detectors {
		d := &u.detectors[space]
		history := histories[space]
		if history == nil || d.largestSent == protocol.InvalidPacketNumber {
			continue
		}
		if lowest := history.LowestTracked(); lowest == protocol.InvalidPacketNumber || lowest > d.largestAcked {
			d.lossTime = time.Time{}
			continue
		}
		s, lost := d.DetectLosses(history, now, rttStats)
		stats.merge(s)
		lostPackets = append(lostPackets, lost...)
	}
	if stats.MaxSequenceReordering > 0 {
		u.reorderingObserved = true
		u.maybeStartTuning()
	}
	u.stats.merge(stats)
	return stats, lostPackets
}

// LossTimeout returns the earliest per-space loss timeout, and the space it
// belongs to. The zero time means no timeout is pending.
func (u *uberLossDetector) LossTimeout() (time.Time, protocol.PacketNumberSpace) {
	var t time.Time
	space := protocol.PacketNumberSpaceInitial
	for i := range u.detectors {
		lt := u.detectors[i].LossTimeout()
		if lt.IsZero() {
			continue
		}
		if t.IsZero() || lt.Before(t) {
			t = lt
			space = protocol.PacketNumberSpace(i)
		}
	}
	return t, space
}

func (u *uberLossDetector) SpuriousLossDetected(space protocol.PacketNumberSpace, pn protocol.PacketNumber) {
	stats := u.detectors[space].SpuriousLossDetected(pn)
	u.reorderingObserved = true
	u.stats.merge(stats)
	u.maybeStartTuning()
}

// SetLossDetectionTuner installs a tuner. It must be called before the first packet is sent.
func (u *uberLossDetector) SetLossDetectionTuner(t Tuner) {
	u.tuner = t
}

func (u *uberLossDetector) OnMinRTTAvailable() {
	u.minRTTAvailable = true
	u.maybeStartTuning()
}

func (u *uberLossDetector) OnApplicationIdentityKnown() {
	u.applicationIdentityKnown = true
	u.maybeStartTuning()
}

// maybeStartTuning starts the tuner once a minimum RTT sample and the
// application identity are known and at least one reordering event occurred.
func (u *uberLossDetector) maybeStartTuning() {
	if u.tunerStarted || u.tuner == nil {
		return
	}
	if !u.minRTTAvailable || !u.applicationIdentityKnown || !u.reorderingObserved {
		return
	}
	u.tunerStarted = true
	current := TunedParameters{
		ReorderingShift:     u.detectors[protocol.PacketNumberSpaceAppData].lossDelayShift,
		ReorderingThreshold: u.detectors[protocol.PacketNumberSpaceAppData].reorderingThreshold,
	}
	if tuned, ok := u.tuner.Start(current); ok {
		for i := range u.detectors {
			u.detectors[i].applyTunedParameters(tuned)
		}
	}
}

// OnConnectionClosed reports the final statistics to the tuner.
func (u *uberLossDetector) OnConnectionClosed() {
	if u.tuner != nil && u.tunerStarted {
		u.tuner.Finish(u.stats)
	}
}

// Stats returns the accumulated detection statistics.
func (u *uberLossDetector) Stats() DetectionStats {
	return u.stats
}
