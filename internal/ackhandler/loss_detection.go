package ackhandler

import (
	"time"

	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/internal/utils"
	"github.com/quivernet/quic/logging"
)

// defaultLossDelayShift yields a time threshold of 9/8 of the RTT:
// lossDelay = rtt + rtt>>3.
const defaultLossDelayShift = 3

// DetectionStats carries aggregate loss detection statistics,
// used for tuning the reordering thresholds.
type DetectionStats struct {
	// MaxSequenceReordering is the maximum packet number distance between a
	// lost (or spuriously lost) packet and the largest acked at the time of
	// the declaration.
	MaxSequenceReordering protocol.PacketNumber
	// ReorderingResponseTime is the summed time between sending a packet and
	// declaring it lost by the time threshold.
	ReorderingResponseTime time.Duration
	// SpuriousLosses counts loss declarations that were later proven wrong
	// by an acknowledgement.
	SpuriousLosses uint64
}

func (s *DetectionStats) merge(other DetectionStats) {
	// sequence reordering is a maximum across spaces, response time a total
	s.MaxSequenceReordering = max(s.MaxSequenceReordering, other.MaxSequenceReordering)
	s.ReorderingResponseTime += other.ReorderingResponseTime
	s.SpuriousLosses += other.SpuriousLosses
}

// A lossDetector runs time and packet-threshold loss detection
// for a single packet number space.
type lossDetector struct {
	space protocol.PacketNumberSpace

	largestAcked protocol.PacketNumber
	largestSent  protocol.PacketNumber

	// Packets this many packet numbers below the largest acked are declared lost.
	reorderingThreshold protocol.PacketNumber
	// The time threshold is max(latestRTT, smoothedRTT) + max(latestRTT, smoothedRTT) >> lossDelayShift.
	lossDelayShift uint8
	// raise the packet threshold when a loss declaration turns out spurious
	adaptiveReorderingThreshold bool

	// lossTime is the time when the next packet crosses the time threshold.
	// Zero if no packet is waiting for the time threshold.
	lossTime time.Time

	tracer *logging.ConnectionTracer
	logger utils.Logger
}

func newLossDetector(space protocol.PacketNumberSpace, adaptive bool, tracer *logging.ConnectionTracer, logger utils.Logger) lossDetector {
	return lossDetector{
		space:                       space,
		largestAcked:                protocol.InvalidPacketNumber,
		largestSent:                 protocol.InvalidPacketNumber,
		reorderingThreshold:         protocol.PacketReorderingThreshold,
		lossDelayShift:              defaultLossDelayShift,
		adaptiveReorderingThreshold: adaptive,
		tracer:                      tracer,
		logger:                      logger,
	}
}

func (d *lossDetector) OnPacketSent(pn protocol.PacketNumber) {
	d.largestSent = max(d.largestSent, pn)
}

// OnAckReceived updates the largest acked packet number.
// It never regresses.
func (d *lossDetector) OnAckReceived(largestAcked protocol.PacketNumber) {
	d.largestAcked = max(d.largestAcked, largestAcked)
}

func (d *lossDetector) lossDelay(rttStats *utils.RTTStats) time.Duration {
	rtt := max(rttStats.LatestRTT(), rttStats.SmoothedRTT())
	return max(rtt+rtt>>d.lossDelayShift, protocol.TimerGranularity)
}

// DetectLosses declares packets lost, using both the packet reordering
// threshold and the time threshold. Packets are only ever declared lost in
// ascending packet number order, and a packet that was declared lost once is
// never reported again.
func (d *lossDetector) DetectLosses(history *sentPacketHistory, now time.Time, rttStats *utils.RTTStats) (DetectionStats, []*Packet) {
	d.lossTime = time.Time{}
	if d.largestAcked == protocol.InvalidPacketNumber {
		return DetectionStats{}, nil
	}

	lossDelay := d.lossDelay(rttStats)
	// Packets sent before this time are deemed lost.
	lostSendTime := now.Add(-lossDelay)

	var stats DetectionStats
	var lostPackets []*Packet
	history.Iterate(func(p *Packet) (bool, error) {
		if p.PacketNumber > d.largestAcked {
			return false, nil
		}
		if p.declaredLost || p.skippedPacket {
			return true, nil
		}

		switch {
		case !p.SendTime.After(lostSendTime):
			lostPackets = append(lostPackets, p)
			stats.ReorderingResponseTime += now.Sub(p.SendTime)
			stats.MaxSequenceReordering = max(stats.MaxSequenceReordering, d.largestAcked-p.PacketNumber)
			if d.tracer != nil && d.tracer.LostPacket != nil {
				d.tracer.LostPacket(d.space, p.PacketNumber, logging.PacketLossTimeThreshold)
			}
		case d.largestAcked >= p.PacketNumber+d.reorderingThreshold:
			lostPackets = append(lostPackets, p)
			stats.MaxSequenceReordering = max(stats.MaxSequenceReordering, d.largestAcked-p.PacketNumber)
			if d.tracer != nil && d.tracer.LostPacket != nil {
				d.tracer.LostPacket(d.space, p.PacketNumber, logging.PacketLossReorderingThreshold)
			}
		case d.lossTime.IsZero():
			// Note: this conditional is only entered once per call
			lossTime := p.SendTime.Add(lossDelay)
			if d.logger.Debug() {
				d.logger.Debugf("\tsetting loss timer for packet %d (%s) to %s (in %s)", p.PacketNumber, d.space, lossDelay, lossTime)
			}
			d.lossTime = lossTime
		}
		return true, nil
	})

	if d.logger.Debug() && len(lostPackets) > 0 {
		pns := make([]protocol.PacketNumber, len(lostPackets))
		for i, p := range lostPackets {
			pns[i] = p.PacketNumber
		}
		d.logger.Debugf("\tlost packets (%d): %d", len(pns), pns)
	}
	return stats, lostPackets
}

// LossTimeout returns the time when time-threshold loss detection should run
// again, or the zero time if no packet is waiting for the time threshold.
func (d *lossDetector) LossTimeout() time.Time {
	return d.lossTime
}

// SpuriousLossDetected is called when a packet that was declared lost is
// acknowledged after all. It raises the adaptive reordering threshold so the
// same reordering pattern doesn't trigger another false declaration.
// It doesn't resurrect any retransmission state.
func (d *lossDetector) SpuriousLossDetected(pn protocol.PacketNumber) DetectionStats {
	var stats DetectionStats
	stats.SpuriousLosses++
	if d.largestAcked != protocol.InvalidPacketNumber && d.largestAcked > pn {
		stats.MaxSequenceReordering = d.largestAcked - pn
	}
	if d.adaptiveReorderingThreshold {
		newThreshold := min(
			max(d.reorderingThreshold, stats.MaxSequenceReordering+1),
			protocol.PacketNumber(protocol.MaxPacketReorderingThreshold),
		)
		if newThreshold != d.reorderingThreshold {
			if d.logger.Debug() {
				d.logger.Debugf("raising reordering threshold for %s: %d -> %d", d.space, d.reorderingThreshold, newThreshold)
			}
			d.reorderingThreshold = newThreshold
		}
	}
	if d.tracer != nil && d.tracer.SpuriousLoss != nil {
		d.tracer.SpuriousLoss(d.space, pn)
	}
	return stats
}

// applyTunedParameters installs thresholds supplied by a tuner.
func (d *lossDetector) applyTunedParameters(p TunedParameters) {
	if p.ReorderingShift > 0 {
		d.lossDelayShift = p.ReorderingShift
	}
	if p.ReorderingThreshold > 0 {
		d.reorderingThreshold = p.ReorderingThreshold
	}
}
