package ackhandler

import (
	"errors"
	"fmt"
	"time"

	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/internal/utils"
	"github.com/quivernet/quic/logging"
)

// An AckRange is a range of acknowledged packets, smallest and largest inclusive.
type AckRange struct {
	Smallest protocol.PacketNumber
	Largest  protocol.PacketNumber
}

// A CongestionHandler receives the congestion signals derived from acks and
// losses. The congestion controller itself lives a layer above this package.
type CongestionHandler interface {
	OnPacketSent(sendTime time.Time, bytesInFlight protocol.ByteCount, pn protocol.PacketNumber, size protocol.ByteCount, isRetransmittable bool)
	OnPacketAcked(pn protocol.PacketNumber, size, priorInFlight protocol.ByteCount, eventTime time.Time)
	OnPacketLost(pn protocol.PacketNumber, size, priorInFlight protocol.ByteCount)
}

// The SentPacketTracker keeps the records of all sent packets, feeds ack
// events into loss detection and schedules the loss detection timeout.
type SentPacketTracker interface {
	SentPacket(*Packet)
	// ReceivedAck processes an ack event. The ack ranges must be sorted in
	// ascending order. It returns the newly acknowledged packets.
	ReceivedAck(encLevel protocol.EncryptionLevel, ackRanges []AckRange, ackDelay time.Duration, rcvTime time.Time) ([]*Packet, error)
	DropPackets(protocol.EncryptionLevel)
	GetLossDetectionTimeout() time.Time
	OnLossDetectionTimeout(now time.Time) error
	BytesInFlight() protocol.ByteCount
	SetLossDetectionTuner(Tuner)
	OnApplicationIdentityKnown()
	DetectionStats() DetectionStats
	Close()
}

var errAckForUnsentPacket = errors.New("received ACK for an unsent packet")

type sentPacketTracker struct {
	histories [protocol.NumPacketNumberSpaces]*sentPacketHistory

	bytesInFlight protocol.ByteCount

	rttStats      *utils.RTTStats
	lossDetection *uberLossDetector
	congestion    CongestionHandler

	// the loss detection timeout
	alarm time.Time

	tracer *logging.ConnectionTracer
	logger utils.Logger
}

var _ SentPacketTracker = &sentPacketTracker{}

// NewSentPacketTracker creates a new tracker.
// congestion may be nil if no congestion controller is attached.
func NewSentPacketTracker(
	rttStats *utils.RTTStats,
	congestion CongestionHandler,
	adaptiveLossDetection bool,
	tracer *logging.ConnectionTracer,
	logger utils.Logger,
) SentPacketTracker {
	t := &sentPacketTracker{
		rttStats:      rttStats,
		congestion:    congestion,
		lossDetection: newUberLossDetector(adaptiveLossDetection, tracer, logger),
		tracer:        tracer,
		logger:        logger,
	}
	for i := range t.histories {
		t.histories[i] = newSentPacketHistory()
	}
	return t
}

func (t *sentPacketTracker) SentPacket(p *Packet) {
	space := p.EncryptionLevel.PacketNumberSpace()
	history := t.histories[space]
	if history == nil {
		t.logger.Errorf("sent packet %d in already dropped packet number space %s", p.PacketNumber, space)
		return
	}
	t.lossDetection.OnPacketSent(space, p.PacketNumber)
	if p.IsAckEliciting {
		history.SentAckElicitingPacket(p)
		p.includedInBytesInFlight = true
		t.bytesInFlight += p.Length
	} else {
		history.SentNonAckElicitingPacket(p.PacketNumber, p.EncryptionLevel, p.SendTime)
	}
	if t.congestion != nil {
		t.congestion.OnPacketSent(p.SendTime, t.bytesInFlight, p.PacketNumber, p.Length, p.IsAckEliciting)
	}
	if t.tracer != nil && t.tracer.SentPacket != nil {
		t.tracer.SentPacket(space, p.PacketNumber, p.Length, p.IsAckEliciting)
	}
}

func (t *sentPacketTracker) ReceivedAck(encLevel protocol.EncryptionLevel, ackRanges []AckRange, ackDelay time.Duration, rcvTime time.Time) ([]*Packet, error) {
	if len(ackRanges) == 0 {
		return nil, errors.New("ack event without ack ranges")
	}
	space := encLevel.PacketNumberSpace()
	history := t.histories[space]
	if history == nil {
		return nil, fmt.Errorf("received ACK for already dropped packet number space %s", space)
	}
	largestAcked := ackRanges[len(ackRanges)-1].Largest
	if largestAcked > t.lossDetection.detectors[space].largestSent {
		return nil, errAckForUnsentPacket
	}
	t.lossDetection.OnAckReceived(space, largestAcked)

	// maybe update the RTT
	if p := history.GetPacket(largestAcked); p != nil && !p.declaredLost && !p.skippedPacket {
		// don't use the ack delay for Initial and Handshake packets
		var delay time.Duration
		if encLevel == protocol.Encryption1RTT {
			delay = min(ackDelay, t.rttStats.MaxAckDelay())
		}
		t.rttStats.UpdateRTT(rcvTime.Sub(p.SendTime), delay)
		t.lossDetection.OnMinRTTAvailable()
		if t.logger.Debug() {
			t.logger.Debugf("\tupdated RTT: %s (σ: %s)", t.rttStats.SmoothedRTT(), t.rttStats.MeanDeviation())
		}
		if t.tracer != nil && t.tracer.UpdatedRTT != nil {
			t.tracer.UpdatedRTT(t.rttStats.LatestRTT(), t.rttStats.SmoothedRTT(), t.rttStats.MinRTT(), t.rttStats.MeanDeviation())
		}
	}

	priorInFlight := t.bytesInFlight
	ackedPackets, err := t.detectAndRemoveAckedPackets(space, ackRanges, priorInFlight, rcvTime)
	if err != nil {
		return nil, err
	}
	t.detectLosses(rcvTime, priorInFlight)

	// Lost packet records far below the largest acked can't produce a
	// spurious loss signal anymore.
	if largestAcked > protocol.MaxPacketReorderingThreshold {
		history.DeleteLostPacketsBelow(largestAcked - protocol.MaxPacketReorderingThreshold)
	}

	t.setLossDetectionTimer()
	return ackedPackets, nil
}

func (t *sentPacketTracker) detectAndRemoveAckedPackets(space protocol.PacketNumberSpace, ackRanges []AckRange, priorInFlight protocol.ByteCount, rcvTime time.Time) ([]*Packet, error) {
	history := t.histories[space]
	var ackedPackets []*Packet
	rangeIndex := 0
	lowestAcked := ackRanges[0].Smallest
	largestAcked := ackRanges[len(ackRanges)-1].Largest
	err := history.Iterate(func(p *Packet) (bool, error) {
		// ignore packets below the lowest acked
		if p.PacketNumber < lowestAcked {
			return true, nil
		}
		// break after the largest acked is reached
		if p.PacketNumber > largestAcked {
			return false, nil
		}

		ackRange := ackRanges[rangeIndex]
		for p.PacketNumber > ackRange.Largest && rangeIndex < len(ackRanges)-1 {
			rangeIndex++
			ackRange = ackRanges[rangeIndex]
		}
		if p.PacketNumber < ackRange.Smallest { // packet not contained in ACK range
			return true, nil
		}
		if p.PacketNumber > ackRange.Largest {
			return false, fmt.Errorf("BUG: ackhandler would have acked wrong packet %d, while evaluating range %d -> %d", p.PacketNumber, ackRange.Smallest, ackRange.Largest)
		}
		if p.skippedPacket {
			return false, fmt.Errorf("received an ACK for skipped packet number: %d (%s)", p.PacketNumber, space)
		}
		ackedPackets = append(ackedPackets, p)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if t.logger.Debug() && len(ackedPackets) > 0 {
		pns := make([]protocol.PacketNumber, len(ackedPackets))
		for i, p := range ackedPackets {
			pns[i] = p.PacketNumber
		}
		t.logger.Debugf("\tnewly acked packets (%d): %d", len(pns), pns)
	}

	newlyAcked := ackedPackets[:0]
	for _, p := range ackedPackets {
		if p.declaredLost {
			// The packet was declared lost, but the peer acknowledged it after all.
			t.lossDetection.SpuriousLossDetected(space, p.PacketNumber)
			history.Remove(p.PacketNumber)
			continue
		}
		newlyAcked = append(newlyAcked, p)
		for _, f := range p.Frames {
			if f.OnAcked != nil {
				f.OnAcked(f.Frame)
			}
		}
		if p.includedInBytesInFlight {
			t.bytesInFlight -= p.Length
		}
		if t.congestion != nil {
			t.congestion.OnPacketAcked(p.PacketNumber, p.Length, priorInFlight, rcvTime)
		}
		if t.tracer != nil && t.tracer.AcknowledgedPacket != nil {
			t.tracer.AcknowledgedPacket(space, p.PacketNumber)
		}
		if err := history.Remove(p.PacketNumber); err != nil {
			return nil, err
		}
	}
	return newlyAcked, nil
}

func (t *sentPacketTracker) detectLosses(now time.Time, priorInFlight protocol.ByteCount) {
	_, lostPackets := t.lossDetection.DetectLosses(&t.histories, now, t.rttStats)
	for _, p := range lostPackets {
		space := p.EncryptionLevel.PacketNumberSpace()
		t.histories[space].DeclareLost(p.PacketNumber)
		// the bytes in flight need to be reduced no matter if the frames in this packet will be retransmitted
		if p.includedInBytesInFlight {
			t.bytesInFlight -= p.Length
			p.includedInBytesInFlight = false
		}
		for _, f := range p.Frames {
			if f.OnLost != nil {
				f.OnLost(f.Frame)
			}
		}
		if t.congestion != nil {
			t.congestion.OnPacketLost(p.PacketNumber, p.Length, priorInFlight)
		}
	}
}

// DropPackets stops tracking a packet number space.
// Used when Initial or Handshake keys are dropped.
func (t *sentPacketTracker) DropPackets(encLevel protocol.EncryptionLevel) {
	space := encLevel.PacketNumberSpace()
	if space == protocol.PacketNumberSpaceAppData {
		panic("application data packet number space can't be dropped")
	}
	if history := t.histories[space]; history != nil {
		history.Iterate(func(p *Packet) (bool, error) {
			if p.includedInBytesInFlight {
				t.bytesInFlight -= p.Length
			}
			return true, nil
		})
	}
	t.histories[space] = nil
	t.setLossDetectionTimer()
}

func (t *sentPacketTracker) GetLossDetectionTimeout() time.Time {
	return t.alarm
}

// OnLossDetectionTimeout is called by the connection's event loop when the
// loss detection timeout expires. Packets that crossed the time threshold
// without a new ack arriving are declared lost now.
func (t *sentPacketTracker) OnLossDetectionTimeout(now time.Time) error {
	lossTime, space := t.lossDetection.LossTimeout()
	if lossTime.IsZero() {
		t.alarm = time.Time{}
		return nil
	}
	if t.logger.Debug() {
		t.logger.Debugf("Loss detection alarm fired in loss timer mode. Loss time: %s", lossTime)
	}
	if t.tracer != nil && t.tracer.LossTimerExpired != nil {
		t.tracer.LossTimerExpired(space)
	}
	t.detectLosses(now, t.bytesInFlight)
	t.setLossDetectionTimer()
	return nil
}

func (t *sentPacketTracker) setLossDetectionTimer() {
	oldAlarm := t.alarm // only needed in case tracing is enabled
	lossTime, space := t.lossDetection.LossTimeout()
	t.alarm = lossTime
	if t.tracer == nil || t.alarm.Equal(oldAlarm) {
		return
	}
	if t.alarm.IsZero() {
		if !oldAlarm.IsZero() && t.tracer.LossTimerCanceled != nil {
			t.tracer.LossTimerCanceled()
		}
		return
	}
	if t.tracer.SetLossTimer != nil {
		t.tracer.SetLossTimer(space, t.alarm)
	}
}

func (t *sentPacketTracker) BytesInFlight() protocol.ByteCount {
	return t.bytesInFlight
}

func (t *sentPacketTracker) SetLossDetectionTuner(tuner Tuner) {
	t.lossDetection.SetLossDetectionTuner(tuner)
}

func (t *sentPacketTracker) OnApplicationIdentityKnown() {
	t.lossDetection.OnApplicationIdentityKnown()
}

// DetectionStats returns the accumulated loss detection statistics.
func (t *sentPacketTracker) DetectionStats() DetectionStats {
	return t.lossDetection.Stats()
}

// Close reports the final statistics to the tuner, if one was started.
func (t *sentPacketTracker) Close() {
	t.lossDetection.OnConnectionClosed()
}
