package ackhandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/internal/utils"
	"github.com/quivernet/quic/logging"
)

func newTestTracker(t *testing.T, rttStats *utils.RTTStats, tracer *logging.ConnectionTracer) *sentPacketTracker {
	t.Helper()
	if rttStats == nil {
		rttStats = &utils.RTTStats{}
	}
	return NewSentPacketTracker(rttStats, nil, false, tracer, utils.DefaultLogger).(*sentPacketTracker)
}

func ackElicitingPacket(pn protocol.PacketNumber, sendTime time.Time) *Packet {
	return &Packet{
		PacketNumber:    pn,
		EncryptionLevel: protocol.Encryption1RTT,
		Length:          1200,
		SendTime:        sendTime,
		IsAckEliciting:  true,
	}
}

func TestTrackerAckForUnsentPacket(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	now := time.Now()
	for pn := protocol.PacketNumber(0); pn < 3; pn++ {
		tr.SentPacket(ackElicitingPacket(pn, now))
	}
	_, err := tr.ReceivedAck(protocol.Encryption1RTT, []AckRange{{Smallest: 0, Largest: 5}}, 0, now)
	require.ErrorIs(t, err, errAckForUnsentPacket)
}

func TestTrackerBytesInFlight(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	now := time.Now()
	tr.SentPacket(ackElicitingPacket(0, now))
	tr.SentPacket(ackElicitingPacket(1, now))
	require.Equal(t, protocol.ByteCount(2400), tr.BytesInFlight())

	acked, err := tr.ReceivedAck(protocol.Encryption1RTT, []AckRange{{Smallest: 1, Largest: 1}}, 0, now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, acked, 1)
	require.Equal(t, protocol.PacketNumber(1), acked[0].PacketNumber)
	require.Equal(t, protocol.ByteCount(1200), tr.BytesInFlight())
}

func TestTrackerPacketThresholdLossDetection(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	now := time.Now()
	for pn := protocol.PacketNumber(0); pn < 6; pn++ {
		tr.SentPacket(ackElicitingPacket(pn, now))
	}
	_, err := tr.ReceivedAck(protocol.Encryption1RTT, []AckRange{{Smallest: 4, Largest: 4}}, 0, now)
	require.NoError(t, err)

	// packets 0 and 1 are more than the reordering threshold below the largest acked
	require.True(t, tr.histories[protocol.PacketNumberSpaceAppData].GetPacket(0).DeclaredLost())
	require.True(t, tr.histories[protocol.PacketNumberSpaceAppData].GetPacket(1).DeclaredLost())
	require.False(t, tr.histories[protocol.PacketNumberSpaceAppData].GetPacket(2).DeclaredLost())
	require.False(t, tr.histories[protocol.PacketNumberSpaceAppData].GetPacket(3).DeclaredLost())
	// only packet 5 (above the largest acked) and the acked packet count towards bytes in flight
	require.Equal(t, protocol.ByteCount(3*1200), tr.BytesInFlight())
	// packet 2 is now waiting for the time threshold
	require.False(t, tr.GetLossDetectionTimeout().IsZero())
}

func TestTrackerTimeThresholdLossDetection(t *testing.T) {
	rttStats := &utils.RTTStats{}
	tr := newTestTracker(t, rttStats, nil)
	t0 := time.Now()
	tr.SentPacket(ackElicitingPacket(0, t0))
	tr.SentPacket(ackElicitingPacket(1, t0.Add(10*time.Millisecond)))

	rcvTime := t0.Add(100 * time.Millisecond)
	_, err := tr.ReceivedAck(protocol.Encryption1RTT, []AckRange{{Smallest: 1, Largest: 1}}, 0, rcvTime)
	require.NoError(t, err)
	require.Equal(t, 90*time.Millisecond, rttStats.LatestRTT())

	// packet 0 was sent 100ms before the ack arrived, which is less than 9/8 RTT
	hist := tr.histories[protocol.PacketNumberSpaceAppData]
	require.False(t, hist.GetPacket(0).DeclaredLost())
	// the loss timer is armed for 9/8 * 90ms after the send time
	lossDelay := 90*time.Millisecond + 90*time.Millisecond>>3
	require.Equal(t, t0.Add(lossDelay), tr.GetLossDetectionTimeout())

	require.NoError(t, tr.OnLossDetectionTimeout(t0.Add(lossDelay)))
	require.True(t, hist.GetPacket(0).DeclaredLost())
	require.True(t, tr.GetLossDetectionTimeout().IsZero())
}

func TestTrackerSpuriousLossDetection(t *testing.T) {
	var spurious []protocol.PacketNumber
	tracer := &logging.ConnectionTracer{
		SpuriousLoss: func(_ logging.PacketNumberSpace, pn logging.PacketNumber) {
			spurious = append(spurious, pn)
		},
	}
	tr := newTestTracker(t, nil, tracer)
	now := time.Now()
	for pn := protocol.PacketNumber(0); pn < 5; pn++ {
		tr.SentPacket(ackElicitingPacket(pn, now))
	}
	_, err := tr.ReceivedAck(protocol.Encryption1RTT, []AckRange{{Smallest: 4, Largest: 4}}, 0, now)
	require.NoError(t, err)
	hist := tr.histories[protocol.PacketNumberSpaceAppData]
	require.True(t, hist.GetPacket(0).DeclaredLost())

	// the peer acks packet 0 after all
	acked, err := tr.ReceivedAck(protocol.Encryption1RTT, []AckRange{{Smallest: 0, Largest: 0}}, 0, now.Add(time.Millisecond))
	require.NoError(t, err)
	// a spuriously lost packet doesn't count as newly acked
	require.Empty(t, acked)
	require.Equal(t, []protocol.PacketNumber{0}, spurious)
	require.EqualValues(t, 1, tr.DetectionStats().SpuriousLosses)
	// the record is gone now, a second ack for it is not spurious again
	require.Nil(t, hist.GetPacket(0))
}

func TestTrackerAdaptiveReorderingThreshold(t *testing.T) {
	rttStats := &utils.RTTStats{}
	tr := NewSentPacketTracker(rttStats, nil, true, nil, utils.DefaultLogger).(*sentPacketTracker)
	now := time.Now()
	for pn := protocol.PacketNumber(0); pn < 10; pn++ {
		tr.SentPacket(ackElicitingPacket(pn, now))
	}
	_, err := tr.ReceivedAck(protocol.Encryption1RTT, []AckRange{{Smallest: 8, Largest: 8}}, 0, now)
	require.NoError(t, err)
	d := &tr.lossDetection.detectors[protocol.PacketNumberSpaceAppData]
	require.Equal(t, protocol.PacketNumber(protocol.PacketReorderingThreshold), d.reorderingThreshold)

	// packet 0 was declared lost with a reordering distance of 8
	_, err = tr.ReceivedAck(protocol.Encryption1RTT, []AckRange{{Smallest: 0, Largest: 0}}, 0, now)
	require.NoError(t, err)
	require.Equal(t, protocol.PacketNumber(9), d.reorderingThreshold)
}

func TestTrackerAckForSkippedPacket(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	now := time.Now()
	tr.SentPacket(ackElicitingPacket(0, now))
	tr.SentPacket(ackElicitingPacket(2, now)) // packet number 1 is skipped
	_, err := tr.ReceivedAck(protocol.Encryption1RTT, []AckRange{{Smallest: 0, Largest: 2}}, 0, now)
	require.ErrorContains(t, err, "skipped packet number")
}

func TestTrackerDropPackets(t *testing.T) {
	tr := newTestTracker(t, nil, nil)
	now := time.Now()
	tr.SentPacket(&Packet{PacketNumber: 0, EncryptionLevel: protocol.EncryptionInitial, Length: 500, SendTime: now, IsAckEliciting: true})
	tr.SentPacket(ackElicitingPacket(0, now))
	require.Equal(t, protocol.ByteCount(1700), tr.BytesInFlight())

	tr.DropPackets(protocol.EncryptionInitial)
	require.Equal(t, protocol.ByteCount(1200), tr.BytesInFlight())
	_, err := tr.ReceivedAck(protocol.EncryptionInitial, []AckRange{{Smallest: 0, Largest: 0}}, 0, now)
	require.ErrorContains(t, err, "already dropped")

	require.Panics(t, func() { tr.DropPackets(protocol.Encryption1RTT) })
}

type testTuner struct {
	started     bool
	startParams TunedParameters
	tuned       TunedParameters
	apply       bool
	finished    bool
	finalStats  DetectionStats
}

func (t *testTuner) Start(current TunedParameters) (TunedParameters, bool) {
	t.started = true
	t.startParams = current
	return t.tuned, t.apply
}

func (t *testTuner) Finish(stats DetectionStats) {
	t.finished = true
	t.finalStats = stats
}

func TestTrackerLossDetectionTuner(t *testing.T) {
	tuner := &testTuner{
		tuned: TunedParameters{ReorderingShift: 2, ReorderingThreshold: 10},
		apply: true,
	}
	tr := newTestTracker(t, nil, nil)
	tr.SetLossDetectionTuner(tuner)
	tr.OnApplicationIdentityKnown()

	now := time.Now()
	for pn := protocol.PacketNumber(0); pn < 5; pn++ {
		tr.SentPacket(ackElicitingPacket(pn, now))
	}
	// this ack yields an RTT sample and a reordering observation
	_, err := tr.ReceivedAck(protocol.Encryption1RTT, []AckRange{{Smallest: 4, Largest: 4}}, 0, now.Add(50*time.Millisecond))
	require.NoError(t, err)
	require.True(t, tuner.started)
	require.Equal(t, TunedParameters{
		ReorderingShift:     defaultLossDelayShift,
		ReorderingThreshold: protocol.PacketReorderingThreshold,
	}, tuner.startParams)
	d := &tr.lossDetection.detectors[protocol.PacketNumberSpaceAppData]
	require.Equal(t, uint8(2), d.lossDelayShift)
	require.Equal(t, protocol.PacketNumber(10), d.reorderingThreshold)

	tr.Close()
	require.True(t, tuner.finished)
	require.EqualValues(t, 4, tuner.finalStats.MaxSequenceReordering)
}
