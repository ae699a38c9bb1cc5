package ackhandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/internal/utils"
)

func TestUberLossDetectorTimeoutAcrossSpaces(t *testing.T) {
	u := newUberLossDetector(false, nil, utils.DefaultLogger)
	lossTime, _ := u.LossTimeout()
	require.True(t, lossTime.IsZero())

	now := time.Now()
	u.detectors[protocol.PacketNumberSpaceInitial].lossTime = now.Add(100 * time.Millisecond)
	u.detectors[protocol.PacketNumberSpaceAppData].lossTime = now.Add(50 * time.Millisecond)

	lossTime, space := u.LossTimeout()
	require.Equal(t, now.Add(50*time.Millisecond), lossTime)
	require.Equal(t, protocol.PacketNumberSpaceAppData, space)

	u.detectors[protocol.PacketNumberSpaceHandshake].lossTime = now.Add(10 * time.Millisecond)
	lossTime, space = u.LossTimeout()
	require.Equal(t, now.Add(10*time.Millisecond), lossTime)
	require.Equal(t, protocol.PacketNumberSpaceHandshake, space)
}

func TestUberLossDetectorLargestAckedDoesNotRegress(t *testing.T) {
	u := newUberLossDetector(false, nil, utils.DefaultLogger)
	u.OnAckReceived(protocol.PacketNumberSpaceAppData, 10)
	require.Equal(t, protocol.PacketNumber(10), u.detectors[protocol.PacketNumberSpaceAppData].largestAcked)
	u.OnAckReceived(protocol.PacketNumberSpaceAppData, 5)
	require.Equal(t, protocol.PacketNumber(10), u.detectors[protocol.PacketNumberSpaceAppData].largestAcked)
}

func TestUberLossDetectorSpacesAreIndependent(t *testing.T) {
	u := newUberLossDetector(false, nil, utils.DefaultLogger)
	histories := [protocol.NumPacketNumberSpaces]*sentPacketHistory{
		newSentPacketHistory(), newSentPacketHistory(), newSentPacketHistory(),
	}
	now := time.Now()
	for pn := protocol.PacketNumber(0); pn < 5; pn++ {
		histories[protocol.PacketNumberSpaceHandshake].SentAckElicitingPacket(&Packet{
			PacketNumber:    pn,
			EncryptionLevel: protocol.EncryptionHandshake,
			SendTime:        now,
			IsAckEliciting:  true,
		})
		u.OnPacketSent(protocol.PacketNumberSpaceHandshake, pn)
	}
	u.OnAckReceived(protocol.PacketNumberSpaceHandshake, 4)

	var rttStats utils.RTTStats
	_, lost := u.DetectLosses(&histories, now, &rttStats)
	require.Len(t, lost, 2)
	for _, p := range lost {
		require.Equal(t, protocol.EncryptionHandshake, p.EncryptionLevel)
	}
}
