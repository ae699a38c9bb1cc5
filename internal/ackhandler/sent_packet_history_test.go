package ackhandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quivernet/quic/internal/protocol"
)

func (h *sentPacketHistory) getPacketNumbers() []protocol.PacketNumber {
	var pns []protocol.PacketNumber
	h.Iterate(func(p *Packet) (bool, error) {
		pns = append(pns, p.PacketNumber)
		return true, nil
	})
	return pns
}

func TestSentPacketHistoryPacketTracking(t *testing.T) {
	hist := newSentPacketHistory()
	now := time.Now()
	hist.SentAckElicitingPacket(&Packet{PacketNumber: 0, SendTime: now})
	hist.SentAckElicitingPacket(&Packet{PacketNumber: 1, SendTime: now})
	hist.SentAckElicitingPacket(&Packet{PacketNumber: 2, SendTime: now})
	require.Equal(t, []protocol.PacketNumber{0, 1, 2}, hist.getPacketNumbers())
	require.True(t, hist.HasOutstandingPackets())

	require.NoError(t, hist.Remove(1))
	require.Equal(t, []protocol.PacketNumber{0, 2}, hist.getPacketNumbers())
	require.Error(t, hist.Remove(1))

	require.NoError(t, hist.Remove(0))
	require.NoError(t, hist.Remove(2))
	require.False(t, hist.HasOutstandingPackets())
}

func TestSentPacketHistorySkippedPacketNumbers(t *testing.T) {
	hist := newSentPacketHistory()
	now := time.Now()
	hist.SentAckElicitingPacket(&Packet{PacketNumber: 0, SendTime: now})
	hist.SentAckElicitingPacket(&Packet{PacketNumber: 3, SendTime: now})
	require.Equal(t, []protocol.PacketNumber{0, 1, 2, 3}, hist.getPacketNumbers())
	p := hist.GetPacket(1)
	require.NotNil(t, p)
	require.True(t, p.skippedPacket)

	// removing a packet removes the skipped packets directly below it
	require.NoError(t, hist.Remove(3))
	require.Equal(t, []protocol.PacketNumber{0}, hist.getPacketNumbers())
}

func TestSentPacketHistoryNonSequentialPacketNumberUse(t *testing.T) {
	hist := newSentPacketHistory()
	hist.SentAckElicitingPacket(&Packet{PacketNumber: 100})
	require.Panics(t, func() {
		hist.SentAckElicitingPacket(&Packet{PacketNumber: 100})
	})
}

func TestSentPacketHistoryDeclaredLostPackets(t *testing.T) {
	hist := newSentPacketHistory()
	now := time.Now()
	hist.SentAckElicitingPacket(&Packet{PacketNumber: 0, SendTime: now})
	hist.SentAckElicitingPacket(&Packet{PacketNumber: 1, SendTime: now})

	hist.DeclareLost(0)
	// the entry is kept, so a late ack can be detected as spurious
	p := hist.GetPacket(0)
	require.NotNil(t, p)
	require.True(t, p.DeclaredLost())
	require.True(t, hist.HasOutstandingPackets())
	require.Equal(t, protocol.PacketNumber(1), hist.FirstOutstanding().PacketNumber)

	hist.DeclareLost(1)
	require.False(t, hist.HasOutstandingPackets())
	require.Nil(t, hist.FirstOutstanding())

	hist.DeleteLostPacketsBelow(1)
	require.Equal(t, []protocol.PacketNumber{1}, hist.getPacketNumbers())
	require.Equal(t, protocol.PacketNumber(1), hist.LowestTracked())
}

func TestSentPacketHistoryNonAckElicitingPackets(t *testing.T) {
	hist := newSentPacketHistory()
	now := time.Now()
	// non-ack-eliciting packets are not tracked when the history is empty
	hist.SentNonAckElicitingPacket(0, protocol.Encryption1RTT, now)
	require.Empty(t, hist.getPacketNumbers())
	hist.SentAckElicitingPacket(&Packet{PacketNumber: 1, EncryptionLevel: protocol.Encryption1RTT, SendTime: now})
	hist.SentNonAckElicitingPacket(2, protocol.Encryption1RTT, now)
	hist.SentAckElicitingPacket(&Packet{PacketNumber: 3, EncryptionLevel: protocol.Encryption1RTT, SendTime: now})
	require.Equal(t, []protocol.PacketNumber{1, 3}, hist.getPacketNumbers())
}
