package quic

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quivernet/quic/internal/protocol"
)

func TestCoalescingInitialAndZeroRTT(t *testing.T) {
	var p coalescedPacket
	require.True(t, p.MaybeCoalescePacket(500, protocol.EncryptionInitial, testSelfAddr, testPeerAddr, 1500))
	require.True(t, p.MaybeCoalescePacket(500, protocol.Encryption0RTT, testSelfAddr, testPeerAddr, 1500))

	require.Equal(t, protocol.ByteCount(1000), p.Length())
	// a datagram carrying an Initial packet is padded to the full size
	require.Equal(t, protocol.ByteCount(500), p.PaddingSize())
	require.True(t, p.ContainsPacketOfEncryptionLevel(protocol.EncryptionInitial))
	require.True(t, p.ContainsPacketOfEncryptionLevel(protocol.Encryption0RTT))
	require.False(t, p.ContainsPacketOfEncryptionLevel(protocol.Encryption1RTT))
}

func TestCoalescingRejectsDuplicateEncryptionLevel(t *testing.T) {
	var p coalescedPacket
	require.True(t, p.MaybeCoalescePacket(500, protocol.Encryption0RTT, testSelfAddr, testPeerAddr, 1500))
	require.False(t, p.MaybeCoalescePacket(400, protocol.Encryption0RTT, testSelfAddr, testPeerAddr, 1500))
	require.Equal(t, protocol.ByteCount(500), p.Length())
}

func TestCoalescingRejectsMismatches(t *testing.T) {
	var p coalescedPacket
	require.True(t, p.MaybeCoalescePacket(500, protocol.EncryptionInitial, testSelfAddr, testPeerAddr, 1500))

	// different max packet length
	require.False(t, p.MaybeCoalescePacket(100, protocol.EncryptionHandshake, testSelfAddr, testPeerAddr, 1400))
	// different peer address
	otherPeer := &net.UDPAddr{IP: net.ParseIP("198.51.100.1"), Port: 443}
	require.False(t, p.MaybeCoalescePacket(100, protocol.EncryptionHandshake, testSelfAddr, otherPeer, 1500))
	// overflowing the datagram
	require.False(t, p.MaybeCoalescePacket(1001, protocol.EncryptionHandshake, testSelfAddr, testPeerAddr, 1500))
	// a zero-length packet is invalid
	require.False(t, p.MaybeCoalescePacket(0, protocol.EncryptionHandshake, testSelfAddr, testPeerAddr, 1500))

	require.Equal(t, protocol.ByteCount(500), p.Length())
	require.True(t, p.MaybeCoalescePacket(1000, protocol.EncryptionHandshake, testSelfAddr, testPeerAddr, 1500))
	require.Zero(t, p.PaddingSize())
}

func TestCoalescingWithoutInitialNeedsNoPadding(t *testing.T) {
	var p coalescedPacket
	require.True(t, p.MaybeCoalescePacket(500, protocol.EncryptionHandshake, testSelfAddr, testPeerAddr, 1500))
	require.True(t, p.MaybeCoalescePacket(500, protocol.Encryption1RTT, testSelfAddr, testPeerAddr, 1500))
	require.Zero(t, p.PaddingSize())

	p.Clear()
	require.Zero(t, p.Length())
	require.False(t, p.ContainsPacketOfEncryptionLevel(protocol.EncryptionHandshake))
}
