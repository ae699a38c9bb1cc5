package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptionLevelPacketNumberSpace(t *testing.T) {
	require.Equal(t, PacketNumberSpaceInitial, EncryptionInitial.PacketNumberSpace())
	require.Equal(t, PacketNumberSpaceHandshake, EncryptionHandshake.PacketNumberSpace())
	// 0-RTT and 1-RTT packets share a packet number sequence
	require.Equal(t, PacketNumberSpaceAppData, Encryption0RTT.PacketNumberSpace())
	require.Equal(t, PacketNumberSpaceAppData, Encryption1RTT.PacketNumberSpace())
}

func TestEncryptionLevelStringer(t *testing.T) {
	require.Equal(t, "Initial", EncryptionInitial.String())
	require.Equal(t, "Handshake", EncryptionHandshake.String())
	require.Equal(t, "0-RTT", Encryption0RTT.String())
	require.Equal(t, "1-RTT", Encryption1RTT.String())
}
