package protocol

import (
	"fmt"
	"time"
)

// A PacketNumber in QUIC
type PacketNumber int64

// InvalidPacketNumber is a packet number that is never sent.
// In QUIC, 0 is a valid packet number.
const InvalidPacketNumber PacketNumber = -1

// A ByteCount in QUIC
type ByteCount int64

// MaxByteCount is the maximum value of a ByteCount
const MaxByteCount = ByteCount(1<<62 - 1)

// An ApplicationErrorCode is an application-defined error code.
type ApplicationErrorCode uint64

// MaxPacketBufferSize maximum packet size of any QUIC packet, based on
// ethernet's max size, minus the IP and UDP headers. IPv6 has a 40 byte header,
// UDP adds an additional 8 bytes.  This is a total overhead of 48 bytes.
// Ethernet's max packet size is 1500 bytes,  1500 - 48 = 1452.
const MaxPacketBufferSize = 1452

// MinInitialPacketSize is the minimum size an Initial packet is required to have.
const MinInitialPacketSize = 1200

// TimerGranularity is the granularity of loss and retry timers.
const TimerGranularity = time.Millisecond

// A PacketNumberSpace is one of the three independent packet number sequences.
type PacketNumberSpace uint8

const (
	// PacketNumberSpaceInitial is the packet number space for Initial packets
	PacketNumberSpaceInitial PacketNumberSpace = iota
	// PacketNumberSpaceHandshake is the packet number space for Handshake packets
	PacketNumberSpaceHandshake
	// PacketNumberSpaceAppData is the packet number space for 0-RTT and 1-RTT packets
	PacketNumberSpaceAppData
	// NumPacketNumberSpaces is the number of packet number spaces
	NumPacketNumberSpaces = 3
)

func (s PacketNumberSpace) String() string {
	switch s {
	case PacketNumberSpaceInitial:
		return "Initial"
	case PacketNumberSpaceHandshake:
		return "Handshake"
	case PacketNumberSpaceAppData:
		return "Application Data"
	default:
		return fmt.Sprintf("unknown packet number space: %d", uint8(s))
	}
}

// ECN is the ECN codepoint of a packet, as found in the TOS byte.
type ECN uint8

const (
	// ECNNon means that the packet doesn't use ECN
	ECNNon ECN = iota // 00
	// ECT1 is the ECN-Capable Transport (1) codepoint
	ECT1 // 01
	// ECT0 is the ECN-Capable Transport (0) codepoint
	ECT0 // 10
	// ECNCE is the Congestion Experienced codepoint
	ECNCE // 11
)

func (e ECN) String() string {
	switch e {
	case ECNNon:
		return "Not-ECT"
	case ECT1:
		return "ECT(1)"
	case ECT0:
		return "ECT(0)"
	case ECNCE:
		return "CE"
	default:
		return fmt.Sprintf("invalid ECN value: %d", uint8(e))
	}
}
