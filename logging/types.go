package logging

import "github.com/quivernet/quic/internal/protocol"

type (
	// A ByteCount is used to count bytes.
	ByteCount = protocol.ByteCount
	// An ECN is an Explicit Congestion Notification codepoint.
	ECN = protocol.ECN
	// An EncryptionLevel is the encryption level of a packet.
	EncryptionLevel = protocol.EncryptionLevel
	// A PacketNumber is a QUIC packet number.
	PacketNumber = protocol.PacketNumber
	// A PacketNumberSpace is one of the three packet number sequences.
	PacketNumberSpace = protocol.PacketNumberSpace
	// The Perspective is the role of a QUIC endpoint (client or server).
	Perspective = protocol.Perspective
	// A StreamID is the stream ID of a QUIC stream.
	StreamID = protocol.StreamID
)

const (
	// PerspectiveServer is used for a QUIC server
	PerspectiveServer = protocol.PerspectiveServer
	// PerspectiveClient is used for a QUIC client
	PerspectiveClient = protocol.PerspectiveClient
)

// PacketLossReason is the reason a packet was declared lost.
type PacketLossReason uint8

const (
	// PacketLossReorderingThreshold is used when a packet is declared lost
	// because it is more than the reordering threshold below the largest acked.
	PacketLossReorderingThreshold PacketLossReason = iota
	// PacketLossTimeThreshold is used when a packet is declared lost because
	// it was sent too long before the largest acked.
	PacketLossTimeThreshold
)

func (r PacketLossReason) String() string {
	switch r {
	case PacketLossReorderingThreshold:
		return "reordering_threshold"
	case PacketLossTimeThreshold:
		return "time_threshold"
	default:
		return "unknown"
	}
}

// PathValidationResult is the outcome of a path validation attempt.
type PathValidationResult uint8

const (
	// PathValidationSucceeded means a matching PATH_RESPONSE was received.
	PathValidationSucceeded PathValidationResult = iota
	// PathValidationFailed means the validation exhausted all retries.
	PathValidationFailed
	// PathValidationCanceled means the validation was canceled by the caller.
	PathValidationCanceled
)

func (r PathValidationResult) String() string {
	switch r {
	case PathValidationSucceeded:
		return "succeeded"
	case PathValidationFailed:
		return "failed"
	case PathValidationCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}
