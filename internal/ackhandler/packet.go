package ackhandler

import (
	"time"

	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/internal/wire"
)

// A TransmissionType says why a packet was sent.
type TransmissionType uint8

const (
	// TransmissionTypeOriginal is a packet sent for the first time.
	TransmissionTypeOriginal TransmissionType = iota
	// TransmissionTypeLossRetransmission carries frames retransmitted after a loss declaration.
	TransmissionTypeLossRetransmission
	// TransmissionTypePTO carries frames sent in response to a probe timeout.
	TransmissionTypePTO
)

// A Frame is a frame plus the callbacks to be called when it is acknowledged or lost.
type Frame struct {
	Frame   wire.Frame
	OnLost  func(wire.Frame)
	OnAcked func(wire.Frame)
}

// A Packet is the record kept for every sent packet,
// from the time it is sent until it is acknowledged or abandoned.
type Packet struct {
	PacketNumber     protocol.PacketNumber
	EncryptionLevel  protocol.EncryptionLevel
	TransmissionType TransmissionType
	Frames           []Frame
	Length           protocol.ByteCount
	SendTime         time.Time
	// IsAckEliciting says if the packet contains at least one retransmittable frame.
	IsAckEliciting bool

	includedInBytesInFlight bool
	declaredLost            bool
	skippedPacket           bool
}

// outstanding packets count towards loss detection and bytes in flight
func (p *Packet) outstanding() bool {
	return !p.declaredLost && !p.skippedPacket
}

// DeclaredLost says if this packet was already declared lost.
// A lost packet is kept in the history for a while, so that a
// late acknowledgement can be recognized as a spurious loss.
func (p *Packet) DeclaredLost() bool { return p.declaredLost }
