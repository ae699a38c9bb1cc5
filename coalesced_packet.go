package quic

import (
	"net"

	"github.com/quivernet/quic/internal/protocol"
)

// A coalescedPacket accounts for multiple QUIC packets of different
// encryption levels sharing a single UDP datagram. It only tracks sizes and
// metadata, the serialized packets are stored elsewhere.
type coalescedPacket struct {
	length          protocol.ByteCount
	maxPacketLength protocol.ByteCount

	selfAddr net.IP
	peerAddr *net.UDPAddr

	containsLevel [protocol.Encryption1RTT + 1]bool
	initialSeen   bool
}

// MaybeCoalescePacket tries to add a packet of the given length and
// encryption level to the datagram. Each encryption level can appear at
// most once, all packets must share the address pair and the maximum
// datagram size, and the total length cannot exceed that maximum.
// It reports whether the packet was added.
func (p *coalescedPacket) MaybeCoalescePacket(length protocol.ByteCount, encLevel protocol.EncryptionLevel, selfAddr net.IP, peerAddr *net.UDPAddr, maxPacketLength protocol.ByteCount) bool {
	if length == 0 {
		return false
	}
	if p.length == 0 {
		// first packet of the datagram
		p.maxPacketLength = maxPacketLength
		p.selfAddr = selfAddr
		p.peerAddr = peerAddr
	} else {
		if p.maxPacketLength != maxPacketLength {
			return false
		}
		if !p.selfAddr.Equal(selfAddr) || !udpAddrsEqual(p.peerAddr, peerAddr) {
			return false
		}
		if p.containsLevel[encLevel] {
			return false
		}
		if p.length+length > p.maxPacketLength {
			return false
		}
	}
	p.length += length
	p.containsLevel[encLevel] = true
	if encLevel == protocol.EncryptionInitial {
		p.initialSeen = true
	}
	return true
}

// Length is the total size of the coalesced packets, excluding padding.
func (p *coalescedPacket) Length() protocol.ByteCount { return p.length }

// PaddingSize is the number of padding bytes needed to fill the datagram
// up to the maximum packet length. Only datagrams carrying an Initial
// packet are padded.
func (p *coalescedPacket) PaddingSize() protocol.ByteCount {
	if !p.initialSeen || p.length == 0 {
		return 0
	}
	return p.maxPacketLength - p.length
}

// ContainsPacketOfEncryptionLevel says if a packet of the given level was coalesced.
func (p *coalescedPacket) ContainsPacketOfEncryptionLevel(encLevel protocol.EncryptionLevel) bool {
	return p.containsLevel[encLevel]
}

// Clear resets the datagram for reuse.
func (p *coalescedPacket) Clear() {
	*p = coalescedPacket{}
}
