package ackhandler

import (
	"fmt"
	"time"

	"github.com/quivernet/quic/internal/protocol"
)

// The sentPacketHistory keeps track of all ack-eliciting packets
// sent in one packet number space, in ascending packet number order.
// Packets are stored in a slice indexed by the offset from the lowest
// tracked packet number, with holes represented as nil entries.
type sentPacketHistory struct {
	packets []*Packet

	numOutstanding int

	highestPacketNumber protocol.PacketNumber
}

func newSentPacketHistory() *sentPacketHistory {
	return &sentPacketHistory{
		packets:             make([]*Packet, 0, 32),
		highestPacketNumber: protocol.InvalidPacketNumber,
	}
}

func (h *sentPacketHistory) SentNonAckElicitingPacket(pn protocol.PacketNumber, encLevel protocol.EncryptionLevel, t time.Time) {
	h.maybeAddSkippedPacketsBefore(pn, encLevel, t)
	h.highestPacketNumber = pn
	if len(h.packets) > 0 {
		h.packets = append(h.packets, nil)
	}
}

func (h *sentPacketHistory) SentAckElicitingPacket(p *Packet) {
	h.maybeAddSkippedPacketsBefore(p.PacketNumber, p.EncryptionLevel, p.SendTime)
	h.packets = append(h.packets, p)
	if p.outstanding() {
		h.numOutstanding++
	}
	h.highestPacketNumber = p.PacketNumber
}

func (h *sentPacketHistory) maybeAddSkippedPacketsBefore(pn protocol.PacketNumber, encLevel protocol.EncryptionLevel, t time.Time) {
	if pn <= h.highestPacketNumber {
		panic("non-sequential packet number use")
	}
	var start protocol.PacketNumber
	if h.highestPacketNumber != protocol.InvalidPacketNumber {
		start = h.highestPacketNumber + 1
	}
	for p := start; p < pn; p++ {
		h.packets = append(h.packets, &Packet{
			PacketNumber:    p,
			EncryptionLevel: encLevel,
			SendTime:        t,
			skippedPacket:   true,
		})
	}
}

// Iterate iterates through all packets.
func (h *sentPacketHistory) Iterate(cb func(*Packet) (cont bool, err error)) error {
	for _, p := range h.packets {
		if p == nil {
			continue
		}
		cont, err := cb(p)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// GetPacket returns the packet with the given packet number, or nil if it isn't tracked.
func (h *sentPacketHistory) GetPacket(pn protocol.PacketNumber) *Packet {
	idx, ok := h.getIndex(pn)
	if !ok {
		return nil
	}
	return h.packets[idx]
}

// FirstOutstanding returns the first outstanding packet.
func (h *sentPacketHistory) FirstOutstanding() *Packet {
	if !h.HasOutstandingPackets() {
		return nil
	}
	for _, p := range h.packets {
		if p != nil && p.outstanding() {
			return p
		}
	}
	return nil
}

func (h *sentPacketHistory) Len() int {
	return len(h.packets)
}

func (h *sentPacketHistory) Remove(pn protocol.PacketNumber) error {
	idx, ok := h.getIndex(pn)
	if !ok {
		return fmt.Errorf("packet %d not found in sent packet history", pn)
	}
	p := h.packets[idx]
	if p == nil {
		return fmt.Errorf("packet %d already removed from sent packet history", pn)
	}
	if p.outstanding() {
		h.numOutstanding--
		if h.numOutstanding < 0 {
			panic("negative number of outstanding packets")
		}
	}
	h.packets[idx] = nil
	// clean up all skipped packets directly before this packet number
	for idx > 0 {
		idx--
		p := h.packets[idx]
		if p == nil || !p.skippedPacket {
			break
		}
		h.packets[idx] = nil
	}
	if idx == 0 {
		h.cleanupStart()
	}
	return nil
}

// getIndex gets the index of packet pn in the packets slice.
func (h *sentPacketHistory) getIndex(pn protocol.PacketNumber) (int, bool) {
	if len(h.packets) == 0 {
		return 0, false
	}
	firstIdx := -1
	var first protocol.PacketNumber
	for i, p := range h.packets {
		if p != nil {
			firstIdx = i
			first = p.PacketNumber
			break
		}
	}
	if firstIdx == -1 || pn < first {
		return 0, false
	}
	index := firstIdx + int(pn-first)
	if index > len(h.packets)-1 {
		return 0, false
	}
	return index, true
}

func (h *sentPacketHistory) HasOutstandingPackets() bool {
	return h.numOutstanding > 0
}

// delete all nil entries at the beginning of the packets slice
func (h *sentPacketHistory) cleanupStart() {
	for i, p := range h.packets {
		if p != nil {
			h.packets = h.packets[i:]
			return
		}
	}
	h.packets = h.packets[:0]
}

// LowestTracked returns the lowest packet number still tracked, skipped packets included.
func (h *sentPacketHistory) LowestTracked() protocol.PacketNumber {
	for _, p := range h.packets {
		if p != nil {
			return p.PacketNumber
		}
	}
	return protocol.InvalidPacketNumber
}

// DeclareLost marks a packet as lost.
// The entry stays in the history so that a late acknowledgement
// can still be recognized as a spurious loss declaration.
func (h *sentPacketHistory) DeclareLost(pn protocol.PacketNumber) {
	idx, ok := h.getIndex(pn)
	if !ok {
		return
	}
	p := h.packets[idx]
	if p == nil || p.declaredLost {
		return
	}
	if p.outstanding() {
		h.numOutstanding--
		if h.numOutstanding < 0 {
			panic("negative number of outstanding packets")
		}
	}
	p.declaredLost = true
}

// DeleteLostPacketsBelow drops lost-packet records with packet numbers below pn.
// Records that old can no longer produce a spurious loss signal.
func (h *sentPacketHistory) DeleteLostPacketsBelow(pn protocol.PacketNumber) {
	for i, p := range h.packets {
		if p == nil {
			continue
		}
		if p.PacketNumber >= pn {
			break
		}
		if p.declaredLost || p.skippedPacket {
			h.packets[i] = nil
		}
	}
	h.cleanupStart()
}
