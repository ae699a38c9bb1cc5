// Package logging defines the tracer callback surface of this QUIC core.
// This package should not be considered stable.
package logging

import (
	"net"
	"time"
)

// A ConnectionTracer records events.
// Only set the fields for the events you're interested in.
type ConnectionTracer struct {
	SentPacket              func(space PacketNumberSpace, pn PacketNumber, size ByteCount, ackEliciting bool)
	AcknowledgedPacket      func(space PacketNumberSpace, pn PacketNumber)
	LostPacket              func(space PacketNumberSpace, pn PacketNumber, reason PacketLossReason)
	SpuriousLoss            func(space PacketNumberSpace, pn PacketNumber)
	UpdatedRTT              func(latest, smoothed, minRTT, meanDeviation time.Duration)
	SetLossTimer            func(space PacketNumberSpace, t time.Time)
	LossTimerExpired        func(space PacketNumberSpace)
	LossTimerCanceled       func()
	BatchFlushed            func(numPackets int, bytes ByteCount)
	DroppedPackets          func(numPackets int)
	PathValidationStarted   func(local, remote net.Addr)
	PathChallengeSent       func(remote net.Addr, data [8]byte)
	ConcludedPathValidation func(remote net.Addr, result PathValidationResult)
	StreamLimitReached      func(streamID StreamID)
	Close                   func()
}

// NewMultiplexedConnectionTracer creates a new connection tracer that
// multiplexes events to multiple tracers.
func NewMultiplexedConnectionTracer(tracers ...*ConnectionTracer) *ConnectionTracer {
	if len(tracers) == 0 {
		return nil
	}
	if len(tracers) == 1 {
		return tracers[0]
	}
	return &ConnectionTracer{
		SentPacket: func(space PacketNumberSpace, pn PacketNumber, size ByteCount, ackEliciting bool) {
			for _, t := range tracers {
				if t.SentPacket != nil {
					t.SentPacket(space, pn, size, ackEliciting)
				}
			}
		},
		AcknowledgedPacket: func(space PacketNumberSpace, pn PacketNumber) {
			for _, t := range tracers {
				if t.AcknowledgedPacket != nil {
					t.AcknowledgedPacket(space, pn)
				}
			}
		},
		LostPacket: func(space PacketNumberSpace, pn PacketNumber, reason PacketLossReason) {
			for _, t := range tracers {
				if t.LostPacket != nil {
					t.LostPacket(space, pn, reason)
				}
			}
		},
		SpuriousLoss: func(space PacketNumberSpace, pn PacketNumber) {
			for _, t := range tracers {
				if t.SpuriousLoss != nil {
					t.SpuriousLoss(space, pn)
				}
			}
		},
		UpdatedRTT: func(latest, smoothed, minRTT, meanDeviation time.Duration) {
			for _, t := range tracers {
				if t.UpdatedRTT != nil {
					t.UpdatedRTT(latest, smoothed, minRTT, meanDeviation)
				}
			}
		},
		SetLossTimer: func(space PacketNumberSpace, ti time.Time) {
			for _, t := range tracers {
				if t.SetLossTimer != nil {
					t.SetLossTimer(space, ti)
				}
			}
		},
		LossTimerExpired: func(space PacketNumberSpace) {
			for _, t := range tracers {
				if t.LossTimerExpired != nil {
					t.LossTimerExpired(space)
				}
			}
		},
		LossTimerCanceled: func() {
			for _, t := range tracers {
				if t.LossTimerCanceled != nil {
					t.LossTimerCanceled()
				}
			}
		},
		BatchFlushed: func(numPackets int, bytes ByteCount) {
			for _, t := range tracers {
				if t.BatchFlushed != nil {
					t.BatchFlushed(numPackets, bytes)
				}
			}
		},
		DroppedPackets: func(numPackets int) {
			for _, t := range tracers {
				if t.DroppedPackets != nil {
					t.DroppedPackets(numPackets)
				}
			}
		},
		PathValidationStarted: func(local, remote net.Addr) {
			for _, t := range tracers {
				if t.PathValidationStarted != nil {
					t.PathValidationStarted(local, remote)
				}
			}
		},
		PathChallengeSent: func(remote net.Addr, data [8]byte) {
			for _, t := range tracers {
				if t.PathChallengeSent != nil {
					t.PathChallengeSent(remote, data)
				}
			}
		},
		ConcludedPathValidation: func(remote net.Addr, result PathValidationResult) {
			for _, t := range tracers {
				if t.ConcludedPathValidation != nil {
					t.ConcludedPathValidation(remote, result)
				}
			}
		},
		StreamLimitReached: func(streamID StreamID) {
			for _, t := range tracers {
				if t.StreamLimitReached != nil {
					t.StreamLimitReached(streamID)
				}
			}
		},
		Close: func() {
			for _, t := range tracers {
				if t.Close != nil {
					t.Close()
				}
			}
		},
	}
}
