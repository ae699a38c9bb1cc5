package quic

import (
	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/internal/utils"
	"github.com/quivernet/quic/logging"
)

// A streamIDManager does admission control for a single stream direction
// (bidirectional or unidirectional). Outgoing stream IDs are issued in
// order. For incoming streams it maintains the peer's high-water mark and
// the set of available stream IDs below it: the peer opening a stream
// implicitly makes every skipped lower ID of the same direction openable
// later. The available set is bounded, so a peer skipping far ahead in ID
// space can't run us out of memory.
type streamIDManager struct {
	perspective protocol.Perspective
	streamType  protocol.StreamType

	nextOutgoingStreamID       protocol.StreamID
	largestPeerCreatedStreamID protocol.StreamID
	availableStreams           map[protocol.StreamID]struct{}

	numOpenOutgoingStreams int
	numOpenIncomingStreams int
	maxOpenOutgoingStreams int
	maxOpenIncomingStreams int

	tracer *logging.ConnectionTracer
	logger utils.Logger
}

func newStreamIDManager(
	streamType protocol.StreamType,
	pers protocol.Perspective,
	maxOpenOutgoingStreams, maxOpenIncomingStreams int,
	tracer *logging.ConnectionTracer,
	logger utils.Logger,
) *streamIDManager {
	return &streamIDManager{
		perspective:                pers,
		streamType:                 streamType,
		nextOutgoingStreamID:       protocol.StreamNum(1).StreamID(streamType, pers),
		largestPeerCreatedStreamID: protocol.InvalidStreamID,
		availableStreams:           make(map[protocol.StreamID]struct{}),
		maxOpenOutgoingStreams:     maxOpenOutgoingStreams,
		maxOpenIncomingStreams:     maxOpenIncomingStreams,
		tracer:                     tracer,
		logger:                     logger,
	}
}

// maxAvailableStreams is the bound on the available-stream set.
// It is deliberately larger than the open-stream limit: the peer may
// legitimately open high-numbered streams before low-numbered ones.
func (m *streamIDManager) maxAvailableStreams() int {
	return m.maxOpenIncomingStreams * protocol.MaxStreamsMultiplier
}

// GetNextOutgoingStreamID issues the next locally-initiated stream ID.
// The caller must have checked CanOpenNextOutgoingStream first.
func (m *streamIDManager) GetNextOutgoingStreamID() protocol.StreamID {
	id := m.nextOutgoingStreamID
	m.nextOutgoingStreamID += 4
	return id
}

// MaybeIncreaseLargestPeerStreamID registers a peer-initiated stream ID.
// IDs at or below the high-water mark were made available earlier and are
// accepted. A higher ID makes every skipped ID of this direction available;
// if that would exceed the available-stream budget the call reports false
// and leaves all state unchanged. The caller is expected to treat a
// rejection as a stream-limit protocol violation.
func (m *streamIDManager) MaybeIncreaseLargestPeerStreamID(id protocol.StreamID) bool {
	if m.largestPeerCreatedStreamID != protocol.InvalidStreamID && id <= m.largestPeerCreatedStreamID {
		delete(m.availableStreams, id)
		return true
	}

	lowestSkipped := protocol.StreamNum(1).StreamID(m.streamType, m.perspective.Opposite())
	if m.largestPeerCreatedStreamID != protocol.InvalidStreamID {
		lowestSkipped = m.largestPeerCreatedStreamID + 4
	}
	additionalAvailable := int((id - lowestSkipped) / 4)
	if len(m.availableStreams)+additionalAvailable > m.maxAvailableStreams() {
		if m.tracer != nil && m.tracer.StreamLimitReached != nil {
			m.tracer.StreamLimitReached(logging.StreamID(id))
		}
		if m.logger.Debug() {
			m.logger.Debugf("peer stream %d rejected: %d available streams would exceed the limit of %d",
				id, len(m.availableStreams)+additionalAvailable, m.maxAvailableStreams())
		}
		return false
	}
	for skipped := lowestSkipped; skipped < id; skipped += 4 {
		m.availableStreams[skipped] = struct{}{}
	}
	m.largestPeerCreatedStreamID = id
	return true
}

// CanOpenNextOutgoingStream says if a new locally-initiated stream fits the
// peer's advertised limit. The comparison is strict, it runs before the
// stream is activated.
func (m *streamIDManager) CanOpenNextOutgoingStream() bool {
	return m.numOpenOutgoingStreams < m.maxOpenOutgoingStreams
}

// CanOpenIncomingStream says if another peer-initiated stream fits our limit.
func (m *streamIDManager) CanOpenIncomingStream() bool {
	return m.numOpenIncomingStreams < m.maxOpenIncomingStreams
}

// ActivateStream accounts for a stream transitioning to open.
func (m *streamIDManager) ActivateStream(incoming bool) {
	if incoming {
		m.numOpenIncomingStreams++
		return
	}
	m.numOpenOutgoingStreams++
}

// OnStreamClosed accounts for a stream being closed. A closed stream ID is
// never reused.
func (m *streamIDManager) OnStreamClosed(incoming bool) {
	if incoming {
		if m.numOpenIncomingStreams == 0 {
			m.logger.Errorf("BUG: closing an incoming stream, but none are open")
			return
		}
		m.numOpenIncomingStreams--
		return
	}
	if m.numOpenOutgoingStreams == 0 {
		m.logger.Errorf("BUG: closing an outgoing stream, but none are open")
		return
	}
	m.numOpenOutgoingStreams--
}

// IsAvailableStream says if the stream ID can still be opened for the first
// time. Locally-initiated IDs not yet issued are available. Peer-initiated
// IDs are available above the high-water mark, or below it when the peer
// skipped them.
func (m *streamIDManager) IsAvailableStream(id protocol.StreamID) bool {
	if id.InitiatedBy() == m.perspective {
		return id >= m.nextOutgoingStreamID
	}
	if m.largestPeerCreatedStreamID == protocol.InvalidStreamID || id > m.largestPeerCreatedStreamID {
		return true
	}
	_, ok := m.availableStreams[id]
	return ok
}

func (m *streamIDManager) NumOpenOutgoingStreams() int { return m.numOpenOutgoingStreams }
func (m *streamIDManager) NumOpenIncomingStreams() int { return m.numOpenIncomingStreams }
