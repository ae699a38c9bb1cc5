package quic

import (
	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/internal/utils"
	"github.com/quivernet/quic/logging"
)

// The uberStreamIDManager keeps one streamIDManager per stream direction
// and dispatches on the directionality bit of the stream ID. Budgets are
// independent: exhausting the bidirectional limit doesn't affect
// unidirectional streams.
type uberStreamIDManager struct {
	bidi *streamIDManager
	uni  *streamIDManager
}

func newUberStreamIDManager(
	pers protocol.Perspective,
	maxOpenOutgoingBidi, maxOpenIncomingBidi int,
	maxOpenOutgoingUni, maxOpenIncomingUni int,
	tracer *logging.ConnectionTracer,
	logger utils.Logger,
) *uberStreamIDManager {
	return &uberStreamIDManager{
		bidi: newStreamIDManager(protocol.StreamTypeBidi, pers, maxOpenOutgoingBidi, maxOpenIncomingBidi, tracer, logger),
		uni:  newStreamIDManager(protocol.StreamTypeUni, pers, maxOpenOutgoingUni, maxOpenIncomingUni, tracer, logger),
	}
}

func (m *uberStreamIDManager) manager(id protocol.StreamID) *streamIDManager {
	if id.Type() == protocol.StreamTypeUni {
		return m.uni
	}
	return m.bidi
}

func (m *uberStreamIDManager) GetNextOutgoingBidirectionalStreamID() protocol.StreamID {
	return m.bidi.GetNextOutgoingStreamID()
}

func (m *uberStreamIDManager) GetNextOutgoingUnidirectionalStreamID() protocol.StreamID {
	return m.uni.GetNextOutgoingStreamID()
}

func (m *uberStreamIDManager) MaybeIncreaseLargestPeerStreamID(id protocol.StreamID) bool {
	return m.manager(id).MaybeIncreaseLargestPeerStreamID(id)
}

func (m *uberStreamIDManager) CanOpenNextOutgoingBidirectionalStream() bool {
	return m.bidi.CanOpenNextOutgoingStream()
}

func (m *uberStreamIDManager) CanOpenNextOutgoingUnidirectionalStream() bool {
	return m.uni.CanOpenNextOutgoingStream()
}

func (m *uberStreamIDManager) CanOpenIncomingStream(id protocol.StreamID) bool {
	return m.manager(id).CanOpenIncomingStream()
}

func (m *uberStreamIDManager) ActivateStream(id protocol.StreamID, incoming bool) {
	m.manager(id).ActivateStream(incoming)
}

func (m *uberStreamIDManager) OnStreamClosed(id protocol.StreamID, incoming bool) {
	m.manager(id).OnStreamClosed(incoming)
}

func (m *uberStreamIDManager) IsAvailableStream(id protocol.StreamID) bool {
	return m.manager(id).IsAvailableStream(id)
}
