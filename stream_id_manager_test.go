package quic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/internal/utils"
	"github.com/quivernet/quic/logging"
)

func newBidiManager(t *testing.T, pers protocol.Perspective, maxOutgoing, maxIncoming int) *streamIDManager {
	t.Helper()
	return newStreamIDManager(protocol.StreamTypeBidi, pers, maxOutgoing, maxIncoming, nil, utils.DefaultLogger)
}

func TestStreamIDManagerOutgoingStreamIDs(t *testing.T) {
	m := newBidiManager(t, protocol.PerspectiveClient, 100, 100)
	require.Equal(t, protocol.StreamID(0), m.GetNextOutgoingStreamID())
	require.Equal(t, protocol.StreamID(4), m.GetNextOutgoingStreamID())
	require.Equal(t, protocol.StreamID(8), m.GetNextOutgoingStreamID())

	s := newStreamIDManager(protocol.StreamTypeUni, protocol.PerspectiveServer, 100, 100, nil, utils.DefaultLogger)
	require.Equal(t, protocol.StreamID(3), s.GetNextOutgoingStreamID())
	require.Equal(t, protocol.StreamID(7), s.GetNextOutgoingStreamID())
}

func TestStreamIDManagerPeerStreamsInOrder(t *testing.T) {
	m := newBidiManager(t, protocol.PerspectiveServer, 100, 100)
	require.True(t, m.MaybeIncreaseLargestPeerStreamID(0))
	require.True(t, m.MaybeIncreaseLargestPeerStreamID(4))
	// reopening an already accepted ID succeeds
	require.True(t, m.MaybeIncreaseLargestPeerStreamID(0))
	require.Empty(t, m.availableStreams)
}

func TestStreamIDManagerPeerStreamsOutOfOrder(t *testing.T) {
	m := newBidiManager(t, protocol.PerspectiveServer, 100, 100)
	// the peer opens its 4th stream first, making streams 0, 4 and 8 available
	require.True(t, m.MaybeIncreaseLargestPeerStreamID(12))
	require.Len(t, m.availableStreams, 3)
	require.True(t, m.IsAvailableStream(0))
	require.True(t, m.IsAvailableStream(8))

	require.True(t, m.MaybeIncreaseLargestPeerStreamID(8))
	require.Len(t, m.availableStreams, 2)
}

func TestStreamIDManagerAvailableStreamLimit(t *testing.T) {
	const maxIncoming = 200
	m := newBidiManager(t, protocol.PerspectiveServer, 100, maxIncoming)

	// opening peer stream index 199 out of order stays within the budget
	id := protocol.StreamNum(200).StreamID(protocol.StreamTypeBidi, protocol.PerspectiveClient)
	require.True(t, m.MaybeIncreaseLargestPeerStreamID(id))
	require.Len(t, m.availableStreams, 199)

	// jumping past the budget is rejected, state unchanged
	far := protocol.StreamNum(maxIncoming*protocol.MaxStreamsMultiplier + 10).StreamID(protocol.StreamTypeBidi, protocol.PerspectiveClient)
	require.False(t, m.MaybeIncreaseLargestPeerStreamID(far))
	require.Len(t, m.availableStreams, 199)
	require.Equal(t, id, m.largestPeerCreatedStreamID)
}

func TestStreamIDManagerLimitRejectionIsTraced(t *testing.T) {
	var rejected []logging.StreamID
	tracer := &logging.ConnectionTracer{
		StreamLimitReached: func(id logging.StreamID) { rejected = append(rejected, id) },
	}
	m := newStreamIDManager(protocol.StreamTypeBidi, protocol.PerspectiveServer, 1, 1, tracer, utils.DefaultLogger)
	far := protocol.StreamNum(100).StreamID(protocol.StreamTypeBidi, protocol.PerspectiveClient)
	require.False(t, m.MaybeIncreaseLargestPeerStreamID(far))
	require.Equal(t, []logging.StreamID{far}, rejected)
}

func TestStreamIDManagerOpenStreamCounting(t *testing.T) {
	m := newBidiManager(t, protocol.PerspectiveClient, 2, 1)
	require.True(t, m.CanOpenNextOutgoingStream())
	m.ActivateStream(false)
	require.True(t, m.CanOpenNextOutgoingStream())
	m.ActivateStream(false)
	require.False(t, m.CanOpenNextOutgoingStream())

	m.OnStreamClosed(false)
	require.True(t, m.CanOpenNextOutgoingStream())

	require.True(t, m.CanOpenIncomingStream())
	m.ActivateStream(true)
	require.False(t, m.CanOpenIncomingStream())
	m.OnStreamClosed(true)
	require.True(t, m.CanOpenIncomingStream())

	// closing without an open stream doesn't underflow
	m.OnStreamClosed(true)
	require.Zero(t, m.NumOpenIncomingStreams())
}

func TestStreamIDManagerIsAvailableStream(t *testing.T) {
	m := newBidiManager(t, protocol.PerspectiveClient, 100, 100)
	require.Equal(t, protocol.StreamID(0), m.GetNextOutgoingStreamID())
	// issued IDs are no longer available, future ones are
	require.False(t, m.IsAvailableStream(0))
	require.True(t, m.IsAvailableStream(4))

	// peer-initiated IDs beyond the high-water mark are available
	require.True(t, m.IsAvailableStream(1))
	require.True(t, m.MaybeIncreaseLargestPeerStreamID(9))
	require.True(t, m.IsAvailableStream(1))  // skipped, in the available set
	require.False(t, m.IsAvailableStream(9)) // used by the peer
	require.True(t, m.IsAvailableStream(13))
}

func TestUberStreamIDManagerDispatchesOnDirectionality(t *testing.T) {
	m := newUberStreamIDManager(protocol.PerspectiveClient, 2, 2, 1, 1, nil, utils.DefaultLogger)
	require.Equal(t, protocol.StreamID(0), m.GetNextOutgoingBidirectionalStreamID())
	require.Equal(t, protocol.StreamID(2), m.GetNextOutgoingUnidirectionalStreamID())
	require.Equal(t, protocol.StreamID(4), m.GetNextOutgoingBidirectionalStreamID())

	// server-initiated bidi (1) and uni (3) streams go to different managers
	require.True(t, m.MaybeIncreaseLargestPeerStreamID(1))
	require.True(t, m.MaybeIncreaseLargestPeerStreamID(3))
	require.Empty(t, m.bidi.availableStreams)
	require.Empty(t, m.uni.availableStreams)

	// budgets are independent
	m.ActivateStream(2, false)
	require.False(t, m.CanOpenNextOutgoingUnidirectionalStream())
	require.True(t, m.CanOpenNextOutgoingBidirectionalStream())

	m.ActivateStream(1, true)
	m.ActivateStream(3, true)
	require.True(t, m.CanOpenIncomingStream(5))
	require.False(t, m.CanOpenIncomingStream(7))
	m.OnStreamClosed(3, true)
	require.True(t, m.CanOpenIncomingStream(7))
}
