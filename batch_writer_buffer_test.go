package quic

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/internal/utils"
)

var (
	testSelfAddr = net.ParseIP("192.0.2.1")
	testPeerAddr = &net.UDPAddr{IP: net.ParseIP("192.0.2.2"), Port: 4433}
)

func newTestBuffer(t *testing.T) *batchWriterBuffer {
	t.Helper()
	return newBatchWriterBuffer(utils.DefaultLogger)
}

func TestBatchWriterBufferInPlacePush(t *testing.T) {
	b := newTestBuffer(t)
	loc := b.GetNextWriteLocation()
	require.NotNil(t, loc)
	n := copy(loc, []byte("foobar"))

	res := b.PushBufferedWrite(loc[:n], testSelfAddr, testPeerAddr, perPacketOptions{})
	require.True(t, res.Succeeded)
	require.False(t, res.BufferCopied)
	require.Equal(t, 6, b.SizeInUse())
	require.Equal(t, 1, b.Len())
	require.Equal(t, []byte("foobar"), b.Data())
}

func TestBatchWriterBufferExternalPushIsCopied(t *testing.T) {
	b := newTestBuffer(t)
	res := b.PushBufferedWrite([]byte("foobar"), testSelfAddr, testPeerAddr, perPacketOptions{})
	require.True(t, res.Succeeded)
	require.True(t, res.BufferCopied)
	require.Equal(t, []byte("foobar"), b.Data())
}

func TestBatchWriterBufferRejectsOversizedPacket(t *testing.T) {
	b := newTestBuffer(t)
	res := b.PushBufferedWrite(make([]byte, protocol.MaxPacketBufferSize+1), testSelfAddr, testPeerAddr, perPacketOptions{})
	require.False(t, res.Succeeded)
	require.Zero(t, b.Len())
}

func TestBatchWriterBufferMovesAliasedPush(t *testing.T) {
	b := newTestBuffer(t)
	loc := b.GetNextWriteLocation()
	copy(loc, "foobar")
	require.True(t, b.PushBufferedWrite(loc[:6], testSelfAddr, testPeerAddr, perPacketOptions{}).Succeeded)

	// After a flush pops the first write, a packet already serialized into
	// the arena has to be moved down to the front.
	loc2 := b.GetNextWriteLocation()
	copy(loc2, "quux")
	require.Equal(t, 1, b.PopBufferedWrite(1))

	res := b.PushBufferedWrite(loc2[:4], testSelfAddr, testPeerAddr, perPacketOptions{})
	require.True(t, res.Succeeded)
	require.True(t, res.BufferCopied)
	require.Equal(t, []byte("quux"), b.Data())
	require.NoError(t, b.invariants())
}

func TestBatchWriterBufferBatchIDSkipsZero(t *testing.T) {
	b := newTestBuffer(t)
	res := b.PushBufferedWrite([]byte("a"), testSelfAddr, testPeerAddr, perPacketOptions{})
	require.Equal(t, uint32(1), res.BatchID)
	// pushes into a non-empty buffer belong to the same batch
	res = b.PushBufferedWrite([]byte("b"), testSelfAddr, testPeerAddr, perPacketOptions{})
	require.Equal(t, uint32(1), res.BatchID)

	b.Clear()
	res = b.PushBufferedWrite([]byte("c"), testSelfAddr, testPeerAddr, perPacketOptions{})
	require.Equal(t, uint32(2), res.BatchID)

	b.Clear()
	b.batchID = ^uint32(0) // about to wrap around
	res = b.PushBufferedWrite([]byte("d"), testSelfAddr, testPeerAddr, perPacketOptions{})
	require.Equal(t, uint32(1), res.BatchID)
}

func TestBatchWriterBufferPopCompactsRemainingWrites(t *testing.T) {
	b := newTestBuffer(t)
	for _, s := range []string{"aaa", "bbbb", "cc", "ddddd"} {
		require.True(t, b.PushBufferedWrite([]byte(s), testSelfAddr, testPeerAddr, perPacketOptions{}).Succeeded)
	}
	require.Equal(t, 14, b.SizeInUse())

	require.Equal(t, 2, b.PopBufferedWrite(2))
	require.Equal(t, 2, b.Len())
	require.Equal(t, 7, b.SizeInUse())
	// the remaining payloads moved to the front of the arena
	require.Equal(t, []byte("ccddddd"), b.Data())
	require.Equal(t, 0, b.Writes()[0].offset)
	require.Equal(t, 2, b.Writes()[1].offset)

	require.Equal(t, 2, b.PopBufferedWrite(2))
	require.Zero(t, b.Len())
	require.Zero(t, b.SizeInUse())
}

func TestBatchWriterBufferPopMoreThanBuffered(t *testing.T) {
	b := newTestBuffer(t)
	require.True(t, b.PushBufferedWrite([]byte("a"), testSelfAddr, testPeerAddr, perPacketOptions{}).Succeeded)
	require.Equal(t, 1, b.PopBufferedWrite(5))
	require.Zero(t, b.Len())
}

func TestBatchWriterBufferUndoLastPush(t *testing.T) {
	b := newTestBuffer(t)
	require.True(t, b.PushBufferedWrite([]byte("foo"), testSelfAddr, testPeerAddr, perPacketOptions{}).Succeeded)
	require.True(t, b.PushBufferedWrite([]byte("bar"), testSelfAddr, testPeerAddr, perPacketOptions{}).Succeeded)
	b.UndoLastPush()
	require.Equal(t, 1, b.Len())
	require.Equal(t, 3, b.SizeInUse())
	require.Equal(t, []byte("foo"), b.Data())
	require.NoError(t, b.invariants())
}

func TestBatchWriterBufferFillsUp(t *testing.T) {
	b := newTestBuffer(t)
	pkt := bytes.Repeat([]byte{'x'}, protocol.MaxPacketBufferSize)
	for i := 0; i < protocol.MaxGSOBatchSize; i++ {
		loc := b.GetNextWriteLocation()
		require.NotNil(t, loc)
		copy(loc, pkt)
		require.True(t, b.PushBufferedWrite(loc, testSelfAddr, testPeerAddr, perPacketOptions{}).Succeeded)
	}
	require.Nil(t, b.GetNextWriteLocation())
	res := b.PushBufferedWrite([]byte("x"), testSelfAddr, testPeerAddr, perPacketOptions{})
	require.False(t, res.Succeeded)
}

func TestBatchWriterBufferOptionsAreCopied(t *testing.T) {
	b := newTestBuffer(t)
	opts := perPacketOptions{ECN: protocol.ECT0, FlowLabel: 42}
	require.True(t, b.PushBufferedWrite([]byte("foo"), testSelfAddr, testPeerAddr, opts).Succeeded)
	opts.ECN = protocol.ECNCE
	opts.FlowLabel = 7
	require.Equal(t, protocol.ECT0, b.Writes()[0].options.ECN)
	require.EqualValues(t, 42, b.Writes()[0].options.FlowLabel)
}
