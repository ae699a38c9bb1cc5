package quic

import (
	"net"

	"golang.org/x/net/ipv4"

	"github.com/quivernet/quic/internal/utils"
	"github.com/quivernet/quic/logging"
)

// maxSendmmsgBatchSize is the number of messages passed to a single
// sendmmsg call. Larger batches see diminishing returns.
const maxSendmmsgBatchSize = 16

// The mmsgBatchWriter batches packets into a single sendmmsg call.
// Unlike the segmentation offload path, the packets of a batch may differ
// in size and destination, so every packet is batchable and the batch only
// ends when it is full.
type mmsgBatchWriter struct {
	conn                *ipv4.PacketConn
	supportsReleaseTime bool

	messages []ipv4.Message

	logger utils.Logger
}

// NewSendmmsgBatchWriter creates a batch writer using sendmmsg.
// It is the fallback for sockets without segmentation offload support.
func NewSendmmsgBatchWriter(conn net.PacketConn, supportsReleaseTime bool, tracer *logging.ConnectionTracer, logger utils.Logger) *batchWriter {
	return newBatchWriter(&mmsgBatchWriter{
		// WriteBatch is packet-family agnostic, the ipv4 wrapper works for IPv6 sockets too.
		conn:                ipv4.NewPacketConn(conn),
		supportsReleaseTime: supportsReleaseTime,
		messages:            make([]ipv4.Message, 0, maxSendmmsgBatchSize),
		logger:              logger,
	}, tracer, logger)
}

func (w *mmsgBatchWriter) canBatch(_ int, _ net.IP, _ *net.UDPAddr, _ perPacketOptions, buffered []bufferedWrite, _ int) canBatchResult {
	return canBatchResult{
		canBatch:  len(buffered) < maxSendmmsgBatchSize,
		mustFlush: len(buffered)+1 >= maxSendmmsgBatchSize,
	}
}

func (w *mmsgBatchWriter) flushBatch(buffer *batchWriterBuffer) (int, int, error) {
	data := buffer.Data()
	w.messages = w.messages[:0]
	for _, bw := range buffer.Writes() {
		w.messages = append(w.messages, ipv4.Message{
			Buffers: [][]byte{data[bw.offset : bw.offset+bw.length]},
			OOB:     buildGSOControlMessages(bw.selfAddr, 0, bw.options, w.supportsReleaseTime),
			Addr:    bw.peerAddr,
		})
	}
	n, err := w.conn.WriteBatch(w.messages, 0)
	if n < 0 {
		n = 0
	}
	var bytesWritten int
	for _, m := range w.messages[:n] {
		bytesWritten += m.N
	}
	return n, bytesWritten, err
}
