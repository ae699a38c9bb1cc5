package quic

import (
	"net"

	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/internal/utils"
	"github.com/quivernet/quic/logging"
)

// maxGSOSegments is the kernel's segment count limit for a single
// generic segmentation offload write. The limit depends on the segment
// size: tiny segments (1 or 2 bytes) are capped harder.
// Empirically derived kernel limitation, not a protocol constant.
func maxGSOSegments(gsoSize int) int {
	if gsoSize <= 2 {
		return protocol.MinGSOBatchSize
	}
	return protocol.MaxGSOBatchSize
}

// The gsoBatchWriter batches same-destination packets into one
// kernel-segmented write. The first packet of a batch determines the
// segment size; every following packet must be the same size, except the
// last one, which may be shorter and ends the batch.
type gsoBatchWriter struct {
	conn rawSocket

	supportsReleaseTime bool
	// After a GSO error for a destination, the kernel path is not usable.
	// Packets are then written one segment at a time.
	gsoDisabled bool

	logger utils.Logger
}

// NewGSOBatchWriter creates a batch writer using kernel segmentation offload.
func NewGSOBatchWriter(conn rawSocket, supportsReleaseTime bool, tracer *logging.ConnectionTracer, logger utils.Logger) *batchWriter {
	return newBatchWriter(&gsoBatchWriter{
		conn:                conn,
		supportsReleaseTime: supportsReleaseTime,
		logger:              logger,
	}, tracer, logger)
}

func (w *gsoBatchWriter) canBatch(packetLen int, selfAddr net.IP, peerAddr *net.UDPAddr, opts perPacketOptions, buffered []bufferedWrite, sizeInUse int) canBatchResult {
	if len(buffered) == 0 {
		return canBatchResult{canBatch: true, mustFlush: w.gsoDisabled}
	}
	if w.gsoDisabled {
		return canBatchResult{canBatch: false, mustFlush: true}
	}
	first := &buffered[0]
	last := &buffered[len(buffered)-1]
	canBatch := len(buffered) < maxGSOSegments(first.length) &&
		last.selfAddr.Equal(selfAddr) &&
		udpAddrsEqual(last.peerAddr, peerAddr) &&
		sizeInUse+packetLen <= maxGSOPacketSize &&
		first.length == last.length &&
		first.length >= packetLen &&
		first.options.ECN == opts.ECN &&
		first.options.FlowLabel == opts.FlowLabel &&
		first.options.ReleaseTime.Equal(opts.ReleaseTime)

	// A shorter packet ends the batch, and so does reaching the segment cap.
	mustFlush := !canBatch ||
		first.length != packetLen ||
		len(buffered)+1 == maxGSOSegments(first.length)
	return canBatchResult{canBatch: canBatch, mustFlush: mustFlush}
}

func (w *gsoBatchWriter) flushBatch(buffer *batchWriterBuffer) (int, int, error) {
	writes := buffer.Writes()
	first := &writes[0]

	// GSO is disabled for singleton batches: the kernel would only add overhead.
	gsoSize := 0
	if len(writes) > 1 {
		gsoSize = first.length
	}
	oob := buildGSOControlMessages(first.selfAddr, gsoSize, first.options, w.supportsReleaseTime)

	n, err := w.conn.WriteMsg(buffer.Data(), oob, first.peerAddr)
	if err == nil {
		return len(writes), n, nil
	}
	if gsoSize > 0 && isGSOError(err) {
		w.gsoDisabled = true
		if w.logger.Debug() {
			w.logger.Debugf("GSO failed when sending to %s, falling back to sequential writes", first.peerAddr)
		}
		return w.flushSequentially(buffer)
	}
	return 0, n, err
}

// flushSequentially writes the buffered packets one at a time.
// Used after the kernel rejected a segmented write.
func (w *gsoBatchWriter) flushSequentially(buffer *batchWriterBuffer) (int, int, error) {
	data := buffer.Data()
	var packetsSent, bytesWritten int
	for _, bw := range buffer.Writes() {
		oob := buildGSOControlMessages(bw.selfAddr, 0, bw.options, w.supportsReleaseTime)
		n, err := w.conn.WriteMsg(data[bw.offset:bw.offset+bw.length], oob, bw.peerAddr)
		if err != nil {
			return packetsSent, bytesWritten, err
		}
		packetsSent++
		bytesWritten += n
	}
	return packetsSent, bytesWritten, nil
}

func udpAddrsEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Port == b.Port && a.IP.Equal(b.IP)
}
