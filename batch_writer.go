package quic

import (
	"errors"
	"net"

	"github.com/quivernet/quic/internal/utils"
	"github.com/quivernet/quic/logging"
)

// WriteStatus is the result classification of a packet write.
type WriteStatus uint8

const (
	// WriteStatusOK means the write succeeded (or the packet was buffered for a later flush).
	WriteStatusOK WriteStatus = iota
	// WriteStatusBlocked means the socket would block and nothing was buffered.
	// The caller retries the packet once the socket is writable again.
	WriteStatusBlocked
	// WriteStatusBlockedDataBuffered means the socket would block, but the
	// packet is safely buffered and will go out on the next flush.
	WriteStatusBlockedDataBuffered
	// WriteStatusMsgTooBig means the packet exceeded the path MTU.
	WriteStatusMsgTooBig
	// WriteStatusError is any other, non-retryable socket error.
	WriteStatusError
)

func (s WriteStatus) String() string {
	switch s {
	case WriteStatusOK:
		return "OK"
	case WriteStatusBlocked:
		return "BLOCKED"
	case WriteStatusBlockedDataBuffered:
		return "BLOCKED_DATA_BUFFERED"
	case WriteStatusMsgTooBig:
		return "MSG_TOO_BIG"
	case WriteStatusError:
		return "ERROR"
	default:
		return "unknown write status"
	}
}

// IsWriteBlockedStatus says if the status is one of the two blocked variants.
func IsWriteBlockedStatus(s WriteStatus) bool {
	return s == WriteStatusBlocked || s == WriteStatusBlockedDataBuffered
}

// A WriteResult is returned for every packet write and every flush.
type WriteResult struct {
	Status       WriteStatus
	BytesWritten int
	// DroppedPackets is the number of buffered packets dropped after a
	// non-retryable error. Errors during a flush are fatal for the whole
	// batch: the caller must not assume partial delivery beyond BytesWritten.
	DroppedPackets int
	Err            error
}

var (
	errBatchBufferInvariant = errors.New("buffered writes don't form a contiguous prefix of the staging buffer")
	errPacketNotBuffered    = errors.New("packet could not be buffered")
)

type canBatchResult struct {
	canBatch  bool
	mustFlush bool
}

// batchStrategy is the specialization point of the batch writer:
// the GSO and sendmmsg variants decide batchability and perform the
// actual syscall differently. The variant is selected once at
// construction, not per call.
type batchStrategy interface {
	// canBatch decides if the packet can join the current batch.
	canBatch(packetLen int, selfAddr net.IP, peerAddr *net.UDPAddr, opts perPacketOptions, buffered []bufferedWrite, sizeInUse int) canBatchResult
	// flushBatch writes all buffered packets.
	// It returns the number of packets sent and the bytes written.
	flushBatch(buffer *batchWriterBuffer) (packetsSent int, bytesWritten int, err error)
}

// A batchWriter coalesces outbound packets and hands them to the kernel in
// as few syscalls as possible. Not safe for concurrent use.
type batchWriter struct {
	buffer   *batchWriterBuffer
	strategy batchStrategy

	writeBlocked bool

	tracer *logging.ConnectionTracer
	logger utils.Logger
}

func newBatchWriter(strategy batchStrategy, tracer *logging.ConnectionTracer, logger utils.Logger) *batchWriter {
	return &batchWriter{
		buffer:   newBatchWriterBuffer(logger),
		strategy: strategy,
		tracer:   tracer,
		logger:   logger,
	}
}

// GetNextWriteLocation exposes the zero-copy serialization target.
func (w *batchWriter) GetNextWriteLocation() []byte {
	return w.buffer.GetNextWriteLocation()
}

// IsWriteBlocked says if the last write hit a would-block error.
func (w *batchWriter) IsWriteBlocked() bool { return w.writeBlocked }

// SetWritable is called by the owner once the socket is writable again.
func (w *batchWriter) SetWritable() { w.writeBlocked = false }

// WritePacket stages a packet and flushes the batch when necessary.
func (w *batchWriter) WritePacket(buf []byte, selfAddr net.IP, peerAddr *net.UDPAddr, opts perPacketOptions) WriteResult {
	if w.writeBlocked {
		return WriteResult{Status: WriteStatusBlocked}
	}

	batch := w.strategy.canBatch(len(buf), selfAddr, peerAddr, opts, w.buffer.Writes(), w.buffer.SizeInUse())
	var buffered bool
	flush := batch.mustFlush
	if batch.canBatch {
		if push := w.buffer.PushBufferedWrite(buf, selfAddr, peerAddr, opts); push.Succeeded {
			buffered = true
			// if no full-size packet fits anymore, force a flush
			flush = flush || w.buffer.GetNextWriteLocation() == nil
		} else if !flush {
			// the packet can't be staged (e.g. it exceeds the maximum
			// packet size); reporting OK would drop it silently
			if w.tracer != nil && w.tracer.DroppedPackets != nil {
				w.tracer.DroppedPackets(1)
			}
			return WriteResult{Status: WriteStatusError, Err: errPacketNotBuffered, DroppedPackets: 1}
		}
	}
	if !flush {
		return WriteResult{Status: WriteStatusOK}
	}

	result := w.checkedFlush()
	switch {
	case result.Status == WriteStatusOK:
	case IsWriteBlockedStatus(result.Status):
		if buffered {
			result.Status = WriteStatusBlockedDataBuffered
		} else {
			result.Status = WriteStatusBlocked
		}
		w.writeBlocked = true
		return result
	default:
		// A non-retryable error drops the rest of the batch. Packets that
		// reached the wire before the error were already popped by the
		// flush; only what's still buffered is dropped, plus the packet we
		// just attempted if it never made it into the buffer.
		dropped := w.buffer.Len()
		if !buffered {
			dropped++
		}
		w.buffer.Clear()
		result.DroppedPackets = dropped
		if w.tracer != nil && w.tracer.DroppedPackets != nil {
			w.tracer.DroppedPackets(dropped)
		}
		return result
	}

	// The flush succeeded. If the packet wasn't batchable with the previous
	// batch, it starts the next one.
	if !buffered {
		if push := w.buffer.PushBufferedWrite(buf, selfAddr, peerAddr, opts); !push.Succeeded {
			w.logger.Errorf("BUG: pushing into an empty batch buffer failed")
			return WriteResult{Status: WriteStatusError, Err: errBatchBufferInvariant, DroppedPackets: 1}
		}
	}
	return result
}

// Flush writes out all buffered packets. On a non-retryable error the whole
// batch is dropped.
func (w *batchWriter) Flush() WriteResult {
	if w.writeBlocked {
		return WriteResult{Status: WriteStatusBlocked}
	}
	result := w.checkedFlush()
	if IsWriteBlockedStatus(result.Status) {
		if w.buffer.Len() > 0 {
			result.Status = WriteStatusBlockedDataBuffered
		}
		w.writeBlocked = true
		return result
	}
	if result.Status != WriteStatusOK {
		// only the packets that didn't reach the wire are dropped
		dropped := w.buffer.Len()
		w.buffer.Clear()
		result.DroppedPackets = dropped
		if w.tracer != nil && w.tracer.DroppedPackets != nil {
			w.tracer.DroppedPackets(dropped)
		}
	}
	return result
}

// checkedFlush performs the flush and pops the sent packets.
func (w *batchWriter) checkedFlush() WriteResult {
	if w.buffer.Len() == 0 {
		return WriteResult{Status: WriteStatusOK}
	}
	packetsSent, bytesWritten, err := w.strategy.flushBatch(w.buffer)
	w.buffer.PopBufferedWrite(packetsSent)
	if err != nil {
		status := WriteStatusError
		switch {
		case isBlockedSyscallError(err):
			status = WriteStatusBlocked
		case isMsgSizeError(err):
			status = WriteStatusMsgTooBig
		}
		return WriteResult{Status: status, BytesWritten: bytesWritten, Err: err}
	}
	if w.tracer != nil && w.tracer.BatchFlushed != nil {
		w.tracer.BatchFlushed(packetsSent, logging.ByteCount(bytesWritten))
	}
	if w.logger.Debug() {
		w.logger.Debugf("flushed batch %d: %d packets, %d bytes", w.buffer.BatchID(), packetsSent, bytesWritten)
	}
	return WriteResult{Status: WriteStatusOK, BytesWritten: bytesWritten}
}
