package quic

import (
	"net"
	"time"
	"unsafe"

	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/internal/utils"
)

// maxGSOPacketSize is the maximum total size of a GSO write,
// limited by the 16 bit UDP length field.
const maxGSOPacketSize = 0xffff

// batchWriterBufferSize is the capacity of the staging arena.
// It holds the largest batch the kernel accepts.
const batchWriterBufferSize = protocol.MaxGSOBatchSize * protocol.MaxPacketBufferSize

// perPacketOptions are the per-write parameters.
// They are copied on push, so the caller can reuse its copy
// as soon as PushBufferedWrite returns.
type perPacketOptions struct {
	ECN protocol.ECN
	// ReleaseTime is the time the kernel should release the packet (packet pacing).
	// The zero time means release immediately.
	ReleaseTime time.Time
	// FlowLabel is the IPv6 flow label. 0 if unset.
	FlowLabel uint32
}

// A bufferedWrite is one staged outbound packet.
// The payload lives in the arena of the owning batchWriterBuffer,
// addressed by offset, so compaction doesn't need to rewrite pointers.
type bufferedWrite struct {
	offset   int
	length   int
	selfAddr net.IP
	peerAddr *net.UDPAddr
	options  perPacketOptions
}

type pushResult struct {
	Succeeded bool
	// BufferCopied says if the payload had to be copied into the arena.
	BufferCopied bool
	// BatchID is the ID of the batch this write was added to.
	// Only valid if Succeeded is true.
	BatchID uint32
}

// The batchWriterBuffer stages packet payloads contiguously so they can be
// handed to the kernel in a single syscall. It is not safe for concurrent
// use; the owning batch writer serializes access.
type batchWriterBuffer struct {
	storage []byte
	writes  []bufferedWrite

	sizeInUse int
	// batchID is incremented whenever a write is pushed into an empty
	// buffer. It wraps around and skips 0.
	batchID uint32

	logger utils.Logger
}

func newBatchWriterBuffer(logger utils.Logger) *batchWriterBuffer {
	return &batchWriterBuffer{
		storage: make([]byte, batchWriterBufferSize),
		writes:  make([]bufferedWrite, 0, protocol.MaxGSOBatchSize),
		logger:  logger,
	}
}

// GetNextWriteLocation returns the slice a caller should serialize the next
// packet into, to get the zero-copy path on push. It returns nil if the
// remaining capacity can't hold a full-size packet.
func (b *batchWriterBuffer) GetNextWriteLocation() []byte {
	if batchWriterBufferSize-b.sizeInUse < protocol.MaxPacketBufferSize {
		return nil
	}
	return b.storage[b.sizeInUse : b.sizeInUse+protocol.MaxPacketBufferSize]
}

// PushBufferedWrite stages a packet. If buf is the slice returned by
// GetNextWriteLocation, the payload is recorded in place. An external buffer
// is copied, and so is a buffer living elsewhere in the arena (this happens
// when a flush compacted the arena under a serialized packet). A partial
// overlap with the arena indicates a broken caller: the push fails and the
// buffer is left unchanged.
func (b *batchWriterBuffer) PushBufferedWrite(buf []byte, selfAddr net.IP, peerAddr *net.UDPAddr, opts perPacketOptions) pushResult {
	if err := b.invariants(); err != nil {
		b.logger.Errorf("batch writer buffer invariant violated before push: %s", err)
	}

	if len(buf) > protocol.MaxPacketBufferSize {
		b.logger.Errorf("packet of %d bytes exceeds the maximum packet size", len(buf))
		return pushResult{}
	}
	if batchWriterBufferSize-b.sizeInUse < len(buf) {
		return pushResult{}
	}

	copied := false
	if !b.isNextWriteLocation(buf) {
		inside, overlaps := b.aliasesStorage(buf)
		if overlaps && !inside {
			// A buffer partially overlapping the arena can't be safely moved.
			b.logger.Errorf("BUG: buffered write partially overlaps the staging buffer")
			return pushResult{}
		}
		// copy is memmove, an aliasing source within the arena is fine
		copy(b.storage[b.sizeInUse:], buf)
		copied = true
	}

	if len(b.writes) == 0 {
		b.batchID++
		if b.batchID == 0 { // skip 0 when wrapping around
			b.batchID++
		}
	}
	b.writes = append(b.writes, bufferedWrite{
		offset:   b.sizeInUse,
		length:   len(buf),
		selfAddr: selfAddr,
		peerAddr: peerAddr,
		options:  opts, // copied, not shared with the caller
	})
	b.sizeInUse += len(buf)
	return pushResult{Succeeded: true, BufferCopied: copied, BatchID: b.batchID}
}

// PopBufferedWrite removes the first n writes after a successful flush.
// Remaining writes are compacted to the front of the arena.
func (b *batchWriterBuffer) PopBufferedWrite(n int) int {
	if n > len(b.writes) {
		b.logger.Errorf("BUG: attempted to pop %d buffered writes, only %d buffered", n, len(b.writes))
		n = len(b.writes)
	}
	if n == 0 {
		return 0
	}
	b.writes = b.writes[n:]
	if len(b.writes) == 0 {
		b.sizeInUse = 0
		b.writes = b.writes[:0]
		return n
	}

	// Compact the remaining payloads to the front. This is the only place
	// where a second pass over the remaining writes is needed, and it
	// happens at most once per flush.
	delta := b.writes[0].offset
	end := b.writes[len(b.writes)-1].offset + b.writes[len(b.writes)-1].length
	copy(b.storage, b.storage[delta:end])
	for i := range b.writes {
		b.writes[i].offset -= delta
	}
	b.sizeInUse = end - delta

	if err := b.invariants(); err != nil {
		b.logger.Errorf("batch writer buffer invariant violated after pop: %s", err)
	}
	return n
}

// UndoLastPush retracts the most recent push. Used when a packet was
// speculatively pushed but turned out not to be batch-eligible.
func (b *batchWriterBuffer) UndoLastPush() {
	if len(b.writes) == 0 {
		return
	}
	last := b.writes[len(b.writes)-1]
	b.writes = b.writes[:len(b.writes)-1]
	b.sizeInUse -= last.length
}

// Clear drops all buffered writes.
func (b *batchWriterBuffer) Clear() {
	b.writes = b.writes[:0]
	b.sizeInUse = 0
}

func (b *batchWriterBuffer) SizeInUse() int          { return b.sizeInUse }
func (b *batchWriterBuffer) Len() int                { return len(b.writes) }
func (b *batchWriterBuffer) Writes() []bufferedWrite { return b.writes }
func (b *batchWriterBuffer) BatchID() uint32         { return b.batchID }

// Data returns the staged payloads, in push order.
func (b *batchWriterBuffer) Data() []byte {
	return b.storage[:b.sizeInUse]
}

func (b *batchWriterBuffer) isNextWriteLocation(buf []byte) bool {
	if len(buf) == 0 || b.sizeInUse >= batchWriterBufferSize {
		return false
	}
	return &buf[0] == &b.storage[b.sizeInUse]
}

// aliasesStorage classifies where buf's memory lives relative to the arena:
// fully inside it, or overlapping it at all.
func (b *batchWriterBuffer) aliasesStorage(buf []byte) (inside, overlaps bool) {
	if len(buf) == 0 {
		return false, false
	}
	start := uintptr(unsafe.Pointer(&b.storage[0]))
	end := start + uintptr(len(b.storage))
	bufStart := uintptr(unsafe.Pointer(&buf[0]))
	bufEnd := bufStart + uintptr(len(buf))
	overlaps = bufStart < end && bufEnd > start
	inside = bufStart >= start && bufEnd <= end
	return inside, overlaps
}

// invariants checks that the buffered writes form a contiguous,
// non-overlapping, increasing prefix of the arena.
func (b *batchWriterBuffer) invariants() error {
	var next int
	for i := range b.writes {
		w := &b.writes[i]
		if w.offset != next {
			return errBatchBufferInvariant
		}
		if w.length < 0 || w.offset+w.length > batchWriterBufferSize {
			return errBatchBufferInvariant
		}
		next = w.offset + w.length
	}
	if next != b.sizeInUse {
		return errBatchBufferInvariant
	}
	return nil
}
