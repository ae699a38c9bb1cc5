// Package qlog records transport events in the qlog NDJSON format.
package qlog

import (
	"io"
	"log"
	"net"
	"time"

	"github.com/francoispqt/gojay"

	"github.com/quivernet/quic/logging"
)

// Support for qlog draft-02, serialized as newline-delimited JSON.
const eventChanSize = 50

// The recordSeparator precedes every NDJSON record, as required for the
// JSON text sequence format.
const recordSeparator = 0x1e

type topLevel struct {
	perspective   logging.Perspective
	referenceTime time.Time
}

var _ gojay.MarshalerJSONObject = topLevel{}

func (l topLevel) IsNil() bool { return false }
func (l topLevel) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("qlog_format", "NDJSON")
	enc.StringKey("qlog_version", "draft-02")
	enc.ObjectKey("trace", trace(l))
}

type trace struct {
	perspective   logging.Perspective
	referenceTime time.Time
}

var _ gojay.MarshalerJSONObject = trace{}

func (t trace) IsNil() bool { return false }
func (t trace) MarshalJSONObject(enc *gojay.Encoder) {
	enc.ObjectKey("vantage_point", vantagePoint{perspective: t.perspective})
	enc.ObjectKey("common_fields", commonFields{referenceTime: t.referenceTime})
}

type commonFields struct {
	referenceTime time.Time
}

var _ gojay.MarshalerJSONObject = commonFields{}

func (f commonFields) IsNil() bool { return false }
func (f commonFields) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Float64Key("reference_time", float64(f.referenceTime.UnixNano())/1e6)
	enc.StringKey("time_format", "relative")
}

type connectionTracer struct {
	w             io.WriteCloser
	referenceTime time.Time

	events     chan event
	runStopped chan struct{}
	encodeErr  error
}

// NewConnectionTracer records the events of a connection to w in qlog
// NDJSON format. Events are encoded on a background goroutine; the Close
// callback flushes and closes w.
func NewConnectionTracer(w io.WriteCloser, p logging.Perspective) *logging.ConnectionTracer {
	t := &connectionTracer{
		w:             w,
		referenceTime: time.Now(),
		events:        make(chan event, eventChanSize),
		runStopped:    make(chan struct{}),
	}
	go t.run(p)

	return &logging.ConnectionTracer{
		SentPacket: func(space logging.PacketNumberSpace, pn logging.PacketNumber, size logging.ByteCount, ackEliciting bool) {
			t.record(eventPacketSent{Space: space, PacketNumber: pn, Size: size, AckEliciting: ackEliciting})
		},
		AcknowledgedPacket: func(space logging.PacketNumberSpace, pn logging.PacketNumber) {
			t.record(eventPacketAcknowledged{Space: space, PacketNumber: pn})
		},
		LostPacket: func(space logging.PacketNumberSpace, pn logging.PacketNumber, reason logging.PacketLossReason) {
			t.record(eventPacketLost{Space: space, PacketNumber: pn, Trigger: reason})
		},
		SpuriousLoss: func(space logging.PacketNumberSpace, pn logging.PacketNumber) {
			t.record(eventSpuriousLoss{Space: space, PacketNumber: pn})
		},
		UpdatedRTT: func(latest, smoothed, minRTT, meanDeviation time.Duration) {
			t.record(eventMetricsUpdated{Latest: latest, Smoothed: smoothed, Min: minRTT, MeanDeviation: meanDeviation})
		},
		SetLossTimer: func(space logging.PacketNumberSpace, deadline time.Time) {
			t.record(eventLossTimerUpdated{
				EventType: timerSet,
				Space:     space,
				HasSpace:  true,
				Delta:     deadline.Sub(time.Now()),
			})
		},
		LossTimerExpired: func(space logging.PacketNumberSpace) {
			t.record(eventLossTimerUpdated{EventType: timerExpired, Space: space, HasSpace: true})
		},
		LossTimerCanceled: func() {
			t.record(eventLossTimerUpdated{EventType: timerCancelled})
		},
		BatchFlushed: func(numPackets int, bytes logging.ByteCount) {
			t.record(eventDatagramsSent{Count: numPackets, Bytes: bytes})
		},
		DroppedPackets: func(numPackets int) {
			t.record(eventDatagramsDropped{Count: numPackets})
		},
		PathValidationStarted: func(local, remote net.Addr) {
			t.record(eventPathValidationStarted{Local: local, Remote: remote})
		},
		PathChallengeSent: nil, // the payload is not interesting enough to log
		ConcludedPathValidation: func(remote net.Addr, result logging.PathValidationResult) {
			t.record(eventPathValidationConcluded{Remote: remote, Result: result})
		},
		StreamLimitReached: func(streamID logging.StreamID) {
			t.record(eventStreamLimitReached{StreamID: streamID})
		},
		Close: func() { t.close() },
	}
}

func (t *connectionTracer) record(details eventDetails) {
	t.events <- event{
		RelativeTime: time.Since(t.referenceTime),
		eventDetails: details,
	}
}

func (t *connectionTracer) run(p logging.Perspective) {
	defer close(t.runStopped)
	enc := gojay.NewEncoder(t.w)
	if err := t.writeRecord(enc, topLevel{perspective: p, referenceTime: t.referenceTime}); err != nil {
		t.encodeErr = err
	}
	for ev := range t.events {
		if t.encodeErr != nil { // if encoding failed, just continue draining the event channel
			continue
		}
		if err := t.writeRecord(enc, ev); err != nil {
			t.encodeErr = err
		}
	}
}

func (t *connectionTracer) writeRecord(enc *gojay.Encoder, obj gojay.MarshalerJSONObject) error {
	if _, err := t.w.Write([]byte{recordSeparator}); err != nil {
		return err
	}
	if err := enc.Encode(obj); err != nil {
		return err
	}
	_, err := t.w.Write([]byte{'\n'})
	return err
}

func (t *connectionTracer) close() {
	close(t.events)
	<-t.runStopped
	if t.encodeErr != nil {
		log.Printf("exporting qlog failed: %s\n", t.encodeErr)
	}
	if err := t.w.Close(); err != nil {
		log.Printf("closing qlog file failed: %s\n", err)
	}
}
