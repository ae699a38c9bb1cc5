package qlog

import (
	"net"
	"time"

	"github.com/francoispqt/gojay"

	"github.com/quivernet/quic/logging"
)

type eventDetails interface {
	Category() category
	Name() string
	gojay.MarshalerJSONObject
}

type event struct {
	RelativeTime time.Duration
	eventDetails
}

var _ gojay.MarshalerJSONObject = event{}

func (e event) IsNil() bool { return false }
func (e event) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Float64Key("time", milliseconds(e.RelativeTime))
	enc.StringKey("name", e.Category().String()+":"+e.Name())
	enc.ObjectKey("data", e.eventDetails)
}

type eventPacketSent struct {
	Space        logging.PacketNumberSpace
	PacketNumber logging.PacketNumber
	Size         logging.ByteCount
	AckEliciting bool
}

var _ eventDetails = eventPacketSent{}

func (e eventPacketSent) Category() category { return categoryTransport }
func (e eventPacketSent) Name() string       { return "packet_sent" }
func (e eventPacketSent) IsNil() bool        { return false }

func (e eventPacketSent) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("packet_number_space", packetNumberSpaceName(e.Space))
	enc.Int64Key("packet_number", int64(e.PacketNumber))
	enc.Int64Key("raw_length", int64(e.Size))
	enc.BoolKeyOmitEmpty("ack_eliciting", e.AckEliciting)
}

type eventPacketAcknowledged struct {
	Space        logging.PacketNumberSpace
	PacketNumber logging.PacketNumber
}

var _ eventDetails = eventPacketAcknowledged{}

func (e eventPacketAcknowledged) Category() category { return categoryRecovery }
func (e eventPacketAcknowledged) Name() string       { return "packet_acknowledged" }
func (e eventPacketAcknowledged) IsNil() bool        { return false }

func (e eventPacketAcknowledged) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("packet_number_space", packetNumberSpaceName(e.Space))
	enc.Int64Key("packet_number", int64(e.PacketNumber))
}

type eventPacketLost struct {
	Space        logging.PacketNumberSpace
	PacketNumber logging.PacketNumber
	Trigger      logging.PacketLossReason
}

var _ eventDetails = eventPacketLost{}

func (e eventPacketLost) Category() category { return categoryRecovery }
func (e eventPacketLost) Name() string       { return "packet_lost" }
func (e eventPacketLost) IsNil() bool        { return false }

func (e eventPacketLost) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("packet_number_space", packetNumberSpaceName(e.Space))
	enc.Int64Key("packet_number", int64(e.PacketNumber))
	enc.StringKey("trigger", e.Trigger.String())
}

type eventSpuriousLoss struct {
	Space        logging.PacketNumberSpace
	PacketNumber logging.PacketNumber
}

var _ eventDetails = eventSpuriousLoss{}

func (e eventSpuriousLoss) Category() category { return categoryRecovery }
func (e eventSpuriousLoss) Name() string       { return "spurious_loss" }
func (e eventSpuriousLoss) IsNil() bool        { return false }

func (e eventSpuriousLoss) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("packet_number_space", packetNumberSpaceName(e.Space))
	enc.Int64Key("packet_number", int64(e.PacketNumber))
}

type eventMetricsUpdated struct {
	Latest        time.Duration
	Smoothed      time.Duration
	Min           time.Duration
	MeanDeviation time.Duration
}

var _ eventDetails = eventMetricsUpdated{}

func (e eventMetricsUpdated) Category() category { return categoryRecovery }
func (e eventMetricsUpdated) Name() string       { return "metrics_updated" }
func (e eventMetricsUpdated) IsNil() bool        { return false }

func (e eventMetricsUpdated) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Float64Key("latest_rtt", milliseconds(e.Latest))
	enc.Float64Key("smoothed_rtt", milliseconds(e.Smoothed))
	enc.Float64Key("min_rtt", milliseconds(e.Min))
	enc.Float64Key("rtt_variance", milliseconds(e.MeanDeviation))
}

type eventLossTimerUpdated struct {
	EventType timerEventType
	Space     logging.PacketNumberSpace
	// Delta is the duration until the timer fires. Only set for timerSet.
	Delta    time.Duration
	HasSpace bool
}

var _ eventDetails = eventLossTimerUpdated{}

func (e eventLossTimerUpdated) Category() category { return categoryRecovery }
func (e eventLossTimerUpdated) Name() string       { return "loss_timer_updated" }
func (e eventLossTimerUpdated) IsNil() bool        { return false }

func (e eventLossTimerUpdated) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("event_type", e.EventType.String())
	if e.HasSpace {
		enc.StringKey("packet_number_space", packetNumberSpaceName(e.Space))
	}
	if e.EventType == timerSet {
		enc.Float64Key("delta", milliseconds(e.Delta))
	}
}

type eventDatagramsSent struct {
	Count int
	Bytes logging.ByteCount
}

var _ eventDetails = eventDatagramsSent{}

func (e eventDatagramsSent) Category() category { return categoryTransport }
func (e eventDatagramsSent) Name() string       { return "datagrams_sent" }
func (e eventDatagramsSent) IsNil() bool        { return false }

func (e eventDatagramsSent) MarshalJSONObject(enc *gojay.Encoder) {
	enc.IntKey("count", e.Count)
	enc.Int64Key("raw_length", int64(e.Bytes))
}

type eventDatagramsDropped struct {
	Count int
}

var _ eventDetails = eventDatagramsDropped{}

func (e eventDatagramsDropped) Category() category { return categoryTransport }
func (e eventDatagramsDropped) Name() string       { return "datagrams_dropped" }
func (e eventDatagramsDropped) IsNil() bool        { return false }

func (e eventDatagramsDropped) MarshalJSONObject(enc *gojay.Encoder) {
	enc.IntKey("count", e.Count)
}

type eventPathValidationStarted struct {
	Local  net.Addr
	Remote net.Addr
}

var _ eventDetails = eventPathValidationStarted{}

func (e eventPathValidationStarted) Category() category { return categoryTransport }
func (e eventPathValidationStarted) Name() string       { return "path_validation_started" }
func (e eventPathValidationStarted) IsNil() bool        { return false }

func (e eventPathValidationStarted) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("local", e.Local.String())
	enc.StringKey("remote", e.Remote.String())
}

type eventPathValidationConcluded struct {
	Remote net.Addr
	Result logging.PathValidationResult
}

var _ eventDetails = eventPathValidationConcluded{}

func (e eventPathValidationConcluded) Category() category { return categoryTransport }
func (e eventPathValidationConcluded) Name() string       { return "path_validation_concluded" }
func (e eventPathValidationConcluded) IsNil() bool        { return false }

func (e eventPathValidationConcluded) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("remote", e.Remote.String())
	enc.StringKey("result", e.Result.String())
}

type eventStreamLimitReached struct {
	StreamID logging.StreamID
}

var _ eventDetails = eventStreamLimitReached{}

func (e eventStreamLimitReached) Category() category { return categoryTransport }
func (e eventStreamLimitReached) Name() string       { return "stream_limit_reached" }
func (e eventStreamLimitReached) IsNil() bool        { return false }

func (e eventStreamLimitReached) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Int64Key("stream_id", int64(e.StreamID))
}
