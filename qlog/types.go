package qlog

import (
	"time"

	"github.com/francoispqt/gojay"

	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/logging"
)

type category uint8

const (
	categoryTransport category = iota
	categoryRecovery
)

func (c category) String() string {
	switch c {
	case categoryTransport:
		return "transport"
	case categoryRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

type timerEventType uint8

const (
	timerSet timerEventType = iota
	timerExpired
	timerCancelled
)

func (t timerEventType) String() string {
	switch t {
	case timerSet:
		return "set"
	case timerExpired:
		return "expired"
	case timerCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func packetNumberSpaceName(space logging.PacketNumberSpace) string {
	switch space {
	case protocol.PacketNumberSpaceInitial:
		return "initial"
	case protocol.PacketNumberSpaceHandshake:
		return "handshake"
	default:
		return "application_data"
	}
}

func milliseconds(d time.Duration) float64 { return float64(d.Nanoseconds()) / 1e6 }

type vantagePoint struct {
	perspective logging.Perspective
}

var _ gojay.MarshalerJSONObject = vantagePoint{}

func (p vantagePoint) IsNil() bool { return false }
func (p vantagePoint) MarshalJSONObject(enc *gojay.Encoder) {
	switch p.perspective {
	case logging.PerspectiveClient:
		enc.StringKey("type", "client")
	case logging.PerspectiveServer:
		enc.StringKey("type", "server")
	}
}
