package wire

import (
	"github.com/quivernet/quic/internal/protocol"
)

// A Frame in QUIC
type Frame interface {
	Append(b []byte) ([]byte, error)
	Length() protocol.ByteCount
}

// IsProbingFrame says if a frame is a probing frame.
// See section 9.1 of RFC 9000.
func IsProbingFrame(f Frame) bool {
	switch f.(type) {
	case *PathChallengeFrame, *PathResponseFrame:
		return true
	}
	return false
}
