package wire

import (
	"io"

	"github.com/quivernet/quic/internal/protocol"
)

const pathResponseFrameType = 0x1b

// A PathResponseFrame is a PATH_RESPONSE frame
type PathResponseFrame struct {
	Data [8]byte
}

// ParsePathResponseFrame parses a PATH_RESPONSE frame.
// The frame type byte must already have been consumed.
func ParsePathResponseFrame(b []byte) (*PathResponseFrame, int, error) {
	f := &PathResponseFrame{}
	if len(b) < 8 {
		return nil, 0, io.EOF
	}
	copy(f.Data[:], b)
	return f, 8, nil
}

// Append appends the frame, including the frame type byte.
func (f *PathResponseFrame) Append(b []byte) ([]byte, error) {
	b = append(b, pathResponseFrameType)
	b = append(b, f.Data[:]...)
	return b, nil
}

// Length of a written frame
func (f *PathResponseFrame) Length() protocol.ByteCount {
	return 1 + 8
}
