package wire

import (
	"io"

	"github.com/quivernet/quic/internal/protocol"
)

const pathChallengeFrameType = 0x1a

// A PathChallengeFrame is a PATH_CHALLENGE frame
type PathChallengeFrame struct {
	Data [8]byte
}

// ParsePathChallengeFrame parses a PATH_CHALLENGE frame.
// The frame type byte must already have been consumed.
func ParsePathChallengeFrame(b []byte) (*PathChallengeFrame, int, error) {
	f := &PathChallengeFrame{}
	if len(b) < 8 {
		return nil, 0, io.EOF
	}
	copy(f.Data[:], b)
	return f, 8, nil
}

// Append appends the frame, including the frame type byte.
func (f *PathChallengeFrame) Append(b []byte) ([]byte, error) {
	b = append(b, pathChallengeFrameType)
	b = append(b, f.Data[:]...)
	return b, nil
}

// Length of a written frame
func (f *PathChallengeFrame) Length() protocol.ByteCount {
	return 1 + 8
}
