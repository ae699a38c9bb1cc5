package wire

import (
	"fmt"

	"github.com/quivernet/quic/quicvarint"
)

// ParseNextProbingFrame parses the next PATH_CHALLENGE or PATH_RESPONSE frame.
// Frame types are encoded as varints on the wire.
// It returns the frame and the number of bytes consumed.
func ParseNextProbingFrame(b []byte) (Frame, int, error) {
	typ, l, err := quicvarint.Parse(b)
	if err != nil {
		return nil, 0, err
	}
	b = b[l:]
	switch typ {
	case pathChallengeFrameType:
		f, n, err := ParsePathChallengeFrame(b)
		if err != nil {
			return nil, 0, err
		}
		return f, l + n, nil
	case pathResponseFrameType:
		f, n, err := ParsePathResponseFrame(b)
		if err != nil {
			return nil, 0, err
		}
		return f, l + n, nil
	default:
		return nil, 0, fmt.Errorf("unexpected frame type: %#x", typ)
	}
}
