package quic

import (
	"net"

	"github.com/quivernet/quic/internal/utils"
	"github.com/quivernet/quic/logging"
)

// A rawSocket sends a single (possibly kernel-segmented) datagram with
// ancillary data to a not necessarily connected peer.
type rawSocket interface {
	// WriteMsg writes b to addr, with oob as the ancillary data.
	WriteMsg(b, oob []byte, addr *net.UDPAddr) (int, error)
	LocalAddr() net.Addr
	Close() error
}

type udpSocket struct {
	conn *net.UDPConn
}

var _ rawSocket = &udpSocket{}

// WrapUDPConn exposes a *net.UDPConn as a rawSocket.
// If the conn is connected, addr must be nil on writes.
func WrapUDPConn(conn *net.UDPConn) rawSocket {
	return &udpSocket{conn: conn}
}

func (s *udpSocket) WriteMsg(b, oob []byte, addr *net.UDPAddr) (int, error) {
	n, _, err := s.conn.WriteMsgUDP(b, oob, addr)
	return n, err
}

func (s *udpSocket) LocalAddr() net.Addr { return s.conn.LocalAddr() }
func (s *udpSocket) Close() error        { return s.conn.Close() }

// NewBatchWriter probes the socket's segmentation offload support and
// returns the most capable batch writer variant for it.
func NewBatchWriter(conn *net.UDPConn, supportsReleaseTime bool, tracer *logging.ConnectionTracer, logger utils.Logger) *batchWriter {
	if probeGSOSupport(conn) {
		return NewGSOBatchWriter(WrapUDPConn(conn), supportsReleaseTime, tracer, logger)
	}
	if logger.Debug() {
		logger.Debugf("segmentation offload not supported, using sendmmsg batching")
	}
	return NewSendmmsgBatchWriter(conn, supportsReleaseTime, tracer, logger)
}
