//go:build !linux

package quic

import (
	"errors"
	"net"
	"syscall"
)

// Segmentation offload and packet pacing are Linux-only. On other platforms
// writes go out unsegmented and without ancillary data.
func buildGSOControlMessages(net.IP, int, perPacketOptions, bool) []byte {
	return nil
}

func probeGSOSupport(*net.UDPConn) bool { return false }

func isBlockedSyscallError(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}

func isMsgSizeError(err error) bool {
	return errors.Is(err, syscall.EMSGSIZE)
}

func isGSOError(error) bool { return false }
