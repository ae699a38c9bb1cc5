//go:build linux

package quic

import (
	"errors"
	"net"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// buildGSOControlMessages builds the ancillary data for a (possibly
// segmented) write: packet info carrying the source address, the UDP
// segment size, the earliest release time, the ECN codepoint, and the
// IPv6 flow label.
// The control messages are sized exactly; the kernel rejects trailing slack.
func buildGSOControlMessages(selfAddr net.IP, gsoSize int, opts perPacketOptions, supportsReleaseTime bool) []byte {
	var oob []byte
	if selfAddr != nil {
		oob = appendPacketInfoCmsg(oob, selfAddr)
	}
	if gsoSize > 0 {
		oob = appendUDPSegmentCmsg(oob, uint16(gsoSize))
	}
	if supportsReleaseTime && !opts.ReleaseTime.IsZero() {
		oob = appendTxTimeCmsg(oob, uint64(opts.ReleaseTime.UnixNano()))
	}
	if opts.ECN != 0 {
		oob = appendTOSCmsg(oob, uint8(opts.ECN), selfAddr.To4() == nil)
	}
	if opts.FlowLabel != 0 && selfAddr.To4() == nil {
		oob = appendFlowLabelCmsg(oob, opts.FlowLabel)
	}
	return oob
}

func appendCmsg(b []byte, level, typ int32, dataLen int) ([]byte, int) {
	startLen := len(b)
	b = append(b, make([]byte, unix.CmsgSpace(dataLen))...)
	h := (*unix.Cmsghdr)(unsafe.Pointer(&b[startLen]))
	h.Level = level
	h.Type = typ
	h.SetLen(unix.CmsgLen(dataLen))
	return b, startLen + unix.CmsgLen(0)
}

func appendPacketInfoCmsg(b []byte, ip net.IP) []byte {
	if ip4 := ip.To4(); ip4 != nil {
		// struct in_pktinfo {
		// 	unsigned int   ipi_ifindex;  /* Interface index */
		// 	struct in_addr ipi_spec_dst; /* Local address */
		// 	struct in_addr ipi_addr;     /* Header Destination address */
		// };
		b, off := appendCmsg(b, unix.IPPROTO_IP, unix.IP_PKTINFO, 12)
		copy(b[off+4:off+8], ip4)
		return b
	}
	// struct in6_pktinfo {
	// 	struct in6_addr ipi6_addr;    /* src/dst IPv6 address */
	// 	unsigned int    ipi6_ifindex; /* send/recv interface index */
	// };
	b, off := appendCmsg(b, unix.IPPROTO_IPV6, unix.IPV6_PKTINFO, 20)
	copy(b[off:off+16], ip.To16())
	return b
}

func appendUDPSegmentCmsg(b []byte, size uint16) []byte {
	b, off := appendCmsg(b, unix.IPPROTO_UDP, unix.UDP_SEGMENT, 2)
	*(*uint16)(unsafe.Pointer(&b[off])) = size
	return b
}

func appendTxTimeCmsg(b []byte, txTime uint64) []byte {
	b, off := appendCmsg(b, unix.SOL_SOCKET, unix.SCM_TXTIME, 8)
	*(*uint64)(unsafe.Pointer(&b[off])) = txTime
	return b
}

func appendTOSCmsg(b []byte, tos uint8, ipv6 bool) []byte {
	if ipv6 {
		b, off := appendCmsg(b, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, 4)
		*(*int32)(unsafe.Pointer(&b[off])) = int32(tos)
		return b
	}
	b, off := appendCmsg(b, unix.IPPROTO_IP, unix.IP_TOS, 1)
	b[off] = tos
	return b
}

// ipv6Flowinfo is IPV6_FLOWINFO from linux/in6.h, missing from x/sys.
const ipv6Flowinfo = 0xb

func appendFlowLabelCmsg(b []byte, flowLabel uint32) []byte {
	// The kernel expects the flowinfo field in network byte order.
	// Requires IPV6_FLOWINFO_SEND to be enabled on the socket.
	b, off := appendCmsg(b, unix.IPPROTO_IPV6, ipv6Flowinfo, 4)
	b[off] = byte(flowLabel >> 24)
	b[off+1] = byte(flowLabel >> 16)
	b[off+2] = byte(flowLabel >> 8)
	b[off+3] = byte(flowLabel)
	return b
}

// probeGSOSupport says if the kernel accepts UDP_SEGMENT on this socket.
// Kernels before 4.18 and some container runtimes reject the option.
func probeGSOSupport(conn *net.UDPConn) bool {
	raw, err := conn.SyscallConn()
	if err != nil {
		return false
	}
	var serr error
	if err := raw.Control(func(fd uintptr) {
		_, serr = unix.GetsockoptInt(int(fd), unix.IPPROTO_UDP, unix.UDP_SEGMENT)
	}); err != nil {
		return false
	}
	return serr == nil
}

func isBlockedSyscallError(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func isMsgSizeError(err error) bool {
	return errors.Is(err, unix.EMSGSIZE)
}

// isGSOError reports whether the kernel rejected the segmentation offload
// itself. Seen on kernels that advertise but don't support UDP_SEGMENT for
// the route, and when the NIC driver can't segment.
func isGSOError(err error) bool {
	var serr *os.SyscallError
	if errors.As(err, &serr) {
		// EIO is returned by the connection when virtio-net doesn't support segmentation offload.
		// EINVAL is returned when the UDP_SEGMENT option is rejected.
		return serr.Err == unix.EIO || serr.Err == unix.EINVAL
	}
	return errors.Is(err, syscall.EIO) || errors.Is(err, syscall.EINVAL)
}
