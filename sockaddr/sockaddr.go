// Package sockaddr provides a family-agnostic socket address container,
// grounded on libmowgli's mowgli_vio_sockaddr_t (vio/vio_sockets.c): a
// fixed-size address holder that can be built from (family, text, port) or
// from a raw net.Addr, and converted back to (host-text, port).
package sockaddr

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/atheme/go-mowgli/eventloop"
)

// Family mirrors the address families libmowgli's sockaddr helpers accept.
type Family int

const (
	FamilyUnspec Family = iota
	FamilyINET
	FamilyINET6
)

// SockAddr is a family-agnostic container for a resolved network address,
// analogous to mowgli_vio_sockaddr_t pairing a storage buffer with the
// family it actually holds.
type SockAddr struct {
	addr netip.Addr
	port uint16
}

// Create builds a SockAddr from a family, textual address, and port,
// mirroring mowgli_vio_sockaddr_create. Returns a TypeError if addr does
// not parse as the given family.
func Create(family Family, addr string, port int) (*SockAddr, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return nil, &eventloop.TypeError{Message: fmt.Sprintf("sockaddr: invalid address %q", addr), Cause: err}
	}
	switch family {
	case FamilyINET:
		if !ip.Is4() {
			return nil, &eventloop.TypeError{Message: "sockaddr: address is not IPv4"}
		}
	case FamilyINET6:
		if !ip.Is4() {
			ip = ip.Unmap()
		}
		if !ip.Is6() {
			return nil, &eventloop.TypeError{Message: "sockaddr: address is not IPv6"}
		}
	default:
		return nil, &eventloop.TypeError{Message: "sockaddr: unsupported family"}
	}
	if port < 0 || port > 65535 {
		return nil, &eventloop.RangeError{Message: "sockaddr: port out of range"}
	}
	return &SockAddr{addr: ip, port: uint16(port)}, nil
}

// FromNetAddr builds a SockAddr from a standard library net.Addr (as
// returned by net.Conn.RemoteAddr/LocalAddr), the Go equivalent of
// mowgli_vio_sockaddr_from_struct taking a raw struct sockaddr.
func FromNetAddr(a net.Addr) (*SockAddr, error) {
	host, portStr, err := net.SplitHostPort(a.String())
	if err != nil {
		return nil, &eventloop.TypeError{Message: "sockaddr: cannot split host:port", Cause: err}
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return nil, &eventloop.TypeError{Message: "sockaddr: invalid host in net.Addr", Cause: err}
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return nil, &eventloop.TypeError{Message: "sockaddr: invalid port in net.Addr", Cause: err}
	}
	return &SockAddr{addr: ip, port: uint16(port)}, nil
}

// Family reports which address family the holder actually contains.
func (s *SockAddr) Family() Family {
	if s.addr.Is4() {
		return FamilyINET
	}
	return FamilyINET6
}

// Info returns the (host text, port) pair, the Go equivalent of
// mowgli_vio_sockaddr_info populating a mowgli_vio_sockdata_t.
func (s *SockAddr) Info() (host string, port uint16) {
	return s.addr.String(), s.port
}

// Addr exposes the underlying netip.Addr for callers that need to hand it
// to net.Dialer/net.ListenConfig.
func (s *SockAddr) Addr() netip.Addr { return s.addr }

// Port returns the port in host byte order.
func (s *SockAddr) Port() uint16 { return s.port }

// String renders "host:port", using bracket notation for IPv6.
func (s *SockAddr) String() string {
	return net.JoinHostPort(s.addr.String(), fmt.Sprint(s.port))
}
