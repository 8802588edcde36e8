// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux || darwin

package netio

import (
	"golang.org/x/sys/unix"

	"github.com/jacobsa/netio/fault"
)

type posixNetwork struct{}

func newPlatformNetwork() Network {
	return &posixNetwork{}
}

func (n *posixNetwork) Start() error {
	return nil
}

func (n *posixNetwork) Stop() {}

func rawFamily(f AddressFamily) (int, error) {
	switch f {
	case FamilyInet4:
		return unix.AF_INET, nil
	case FamilyInet6:
		return unix.AF_INET6, nil
	case FamilyUnix:
		return unix.AF_UNIX, nil
	}
	return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
		WithContext("unsupported address family %v", f)
}

func rawType(t SocketType) (int, error) {
	switch t {
	case TypeStream:
		return unix.SOCK_STREAM, nil
	case TypeDatagram:
		return unix.SOCK_DGRAM, nil
	case TypeRaw:
		return unix.SOCK_RAW, nil
	}
	return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
		WithContext("unsupported socket type %v", t)
}

func rawProtocol(p SocketProtocol) (int, error) {
	switch p {
	case ProtocolNone, ProtocolIp:
		return 0, nil
	case ProtocolIcmp:
		return unix.IPPROTO_ICMP, nil
	case ProtocolRaw:
		return unix.IPPROTO_RAW, nil
	case ProtocolTcp:
		return unix.IPPROTO_TCP, nil
	case ProtocolUdp:
		return unix.IPPROTO_UDP, nil
	}
	return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
		WithContext("unsupported socket protocol %v", p)
}

func rawMessageFlags(flags MessageOption) int {
	raw := 0
	if flags&MsgPeek != 0 {
		raw |= unix.MSG_PEEK
	}
	if flags&MsgDontWait != 0 {
		raw |= unix.MSG_DONTWAIT
	}
	if flags&MsgOutOfBand != 0 {
		raw |= unix.MSG_OOB
	}
	if flags&MsgNoSignal != 0 {
		raw |= msgNoSignal
	}
	return raw
}

// toUnixSockaddr converts the tagged union into the form the syscall
// layer wants.
func toUnixSockaddr(addr SocketAddress) (unix.Sockaddr, error) {
	switch addr.Family() {
	case FamilyInet4:
		sa := &unix.SockaddrInet4{Port: int(addr.Inet().Port)}
		sa.Addr = addr.Inet().Addr.Octets
		return sa, nil
	case FamilyInet6:
		sa := &unix.SockaddrInet6{
			Port:   int(addr.Inet6().Port),
			ZoneId: addr.Inet6().Scope,
		}
		sa.Addr = addr.Inet6().Addr.Groups
		return sa, nil
	case FamilyUnix:
		return &unix.SockaddrUnix{Name: addr.Unix().Path}, nil
	}
	return nil, fault.NewFailure(fault.E_INVALID_ARGUMENT).
		WithContext("unsupported address family %v", addr.Family())
}

// fromUnixSockaddr converts a syscall-layer address back into the
// tagged union. A nil input yields the empty address.
func fromUnixSockaddr(sa unix.Sockaddr) SocketAddress {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return NewSocketAddress(InetAddress{Octets: sa.Addr}, uint16(sa.Port))
	case *unix.SockaddrInet6:
		return NewSocketAddress6(
			Inet6Address{Groups: sa.Addr},
			uint16(sa.Port),
			0,
			sa.ZoneId)
	case *unix.SockaddrUnix:
		addr, err := NewUnixSocketAddress(sa.Name)
		if err != nil {
			return SocketAddress{}
		}
		return addr
	}
	return SocketAddress{}
}

func (n *posixNetwork) CreateSocket(config SocketConfig) (Socket, error) {
	family, err := rawFamily(config.Family)
	if err != nil {
		return InvalidSocket, err
	}
	typ, err := rawType(config.Type)
	if err != nil {
		return InvalidSocket, err
	}
	proto, err := rawProtocol(config.Protocol)
	if err != nil {
		return InvalidSocket, err
	}

	fd, err := unix.Socket(family, typ, proto)
	if err != nil {
		return InvalidSocket, lastNetworkFailure(err).
			WithContext("failed to create %v/%v socket", config.Family, config.Protocol)
	}

	unix.CloseOnExec(fd)
	return Socket(fd), nil
}

func (n *posixNetwork) Close(sock Socket) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	if err := unix.Close(int(sock)); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to close socket %d", sock)
	}
	return nil
}

func (n *posixNetwork) Bind(sock Socket, addr SocketAddress) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	sa, err := toUnixSockaddr(addr)
	if err != nil {
		return err
	}
	if err := unix.Bind(int(sock), sa); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to bind socket %d to %v", sock, addr)
	}
	return nil
}

func (n *posixNetwork) Connect(sock Socket, addr SocketAddress) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	sa, err := toUnixSockaddr(addr)
	if err != nil {
		return err
	}
	if err := unix.Connect(int(sock), sa); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to connect socket %d to %v", sock, addr)
	}
	return nil
}

func (n *posixNetwork) Listen(sock Socket, backlog int) error {
	if sock == InvalidSocket || backlog < 0 {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket or backlog")
	}

	if err := unix.Listen(int(sock), backlog); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to listen on socket %d", sock)
	}
	return nil
}

func (n *posixNetwork) Accept(sock Socket) (AcceptedSocket, error) {
	if sock == InvalidSocket {
		return AcceptedSocket{Sock: InvalidSocket},
			fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("invalid socket")
	}

	fd, sa, err := unix.Accept(int(sock))
	if err != nil {
		return AcceptedSocket{Sock: InvalidSocket},
			lastNetworkFailure(err).
				WithContext("failed to accept on socket %d", sock)
	}

	unix.CloseOnExec(fd)
	return AcceptedSocket{
		Sock: Socket(fd),
		Addr: fromUnixSockaddr(sa),
	}, nil
}

// streamSocket reports whether sock is a stream socket. Used only to
// classify a zero-byte recv.
func (n *posixNetwork) streamSocket(sock Socket) bool {
	typ, err := unix.GetsockoptInt(int(sock), unix.SOL_SOCKET, unix.SO_TYPE)
	return err == nil && typ == unix.SOCK_STREAM
}

func (n *posixNetwork) Recv(sock Socket, p []byte, flags MessageOption) (int, error) {
	if sock == InvalidSocket {
		return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	count, _, err := unix.Recvfrom(int(sock), p, rawMessageFlags(flags))
	if err != nil {
		return 0, lastNetworkFailure(err).
			WithContext("failed to recv on socket %d", sock)
	}

	// A zero-byte read on a stream means the peer closed the
	// connection; callers never see success-with-zero there. A
	// zero-byte datagram is a legitimate empty datagram.
	if count == 0 && len(p) > 0 && n.streamSocket(sock) {
		return 0, fault.NewFailure(fault.E_NET_DISCONNECTED).
			WithContext("peer closed socket %d", sock)
	}
	return count, nil
}

func (n *posixNetwork) Send(sock Socket, p []byte, flags MessageOption) (int, error) {
	if sock == InvalidSocket {
		return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	count, err := sendN(int(sock), p, rawMessageFlags(flags))
	if err != nil {
		return 0, lastNetworkFailure(err).
			WithContext("failed to send on socket %d", sock)
	}
	return count, nil
}

func (n *posixNetwork) RecvFrom(sock Socket, p []byte, flags MessageOption) (int, SocketAddress, error) {
	if sock == InvalidSocket {
		return 0, SocketAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	count, sa, err := unix.Recvfrom(int(sock), p, rawMessageFlags(flags))
	if err != nil {
		return 0, SocketAddress{}, lastNetworkFailure(err).
			WithContext("failed to recvfrom on socket %d", sock)
	}

	if count == 0 && len(p) > 0 && n.streamSocket(sock) {
		return 0, SocketAddress{}, fault.NewFailure(fault.E_NET_DISCONNECTED).
			WithContext("peer closed socket %d", sock)
	}
	return count, fromUnixSockaddr(sa), nil
}

func (n *posixNetwork) SendTo(sock Socket, p []byte, flags MessageOption, addr SocketAddress) (int, error) {
	if sock == InvalidSocket {
		return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	sa, err := toUnixSockaddr(addr)
	if err != nil {
		return 0, err
	}
	count, err := unix.SendmsgN(int(sock), p, nil, sa, rawMessageFlags(flags))
	if err != nil {
		return 0, lastNetworkFailure(err).
			WithContext("failed to sendto on socket %d toward %v", sock, addr)
	}
	return count, nil
}

func (n *posixNetwork) GetSockName(sock Socket) (SocketAddress, error) {
	if sock == InvalidSocket {
		return SocketAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	sa, err := unix.Getsockname(int(sock))
	if err != nil {
		return SocketAddress{}, lastNetworkFailure(err).
			WithContext("failed to get socket name for %d", sock)
	}
	return fromUnixSockaddr(sa), nil
}

func (n *posixNetwork) GetPeerName(sock Socket) (SocketAddress, error) {
	if sock == InvalidSocket {
		return SocketAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	sa, err := unix.Getpeername(int(sock))
	if err != nil {
		return SocketAddress{}, lastNetworkFailure(err).
			WithContext("failed to get peer name for %d", sock)
	}
	return fromUnixSockaddr(sa), nil
}

func (n *posixNetwork) SetBlocking(sock Socket, blocking bool) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	if err := unix.SetNonblock(int(sock), !blocking); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to set blocking=%v on socket %d", blocking, sock)
	}
	return nil
}

func (n *posixNetwork) Shutdown(sock Socket, mode ShutdownMode) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	var how int
	switch mode {
	case ShutdownRead:
		how = unix.SHUT_RD
	case ShutdownWrite:
		how = unix.SHUT_WR
	case ShutdownBoth:
		how = unix.SHUT_RDWR
	default:
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid shutdown mode %d", mode)
	}

	if err := unix.Shutdown(int(sock), how); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to shutdown socket %d", sock)
	}
	return nil
}

// sendN writes p with the given flags toward the connected peer,
// returning the byte count actually accepted by the kernel.
func sendN(fd int, p []byte, flags int) (int, error) {
	return unix.SendmsgN(fd, p, nil, nil, flags)
}
