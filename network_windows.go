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

package netio

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/jacobsa/netio/fault"
)

// The plain accept entry point never made it into the syscall wrappers,
// which only carry AcceptEx. The blocking facade wants the simple form.
var (
	modws2_32       = windows.NewLazySystemDLL("ws2_32.dll")
	procaccept      = modws2_32.NewProc("accept")
	procioctlsocket = modws2_32.NewProc("ioctlsocket")
)

// ioctlsocket's FIONBIO request toggles non-blocking mode.
const fionbio = 0x8004667e

type windowsNetwork struct {
	started bool
}

func newPlatformNetwork() Network {
	return &windowsNetwork{}
}

func (n *windowsNetwork) Start() error {
	if n.started {
		return nil
	}

	var data windows.WSAData
	if err := windows.WSAStartup(uint32(0x202), &data); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to start winsock")
	}
	n.started = true
	return nil
}

func (n *windowsNetwork) Stop() {
	if n.started {
		windows.WSACleanup()
		n.started = false
	}
}

func rawFamilyWindows(f AddressFamily) (int, error) {
	switch f {
	case FamilyInet4:
		return windows.AF_INET, nil
	case FamilyInet6:
		return windows.AF_INET6, nil
	case FamilyUnix:
		return windows.AF_UNIX, nil
	}
	return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
		WithContext("unsupported address family %v", f)
}

func rawTypeWindows(t SocketType) (int, error) {
	switch t {
	case TypeStream:
		return windows.SOCK_STREAM, nil
	case TypeDatagram:
		return windows.SOCK_DGRAM, nil
	case TypeRaw:
		return windows.SOCK_RAW, nil
	}
	return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
		WithContext("unsupported socket type %v", t)
}

func rawProtocolWindows(p SocketProtocol) (int, error) {
	switch p {
	case ProtocolNone, ProtocolIp:
		return 0, nil
	case ProtocolIcmp:
		return windows.IPPROTO_ICMP, nil
	case ProtocolTcp:
		return windows.IPPROTO_TCP, nil
	case ProtocolUdp:
		return windows.IPPROTO_UDP, nil
	}
	return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
		WithContext("unsupported socket protocol %v", p)
}

func rawMessageFlagsWindows(flags MessageOption) int {
	raw := 0
	if flags&MsgPeek != 0 {
		raw |= windows.MSG_PEEK
	}
	if flags&MsgOutOfBand != 0 {
		raw |= windows.MSG_OOB
	}
	// MSG_DONTWAIT and MSG_NOSIGNAL have no Winsock equivalents;
	// non-blocking behavior follows the socket mode set by SetBlocking.
	return raw
}

func toWindowsSockaddr(addr SocketAddress) (windows.Sockaddr, error) {
	switch addr.Family() {
	case FamilyInet4:
		sa := &windows.SockaddrInet4{Port: int(addr.Inet().Port)}
		sa.Addr = addr.Inet().Addr.Octets
		return sa, nil
	case FamilyInet6:
		sa := &windows.SockaddrInet6{
			Port:   int(addr.Inet6().Port),
			ZoneId: addr.Inet6().Scope,
		}
		sa.Addr = addr.Inet6().Addr.Groups
		return sa, nil
	case FamilyUnix:
		return &windows.SockaddrUnix{Name: addr.Unix().Path}, nil
	}
	return nil, fault.NewFailure(fault.E_INVALID_ARGUMENT).
		WithContext("unsupported address family %v", addr.Family())
}

func fromWindowsSockaddr(sa windows.Sockaddr) SocketAddress {
	switch sa := sa.(type) {
	case *windows.SockaddrInet4:
		return NewSocketAddress(InetAddress{Octets: sa.Addr}, uint16(sa.Port))
	case *windows.SockaddrInet6:
		return NewSocketAddress6(
			Inet6Address{Groups: sa.Addr},
			uint16(sa.Port),
			0,
			sa.ZoneId)
	case *windows.SockaddrUnix:
		addr, err := NewUnixSocketAddress(sa.Name)
		if err != nil {
			return SocketAddress{}
		}
		return addr
	}
	return SocketAddress{}
}

func (n *windowsNetwork) CreateSocket(config SocketConfig) (Socket, error) {
	family, err := rawFamilyWindows(config.Family)
	if err != nil {
		return InvalidSocket, err
	}
	typ, err := rawTypeWindows(config.Type)
	if err != nil {
		return InvalidSocket, err
	}
	proto, err := rawProtocolWindows(config.Protocol)
	if err != nil {
		return InvalidSocket, err
	}

	h, err := windows.Socket(family, typ, proto)
	if err != nil {
		return InvalidSocket, lastNetworkFailure(err).
			WithContext("failed to create %v/%v socket", config.Family, config.Protocol)
	}
	return Socket(h), nil
}

func (n *windowsNetwork) Close(sock Socket) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	if err := windows.Closesocket(windows.Handle(sock)); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to close socket %d", sock)
	}
	return nil
}

func (n *windowsNetwork) Bind(sock Socket, addr SocketAddress) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	sa, err := toWindowsSockaddr(addr)
	if err != nil {
		return err
	}
	if err := windows.Bind(windows.Handle(sock), sa); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to bind socket %d to %v", sock, addr)
	}
	return nil
}

func (n *windowsNetwork) Connect(sock Socket, addr SocketAddress) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	sa, err := toWindowsSockaddr(addr)
	if err != nil {
		return err
	}
	if err := windows.Connect(windows.Handle(sock), sa); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to connect socket %d to %v", sock, addr)
	}
	return nil
}

func (n *windowsNetwork) Listen(sock Socket, backlog int) error {
	if sock == InvalidSocket || backlog < 0 {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket or backlog")
	}

	if err := windows.Listen(windows.Handle(sock), backlog); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to listen on socket %d", sock)
	}
	return nil
}

func (n *windowsNetwork) Accept(sock Socket) (AcceptedSocket, error) {
	if sock == InvalidSocket {
		return AcceptedSocket{Sock: InvalidSocket},
			fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("invalid socket")
	}

	var raw [SockaddrStorageSize]byte
	rawLen := int32(len(raw))

	r1, _, callErr := procaccept.Call(
		uintptr(sock),
		uintptr(unsafe.Pointer(&raw[0])),
		uintptr(unsafe.Pointer(&rawLen)))
	if windows.Handle(r1) == windows.InvalidHandle {
		return AcceptedSocket{Sock: InvalidSocket},
			lastNetworkFailure(callErr).
				WithContext("failed to accept on socket %d", sock)
	}

	peer, err := SocketAddressFromSockaddr(raw[:rawLen])
	if err != nil {
		peer = SocketAddress{}
	}
	return AcceptedSocket{
		Sock: Socket(r1),
		Addr: peer,
	}, nil
}

func (n *windowsNetwork) streamSocket(sock Socket) bool {
	typ, err := windows.GetsockoptInt(
		windows.Handle(sock), windows.SOL_SOCKET, winSoType)
	return err == nil && typ == windows.SOCK_STREAM
}

func (n *windowsNetwork) Recv(sock Socket, p []byte, flags MessageOption) (int, error) {
	if sock == InvalidSocket {
		return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	count, _, err := windows.Recvfrom(
		windows.Handle(sock), p, rawMessageFlagsWindows(flags))
	if err != nil {
		return 0, lastNetworkFailure(err).
			WithContext("failed to recv on socket %d", sock)
	}

	if count == 0 && len(p) > 0 && n.streamSocket(sock) {
		return 0, fault.NewFailure(fault.E_NET_DISCONNECTED).
			WithContext("peer closed socket %d", sock)
	}
	return count, nil
}

func (n *windowsNetwork) Send(sock Socket, p []byte, flags MessageOption) (int, error) {
	if sock == InvalidSocket {
		return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	if err := windows.Sendto(
		windows.Handle(sock), p, rawMessageFlagsWindows(flags), nil); err != nil {
		return 0, lastNetworkFailure(err).
			WithContext("failed to send on socket %d", sock)
	}
	return len(p), nil
}

func (n *windowsNetwork) RecvFrom(sock Socket, p []byte, flags MessageOption) (int, SocketAddress, error) {
	if sock == InvalidSocket {
		return 0, SocketAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	count, sa, err := windows.Recvfrom(
		windows.Handle(sock), p, rawMessageFlagsWindows(flags))
	if err != nil {
		return 0, SocketAddress{}, lastNetworkFailure(err).
			WithContext("failed to recvfrom on socket %d", sock)
	}

	if count == 0 && len(p) > 0 && n.streamSocket(sock) {
		return 0, SocketAddress{}, fault.NewFailure(fault.E_NET_DISCONNECTED).
			WithContext("peer closed socket %d", sock)
	}
	return count, fromWindowsSockaddr(sa), nil
}

func (n *windowsNetwork) SendTo(sock Socket, p []byte, flags MessageOption, addr SocketAddress) (int, error) {
	if sock == InvalidSocket {
		return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	sa, err := toWindowsSockaddr(addr)
	if err != nil {
		return 0, err
	}
	if err := windows.Sendto(
		windows.Handle(sock), p, rawMessageFlagsWindows(flags), sa); err != nil {
		return 0, lastNetworkFailure(err).
			WithContext("failed to sendto on socket %d toward %v", sock, addr)
	}
	return len(p), nil
}

func (n *windowsNetwork) GetSockName(sock Socket) (SocketAddress, error) {
	if sock == InvalidSocket {
		return SocketAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	sa, err := windows.Getsockname(windows.Handle(sock))
	if err != nil {
		return SocketAddress{}, lastNetworkFailure(err).
			WithContext("failed to get socket name for %d", sock)
	}
	return fromWindowsSockaddr(sa), nil
}

func (n *windowsNetwork) GetPeerName(sock Socket) (SocketAddress, error) {
	if sock == InvalidSocket {
		return SocketAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	sa, err := windows.Getpeername(windows.Handle(sock))
	if err != nil {
		return SocketAddress{}, lastNetworkFailure(err).
			WithContext("failed to get peer name for %d", sock)
	}
	return fromWindowsSockaddr(sa), nil
}

func (n *windowsNetwork) SetBlocking(sock Socket, blocking bool) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	var mode uint32
	if !blocking {
		mode = 1
	}
	r1, _, callErr := procioctlsocket.Call(
		uintptr(sock),
		uintptr(fionbio),
		uintptr(unsafe.Pointer(&mode)))
	if int32(r1) != 0 {
		return lastNetworkFailure(callErr).
			WithContext("failed to set blocking=%v on socket %d", blocking, sock)
	}
	return nil
}

func (n *windowsNetwork) Shutdown(sock Socket, mode ShutdownMode) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	var how int
	switch mode {
	case ShutdownRead:
		how = windows.SHUT_RD
	case ShutdownWrite:
		how = windows.SHUT_WR
	case ShutdownBoth:
		how = windows.SHUT_RDWR
	default:
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid shutdown mode %d", mode)
	}

	if err := windows.Shutdown(windows.Handle(sock), how); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to shutdown socket %d", sock)
	}
	return nil
}
