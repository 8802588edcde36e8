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
	"time"
)

// SocketOpt names a socket option. Each tag has a declared value type;
// the facade exposes one accessor pair per value type and refuses a tag
// given to the wrong pair. A tag that the current platform does not
// implement yields E_NET_UNSUPPORTED.
type SocketOpt uint8

const (
	// Boolean options.
	OptBroadcast SocketOpt = iota
	OptDebug
	OptDontRoute
	OptKeepAlive
	OptOobInline
	OptReuseAddress
	OptReusePort
	OptNoDelay
	OptMulticastLoopback

	// Duration options.
	OptLinger
	OptRecvTimeout
	OptSendTimeout
	OptTcpKeepAlive
	OptTcpKeepIdle
	OptTcpKeepInterval

	// Integer options.
	OptRecvBuf
	OptSendBuf
	OptRecvLowMark
	OptSendLowMark
	OptMulticastTTL
	OptTcpKeepCount
	OptTimeToLive
	OptSocketError
	OptType

	// Structured options.
	OptMulticast
)

func (o SocketOpt) String() string {
	switch o {
	case OptBroadcast:
		return "Broadcast"
	case OptDebug:
		return "Debug"
	case OptDontRoute:
		return "DontRoute"
	case OptKeepAlive:
		return "KeepAlive"
	case OptOobInline:
		return "OobInline"
	case OptReuseAddress:
		return "ReuseAddress"
	case OptReusePort:
		return "ReusePort"
	case OptNoDelay:
		return "NoDelay"
	case OptMulticastLoopback:
		return "MulticastLoopback"
	case OptLinger:
		return "Linger"
	case OptRecvTimeout:
		return "RecvTimeout"
	case OptSendTimeout:
		return "SendTimeout"
	case OptTcpKeepAlive:
		return "TcpKeepAlive"
	case OptTcpKeepIdle:
		return "TcpKeepIdle"
	case OptTcpKeepInterval:
		return "TcpKeepInterval"
	case OptRecvBuf:
		return "RecvBuf"
	case OptSendBuf:
		return "SendBuf"
	case OptRecvLowMark:
		return "RecvLowMark"
	case OptSendLowMark:
		return "SendLowMark"
	case OptMulticastTTL:
		return "MulticastTTL"
	case OptTcpKeepCount:
		return "TcpKeepCount"
	case OptTimeToLive:
		return "TimeToLive"
	case OptSocketError:
		return "SocketError"
	case OptType:
		return "Type"
	case OptMulticast:
		return "Multicast"
	}
	return "Unknown"
}

// AcceptedSocket pairs the socket returned by Accept with the peer's
// address.
type AcceptedSocket struct {
	Sock Socket
	Addr SocketAddress
}

// Network is the blocking socket facade. All operations are synchronous
// and block unless the socket has been made non-blocking with
// SetBlocking, in which case operations that would block fail with
// E_NET_WOULD_BLOCK (or E_NET_INPROGRESS for Connect).
//
// Every failure carries the platform code observed at the syscall
// boundary, classified per the network errno table.
type Network interface {
	// Start prepares the platform networking stack. On POSIX platforms
	// this is a no-op; on Windows it performs WSA startup. Stop undoes
	// it.
	Start() error
	Stop()

	// CreateSocket creates a kernel socket for the given family,
	// protocol and type. The caller owns the returned handle.
	CreateSocket(config SocketConfig) (Socket, error)

	// Close releases a socket handle.
	Close(sock Socket) error

	// Bind assigns a local address to the socket.
	Bind(sock Socket, addr SocketAddress) error

	// Connect establishes a connection, or starts one on a non-blocking
	// socket (failing with E_NET_INPROGRESS).
	Connect(sock Socket, addr SocketAddress) error

	// Listen marks the socket as accepting connections.
	Listen(sock Socket, backlog int) error

	// Accept dequeues one pending connection, returning the new socket
	// and the peer address. The caller owns the returned handle.
	Accept(sock Socket) (AcceptedSocket, error)

	// Recv reads up to len(p) bytes. A zero-byte read on a stream
	// socket reports E_NET_DISCONNECTED; a zero-byte datagram is a
	// valid empty datagram and reports success.
	Recv(sock Socket, p []byte, flags MessageOption) (int, error)

	// Send writes up to len(p) bytes, returning the count written.
	Send(sock Socket, p []byte, flags MessageOption) (int, error)

	// RecvFrom is Recv plus the datagram source address.
	RecvFrom(sock Socket, p []byte, flags MessageOption) (int, SocketAddress, error)

	// SendTo is Send toward an explicit address.
	SendTo(sock Socket, p []byte, flags MessageOption, addr SocketAddress) (int, error)

	// GetSockName returns the socket's local address.
	GetSockName(sock Socket) (SocketAddress, error)

	// GetPeerName returns the connected peer's address.
	GetPeerName(sock Socket) (SocketAddress, error)

	// SetBlocking switches the socket between blocking and non-blocking
	// modes.
	SetBlocking(sock Socket, blocking bool) error

	// Shutdown closes one or both halves of a connection.
	Shutdown(sock Socket, mode ShutdownMode) error

	// Typed socket option accessors. A tag used against the wrong value
	// type, or one the platform does not support, fails with
	// E_NET_UNSUPPORTED.
	GetOptionBool(sock Socket, opt SocketOpt) (bool, error)
	SetOptionBool(sock Socket, opt SocketOpt, value bool) error
	GetOptionInt(sock Socket, opt SocketOpt) (int32, error)
	SetOptionInt(sock Socket, opt SocketOpt, value int32) error
	GetOptionDuration(sock Socket, opt SocketOpt) (time.Duration, error)
	SetOptionDuration(sock Socket, opt SocketOpt, value time.Duration) error
	SetOptionMulticast(sock Socket, group MulticastGroup) error
}

// New returns the platform Network implementation.
func New() Network {
	return newPlatformNetwork()
}
