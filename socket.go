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
	"strings"
)

// Socket is an opaque handle for a kernel socket. On POSIX platforms it
// holds a file descriptor; on Windows a SOCKET. Whoever created the
// handle (CreateSocket or Accept) owns it until Close; closing a handle
// twice is a programming error.
type Socket uintptr

// InvalidSocket is the sentinel for "no socket".
const InvalidSocket = ^Socket(0)

// SocketOperation is a readiness set over Read, Write and Error.
type SocketOperation uint8

const (
	OpNone  SocketOperation = 0
	OpRead  SocketOperation = 1 << 0
	OpWrite SocketOperation = 1 << 1
	OpError SocketOperation = 1 << 2

	OpAccept    = OpRead | OpError
	OpReadWrite = OpRead | OpWrite
	OpAll       = OpRead | OpWrite | OpError
)

func (op SocketOperation) String() string {
	if op == OpNone {
		return "None"
	}

	var parts []string
	if op&OpRead != 0 {
		parts = append(parts, "Read")
	}
	if op&OpWrite != 0 {
		parts = append(parts, "Write")
	}
	if op&OpError != 0 {
		parts = append(parts, "Error")
	}
	return strings.Join(parts, "|")
}

// SocketEvent reports readiness observed for a single socket.
type SocketEvent struct {
	Sock   Socket
	Events SocketOperation
}

// AddressFamily selects the wire-level address family of a socket or
// address.
type AddressFamily uint8

const (
	FamilyUnspecified AddressFamily = iota
	FamilyInet4
	FamilyInet6
	FamilyUnix
)

func (f AddressFamily) String() string {
	switch f {
	case FamilyInet4:
		return "inet4"
	case FamilyInet6:
		return "inet6"
	case FamilyUnix:
		return "unix"
	}
	return "unspecified"
}

// SocketProtocol selects the transport protocol of a socket.
type SocketProtocol uint8

const (
	ProtocolNone SocketProtocol = iota
	ProtocolIp
	ProtocolIcmp
	ProtocolRaw
	ProtocolTcp
	ProtocolUdp
)

func (p SocketProtocol) String() string {
	switch p {
	case ProtocolIp:
		return "ip"
	case ProtocolIcmp:
		return "icmp"
	case ProtocolRaw:
		return "raw"
	case ProtocolTcp:
		return "tcp"
	case ProtocolUdp:
		return "udp"
	}
	return "none"
}

// SocketType selects the kernel socket type.
type SocketType uint8

const (
	TypeNone SocketType = iota
	TypeStream
	TypeDatagram
	TypeRaw
)

func (t SocketType) String() string {
	switch t {
	case TypeStream:
		return "stream"
	case TypeDatagram:
		return "datagram"
	case TypeRaw:
		return "raw"
	}
	return "none"
}

// ShutdownMode selects which half of a connection Shutdown closes.
type ShutdownMode uint8

const (
	ShutdownRead ShutdownMode = iota
	ShutdownWrite
	ShutdownBoth
)

// MessageOption carries per-call recv/send flags.
type MessageOption uint8

const (
	MsgNone      MessageOption = 0
	MsgPeek      MessageOption = 1 << 0
	MsgDontWait  MessageOption = 1 << 1
	MsgOutOfBand MessageOption = 1 << 2
	MsgNoSignal  MessageOption = 1 << 3
)

// SocketConfig bundles the three parameters of CreateSocket. The
// predefined TCP/UDP values cover the usual cases; calling a config with
// a family specializes it.
type SocketConfig struct {
	Family   AddressFamily
	Protocol SocketProtocol
	Type     SocketType
}

// WithFamily returns a copy of c bound to the given family.
func (c SocketConfig) WithFamily(f AddressFamily) SocketConfig {
	c.Family = f
	return c
}

var (
	TCP = SocketConfig{
		Family:   FamilyUnspecified,
		Protocol: ProtocolTcp,
		Type:     TypeStream,
	}
	TCPv4 = TCP.WithFamily(FamilyInet4)
	TCPv6 = TCP.WithFamily(FamilyInet6)

	UDP = SocketConfig{
		Family:   FamilyUnspecified,
		Protocol: ProtocolUdp,
		Type:     TypeDatagram,
	}
	UDPv4 = UDP.WithFamily(FamilyInet4)
	UDPv6 = UDP.WithFamily(FamilyInet6)
)
