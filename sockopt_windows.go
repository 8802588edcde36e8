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

	"golang.org/x/sys/windows"

	"github.com/jacobsa/netio/fault"
)

// Winsock option names missing from the syscall wrappers: the
// keep-alive tuning knobs from ws2ipdef.h (available since Windows 10
// 1709) and a handful of winsock2.h basics.
const (
	winTcpKeepIdle     = 3
	winTcpKeepCount    = 16
	winTcpKeepInterval = 17

	winSoDebug     = 0x0001
	winSoOobInline = 0x0100
	winSoSndTimeo  = 0x1005
	winSoError     = 0x1007
	winSoType      = 0x1008
)

type sockoptEntry struct {
	level int
	name  int
}

func (e sockoptEntry) supported() bool {
	return e.name >= 0
}

func unsupportedOption(opt SocketOpt) *fault.Failure {
	return fault.NewFailure(fault.E_NET_UNSUPPORTED).
		WithContext("socket option %v is not supported on this platform", opt)
}

// ReusePort is POSIX-only and TcpKeepAlive is the Apple spelling;
// neither exists here.
func lookupOption(opt SocketOpt) sockoptEntry {
	switch opt {
	case OptBroadcast:
		return sockoptEntry{windows.SOL_SOCKET, windows.SO_BROADCAST}
	case OptDebug:
		return sockoptEntry{windows.SOL_SOCKET, winSoDebug}
	case OptDontRoute:
		return sockoptEntry{windows.SOL_SOCKET, windows.SO_DONTROUTE}
	case OptKeepAlive:
		return sockoptEntry{windows.SOL_SOCKET, windows.SO_KEEPALIVE}
	case OptOobInline:
		return sockoptEntry{windows.SOL_SOCKET, winSoOobInline}
	case OptReuseAddress:
		return sockoptEntry{windows.SOL_SOCKET, windows.SO_REUSEADDR}
	case OptNoDelay:
		return sockoptEntry{windows.IPPROTO_TCP, windows.TCP_NODELAY}
	case OptMulticastLoopback:
		return sockoptEntry{windows.IPPROTO_IP, windows.IP_MULTICAST_LOOP}
	case OptLinger:
		return sockoptEntry{windows.SOL_SOCKET, windows.SO_LINGER}
	case OptRecvTimeout:
		return sockoptEntry{windows.SOL_SOCKET, windows.SO_RCVTIMEO}
	case OptSendTimeout:
		return sockoptEntry{windows.SOL_SOCKET, winSoSndTimeo}
	case OptTcpKeepIdle:
		return sockoptEntry{windows.IPPROTO_TCP, winTcpKeepIdle}
	case OptTcpKeepCount:
		return sockoptEntry{windows.IPPROTO_TCP, winTcpKeepCount}
	case OptTcpKeepInterval:
		return sockoptEntry{windows.IPPROTO_TCP, winTcpKeepInterval}
	case OptRecvBuf:
		return sockoptEntry{windows.SOL_SOCKET, windows.SO_RCVBUF}
	case OptSendBuf:
		return sockoptEntry{windows.SOL_SOCKET, windows.SO_SNDBUF}
	case OptMulticastTTL:
		return sockoptEntry{windows.IPPROTO_IP, windows.IP_MULTICAST_TTL}
	case OptTimeToLive:
		return sockoptEntry{windows.IPPROTO_IP, windows.IP_TTL}
	case OptSocketError:
		return sockoptEntry{windows.SOL_SOCKET, winSoError}
	case OptType:
		return sockoptEntry{windows.SOL_SOCKET, winSoType}
	}
	return sockoptEntry{level: -1, name: -1}
}

func isBoolOption(opt SocketOpt) bool {
	switch opt {
	case OptBroadcast, OptDebug, OptDontRoute, OptKeepAlive, OptOobInline,
		OptReuseAddress, OptReusePort, OptNoDelay, OptMulticastLoopback:
		return true
	}
	return false
}

func isIntOption(opt SocketOpt) bool {
	switch opt {
	case OptRecvBuf, OptSendBuf, OptRecvLowMark, OptSendLowMark,
		OptMulticastTTL, OptTcpKeepCount, OptTimeToLive, OptSocketError,
		OptType:
		return true
	}
	return false
}

func isDurationOption(opt SocketOpt) bool {
	switch opt {
	case OptLinger, OptRecvTimeout, OptSendTimeout, OptTcpKeepAlive,
		OptTcpKeepIdle, OptTcpKeepInterval:
		return true
	}
	return false
}

func (n *windowsNetwork) GetOptionBool(sock Socket, opt SocketOpt) (bool, error) {
	if sock == InvalidSocket {
		return false, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}
	if !isBoolOption(opt) {
		return false, unsupportedOption(opt)
	}

	e := lookupOption(opt)
	if !e.supported() {
		return false, unsupportedOption(opt)
	}

	v, err := windows.GetsockoptInt(windows.Handle(sock), e.level, e.name)
	if err != nil {
		return false, lastNetworkFailure(err).
			WithContext("failed to get option %v on socket %d", opt, sock)
	}
	return v != 0, nil
}

func (n *windowsNetwork) SetOptionBool(sock Socket, opt SocketOpt, value bool) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}
	if !isBoolOption(opt) {
		return unsupportedOption(opt)
	}

	e := lookupOption(opt)
	if !e.supported() {
		return unsupportedOption(opt)
	}

	raw := 0
	if value {
		raw = 1
	}
	if err := windows.SetsockoptInt(windows.Handle(sock), e.level, e.name, raw); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to set option %v on socket %d", opt, sock)
	}
	return nil
}

func (n *windowsNetwork) GetOptionInt(sock Socket, opt SocketOpt) (int32, error) {
	if sock == InvalidSocket {
		return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}
	if !isIntOption(opt) {
		return 0, unsupportedOption(opt)
	}

	e := lookupOption(opt)
	if !e.supported() {
		return 0, unsupportedOption(opt)
	}

	v, err := windows.GetsockoptInt(windows.Handle(sock), e.level, e.name)
	if err != nil {
		return 0, lastNetworkFailure(err).
			WithContext("failed to get option %v on socket %d", opt, sock)
	}
	return int32(v), nil
}

func (n *windowsNetwork) SetOptionInt(sock Socket, opt SocketOpt, value int32) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}
	if !isIntOption(opt) {
		return unsupportedOption(opt)
	}

	e := lookupOption(opt)
	if !e.supported() {
		return unsupportedOption(opt)
	}

	if err := windows.SetsockoptInt(windows.Handle(sock), e.level, e.name, int(value)); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to set option %v on socket %d", opt, sock)
	}
	return nil
}

func (n *windowsNetwork) GetOptionDuration(sock Socket, opt SocketOpt) (time.Duration, error) {
	if sock == InvalidSocket {
		return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}
	if !isDurationOption(opt) {
		return 0, unsupportedOption(opt)
	}

	e := lookupOption(opt)
	if !e.supported() {
		return 0, unsupportedOption(opt)
	}

	// Winsock expresses the timeouts in milliseconds and the keep-alive
	// family in seconds; SO_LINGER reads back through the int form as
	// well.
	v, err := windows.GetsockoptInt(windows.Handle(sock), e.level, e.name)
	if err != nil {
		return 0, lastNetworkFailure(err).
			WithContext("failed to get option %v on socket %d", opt, sock)
	}

	switch opt {
	case OptRecvTimeout, OptSendTimeout:
		return time.Duration(v) * time.Millisecond, nil
	}
	return time.Duration(v) * time.Second, nil
}

func (n *windowsNetwork) SetOptionDuration(sock Socket, opt SocketOpt, value time.Duration) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}
	if !isDurationOption(opt) {
		return unsupportedOption(opt)
	}

	e := lookupOption(opt)
	if !e.supported() {
		return unsupportedOption(opt)
	}

	var err error
	switch opt {
	case OptLinger:
		l := windows.Linger{}
		if value > 0 {
			l.Onoff = 1
			l.Linger = int32(value / time.Second)
		}
		err = windows.SetsockoptLinger(windows.Handle(sock), e.level, e.name, &l)

	case OptRecvTimeout, OptSendTimeout:
		err = windows.SetsockoptInt(
			windows.Handle(sock), e.level, e.name, int(value/time.Millisecond))

	default:
		err = windows.SetsockoptInt(
			windows.Handle(sock), e.level, e.name, int(value/time.Second))
	}

	if err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to set option %v on socket %d", opt, sock)
	}
	return nil
}

func (n *windowsNetwork) SetOptionMulticast(sock Socket, group MulticastGroup) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	mreq := windows.IPMreq{}
	copy(mreq.Multiaddr[:], group.Addr.Octets[:])
	copy(mreq.Interface[:], group.Interface.Octets[:])

	if err := windows.SetsockoptIPMreq(
		windows.Handle(sock),
		windows.IPPROTO_IP,
		windows.IP_ADD_MEMBERSHIP,
		&mreq); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to join multicast group %v on socket %d",
				group.Addr, sock)
	}
	return nil
}
