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
	"time"

	"golang.org/x/sys/unix"

	"github.com/jacobsa/netio/fault"
)

// sockoptEntry locates an option in the kernel's (level, name) space. A
// negative name means the option is not implemented on this platform.
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

// Options common to every POSIX platform. The divergent entries
// (TcpKeepIdle, TcpKeepAlive, ReusePort) come from the per-platform
// table.
func lookupCommonOption(opt SocketOpt) (sockoptEntry, bool) {
	switch opt {
	case OptBroadcast:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_BROADCAST}, true
	case OptDebug:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_DEBUG}, true
	case OptDontRoute:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_DONTROUTE}, true
	case OptKeepAlive:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_KEEPALIVE}, true
	case OptOobInline:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_OOBINLINE}, true
	case OptReuseAddress:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_REUSEADDR}, true
	case OptNoDelay:
		return sockoptEntry{unix.IPPROTO_TCP, unix.TCP_NODELAY}, true
	case OptMulticastLoopback:
		return sockoptEntry{unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP}, true
	case OptRecvBuf:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_RCVBUF}, true
	case OptSendBuf:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_SNDBUF}, true
	case OptRecvLowMark:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_RCVLOWAT}, true
	case OptSendLowMark:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_SNDLOWAT}, true
	case OptMulticastTTL:
		return sockoptEntry{unix.IPPROTO_IP, unix.IP_MULTICAST_TTL}, true
	case OptTcpKeepCount:
		return sockoptEntry{unix.IPPROTO_TCP, unix.TCP_KEEPCNT}, true
	case OptTcpKeepInterval:
		return sockoptEntry{unix.IPPROTO_TCP, unix.TCP_KEEPINTVL}, true
	case OptTimeToLive:
		return sockoptEntry{unix.IPPROTO_IP, unix.IP_TTL}, true
	case OptSocketError:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_ERROR}, true
	case OptType:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_TYPE}, true
	}
	return sockoptEntry{}, false
}

func lookupOption(opt SocketOpt) sockoptEntry {
	if e, ok := lookupCommonOption(opt); ok {
		return e
	}
	return lookupPlatformOption(opt)
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

func (n *posixNetwork) GetOptionBool(sock Socket, opt SocketOpt) (bool, error) {
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

	v, err := unix.GetsockoptInt(int(sock), e.level, e.name)
	if err != nil {
		return false, lastNetworkFailure(err).
			WithContext("failed to get option %v on socket %d", opt, sock)
	}
	return v != 0, nil
}

func (n *posixNetwork) SetOptionBool(sock Socket, opt SocketOpt, value bool) error {
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
	if err := unix.SetsockoptInt(int(sock), e.level, e.name, raw); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to set option %v on socket %d", opt, sock)
	}
	return nil
}

func (n *posixNetwork) GetOptionInt(sock Socket, opt SocketOpt) (int32, error) {
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

	v, err := unix.GetsockoptInt(int(sock), e.level, e.name)
	if err != nil {
		return 0, lastNetworkFailure(err).
			WithContext("failed to get option %v on socket %d", opt, sock)
	}
	return int32(v), nil
}

func (n *posixNetwork) SetOptionInt(sock Socket, opt SocketOpt, value int32) error {
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

	if err := unix.SetsockoptInt(int(sock), e.level, e.name, int(value)); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to set option %v on socket %d", opt, sock)
	}
	return nil
}

func (n *posixNetwork) GetOptionDuration(sock Socket, opt SocketOpt) (time.Duration, error) {
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

	switch opt {
	case OptLinger:
		l, err := unix.GetsockoptLinger(int(sock), e.level, e.name)
		if err != nil {
			return 0, lastNetworkFailure(err).
				WithContext("failed to get option %v on socket %d", opt, sock)
		}
		if l.Onoff == 0 {
			return 0, nil
		}
		return time.Duration(l.Linger) * time.Second, nil

	case OptRecvTimeout, OptSendTimeout:
		tv, err := unix.GetsockoptTimeval(int(sock), e.level, e.name)
		if err != nil {
			return 0, lastNetworkFailure(err).
				WithContext("failed to get option %v on socket %d", opt, sock)
		}
		return time.Duration(tv.Sec)*time.Second +
			time.Duration(tv.Usec)*time.Microsecond, nil
	}

	// The keep-alive family is expressed in whole seconds.
	v, err := unix.GetsockoptInt(int(sock), e.level, e.name)
	if err != nil {
		return 0, lastNetworkFailure(err).
			WithContext("failed to get option %v on socket %d", opt, sock)
	}
	return time.Duration(v) * time.Second, nil
}

func (n *posixNetwork) SetOptionDuration(sock Socket, opt SocketOpt, value time.Duration) error {
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
		l := unix.Linger{}
		if value > 0 {
			l.Onoff = 1
			l.Linger = int32(value / time.Second)
		}
		err = unix.SetsockoptLinger(int(sock), e.level, e.name, &l)

	case OptRecvTimeout, OptSendTimeout:
		tv := unix.NsecToTimeval(value.Nanoseconds())
		err = unix.SetsockoptTimeval(int(sock), e.level, e.name, &tv)

	default:
		err = unix.SetsockoptInt(int(sock), e.level, e.name, int(value/time.Second))
	}

	if err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to set option %v on socket %d", opt, sock)
	}
	return nil
}

func (n *posixNetwork) SetOptionMulticast(sock Socket, group MulticastGroup) error {
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}

	mreq := unix.IPMreq{}
	copy(mreq.Multiaddr[:], group.Addr.Octets[:])
	copy(mreq.Interface[:], group.Interface.Octets[:])

	if err := unix.SetsockoptIPMreq(
		int(sock),
		unix.IPPROTO_IP,
		unix.IP_ADD_MEMBERSHIP,
		&mreq); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to join multicast group %v on socket %d",
				group.Addr, sock)
	}
	return nil
}
