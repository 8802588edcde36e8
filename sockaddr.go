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
	"github.com/jacobsa/netio/fault"
	"github.com/jacobsa/netio/memio"
)

// SockaddrStorageSize is the size of a buffer guaranteed to hold any
// serialised sockaddr.
const SockaddrStorageSize = 128

// Wire sizes of the fixed-layout families.
const (
	sockaddrInSize  = 16
	sockaddrIn6Size = 28
)

// ToSockaddr serialises the address into buf in the kernel's sockaddr
// layout: family tag, network-order port, address bytes, and for v6 the
// flow info and scope. It returns the number of bytes consumed. buf
// should be at least SockaddrStorageSize bytes.
func (a SocketAddress) ToSockaddr(buf []byte) (int, error) {
	w := memio.NewWriter(buf)

	switch a.family {
	case FamilyInet4:
		if w.Size() < sockaddrInSize {
			return 0, fault.NewFailure(fault.E_SIZE_EXCEEDED).
				WithContext("sockaddr buffer too small for inet4")
		}
		putSockaddrFamily(w, rawAfInet)
		w.Put16BE(a.inet.Port)
		w.PutBytes(a.inet.Addr.Octets[:])
		w.PutZero(8)
		return sockaddrInSize, nil

	case FamilyInet6:
		if w.Size() < sockaddrIn6Size {
			return 0, fault.NewFailure(fault.E_SIZE_EXCEEDED).
				WithContext("sockaddr buffer too small for inet6")
		}
		putSockaddrFamily(w, rawAfInet6)
		w.Put16BE(a.inet6.Port)
		w.Put32BE(a.inet6.FlowInfo)
		w.PutBytes(a.inet6.Addr.Groups[:])
		w.Put32LE(a.inet6.Scope)
		return sockaddrIn6Size, nil

	case FamilyUnix:
		need := 2 + len(a.unix.Path) + 1
		if w.Size() < need {
			return 0, fault.NewFailure(fault.E_SIZE_EXCEEDED).
				WithContext("sockaddr buffer too small for unix path")
		}
		putSockaddrFamily(w, rawAfUnix)
		w.PutString(a.unix.Path)
		w.Put8(0)
		return w.Offset(), nil
	}

	return 0, fault.NewFailure(fault.E_INVALID_ARGUMENT).
		WithContext("cannot serialise address family %v", a.family)
}

// SocketAddressFromSockaddr parses a kernel sockaddr buffer back into
// the tagged union.
func SocketAddressFromSockaddr(buf []byte) (SocketAddress, error) {
	r := memio.NewReader(buf)
	family := readSockaddrFamily(r)

	switch family {
	case rawAfInet:
		if r.Size() < sockaddrInSize {
			return SocketAddress{}, fault.NewFailure(fault.E_SIZE_EXCEEDED).
				WithContext("short inet4 sockaddr (%d bytes)", r.Size())
		}
		port := r.Read16BE()
		var addr InetAddress
		copy(addr.Octets[:], r.ReadSpan(4))
		return NewSocketAddress(addr, port), nil

	case rawAfInet6:
		if r.Size() < sockaddrIn6Size {
			return SocketAddress{}, fault.NewFailure(fault.E_SIZE_EXCEEDED).
				WithContext("short inet6 sockaddr (%d bytes)", r.Size())
		}
		port := r.Read16BE()
		flow := r.Read32BE()
		var addr Inet6Address
		copy(addr.Groups[:], r.ReadSpan(16))
		scope := r.Read32LE()
		return NewSocketAddress6(addr, port, flow, scope), nil

	case rawAfUnix:
		path := r.ReadString(r.Remaining())
		return NewUnixSocketAddress(path)
	}

	return SocketAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
		WithContext("unknown sockaddr family %d", family)
}
