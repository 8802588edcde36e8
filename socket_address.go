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
	"fmt"
	"strconv"
	"strings"

	"github.com/jacobsa/netio/fault"
)

// UnixPathMax bounds the path of a unix-domain SocketAddress, excluding
// the terminating NUL.
const UnixPathMax = 104

// InetSocketAddr is the IPv4 arm of SocketAddress. Port is host-order in
// the value and network-order on the wire.
type InetSocketAddr struct {
	Addr InetAddress
	Port uint16
}

// Inet6SocketAddr is the IPv6 arm of SocketAddress.
type Inet6SocketAddr struct {
	Addr     Inet6Address
	Port     uint16
	FlowInfo uint32
	Scope    uint32
}

// UnixSocketAddr is the unix-domain arm of SocketAddress.
type UnixSocketAddr struct {
	// Path is at most UnixPathMax bytes and is NUL-terminated on the
	// wire.
	Path string
}

// SocketAddress is a tagged union over the three address arms. The zero
// value has no family and is empty. SocketAddress values are comparable
// with ==; equality is family plus the discriminated fields.
type SocketAddress struct {
	family AddressFamily
	inet   InetSocketAddr
	inet6  Inet6SocketAddr
	unix   UnixSocketAddr
}

// NewSocketAddress creates an IPv4 socket address.
func NewSocketAddress(addr InetAddress, port uint16) SocketAddress {
	return SocketAddress{
		family: FamilyInet4,
		inet:   InetSocketAddr{Addr: addr, Port: port},
	}
}

// NewSocketAddress6 creates an IPv6 socket address.
func NewSocketAddress6(addr Inet6Address, port uint16, flowInfo, scope uint32) SocketAddress {
	return SocketAddress{
		family: FamilyInet6,
		inet6: Inet6SocketAddr{
			Addr:     addr,
			Port:     port,
			FlowInfo: flowInfo,
			Scope:    scope,
		},
	}
}

// NewUnixSocketAddress creates a unix-domain socket address. Paths
// longer than UnixPathMax are refused.
func NewUnixSocketAddress(path string) (SocketAddress, error) {
	if len(path) > UnixPathMax {
		return SocketAddress{}, fault.NewFailure(fault.E_SIZE_EXCEEDED).
			WithContext("unix path %q exceeds %d bytes", path, UnixPathMax)
	}
	return SocketAddress{
		family: FamilyUnix,
		unix:   UnixSocketAddr{Path: path},
	}, nil
}

// Family returns the discriminant.
func (a SocketAddress) Family() AddressFamily {
	return a.family
}

// Inet returns the IPv4 arm. Only meaningful when Family() is
// FamilyInet4.
func (a SocketAddress) Inet() InetSocketAddr {
	return a.inet
}

// Inet6 returns the IPv6 arm. Only meaningful when Family() is
// FamilyInet6.
func (a SocketAddress) Inet6() Inet6SocketAddr {
	return a.inet6
}

// Unix returns the unix-domain arm. Only meaningful when Family() is
// FamilyUnix.
func (a SocketAddress) Unix() UnixSocketAddr {
	return a.unix
}

// IsEmpty reports whether the address carries no usable endpoint. An
// address of an unsupported family is treated as empty.
func (a SocketAddress) IsEmpty() bool {
	switch a.family {
	case FamilyInet4:
		return a.inet.Addr.IsEmpty() && a.inet.Port == 0
	case FamilyInet6:
		return a.inet6.Addr.IsEmpty() && a.inet6.Port == 0
	case FamilyUnix:
		return a.unix.Path == ""
	}
	return true
}

// IsValid reports whether the address has a supported family.
func (a SocketAddress) IsValid() bool {
	switch a.family {
	case FamilyInet4, FamilyInet6, FamilyUnix:
		return true
	}
	return false
}

// ParseSocketAddress parses "a.b.c.d:port", "[a.b.c.d]:port",
// "[v6]:port", or "unix:///path". The port is range checked into a
// uint16.
func ParseSocketAddress(s string) (SocketAddress, error) {
	if strings.HasPrefix(s, "unix://") {
		path := s[len("unix://"):]
		if path == "" || path[0] != '/' {
			return SocketAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("unix address %q must carry an absolute path", s)
		}
		return NewUnixSocketAddress(path)
	}

	host := s
	port := ""

	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return SocketAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("unterminated bracket in %q", s)
		}
		host = s[1:end]
		rest := s[end+1:]
		if rest != "" {
			if rest[0] != ':' {
				return SocketAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
					WithContext("garbage after bracket in %q", s)
			}
			port = rest[1:]
		}
	} else if i := strings.LastIndexByte(s, ':'); i >= 0 {
		host = s[:i]
		port = s[i+1:]
	}

	var portNum uint16
	if port != "" {
		v, err := strconv.ParseUint(port, 10, 16)
		if err != nil {
			return SocketAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("invalid port %q", port)
		}
		portNum = uint16(v)
	}

	if v4, err := ParseInetAddress(host); err == nil {
		return NewSocketAddress(v4, portNum), nil
	}
	if v6, err := ParseInet6Address(host); err == nil {
		return NewSocketAddress6(v6, portNum, 0, 0), nil
	}

	return SocketAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
		WithContext("unparseable address %q", s)
}

func (a SocketAddress) String() string {
	switch a.family {
	case FamilyInet4:
		return fmt.Sprintf("[%s]:%d", a.inet.Addr, a.inet.Port)
	case FamilyInet6:
		return fmt.Sprintf("[%s]:%d", a.inet6.Addr, a.inet6.Port)
	case FamilyUnix:
		return "unix://" + a.unix.Path
	}
	return "<empty>"
}

// MulticastGroup names an IPv4 group and the local interface joining it.
type MulticastGroup struct {
	Addr      InetAddress
	Interface InetAddress
}

// AddressInfoFlags carries resolver hints and result flags.
type AddressInfoFlags uint16

const (
	AddrInfoNone        AddressInfoFlags = 0
	AddrInfoPassive     AddressInfoFlags = 1 << 0
	AddrInfoCanonName   AddressInfoFlags = 1 << 1
	AddrInfoNumericHost AddressInfoFlags = 1 << 2
)

// AddressInfo is a single resolution result.
type AddressInfo struct {
	Flags    AddressInfoFlags
	Family   AddressFamily
	Type     SocketType
	Protocol SocketProtocol
	Address  SocketAddress
}
