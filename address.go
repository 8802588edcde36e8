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
	"bytes"
	"fmt"
	"strings"

	"github.com/jacobsa/netio/fault"
)

// InetAddress is an IPv4 address: exactly four bytes in network order.
// The zero value is the empty address.
type InetAddress struct {
	Octets [4]byte
}

// InaddrAny, InaddrLoopback and InaddrBroadcast are the usual well-known
// addresses.
var (
	InaddrAny       = InetAddress{}
	InaddrLoopback  = InetAddress{Octets: [4]byte{127, 0, 0, 1}}
	InaddrBroadcast = InetAddress{Octets: [4]byte{255, 255, 255, 255}}
)

// ParseInetAddress parses dotted-decimal notation ("a.b.c.d", each octet
// 0-255).
func ParseInetAddress(s string) (InetAddress, error) {
	var addr InetAddress

	part := 0
	val := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			if val < 0 {
				val = 0
			}
			val = val*10 + int(c-'0')
			if val > 255 {
				return InetAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
					WithContext("octet out of range in %q", s)
			}
		case c == '.':
			if val < 0 || part == 3 {
				return InetAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
					WithContext("malformed IPv4 address %q", s)
			}
			addr.Octets[part] = byte(val)
			part++
			val = -1
		default:
			return InetAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("unexpected character %q in %q", c, s)
		}
	}
	if part != 3 || val < 0 {
		return InetAddress{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("malformed IPv4 address %q", s)
	}
	addr.Octets[3] = byte(val)

	return addr, nil
}

// FromDecimal fills the address from a host-order 32-bit value.
func (a *InetAddress) FromDecimal(v uint32) {
	a.Octets[0] = byte(v >> 24)
	a.Octets[1] = byte(v >> 16)
	a.Octets[2] = byte(v >> 8)
	a.Octets[3] = byte(v)
}

// ToDecimal returns the address as a host-order 32-bit value.
func (a InetAddress) ToDecimal() uint32 {
	return uint32(a.Octets[0])<<24 |
		uint32(a.Octets[1])<<16 |
		uint32(a.Octets[2])<<8 |
		uint32(a.Octets[3])
}

// IsEmpty reports whether every byte is zero.
func (a InetAddress) IsEmpty() bool {
	return a.Octets == [4]byte{}
}

// IsPrivate reports whether the address lies in one of the RFC 1918
// ranges or the loopback block.
func (a InetAddress) IsPrivate() bool {
	switch {
	case a.Octets[0] == 10:
		return true
	case a.Octets[0] == 172 && a.Octets[1] >= 16 && a.Octets[1] <= 31:
		return true
	case a.Octets[0] == 192 && a.Octets[1] == 168:
		return true
	case a.Octets[0] == 127:
		return true
	}
	return false
}

// AsV6 returns the IPv4-mapped IPv6 form ::ffff:a.b.c.d.
func (a InetAddress) AsV6() Inet6Address {
	var v6 Inet6Address
	v6.Groups[10] = 0xff
	v6.Groups[11] = 0xff
	copy(v6.Groups[12:], a.Octets[:])
	return v6
}

// Less orders addresses byte-lexicographically.
func (a InetAddress) Less(b InetAddress) bool {
	return bytes.Compare(a.Octets[:], b.Octets[:]) < 0
}

func (a InetAddress) String() string {
	return fmt.Sprintf("%d.%d.%d.%d",
		a.Octets[0], a.Octets[1], a.Octets[2], a.Octets[3])
}

// Inet6Address is an IPv6 address: exactly sixteen bytes in network
// order. The zero value is the empty address.
type Inet6Address struct {
	Groups [16]byte
}

// InaddrLoopback6 is ::1. InaddrLoopback6in4 is the v4-mapped loopback
// ::ffff:127.0.0.1.
var (
	InaddrLoopback6 = Inet6Address{
		Groups: [16]byte{15: 1},
	}
	InaddrLoopback6in4 = Inet6Address{
		Groups: [16]byte{10: 0xff, 11: 0xff, 12: 127, 15: 1},
	}
)

// ParseInet6Address parses colon-hex notation with "::" compression and
// an optional dotted-decimal IPv4 tail. A zone suffix ("%eth0") is
// ignored at this layer.
func ParseInet6Address(s string) (Inet6Address, error) {
	var addr Inet6Address

	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return Inet6Address{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("empty IPv6 address")
	}

	// ellipsis is the group index the "::" gap starts at, or -1.
	ellipsis := -1
	n := 0 // bytes filled in addr.Groups

	if strings.HasPrefix(s, "::") {
		ellipsis = 0
		s = s[2:]
		if s == "" {
			return addr, nil
		}
	} else if strings.HasPrefix(s, ":") {
		return Inet6Address{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("leading single colon")
	}

	for s != "" {
		if n == 16 {
			return Inet6Address{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("too many groups")
		}

		// A dotted-decimal tail consumes the final four bytes.
		dot := strings.IndexByte(s, '.')
		colon := strings.IndexByte(s, ':')
		if dot >= 0 && colon < 0 {
			v4, err := ParseInetAddress(s)
			if err != nil {
				return Inet6Address{}, err
			}
			copy(addr.Groups[n:], v4.Octets[:])
			n += 4
			s = ""
			break
		}
		if dot >= 0 && dot < colon {
			return Inet6Address{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("IPv4 tail must be last")
		}

		// One hex group of 1-4 digits.
		val := 0
		digits := 0
		for digits < len(s) {
			d := hexDigit(s[digits])
			if d < 0 {
				break
			}
			val = val<<4 | d
			digits++
			if digits > 4 {
				return Inet6Address{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
					WithContext("group too long")
			}
		}
		if digits == 0 {
			return Inet6Address{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("empty group")
		}

		addr.Groups[n] = byte(val >> 8)
		addr.Groups[n+1] = byte(val)
		n += 2
		s = s[digits:]

		if s == "" {
			break
		}
		if s[0] != ':' {
			return Inet6Address{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("unexpected character %q", s[0])
		}
		s = s[1:]
		if strings.HasPrefix(s, ":") {
			if ellipsis >= 0 {
				return Inet6Address{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
					WithContext("multiple \"::\"")
			}
			ellipsis = n
			s = s[1:]
			if s == "" {
				break
			}
		} else if s == "" {
			return Inet6Address{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("trailing colon")
		}
	}

	if n < 16 {
		if ellipsis < 0 {
			return Inet6Address{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("too few groups")
		}
		// Expand the gap: shift the bytes after the ellipsis to the end.
		tail := n - ellipsis
		copy(addr.Groups[16-tail:], addr.Groups[ellipsis:n])
		for i := ellipsis; i < 16-tail; i++ {
			addr.Groups[i] = 0
		}
	} else if ellipsis >= 0 {
		return Inet6Address{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("\"::\" in full-length address")
	}

	return addr, nil
}

func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// IsEmpty reports whether every byte is zero.
func (a Inet6Address) IsEmpty() bool {
	return a.Groups == [16]byte{}
}

// IsMappedV4 reports whether the address is of the IPv4-mapped form
// ::ffff:a.b.c.d.
func (a Inet6Address) IsMappedV4() bool {
	for i := 0; i < 10; i++ {
		if a.Groups[i] != 0 {
			return false
		}
	}
	return a.Groups[10] == 0xff && a.Groups[11] == 0xff
}

// AsV4 extracts the mapped IPv4 address, or the empty address if the
// receiver is not v4-mapped.
func (a Inet6Address) AsV4() InetAddress {
	if !a.IsMappedV4() {
		return InetAddress{}
	}
	var v4 InetAddress
	copy(v4.Octets[:], a.Groups[12:])
	return v4
}

// IsPrivate reports whether the address is unique-local (fc00::/7),
// link-local (fe80::/10), loopback, or maps a private IPv4 address.
func (a Inet6Address) IsPrivate() bool {
	switch {
	case a.Groups[0]&0xfe == 0xfc:
		return true
	case a.Groups[0] == 0xfe && a.Groups[1]&0xc0 == 0x80:
		return true
	case a == InaddrLoopback6:
		return true
	case a.IsMappedV4():
		return a.AsV4().IsPrivate()
	}
	return false
}

// Less orders addresses byte-lexicographically.
func (a Inet6Address) Less(b Inet6Address) bool {
	return bytes.Compare(a.Groups[:], b.Groups[:]) < 0
}

// String renders the canonical form: lowercase hex, longest zero run
// compressed with "::".
func (a Inet6Address) String() string {
	// Find the longest run of zero 16-bit groups, length >= 2.
	bestStart, bestLen := -1, 1
	runStart, runLen := -1, 0
	for i := 0; i < 8; i++ {
		g := uint16(a.Groups[2*i])<<8 | uint16(a.Groups[2*i+1])
		if g == 0 {
			if runStart < 0 {
				runStart = i
			}
			runLen++
			if runLen > bestLen {
				bestStart, bestLen = runStart, runLen
			}
		} else {
			runStart, runLen = -1, 0
		}
	}

	var sb strings.Builder
	for i := 0; i < 8; i++ {
		if i == bestStart {
			sb.WriteString("::")
			i += bestLen - 1
			continue
		}
		if i > 0 && !(bestStart >= 0 && i == bestStart+bestLen) {
			sb.WriteByte(':')
		}
		g := uint16(a.Groups[2*i])<<8 | uint16(a.Groups[2*i+1])
		fmt.Fprintf(&sb, "%x", g)
	}
	if sb.Len() == 0 {
		return "::"
	}
	return sb.String()
}
