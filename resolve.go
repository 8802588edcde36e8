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
	"context"
	"net"

	"github.com/jacobsa/netio/fault"
)

// Resolve performs a single pass through the system resolver, mapping
// host (a name or literal address) and port onto AddressInfo values for
// the given socket configuration. No caching, no retry policy; callers
// that want either build it themselves.
func Resolve(
	ctx context.Context,
	host string,
	port uint16,
	config SocketConfig) ([]AddressInfo, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fault.NewFailure(fault.E_NOT_FOUND).
			WithContext("failed to resolve %q: %v", host, err)
	}

	var infos []AddressInfo
	for _, ip := range addrs {
		var sockAddr SocketAddress
		var family AddressFamily

		if v4 := ip.IP.To4(); v4 != nil {
			if config.Family == FamilyInet6 {
				continue
			}
			var addr InetAddress
			copy(addr.Octets[:], v4)
			sockAddr = NewSocketAddress(addr, port)
			family = FamilyInet4
		} else {
			if config.Family == FamilyInet4 {
				continue
			}
			var addr Inet6Address
			copy(addr.Groups[:], ip.IP.To16())
			sockAddr = NewSocketAddress6(addr, port, 0, 0)
			family = FamilyInet6
		}

		flags := AddrInfoNone
		if net.ParseIP(host) != nil {
			flags |= AddrInfoNumericHost
		}

		infos = append(infos, AddressInfo{
			Flags:    flags,
			Family:   family,
			Type:     config.Type,
			Protocol: config.Protocol,
			Address:  sockAddr,
		})
	}

	if len(infos) == 0 {
		return nil, fault.NewFailure(fault.E_NOT_FOUND).
			WithContext("no usable addresses for %q", host)
	}
	return infos, nil
}
