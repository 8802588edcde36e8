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
	"golang.org/x/sys/unix"

	"github.com/jacobsa/netio/memio"
)

const (
	rawAfInet  = uint16(unix.AF_INET)
	rawAfInet6 = uint16(unix.AF_INET6)
	rawAfUnix  = uint16(unix.AF_UNIX)
)

// Linux sockaddrs open with a 16-bit sa_family in host byte order.
func putSockaddrFamily(w *memio.Writer, family uint16) {
	w.Put16LE(family)
}

func readSockaddrFamily(r *memio.Reader) uint16 {
	return r.Read16LE()
}
