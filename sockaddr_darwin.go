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

//go:build darwin

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

// BSD sockaddrs open with a one-byte length followed by a one-byte
// family. The length byte is advisory; we leave it zero on writes, as
// the kernels do not require it for the families we serialise.
func putSockaddrFamily(w *memio.Writer, family uint16) {
	w.Put8(0)
	w.Put8(uint8(family))
}

func readSockaddrFamily(r *memio.Reader) uint16 {
	r.Skip(1)
	return uint16(r.Read8())
}
