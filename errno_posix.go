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
	"errors"

	"golang.org/x/sys/unix"

	"github.com/jacobsa/netio/fault"
)

// lastNetworkFailure classifies a syscall error observed at the network
// boundary. Every policy-mapped errno maps to exactly one kind; anything
// unlisted falls through to the general table, which preserves the raw
// code either way.
func lastNetworkFailure(err error) *fault.Failure {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return fault.Errno(err)
	}

	code := int32(errno)
	switch errno {
	case unix.EWOULDBLOCK:
		return fault.E_NET_WOULD_BLOCK.WithCode(code)
	case unix.EINPROGRESS, unix.EALREADY:
		return fault.E_NET_INPROGRESS.WithCode(code)
	case unix.EADDRINUSE, unix.EADDRNOTAVAIL:
		return fault.E_RESOURCE_NOT_AVAILABLE.WithCode(code)
	case unix.ECONNABORTED, unix.EHOSTUNREACH:
		return fault.E_NET_CONN_ABORTED.WithCode(code)
	case unix.ECONNREFUSED:
		return fault.E_NET_CONN_REFUSED.WithCode(code)
	case unix.ECONNRESET:
		return fault.E_NET_CONN_RESET.WithCode(code)
	case unix.ENETDOWN:
		return fault.E_NET_NETWORK_DOWN.WithCode(code)
	case unix.EISCONN:
		return fault.E_NET_CONNECTED.WithCode(code)
	case unix.ENOTCONN:
		return fault.E_NET_DISCONNECTED.WithCode(code)
	case unix.ETIMEDOUT:
		return fault.E_NET_TIMEOUT.WithCode(code)
	}

	return fault.Errno(err)
}
