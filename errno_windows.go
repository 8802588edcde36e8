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
	"errors"
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/jacobsa/netio/fault"
)

// lastNetworkFailure classifies a Winsock error. Every policy-mapped
// code maps to exactly one kind; anything unlisted falls through to the
// general table, which preserves the raw code either way.
func lastNetworkFailure(err error) *fault.Failure {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return fault.Errno(err)
	}

	code := int32(errno)
	switch errno {
	case windows.WSAEWOULDBLOCK:
		return fault.E_NET_WOULD_BLOCK.WithCode(code)
	case windows.WSAEINPROGRESS, windows.WSAEALREADY:
		return fault.E_NET_INPROGRESS.WithCode(code)
	case windows.WSAEADDRINUSE, windows.WSAEADDRNOTAVAIL:
		return fault.E_RESOURCE_NOT_AVAILABLE.WithCode(code)
	case windows.WSAECONNABORTED, windows.WSAEHOSTUNREACH:
		return fault.E_NET_CONN_ABORTED.WithCode(code)
	case windows.WSAECONNREFUSED:
		return fault.E_NET_CONN_REFUSED.WithCode(code)
	case windows.WSAECONNRESET:
		return fault.E_NET_CONN_RESET.WithCode(code)
	case windows.WSAENETDOWN:
		return fault.E_NET_NETWORK_DOWN.WithCode(code)
	case windows.WSAEISCONN:
		return fault.E_NET_CONNECTED.WithCode(code)
	case windows.WSAENOTCONN:
		return fault.E_NET_DISCONNECTED.WithCode(code)
	case windows.WSAETIMEDOUT:
		return fault.E_NET_TIMEOUT.WithCode(code)
	case windows.WSAEINTR:
		return fault.E_INTERRUPTED.WithCode(code)
	}

	return fault.Errno(err)
}
