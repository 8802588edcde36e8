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
)

const msgNoSignal = unix.MSG_NOSIGNAL

// Options whose (level, name) diverges per platform. TcpKeepAlive is the
// Apple spelling of keep-alive idle time and does not exist here.
func lookupPlatformOption(opt SocketOpt) sockoptEntry {
	switch opt {
	case OptReusePort:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_REUSEPORT}
	case OptLinger:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_LINGER}
	case OptRecvTimeout:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_RCVTIMEO}
	case OptSendTimeout:
		return sockoptEntry{unix.SOL_SOCKET, unix.SO_SNDTIMEO}
	case OptTcpKeepIdle:
		return sockoptEntry{unix.IPPROTO_TCP, unix.TCP_KEEPIDLE}
	}
	return sockoptEntry{level: -1, name: -1}
}
