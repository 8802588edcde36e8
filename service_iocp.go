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
	"syscall"
	"time"

	"golang.org/x/sys/windows"

	"github.com/jacobsa/netio/fault"
)

// iocpBatchSize bounds how many completions a single Execute drains.
const iocpBatchSize = 64

// iocpProbe is one outstanding zero-byte overlapped operation. The
// Overlapped struct must be the first field: completions hand back a
// *Overlapped, and the probe is recovered by address.
type iocpProbe struct {
	overlapped windows.Overlapped
	sock       Socket
	op         SocketOperation

	// Set when the socket's interest was dropped while the probe was in
	// flight; the completion is discarded instead of reported.
	cancelled bool
}

// iocpPoller emulates readiness over a completion port.
//
// This is a new design relative to the readiness backends: IOCP reports
// finished I/O, not readiness, so the poller posts zero-byte WSARecv and
// WSASend probes and treats a probe's completion as the corresponding
// readiness transition. A completed probe is re-armed on the next
// prepare, so between Execute calls a socket has at most one
// outstanding probe per direction.
type iocpPoller struct {
	port windows.Handle

	// Outstanding probes per socket and direction.
	reads  map[Socket]*iocpProbe
	writes map[Socket]*iocpProbe

	// byOverlapped recovers the probe for a completion. Entries persist
	// until their completion is drained, even after cancellation.
	byOverlapped map[*windows.Overlapped]*iocpProbe

	// Sockets already associated with the port. Association is
	// per-socket and permanent.
	associated map[Socket]bool
}

func newIocpPoller() *iocpPoller {
	return &iocpPoller{
		port:         windows.InvalidHandle,
		reads:        make(map[Socket]*iocpProbe),
		writes:       make(map[Socket]*iocpProbe),
		byOverlapped: make(map[*windows.Overlapped]*iocpProbe),
		associated:   make(map[Socket]bool),
	}
}

func (p *iocpPoller) start() error {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 1)
	if err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to create completion port")
	}
	p.port = port
	return nil
}

func (p *iocpPoller) stop() {
	if p.port != windows.InvalidHandle {
		windows.CloseHandle(p.port)
		p.port = windows.InvalidHandle
	}
}

func (p *iocpPoller) associate(sock Socket) error {
	if p.associated[sock] {
		return nil
	}
	if _, err := windows.CreateIoCompletionPort(
		windows.Handle(sock), p.port, 0, 0); err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to associate socket %d with completion port", sock)
	}
	p.associated[sock] = true
	return nil
}

func (p *iocpPoller) add(sock Socket, ops SocketOperation) error {
	return p.associate(sock)
}

func (p *iocpPoller) modify(sock Socket, ops SocketOperation) error {
	return p.associate(sock)
}

func (p *iocpPoller) remove(sock Socket) error {
	// In-flight probes cannot be revoked from the port; mark them so
	// their completions are dropped, and ask the kernel to hurry them
	// along.
	if probe, ok := p.reads[sock]; ok {
		probe.cancelled = true
		delete(p.reads, sock)
	}
	if probe, ok := p.writes[sock]; ok {
		probe.cancelled = true
		delete(p.writes, sock)
	}
	windows.CancelIoEx(windows.Handle(sock), nil)
	return nil
}

// arm issues a zero-byte probe for one direction if none is in flight.
func (p *iocpPoller) arm(sock Socket, op SocketOperation) {
	probes := p.reads
	if op == OpWrite {
		probes = p.writes
	}
	if _, ok := probes[sock]; ok {
		return
	}

	probe := &iocpProbe{sock: sock, op: op}
	var buf windows.WSABuf
	var transferred uint32

	var err error
	if op == OpRead {
		var flags uint32
		err = windows.WSARecv(
			windows.Handle(sock), &buf, 1, &transferred, &flags,
			&probe.overlapped, nil)
	} else {
		err = windows.WSASend(
			windows.Handle(sock), &buf, 1, &transferred, 0,
			&probe.overlapped, nil)
	}

	// Both immediate success and ERROR_IO_PENDING post a completion to
	// the port; any other error will surface there too if the operation
	// started, and otherwise the socket is dead enough that the caller
	// will find out through its own I/O.
	if err != nil && err != windows.ERROR_IO_PENDING {
		return
	}

	probes[sock] = probe
	p.byOverlapped[&probe.overlapped] = probe
}

func (p *iocpPoller) prepare(interest map[Socket]SocketOperation) {
	for sock, ops := range interest {
		if ops&OpRead != 0 {
			p.arm(sock, OpRead)
		}
		if ops&OpWrite != 0 {
			p.arm(sock, OpWrite)
		}
	}
}

func (p *iocpPoller) wait(timeout time.Duration, out []SocketEvent) ([]SocketEvent, error) {
	msec := uint32(windows.INFINITE)
	if timeout >= 0 {
		msec = uint32(timeout / time.Millisecond)
	}

	for drained := 0; drained < iocpBatchSize; drained++ {
		var transferred uint32
		var key uintptr
		var overlapped *windows.Overlapped

		err := windows.GetQueuedCompletionStatus(
			p.port, &transferred, &key, &overlapped, msec)

		// Only the first dequeue blocks; the rest of the batch is
		// drained without waiting.
		msec = 0

		if overlapped == nil {
			if err == syscall.Errno(windows.WAIT_TIMEOUT) {
				break
			}
			if err != nil {
				return out, lastNetworkFailure(err).
					WithContext("failed to dequeue completion")
			}
			continue
		}

		probe, ok := p.byOverlapped[overlapped]
		if !ok {
			continue
		}
		delete(p.byOverlapped, overlapped)

		if probe.cancelled {
			continue
		}

		// The probe is spent; drop it so prepare re-arms next round.
		if probe.op == OpRead {
			delete(p.reads, probe.sock)
		} else {
			delete(p.writes, probe.sock)
		}

		ops := probe.op
		if err != nil {
			ops |= OpError
		}
		out = appendEvent(out, probe.sock, ops)
	}

	return out, nil
}

const defaultBackend = BackendIocp

func newPoller(backend Backend, network Network, pipe *SocketPair) (poller, error) {
	switch backend {
	case BackendIocp:
		return newIocpPoller(), nil
	}
	return nil, fault.NewFailure(fault.E_NET_UNSUPPORTED).
		WithContext("backend %v is not available on this platform", backend)
}
