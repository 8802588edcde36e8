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
	"time"

	"golang.org/x/sys/unix"

	"github.com/jacobsa/netio/fault"
)

// selectPoller is the fallback backend: there is no kernel-held interest
// set, so every wait rebuilds the three fd_sets from the snapshot taken
// under the service mutex.
type selectPoller struct {
	// The snapshot from the most recent prepare.
	snapshot []SocketEvent
	reads    unix.FdSet
	writes   unix.FdSet
	errors   unix.FdSet
	nfds     int
}

func newSelectPoller() *selectPoller {
	return &selectPoller{}
}

func (p *selectPoller) start() error {
	return nil
}

func (p *selectPoller) stop() {}

// The kernel learns the interest set from the fd_sets built in prepare,
// so registration is bookkeeping-free.
func (p *selectPoller) add(sock Socket, ops SocketOperation) error {
	if int(sock) >= unix.FD_SETSIZE {
		return fault.NewFailure(fault.E_NET_UNSUPPORTED).
			WithContext("socket %d exceeds FD_SETSIZE", sock)
	}
	return nil
}

func (p *selectPoller) modify(sock Socket, ops SocketOperation) error {
	return nil
}

func (p *selectPoller) remove(sock Socket) error {
	return nil
}

func (p *selectPoller) prepare(interest map[Socket]SocketOperation) {
	p.reads.Zero()
	p.writes.Zero()
	p.errors.Zero()
	p.nfds = 0
	p.snapshot = p.snapshot[:0]

	for sock, ops := range interest {
		fd := int(sock)
		if fd+1 > p.nfds {
			p.nfds = fd + 1
		}
		if ops&OpRead != 0 {
			p.reads.Set(fd)
		}
		if ops&OpWrite != 0 {
			p.writes.Set(fd)
		}
		if ops&OpError != 0 {
			p.errors.Set(fd)
		}
		p.snapshot = append(p.snapshot, SocketEvent{Sock: sock, Events: ops})
	}
}

func (p *selectPoller) wait(timeout time.Duration, out []SocketEvent) ([]SocketEvent, error) {
	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	// select scribbles on its arguments; keep the prepared sets intact
	// for the post-wait scan.
	reads := p.reads
	writes := p.writes
	errs := p.errors

	var err error
	for {
		_, err = unix.Select(p.nfds, &reads, &writes, &errs, tv)
		if err != unix.EINTR {
			break
		}
		reads = p.reads
		writes = p.writes
		errs = p.errors
	}
	if err != nil {
		return out, lastNetworkFailure(err).
			WithContext("failed to execute select()")
	}

	for _, watch := range p.snapshot {
		fd := int(watch.Sock)
		var ops SocketOperation

		if watch.Events&OpRead != 0 && reads.IsSet(fd) {
			ops |= OpRead
		}
		if watch.Events&OpWrite != 0 && writes.IsSet(fd) {
			ops |= OpWrite
		}
		if watch.Events&OpError != 0 && errs.IsSet(fd) {
			ops |= OpError
		}
		if ops != OpNone {
			out = appendEvent(out, watch.Sock, ops)
		}
	}
	return out, nil
}
