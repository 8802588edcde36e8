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

//go:build linux

package netio

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/jacobsa/netio/fault"
)

// epollPoller drives Execute with a long-lived epoll descriptor. The
// kernel owns the interest set; add/modify/remove translate directly to
// epoll_ctl.
type epollPoller struct {
	fd int

	// buf receives epoll_wait results; prepare sizes it to the interest
	// set.
	buf []unix.EpollEvent
}

func newEpollPoller() *epollPoller {
	return &epollPoller{fd: -1}
}

func toEpollEvents(ops SocketOperation) uint32 {
	var ev uint32
	if ops&OpRead != 0 {
		ev |= unix.EPOLLIN
	}
	if ops&OpWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	if ops&OpError != 0 {
		ev |= unix.EPOLLERR
	}
	return ev
}

func fromEpollEvents(ev uint32) SocketOperation {
	var ops SocketOperation
	if ev&unix.EPOLLIN != 0 {
		ops |= OpRead
	}
	if ev&unix.EPOLLOUT != 0 {
		ops |= OpWrite
	}
	// Hangups surface as errors; callers learn the details from the
	// recv that follows.
	if ev&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		ops |= OpError
	}
	return ops
}

func (p *epollPoller) start() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to initialize epoll")
	}
	p.fd = fd
	return nil
}

func (p *epollPoller) stop() {
	if p.fd >= 0 {
		unix.Close(p.fd)
		p.fd = -1
	}
}

func (p *epollPoller) ctl(op int, sock Socket, ops SocketOperation) error {
	var ev *unix.EpollEvent
	if op != unix.EPOLL_CTL_DEL {
		ev = &unix.EpollEvent{
			Events: toEpollEvents(ops),
			Fd:     int32(sock),
		}
	}
	if err := unix.EpollCtl(p.fd, op, int(sock), ev); err != nil {
		return lastNetworkFailure(err)
	}
	return nil
}

func (p *epollPoller) add(sock Socket, ops SocketOperation) error {
	return p.ctl(unix.EPOLL_CTL_ADD, sock, ops)
}

func (p *epollPoller) modify(sock Socket, ops SocketOperation) error {
	return p.ctl(unix.EPOLL_CTL_MOD, sock, ops)
}

func (p *epollPoller) remove(sock Socket) error {
	return p.ctl(unix.EPOLL_CTL_DEL, sock, OpNone)
}

func (p *epollPoller) prepare(interest map[Socket]SocketOperation) {
	if cap(p.buf) < len(interest) {
		p.buf = make([]unix.EpollEvent, len(interest))
	}
	p.buf = p.buf[:len(interest)]
}

func (p *epollPoller) wait(timeout time.Duration, out []SocketEvent) ([]SocketEvent, error) {
	if len(p.buf) == 0 {
		return out, fault.NewFailure(fault.E_NOT_INITIALIZED).
			WithContext("empty pollset")
	}

	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}

	var n int
	var err error
	for {
		n, err = unix.EpollWait(p.fd, p.buf, msec)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return out, lastNetworkFailure(err).
			WithContext("epoll failed")
	}

	for i := 0; i < n; i++ {
		ops := fromEpollEvents(p.buf[i].Events)
		if ops == OpNone {
			continue
		}
		out = append(out, SocketEvent{
			Sock:   Socket(p.buf[i].Fd),
			Events: ops,
		})
	}
	return out, nil
}

const defaultBackend = BackendEpoll

func newPoller(backend Backend, network Network, pipe *SocketPair) (poller, error) {
	switch backend {
	case BackendEpoll:
		return newEpollPoller(), nil
	case BackendSelect:
		return newSelectPoller(), nil
	}
	return nil, fault.NewFailure(fault.E_NET_UNSUPPORTED).
		WithContext("backend %v is not available on this platform", backend)
}
