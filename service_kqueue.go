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
	"time"

	"golang.org/x/sys/unix"

	"github.com/jacobsa/netio/fault"
)

// kqueuePoller drives Execute with a long-lived kqueue. Interest is one
// kevent per (socket, filter) pair: EVFILT_READ for Read and
// EVFILT_WRITE for Write. Error interest needs no filter of its own;
// errors come back as EV_ERROR or EV_EOF flags on the filters that are
// registered.
type kqueuePoller struct {
	kq int

	// buf receives kevent results; prepare sizes it to twice the
	// interest set, one slot per possible filter.
	buf []unix.Kevent_t
}

func newKqueuePoller() *kqueuePoller {
	return &kqueuePoller{kq: -1}
}

func (p *kqueuePoller) start() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return lastNetworkFailure(err).
			WithContext("failed to initialize kqueue")
	}
	p.kq = kq
	return nil
}

func (p *kqueuePoller) stop() {
	if p.kq >= 0 {
		unix.Close(p.kq)
		p.kq = -1
	}
}

// apply reconciles the kernel's filters for sock with ops. Filters the
// socket should not carry are deleted; missing ones are added. ENOENT
// from a delete means the filter was never there, which is fine.
func (p *kqueuePoller) apply(sock Socket, ops SocketOperation) error {
	filters := []struct {
		filter int16
		want   bool
	}{
		{unix.EVFILT_READ, ops&OpRead != 0},
		{unix.EVFILT_WRITE, ops&OpWrite != 0},
	}

	for _, f := range filters {
		ev := unix.Kevent_t{
			Ident:  uint64(sock),
			Filter: f.filter,
		}
		if f.want {
			ev.Flags = unix.EV_ADD
		} else {
			ev.Flags = unix.EV_DELETE
		}

		_, err := unix.Kevent(p.kq, []unix.Kevent_t{ev}, nil, nil)
		if err != nil && !(err == unix.ENOENT && !f.want) {
			return lastNetworkFailure(err)
		}
	}
	return nil
}

func (p *kqueuePoller) add(sock Socket, ops SocketOperation) error {
	return p.apply(sock, ops)
}

func (p *kqueuePoller) modify(sock Socket, ops SocketOperation) error {
	return p.apply(sock, ops)
}

func (p *kqueuePoller) remove(sock Socket) error {
	return p.apply(sock, OpNone)
}

func (p *kqueuePoller) prepare(interest map[Socket]SocketOperation) {
	want := 2 * len(interest)
	if cap(p.buf) < want {
		p.buf = make([]unix.Kevent_t, want)
	}
	p.buf = p.buf[:want]
}

func (p *kqueuePoller) wait(timeout time.Duration, out []SocketEvent) ([]SocketEvent, error) {
	if len(p.buf) == 0 {
		return out, fault.NewFailure(fault.E_NOT_INITIALIZED).
			WithContext("empty pollset")
	}

	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	var n int
	var err error
	for {
		n, err = unix.Kevent(p.kq, nil, p.buf, ts)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return out, lastNetworkFailure(err).
			WithContext("kevent failed")
	}

	for i := 0; i < n; i++ {
		ev := &p.buf[i]
		var ops SocketOperation

		switch ev.Filter {
		case unix.EVFILT_READ:
			ops = OpRead
		case unix.EVFILT_WRITE:
			ops = OpWrite
		}
		if ev.Flags&(unix.EV_ERROR|unix.EV_EOF) != 0 {
			ops |= OpError
		}
		if ops == OpNone {
			continue
		}

		// The read and write filters arrive as separate kevents; fold
		// them into a single event per socket.
		out = appendEvent(out, Socket(ev.Ident), ops)
	}
	return out, nil
}

const defaultBackend = BackendKqueue

func newPoller(backend Backend, network Network, pipe *SocketPair) (poller, error) {
	switch backend {
	case BackendKqueue:
		return newKqueuePoller(), nil
	case BackendSelect:
		return newSelectPoller(), nil
	}
	return nil, fault.NewFailure(fault.E_NET_UNSUPPORTED).
		WithContext("backend %v is not available on this platform", backend)
}
