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
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jacobsa/syncutil"

	"github.com/jacobsa/netio/fault"
)

// Backend names the kernel primitive driving SocketService.Execute.
type Backend uint8

const (
	// BackendDefault selects the platform's preferred primitive: epoll
	// on Linux, kqueue on Darwin, IOCP on Windows.
	BackendDefault Backend = iota
	BackendSelect
	BackendEpoll
	BackendKqueue
	BackendIocp
)

func (b Backend) String() string {
	switch b {
	case BackendSelect:
		return "select"
	case BackendEpoll:
		return "epoll"
	case BackendKqueue:
		return "kqueue"
	case BackendIocp:
		return "iocp"
	}
	return "default"
}

// ServiceConfig configures a SocketService.
type ServiceConfig struct {
	// Backend selects the kernel primitive. The zero value picks the
	// platform default. Asking for a primitive the platform does not
	// have fails Start.
	Backend Backend

	// Network supplies the socket facade. Nil means New().
	Network Network

	// DebugLogger, if non-nil, receives a line per state transition.
	DebugLogger *log.Logger
}

// poller is the narrow surface a backend exposes to the service. The
// service owns the interest set, the wake pair, and all the flags; the
// backend owns only its kernel primitive.
//
// add/modify/remove are called under the service mutex. prepare is
// called under the mutex immediately before a wait, with a snapshot of
// the interest set; wait runs with the mutex released.
type poller interface {
	start() error
	stop()

	add(sock Socket, ops SocketOperation) error
	modify(sock Socket, ops SocketOperation) error
	remove(sock Socket) error

	prepare(interest map[Socket]SocketOperation)
	wait(timeout time.Duration, out []SocketEvent) ([]SocketEvent, error)
}

// SocketService is a readiness multiplexer: callers register interest in
// Read/Write/Error readiness per socket, then Execute blocks until some
// of it materialises or the timeout lapses. Notify wakes a blocked
// Execute from any thread through an internal loopback SocketPair.
//
// At most one Execute may run at a time. Add, Remove, Close and Notify
// may be called concurrently from any thread.
type SocketService struct {
	network     Network
	backend     Backend
	debugLogger *log.Logger
	pipe        *SocketPair
	poller      poller

	// mu guards every field below, plus the interest-set invariants:
	// no entry maps to OpNone, and while the service is running the
	// wake reader is present with Read|Error interest.
	mu syncutil.InvariantMutex

	// interest maps each watched socket to its requested readiness.
	//
	// GUARDED_BY(mu)
	interest map[Socket]SocketOperation

	// results is the buffer backing the slice returned by Execute. It
	// is valid only until the next Execute or Stop.
	//
	// GUARDED_BY(mu)
	results []SocketEvent

	// Lifecycle flags.
	//
	// GUARDED_BY(mu)
	started  bool
	polling  bool
	shutdown bool
	notified bool

	// pollingDone is signalled when polling drops to false, so Stop can
	// wait out a concurrent Execute.
	pollingDone sync.Cond
}

// appendEvent merges ops into an existing event for sock, or appends a
// new one.
func appendEvent(events []SocketEvent, sock Socket, ops SocketOperation) []SocketEvent {
	for i := range events {
		if events[i].Sock == sock {
			events[i].Events |= ops
			return events
		}
	}
	return append(events, SocketEvent{Sock: sock, Events: ops})
}

// NewSocketService creates an unstarted service.
func NewSocketService(config ServiceConfig) *SocketService {
	network := config.Network
	if network == nil {
		network = New()
	}

	backend := config.Backend
	if backend == BackendDefault {
		backend = defaultBackend
	}

	s := &SocketService{
		network:     network,
		backend:     backend,
		debugLogger: config.DebugLogger,
		interest:    make(map[Socket]SocketOperation),
	}
	s.pipe = NewSocketPair(network)
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	s.pollingDone.L = &s.mu
	return s
}

// CreateSocketService creates and starts a service.
func CreateSocketService(config ServiceConfig) (*SocketService, error) {
	s := NewSocketService(config)
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// Backend returns the primitive the service was built on.
func (s *SocketService) Backend() Backend {
	return s.backend
}

func (s *SocketService) checkInvariants() {
	for sock, ops := range s.interest {
		if ops == OpNone {
			panic(fmt.Sprintf("socket %d present with no interest", sock))
		}
	}
	if s.started && !s.shutdown {
		if ops := s.interest[s.pipe.Reader()]; ops&OpRead == 0 {
			panic("wake reader missing from interest set")
		}
	}
}

func (s *SocketService) debugLog(format string, args ...interface{}) {
	if s.debugLogger != nil {
		s.debugLogger.Printf(format, args...)
	}
}

// Start brings up the wake pair and the kernel primitive. A service
// that has been started or stopped cannot be started again.
//
// LOCKS_EXCLUDED(s.mu)
func (s *SocketService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.shutdown {
		return fault.NewFailure(fault.E_FAILURE).
			WithContext("service already started or stopped")
	}

	if err := s.pipe.Start(SocketPairNonBlocking); err != nil {
		return asFailure(err).
			WithContext("failed to start the wake pair")
	}

	p, err := newPoller(s.backend, s.network, s.pipe)
	if err != nil {
		s.pipe.Stop()
		return err
	}
	if err := p.start(); err != nil {
		s.pipe.Stop()
		return asFailure(err).
			WithContext("failed to initialize the %v backend", s.backend)
	}

	s.poller = p
	s.started = true

	// The wake reader is watched for the service's whole life; a
	// readable wake is what turns Notify into an early return from
	// Execute.
	wake := s.pipe.Reader()
	if err := s.poller.add(wake, OpAccept); err != nil {
		s.poller.stop()
		s.pipe.Stop()
		s.started = false
		return asFailure(err).
			WithContext("failed to add the wake socket to the %v backend", s.backend)
	}
	s.interest[wake] = OpAccept

	s.debugLog("service started (backend=%v, wake=%d)", s.backend, wake)
	return nil
}

// Add unions ops into the interest set for sock. The first Add creates
// the entry; later Adds are additive. Adding ops the socket already has
// is a no-op.
//
// LOCKS_EXCLUDED(s.mu)
func (s *SocketService) Add(sock Socket, ops SocketOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return fault.NewFailure(fault.E_FAILURE).
			WithContext("service is stopped")
	}
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}
	if !s.started {
		return fault.NewFailure(fault.E_NOT_INITIALIZED).
			WithContext("pollset not yet initialized")
	}
	if ops == OpNone {
		return nil
	}

	if existing, ok := s.interest[sock]; ok {
		merged := existing | ops
		if merged == existing {
			return nil
		}
		if err := s.poller.modify(sock, merged); err != nil {
			return asFailure(err).
				WithContext("failed to modify socket %d on %v (events=%v)",
					sock, s.backend, merged)
		}
		s.interest[sock] = merged
	} else {
		if err := s.poller.add(sock, ops); err != nil {
			return asFailure(err).
				WithContext("failed to add %v to socket %d on %v",
					ops, sock, s.backend)
		}
		s.interest[sock] = ops
	}

	s.notifyLocked()
	return nil
}

// Remove subtracts ops from the interest set for sock. A socket whose
// residual interest is empty is dropped; subtracting Error drops the
// socket outright, since error-only interest is useless. Removing from
// a socket that is not present is a no-op.
//
// LOCKS_EXCLUDED(s.mu)
func (s *SocketService) Remove(sock Socket, ops SocketOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return fault.NewFailure(fault.E_FAILURE).
			WithContext("service is stopped")
	}
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}
	if !s.started {
		return fault.NewFailure(fault.E_NOT_INITIALIZED).
			WithContext("pollset not yet initialized")
	}
	if ops == OpNone {
		return nil
	}

	existing, ok := s.interest[sock]
	if !ok {
		return nil
	}

	residual := existing &^ ops
	if ops&OpError != 0 {
		residual = OpNone
	}
	if residual == existing {
		return nil
	}

	if residual == OpNone {
		if err := s.poller.remove(sock); err != nil {
			return asFailure(err).
				WithContext("failed to remove socket %d from %v", sock, s.backend)
		}
		delete(s.interest, sock)
	} else {
		if err := s.poller.modify(sock, residual); err != nil {
			return asFailure(err).
				WithContext("failed to modify socket %d in %v", sock, s.backend)
		}
		s.interest[sock] = residual
	}

	s.notifyLocked()
	return nil
}

// Close drops sock from the interest set unconditionally. It does not
// close the kernel socket; the caller owns that.
//
// LOCKS_EXCLUDED(s.mu)
func (s *SocketService) Close(sock Socket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return fault.NewFailure(fault.E_FAILURE).
			WithContext("service is stopped")
	}
	if sock == InvalidSocket {
		return fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("invalid socket")
	}
	if !s.started {
		return fault.NewFailure(fault.E_NOT_INITIALIZED).
			WithContext("pollset not yet initialized")
	}

	if _, ok := s.interest[sock]; !ok {
		return nil
	}

	if err := s.poller.remove(sock); err != nil {
		return asFailure(err).
			WithContext("failed to remove socket %d from %v", sock, s.backend)
	}
	delete(s.interest, sock)

	s.notifyLocked()
	return nil
}

// Execute blocks up to timeout and returns the sockets that became
// ready. A zero timeout polls and returns; a negative timeout blocks
// indefinitely. The returned slice is valid only until the next Execute
// or Stop.
//
// Only one Execute may be in flight; the service detects violations and
// panics rather than corrupting its state.
//
// LOCKS_EXCLUDED(s.mu)
func (s *SocketService) Execute(timeout time.Duration) ([]SocketEvent, error) {
	s.mu.Lock()

	if s.shutdown {
		s.mu.Unlock()
		return nil, fault.NewFailure(fault.E_CANCELLED)
	}
	if s.polling {
		panic("SocketService.Execute called concurrently")
	}
	if !s.started {
		s.mu.Unlock()
		return nil, fault.NewFailure(fault.E_NOT_INITIALIZED).
			WithContext("pollset not yet initialized")
	}

	// A Notify that landed while nothing was polling is a request for
	// the next Execute to return immediately.
	if s.notified {
		s.notified = false
		s.results = s.results[:0]
		s.mu.Unlock()
		return s.results, nil
	}

	// Snapshot what the backend needs under the lock, then release it
	// around the syscall. Mutators still update the backend set, then
	// observe polling=true and wake us through the pipe so the next wait
	// sees the new set.
	s.poller.prepare(s.interest)
	s.polling = true
	s.mu.Unlock()

	events, waitErr := s.poller.wait(timeout, s.results[:0])

	s.mu.Lock()
	defer s.mu.Unlock()

	s.polling = false
	s.notified = false
	s.pollingDone.Broadcast()

	if s.shutdown {
		return nil, nil
	}
	if waitErr != nil {
		return nil, asFailure(waitErr).
			WithContext("failed to execute %v wait", s.backend)
	}

	// The wake socket never reaches the caller: drain it and drop its
	// events before reporting anything else.
	wake := s.pipe.Reader()
	n := 0
	drained := false
	for _, ev := range events {
		if ev.Sock == wake {
			if !drained {
				if err := s.pipe.Drain(); err != nil {
					return nil, asFailure(err).
						WithContext("failed to drain notification socket %d", wake)
				}
				drained = true
			}
			continue
		}
		events[n] = ev
		n++
	}

	s.results = events[:n]
	return s.results, nil
}

// Notify wakes a concurrent Execute early. It is safe from any thread,
// before, during, or after Execute. Multiple notifies while polling
// collapse into a single wake.
//
// LOCKS_EXCLUDED(s.mu)
func (s *SocketService) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked()
}

// GUARDED_BY(s.mu)
func (s *SocketService) notifyLocked() {
	if s.shutdown || !s.started {
		return
	}

	if !s.polling {
		s.notified = true
		return
	}

	// One byte is enough; Execute drains whatever accumulates.
	wake := [1]byte{0}
	if _, err := s.network.Send(s.pipe.Writer(), wake[:], MsgNone); err != nil {
		s.debugLog("notify write failed: %v", err)
	}
}

// Stop shuts the service down: an Execute blocked in its wait returns
// an empty result and a nil error, every later Execute returns
// Cancelled, the interest set is cleared, and the wake pair and kernel
// primitive are released. Stop is idempotent.
//
// LOCKS_EXCLUDED(s.mu)
func (s *SocketService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return
	}

	s.shutdown = true

	// notifyLocked refuses to touch a stopped service, so wake any
	// in-flight Execute directly.
	if s.polling {
		wake := [1]byte{0}
		if _, err := s.network.Send(s.pipe.Writer(), wake[:], MsgNone); err != nil {
			s.debugLog("shutdown wake failed: %v", err)
		}
	}

	for s.polling {
		s.pollingDone.Wait()
	}

	s.pipe.Stop()
	if s.poller != nil {
		s.poller.stop()
	}

	s.interest = make(map[Socket]SocketOperation)
	s.results = nil
	s.debugLog("service stopped")
}
