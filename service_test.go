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

package netio_test

import (
	"errors"
	"runtime"
	"time"

	"github.com/jacobsa/syncutil"
	. "github.com/jacobsa/ogletest"

	"github.com/jacobsa/netio"
	"github.com/jacobsa/netio/fault"
)

func init() { syncutil.EnableInvariantChecking() }

// The backends available on the platform under test. Every suite run
// covers each of them.
func availableBackends() []netio.Backend {
	switch runtime.GOOS {
	case "linux":
		return []netio.Backend{netio.BackendEpoll, netio.BackendSelect}
	case "darwin":
		return []netio.Backend{netio.BackendKqueue, netio.BackendSelect}
	case "windows":
		return []netio.Backend{netio.BackendIocp}
	}
	return []netio.Backend{netio.BackendDefault}
}

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type SocketServiceTest struct {
	network netio.Network
}

func init() { RegisterTestSuite(&SocketServiceTest{}) }

func (t *SocketServiceTest) SetUp(ti *TestInfo) {
	t.network = netio.New()
	AssertEq(nil, t.network.Start())
}

func (t *SocketServiceTest) TearDown() {
	t.network.Stop()
}

func (t *SocketServiceTest) startService(backend netio.Backend) *netio.SocketService {
	service, err := netio.CreateSocketService(netio.ServiceConfig{
		Backend: backend,
		Network: t.network,
	})
	AssertEq(nil, err, "backend %v", backend)
	return service
}

////////////////////////////////////////////////////////////////////////
// Test functions
////////////////////////////////////////////////////////////////////////

// Scenario: Notify from a second thread returns a blocked Execute early
// with no events.
func (t *SocketServiceTest) NotifyWakesABlockedExecute() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)

		type executeResult struct {
			events  []netio.SocketEvent
			err     error
			elapsed time.Duration
		}
		done := make(chan executeResult, 1)

		go func() {
			start := time.Now()
			events, err := service.Execute(10 * time.Second)
			done <- executeResult{events, err, time.Since(start)}
		}()

		time.Sleep(20 * time.Millisecond)
		service.Notify()

		select {
		case result := <-done:
			AssertEq(nil, result.err, "backend %v", backend)
			ExpectEq(0, len(result.events), "backend %v", backend)
			ExpectLt(result.elapsed, 5*time.Second, "backend %v", backend)
		case <-time.After(5 * time.Second):
			AddFailure("Execute did not return on %v", backend)
		}

		service.Stop()
	}
}

// A Notify that lands before Execute makes the next Execute return
// immediately with an empty slice.
func (t *SocketServiceTest) NotifyBeforeExecuteReturnsImmediately() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)

		service.Notify()

		start := time.Now()
		events, err := service.Execute(10 * time.Second)
		elapsed := time.Since(start)

		AssertEq(nil, err, "backend %v", backend)
		ExpectEq(0, len(events), "backend %v", backend)
		ExpectLt(elapsed, time.Second, "backend %v", backend)

		service.Stop()
	}
}

func (t *SocketServiceTest) ZeroTimeoutPollsAndReturns() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)

		start := time.Now()
		events, err := service.Execute(0)
		elapsed := time.Since(start)

		AssertEq(nil, err, "backend %v", backend)
		ExpectEq(0, len(events), "backend %v", backend)
		ExpectLt(elapsed, time.Second, "backend %v", backend)

		service.Stop()
	}
}

func (t *SocketServiceTest) ReportsAReadableSocket() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)

		pair, err := makeLoopbackPair(t.network)
		AssertEq(nil, err, "backend %v", backend)

		AssertEq(nil,
			service.Add(pair.accepted, netio.OpRead|netio.OpError),
			"backend %v", backend)

		_, err = t.network.Send(pair.client, []byte("x"), netio.MsgNone)
		AssertEq(nil, err)

		events, err := service.Execute(5 * time.Second)
		AssertEq(nil, err, "backend %v", backend)
		AssertEq(1, len(events), "backend %v", backend)
		ExpectEq(pair.accepted, events[0].Sock, "backend %v", backend)
		ExpectEq(netio.OpRead, events[0].Events&netio.OpRead, "backend %v", backend)

		service.Stop()
		pair.Close()
	}
}

func (t *SocketServiceTest) ReportsAWritableSocket() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)

		pair, err := makeLoopbackPair(t.network)
		AssertEq(nil, err, "backend %v", backend)

		// A fresh connected socket has send buffer to spare.
		AssertEq(nil, service.Add(pair.client, netio.OpWrite), "backend %v", backend)

		events, err := service.Execute(5 * time.Second)
		AssertEq(nil, err, "backend %v", backend)
		AssertEq(1, len(events), "backend %v", backend)
		ExpectEq(pair.client, events[0].Sock, "backend %v", backend)
		ExpectEq(netio.OpWrite, events[0].Events&netio.OpWrite, "backend %v", backend)

		service.Stop()
		pair.Close()
	}
}

// Removing a socket's last interest drops it; later readiness is not
// reported.
func (t *SocketServiceTest) RemoveDropsTheSocket() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)

		pair, err := makeLoopbackPair(t.network)
		AssertEq(nil, err, "backend %v", backend)

		AssertEq(nil, service.Add(pair.accepted, netio.OpRead))
		AssertEq(nil, service.Remove(pair.accepted, netio.OpRead))

		_, err = t.network.Send(pair.client, []byte("x"), netio.MsgNone)
		AssertEq(nil, err)

		events, err := service.Execute(0)
		AssertEq(nil, err, "backend %v", backend)
		ExpectEq(0, len(events), "backend %v", backend)

		service.Stop()
		pair.Close()
	}
}

// Subtracting Error interest forces the socket out entirely.
func (t *SocketServiceTest) RemovingErrorForcesADrop() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)

		pair, err := makeLoopbackPair(t.network)
		AssertEq(nil, err, "backend %v", backend)

		AssertEq(nil, service.Add(pair.accepted, netio.OpRead|netio.OpError))
		AssertEq(nil, service.Remove(pair.accepted, netio.OpError))

		_, err = t.network.Send(pair.client, []byte("x"), netio.MsgNone)
		AssertEq(nil, err)

		events, err := service.Execute(0)
		AssertEq(nil, err, "backend %v", backend)
		ExpectEq(0, len(events), "backend %v", backend)

		service.Stop()
		pair.Close()
	}
}

func (t *SocketServiceTest) CloseDropsTheSocketUnconditionally() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)

		pair, err := makeLoopbackPair(t.network)
		AssertEq(nil, err, "backend %v", backend)

		AssertEq(nil, service.Add(pair.accepted, netio.OpAll))
		AssertEq(nil, service.Close(pair.accepted))

		_, err = t.network.Send(pair.client, []byte("x"), netio.MsgNone)
		AssertEq(nil, err)

		events, err := service.Execute(0)
		AssertEq(nil, err, "backend %v", backend)
		ExpectEq(0, len(events), "backend %v", backend)

		// The kernel socket itself is still usable; only interest went
		// away.
		var buf [4]byte
		n, err := t.network.Recv(pair.accepted, buf[:], netio.MsgNone)
		AssertEq(nil, err)
		ExpectEq(1, n)

		service.Stop()
		pair.Close()
	}
}

func (t *SocketServiceTest) AddingASupersetIsAdditive() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)

		pair, err := makeLoopbackPair(t.network)
		AssertEq(nil, err, "backend %v", backend)

		AssertEq(nil, service.Add(pair.accepted, netio.OpRead))
		AssertEq(nil, service.Add(pair.accepted, netio.OpRead))
		AssertEq(nil, service.Add(pair.accepted, netio.OpRead|netio.OpError))

		_, err = t.network.Send(pair.client, []byte("x"), netio.MsgNone)
		AssertEq(nil, err)

		events, err := service.Execute(5 * time.Second)
		AssertEq(nil, err, "backend %v", backend)
		AssertEq(1, len(events), "backend %v", backend)

		service.Stop()
		pair.Close()
	}
}

func (t *SocketServiceTest) MutationsBeforeStartAreRejected() {
	service := netio.NewSocketService(netio.ServiceConfig{Network: t.network})

	err := service.Add(netio.Socket(3), netio.OpRead)
	ExpectTrue(errors.Is(err, fault.E_NOT_INITIALIZED), "got %v", err)

	err = service.Remove(netio.Socket(3), netio.OpRead)
	ExpectTrue(errors.Is(err, fault.E_NOT_INITIALIZED), "got %v", err)
}

func (t *SocketServiceTest) InvalidSocketIsRejected() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)

		err := service.Add(netio.InvalidSocket, netio.OpRead)
		ExpectTrue(errors.Is(err, fault.E_INVALID_ARGUMENT), "backend %v", backend)

		err = service.Remove(netio.InvalidSocket, netio.OpRead)
		ExpectTrue(errors.Is(err, fault.E_INVALID_ARGUMENT), "backend %v", backend)

		service.Stop()
	}
}

func (t *SocketServiceTest) ExecuteAfterStopIsCancelled() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)
		service.Stop()

		_, err := service.Execute(0)
		AssertNe(nil, err, "backend %v", backend)
		ExpectTrue(errors.Is(err, fault.E_CANCELLED), "backend %v", backend)

		// Mutations after Stop fail too.
		err = service.Add(netio.Socket(3), netio.OpRead)
		ExpectTrue(errors.Is(err, fault.E_FAILURE), "backend %v", backend)
	}
}

func (t *SocketServiceTest) StopIsIdempotent() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)

		service.Stop()
		service.Stop()

		_, err := service.Execute(0)
		ExpectTrue(errors.Is(err, fault.E_CANCELLED), "backend %v", backend)
	}
}

func (t *SocketServiceTest) StopWakesABlockedExecute() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)

		done := make(chan error, 1)
		go func() {
			_, err := service.Execute(10 * time.Second)
			done <- err
		}()

		time.Sleep(20 * time.Millisecond)
		service.Stop()

		select {
		case err := <-done:
			// Either an empty result (shutdown observed mid-wait) or
			// Cancelled is acceptable; the call must just return.
			if err != nil && !errors.Is(err, fault.E_CANCELLED) {
				AddFailure("unexpected Execute error on %v: %v", backend, err)
			}
		case <-time.After(5 * time.Second):
			AddFailure("Execute did not return after Stop on %v", backend)
		}
	}
}

// Interest changes made while Execute is blocked take effect through the
// wake pipe.
func (t *SocketServiceTest) AddWhilePollingIsObserved() {
	for _, backend := range availableBackends() {
		service := t.startService(backend)

		pair, err := makeLoopbackPair(t.network)
		AssertEq(nil, err, "backend %v", backend)

		// Data is already pending before the socket is watched.
		_, err = t.network.Send(pair.client, []byte("x"), netio.MsgNone)
		AssertEq(nil, err)

		type executeResult struct {
			events []netio.SocketEvent
			err    error
		}
		done := make(chan executeResult, 1)
		go func() {
			// The first Execute may return early from the Add's wake
			// with no events; keep waiting until the socket reports.
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				events, err := service.Execute(time.Until(deadline))
				if err != nil || len(events) > 0 {
					done <- executeResult{events, err}
					return
				}
			}
			done <- executeResult{nil, nil}
		}()

		time.Sleep(20 * time.Millisecond)
		AssertEq(nil, service.Add(pair.accepted, netio.OpRead))

		select {
		case result := <-done:
			AssertEq(nil, result.err, "backend %v", backend)
			AssertEq(1, len(result.events), "backend %v", backend)
			ExpectEq(pair.accepted, result.events[0].Sock, "backend %v", backend)
		case <-time.After(5 * time.Second):
			AddFailure("Execute never observed the added socket on %v", backend)
		}

		service.Stop()
		pair.Close()
	}
}
