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
	"time"

	. "github.com/jacobsa/ogletest"

	"github.com/jacobsa/netio"
	"github.com/jacobsa/netio/fault"
)

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type SocketPairTest struct {
	network netio.Network
}

func init() { RegisterTestSuite(&SocketPairTest{}) }

func (t *SocketPairTest) SetUp(ti *TestInfo) {
	t.network = netio.New()
	AssertEq(nil, t.network.Start())
}

func (t *SocketPairTest) TearDown() {
	t.network.Stop()
}

////////////////////////////////////////////////////////////////////////
// Test functions
////////////////////////////////////////////////////////////////////////

func (t *SocketPairTest) StartYieldsTwoValidEndpoints() {
	pair, err := netio.CreateSocketPair(t.network, netio.SocketPairNonBlocking)
	AssertEq(nil, err)
	defer pair.Stop()

	ExpectNe(netio.InvalidSocket, pair.Reader())
	ExpectNe(netio.InvalidSocket, pair.Writer())
	ExpectNe(pair.Reader(), pair.Writer())
}

func (t *SocketPairTest) StartIsIdempotent() {
	pair, err := netio.CreateSocketPair(t.network, netio.SocketPairNonBlocking)
	AssertEq(nil, err)
	defer pair.Stop()

	reader := pair.Reader()
	writer := pair.Writer()

	AssertEq(nil, pair.Start(netio.SocketPairNonBlocking))
	ExpectEq(reader, pair.Reader())
	ExpectEq(writer, pair.Writer())
}

// Scenario: a blocked reader is woken by a write from another thread.
func (t *SocketPairTest) WriterWakesABlockedReader() {
	pair, err := netio.CreateSocketPair(t.network, netio.SocketPairBlocking)
	AssertEq(nil, err)
	defer pair.Stop()

	type recvResult struct {
		n   int
		err error
	}
	done := make(chan recvResult, 1)

	go func() {
		var buf [1]byte
		n, err := t.network.Recv(pair.Reader(), buf[:], netio.MsgNone)
		done <- recvResult{n, err}
	}()

	// Give the reader a moment to block, then wake it.
	time.Sleep(10 * time.Millisecond)
	_, err = t.network.Send(pair.Writer(), []byte{'w'}, netio.MsgNone)
	AssertEq(nil, err)

	select {
	case result := <-done:
		AssertEq(nil, result.err)
		ExpectEq(1, result.n)
	case <-time.After(5 * time.Second):
		AddFailure("reader did not unblock")
	}
}

func (t *SocketPairTest) DrainClearsEverythingWritten() {
	pair, err := netio.CreateSocketPair(t.network, netio.SocketPairNonBlocking)
	AssertEq(nil, err)
	defer pair.Stop()

	for i := 0; i < 40; i++ {
		_, err := t.network.Send(pair.Writer(), []byte{byte(i)}, netio.MsgNone)
		AssertEq(nil, err)
	}

	AssertEq(nil, pair.Drain())

	// Nothing is left: the next read would block.
	var buf [4]byte
	_, err = t.network.Recv(pair.Reader(), buf[:], netio.MsgNone)
	AssertNe(nil, err)
	ExpectTrue(errors.Is(err, fault.E_NET_WOULD_BLOCK))

	// Draining an empty pipe succeeds too.
	ExpectEq(nil, pair.Drain())
}

func (t *SocketPairTest) DrainOnAnUnstartedPairFails() {
	pair := netio.NewSocketPair(t.network)

	err := pair.Drain()
	AssertNe(nil, err)
	ExpectTrue(errors.Is(err, fault.E_NOT_INITIALIZED))
}

func (t *SocketPairTest) StopInvalidatesBothEndpoints() {
	pair, err := netio.CreateSocketPair(t.network, netio.SocketPairNonBlocking)
	AssertEq(nil, err)

	result := <-pair.Stop()
	ExpectTrue(result.Succeeded())

	ExpectEq(netio.InvalidSocket, pair.Reader())
	ExpectEq(netio.InvalidSocket, pair.Writer())

	// Stopping again is safe.
	result = <-pair.Stop()
	ExpectTrue(result.Succeeded())
}
