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

	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"

	"github.com/jacobsa/netio"
	"github.com/jacobsa/netio/fault"
)

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// loopbackPair is a connected TCP pair plus its listener-side accepted
// socket, built the way scenario tests want it: bind to an ephemeral
// loopback port, connect, accept.
type loopbackPair struct {
	network netio.Network

	client   netio.Socket
	accepted netio.Socket
}

func makeLoopbackPair(network netio.Network) (*loopbackPair, error) {
	listener, err := network.CreateSocket(netio.TCPv4)
	if err != nil {
		return nil, err
	}
	defer network.Close(listener)

	if err := network.Bind(
		listener, netio.NewSocketAddress(netio.InaddrLoopback, 0)); err != nil {
		return nil, err
	}
	if err := network.Listen(listener, 1); err != nil {
		return nil, err
	}

	bound, err := network.GetSockName(listener)
	if err != nil {
		return nil, err
	}

	client, err := network.CreateSocket(netio.TCPv4)
	if err != nil {
		return nil, err
	}
	if err := network.Connect(client, bound); err != nil {
		network.Close(client)
		return nil, err
	}

	accepted, err := network.Accept(listener)
	if err != nil {
		network.Close(client)
		return nil, err
	}

	return &loopbackPair{
		network:  network,
		client:   client,
		accepted: accepted.Sock,
	}, nil
}

func (p *loopbackPair) Close() {
	if p.client != netio.InvalidSocket {
		p.network.Close(p.client)
	}
	if p.accepted != netio.InvalidSocket {
		p.network.Close(p.accepted)
	}
}

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type NetworkTest struct {
	network netio.Network
}

func init() { RegisterTestSuite(&NetworkTest{}) }

func (t *NetworkTest) SetUp(ti *TestInfo) {
	t.network = netio.New()
	AssertEq(nil, t.network.Start())
}

func (t *NetworkTest) TearDown() {
	t.network.Stop()
}

////////////////////////////////////////////////////////////////////////
// Test functions
////////////////////////////////////////////////////////////////////////

// Scenario: loopback echo through the blocking facade.
func (t *NetworkTest) LoopbackEcho() {
	pair, err := makeLoopbackPair(t.network)
	AssertEq(nil, err)
	defer pair.Close()

	n, err := t.network.Send(pair.client, []byte("ping"), netio.MsgNone)
	AssertEq(nil, err)
	AssertEq(4, n)

	var buf [16]byte
	n, err = t.network.Recv(pair.accepted, buf[:], netio.MsgNone)
	AssertEq(nil, err)
	AssertEq(4, n)
	ExpectEq("ping", string(buf[:n]))
}

func (t *NetworkTest) GetSockNameReportsTheBoundPort() {
	sock, err := t.network.CreateSocket(netio.TCPv4)
	AssertEq(nil, err)
	defer t.network.Close(sock)

	AssertEq(nil, t.network.Bind(
		sock, netio.NewSocketAddress(netio.InaddrLoopback, 0)))

	bound, err := t.network.GetSockName(sock)
	AssertEq(nil, err)
	ExpectEq(netio.FamilyInet4, bound.Family())
	ExpectEq(netio.InaddrLoopback, bound.Inet().Addr)
	ExpectNe(uint16(0), bound.Inet().Port)
}

func (t *NetworkTest) GetPeerNameSeesTheOtherEnd() {
	pair, err := makeLoopbackPair(t.network)
	AssertEq(nil, err)
	defer pair.Close()

	local, err := t.network.GetSockName(pair.client)
	AssertEq(nil, err)
	peer, err := t.network.GetPeerName(pair.accepted)
	AssertEq(nil, err)

	ExpectEq(local.Inet().Port, peer.Inet().Port)
}

// A zero-byte read on a closed stream is Disconnected, never
// success-with-zero.
func (t *NetworkTest) StreamRecvZeroIsDisconnected() {
	pair, err := makeLoopbackPair(t.network)
	AssertEq(nil, err)
	defer pair.Close()

	AssertEq(nil, t.network.Close(pair.client))
	pair.client = netio.InvalidSocket

	var buf [8]byte
	_, err = t.network.Recv(pair.accepted, buf[:], netio.MsgNone)
	AssertNe(nil, err)
	ExpectTrue(errors.Is(err, fault.E_NET_DISCONNECTED))
}

// A zero-byte datagram is a valid empty datagram.
func (t *NetworkTest) DatagramRecvZeroIsSuccess() {
	receiver, err := t.network.CreateSocket(netio.UDPv4)
	AssertEq(nil, err)
	defer t.network.Close(receiver)

	AssertEq(nil, t.network.Bind(
		receiver, netio.NewSocketAddress(netio.InaddrLoopback, 0)))
	bound, err := t.network.GetSockName(receiver)
	AssertEq(nil, err)

	sender, err := t.network.CreateSocket(netio.UDPv4)
	AssertEq(nil, err)
	defer t.network.Close(sender)

	_, err = t.network.SendTo(sender, nil, netio.MsgNone, bound)
	AssertEq(nil, err)

	var buf [8]byte
	n, from, err := t.network.RecvFrom(receiver, buf[:], netio.MsgNone)
	AssertEq(nil, err)
	ExpectEq(0, n)
	ExpectEq(netio.FamilyInet4, from.Family())
}

func (t *NetworkTest) DatagramRoundTripCarriesThePeer() {
	receiver, err := t.network.CreateSocket(netio.UDPv4)
	AssertEq(nil, err)
	defer t.network.Close(receiver)

	AssertEq(nil, t.network.Bind(
		receiver, netio.NewSocketAddress(netio.InaddrLoopback, 0)))
	bound, err := t.network.GetSockName(receiver)
	AssertEq(nil, err)

	sender, err := t.network.CreateSocket(netio.UDPv4)
	AssertEq(nil, err)
	defer t.network.Close(sender)

	_, err = t.network.SendTo(sender, []byte("hello"), netio.MsgNone, bound)
	AssertEq(nil, err)

	var buf [16]byte
	n, from, err := t.network.RecvFrom(receiver, buf[:], netio.MsgNone)
	AssertEq(nil, err)
	ExpectEq("hello", string(buf[:n]))

	senderName, err := t.network.GetSockName(sender)
	AssertEq(nil, err)
	ExpectEq(senderName.Inet().Port, from.Inet().Port)
}

func (t *NetworkTest) NonBlockingRecvWouldBlock() {
	pair, err := makeLoopbackPair(t.network)
	AssertEq(nil, err)
	defer pair.Close()

	AssertEq(nil, t.network.SetBlocking(pair.accepted, false))

	var buf [8]byte
	_, err = t.network.Recv(pair.accepted, buf[:], netio.MsgNone)
	AssertNe(nil, err)
	ExpectTrue(errors.Is(err, fault.E_NET_WOULD_BLOCK))
}

func (t *NetworkTest) NonBlockingAcceptWouldBlock() {
	listener, err := t.network.CreateSocket(netio.TCPv4)
	AssertEq(nil, err)
	defer t.network.Close(listener)

	AssertEq(nil, t.network.Bind(
		listener, netio.NewSocketAddress(netio.InaddrLoopback, 0)))
	AssertEq(nil, t.network.Listen(listener, 1))
	AssertEq(nil, t.network.SetBlocking(listener, false))

	_, err = t.network.Accept(listener)
	AssertNe(nil, err)
	ExpectTrue(errors.Is(err, fault.E_NET_WOULD_BLOCK))
}

func (t *NetworkTest) ConnectToClosedPortIsRefused() {
	// Bind a listener to learn a free port, then close it and connect
	// there.
	probe, err := t.network.CreateSocket(netio.TCPv4)
	AssertEq(nil, err)
	AssertEq(nil, t.network.Bind(
		probe, netio.NewSocketAddress(netio.InaddrLoopback, 0)))
	target, err := t.network.GetSockName(probe)
	AssertEq(nil, err)
	AssertEq(nil, t.network.Close(probe))

	sock, err := t.network.CreateSocket(netio.TCPv4)
	AssertEq(nil, err)
	defer t.network.Close(sock)

	err = t.network.Connect(sock, target)
	AssertNe(nil, err)
	ExpectTrue(errors.Is(err, fault.E_NET_CONN_REFUSED), "got %v", err)
}

func (t *NetworkTest) ShutdownWriteEndsThePeersStream() {
	pair, err := makeLoopbackPair(t.network)
	AssertEq(nil, err)
	defer pair.Close()

	AssertEq(nil, t.network.Shutdown(pair.client, netio.ShutdownWrite))

	var buf [8]byte
	_, err = t.network.Recv(pair.accepted, buf[:], netio.MsgNone)
	AssertNe(nil, err)
	ExpectTrue(errors.Is(err, fault.E_NET_DISCONNECTED))
}

func (t *NetworkTest) InvalidSocketIsRejectedEverywhere() {
	var buf [1]byte

	ExpectTrue(errors.Is(
		t.network.Close(netio.InvalidSocket), fault.E_INVALID_ARGUMENT))
	ExpectTrue(errors.Is(
		t.network.Listen(netio.InvalidSocket, 1), fault.E_INVALID_ARGUMENT))
	ExpectTrue(errors.Is(
		t.network.Shutdown(netio.InvalidSocket, netio.ShutdownBoth),
		fault.E_INVALID_ARGUMENT))

	_, err := t.network.Recv(netio.InvalidSocket, buf[:], netio.MsgNone)
	ExpectTrue(errors.Is(err, fault.E_INVALID_ARGUMENT))

	_, err = t.network.GetSockName(netio.InvalidSocket)
	ExpectTrue(errors.Is(err, fault.E_INVALID_ARGUMENT))
}

////////////////////////////////////////////////////////////////////////
// Socket options
////////////////////////////////////////////////////////////////////////

func (t *NetworkTest) BoolOptionsRoundTrip() {
	sock, err := t.network.CreateSocket(netio.TCPv4)
	AssertEq(nil, err)
	defer t.network.Close(sock)

	for _, opt := range []netio.SocketOpt{
		netio.OptReuseAddress,
		netio.OptKeepAlive,
		netio.OptNoDelay,
	} {
		AssertEq(nil, t.network.SetOptionBool(sock, opt, true), "option %v", opt)
		v, err := t.network.GetOptionBool(sock, opt)
		AssertEq(nil, err, "option %v", opt)
		ExpectTrue(v, "option %v", opt)
	}
}

func (t *NetworkTest) IntOptionsRoundTrip() {
	sock, err := t.network.CreateSocket(netio.TCPv4)
	AssertEq(nil, err)
	defer t.network.Close(sock)

	AssertEq(nil, t.network.SetOptionInt(sock, netio.OptRecvBuf, 1<<16))
	v, err := t.network.GetOptionInt(sock, netio.OptRecvBuf)
	AssertEq(nil, err)
	// Kernels round the buffer size; just require it grew into range.
	ExpectThat(v, GreaterOrEqual(1<<16))

	typ, err := t.network.GetOptionInt(sock, netio.OptType)
	AssertEq(nil, err)
	ExpectNe(0, typ)
}

func (t *NetworkTest) OptionTagsAreTypeChecked() {
	sock, err := t.network.CreateSocket(netio.TCPv4)
	AssertEq(nil, err)
	defer t.network.Close(sock)

	// An integer tag through the bool accessor is refused.
	_, err = t.network.GetOptionBool(sock, netio.OptRecvBuf)
	ExpectTrue(errors.Is(err, fault.E_NET_UNSUPPORTED))

	err = t.network.SetOptionInt(sock, netio.OptKeepAlive, 1)
	ExpectTrue(errors.Is(err, fault.E_NET_UNSUPPORTED))
}

func (t *NetworkTest) DivergentKeepAliveOptions() {
	sock, err := t.network.CreateSocket(netio.TCPv4)
	AssertEq(nil, err)
	defer t.network.Close(sock)

	idleErr := t.network.SetOptionDuration(
		sock, netio.OptTcpKeepIdle, 30*time.Second)
	aliveErr := t.network.SetOptionDuration(
		sock, netio.OptTcpKeepAlive, 30*time.Second)

	switch runtime.GOOS {
	case "linux", "windows":
		ExpectEq(nil, idleErr)
		ExpectTrue(errors.Is(aliveErr, fault.E_NET_UNSUPPORTED))
	case "darwin":
		ExpectTrue(errors.Is(idleErr, fault.E_NET_UNSUPPORTED))
		ExpectEq(nil, aliveErr)
	}
}

func (t *NetworkTest) TimeoutOptionsRoundTrip() {
	sock, err := t.network.CreateSocket(netio.TCPv4)
	AssertEq(nil, err)
	defer t.network.Close(sock)

	want := 1500 * time.Millisecond
	AssertEq(nil, t.network.SetOptionDuration(sock, netio.OptRecvTimeout, want))

	got, err := t.network.GetOptionDuration(sock, netio.OptRecvTimeout)
	AssertEq(nil, err)
	ExpectEq(want, got)
}
