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

	"github.com/jacobsa/netio/fault"
)

// SocketPairMode selects whether the pair's endpoints block.
type SocketPairMode uint8

const (
	SocketPairBlocking SocketPairMode = iota
	SocketPairNonBlocking
)

// SocketPair is a self-connected TCP loopback pair. Its only job is to
// let any thread asynchronously wake a thread blocked on the reader (or
// on a multiplexer watching the reader) by writing a byte to the writer.
//
// Both endpoints are valid after a successful Start and invalid after
// Stop; there is no state where only one is valid.
type SocketPair struct {
	network Network

	// reader and writer are both InvalidSocket, or both live. The
	// writer is always non-blocking; the reader follows the mode given
	// to Start.
	reader Socket
	writer Socket
}

// NewSocketPair creates an unstarted pair over the given network.
func NewSocketPair(network Network) *SocketPair {
	return &SocketPair{
		network: network,
		reader:  InvalidSocket,
		writer:  InvalidSocket,
	}
}

// CreateSocketPair creates and starts a pair.
func CreateSocketPair(network Network, mode SocketPairMode) (*SocketPair, error) {
	p := NewSocketPair(network)
	if err := p.Start(mode); err != nil {
		return nil, err
	}
	return p, nil
}

// Reader returns the reading endpoint.
func (p *SocketPair) Reader() Socket {
	return p.reader
}

// Writer returns the writing endpoint.
func (p *SocketPair) Writer() Socket {
	return p.writer
}

// Start connects the pair by the loopback self-rendezvous: listen on an
// ephemeral loopback port, connect to it, accept, and close the
// listener. Starting an already-started pair succeeds without side
// effects.
func (p *SocketPair) Start(mode SocketPairMode) error {
	if p.reader != InvalidSocket {
		return nil
	}

	listener, err := p.network.CreateSocket(TCPv4)
	if err != nil {
		return asFailure(err).
			WithContext("failed to initialize notify listener")
	}
	defer p.network.Close(listener)

	addr := NewSocketAddress(InaddrLoopback, 0)
	if err := p.network.Bind(listener, addr); err != nil {
		return asFailure(err).
			WithContext("failed to bind notification listener %d to %v", listener, addr)
	}
	if err := p.network.Listen(listener, 1); err != nil {
		return asFailure(err).
			WithContext("failed to listen on notification listener %d", listener)
	}

	remote, err := p.network.GetSockName(listener)
	if err != nil {
		return asFailure(err).
			WithContext("failed to determine listening socket name %d", listener)
	}

	writer, err := p.network.CreateSocket(TCPv4)
	if err != nil {
		return asFailure(err).
			WithContext("failed to initialize notify writer")
	}
	if err := p.network.Connect(writer, remote); err != nil {
		p.network.Close(writer)
		return asFailure(err).
			WithContext("failed to connect notify writer %d", writer)
	}

	accepted, err := p.network.Accept(listener)
	if err != nil {
		p.network.Close(writer)
		return asFailure(err).
			WithContext("failed to connect read end of the notify pair %d", listener)
	}

	// The writer must never block a Notify caller; the reader follows
	// the requested mode.
	if err := p.network.SetBlocking(writer, false); err != nil {
		p.network.Close(writer)
		p.network.Close(accepted.Sock)
		return asFailure(err).
			WithContext("failed to set non-blocking on notification writer %d", writer)
	}
	blocking := mode == SocketPairBlocking
	if err := p.network.SetBlocking(accepted.Sock, blocking); err != nil {
		p.network.Close(writer)
		p.network.Close(accepted.Sock)
		return asFailure(err).
			WithContext("failed to set blocking mode on notification reader %d", accepted.Sock)
	}

	p.reader = accepted.Sock
	p.writer = writer
	return nil
}

// Drain performs non-blocking reads on the reader until the kernel
// reports WouldBlock. This is the only valid way to clear the pipe.
func (p *SocketPair) Drain() error {
	if p.reader == InvalidSocket {
		return fault.NewFailure(fault.E_NOT_INITIALIZED)
	}

	var buf [16]byte
	for {
		count, err := p.network.Recv(p.reader, buf[:], MsgDontWait)
		if err != nil {
			if errors.Is(err, fault.E_NET_WOULD_BLOCK) {
				return nil
			}
			return asFailure(err).
				WithContext("failed to drain notification socket %d", p.reader)
		}
		if count == 0 {
			return nil
		}
	}
}

// Stop closes both endpoints. The returned channel carries the terminal
// status once both are closed; it is already resolved by the time Stop
// returns. Stopping a stopped pair is safe.
func (p *SocketPair) Stop() <-chan fault.Result[fault.Unit] {
	done := make(chan fault.Result[fault.Unit], 1)

	if p.reader != InvalidSocket {
		p.network.Close(p.reader)
		p.reader = InvalidSocket
	}
	if p.writer != InvalidSocket {
		p.network.Close(p.writer)
		p.writer = InvalidSocket
	}

	done <- fault.Ok(fault.Unit{})
	return done
}

// asFailure recovers the *fault.Failure from an error produced by this
// module.
func asFailure(err error) *fault.Failure {
	var f *fault.Failure
	if errors.As(err, &f) {
		return f
	}
	return fault.Newf("%v", err)
}
