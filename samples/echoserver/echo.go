// Copyright 2024 Google Inc. All Rights Reserved.
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

// A single-threaded reactor echo server: one SocketService drives the
// listener and every connection, and all I/O is non-blocking.
package main

import (
	"errors"
	"flag"
	"log"
	"time"

	"github.com/jacobsa/netio"
	"github.com/jacobsa/netio/fault"
)

var fListen = flag.String("echo.listen", "127.0.0.1:7777", "Address to listen on.")
var fDebug = flag.Bool("echo.debug", false, "Enable debug logging.")

type echoServer struct {
	network  netio.Network
	service  *netio.SocketService
	listener netio.Socket
}

func (s *echoServer) accept() {
	for {
		accepted, err := s.network.Accept(s.listener)
		if err != nil {
			if !errors.Is(err, fault.E_NET_WOULD_BLOCK) {
				log.Printf("Accept: %v", err)
			}
			return
		}

		if err := s.network.SetBlocking(accepted.Sock, false); err != nil {
			log.Printf("SetBlocking: %v", err)
			s.network.Close(accepted.Sock)
			continue
		}
		if err := s.service.Add(accepted.Sock, netio.OpAccept); err != nil {
			log.Printf("Add: %v", err)
			s.network.Close(accepted.Sock)
			continue
		}

		log.Printf("Accepted connection from %v", accepted.Addr)
	}
}

func (s *echoServer) echo(sock netio.Socket) {
	var buf [4096]byte
	for {
		n, err := s.network.Recv(sock, buf[:], netio.MsgNone)
		if err != nil {
			if errors.Is(err, fault.E_NET_WOULD_BLOCK) {
				return
			}
			s.drop(sock)
			return
		}

		if _, err := s.network.Send(sock, buf[:n], netio.MsgNone); err != nil {
			s.drop(sock)
			return
		}
	}
}

func (s *echoServer) drop(sock netio.Socket) {
	s.service.Close(sock)
	s.network.Close(sock)
}

func main() {
	flag.Parse()

	addr, err := netio.ParseSocketAddress(*fListen)
	if err != nil {
		log.Fatalf("ParseSocketAddress: %v", err)
	}

	network := netio.New()
	if err := network.Start(); err != nil {
		log.Fatalf("Network.Start: %v", err)
	}
	defer network.Stop()

	config := netio.ServiceConfig{Network: network}
	if *fDebug {
		config.DebugLogger = log.Default()
	}
	service, err := netio.CreateSocketService(config)
	if err != nil {
		log.Fatalf("CreateSocketService: %v", err)
	}
	defer service.Stop()

	listener, err := network.CreateSocket(netio.TCPv4)
	if err != nil {
		log.Fatalf("CreateSocket: %v", err)
	}
	defer network.Close(listener)

	if err := network.SetOptionBool(listener, netio.OptReuseAddress, true); err != nil {
		log.Fatalf("SetOptionBool: %v", err)
	}
	if err := network.Bind(listener, addr); err != nil {
		log.Fatalf("Bind: %v", err)
	}
	if err := network.Listen(listener, 16); err != nil {
		log.Fatalf("Listen: %v", err)
	}
	if err := network.SetBlocking(listener, false); err != nil {
		log.Fatalf("SetBlocking: %v", err)
	}

	server := &echoServer{
		network:  network,
		service:  service,
		listener: listener,
	}
	if err := service.Add(listener, netio.OpAccept); err != nil {
		log.Fatalf("Add: %v", err)
	}

	bound, err := network.GetSockName(listener)
	if err != nil {
		log.Fatalf("GetSockName: %v", err)
	}
	log.Printf("Echoing on %v", bound)

	for {
		events, err := service.Execute(30 * time.Second)
		if err != nil {
			log.Fatalf("Execute: %v", err)
		}

		for _, ev := range events {
			switch {
			case ev.Sock == listener:
				server.accept()
			case ev.Events&netio.OpError != 0:
				server.drop(ev.Sock)
			case ev.Events&netio.OpRead != 0:
				server.echo(ev.Sock)
			}
		}
	}
}
