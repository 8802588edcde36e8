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

// Package netio is a portable socket layer built directly on raw kernel
// handles: a blocking Network facade over the platform socket calls,
// address value types for four address families, a self-connected
// loopback SocketPair for cross-thread wakeups, and a SocketService
// readiness multiplexer that selects the best kernel primitive per
// platform (epoll on Linux, kqueue on Darwin, IOCP on Windows, select
// as a POSIX fallback).
//
// The usual shape of a consumer is a single-threaded reactor:
//
//	network := netio.New()
//	service, _ := netio.CreateSocketService(netio.ServiceConfig{Network: network})
//	service.Add(sock, netio.OpRead|netio.OpError)
//	for {
//		events, err := service.Execute(time.Second)
//		...
//	}
//
// Other threads may call Add, Remove, Close and Notify concurrently;
// Notify interrupts a blocked Execute through an internal wake pipe.
//
// Every fallible operation returns an error backed by fault.Failure,
// which pairs the raw platform code with a classified kind, so callers
// dispatch with errors.Is against values like fault.E_NET_WOULD_BLOCK
// without caring which kernel produced the code.
//
// See the samples directory for a complete echo server, and the
// httpclient package for a request/response engine driving the service.
package netio
