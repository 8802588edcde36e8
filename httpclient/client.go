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

// Package httpclient is a small HTTP/1.1 request/response engine over
// the netio socket facade. It exists to show how the core is consumed:
// the connect path drives a SocketService reactor loop over a
// non-blocking socket, and the transfer path uses plain blocking I/O.
//
// It is not a general HTTP stack: no TLS, no caching, no transfer
// encodings beyond Content-Length and close-delimited bodies.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jacobsa/timeutil"
	"golang.org/x/net/http/httpguts"

	"github.com/jacobsa/netio"
	"github.com/jacobsa/netio/fault"
)

// Config configures a Client.
type Config struct {
	// Network supplies the socket facade. Nil means netio.New().
	Network netio.Network

	// UserAgent is sent with every request when non-empty.
	UserAgent string

	// ConnectTimeout bounds the reactor-driven connect. Zero means 30
	// seconds.
	ConnectTimeout time.Duration

	// Clock measures the connect deadline. Nil means the real clock.
	// Tests substitute a simulated one.
	Clock timeutil.Clock

	// DebugLogger, if non-nil, receives a line per request.
	DebugLogger *log.Logger
}

// Request is one HTTP request. URL must be of the form
// http://host[:port][/path].
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is a parsed HTTP response.
type Response struct {
	StatusCode int
	Reason     string
	Headers    map[string]string
	Body       []byte
}

// Client issues requests serially. It is not safe for concurrent use;
// callers that want parallelism create one Client per thread.
type Client struct {
	network netio.Network
	config  Config
	clock   timeutil.Clock
}

// New creates a client.
func New(config Config) *Client {
	network := config.Network
	if network == nil {
		network = netio.New()
	}
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock()
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	return &Client{
		network: network,
		config:  config,
		clock:   clock,
	}
}

type endpoint struct {
	host string
	port uint16
	path string
}

func parseURL(raw string) (endpoint, error) {
	const scheme = "http://"
	if !strings.HasPrefix(raw, scheme) {
		return endpoint{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("unsupported url %q", raw)
	}

	rest := raw[len(scheme):]
	ep := endpoint{port: 80, path: "/"}

	if i := strings.IndexByte(rest, '/'); i >= 0 {
		ep.path = rest[i:]
		rest = rest[:i]
	}

	portText := ""
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return endpoint{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("unterminated bracket in %q", raw)
		}
		ep.host = rest[1:end]
		if tail := rest[end+1:]; strings.HasPrefix(tail, ":") {
			portText = tail[1:]
		}
	} else {
		ep.host = rest
		if i := strings.LastIndexByte(rest, ':'); i >= 0 {
			ep.host = rest[:i]
			portText = rest[i+1:]
		}
	}

	if portText != "" {
		port, err := strconv.ParseUint(portText, 10, 16)
		if err != nil {
			return endpoint{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("invalid port in %q", raw)
		}
		ep.port = uint16(port)
	}

	if ep.host == "" {
		return endpoint{}, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("missing host in %q", raw)
	}
	return ep, nil
}

func (c *Client) debugLog(format string, args ...interface{}) {
	if c.config.DebugLogger != nil {
		c.config.DebugLogger.Printf(format, args...)
	}
}

// Do issues the request and reads the full response. The context bounds
// name resolution; the configured timeout bounds the connect.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.Method == "" || req.URL == "" {
		return nil, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("request needs a method and a url")
	}
	for name, value := range req.Headers {
		if !httpguts.ValidHeaderFieldName(name) ||
			!httpguts.ValidHeaderFieldValue(value) {
			return nil, fault.NewFailure(fault.E_INVALID_ARGUMENT).
				WithContext("invalid header %q", name)
		}
	}

	ep, err := parseURL(req.URL)
	if err != nil {
		return nil, err
	}

	infos, err := netio.Resolve(ctx, ep.host, ep.port, netio.TCP)
	if err != nil {
		return nil, err
	}

	sock, err := c.connect(infos[0])
	if err != nil {
		return nil, err
	}
	defer c.network.Close(sock)

	c.debugLog("%s %s -> %v", req.Method, req.URL, infos[0].Address)

	if err := c.writeRequest(sock, req, ep); err != nil {
		return nil, err
	}
	return c.readResponse(sock)
}

// connect establishes the connection reactor-style: the socket goes
// non-blocking, the connect is started, and a SocketService watches for
// writability. The socket returns to blocking mode for the transfer.
func (c *Client) connect(info netio.AddressInfo) (netio.Socket, error) {
	sock, err := c.network.CreateSocket(netio.TCP.WithFamily(info.Family))
	if err != nil {
		return netio.InvalidSocket, err
	}

	fail := func(err error) (netio.Socket, error) {
		c.network.Close(sock)
		return netio.InvalidSocket, err
	}

	if err := c.network.SetBlocking(sock, false); err != nil {
		return fail(err)
	}

	if err := c.network.Connect(sock, info.Address); err != nil {
		if !errors.Is(err, fault.E_NET_INPROGRESS) {
			return fail(err)
		}

		service, err := netio.CreateSocketService(netio.ServiceConfig{
			Network: c.network,
		})
		if err != nil {
			return fail(err)
		}
		defer service.Stop()

		if err := service.Add(sock, netio.OpWrite|netio.OpError); err != nil {
			return fail(err)
		}

		deadline := c.clock.Now().Add(c.config.ConnectTimeout)
		connected := false
		for !connected {
			remaining := deadline.Sub(c.clock.Now())
			if remaining <= 0 {
				return fail(fault.NewFailure(fault.E_NET_TIMEOUT).
					WithContext("connect to %v timed out", info.Address))
			}

			events, err := service.Execute(remaining)
			if err != nil {
				return fail(err)
			}
			for _, ev := range events {
				if ev.Sock != sock {
					continue
				}
				if code, err := c.network.GetOptionInt(
					sock, netio.OptSocketError); err != nil {
					return fail(err)
				} else if code != 0 {
					return fail(fault.E_NET_CONN_REFUSED.WithCode(code).
						WithContext("connect to %v failed", info.Address))
				}
				connected = true
			}
		}
	}

	if err := c.network.SetBlocking(sock, true); err != nil {
		return fail(err)
	}
	return sock, nil
}

func (c *Client) writeRequest(sock netio.Socket, req *Request, ep endpoint) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s HTTP/1.1\r\n", req.Method, ep.path)
	fmt.Fprintf(&sb, "Host: %s\r\n", ep.host)
	fmt.Fprintf(&sb, "Connection: close\r\n")
	if c.config.UserAgent != "" {
		fmt.Fprintf(&sb, "User-Agent: %s\r\n", c.config.UserAgent)
	}
	if len(req.Body) > 0 {
		fmt.Fprintf(&sb, "Content-Length: %d\r\n", len(req.Body))
	}

	// Deterministic header order keeps the wire form reproducible.
	names := make([]string, 0, len(req.Headers))
	for name := range req.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "%s: %s\r\n", name, req.Headers[name])
	}
	sb.WriteString("\r\n")

	payload := append([]byte(sb.String()), req.Body...)
	for len(payload) > 0 {
		n, err := c.network.Send(sock, payload, netio.MsgNone)
		if err != nil {
			return asModuleFailure(err).
				WithContext("failed to write request")
		}
		payload = payload[n:]
	}
	return nil
}

func (c *Client) readResponse(sock netio.Socket) (*Response, error) {
	var raw []byte
	buf := make([]byte, 16*1024)

	for {
		n, err := c.network.Recv(sock, buf, netio.MsgNone)
		if err != nil {
			if errors.Is(err, fault.E_NET_DISCONNECTED) {
				break
			}
			return nil, asModuleFailure(err).
				WithContext("failed to read response")
		}
		raw = append(raw, buf[:n]...)

		if resp, ok, err := parseResponse(raw); err != nil {
			return nil, err
		} else if ok {
			return resp, nil
		}
	}

	// Close-delimited body: the peer ended the stream, so whatever we
	// hold is the full response.
	resp, ok, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		resp, err = parseCloseDelimited(raw)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// parseResponse attempts a parse of a complete fixed-length response.
// ok is false while more data is needed.
func parseResponse(raw []byte) (*Response, bool, error) {
	head, body, found := splitHead(raw)
	if !found {
		return nil, false, nil
	}

	resp, err := parseHead(head)
	if err != nil {
		return nil, false, err
	}

	lengthText, ok := resp.Headers["content-length"]
	if !ok {
		return nil, false, nil
	}
	length, err2 := strconv.Atoi(lengthText)
	if err2 != nil || length < 0 {
		return nil, false, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("bad content-length %q", lengthText)
	}

	if len(body) < length {
		return nil, false, nil
	}
	resp.Body = body[:length]
	return resp, true, nil
}

func parseCloseDelimited(raw []byte) (*Response, error) {
	head, body, found := splitHead(raw)
	if !found {
		return nil, fault.NewFailure(fault.E_NET_DISCONNECTED).
			WithContext("connection closed before response head")
	}
	resp, err := parseHead(head)
	if err != nil {
		return nil, err
	}
	resp.Body = body
	return resp, nil
}

func splitHead(raw []byte) (head, body []byte, found bool) {
	i := strings.Index(string(raw), "\r\n\r\n")
	if i < 0 {
		return nil, nil, false
	}
	return raw[:i], raw[i+4:], true
}

func parseHead(head []byte) (*Response, error) {
	lines := strings.Split(string(head), "\r\n")
	if len(lines) == 0 {
		return nil, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("empty response head")
	}

	// Status line: HTTP/1.1 NNN Reason.
	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return nil, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("malformed status line %q", lines[0])
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fault.NewFailure(fault.E_INVALID_ARGUMENT).
			WithContext("malformed status code in %q", lines[0])
	}

	resp := &Response{
		StatusCode: status,
		Headers:    make(map[string]string),
	}
	if len(parts) == 3 {
		resp.Reason = parts[2]
	}

	for _, line := range lines[1:] {
		i := strings.IndexByte(line, ':')
		if i < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:i]))
		resp.Headers[name] = strings.TrimSpace(line[i+1:])
	}
	return resp, nil
}

func asModuleFailure(err error) *fault.Failure {
	var f *fault.Failure
	if errors.As(err, &f) {
		return f
	}
	return fault.Newf("%v", err)
}
