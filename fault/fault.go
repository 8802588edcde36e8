// Copyright 2021 Google Inc. All Rights Reserved.
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

// Package fault defines the failure values used throughout the netio
// module. A Failure pairs a numeric platform error code with a classified
// kind and an optional context message; two failures are considered equal
// when their kinds match, regardless of the platform codes that produced
// them. This lets callers write platform-independent dispatch like
//
//	if errors.Is(err, fault.E_NET_WOULD_BLOCK) { ... }
//
// without caring whether the kernel said EWOULDBLOCK or WSAEWOULDBLOCK.
package fault

import (
	"fmt"
)

// Kind classifies a failure independent of the platform code that caused
// it. The set is closed; callers dispatch on kinds, never on raw codes.
type Kind int32

const (
	Success Kind = iota
	GenericFailure
	AccessDenied
	DiskFull
	Exists
	InvalidArgument
	NotFound
	InsufficientResources
	Interrupted
	ResourceNotAvailable
	NetInProgress
	NetAgain
	NetWouldBlock
	NetworkDown
	ConnAborted
	ConnRefused
	ConnReset
	Connected
	Disconnected
	Timeout
	Unsupported
	SizeExceeded
	Cancelled
	NotInitialized
	NotImplemented
)

// Sentinel platform codes for failures that did not originate in a
// syscall.
const (
	CodeInvalid int32 = -1 << 31
	CodeGeneric int32 = -1
	CodeSuccess int32 = 0
)

// Error is a static classification value. The canonical instances below
// are what operations hand to NewFailure and what callers compare
// against. Error implements the error interface so it can be used as a
// target for errors.Is.
type Error struct {
	// Code is the library-assigned stable code for this error, not a
	// platform errno.
	Code int32

	Kind Kind

	// Name is the short, greppable rendering, e.g. "E_NET_CONN_RESET".
	Name string
}

func (e Error) Error() string {
	return e.Name
}

// WithCode returns a new Failure classified as e and carrying the
// supplied platform code. Used by the errno mapping tables.
func (e Error) WithCode(platformCode int32) *Failure {
	return &Failure{platformCode: platformCode, err: e}
}

// The canonical classification values.
var (
	E_SUCCESS                = Error{CodeSuccess, Success, "E_SUCCESS"}
	E_FAILURE                = Error{CodeGeneric, GenericFailure, "E_FAILURE"}
	E_ACCESS_DENIED          = Error{2, AccessDenied, "E_ACCESS_DENIED"}
	E_DISK_FULL              = Error{3, DiskFull, "E_DISK_FULL"}
	E_EXISTS                 = Error{4, Exists, "E_EXISTS"}
	E_INVALID_ARGUMENT       = Error{5, InvalidArgument, "E_INVALID_ARGUMENT"}
	E_NOT_FOUND              = Error{6, NotFound, "E_NOT_FOUND"}
	E_INSUFFICIENT_RESOURCES = Error{7, InsufficientResources, "E_INSUFFICIENT_RESOURCES"}
	E_INTERRUPTED            = Error{8, Interrupted, "E_INTERRUPTED"}
	E_RESOURCE_NOT_AVAILABLE = Error{9, ResourceNotAvailable, "E_RESOURCE_NOT_AVAILABLE"}
	E_SIZE_EXCEEDED          = Error{10, SizeExceeded, "E_SIZE_EXCEEDED"}
	E_CANCELLED              = Error{11, Cancelled, "E_CANCELLED"}
	E_NOT_INITIALIZED        = Error{12, NotInitialized, "E_NOT_INITIALIZED"}
	E_NOT_IMPLEMENTED        = Error{13, NotImplemented, "E_NOT_IMPLEMENTED"}

	E_NET_INPROGRESS   = Error{100, NetInProgress, "E_NET_INPROGRESS"}
	E_NET_AGAIN        = Error{101, NetAgain, "E_NET_AGAIN"}
	E_NET_WOULD_BLOCK  = Error{102, NetWouldBlock, "E_NET_WOULD_BLOCK"}
	E_NET_NETWORK_DOWN = Error{103, NetworkDown, "E_NET_NETWORK_DOWN"}
	E_NET_CONN_ABORTED = Error{104, ConnAborted, "E_NET_CONN_ABORTED"}
	E_NET_CONN_REFUSED = Error{105, ConnRefused, "E_NET_CONN_REFUSED"}
	E_NET_CONN_RESET   = Error{106, ConnReset, "E_NET_CONN_RESET"}
	E_NET_CONNECTED    = Error{107, Connected, "E_NET_CONNECTED"}
	E_NET_DISCONNECTED = Error{108, Disconnected, "E_NET_DISCONNECTED"}
	E_NET_TIMEOUT      = Error{109, Timeout, "E_NET_TIMEOUT"}
	E_NET_UNSUPPORTED  = Error{110, Unsupported, "E_NET_UNSUPPORTED"}
)

// Failure is the concrete error value returned by fallible operations.
// It carries the platform code observed at the kernel boundary, the
// classified Error, and a composed context string.
type Failure struct {
	platformCode int32
	err          Error
	context      string
}

// NewFailure creates a failure from a static classification value. The
// platform code is the classification's own stable code.
func NewFailure(e Error) *Failure {
	return &Failure{platformCode: e.Code, err: e}
}

// Newf creates a generic failure from a formatted message.
func Newf(format string, args ...interface{}) *Failure {
	return &Failure{
		platformCode: CodeGeneric,
		err:          E_FAILURE,
		context:      fmt.Sprintf(format, args...),
	}
}

// WithContext returns a copy of f whose context has the formatted message
// prepended. Repeated application composes "outermost: inner: innermost".
func (f *Failure) WithContext(format string, args ...interface{}) *Failure {
	g := *f
	msg := fmt.Sprintf(format, args...)
	if g.context == "" {
		g.context = msg
	} else {
		g.context = msg + ": " + g.context
	}
	return &g
}

// Kind returns the classified kind.
func (f *Failure) Kind() Kind {
	return f.err.Kind
}

// Cause returns the static classification value the failure was built
// from.
func (f *Failure) Cause() Error {
	return f.err
}

// PlatformCode returns the raw code observed when the failure crossed
// from the kernel into the library, or one of the Code* sentinels.
func (f *Failure) PlatformCode() int32 {
	return f.platformCode
}

// Context returns the composed context string, possibly empty.
func (f *Failure) Context() string {
	return f.context
}

func (f *Failure) Error() string {
	if f.context == "" {
		return fmt.Sprintf("%s (code=%d)", f.err.Name, f.platformCode)
	}
	return fmt.Sprintf("%s (code=%d): %s", f.err.Name, f.platformCode, f.context)
}

// Is reports kind equality, making errors.Is match any Failure or Error
// target of the same kind.
func (f *Failure) Is(target error) bool {
	switch t := target.(type) {
	case *Failure:
		return f.err.Kind == t.err.Kind
	case Error:
		return f.err.Kind == t.Kind
	}
	return false
}
