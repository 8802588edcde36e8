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

package fault

import (
	"errors"
	"syscall"
)

// Errno classifies a platform error into a Failure, preserving the raw
// code. This is the general-purpose table; the network facade applies
// its own, stricter mapping at the syscall boundary before falling back
// to this one.
func Errno(err error) *Failure {
	if err == nil {
		return nil
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return &Failure{
			platformCode: CodeGeneric,
			err:          E_FAILURE,
			context:      err.Error(),
		}
	}

	code := int32(errno)
	switch errno {
	case syscall.EACCES, syscall.EPERM:
		return E_ACCESS_DENIED.WithCode(code)
	case syscall.ENOSPC:
		return E_DISK_FULL.WithCode(code)
	case syscall.EEXIST:
		return E_EXISTS.WithCode(code)
	case syscall.EINVAL, syscall.EBADF, syscall.ENOTSOCK:
		return E_INVALID_ARGUMENT.WithCode(code)
	case syscall.ENOENT:
		return E_NOT_FOUND.WithCode(code)
	case syscall.ENOMEM, syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS:
		return E_INSUFFICIENT_RESOURCES.WithCode(code)
	case syscall.EINTR:
		return E_INTERRUPTED.WithCode(code)
	}

	return E_FAILURE.WithCode(code)
}
