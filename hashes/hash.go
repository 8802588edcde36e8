// Copyright 2022 Google Inc. All Rights Reserved.
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

// Package hashes implements the streaming content hashes used for
// integrity checks on packed wire data: FNV-1a (32 and 64 bit), MD5,
// SHA-1, SHA-256, and HMAC over any of the block-oriented digests.
//
// Every algorithm follows the same contract: feed data with any
// partitioning through Process, then call Finish for the digest. Finish
// pads and folds a copy of the running state, so the same object can
// keep accepting data afterwards; Finish at two points of a stream
// yields the digest of the two prefixes.
package hashes

// Digest is the uniform streaming contract implemented by every
// algorithm in this package.
type Digest interface {
	// Process absorbs p into the running state.
	Process(p []byte)

	// Finish returns the digest of everything processed so far. It does
	// not disturb the running state.
	Finish() []byte

	// Reset returns the state to that of a freshly created digest.
	Reset()

	// Size returns the digest width in bytes.
	Size() int

	// BlockSize returns the algorithm block width in bytes, or 1 for
	// byte-oriented algorithms.
	BlockSize() int
}

// Digest widths.
const (
	Fnv32Size  = 4
	Fnv64Size  = 8
	MD5Size    = 16
	SHA1Size   = 20
	SHA256Size = 32
)

// Sum is a convenience that processes p through a fresh digest from
// newDigest and returns the result.
func Sum(newDigest func() Digest, p []byte) []byte {
	d := newDigest()
	d.Process(p)
	return d.Finish()
}
