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

package hashes

// HMAC implements the standard keyed construction over any
// block-oriented digest:
//
//	H(K' ^ 0x5c || H(K' ^ 0x36 || message))
//
// where K' is the key padded (or first hashed, if longer than a block)
// to the digest's block size.
type HMAC struct {
	inner Digest
	outer Digest

	ipad []byte
	opad []byte
}

// NewHMAC creates an HMAC digest over the algorithm produced by
// newDigest, keyed with key.
func NewHMAC(newDigest func() Digest, key []byte) *HMAC {
	h := &HMAC{
		inner: newDigest(),
		outer: newDigest(),
	}

	blockSize := h.inner.BlockSize()

	if len(key) > blockSize {
		key = Sum(newDigest, key)
	}

	h.ipad = make([]byte, blockSize)
	h.opad = make([]byte, blockSize)
	copy(h.ipad, key)
	copy(h.opad, key)
	for i := range h.ipad {
		h.ipad[i] ^= 0x36
		h.opad[i] ^= 0x5c
	}

	h.inner.Process(h.ipad)
	return h
}

func (h *HMAC) Process(p []byte) {
	h.inner.Process(p)
}

func (h *HMAC) Finish() []byte {
	innerSum := h.inner.Finish()

	h.outer.Reset()
	h.outer.Process(h.opad)
	h.outer.Process(innerSum)
	return h.outer.Finish()
}

func (h *HMAC) Reset() {
	h.inner.Reset()
	h.inner.Process(h.ipad)
}

func (h *HMAC) Size() int {
	return h.inner.Size()
}

func (h *HMAC) BlockSize() int {
	return h.inner.BlockSize()
}
