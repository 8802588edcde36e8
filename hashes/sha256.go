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

import (
	"math/bits"
)

const sha256BlockSize = 64

var sha256K = [64]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5,
	0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3,
	0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc,
	0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7,
	0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13,
	0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3,
	0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5,
	0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208,
	0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

// SHA256 is a streaming SHA-256 digest. The digest bytes are emitted in
// the standard big-endian word order.
type SHA256 struct {
	state  [8]uint32
	length uint64

	buf  [sha256BlockSize]byte
	used int
}

// NewSHA256 creates a SHA-256 digest.
func NewSHA256() *SHA256 {
	s := &SHA256{}
	s.Reset()
	return s
}

func (s *SHA256) Reset() {
	s.state = [8]uint32{
		0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a,
		0x510e527f, 0x9b05688c, 0x1f83d9ab, 0x5be0cd19,
	}
	s.length = 0
	s.used = 0
}

func (s *SHA256) Size() int {
	return SHA256Size
}

func (s *SHA256) BlockSize() int {
	return sha256BlockSize
}

func (s *SHA256) Process(p []byte) {
	s.length += uint64(len(p))

	if s.used > 0 {
		n := copy(s.buf[s.used:], p)
		s.used += n
		p = p[n:]
		if s.used < sha256BlockSize {
			return
		}
		s.processBlock(s.buf[:])
		s.used = 0
	}

	for len(p) >= sha256BlockSize {
		s.processBlock(p[:sha256BlockSize])
		p = p[sha256BlockSize:]
	}

	s.used = copy(s.buf[:], p)
}

// Finish pads and folds a copy of the running state, leaving s ready to
// accept further data.
func (s *SHA256) Finish() []byte {
	saved := *s

	var pad [sha256BlockSize + 8]byte
	pad[0] = 0x80
	padLen := 56 - int(s.length%sha256BlockSize)
	if padLen <= 0 {
		padLen += sha256BlockSize
	}
	bitLen := s.length << 3
	for i := 0; i < 8; i++ {
		pad[padLen+i] = byte(bitLen >> uint(56-8*i))
	}
	s.Process(pad[:padLen+8])

	out := make([]byte, 0, SHA256Size)
	for _, w := range s.state {
		out = append(out, byte(w>>24), byte(w>>16), byte(w>>8), byte(w))
	}

	*s = saved
	return out
}

func (s *SHA256) processBlock(block []byte) {
	var w [64]uint32
	for i := 0; i < 16; i++ {
		w[i] = uint32(block[4*i])<<24 |
			uint32(block[4*i+1])<<16 |
			uint32(block[4*i+2])<<8 |
			uint32(block[4*i+3])
	}
	for i := 16; i < 64; i++ {
		s0 := bits.RotateLeft32(w[i-15], -7) ^
			bits.RotateLeft32(w[i-15], -18) ^
			(w[i-15] >> 3)
		s1 := bits.RotateLeft32(w[i-2], -17) ^
			bits.RotateLeft32(w[i-2], -19) ^
			(w[i-2] >> 10)
		w[i] = w[i-16] + s0 + w[i-7] + s1
	}

	a, b, c, d := s.state[0], s.state[1], s.state[2], s.state[3]
	e, f, g, h := s.state[4], s.state[5], s.state[6], s.state[7]

	for i := 0; i < 64; i++ {
		s1 := bits.RotateLeft32(e, -6) ^
			bits.RotateLeft32(e, -11) ^
			bits.RotateLeft32(e, -25)
		ch := (e & f) ^ (^e & g)
		t1 := h + s1 + ch + sha256K[i] + w[i]

		s0 := bits.RotateLeft32(a, -2) ^
			bits.RotateLeft32(a, -13) ^
			bits.RotateLeft32(a, -22)
		maj := (a & b) ^ (a & c) ^ (b & c)
		t2 := s0 + maj

		h = g
		g = f
		f = e
		e = d + t1
		d = c
		c = b
		b = a
		a = t1 + t2
	}

	s.state[0] += a
	s.state[1] += b
	s.state[2] += c
	s.state[3] += d
	s.state[4] += e
	s.state[5] += f
	s.state[6] += g
	s.state[7] += h
}
