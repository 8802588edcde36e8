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

const md5BlockSize = 64

// md5K[i] = floor(2^32 * abs(sin(i+1)))
var md5K = [64]uint32{
	0xd76aa478, 0xe8c7b756, 0x242070db, 0xc1bdceee,
	0xf57c0faf, 0x4787c62a, 0xa8304613, 0xfd469501,
	0x698098d8, 0x8b44f7af, 0xffff5bb1, 0x895cd7be,
	0x6b901122, 0xfd987193, 0xa679438e, 0x49b40821,
	0xf61e2562, 0xc040b340, 0x265e5a51, 0xe9b6c7aa,
	0xd62f105d, 0x02441453, 0xd8a1e681, 0xe7d3fbc8,
	0x21e1cde6, 0xc33707d6, 0xf4d50d87, 0x455a14ed,
	0xa9e3e905, 0xfcefa3f8, 0x676f02d9, 0x8d2a4c8a,
	0xfffa3942, 0x8771f681, 0x6d9d6122, 0xfde5380c,
	0xa4beea44, 0x4bdecfa9, 0xf6bb4b60, 0xbebfbc70,
	0x289b7ec6, 0xeaa127fa, 0xd4ef3085, 0x04881d05,
	0xd9d4d039, 0xe6db99e5, 0x1fa27cf8, 0xc4ac5665,
	0xf4292244, 0x432aff97, 0xab9423a7, 0xfc93a039,
	0x655b59c3, 0x8f0ccc92, 0xffeff47d, 0x85845dd1,
	0x6fa87e4f, 0xfe2ce6e0, 0xa3014314, 0x4e0811a1,
	0xf7537e82, 0xbd3af235, 0x2ad7d2bb, 0xeb86d391,
}

var md5Shift = [64]uint{
	7, 12, 17, 22, 7, 12, 17, 22, 7, 12, 17, 22, 7, 12, 17, 22,
	5, 9, 14, 20, 5, 9, 14, 20, 5, 9, 14, 20, 5, 9, 14, 20,
	4, 11, 16, 23, 4, 11, 16, 23, 4, 11, 16, 23, 4, 11, 16, 23,
	6, 10, 15, 21, 6, 10, 15, 21, 6, 10, 15, 21, 6, 10, 15, 21,
}

// MD5 is a streaming MD5 digest. The digest bytes are emitted in the
// standard little-endian word order.
type MD5 struct {
	state  [4]uint32
	length uint64

	// Buffered partial block. buf[:used] holds bytes waiting for a full
	// block.
	buf  [md5BlockSize]byte
	used int
}

// NewMD5 creates an MD5 digest.
func NewMD5() *MD5 {
	m := &MD5{}
	m.Reset()
	return m
}

func (m *MD5) Reset() {
	m.state = [4]uint32{0x67452301, 0xefcdab89, 0x98badcfe, 0x10325476}
	m.length = 0
	m.used = 0
}

func (m *MD5) Size() int {
	return MD5Size
}

func (m *MD5) BlockSize() int {
	return md5BlockSize
}

func (m *MD5) Process(p []byte) {
	m.length += uint64(len(p))

	if m.used > 0 {
		n := copy(m.buf[m.used:], p)
		m.used += n
		p = p[n:]
		if m.used < md5BlockSize {
			return
		}
		m.processBlock(m.buf[:])
		m.used = 0
	}

	for len(p) >= md5BlockSize {
		m.processBlock(p[:md5BlockSize])
		p = p[md5BlockSize:]
	}

	m.used = copy(m.buf[:], p)
}

// Finish pads and folds a copy of the running state, leaving m ready to
// accept further data.
func (m *MD5) Finish() []byte {
	saved := *m

	// Trailing 0x80, zeros to 56 mod 64, then the bit length
	// little-endian.
	var pad [md5BlockSize + 8]byte
	pad[0] = 0x80
	padLen := 56 - int(m.length%md5BlockSize)
	if padLen <= 0 {
		padLen += md5BlockSize
	}
	bitLen := m.length << 3
	for i := 0; i < 8; i++ {
		pad[padLen+i] = byte(bitLen >> uint(8*i))
	}
	m.Process(pad[:padLen+8])

	out := make([]byte, 0, MD5Size)
	for _, s := range m.state {
		out = append(out, byte(s), byte(s>>8), byte(s>>16), byte(s>>24))
	}

	*m = saved
	return out
}

func (m *MD5) processBlock(block []byte) {
	var x [16]uint32
	for i := 0; i < 16; i++ {
		x[i] = uint32(block[4*i]) |
			uint32(block[4*i+1])<<8 |
			uint32(block[4*i+2])<<16 |
			uint32(block[4*i+3])<<24
	}

	a, b, c, d := m.state[0], m.state[1], m.state[2], m.state[3]

	for i := 0; i < 64; i++ {
		var f uint32
		var g int

		switch {
		case i < 16:
			f = (b & c) | (^b & d)
			g = i
		case i < 32:
			f = (d & b) | (^d & c)
			g = (5*i + 1) % 16
		case i < 48:
			f = b ^ c ^ d
			g = (3*i + 5) % 16
		default:
			f = c ^ (b | ^d)
			g = (7 * i) % 16
		}

		f += a + md5K[i] + x[g]
		a = d
		d = c
		c = b
		b += bits.RotateLeft32(f, int(md5Shift[i]))
	}

	m.state[0] += a
	m.state[1] += b
	m.state[2] += c
	m.state[3] += d
}
