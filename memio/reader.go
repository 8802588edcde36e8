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

// Package memio provides bounded byte cursors with explicit endianness,
// used to author and parse wire formats. A Reader never reads past the
// end of its range: an out-of-range read returns zero and leaves the
// cursor unchanged. A Writer never writes past the end: integer writes
// that do not fit are silently dropped, byte writes are silently
// truncated, and callers that care compare Offset against Size
// afterwards.
package memio

// Reader is a bounded cursor over a borrowed byte range. The zero value
// reads as an empty range.
type Reader struct {
	data []byte
	off  int
}

// NewReader creates a reader over p. The reader borrows p; it never
// copies or mutates it.
func NewReader(p []byte) *Reader {
	return &Reader{data: p}
}

// Offset returns the current cursor position.
func (r *Reader) Offset() int {
	return r.off
}

// Size returns the total size of the underlying range.
func (r *Reader) Size() int {
	return len(r.data)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Reset moves the cursor back to the start.
func (r *Reader) Reset() {
	r.off = 0
}

// Seek moves the cursor to the given offset. Seeking past the end clamps
// to the end.
func (r *Reader) Seek(offset int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(r.data) {
		offset = len(r.data)
	}
	r.off = offset
}

// Skip advances the cursor by count bytes, clamping at the end.
func (r *Reader) Skip(count int) {
	r.Seek(r.off + count)
}

// Read8 reads one byte and advances the cursor.
func (r *Reader) Read8() uint8 {
	if r.off+1 <= len(r.data) {
		b := r.data[r.off]
		r.off++
		return b
	}
	return 0
}

// Read8At seeks to offset, then reads one byte.
func (r *Reader) Read8At(offset int) uint8 {
	if offset+1 <= len(r.data) {
		r.Seek(offset)
		return r.Read8()
	}
	return 0
}

// Read16BE reads a big-endian 16-bit value and advances the cursor.
func (r *Reader) Read16BE() uint16 {
	if r.off+2 <= len(r.data) {
		v := uint16(r.data[r.off])<<8 | uint16(r.data[r.off+1])
		r.off += 2
		return v
	}
	return 0
}

// Read16LE reads a little-endian 16-bit value and advances the cursor.
func (r *Reader) Read16LE() uint16 {
	if r.off+2 <= len(r.data) {
		v := uint16(r.data[r.off+1])<<8 | uint16(r.data[r.off])
		r.off += 2
		return v
	}
	return 0
}

// Read16BEAt seeks to offset, then reads as Read16BE.
func (r *Reader) Read16BEAt(offset int) uint16 {
	if offset+2 <= len(r.data) {
		r.Seek(offset)
		return r.Read16BE()
	}
	return 0
}

// Read16LEAt seeks to offset, then reads as Read16LE.
func (r *Reader) Read16LEAt(offset int) uint16 {
	if offset+2 <= len(r.data) {
		r.Seek(offset)
		return r.Read16LE()
	}
	return 0
}

// Read32BE reads a big-endian 32-bit value and advances the cursor.
func (r *Reader) Read32BE() uint32 {
	if r.off+4 <= len(r.data) {
		v := uint32(r.data[r.off])<<24 |
			uint32(r.data[r.off+1])<<16 |
			uint32(r.data[r.off+2])<<8 |
			uint32(r.data[r.off+3])
		r.off += 4
		return v
	}
	return 0
}

// Read32LE reads a little-endian 32-bit value and advances the cursor.
func (r *Reader) Read32LE() uint32 {
	if r.off+4 <= len(r.data) {
		v := uint32(r.data[r.off+3])<<24 |
			uint32(r.data[r.off+2])<<16 |
			uint32(r.data[r.off+1])<<8 |
			uint32(r.data[r.off])
		r.off += 4
		return v
	}
	return 0
}

// Read32BEAt seeks to offset, then reads as Read32BE.
func (r *Reader) Read32BEAt(offset int) uint32 {
	if offset+4 <= len(r.data) {
		r.Seek(offset)
		return r.Read32BE()
	}
	return 0
}

// Read32LEAt seeks to offset, then reads as Read32LE.
func (r *Reader) Read32LEAt(offset int) uint32 {
	if offset+4 <= len(r.data) {
		r.Seek(offset)
		return r.Read32LE()
	}
	return 0
}

// Read64BE reads a big-endian 64-bit value and advances the cursor.
func (r *Reader) Read64BE() uint64 {
	if r.off+8 <= len(r.data) {
		v := uint64(r.Read32BE())<<32 | uint64(r.Read32BE())
		return v
	}
	return 0
}

// Read64LE reads a little-endian 64-bit value and advances the cursor.
func (r *Reader) Read64LE() uint64 {
	if r.off+8 <= len(r.data) {
		lo := uint64(r.Read32LE())
		hi := uint64(r.Read32LE())
		return hi<<32 | lo
	}
	return 0
}

// Read64BEAt seeks to offset, then reads as Read64BE.
func (r *Reader) Read64BEAt(offset int) uint64 {
	if offset+8 <= len(r.data) {
		r.Seek(offset)
		return r.Read64BE()
	}
	return 0
}

// Read64LEAt seeks to offset, then reads as Read64LE.
func (r *Reader) Read64LEAt(offset int) uint64 {
	if offset+8 <= len(r.data) {
		r.Seek(offset)
		return r.Read64LE()
	}
	return 0
}

// ReadSpan borrows the next length bytes and advances the cursor. It
// returns nil if fewer than length bytes remain.
func (r *Reader) ReadSpan(length int) []byte {
	if length < 0 || r.off+length > len(r.data) {
		return nil
	}
	p := r.data[r.off : r.off+length]
	r.off += length
	return p
}

// ReadString reads length bytes and returns them as a string trimmed at
// the first NUL, advancing the cursor by the full length. It returns ""
// if fewer than length bytes remain.
func (r *Reader) ReadString(length int) string {
	p := r.ReadSpan(length)
	if p == nil {
		return ""
	}
	for i, b := range p {
		if b == 0 {
			return string(p[:i])
		}
	}
	return string(p)
}

// Span returns a new reader over the next size bytes and advances the
// cursor by size.
//
// REQUIRES: size <= r.Remaining()
func (r *Reader) Span(size int) *Reader {
	if size < 0 || r.off+size > len(r.data) {
		panic("memio: Span past end of range")
	}
	sub := &Reader{data: r.data[r.off : r.off+size]}
	r.off += size
	return sub
}
