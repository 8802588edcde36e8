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

package memio

// Writer is a bounded cursor that fills a borrowed byte range. Integer
// puts that do not fit in the remaining capacity are dropped; byte and
// string puts truncate to the remaining capacity. Either way the writer
// never grows its range, so callers that need to detect truncation
// compare Offset against Size.
type Writer struct {
	data []byte
	off  int
}

// NewWriter creates a writer over p. The writer borrows p and fills it
// in place.
func NewWriter(p []byte) *Writer {
	return &Writer{data: p}
}

// Data returns the underlying range.
func (w *Writer) Data() []byte {
	return w.data
}

// Bytes returns the written prefix of the underlying range.
func (w *Writer) Bytes() []byte {
	return w.data[:w.off]
}

// Offset returns the current cursor position.
func (w *Writer) Offset() int {
	return w.off
}

// Size returns the total capacity of the underlying range.
func (w *Writer) Size() int {
	return len(w.data)
}

// Remaining returns the number of unwritten bytes.
func (w *Writer) Remaining() int {
	return len(w.data) - w.off
}

// Reset moves the cursor back to the start.
func (w *Writer) Reset() {
	w.off = 0
}

// Seek moves the cursor to the given offset, clamping to the range.
func (w *Writer) Seek(offset int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(w.data) {
		offset = len(w.data)
	}
	w.off = offset
}

// Skip advances the cursor by count bytes, clamping at the end.
func (w *Writer) Skip(count int) {
	w.Seek(w.off + count)
}

// Put8 writes one byte and advances the cursor.
func (w *Writer) Put8(v uint8) {
	if w.off+1 <= len(w.data) {
		w.data[w.off] = v
		w.off++
	}
}

// Put16BE writes a big-endian 16-bit value and advances the cursor.
func (w *Writer) Put16BE(v uint16) {
	if w.off+2 <= len(w.data) {
		w.data[w.off] = byte(v >> 8)
		w.data[w.off+1] = byte(v)
		w.off += 2
	}
}

// Put16LE writes a little-endian 16-bit value and advances the cursor.
func (w *Writer) Put16LE(v uint16) {
	if w.off+2 <= len(w.data) {
		w.data[w.off] = byte(v)
		w.data[w.off+1] = byte(v >> 8)
		w.off += 2
	}
}

// Put32BE writes a big-endian 32-bit value and advances the cursor.
func (w *Writer) Put32BE(v uint32) {
	if w.off+4 <= len(w.data) {
		w.data[w.off] = byte(v >> 24)
		w.data[w.off+1] = byte(v >> 16)
		w.data[w.off+2] = byte(v >> 8)
		w.data[w.off+3] = byte(v)
		w.off += 4
	}
}

// Put32LE writes a little-endian 32-bit value and advances the cursor.
func (w *Writer) Put32LE(v uint32) {
	if w.off+4 <= len(w.data) {
		w.data[w.off] = byte(v)
		w.data[w.off+1] = byte(v >> 8)
		w.data[w.off+2] = byte(v >> 16)
		w.data[w.off+3] = byte(v >> 24)
		w.off += 4
	}
}

// Put64BE writes a big-endian 64-bit value and advances the cursor.
func (w *Writer) Put64BE(v uint64) {
	if w.off+8 <= len(w.data) {
		w.Put32BE(uint32(v >> 32))
		w.Put32BE(uint32(v))
	}
}

// Put64LE writes a little-endian 64-bit value and advances the cursor.
func (w *Writer) Put64LE(v uint64) {
	if w.off+8 <= len(w.data) {
		w.Put32LE(uint32(v))
		w.Put32LE(uint32(v >> 32))
	}
}

// PutBytes copies p into the range, truncating to the remaining
// capacity, and advances the cursor by the number of bytes written.
func (w *Writer) PutBytes(p []byte) {
	n := copy(w.data[w.off:], p)
	w.off += n
}

// PutString is PutBytes for string input.
func (w *Writer) PutString(s string) {
	n := copy(w.data[w.off:], s)
	w.off += n
}

// PutZero writes n zero bytes, truncating to the remaining capacity.
func (w *Writer) PutZero(n int) {
	for n > 0 && w.off < len(w.data) {
		w.data[w.off] = 0
		w.off++
		n--
	}
}

// ObjectWriter carves a fixed-size sub-writer out of the next size
// bytes, advancing the cursor past them. The sub-writer is typically
// held aside to back-patch a header once the surrounding payload has
// been written. It returns a zero-capacity writer if size does not fit.
func (w *Writer) ObjectWriter(size int) *Writer {
	if size < 0 || w.off+size > len(w.data) {
		return &Writer{}
	}
	sub := &Writer{data: w.data[w.off : w.off+size]}
	w.off += size
	return sub
}
