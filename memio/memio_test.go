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

import (
	"bytes"
	"testing"
)

func TestReaderEndianness(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	r := NewReader(data)
	if got, want := r.Read16BE(), uint16(0x0102); got != want {
		t.Errorf("Read16BE = %#x, want %#x", got, want)
	}
	if got, want := r.Read16LE(), uint16(0x0403); got != want {
		t.Errorf("Read16LE = %#x, want %#x", got, want)
	}
	if got, want := r.Read32BE(), uint32(0x05060708); got != want {
		t.Errorf("Read32BE = %#x, want %#x", got, want)
	}

	r.Reset()
	if got, want := r.Read64BE(), uint64(0x0102030405060708); got != want {
		t.Errorf("Read64BE = %#x, want %#x", got, want)
	}

	r.Reset()
	if got, want := r.Read64LE(), uint64(0x0807060504030201); got != want {
		t.Errorf("Read64LE = %#x, want %#x", got, want)
	}
}

func TestReaderPastEndReturnsZeroWithoutMoving(t *testing.T) {
	r := NewReader([]byte{0xff, 0xff})

	if got := r.Read32BE(); got != 0 {
		t.Errorf("Read32BE past end = %#x, want 0", got)
	}
	if got := r.Offset(); got != 0 {
		t.Errorf("offset moved to %d on failed read", got)
	}

	// A narrower read still works afterwards.
	if got, want := r.Read16BE(), uint16(0xffff); got != want {
		t.Errorf("Read16BE = %#x, want %#x", got, want)
	}
	if got := r.Read8(); got != 0 {
		t.Errorf("Read8 past end = %d, want 0", got)
	}
}

func TestReaderAtFormsSeekFirst(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	r := NewReader(data)

	if got, want := r.Read16BEAt(4), uint16(0x0405); got != want {
		t.Errorf("Read16BEAt(4) = %#x, want %#x", got, want)
	}
	if got := r.Offset(); got != 6 {
		t.Errorf("offset after Read16BEAt = %d, want 6", got)
	}

	// An at-form read past the end neither seeks nor reads.
	if got := r.Read64LEAt(5); got != 0 {
		t.Errorf("Read64LEAt(5) = %#x, want 0", got)
	}
	if got := r.Offset(); got != 6 {
		t.Errorf("offset after failed at-read = %d, want 6", got)
	}
}

func TestReaderStringTrimsAtNul(t *testing.T) {
	r := NewReader([]byte{'t', 'a', 'c', 'o', 0, 'x', 'y'})

	if got, want := r.ReadString(7), "taco"; got != want {
		t.Errorf("ReadString = %q, want %q", got, want)
	}
	if got := r.Offset(); got != 7 {
		t.Errorf("offset after ReadString = %d, want 7", got)
	}
}

func TestReaderSpanAdvancesAndBounds(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5})

	sub := r.Span(3)
	if got := sub.Size(); got != 3 {
		t.Fatalf("sub size = %d, want 3", got)
	}
	if got, want := sub.Read16BE(), uint16(0x0102); got != want {
		t.Errorf("sub read = %#x, want %#x", got, want)
	}
	if got := r.Offset(); got != 3 {
		t.Errorf("parent offset = %d, want 3", got)
	}

	if got := r.ReadSpan(3); got != nil {
		t.Errorf("ReadSpan past end = %v, want nil", got)
	}
}

func TestWriterRoundTripsTypedIntegers(t *testing.T) {
	buf := make([]byte, 30)
	w := NewWriter(buf)

	w.Put8(0xab)
	w.Put16LE(0x0102)
	w.Put16BE(0x0304)
	w.Put32LE(0x05060708)
	w.Put32BE(0x090a0b0c)
	w.Put64LE(0x1122334455667788)
	w.Put64BE(0x99aabbccddeeff00)

	if got := w.Offset(); got != 29 {
		t.Fatalf("writer offset = %d, want 29", got)
	}

	r := NewReader(buf)
	if got := r.Read8(); got != 0xab {
		t.Errorf("Read8 = %#x", got)
	}
	if got := r.Read16LE(); got != 0x0102 {
		t.Errorf("Read16LE = %#x", got)
	}
	if got := r.Read16BE(); got != 0x0304 {
		t.Errorf("Read16BE = %#x", got)
	}
	if got := r.Read32LE(); got != 0x05060708 {
		t.Errorf("Read32LE = %#x", got)
	}
	if got := r.Read32BE(); got != 0x090a0b0c {
		t.Errorf("Read32BE = %#x", got)
	}
	if got := r.Read64LE(); got != uint64(0x1122334455667788) {
		t.Errorf("Read64LE = %#x", got)
	}
	if got := r.Read64BE(); got != uint64(0x99aabbccddeeff00) {
		t.Errorf("Read64BE = %#x", got)
	}
}

func TestWriterTruncatesSilently(t *testing.T) {
	buf := make([]byte, 3)
	w := NewWriter(buf)

	// The 32-bit value doesn't fit and is dropped.
	w.Put32BE(0xdeadbeef)
	if got := w.Offset(); got != 0 {
		t.Errorf("offset after dropped put = %d, want 0", got)
	}

	// Byte puts truncate to capacity.
	w.PutString("tacos")
	if got := w.Offset(); got != 3 {
		t.Errorf("offset after truncated put = %d, want 3", got)
	}
	if !bytes.Equal(buf, []byte("tac")) {
		t.Errorf("buf = %q, want %q", buf, "tac")
	}
}

func TestWriterPutZero(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	w := NewWriter(buf)

	w.Put8(9)
	w.PutZero(2)
	if !bytes.Equal(buf, []byte{9, 0, 0, 4}) {
		t.Errorf("buf = %v", buf)
	}
}

func TestObjectWriterBackPatchesHeader(t *testing.T) {
	buf := make([]byte, 12)
	w := NewWriter(buf)

	// Reserve a {length u32, checksum u32} header, write the payload,
	// then patch the header.
	header := w.ObjectWriter(8)
	w.PutString("ping")

	header.Put32LE(4)
	header.Put32LE(0x12345678)

	r := NewReader(buf)
	if got := r.Read32LE(); got != 4 {
		t.Errorf("patched length = %d, want 4", got)
	}
	if got := r.Read32LE(); got != 0x12345678 {
		t.Errorf("patched checksum = %#x", got)
	}
	if got := r.ReadString(4); got != "ping" {
		t.Errorf("payload = %q", got)
	}
}

func TestObjectWriterPastEndHasNoCapacity(t *testing.T) {
	w := NewWriter(make([]byte, 4))

	sub := w.ObjectWriter(8)
	if got := sub.Size(); got != 0 {
		t.Errorf("sub size = %d, want 0", got)
	}
	if got := w.Offset(); got != 0 {
		t.Errorf("parent offset = %d, want 0", got)
	}
}
