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

package memio_test

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/jacobsa/netio/hashes"
	"github.com/jacobsa/netio/memio"
)

// A packed archive: a header {length u32, fnv64 u64} describing the
// block region, one {length u32, fnv64 u64, bytes} record per block,
// and a trailing sha256 over everything before it. The integer
// checksums are FNV-1, the multiply-then-xor variant.
//
// The fixtures are reference archives captured from an independent
// implementation of this layout, two per endianness, each with the MD5
// of the full archive. Both the writer and the reader must reproduce
// them byte for byte.

type archiveFixture struct {
	name         string
	littleEndian bool
	blocks       []string

	// Hex of the full reference archive and of its MD5.
	archive string
	md5     string
}

var archiveFixtures = []archiveFixture{
	{
		name:         "little-endian archive A",
		littleEndian: true,
		blocks: []string{
			":_bMWVwo3M?M;GQd",
			"9vn5K0F2NSpPI=lZlinYwmV`tB^`ZKDRxZhzI^is39_uTbrwQl?TBl34" +
				"Qj3B8`ja",
		},
		archive: "68000000117cedddfc5d7bb910000000dfdf41a1987aa2173a5f624d5756776f" +
			"334d3f4d3b4751644000000026b5d7cb6758432b39766e354b3046324e537050" +
			"493d6c5a6c696e59776d566074425e605a4b4452785a687a495e697333395f75" +
			"54627277516c3f54426c3334516a334238606a61bd994f0b178751c951f6d5c0" +
			"03f6a870687c8ef1effd686ee814430b147788f8",
		md5: "ca2f18d63d03e3a5e11c0d7dd605daf1",
	},
	{
		name:         "little-endian archive B",
		littleEndian: true,
		blocks: []string{
			"1^?`0dJ4MnC>g:7m",
			"cPvcGloPLQU9^T[O",
			"@W@sV`LiXR8q>mun",
			"uvVX55kb3]LXM]VppXF7d>NsDdnBw=SwaFRl=1Mtp5BZJinjRKbgd?G<" +
				"BTOJz8si54Zl3dQgHMX9kO2C<C0ib1MJ0tmt85Szn?DQ[kAVt3zt[T?h" +
				"c;t6[uRo7[j@K8EK",
		},
		archive: "e0000000af20a4fb61ea66b010000000ba155d74b744f728315e3f6030644a34" +
			"4d6e433e673a376d10000000fab4886c5fe896a063507663476c6f504c515539" +
			"5e545b4f10000000ef06947d3e016d874057407356604c69585238713e6d756e" +
			"800000006a648b04782599967576565835356b62335d4c584d5d567070584637" +
			"643e4e7344646e42773d53776146526c3d314d747035425a4a696e6a524b6267" +
			"643f473c42544f4a7a38736935345a6c33645167484d58396b4f32433c433069" +
			"62314d4a30746d743835537a6e3f44515b6b415674337a745b543f68633b7436" +
			"5b75526f375b6a404b38454b000a6400ea66ae06415f2c11303b1dfebac5938d" +
			"76cda8672b0df5345029238c",
		md5: "28c47c619493baf4b9f65d1b0f026fbd",
	},
	{
		name:         "big-endian archive A",
		littleEndian: false,
		blocks: []string{
			"2ym03Y1JJE<W]Rs5",
			"W^FcbrR85j3V8LYI79Vsr6ExYk1=wfv3",
			"DD<hkA3s0RcWs8=^Pev]SrIyvL8[IvVSp5C7ULf>iJAp54soOz1mf>xf" +
				";WkvatZQ",
			"xyZrbgjpx<A:`v1_B=uUFMZRRF@wfth@6aXXrWANLMk;QLKvmJ4@JQMN" +
				":QQFDAJt7MDzEB_O6lBUS7Ll3Wf?_VzIcXiuXh8upMJ0<9PAP6boJnGZ" +
				"VX:qv[Z5yX0X>Vnc",
		},
		archive: "00000120304ce93abc45b9e800000010f5a51fd70e05927932796d303359314a" +
			"4a453c575d527335000000208f4d3c38ef139817575e466362725238356a3356" +
			"384c59493739567372364578596b313d7766763300000040f6b1044c877bad0c" +
			"44443c686b4133733052635773383d5e5065765d53724979764c385b49765653" +
			"70354337554c663e694a41703534736f4f7a316d663e78663b576b7661745a51" +
			"00000080df444f2d2ccc1b6078795a7262676a70783c413a6076315f423d7555" +
			"464d5a525246407766746840366158587257414e4c4d6b3b514c4b766d4a3440" +
			"4a514d4e3a51514644414a74374d447a45425f4f366c425553374c6c3357663f" +
			"5f567a496358697558683875704d4a303c3950415036626f4a6e475a56583a71" +
			"765b5a35795830583e566e633d3fb732bbde0596a1c41f0fd4821b8b6b59a370" +
			"67c1d6aee4104f7dfa8a7f58",
		md5: "e350aa0b706e54adb465131f075e8f7c",
	},
	{
		name:         "big-endian archive B",
		littleEndian: false,
		blocks: []string{
			"hvNjF=52dMndGIOTq@r26KaW_?[k",
			"pg7w=;1lPvYoi2][y<NQPe0KWjywK",
			"rRXQSCD@ri@",
			"krykLQj2qDY4^?@oy>[GW^IV^",
		},
		archive: "0000008dddfb5d765412c8d70000001c68d79e97f43b0a0968764e6a463d3532" +
			"644d6e6447494f5471407232364b61575f3f5b6b0000001df6356c653fe58d64" +
			"706737773d3b316c5076596f69325d5b793c4e515065304b576a79774b000000" +
			"0b3548d1e182e4e84772525851534344407269400000001938f2b979f8c0fe26" +
			"6b72796b4c516a32714459345e3f406f793e5b47575e49565ec5f40fb47b6d65" +
			"68c30e56e8febc61eac350ec8e46e84037dcb551a1c567db5b",
		md5: "83ad7d235dd222e02cb4490926b3c219",
	},
}

func mustUnhex(t *testing.T, s string) []byte {
	t.Helper()

	p, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex in fixture: %v", err)
	}
	return p
}

const (
	archiveHeaderSize = 12
	archiveFooterSize = sha256.Size
)

// writeArchive emits the layout through the writer under test, using
// an ObjectWriter reservation to back-patch the region checksum once
// the blocks are in place.
func writeArchive(t *testing.T, blocks []string, littleEndian bool) []byte {
	t.Helper()

	region := 0
	for _, b := range blocks {
		region += archiveHeaderSize + len(b)
	}

	buf := make([]byte, archiveHeaderSize+region+archiveFooterSize)
	w := memio.NewWriter(buf)

	put32 := w.Put32BE
	put64 := w.Put64BE
	if littleEndian {
		put32 = w.Put32LE
		put64 = w.Put64LE
	}

	header := w.ObjectWriter(archiveHeaderSize)

	for _, b := range blocks {
		blockSum := hashes.NewFnv64V1()
		blockSum.Process([]byte(b))

		put32(uint32(len(b)))
		put64(blockSum.Value())
		w.PutString(b)
	}

	regionSum := hashes.NewFnv64V1()
	regionSum.Process(buf[archiveHeaderSize : archiveHeaderSize+region])
	if littleEndian {
		header.Put32LE(uint32(region))
		header.Put64LE(regionSum.Value())
	} else {
		header.Put32BE(uint32(region))
		header.Put64BE(regionSum.Value())
	}

	footer := hashes.NewSHA256()
	footer.Process(buf[:w.Offset()])
	w.PutBytes(footer.Finish())

	if w.Offset() != w.Size() {
		t.Fatalf("archive layout mismatch: wrote %d of %d", w.Offset(), w.Size())
	}
	return buf
}

// fnv1Of is a from-scratch FNV-1, deliberately independent of the
// hashes package.
func fnv1Of(p []byte) uint64 {
	h := uint64(14695981039346656037)
	for _, b := range p {
		h *= 1099511628211
		h ^= uint64(b)
	}
	return h
}

// referenceArchive assembles the same layout with the standard library
// only, so neither package under test vouches for itself.
func referenceArchive(blocks []string, littleEndian bool) []byte {
	var order binary.ByteOrder = binary.BigEndian
	if littleEndian {
		order = binary.LittleEndian
	}

	var region bytes.Buffer
	scratch := make([]byte, 8)
	for _, b := range blocks {
		order.PutUint32(scratch, uint32(len(b)))
		region.Write(scratch[:4])
		order.PutUint64(scratch, fnv1Of([]byte(b)))
		region.Write(scratch[:8])
		region.WriteString(b)
	}

	var out bytes.Buffer
	order.PutUint32(scratch, uint32(region.Len()))
	out.Write(scratch[:4])
	order.PutUint64(scratch, fnv1Of(region.Bytes()))
	out.Write(scratch[:8])
	out.Write(region.Bytes())

	sum := sha256.Sum256(out.Bytes())
	out.Write(sum[:])
	return out.Bytes()
}

// readArchive parses an archive through the reader under test,
// validating every checksum on the way.
func readArchive(t *testing.T, raw []byte, littleEndian bool) []string {
	t.Helper()

	r := memio.NewReader(raw)
	read32 := r.Read32BE
	read64 := r.Read64BE
	if littleEndian {
		read32 = r.Read32LE
		read64 = r.Read64LE
	}

	region := int(read32())
	regionSum := read64()
	if want := archiveHeaderSize + region + archiveFooterSize; len(raw) != want {
		t.Fatalf("archive is %d bytes, header implies %d", len(raw), want)
	}

	check := hashes.NewFnv64V1()
	check.Process(raw[archiveHeaderSize : archiveHeaderSize+region])
	if got := check.Value(); got != regionSum {
		t.Fatalf("region checksum mismatch: %#x != %#x", got, regionSum)
	}

	var blocks []string
	for r.Offset() < archiveHeaderSize+region {
		length := int(read32())
		blockSum := read64()

		block := r.ReadSpan(length)
		if block == nil {
			t.Fatalf("truncated block of %d bytes at offset %d", length, r.Offset())
		}

		check.Reset()
		check.Process(block)
		if got := check.Value(); got != blockSum {
			t.Fatalf("block checksum mismatch: %#x != %#x", got, blockSum)
		}
		blocks = append(blocks, string(block))
	}

	footer := hashes.NewSHA256()
	footer.Process(raw[:r.Offset()])
	want := footer.Finish()
	if got := r.ReadSpan(archiveFooterSize); !bytes.Equal(got, want) {
		t.Fatalf("footer digest mismatch")
	}
	if r.Remaining() != 0 {
		t.Fatalf("%d bytes of trailing garbage", r.Remaining())
	}
	return blocks
}

func TestArchiveRoundTrip(t *testing.T) {
	for _, fixture := range archiveFixtures {
		fixture := fixture
		t.Run(fixture.name, func(t *testing.T) {
			want := mustUnhex(t, fixture.archive)

			// The writer must reproduce the reference archive byte for
			// byte, which pins the FNV-1 and SHA-256 implementations to
			// digests computed outside this module.
			got := writeArchive(t, fixture.blocks, fixture.littleEndian)
			if !bytes.Equal(got, want) {
				t.Fatalf("written archive differs from the reference:\n%s",
					pretty.Compare(got, want))
			}

			// So must the stdlib-only rendering of the same layout.
			if ref := referenceArchive(fixture.blocks, fixture.littleEndian); !bytes.Equal(ref, want) {
				t.Fatalf("stdlib reference differs from the fixture")
			}

			// The fixture MD5 checks the MD5 digest against the same
			// outside implementation.
			sum := hashes.NewMD5()
			sum.Process(want)
			if got := hex.EncodeToString(sum.Finish()); got != fixture.md5 {
				t.Errorf("archive md5 = %s, want %s", got, fixture.md5)
			}
			if got := md5.Sum(want); hex.EncodeToString(got[:]) != fixture.md5 {
				t.Errorf("fixture md5 does not self-check")
			}

			blocks := readArchive(t, want, fixture.littleEndian)
			if diff := pretty.Compare(blocks, fixture.blocks); diff != "" {
				t.Errorf("parsed blocks differ:\n%s", diff)
			}
		})
	}
}
