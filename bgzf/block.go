// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bgzf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
)

// BlockSize is the maximum amount of uncompressed data packed into a
// single BGZF block by Writer.
const BlockSize = 0x0ff00

// MaxBlockSize is the largest a compressed BGZF block may legally be.
const MaxBlockSize = 0x10000

var bgzfExtraPrefix = []byte{'B', 'C', 2, 0}

// eofMarker is the empty BGZF block every well formed BGZF stream ends
// with, matching the constant samtools appends on Close.
var eofMarker = []byte{
	0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff,
	0x06, 0x00, 0x42, 0x43, 0x02, 0x00, 0x1b, 0x00, 0x03, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// ErrBlockOverflow is returned when a write would exceed BlockSize bytes
// of uncompressed payload in a single BGZF block.
var ErrBlockOverflow = errors.New("bgzf: block overflow")

// errBadBlockHeader is returned when a BGZF block's gzip member header
// does not carry the BC extra subfield BGZF requires.
var errBadBlockHeader = errors.New("bgzf: not a bgzf block")

// writeBlock deflates data (which must be at most BlockSize bytes) as one
// BGZF block and writes it to w, returning the number of bytes written.
func writeBlock(w io.Writer, level int, data []byte) (int, error) {
	if len(data) > BlockSize {
		return 0, ErrBlockOverflow
	}
	var payload bytes.Buffer
	fw, err := flate.NewWriter(&payload, level)
	if err != nil {
		return 0, err
	}
	if _, err := fw.Write(data); err != nil {
		return 0, err
	}
	if err := fw.Close(); err != nil {
		return 0, err
	}

	bsize := 10 + 2 + 6 + payload.Len() + 8 - 1
	var buf bytes.Buffer
	buf.Grow(bsize + 1)
	buf.Write([]byte{0x1f, 0x8b, 0x08, 0x04, 0, 0, 0, 0, 0, 0xff})
	binary.Write(&buf, binary.LittleEndian, uint16(6))
	buf.Write([]byte{'B', 'C', 2, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(bsize))
	buf.Write(payload.Bytes())
	binary.Write(&buf, binary.LittleEndian, crc32.ChecksumIEEE(data))
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))

	return w.Write(buf.Bytes())
}

// blockHeader is the parsed form of a BGZF block's 18-byte fixed header
// plus BC extra subfield.
type blockHeader struct {
	bsize int // total compressed block size, header through ISIZE inclusive.
}

// readBlockHeader reads and validates the 18-byte header common to every
// BGZF block: the gzip member header followed by the BC extra subfield,
// whose BSIZE value is returned as bsize.
func readBlockHeader(r io.Reader) (blockHeader, error) {
	var h [18]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return blockHeader{}, err
	}
	if h[0] != 0x1f || h[1] != 0x8b || h[2] != 8 || h[3]&4 == 0 {
		return blockHeader{}, errBadBlockHeader
	}
	xlen := int(h[10]) | int(h[11])<<8
	if xlen < 6 || h[12] != 'B' || h[13] != 'C' {
		return blockHeader{}, errBadBlockHeader
	}
	bsize := int(h[16]) | int(h[17])<<8
	return blockHeader{bsize: bsize + 1}, nil
}

// readBlock reads one full BGZF block from r (which must be positioned at
// a block boundary) and returns its decompressed payload. A block whose
// ISIZE is zero, such as the terminal EOF block, yields a nil payload and
// a nil error.
func readBlock(r io.Reader) ([]byte, error) {
	h, err := readBlockHeader(r)
	if err != nil {
		return nil, err
	}
	rest := make([]byte, h.bsize-18)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	cdataLen := len(rest) - 8
	if cdataLen < 0 {
		return nil, errBadBlockHeader
	}
	cdata := rest[:cdataLen]
	isize := binary.LittleEndian.Uint32(rest[cdataLen+4:])
	if isize == 0 {
		return nil, nil
	}
	fr := flate.NewReader(bytes.NewReader(cdata))
	defer fr.Close()
	out := make([]byte, isize)
	if _, err := io.ReadFull(fr, out); err != nil {
		return nil, err
	}
	return out, nil
}
