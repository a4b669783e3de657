// Copyright ©2014 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bai

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/statgen-go/hts/bgzf"
	"github.com/statgen-go/hts/herr"
)

var baiMagic = [4]byte{'B', 'A', 'I', 0x1}

// ErrBadMagic is returned by ReadFrom when r does not begin with the BAI
// magic bytes.
var ErrBadMagic = errors.New("bai: not a BAI stream")

// ReadFrom deserialises a BAI-format index from r, the binary layout
// described in the SAM specification's indexing section: magic, per
// reference bin/chunk lists, the linear index, and a trailing unplaced read
// count.
func ReadFrom(r io.Reader) (*Index, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, herr.Wrap(herr.IO, "bai.ReadFrom", err)
	}
	if magic != baiMagic {
		return nil, herr.New(herr.Parse, "bai.ReadFrom", ErrBadMagic.Error())
	}

	nRef, err := readI32(r)
	if err != nil {
		return nil, herr.Wrap(herr.IO, "bai.ReadFrom", err)
	}
	ix := &Index{Refs: make([]RefIndex, nRef), IsSorted: true}
	for i := range ix.Refs {
		ref := &ix.Refs[i]
		nBin, err := readI32(r)
		if err != nil {
			return nil, herr.Wrap(herr.IO, "bai.ReadFrom", err)
		}
		ref.Bins = make([]Bin, 0, nBin)
		for b := int32(0); b < nBin; b++ {
			binNum, err := readU32(r)
			if err != nil {
				return nil, herr.Wrap(herr.IO, "bai.ReadFrom", err)
			}
			nChunk, err := readI32(r)
			if err != nil {
				return nil, herr.Wrap(herr.IO, "bai.ReadFrom", err)
			}
			if binNum == StatsDummyBin {
				var m, u uint64
				if m, err = readU64(r); err != nil {
					return nil, herr.Wrap(herr.IO, "bai.ReadFrom", err)
				}
				if u, err = readU64(r); err != nil {
					return nil, herr.Wrap(herr.IO, "bai.ReadFrom", err)
				}
				ref.Stats = &ReferenceStats{Mapped: m, Unmapped: u}
				continue
			}
			chunks := make([]bgzf.Chunk, nChunk)
			for c := range chunks {
				beg, err := readU64(r)
				if err != nil {
					return nil, herr.Wrap(herr.IO, "bai.ReadFrom", err)
				}
				end, err := readU64(r)
				if err != nil {
					return nil, herr.Wrap(herr.IO, "bai.ReadFrom", err)
				}
				chunks[c] = bgzf.Chunk{Begin: voffsetToOffset(beg), End: voffsetToOffset(end)}
			}
			ref.Bins = append(ref.Bins, Bin{Bin: binNum, Chunks: chunks})
		}
		nIntv, err := readI32(r)
		if err != nil {
			return nil, herr.Wrap(herr.IO, "bai.ReadFrom", err)
		}
		ref.Intervals = make([]bgzf.Offset, nIntv)
		for k := range ref.Intervals {
			v, err := readU64(r)
			if err != nil {
				return nil, herr.Wrap(herr.IO, "bai.ReadFrom", err)
			}
			ref.Intervals[k] = voffsetToOffset(v)
		}
	}

	if n, err := readU64(r); err == nil {
		ix.Unmapped = n
	} else if err != io.EOF {
		return nil, herr.Wrap(herr.IO, "bai.ReadFrom", err)
	}

	return ix, nil
}

// WriteTo serialises ix in BAI format to w.
func (ix *Index) WriteTo(w io.Writer) error {
	ix.sort()
	if _, err := w.Write(baiMagic[:]); err != nil {
		return herr.Wrap(herr.IO, "bai.WriteTo", err)
	}
	if err := writeI32(w, int32(len(ix.Refs))); err != nil {
		return err
	}
	for _, ref := range ix.Refs {
		n := len(ref.Bins)
		if ref.Stats != nil {
			n++
		}
		if err := writeI32(w, int32(n)); err != nil {
			return err
		}
		for _, bin := range ref.Bins {
			if err := writeU32(w, bin.Bin); err != nil {
				return err
			}
			if err := writeI32(w, int32(len(bin.Chunks))); err != nil {
				return err
			}
			for _, c := range bin.Chunks {
				if err := writeU64(w, offsetToVOffset(c.Begin)); err != nil {
					return err
				}
				if err := writeU64(w, offsetToVOffset(c.End)); err != nil {
					return err
				}
			}
		}
		if ref.Stats != nil {
			if err := writeU32(w, StatsDummyBin); err != nil {
				return err
			}
			if err := writeI32(w, 2); err != nil {
				return err
			}
			if err := writeU64(w, ref.Stats.Mapped); err != nil {
				return err
			}
			if err := writeU64(w, ref.Stats.Unmapped); err != nil {
				return err
			}
		}
		if err := writeI32(w, int32(len(ref.Intervals))); err != nil {
			return err
		}
		for _, o := range ref.Intervals {
			if err := writeU64(w, offsetToVOffset(o)); err != nil {
				return err
			}
		}
	}
	if err := writeU64(w, ix.Unmapped); err != nil {
		return err
	}
	return nil
}

func voffsetToOffset(v uint64) bgzf.Offset {
	return bgzf.Offset{File: int64(v >> 16), Block: uint16(v)}
}

func offsetToVOffset(o bgzf.Offset) uint64 {
	return uint64(o.File)<<16 | uint64(o.Block)
}

func readI32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeI32(w io.Writer, v int32) error { return writeU32(w, uint32(v)) }

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	if err != nil {
		return herr.Wrap(herr.IO, "bai.WriteTo", err)
	}
	return nil
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	if err != nil {
		return herr.Wrap(herr.IO, "bai.WriteTo", err)
	}
	return nil
}
