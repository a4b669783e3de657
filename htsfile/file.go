// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package htsfile presents a single handle over a SAM or BAM stream,
// choosing the wire codec at open time and tracking the state needed to
// validate declared sort order and to answer indexed region queries.
package htsfile

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/statgen-go/hts/bam"
	"github.com/statgen-go/hts/bgzf"
	"github.com/statgen-go/hts/herr"
	"github.com/statgen-go/hts/sam"
)

// Codec selects the wire format a File reads or writes.
type Codec int

const (
	// AutoCodec detects BAM by magic number, falling back to SAM.
	AutoCodec Codec = iota
	SAM
	BAM
)

// SortMode controls how Read validates the order of the records it returns.
type SortMode int

const (
	// SortUnsorted performs no order validation.
	SortUnsorted SortMode = iota
	// SortFromHeader resolves to SortQueryName or SortCoordinate from the
	// stream's @HD SO tag the first time it is consulted, or behaves as
	// SortUnsorted if the header declares neither.
	SortFromHeader
	SortQueryName
	SortCoordinate
)

// state is the File's position in the open/read/write lifecycle.
type state int

const (
	closed state = iota
	openRead
	openWrite
)

// Options configures a File at construction time. The zero value is the
// default: AutoCodec, SortUnsorted, ModeReturn.
type Options struct {
	codec    Codec
	sortMode SortMode
	errMode  herr.Mode
	wc       int // passed as rd/wc to bam.NewReader/NewWriter.
}

// Option configures an Options value.
type Option func(*Options)

// WithCodec forces c rather than detecting it from the stream or filename.
func WithCodec(c Codec) Option { return func(o *Options) { o.codec = c } }

// WithSortMode selects the order Read validates records against.
func WithSortMode(m SortMode) Option { return func(o *Options) { o.sortMode = m } }

// WithErrorMode selects how a raised herr.Error is dispatched: returned to
// the caller (the default), logged-and-exit, or panicked for a deferred
// recover at a caller-chosen boundary.
func WithErrorMode(m herr.Mode) Option { return func(o *Options) { o.errMode = m } }

// WithConcurrency sets the value passed as rd/wc to bam.NewReader and
// bam.NewWriter; the underlying bgzf reader and writer are single-threaded
// whatever its value.
func WithConcurrency(n int) Option { return func(o *Options) { o.wc = n } }

func newOptions(opts []Option) Options {
	var o Options
	for _, fn := range opts {
		fn(&o)
	}
	if o.wc == 0 {
		o.wc = 1
	}
	return o
}

// section holds the cursor for an indexed region read set by SetReadSection.
type section struct {
	refID     int
	start     int
	end       int
	chunks    []bgzf.Chunk
	chunkIdx  int
	needChunk bool
}

// File is a single read or write handle over a SAM or BAM stream.
type File struct {
	opts Options

	st state

	samR *sam.Reader
	samW *sam.Writer
	bamR *bam.Reader
	bamW *bam.Writer
	idx  *bam.Index

	closer io.Closer

	section *section

	counter herr.Counter
	fatal   error

	sortResolved  SortMode
	sortResolving bool
	havePrev      bool
	prevName      string
	prevRef       int
	prevPos       int
}

// Open opens name for reading, choosing the codec from opts, the filename
// suffix, or the stream's magic bytes, in that order. The pseudo-filenames
// "-", "-.sam" and "-.ubam" read from os.Stdin; "-.bam" forces BAM from
// stdin, since stdin's extension carries no information the stream itself
// doesn't already have.
func Open(name string, opts ...Option) (*File, error) {
	o := newOptions(opts)
	var (
		r      io.Reader
		closer io.Closer
	)
	if name == "-" || name == "-.sam" || name == "-.ubam" {
		r = os.Stdin
	} else if name == "-.bam" {
		r, o.codec = os.Stdin, BAM
	} else {
		f, err := os.Open(name)
		if err != nil {
			return nil, herr.Wrap(herr.IO, "htsfile.Open", err)
		}
		r, closer = f, f
		if o.codec == AutoCodec {
			if strings.HasSuffix(name, ".bam") {
				o.codec = BAM
			} else if strings.HasSuffix(name, ".sam") {
				o.codec = SAM
			}
		}
	}
	return OpenReader(r, closer, o.codec, opts...)
}

// OpenReader opens an already-open stream for reading. closer, if non-nil,
// is invoked by Close after the underlying codec reader is closed. codec may
// be AutoCodec to detect BAM by its BGZF magic, falling back to SAM.
func OpenReader(r io.Reader, closer io.Closer, codec Codec, opts ...Option) (*File, error) {
	o := newOptions(opts)
	o.codec = codec
	f := &File{opts: o, st: openRead, closer: closer, prevRef: -100, prevPos: -100}

	if o.codec == AutoCodec {
		peeked, buffered, err := peekBuffered(r)
		if err != nil {
			return nil, herr.Wrap(herr.IO, "htsfile.OpenReader", err)
		}
		if len(peeked) >= 2 && peeked[0] == 0x1f && peeked[1] == 0x8b {
			o.codec = BAM
		} else {
			o.codec = SAM
		}
		r = buffered
	}

	switch o.codec {
	case BAM:
		br, err := bam.NewReader(r, o.wc)
		if err != nil {
			return nil, herr.Wrap(herr.Parse, "htsfile.OpenReader", err)
		}
		f.bamR = br
	default:
		sr, err := sam.NewReader(r)
		if err != nil {
			return nil, herr.Wrap(herr.Parse, "htsfile.OpenReader", err)
		}
		f.samR = sr
	}
	f.opts = o
	return f, nil
}

// peekBuffered reads up to 4 bytes from r for magic-number sniffing and
// returns a reader that replays them ahead of the rest of r's stream.
func peekBuffered(r io.Reader) ([]byte, io.Reader, error) {
	buf := make([]byte, 4)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, nil, err
	}
	buf = buf[:n]
	return buf, io.MultiReader(bytes.NewReader(buf), r), nil
}

// Create opens name for writing h as a header, choosing the codec the same
// way Open does. The pseudo-filenames "-", "-.sam" and "-.bam" write to
// os.Stdout, the latter forcing BAM.
func Create(name string, h *sam.Header, opts ...Option) (*File, error) {
	o := newOptions(opts)
	var (
		w      io.Writer
		closer io.Closer
	)
	switch name {
	case "-", "-.sam":
		w = os.Stdout
		if o.codec == AutoCodec {
			o.codec = SAM
		}
	case "-.bam":
		w, o.codec = os.Stdout, BAM
	default:
		f, err := os.Create(name)
		if err != nil {
			return nil, herr.Wrap(herr.IO, "htsfile.Create", err)
		}
		w, closer = f, f
		if o.codec == AutoCodec && strings.HasSuffix(name, ".bam") {
			o.codec = BAM
		} else if o.codec == AutoCodec && strings.HasSuffix(name, ".sam") {
			o.codec = SAM
		}
	}
	return CreateWriter(w, closer, h, o.codec, opts...)
}

// CreateWriter opens an already-open stream for writing, the Create
// counterpart of OpenReader.
func CreateWriter(w io.Writer, closer io.Closer, h *sam.Header, codec Codec, opts ...Option) (*File, error) {
	o := newOptions(opts)
	if codec == AutoCodec {
		codec = BAM
	}
	o.codec = codec
	f := &File{opts: o, st: openWrite, closer: closer}
	switch codec {
	case SAM:
		sw, err := sam.NewWriter(w, h, sam.FlagDecimal)
		if err != nil {
			return nil, herr.Wrap(herr.IO, "htsfile.CreateWriter", err)
		}
		f.samW = sw
	default:
		bw, err := bam.NewWriter(w, h, o.wc)
		if err != nil {
			return nil, herr.Wrap(herr.IO, "htsfile.CreateWriter", err)
		}
		f.bamW = bw
	}
	return f, nil
}

// SetIndex attaches idx so SetReadSection can answer region queries. idx is
// stored whatever the File's mode; only SetReadSection on a File reading BAM
// uses it.
func (f *File) SetIndex(idx *bam.Index) { f.idx = idx }

// Header returns the header governing the stream.
func (f *File) Header() *sam.Header {
	switch {
	case f.bamR != nil:
		return f.bamR.Header()
	case f.samR != nil:
		return f.samR.Header()
	}
	return nil
}

// Status reports the cumulative counts, by kind, of the errors raised by
// any operation on this handle, fatal ones included, and whether a fatal
// error has stopped it.
type Status struct {
	Counts map[string]int64
	Failed bool
}

// Status returns a snapshot of f's error counters.
func (f *File) Status() Status {
	s := Status{Counts: make(map[string]int64)}
	for _, k := range []herr.Kind{herr.IO, herr.Parse, herr.Order, herr.InvalidSort, herr.Invalid, herr.NoMoreRecs, herr.Mem} {
		if n := f.counter.Count(k); n != 0 {
			s.Counts[k.String()] = n
		}
	}
	s.Failed = f.fatal != nil
	return s
}

// observe records err's kind (if it is a *herr.Error) and dispatches it per
// f's configured error Mode before returning it to the caller.
func (f *File) observe(err error) error {
	f.counter.Observe(err)
	return herr.Handle(f.opts.errMode, err)
}

// SetReadSection restricts subsequent Read calls to records overlapping
// [start, end) on the named reference, using idx (see SetIndex) to locate
// the covering BGZF chunks. start and end of -1 mean the whole reference.
// It resets the sort-order trackers, since a seek breaks monotonicity
// guarantees that applied only to forward iteration.
func (f *File) SetReadSection(name string, start, end int) error {
	if f.st != openRead || f.bamR == nil || f.idx == nil {
		return f.observe(herr.New(herr.Order, "htsfile.SetReadSection", "not an indexed open BAM read handle"))
	}
	var ref *sam.Reference
	for _, r := range f.Header().Refs() {
		if r.Name() == name {
			ref = r
			break
		}
	}
	if ref == nil {
		return f.observe(herr.New(herr.Invalid, "htsfile.SetReadSection", "unknown reference %q", name))
	}
	chunks, err := f.idx.Chunks(ref, start, end)
	if err != nil {
		return f.observe(herr.Wrap(herr.IO, "htsfile.SetReadSection", err))
	}
	f.section = &section{refID: ref.ID(), start: start, end: end, chunks: chunks, needChunk: true}
	f.resetSortTrackers()
	f.fatal = nil
	return nil
}

// ClearReadSection returns the File to unrestricted forward iteration.
func (f *File) ClearReadSection() {
	f.section = nil
	f.resetSortTrackers()
}

func (f *File) resetSortTrackers() {
	f.havePrev = false
	f.sortResolving = false
	f.sortResolved = SortUnsorted
}

// Read returns the next record, applying any region restriction set by
// SetReadSection and validating it against the configured SortMode. A
// record that violates the declared order is still returned, paired with
// an InvalidSort error, since the caller may still want to process it.
func (f *File) Read() (*sam.Record, error) {
	if f.st != openRead {
		return nil, f.observe(herr.New(herr.Order, "htsfile.Read", "file not open for reading"))
	}
	if f.fatal != nil {
		return nil, f.fatal
	}
	var (
		rec *sam.Record
		err error
	)
	if f.section != nil {
		rec, err = f.readSection()
	} else {
		rec, err = f.readForward()
	}
	if err != nil {
		if e, ok := err.(*herr.Error); ok && (e.Kind() == herr.IO || e.Kind() == herr.Mem) {
			f.fatal = err
		}
		return nil, f.observe(err)
	}
	if sortErr := f.validateSort(rec); sortErr != nil {
		return rec, f.observe(sortErr)
	}
	return rec, nil
}

func (f *File) readForward() (*sam.Record, error) {
	var (
		rec *sam.Record
		err error
	)
	if f.bamR != nil {
		rec, err = f.bamR.Read()
	} else {
		rec, err = f.samR.Read()
	}
	if err == io.EOF {
		return nil, herr.New(herr.NoMoreRecs, "htsfile.Read", "end of stream")
	}
	if err != nil {
		if _, ok := err.(*herr.Error); ok {
			return nil, err
		}
		return nil, herr.Wrap(herr.Parse, "htsfile.Read", err)
	}
	return rec, nil
}

// readSection steps through f.section's chunk list, seeking to the next
// chunk's start whenever the current one is exhausted, skipping records
// that land on the wrong reference or before start, and stopping once a
// record's position reaches end. It never consults f.samR: sections are
// only meaningful against an indexed BAM stream.
func (f *File) readSection() (*sam.Record, error) {
	sec := f.section
	for {
		if sec.needChunk {
			if sec.chunkIdx >= len(sec.chunks) {
				return nil, herr.New(herr.NoMoreRecs, "htsfile.Read", "end of region")
			}
			c := sec.chunks[sec.chunkIdx]
			sec.chunkIdx++
			sec.needChunk = false
			if err := f.bamR.SetChunk(&c); err != nil {
				return nil, herr.Wrap(herr.IO, "htsfile.Read", err)
			}
		}
		rec, err := f.bamR.Read()
		if err == io.EOF {
			sec.needChunk = true
			continue
		}
		if err != nil {
			if _, ok := err.(*herr.Error); ok {
				return nil, err
			}
			return nil, herr.Wrap(herr.Parse, "htsfile.Read", err)
		}
		if rec.RefID() != sec.refID {
			return nil, herr.New(herr.NoMoreRecs, "htsfile.Read", "reference changed")
		}
		if sec.start != -1 && rec.End() <= sec.start {
			continue
		}
		if sec.end != -1 && rec.Pos >= sec.end {
			return nil, herr.New(herr.NoMoreRecs, "htsfile.Read", "past region end")
		}
		return rec, nil
	}
}

// NumOverlaps counts the bases of rec that fall within the region most
// recently set by SetReadSection.
func (f *File) NumOverlaps(rec *sam.Record) (int, error) {
	if f.section == nil {
		return 0, f.observe(herr.New(herr.Order, "htsfile.NumOverlaps", "no read section set"))
	}
	return rec.Cigar.NumOverlaps(f.section.start, f.section.end, rec.Pos), nil
}

// resolvedSortMode returns the effective SortMode, resolving SortFromHeader
// against the stream's @HD SO tag on first use.
func (f *File) resolvedSortMode() SortMode {
	if f.opts.sortMode != SortFromHeader {
		return f.opts.sortMode
	}
	if !f.sortResolving {
		f.sortResolving = true
		switch f.Header().SortOrder {
		case sam.QueryName:
			f.sortResolved = SortQueryName
		case sam.Coordinate:
			f.sortResolved = SortCoordinate
		default:
			f.sortResolved = SortUnsorted
		}
	}
	return f.sortResolved
}

// validateSort checks rec against the trailing record last seen, per the
// resolved SortMode, and advances the trackers regardless of the outcome so
// a single violation does not mask later ones.
func (f *File) validateSort(rec *sam.Record) error {
	mode := f.resolvedSortMode()
	switch mode {
	case SortQueryName:
		var bad bool
		if f.havePrev && rec.Name < f.prevName {
			bad = true
		}
		f.havePrev = true
		f.prevName = rec.Name
		if bad {
			return herr.New(herr.InvalidSort, "htsfile.Read", "queryname order violated at %q", rec.Name)
		}
	case SortCoordinate:
		ref, pos := rec.RefID(), rec.Pos
		var bad bool
		if f.havePrev {
			switch {
			case f.prevRef == -1 && ref != -1:
				bad = true
			case f.prevRef != -1 && ref == -1:
				// Transition into the unmapped tail is always in order.
			case ref < f.prevRef:
				bad = true
			case ref == f.prevRef && pos < f.prevPos:
				bad = true
			}
		}
		f.havePrev = true
		f.prevRef, f.prevPos = ref, pos
		if bad {
			return herr.New(herr.InvalidSort, "htsfile.Read", "coordinate order violated at ref %d pos %d", ref, pos)
		}
	}
	return nil
}

// Write writes rec to the stream.
func (f *File) Write(rec *sam.Record) error {
	if f.st != openWrite {
		return f.observe(herr.New(herr.Order, "htsfile.Write", "file not open for writing"))
	}
	var err error
	if f.bamW != nil {
		err = f.bamW.Write(rec)
	} else {
		err = f.samW.Write(rec)
	}
	if err != nil {
		return f.observe(herr.Wrap(herr.IO, "htsfile.Write", err))
	}
	return nil
}

// Close flushes and closes the underlying codec writer, if any, then closes
// the stream passed at construction.
func (f *File) Close() error {
	var err error
	if f.bamW != nil {
		err = f.bamW.Close()
	}
	if f.bamR != nil {
		err = f.bamR.Close()
	}
	if f.closer != nil {
		if cerr := f.closer.Close(); err == nil {
			err = cerr
		}
	}
	f.st = closed
	if err != nil {
		return f.observe(herr.Wrap(herr.IO, "htsfile.Close", err))
	}
	return nil
}
