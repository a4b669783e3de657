// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package herr defines the typed error kinds shared by the sam, bam, bai,
// htsfile, overlap, panel and verify packages and the per-handle policy
// for reacting to them.
package herr

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Kind classifies the cause of a non-success outcome raised anywhere in the
// module. Callers switch on Kind rather than matching error strings.
type Kind int

const (
	// IO covers failures from the underlying io.Reader/io.Writer/io.Seeker,
	// including short reads and unexpected EOF mid-record.
	IO Kind = iota
	// Parse covers malformed SAM text, BAM wire data or BAI wire data that
	// cannot be decoded at all.
	Parse
	// Order covers API misuse: an operation called on a handle whose state
	// does not permit it, such as reading from a handle not open for reading.
	Order
	// InvalidSort covers a header declaring a sort order the stream does
	// not actually hold, detected once enough records have been seen.
	InvalidSort
	// Invalid covers a semantically invalid but well-formed value, such as
	// a CIGAR whose lengths disagree with the sequence length.
	Invalid
	// NoMoreRecs is returned by iteration once the stream, or the region
	// of it the caller selected, is exhausted. It is the module's analogue
	// of io.EOF and is never fatal.
	NoMoreRecs
	// Mem covers allocation or capacity failures, such as a record or
	// block exceeding a configured size ceiling.
	Mem
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "io"
	case Parse:
		return "parse"
	case Order:
		return "order"
	case InvalidSort:
		return "invalid sort"
	case Invalid:
		return "invalid"
	case NoMoreRecs:
		return "no more records"
	case Mem:
		return "memory"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every package in this module
// for a non-success outcome other than clean end of iteration, which is
// reported as a NoMoreRecs Error so it can still be inspected with Is.
type Error struct {
	kind  Kind
	where string
	cause error
}

// New constructs an Error of the given kind, formatting msg/args with
// fmt.Sprintf and attaching a stack trace via github.com/pkg/errors.
func New(kind Kind, where, msg string, args ...interface{}) *Error {
	return &Error{
		kind:  kind,
		where: where,
		cause: errors.New(fmt.Sprintf(msg, args...)),
	}
}

// Wrap attaches kind and where to an existing error, preserving it as the
// Cause. If err is nil, Wrap returns nil; if err is already an *Error, it
// is returned unchanged, keeping its own kind and where.
func Wrap(kind Kind, where string, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{kind: kind, where: where, cause: errors.WithStack(err)}
}

func (e *Error) Error() string {
	if e.where == "" {
		return fmt.Sprintf("%s: %v", e.kind, e.cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.where, e.kind, e.cause)
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// Cause returns the underlying error, satisfying the convention used by
// github.com/pkg/errors.
func (e *Error) Cause() error { return e.cause }

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// IsEOF reports whether err is a NoMoreRecs Error, the module's analogue of
// io.EOF.
func IsEOF(err error) bool {
	e, ok := err.(*Error)
	return ok && e.kind == NoMoreRecs
}

// Mode controls how a handle reacts to a non-success outcome raised while
// it is open. It is set once at construction via a With*Mode functional
// option and applies uniformly to every operation on that handle.
type Mode int

const (
	// ModeReturn returns the *Error to the caller, the default.
	ModeReturn Mode = iota
	// ModeAbort logs the error and terminates the process. It exists for
	// driver programs that have no sensible recovery path; library code
	// should not set it for a caller.
	ModeAbort
	// ModeThrow panics with the *Error so a deferred recover can convert
	// it back into a returned error at a chosen boundary.
	ModeThrow
)

// Handle dispatches err according to mode. It returns err unchanged under
// ModeReturn (including a nil err), never returns under ModeAbort, and
// panics under ModeThrow if err is non-nil.
func Handle(mode Mode, err error) error {
	if err == nil {
		return nil
	}
	switch mode {
	case ModeAbort:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
		panic("unreachable")
	case ModeThrow:
		panic(err)
	default:
		return err
	}
}

// Counter tracks how many times each Kind has been raised on a handle,
// mirroring the original implementation's per-file error-count status.
type Counter struct {
	counts [Mem + 1]int64
}

// Add records one occurrence of kind.
func (c *Counter) Add(kind Kind) {
	if int(kind) >= 0 && int(kind) < len(c.counts) {
		c.counts[kind]++
	}
}

// Count returns the number of times kind has been recorded.
func (c *Counter) Count(kind Kind) int64 {
	if int(kind) < 0 || int(kind) >= len(c.counts) {
		return 0
	}
	return c.counts[kind]
}

// Total returns the number of times any kind has been recorded.
func (c *Counter) Total() int64 {
	var n int64
	for _, v := range c.counts {
		n += v
	}
	return n
}

// Observe records err's kind, if err is a non-nil *Error, and returns err
// unchanged so it can be used inline: return nil, c.Observe(err).
func (c *Counter) Observe(err error) error {
	if e, ok := err.(*Error); ok && e != nil {
		c.Add(e.kind)
	}
	return err
}
