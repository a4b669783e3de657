// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package htsfile

import (
	"strings"
	"testing"

	"github.com/statgen-go/hts/herr"
)

const coordinateSortedTwoRef = "" +
	"@HD\tVN:1.5\tSO:coordinate\n" +
	"@SQ\tSN:chr1\tLN:1000\n" +
	"@SQ\tSN:chr2\tLN:1000\n" +
	"r1\t0\tchr2\t10\t40\t10M\t*\t0\t0\tAAAAAAAAAA\tIIIIIIIIII\n" +
	"r2\t0\tchr1\t20\t40\t10M\t*\t0\t0\tAAAAAAAAAA\tIIIIIIIIII\n"

// TestCoordinateSortValidationSurfacesBothRecords checks that a header
// declaring SO:coordinate whose second record's reference ID is smaller
// than the first's yields an InvalidSort error on the second record, while
// still handing the caller that record intact rather than swallowing it.
func TestCoordinateSortValidationSurfacesBothRecords(t *testing.T) {
	f, err := OpenReader(strings.NewReader(coordinateSortedTwoRef), nil, SAM, WithSortMode(SortFromHeader))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rec1, err := f.Read()
	if err != nil {
		t.Fatalf("first Read: %v", err)
	}
	if rec1.Name != "r1" {
		t.Fatalf("first record name = %q, want r1", rec1.Name)
	}

	rec2, err := f.Read()
	if rec2 == nil {
		t.Fatal("second Read returned a nil record alongside its error")
	}
	if rec2.Name != "r2" {
		t.Fatalf("second record name = %q, want r2 (must still be surfaced)", rec2.Name)
	}
	herrErr, ok := err.(*herr.Error)
	if !ok || herrErr.Kind() != herr.InvalidSort {
		t.Fatalf("second Read error = %v, want a herr.InvalidSort error", err)
	}

	status := f.Status()
	if status.Failed {
		t.Error("Status().Failed = true, want false (InvalidSort is recoverable, not fatal)")
	}
	if status.Counts[herr.InvalidSort.String()] != 1 {
		t.Errorf("InvalidSort count = %d, want 1", status.Counts[herr.InvalidSort.String()])
	}
}

const unsortedSingleRef = "" +
	"@HD\tVN:1.5\n" +
	"@SQ\tSN:chr1\tLN:1000\n" +
	"r1\t0\tchr1\t10\t40\t10M\t*\t0\t0\tAAAAAAAAAA\tIIIIIIIIII\n" +
	"r0\t0\tchr1\t5\t40\t10M\t*\t0\t0\tAAAAAAAAAA\tIIIIIIIIII\n"

// TestSortUnsortedPerformsNoValidation checks that SortUnsorted accepts any
// record order without error.
func TestSortUnsortedPerformsNoValidation(t *testing.T) {
	f, err := OpenReader(strings.NewReader(unsortedSingleRef), nil, SAM, WithSortMode(SortUnsorted))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	if _, err := f.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := f.Read(); err != nil {
		t.Fatalf("second Read (out of coordinate order): %v", err)
	}
	if _, err := f.Read(); !herr.IsEOF(err) {
		t.Fatalf("third Read err = %v, want NoMoreRecs", err)
	}
}
