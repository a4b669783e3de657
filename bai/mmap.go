// Copyright ©2014 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bai

import (
	"io"

	"golang.org/x/exp/mmap"
)

// OpenMapped loads the BAI index at path via a memory mapping rather than a
// buffered read, avoiding a full copy for large indexes built against
// genomes with many small contigs.
func OpenMapped(path string) (*Index, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	sr := io.NewSectionReader(r, 0, int64(r.Len()))
	return ReadFrom(sr)
}
