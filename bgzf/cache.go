// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bgzf

// Block holds one BGZF block's decompressed payload together with the
// compressed file offset it was read from, the cache unit Reader uses.
type Block struct {
	// Base is the compressed byte offset of the block within the
	// underlying stream.
	Base int64

	// Size is the compressed size of the block, used to compute the
	// offset of the following block.
	Size int

	// Data is the decompressed payload.
	Data []byte
}

// Cache is a Block caching type, consulted by Reader before decompressing
// a block and populated with every block Reader decompresses. Basic cache
// implementations are provided in the cache subpackage.
type Cache interface {
	// Get returns the Block with the given base offset and true, or a
	// zero Block and false if the base is not cached.
	Get(base int64) (Block, bool)

	// Put inserts blk into the cache.
	Put(blk Block)
}
