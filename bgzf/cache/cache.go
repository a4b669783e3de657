// Copyright ©2015 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cache provides a basic block cache for the bgzf package.
package cache

import (
	"container/list"
	"sync"

	"github.com/statgen-go/hts/bgzf"
)

// Cache is an extension of bgzf.Cache that allows inspection and resizing.
type Cache interface {
	bgzf.Cache

	// Len returns the number of blocks held by the cache.
	Len() int

	// Cap returns the maximum number of blocks the cache will hold.
	Cap() int

	// Resize changes the capacity of the cache to n, evicting blocks if
	// n is less than the number of cached blocks.
	Resize(n int)
}

// NewLRU returns a least-recently-used bgzf.Block cache with n slots. If n
// is less than 1, a nil Cache is returned, which callers should treat as
// "no cache".
func NewLRU(n int) Cache {
	if n < 1 {
		return nil
	}
	return &lru{
		cap:   n,
		table: make(map[int64]*list.Element, n),
		order: list.New(),
	}
}

type lru struct {
	mu    sync.Mutex
	cap   int
	table map[int64]*list.Element
	order *list.List // front = most recently used
}

func (c *lru) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *lru) Cap() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cap
}

func (c *lru) Resize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cap = n
	for c.order.Len() > c.cap {
		c.evictOldest()
	}
}

func (c *lru) evictOldest() {
	e := c.order.Back()
	if e == nil {
		return
	}
	c.order.Remove(e)
	delete(c.table, e.Value.(bgzf.Block).Base)
}

func (c *lru) Get(base int64) (bgzf.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.table[base]
	if !ok {
		return bgzf.Block{}, false
	}
	c.order.MoveToFront(e)
	return e.Value.(bgzf.Block), true
}

func (c *lru) Put(blk bgzf.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.table[blk.Base]; ok {
		e.Value = blk
		c.order.MoveToFront(e)
		return
	}
	if c.order.Len() >= c.cap {
		c.evictOldest()
	}
	c.table[blk.Base] = c.order.PushFront(blk)
}
