// This file contains code controlling the block cache, which retains the
// partitions of persisted datasets.

package dataflow

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

type blockID struct {
	dataset   GUID
	partition int
}

type BlockCache struct {
	sync.Mutex
	cache         map[blockID]cacheEntry
	totalMemUsage int
	maxMemUsage   int
	logger        *slog.Logger
}

func NewBlockCache(maxMemUsage int, logger *slog.Logger) *BlockCache {
	return &BlockCache{
		cache:       make(map[blockID]cacheEntry),
		maxMemUsage: maxMemUsage,
		logger:      logger,
	}
}

type cacheEntry struct {
	block     any
	timestamp int64 // The last time this block was accessed
	memUsage  int
}

func (c *BlockCache) Get(id blockID) (any, bool) {
	ts := ourTimestamp()
	c.Lock()
	defer c.Unlock()
	entry, exists := c.cache[id]
	if exists {
		entry.timestamp = ts
		c.cache[id] = entry
		return entry.block, true
	}
	return nil, false
}

// Set puts the block in the cache.
// It also drops old blocks if the total memory usage of cached blocks
// exceeds the limit.
func (c *BlockCache) Set(id blockID, block any, memUsage int) {
	c.Lock()
	defer c.Unlock()
	_, exists := c.cache[id]
	if !exists {
		c.cache[id] = cacheEntry{
			block:     block,
			timestamp: ourTimestamp(),
			memUsage:  memUsage,
		}
		c.totalMemUsage += memUsage
		c.maybeGarbageCollect()
	}
	// Two tasks may compute the same block concurrently. The first copy wins
	// and keeps its timestamp.
}

// Has reports whether all the given partitions of a dataset are cached.
func (c *BlockCache) Has(dataset GUID, numPartitions int) bool {
	c.Lock()
	defer c.Unlock()
	for i := 0; i < numPartitions; i++ {
		if _, ok := c.cache[blockID{dataset: dataset, partition: i}]; !ok {
			return false
		}
	}
	return true
}

// Remove drops every block of a dataset.
func (c *BlockCache) Remove(dataset GUID) {
	c.Lock()
	defer c.Unlock()
	for id, e := range c.cache {
		if id.dataset == dataset {
			delete(c.cache, id)
			c.totalMemUsage -= e.memUsage
		}
	}
}

// Clear the block cache.
func (c *BlockCache) Clear() {
	c.Lock()
	defer c.Unlock()
	c.cache = make(map[blockID]cacheEntry)
	c.totalMemUsage = 0
}

func (c *BlockCache) TotalMemUsage() int {
	c.Lock()
	defer c.Unlock()
	return c.totalMemUsage
}

type blockEvictionItem struct {
	id        blockID
	timestamp int64
	memUsage  int
}

func (c *BlockCache) maybeGarbageCollect() {
	howMuchMemoryToRecycle := c.totalMemUsage - c.maxMemUsage
	if howMuchMemoryToRecycle <= 0 {
		return
	}
	start := ourTimestamp()
	evictionCandidates := make([]blockEvictionItem, 0, len(c.cache))
	for id, e := range c.cache {
		evictionCandidates = append(evictionCandidates, blockEvictionItem{
			id:        id,
			timestamp: e.timestamp,
			memUsage:  e.memUsage,
		})
	}
	sort.Slice(evictionCandidates, func(i, j int) bool {
		return evictionCandidates[i].timestamp < evictionCandidates[j].timestamp
	})

	memEvicted := 0
	itemsEvicted := 0
	for i := 0; i < len(evictionCandidates) && memEvicted < howMuchMemoryToRecycle; i++ {
		id := evictionCandidates[i].id
		delete(c.cache, id)
		memEvicted += evictionCandidates[i].memUsage
		itemsEvicted++
	}
	c.logger.Info("evicted blocks",
		"evicted", itemsEvicted,
		"candidates", len(evictionCandidates),
		"bytes", memEvicted,
		"elapsed", time.Duration(ourTimestamp()-start))
	c.totalMemUsage -= memEvicted
}

func ourTimestamp() int64 {
	// This must be precise
	return time.Now().UnixNano()
}
