package dataflow

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestBlockCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewBlockCache(100, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a := blockID{dataset: "a"}
	b := blockID{dataset: "b"}
	x := blockID{dataset: "c"}
	c.Set(a, "a", 60)
	time.Sleep(time.Millisecond)
	c.Set(b, "b", 30)
	time.Sleep(time.Millisecond)
	if _, ok := c.Get(a); !ok {
		t.Fatalf("a should be cached")
	}
	time.Sleep(time.Millisecond)
	c.Set(x, "c", 30)
	if _, ok := c.Get(b); ok {
		t.Errorf("b should have been evicted")
	}
	if !c.Has("a", 1) || !c.Has("c", 1) {
		t.Errorf("a and c should be cached")
	}
	if c.TotalMemUsage() != 90 {
		t.Errorf("expected 90 bytes, got %d", c.TotalMemUsage())
	}
}

func TestBlockCacheRemove(t *testing.T) {
	c := NewBlockCache(1000, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.Set(blockID{dataset: "a", partition: 0}, 1, 10)
	c.Set(blockID{dataset: "a", partition: 1}, 2, 10)
	c.Set(blockID{dataset: "b", partition: 0}, 3, 10)
	if !c.Has("a", 2) {
		t.Errorf("a should be fully cached")
	}
	if c.Has("a", 3) {
		t.Errorf("a has only two partitions cached")
	}
	c.Remove("a")
	if c.Has("a", 1) || !c.Has("b", 1) {
		t.Errorf("only a should be removed")
	}
	if c.TotalMemUsage() != 10 {
		t.Errorf("expected 10 bytes, got %d", c.TotalMemUsage())
	}
	c.Clear()
	if c.TotalMemUsage() != 0 || c.Has("b", 1) {
		t.Errorf("cache should be empty")
	}
}
