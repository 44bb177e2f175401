// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

import "testing"

func TestLRUGetSet(t *testing.T) {
	c := New[string, int](4)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get() on empty cache should miss")
	}

	c.Set("a", 1)
	c.Set("b", 2)
	if got, ok := c.Get("a"); !ok || got != 1 {
		t.Errorf("Get(a) = %d, %v, want 1, true", got, ok)
	}
	if got := c.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}

	// Overwrite keeps one entry.
	c.Set("a", 10)
	if got, _ := c.Get("a"); got != 10 {
		t.Errorf("Get(a) after overwrite = %d, want 10", got)
	}
	if got := c.Len(); got != 2 {
		t.Errorf("Len() = %d after overwrite, want 2", got)
	}
}

func TestLRUEviction(t *testing.T) {
	c := New[int, string](2)
	c.Set(1, "one")
	c.Set(2, "two")

	// Touch 1 so 2 becomes the eviction victim.
	c.Get(1)
	c.Set(3, "three")

	if _, ok := c.Get(2); ok {
		t.Error("least recently used entry should have been evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("recently used entry should survive eviction")
	}
	if _, ok := c.Get(3); !ok {
		t.Error("new entry should be present")
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestLRUDelete(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)

	if !c.Delete("a") {
		t.Error("Delete(a) = false, want true")
	}
	if c.Delete("a") {
		t.Error("second Delete(a) = true, want false")
	}
	if got := c.Len(); got != 0 {
		t.Errorf("Len() = %d after delete, want 0", got)
	}
}

func TestLRUClear(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	if got := c.Len(); got != 0 {
		t.Errorf("Len() = %d after clear, want 0", got)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("Get() after Clear should miss")
	}
}

func TestLRUStats(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("nope")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("Stats() = %d hits %d misses, want 2 and 1", s.Hits, s.Misses)
	}
	if want := 2.0 / 3.0; s.HitRate != want {
		t.Errorf("HitRate = %v, want %v", s.HitRate, want)
	}

	c.ResetStats()
	s = c.Stats()
	if s.Hits != 0 || s.Misses != 0 || s.Evictions != 0 {
		t.Errorf("Stats() after reset = %+v, want zeroed counters", s)
	}
}

func TestLRUDefaultCapacity(t *testing.T) {
	c := New[int, int](0)
	if got := c.Capacity(); got != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", got, DefaultCapacity)
	}
}
