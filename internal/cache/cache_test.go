package cache

import (
	"bytes"
	"testing"
)

func TestPutGet(t *testing.T) {
	c := New(4)
	c.Put("url1", []byte("a"))

	data, ok := c.Get("url1")
	if !ok || !bytes.Equal(data, []byte("a")) {
		t.Errorf("got %q, %v", data, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("missing key should not be found")
	}
}

func TestPutReplaces(t *testing.T) {
	c := New(4)
	c.Put("url1", []byte("a"))
	c.Put("url1", []byte("b"))

	data, _ := c.Get("url1")
	if !bytes.Equal(data, []byte("b")) {
		t.Errorf("got %q, want b", data)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}

func TestEvict(t *testing.T) {
	c := New(4)
	c.Put("url1", []byte("a"))

	if !c.Evict("url1") {
		t.Error("Evict should report true for present key")
	}
	if c.Evict("url1") {
		t.Error("Evict should report false for absent key")
	}
	if _, ok := c.Get("url1"); ok {
		t.Error("evicted key still present")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(2)
	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))

	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Put("c", []byte("3"))

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should survive")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}
