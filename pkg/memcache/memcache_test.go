package memcache

import (
	"testing"
	"time"
)

func TestSetGetHas(t *testing.T) {
	c := New[string]()
	if c.Has("a") {
		t.Fatal("Has on empty cache returned true")
	}
	c.Set("a", "value-a", 0)
	if !c.Has("a") {
		t.Fatal("Has after Set returned false")
	}
	v, ok := c.Get("a")
	if !ok || v != "value-a" {
		t.Fatalf("Get = %q, %v; want value-a, true", v, ok)
	}
}

func TestExpiryLazilyEvicted(t *testing.T) {
	c := New[int]()
	c.Set("k", 42, 1*time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if c.Has("k") {
		t.Fatal("expired entry still present via Has")
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry still returned by Get")
	}
}

func TestEntriesSkipsExpired(t *testing.T) {
	c := New[int]()
	c.Set("live", 1, 0)
	c.Set("dead", 2, 1*time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	entries := c.Entries()
	if _, ok := entries["dead"]; ok {
		t.Fatal("Entries included expired key")
	}
	if entries["live"] != 1 {
		t.Fatalf("Entries[live] = %d, want 1", entries["live"])
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := New[int]()
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Delete("a")
	if c.Has("a") {
		t.Fatal("Has true after Delete")
	}
	if c.Size() != 1 {
		t.Fatalf("Size = %d, want 1", c.Size())
	}
	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("Size after Clear = %d, want 0", c.Size())
	}
}
