package pqueue

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func TestPeekMax_EmptyQueue(t *testing.T) {
	q := New()
	if _, ok := q.PeekMax(); ok {
		t.Fatal("PeekMax on empty queue returned ok=true")
	}
}

func TestInsertDeletePeekMax(t *testing.T) {
	q := New()
	q.Insert(1.0, "a")
	q.Insert(5.0, "b")
	q.Insert(3.0, "c")

	top, ok := q.PeekMax()
	if !ok || top != "b" {
		t.Fatalf("PeekMax = %q, %v; want b, true", top, ok)
	}

	q.DeletePeer("b")
	top, ok = q.PeekMax()
	if !ok || top != "c" {
		t.Fatalf("PeekMax after delete = %q, %v; want c, true", top, ok)
	}
	if q.Size() != 2 {
		t.Fatalf("Size = %d, want 2", q.Size())
	}
}

func TestUpdateValueReordersHeap(t *testing.T) {
	q := New()
	q.Insert(1.0, "a")
	q.Insert(2.0, "b")
	q.UpdateValue("a", 10.0)

	top, _ := q.PeekMax()
	if top != "a" {
		t.Fatalf("PeekMax after promote = %q, want a", top)
	}
}

// TestPeekMaxIsAlwaysGlobalMax is the spec §8 priority-queue property:
// after any sequence of insert/delete, PeekMax returns the peer with the
// numerically largest key among present peers.
func TestPeekMaxIsAlwaysGlobalMax(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := New()
		present := make(map[string]float64)

		ops := rapid.SliceOfN(rapid.IntRange(0, 2), 0, 200).Draw(t, "ops")
		for n, op := range ops {
			id := fmt.Sprintf("peer-%d", n%20)
			switch op {
			case 0: // insert/upsert
				key := rapid.Float64Range(-1000, 1000).Draw(t, "key")
				q.Insert(key, id)
				present[id] = key
			case 1: // delete
				q.DeletePeer(id)
				delete(present, id)
			case 2: // update (only if present)
				if _, ok := present[id]; ok {
					key := rapid.Float64Range(-1000, 1000).Draw(t, "newkey")
					q.UpdateValue(id, key)
					present[id] = key
				}
			}

			wantMax := ""
			wantKey := 0.0
			first := true
			for id, key := range present {
				if first || key > wantKey {
					wantMax, wantKey = id, key
					first = false
				}
			}

			gotMax, ok := q.PeekMax()
			if len(present) == 0 {
				if ok {
					t.Fatalf("PeekMax ok=true on empty model")
				}
				continue
			}
			if !ok {
				t.Fatalf("PeekMax ok=false, model has %d entries", len(present))
			}
			gotKey := findKey(q, gotMax)
			if gotKey != wantKey {
				t.Fatalf("PeekMax key = %v (peer %q), want %v (peer %q)", gotKey, gotMax, wantKey, wantMax)
			}
			if q.Size() != len(present) {
				t.Fatalf("Size = %d, want %d", q.Size(), len(present))
			}
		}
	})
}

func findKey(q *PQueue, peerID string) float64 {
	for _, e := range q.heap[1:] {
		if e.peerID == peerID {
			return e.key
		}
	}
	return 0
}
