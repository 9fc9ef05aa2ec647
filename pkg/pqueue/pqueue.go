// Package pqueue implements the array-backed, reputation-ordered max-heap
// each peer keeps per resource hash (spec §4.2): a priority queue of
// peerIds keyed by a float64 "key" (reputation score), with delete-by-id
// support for the stale/failed-peer eviction the request pipeline needs.
package pqueue

// entry is one slot in the heap array. Index 0 is an unused sentinel
// (the zero entry); siftUp stops at index 1, so its key is never
// compared.
type entry struct {
	key    float64
	peerID string
}

// PQueue is a max-heap of peerIDs ordered by key (reputation). It is not
// safe for concurrent use; callers serialize access the way a Peer
// serializes access to its own chunkIndex.
type PQueue struct {
	heap []entry // heap[0] is the sentinel
	idx  map[string]int
}

// New returns an empty priority queue. heap[0] is a sentinel slot; its
// key is never read since no real entry has an index below 1.
func New() *PQueue {
	return &PQueue{
		heap: []entry{{}},
		idx:  make(map[string]int),
	}
}

// Size returns the number of entries present (excluding the sentinel).
func (q *PQueue) Size() int {
	return len(q.heap) - 1
}

// Contains reports whether peerID currently has an entry.
func (q *PQueue) Contains(peerID string) bool {
	_, ok := q.idx[peerID]
	return ok
}

// Insert adds peerID with the given key, or updates its key if already
// present (mirrors JS-style upsert semantics used by the source system).
func (q *PQueue) Insert(key float64, peerID string) {
	if i, ok := q.idx[peerID]; ok {
		q.UpdateValue(peerID, key)
		_ = i
		return
	}
	q.heap = append(q.heap, entry{key: key, peerID: peerID})
	i := len(q.heap) - 1
	q.idx[peerID] = i
	q.siftUp(i)
}

// UpdateValue changes peerID's key and restores heap order. No-op if
// peerID is not present.
func (q *PQueue) UpdateValue(peerID string, newKey float64) {
	i, ok := q.idx[peerID]
	if !ok {
		return
	}
	old := q.heap[i].key
	q.heap[i].key = newKey
	if newKey > old {
		q.siftUp(i)
	} else if newKey < old {
		q.siftDown(i)
	}
}

// DeletePeer removes peerID from the queue, if present.
func (q *PQueue) DeletePeer(peerID string) {
	i, ok := q.idx[peerID]
	if !ok {
		return
	}
	last := len(q.heap) - 1
	q.swap(i, last)
	q.heap = q.heap[:last]
	delete(q.idx, peerID)
	if i < len(q.heap) {
		q.siftDown(i)
		q.siftUp(i)
	}
}

// PeekMax returns the peerID with the highest key, and whether the
// queue is non-empty.
func (q *PQueue) PeekMax() (string, bool) {
	if q.Size() == 0 {
		return "", false
	}
	return q.heap[1].peerID, true
}

// PeekMaxKey returns the highest key currently present, and whether the
// queue is non-empty.
func (q *PQueue) PeekMaxKey() (float64, bool) {
	if q.Size() == 0 {
		return 0, false
	}
	return q.heap[1].key, true
}

// DeleteMax removes and returns the peerID with the highest key.
func (q *PQueue) DeleteMax() (string, bool) {
	top, ok := q.PeekMax()
	if !ok {
		return "", false
	}
	q.DeletePeer(top)
	return top, true
}

func (q *PQueue) swap(i, j int) {
	q.heap[i], q.heap[j] = q.heap[j], q.heap[i]
	q.idx[q.heap[i].peerID] = i
	q.idx[q.heap[j].peerID] = j
}

func (q *PQueue) siftUp(i int) {
	for i > 1 && q.heap[i/2].key < q.heap[i].key {
		q.swap(i/2, i)
		i = i / 2
	}
}

func (q *PQueue) siftDown(i int) {
	n := len(q.heap) - 1
	for {
		largest := i
		l, r := 2*i, 2*i+1
		if l <= n && q.heap[l].key > q.heap[largest].key {
			largest = l
		}
		if r <= n && q.heap[r].key > q.heap[largest].key {
			largest = r
		}
		if largest == i {
			return
		}
		q.swap(i, largest)
		i = largest
	}
}
