package zone

import "container/heap"

// gcHeapItem pins a Zone to the invalid-capacity score it was scored
// with at insertion time, so the heap invariant holds even though the
// zone's own InvalidCapacity() keeps moving as appends and invalidations
// land concurrently. Callers re-score and re-push after acting on a
// popped victim if they want it considered again.
type gcHeapItem struct {
	zone  *Zone
	score int64
}

// gcHeap is a max-heap over gcHeapItem.score, mirroring ZenFS's
// GCVictimZone comparator: the zone with the most invalid bytes is the
// best cleaning candidate because reclaiming it recovers the most space
// per zone reset.
type gcHeap []*gcHeapItem

func (h gcHeap) Len() int            { return len(h) }
func (h gcHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h gcHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *gcHeap) Push(x interface{}) { *h = append(*h, x.(*gcHeapItem)) }
func (h *gcHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// GCVictimQueue orders full zones by how much invalid capacity the
// cleaner would recover by resetting them.
type GCVictimQueue struct {
	h gcHeap
}

// NewGCVictimQueue builds a queue from candidates, scoring each by its
// InvalidCapacity() at construction time. Zones with zero invalid
// capacity are filtered out: resetting them would recover nothing, the
// same way the teacher's minHeap construction drops already-exhausted
// iterators before heap.Init (iterator/heap.go).
func NewGCVictimQueue(candidates []*Zone) *GCVictimQueue {
	h := make(gcHeap, 0, len(candidates))
	for _, z := range candidates {
		if score := z.InvalidCapacity(); score > 0 {
			h = append(h, &gcHeapItem{zone: z, score: score})
		}
	}
	heap.Init(&h)
	return &GCVictimQueue{h: h}
}

// Len reports how many candidate zones remain in the queue.
func (q *GCVictimQueue) Len() int { return q.h.Len() }

// PopVictim removes and returns the zone with the most invalid capacity,
// or nil if the queue is empty.
func (q *GCVictimQueue) PopVictim() *Zone {
	if q.h.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.h).(*gcHeapItem)
	return item.zone
}

// allocHeapItem scores a candidate zone for cleaner-side allocation.
type allocHeapItem struct {
	zone    *Zone
	valid   int64
	invalid int64
}

// allocHeap is ZenFS's allocate_queue: ordered by valid bytes ascending
// so the cleaner reuses the emptiest zones first, ties broken by
// invalid bytes descending so a zone already full of garbage is
// preferred over one that is merely sparse.
type allocHeap []*allocHeapItem

func (h allocHeap) Len() int { return len(h) }
func (h allocHeap) Less(i, j int) bool {
	if h[i].valid != h[j].valid {
		return h[i].valid < h[j].valid
	}
	return h[i].invalid > h[j].invalid
}
func (h allocHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *allocHeap) Push(x interface{}) { *h = append(*h, x.(*allocHeapItem)) }
func (h *allocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// AllocateQueue is ZenFS's allocate_queue: candidate empty-or-sparse
// zones for the cleaner to reuse, ordered by least live data first.
type AllocateQueue struct {
	h allocHeap
}

// NewAllocateQueue builds a queue from candidates, scoring each by its
// current valid/invalid capacity at construction time.
func NewAllocateQueue(candidates []*Zone) *AllocateQueue {
	h := make(allocHeap, 0, len(candidates))
	for _, z := range candidates {
		h = append(h, &allocHeapItem{zone: z, valid: z.UsedCapacity(), invalid: z.InvalidCapacity()})
	}
	heap.Init(&h)
	return &AllocateQueue{h: h}
}

// Len reports how many candidate zones remain in the queue.
func (q *AllocateQueue) Len() int { return q.h.Len() }

// PopNext removes and returns the best cleaner-allocation candidate, or
// nil if the queue is empty.
func (q *AllocateQueue) PopNext() *Zone {
	if q.h.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.h).(*allocHeapItem)
	return item.zone
}
