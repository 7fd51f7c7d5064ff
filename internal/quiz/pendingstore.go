package quiz

import (
	"container/heap"
	"sync"
	"time"
)

// pendingEntry is the daemon-internal bookkeeping for one in-flight
// challenge. It is never serialized to the wire.
type pendingEntry struct {
	id        string
	answers   []int
	issuedAt  time.Time // monotonic reading, for the min-solve-time check
	expiresAt time.Time // wall clock, for expiry

	heapIdx int
}

// pendingStore is a thread-safe, expiry-ordered table of in-flight quiz
// challenges: a map keyed by id for O(1) lookup/removal plus a
// container/heap min-heap ordered by expiry for O(log n) lazy-expiry
// sweeps.
type pendingStore struct {
	mu   sync.Mutex
	byID map[string]*pendingEntry
	expH expiryHeap
}

func newPendingStore() *pendingStore {
	return &pendingStore{
		byID: make(map[string]*pendingEntry),
	}
}

// add inserts a freshly issued challenge.
func (s *pendingStore) add(e *pendingEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[e.id] = e
	heap.Push(&s.expH, e)
}

// remove pops and returns the entry for id, if present. Validation is
// destructive: every call to remove consumes the entry regardless of the
// caller's eventual verdict.
func (s *pendingStore) remove(id string) (*pendingEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	delete(s.byID, id)
	heap.Remove(&s.expH, e.heapIdx)
	return e, true
}

// expireNow pops every entry whose expiry is at or before now.
func (s *pendingStore) expireNow(now time.Time) []*pendingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*pendingEntry
	for s.expH.Len() > 0 && !s.expH[0].expiresAt.After(now) {
		e, ok := heap.Pop(&s.expH).(*pendingEntry)
		if !ok {
			continue
		}
		delete(s.byID, e.id)
		expired = append(expired, e)
	}
	return expired
}

// expiryHeap is a min-heap ordered by pendingEntry.expiresAt.
type expiryHeap []*pendingEntry

func (h expiryHeap) Len() int { return len(h) }

func (h expiryHeap) Less(i, j int) bool {
	return h[i].expiresAt.Before(h[j].expiresAt)
}

func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx, h[j].heapIdx = i, j
}

func (h *expiryHeap) Push(x any) {
	e, ok := x.(*pendingEntry)
	if !ok {
		return
	}
	e.heapIdx = len(*h)
	*h = append(*h, e)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	e.heapIdx = -1
	*h = old[:n-1]
	return e
}
