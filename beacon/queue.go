package beacon

import "sync"

// sightingQueue collects raw sightings from the radio event goroutine
// while the scheduler goroutine drains whole batches. Drain returns and
// clears atomically so no sighting is processed twice.
type sightingQueue struct {
	mu    sync.Mutex
	items []Sighting
}

func (q *sightingQueue) Append(s Sighting) {
	q.mu.Lock()
	q.items = append(q.items, s)
	q.mu.Unlock()
}

func (q *sightingQueue) Drain() []Sighting {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *sightingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
