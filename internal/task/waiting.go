package task

import (
	"container/heap"
	"sort"
	"time"

	"github.com/google/uuid"
)

// waitingPool holds items whose launch was refused for capacity, ordered by
// the time they may be retried. It never reads the clock; callers pass now.
// It is not safe for concurrent use.
type waitingPool struct {
	items itemHeap
	byID  map[uuid.UUID]*QueueItem
}

func newWaitingPool() *waitingPool {
	return &waitingPool{byID: make(map[uuid.UUID]*QueueItem)}
}

// push schedules item for item.NextAttemptAt. Pushing an item already in the
// pool reschedules it.
func (p *waitingPool) push(item *QueueItem) {
	if existing, ok := p.byID[item.TaskID]; ok {
		existing.NextAttemptAt = item.NextAttemptAt
		heap.Fix(&p.items, existing.heapIndex)
		return
	}
	item.Status = ItemWaiting
	p.byID[item.TaskID] = item
	heap.Push(&p.items, item)
}

// remove takes the item for taskID out of the pool.
func (p *waitingPool) remove(taskID uuid.UUID) (*QueueItem, bool) {
	item, ok := p.byID[taskID]
	if !ok {
		return nil, false
	}
	heap.Remove(&p.items, item.heapIndex)
	delete(p.byID, taskID)
	return item, true
}

// popDue removes and returns every item due at or before now, earliest first.
func (p *waitingPool) popDue(now time.Time) []*QueueItem {
	var due []*QueueItem
	for len(p.items) > 0 && !p.items[0].NextAttemptAt.After(now) {
		item := heap.Pop(&p.items).(*QueueItem)
		delete(p.byID, item.TaskID)
		due = append(due, item)
	}
	return due
}

// nextFireAt returns the earliest scheduled time.
func (p *waitingPool) nextFireAt() (time.Time, bool) {
	if len(p.items) == 0 {
		return time.Time{}, false
	}
	return p.items[0].NextAttemptAt, true
}

func (p *waitingPool) len() int {
	return len(p.items)
}

// snapshot returns the items in firing order without modifying the pool.
func (p *waitingPool) snapshot() []*QueueItem {
	out := make([]*QueueItem, len(p.items))
	copy(out, p.items)
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextAttemptAt.Before(out[j].NextAttemptAt)
	})
	return out
}

// itemHeap implements heap.Interface ordered by NextAttemptAt.
type itemHeap []*QueueItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	return h[i].NextAttemptAt.Before(h[j].NextAttemptAt)
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *itemHeap) Push(x any) {
	item := x.(*QueueItem)
	item.heapIndex = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.heapIndex = -1
	*h = old[:n-1]
	return item
}
