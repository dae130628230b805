package task

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaforge-api/internal/domain"
)

// ItemStatus is the lifecycle position of a QueueItem inside the engine.
type ItemStatus string

// Item lifecycle values
const (
	ItemPending   ItemStatus = "pending"
	ItemRunning   ItemStatus = "running"
	ItemWaiting   ItemStatus = "waiting"
	ItemCompleted ItemStatus = "completed"
	ItemFailed    ItemStatus = "failed"
)

// QueueItem is the engine's in-memory handle for a task between admission
// and its terminal outcome. It lives in exactly one of the pending queue,
// the running set or the waiting pool. All fields are guarded by the
// engine mutex.
type QueueItem struct {
	ID            uuid.UUID
	TaskID        uuid.UUID
	Priority      int
	SubmittedAt   time.Time
	Kind          Kind
	Metadata      map[string]any
	Status        ItemStatus
	Retries       int
	ExternalID    string
	NextAttemptAt time.Time

	// heapIndex is maintained by waitingPool; -1 outside the pool.
	heapIndex int
}

func newQueueItem(rec *domain.TaskRecord, kind Kind, metadata map[string]any, submittedAt time.Time) *QueueItem {
	item := &QueueItem{
		ID:          uuid.New(),
		TaskID:      rec.ID,
		Priority:    rec.Priority,
		SubmittedAt: submittedAt,
		Kind:        kind,
		Metadata:    metadata,
		Status:      ItemPending,
		heapIndex:   -1,
	}
	if rec.ExternalID != nil {
		item.ExternalID = *rec.ExternalID
	}
	return item
}

// setExternalID records the provider job id. An item keeps its first id: a
// different later value is refused.
func (q *QueueItem) setExternalID(id string) bool {
	if q.ExternalID != "" && q.ExternalID != id {
		return false
	}
	q.ExternalID = id
	return true
}

// sortPending orders items by priority, then submission time. The sort is
// stable so equal keys keep arrival order.
func sortPending(items []*QueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		return items[i].SubmittedAt.Before(items[j].SubmittedAt)
	})
}

func positionOf(items []*QueueItem, taskID uuid.UUID) int {
	for i, it := range items {
		if it.TaskID == taskID {
			return i + 1
		}
	}
	return 0
}
