package task

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitingItem(at time.Time) *QueueItem {
	return &QueueItem{TaskID: uuid.New(), NextAttemptAt: at, heapIndex: -1}
}

func TestWaitingPool_PopDueInFiringOrder(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := newWaitingPool()

	late := waitingItem(base.Add(3 * time.Second))
	early := waitingItem(base.Add(time.Second))
	mid := waitingItem(base.Add(2 * time.Second))
	for _, it := range []*QueueItem{late, early, mid} {
		p.push(it)
	}
	assert.Equal(t, ItemWaiting, early.Status)

	next, ok := p.nextFireAt()
	require.True(t, ok)
	assert.Equal(t, early.NextAttemptAt, next)

	assert.Empty(t, p.popDue(base))

	due := p.popDue(base.Add(2 * time.Second))
	require.Len(t, due, 2)
	assert.Same(t, early, due[0])
	assert.Same(t, mid, due[1])
	assert.Equal(t, -1, early.heapIndex)
	assert.Equal(t, 1, p.len())

	assert.Same(t, late, p.popDue(base.Add(time.Hour))[0])
	_, ok = p.nextFireAt()
	assert.False(t, ok)
}

func TestWaitingPool_PushReschedules(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := newWaitingPool()

	a := waitingItem(base.Add(time.Second))
	b := waitingItem(base.Add(2 * time.Second))
	p.push(a)
	p.push(b)

	a.NextAttemptAt = base.Add(5 * time.Second)
	p.push(a)

	assert.Equal(t, 2, p.len())
	snap := p.snapshot()
	require.Len(t, snap, 2)
	assert.Same(t, b, snap[0])
	assert.Same(t, a, snap[1])
}

func TestWaitingPool_Remove(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := newWaitingPool()

	items := []*QueueItem{
		waitingItem(base.Add(time.Second)),
		waitingItem(base.Add(2 * time.Second)),
		waitingItem(base.Add(3 * time.Second)),
	}
	for _, it := range items {
		p.push(it)
	}

	removed, ok := p.remove(items[0].TaskID)
	require.True(t, ok)
	assert.Same(t, items[0], removed)

	_, ok = p.remove(items[0].TaskID)
	assert.False(t, ok)

	due := p.popDue(base.Add(time.Hour))
	require.Len(t, due, 2)
	assert.Same(t, items[1], due[0])
	assert.Same(t, items[2], due[1])
}

func TestSortPending(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	lowOld := &QueueItem{TaskID: uuid.New(), Priority: 5, SubmittedAt: base}
	highNew := &QueueItem{TaskID: uuid.New(), Priority: 1, SubmittedAt: base.Add(time.Minute)}
	highOld := &QueueItem{TaskID: uuid.New(), Priority: 1, SubmittedAt: base}

	items := []*QueueItem{lowOld, highNew, highOld}
	sortPending(items)

	assert.Equal(t, []*QueueItem{highOld, highNew, lowOld}, items)
	assert.Equal(t, 2, positionOf(items, highNew.TaskID))
	assert.Equal(t, 0, positionOf(items, uuid.New()))
}

func TestQueueItem_SetExternalID(t *testing.T) {
	t.Parallel()
	item := &QueueItem{}

	assert.True(t, item.setExternalID("job-1"))
	assert.True(t, item.setExternalID("job-1"))
	assert.False(t, item.setExternalID("job-2"))
	assert.Equal(t, "job-1", item.ExternalID)
}
