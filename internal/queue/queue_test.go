package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PushDrain(t *testing.T) {
	q := New[int]()
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain())

	q.Push(1)
	q.Push(2, 3)
	assert.Equal(t, 3, q.Len())

	assert.Equal(t, []int{1, 2, 3}, q.Drain())
	assert.Zero(t, q.Len())
}

func TestQueue_RequeueKeepsOrder(t *testing.T) {
	q := New[string]()
	q.Push("a", "b")
	batch := q.Drain()

	// newer writes arrive while the batch is failing
	q.Push("c")
	q.Requeue(batch)
	q.Requeue(nil)

	assert.Equal(t, []string{"a", "b", "c"}, q.Drain())
}

func TestQueue_RequeueDoesNotAliasBatch(t *testing.T) {
	q := New[int]()
	batch := make([]int, 2, 8)
	batch[0], batch[1] = 1, 2
	q.Push(3)
	q.Requeue(batch)

	batch = append(batch, 99)
	assert.Equal(t, []int{1, 2, 3}, q.Drain())
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(base + i)
			}
		}(w * 100)
	}

	var drained []int
	var mu sync.Mutex
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			items := q.Drain()
			mu.Lock()
			drained = append(drained, items...)
			mu.Unlock()
		}
	}()
	wg.Wait()

	drained = append(drained, q.Drain()...)
	require.Len(t, drained, 800)
	seen := make(map[int]bool, len(drained))
	for _, v := range drained {
		assert.False(t, seen[v], "duplicate %d", v)
		seen[v] = true
	}
}
