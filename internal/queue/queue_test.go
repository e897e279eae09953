package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue(t *testing.T) {
	assert := assert.New(t)

	t.Run("Empty Queue", func(t *testing.T) {
		q := New[int](1)

		_, ok := q.Dequeue()
		assert.False(ok)
	})

	t.Run("Enqueue and Dequeue", func(t *testing.T) {
		q := New[string](1)

		q.Enqueue("data1")
		q.Enqueue("data2", "data3")

		for _, want := range []string{"data1", "data2", "data3"} {
			item, ok := q.Dequeue()
			assert.True(ok)
			assert.Equal(want, item)
		}

		_, ok := q.Dequeue()
		assert.False(ok)
	})

	t.Run("Reset", func(t *testing.T) {
		q := New[int](4)
		q.Enqueue(1, 2, 3)
		q.Reset()

		_, ok := q.Dequeue()
		assert.False(ok)

		q.Enqueue(4)
		item, _ := q.Dequeue()
		assert.Equal(4, item)
	})

	t.Run("Concurrency", func(t *testing.T) {
		var mu sync.Mutex
		q := New[int](1)

		var wg sync.WaitGroup
		for i := range 1000 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				mu.Lock()
				q.Enqueue(i)
				mu.Unlock()
			}()
		}
		wg.Wait()

		sum := 0
		wg.Add(1000)
		for range 1000 {
			go func() {
				defer wg.Done()
				mu.Lock()
				item, ok := q.Dequeue()
				if ok {
					sum += item
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Equal(999*1000/2, sum)
		_, ok := q.Dequeue()
		assert.False(ok)
	})
}

func BenchmarkQueue_100(b *testing.B) {
	for range b.N {
		q := New[int](16)
		for i := range 100 {
			q.Enqueue(i)
		}
		for {
			if _, ok := q.Dequeue(); !ok {
				break
			}
		}
	}
}
