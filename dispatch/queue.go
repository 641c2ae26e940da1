/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package dispatch

import (
	"context"
	"sync"
)

// QueueCapacity is the number of items buffered per lane
const QueueCapacity = 5000

// queue is a bounded FIFO which evicts the oldest item when full.
// The paused flag is checked under the same lock as the dequeue, so
// nothing leaves a paused queue
type queue[T any] struct {
	sync.Mutex
	items  []T
	head   int
	n      int
	paused bool
	notify chan struct{}
}

func newQueue[T any](capacity int) *queue[T] {
	return &queue[T]{
		items:  make([]T, capacity),
		notify: make(chan struct{}, 1),
	}
}

// push never blocks. It reports whether the oldest item was evicted and the queue length after the push
func (q *queue[T]) push(v T) (bool, int) {
	q.Lock()
	dropped := false
	if q.n == len(q.items) {
		q.popLocked()
		dropped = true
	}
	q.items[(q.head+q.n)%len(q.items)] = v
	q.n++
	n := q.n
	q.Unlock()

	q.wake()
	return dropped, n
}

// pop waits until an item is available and the queue is not paused.
// It returns false once ctx is done, even if items are left
func (q *queue[T]) pop(ctx context.Context) (T, bool) {
	for {
		q.Lock()
		if ctx.Err() != nil {
			q.Unlock()
			var zero T
			return zero, false
		}
		if !q.paused && q.n > 0 {
			v := q.popLocked()
			q.Unlock()
			return v, true
		}
		q.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		case <-q.notify:
		}
	}
}

func (q *queue[T]) popLocked() T {
	var zero T
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.n--
	return v
}

func (q *queue[T]) setPaused(paused bool) {
	q.Lock()
	q.paused = paused
	q.Unlock()
	if !paused {
		q.wake()
	}
}

func (q *queue[T]) isPaused() bool {
	q.Lock()
	defer q.Unlock()
	return q.paused
}

func (q *queue[T]) len() int {
	q.Lock()
	defer q.Unlock()
	return q.n
}

func (q *queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
