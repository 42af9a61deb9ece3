// Copyright (c) 2024 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package msgqueue contains an unbounded FIFO queue that can be drained with a timeout.
package msgqueue

import (
	"sync"
	"time"
)

// Queue is an unbounded, thread-safe FIFO queue.
//
// Put never blocks. Get blocks until an item is available or the timeout expires, which lets the
// consumer re-check its own liveness condition periodically instead of waiting forever.
type Queue[T any] struct {
	lock   sync.Mutex
	items  []T
	head   int
	notify chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{notify: make(chan struct{}, 1)}
}

// Put appends items to the end of the queue.
func (q *Queue[T]) Put(items ...T) {
	if len(items) == 0 {
		return
	}
	q.lock.Lock()
	q.items = append(q.items, items...)
	q.lock.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) pop() (item T, ok bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.head >= len(q.items) {
		return
	}
	item = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else {
		if q.head > 64 && q.head*2 > len(q.items) {
			n := copy(q.items, q.items[q.head:])
			clear(q.items[n:])
			q.items = q.items[:n]
			q.head = 0
		}
		// Keep the wakeup pending for the remaining items.
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return item, true
}

// TryGet removes and returns the first item in the queue without waiting.
func (q *Queue[T]) TryGet() (T, bool) {
	return q.pop()
}

// Ready returns a channel that receives a value when the queue may have items.
// It's meant for a single consumer that selects on other channels too, and drains the queue with TryGet.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.notify
}

// Get removes and returns the first item in the queue, waiting up to timeout for one to arrive.
// The second return value is false if the timeout expired with the queue still empty.
func (q *Queue[T]) Get(timeout time.Duration) (T, bool) {
	if item, ok := q.pop(); ok {
		return item, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notify:
			if item, ok := q.pop(); ok {
				return item, true
			}
		case <-timer.C:
			return q.pop()
		}
	}
}

// Len returns the number of items currently waiting in the queue.
func (q *Queue[T]) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.items) - q.head
}

// Clear drops all pending items and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	n := len(q.items) - q.head
	q.items = nil
	q.head = 0
	return n
}
