// Copyright (c) 2024 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package msgqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 200; i++ {
		q.Put(i)
	}
	assert.Equal(t, 200, q.Len())
	for i := 0; i < 200; i++ {
		v, ok := q.Get(time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueGetTimeout(t *testing.T) {
	q := New[string]()
	start := time.Now()
	_, ok := q.Get(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestQueueWakesBlockedConsumer(t *testing.T) {
	q := New[string]()
	done := make(chan string)
	go func() {
		v, _ := q.Get(5 * time.Second)
		done <- v
	}()
	time.Sleep(10 * time.Millisecond)
	q.Put("ping")
	select {
	case v := <-done:
		assert.Equal(t, "ping", v)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken up")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.Put(i)
			}
		}()
	}
	wg.Wait()
	got := 0
	for {
		if _, ok := q.Get(time.Millisecond); !ok {
			break
		}
		got++
	}
	assert.Equal(t, 1000, got)
}

func TestQueueClear(t *testing.T) {
	q := New[int]()
	q.Put(1, 2, 3)
	assert.Equal(t, 3, q.Clear())
	_, ok := q.Get(time.Millisecond)
	assert.False(t, ok)
}

func TestQueueCompactionDropsReferences(t *testing.T) {
	q := New[*int]()
	for i := 0; i < 200; i++ {
		q.Put(&i)
	}
	for i := 0; i < 101; i++ {
		v, ok := q.TryGet()
		require.True(t, ok)
		assert.Equal(t, i, *v)
	}
	q.lock.Lock()
	assert.Equal(t, 0, q.head)
	assert.Len(t, q.items, 99)
	for _, stale := range q.items[len(q.items):cap(q.items)] {
		assert.Nil(t, stale)
	}
	q.lock.Unlock()
	v, ok := q.TryGet()
	require.True(t, ok)
	assert.Equal(t, 101, *v)
	assert.Equal(t, 98, q.Len())
}

func TestQueueReady(t *testing.T) {
	q := New[string]()
	_, ok := q.TryGet()
	assert.False(t, ok)
	q.Put("a")
	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("queue didn't signal readiness")
	}
	v, ok := q.TryGet()
	require.True(t, ok)
	assert.Equal(t, "a", v)
}
