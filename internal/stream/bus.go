// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package stream implements a typed publish/subscribe bus. Every subscriber owns an unbounded
// FIFO queue that is drained into its channel by a dedicated goroutine, so publishing never
// blocks, never drops and keeps the publish order per subscriber.
package stream

import (
	"sync"
)

// Bus coordinates the publishing of values of type T to any number of subscribers.
type Bus[T any] struct {
	mu          sync.Mutex
	subscribers map[*subscriber[T]]struct{}
}

type subscriber[T any] struct {
	mu     sync.Mutex
	queue  []T
	notify chan struct{}
	out    chan T
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// New initializes and returns an empty Bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subscribers: make(map[*subscriber[T]]struct{})}
}

// Subscribe adds a subscriber and returns its channel together with an unsubscribe function.
// The channel is closed by the unsubscribe function; values still queued at that point are
// discarded. Calling the unsubscribe function more than once is safe.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	sub := &subscriber[T]{
		notify: make(chan struct{}, 1),
		out:    make(chan T),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go sub.pump()

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		sub.once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, sub)
			b.mu.Unlock()
			close(sub.done)
			<-sub.exited
		})
	}
	return sub.out, unsub
}

// Publish enqueues the value for every current subscriber.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		sub.enqueue(v)
	}
}

// Subscribers returns the number of current subscribers.
func (b *Bus[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func (s *subscriber[T]) enqueue(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump forwards queued values to the subscriber channel until the subscriber is removed.
func (s *subscriber[T]) pump() {
	defer close(s.exited)
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			v := s.queue[0]
			var zero T
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			case s.out <- v:
			}
		}
	}
}
