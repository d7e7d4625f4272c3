package events

import (
	"sync"

	"github.com/pkg/errors"
)

// EventHandler is a callback invoked with every published event of type T. A returned error stops the remaining
// handlers from running and is reported to the publisher.
type EventHandler[T any] func(T) error

// EventEmitter publishes events of type T to its subscribers in subscription order. The zero value is ready to use,
// and an emitter is safe for concurrent use. Handlers run on the publishing goroutine.
type EventEmitter[T any] struct {
	lock          sync.RWMutex
	subscriptions []EventHandler[T]
}

// Publish calls every handler subscribed to this emitter.
func (e *EventEmitter[T]) Publish(event T) error {
	e.lock.RLock()
	subscriptions := e.subscriptions
	e.lock.RUnlock()

	for _, subscription := range subscriptions {
		if err := subscription(event); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// Subscribe adds callback to the handlers invoked by this emitter.
func (e *EventEmitter[T]) Subscribe(callback EventHandler[T]) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.subscriptions = append(e.subscriptions, callback)
}

// SubscriberCount returns the number of handlers subscribed to this emitter.
func (e *EventEmitter[T]) SubscriberCount() int {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return len(e.subscriptions)
}
