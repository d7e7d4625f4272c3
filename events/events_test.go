package events

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// TestEmittersAreIndependent verifies handlers only see events of the emitter they subscribed to, in order.
func TestEmittersAreIndependent(t *testing.T) {
	type probeEvent struct{ Amount int }

	var probes, submissions EventEmitter[probeEvent]
	var seenProbes, seenSubmissions []int
	probes.Subscribe(func(event probeEvent) error {
		seenProbes = append(seenProbes, event.Amount)
		return nil
	})
	submissions.Subscribe(func(event probeEvent) error {
		seenSubmissions = append(seenSubmissions, event.Amount)
		return nil
	})

	for amount := 1; amount <= 3; amount++ {
		assert.NoError(t, probes.Publish(probeEvent{Amount: amount}))
	}
	assert.NoError(t, submissions.Publish(probeEvent{Amount: 42}))

	assert.Equal(t, []int{1, 2, 3}, seenProbes)
	assert.Equal(t, []int{42}, seenSubmissions)
	assert.Equal(t, 1, probes.SubscriberCount())
}

// TestPublishWithoutSubscribers verifies the zero value emitter accepts events.
func TestPublishWithoutSubscribers(t *testing.T) {
	var emitter EventEmitter[string]
	assert.NoError(t, emitter.Publish("ignored"))
	assert.Zero(t, emitter.SubscriberCount())
}

// TestEventHandlerErrors verifies a failing handler stops later handlers and reports its error.
func TestEventHandlerErrors(t *testing.T) {
	type valueEvent struct{ Value int }

	var emitter EventEmitter[valueEvent]
	failure := errors.New("handler failed")
	var seen []int
	emitter.Subscribe(func(event valueEvent) error {
		seen = append(seen, event.Value)
		if event.Value < 0 {
			return failure
		}
		return nil
	})
	emitter.Subscribe(func(event valueEvent) error {
		seen = append(seen, event.Value*10)
		return nil
	})

	assert.NoError(t, emitter.Publish(valueEvent{Value: 1}))
	assert.ErrorIs(t, emitter.Publish(valueEvent{Value: -1}), failure)
	assert.Equal(t, []int{1, 10, -1}, seen)
}

// TestConcurrentPublish verifies concurrent publishers reach every handler exactly once per event.
func TestConcurrentPublish(t *testing.T) {
	var emitter EventEmitter[int]
	var total atomic.Int64
	emitter.Subscribe(func(value int) error {
		total.Add(int64(value))
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = emitter.Publish(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1600, total.Load())
}
