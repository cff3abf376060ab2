package pubsub

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 64

// SlowConsumerPolicy decides what happens when a subscriber's buffer is full.
type SlowConsumerPolicy int

const (
	// DropOnFull drops the event for that subscriber only.
	DropOnFull SlowConsumerPolicy = iota
	// DisconnectOnFull closes the subscriber's channel. The subscriber sees
	// every event up to disconnection, never a silent gap.
	DisconnectOnFull
)

// subscription is a single subscriber channel with an optional filter.
type subscription[T any] struct {
	ch    chan Event[T]
	match func(T) bool
}

// Broker is a generic pub/sub event broker.
// It allows multiple subscribers to receive events published by publishers.
type Broker[T any] struct {
	subs       map[chan Event[T]]*subscription[T]
	mu         sync.RWMutex
	done       chan struct{}
	bufferSize int
	policy     SlowConsumerPolicy
}

// BrokerOption configures a Broker.
type BrokerOption func(*brokerOptions)

type brokerOptions struct {
	bufferSize int
	policy     SlowConsumerPolicy
}

// WithBufferSize sets the per-subscriber channel capacity.
func WithBufferSize(size int) BrokerOption {
	return func(o *brokerOptions) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// WithSlowConsumerPolicy sets how the broker treats full subscriber buffers.
func WithSlowConsumerPolicy(policy SlowConsumerPolicy) BrokerOption {
	return func(o *brokerOptions) {
		o.policy = policy
	}
}

// NewBroker creates a new broker with the default buffer size (64).
func NewBroker[T any](opts ...BrokerOption) *Broker[T] {
	o := brokerOptions{bufferSize: defaultBufferSize, policy: DropOnFull}
	for _, opt := range opts {
		opt(&o)
	}
	return &Broker[T]{
		subs:       make(map[chan Event[T]]*subscription[T]),
		done:       make(chan struct{}),
		bufferSize: o.bufferSize,
		policy:     o.policy,
	}
}

// NewBrokerWithBuffer creates a new broker with a custom buffer size.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	return NewBroker[T](WithBufferSize(size))
}

// Subscribe creates a new subscription channel.
// The channel is automatically closed when ctx is cancelled.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	return b.SubscribeFunc(ctx, nil)
}

// SubscribeFunc creates a subscription that only receives payloads for which
// match returns true. A nil match receives everything.
func (b *Broker[T]) SubscribeFunc(ctx context.Context, match func(T) bool) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Check if broker is closed
	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub := &subscription[T]{
		ch:    make(chan Event[T], b.bufferSize),
		match: match,
	}
	b.subs[sub.ch] = sub

	// Cleanup goroutine
	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.remove(sub.ch)
	}()

	return sub.ch
}

// remove deletes and closes a subscriber channel if it is still registered.
func (b *Broker[T]) remove(ch chan Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return // Already closed
	default:
	}

	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Publish sends an event to all subscribers.
// Non-blocking: a full subscriber either misses the event or is disconnected,
// depending on the broker's policy.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	var slow []chan Event[T]

	b.mu.RLock()
	select {
	case <-b.done:
		b.mu.RUnlock()
		return
	default:
	}

	event := Event[T]{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	for ch, sub := range b.subs {
		if sub.match != nil && !sub.match(payload) {
			continue
		}
		select {
		case ch <- event:
			// Delivered
		default:
			if b.policy == DisconnectOnFull {
				slow = append(slow, ch)
			}
		}
	}
	b.mu.RUnlock()

	for _, ch := range slow {
		b.remove(ch)
	}
}

// Close shuts down the broker and all subscriber channels.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return // Already closed
	default:
	}

	close(b.done)
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
