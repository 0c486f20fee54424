package queue

import (
	"fmt"
	"sync"
)

// TopicMessageStatus carries model.StatusEvent payloads for any
// UI/observability consumer.
const TopicMessageStatus = "message_status"

// Queue is the in-process pub/sub contract used for the status-change event
// feed.
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue fans each published payload out to all subscribers of the
// topic, each on its own goroutine.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload any) error),
	}
}

// Publish sends a message to all subscribers. Publishing to a topic with no
// subscribers is a no-op rather than an error: the event feed is optional
// observability, not a delivery guarantee.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	for _, handler := range handlers {
		go func(h func(payload any) error) {
			if err := h(payload); err != nil {
				fmt.Printf("queue handler error on %s: %v\n", topic, err)
			}
		}(handler)
	}

	return nil
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}
