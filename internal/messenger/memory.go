package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// subscriberBuffer is the number of undelivered messages kept per subscriber
// before further messages are dropped.
const subscriberBuffer = 64

// InMemoryMessenger keeps values and subscribers in process memory.
type InMemoryMessenger struct {
	mu          sync.RWMutex
	values      map[string][]byte
	subscribers map[string][]chan Message
	logger      *slog.Logger
}

var _ Messenger = (*InMemoryMessenger)(nil)

// NewInMemoryMessenger creates a new instance of InMemoryMessenger.
func NewInMemoryMessenger(logger *slog.Logger) *InMemoryMessenger {
	return &InMemoryMessenger{
		values:      make(map[string][]byte),
		subscribers: make(map[string][]chan Message),
		logger:      logger.With("component", "in_memory_messenger"),
	}
}

// Publish delivers payload to every current subscriber of namespace without
// waiting. A subscriber whose buffer is full misses the message.
func (m *InMemoryMessenger) Publish(ctx context.Context, namespace string, payload any) error {
	data, err := Encode(payload)
	if err != nil {
		return err
	}

	m.mu.RLock()
	subs := make([]chan Message, len(m.subscribers[namespace]))
	copy(subs, m.subscribers[namespace])
	m.mu.RUnlock()

	msg := Message{Namespace: namespace, Payload: data}
	dropped := 0
	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
			dropped++
		}
	}

	m.logger.Debug("published message",
		"namespace", namespace,
		"subscriber_count", len(subs),
		"dropped", dropped)
	return nil
}

// Set stores payload as the latest value of namespace.
func (m *InMemoryMessenger) Set(ctx context.Context, namespace string, payload any) error {
	data, err := Encode(payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.values[namespace] = data
	m.mu.Unlock()
	return nil
}

// Get decodes the latest value of namespace into dst.
func (m *InMemoryMessenger) Get(ctx context.Context, namespace string, dst any) error {
	m.mu.RLock()
	data, ok := m.values[namespace]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, namespace)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: failed to decode value of %s: %v", ErrTransport, namespace, err)
	}
	return nil
}

// Subscribe blocks, calling handler for each message published to namespace,
// until ctx is cancelled. Handler errors are logged and do not end the
// subscription.
func (m *InMemoryMessenger) Subscribe(ctx context.Context, namespace string, handler Handler) error {
	ch := make(chan Message, subscriberBuffer)

	m.mu.Lock()
	m.subscribers[namespace] = append(m.subscribers[namespace], ch)
	m.mu.Unlock()
	m.logger.Debug("registered subscriber", "namespace", namespace)

	defer m.unsubscribe(namespace, ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			if err := handler(ctx, msg); err != nil {
				m.logger.Error("subscriber failed to handle message",
					"namespace", namespace,
					"error", err)
			}
		}
	}
}

// Subscribers returns the number of active subscribers of namespace.
func (m *InMemoryMessenger) Subscribers(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[namespace])
}

func (m *InMemoryMessenger) unsubscribe(namespace string, ch chan Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subscribers[namespace]
	for i, c := range subs {
		if c == ch {
			m.subscribers[namespace] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(m.subscribers[namespace]) == 0 {
		delete(m.subscribers, namespace)
	}
}
