package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/phrazzld/asyncapp/internal/messenger"
)

// Call records one Publish or Set invocation.
type Call struct {
	Namespace string
	Payload   json.RawMessage
}

// MockMessenger implements messenger.Messenger for testing. Without custom
// functions it records every Publish and Set call and serves Get from the
// recorded Set values.
type MockMessenger struct {
	// PublishFn allows test cases to mock the Publish behavior
	PublishFn func(ctx context.Context, namespace string, payload any) error

	// SetFn allows test cases to mock the Set behavior
	SetFn func(ctx context.Context, namespace string, payload any) error

	// GetFn allows test cases to mock the Get behavior
	GetFn func(ctx context.Context, namespace string, dst any) error

	// SubscribeFn allows test cases to mock the Subscribe behavior
	SubscribeFn func(ctx context.Context, namespace string, handler messenger.Handler) error

	mu        sync.Mutex
	published []Call
	sets      []Call
}

var _ messenger.Messenger = (*MockMessenger)(nil)

// Publish implements the messenger.Messenger interface
func (m *MockMessenger) Publish(ctx context.Context, namespace string, payload any) error {
	if m.PublishFn != nil {
		return m.PublishFn(ctx, namespace, payload)
	}

	data, err := messenger.Encode(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.published = append(m.published, Call{Namespace: namespace, Payload: data})
	m.mu.Unlock()
	return nil
}

// Set implements the messenger.Messenger interface
func (m *MockMessenger) Set(ctx context.Context, namespace string, payload any) error {
	if m.SetFn != nil {
		return m.SetFn(ctx, namespace, payload)
	}

	data, err := messenger.Encode(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sets = append(m.sets, Call{Namespace: namespace, Payload: data})
	m.mu.Unlock()
	return nil
}

// Get implements the messenger.Messenger interface
func (m *MockMessenger) Get(ctx context.Context, namespace string, dst any) error {
	if m.GetFn != nil {
		return m.GetFn(ctx, namespace, dst)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sets) - 1; i >= 0; i-- {
		if m.sets[i].Namespace == namespace {
			return json.Unmarshal(m.sets[i].Payload, dst)
		}
	}
	return messenger.ErrNotFound
}

// Subscribe implements the messenger.Messenger interface. By default it
// blocks until ctx is cancelled without delivering anything.
func (m *MockMessenger) Subscribe(ctx context.Context, namespace string, handler messenger.Handler) error {
	if m.SubscribeFn != nil {
		return m.SubscribeFn(ctx, namespace, handler)
	}

	<-ctx.Done()
	return nil
}

// Published returns a copy of the recorded Publish calls.
func (m *MockMessenger) Published() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.published))
	copy(out, m.published)
	return out
}

// Sets returns a copy of the recorded Set calls.
func (m *MockMessenger) Sets() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.sets))
	copy(out, m.sets)
	return out
}
