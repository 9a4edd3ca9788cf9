package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Common errors returned by messenger implementations
var (
	// ErrTransport indicates a publish/set/get/subscribe call could not be
	// carried out. Callers are not retried.
	ErrTransport = errors.New("messenger transport error")

	// ErrNotFound is returned by Get when nothing was Set for the namespace.
	ErrNotFound = errors.New("namespace not found")
)

// Message is one published payload.
type Message struct {
	Namespace string
	Payload   json.RawMessage
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Handler is invoked for every message received by Subscribe.
type Handler func(ctx context.Context, msg Message) error

// Messenger is a publish/subscribe bus combined with a latest-value store.
type Messenger interface {
	// Publish broadcasts payload to current subscribers of namespace.
	Publish(ctx context.Context, namespace string, payload any) error

	// Set stores payload as the latest value of namespace.
	Set(ctx context.Context, namespace string, payload any) error

	// Get decodes the latest value of namespace into dst.
	// Returns ErrNotFound if nothing was set.
	Get(ctx context.Context, namespace string, dst any) error

	// Subscribe calls handler for every message published to namespace until
	// ctx is cancelled.
	Subscribe(ctx context.Context, namespace string, handler Handler) error
}

// Encode serializes payload for the wire.
func Encode(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode payload: %v", ErrTransport, err)
	}
	return data, nil
}

// Namespace joins an application name and a channel suffix, e.g.
// "my_app:task_monitor".
func Namespace(app, suffix string) string {
	return app + ":" + suffix
}
