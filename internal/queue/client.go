package queue

import "context"

// Client enqueues job messages for the worker.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
