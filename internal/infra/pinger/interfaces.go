package pinger

import "context"

// Pinger is implemented by components that can report their own liveness.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}
