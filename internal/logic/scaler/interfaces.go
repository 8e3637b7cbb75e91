package scaler

import "context"

// Observer is the port for reading cluster state. Implementations are
// read-only and must tolerate partial metrics data.
type Observer interface {
	Observe(ctx context.Context) (*ClusterSnapshot, error)
}

// Provider is the port for the compute pool control API. SetPoolSize must be
// idempotent per correlation id: re-issuing the same target with the same id
// must not double-scale.
type Provider interface {
	CurrentSize(ctx context.Context) (int, error)
	SetPoolSize(ctx context.Context, target int, correlationID string) error
}

// Drainer evicts workloads from a node before it is removed from the pool.
type Drainer interface {
	CordonNode(ctx context.Context, nodeID string) error
	DrainNode(ctx context.Context, nodeID string) error
}

// Notifier posts scale events to an external channel. Implementations must
// never fail the cycle.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// The provider's error taxonomy is matched through private interfaces so the
// logic package does not import the adapter.

type throttled interface {
	IsThrottled()
}

type authFailure interface {
	IsAuthFailure()
}

type notFound interface {
	IsNotFound()
}

type transient interface {
	IsTransient()
}
