package scaler

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Resources is a cpu/memory pair in the domain layer.
type Resources struct {
	CPU    resource.Quantity
	Memory resource.Quantity
}

// Node represents a cluster node in the domain layer.
type Node struct {
	ID          string
	Capacity    Resources
	Allocatable Resources
	Labels      map[string]string

	// Utilization is nil when the metrics API had no data for this node.
	// An unknown utilization never counts as idle.
	Utilization *Resources

	// IdleSince is the time the node was first observed below the low-water
	// utilization mark. Set by the reconciliation loop's idle tracker, not by
	// the observer.
	IdleSince *time.Time

	// HasWorkload is true when the node runs at least one non-daemon pod.
	HasWorkload bool

	Unschedulable bool
}

// PendingPod is an unschedulable pod waiting for capacity.
type PendingPod struct {
	ID       string // namespace/name
	Requests Resources
}

// ClusterSnapshot is a point-in-time view of the cluster. Immutable once
// captured; discarded after one decision cycle.
type ClusterSnapshot struct {
	CapturedAt  time.Time
	Nodes       []Node
	PendingPods []PendingPod
}

// PoolState describes the compute pool backing the cluster. CurrentSize is
// mutated only by the reconciliation loop after a confirmed scale operation.
type PoolState struct {
	CurrentSize   int
	MinSize       int
	MaxSize       int
	OverProvision int
}

// Reason classifies a scaling decision.
type Reason string

const (
	ReasonScaleUp   Reason = "ScaleUp"
	ReasonScaleDown Reason = "ScaleDown"
	ReasonNoOp      Reason = "NoOp"
)

// ScalingDecision is the engine's output for one cycle. Created fresh each
// cycle; never persisted.
type ScalingDecision struct {
	Target int
	Reason Reason

	// PendingPodIDs lists the pods that triggered a scale-up.
	PendingPodIDs []string

	// IdleNodeIDs lists the nodes selected for removal on scale-down, longest
	// idle first.
	IdleNodeIDs []string
}

// ScaleRequest is the in-flight record of a pool mutation. At most one may be
// outstanding at any time.
type ScaleRequest struct {
	Target        int
	IssuedAt      time.Time
	CorrelationID string
}

// LoopState is the reconciliation loop's explicit state.
type LoopState string

const (
	StateIdle                 LoopState = "Idle"
	StateObserving            LoopState = "Observing"
	StateDeciding             LoopState = "Deciding"
	StateRequesting           LoopState = "Requesting"
	StateAwaitingConfirmation LoopState = "AwaitingConfirmation"
	StateCooldown             LoopState = "Cooldown"
)

// Status is a read-only view of the loop for the status endpoint.
type Status struct {
	State        LoopState
	Pool         PoolState
	Halted       bool
	HaltReason   string
	LastDecision *ScalingDecision
	LastScaleAt  time.Time
	Outstanding  *ScaleRequest
}
