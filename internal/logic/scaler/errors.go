package scaler

import "errors"

var (
	// ErrObserve wraps orchestration API failures; the cycle is skipped and the
	// next tick retries fresh.
	ErrObserve = errors.New("observe cluster state")

	// ErrDecide indicates a decision engine invariant violation, e.g. a target
	// outside bounds after clamping. A programming defect, not an input error.
	ErrDecide = errors.New("scaling decision invariant violation")

	// ErrScalingHalted is reported while the loop observes but refuses to
	// mutate after a fatal provider error.
	ErrScalingHalted = errors.New("scaling halted, operator intervention required")

	// ErrRetriesExhausted is returned when a transient provider error survives
	// the bounded retry budget.
	ErrRetriesExhausted = errors.New("provider retries exhausted")

	// ErrPoolInitialFetch is returned when the authoritative pool size cannot
	// be read at startup.
	ErrPoolInitialFetch = errors.New("fetch initial pool size")

	// ErrDrainNode wraps eviction failures during scale-down preparation.
	ErrDrainNode = errors.New("drain node")
)
