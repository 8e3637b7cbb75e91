package scaler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/kubescaler/agentpool-autoscaler/internal/infra/metrics"
)

// Window gates scale-down decisions to operator-defined time windows.
type Window interface {
	Allows(now time.Time) bool
}

// Params carries the service dependencies and policy knobs. Everything is
// constructed once at process start and passed in; nothing is read from
// ambient globals.
type Params struct {
	Observer Observer
	Provider Provider
	Drainer  Drainer
	Notifier Notifier
	Engine   *Engine

	MinSize       int
	MaxSize       int
	OverProvision int

	Interval          time.Duration
	Cooldown          time.Duration
	ObserveTimeout    time.Duration
	ProviderTimeout   time.Duration
	RetryInitialDelay time.Duration
	MaxRetries        int

	// LowWaterPercent is the utilization percentage below which a node counts
	// as idle (both cpu and memory must be below it).
	LowWaterPercent int

	DryRun            bool
	ScaleUpDisabled   bool
	ScaleDownDisabled bool

	// ScaleDownWindow may be nil, in which case scale-down is always allowed.
	ScaleDownWindow Window
}

// Service drives the reconciliation loop: observe, decide, request, confirm.
// A single goroutine owns all state transitions, so the at-most-one
// outstanding ScaleRequest invariant needs no locking beyond the status view.
type Service struct {
	logger *slog.Logger
	params Params

	mu           sync.RWMutex
	pool         PoolState
	loopState    LoopState
	outstanding  *ScaleRequest
	halted       bool
	haltReason   string
	lastDecision *ScalingDecision
	lastScaleAt  time.Time
	lastCycleEnd time.Time

	// idleSince tracks when each node was first seen below the low-water mark.
	// Touched only by the loop goroutine.
	idleSince map[string]time.Time

	ready      chan struct{}
	doneCh     chan struct{}
	inShutdown atomic.Bool
}

// New creates the reconciliation loop service.
func New(logger *slog.Logger, params Params) *Service {
	return &Service{
		logger: logger,
		params: params,
		pool: PoolState{
			MinSize:       params.MinSize,
			MaxSize:       params.MaxSize,
			OverProvision: params.OverProvision,
		},
		loopState: StateIdle,
		idleSince: make(map[string]time.Time),
		ready:     make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Name returns the name of the scaler component.
func (s *Service) Name() string {
	return "scaler-loop"
}

// Start launches the loop in a goroutine.
func (s *Service) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "scaler is shutting down, skipping start")

		return nil
	}

	go s.RunCommand(ctx)

	return nil
}

// Ready returns a channel that is closed once the pool state has been
// reconstructed from the provider.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Ping reports loop liveness: ready, and the last cycle finished recently.
func (s *Service) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
		age := s.lastCycleAge()
		if age > 2*s.params.Interval {
			return fmt.Errorf("last reconcile cycle was too long ago: %s", age.Round(time.Second))
		}

		return nil
	default:
		return fmt.Errorf("scaler is not ready")
	}
}

// Shutdown waits for the loop goroutine to exit. The in-flight provider call
// is bounded by its own timeout, so the loop never stops mid-mutation.
func (s *Service) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		s.logger.ErrorContext(ctx, "scaler is already shutting down, skipping shutdown")

		return nil
	}

	defer func() {
		s.logger.InfoContext(ctx, "scaler shut down")
	}()

	s.logger.InfoContext(ctx, "shutting down scaler")

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before scaler loop exited: %w", ctx.Err())
	case <-s.doneCh:
		s.logger.InfoContext(ctx, "scaler loop exited")
	}

	return nil
}

// Status returns a read-only view of the loop for the status endpoint.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:       s.loopState,
		Pool:        s.pool,
		Halted:      s.halted,
		HaltReason:  s.haltReason,
		LastScaleAt: s.lastScaleAt,
	}

	if s.lastDecision != nil {
		d := *s.lastDecision
		st.LastDecision = &d
	}

	if s.outstanding != nil {
		r := *s.outstanding
		st.Outstanding = &r
	}

	return st
}

// RunCommand runs the loop until the context is cancelled. PoolState is
// reconstructed from the provider's authoritative size before the first cycle.
func (s *Service) RunCommand(ctx context.Context) {
	defer close(s.doneCh)

	logger := s.logger.With("scaler", "RunCommand")

	if err := s.initPool(ctx, logger); err != nil {
		if ctx.Err() != nil {
			logger.InfoContext(ctx, "terminating scaler loop before initialization")

			return
		}

		// The loop keeps observing; scaling stays halted until restart.
		s.halt(ctx, logger, fmt.Sprintf("%v", err))
	}

	close(s.ready)

	ticker := time.NewTicker(s.params.Interval)
	defer ticker.Stop()

	for {
		s.runCycle(ctx, logger)
		s.setLastCycleEnd()

		select {
		case <-ticker.C:
		case <-ctx.Done():
			logger.InfoContext(ctx, "terminating scaler loop")

			return
		}
	}
}

func (s *Service) initPool(ctx context.Context, logger *slog.Logger) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.params.RetryInitialDelay

	for attempt := 0; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, s.params.ProviderTimeout)
		size, err := s.params.Provider.CurrentSize(cctx)
		cancel()

		if err == nil {
			s.mu.Lock()
			s.pool.CurrentSize = size
			s.mu.Unlock()

			metrics.SetPoolSize(size)
			logger.InfoContext(ctx, "pool state reconstructed", "currentSize", size)

			return nil
		}

		kind := classifyProviderError(err)
		metrics.RecordProviderError(kind)

		if isFatalProviderError(err) {
			return fmt.Errorf("%w: %w", ErrPoolInitialFetch, err)
		}

		if attempt >= s.params.MaxRetries {
			return fmt.Errorf("%w: %w: %w", ErrPoolInitialFetch, ErrRetriesExhausted, err)
		}

		metrics.RecordProviderRetry()
		logger.WarnContext(ctx, "initial pool size fetch failed, retrying",
			"attempt", attempt+1,
			"kind", kind,
			"reason", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrPoolInitialFetch, ctx.Err())
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// runCycle performs one Idle -> Observing -> Deciding -> ... transition chain.
func (s *Service) runCycle(ctx context.Context, logger *slog.Logger) {
	start := time.Now()
	defer func() {
		metrics.ObserveCycleDuration(time.Since(start))
	}()

	if s.state() == StateCooldown && time.Since(s.lastScale()) >= s.params.Cooldown {
		s.setState(StateIdle)
	}

	s.setState(StateObserving)

	octx, cancel := context.WithTimeout(ctx, s.params.ObserveTimeout)
	snapshot, err := s.params.Observer.Observe(octx)
	cancel()

	if err != nil {
		metrics.RecordObservationError()
		logger.ErrorContext(ctx, "observation failed, skipping cycle",
			"reason", fmt.Errorf("%w: %w", ErrObserve, err),
		)
		s.setState(StateIdle)

		return
	}

	metrics.SetNodeCount(len(snapshot.Nodes))
	metrics.SetPendingPods(len(snapshot.PendingPods))

	s.trackIdle(snapshot)

	s.setState(StateDeciding)

	pool := s.poolState()

	decision, err := s.params.Engine.Decide(snapshot, pool)
	if err != nil {
		// Pure function; this is a programming defect, not an input error.
		logger.ErrorContext(ctx, "decision engine invariant violation", "reason", err)
		s.setState(StateIdle)

		return
	}

	decision = s.applyPolicy(ctx, logger, decision, pool)
	s.setLastDecision(decision)

	if decision.Reason == ReasonNoOp {
		s.setState(StateIdle)

		return
	}

	if s.isHalted() {
		logger.WarnContext(ctx, "decision suppressed",
			"reason", ErrScalingHalted,
			"target", decision.Target,
		)
		s.setState(StateIdle)

		return
	}

	if since := time.Since(s.lastScale()); since < s.params.Cooldown && !s.lastScale().IsZero() {
		logger.InfoContext(ctx, "within cooldown, deferring scale",
			"sinceLastScale", since.Round(time.Second),
			"cooldown", s.params.Cooldown,
		)
		s.setState(StateCooldown)

		return
	}

	if s.params.DryRun {
		logger.InfoContext(ctx, "[dry run] would scale pool",
			"reason", decision.Reason,
			"current", pool.CurrentSize,
			"target", decision.Target,
		)
		s.setState(StateIdle)

		return
	}

	s.execute(ctx, logger, decision, pool)
}

// applyPolicy downgrades decisions the operator has disabled or windowed out.
func (s *Service) applyPolicy(
	ctx context.Context,
	logger *slog.Logger,
	decision ScalingDecision,
	pool PoolState,
) ScalingDecision {
	noop := ScalingDecision{Target: pool.CurrentSize, Reason: ReasonNoOp}

	switch decision.Reason {
	case ReasonScaleUp:
		if s.params.ScaleUpDisabled {
			logger.InfoContext(ctx, "scale-up disabled, suppressing decision", "target", decision.Target)

			return noop
		}
	case ReasonScaleDown:
		if s.params.ScaleDownDisabled {
			logger.InfoContext(ctx, "scale-down disabled, suppressing decision", "target", decision.Target)

			return noop
		}

		if s.params.ScaleDownWindow != nil && !s.params.ScaleDownWindow.Allows(time.Now()) {
			logger.InfoContext(ctx, "outside scale-down window, suppressing decision", "target", decision.Target)

			return noop
		}
	case ReasonNoOp:
	}

	return decision
}

// execute issues the scale request, retrying transient provider errors with
// bounded exponential backoff inside the same cycle.
func (s *Service) execute(
	ctx context.Context,
	logger *slog.Logger,
	decision ScalingDecision,
	pool PoolState,
) {
	s.setState(StateRequesting)

	if decision.Reason == ReasonScaleDown {
		if err := s.drainNodes(ctx, logger, decision.IdleNodeIDs); err != nil {
			logger.ErrorContext(ctx, "drain failed, aborting scale-down", "reason", err)
			s.setState(StateIdle)

			return
		}
	}

	request := &ScaleRequest{
		Target:        decision.Target,
		IssuedAt:      time.Now(),
		CorrelationID: uuid.NewString(),
	}

	s.setOutstanding(request)
	defer s.setOutstanding(nil)

	logger = logger.With(
		"correlationID", request.CorrelationID,
		"current", pool.CurrentSize,
		"target", request.Target,
		"reason", decision.Reason,
	)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.params.RetryInitialDelay

	for attempt := 0; ; attempt++ {
		s.setState(StateAwaitingConfirmation)

		cctx, cancel := context.WithTimeout(ctx, s.params.ProviderTimeout)
		err := s.params.Provider.SetPoolSize(cctx, request.Target, request.CorrelationID)
		cancel()

		if err == nil {
			s.confirm(ctx, logger, decision, pool)

			return
		}

		kind := classifyProviderError(err)
		metrics.RecordProviderError(kind)

		if isFatalProviderError(err) {
			s.halt(ctx, logger, fmt.Sprintf("provider error (%s): %v", kind, err))
			s.setState(StateIdle)

			return
		}

		if attempt >= s.params.MaxRetries {
			logger.ErrorContext(ctx, "abandoning scale request",
				"reason", fmt.Errorf("%w: %w", ErrRetriesExhausted, err),
				"attempts", attempt+1,
			)
			s.notify(ctx, fmt.Sprintf(
				"scale request to %d abandoned after %d attempts: %v",
				request.Target, attempt+1, err,
			))
			s.setState(StateIdle)

			return
		}

		metrics.RecordProviderRetry()

		delay := bo.NextBackOff()
		logger.WarnContext(ctx, "provider call failed, retrying",
			"attempt", attempt+1,
			"kind", kind,
			"delay", delay,
			"reason", err,
		)

		s.setState(StateRequesting)

		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "context done, abandoning scale request")
			s.setState(StateIdle)

			return
		case <-time.After(delay):
		}
	}
}

// confirm records a completed scale operation and enters cooldown.
func (s *Service) confirm(
	ctx context.Context,
	logger *slog.Logger,
	decision ScalingDecision,
	pool PoolState,
) {
	s.mu.Lock()
	s.pool.CurrentSize = decision.Target
	s.lastScaleAt = time.Now()
	s.mu.Unlock()

	metrics.SetPoolSize(decision.Target)

	switch decision.Reason {
	case ReasonScaleUp:
		metrics.RecordScaleUp()
		s.notify(ctx, fmt.Sprintf(
			"scaled agent pool up from %d to %d (pending pods: %d)",
			pool.CurrentSize, decision.Target, len(decision.PendingPodIDs),
		))
	case ReasonScaleDown:
		metrics.RecordScaleDown()
		s.notify(ctx, fmt.Sprintf(
			"scaled agent pool down from %d to %d (idle nodes: %d)",
			pool.CurrentSize, decision.Target, len(decision.IdleNodeIDs),
		))
	case ReasonNoOp:
	}

	logger.InfoContext(ctx, "pool scaled", "newSize", decision.Target)

	s.setState(StateCooldown)
}

// drainNodes cordons the scale-down candidates and evicts their remaining
// pods so nothing is abruptly terminated when the pool shrinks.
func (s *Service) drainNodes(ctx context.Context, logger *slog.Logger, nodeIDs []string) error {
	for _, nodeID := range nodeIDs {
		cctx, cancel := context.WithTimeout(ctx, s.params.ProviderTimeout)

		err := s.params.Drainer.CordonNode(cctx, nodeID)
		if err == nil {
			err = s.params.Drainer.DrainNode(cctx, nodeID)
		}

		cancel()

		if err != nil {
			return fmt.Errorf("%w %s: %w", ErrDrainNode, nodeID, err)
		}

		logger.InfoContext(ctx, "node drained", "node", nodeID)
	}

	return nil
}

// trackIdle annotates snapshot nodes with how long they have been below the
// low-water utilization mark. Unknown utilization never counts as idle.
func (s *Service) trackIdle(snapshot *ClusterSnapshot) {
	seen := make(map[string]struct{}, len(snapshot.Nodes))

	for i := range snapshot.Nodes {
		node := &snapshot.Nodes[i]
		seen[node.ID] = struct{}{}

		if !s.isIdleNow(node) {
			delete(s.idleSince, node.ID)

			continue
		}

		since, ok := s.idleSince[node.ID]
		if !ok {
			since = snapshot.CapturedAt
			s.idleSince[node.ID] = since
		}

		node.IdleSince = &since
	}

	for id := range s.idleSince {
		if _, ok := seen[id]; !ok {
			delete(s.idleSince, id)
		}
	}
}

func (s *Service) isIdleNow(node *Node) bool {
	if node.HasWorkload || node.Utilization == nil {
		return false
	}

	cpuAlloc := node.Allocatable.CPU.MilliValue()
	memAlloc := node.Allocatable.Memory.Value()

	if cpuAlloc <= 0 || memAlloc <= 0 {
		return false
	}

	cpuPct := node.Utilization.CPU.MilliValue() * 100 / cpuAlloc
	memPct := node.Utilization.Memory.Value() * 100 / memAlloc

	return cpuPct < int64(s.params.LowWaterPercent) && memPct < int64(s.params.LowWaterPercent)
}

func (s *Service) halt(ctx context.Context, logger *slog.Logger, reason string) {
	s.mu.Lock()
	s.halted = true
	s.haltReason = reason
	s.mu.Unlock()

	metrics.SetScalingHalted(true)
	logger.ErrorContext(ctx, "scaling halted until operator intervenes", "reason", reason)
	s.notify(ctx, "autoscaler halted: "+reason)
}

func (s *Service) notify(ctx context.Context, message string) {
	if s.params.Notifier == nil {
		return
	}

	s.params.Notifier.Notify(ctx, message)
}

func classifyProviderError(err error) string {
	var (
		t  throttled
		a  authFailure
		n  notFound
		tr transient
	)

	switch {
	case errors.As(err, &t):
		return "throttled"
	case errors.As(err, &a):
		return "auth_failure"
	case errors.As(err, &n):
		return "not_found"
	case errors.As(err, &tr):
		return "transient"
	default:
		// Timeouts and unclassified failures are retried like transient ones.
		return "transient"
	}
}

func isFatalProviderError(err error) bool {
	var (
		a authFailure
		n notFound
	)

	return errors.As(err, &a) || errors.As(err, &n)
}

func (s *Service) state() LoopState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loopState
}

func (s *Service) setState(state LoopState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loopState = state
}

func (s *Service) poolState() PoolState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pool
}

func (s *Service) isHalted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.halted
}

func (s *Service) lastScale() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastScaleAt
}

func (s *Service) setLastDecision(decision ScalingDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastDecision = &decision
}

func (s *Service) setOutstanding(request *ScaleRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outstanding = request
}

// lastCycleAge reports zero until the first cycle completes.
func (s *Service) lastCycleAge() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastCycleEnd.IsZero() {
		return 0
	}

	return time.Since(s.lastCycleEnd)
}

func (s *Service) setLastCycleEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastCycleEnd = time.Now()
}
