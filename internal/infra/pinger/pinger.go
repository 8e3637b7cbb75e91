package pinger

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPingTimeout = 1 * time.Second

// Statistics is a snapshot of one component's probe history.
type Statistics struct {
	Healthy      bool
	LastRun      time.Time
	LastLatency  time.Duration
	LastError    error
	SuccessCount uint64
	ErrorCount   uint64
}

type componentStats struct {
	lastRun      time.Time
	lastLatency  time.Duration
	lastError    error
	successCount uint64
	errorCount   uint64
}

// Service probes registered components on an interval and keeps per-component
// statistics for the status endpoint.
type Service struct {
	logger     *slog.Logger
	interval   time.Duration
	mu         sync.RWMutex
	pingers    map[string]Pinger
	stats      map[string]*componentStats
	ready      chan struct{}
	doneCh     chan struct{}
	inShutdown atomic.Bool
	wg         sync.WaitGroup
}

// New creates a pinger service with the given probe interval.
func New(logger *slog.Logger, interval time.Duration) *Service {
	return &Service{
		logger:   logger,
		interval: interval,
		pingers:  make(map[string]Pinger),
		stats:    make(map[string]*componentStats),
		ready:    make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Name returns the name of the pinger component.
func (s *Service) Name() string {
	return "pinger-service"
}

// Register adds a component to the probe set.
func (s *Service) Register(pinger Pinger) error {
	if pinger == nil {
		return fmt.Errorf("register pinger: pinger cannot be nil")
	}

	name := pinger.Name()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pingers[name]; exists {
		return fmt.Errorf("register pinger %s: %w", name, ErrPingerAlreadyRegistered)
	}

	s.pingers[name] = pinger
	s.stats[name] = &componentStats{}

	s.logger.Info("pinger registered", "name", name)

	return nil
}

// Start launches the probe loop in a goroutine.
func (s *Service) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "pinger service is shutting down, skipping start")

		return nil
	}

	go s.run(ctx)

	return nil
}

// Ready returns a channel closed after the first probe round has started.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Shutdown waits for the probe loop and in-flight probes to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		s.logger.ErrorContext(ctx, "pinger service is already shutting down, skipping shutdown")

		return nil
	}

	defer func() {
		s.logger.InfoContext(ctx, "pinger service shut down")
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before pinger loop exited: %w", ctx.Err())
	case <-s.doneCh:
	}

	s.wg.Wait()

	return nil
}

// GetAllStats returns a copy of the per-component statistics.
func (s *Service) GetAllStats() map[string]*Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*Statistics, len(s.stats))
	for name, st := range s.stats {
		result[name] = &Statistics{
			Healthy:      st.lastError == nil,
			LastRun:      st.lastRun,
			LastLatency:  st.lastLatency,
			LastError:    st.lastError,
			SuccessCount: st.successCount,
			ErrorCount:   st.errorCount,
		}
	}

	return result
}

func (s *Service) run(ctx context.Context) {
	defer close(s.doneCh)

	logger := s.logger.With("component", "pinger-run")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runPingers(ctx, logger)

	close(s.ready)

	for {
		select {
		case <-ticker.C:
			s.runPingers(ctx, logger)
		case <-ctx.Done():
			logger.InfoContext(ctx, "terminating pinger loop")

			return
		}
	}
}

func (s *Service) runPingers(ctx context.Context, logger *slog.Logger) {
	s.mu.RLock()
	pingers := make(map[string]Pinger, len(s.pingers))
	maps.Copy(pingers, s.pingers)
	s.mu.RUnlock()

	for name, pinger := range pingers {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.wg.Add(1)

		go func(name string, pinger Pinger) {
			defer s.wg.Done()

			pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
			defer cancel()

			start := time.Now()
			err := pinger.Ping(pingCtx)
			latency := time.Since(start)

			s.updateStats(name, latency, err)

			if err != nil {
				logger.DebugContext(ctx, "pinger error", "name", name, "latency", latency, "reason", err)
			}
		}(name, pinger)
	}
}

func (s *Service) updateStats(name string, latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.stats[name]
	if !exists {
		return
	}

	st.lastRun = time.Now()
	st.lastLatency = latency
	st.lastError = err

	if err != nil {
		st.errorCount++
	} else {
		st.successCount++
	}
}
