package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kubescaler/agentpool-autoscaler/internal/infra/appstate"
	"github.com/kubescaler/agentpool-autoscaler/internal/infra/pinger"
	"github.com/kubescaler/agentpool-autoscaler/internal/logic/scaler"
)

type fakeAppState struct {
	healthy   bool
	ready     bool
	state     appstate.State
	startTime time.Time
	uptime    time.Duration
	stats     map[string]*pinger.Statistics
}

func (f *fakeAppState) IsHealthy() bool { return f.healthy }

func (f *fakeAppState) IsReady() bool { return f.ready }

func (f *fakeAppState) GetState() appstate.State { return f.state }

func (f *fakeAppState) GetUptime() time.Duration { return f.uptime }

func (f *fakeAppState) GetStartTime() time.Time { return f.startTime }

func (f *fakeAppState) GetAllStats() map[string]*pinger.Statistics { return f.stats }

type fakeScaler struct {
	status scaler.Status
}

func (f *fakeScaler) Status() scaler.Status { return f.status }

func runningAppState() *fakeAppState {
	return &fakeAppState{
		healthy:   true,
		ready:     true,
		state:     appstate.StateRunning,
		startTime: time.Now().Add(-time.Hour),
		uptime:    time.Hour,
		stats: map[string]*pinger.Statistics{
			"scaler-loop": {
				Healthy:      true,
				LastRun:      time.Now(),
				LastLatency:  3 * time.Millisecond,
				SuccessCount: 42,
			},
		},
	}
}

func newTestServer(appState *fakeAppState, loop scaler.Status) *Server {
	return New(slog.New(slog.DiscardHandler), appState, &fakeScaler{status: loop}, "0")
}

func TestHandleHealthz(t *testing.T) {
	t.Parallel()

	t.Run("healthy returns 200", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(runningAppState(), scaler.Status{})
		rec := httptest.NewRecorder()

		server.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/-/healthz", nil))

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unhealthy returns 503", func(t *testing.T) {
		t.Parallel()

		appState := runningAppState()
		appState.healthy = false
		server := newTestServer(appState, scaler.Status{})
		rec := httptest.NewRecorder()

		server.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/-/healthz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHandleReadyz(t *testing.T) {
	t.Parallel()

	t.Run("ready returns 200", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(runningAppState(), scaler.Status{})
		rec := httptest.NewRecorder()

		server.handleReadyz(rec, httptest.NewRequest(http.MethodGet, "/-/readyz", nil))

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not ready returns 503", func(t *testing.T) {
		t.Parallel()

		appState := runningAppState()
		appState.ready = false
		server := newTestServer(appState, scaler.Status{})
		rec := httptest.NewRecorder()

		server.handleReadyz(rec, httptest.NewRequest(http.MethodGet, "/-/readyz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHandleStatus(t *testing.T) {
	t.Parallel()

	t.Run("reports the loop and component state", func(t *testing.T) {
		t.Parallel()

		scaledAt := time.Now().Add(-2 * time.Minute)
		loop := scaler.Status{
			State: scaler.StateCooldown,
			Pool: scaler.PoolState{
				CurrentSize: 5,
				MinSize:     1,
				MaxSize:     10,
			},
			LastScaleAt: scaledAt,
			LastDecision: &scaler.ScalingDecision{
				Target:        5,
				Reason:        scaler.ReasonScaleUp,
				PendingPodIDs: []string{"default/backlog"},
			},
		}

		server := newTestServer(runningAppState(), loop)
		rec := httptest.NewRecorder()

		server.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/-/status", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got statusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))

		require.Equal(t, "running", got.State)
		require.Equal(t, "Cooldown", got.LoopState)
		require.Equal(t, 5, got.PoolSize)
		require.Equal(t, 1, got.MinSize)
		require.Equal(t, 10, got.MaxSize)
		require.False(t, got.Halted)
		require.NotNil(t, got.LastScaleAt)
		require.NotNil(t, got.LastDecision)
		require.Equal(t, "ScaleUp", got.LastDecision.Reason)
		require.Equal(t, []string{"default/backlog"}, got.LastDecision.PendingPodIDs)
		require.Nil(t, got.Outstanding)

		require.Contains(t, got.Components, "scaler-loop")
		require.True(t, got.Components["scaler-loop"].Healthy)
		require.Equal(t, uint64(42), got.Components["scaler-loop"].SuccessCount)
	})

	t.Run("reports halt and outstanding request", func(t *testing.T) {
		t.Parallel()

		loop := scaler.Status{
			State:      scaler.StateAwaitingConfirmation,
			Pool:       scaler.PoolState{CurrentSize: 3, MinSize: 1, MaxSize: 10},
			Halted:     true,
			HaltReason: "provider error (auth_failure)",
			Outstanding: &scaler.ScaleRequest{
				Target:        4,
				IssuedAt:      time.Now(),
				CorrelationID: "corr-7",
			},
		}

		appState := runningAppState()
		appState.stats = map[string]*pinger.Statistics{
			"http-server": {
				Healthy:    false,
				LastRun:    time.Now(),
				LastError:  errors.New("probe timeout"),
				ErrorCount: 1,
			},
		}

		server := newTestServer(appState, loop)
		rec := httptest.NewRecorder()

		server.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/-/status", nil))

		var got statusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))

		require.True(t, got.Halted)
		require.Equal(t, "provider error (auth_failure)", got.HaltReason)
		require.Nil(t, got.LastScaleAt)
		require.NotNil(t, got.Outstanding)
		require.Equal(t, 4, got.Outstanding.Target)
		require.Equal(t, "corr-7", got.Outstanding.CorrelationID)

		require.Equal(t, "probe timeout", got.Components["http-server"].LastError)
		require.Equal(t, uint64(1), got.Components["http-server"].ErrorCount)
	})
}

func TestServerLifecycle(t *testing.T) {
	t.Parallel()

	server := newTestServer(runningAppState(), scaler.Status{State: scaler.StateIdle, Pool: scaler.PoolState{MinSize: 1, MaxSize: 10}})

	ctx := t.Context()
	require.Error(t, server.Ping(ctx))

	require.NoError(t, server.Start(ctx))

	select {
	case <-server.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	require.NoError(t, server.Ping(ctx))

	require.NoError(t, server.Shutdown(ctx))
	// A second shutdown is a no-op.
	require.NoError(t, server.Shutdown(ctx))
}
