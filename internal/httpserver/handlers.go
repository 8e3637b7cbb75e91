package httpserver

import (
	"encoding/json"
	"net/http"
	"time"
)

type componentStatus struct {
	Healthy      bool   `json:"healthy"`
	LastRun      string `json:"lastRun,omitempty"`
	LastLatency  string `json:"lastLatency,omitempty"`
	LastError    string `json:"lastError,omitempty"`
	SuccessCount uint64 `json:"successCount"`
	ErrorCount   uint64 `json:"errorCount"`
}

type scaleRequestStatus struct {
	Target        int       `json:"target"`
	IssuedAt      time.Time `json:"issuedAt"`
	CorrelationID string    `json:"correlationId"`
}

type decisionStatus struct {
	Target        int      `json:"target"`
	Reason        string   `json:"reason"`
	PendingPodIDs []string `json:"pendingPodIds,omitempty"`
	IdleNodeIDs   []string `json:"idleNodeIds,omitempty"`
}

type statusResponse struct {
	State     string    `json:"state"`
	Uptime    string    `json:"uptime"`
	StartTime time.Time `json:"startTime"`
	UptimeSec float64   `json:"uptimeSeconds"`

	LoopState    string              `json:"loopState"`
	PoolSize     int                 `json:"poolSize"`
	MinSize      int                 `json:"minSize"`
	MaxSize      int                 `json:"maxSize"`
	Halted       bool                `json:"halted"`
	HaltReason   string              `json:"haltReason,omitempty"`
	LastScaleAt  *time.Time          `json:"lastScaleAt,omitempty"`
	LastDecision *decisionStatus     `json:"lastDecision,omitempty"`
	Outstanding  *scaleRequestStatus `json:"outstandingRequest,omitempty"`

	Components map[string]componentStatus `json:"components"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if !s.appState.IsHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !s.appState.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uptime := s.appState.GetUptime()
	loop := s.scaler.Status()

	response := statusResponse{
		State:     string(s.appState.GetState()),
		Uptime:    uptime.String(),
		StartTime: s.appState.GetStartTime(),
		UptimeSec: uptime.Seconds(),

		LoopState:  string(loop.State),
		PoolSize:   loop.Pool.CurrentSize,
		MinSize:    loop.Pool.MinSize,
		MaxSize:    loop.Pool.MaxSize,
		Halted:     loop.Halted,
		HaltReason: loop.HaltReason,

		Components: make(map[string]componentStatus),
	}

	if !loop.LastScaleAt.IsZero() {
		t := loop.LastScaleAt
		response.LastScaleAt = &t
	}

	if loop.LastDecision != nil {
		response.LastDecision = &decisionStatus{
			Target:        loop.LastDecision.Target,
			Reason:        string(loop.LastDecision.Reason),
			PendingPodIDs: loop.LastDecision.PendingPodIDs,
			IdleNodeIDs:   loop.LastDecision.IdleNodeIDs,
		}
	}

	if loop.Outstanding != nil {
		response.Outstanding = &scaleRequestStatus{
			Target:        loop.Outstanding.Target,
			IssuedAt:      loop.Outstanding.IssuedAt,
			CorrelationID: loop.Outstanding.CorrelationID,
		}
	}

	for name, stats := range s.appState.GetAllStats() {
		cs := componentStatus{
			Healthy:      stats.Healthy,
			SuccessCount: stats.SuccessCount,
			ErrorCount:   stats.ErrorCount,
		}

		if !stats.LastRun.IsZero() {
			cs.LastRun = stats.LastRun.Format(time.RFC3339)
			cs.LastLatency = stats.LastLatency.String()
		}

		if stats.LastError != nil {
			cs.LastError = stats.LastError.Error()
		}

		response.Components[name] = cs
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.ErrorContext(ctx, "failed to encode status response", "error", err)
	}
}
