package httpserver

import (
	"time"

	"github.com/kubescaler/agentpool-autoscaler/internal/infra/appstate"
	"github.com/kubescaler/agentpool-autoscaler/internal/infra/pinger"
	"github.com/kubescaler/agentpool-autoscaler/internal/logic/scaler"
)

// appstater is the internal interface for application state queries.
type appstater interface {
	IsHealthy() bool
	IsReady() bool
	GetState() appstate.State
	GetUptime() time.Duration
	GetStartTime() time.Time
	GetAllStats() map[string]*pinger.Statistics
}

// scalerStatus exposes the reconciliation loop view for the status endpoint.
type scalerStatus interface {
	Status() scaler.Status
}
