package app

import (
	"context"
	"os"
	"time"

	"github.com/kubescaler/agentpool-autoscaler/internal/infra/appstate"
	"github.com/kubescaler/agentpool-autoscaler/internal/infra/pinger"
	"github.com/kubescaler/agentpool-autoscaler/internal/infra/shutdown"
)

// component is the lifecycle contract shared by the long-running parts of the
// process: the pinger, the servers and the scaler loop.
type component interface {
	Name() string
	Start(ctx context.Context) error
	Ready() <-chan struct{}
	Shutdown(ctx context.Context) error
}

// appstater is the internal interface for application state management. It
// also carries the query methods the HTTP server needs.
type appstater interface {
	RegisterPinger(p pinger.Pinger) error
	RegisterShutdowner(shutdowner shutdown.Shutdowner) error
	Quit() <-chan os.Signal
	SetStarting(ctx context.Context) error
	SetRunning(ctx context.Context) error
	GetState() appstate.State
	GetStartTime() time.Time
	GetUptime() time.Duration
	GetAllStats() map[string]*pinger.Statistics
	IsHealthy() bool
	IsReady() bool
	Shutdown(ctx context.Context) error
}
