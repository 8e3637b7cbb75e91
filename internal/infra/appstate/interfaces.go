package appstate

import (
	"github.com/kubescaler/agentpool-autoscaler/internal/infra/pinger"
)

// pingerServer is the internal interface for probe registry management.
type pingerServer interface {
	Register(pinger pinger.Pinger) error
	GetAllStats() map[string]*pinger.Statistics
}
