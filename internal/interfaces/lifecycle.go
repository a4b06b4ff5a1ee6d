package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenCellCore/internal/config"
	"github.com/KevinKickass/OpenCellCore/internal/plc"
	"github.com/KevinKickass/OpenCellCore/internal/process"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State        string `json:"state"`
	ProcessAlive bool   `json:"process_alive"`
	PLCConnected bool   `json:"plc_connected"`
	Profile      string `json:"profile"`
}

type LifecycleManager interface {
	Config() *config.Config
	Orchestrator() *process.Orchestrator
	PLC() *plc.Link
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
