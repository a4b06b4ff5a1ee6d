package process

import "fmt"

// SystemState is the single global run state consumed by every
// subsystem machine. It is mutated only through the orchestrator.
type SystemState int

const (
	StateStopped SystemState = iota
	StatePaused
	StateRunning
)

func (s SystemState) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StatePaused:
		return "PAUSED"
	case StateRunning:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// ParseSystemState maps a state label to its value.
func ParseSystemState(label string) (SystemState, error) {
	switch label {
	case "STOPPED":
		return StateStopped, nil
	case "PAUSED":
		return StatePaused, nil
	case "RUNNING":
		return StateRunning, nil
	default:
		return StateStopped, fmt.Errorf("invalid system state: %q", label)
	}
}
