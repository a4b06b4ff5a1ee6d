package system

import "fmt"

// LifecycleState is the coarse run state of the whole service, distinct
// from the cell process state the orchestrator manages.
type LifecycleState int

const (
	StateInitializing LifecycleState = iota
	StateRunning
	StateStopping
	StateStopped
	StateError
)

func (s LifecycleState) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func ValidateTransition(from, to LifecycleState) error {
	validTransitions := map[LifecycleState][]LifecycleState{
		StateInitializing: {StateRunning, StateError},
		StateRunning:      {StateStopping, StateError},
		StateStopping:     {StateStopped, StateError},
		StateStopped:      {StateInitializing},
		StateError:        {StateInitializing, StateStopped},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("invalid current state: %s", from)
	}

	for _, validTo := range allowed {
		if validTo == to {
			return nil
		}
	}

	return fmt.Errorf("invalid transition: %s -> %s", from, to)
}
