package process

// Status is a fresh snapshot of one subsystem machine, produced on each
// query and never mutated in place.
type Status struct {
	State      int    `json:"state"`
	StateLabel string `json:"state_label"`
	Counter    int    `json:"counter"`
}

// Config is the static description of a machine for display purposes.
type Config struct {
	Name   string         `json:"name"`
	Color  string         `json:"color"`
	States map[int]string `json:"states"`
}

// Machine is one independently-clocked subsystem state machine. Step is
// called every orchestrator tick; each machine gates its own transition
// logic on its per-state delay.
type Machine interface {
	Step(state SystemState)
	Status() Status
	Reset()
	Config() Config
}
