package profile

import (
	"time"

	"github.com/KevinKickass/OpenCellCore/internal/process"
)

// CellProfile describes the controller contract of one cell: which
// marks the LOGO program assigns to each feeder role and how fast each
// state may transition. A different LOGO program is a profile edit, not
// a code change.
type CellProfile struct {
	Name    string        `json:"name"`
	Version int           `json:"version"`
	Feeder  FeederProfile `json:"feeder"`
}

type FeederProfile struct {
	Marks         FeederMarks    `json:"marks"`
	DelaysMs      map[string]int `json:"delays_ms,omitempty"`
	MarksInterval int            `json:"marks_interval_ms,omitempty"`
}

type FeederMarks struct {
	Request      int `json:"request"`
	MotorOn      int `json:"motor_on"`
	NoStock      int `json:"no_stock"`
	Enable       int `json:"enable"`
	PartDetected int `json:"part_detected"`
	Reset        int `json:"reset"`
}

// FeederSettings maps the profile onto the feeder machine's settings.
// Delay overrides with unparseable state keys were already rejected by
// schema validation.
func (p *CellProfile) FeederSettings() process.FeederSettings {
	settings := process.DefaultFeederSettings()

	settings.RequestMark = p.Feeder.Marks.Request
	settings.MotorOnMark = p.Feeder.Marks.MotorOn
	settings.NoStockMark = p.Feeder.Marks.NoStock
	settings.EnableMark = p.Feeder.Marks.Enable
	settings.PartDetectedMark = p.Feeder.Marks.PartDetected
	settings.ResetMark = p.Feeder.Marks.Reset

	if p.Feeder.MarksInterval > 0 {
		settings.MarksInterval = time.Duration(p.Feeder.MarksInterval) * time.Millisecond
	}

	if len(p.Feeder.DelaysMs) > 0 {
		settings.Delays = make(map[int]time.Duration, len(p.Feeder.DelaysMs))
		for key, ms := range p.Feeder.DelaysMs {
			state := parseStateKey(key)
			if state < 0 {
				continue
			}
			settings.Delays[state] = time.Duration(ms) * time.Millisecond
		}
	}

	return settings
}

func parseStateKey(key string) int {
	state := 0
	for _, r := range key {
		if r < '0' || r > '9' {
			return -1
		}
		state = state*10 + int(r-'0')
	}
	if key == "" {
		return -1
	}
	return state
}
