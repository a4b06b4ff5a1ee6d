package process

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cycler is the minimal subsystem machine: a fixed-delay three-state
// loop with a cycle counter. Vision and Robot are instances of it; a
// new subsystem starts from this shape and grows its own transition
// table the way the feeder did.
type Cycler struct {
	name   string
	color  string
	states map[int]string
	delay  time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    int
	counter  int
	lastTick time.Time
}

func NewCycler(name, color string, states map[int]string, delay time.Duration, logger *zap.Logger) *Cycler {
	return &Cycler{
		name:   name,
		color:  color,
		states: states,
		delay:  delay,
		logger: logger,
		now:    time.Now,
	}
}

// NewVision builds the vision stage machine.
func NewVision(logger *zap.Logger) *Cycler {
	return NewCycler("Vision", "info", map[int]string{
		0: "Capturando",
		1: "Procesando",
		2: "Validando",
	}, time.Second, logger)
}

// NewRobot builds the robot machine.
func NewRobot(logger *zap.Logger) *Cycler {
	return NewCycler("Robot", "warning", map[int]string{
		0: "Inicio",
		1: "Movimiento",
		2: "Aproximación",
	}, 1500*time.Millisecond, logger)
}

func (c *Cycler) Step(state SystemState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Before(c.lastTick.Add(c.delay)) {
		return
	}
	c.lastTick = now

	switch state {
	case StateStopped:
		c.state = 0
		c.counter = 0
		return
	case StatePaused:
		// State frozen; the tick timer above still resets so resume
		// does not burst through transitions.
		return
	case StateRunning:
		c.counter++

		switch c.state {
		case 0, 1:
			c.state++
		case 2:
			c.state = 0
		default:
			c.logger.Warn("Invalid machine state, resetting",
				zap.String("machine", c.name),
				zap.Int("state", c.state))
			c.state = 0
		}
	}
}

func (c *Cycler) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		State:      c.state,
		StateLabel: c.label(c.state),
		Counter:    c.counter,
	}
}

func (c *Cycler) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = 0
	c.counter = 0
	c.lastTick = time.Time{}
}

func (c *Cycler) Config() Config {
	states := make(map[int]string, len(c.states))
	for k, v := range c.states {
		states[k] = v
	}

	return Config{
		Name:   c.name,
		Color:  c.color,
		States: states,
	}
}

func (c *Cycler) label(state int) string {
	if label, ok := c.states[state]; ok {
		return label
	}
	return fmt.Sprintf("Estado %d (no definido)", state)
}
