package process

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProcessStatus is the aggregated per-tick snapshot fanned out to
// observers and served to the presentation layer.
type ProcessStatus struct {
	Running       bool         `json:"running"`
	SystemState   string       `json:"system_state"`
	PartDelivered bool         `json:"part_delivered"`
	Feeder        FeederStatus `json:"feeder"`
	Vision        Status       `json:"vision"`
	Robot         Status       `json:"robot"`
}

// StatusObserver receives the aggregated snapshot once per tick.
// Observers are responsible for their own throttling.
type StatusObserver interface {
	OnProcessStatus(ProcessStatus)
}

// Orchestrator drives the three subsystem machines at a fixed cadence.
// Within one tick the machines run strictly sequentially, feeder first
// because it owns the PLC interaction the others depend on.
type Orchestrator struct {
	feeder   *Feeder
	vision   *Cycler
	robot    *Cycler
	machines []Machine // tick order: feeder, vision, robot
	signals  *Signals
	logger   *zap.Logger

	tickInterval time.Duration
	stopTimeout  time.Duration

	stateMu     sync.RWMutex
	systemState SystemState

	observersMu sync.RWMutex
	observers   map[StatusObserver]struct{}

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// OrchestratorConfig carries the scheduler parameters.
type OrchestratorConfig struct {
	TickInterval time.Duration
	StopTimeout  time.Duration
}

func NewOrchestrator(feeder *Feeder, vision, robot *Cycler, signals *Signals, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 2 * time.Second
	}

	return &Orchestrator{
		feeder:       feeder,
		vision:       vision,
		robot:        robot,
		machines:     []Machine{feeder, vision, robot},
		signals:      signals,
		logger:       logger,
		tickInterval: cfg.TickInterval,
		stopTimeout:  cfg.StopTimeout,
		systemState:  StateStopped,
		observers:    make(map[StatusObserver]struct{}),
	}
}

// Start launches the tick loop. Starting a running orchestrator is a
// no-op reporting success.
func (o *Orchestrator) Start() error {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if o.running {
		return nil
	}

	o.running = true
	o.stopChan = make(chan struct{})
	o.wg.Add(1)

	go o.run()

	o.logger.Info("Orchestrator started", zap.Duration("tick_interval", o.tickInterval))
	return nil
}

// Stop signals the loop and waits up to the stop timeout. A loop that
// fails to exit in time is logged, not treated as fatal.
func (o *Orchestrator) Stop() {
	o.runMu.Lock()
	if !o.running {
		o.runMu.Unlock()
		return
	}
	o.running = false
	close(o.stopChan)
	o.runMu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("Orchestrator stopped")
	case <-time.After(o.stopTimeout):
		o.logger.Warn("Orchestrator tick goroutine did not stop in time",
			zap.Duration("timeout", o.stopTimeout))
	}
}

// Running reports whether the tick loop is active.
func (o *Orchestrator) Running() bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return o.running
}

func (o *Orchestrator) run() {
	defer o.wg.Done()

	// Best-effort cadence: a tick that overruns is followed
	// immediately by the next one, missed ticks are not replayed.
	ticker := time.NewTicker(o.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopChan:
			return
		case <-ticker.C:
			o.Tick()
		}
	}
}

// Tick runs one scheduler iteration: a single system-state snapshot,
// the three machines in fixed order, then the observer fanout.
func (o *Orchestrator) Tick() {
	state := o.SystemState()

	for _, m := range o.machines {
		m.Step(state)
	}

	o.notifyObservers(o.Status())
}

// SystemState returns the current global run state.
func (o *Orchestrator) SystemState() SystemState {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.systemState
}

// SetSystemState switches the global run state. Switching to STOPPED
// resets every machine to its initial state for a clean restart.
func (o *Orchestrator) SetSystemState(state SystemState) error {
	switch state {
	case StateStopped, StatePaused, StateRunning:
	default:
		return fmt.Errorf("invalid system state: %d", state)
	}

	o.stateMu.Lock()
	o.systemState = state
	o.stateMu.Unlock()

	o.logger.Info("System state changed", zap.String("state", state.String()))

	if state == StateStopped {
		for _, m := range o.machines {
			m.Reset()
		}
		o.logger.Info("Subsystem machines reset")
	}

	return nil
}

// RequestPart raises the part request consumed by the feeder.
func (o *Orchestrator) RequestPart() {
	o.signals.RequestPart()
	o.logger.Info("Part requested")
}

// ConsumePartDelivered reads and clears the delivered flag on behalf of
// the presentation layer, the flag's designated consumer.
func (o *Orchestrator) ConsumePartDelivered() bool {
	return o.signals.ConsumeDelivered()
}

// Status builds a fresh aggregated snapshot.
func (o *Orchestrator) Status() ProcessStatus {
	return ProcessStatus{
		Running:       o.Running(),
		SystemState:   o.SystemState().String(),
		PartDelivered: o.signals.PartDelivered(),
		Feeder:        o.feeder.FullStatus(),
		Vision:        o.vision.Status(),
		Robot:         o.robot.Status(),
	}
}

// Configs returns the static per-subsystem configuration for display.
func (o *Orchestrator) Configs() map[string]Config {
	return map[string]Config{
		"feeder": o.feeder.Config(),
		"vision": o.vision.Config(),
		"robot":  o.robot.Config(),
	}
}

// RegisterObserver adds a status observer. Adding an already-registered
// observer is a no-op.
func (o *Orchestrator) RegisterObserver(obs StatusObserver) {
	o.observersMu.Lock()
	defer o.observersMu.Unlock()
	o.observers[obs] = struct{}{}
}

// UnregisterObserver removes a status observer.
func (o *Orchestrator) UnregisterObserver(obs StatusObserver) {
	o.observersMu.Lock()
	defer o.observersMu.Unlock()
	delete(o.observers, obs)
}

func (o *Orchestrator) notifyObservers(status ProcessStatus) {
	o.observersMu.RLock()
	observers := make([]StatusObserver, 0, len(o.observers))
	for obs := range o.observers {
		observers = append(observers, obs)
	}
	o.observersMu.RUnlock()

	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("Status observer panicked", zap.Any("panic", r))
				}
			}()
			obs.OnProcessStatus(status)
		}()
	}
}
