package process

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Feeder states. The cycle always starts from IDLE; ESPERANDO through
// ENTREGANDO is the request-to-delivery sequence against the PLC.
const (
	FeederIdle        = 0
	FeederSinStock    = 1
	FeederAnulado     = 2
	FeederEsperando   = 10
	FeederSolicitando = 20
	FeederEncendiendo = 30
	FeederEntregando  = 40
	FeederError       = 100
)

var feederStates = map[int]string{
	FeederIdle:        "IDLE (REPOSO)",
	FeederSinStock:    "SIN STOCK",
	FeederAnulado:     "ANULADO",
	FeederEsperando:   "ESPERANDO PETICIÓN",
	FeederSolicitando: "SOLICITANDO JUNTA",
	FeederEncendiendo: "ENCENDIENDO MOTOR",
	FeederEntregando:  "ENTREGANDO JUNTA",
	FeederError:       "ERROR GENERAL",
}

var feederDelays = map[int]time.Duration{
	FeederIdle:        time.Second,
	FeederSinStock:    500 * time.Millisecond,
	FeederAnulado:     500 * time.Millisecond,
	FeederEsperando:   500 * time.Millisecond,
	FeederSolicitando: 100 * time.Millisecond,
	FeederEncendiendo: 200 * time.Millisecond,
	FeederEntregando:  200 * time.Millisecond,
	FeederError:       time.Second,
}

// PLCIO is the slice of the PLC link the feeder depends on.
type PLCIO interface {
	WriteCoil(symbol string) error
	ClearCoil(symbol string) error
	ReadAllMarks() ([]bool, error)
	Connected() bool
}

// FeederSettings maps the feeder's roles onto the controller's mark
// numbers. The defaults match the standard LOGO program; a cell profile
// may remap them.
type FeederSettings struct {
	RequestMark      int // set to ask the PLC for a part, cleared on motor-on
	MotorOnMark      int // PLC confirms the feeder motor is running
	NoStockMark      int // PLC signals stock-out
	EnableMark       int // panel key switch, feeder disabled while false
	PartDetectedMark int // PLC confirms a part fell past the sensor
	ResetMark        int // pulse-detected mark that resets the PLC's RS latches

	MarksInterval time.Duration
	Delays        map[int]time.Duration // per-state overrides
}

func DefaultFeederSettings() FeederSettings {
	return FeederSettings{
		RequestMark:      1,
		MotorOnMark:      2,
		NoStockMark:      3,
		EnableMark:       4,
		PartDetectedMark: 5,
		ResetMark:        6,
		MarksInterval:    500 * time.Millisecond,
	}
}

type feederMarks struct {
	request      bool
	motorOn      bool
	noStock      bool
	enable       bool
	partDetected bool
	reset        bool
}

// FeederStatus extends the common machine status with the PLC-derived
// booleans the presentation layer displays.
type FeederStatus struct {
	Status
	PLCConnected bool `json:"plc_connected"`
	SinStock     bool `json:"sin_stock"`
	Habilitado   bool `json:"habilitado"`
}

// Feeder is the PLC-driven feed machine. It is the only subsystem that
// touches controller I/O and the only clearer of the part request
// signal / setter of the delivered signal.
type Feeder struct {
	plc      PLCIO
	signals  *Signals
	logger   *zap.Logger
	settings FeederSettings
	now      func() time.Time

	mu          sync.Mutex
	state       int
	delay       time.Duration
	lastMachine time.Time
	lastMarks   time.Time
	marks       feederMarks
	prevSystem  SystemState
}

func NewFeeder(plc PLCIO, signals *Signals, settings FeederSettings, logger *zap.Logger) *Feeder {
	if settings.MarksInterval == 0 {
		settings.MarksInterval = 500 * time.Millisecond
	}

	return &Feeder{
		plc:        plc,
		signals:    signals,
		logger:     logger,
		settings:   settings,
		now:        time.Now,
		state:      FeederIdle,
		delay:      feederDelays[FeederIdle],
		prevSystem: -1,
	}
}

func (f *Feeder) Step(state SystemState) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()

	// Entering RUNNING always clears the PLC's reset mark first, so the
	// controller starts from a known-safe condition no matter which
	// feeder state is resumed into.
	if f.prevSystem != state {
		if (f.prevSystem == StateStopped || f.prevSystem == StatePaused) && state == StateRunning {
			if err := f.plc.ClearCoil(f.symbol(f.settings.ResetMark)); err != nil {
				f.logger.Error("Failed to clear PLC reset mark", zap.Error(err))
			}
		}
		f.prevSystem = state
	}

	// Refresh the mark cache on its own cadence, independent of the
	// machine gate. Up to MarksInterval of staleness is accepted.
	if !now.Before(f.lastMarks.Add(f.settings.MarksInterval)) {
		f.lastMarks = now
		f.refreshMarks()
	}

	if now.Before(f.lastMachine.Add(f.delay)) {
		return
	}
	f.lastMachine = now

	switch state {
	case StateStopped:
		f.setState(FeederIdle)
		return
	case StatePaused:
		// Frozen; the gate timestamp above still advanced so resuming
		// does not burst through transitions.
		return
	case StateRunning:
		f.run()
	}
}

// run executes one transition of the feeder table. Caller holds f.mu.
func (f *Feeder) run() {
	// The enable key pre-empts whatever the machine is doing.
	if !f.marks.enable {
		f.setState(FeederAnulado)
	}

	switch f.state {
	case FeederIdle:
		// Stock is only checked at rest: one full cycle runs to
		// completion even if the last part was taken.
		if f.marks.noStock {
			f.setState(FeederSinStock)
			return
		}
		f.setState(FeederEsperando)

	case FeederSinStock:
		if !f.marks.noStock {
			f.setState(FeederIdle)
		}

	case FeederAnulado:
		if f.marks.enable {
			f.setState(FeederIdle)
		}

	case FeederEsperando:
		if f.signals.PartRequested() {
			// Release the PLC's RS latches before starting the cycle.
			if err := f.plc.ClearCoil(f.symbol(f.settings.ResetMark)); err != nil {
				f.logger.Error("Failed to release PLC latches", zap.Error(err))
			}
			f.setState(FeederSolicitando)
		}

	case FeederSolicitando:
		if err := f.plc.WriteCoil(f.symbol(f.settings.RequestMark)); err != nil {
			f.logger.Error("Failed to request part", zap.Error(err))
			return
		}
		f.logger.Info("Part requested from PLC",
			zap.String("mark", f.symbol(f.settings.RequestMark)))
		f.setState(FeederEncendiendo)

	case FeederEncendiendo:
		// TODO: no escape transition if the motor-on mark never
		// arrives; the machine starves here until stopped. Needs an
		// explicit timeout decision.
		if f.marks.motorOn {
			f.signals.AcknowledgeRequest()
			if err := f.plc.ClearCoil(f.symbol(f.settings.RequestMark)); err != nil {
				f.logger.Error("Failed to clear request mark", zap.Error(err))
			}
			f.logger.Info("Feeder motor confirmed on")
			f.setState(FeederEntregando)
		}

	case FeederEntregando:
		if f.marks.partDetected {
			f.signals.MarkDelivered()
			f.logger.Info("Part delivered")
			f.setState(FeederIdle)
		}

	case FeederError:
		// Terminal-ish placeholder, no recovery logic yet.

	default:
		f.logger.Warn("Invalid feeder state, resetting", zap.Int("state", f.state))
		f.setState(FeederIdle)
	}
}

// setState transitions the machine and applies the new state's delay.
// Caller holds f.mu.
func (f *Feeder) setState(state int) {
	if state == f.state {
		if d, ok := f.delayFor(state); ok {
			f.delay = d
		}
		return
	}

	f.logger.Info("Feeder state changed",
		zap.String("from", f.label(f.state)),
		zap.String("to", f.label(state)))

	f.state = state
	if d, ok := f.delayFor(state); ok {
		f.delay = d
	} else {
		f.delay = time.Second
	}
}

func (f *Feeder) delayFor(state int) (time.Duration, bool) {
	if d, ok := f.settings.Delays[state]; ok {
		return d, true
	}
	d, ok := feederDelays[state]
	return d, ok
}

// refreshMarks pulls M1-M6 from the link's bulk mark read. Caller holds
// f.mu; the read itself runs on a short-lived connection.
func (f *Feeder) refreshMarks() {
	marks, err := f.plc.ReadAllMarks()
	if err != nil {
		f.logger.Debug("Mark refresh failed", zap.Error(err))
		return
	}

	read := func(number int) bool {
		if number < 1 || number > len(marks) {
			return false
		}
		return marks[number-1]
	}

	f.marks = feederMarks{
		request:      read(f.settings.RequestMark),
		motorOn:      read(f.settings.MotorOnMark),
		noStock:      read(f.settings.NoStockMark),
		enable:       read(f.settings.EnableMark),
		partDetected: read(f.settings.PartDetectedMark),
		reset:        read(f.settings.ResetMark),
	}
}

func (f *Feeder) symbol(mark int) string {
	return fmt.Sprintf("M%d", mark)
}

func (f *Feeder) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Status{
		State:      f.state,
		StateLabel: f.label(f.state),
	}
}

// FullStatus includes the PLC-derived booleans.
func (f *Feeder) FullStatus() FeederStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	return FeederStatus{
		Status: Status{
			State:      f.state,
			StateLabel: f.label(f.state),
		},
		PLCConnected: f.plc.Connected(),
		SinStock:     f.marks.noStock,
		Habilitado:   f.marks.enable,
	}
}

func (f *Feeder) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state = FeederIdle
	f.delay = feederDelays[FeederIdle]
	f.lastMachine = time.Time{}
}

func (f *Feeder) Config() Config {
	states := make(map[int]string, len(feederStates))
	for k, v := range feederStates {
		states[k] = v
	}

	return Config{
		Name:   "Feeder",
		Color:  "success",
		States: states,
	}
}

func (f *Feeder) label(state int) string {
	if label, ok := feederStates[state]; ok {
		return label
	}
	return fmt.Sprintf("Estado %d (no definido)", state)
}
