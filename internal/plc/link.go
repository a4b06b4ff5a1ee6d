package plc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotConnected is returned by I/O operations while the health check
// has not verified reachability of the controller.
var ErrNotConnected = errors.New("plc not connected")

// ConnectionEvent is delivered to subscribers on every connectivity
// transition, never on no-op health checks.
type ConnectionEvent struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

// ConnectionHandler receives connectivity transitions.
type ConnectionHandler interface {
	HandleConnectionEvent(ConnectionEvent)
}

// ConnectionStatus is the queryable link state.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
}

// IOSnapshot is a best-effort bulk read of the controller. Outputs and
// marks degrade to empty slices when their read fails, inputs are
// mandatory for the snapshot to count as successful.
type IOSnapshot struct {
	Inputs  []bool `json:"inputs"`
	Outputs []bool `json:"outputs"`
	Marks   []bool `json:"marks"`
}

// Link owns the connection to the controller. It verifies reachability
// on a fixed interval in the background and performs every I/O call on
// a fresh short-lived connection to tolerate a flaky field bus.
type Link struct {
	logger         *zap.Logger
	dialer         Dialer
	connectTimeout time.Duration
	retryInterval  time.Duration
	stopTimeout    time.Duration
	unitID         uint8

	mu          sync.RWMutex
	host        string
	port        int
	connected   bool
	subscribers map[ConnectionHandler]struct{}

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// LinkConfig carries the connection parameters of a Link.
type LinkConfig struct {
	Host           string
	Port           int
	UnitID         uint8
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	StopTimeout    time.Duration
}

func NewLink(cfg LinkConfig, logger *zap.Logger) *Link {
	if cfg.Port == 0 {
		cfg.Port = 502
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 2 * time.Second
	}

	return &Link{
		logger:         logger,
		dialer:         netDialer,
		connectTimeout: cfg.ConnectTimeout,
		retryInterval:  cfg.RetryInterval,
		stopTimeout:    cfg.StopTimeout,
		unitID:         cfg.UnitID,
		host:           cfg.Host,
		port:           cfg.Port,
		subscribers:    make(map[ConnectionHandler]struct{}),
	}
}

// Start startet den Health-Check im Hintergrund
func (l *Link) Start() error {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	if l.running {
		return nil
	}

	l.running = true
	l.stopChan = make(chan struct{})
	l.wg.Add(1)

	go l.healthLoop()

	l.logger.Info("PLC link started",
		zap.String("host", l.Host()),
		zap.Duration("retry_interval", l.retryInterval))

	return nil
}

// Stop signals the health-check goroutine and waits up to the stop
// timeout. A goroutine that fails to exit in time is logged, not fatal.
func (l *Link) Stop() {
	l.runMu.Lock()
	if !l.running {
		l.runMu.Unlock()
		return
	}
	l.running = false
	close(l.stopChan)
	l.runMu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("PLC link stopped")
	case <-time.After(l.stopTimeout):
		l.logger.Warn("PLC health-check goroutine did not stop in time",
			zap.Duration("timeout", l.stopTimeout))
	}

	l.mu.Lock()
	l.subscribers = make(map[ConnectionHandler]struct{})
	l.mu.Unlock()
}

func (l *Link) healthLoop() {
	defer l.wg.Done()

	// Every tick re-probes, connectivity is never assumed to persist.
	var lastNotified *bool

	probe := func() {
		connected := l.probe()

		if lastNotified == nil || *lastNotified != connected {
			if connected {
				l.notify(ConnectionEvent{Connected: true, Message: "PLC connected"})
				l.logger.Info("PLC connectivity changed", zap.Bool("connected", true))
			} else {
				l.notify(ConnectionEvent{Connected: false, Message: "PLC disconnected"})
				l.logger.Warn("PLC connectivity changed", zap.Bool("connected", false))
			}
			state := connected
			lastNotified = &state
		}
	}

	probe()

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			probe()
		}
	}
}

// probe opens a short-lived connection as a reachability check and
// records the result. It is the only writer of the connected flag.
func (l *Link) probe() bool {
	conn, err := l.dialer(l.address(), l.connectTimeout)

	l.mu.Lock()
	l.connected = err == nil
	connected := l.connected
	l.mu.Unlock()

	if err == nil {
		conn.Close()
	}

	return connected
}

// Subscribe registers a handler for connectivity transitions. Adding an
// already-registered handler is a no-op.
func (l *Link) Subscribe(h ConnectionHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers[h] = struct{}{}
}

// Unsubscribe removes a handler. Removing an unknown handler is a no-op.
func (l *Link) Unsubscribe(h ConnectionHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subscribers, h)
}

func (l *Link) notify(ev ConnectionEvent) {
	l.mu.RLock()
	handlers := make([]ConnectionHandler, 0, len(l.subscribers))
	for h := range l.subscribers {
		handlers = append(handlers, h)
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		// A misbehaving subscriber must not prevent delivery to the rest.
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.logger.Error("Connection event handler panicked", zap.Any("panic", r))
				}
			}()
			h.HandleConnectionEvent(ev)
		}()
	}
}

// Connected reports the result of the last health check.
func (l *Link) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// Status returns the current connection state.
func (l *Link) Status() ConnectionStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return ConnectionStatus{
		Connected: l.connected,
		Host:      l.host,
		Port:      l.port,
	}
}

// Host returns the configured controller address.
func (l *Link) Host() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.host
}

func (l *Link) address() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fmt.Sprintf("%s:%d", l.host, l.port)
}

// Reconfigure updates the controller address. The next health check
// probes the new target.
func (l *Link) Reconfigure(host string, port int) {
	if port == 0 {
		port = 502
	}

	l.mu.Lock()
	changed := host != l.host || port != l.port
	l.host = host
	l.port = port
	l.mu.Unlock()

	if changed {
		l.logger.Info("PLC address reconfigured",
			zap.String("host", host),
			zap.Int("port", port))
	}
}

// withClient runs one operation on a transient connection. The
// connection is closed on every exit path.
func (l *Link) withClient(fn func(*client) error) error {
	conn, err := l.dialer(l.address(), l.connectTimeout)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c := newClient(conn, l.connectTimeout)
	defer c.close()

	return fn(c)
}

// WriteCoil sets a coil by its symbolic address ("Q1".."Q12", "M1".."M64").
func (l *Link) WriteCoil(symbol string) error {
	return l.writeCoil(symbol, true)
}

// ClearCoil resets a coil by its symbolic address.
func (l *Link) ClearCoil(symbol string) error {
	return l.writeCoil(symbol, false)
}

func (l *Link) writeCoil(symbol string, value bool) error {
	addr, err := ParseCoilAddress(symbol)
	if err != nil {
		return err
	}

	if !l.Connected() {
		return ErrNotConnected
	}

	err = l.withClient(func(c *client) error {
		return c.writeSingleCoil(l.unitID, addr, value)
	})
	if err != nil {
		return fmt.Errorf("writing %s=%t: %w", symbol, value, err)
	}

	l.logger.Debug("Coil written", zap.String("coil", symbol), zap.Bool("value", value))
	return nil
}

// ReadCoils reads a run of coil states starting at a register address.
func (l *Link) ReadCoils(startAddr uint16, quantity uint16) ([]bool, error) {
	if !l.Connected() {
		return nil, ErrNotConnected
	}

	var bits []bool
	err := l.withClient(func(c *client) error {
		var err error
		bits, err = c.readCoils(l.unitID, startAddr, quantity)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading coils %d+%d: %w", startAddr, quantity, err)
	}

	return bits, nil
}

// ReadDiscreteInputs reads the controller's discrete inputs I1-I8.
func (l *Link) ReadDiscreteInputs() ([]bool, error) {
	if !l.Connected() {
		return nil, ErrNotConnected
	}

	var bits []bool
	err := l.withClient(func(c *client) error {
		var err error
		bits, err = c.readDiscreteInputs(l.unitID, 0, InputCount)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading discrete inputs: %w", err)
	}

	return bits, nil
}

// ReadAllInputs reads I1-I8.
func (l *Link) ReadAllInputs() ([]bool, error) {
	return l.ReadDiscreteInputs()
}

// ReadAllOutputs reads Q1-Q12.
func (l *Link) ReadAllOutputs() ([]bool, error) {
	return l.ReadCoils(OutputBase, OutputCount)
}

// ReadAllMarks reads the first eight marks M1-M8.
func (l *Link) ReadAllMarks() ([]bool, error) {
	return l.ReadCoils(MarkBase, 8)
}

// ReadAll reads inputs, outputs and marks. The snapshot is best-effort:
// it succeeds if at least the discrete inputs were read, outputs and
// marks degrade to empty slices on partial failure.
func (l *Link) ReadAll() (IOSnapshot, error) {
	inputs, err := l.ReadAllInputs()
	if err != nil {
		return IOSnapshot{}, err
	}

	snapshot := IOSnapshot{
		Inputs:  inputs,
		Outputs: []bool{},
		Marks:   []bool{},
	}

	if outputs, err := l.ReadAllOutputs(); err == nil {
		snapshot.Outputs = outputs
	} else {
		l.logger.Warn("Output read failed during bulk read", zap.Error(err))
	}

	if marks, err := l.ReadAllMarks(); err == nil {
		snapshot.Marks = marks
	} else {
		l.logger.Warn("Mark read failed during bulk read", zap.Error(err))
	}

	return snapshot, nil
}
