package process

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses []ProcessStatus
}

func (r *recordingObserver) OnProcessStatus(status ProcessStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recordingObserver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

func (r *recordingObserver) last() ProcessStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[len(r.statuses)-1]
}

type panickingObserver struct{}

func (panickingObserver) OnProcessStatus(ProcessStatus) {
	panic("observer crash")
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakePLC, *fakeClock) {
	t.Helper()

	plc := newFakePLC()
	plc.setMark(4, true)

	signals := NewSignals()
	logger := zap.NewNop()

	clock := newFakeClock()
	feeder := NewFeeder(plc, signals, DefaultFeederSettings(), logger)
	feeder.now = clock.now
	vision := NewVision(logger)
	vision.now = clock.now
	robot := NewRobot(logger)
	robot.now = clock.now

	orch := NewOrchestrator(feeder, vision, robot, signals, OrchestratorConfig{
		TickInterval: time.Millisecond,
		StopTimeout:  time.Second,
	}, logger)

	return orch, plc, clock
}

func TestOrchestratorTickDrivesAllMachines(t *testing.T) {
	orch, _, clock := newTestOrchestrator(t)

	if err := orch.SetSystemState(StateRunning); err != nil {
		t.Fatal(err)
	}

	clock.advance(2 * time.Second)
	orch.Tick()

	status := orch.Status()
	if status.SystemState != "RUNNING" {
		t.Fatalf("system state = %q", status.SystemState)
	}
	if status.Feeder.State != FeederEsperando {
		t.Errorf("feeder state = %d, want %d", status.Feeder.State, FeederEsperando)
	}
	if status.Vision.State != 1 {
		t.Errorf("vision state = %d, want 1", status.Vision.State)
	}
	if status.Robot.State != 1 {
		t.Errorf("robot state = %d, want 1", status.Robot.State)
	}
}

func TestOrchestratorStopResetsMachines(t *testing.T) {
	orch, _, clock := newTestOrchestrator(t)

	orch.SetSystemState(StateRunning)
	for i := 0; i < 3; i++ {
		clock.advance(2 * time.Second)
		orch.Tick()
	}

	if err := orch.SetSystemState(StateStopped); err != nil {
		t.Fatal(err)
	}

	status := orch.Status()
	if status.Feeder.State != FeederIdle {
		t.Errorf("feeder state after stop = %d, want %d", status.Feeder.State, FeederIdle)
	}
	if status.Vision.State != 0 || status.Vision.Counter != 0 {
		t.Errorf("vision state/counter after stop = %d/%d, want 0/0",
			status.Vision.State, status.Vision.Counter)
	}
	if status.Robot.State != 0 || status.Robot.Counter != 0 {
		t.Errorf("robot state/counter after stop = %d/%d, want 0/0",
			status.Robot.State, status.Robot.Counter)
	}
}

func TestOrchestratorRejectsUnknownState(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)

	if err := orch.SetSystemState(SystemState(7)); err == nil {
		t.Fatal("expected error for unknown system state")
	}
	if got := orch.SystemState(); got != StateStopped {
		t.Fatalf("system state must be unchanged after rejection, got %s", got)
	}
}

func TestOrchestratorObserverFanout(t *testing.T) {
	orch, _, clock := newTestOrchestrator(t)

	first := &recordingObserver{}
	second := &recordingObserver{}
	orch.RegisterObserver(first)
	orch.RegisterObserver(first) // double registration collapses
	orch.RegisterObserver(second)

	clock.advance(2 * time.Second)
	orch.Tick()

	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("observer counts = %d/%d, want 1/1", first.count(), second.count())
	}

	orch.UnregisterObserver(second)

	clock.advance(2 * time.Second)
	orch.Tick()

	if first.count() != 2 {
		t.Errorf("remaining observer count = %d, want 2", first.count())
	}
	if second.count() != 1 {
		t.Errorf("unregistered observer count = %d, want 1", second.count())
	}
	if got := first.last().SystemState; got != "STOPPED" {
		t.Errorf("snapshot system state = %q, want STOPPED", got)
	}
}

func TestOrchestratorObserverPanicIsIsolated(t *testing.T) {
	orch, _, clock := newTestOrchestrator(t)

	witness := &recordingObserver{}
	orch.RegisterObserver(panickingObserver{})
	orch.RegisterObserver(witness)

	clock.advance(2 * time.Second)
	orch.Tick()

	if witness.count() != 1 {
		t.Fatalf("surviving observer count = %d, want 1", witness.count())
	}
}

func TestOrchestratorStartStopIdempotent(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)

	if err := orch.Start(); err != nil {
		t.Fatal(err)
	}
	if err := orch.Start(); err != nil {
		t.Fatal("second start must be a no-op")
	}
	if !orch.Running() {
		t.Fatal("orchestrator must report running")
	}

	orch.Stop()
	orch.Stop()

	if orch.Running() {
		t.Fatal("orchestrator must report stopped")
	}
}

func TestOrchestratorPartDeliveryRoundTrip(t *testing.T) {
	orch, plc, clock := newTestOrchestrator(t)

	orch.SetSystemState(StateRunning)
	orch.RequestPart()

	// Idle -> Esperando -> Solicitando -> Encendiendo
	for i := 0; i < 3; i++ {
		clock.advance(2 * time.Second)
		orch.Tick()
	}

	plc.setMark(2, true)
	clock.advance(2 * time.Second)
	orch.Tick()

	plc.setMark(5, true)
	clock.advance(2 * time.Second)
	orch.Tick()

	if !orch.ConsumePartDelivered() {
		t.Fatal("expected a delivery after the full feeder cycle")
	}
	if orch.ConsumePartDelivered() {
		t.Fatal("second consume must see nothing")
	}
}
