package plc

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeServer emulates a LOGO controller behind the injectable dialer.
// It tracks dials and open connections so tests can assert the
// one-connection-per-operation discipline.
type fakeServer struct {
	mu        sync.Mutex
	reachable bool
	coils     map[uint16]bool
	inputs    []bool
	failFunc  map[uint8]bool // function codes answered with an exception

	dials int
	open  int
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		reachable: true,
		coils:     make(map[uint16]bool),
		inputs:    make([]bool, InputCount),
		failFunc:  make(map[uint8]bool),
	}
}

func (s *fakeServer) dial(address string, timeout time.Duration) (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dials++
	if !s.reachable {
		return nil, errors.New("connection refused")
	}
	s.open++
	return &fakeConn{server: s}, nil
}

func (s *fakeServer) setReachable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reachable = v
}

func (s *fakeServer) setInput(index int, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs[index] = v
}

func (s *fakeServer) coil(addr uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coils[addr]
}

func (s *fakeServer) failFunction(code uint8, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFunc[code] = v
}

func (s *fakeServer) openConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

type fakeConn struct {
	server  *fakeServer
	mu      sync.Mutex
	pending []byte
	closed  bool
}

func (c *fakeConn) Write(b []byte) (int, error) {
	request, err := DecodeFrame(b)
	if err != nil {
		return 0, err
	}

	response := c.server.respond(request)

	c.mu.Lock()
	c.pending = response.Encode()
	c.mu.Unlock()

	return len(b), nil
}

func (c *fakeConn) Read(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return 0, errors.New("nothing to read")
	}

	n := copy(b, c.pending)
	c.pending = nil
	return n, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		c.server.mu.Lock()
		c.server.open--
		c.server.mu.Unlock()
	}
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (c *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (s *fakeServer) respond(request *Frame) *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFunc[request.FunctionCode] {
		return &Frame{
			TransactionID: request.TransactionID,
			UnitID:        request.UnitID,
			FunctionCode:  request.FunctionCode | exceptionBit,
			Data:          []byte{0x04},
		}
	}

	switch request.FunctionCode {
	case FuncCodeWriteSingleCoil:
		addr := binary.BigEndian.Uint16(request.Data[0:2])
		s.coils[addr] = binary.BigEndian.Uint16(request.Data[2:4]) == coilOn
		return &Frame{
			TransactionID: request.TransactionID,
			UnitID:        request.UnitID,
			FunctionCode:  request.FunctionCode,
			Data:          request.Data,
		}

	case FuncCodeReadCoils, FuncCodeReadDiscreteInputs:
		start := binary.BigEndian.Uint16(request.Data[0:2])
		quantity := int(binary.BigEndian.Uint16(request.Data[2:4]))

		bit := func(i int) bool {
			if request.FunctionCode == FuncCodeReadDiscreteInputs {
				index := int(start) + i
				return index < len(s.inputs) && s.inputs[index]
			}
			return s.coils[start+uint16(i)]
		}

		byteCount := (quantity + 7) / 8
		payload := make([]byte, 1+byteCount)
		payload[0] = byte(byteCount)
		for i := 0; i < quantity; i++ {
			if bit(i) {
				payload[1+i/8] |= 1 << uint(i%8)
			}
		}

		return &Frame{
			TransactionID: request.TransactionID,
			UnitID:        request.UnitID,
			FunctionCode:  request.FunctionCode,
			Data:          payload,
		}
	}

	return &Frame{
		TransactionID: request.TransactionID,
		UnitID:        request.UnitID,
		FunctionCode:  request.FunctionCode | exceptionBit,
		Data:          []byte{0x01},
	}
}

type recordingHandler struct {
	mu     sync.Mutex
	events []ConnectionEvent
}

func (h *recordingHandler) HandleConnectionEvent(ev ConnectionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) snapshot() []ConnectionEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ConnectionEvent, len(h.events))
	copy(out, h.events)
	return out
}

type panickingHandler struct{}

func (panickingHandler) HandleConnectionEvent(ConnectionEvent) {
	panic("handler crash")
}

func newTestLink(server *fakeServer) *Link {
	link := NewLink(LinkConfig{
		Host:          "10.0.0.1",
		UnitID:        1,
		RetryInterval: 10 * time.Millisecond,
		StopTimeout:   time.Second,
	}, zap.NewNop())
	link.dialer = server.dial
	return link
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestLinkHealthTransitions(t *testing.T) {
	server := newFakeServer()
	link := newTestLink(server)
	defer link.Stop()

	handler := &recordingHandler{}
	link.Subscribe(handler)
	link.Subscribe(handler) // idempotent

	if err := link.Start(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return link.Connected() })

	events := handler.snapshot()
	if len(events) != 1 || !events[0].Connected {
		t.Fatalf("events after first probe = %v, want one connected event", events)
	}

	// Further successful probes must not re-notify.
	time.Sleep(50 * time.Millisecond)
	if got := handler.snapshot(); len(got) != 1 {
		t.Fatalf("expected no duplicate notifications, got %v", got)
	}

	server.setReachable(false)
	waitFor(t, func() bool { return !link.Connected() })

	waitFor(t, func() bool {
		events := handler.snapshot()
		return len(events) == 2 && !events[1].Connected
	})
}

func TestLinkInitialDownNotifies(t *testing.T) {
	server := newFakeServer()
	server.setReachable(false)

	link := newTestLink(server)
	defer link.Stop()

	handler := &recordingHandler{}
	link.Subscribe(handler)

	if err := link.Start(); err != nil {
		t.Fatal(err)
	}

	// The very first determination is a transition, even to "down".
	waitFor(t, func() bool {
		events := handler.snapshot()
		return len(events) == 1 && !events[0].Connected
	})
}

func TestLinkWriteCoilRequiresConnection(t *testing.T) {
	server := newFakeServer()
	link := newTestLink(server)

	err := link.WriteCoil("Q1")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if server.dialCount() != 0 {
		t.Fatal("no dial may happen while disconnected")
	}
}

func TestLinkWriteCoilRejectsBadSymbolBeforeIO(t *testing.T) {
	server := newFakeServer()
	link := newTestLink(server)
	link.probe()

	if err := link.WriteCoil("Q99"); err == nil {
		t.Fatal("expected address error")
	}
	if server.dialCount() != 1 { // only the probe
		t.Fatalf("dials = %d, want 1", server.dialCount())
	}
}

func TestLinkCoilWriteRoundTrip(t *testing.T) {
	server := newFakeServer()
	link := newTestLink(server)
	link.probe()

	if err := link.WriteCoil("M1"); err != nil {
		t.Fatal(err)
	}
	if !server.coil(8256) {
		t.Fatal("M1 must be set on the controller")
	}

	if err := link.ClearCoil("M1"); err != nil {
		t.Fatal(err)
	}
	if server.coil(8256) {
		t.Fatal("M1 must be cleared on the controller")
	}
}

func TestLinkConnectionsAlwaysClosed(t *testing.T) {
	server := newFakeServer()
	link := newTestLink(server)
	link.probe()

	for i := 0; i < 5; i++ {
		if err := link.WriteCoil("Q1"); err != nil {
			t.Fatal(err)
		}
		if _, err := link.ReadAll(); err != nil {
			t.Fatal(err)
		}
	}

	// Failures must close too.
	server.failFunction(FuncCodeWriteSingleCoil, true)
	if err := link.WriteCoil("Q1"); err == nil {
		t.Fatal("expected exception error")
	}

	if got := server.openConns(); got != 0 {
		t.Fatalf("open connections after operations = %d, want 0", got)
	}
}

func TestLinkIOFailureDoesNotClearConnected(t *testing.T) {
	server := newFakeServer()
	link := newTestLink(server)
	link.probe()

	server.failFunction(FuncCodeWriteSingleCoil, true)
	if err := link.WriteCoil("Q1"); err == nil {
		t.Fatal("expected exception error")
	}

	if !link.Connected() {
		t.Fatal("an I/O failure must not flip the health flag")
	}
}

func TestLinkReadAllBestEffort(t *testing.T) {
	server := newFakeServer()
	link := newTestLink(server)
	link.probe()

	server.setInput(2, true)
	server.failFunction(FuncCodeReadCoils, true) // outputs and marks degrade

	snapshot, err := link.ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	if len(snapshot.Inputs) != InputCount || !snapshot.Inputs[2] {
		t.Fatalf("inputs = %v", snapshot.Inputs)
	}
	if len(snapshot.Outputs) != 0 || len(snapshot.Marks) != 0 {
		t.Fatalf("degraded reads must be empty, got %v / %v", snapshot.Outputs, snapshot.Marks)
	}

	// Failed inputs sink the whole snapshot.
	server.failFunction(FuncCodeReadDiscreteInputs, true)
	if _, err := link.ReadAll(); err == nil {
		t.Fatal("expected error when the input read fails")
	}
}

func TestLinkReadAllMarksOrder(t *testing.T) {
	server := newFakeServer()
	link := newTestLink(server)
	link.probe()

	if err := link.WriteCoil("M2"); err != nil {
		t.Fatal(err)
	}

	marks, err := link.ReadAllMarks()
	if err != nil {
		t.Fatal(err)
	}
	if len(marks) != 8 {
		t.Fatalf("marks length = %d, want 8", len(marks))
	}
	if marks[0] || !marks[1] {
		t.Fatalf("marks = %v, want only M2 set", marks)
	}
}

func TestLinkReconfigure(t *testing.T) {
	server := newFakeServer()
	link := newTestLink(server)

	link.Reconfigure("10.0.0.2", 0)

	status := link.Status()
	if status.Host != "10.0.0.2" || status.Port != 502 {
		t.Fatalf("status = %+v, want host 10.0.0.2 port 502", status)
	}
}

func TestLinkNotifyIsolatesPanickingSubscriber(t *testing.T) {
	server := newFakeServer()
	link := newTestLink(server)

	witness := &recordingHandler{}
	link.Subscribe(panickingHandler{})
	link.Subscribe(witness)

	link.notify(ConnectionEvent{Connected: true, Message: "PLC connected"})

	if got := witness.snapshot(); len(got) != 1 {
		t.Fatalf("surviving handler events = %v, want one", got)
	}
}

func TestLinkStopIdempotentAndUnsubscribes(t *testing.T) {
	server := newFakeServer()
	link := newTestLink(server)

	handler := &recordingHandler{}
	link.Subscribe(handler)

	if err := link.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return link.Connected() })

	link.Stop()
	link.Stop()

	before := len(handler.snapshot())
	link.notify(ConnectionEvent{Connected: false})
	if got := len(handler.snapshot()); got != before {
		t.Fatal("subscribers must be cleared on stop")
	}
}
