package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// addClient hooks a client into the hub without a real network
// connection.
func addClient(h *Hub, id string, buffer int) *Client {
	c := &Client{
		id:     id,
		hub:    h,
		send:   make(chan []byte, buffer),
		logger: zap.NewNop(),
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

func waitForClientCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.GetClientCount() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", h.GetClientCount(), want)
}

func TestHubBroadcastDelivers(t *testing.T) {
	h := NewHub(zap.NewNop())
	go h.Run()
	defer h.Stop()

	client := addClient(h, "c1", 8)

	h.Broadcast(NewPLCConnectionMessage(true, "Verbindung hergestellt"))

	select {
	case raw := <-client.send:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if msg.Type != MessageTypePLCConnection {
			t.Errorf("type = %q, want %q", msg.Type, MessageTypePLCConnection)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast never reached client")
	}
}

// A stuck client must be evicted while status reads hammer the client
// map concurrently. Run with -race: eviction used to mutate the map
// under a read lock only.
func TestHubEvictsSlowClientDuringStatusReads(t *testing.T) {
	h := NewHub(zap.NewNop())
	go h.Run()
	defer h.Stop()

	healthy := addClient(h, "healthy", 64)
	stuck := addClient(h, "stuck", 1)
	stuck.send <- []byte("voll") // buffer full, next broadcast evicts

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				h.GetClientCount()
			}
		}
	}()

	h.Broadcast(NewProcessStatusMessage(map[string]string{"tick": "1"}))
	waitForClientCount(t, h, 1)

	close(done)
	wg.Wait()

	if _, ok := <-stuck.send; ok {
		// first receive drains the pre-filled entry
		if _, ok := <-stuck.send; ok {
			t.Error("stuck client send channel not closed after eviction")
		}
	}
	select {
	case <-healthy.send:
	default:
		t.Error("healthy client missed the broadcast")
	}
}

func TestHubStopClosesClients(t *testing.T) {
	h := NewHub(zap.NewNop())
	go h.Run()

	client := addClient(h, "c1", 8)

	h.Stop()
	h.Stop() // idempotent

	if got := h.GetClientCount(); got != 0 {
		t.Errorf("client count after stop = %d, want 0", got)
	}
	if _, ok := <-client.send; ok {
		t.Error("client send channel not closed on stop")
	}

	// A late broadcast must not panic or block
	h.Broadcast(NewPLCConnectionMessage(false, "Verbindung verloren"))
}
