package process

import "testing"

func TestSignalsRequestLifecycle(t *testing.T) {
	signals := NewSignals()

	if signals.PartRequested() {
		t.Fatal("fresh signals must have no pending request")
	}

	signals.RequestPart()
	signals.RequestPart() // repeat requests collapse into one flag
	if !signals.PartRequested() {
		t.Fatal("request must be pending after RequestPart")
	}

	signals.AcknowledgeRequest()
	if signals.PartRequested() {
		t.Fatal("request must be cleared after acknowledge")
	}
}

func TestSignalsConsumeDelivered(t *testing.T) {
	signals := NewSignals()

	if signals.ConsumeDelivered() {
		t.Fatal("nothing delivered yet")
	}

	signals.MarkDelivered()
	if !signals.PartDelivered() {
		t.Fatal("delivered flag must be visible before consumption")
	}

	if !signals.ConsumeDelivered() {
		t.Fatal("first consume must observe the delivery")
	}
	if signals.ConsumeDelivered() {
		t.Fatal("consume must clear the flag atomically")
	}
}
