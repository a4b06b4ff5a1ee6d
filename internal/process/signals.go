package process

import "sync/atomic"

// Signals is the request/acknowledge handoff between the orchestrator's
// callers and the feeder machine. Each flag has exactly one designated
// setter and one designated clearer:
//
//   - partRequested: set by an external request, cleared only by the
//     feeder once the motor-on confirmation arrives.
//   - partDelivered: set only by the feeder, consumed (read-and-clear)
//     only by the presentation layer.
type Signals struct {
	partRequested atomic.Bool
	partDelivered atomic.Bool
}

func NewSignals() *Signals {
	return &Signals{}
}

// RequestPart raises the part request.
func (s *Signals) RequestPart() {
	s.partRequested.Store(true)
}

// PartRequested reports whether a part request is pending.
func (s *Signals) PartRequested() bool {
	return s.partRequested.Load()
}

// AcknowledgeRequest clears the pending request. Feeder only.
func (s *Signals) AcknowledgeRequest() {
	s.partRequested.Store(false)
}

// MarkDelivered raises the delivered flag. Feeder only.
func (s *Signals) MarkDelivered() {
	s.partDelivered.Store(true)
}

// PartDelivered reports the delivered flag without consuming it.
func (s *Signals) PartDelivered() bool {
	return s.partDelivered.Load()
}

// ConsumeDelivered reads and clears the delivered flag in one step.
func (s *Signals) ConsumeDelivered() bool {
	return s.partDelivered.Swap(false)
}
