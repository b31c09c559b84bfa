package consultation

import (
	"time"

	"go.uber.org/zap"
)

// EventType names an orchestrator lifecycle event
type EventType string

// Event types
const (
	EventStateChanged EventType = "state_changed"
	EventTick         EventType = "recording_tick"
	EventNotice       EventType = "notice"
	EventBillUpdated  EventType = "bill_updated"
	EventClosed       EventType = "closed"
)

// eventBufferSize bounds the per-consultation event queue
const eventBufferSize = 64

// Event is published for every observable change of an orchestrator
type Event struct {
	ConsultationID string      `json:"consultation_id"`
	Type           EventType   `json:"type"`
	State          State       `json:"state"`
	Timestamp      time.Time   `json:"timestamp"`
	Data           interface{} `json:"data,omitempty"`
}

// emit must be called with mu held. When the buffer is full, pending ticks
// are discarded first and then the oldest events, so the newest event is
// always queued.
func (o *Orchestrator) emit(eventType EventType, data interface{}) {
	event := Event{
		ConsultationID: o.info.ID,
		Type:           eventType,
		State:          o.state,
		Timestamp:      time.Now(),
		Data:           data,
	}

	select {
	case o.events <- event:
		return
	default:
	}

	o.compactEvents()
	o.events <- event
}

// compactEvents frees at least one slot. The orchestrator is the only
// producer and holds mu, so re-queued events cannot block.
func (o *Orchestrator) compactEvents() {
	pending := make([]Event, 0, cap(o.events))
drain:
	for {
		select {
		case e := <-o.events:
			pending = append(pending, e)
		default:
			break drain
		}
	}

	kept := pending[:0]
	for _, e := range pending {
		if e.Type != EventTick {
			kept = append(kept, e)
		}
	}
	if overflow := len(kept) - (cap(o.events) - 1); overflow > 0 {
		for _, e := range kept[:overflow] {
			o.logger.Warn("Event channel full, dropping oldest event",
				zap.String("consultationID", o.info.ID),
				zap.String("type", string(e.Type)))
		}
		kept = kept[overflow:]
	}

	for _, e := range kept {
		o.events <- e
	}
}

// Events returns the channel of orchestrator events. EventClosed is the last
// event published.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}
