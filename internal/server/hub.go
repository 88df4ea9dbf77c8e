package server

import (
	"encoding/json"
	"log"
	"sync"

	"prepdeck/internal/domain"
)

// Event is the JSON envelope pushed to interview subscribers.
type Event struct {
	Type       string                  `json:"type"`
	Reason     domain.StateReason      `json:"reason,omitempty"`
	Status     *domain.InterviewStatus `json:"status,omitempty"`
	Remaining  *int                    `json:"remaining,omitempty"`
	Opening    *domain.OpeningPrompt   `json:"opening,omitempty"`
	Evaluation *EvaluationView         `json:"evaluation,omitempty"`
	Code       domain.ErrorCode        `json:"code,omitempty"`
	Detail     string                  `json:"detail,omitempty"`
}

// EvaluationView is domain.Evaluation with its error flattened to text.
type EvaluationView struct {
	Key      domain.AnswerKey `json:"key"`
	Question string           `json:"question"`
	Feedback string           `json:"feedback,omitempty"`
	Error    string           `json:"error,omitempty"`
}

const subscriberBuffer = 32

// eventHub fans interview events out to websocket subscribers. A subscriber
// that falls behind misses events rather than stalling the interview.
type eventHub struct {
	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
	closed      bool
}

func newEventHub() *eventHub {
	return &eventHub{subscribers: make(map[chan []byte]struct{})}
}

func (h *eventHub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		close(ch)
		h.mu.Unlock()
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Close disconnects every subscriber.
func (h *eventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

func (h *eventHub) publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub: failed to encode %s event: %v", event.Type, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (h *eventHub) StateChanged(status domain.InterviewStatus, reason domain.StateReason) {
	h.publish(Event{Type: "state", Reason: reason, Status: &status})
}

func (h *eventHub) TimerTicked(remaining int) {
	h.publish(Event{Type: "tick", Remaining: &remaining})
}

func (h *eventHub) OpeningReady(prompt domain.OpeningPrompt) {
	h.publish(Event{Type: "opening", Opening: &prompt})
}

func (h *eventHub) EvaluationFinished(result domain.Evaluation) {
	view := EvaluationView{Key: result.Key, Question: result.Question, Feedback: result.Feedback}
	if result.Err != nil {
		view.Error = result.Err.Error()
	}
	h.publish(Event{Type: "evaluation", Evaluation: &view})
}

func (h *eventHub) SessionError(code domain.ErrorCode, detail string) {
	h.publish(Event{Type: "error", Code: code, Detail: detail})
}
