// Package metrics keeps in-process counters for interview activity.
package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu                  sync.RWMutex
	InterviewsStarted   int64
	InterviewsCompleted int64
	AnswersSaved        int64
	EvaluationsTotal    int64
	EvaluationsFailed   int64
	CapturesTotal       int64
	CapturesEmpty       int64
	LastUpdateTime      time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		LastUpdateTime: time.Now(),
	}
}

func (m *Metrics) InterviewStarted() {
	m.update(func() { m.InterviewsStarted++ })
}

func (m *Metrics) InterviewCompleted() {
	m.update(func() { m.InterviewsCompleted++ })
}

func (m *Metrics) AnswerSaved() {
	m.update(func() { m.AnswersSaved++ })
}

func (m *Metrics) EvaluationFinished(ok bool) {
	m.update(func() {
		m.EvaluationsTotal++
		if !ok {
			m.EvaluationsFailed++
		}
	})
}

func (m *Metrics) CaptureFinished(ok bool) {
	m.update(func() {
		m.CapturesTotal++
		if !ok {
			m.CapturesEmpty++
		}
	})
}

// Snapshot is a copy of the counters safe to serialize.
type Snapshot struct {
	InterviewsStarted   int64     `json:"interviewsStarted"`
	InterviewsCompleted int64     `json:"interviewsCompleted"`
	AnswersSaved        int64     `json:"answersSaved"`
	EvaluationsTotal    int64     `json:"evaluationsTotal"`
	EvaluationsFailed   int64     `json:"evaluationsFailed"`
	CapturesTotal       int64     `json:"capturesTotal"`
	CapturesEmpty       int64     `json:"capturesEmpty"`
	LastUpdateTime      time.Time `json:"lastUpdateTime"`
}

func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		InterviewsStarted:   m.InterviewsStarted,
		InterviewsCompleted: m.InterviewsCompleted,
		AnswersSaved:        m.AnswersSaved,
		EvaluationsTotal:    m.EvaluationsTotal,
		EvaluationsFailed:   m.EvaluationsFailed,
		CapturesTotal:       m.CapturesTotal,
		CapturesEmpty:       m.CapturesEmpty,
		LastUpdateTime:      m.LastUpdateTime,
	}
}

func (m *Metrics) update(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
	m.LastUpdateTime = time.Now()
}
