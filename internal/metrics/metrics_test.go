package metrics

import (
	"sync"
	"testing"
)

func TestCountersAccumulate(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	m.InterviewStarted()
	m.InterviewStarted()
	m.InterviewCompleted()
	m.AnswerSaved()
	m.EvaluationFinished(true)
	m.EvaluationFinished(false)
	m.CaptureFinished(false)

	s := m.GetSnapshot()
	if s.InterviewsStarted != 2 || s.InterviewsCompleted != 1 || s.AnswersSaved != 1 {
		t.Fatalf("unexpected interview counters: %+v", s)
	}
	if s.EvaluationsTotal != 2 || s.EvaluationsFailed != 1 {
		t.Fatalf("unexpected evaluation counters: %+v", s)
	}
	if s.CapturesTotal != 1 || s.CapturesEmpty != 1 {
		t.Fatalf("unexpected capture counters: %+v", s)
	}
}

func TestCountersAreSafeForConcurrentUse(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.AnswerSaved()
		}()
	}
	wg.Wait()
	if got := m.GetSnapshot().AnswersSaved; got != 50 {
		t.Fatalf("expected 50 answers, got %d", got)
	}
}
