package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"prepdeck/internal/catalog"
	"prepdeck/internal/domain"
	"prepdeck/internal/ports"
	"prepdeck/internal/storage"
	"prepdeck/internal/usecase"
)

func newTestHosted(t *testing.T) *Hosted {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	kv := storage.NewMemoryStore()
	hosted := NewHosted(func(sink ports.EventSink, repo ports.AnswerRepository) *usecase.Interview {
		return usecase.NewInterview(cat, fakeOracle{}, repo, sink, nil, usecase.InterviewConfig{ManualClock: true})
	}, func(owner string) ports.AnswerRepository {
		return storage.NewAnswerStore(kv, owner)
	}, time.Minute)
	t.Cleanup(hosted.Shutdown)
	return hosted
}

func TestHostedSweepsIdleSessions(t *testing.T) {
	t.Parallel()

	hosted := newTestHosted(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	hosted.now = func() time.Time { return now }

	idle, err := hosted.Start(context.Background(), "u1", domain.InterviewSetup{Mode: domain.InterviewModeGeneral})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	now = now.Add(50 * time.Second)
	fresh, err := hosted.Start(context.Background(), "u1", domain.InterviewSetup{Mode: domain.InterviewModeGeneral})
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	if err := idle.Interview.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	now = now.Add(20 * time.Second)
	if n := hosted.Sweep(); n != 1 {
		t.Fatalf("expected one idle session swept, got %d", n)
	}
	if _, err := hosted.Get("u1", idle.ID); err != ErrSessionNotFound {
		t.Fatalf("expected idle session to be gone, got %v", err)
	}
	if got := idle.Interview.Status().State; got != domain.InterviewStateCompleted {
		t.Fatalf("expected swept interview to be ended, got %s", got)
	}
	if _, err := hosted.Get("u1", fresh.ID); err != nil {
		t.Fatalf("expected fresh session to remain, got %v", err)
	}
}

func TestHostedSweepKeepsRunningRounds(t *testing.T) {
	t.Parallel()

	hosted := newTestHosted(t)
	hosted.idle = 30 * time.Minute
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	hosted.now = func() time.Time { return now }

	session, err := hosted.Start(context.Background(), "u1", domain.InterviewSetup{Mode: domain.InterviewModeGeneral})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if got := session.Interview.Status().State; got != domain.InterviewStateInRound {
		t.Fatalf("expected a running round, got %s", got)
	}

	now = now.Add(31 * time.Minute)
	if n := hosted.Sweep(); n != 0 {
		t.Fatalf("expected running round to survive the sweep, swept %d", n)
	}
	if got := session.Interview.Status().State; got != domain.InterviewStateInRound {
		t.Fatalf("expected round still running, got %s", got)
	}

	if err := session.Interview.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if n := hosted.Sweep(); n != 1 {
		t.Fatalf("expected paused idle session swept, got %d", n)
	}
}

func TestHostedSweeperRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	hosted := newTestHosted(t)
	if err := hosted.StartSweeper("not a schedule"); err == nil {
		t.Fatalf("expected an invalid schedule to fail")
	}
	if err := hosted.StartSweeper("@every 1h"); err != nil {
		t.Fatalf("expected valid schedule, got %v", err)
	}
}

func TestHubPublishesInterviewEvents(t *testing.T) {
	t.Parallel()

	hosted := newTestHosted(t)
	session, err := hosted.Start(context.Background(), "u1", domain.InterviewSetup{Mode: domain.InterviewModeGeneral})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	events, cancel := session.hub.Subscribe()
	defer cancel()

	if err := session.Interview.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case payload := <-events:
			var event Event
			if err := json.Unmarshal(payload, &event); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			// The opening question may arrive first.
			if event.Type != "state" || event.Reason != domain.ReasonPaused {
				continue
			}
			if event.Status == nil || event.Status.State != domain.InterviewStatePaused {
				t.Fatalf("unexpected paused event: %+v", event)
			}
			return
		case <-deadline:
			t.Fatalf("expected a paused state event")
		}
	}
}

func TestHubCloseEndsSubscriptions(t *testing.T) {
	t.Parallel()

	hub := newEventHub()
	events, cancel := hub.Subscribe()
	hub.TimerTicked(42)

	payload := <-events
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != "tick" || event.Remaining == nil || *event.Remaining != 42 {
		t.Fatalf("unexpected tick event: %+v", event)
	}

	hub.Close()
	if _, ok := <-events; ok {
		t.Fatalf("expected subscription to be closed")
	}
	cancel()

	late, _ := hub.Subscribe()
	if _, ok := <-late; ok {
		t.Fatalf("expected subscription on closed hub to be closed")
	}
}

func TestHubEvaluationCarriesErrorText(t *testing.T) {
	t.Parallel()

	hub := newEventHub()
	events, cancel := hub.Subscribe()
	defer cancel()

	hub.EvaluationFinished(domain.Evaluation{Question: "q", Err: domain.ErrMissingCredential})
	var event Event
	if err := json.Unmarshal(<-events, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Evaluation == nil || event.Evaluation.Error != domain.ErrMissingCredential.Error() {
		t.Fatalf("unexpected evaluation event: %+v", event)
	}
}
