package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"prepdeck/internal/domain"
	"prepdeck/internal/ports"
)

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []ports.AudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	stopCalls int
	stopErr   error
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.chunks) {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[f.index])
	f.index++
	return n, nil
}

func (f *fakeAudioSession) Close() error { return nil }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeAudioSession) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []ports.StreamingSession
	err      error
	calls    int
}

func (f *fakeProvider) StartStreaming(_ context.Context, _ ports.StreamingConfig) (ports.StreamingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no stream session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

// fakeStream closes its event channel on CloseSend or Close, the way a
// recognizer does once it has flushed.
type fakeStream struct {
	mu         sync.Mutex
	events     chan domain.TranscriptEvent
	sent       [][]byte
	waitErr    error
	closed     bool
	closeCalls int
}

func newFakeStream(events ...domain.TranscriptEvent) *fakeStream {
	s := &fakeStream{events: make(chan domain.TranscriptEvent, 16)}
	for _, event := range events {
		s.events <- event
	}
	return s
}

func (f *fakeStream) SendAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("stream closed")
	}
	f.sent = append(f.sent, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeStream) CloseSend() error {
	f.end()
	return nil
}

func (f *fakeStream) Events() <-chan domain.TranscriptEvent { return f.events }

func (f *fakeStream) Wait() error { return f.waitErr }

func (f *fakeStream) Close() error {
	f.mu.Lock()
	f.closeCalls++
	f.mu.Unlock()
	f.end()
	return nil
}

func (f *fakeStream) end() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		close(f.events)
		f.closed = true
	}
}

type fakeNormalizer struct {
	replace map[string]string
	err     error
}

func (f *fakeNormalizer) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if out, ok := f.replace[text]; ok {
		return out, nil
	}
	return text, nil
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

type stateEvent struct {
	status domain.InterviewStatus
	reason domain.StateReason
}

type fakeSink struct {
	mu          sync.Mutex
	states      []stateEvent
	ticks       []int
	openings    []domain.OpeningPrompt
	evaluations []domain.Evaluation
	errors      []errEvent
	partials    []string
}

func (f *fakeSink) StateChanged(status domain.InterviewStatus, reason domain.StateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{status: status, reason: reason})
}

func (f *fakeSink) TimerTicked(remaining int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, remaining)
}

func (f *fakeSink) OpeningReady(prompt domain.OpeningPrompt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openings = append(f.openings, prompt)
}

func (f *fakeSink) EvaluationFinished(result domain.Evaluation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluations = append(f.evaluations, result)
}

func (f *fakeSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeSink) PartialTranscript(_ string, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partials = append(f.partials, text)
}

func (f *fakeSink) reasons() []domain.StateReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StateReason, 0, len(f.states))
	for _, s := range f.states {
		out = append(out, s.reason)
	}
	return out
}

func (f *fakeSink) count(reason domain.StateReason) int {
	n := 0
	for _, r := range f.reasons() {
		if r == reason {
			n++
		}
	}
	return n
}

func (f *fakeSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeSink) snapshotEvaluations() []domain.Evaluation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Evaluation(nil), f.evaluations...)
}

func (f *fakeSink) snapshotOpenings() []domain.OpeningPrompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OpeningPrompt(nil), f.openings...)
}

type fakeOracle struct {
	evaluate func(ctx context.Context, question, answer string) (string, error)
	opening  func(ctx context.Context, req domain.OpeningRequest) (string, error)
	followUp func(ctx context.Context, req domain.FollowUpRequest) (string, error)

	mu       sync.Mutex
	openings int
}

func (f *fakeOracle) Evaluate(ctx context.Context, question, answer string) (string, error) {
	if f.evaluate == nil {
		return "Score: 7", nil
	}
	return f.evaluate(ctx, question, answer)
}

func (f *fakeOracle) OpeningQuestion(ctx context.Context, req domain.OpeningRequest) (string, error) {
	f.mu.Lock()
	f.openings++
	f.mu.Unlock()
	if f.opening == nil {
		return "Walk me through a recent design.", nil
	}
	return f.opening(ctx, req)
}

func (f *fakeOracle) FollowUp(ctx context.Context, req domain.FollowUpRequest) (string, error) {
	if f.followUp == nil {
		return "Why?", nil
	}
	return f.followUp(ctx, req)
}

func (f *fakeOracle) openingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openings
}

type fakeRounds struct {
	rounds []domain.Round
	err    error
}

func (f *fakeRounds) BuildRounds(_ domain.InterviewSetup) ([]domain.Round, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Round, len(f.rounds))
	copy(out, f.rounds)
	return out, nil
}

func (f *fakeRounds) Focus(_ domain.InterviewSetup) string { return "General Software Engineer" }

func (f *fakeRounds) EntityID(_ domain.InterviewSetup) string { return "general" }

func (f *fakeRounds) Normalize(setup domain.InterviewSetup) domain.InterviewSetup { return setup }

func uniformRounds(kind domain.RoundKind, durations ...int) *fakeRounds {
	f := &fakeRounds{}
	for idx, d := range durations {
		f.rounds = append(f.rounds, domain.Round{
			Name:            "Round " + string(rune('A'+idx)),
			Kind:            kind,
			DurationSeconds: d,
			Questions:       []domain.Question{{Text: "Explain a hash map."}},
		})
	}
	return f
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
