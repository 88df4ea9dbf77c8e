package ports

import (
	"context"
	"io"

	"prepdeck/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session producing s16le PCM.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
	Keywords       []string
}

// StreamingSession is an active recognizer session. Events is closed once
// the recognizer has nothing more to say, either after CloseSend or on its
// own end-of-speech detection.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// TranscriptNormalizer rewrites recognized text, e.g. fixing technical terms.
type TranscriptNormalizer interface {
	Apply(text string) (string, error)
}

// Oracle is the external generative-language service.
type Oracle interface {
	Evaluate(ctx context.Context, question, answer string) (string, error)
	OpeningQuestion(ctx context.Context, req domain.OpeningRequest) (string, error)
	FollowUp(ctx context.Context, req domain.FollowUpRequest) (string, error)
}

// RoundSource builds the rounds for an interview setup.
type RoundSource interface {
	BuildRounds(setup domain.InterviewSetup) ([]domain.Round, error)
	Focus(setup domain.InterviewSetup) string
	EntityID(setup domain.InterviewSetup) string
	Normalize(setup domain.InterviewSetup) domain.InterviewSetup
}

// KeyValueStore is the raw repository behind answer persistence. Get reports
// found=false for missing keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// AnswerRepository persists answer records by composite key.
type AnswerRepository interface {
	Save(ctx context.Context, record domain.AnswerRecord) error
	Get(ctx context.Context, key domain.AnswerKey) (domain.AnswerRecord, bool, error)
	Delete(ctx context.Context, key domain.AnswerKey) error
	List(ctx context.Context) ([]domain.AnswerRecord, error)
}

// EventSink emits interview state and events to the UI.
type EventSink interface {
	StateChanged(status domain.InterviewStatus, reason domain.StateReason)
	TimerTicked(remaining int)
	OpeningReady(prompt domain.OpeningPrompt)
	EvaluationFinished(result domain.Evaluation)
	SessionError(code domain.ErrorCode, detail string)
}

// TranscriptSink receives interim recognition text for a capture owner.
type TranscriptSink interface {
	PartialTranscript(owner string, text string)
}

// ErrorSink receives non-fatal background errors.
type ErrorSink interface {
	SessionError(code domain.ErrorCode, detail string)
}

// Metrics counts interview activity.
type Metrics interface {
	InterviewStarted()
	InterviewCompleted()
	AnswerSaved()
	EvaluationFinished(ok bool)
	CaptureFinished(ok bool)
}
