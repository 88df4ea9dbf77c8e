package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"prepdeck/internal/domain"
	"prepdeck/internal/ports"
)

// ErrVoiceDisabled is returned once the microphone or recognizer proved
// unavailable for the current interview.
var ErrVoiceDisabled = errors.New("voice input is disabled for this session")

// VoiceInput records spoken answers for the current interview question.
type VoiceInput struct {
	captures    *CaptureController
	interview   *Interview
	transcripts ports.TranscriptSink
	errs        ports.ErrorSink
	autoSubmit  bool

	mu          sync.Mutex
	disabledFor string
	active      *voiceCapture
}

type voiceCapture struct {
	capture   *Capture
	sessionID string
	key       domain.AnswerKey
	applied   chan struct{}
}

func NewVoiceInput(
	captures *CaptureController,
	interview *Interview,
	transcripts ports.TranscriptSink,
	errs ports.ErrorSink,
	autoSubmit bool,
) *VoiceInput {
	if errs == nil {
		errs = discardErrors{}
	}
	return &VoiceInput{
		captures:    captures,
		interview:   interview,
		transcripts: transcripts,
		errs:        errs,
		autoSubmit:  autoSubmit,
	}
}

// Available reports whether voice input may be used in the current session.
func (v *VoiceInput) Available() bool {
	sessionID := v.interview.Status().SessionID
	v.mu.Lock()
	defer v.mu.Unlock()
	return sessionID == "" || v.disabledFor != sessionID
}

// Start begins recording an answer for the current question.
func (v *VoiceInput) Start(ctx context.Context) error {
	key, ok := v.interview.CurrentKey()
	if !ok {
		return ErrNotInRound
	}
	sessionID := v.interview.Status().SessionID

	v.mu.Lock()
	if v.disabledFor == sessionID {
		v.mu.Unlock()
		return ErrVoiceDisabled
	}
	v.mu.Unlock()

	owner := fmt.Sprintf("interview:%s:r%d:q%d", key.EntityID, key.RoundNumber, key.QuestionIndex)
	capture, err := v.captures.Start(ctx, owner)
	if err != nil {
		if domain.IsVoiceUnavailable(err) {
			v.mu.Lock()
			v.disabledFor = sessionID
			v.mu.Unlock()
			v.errs.SessionError(domain.ErrorCodeVoice, err.Error())
		}
		return err
	}

	active := &voiceCapture{capture: capture, sessionID: sessionID, key: key, applied: make(chan struct{})}
	v.mu.Lock()
	v.active = active
	v.mu.Unlock()

	go v.follow(active)
	return nil
}

// Stop ends the recording and returns once its transcript has been applied.
func (v *VoiceInput) Stop(ctx context.Context) (domain.CaptureResult, error) {
	v.mu.Lock()
	active := v.active
	v.active = nil
	v.mu.Unlock()
	if active == nil {
		return domain.CaptureResult{}, ErrNoActiveSession
	}

	result, err := active.capture.Stop(ctx)
	<-active.applied
	return result, err
}

// follow forwards partial text and applies the final transcript, including
// when the recognizer ends the utterance before Stop is called.
func (v *VoiceInput) follow(active *voiceCapture) {
	defer close(active.applied)
	forwardPartials(active.capture, v.transcripts)

	result, err := active.capture.Result()
	if err != nil {
		if !errors.Is(err, ErrNoTranscript) {
			log.Printf("voice: capture failed: %v", err)
		}
		return
	}

	key, ok := v.interview.CurrentKey()
	if !ok || key != active.key || v.interview.Status().SessionID != active.sessionID {
		return
	}
	if err := v.interview.SetDraft(result.Transcript); err != nil {
		return
	}
	if !v.autoSubmit {
		return
	}
	if _, err := v.interview.SubmitAnswer(context.Background(), result.Transcript); err != nil {
		v.errs.SessionError(domain.ErrorCodeVoice, err.Error())
	}
}

// forwardPartials drains a capture's events until the final one.
func forwardPartials(capture *Capture, sink ports.TranscriptSink) {
	for event := range capture.Events() {
		if event.Kind == domain.TranscriptKindPartial && sink != nil {
			sink.PartialTranscript(capture.Owner(), event.Text)
		}
	}
}
