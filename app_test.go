package main

import (
	"errors"
	"testing"

	"prepdeck/internal/domain"
)

func TestStateReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.StateReason]string{
		domain.ReasonStarted:          "Interview started",
		domain.ReasonPaused:           "Interview paused",
		domain.ReasonResumed:          "Interview resumed",
		domain.ReasonQuestionAdvanced: "Next question",
		domain.ReasonQuestionSkipped:  "Question skipped",
		domain.ReasonRoundTransition:  "Moving to the next round...",
		domain.ReasonRoundStarted:     "Round started",
		domain.ReasonTimeUp:           "Time is up for this round",
		domain.ReasonAnswerSaved:      "Answer saved",
		domain.ReasonEvaluationDone:   "Feedback ready",
		domain.ReasonAllRoundsDone:    "All rounds completed",
		domain.ReasonFinalRoundExpiry: "Time is up for the final round",
		domain.ReasonEnded:            "Interview ended",
	}

	for reason, want := range cases {
		reason := reason
		want := want
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := stateReasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := stateReasonMessage(domain.ReasonDraftUpdated); got != "" {
		t.Fatalf("expected draft updates to be silent, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:       "Startup failed",
		domain.ErrorCodeAudioStop:     "Audio stop issue",
		domain.ErrorCodeAudioStream:   "Audio streaming issue",
		domain.ErrorCodeTranscription: "Transcription error",
		domain.ErrorCodeEvaluation:    "Feedback could not be generated",
		domain.ErrorCodeQuestion:      "Question could not be generated",
		domain.ErrorCodePersistence:   "Answer could not be saved",
		domain.ErrorCodeVoice:         "Voice input unavailable",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if _, err := app.StartInterview(domain.InterviewSetup{}); !errors.Is(err, bootErr) {
		t.Fatalf("expected bindings to surface the boot error, got %v", err)
	}
	if app.VoiceAvailable() {
		t.Fatalf("expected voice to be unavailable before startup")
	}
}

func TestGetStatusWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	status := app.GetStatus()
	if status.State != domain.InterviewStateNotStarted || status.RoundIndex != -1 || status.QuestionIndex != -1 {
		t.Fatalf("unexpected status: %+v", status)
	}

	app.bootErr = errors.New("boot")
	status = app.GetStatus()
	if status.State != domain.InterviewStateNotStarted || status.EndReason != "boot" {
		t.Fatalf("unexpected boot status: %+v", status)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
}

func TestSinkWithoutContextIsSilent(t *testing.T) {
	t.Parallel()

	app := &App{}
	app.StateChanged(domain.InterviewStatus{}, domain.ReasonStarted)
	app.TimerTicked(3)
	app.PartialTranscript("owner", "text")
	app.EvaluationFinished(domain.Evaluation{Err: errors.New("boom")})
	app.SessionError(domain.ErrorCodeVoice, "denied")
}
