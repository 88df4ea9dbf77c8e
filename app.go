package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"prepdeck/internal/bootstrap"
	"prepdeck/internal/catalog"
	"prepdeck/internal/domain"
	"prepdeck/internal/metrics"
	"prepdeck/internal/storage"
	"prepdeck/internal/usecase"
)

const (
	eventState      = "prepdeck:state"
	eventTick       = "prepdeck:tick"
	eventOpening    = "prepdeck:opening"
	eventEvaluation = "prepdeck:evaluation"
	eventPartial    = "prepdeck:partial"
	eventError      = "prepdeck:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services bootstrap.Services
	ready    bool
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.services = services
	a.ready = true
}

func (a *App) shutdown(_ context.Context) {
	if !a.ready {
		return
	}
	a.services.Interview.End("")
	_ = a.services.Captures.Abort()
	a.services.Interview.WaitEvaluations()
	if err := a.services.Close(); err != nil {
		log.Printf("app: shutdown: %v", err)
	}
}

// SetupOptions lists the selections offered before an interview.
type SetupOptions struct {
	Roles     []string `json:"roles"`
	Levels    []string `json:"levels"`
	Companies []string `json:"companies"`
}

func (a *App) GetSetupOptions() (SetupOptions, error) {
	if err := a.requireReady(); err != nil {
		return SetupOptions{}, err
	}
	cat := a.services.Catalog
	return SetupOptions{Roles: cat.Roles, Levels: cat.Levels, Companies: cat.CompanyIDs()}, nil
}

func (a *App) GetCompany(id string) (catalog.Company, error) {
	if err := a.requireReady(); err != nil {
		return catalog.Company{}, err
	}
	company, ok := a.services.Catalog.Company(id)
	if !ok {
		return catalog.Company{}, fmt.Errorf("%w: unknown company %q", domain.ErrValidation, id)
	}
	return company, nil
}

// CheckAptitude grades one multiple-choice drill answer.
func (a *App) CheckAptitude(companyID string, index int, choice int) (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}
	return a.services.Catalog.CheckAptitude(companyID, index, choice)
}

// StartInterview builds the rounds for setup and enters the first round.
func (a *App) StartInterview(setup domain.InterviewSetup) (domain.InterviewStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.InterviewStatus{}, err
	}
	return a.services.Interview.Start(a.ctx, setup)
}

// GetStatus returns the current interview status.
func (a *App) GetStatus() domain.InterviewStatus {
	if !a.ready {
		status := domain.InterviewStatus{State: domain.InterviewStateNotStarted, RoundIndex: -1, QuestionIndex: -1}
		if a.bootErr != nil {
			status.EndReason = a.bootErr.Error()
		}
		return status
	}
	return a.services.Interview.Status()
}

func (a *App) PauseInterview() error {
	return a.withInterview(func(i *usecase.Interview) error { return i.Pause() })
}

func (a *App) ResumeInterview() error {
	return a.withInterview(func(i *usecase.Interview) error { return i.Resume() })
}

func (a *App) NextQuestion() error {
	return a.withInterview(func(i *usecase.Interview) error { return i.NextQuestion() })
}

func (a *App) SkipQuestion() error {
	return a.withInterview(func(i *usecase.Interview) error { return i.Skip() })
}

func (a *App) AdvanceRound() error {
	return a.withInterview(func(i *usecase.Interview) error { return i.AdvanceRound() })
}

func (a *App) SetDraft(text string) error {
	return a.withInterview(func(i *usecase.Interview) error { return i.SetDraft(text) })
}

// EndInterview completes the session. Voice capture in progress is dropped.
func (a *App) EndInterview(reason string) (domain.InterviewStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.InterviewStatus{}, err
	}
	if err := a.services.Captures.Abort(); err != nil && !errors.Is(err, usecase.ErrNoActiveSession) {
		a.SessionError(domain.ErrorCodeAudioStop, err.Error())
	}
	return a.services.Interview.End(reason), nil
}

func (a *App) SubmitAnswer(text string) (domain.AnswerRecord, error) {
	if err := a.requireReady(); err != nil {
		return domain.AnswerRecord{}, err
	}
	return a.services.Interview.SubmitAnswer(a.ctx, text)
}

// AskFollowUp asks the interviewer for a follow-up to answer.
func (a *App) AskFollowUp(answer string) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return a.services.Interview.FollowUp(a.ctx, answer)
}

func (a *App) VoiceAvailable() bool {
	return a.ready && a.services.Voice.Available()
}

// StartVoiceAnswer records a spoken answer for the current question.
func (a *App) StartVoiceAnswer() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Voice.Start(a.ctx)
}

// StopVoiceAnswer stops recording; the transcript becomes the draft answer.
func (a *App) StopVoiceAnswer() (domain.CaptureResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.CaptureResult{}, err
	}
	return a.services.Voice.Stop(a.ctx)
}

// StartPractice begins a pronunciation attempt on a catalog word or paragraph.
func (a *App) StartPractice(mode domain.PracticeMode, index int) (domain.PracticeItem, error) {
	if err := a.requireReady(); err != nil {
		return domain.PracticeItem{}, err
	}
	var (
		item domain.PracticeItem
		err  error
	)
	switch mode {
	case domain.PracticeModeWord:
		item, err = a.services.Catalog.WordItem(index)
	case domain.PracticeModeParagraph:
		item, err = a.services.Catalog.ParagraphItem(index)
	default:
		err = fmt.Errorf("%w: unknown practice mode %q", domain.ErrValidation, mode)
	}
	if err != nil {
		return domain.PracticeItem{}, err
	}
	if err := a.services.Practice.Start(a.ctx, item); err != nil {
		return domain.PracticeItem{}, err
	}
	return item, nil
}

func (a *App) StopPractice() (domain.PracticeReport, error) {
	if err := a.requireReady(); err != nil {
		return domain.PracticeReport{}, err
	}
	return a.services.Practice.Stop(a.ctx)
}

func (a *App) ListAnswers() ([]domain.AnswerRecord, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Answers.List(a.ctx)
}

// DeleteAnswer removes one saved answer by its "<entity>::r<n>::q<i>" key.
func (a *App) DeleteAnswer(key string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	parsed, err := storage.ParseRecordKey(key)
	if err != nil {
		return err
	}
	return a.services.Answers.Delete(a.ctx, parsed)
}

func (a *App) GetAnswerStats() (map[string]int, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Answers.Stats(a.ctx)
}

func (a *App) GetProfile() (domain.Profile, error) {
	if err := a.requireReady(); err != nil {
		return domain.Profile{}, err
	}
	return a.services.Answers.Profile(a.ctx)
}

func (a *App) SaveProfile(profile domain.Profile) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Answers.SaveProfile(a.ctx, profile)
}

func (a *App) GetMetrics() metrics.Snapshot {
	if !a.ready {
		return metrics.Snapshot{}
	}
	return a.services.Metrics.GetSnapshot()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if !a.ready {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"oracle":           "Gemini",
		"oracleModel":      a.services.Oracle.Model(),
		"oracleConfigured": fmt.Sprint(a.services.Oracle.Configured()),
		"provider":         "Deepgram",
		"model":            cfg.Deepgram.Model,
		"language":         cfg.Deepgram.Language,
		"rulesFile":        cfg.Rules.Path,
		"storeFile":        cfg.Storage.Path,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
	}
}

func (a *App) withInterview(fn func(*usecase.Interview) error) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return fn(a.services.Interview)
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if !a.ready {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

// StateChanged emits interview lifecycle updates to the frontend.
func (a *App) StateChanged(status domain.InterviewStatus, reason domain.StateReason) {
	a.emit(eventState, map[string]any{
		"status":  status,
		"reason":  string(reason),
		"message": stateReasonMessage(reason),
	})
}

func (a *App) TimerTicked(remaining int) {
	a.emit(eventTick, map[string]int{"remaining": remaining})
}

func (a *App) OpeningReady(prompt domain.OpeningPrompt) {
	a.emit(eventOpening, prompt)
}

// EvaluationFinished emits feedback, or the failure text, for one answer.
func (a *App) EvaluationFinished(result domain.Evaluation) {
	payload := map[string]any{
		"key":      result.Key,
		"question": result.Question,
		"feedback": result.Feedback,
	}
	if result.Err != nil {
		payload["error"] = result.Err.Error()
	}
	a.emit(eventEvaluation, payload)
}

// PartialTranscript emits live recognition text.
func (a *App) PartialTranscript(owner string, text string) {
	a.emit(eventPartial, map[string]string{"owner": owner, "text": text})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func stateReasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonStarted:
		return "Interview started"
	case domain.ReasonPaused:
		return "Interview paused"
	case domain.ReasonResumed:
		return "Interview resumed"
	case domain.ReasonQuestionAdvanced:
		return "Next question"
	case domain.ReasonQuestionSkipped:
		return "Question skipped"
	case domain.ReasonRoundTransition:
		return "Moving to the next round..."
	case domain.ReasonRoundStarted:
		return "Round started"
	case domain.ReasonTimeUp:
		return "Time is up for this round"
	case domain.ReasonAnswerSaved:
		return "Answer saved"
	case domain.ReasonEvaluationDone:
		return "Feedback ready"
	case domain.ReasonAllRoundsDone:
		return "All rounds completed"
	case domain.ReasonFinalRoundExpiry:
		return "Time is up for the final round"
	case domain.ReasonEnded:
		return "Interview ended"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeEvaluation:
		return "Feedback could not be generated"
	case domain.ErrorCodeQuestion:
		return "Question could not be generated"
	case domain.ErrorCodePersistence:
		return "Answer could not be saved"
	case domain.ErrorCodeVoice:
		return "Voice input unavailable"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
