package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"prepdeck/internal/domain"
	"prepdeck/internal/ports"
)

var (
	ErrSessionActive  = errors.New("an interview is already in progress")
	ErrNotInRound     = errors.New("interview is not in an active round")
	ErrAnswerRequired = errors.New("submit an answer before moving to the next question")
)

const defaultMinimumAnswerLength = 10

// InterviewConfig controls session behavior.
type InterviewConfig struct {
	MinimumAnswerLength int
	TickInterval        time.Duration
	// ManualClock disables the background countdown; callers drive Tick.
	ManualClock bool
}

// Interview is the mock interview state machine. All methods are safe for
// concurrent use; sink callbacks are made without holding the lock.
type Interview struct {
	rounds  ports.RoundSource
	oracle  ports.Oracle
	answers ports.AnswerRepository
	sink    ports.EventSink
	metrics ports.Metrics
	cfg     InterviewConfig
	clock   *roundClock
	newID   func() string
	now     func() time.Time

	mu            sync.Mutex
	sessionID     string
	state         domain.InterviewState
	setup         domain.InterviewSetup
	entityID      string
	focus         string
	plan          []domain.Round
	roundIndex    int
	questionIndex int
	remaining     int
	timeUp        bool
	opening       string
	draft         string
	feedback      string
	endReason     string
	answered      map[int]bool
	history       []string
	inflight      int
	work          context.Context
	cancelWork    context.CancelFunc

	background sync.WaitGroup
}

func NewInterview(
	rounds ports.RoundSource,
	oracle ports.Oracle,
	answers ports.AnswerRepository,
	sink ports.EventSink,
	metrics ports.Metrics,
	cfg InterviewConfig,
) *Interview {
	if cfg.MinimumAnswerLength <= 0 {
		cfg.MinimumAnswerLength = defaultMinimumAnswerLength
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Interview{
		rounds:        rounds,
		oracle:        oracle,
		answers:       answers,
		sink:          sink,
		metrics:       metrics,
		cfg:           cfg,
		clock:         newRoundClock(cfg.TickInterval, cfg.ManualClock),
		newID:         uuid.NewString,
		now:           time.Now,
		state:         domain.InterviewStateNotStarted,
		roundIndex:    -1,
		questionIndex: -1,
	}
}

// notices are sink calls collected under the lock and sent after it.
type notices []func()

func (n notices) send() {
	for _, fn := range n {
		fn()
	}
}

func (i *Interview) stateNotice(reason domain.StateReason) func() {
	status := i.statusLocked()
	return func() { i.sink.StateChanged(status, reason) }
}

// Start builds the rounds for setup and enters the first round.
func (i *Interview) Start(_ context.Context, setup domain.InterviewSetup) (domain.InterviewStatus, error) {
	plan, err := i.rounds.BuildRounds(setup)
	if err != nil {
		return domain.InterviewStatus{}, err
	}
	if len(plan) == 0 {
		return domain.InterviewStatus{}, fmt.Errorf("%w: no rounds available", domain.ErrConfiguration)
	}
	normalized := i.rounds.Normalize(setup)

	i.mu.Lock()
	if i.activeLocked() {
		i.mu.Unlock()
		return domain.InterviewStatus{}, ErrSessionActive
	}
	if i.cancelWork != nil {
		i.cancelWork()
	}
	i.work, i.cancelWork = context.WithCancel(context.Background())
	i.sessionID = i.newID()
	i.setup = normalized
	i.entityID = i.rounds.EntityID(normalized)
	i.focus = i.rounds.Focus(normalized)
	i.plan = plan
	i.endReason = ""
	i.history = nil
	i.inflight = 0
	i.enterRoundLocked(0)

	out := notices{i.stateNotice(domain.ReasonStarted)}
	out = append(out, i.requestOpeningLocked()...)
	status := i.statusLocked()
	i.mu.Unlock()

	i.metrics.InterviewStarted()
	out.send()
	return status, nil
}

// Tick advances the countdown by one step. It only acts while in a round.
func (i *Interview) Tick() {
	i.mu.Lock()
	out := i.tickLocked()
	i.mu.Unlock()
	out.send()
}

func (i *Interview) onClock(gen uint64) {
	i.mu.Lock()
	if !i.clock.current(gen) {
		i.mu.Unlock()
		return
	}
	out := i.tickLocked()
	i.mu.Unlock()
	out.send()
}

func (i *Interview) tickLocked() notices {
	if i.state != domain.InterviewStateInRound || i.timeUp {
		return nil
	}
	if i.remaining > 0 {
		i.remaining--
	}
	remaining := i.remaining
	out := notices{func() { i.sink.TimerTicked(remaining) }}
	if remaining > 0 {
		return out
	}

	i.timeUp = true
	i.clock.disarm()
	if i.roundIndex >= len(i.plan)-1 {
		return append(out, i.completeLocked(domain.EndReasonFinalExpiry, domain.ReasonFinalRoundExpiry)...)
	}
	return append(out, i.stateNotice(domain.ReasonTimeUp))
}

// Pause stops the countdown. Pausing a paused session is a no-op.
func (i *Interview) Pause() error {
	i.mu.Lock()
	switch i.state {
	case domain.InterviewStatePaused:
		i.mu.Unlock()
		return nil
	case domain.InterviewStateInRound:
	default:
		i.mu.Unlock()
		return ErrNotInRound
	}
	i.clock.disarm()
	i.state = domain.InterviewStatePaused
	out := notices{i.stateNotice(domain.ReasonPaused)}
	i.mu.Unlock()
	out.send()
	return nil
}

// Resume restarts the countdown. Resuming a running session is a no-op.
func (i *Interview) Resume() error {
	i.mu.Lock()
	switch i.state {
	case domain.InterviewStateInRound:
		i.mu.Unlock()
		return nil
	case domain.InterviewStatePaused:
	default:
		i.mu.Unlock()
		return ErrNotInRound
	}
	i.state = domain.InterviewStateInRound
	if !i.timeUp {
		i.clock.arm(i.onClock)
	}
	out := notices{i.stateNotice(domain.ReasonResumed)}
	i.mu.Unlock()
	out.send()
	return nil
}

// NextQuestion moves on once the current question has an answer. Coding
// rounds do not require one.
func (i *Interview) NextQuestion() error {
	i.mu.Lock()
	if i.state != domain.InterviewStateInRound {
		i.mu.Unlock()
		return ErrNotInRound
	}
	if i.plan[i.roundIndex].Kind != domain.RoundKindCoding && !i.answered[i.questionIndex] {
		i.mu.Unlock()
		return ErrAnswerRequired
	}
	out := i.advanceQuestionLocked(domain.ReasonQuestionAdvanced)
	i.mu.Unlock()
	out.send()
	return nil
}

// Skip moves on without an answer.
func (i *Interview) Skip() error {
	i.mu.Lock()
	if i.state != domain.InterviewStateInRound {
		i.mu.Unlock()
		return ErrNotInRound
	}
	out := i.advanceQuestionLocked(domain.ReasonQuestionSkipped)
	i.mu.Unlock()
	out.send()
	return nil
}

// AdvanceRound ends the current round, completing the interview after the
// last one.
func (i *Interview) AdvanceRound() error {
	i.mu.Lock()
	if i.state != domain.InterviewStateInRound && i.state != domain.InterviewStatePaused {
		i.mu.Unlock()
		return ErrNotInRound
	}
	out := i.advanceRoundLocked()
	i.mu.Unlock()
	out.send()
	return nil
}

func (i *Interview) advanceQuestionLocked(reason domain.StateReason) notices {
	if i.questionIndex+1 < len(i.plan[i.roundIndex].Questions) {
		i.questionIndex++
		i.draft = ""
		i.feedback = ""
		return notices{i.stateNotice(reason)}
	}
	return i.advanceRoundLocked()
}

func (i *Interview) advanceRoundLocked() notices {
	i.clock.disarm()
	if i.roundIndex >= len(i.plan)-1 {
		return i.completeLocked(domain.EndReasonAllRounds, domain.ReasonAllRoundsDone)
	}

	i.state = domain.InterviewStateTransitioning
	out := notices{i.stateNotice(domain.ReasonRoundTransition)}
	i.enterRoundLocked(i.roundIndex + 1)
	out = append(out, i.stateNotice(domain.ReasonRoundStarted))
	return append(out, i.requestOpeningLocked()...)
}

func (i *Interview) enterRoundLocked(index int) {
	i.state = domain.InterviewStateInRound
	i.roundIndex = index
	i.questionIndex = 0
	i.remaining = i.plan[index].DurationSeconds
	i.timeUp = false
	i.opening = ""
	i.draft = ""
	i.feedback = ""
	i.answered = make(map[int]bool)
	i.clock.arm(i.onClock)
}

// End completes the session from any state.
func (i *Interview) End(reason string) domain.InterviewStatus {
	if strings.TrimSpace(reason) == "" {
		reason = domain.EndReasonManual
	}
	i.mu.Lock()
	if i.state == domain.InterviewStateCompleted {
		status := i.statusLocked()
		i.mu.Unlock()
		return status
	}
	out := i.completeLocked(reason, domain.ReasonEnded)
	status := i.statusLocked()
	i.mu.Unlock()
	out.send()
	return status
}

func (i *Interview) completeLocked(endReason string, reason domain.StateReason) notices {
	i.clock.disarm()
	if i.cancelWork != nil {
		i.cancelWork()
	}
	wasActive := i.activeLocked()
	i.state = domain.InterviewStateCompleted
	i.endReason = endReason
	i.roundIndex = -1
	i.questionIndex = -1
	i.remaining = 0
	i.inflight = 0
	out := notices{i.stateNotice(reason)}
	if wasActive {
		out = append(out, i.metrics.InterviewCompleted)
	}
	return out
}

// SetDraft replaces the answer buffer of the current question.
func (i *Interview) SetDraft(text string) error {
	i.mu.Lock()
	if !i.activeLocked() {
		i.mu.Unlock()
		return ErrNotInRound
	}
	i.draft = text
	out := notices{i.stateNotice(domain.ReasonDraftUpdated)}
	i.mu.Unlock()
	out.send()
	return nil
}

// SubmitAnswer persists an answer for the current question and, outside
// coding rounds, requests feedback in the background.
func (i *Interview) SubmitAnswer(ctx context.Context, text string) (domain.AnswerRecord, error) {
	trimmed := strings.TrimSpace(text)

	i.mu.Lock()
	if i.state != domain.InterviewStateInRound {
		i.mu.Unlock()
		return domain.AnswerRecord{}, ErrNotInRound
	}
	if utf8.RuneCountInString(trimmed) < i.cfg.MinimumAnswerLength {
		i.mu.Unlock()
		return domain.AnswerRecord{}, fmt.Errorf("%w: answer must be at least %d characters", domain.ErrValidation, i.cfg.MinimumAnswerLength)
	}
	sessionID := i.sessionID
	round := i.plan[i.roundIndex]
	question := round.Questions[i.questionIndex]
	record := domain.AnswerRecord{
		EntityID:      i.entityID,
		RoundNumber:   i.roundIndex + 1,
		QuestionIndex: i.questionIndex,
		Text:          trimmed,
		Timestamp:     i.now().UTC(),
	}
	i.mu.Unlock()

	if err := i.answers.Save(ctx, record); err != nil {
		i.sink.SessionError(domain.ErrorCodePersistence, err.Error())
		return domain.AnswerRecord{}, fmt.Errorf("failed to save answer: %w", err)
	}
	i.metrics.AnswerSaved()

	i.mu.Lock()
	if sessionID != i.sessionID || !i.activeLocked() || record.Key() != i.currentKeyLocked() {
		// The session moved on while the answer was being written.
		i.mu.Unlock()
		return record, nil
	}
	i.answered[i.questionIndex] = true
	i.draft = trimmed
	i.history = append(i.history, "[Your Answer]: "+trimmed)

	evaluate := round.Kind != domain.RoundKindCoding && i.oracle != nil
	var work context.Context
	if evaluate {
		i.inflight++
		i.background.Add(1)
		work = i.work
	}
	out := notices{i.stateNotice(domain.ReasonAnswerSaved)}
	i.mu.Unlock()

	out.send()
	if evaluate {
		go i.evaluate(work, sessionID, record.Key(), question.Prompt(), trimmed)
	}
	return record, nil
}

func (i *Interview) evaluate(ctx context.Context, sessionID string, key domain.AnswerKey, question, answer string) {
	defer i.background.Done()

	feedback, err := i.oracle.Evaluate(ctx, question, answer)
	i.metrics.EvaluationFinished(err == nil)

	i.mu.Lock()
	if sessionID != i.sessionID || !i.activeLocked() {
		i.mu.Unlock()
		return
	}
	if i.inflight > 0 {
		i.inflight--
	}
	current := key == i.currentKeyLocked()
	if current && err == nil {
		i.feedback = feedback
	}
	out := notices{i.stateNotice(domain.ReasonEvaluationDone)}
	i.mu.Unlock()

	if current {
		i.sink.EvaluationFinished(domain.Evaluation{Key: key, Question: question, Feedback: feedback, Err: err})
		if err != nil {
			i.sink.SessionError(domain.ErrorCodeEvaluation, err.Error())
		}
	}
	out.send()
}

// requestOpeningLocked starts generating the round opener for non-coding
// rounds. The result is dropped if the round has changed by then.
func (i *Interview) requestOpeningLocked() notices {
	round := i.plan[i.roundIndex]
	if round.Kind == domain.RoundKindCoding || i.oracle == nil {
		return nil
	}
	req := domain.OpeningRequest{Setup: i.setup, Focus: i.focus, RoundName: round.Name, Kind: round.Kind}
	sessionID, roundIndex, work := i.sessionID, i.roundIndex, i.work
	i.background.Add(1)

	return notices{func() {
		go func() {
			defer i.background.Done()
			text, err := i.oracle.OpeningQuestion(work, req)

			i.mu.Lock()
			stale := sessionID != i.sessionID || roundIndex != i.roundIndex || !i.activeLocked()
			if !stale && err == nil {
				i.opening = strings.TrimSpace(text)
				i.history = append(i.history, "[Interviewer]: "+i.opening)
			}
			opening := i.opening
			i.mu.Unlock()

			switch {
			case stale:
			case err != nil:
				i.sink.SessionError(domain.ErrorCodeQuestion, err.Error())
			default:
				i.sink.OpeningReady(domain.OpeningPrompt{RoundIndex: roundIndex, Text: opening})
			}
		}()
	}}
}

// FollowUp asks the oracle to react to answer given the recent history.
func (i *Interview) FollowUp(ctx context.Context, answer string) (string, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: answer is empty", domain.ErrValidation)
	}

	i.mu.Lock()
	if !i.activeLocked() || i.state == domain.InterviewStateTransitioning {
		i.mu.Unlock()
		return "", ErrNotInRound
	}
	if i.oracle == nil {
		i.mu.Unlock()
		return "", domain.ErrMissingCredential
	}
	sessionID := i.sessionID
	req := domain.FollowUpRequest{
		Setup:         i.setup,
		Focus:         i.focus,
		RoundName:     i.plan[i.roundIndex].Name,
		TimeRemaining: i.remaining,
		History:       append([]string(nil), i.history...),
		Answer:        answer,
	}
	i.mu.Unlock()

	text, err := i.oracle.FollowUp(ctx, req)
	if err != nil {
		i.sink.SessionError(domain.ErrorCodeQuestion, err.Error())
		return "", err
	}
	text = strings.TrimSpace(text)

	i.mu.Lock()
	if sessionID == i.sessionID && i.activeLocked() {
		i.history = append(i.history, "[Your Answer]: "+answer, "[Interviewer]: "+text)
	}
	i.mu.Unlock()
	return text, nil
}

// WaitEvaluations blocks until every in-flight oracle call has returned.
func (i *Interview) WaitEvaluations() {
	i.background.Wait()
}

// Status returns a snapshot of the session.
func (i *Interview) Status() domain.InterviewStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.statusLocked()
}

// CurrentKey identifies the question being answered.
func (i *Interview) CurrentKey() (domain.AnswerKey, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.activeLocked() {
		return domain.AnswerKey{}, false
	}
	return i.currentKeyLocked(), true
}

func (i *Interview) activeLocked() bool {
	switch i.state {
	case domain.InterviewStateInRound, domain.InterviewStatePaused, domain.InterviewStateTransitioning:
		return true
	default:
		return false
	}
}

func (i *Interview) currentKeyLocked() domain.AnswerKey {
	return domain.AnswerKey{EntityID: i.entityID, RoundNumber: i.roundIndex + 1, QuestionIndex: i.questionIndex}
}

func (i *Interview) statusLocked() domain.InterviewStatus {
	status := domain.InterviewStatus{
		SessionID:     i.sessionID,
		State:         i.state,
		Setup:         i.setup,
		RoundIndex:    i.roundIndex,
		QuestionIndex: i.questionIndex,
		RoundCount:    len(i.plan),
		Opening:       i.opening,
		TimeRemaining: i.remaining,
		TimeUp:        i.timeUp,
		Evaluating:    i.inflight > 0,
		Draft:         i.draft,
		Feedback:      i.feedback,
		EndReason:     i.endReason,
	}
	if i.roundIndex >= 0 && i.roundIndex < len(i.plan) {
		round := i.plan[i.roundIndex]
		round.Questions = append([]domain.Question(nil), round.Questions...)
		status.Round = &round
		if i.questionIndex >= 0 && i.questionIndex < len(round.Questions) {
			question := round.Questions[i.questionIndex]
			status.Question = &question
		}
	}
	return status
}
