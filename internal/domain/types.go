package domain

import "time"

// RoundKind determines how a round's questions are answered.
type RoundKind string

const (
	RoundKindTechnical  RoundKind = "technical"
	RoundKindCoding     RoundKind = "coding"
	RoundKindBehavioral RoundKind = "behavioral"
)

// InterviewMode selects which catalog data seeds the rounds.
type InterviewMode string

const (
	InterviewModeGeneral InterviewMode = "general"
	InterviewModeRole    InterviewMode = "role"
	InterviewModeCompany InterviewMode = "company"
)

// Question is one prompt inside a round. Coding questions carry a problem
// title, difficulty and reference link instead of free text.
type Question struct {
	Text       string `json:"text" yaml:"text"`
	Title      string `json:"title,omitempty" yaml:"title"`
	Difficulty string `json:"difficulty,omitempty" yaml:"difficulty"`
	Link       string `json:"link,omitempty" yaml:"link"`
}

// Prompt returns the text sent to the oracle for this question.
func (q Question) Prompt() string {
	if q.Text != "" {
		return q.Text
	}
	return q.Title
}

// Round is one timed phase of a mock interview.
type Round struct {
	Name            string     `json:"name"`
	Kind            RoundKind  `json:"kind"`
	DurationSeconds int        `json:"durationSeconds"`
	Questions       []Question `json:"questions"`
}

// InterviewSetup is the user's selection before a session starts.
type InterviewSetup struct {
	Mode    InterviewMode `json:"mode"`
	Company string        `json:"company,omitempty"`
	Role    string        `json:"role,omitempty"`
	Level   string        `json:"level,omitempty"`
}

// InterviewState models the mock interview lifecycle.
type InterviewState string

const (
	InterviewStateNotStarted    InterviewState = "not_started"
	InterviewStateInRound       InterviewState = "in_round"
	InterviewStatePaused        InterviewState = "paused"
	InterviewStateTransitioning InterviewState = "transitioning"
	InterviewStateCompleted     InterviewState = "completed"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonStarted          StateReason = "started"
	ReasonPaused           StateReason = "paused"
	ReasonResumed          StateReason = "resumed"
	ReasonQuestionAdvanced StateReason = "question_advanced"
	ReasonQuestionSkipped  StateReason = "question_skipped"
	ReasonRoundTransition  StateReason = "round_transition"
	ReasonRoundStarted     StateReason = "round_started"
	ReasonTimeUp           StateReason = "time_up"
	ReasonAnswerSaved      StateReason = "answer_saved"
	ReasonEvaluationDone   StateReason = "evaluation_finished"
	ReasonDraftUpdated     StateReason = "draft_updated"
	ReasonAllRoundsDone    StateReason = "all_rounds_completed"
	ReasonFinalRoundExpiry StateReason = "final_round_expired"
	ReasonEnded            StateReason = "ended"
)

// End reasons recorded on completion.
const (
	EndReasonAllRounds   = "All planned rounds successfully completed."
	EndReasonFinalExpiry = "Round time expired for the final round."
	EndReasonManual      = "User ended session manually."
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeEvaluation    ErrorCode = "evaluation"
	ErrorCodeQuestion      ErrorCode = "question"
	ErrorCodePersistence   ErrorCode = "persistence"
	ErrorCodeVoice         ErrorCode = "voice"
)

// InterviewStatus is an observable snapshot of the session.
type InterviewStatus struct {
	SessionID     string         `json:"sessionId,omitempty"`
	State         InterviewState `json:"state"`
	Setup         InterviewSetup `json:"setup"`
	RoundIndex    int            `json:"roundIndex"`
	QuestionIndex int            `json:"questionIndex"`
	RoundCount    int            `json:"roundCount"`
	Round         *Round         `json:"round,omitempty"`
	Question      *Question      `json:"question,omitempty"`
	Opening       string         `json:"opening,omitempty"`
	TimeRemaining int            `json:"timeRemaining"`
	TimeUp        bool           `json:"timeUp"`
	Evaluating    bool           `json:"evaluating"`
	Draft         string         `json:"draft,omitempty"`
	Feedback      string         `json:"feedback,omitempty"`
	EndReason     string         `json:"endReason,omitempty"`
}

// Active reports whether rounds are being walked.
func (s InterviewStatus) Active() bool {
	switch s.State {
	case InterviewStateInRound, InterviewStatePaused, InterviewStateTransitioning:
		return true
	default:
		return false
	}
}

// AnswerKey is the composite identity of an answer record.
type AnswerKey struct {
	EntityID      string `json:"entityId"`
	RoundNumber   int    `json:"roundNumber"`
	QuestionIndex int    `json:"questionIndex"`
}

// AnswerRecord is a saved free-text or transcribed response.
type AnswerRecord struct {
	EntityID      string    `json:"entityId"`
	RoundNumber   int       `json:"roundNumber"`
	QuestionIndex int       `json:"questionIndex"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
}

// Key returns the record's composite identity.
func (r AnswerRecord) Key() AnswerKey {
	return AnswerKey{EntityID: r.EntityID, RoundNumber: r.RoundNumber, QuestionIndex: r.QuestionIndex}
}

// Profile is the lightweight locally stored user profile.
type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Evaluation is the outcome of one oracle evaluation request.
type Evaluation struct {
	Key      AnswerKey `json:"key"`
	Question string    `json:"question"`
	Feedback string    `json:"feedback,omitempty"`
	Err      error     `json:"-"`
}

// OpeningPrompt is a generated round opener.
type OpeningPrompt struct {
	RoundIndex int    `json:"roundIndex"`
	Text       string `json:"text"`
}

// OpeningRequest carries the context for generating a round opener.
type OpeningRequest struct {
	Setup     InterviewSetup
	Focus     string
	RoundName string
	Kind      RoundKind
}

// FollowUpRequest carries the context for a follow-up question.
type FollowUpRequest struct {
	Setup         InterviewSetup
	Focus         string
	RoundName     string
	TimeRemaining int
	History       []string
	Answer        string
}

// ScoringResult is an ephemeral set of practice scores, each in [0,100].
type ScoringResult struct {
	Pronunciation int `json:"pronunciation"`
	Clarity       int `json:"clarity"`
	Fluency       int `json:"fluency"`
	Speed         int `json:"speed"`
}

// PracticeMode selects the speaking-rate target used for scoring.
type PracticeMode string

const (
	PracticeModeWord      PracticeMode = "word"
	PracticeModeParagraph PracticeMode = "paragraph"
)

// PracticeItem is the text a user reads aloud.
type PracticeItem struct {
	Mode     PracticeMode `json:"mode"`
	Title    string       `json:"title,omitempty"`
	Text     string       `json:"text"`
	Phonetic string       `json:"phonetic,omitempty"`
}

// PracticeReport is returned once a practice recording is scored.
type PracticeReport struct {
	Item       PracticeItem  `json:"item"`
	Transcript string        `json:"transcript"`
	WPM        int           `json:"wpm"`
	Scores     ScoringResult `json:"scores"`
	Feedback   string        `json:"feedback"`
}

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// CaptureResult is returned once a capture is stopped and finalized.
type CaptureResult struct {
	Owner         string        `json:"owner"`
	RawTranscript string        `json:"rawTranscript"`
	Transcript    string        `json:"transcript"`
	Loudness      float64       `json:"loudness"`
	Elapsed       time.Duration `json:"elapsed"`
}
