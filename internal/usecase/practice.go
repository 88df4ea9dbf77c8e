package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"prepdeck/internal/domain"
	"prepdeck/internal/ports"
	"prepdeck/internal/scoring"
)

const practiceOwner = "practice"

// PracticeCoach scores a read-aloud attempt of a practice item.
type PracticeCoach struct {
	captures    *CaptureController
	transcripts ports.TranscriptSink

	mu      sync.Mutex
	item    domain.PracticeItem
	capture *Capture
	drained chan struct{}
}

func NewPracticeCoach(captures *CaptureController, transcripts ports.TranscriptSink) *PracticeCoach {
	return &PracticeCoach{captures: captures, transcripts: transcripts}
}

// Start begins recording the user reading item aloud.
func (p *PracticeCoach) Start(ctx context.Context, item domain.PracticeItem) error {
	if strings.TrimSpace(item.Text) == "" {
		return fmt.Errorf("%w: practice text is empty", domain.ErrValidation)
	}
	if item.Mode == "" {
		item.Mode = domain.PracticeModeParagraph
	}

	capture, err := p.captures.Start(ctx, practiceOwner)
	if err != nil {
		return err
	}
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		forwardPartials(capture, p.transcripts)
	}()

	p.mu.Lock()
	p.item = item
	p.capture = capture
	p.drained = drained
	p.mu.Unlock()
	return nil
}

// Stop ends the recording and scores it against the practice text.
func (p *PracticeCoach) Stop(ctx context.Context) (domain.PracticeReport, error) {
	p.mu.Lock()
	capture, item, drained := p.capture, p.item, p.drained
	p.capture = nil
	p.mu.Unlock()
	if capture == nil {
		return domain.PracticeReport{}, ErrNoActiveSession
	}

	result, err := capture.Stop(ctx)
	<-drained
	if err != nil {
		return domain.PracticeReport{}, err
	}
	return Score(item, result), nil
}

// Score turns a finished capture into a practice report.
func Score(item domain.PracticeItem, result domain.CaptureResult) domain.PracticeReport {
	elapsed := result.Elapsed.Seconds()
	scores := scoring.Compose(scoring.Input{
		Expected:       item.Text,
		Spoken:         result.Transcript,
		ElapsedSeconds: elapsed,
		Loudness:       result.Loudness,
		Mode:           item.Mode,
	})
	return domain.PracticeReport{
		Item:       item,
		Transcript: result.Transcript,
		WPM:        scoring.WordsPerMinute(result.Transcript, elapsed),
		Scores:     scores,
		Feedback:   scoring.FeedbackText(scores.Fluency),
	}
}
