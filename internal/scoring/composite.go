package scoring

import (
	"math"

	"prepdeck/internal/domain"
)

// Target speaking rates per practice mode.
const (
	WordTargetWPM      = 80
	ParagraphTargetWPM = 140
)

// Input is everything a finished recording contributes to its scores.
type Input struct {
	Expected       string
	Spoken         string
	ElapsedSeconds float64
	Loudness       float64
	Mode           domain.PracticeMode
}

// Compose derives the four practice scores from one recording.
func Compose(in Input) domain.ScoringResult {
	pronunciation := int(math.Round(100 * TextSimilarity(in.Expected, in.Spoken)))

	clarity := int(math.Round(math.Min(100, math.Max(20, in.Loudness*120))))
	if pronunciation < 50 {
		clarity = max(10, clarity-10)
	}

	target := float64(TargetWPM(in.Mode))
	wpm := float64(WordsPerMinute(in.Spoken, in.ElapsedSeconds))
	speed := max(0, int(math.Round(100-math.Abs(wpm-target)/target*100)))

	fluency := int(math.Round(float64(pronunciation)*0.6 + float64(speed)*0.4))
	if float64(len(Tokenize(in.Spoken))) < float64(len(Tokenize(in.Expected)))*0.6 {
		fluency = max(20, fluency-20)
	}

	return domain.ScoringResult{
		Pronunciation: clamp(pronunciation),
		Clarity:       clamp(clarity),
		Fluency:       clamp(fluency),
		Speed:         clamp(speed),
	}
}

// TargetWPM returns the speaking rate a mode is scored against.
func TargetWPM(mode domain.PracticeMode) int {
	if mode == domain.PracticeModeWord {
		return WordTargetWPM
	}
	return ParagraphTargetWPM
}

// FeedbackText maps a score to a short coaching line.
func FeedbackText(score int) string {
	switch {
	case score >= 85:
		return "Excellent - keep that up!"
	case score >= 70:
		return "Good - a few small improvements will make it great."
	case score >= 50:
		return "Fair - focus on clarity & pacing."
	default:
		return "Needs practice - try speaking slower & clearer."
	}
}

func clamp(score int) int {
	return min(100, max(0, score))
}
