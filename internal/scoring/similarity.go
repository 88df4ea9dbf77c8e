// Package scoring holds the practice heuristics: token similarity, speaking
// rate, microphone loudness and the composite practice scores. The numbers are
// best-effort approximations meant to guide practice, not to grade it.
package scoring

import (
	"math"
	"strings"
	"unicode"
)

const (
	lookaheadWindow = 3
	prefixBonus     = 0.25
)

// Tokenize lowercases text, blanks out punctuation other than apostrophes and
// splits on whitespace.
func Tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '\'':
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, text)
	return strings.Fields(cleaned)
}

// TextSimilarity scores how closely spoken follows expected, in [0,1].
//
// Expected tokens are matched in order against the spoken tokens, looking a
// few tokens ahead to tolerate inserted words. Tokens at the same position
// that share a prefix earn partial credit.
func TextSimilarity(expected, spoken string) float64 {
	exp := Tokenize(expected)
	if len(exp) == 0 {
		return 0
	}
	said := Tokenize(spoken)

	matched := 0
	si := 0
	for ei := 0; ei < len(exp) && si < len(said); ei++ {
		if exp[ei] == said[si] {
			matched++
			si++
			continue
		}
		end := min(si+lookaheadWindow, len(said))
		if idx := indexOf(said[si:end], exp[ei]); idx >= 0 {
			matched++
			si += idx + 1
		} else {
			si++
		}
	}

	bonus := 0.0
	for i, word := range exp {
		if i >= len(said) {
			break
		}
		if strings.HasPrefix(said[i], runePrefix(word, max(1, len([]rune(word))/2))) {
			bonus += prefixBonus
		}
	}
	bonus /= float64(max(1, len(exp)))

	return math.Min(1, float64(matched)/float64(len(exp))+0.5*bonus)
}

// WordsPerMinute returns the rounded speaking rate of transcript.
func WordsPerMinute(transcript string, elapsedSeconds float64) int {
	if elapsedSeconds <= 0 {
		return 0
	}
	words := len(Tokenize(transcript))
	return int(math.Round(float64(words) / (elapsedSeconds / 60)))
}

func indexOf(tokens []string, target string) int {
	for i, token := range tokens {
		if token == target {
			return i
		}
	}
	return -1
}

func runePrefix(word string, n int) string {
	runes := []rune(word)
	if n >= len(runes) {
		return word
	}
	return string(runes[:n])
}
