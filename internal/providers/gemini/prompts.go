package gemini

import (
	"fmt"
	"strings"

	"prepdeck/internal/domain"
)

const historyWindow = 3

func evaluationPrompt(question, answer string) string {
	return fmt.Sprintf(`You are an experienced interviewer reviewing a candidate's answer.

Question: %s

Candidate answer: %s

Reply in this format:
Score: <0-10>
Strengths: <what the answer did well>
Improvements: <what is missing or could be better>
Verdict: <one sentence>
Sample answer: <a concise strong answer>`, strings.TrimSpace(question), strings.TrimSpace(answer))
}

func withSystem(system, prompt string) string {
	if system == "" {
		return prompt
	}
	return "System: " + system + "\n\n" + prompt
}

func openingSystem(req domain.OpeningRequest) string {
	return fmt.Sprintf(
		"You are a professional interviewer for a %s %s. This is the %s round. Your task is to ask the first, specific, scenario-based question for this round, matching the round type (%s). Only ask one question.",
		req.Setup.Level, req.Focus, req.RoundName, req.Kind,
	)
}

func openingUser(req domain.OpeningRequest) string {
	return fmt.Sprintf(
		"Start the new round with the first question for the %s. Setup: Interview Type: %s, Role: %s, Level: %s, Context: %s",
		req.RoundName, modeLabel(req.Setup.Mode), req.Setup.Role, req.Setup.Level, req.Focus,
	)
}

func followUpSystem(req domain.FollowUpRequest) string {
	return fmt.Sprintf(
		"You are a professional interviewer for the %s. Given the history, provide a concise follow-up, critique, or the next logical question. Your response should maintain the professional tone. Keep your response short and focused.",
		req.RoundName,
	)
}

func followUpHistory(req domain.FollowUpRequest) string {
	history := req.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Context: %s %s, Round: %s. Time Remaining: %s.\n", req.Setup.Level, req.Focus, req.RoundName, FormatClock(req.TimeRemaining))
	b.WriteString("--- HISTORY ---\n")
	for _, entry := range history {
		b.WriteString(entry)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "[Your Answer]: %s", req.Answer)
	return b.String()
}

func modeLabel(mode domain.InterviewMode) string {
	switch mode {
	case domain.InterviewModeCompany:
		return "Company-Specific"
	case domain.InterviewModeRole:
		return "Role-Specific"
	default:
		return "General"
	}
}

// FormatClock renders seconds as m:ss.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
