package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"prepdeck/internal/domain"
)

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{})
	if c.cfg.APIBaseURL != "https://generativelanguage.googleapis.com" {
		t.Fatalf("unexpected base url: %q", c.cfg.APIBaseURL)
	}
	if c.cfg.APIVersion != "v1beta" || c.cfg.Model != "gemini-2.5-flash" {
		t.Fatalf("unexpected version/model: %q %q", c.cfg.APIVersion, c.cfg.Model)
	}
	if c.cfg.MaxAttempts != 5 || c.cfg.BaseDelay != time.Second {
		t.Fatalf("unexpected retry defaults: %+v", c.cfg)
	}

	legacy := NewClient(Config{APIVersion: LegacyAPIVersion})
	if legacy.cfg.Model != "text-bison-001" {
		t.Fatalf("unexpected legacy model: %q", legacy.cfg.Model)
	}
}

func TestCompleteRequiresCredential(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{APIKey: "  "})
	if c.Configured() {
		t.Fatalf("expected unconfigured client")
	}
	_, err := c.Evaluate(context.Background(), "q", "a")
	if !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestCompleteGenerateContentWithQueryKey(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Score: 8"}]}}]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "secret", APIBaseURL: srv.URL})
	text, err := c.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if text != "Score: 8" {
		t.Fatalf("unexpected text: %q", text)
	}
	if gotPath != "/v1beta/models/gemini-2.5-flash:generateContent" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotKey != "secret" || gotAuth != "" {
		t.Fatalf("expected query key auth, got key=%q auth=%q", gotKey, gotAuth)
	}

	contents := gotBody["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	if parts[0].(map[string]any)["text"] != "hello" {
		t.Fatalf("unexpected request body: %v", gotBody)
	}
	genCfg := gotBody["generationConfig"].(map[string]any)
	if genCfg["temperature"] != 0.7 || genCfg["candidateCount"] != float64(1) {
		t.Fatalf("unexpected generation config: %v", genCfg)
	}
}

func TestCompleteLegacyShapeWithBearer(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"candidates":[{"output":"legacy text"}]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "Bearer tok", APIBaseURL: srv.URL + "/", APIVersion: LegacyAPIVersion})
	text, err := c.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if text != "legacy text" {
		t.Fatalf("unexpected text: %q", text)
	}
	if gotPath != "/v1beta2/models/text-bison-001:generateText" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotAuth != "Bearer tok" || gotKey != "" {
		t.Fatalf("expected bearer auth, got key=%q auth=%q", gotKey, gotAuth)
	}
	if gotBody["prompt"].(map[string]any)["text"] != "prompt" || gotBody["maxOutputTokens"] != float64(256) {
		t.Fatalf("unexpected legacy body: %v", gotBody)
	}
}

func TestEvaluateUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"boom"}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", APIBaseURL: srv.URL})
	_, err := c.Evaluate(context.Background(), "What is CAP?", "Consistency, availability, partitions")

	var upstream *domain.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Status != 500 || upstream.Body != `{"error":"boom"}` {
		t.Fatalf("unexpected upstream error: %+v", upstream)
	}
}

func TestEvaluatePromptEmbedsQuestionAndAnswer(t *testing.T) {
	t.Parallel()

	prompt := evaluationPrompt("  Explain closures ", "functions capturing scope")
	for _, want := range []string{"Question: Explain closures", "Candidate answer: functions capturing scope", "Score:", "Strengths:", "Improvements:", "Verdict:", "Sample answer:"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "content parts", body: `{"candidates":[{"content":{"parts":[{"text":"a"}]}}]}`, want: "a"},
		{name: "content list", body: `{"candidates":[{"content":[{"text":"b"}]}]}`, want: "b"},
		{name: "candidate output", body: `{"candidates":[{"output":"c"}]}`, want: "c"},
		{name: "output list", body: `{"output":[{"content":[{"text":"d"}]}]}`, want: "d"},
		{name: "first wins", body: `{"candidates":[{"content":{"parts":[{"text":"first"}]},"output":"second"}]}`, want: "first"},
		{name: "blank text skipped", body: `{"candidates":[{"content":{"parts":[{"text":"  "}]},"output":"fallback"}]}`, want: "fallback"},
		{name: "unknown shape", body: `{"promptFeedback":{"blockReason":"SAFETY"}}`, want: `{"promptFeedback":{"blockReason":"SAFETY"}}`},
		{name: "empty object", body: `{}`, want: EmptyResponseText},
		{name: "empty body", body: "  ", want: EmptyResponseText},
		{name: "not json", body: "plain text", want: "plain text"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractText([]byte(tt.body)); got != tt.want {
				t.Fatalf("ExtractText(%s) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestOpeningQuestionRetriesWithBackoff(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body generateContentRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		prompt = body.Contents[0].Parts[0].Text
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Imagine a traffic spike..."}]}}]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", APIBaseURL: srv.URL})
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	c.jitter = func(time.Duration) time.Duration { return 250 * time.Millisecond }

	text, err := c.OpeningQuestion(context.Background(), domain.OpeningRequest{
		Setup:     domain.InterviewSetup{Mode: domain.InterviewModeCompany, Company: "google", Role: "Software Engineer", Level: "Senior"},
		Focus:     "Software Engineer role at Google",
		RoundName: "Technical Concepts & Architecture",
		Kind:      domain.RoundKindTechnical,
	})
	if err != nil {
		t.Fatalf("opening question failed: %v", err)
	}
	if text != "Imagine a traffic spike..." {
		t.Fatalf("unexpected text: %q", text)
	}
	if len(delays) != 2 || delays[0] != 1250*time.Millisecond || delays[1] != 2250*time.Millisecond {
		t.Fatalf("unexpected backoff delays: %v", delays)
	}
	if !strings.HasPrefix(prompt, "System: You are a professional interviewer for a Senior Software Engineer role at Google.") {
		t.Fatalf("unexpected prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "Interview Type: Company-Specific") {
		t.Fatalf("prompt missing setup info: %q", prompt)
	}
}

func TestOpeningQuestionGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "slow down")
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", APIBaseURL: srv.URL})
	sleeps := 0
	c.sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	_, err := c.OpeningQuestion(context.Background(), domain.OpeningRequest{})
	var upstream *domain.UpstreamError
	if !errors.As(err, &upstream) || upstream.Status != http.StatusTooManyRequests {
		t.Fatalf("expected final upstream error, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 5 || sleeps != 4 {
		t.Fatalf("expected 5 attempts and 4 sleeps, got %d and %d", calls, sleeps)
	}
}

func TestRetryStopsOnMissingCredential(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{})
	c.sleep = func(context.Context, time.Duration) error {
		t.Fatalf("should not sleep without a credential")
		return nil
	}
	if _, err := c.FollowUp(context.Background(), domain.FollowUpRequest{}); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestFollowUpHistoryKeepsLastEntries(t *testing.T) {
	t.Parallel()

	got := followUpHistory(domain.FollowUpRequest{
		Setup:         domain.InterviewSetup{Level: "Entry-Level"},
		Focus:         "General Software Engineer",
		RoundName:     "Behavioral & Culture Fit",
		TimeRemaining: 605,
		History:       []string{"one", "two", "three", "four"},
		Answer:        "my answer",
	})
	want := "Context: Entry-Level General Software Engineer, Round: Behavioral & Culture Fit. Time Remaining: 10:05.\n--- HISTORY ---\ntwo\nthree\nfour\n[Your Answer]: my answer"
	if got != want {
		t.Fatalf("unexpected history:\n%s", got)
	}
}

func TestFormatClock(t *testing.T) {
	t.Parallel()

	tests := map[int]string{0: "0:00", 5: "0:05", 65: "1:05", 1800: "30:00", -3: "0:00"}
	for seconds, want := range tests {
		if got := FormatClock(seconds); got != want {
			t.Fatalf("FormatClock(%d) = %q, want %q", seconds, got, want)
		}
	}
}
