package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"prepdeck/internal/domain"
)

const (
	// LegacyAPIVersion selects the generateText request shape.
	LegacyAPIVersion = "v1beta2"

	bearerPrefix = "Bearer "
)

// Config controls the Gemini REST client.
type Config struct {
	APIKey          string
	APIBaseURL      string
	APIVersion      string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration

	// Retry applies to question generation only.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

// Client implements ports.Oracle against the Gemini generative-language API.
type Client struct {
	cfg  Config
	http *http.Client

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(limit time.Duration) time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1beta"
	}
	if cfg.Model == "" {
		if cfg.APIVersion == LegacyAPIVersion {
			cfg.Model = "text-bison-001"
		} else {
			cfg.Model = "gemini-2.5-flash"
		}
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxJitter < 0 {
		cfg.MaxJitter = 0
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		sleep:  sleepContext,
		jitter: randomJitter,
	}
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends a single prompt and returns the extracted response text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	key := strings.TrimSpace(c.cfg.APIKey)
	if key == "" {
		return "", domain.ErrMissingCredential
	}

	endpoint, err := c.endpoint(key)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(c.requestBody(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.HasPrefix(key, bearerPrefix) {
		req.Header.Set("Authorization", key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Gemini: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read Gemini response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.UpstreamError{Status: resp.StatusCode, Body: string(payload)}
	}
	return ExtractText(payload), nil
}

// Evaluate asks the oracle to grade an answer. It is not retried.
func (c *Client) Evaluate(ctx context.Context, question, answer string) (string, error) {
	return c.Complete(ctx, evaluationPrompt(question, answer))
}

// OpeningQuestion generates the first question of a round.
func (c *Client) OpeningQuestion(ctx context.Context, req domain.OpeningRequest) (string, error) {
	return c.completeWithRetry(ctx, withSystem(openingSystem(req), openingUser(req)))
}

// FollowUp generates a follow-up to the candidate's latest answer.
func (c *Client) FollowUp(ctx context.Context, req domain.FollowUpRequest) (string, error) {
	return c.completeWithRetry(ctx, withSystem(followUpSystem(req), followUpHistory(req)))
}

// completeWithRetry retries with exponential backoff and random jitter. A
// missing credential or a cancelled context ends it early.
func (c *Client) completeWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		text, err := c.Complete(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if errors.Is(err, domain.ErrMissingCredential) || ctx.Err() != nil {
			return "", err
		}
		if attempt == c.cfg.MaxAttempts-1 {
			break
		}
		delay := c.cfg.BaseDelay*time.Duration(1<<attempt) + c.jitter(c.cfg.MaxJitter)
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (c *Client) endpoint(key string) (string, error) {
	method := "generateContent"
	if c.cfg.APIVersion == LegacyAPIVersion {
		method = "generateText"
	}
	base := strings.TrimRight(strings.TrimSpace(c.cfg.APIBaseURL), "/")
	raw := fmt.Sprintf("%s/%s/models/%s:%s", base, c.cfg.APIVersion, c.cfg.Model, method)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid Gemini API base URL: %w", err)
	}
	if !strings.HasPrefix(key, bearerPrefix) {
		query := u.Query()
		query.Set("key", key)
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature    float64 `json:"temperature"`
	CandidateCount int     `json:"candidateCount"`
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateTextRequest struct {
	Prompt          part `json:"prompt"`
	MaxOutputTokens int  `json:"maxOutputTokens"`
}

func (c *Client) requestBody(prompt string) any {
	if c.cfg.APIVersion == LegacyAPIVersion {
		return generateTextRequest{Prompt: part{Text: prompt}, MaxOutputTokens: c.cfg.MaxOutputTokens}
	}
	return generateContentRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: c.cfg.Temperature, CandidateCount: 1},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(limit)))
}
