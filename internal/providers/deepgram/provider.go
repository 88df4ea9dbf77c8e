// Package deepgram streams microphone audio to the Deepgram live listen API.
package deepgram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"prepdeck/internal/domain"
	"prepdeck/internal/ports"
)

const defaultBaseURL = "https://api.deepgram.com/v1"

// Config controls the listen socket.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	// Endpointing is the silence, in milliseconds, after which the recognizer
	// marks speech_final. Zero leaves the server default.
	Endpointing int
	// EndOnSpeechFinal ends the session once the recognizer reports the
	// speaker has finished, the same way a single-utterance recognizer does.
	EndOnSpeechFinal bool
	DialTimeout      time.Duration
}

// Provider implements ports.TranscriptionProvider.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Provider{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		},
	}
}

// Configured reports whether an API key is present.
func (p *Provider) Configured() bool {
	return strings.TrimSpace(p.cfg.APIKey) != ""
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if !p.Configured() {
		return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is not configured", domain.ErrUnsupported)
	}

	wsURL, err := listenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: recognizer rejected credentials (status %d)", domain.ErrUnsupported, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to connect to recognizer: %w", err)
	}

	session := newSession(conn, p.cfg.EndOnSpeechFinal)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()
	return session, nil
}

func listenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	u, err := url.Parse(strings.TrimRight(base, "/") + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid recognizer base URL: %w", err)
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}

	q := u.Query()
	q.Set("model", providerCfg.Model)
	q.Set("encoding", streamCfg.Encoding)
	q.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	q.Set("channels", strconv.Itoa(streamCfg.Channels))
	q.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	q.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if providerCfg.Language != "" {
		q.Set("language", providerCfg.Language)
	}
	if providerCfg.Endpointing > 0 {
		q.Set("endpointing", strconv.Itoa(providerCfg.Endpointing))
	}
	for _, keyword := range streamCfg.Keywords {
		if keyword = strings.TrimSpace(keyword); keyword != "" {
			q.Add("keywords", keyword)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
