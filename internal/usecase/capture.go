package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"prepdeck/internal/domain"
	"prepdeck/internal/ports"
	"prepdeck/internal/scoring"
)

var (
	ErrNoActiveSession = errors.New("no active recording session")
	ErrNoTranscript    = errors.New("no transcript captured")
)

const (
	minChunkSize     = 256
	defaultChunkSize = 4096
	partialBuffer    = 32
)

// CaptureConfig controls microphone capture and streaming recognition.
type CaptureConfig struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration
	StopTimeout    time.Duration
}

// CaptureController owns the microphone. At most one Capture runs at a time.
type CaptureController struct {
	audio      ports.AudioCapture
	provider   ports.TranscriptionProvider
	normalizer ports.TranscriptNormalizer
	errs       ports.ErrorSink
	metrics    ports.Metrics
	cfg        CaptureConfig

	mu      sync.Mutex
	current *Capture
}

func NewCaptureController(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	normalizer ports.TranscriptNormalizer,
	errs ports.ErrorSink,
	metrics ports.Metrics,
	cfg CaptureConfig,
) *CaptureController {
	if cfg.ChunkSize < minChunkSize {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 4 * time.Second
	}
	if errs == nil {
		errs = discardErrors{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &CaptureController{
		audio:      audio,
		provider:   provider,
		normalizer: normalizer,
		errs:       errs,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// Start opens the recognizer and the microphone for owner. A running capture
// is discarded first.
func (c *CaptureController) Start(ctx context.Context, owner string) (*Capture, error) {
	c.mu.Lock()
	previous := c.current
	c.current = nil
	c.mu.Unlock()
	if previous != nil {
		previous.abort()
	}

	captureCtx, cancel := context.WithCancel(ctx)
	stream, err := c.provider.StartStreaming(captureCtx, c.cfg.Streaming)
	if err != nil {
		cancel()
		return nil, err
	}
	audio, err := c.audio.Start(captureCtx, c.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return nil, err
	}

	capture := &Capture{
		owner:      owner,
		controller: c,
		cancel:     cancel,
		audio:      audio,
		stream:     stream,
		started:    time.Now(),
		events:     make(chan domain.TranscriptEvent, partialBuffer+1),
		pumpDone:   make(chan struct{}),
		finished:   make(chan struct{}),
	}

	c.mu.Lock()
	c.current = capture
	c.mu.Unlock()

	go capture.pump(c.cfg.ChunkSize)
	go capture.consume()
	return capture, nil
}

// Active returns the running capture, if any.
func (c *CaptureController) Active() (*Capture, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.current != nil
}

// Abort discards the running capture without waiting for its transcript.
func (c *CaptureController) Abort() error {
	c.mu.Lock()
	current := c.current
	c.current = nil
	c.mu.Unlock()
	if current == nil {
		return ErrNoActiveSession
	}
	current.abort()
	return nil
}

func (c *CaptureController) release(capture *Capture) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == capture {
		c.current = nil
	}
}

// Capture is one push-to-talk recording. Events yields partial transcripts
// followed by exactly one final event, then closes.
type Capture struct {
	owner      string
	controller *CaptureController
	cancel     context.CancelFunc
	audio      ports.AudioSession
	stream     ports.StreamingSession
	started    time.Time
	meter      scoring.LoudnessMeter
	buffer     transcriptBuffer

	events   chan domain.TranscriptEvent
	pumpDone chan struct{}
	finished chan struct{}
	stopping atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once

	result domain.CaptureResult
	err    error
}

func (c *Capture) Owner() string { return c.owner }

func (c *Capture) Events() <-chan domain.TranscriptEvent { return c.events }

// Done is closed once the final event has been sent, including when the
// recognizer ended the stream on its own.
func (c *Capture) Done() <-chan struct{} { return c.finished }

// Result returns the finalized capture. It blocks until Done is closed.
func (c *Capture) Result() (domain.CaptureResult, error) {
	<-c.finished
	return c.result, c.err
}

// Stop releases the microphone, lets the recognizer flush and returns the
// finalized transcript.
func (c *Capture) Stop(ctx context.Context) (domain.CaptureResult, error) {
	c.stopOnce.Do(func() {
		c.stopping.Store(true)
		c.stopped.Store(true)
		if err := c.audio.Stop(); err != nil {
			c.controller.errs.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
		}

		if grace := c.controller.cfg.StreamingGrace; grace > 0 {
			timer := time.NewTimer(grace)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			case <-c.finished:
				timer.Stop()
			}
		}
		_ = c.stream.CloseSend()
	})

	timer := time.NewTimer(c.controller.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-c.finished:
	case <-timer.C:
		_ = c.stream.Close()
		<-c.finished
	case <-ctx.Done():
		_ = c.stream.Close()
		<-c.finished
	}
	return c.result, c.err
}

func (c *Capture) abort() {
	c.stopping.Store(true)
	_ = c.audio.Stop()
	_ = c.stream.Close()
	c.cancel()
	<-c.finished
}

// pump copies PCM from the microphone to the recognizer, metering loudness.
func (c *Capture) pump(chunkSize int) {
	defer close(c.pumpDone)

	buf := make([]byte, chunkSize)
	for {
		n, err := c.audio.Read(buf)
		if n > 0 {
			c.meter.ObservePCM16(buf[:n])
			if sendErr := c.stream.SendAudio(buf[:n]); sendErr != nil {
				if !c.stopping.Load() {
					c.controller.errs.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("failed to stream audio: %v", sendErr))
				}
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.stopping.Load() {
				c.controller.errs.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}

// consume is the only sender on events.
func (c *Capture) consume() {
	for event := range c.stream.Events() {
		text := strings.TrimSpace(event.Text)
		if text == "" {
			continue
		}
		c.buffer.Add(event)
		if event.Kind == domain.TranscriptKindPartial && len(c.events) < cap(c.events)-1 {
			c.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: text}
		}
	}

	// The recognizer may end the stream first; the microphone goes with it.
	c.stopping.Store(true)
	if err := c.audio.Stop(); err != nil && !c.stopped.Load() {
		log.Printf("capture: failed to stop recorder after recognizer ended: %v", err)
	}
	<-c.pumpDone
	streamErr := c.stream.Wait()
	c.finalize(streamErr)
}

func (c *Capture) finalize(streamErr error) {
	defer close(c.finished)
	defer close(c.events)
	defer c.cancel()
	defer c.controller.release(c)

	raw := c.buffer.Raw()
	final := raw
	if raw != "" && c.controller.normalizer != nil {
		normalized, err := c.controller.normalizer.Apply(raw)
		if err != nil {
			log.Printf("capture: transcript normalization failed: %v", err)
		} else {
			final = strings.TrimSpace(normalized)
		}
	}

	c.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: final, IsSpeechFinal: true}
	c.result = domain.CaptureResult{
		Owner:         c.owner,
		RawTranscript: raw,
		Transcript:    final,
		Loudness:      c.meter.Level(),
		Elapsed:       time.Since(c.started),
	}

	switch {
	case raw == "" && streamErr != nil:
		c.controller.errs.SessionError(domain.ErrorCodeTranscription, streamErr.Error())
		c.err = streamErr
	case raw == "":
		c.err = ErrNoTranscript
	}
	c.controller.metrics.CaptureFinished(c.err == nil)
}

// transcriptBuffer joins final segments, falling back to the latest partial
// when the recognizer never finalized the tail of the utterance.
type transcriptBuffer struct {
	mu     sync.Mutex
	finals []string
	latest string
}

func (b *transcriptBuffer) Add(event domain.TranscriptEvent) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = text
	if event.Kind == domain.TranscriptKindFinal {
		b.finals = append(b.finals, text)
	}
}

func (b *transcriptBuffer) Raw() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	joined := strings.TrimSpace(strings.Join(b.finals, " "))
	switch {
	case joined == "":
		return b.latest
	case b.latest == "", strings.HasSuffix(joined, b.latest):
		return joined
	case len(b.latest) > len(joined):
		// A partial longer than everything finalized is an unfinished tail.
		return strings.TrimSpace(joined + " " + b.latest)
	default:
		return joined
	}
}

type discardErrors struct{}

func (discardErrors) SessionError(domain.ErrorCode, string) {}

type noopMetrics struct{}

func (noopMetrics) InterviewStarted()       {}
func (noopMetrics) InterviewCompleted()     {}
func (noopMetrics) AnswerSaved()            {}
func (noopMetrics) EvaluationFinished(bool) {}
func (noopMetrics) CaptureFinished(bool)    {}
