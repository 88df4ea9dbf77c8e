package deepgram

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"prepdeck/internal/domain"
)

var errSendClosed = errors.New("audio stream is already closed")

type session struct {
	conn        *websocket.Conn
	endOnFinal  bool
	events      chan domain.TranscriptEvent
	audio       chan []byte
	done        chan struct{}
	quit        chan struct{}
	wg          sync.WaitGroup
	errMu       sync.Mutex
	err         error
	sendMu      sync.RWMutex
	sendClosed  bool
	closeSendMu sync.Once
	quitOnce    sync.Once
}

func newSession(conn *websocket.Conn, endOnFinal bool) *session {
	s := &session{
		conn:       conn,
		endOnFinal: endOnFinal,
		events:     make(chan domain.TranscriptEvent, 64),
		audio:      make(chan []byte, 32),
		done:       make(chan struct{}),
		quit:       make(chan struct{}),
	}
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()
	return s
}

func (s *session) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errSendClosed
	}

	select {
	case s.audio <- append([]byte(nil), chunk...):
		return nil
	case <-s.quit:
		return errSendClosed
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errSendClosed
	}
}

// CloseSend flushes queued audio and asks the recognizer to finish.
func (s *session) CloseSend() error {
	s.closeSendMu.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *session) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *session) Wait() error {
	<-s.done
	return s.waitErr()
}

// Close tears the socket down without waiting for trailing results.
func (s *session) Close() error {
	s.quitOnce.Do(func() {
		close(s.quit)
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *session) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *session) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}
	select {
	case <-s.quit:
		// Reads fail once Close drops the socket.
		return
	default:
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *session) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(fmt.Errorf("failed to send audio: %w", err))
			s.drainAudio()
			return
		}
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(fmt.Errorf("failed to close stream: %w", err))
	}
}

func (s *session) drainAudio() {
	for {
		select {
		case _, ok := <-s.audio:
			if !ok {
				return
			}
		case <-s.quit:
			return
		}
	}
}

func (s *session) readLoop() {
	defer s.wg.Done()
	defer s.CloseSend()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read recognizer event: %w", err))
			return
		}

		var msg listenMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}

		switch {
		case strings.EqualFold(msg.Type, "Error"):
			text := strings.TrimSpace(msg.Message)
			if text == "" {
				text = strings.TrimSpace(msg.Description)
			}
			if text == "" {
				text = "recognizer returned an unknown error"
			}
			s.setErr(errors.New(text))
			return
		case strings.EqualFold(msg.Type, "UtteranceEnd"):
			if s.endOnFinal {
				_ = s.CloseSend()
			}
			continue
		}

		text := msg.transcript()
		if text == "" {
			if msg.SpeechFinal && s.endOnFinal {
				_ = s.CloseSend()
			}
			continue
		}

		event := domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: text, IsSpeechFinal: msg.SpeechFinal}
		if msg.IsFinal || msg.SpeechFinal {
			event.Kind = domain.TranscriptKindFinal
		}
		s.emit(event)
		if msg.SpeechFinal && s.endOnFinal {
			_ = s.CloseSend()
		}
	}
}

// emit drops interim text when the consumer lags but blocks for finals.
func (s *session) emit(event domain.TranscriptEvent) {
	if event.Kind == domain.TranscriptKindPartial {
		select {
		case s.events <- event:
		default:
		}
		return
	}
	select {
	case s.events <- event:
	case <-s.quit:
	}
}

type alternative struct {
	Transcript string `json:"transcript"`
}

type listenMessage struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []alternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (m listenMessage) transcript() string {
	if len(m.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(m.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(m.Results.Channels) > 0 && len(m.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(m.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}
