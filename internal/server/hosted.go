package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"prepdeck/internal/domain"
	"prepdeck/internal/ports"
	"prepdeck/internal/usecase"
)

var ErrSessionNotFound = errors.New("interview session not found")

// InterviewFactory builds an interview that reports to sink and saves
// answers through answers.
type InterviewFactory func(sink ports.EventSink, answers ports.AnswerRepository) *usecase.Interview

// HostedSession is one interview run on behalf of an authenticated user.
type HostedSession struct {
	ID        string
	Owner     string
	Interview *usecase.Interview

	hub      *eventHub
	mu       sync.Mutex
	lastSeen time.Time
}

func (s *HostedSession) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *HostedSession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Hosted is the registry of server-side interviews.
type Hosted struct {
	build   InterviewFactory
	answers func(owner string) ports.AnswerRepository
	idle    time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*HostedSession
	cron     *cron.Cron
}

func NewHosted(build InterviewFactory, answers func(owner string) ports.AnswerRepository, idle time.Duration) *Hosted {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Hosted{
		build:    build,
		answers:  answers,
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*HostedSession),
	}
}

func (h *Hosted) Start(ctx context.Context, owner string, setup domain.InterviewSetup) (*HostedSession, error) {
	hub := newEventHub()
	interview := h.build(hub, h.answers(owner))
	if _, err := interview.Start(ctx, setup); err != nil {
		hub.Close()
		return nil, err
	}

	session := &HostedSession{
		ID:        uuid.NewString(),
		Owner:     owner,
		Interview: interview,
		hub:       hub,
		lastSeen:  h.now(),
	}
	h.mu.Lock()
	h.sessions[session.ID] = session
	h.mu.Unlock()
	return session, nil
}

// Get returns owner's session id. Sessions of other users are not found.
func (h *Hosted) Get(owner, id string) (*HostedSession, error) {
	h.mu.Lock()
	session, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok || session.Owner != owner {
		return nil, ErrSessionNotFound
	}
	session.touch(h.now())
	return session, nil
}

// Len reports the number of registered sessions.
func (h *Hosted) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Sweep drops completed sessions and ends sessions idle past the timeout.
// A session whose round clock is running is never idle; its timer ends it.
func (h *Hosted) Sweep() int {
	cutoff := h.now().Add(-h.idle)

	h.mu.Lock()
	var expired []*HostedSession
	for id, session := range h.sessions {
		state := session.Interview.Status().State
		switch state {
		case domain.InterviewStateInRound, domain.InterviewStateTransitioning:
			continue
		}
		if state == domain.InterviewStateCompleted || session.idleSince().Before(cutoff) {
			expired = append(expired, session)
			delete(h.sessions, id)
		}
	}
	h.mu.Unlock()

	for _, session := range expired {
		session.Interview.End("Session expired after inactivity.")
		session.hub.Close()
	}
	return len(expired)
}

// StartSweeper runs Sweep on a cron schedule such as "@every 1m".
func (h *Hosted) StartSweeper(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if n := h.Sweep(); n > 0 {
			log.Printf("hosted: swept %d interview session(s)", n)
		}
	}); err != nil {
		return err
	}
	h.mu.Lock()
	h.cron = c
	h.mu.Unlock()
	c.Start()
	return nil
}

// Shutdown stops the sweeper and ends every session.
func (h *Hosted) Shutdown() {
	h.mu.Lock()
	c := h.cron
	h.cron = nil
	sessions := h.sessions
	h.sessions = make(map[string]*HostedSession)
	h.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	for _, session := range sessions {
		session.Interview.End("")
		session.hub.Close()
	}
}
