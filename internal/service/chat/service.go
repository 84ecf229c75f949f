package chat

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message content is required")
	ErrTranscriptFull  = errors.New("session transcript is full")
)

// Config bounds how much conversation state the service keeps in memory.
type Config struct {
	// TTL evicts sessions idle for longer than this. Zero disables expiry.
	TTL time.Duration
	// MaxSessions caps live sessions; the least recently active one is evicted
	// to make room. Zero means unlimited.
	MaxSessions int
	// MaxMessages caps one transcript. Appends beyond it fail with
	// ErrTranscriptFull. Zero means unlimited.
	MaxMessages int
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		TTL:         24 * time.Hour,
		MaxSessions: 10000,
		MaxMessages: 200,
	}
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type entry struct {
	session  chat.Session
	messages []chat.Message
}

// Service encapsulates conversation state management.
type Service struct {
	mu       sync.RWMutex
	cfg      Config
	now      func() time.Time
	sessions map[string]*entry
}

// NewService bootstraps the in-memory chat service.
func NewService(cfg Config, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession provisions an empty anonymous session.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(), nil
}

// GetOrCreate returns the session for sessionID, or a fresh one when the id is
// empty, unknown or expired. created reports which case happened.
func (s *Service) GetOrCreate(_ context.Context, sessionID string) (session chat.Session, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.liveLocked(sessionID); ok {
		return e.snapshot(), false, nil
	}
	return s.createLocked(), true, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.liveLocked(sessionID)
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return e.snapshot(), nil
}

// SaveMessage appends a message to the session history and returns it with
// its assigned id and timestamp. Stored messages are never edited.
func (s *Service) SaveMessage(_ context.Context, message chat.Message) (chat.Message, error) {
	return s.save(message, 1)
}

// BeginTurn stores a caller message only if the transcript still has room for
// the reply that follows it, so a full transcript never ends on an unanswered
// turn.
func (s *Service) BeginTurn(_ context.Context, message chat.Message) (chat.Message, error) {
	return s.save(message, 2)
}

func (s *Service) save(message chat.Message, need int) (chat.Message, error) {
	if message.SessionID == "" {
		return chat.Message{}, ErrSessionNotFound
	}
	if message.Content == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveLocked(message.SessionID)
	if !ok {
		return chat.Message{}, ErrSessionNotFound
	}
	if s.cfg.MaxMessages > 0 && len(e.messages)+need > s.cfg.MaxMessages {
		return chat.Message{}, ErrTranscriptFull
	}

	now := s.now().UTC()
	message.ID = uuid.NewString()
	if message.Type == "" {
		message.Type = chat.TypeUser
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = now
	}

	e.messages = append(e.messages, message)
	e.session.LastActivity = now
	return message, nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.liveLocked(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(e.messages))
	copy(copied, e.messages)
	return copied, nil
}

// ClearSession drops a session with its history and issues a replacement
// with a new identifier. The location, if any, carries over.
func (s *Service) ClearSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveLocked(sessionID)
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	location := e.session.Location
	delete(s.sessions, sessionID)

	fresh := s.createLocked()
	if location != nil {
		loc := *location
		s.sessions[fresh.ID].session.Location = &loc
		fresh.Location = &loc
	}
	return fresh, nil
}

// SetLocation attaches a caller position to the session.
func (s *Service) SetLocation(_ context.Context, sessionID string, location chat.Location) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveLocked(sessionID)
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	loc := location
	e.session.Location = &loc
	e.session.LastActivity = s.now().UTC()
	return e.snapshot(), nil
}

// Len reports the number of live sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions idle past the TTL and returns how many were dropped.
func (s *Service) Sweep(now time.Time) int {
	if s.cfg.TTL <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if now.Sub(e.session.LastActivity) > s.cfg.TTL {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.cfg.TTL <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.now()); n > 0 {
				log.Printf("[chat] swept %d idle sessions", n)
			}
		}
	}
}

func (s *Service) liveLocked(sessionID string) (*entry, bool) {
	if sessionID == "" {
		return nil, false
	}
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if s.cfg.TTL > 0 && s.now().Sub(e.session.LastActivity) > s.cfg.TTL {
		return nil, false
	}
	return e, true
}

func (s *Service) createLocked() chat.Session {
	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		s.evictOldestLocked()
	}

	now := s.now().UTC()
	session := chat.Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastActivity: now,
	}
	s.sessions[session.ID] = &entry{
		session:  session,
		messages: make([]chat.Message, 0, 16),
	}
	return session
}

func (s *Service) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range s.sessions {
		if oldestID == "" || e.session.LastActivity.Before(oldest) ||
			(e.session.LastActivity.Equal(oldest) && id < oldestID) {
			oldestID = id
			oldest = e.session.LastActivity
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
	}
}

func (e *entry) snapshot() chat.Session {
	session := e.session
	session.MessageCount = len(e.messages)
	if e.session.Location != nil {
		loc := *e.session.Location
		session.Location = &loc
	}
	return session
}
