package memory

import (
	"context"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// The outer lock only guards the session and code indexes; state changes take the
// per-session lock, and submissions additionally take a per-participant lock while
// holding the session read lock, so different students never block each other.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	codes    map[string]string
}

type sessionEntry struct {
	mu           sync.RWMutex
	session      domain.Session
	participants map[string]*participantEntry
	deleted      bool
}

type participantEntry struct {
	mu          sync.Mutex
	participant domain.Participant
	answers     []domain.AnswerRecord
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		codes:    make(map[string]string),
	}
}

func (s *SessionStore) Insert(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if holderID, ok := s.codes[session.Code]; ok {
		if holder, ok := s.sessions[holderID]; ok {
			holder.mu.RLock()
			status := holder.session.Status
			holder.mu.RUnlock()
			if status != domain.StatusEnded {
				return domain.ErrCodeTaken
			}
		}
	}
	s.sessions[session.ID] = &sessionEntry{
		session:      session,
		participants: make(map[string]*participantEntry),
	}
	s.codes[session.Code] = session.ID
	return nil
}

func (s *SessionStore) entry(sessionID string) (*sessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return e, nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.Session, error) {
	e, err := s.entry(sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.deleted {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return e.session, nil
}

func (s *SessionStore) GetByCode(ctx context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	sessionID, ok := s.codes[code]
	s.mu.RUnlock()
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.Get(ctx, sessionID)
}

func (s *SessionStore) Update(_ context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error) {
	e, err := s.entry(sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	next := e.session
	if err := fn(&next); err != nil {
		return domain.Session{}, err
	}
	e.session = next
	return next, nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	e.mu.Lock()
	e.deleted = true
	e.participants = nil
	code := e.session.Code
	e.mu.Unlock()

	delete(s.sessions, sessionID)
	if s.codes[code] == sessionID {
		delete(s.codes, code)
	}
	return nil
}

func (s *SessionStore) ListOpen(_ context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	open := make([]domain.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		if !e.deleted && e.session.Status != domain.StatusEnded {
			open = append(open, e.session)
		}
		e.mu.RUnlock()
	}
	return open, nil
}

func (s *SessionStore) AddParticipant(_ context.Context, p domain.Participant, now time.Time) (domain.Participant, error) {
	e, err := s.entry(p.SessionID)
	if err != nil {
		return domain.Participant{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return domain.Participant{}, domain.ErrSessionNotFound
	}
	if e.session.Status == domain.StatusEnded || e.session.IsExpired(now) {
		return domain.Participant{}, domain.ErrSessionEnded
	}
	if existing, ok := e.participants[p.StudentID]; ok {
		existing.mu.Lock()
		defer existing.mu.Unlock()
		return existing.participant, nil
	}
	e.participants[p.StudentID] = &participantEntry{participant: p}
	return p, nil
}

func (s *SessionStore) lookupParticipant(sessionID, studentID string) (*participantEntry, func(), error) {
	e, err := s.entry(sessionID)
	if err != nil {
		return nil, nil, err
	}
	e.mu.RLock()
	if e.deleted {
		e.mu.RUnlock()
		return nil, nil, domain.ErrSessionNotFound
	}
	pe, ok := e.participants[studentID]
	if !ok {
		e.mu.RUnlock()
		return nil, nil, domain.ErrParticipantNotFound
	}
	return pe, e.mu.RUnlock, nil
}

func (s *SessionStore) GetParticipant(_ context.Context, sessionID, studentID string) (domain.Participant, error) {
	pe, release, err := s.lookupParticipant(sessionID, studentID)
	if err != nil {
		return domain.Participant{}, err
	}
	defer release()
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.participant, nil
}

func (s *SessionStore) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	e, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.deleted {
		return nil, domain.ErrSessionNotFound
	}
	out := make([]domain.Participant, 0, len(e.participants))
	for _, pe := range e.participants {
		pe.mu.Lock()
		out = append(out, pe.participant)
		pe.mu.Unlock()
	}
	return out, nil
}

func (s *SessionStore) Finish(_ context.Context, sessionID, studentID string, sub domain.Submission) (domain.Participant, error) {
	e, err := s.entry(sessionID)
	if err != nil {
		return domain.Participant{}, err
	}
	// The read lock pins the session status for the duration of the write.
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.deleted {
		return domain.Participant{}, domain.ErrSessionNotFound
	}
	if !e.session.AcceptsAnswers(sub.FinishedAt) {
		if e.session.Status == domain.StatusPending {
			return domain.Participant{}, domain.ErrSessionNotStarted
		}
		return domain.Participant{}, domain.ErrSessionEnded
	}
	pe, ok := e.participants[studentID]
	if !ok {
		return domain.Participant{}, domain.ErrNotJoined
	}

	pe.mu.Lock()
	defer pe.mu.Unlock()
	if pe.participant.Finished() {
		return domain.Participant{}, domain.ErrAlreadySubmitted
	}
	finishedAt := sub.FinishedAt
	score := sub.Score
	pe.participant.FinishedAt = &finishedAt
	pe.participant.Score = &score
	pe.answers = append([]domain.AnswerRecord(nil), sub.Answers...)
	return pe.participant, nil
}

func (s *SessionStore) Answers(_ context.Context, sessionID, studentID string) ([]domain.AnswerRecord, error) {
	pe, release, err := s.lookupParticipant(sessionID, studentID)
	if err != nil {
		return nil, err
	}
	defer release()
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return append([]domain.AnswerRecord(nil), pe.answers...), nil
}
