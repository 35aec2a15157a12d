package app

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/domain"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// CodeGenerator draws a candidate join code.
type CodeGenerator func() (string, error)

// RandomCode samples codeLength characters uniformly from [A-Z0-9].
func RandomCode() (string, error) {
	limit := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// NormalizeCode upper-cases and trims a user supplied join code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Registry creates sessions, resolves them by ID or join code and deletes them.
type Registry struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	clock     *Clock
	codes     CodeGenerator
	attempts  int
	retention time.Duration
	log       logrus.FieldLogger
}

// Create stores a new PENDING session under a fresh join code. Codes are only
// required to be unique among sessions that have not ENDED, so the store rejects
// collisions and the draw is repeated.
func (r *Registry) Create(ctx context.Context, quizID, ownerID string, durationMinutes int) (domain.Session, error) {
	if strings.TrimSpace(ownerID) == "" {
		return domain.Session{}, domain.Invalid("owner id is required")
	}
	if durationMinutes < 1 {
		return domain.Session{}, domain.Invalid("duration must be at least one minute")
	}
	// users cannot start sessions for unknown quizzes
	if _, err := loadQuiz(ctx, r.quizzes, quizID); err != nil {
		return domain.Session{}, err
	}

	session := domain.Session{
		ID:              uuid.NewString(),
		QuizID:          quizID,
		OwnerID:         ownerID,
		DurationMinutes: durationMinutes,
		Status:          domain.StatusPending,
		CreatedAt:       r.clock.Now(),
	}
	for attempt := 0; attempt < r.attempts; attempt++ {
		code, err := r.codes()
		if err != nil {
			return domain.Session{}, domain.Unavailable("generate join code", err)
		}
		session.Code = code
		err = r.sessions.Insert(ctx, session)
		if err == nil {
			r.log.WithFields(logrus.Fields{
				"session_id": session.ID,
				"quiz_id":    quizID,
				"code":       code,
			}).Info("session created")
			return session, nil
		}
		if !errors.Is(err, domain.ErrCodeTaken) {
			return domain.Session{}, err
		}
		r.log.WithField("code", code).Debug("join code collision, redrawing")
	}
	return domain.Session{}, domain.ErrCodeSpaceExhausted
}

// Get returns the session with expiry applied.
func (r *Registry) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	return r.clock.Refresh(ctx, sessionID)
}

// GetByCode resolves a join code. ENDED sessions stay reachable for the retention window.
func (r *Registry) GetByCode(ctx context.Context, code string) (domain.Session, error) {
	session, err := r.sessions.GetByCode(ctx, NormalizeCode(code))
	if err != nil {
		return domain.Session{}, err
	}
	session, err = r.clock.expire(ctx, session)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.StatusEnded && session.EndedAt != nil &&
		!r.clock.Now().Before(session.EndedAt.Add(r.retention)) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the session and its roster. Only the owner may delete.
func (r *Registry) Delete(ctx context.Context, sessionID, requesterID string) error {
	session, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.OwnerID != requesterID {
		return domain.ErrForbidden
	}
	if err := r.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	r.log.WithField("session_id", sessionID).Info("session deleted")
	return nil
}
