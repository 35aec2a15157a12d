package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/domain"
)

// Clock owns the PENDING -> ACTIVE -> ENDED state machine and the shared deadline.
// Expiry is applied lazily whenever a session is read or written; the reaper only
// keeps listings tidy.
type Clock struct {
	sessions SessionRepository
	now      func() time.Time
	log      logrus.FieldLogger
}

// Now returns the authoritative server time.
func (c *Clock) Now() time.Time {
	return c.now()
}

// IsExpired reports whether the session is ACTIVE and past its deadline.
func (c *Clock) IsExpired(session domain.Session) bool {
	return session.IsExpired(c.now())
}

// Activate moves a PENDING session to ACTIVE and fixes its deadline.
func (c *Clock) Activate(ctx context.Context, sessionID, requesterID string) (domain.Session, error) {
	now := c.now()
	session, err := c.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		if s.OwnerID != requesterID {
			return domain.ErrForbidden
		}
		if s.Status != domain.StatusPending {
			return domain.ErrInvalidTransition
		}
		endsAt := now.Add(s.Duration())
		s.Status = domain.StatusActive
		s.StartedAt = &now
		s.EndsAt = &endsAt
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	c.log.WithFields(logrus.Fields{
		"session_id": session.ID,
		"ends_at":    session.EndsAt,
	}).Info("session activated")
	return session, nil
}

// End closes a PENDING or ACTIVE session on the owner's request. A session that
// already expired keeps its deadline as the end time.
func (c *Clock) End(ctx context.Context, sessionID, requesterID string) (domain.Session, error) {
	now := c.now()
	session, err := c.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
		if s.OwnerID != requesterID {
			return domain.ErrForbidden
		}
		if s.Status == domain.StatusEnded || s.IsExpired(now) {
			return domain.ErrInvalidTransition
		}
		s.Status = domain.StatusEnded
		s.EndedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// make sure an expired session does not linger as ACTIVE
			_, _ = c.Refresh(ctx, sessionID)
		}
		return domain.Session{}, err
	}
	c.log.WithField("session_id", session.ID).Info("session ended by owner")
	return session, nil
}

// Refresh loads the session and forces the ENDED transition if its deadline passed.
func (c *Clock) Refresh(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	return c.expire(ctx, session)
}

func (c *Clock) expire(ctx context.Context, session domain.Session) (domain.Session, error) {
	now := c.now()
	if !session.IsExpired(now) {
		return session, nil
	}
	updated, err := c.sessions.Update(ctx, session.ID, func(s *domain.Session) error {
		if !s.IsExpired(now) {
			return nil
		}
		s.Status = domain.StatusEnded
		endedAt := *s.EndsAt
		s.EndedAt = &endedAt
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	c.log.WithField("session_id", updated.ID).Info("session expired")
	return updated, nil
}

// Sweep applies expiry to every open session and returns how many were ended.
func (c *Clock) Sweep(ctx context.Context) (int, error) {
	open, err := c.sessions.ListOpen(ctx)
	if err != nil {
		return 0, err
	}
	ended := 0
	for _, session := range open {
		if !c.IsExpired(session) {
			continue
		}
		updated, err := c.expire(ctx, session)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				continue
			}
			return ended, err
		}
		if updated.Status == domain.StatusEnded {
			ended++
		}
	}
	return ended, nil
}

// RunReaper sweeps on every tick until ctx is canceled. A non-positive interval disables it.
func (c *Clock) RunReaper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := c.Sweep(ctx)
			if err != nil {
				c.log.WithError(err).Warn("reaper sweep failed")
				continue
			}
			if n > 0 {
				c.log.WithField("ended", n).Debug("reaper ended expired sessions")
			}
		}
	}
}
