package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/domain"
)

// Lobby tracks who joined a session. Joining stays open while the session is
// PENDING or ACTIVE; late joiners share the original deadline.
type Lobby struct {
	sessions SessionRepository
	registry *Registry
	clock    *Clock
	log      logrus.FieldLogger
}

// Join enrolls studentID in the session holding code, or returns the existing enrollment.
func (l *Lobby) Join(ctx context.Context, code, studentID string) (domain.Participant, error) {
	if strings.TrimSpace(studentID) == "" {
		return domain.Participant{}, domain.Invalid("student id is required")
	}
	session, err := l.registry.GetByCode(ctx, code)
	if err != nil {
		return domain.Participant{}, err
	}
	if session.Status == domain.StatusEnded {
		return domain.Participant{}, domain.ErrSessionEnded
	}

	now := l.clock.Now()
	participant, err := l.sessions.AddParticipant(ctx, domain.Participant{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		StudentID: studentID,
		JoinedAt:  now,
	}, now)
	if err != nil {
		return domain.Participant{}, err
	}
	l.log.WithFields(logrus.Fields{
		"session_id": session.ID,
		"student_id": studentID,
	}).Debug("participant joined")
	return participant, nil
}

// List returns the roster in join order. Only the owner or a participant may list.
func (l *Lobby) List(ctx context.Context, sessionID, requesterID string) ([]domain.Participant, error) {
	session, err := l.registry.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participants, err := l.sessions.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != requesterID && !hasStudent(participants, requesterID) {
		return nil, domain.ErrForbidden
	}
	sortByJoinOrder(participants)
	return participants, nil
}

func hasStudent(participants []domain.Participant, studentID string) bool {
	for _, p := range participants {
		if p.StudentID == studentID {
			return true
		}
	}
	return false
}
