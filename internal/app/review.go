package app

import (
	"context"

	"quiz-session-service/internal/domain"
)

// ReviewReconstructor rebuilds a finished participant's per-question breakdown.
// Correctness is recomputed from the stored raw answers on every call.
type ReviewReconstructor struct {
	sessions SessionRepository
	quizzes  QuizRepository
	registry *Registry
}

// Review returns one entry per quiz question in quiz order. The requester must be
// the student under review or the session owner.
func (r *ReviewReconstructor) Review(ctx context.Context, sessionID, requesterID, studentID string) ([]domain.ReviewEntry, error) {
	session, err := r.registry.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if requesterID != studentID && requesterID != session.OwnerID {
		return nil, domain.ErrForbidden
	}

	participant, err := r.sessions.GetParticipant(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	if !participant.Finished() {
		return nil, domain.ErrNotFinished
	}

	answers, err := r.sessions.Answers(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	quiz, err := loadQuiz(ctx, r.quizzes, session.QuizID)
	if err != nil {
		return nil, err
	}
	return domain.BuildReview(quiz, answers), nil
}
