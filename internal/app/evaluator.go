package app

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/domain"
)

// Evaluator grades a participant's answer set exactly once.
type Evaluator struct {
	sessions SessionRepository
	quizzes  QuizRepository
	registry *Registry
	clock    *Clock
	log      logrus.FieldLogger
}

// Submit grades answers and stores the score. The receipt time is taken before any
// lookup; the store re-checks the deadline and the participant's finished flag in the
// same atomic write, so concurrent retries cannot both succeed.
func (e *Evaluator) Submit(ctx context.Context, sessionID, studentID string, answers []domain.AnswerRecord) (int, error) {
	receivedAt := e.clock.Now()

	session, err := e.registry.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	switch session.Status {
	case domain.StatusEnded:
		return 0, domain.ErrSessionEnded
	case domain.StatusPending:
		return 0, domain.ErrSessionNotStarted
	}
	if !session.AcceptsAnswers(receivedAt) {
		return 0, domain.ErrSessionEnded
	}

	participant, err := e.sessions.GetParticipant(ctx, sessionID, studentID)
	if err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return 0, domain.ErrNotJoined
		}
		return 0, err
	}
	if participant.Finished() {
		return 0, domain.ErrAlreadySubmitted
	}

	quiz, err := loadQuiz(ctx, e.quizzes, session.QuizID)
	if err != nil {
		return 0, err
	}
	if err := domain.ValidateAnswers(quiz, answers); err != nil {
		return 0, err
	}
	score := domain.ScoreAnswers(quiz, answers)

	if _, err := e.sessions.Finish(ctx, sessionID, studentID, domain.Submission{
		Answers:    answers,
		Score:      score,
		FinishedAt: receivedAt,
	}); err != nil {
		return 0, err
	}
	e.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"student_id": studentID,
		"score":      score,
	}).Info("answers submitted")
	return score, nil
}
