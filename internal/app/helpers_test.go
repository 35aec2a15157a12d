package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

const owner = "teacher-1"

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: t0}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	service *app.SessionService
	store   *memory.SessionStore
	clock   *fakeClock
}

func newFixture(opts ...app.Option) *fixture {
	store := memory.NewSessionStore()
	clock := newFakeClock()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": capitalsQuiz(),
		"quiz-2": twoChoiceQuiz(),
	}), time.Minute)
	opts = append([]app.Option{app.WithClock(clock.Now)}, opts...)
	return &fixture{
		service: app.NewSessionService(store, quizzes, opts...),
		store:   store,
		clock:   clock,
	}
}

// startSession creates and activates a session for quiz-1 and enrolls the given students.
func (f *fixture) startSession(t *testing.T, minutes int, students ...string) domain.Session {
	t.Helper()
	ctx := context.Background()
	session, err := f.service.CreateSession(ctx, "quiz-1", owner, minutes)
	require.NoError(t, err)
	for _, student := range students {
		_, err := f.service.JoinSession(ctx, session.Code, student)
		require.NoError(t, err)
	}
	session, err = f.service.ActivateSession(ctx, session.ID, owner)
	require.NoError(t, err)
	return session
}

func strPtr(s string) *string { return &s }

func option(questionID, optionID string) domain.AnswerRecord {
	return domain.AnswerRecord{QuestionID: questionID, OptionID: strPtr(optionID)}
}

func text(questionID, answer string) domain.AnswerRecord {
	return domain.AnswerRecord{QuestionID: questionID, TextAnswer: strPtr(answer)}
}

func perfectAnswers() []domain.AnswerRecord {
	return []domain.AnswerRecord{option("q1", "o2"), option("q2", "b"), text("q3", "Manila")}
}

func capitalsQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Capitals",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "Capital of France?",
				Options: []domain.Option{
					{ID: "o1", Text: "Lyon"},
					{ID: "o2", Text: "Paris", Correct: true},
				},
			},
			{
				ID:   "q2",
				Text: "Capital of Japan?",
				Options: []domain.Option{
					{ID: "a", Text: "Osaka"},
					{ID: "b", Text: "Tokyo", Correct: true},
					{ID: "c", Text: "Kyoto"},
				},
			},
			{
				ID:      "q3",
				Text:    "Capital of the Philippines?",
				Options: []domain.Option{{ID: "o1", Text: "Manila", Correct: true}},
			},
		},
	}
}

func twoChoiceQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-2",
		Title: "Two questions",
		Questions: []domain.Question{
			{ID: "Q1", Text: "First", Options: []domain.Option{{ID: "A", Text: "a", Correct: true}, {ID: "B", Text: "b"}}},
			{ID: "Q2", Text: "Second", Options: []domain.Option{{ID: "A", Text: "a"}, {ID: "B", Text: "b", Correct: true}}},
		},
	}
}
