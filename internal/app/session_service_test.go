package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	session, err := f.service.CreateSession(ctx, "quiz-1", owner, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, session.Status)
	assert.Len(t, session.Code, 6)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, session.Code)
	assert.Nil(t, session.EndsAt)

	byCode, err := f.service.GetSessionByCode(ctx, " "+session.Code+" ")
	require.NoError(t, err)
	assert.Equal(t, session.ID, byCode.ID)
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.service.CreateSession(ctx, "quiz-1", owner, 0)
	assert.Equal(t, domain.KindInvalid, domain.KindOf(err))

	_, err = f.service.CreateSession(ctx, "quiz-1", "", 5)
	assert.Equal(t, domain.KindInvalid, domain.KindOf(err))

	_, err = f.service.CreateSession(ctx, "missing", owner, 5)
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)
}

func TestCodeLookupIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(app.WithCodeGenerator(func() (string, error) { return "AB12CD", nil }))

	session, err := f.service.CreateSession(ctx, "quiz-1", owner, 5)
	require.NoError(t, err)

	got, err := f.service.GetSessionByCode(ctx, "ab12cd")
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
}

func TestCodeSpaceExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		app.WithCodeGenerator(func() (string, error) { return "ZZZZZZ", nil }),
		app.WithCodeAttempts(3),
	)

	_, err := f.service.CreateSession(ctx, "quiz-1", owner, 5)
	require.NoError(t, err)

	_, err = f.service.CreateSession(ctx, "quiz-1", owner, 5)
	assert.ErrorIs(t, err, domain.ErrCodeSpaceExhausted)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
}

func TestEndedSessionReleasesCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(app.WithCodeGenerator(func() (string, error) { return "QQQQQQ", nil }))

	first, err := f.service.CreateSession(ctx, "quiz-1", owner, 5)
	require.NoError(t, err)
	_, err = f.service.EndSession(ctx, first.ID, owner)
	require.NoError(t, err)

	second, err := f.service.CreateSession(ctx, "quiz-1", owner, 5)
	require.NoError(t, err)
	assert.Equal(t, first.Code, second.Code)

	got, err := f.service.GetSessionByCode(ctx, "QQQQQQ")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestActivate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	session, err := f.service.CreateSession(ctx, "quiz-1", owner, 1)
	require.NoError(t, err)

	_, err = f.service.ActivateSession(ctx, session.ID, "someone-else")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	active, err := f.service.ActivateSession(ctx, session.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, active.Status)
	require.NotNil(t, active.StartedAt)
	require.NotNil(t, active.EndsAt)
	assert.Equal(t, t0, *active.StartedAt)
	assert.Equal(t, t0.Add(time.Minute), *active.EndsAt)

	_, err = f.service.ActivateSession(ctx, session.ID, owner)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSubmitAfterDeadline(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.startSession(t, 1, "alice")

	f.clock.Advance(61 * time.Second)
	_, err := f.service.SubmitAnswers(ctx, session.ID, "alice", perfectAnswers())
	assert.ErrorIs(t, err, domain.ErrSessionEnded)

	got, err := f.service.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, *got.EndsAt, *got.EndedAt)
}

func TestSubmitAtDeadlineIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.startSession(t, 1, "alice", "bob")

	f.clock.Advance(time.Minute - time.Millisecond)
	_, err := f.service.SubmitAnswers(ctx, session.ID, "alice", perfectAnswers())
	require.NoError(t, err)

	f.clock.Advance(time.Millisecond)
	_, err = f.service.SubmitAnswers(ctx, session.ID, "bob", perfectAnswers())
	assert.ErrorIs(t, err, domain.ErrSessionEnded)
}

func TestSubmitScoresAndRejectsRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.startSession(t, 5, "alice")

	score, err := f.service.SubmitAnswers(ctx, session.ID, "alice", []domain.AnswerRecord{
		option("q1", "o2"),
		option("q2", "a"),
		text("q3", "  manila "),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, score)

	_, err = f.service.SubmitAnswers(ctx, session.ID, "alice", perfectAnswers())
	assert.ErrorIs(t, err, domain.ErrAlreadySubmitted)

	p, err := f.store.GetParticipant(ctx, session.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, p.Score)
	assert.Equal(t, 2, *p.Score)
}

func TestSubmitTwoMultipleChoiceQuestions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	session, err := f.service.CreateSession(ctx, "quiz-2", owner, 5)
	require.NoError(t, err)
	_, err = f.service.JoinSession(ctx, session.Code, "alice")
	require.NoError(t, err)
	_, err = f.service.ActivateSession(ctx, session.ID, owner)
	require.NoError(t, err)

	score, err := f.service.SubmitAnswers(ctx, session.ID, "alice", []domain.AnswerRecord{
		option("Q1", "A"),
		option("Q2", "A"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, score)
}

func TestSubmitPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	pending, err := f.service.CreateSession(ctx, "quiz-1", owner, 5)
	require.NoError(t, err)
	_, err = f.service.JoinSession(ctx, pending.Code, "alice")
	require.NoError(t, err)
	_, err = f.service.SubmitAnswers(ctx, pending.ID, "alice", perfectAnswers())
	assert.ErrorIs(t, err, domain.ErrSessionNotStarted)

	_, err = f.service.ActivateSession(ctx, pending.ID, owner)
	require.NoError(t, err)
	_, err = f.service.SubmitAnswers(ctx, pending.ID, "mallory", perfectAnswers())
	assert.ErrorIs(t, err, domain.ErrNotJoined)

	_, err = f.service.SubmitAnswers(ctx, "unknown", "alice", perfectAnswers())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSubmitInvalidAnswersStoresNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.startSession(t, 5, "alice")

	cases := map[string][]domain.AnswerRecord{
		"unknown question":  {option("q9", "o1")},
		"foreign option":    {option("q1", "b")},
		"text for choice":   {text("q1", "Paris")},
		"option for text":   {option("q3", "o1")},
		"duplicate answers": {option("q1", "o2"), option("q1", "o1")},
		"both fields set":   {{QuestionID: "q1", OptionID: strPtr("o2"), TextAnswer: strPtr("Paris")}},
	}
	for name, answers := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.SubmitAnswers(ctx, session.ID, "alice", answers)
			assert.Equal(t, domain.KindInvalid, domain.KindOf(err))
		})
	}

	p, err := f.store.GetParticipant(ctx, session.ID, "alice")
	require.NoError(t, err)
	assert.False(t, p.Finished())

	// an empty answer set is valid and scores zero
	score, err := f.service.SubmitAnswers(ctx, session.ID, "alice", nil)
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestJoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	session, err := f.service.CreateSession(ctx, "quiz-1", owner, 1)
	require.NoError(t, err)

	first, err := f.service.JoinSession(ctx, session.Code, "alice")
	require.NoError(t, err)
	again, err := f.service.JoinSession(ctx, session.Code, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = f.service.JoinSession(ctx, "NOPE00", "alice")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = f.service.ActivateSession(ctx, session.ID, owner)
	require.NoError(t, err)

	// late joiners share the original deadline
	f.clock.Advance(30 * time.Second)
	late, err := f.service.JoinSession(ctx, session.Code, "bob")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(30*time.Second), late.JoinedAt)

	f.clock.Advance(30 * time.Second)
	_, err = f.service.JoinSession(ctx, session.Code, "carol")
	assert.ErrorIs(t, err, domain.ErrSessionEnded)
}

func TestListParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	session, err := f.service.CreateSession(ctx, "quiz-1", owner, 5)
	require.NoError(t, err)
	for _, student := range []string{"carol", "alice", "bob"} {
		_, err := f.service.JoinSession(ctx, session.Code, student)
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	roster, err := f.service.ListParticipants(ctx, session.ID, owner)
	require.NoError(t, err)
	require.Len(t, roster, 3)
	assert.Equal(t, []string{"carol", "alice", "bob"}, []string{roster[0].StudentID, roster[1].StudentID, roster[2].StudentID})

	_, err = f.service.ListParticipants(ctx, session.ID, "alice")
	require.NoError(t, err)

	_, err = f.service.ListParticipants(ctx, session.ID, "stranger")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestRankingOrdersByScoreThenFinishTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.startSession(t, 5, "student-a", "student-b", "student-c")

	f.clock.Advance(5 * time.Second)
	_, err := f.service.SubmitAnswers(ctx, session.ID, "student-b", perfectAnswers())
	require.NoError(t, err)
	f.clock.Advance(5 * time.Second)
	_, err = f.service.SubmitAnswers(ctx, session.ID, "student-a", perfectAnswers())
	require.NoError(t, err)

	ranking, err := f.service.GetRanking(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, ranking.Final)
	require.Len(t, ranking.Entries, 3)
	assert.Equal(t, "student-b", ranking.Entries[0].StudentID)
	assert.Equal(t, "student-a", ranking.Entries[1].StudentID)
	assert.Equal(t, "student-c", ranking.Entries[2].StudentID)
	assert.Nil(t, ranking.Entries[2].Score)
	for i, entry := range ranking.Entries {
		assert.Equal(t, i+1, entry.Position)
	}

	_, err = f.service.EndSession(ctx, session.ID, owner)
	require.NoError(t, err)
	final, err := f.service.GetRanking(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, final.Final)
	assert.Equal(t, ranking.Entries, final.Entries)
}

func TestRankingIsStable(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.startSession(t, 5, "alice", "bob")

	_, err := f.service.SubmitAnswers(ctx, session.ID, "alice", perfectAnswers())
	require.NoError(t, err)
	_, err = f.service.SubmitAnswers(ctx, session.ID, "bob", perfectAnswers())
	require.NoError(t, err)

	first, err := f.service.GetRanking(ctx, session.ID)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := f.service.GetRanking(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Entries, again.Entries)
	}
}

func TestReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.startSession(t, 5, "alice", "bob")

	_, err := f.service.GetReview(ctx, session.ID, "alice", "alice")
	assert.ErrorIs(t, err, domain.ErrNotFinished)

	_, err = f.service.SubmitAnswers(ctx, session.ID, "alice", []domain.AnswerRecord{
		option("q1", "o1"),
		text("q3", " manila "),
	})
	require.NoError(t, err)

	review, err := f.service.GetReview(ctx, session.ID, "alice", "alice")
	require.NoError(t, err)
	require.Len(t, review, 3)
	assert.Equal(t, []string{"q1", "q2", "q3"}, []string{review[0].QuestionID, review[1].QuestionID, review[2].QuestionID})
	assert.False(t, review[0].IsCorrect)
	assert.Equal(t, []string{"Paris"}, review[0].CorrectAnswer)
	require.NotNil(t, review[0].StudentAnswer)
	assert.Equal(t, "Lyon", review[0].StudentAnswer.Text)
	assert.Nil(t, review[1].StudentAnswer)
	assert.False(t, review[1].IsCorrect)
	assert.True(t, review[2].IsCorrect)
	assert.Equal(t, domain.KindIdentification, review[2].Kind)

	again, err := f.service.GetReview(ctx, session.ID, owner, "alice")
	require.NoError(t, err)
	assert.Equal(t, review, again)

	_, err = f.service.GetReview(ctx, session.ID, "bob", "alice")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.service.GetReview(ctx, session.ID, "zed", "zed")
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.startSession(t, 5, "alice", "bob")

	err := f.service.DeleteSession(ctx, session.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.service.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
	roster, err := f.service.ListParticipants(ctx, session.ID, owner)
	require.NoError(t, err)
	assert.Len(t, roster, 2)

	require.NoError(t, f.service.DeleteSession(ctx, session.ID, owner))
	_, err = f.service.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.service.JoinSession(ctx, session.Code, "carol")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.startSession(t, 5, "alice")

	_, err := f.service.EndSession(ctx, session.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	f.clock.Advance(time.Minute)
	ended, err := f.service.EndSession(ctx, session.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)
	assert.Equal(t, t0.Add(time.Minute), *ended.EndedAt)

	_, err = f.service.EndSession(ctx, session.ID, owner)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.service.SubmitAnswers(ctx, session.ID, "alice", perfectAnswers())
	assert.ErrorIs(t, err, domain.ErrSessionEnded)
	_, err = f.service.JoinSession(ctx, session.Code, "bob")
	assert.ErrorIs(t, err, domain.ErrSessionEnded)
}

func TestEndExpiredSessionKeepsDeadline(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	session := f.startSession(t, 1)

	f.clock.Advance(5 * time.Minute)
	_, err := f.service.EndSession(ctx, session.ID, owner)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := f.store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, t0.Add(time.Minute), *got.EndedAt)
}

func TestEndedSessionCodeRetention(t *testing.T) {
	ctx := context.Background()
	f := newFixture(app.WithRetention(time.Hour))
	session := f.startSession(t, 1)

	f.clock.Advance(time.Minute + 59*time.Minute)
	got, err := f.service.GetSessionByCode(ctx, session.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, got.Status)

	f.clock.Advance(time.Minute)
	_, err = f.service.GetSessionByCode(ctx, session.Code)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// the session itself is still readable by id
	_, err = f.service.GetSession(ctx, session.ID)
	require.NoError(t, err)
}

func TestSweepEndsExpiredSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.startSession(t, 1)
	f.startSession(t, 1)
	longer := f.startSession(t, 10)
	_, err := f.service.CreateSession(ctx, "quiz-1", owner, 1)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	ended, err := f.service.Clock.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ended)

	open, err := f.store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	got, err := f.store.Get(ctx, longer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
}

func TestRunReaperStopsWithContext(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.service.RunReaper(ctx, 5*time.Millisecond) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
