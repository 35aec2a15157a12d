package app

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/domain"
)

// SessionRepository abstracts how sessions and their rosters are stored (in-memory, Redis, etc).
// Every method is atomic with respect to a single session.
type SessionRepository interface {
	// Insert stores a new session and claims its code. It returns domain.ErrCodeTaken
	// when a session that is not ENDED already holds the code.
	Insert(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	GetByCode(ctx context.Context, code string) (domain.Session, error)
	// Update applies fn to the current session under the session's write lock and persists
	// the result. An error from fn aborts the write and is returned unchanged.
	Update(ctx context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error)
	// Delete removes the session with its participants and answers.
	Delete(ctx context.Context, sessionID string) error
	// ListOpen returns sessions that are not ENDED.
	ListOpen(ctx context.Context) ([]domain.Session, error)

	// AddParticipant inserts p unless the student already joined, in which case the
	// existing row is returned. It fails with domain.ErrSessionEnded when the session is
	// ENDED or past its deadline at now.
	AddParticipant(ctx context.Context, p domain.Participant, now time.Time) (domain.Participant, error)
	GetParticipant(ctx context.Context, sessionID, studentID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	// Finish records a submission with compare-and-set semantics: the session must accept
	// answers at sub.FinishedAt, the participant must exist and must not be finished.
	Finish(ctx context.Context, sessionID, studentID string, sub domain.Submission) (domain.Participant, error)
	Answers(ctx context.Context, sessionID, studentID string) ([]domain.AnswerRecord, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

const (
	defaultRetention    = 24 * time.Hour
	defaultCodeAttempts = 32
)

type options struct {
	now          func() time.Time
	logger       logrus.FieldLogger
	retention    time.Duration
	codeAttempts int
	codes        CodeGenerator
}

// Option customizes a SessionService.
type Option func(*options)

// WithClock overrides the server clock, mainly for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRetention sets how long an ENDED session stays reachable by its code.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retention = d
		}
	}
}

// WithCodeAttempts bounds the number of join code draws per session.
func WithCodeAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.codeAttempts = n
		}
	}
}

// WithCodeGenerator replaces the random join code source.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(o *options) { o.codes = gen }
}

// SessionService wires the session components together and exposes the
// request/response operations used by the transport layer.
type SessionService struct {
	Registry  *Registry
	Clock     *Clock
	Lobby     *Lobby
	Evaluator *Evaluator
	Ranking   *RankingAggregator
	Reviews   *ReviewReconstructor
}

func NewSessionService(sessions SessionRepository, quizzes QuizRepository, opts ...Option) *SessionService {
	o := options{
		now:          time.Now,
		retention:    defaultRetention,
		codeAttempts: defaultCodeAttempts,
		codes:        RandomCode,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		o.logger = silent
	}

	clock := &Clock{sessions: sessions, now: o.now, log: o.logger}
	registry := &Registry{
		sessions:  sessions,
		quizzes:   quizzes,
		clock:     clock,
		codes:     o.codes,
		attempts:  o.codeAttempts,
		retention: o.retention,
		log:       o.logger,
	}
	return &SessionService{
		Registry:  registry,
		Clock:     clock,
		Lobby:     &Lobby{sessions: sessions, registry: registry, clock: clock, log: o.logger},
		Evaluator: &Evaluator{sessions: sessions, quizzes: quizzes, registry: registry, clock: clock, log: o.logger},
		Ranking:   &RankingAggregator{sessions: sessions, registry: registry},
		Reviews:   &ReviewReconstructor{sessions: sessions, quizzes: quizzes, registry: registry},
	}
}

// CreateSession starts a PENDING session for quizID owned by ownerID.
func (s *SessionService) CreateSession(ctx context.Context, quizID, ownerID string, durationMinutes int) (domain.Session, error) {
	return s.Registry.Create(ctx, quizID, ownerID, durationMinutes)
}

// GetSession returns the current state of a session.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.Registry.Get(ctx, sessionID)
}

// GetSessionByCode resolves a join code.
func (s *SessionService) GetSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	return s.Registry.GetByCode(ctx, code)
}

// ActivateSession starts the shared deadline.
func (s *SessionService) ActivateSession(ctx context.Context, sessionID, requesterID string) (domain.Session, error) {
	return s.Clock.Activate(ctx, sessionID, requesterID)
}

// EndSession closes a session before its deadline.
func (s *SessionService) EndSession(ctx context.Context, sessionID, requesterID string) (domain.Session, error) {
	return s.Clock.End(ctx, sessionID, requesterID)
}

// JoinSession enrolls a student through a join code.
func (s *SessionService) JoinSession(ctx context.Context, code, studentID string) (domain.Participant, error) {
	return s.Lobby.Join(ctx, code, studentID)
}

// ListParticipants returns the roster in join order.
func (s *SessionService) ListParticipants(ctx context.Context, sessionID, requesterID string) ([]domain.Participant, error) {
	return s.Lobby.List(ctx, sessionID, requesterID)
}

// SubmitAnswers grades and stores a student's answers once.
func (s *SessionService) SubmitAnswers(ctx context.Context, sessionID, studentID string, answers []domain.AnswerRecord) (int, error) {
	return s.Evaluator.Submit(ctx, sessionID, studentID, answers)
}

// GetRanking returns the ordered leaderboard.
func (s *SessionService) GetRanking(ctx context.Context, sessionID string) (domain.Ranking, error) {
	return s.Ranking.Rank(ctx, sessionID)
}

// GetReview reconstructs a finished participant's answers.
func (s *SessionService) GetReview(ctx context.Context, sessionID, requesterID, studentID string) ([]domain.ReviewEntry, error) {
	return s.Reviews.Review(ctx, sessionID, requesterID, studentID)
}

// DeleteSession removes a session and everything recorded under it.
func (s *SessionService) DeleteSession(ctx context.Context, sessionID, requesterID string) error {
	return s.Registry.Delete(ctx, sessionID, requesterID)
}

// RunReaper proactively ends expired sessions until ctx is done.
func (s *SessionService) RunReaper(ctx context.Context, interval time.Duration) error {
	return s.Clock.RunReaper(ctx, interval)
}

func loadQuiz(ctx context.Context, quizzes QuizRepository, quizID string) (domain.Quiz, error) {
	quiz, err := quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	return quiz.Normalize()
}
