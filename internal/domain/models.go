package domain

import "time"

// SessionStatus is the lifecycle state of a quiz session.
type SessionStatus string

const (
	StatusPending SessionStatus = "PENDING"
	StatusActive  SessionStatus = "ACTIVE"
	StatusEnded   SessionStatus = "ENDED"
)

// Session is one run of a quiz shared by a group under a join code and a single deadline.
type Session struct {
	ID              string        `json:"id"`
	QuizID          string        `json:"quizId"`
	OwnerID         string        `json:"ownerId"`
	Code            string        `json:"code"`
	DurationMinutes int           `json:"durationMinutes"`
	Status          SessionStatus `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	EndsAt          *time.Time    `json:"endsAt,omitempty"`
	EndedAt         *time.Time    `json:"endedAt,omitempty"`
}

// Duration returns the configured active window.
func (s Session) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// IsExpired reports whether an active session has reached its deadline at now.
func (s Session) IsExpired(now time.Time) bool {
	return s.Status == StatusActive && s.EndsAt != nil && !now.Before(*s.EndsAt)
}

// AcceptsAnswers reports whether a submission received at now is inside the active window.
func (s Session) AcceptsAnswers(now time.Time) bool {
	return s.Status == StatusActive && s.EndsAt != nil && now.Before(*s.EndsAt)
}

// Participant is a student's enrollment in one session.
type Participant struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId"`
	StudentID  string     `json:"studentId"`
	JoinedAt   time.Time  `json:"joinedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Score      *int       `json:"score,omitempty"`
}

// Finished reports whether the participant's answers have been scored.
func (p Participant) Finished() bool {
	return p.FinishedAt != nil
}

// AnswerRecord is a participant's raw answer to one question. Exactly one of
// OptionID and TextAnswer is set, matching the question kind.
type AnswerRecord struct {
	QuestionID string  `json:"questionId" yaml:"question_id"`
	OptionID   *string `json:"optionId,omitempty" yaml:"option_id,omitempty"`
	TextAnswer *string `json:"textAnswer,omitempty" yaml:"text_answer,omitempty"`
}

// Submission is the write applied atomically when a participant finishes.
type Submission struct {
	Answers    []AnswerRecord
	Score      int
	FinishedAt time.Time
}

// RankingEntry is one line of a session leaderboard.
type RankingEntry struct {
	Position      int        `json:"position"`
	ParticipantID string     `json:"participantId"`
	StudentID     string     `json:"studentId"`
	Score         *int       `json:"score,omitempty"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
	JoinedAt      time.Time  `json:"joinedAt"`
}

// Ranking captures the ordered leaderboard for a session.
type Ranking struct {
	SessionID string         `json:"sessionId"`
	Status    SessionStatus  `json:"status"`
	Final     bool           `json:"final"`
	Entries   []RankingEntry `json:"entries"`
}

// ReviewAnswer describes what a student answered for one question.
type ReviewAnswer struct {
	OptionID *string `json:"optionId,omitempty"`
	Text     string  `json:"text"`
}

// ReviewEntry pairs a question with the student's answer and the canonical answer.
// It is always derived on demand and never stored.
type ReviewEntry struct {
	QuestionID    string        `json:"questionId"`
	QuestionText  string        `json:"questionText"`
	Image         string        `json:"image,omitempty"`
	Kind          QuestionKind  `json:"kind"`
	StudentAnswer *ReviewAnswer `json:"studentAnswer,omitempty"`
	CorrectAnswer []string      `json:"correctAnswer"`
	IsCorrect     bool          `json:"isCorrect"`
}
