package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"quiz-session-service/internal/domain"
)

const defaultPrefix = "qs:"

// keyspace lays out every key the service writes:
//
//	{prefix}session:{id}              hash  session fields
//	{prefix}session:{id}:students     set   student ids of the roster
//	{prefix}session:{id}:p:{student}  hash  participant fields and raw answers
//	{prefix}code:{code}               string session id currently holding the code
//	{prefix}sessions:open             set   ids of sessions that are not ENDED
//	{prefix}quiz:{id}                 string cached quiz JSON
type keyspace struct {
	prefix string
}

func (k keyspace) session(id string) string { return k.prefix + "session:" + id }

func (k keyspace) students(id string) string { return k.session(id) + ":students" }

func (k keyspace) participant(id, studentID string) string {
	return k.session(id) + ":p:" + studentID
}

func (k keyspace) code(code string) string { return k.prefix + "code:" + code }

func (k keyspace) open() string { return k.prefix + "sessions:open" }

func (k keyspace) quiz(id string) string { return k.prefix + "quiz:" + id }

// Times are stored as unix milliseconds so Lua scripts can compare them.
func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", v, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func parseOptionalTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func sessionFields(s domain.Session) []interface{} {
	return []interface{}{
		"id", s.ID,
		"quiz_id", s.QuizID,
		"owner_id", s.OwnerID,
		"code", s.Code,
		"duration_minutes", strconv.Itoa(s.DurationMinutes),
		"status", string(s.Status),
		"created_at", formatTime(s.CreatedAt),
		"started_at", formatOptionalTime(s.StartedAt),
		"ends_at", formatOptionalTime(s.EndsAt),
		"ended_at", formatOptionalTime(s.EndedAt),
	}
}

func decodeSession(fields map[string]string) (domain.Session, error) {
	duration, err := strconv.Atoi(fields["duration_minutes"])
	if err != nil {
		return domain.Session{}, fmt.Errorf("parse duration: %w", err)
	}
	createdAt, err := parseTime(fields["created_at"])
	if err != nil {
		return domain.Session{}, err
	}
	session := domain.Session{
		ID:              fields["id"],
		QuizID:          fields["quiz_id"],
		OwnerID:         fields["owner_id"],
		Code:            fields["code"],
		DurationMinutes: duration,
		Status:          domain.SessionStatus(fields["status"]),
		CreatedAt:       createdAt,
	}
	if session.StartedAt, err = parseOptionalTime(fields["started_at"]); err != nil {
		return domain.Session{}, err
	}
	if session.EndsAt, err = parseOptionalTime(fields["ends_at"]); err != nil {
		return domain.Session{}, err
	}
	if session.EndedAt, err = parseOptionalTime(fields["ended_at"]); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func participantFields(p domain.Participant) []interface{} {
	return []interface{}{
		"id", p.ID,
		"session_id", p.SessionID,
		"student_id", p.StudentID,
		"joined_at", formatTime(p.JoinedAt),
		"finished_at", "",
		"score", "",
		"answers", "",
	}
}

func decodeParticipant(fields map[string]string) (domain.Participant, error) {
	joinedAt, err := parseTime(fields["joined_at"])
	if err != nil {
		return domain.Participant{}, err
	}
	p := domain.Participant{
		ID:        fields["id"],
		SessionID: fields["session_id"],
		StudentID: fields["student_id"],
		JoinedAt:  joinedAt,
	}
	if p.FinishedAt, err = parseOptionalTime(fields["finished_at"]); err != nil {
		return domain.Participant{}, err
	}
	if v := fields["score"]; v != "" {
		score, err := strconv.Atoi(v)
		if err != nil {
			return domain.Participant{}, fmt.Errorf("parse score: %w", err)
		}
		p.Score = &score
	}
	return p, nil
}

func decodeAnswers(v string) ([]domain.AnswerRecord, error) {
	if v == "" {
		return nil, nil
	}
	var answers []domain.AnswerRecord
	if err := json.Unmarshal([]byte(v), &answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return answers, nil
}
