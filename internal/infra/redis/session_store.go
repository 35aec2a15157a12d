package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
)

// maxTxRetries bounds optimistic transaction retries when a watched key changes.
const maxTxRetries = 16

var errContention = errors.New("too many concurrent writers")

// insertScript claims the join code unless a session that has not ENDED holds it.
// KEYS: code, session, open set. ARGV: session key prefix, id, status, fields...
var insertScript = redis.NewScript(`
local holder = redis.call('GET', KEYS[1])
if holder then
  local status = redis.call('HGET', ARGV[1] .. holder, 'status')
  if status and status ~= 'ENDED' then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[2])
redis.call('HSET', KEYS[2], unpack(ARGV, 4))
if ARGV[3] ~= 'ENDED' then
  redis.call('SADD', KEYS[3], ARGV[2])
end
return 1
`)

// deleteScript removes a session with its roster and releases its code if still held.
// KEYS: session, students, open set. ARGV: id, code key prefix.
var deleteScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local code = redis.call('HGET', KEYS[1], 'code')
for _, student in ipairs(redis.call('SMEMBERS', KEYS[2])) do
  redis.call('DEL', KEYS[1] .. ':p:' .. student)
end
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('SREM', KEYS[3], ARGV[1])
if code and redis.call('GET', ARGV[2] .. code) == ARGV[1] then
  redis.call('DEL', ARGV[2] .. code)
end
return 1
`)

// joinScript inserts a participant while the session still admits joins.
// KEYS: session, students, participant. ARGV: now ms, student id, fields...
var joinScript = redis.NewScript(`
local s = redis.call('HMGET', KEYS[1], 'status', 'ends_at')
if not s[1] then
  return 'missing'
end
if s[1] == 'ENDED' then
  return 'ended'
end
if s[1] == 'ACTIVE' and s[2] and s[2] ~= '' and tonumber(ARGV[1]) >= tonumber(s[2]) then
  return 'ended'
end
if redis.call('EXISTS', KEYS[3]) == 1 then
  return 'exists'
end
redis.call('HSET', KEYS[3], unpack(ARGV, 3))
redis.call('SADD', KEYS[2], ARGV[2])
return 'created'
`)

// finishScript records a submission if the session accepts answers at ARGV[1]
// and the participant has not finished yet.
// KEYS: session, participant. ARGV: finished_at ms, score, answers json.
var finishScript = redis.NewScript(`
local s = redis.call('HMGET', KEYS[1], 'status', 'ends_at')
if not s[1] then
  return 'missing'
end
if s[1] == 'PENDING' then
  return 'pending'
end
if s[1] ~= 'ACTIVE' or not s[2] or s[2] == '' or tonumber(ARGV[1]) >= tonumber(s[2]) then
  return 'ended'
end
if redis.call('EXISTS', KEYS[2]) == 0 then
  return 'not_joined'
end
local finished = redis.call('HGET', KEYS[2], 'finished_at')
if finished and finished ~= '' then
  return 'submitted'
end
redis.call('HSET', KEYS[2], 'finished_at', ARGV[1], 'score', ARGV[2], 'answers', ARGV[3])
return 'ok'
`)

// expireCodeScript sets a TTL on a code key only while it still points at the session.
var expireCodeScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// SessionStore is a Redis implementation of app.SessionRepository, so several
// service instances can share sessions. Single-key reads are plain commands; every
// conditional write runs as a Lua script or a WATCH transaction on the session hash.
// ENDED sessions expire after ttl; a non-positive ttl keeps them until deleted.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	keys   keyspace
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		keys:   keyspace{prefix: defaultPrefix},
	}
}

func (s *SessionStore) Insert(ctx context.Context, session domain.Session) error {
	keys := []string{s.keys.code(session.Code), s.keys.session(session.ID), s.keys.open()}
	args := append([]interface{}{s.keys.session(""), session.ID, string(session.Status)}, sessionFields(session)...)
	claimed, err := insertScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return domain.Unavailable("insert session", err)
	}
	if claimed == 0 {
		return domain.ErrCodeTaken
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	fields, err := s.client.HGetAll(ctx, s.keys.session(sessionID)).Result()
	if err != nil {
		return domain.Session{}, domain.Unavailable("get session", err)
	}
	if len(fields) == 0 {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	session, err := decodeSession(fields)
	if err != nil {
		return domain.Session{}, domain.Unavailable("decode session", err)
	}
	return session, nil
}

func (s *SessionStore) GetByCode(ctx context.Context, code string) (domain.Session, error) {
	sessionID, err := s.client.Get(ctx, s.keys.code(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, domain.Unavailable("resolve code", err)
	}
	return s.Get(ctx, sessionID)
}

func (s *SessionStore) Update(ctx context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error) {
	key := s.keys.session(sessionID)
	var (
		updated domain.Session
		ended   bool
		fnErr   error
	)
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			fnErr = domain.ErrSessionNotFound
			return fnErr
		}
		current, err := decodeSession(fields)
		if err != nil {
			return err
		}
		next := current
		if err := fn(&next); err != nil {
			fnErr = err
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, sessionFields(next)...)
			if next.Status == domain.StatusEnded {
				pipe.SRem(ctx, s.keys.open(), sessionID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = next
		ended = current.Status != domain.StatusEnded && next.Status == domain.StatusEnded
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		fnErr = nil
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			if ended {
				s.expireEnded(ctx, updated)
			}
			return updated, nil
		case fnErr != nil:
			return domain.Session{}, fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return domain.Session{}, domain.Unavailable("update session", err)
		}
	}
	return domain.Session{}, domain.Unavailable("update session", errContention)
}

// expireEnded schedules removal of an ENDED session's keys. Best effort: a failure
// only leaves the data around longer.
func (s *SessionStore) expireEnded(ctx context.Context, session domain.Session) {
	if s.ttl <= 0 {
		return
	}
	students, err := s.client.SMembers(ctx, s.keys.students(session.ID)).Result()
	if err != nil {
		return
	}
	pipe := s.client.Pipeline()
	pipe.PExpire(ctx, s.keys.session(session.ID), s.ttl)
	pipe.PExpire(ctx, s.keys.students(session.ID), s.ttl)
	for _, student := range students {
		pipe.PExpire(ctx, s.keys.participant(session.ID, student), s.ttl)
	}
	_, _ = pipe.Exec(ctx)
	_ = expireCodeScript.Run(ctx, s.client, []string{s.keys.code(session.Code)}, session.ID, s.ttl.Milliseconds()).Err()
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	keys := []string{s.keys.session(sessionID), s.keys.students(sessionID), s.keys.open()}
	deleted, err := deleteScript.Run(ctx, s.client, keys, sessionID, s.keys.code("")).Int()
	if err != nil {
		return domain.Unavailable("delete session", err)
	}
	if deleted == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) ListOpen(ctx context.Context) ([]domain.Session, error) {
	ids, err := s.client.SMembers(ctx, s.keys.open()).Result()
	if err != nil {
		return nil, domain.Unavailable("list open sessions", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.keys.session(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, domain.Unavailable("list open sessions", err)
	}

	open := make([]domain.Session, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		session, err := decodeSession(fields)
		if err != nil {
			return nil, domain.Unavailable("decode session", err)
		}
		if session.Status != domain.StatusEnded {
			open = append(open, session)
		}
	}
	return open, nil
}

func (s *SessionStore) AddParticipant(ctx context.Context, p domain.Participant, now time.Time) (domain.Participant, error) {
	keys := []string{
		s.keys.session(p.SessionID),
		s.keys.students(p.SessionID),
		s.keys.participant(p.SessionID, p.StudentID),
	}
	args := append([]interface{}{formatTime(now), p.StudentID}, participantFields(p)...)
	result, err := joinScript.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return domain.Participant{}, domain.Unavailable("add participant", err)
	}
	switch result {
	case "missing":
		return domain.Participant{}, domain.ErrSessionNotFound
	case "ended":
		return domain.Participant{}, domain.ErrSessionEnded
	}
	return s.GetParticipant(ctx, p.SessionID, p.StudentID)
}

// participantHash reads a participant row, telling a missing session apart from a
// missing participant.
func (s *SessionStore) participantHash(ctx context.Context, sessionID, studentID string) (map[string]string, error) {
	pipe := s.client.Pipeline()
	exists := pipe.Exists(ctx, s.keys.session(sessionID))
	fields := pipe.HGetAll(ctx, s.keys.participant(sessionID, studentID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, domain.Unavailable("get participant", err)
	}
	if exists.Val() == 0 {
		return nil, domain.ErrSessionNotFound
	}
	if len(fields.Val()) == 0 {
		return nil, domain.ErrParticipantNotFound
	}
	return fields.Val(), nil
}

func (s *SessionStore) GetParticipant(ctx context.Context, sessionID, studentID string) (domain.Participant, error) {
	fields, err := s.participantHash(ctx, sessionID, studentID)
	if err != nil {
		return domain.Participant{}, err
	}
	p, err := decodeParticipant(fields)
	if err != nil {
		return domain.Participant{}, domain.Unavailable("decode participant", err)
	}
	return p, nil
}

func (s *SessionStore) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	pipe := s.client.Pipeline()
	exists := pipe.Exists(ctx, s.keys.session(sessionID))
	members := pipe.SMembers(ctx, s.keys.students(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, domain.Unavailable("list participants", err)
	}
	if exists.Val() == 0 {
		return nil, domain.ErrSessionNotFound
	}
	students := members.Val()
	if len(students) == 0 {
		return []domain.Participant{}, nil
	}

	pipe = s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(students))
	for i, student := range students {
		cmds[i] = pipe.HGetAll(ctx, s.keys.participant(sessionID, student))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, domain.Unavailable("list participants", err)
	}
	out := make([]domain.Participant, 0, len(students))
	for _, cmd := range cmds {
		if len(cmd.Val()) == 0 {
			continue
		}
		p, err := decodeParticipant(cmd.Val())
		if err != nil {
			return nil, domain.Unavailable("decode participant", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SessionStore) Finish(ctx context.Context, sessionID, studentID string, sub domain.Submission) (domain.Participant, error) {
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return domain.Participant{}, domain.Invalid("encode answers: %v", err)
	}
	keys := []string{s.keys.session(sessionID), s.keys.participant(sessionID, studentID)}
	result, err := finishScript.Run(ctx, s.client, keys, formatTime(sub.FinishedAt), strconv.Itoa(sub.Score), string(answers)).Text()
	if err != nil {
		return domain.Participant{}, domain.Unavailable("finish participant", err)
	}
	switch result {
	case "missing":
		return domain.Participant{}, domain.ErrSessionNotFound
	case "pending":
		return domain.Participant{}, domain.ErrSessionNotStarted
	case "ended":
		return domain.Participant{}, domain.ErrSessionEnded
	case "not_joined":
		return domain.Participant{}, domain.ErrNotJoined
	case "submitted":
		return domain.Participant{}, domain.ErrAlreadySubmitted
	}
	return s.GetParticipant(ctx, sessionID, studentID)
}

func (s *SessionStore) Answers(ctx context.Context, sessionID, studentID string) ([]domain.AnswerRecord, error) {
	fields, err := s.participantHash(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	answers, err := decodeAnswers(fields["answers"])
	if err != nil {
		return nil, domain.Unavailable("decode answers", err)
	}
	return answers, nil
}
