package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps every Redis failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	errEmailTaken       = errors.New("email already registered")
	errUserNotFound     = errors.New("user not found")
)

type userRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Task is the one domain resource the dev server exposes.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"createdAt"`
}

// store keeps users, sessions and tasks in Redis.
//
// Layout:
//
//	<prefix>:user:<uid>    JSON user record
//	<prefix>:email:<email> uid
//	<prefix>:sess:<sid>    uid, expires with the credential
//	<prefix>:usess:<uid>   set of sids
//	<prefix>:tasks:<uid>   list of JSON tasks
type store struct {
	redis  redis.UniversalClient
	prefix string
}

func newStore(rdb redis.UniversalClient, prefix string) *store {
	if prefix == "" {
		prefix = "ts"
	}
	return &store{redis: rdb, prefix: prefix}
}

func (s *store) userKey(uid string) string    { return s.prefix + ":user:" + uid }
func (s *store) emailKey(email string) string { return s.prefix + ":email:" + normalizeEmail(email) }
func (s *store) sessionKey(sid string) string { return s.prefix + ":sess:" + sid }
func (s *store) userSessionsKey(uid string) string {
	return s.prefix + ":usess:" + uid
}
func (s *store) tasksKey(uid string) string { return s.prefix + ":tasks:" + uid }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

/*
====================================
USERS
====================================
*/

func (s *store) createUser(ctx context.Context, rec *userRecord) error {
	rec.ID = uuid.NewString()
	rec.Email = normalizeEmail(rec.Email)

	claimed, err := s.redis.SetNX(ctx, s.emailKey(rec.Email), rec.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !claimed {
		return errEmailTaken
	}

	data, err := json.Marshal(rec)
	if err != nil {
		_ = s.redis.Del(ctx, s.emailKey(rec.Email)).Err()
		return err
	}
	if err := s.redis.Set(ctx, s.userKey(rec.ID), data, 0).Err(); err != nil {
		_ = s.redis.Del(ctx, s.emailKey(rec.Email)).Err()
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *store) userByEmail(ctx context.Context, email string) (*userRecord, error) {
	uid, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.userByID(ctx, uid)
}

func (s *store) userByID(ctx context.Context, uid string) (*userRecord, error) {
	data, err := s.redis.Get(ctx, s.userKey(uid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", uid, err)
	}
	return &rec, nil
}

/*
====================================
SESSIONS
====================================
*/

func (s *store) createSession(ctx context.Context, uid string, ttl time.Duration) (string, error) {
	sid := uuid.NewString()
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(sid), uid, ttl)
		pipe.SAdd(ctx, s.userSessionsKey(uid), sid)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return sid, nil
}

// sessionOwner returns the uid bound to sid, or false when the session was
// revoked or expired.
func (s *store) sessionOwner(ctx context.Context, sid string) (string, bool, error) {
	uid, err := s.redis.Get(ctx, s.sessionKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return uid, true, nil
}

// deleteAllSessions removes every session of uid and reports how many
// were still live.
func (s *store) deleteAllSessions(ctx context.Context, uid string) (int, error) {
	sids, err := s.redis.SMembers(ctx, s.userSessionsKey(uid)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(sids))
	for _, sid := range sids {
		keys = append(keys, s.sessionKey(sid))
	}

	var deleted *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, s.userSessionsKey(uid))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

/*
====================================
TASKS
====================================
*/

func (s *store) addTask(ctx context.Context, uid, title string, now time.Time) (Task, error) {
	task := Task{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now.UTC(),
	}
	data, err := json.Marshal(task)
	if err != nil {
		return Task{}, err
	}
	if err := s.redis.RPush(ctx, s.tasksKey(uid), data).Err(); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return task, nil
}

func (s *store) listTasks(ctx context.Context, uid string) ([]Task, error) {
	raw, err := s.redis.LRange(ctx, s.tasksKey(uid), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	tasks := make([]Task, 0, len(raw))
	for _, item := range raw {
		var t Task
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
