package redisad

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"rutas_admin/internal/domain"
)

const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "user_sessions:"
)

// SessionStore keeps sessions as JSON values expiring with the session, plus a
// per-user set used to drop every session of a user at once.
type SessionStore struct {
	c   *redis.Client
	now func() time.Time
}

func NewSessionStore(c *redis.Client) *SessionStore {
	return &SessionStore{c: c, now: time.Now}
}

func (s *SessionStore) Create(ctx context.Context, sess domain.Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("create session: already expired")
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	userKey := userSessionKeyPrefix + sess.UserID
	_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, sessionKeyPrefix+sess.ID, b, ttl)
		p.SAdd(ctx, userKey, sess.ID)
		p.Expire(ctx, userKey, ttl)
		return nil
	})
	return err
}

func (s *SessionStore) Get(ctx context.Context, id string) (domain.Session, error) {
	b, err := s.c.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	var sess domain.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if sess.Expired(s.now()) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, sessionKeyPrefix+id)
		if sess.UserID != "" {
			p.SRem(ctx, userSessionKeyPrefix+sess.UserID, id)
		}
		return nil
	})
	return err
}

func (s *SessionStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	userKey := userSessionKeyPrefix + userID
	ids, err := s.c.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKeyPrefix+id)
	}
	n, err := s.c.Del(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	if err := s.c.Del(ctx, userKey).Err(); err != nil {
		return int(n), err
	}
	return int(n), nil
}
