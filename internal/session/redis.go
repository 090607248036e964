package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/model"
)

// RedisStore keeps sessions in Redis so several server processes share them.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration // 0 = never expires
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sess"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(token string) string {
	return fmt.Sprintf("%s:%s", s.prefix, token)
}

// Put writes the record with SET, applying the configured TTL.
func (s *RedisStore) Put(ctx context.Context, sess model.Session) error {
	if s.client == nil {
		return errors.New("redis session store: nil client")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, s.key(sess.Token), raw, s.ttl).Err()
}

// Get reads the record; a missing key maps to errs.ErrInvalidSession.
func (s *RedisStore) Get(ctx context.Context, token string) (model.Session, error) {
	if s.client == nil {
		return model.Session{}, errors.New("redis session store: nil client")
	}
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Session{}, errs.ErrInvalidSession
	}
	if err != nil {
		return model.Session{}, err
	}
	var sess model.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return model.Session{}, fmt.Errorf("decode session: %w", err)
	}
	sess.Token = token
	return sess, nil
}

// Delete relies on DEL reporting the number of removed keys, so two concurrent
// revocations of one token succeed at most once.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if s.client == nil {
		return errors.New("redis session store: nil client")
	}
	n, err := s.client.Del(ctx, s.key(token)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrInvalidSession
	}
	return nil
}
