package session

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/clinical-insight/internal/errs"
	"github.com/and161185/clinical-insight/internal/metrics"
	"github.com/and161185/clinical-insight/internal/model"
)

// MemoryStore keeps sessions in process memory. Sessions do not survive a restart
// and are not shared between processes.
type MemoryStore struct {
	mu  sync.RWMutex
	m   map[string]model.Session
	ttl time.Duration // 0 = never expires
	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an in-process store. A zero ttl disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{m: make(map[string]model.Session), ttl: ttl, now: time.Now}
}

// Put stores the session.
func (s *MemoryStore) Put(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	s.m[sess.Token] = sess
	s.mu.Unlock()
	return nil
}

// Get returns the session. An expired record is dropped and reported as absent.
func (s *MemoryStore) Get(_ context.Context, token string) (model.Session, error) {
	s.mu.RLock()
	sess, ok := s.m[token]
	s.mu.RUnlock()
	if !ok {
		return model.Session{}, errs.ErrInvalidSession
	}
	if s.expired(sess) {
		s.mu.Lock()
		// recheck: the token may have been replaced or removed meanwhile
		if cur, ok := s.m[token]; ok && s.expired(cur) {
			s.evict(token)
		}
		s.mu.Unlock()
		return model.Session{}, errs.ErrInvalidSession
	}
	return sess, nil
}

// Delete removes the session. Deleting twice fails the second time.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[token]
	if !ok {
		return errs.ErrInvalidSession
	}
	if s.expired(sess) {
		s.evict(token)
		return errs.ErrInvalidSession
	}
	delete(s.m, token)
	return nil
}

// Sweep drops every expired record and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for tok, sess := range s.m {
		if s.expired(sess) {
			s.evict(tok)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done. It returns at once
// when expiry is disabled.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}

// Len reports the number of stored records. Expired records count until they
// are dropped by Get, Delete or Sweep.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *MemoryStore) expired(sess model.Session) bool {
	return s.ttl > 0 && s.now().After(sess.CreatedAt.Add(s.ttl))
}

// evict removes an expired record. Caller holds mu.
func (s *MemoryStore) evict(token string) {
	delete(s.m, token)
	metrics.SessionsActive.Dec()
}
