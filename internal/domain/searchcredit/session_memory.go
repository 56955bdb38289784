package searchcredit

import (
	"context"
	"sync"
	"time"
)

type memorySession struct {
	entitlements Entitlements
	touched      time.Time
}

// MemorySessionStore keeps entitlements in process memory. Sessions idle for
// longer than ttl are treated as new.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[SessionKey]*memorySession
	ttl      time.Duration
	now      func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[SessionKey]*memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Load(ctx context.Context, key SessionKey) (Entitlements, error) {
	if err := ctx.Err(); err != nil {
		return Entitlements{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(key)
	if sess == nil {
		return Entitlements{}, nil
	}
	sess.touched = s.now()
	return sess.entitlements, nil
}

func (s *MemorySessionStore) MarkPaid(ctx context.Context, key SessionKey, ds ...Dimension) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(key)
	if sess == nil {
		sess = &memorySession{}
		s.sessions[key] = sess
	}
	sess.entitlements.MarkPaid(ds...)
	sess.touched = s.now()
	return nil
}

func (s *MemorySessionStore) Reset(ctx context.Context, key SessionKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemorySessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// live must be called with s.mu held.
func (s *MemorySessionStore) live(key SessionKey) *memorySession {
	sess, ok := s.sessions[key]
	if !ok {
		return nil
	}
	if s.expired(sess) {
		delete(s.sessions, key)
		return nil
	}
	return sess
}

func (s *MemorySessionStore) expired(sess *memorySession) bool {
	return s.ttl > 0 && s.now().Sub(sess.touched) > s.ttl
}
