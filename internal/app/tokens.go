package app

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Hush/internal/domain"
	"github.com/rs/zerolog/log"
)

const tokenBytes = 32

// TokenStore keeps invite tokens in memory. Expired entries are swept on
// Issue; there is no background timer.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[domain.TokenID]domain.InviteToken
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenStore(ttl time.Duration, now func() time.Time) *TokenStore {
	if now == nil {
		now = time.Now
	}
	return &TokenStore{
		tokens: make(map[domain.TokenID]domain.InviteToken),
		ttl:    ttl,
		now:    now,
	}
}

func (s *TokenStore) Issue(room domain.RoomID) (domain.TokenID, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	id := domain.TokenID(base64.RawURLEncoding.EncodeToString(buf))

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	swept := 0
	for tid, t := range s.tokens {
		if t.Expired(now, s.ttl) {
			delete(s.tokens, tid)
			swept++
		}
	}
	s.tokens[id] = domain.InviteToken{ID: id, Room: room, CreatedAt: now}

	ev := log.Debug().Str("module", "app.tokens").Str("room", string(room))
	if swept > 0 {
		ev = ev.Int("swept", swept)
	}
	ev.Msg("issued invite token")
	return id, nil
}

func (s *TokenStore) Redeem(id domain.TokenID) (domain.RoomID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok {
		return "", false
	}
	delete(s.tokens, id)
	if t.Expired(s.now(), s.ttl) {
		return "", false
	}
	return t.Room, true
}

func (s *TokenStore) RevokeForRoom(room domain.RoomID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for tid, t := range s.tokens {
		if t.Room == room {
			delete(s.tokens, tid)
			n++
		}
	}
	return n
}

func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
