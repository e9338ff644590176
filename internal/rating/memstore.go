package rating

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xo-online/xo-server/internal/game"
)

// memstore is an in-memory Store used by tests and when no DATABASE_URL is
// configured.
type memstore struct {
	mu    sync.RWMutex
	users map[string]*User
	games map[string]*game.Game
}

func NewMemoryStore() Store {
	return &memstore{
		users: make(map[string]*User),
		games: make(map[string]*game.Game),
	}
}

func (m *memstore) EnsureUser(ctx context.Context, u User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.ID]; ok {
		cp := *existing
		return &cp, nil
	}
	now := time.Now().UTC()
	u.EloRating = StartingRating
	u.Wins, u.Losses, u.Draws = 0, 0, 0
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = &u
	cp := u
	return &cp, nil
}

func (m *memstore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memstore) ListByRating(ctx context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EloRating != out[j].EloRating {
			return out[i].EloRating > out[j].EloRating
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memstore) RecordWin(ctx context.Context, g *game.Game, winnerID, loserID string, winDelta, lossDelta int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.archiveLocked(g) {
		return false, nil
	}
	now := time.Now().UTC()
	if w := m.ensureLocked(winnerID); w != nil {
		w.EloRating += winDelta
		w.Wins++
		w.UpdatedAt = now
	}
	if l := m.ensureLocked(loserID); l != nil {
		l.EloRating += lossDelta
		l.Losses++
		l.UpdatedAt = now
	}
	return true, nil
}

func (m *memstore) RecordDraw(ctx context.Context, g *game.Game, credit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.archiveLocked(g) {
		return false, nil
	}
	now := time.Now().UTC()
	for _, id := range []string{g.Player1ID, g.Player2ID} {
		if u := m.ensureLocked(id); u != nil {
			u.EloRating += credit
			u.Draws++
			u.UpdatedAt = now
		}
	}
	return true, nil
}

// archiveLocked records the idempotency marker. Caller holds mu.
func (m *memstore) archiveLocked(g *game.Game) bool {
	if g == nil {
		return false
	}
	if _, ok := m.games[g.ID]; ok {
		return false
	}
	cp := *g
	m.games[g.ID] = &cp
	return true
}

func (m *memstore) Close() error { return nil }

// ensureLocked creates a default record for an unseen player. Caller holds mu.
func (m *memstore) ensureLocked(id string) *User {
	if id == "" {
		return nil
	}
	if u, ok := m.users[id]; ok {
		return u
	}
	now := time.Now().UTC()
	u := &User{ID: id, EloRating: StartingRating, CreatedAt: now, UpdatedAt: now}
	m.users[id] = u
	return u
}
