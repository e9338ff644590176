// Package rating applies win/loss/draw deltas exactly once per conclusively
// finished game and serves the leaderboard projection.
package rating

import (
	"context"
	"errors"
	"time"

	"github.com/xo-online/xo-server/internal/game"
)

// User is one player's rating record.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	EloRating int       `json:"elo_rating"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Draws     int       `json:"draws"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StartingRating seeds new users.
const StartingRating = 1000

var ErrUserNotFound = errors.New("user not found")

// Store persists users and finished games. Implemented by the Postgres store
// and by an in-memory store for tests and DB-less development.
type Store interface {
	// EnsureUser creates the user when absent and returns the stored record.
	// Creation is idempotent; an existing row is never overwritten.
	EnsureUser(ctx context.Context, u User) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	// ListByRating returns all users ordered by rating descending.
	ListByRating(ctx context.Context) ([]User, error)

	// RecordWin archives the game and applies both deltas in one atomic step.
	// The archive row is the durable idempotency marker: false means the game
	// was already recorded and nothing was applied. On error, neither the
	// archive row nor the deltas survive, so a redelivery retries cleanly.
	RecordWin(ctx context.Context, g *game.Game, winnerID, loserID string, winDelta, lossDelta int) (bool, error)
	// RecordDraw is RecordWin for drawn games: both players credited.
	RecordDraw(ctx context.Context, g *game.Game, credit int) (bool, error)

	Close() error
}
