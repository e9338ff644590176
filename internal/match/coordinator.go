// Package match pairs players into games. The game-record conditional write
// is the arbiter of join races: at most one join succeeds per WAITING game and
// the loser silently retries or creates a fresh game.
package match

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xo-online/xo-server/internal/game"
	"github.com/xo-online/xo-server/internal/obslog"
)

type Coordinator struct {
	games *game.Manager
}

func NewCoordinator(games *game.Manager) *Coordinator {
	return &Coordinator{games: games}
}

// FindOrCreate joins any open game not owned by the requester. A lost race is
// never surfaced: the lookup is retried once, then a new WAITING game is
// created.
func (c *Coordinator) FindOrCreate(ctx context.Context, requesterID string) (*game.Game, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ids, err := c.games.OpenGames(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			g, err := c.games.Get(ctx, id)
			if err != nil {
				if errors.Is(err, game.ErrNotFound) {
					continue
				}
				return nil, err
			}
			if g.Status != game.StatusWaiting || g.Player1ID == requesterID {
				continue
			}
			joined, err := c.games.Join(ctx, id, requesterID)
			if err == nil {
				obslog.L().Info("match_paired",
					zap.String("game_id", joined.ID),
					zap.String("requester_id", requesterID),
					zap.Int("attempt", attempt),
				)
				return joined, nil
			}
			// Lost the slot to a concurrent requester; keep scanning.
			if errors.Is(err, game.ErrAlreadyFull) ||
				errors.Is(err, game.ErrNotFound) ||
				errors.Is(err, game.ErrConflict) ||
				errors.Is(err, game.ErrSelfJoin) {
				continue
			}
			return nil, err
		}
	}
	g, err := c.games.Create(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_waiting",
		zap.String("game_id", g.ID),
		zap.String("requester_id", requesterID),
	)
	return g, nil
}

// JoinByCode joins a specific game via a shared identifier. Matchmaking
// failures pass through untouched: ErrNotFound for a bad code, ErrAlreadyFull
// and ErrSelfJoin per the state machine.
func (c *Coordinator) JoinByCode(ctx context.Context, requesterID, gameID string) (*game.Game, error) {
	return c.games.Join(ctx, gameID, requesterID)
}
