package rating

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xo-online/xo-server/internal/board"
	"github.com/xo-online/xo-server/internal/game"
	"github.com/xo-online/xo-server/internal/obslog"
)

// Deltas are the flat rating adjustments. The observed scheme credits both
// sides of a decided game with the same increment rather than exchanging
// expected-score ELO; kept configurable for that reason.
type Deltas struct {
	Win  int
	Loss int
	Draw int
}

// DefaultDeltas mirrors the production constants.
func DefaultDeltas() Deltas { return Deltas{Win: 10, Loss: 10, Draw: 5} }

// Updater consumes conclusively finished games. It implements game.ResultSink.
type Updater struct {
	store  Store
	deltas Deltas
}

func NewUpdater(store Store, deltas Deltas) *Updater {
	return &Updater{store: store, deltas: deltas}
}

// ApplyResult records the outcome and moves ratings. The game manager only
// delivers each game once (the rating_applied flag is flipped inside the same
// conditional write that finishes the game), and the store applies the archive
// row and the deltas atomically, so a failed application leaves no marker
// behind and a redelivery retries cleanly instead of double-counting.
func (u *Updater) ApplyResult(ctx context.Context, g *game.Game) error {
	if g == nil || !g.Conclusive() {
		return fmt.Errorf("rating: game %q is not a conclusive result", gameID(g))
	}

	switch g.Winner {
	case string(board.X):
		return u.applyDecided(ctx, g, g.Player1ID, g.Player2ID)
	case string(board.O):
		return u.applyDecided(ctx, g, g.Player2ID, g.Player1ID)
	case game.WinnerDraw:
		inserted, err := u.store.RecordDraw(ctx, g, u.deltas.Draw)
		if err != nil {
			return fmt.Errorf("rating: record draw for game %s: %w", g.ID, err)
		}
		if !inserted {
			obslog.L().Info("rating_skip_duplicate", zap.String("game_id", g.ID))
			return nil
		}
		obslog.L().Info("rating_draw",
			zap.String("game_id", g.ID),
			zap.Int("credit", u.deltas.Draw),
		)
		return nil
	}
	return fmt.Errorf("rating: game %s has invalid winner %q", g.ID, g.Winner)
}

func (u *Updater) applyDecided(ctx context.Context, g *game.Game, winnerID, loserID string) error {
	inserted, err := u.store.RecordWin(ctx, g, winnerID, loserID, u.deltas.Win, u.deltas.Loss)
	if err != nil {
		return fmt.Errorf("rating: record win for game %s: %w", g.ID, err)
	}
	if !inserted {
		obslog.L().Info("rating_skip_duplicate", zap.String("game_id", g.ID))
		return nil
	}
	obslog.L().Info("rating_win",
		zap.String("game_id", g.ID),
		zap.String("winner_id", winnerID),
		zap.String("loser_id", loserID),
		zap.Int("win_delta", u.deltas.Win),
	)
	return nil
}

func gameID(g *game.Game) string {
	if g == nil {
		return ""
	}
	return g.ID
}
