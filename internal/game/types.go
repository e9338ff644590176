package game

import (
	"time"

	"github.com/xo-online/xo-server/internal/board"
)

// Status represents the match lifecycle state.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFinished   Status = "FINISHED"
)

// EndReason records why a game reached FINISHED.
type EndReason string

const (
	EndWin        EndReason = "win"
	EndDraw       EndReason = "draw"
	EndTimeout    EndReason = "timeout"
	EndDisconnect EndReason = "disconnect"
)

// WinnerDraw is the Winner value for a drawn game.
const WinnerDraw = "draw"

// Game is the persisted state of a match, stored as JSON in Redis under
// xo:game:<id>. The record is the single point of truth; every mutation goes
// through the Manager's conditional writes.
type Game struct {
	ID            string      `json:"id"`
	Player1ID     string      `json:"player1_id"`
	Player2ID     string      `json:"player2_id,omitempty"`
	Board         board.Board `json:"board"`
	CurrentTurn   string      `json:"current_turn,omitempty"`
	Status        Status      `json:"status"`
	Winner        string      `json:"winner,omitempty"` // "X", "O" or WinnerDraw
	EndReason     EndReason   `json:"end_reason,omitempty"`
	RatingApplied bool        `json:"rating_applied,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// MarkOf returns the mark a participant plays with, Empty for outsiders.
func (g *Game) MarkOf(playerID string) board.Mark {
	switch playerID {
	case "":
		return board.Empty
	case g.Player1ID:
		return board.X
	case g.Player2ID:
		return board.O
	}
	return board.Empty
}

// Opponent returns the other participant's ID, "" for outsiders.
func (g *Game) Opponent(playerID string) string {
	switch playerID {
	case g.Player1ID:
		return g.Player2ID
	case g.Player2ID:
		return g.Player1ID
	}
	return ""
}

// Terminal reports whether no further transition is allowed.
func (g *Game) Terminal() bool { return g.Status == StatusFinished }

// Conclusive reports whether the game ended with a win or draw, as opposed to
// abandonment. Only conclusive games feed the rating updater.
func (g *Game) Conclusive() bool {
	return g.Status == StatusFinished && (g.EndReason == EndWin || g.EndReason == EndDraw)
}

// Snapshot is the full-state payload fanned out to subscribers. Consumers
// replace their local view with each snapshot; there is no diff model.
type Snapshot struct {
	Game
	WinningLine *[3]int `json:"winning_line,omitempty"`
}

// SnapshotFor builds the wire snapshot for a game state.
func SnapshotFor(g *Game) Snapshot { return snapshotOf(g) }

func snapshotOf(g *Game) Snapshot {
	s := Snapshot{Game: *g}
	if g.EndReason == EndWin {
		if ln, ok := board.WinningLine(g.Board); ok {
			s.WinningLine = &ln
		}
	}
	return s
}

// Errors surfaced by game operations. All are recoverable at the API boundary.
var (
	ErrNotFound      = errf("game not found")
	ErrAlreadyFull   = errf("game already has two players")
	ErrSelfJoin      = errf("cannot join your own game")
	ErrNotYourTurn   = errf("not your turn")
	ErrGameNotActive = errf("game is not in progress")
	// ErrConflict means a concurrent write won the record; the caller should
	// refetch the authoritative state before retrying.
	ErrConflict = errf("concurrent update detected")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

func errf(s string) error { return staticErr(s) }
