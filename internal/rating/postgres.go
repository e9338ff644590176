package rating

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/xo-online/xo-server/internal/game"
)

// pgstore is the production Store backed by Postgres.
type pgstore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &pgstore{db: db}, nil
}

func (p *pgstore) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *pgstore) EnsureUser(ctx context.Context, u User) (*User, error) {
	const insert = `INSERT INTO xo_users (id, username, avatar_url, elo_rating, wins, losses, draws, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, 0, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING`
	if _, err := p.db.ExecContext(ctx, insert, u.ID, u.Username, u.AvatarURL, StartingRating); err != nil {
		return nil, err
	}
	return p.GetUser(ctx, u.ID)
}

func (p *pgstore) GetUser(ctx context.Context, id string) (*User, error) {
	const q = `SELECT id, username, avatar_url, elo_rating, wins, losses, draws, created_at, updated_at
		FROM xo_users WHERE id = $1`
	var u User
	err := p.db.QueryRowContext(ctx, q, id).Scan(
		&u.ID, &u.Username, &u.AvatarURL, &u.EloRating,
		&u.Wins, &u.Losses, &u.Draws, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *pgstore) ListByRating(ctx context.Context) ([]User, error) {
	const q = `SELECT id, username, avatar_url, elo_rating, wins, losses, draws, created_at, updated_at
		FROM xo_users ORDER BY elo_rating DESC, id ASC`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.ID, &u.Username, &u.AvatarURL, &u.EloRating,
			&u.Wins, &u.Losses, &u.Draws, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// RecordWin archives the game and moves both ratings in one transaction. The
// archive insert is the idempotency marker; when it affects no row the game
// was already recorded and the transaction commits without touching users.
func (p *pgstore) RecordWin(ctx context.Context, g *game.Game, winnerID, loserID string, winDelta, lossDelta int) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	inserted, err := archiveGame(ctx, tx, g)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, tx.Commit()
	}
	const winQ = `UPDATE xo_users SET elo_rating = elo_rating + $2, wins = wins + 1, updated_at = NOW() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, winQ, winnerID, winDelta); err != nil {
		return false, err
	}
	const lossQ = `UPDATE xo_users SET elo_rating = elo_rating + $2, losses = losses + 1, updated_at = NOW() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, lossQ, loserID, lossDelta); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (p *pgstore) RecordDraw(ctx context.Context, g *game.Game, credit int) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	inserted, err := archiveGame(ctx, tx, g)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, tx.Commit()
	}
	const q = `UPDATE xo_users SET elo_rating = elo_rating + $3, draws = draws + 1, updated_at = NOW() WHERE id IN ($1, $2)`
	if _, err := tx.ExecContext(ctx, q, g.Player1ID, g.Player2ID, credit); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func archiveGame(ctx context.Context, tx *sql.Tx, g *game.Game) (bool, error) {
	if g == nil {
		return false, nil
	}
	boardStr := make([]byte, 0, 9)
	for _, c := range g.Board {
		if c == "" {
			boardStr = append(boardStr, '.')
		} else {
			boardStr = append(boardStr, c[0])
		}
	}
	const q = `INSERT INTO xo_games (
			game_id, player1_id, player2_id, board, winner, end_reason,
			started_at, ended_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (game_id) DO NOTHING`
	duration := g.UpdatedAt.Sub(g.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	res, err := tx.ExecContext(ctx, q,
		g.ID, g.Player1ID, g.Player2ID, string(boardStr),
		g.Winner, string(g.EndReason),
		g.CreatedAt, g.UpdatedAt, duration,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
