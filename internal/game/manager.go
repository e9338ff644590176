// Package game owns the match lifecycle: WAITING -> IN_PROGRESS -> FINISHED.
// Game records live in Redis; every mutation is a WATCH/MULTI/EXEC conditional
// write so two clients can never both apply a move for the same turn.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xo-online/xo-server/internal/board"
	"github.com/xo-online/xo-server/internal/obslog"
)

// ResultSink receives each conclusively finished game exactly once.
type ResultSink interface {
	ApplyResult(ctx context.Context, g *Game) error
}

// Manager arbitrates all game record mutations.
type Manager struct {
	rdb      *redis.Client
	sink     ResultSink
	watchdog *watchdog
}

// NewManager wraps an existing Redis client and starts the turn-timeout
// watchdog. turnTimeout <= 0 disables timeouts (tests, offline tooling).
func NewManager(rdb *redis.Client, turnTimeout time.Duration) *Manager {
	m := &Manager{rdb: rdb}
	m.watchdog = newWatchdog(turnTimeout, m.expireGame)
	return m
}

// AttachSink wires the rating updater. Without a sink, conclusive results are
// still recorded on the game but no ratings move.
func (m *Manager) AttachSink(s ResultSink) {
	if m != nil {
		m.sink = s
	}
}

// Close stops pending timers. The Redis client is owned by the caller.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.watchdog.stop()
	return nil
}

// Create initializes a WAITING game owned by creatorID. The creator moves
// first once an opponent joins.
func (m *Manager) Create(ctx context.Context, creatorID string) (*Game, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return nil, errf("invalid creator id")
	}
	now := time.Now().UTC()
	g := &Game{
		ID:          uuid.NewString(),
		Player1ID:   creatorID,
		Status:      StatusWaiting,
		CurrentTurn: creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, gameKey(g.ID), raw, 0)
	pipe.SAdd(ctx, lobbyKey, g.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	obslog.L().Info("game_create",
		zap.String("game_id", g.ID),
		zap.String("player1_id", g.Player1ID),
	)
	m.publish(ctx, g)
	return g, nil
}

// Get is a point read of the game record.
func (m *Manager) Get(ctx context.Context, gameID string) (*Game, error) {
	raw, err := m.rdb.Get(ctx, gameKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var g Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// OpenGames lists IDs currently registered as WAITING. Entries may be stale;
// callers must treat Join as the arbiter.
func (m *Manager) OpenGames(ctx context.Context) ([]string, error) {
	return m.rdb.SMembers(ctx, lobbyKey).Result()
}

// Join fills the second slot. Only legal from WAITING, and the joiner must not
// be the creator. At most one Join ever succeeds per game: the slot fill is a
// conditional write on the game key.
func (m *Manager) Join(ctx context.Context, gameID, joinerID string) (*Game, error) {
	joinerID = strings.TrimSpace(joinerID)
	if joinerID == "" {
		return nil, errf("invalid joiner id")
	}
	var joined *Game
	key := gameKey(gameID)
	err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readGame(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if cur.Status != StatusWaiting {
			return ErrAlreadyFull
		}
		if cur.Player1ID == joinerID {
			return ErrSelfJoin
		}
		cur.Player2ID = joinerID
		cur.Status = StatusInProgress
		cur.UpdatedAt = time.Now().UTC()
		pipe := tx.TxPipeline()
		raw, _ := json.Marshal(cur)
		pipe.Set(ctx, key, raw, 0)
		pipe.SRem(ctx, lobbyKey, gameID)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		joined = cur
		return nil
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			// Someone else filled the slot between read and write.
			return nil, ErrAlreadyFull
		}
		return nil, err
	}
	m.watchdog.arm(joined.ID)
	obslog.L().Info("game_join",
		zap.String("game_id", joined.ID),
		zap.String("player2_id", joined.Player2ID),
	)
	m.publish(ctx, joined)
	return joined, nil
}

// SubmitMove applies one move for actorID. The turn check, the board-cell
// check and the terminal decision all happen inside the conditional write, so
// a stale client can never land a move after the turn already flipped.
func (m *Manager) SubmitMove(ctx context.Context, gameID, actorID string, index int) (*Game, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, errf("invalid actor id")
	}
	var (
		updated    *Game
		conclusive bool
	)
	key := gameKey(gameID)
	err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readGame(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if cur.Status != StatusInProgress {
			return ErrGameNotActive
		}
		if cur.CurrentTurn != actorID {
			return ErrNotYourTurn
		}
		mark := cur.MarkOf(actorID)
		next, err := board.Apply(cur.Board, index, mark)
		if err != nil {
			return err
		}
		cur.Board = next
		cur.UpdatedAt = time.Now().UTC()

		outcome, winner := board.Evaluate(next)
		switch outcome {
		case board.Win:
			cur.Status = StatusFinished
			cur.Winner = string(winner)
			cur.EndReason = EndWin
			cur.CurrentTurn = ""
			cur.RatingApplied = true
			conclusive = true
		case board.Draw:
			cur.Status = StatusFinished
			cur.Winner = WinnerDraw
			cur.EndReason = EndDraw
			cur.CurrentTurn = ""
			cur.RatingApplied = true
			conclusive = true
		default:
			cur.CurrentTurn = cur.Opponent(actorID)
		}

		pipe := tx.TxPipeline()
		raw, _ := json.Marshal(cur)
		pipe.Set(ctx, key, raw, 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		updated = cur
		return nil
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrConflict
		}
		return nil, err
	}

	if updated.Terminal() {
		m.watchdog.disarm(updated.ID)
	} else {
		m.watchdog.arm(updated.ID)
	}
	obslog.L().Info("move_applied",
		zap.String("game_id", updated.ID),
		zap.String("actor_id", actorID),
		zap.Int("index", index),
		zap.String("status", string(updated.Status)),
		zap.String("winner", updated.Winner),
	)
	m.publish(ctx, updated)

	// The CAS winner that flipped the game to FINISHED is the only caller that
	// sees conclusive=true, so the sink runs once per game.
	if conclusive {
		m.applyResult(ctx, updated)
	}
	return updated, nil
}

// Abandon force-finishes a game without a winner. Used by the turn timeout and
// by the disconnect path; the rating updater is never invoked for these.
func (m *Manager) Abandon(ctx context.Context, gameID string, reason EndReason) (*Game, error) {
	if reason != EndTimeout && reason != EndDisconnect {
		return nil, errf("invalid abandon reason")
	}
	var updated *Game
	key := gameKey(gameID)
	err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readGame(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if cur.Terminal() {
			return ErrGameNotActive
		}
		wasWaiting := cur.Status == StatusWaiting
		cur.Status = StatusFinished
		cur.Winner = ""
		cur.EndReason = reason
		cur.CurrentTurn = ""
		cur.UpdatedAt = time.Now().UTC()
		pipe := tx.TxPipeline()
		raw, _ := json.Marshal(cur)
		pipe.Set(ctx, key, raw, 0)
		if wasWaiting {
			pipe.SRem(ctx, lobbyKey, gameID)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		updated = cur
		return nil
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrConflict
		}
		return nil, err
	}
	m.watchdog.disarm(gameID)
	obslog.L().Info("game_abandon",
		zap.String("game_id", gameID),
		zap.String("reason", string(reason)),
	)
	m.publish(ctx, updated)
	return updated, nil
}

func (m *Manager) applyResult(ctx context.Context, g *Game) {
	if m.sink == nil {
		return
	}
	if err := m.sink.ApplyResult(ctx, g); err != nil {
		obslog.L().Error("rating_apply_error",
			zap.String("game_id", g.ID),
			zap.Error(err),
		)
		return
	}
	obslog.L().Info("rating_applied",
		zap.String("game_id", g.ID),
		zap.String("winner", g.Winner),
	)
}

// expireGame is the watchdog callback.
func (m *Manager) expireGame(gameID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.Abandon(ctx, gameID, EndTimeout); err != nil {
		// A legitimate finish raced the timer; nothing to do.
		if errors.Is(err, ErrGameNotActive) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return
		}
		obslog.L().Warn("game_timeout_error",
			zap.String("game_id", gameID),
			zap.Error(err),
		)
	}
}

func (m *Manager) publish(ctx context.Context, g *Game) {
	snap := snapshotOf(g)
	raw, err := json.Marshal(&snap)
	if err != nil {
		return
	}
	if err := m.rdb.Publish(ctx, updatesChannel(g.ID), raw).Err(); err != nil {
		obslog.L().Warn("snapshot_publish_error",
			zap.String("game_id", g.ID),
			zap.Error(err),
		)
	}
}

func readGame(ctx context.Context, tx *redis.Tx, gameID string) (*Game, error) {
	raw, err := tx.Get(ctx, gameKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var g Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

const lobbyKey = "xo:lobby"

func gameKey(id string) string { return "xo:game:" + strings.TrimSpace(id) }

func updatesChannel(id string) string { return "xo:game:updates:" + strings.TrimSpace(id) }

// ParseRedisURL converts redis:// and rediss:// URLs into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errf("redis url required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, errf("unsupported redis scheme: " + u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
