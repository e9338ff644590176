// Package chat is the append-only per-game message stream. It rides the same
// Redis transport as game snapshots but is otherwise independent of the match
// state machine.
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xo-online/xo-server/internal/obslog"
)

// Message is one chat entry, owned by a game.
type Message struct {
	ID        string    `json:"id"`
	GameID    string    `json:"game_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// historyCap bounds the retained backlog per game.
const historyCap = 200

type Service struct {
	rdb *redis.Client
}

func NewService(rdb *redis.Client) *Service { return &Service{rdb: rdb} }

// Append stores a message and publishes it to live subscribers.
func (s *Service) Append(ctx context.Context, gameID, senderID, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if gameID == "" || senderID == "" || content == "" {
		return nil, errInvalid
	}
	msg := &Message{
		ID:        uuid.NewString(),
		GameID:    gameID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, historyKey(gameID), raw)
	pipe.LTrim(ctx, historyKey(gameID), -historyCap, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	if err := s.rdb.Publish(ctx, channelKey(gameID), raw).Err(); err != nil {
		obslog.L().Warn("chat_publish_error",
			zap.String("game_id", gameID),
			zap.Error(err),
		)
	}
	return msg, nil
}

// History returns messages in send order, oldest first.
func (s *Service) History(ctx context.Context, gameID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > historyCap {
		limit = historyCap
	}
	raws, err := s.rdb.LRange(ctx, historyKey(gameID), int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Subscription streams live messages for one game.
type Subscription struct {
	ps     *redis.PubSub
	ch     chan Message
	cancel context.CancelFunc
	once   sync.Once
}

func (s *Subscription) Messages() <-chan Message { return s.ch }

func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.ps.Close()
	})
	return err
}

// Subscribe opens the live message stream. History is not replayed; call
// History first when a backlog is needed.
func (s *Service) Subscribe(ctx context.Context, gameID string) (*Subscription, error) {
	ps := s.rdb.Subscribe(ctx, channelKey(gameID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{ps: ps, ch: make(chan Message, 16), cancel: cancel}
	go func() {
		defer close(sub.ch)
		msgs := ps.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var m Message
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					continue
				}
				select {
				case sub.ch <- m:
				case <-subCtx.Done():
					return
				}
			case <-subCtx.Done():
				return
			}
		}
	}()
	return sub, nil
}

var errInvalid = staticErr("invalid chat message")

type staticErr string

func (e staticErr) Error() string { return string(e) }

func historyKey(gameID string) string { return "xo:chat:" + strings.TrimSpace(gameID) }

func channelKey(gameID string) string { return "xo:chat:updates:" + strings.TrimSpace(gameID) }
