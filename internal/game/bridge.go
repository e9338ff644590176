package game

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xo-online/xo-server/internal/obslog"
)

// Subscription is a handle on a game's change stream. The caller owns it and
// must call Close on every exit path; Close is idempotent.
type Subscription struct {
	ps     *redis.PubSub
	ch     chan Snapshot
	cancel context.CancelFunc
	once   sync.Once
}

// Snapshots delivers full-state snapshots: the current state first, then one
// per remote change. The channel closes when the subscription ends.
func (s *Subscription) Snapshots() <-chan Snapshot { return s.ch }

// Close releases the underlying pub/sub channel.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.ps.Close()
	})
	return err
}

// Subscribe opens the change stream for a game. The initial snapshot is
// fetched synchronously before the live sequence begins, so consumers never
// observe a window with no state. Delivery is at-least-once; snapshots are
// idempotent to apply (last write wins at snapshot granularity).
func (m *Manager) Subscribe(ctx context.Context, gameID string) (*Subscription, error) {
	ps := m.rdb.Subscribe(ctx, updatesChannel(gameID))
	// Force the SUBSCRIBE onto the wire before reading the initial state, so
	// no update between fetch and subscribe is lost.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	g, err := m.Get(ctx, gameID)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}
	initial := snapshotOf(g)

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		ps:     ps,
		ch:     make(chan Snapshot, 8),
		cancel: cancel,
	}
	go func() {
		defer close(sub.ch)
		select {
		case sub.ch <- initial:
		case <-subCtx.Done():
			return
		}
		msgs := ps.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					obslog.L().Warn("snapshot_decode_error",
						zap.String("game_id", gameID),
						zap.Error(err),
					)
					continue
				}
				select {
				case sub.ch <- snap:
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
