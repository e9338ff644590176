// Package ws streams game snapshots (and optionally chat) to clients over
// WebSocket. One subscription per socket; the subscription and its pub/sub
// channel are released on every exit path.
package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/xo-online/xo-server/internal/chat"
	"github.com/xo-online/xo-server/internal/game"
	"github.com/xo-online/xo-server/internal/obslog"
)

// frame is the single envelope written to clients.
type frame struct {
	Type string         `json:"type"` // "snapshot" or "chat"
	Game *game.Snapshot `json:"game,omitempty"`
	Chat *chat.Message  `json:"chat,omitempty"`
}

type Server struct {
	games *game.Manager
	chats *chat.Service
}

func NewServer(games *game.Manager, chats *chat.Service) *Server {
	return &Server{games: games, chats: chats}
}

// Handler serves /ws/games/{id}. The query parameter chat=1 interleaves the
// game's chat stream on the same socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/games/", s.serveGame)
	return mux
}

func (s *Server) serveGame(w http.ResponseWriter, r *http.Request) {
	gameID := strings.TrimPrefix(r.URL.Path, "/ws/games/")
	if gameID == "" || strings.Contains(gameID, "/") {
		http.Error(w, "bad game id", http.StatusBadRequest)
		return
	}
	actorID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	withChat := r.URL.Query().Get("chat") == "1"

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := s.games.Subscribe(ctx, gameID)
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			conn.Close(websocket.StatusPolicyViolation, "game not found")
			return
		}
		obslog.L().Warn("ws_subscribe_error",
			zap.String("game_id", gameID),
			zap.Error(err),
		)
		return
	}
	defer sub.Close()

	var chatSub *chat.Subscription
	var chatCh <-chan chat.Message
	if withChat {
		chatSub, err = s.chats.Subscribe(ctx, gameID)
		if err != nil {
			obslog.L().Warn("ws_chat_subscribe_error",
				zap.String("game_id", gameID),
				zap.Error(err),
			)
			return
		}
		defer chatSub.Close()
		chatCh = chatSub.Messages()
	}

	// Drain client frames so pings/close are processed; the stream is
	// server-to-client only.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				cancel()
				return
			}
		}
	}()

	obslog.L().Info("ws_stream_open",
		zap.String("game_id", gameID),
		zap.String("actor_id", actorID),
		zap.Bool("chat", withChat),
	)
	defer s.onDetach(gameID, actorID)

	for {
		select {
		case snap, ok := <-sub.Snapshots():
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "stream ended")
				return
			}
			if err := writeFrame(ctx, conn, frame{Type: "snapshot", Game: &snap}); err != nil {
				return
			}
			if snap.Terminal() {
				conn.Close(websocket.StatusNormalClosure, "game finished")
				return
			}
		case msg, ok := <-chatCh:
			if !ok {
				chatCh = nil
				continue
			}
			if err := writeFrame(ctx, conn, frame{Type: "chat", Chat: &msg}); err != nil {
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "bye")
			return
		}
	}
}

// onDetach fires the best-effort disconnect termination: when a participant's
// stream ends while the game is still live, the game is abandoned so the
// opponent is not left waiting for a move that will never come.
func (s *Server) onDetach(gameID, actorID string) {
	if actorID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g, err := s.games.Get(ctx, gameID)
	if err != nil || g.Terminal() {
		return
	}
	if g.Player1ID != actorID && g.Player2ID != actorID {
		return
	}
	if _, err := s.games.Abandon(ctx, gameID, game.EndDisconnect); err != nil {
		if errors.Is(err, game.ErrGameNotActive) || errors.Is(err, game.ErrConflict) {
			return
		}
		obslog.L().Warn("ws_disconnect_abandon_error",
			zap.String("game_id", gameID),
			zap.Error(err),
		)
		return
	}
	obslog.L().Info("ws_disconnect_abandon",
		zap.String("game_id", gameID),
		zap.String("actor_id", actorID),
	)
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f frame) error {
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(wctx, conn, f)
}
