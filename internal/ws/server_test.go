package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/xo-online/xo-server/internal/chat"
	"github.com/xo-online/xo-server/internal/game"
)

func newTestServer(t *testing.T) (*httptest.Server, *game.Manager, *chat.Service) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	games := game.NewManager(rdb, 0)
	t.Cleanup(func() { _ = games.Close() })
	chats := chat.NewService(rdb)

	srv := httptest.NewServer(NewServer(games, chats).Handler())
	t.Cleanup(srv.Close)
	return srv, games, chats
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dial(t *testing.T, ctx context.Context, url, userID string) *websocket.Conn {
	t.Helper()
	headers := http.Header{}
	if userID != "" {
		headers.Set("X-User-Id", userID)
	}
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) frame {
	t.Helper()
	rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var f frame
	if err := wsjson.Read(rctx, conn, &f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestStreamSendsInitialSnapshot(t *testing.T) {
	srv, games, _ := newTestServer(t)
	ctx := context.Background()

	g, err := games.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	conn := dial(t, ctx, wsURL(srv, "/ws/games/"+g.ID), "")
	defer conn.Close(websocket.StatusNormalClosure, "done")

	f := readFrame(t, ctx, conn)
	if f.Type != "snapshot" || f.Game == nil || f.Game.ID != g.ID {
		t.Fatalf("frame = %+v", f)
	}
	if f.Game.Status != game.StatusWaiting {
		t.Fatalf("snapshot = %+v", f.Game)
	}
}

func TestStreamDeliversMoves(t *testing.T) {
	srv, games, _ := newTestServer(t)
	ctx := context.Background()

	g, err := games.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := games.Join(ctx, g.ID, "u2"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	// spectator socket: no actor identity, so closing never abandons
	conn := dial(t, ctx, wsURL(srv, "/ws/games/"+g.ID), "")
	defer conn.Close(websocket.StatusNormalClosure, "done")
	readFrame(t, ctx, conn)

	if _, err := games.SubmitMove(ctx, g.ID, "u1", 4); err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	f := readFrame(t, ctx, conn)
	if f.Game == nil || f.Game.Board[4] != "X" || f.Game.CurrentTurn != "u2" {
		t.Fatalf("frame = %+v", f)
	}
}

func TestStreamInterleavesChat(t *testing.T) {
	srv, games, chats := newTestServer(t)
	ctx := context.Background()

	g, err := games.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	conn := dial(t, ctx, wsURL(srv, "/ws/games/"+g.ID+"?chat=1"), "")
	defer conn.Close(websocket.StatusNormalClosure, "done")
	readFrame(t, ctx, conn)

	if _, err := chats.Append(ctx, g.ID, "u1", "hello"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	f := readFrame(t, ctx, conn)
	if f.Type != "chat" || f.Chat == nil || f.Chat.Content != "hello" {
		t.Fatalf("frame = %+v", f)
	}
}

func TestUnknownGameRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/ws/games/nope"), nil)
	if err != nil {
		// rejected during upgrade is also acceptable
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	var f frame
	rerr := wsjson.Read(ctx, conn, &f)
	if rerr == nil {
		t.Fatalf("expected close for unknown game, got frame %+v", f)
	}
	if websocket.CloseStatus(rerr) != websocket.StatusPolicyViolation {
		t.Fatalf("close status = %v", websocket.CloseStatus(rerr))
	}
}

func TestParticipantDisconnectAbandonsGame(t *testing.T) {
	srv, games, _ := newTestServer(t)
	ctx := context.Background()

	g, err := games.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := games.Join(ctx, g.ID, "u2"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	conn := dial(t, ctx, wsURL(srv, "/ws/games/"+g.ID), "u2")
	readFrame(t, ctx, conn)
	conn.Close(websocket.StatusNormalClosure, "leaving")

	deadline := time.Now().Add(3 * time.Second)
	for {
		cur, err := games.Get(ctx, g.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if cur.Terminal() {
			if cur.EndReason != game.EndDisconnect || cur.Winner != "" {
				t.Fatalf("unexpected terminal state: %+v", cur)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("disconnect never abandoned the game")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestTerminalSnapshotClosesStream(t *testing.T) {
	srv, games, _ := newTestServer(t)
	ctx := context.Background()

	g, err := games.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := games.Join(ctx, g.ID, "u2"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	conn := dial(t, ctx, wsURL(srv, "/ws/games/"+g.ID), "")
	defer conn.Close(websocket.StatusNormalClosure, "done")
	readFrame(t, ctx, conn)

	if _, err := games.Abandon(ctx, g.ID, game.EndDisconnect); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	f := readFrame(t, ctx, conn)
	if f.Game == nil || !f.Game.Terminal() {
		t.Fatalf("frame = %+v", f)
	}

	rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var next frame
	rerr := wsjson.Read(rctx, conn, &next)
	if rerr == nil {
		t.Fatalf("stream stayed open after terminal snapshot: %+v", next)
	}
	if websocket.CloseStatus(rerr) != websocket.StatusNormalClosure {
		t.Fatalf("close status = %v", websocket.CloseStatus(rerr))
	}
}
