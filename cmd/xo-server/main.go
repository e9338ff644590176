package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xo-online/xo-server/internal/chat"
	appcfg "github.com/xo-online/xo-server/internal/config"
	"github.com/xo-online/xo-server/internal/game"
	"github.com/xo-online/xo-server/internal/httpapi"
	"github.com/xo-online/xo-server/internal/match"
	"github.com/xo-online/xo-server/internal/obslog"
	"github.com/xo-online/xo-server/internal/rating"
	"github.com/xo-online/xo-server/internal/ws"
)

func main() {
	_ = godotenv.Load()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	opts, err := game.ParseRedisURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping error: %v", err)
	}

	var store rating.Store
	if cfg.DatabaseURL != "" {
		store, err = rating.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres init error: %v", err)
		}
	} else {
		obslog.L().Warn("rating_store_memory", zap.String("reason", "DATABASE_URL not set"))
		store = rating.NewMemoryStore()
	}

	games := game.NewManager(rdb, cfg.TurnTimeout)
	games.AttachSink(rating.NewUpdater(store, rating.Deltas{
		Win:  cfg.WinDelta,
		Loss: cfg.LossDelta,
		Draw: cfg.DrawCredit,
	}))
	coord := match.NewCoordinator(games)
	chats := chat.NewService(rdb)

	app := httpapi.NewApp(httpapi.NewHandler(games, coord, store, chats), cfg.AllowOrigins)
	wsSrv := &http.Server{
		Addr:        cfg.WSAddr,
		Handler:     ws.NewServer(games, chats).Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		obslog.L().Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			obslog.L().Error("http_serve_error", zap.Error(err))
		}
	}()
	go func() {
		obslog.L().Info("ws_listen", zap.String("addr", cfg.WSAddr))
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obslog.L().Error("ws_serve_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	obslog.L().Info("shutdown_begin")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(shutdownCtx)
	_ = wsSrv.Shutdown(shutdownCtx)
	_ = games.Close()
	_ = store.Close()
	_ = rdb.Close()
	obslog.L().Info("shutdown_complete")
}
