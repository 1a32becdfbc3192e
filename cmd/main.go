package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studysync/room-service/config"
	"github.com/studysync/room-service/internal/auth"
	"github.com/studysync/room-service/internal/hub"
	"github.com/studysync/room-service/internal/logger"
	"github.com/studysync/room-service/internal/registry"
	"github.com/studysync/room-service/internal/service"
	"github.com/studysync/room-service/internal/store"
	httpx "github.com/studysync/room-service/internal/transport/http"
	"github.com/studysync/room-service/internal/transport/ws"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting room-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- store ---
	ctx := context.Background()
	var st store.Store
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.Store.DSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		if cfg.Store.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
		st = pg
	default:
		bg, err := store.NewBadgerStore(cfg.Store.Path, slog.Default())
		if err != nil {
			log.Fatalf("badger: %v", err)
		}
		st = bg
	}
	defer st.Close()

	// --- room runtime ---
	reg := registry.New()
	h := hub.New(reg, slog.Default())
	locks := service.NewRoomLocks()

	roomSvc := service.NewRoomService(st, h, locks)
	roomSvc.SetMaxParticipantsDefault(cfg.Room.DefaultMaxParticipants)
	memberSvc := service.NewMemberService(st, reg, h, locks)
	chatSvc := service.NewChatService(st, h, locks)
	chatSvc.SetMaxContentLen(cfg.Room.MaxMessageLen)

	// --- WS ---
	provider := auth.NewJWTProvider(cfg.Auth.JWTSecret)
	wsServer := ws.NewServer(provider, memberSvc, chatSvc)
	wsServer.SetPingEvery(cfg.PingInterval())
	wsServer.SetSendBuffer(cfg.WS.SendBuffer)

	// --- HTTP ---
	handler := httpx.NewHandler(roomSvc, memberSvc, chatSvc, st)
	router := httpx.NewRouter(handler, provider, wsServer.HandleWS)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
