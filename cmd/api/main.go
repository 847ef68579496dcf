package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"warmtransfer/internal/agents"
	"warmtransfer/internal/auth"
	"warmtransfer/internal/calls"
	"warmtransfer/internal/config"
	"warmtransfer/internal/httpapi"
	"warmtransfer/internal/rooms"
	"warmtransfer/internal/store"
	"warmtransfer/internal/summary"
	"warmtransfer/internal/transfer"
	"warmtransfer/pkg/logger"
	"warmtransfer/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	roomProvider, err := rooms.NewLiveKitProvider(cfg.LiveKit)
	if err != nil {
		log.Error("livekit init failed", "err", err)
		os.Exit(1)
	}

	// The summarizer degrades to fallback text when no API key is configured.
	var generator summary.Generator
	if cfg.LLM.OpenAIAPIKey != "" {
		gen, err := summary.NewOpenAIGenerator(cfg.LLM)
		if err != nil {
			log.Error("openai init failed", "err", err)
			os.Exit(1)
		}
		generator = gen
	} else {
		log.Warn("OPENAI_API_KEY not set, summaries use fallback text")
	}
	summarizer := summary.NewService(generator, cfg.LLM.RequestTimeout, log)

	st := store.NewPostgres(db)
	orchestrator := transfer.NewOrchestrator(st, roomProvider, summarizer, transfer.Config{
		MaxWait:                 cfg.Transfer.MaxWait,
		SideRoomMaxParticipants: cfg.Transfer.SideRoomMaxParticipants,
	}, log)

	h := httpapi.Handlers{
		Auth:      authManager,
		Agents:    agents.NewService(st, cfg.Transfer.DefaultMaxConcurrentCalls, log),
		Calls:     calls.NewService(st, roomProvider, log),
		Transfers: orchestrator,
		Rooms:     roomProvider,
		Redis:     rdb,
		DB:        db,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
