package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/collab-hub/relay/api/handlers"
	"github.com/collab-hub/relay/internal/assistant/gemini"
	"github.com/collab-hub/relay/internal/config"
	"github.com/collab-hub/relay/internal/db"
	"github.com/collab-hub/relay/internal/metrics"
	"github.com/collab-hub/relay/internal/pty"
	"github.com/collab-hub/relay/internal/relay"
	"github.com/collab-hub/relay/internal/repository"
	"github.com/collab-hub/relay/internal/terminal"
	"github.com/collab-hub/relay/internal/ws"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == gin.ReleaseMode {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(cfg.Level())
	gin.SetMode(cfg.Mode)

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to initialize database")
	}
	defer db.CloseDB()
	chatRepo := repository.NewChatRepository(database)

	ptyManager := pty.NewManager(pty.Config{
		Shell:     cfg.Terminal.Shell,
		Rows:      uint16(cfg.Terminal.Rows),
		Cols:      uint16(cfg.Terminal.Cols),
		RecordDir: cfg.RecordDir(),
	})
	if err := ptyManager.Available(); err != nil {
		log.Warn().Err(err).Msg("terminal support disabled")
	} else {
		log.Info().Msg("terminal support available")
	}

	provider, err := gemini.NewClient(ctx, gemini.Config{
		APIKey: cfg.AI.APIKey,
		Models: cfg.AI.Models,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create AI provider")
	}

	hub := ws.NewHub()
	core := relay.New(hub, relay.Options{
		Spawner:  ptyManager,
		Provider: provider,
		Terminal: terminal.Config{
			HistorySize: cfg.Terminal.HistorySize,
			Rows:        uint16(cfg.Terminal.Rows),
			Cols:        uint16(cfg.Terminal.Cols),
		},
	})

	origins := ws.NewOriginPolicy(cfg.AllowedOrigins)
	wsHandler := ws.NewHandler(hub, core, origins, ws.Config{
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBuffer:     cfg.WS.SendBuffer,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.Middleware())
	r.Use(handlers.CORS(origins))

	handlers.NewHealthHandler(core, hub.ClientCount).RegisterRoutes(r)
	handlers.NewWebSocketHandler(wsHandler).RegisterRoutes(r)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	{
		handlers.NewTerminalHandler(core).RegisterRoutes(api)
		handlers.NewChatHandler(chatRepo).RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// Hijacked WebSocket connections survive Shutdown; close them first so no
	// event reaches the relay while it closes.
	hub.Close()
	if err := core.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close terminals")
	}
	log.Info().Msg("Server exited gracefully")
}
