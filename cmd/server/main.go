// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/minitoshi/susbot/internal/auth"
	"github.com/minitoshi/susbot/internal/cache"
	"github.com/minitoshi/susbot/internal/config"
	"github.com/minitoshi/susbot/internal/database"
	"github.com/minitoshi/susbot/internal/matchmaking"
	"github.com/minitoshi/susbot/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Fatal("Server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	regOpts := server.RegistryOptions{Settings: cfg.Game, Grace: cfg.CleanupGrace}
	srvOpts := server.Options{Config: cfg}

	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		historian := cache.NewHistorian(rdb)
		regOpts.Historian = historian
		srvOpts.Actions = historian
		log.Info("Action history enabled (Redis)")
	} else {
		log.Warn("REDIS_URL not set; action history disabled")
	}

	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store := database.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		regOpts.Store = store
		srvOpts.Results = store
		log.Info("Game archive enabled (Postgres)")
	} else {
		log.Warn("DATABASE_URL not set; finished games will not be archived")
	}

	if cfg.DevMode {
		log.Warn("DEV_MODE is on: dev tokens and /api/dev endpoints are enabled")
	}

	registry := server.NewRegistry(regOpts)
	defer registry.Shutdown()

	queue := matchmaking.NewQueue(matchmaking.Options{
		MinPlayers: cfg.MatchmakingMinPlayers,
		MaxPlayers: cfg.Game.MaxPlayers,
		Wait:       cfg.MatchmakingWait,
	}, registry.StartMatch)
	go queue.Run(ctx, cfg.MatchmakingCheckPeriod)

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTAudience, cfg.DevMode)
	go pruneTokens(ctx, verifier, 10*time.Minute)

	srvOpts.Registry = registry
	srvOpts.Queue = queue
	srvOpts.Verifier = verifier
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.New(srvOpts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"port":       cfg.Port,
			"maxPlayers": cfg.Game.MaxPlayers,
			"tickRate":   cfg.Game.TickRateHz,
		}).Info("susbot server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// pruneTokens drops expired identity cache entries until ctx ends.
func pruneTokens(ctx context.Context, v *auth.Verifier, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := v.PruneCache(); n > 0 {
				log.WithField("pruned", n).Debug("Pruned identity cache")
			}
		}
	}
}
