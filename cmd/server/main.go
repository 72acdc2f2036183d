package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/astelio/consult/internal/adapters/http"
	"github.com/astelio/consult/internal/adapters/ledger"
	signaladapter "github.com/astelio/consult/internal/adapters/signal"
	"github.com/astelio/consult/internal/app"
	"github.com/astelio/consult/internal/config"
	"github.com/astelio/consult/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	var credits core.CreditLedger
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		credits = ledger.NewRedis(client)
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis credit ledger")
	} else {
		credits = ledger.NewStatic(cfg.DefaultCredit)
		log.Info().Float64("balance", cfg.DefaultCredit).Msg("using static credit ledger")
	}

	rooms := app.NewRoomManager()
	registry := app.NewRegistry(app.NewPrefixClassifier(cfg.ConsultantPrefix))
	sessions := app.NewSessionStore(cfg.DefaultRate)
	meter := app.NewMeter(credits, rooms, cfg.TickPeriod, cfg.DefaultCredit)

	ctrl := &app.Controller{
		Registry: registry,
		Rooms:    rooms,
		Sessions: sessions,
		History:  app.NewHistory(),
		Meter:    meter,
		Policy:   app.SimplePolicy{},
	}

	limiter := signaladapter.NewMessageRateLimiter(cfg.MessageRateLimit, cfg.MessageRateInterval)
	wsCtrl := signaladapter.NewChatWSController(ctrl, limiter)

	r := router.SetupRouter(ctx, cfg, wsCtrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Consult server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
