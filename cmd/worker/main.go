// Command worker runs the lost & found background worker: the periodic
// item-match detector, the realtime chat-push deduplicator, and a small ops
// HTTP server exposing health and metrics.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/div-v/train-track-lost-found/internal/chat"
	"github.com/div-v/train-track-lost-found/internal/config"
	"github.com/div-v/train-track-lost-found/internal/detector"
	"github.com/div-v/train-track-lost-found/internal/feed"
	httpapi "github.com/div-v/train-track-lost-found/internal/http"
	"github.com/div-v/train-track-lost-found/internal/observability"
	"github.com/div-v/train-track-lost-found/internal/push"
	"github.com/div-v/train-track-lost-found/internal/repo"
	"github.com/div-v/train-track-lost-found/internal/services"
	"github.com/div-v/train-track-lost-found/internal/similarity"
	"github.com/div-v/train-track-lost-found/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Msg("starting lost & found worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			log.Error().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	scorers := similarity.NewClient(cfg.TextScorerURL, cfg.ImageScorerURL, cfg.ScorerTimeout, cfg.ScorerRPS, cfg.ScorerBurst)
	gate := similarity.NewGate(scorers, scorers)
	gate.TextThreshold = cfg.TextThreshold
	gate.ImageThreshold = cfg.ImageThreshold

	dispatcher := push.NewClient(cfg.PushGatewayURL, cfg.PushTimeout)

	matcher := &services.Matcher{
		DB:       db,
		Gate:     gate,
		Notifier: &services.MatchNotifier{DB: db, Push: dispatcher},
	}

	det := detector.New(db, matcher, cfg.PollInterval, cfg.BatchSize)
	go det.Run(ctx)

	dedup := &chat.Deduplicator{DB: db, Push: dispatcher}
	subscriber := feed.NewSubscriber(cfg.FeedURL, dedup.NewSession)
	go func() {
		if err := subscriber.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("feed subscriber exited")
		}
	}()

	server := httpapi.NewServer(cfg, db)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("ops server exited")
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("ops server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server shutdown failed")
	}
}
