package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"bricktok/internal/api"
	"bricktok/internal/config"
	"bricktok/internal/engine"
	"bricktok/internal/feed"
	"bricktok/internal/logging"
	"bricktok/internal/metrics"
	"bricktok/internal/net"
	"bricktok/internal/random"
	"bricktok/internal/utils"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

func main() {
	cfg, err := config.Load()
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to load config")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	reg := metrics.Init(logger)

	// Setup the session, its feed and the surfaces that read from it.
	asset := cfg.Asset()
	eng := engine.New(asset,
		engine.WithSource(random.New(cfg.Feed.Seed)),
		engine.WithSeedLevels(cfg.Book.SeedLevels),
		engine.WithTapeCapacity(cfg.Tape.Capacity),
		engine.WithDepthLevels(cfg.Book.DepthLevels),
	)
	hub := api.NewHub(cfg.Book.LadderRows)
	srv := api.NewServer(eng, hub, api.Options{
		LadderRows:     cfg.Book.LadderRows,
		DepthLevels:    cfg.Book.DepthLevels,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Registry:       reg,
	})
	reporters := engine.Reporters{hub}

	var gateway *net.Server
	if cfg.Gateway.Enabled {
		gateway = net.New(cfg.Gateway.Address, cfg.Gateway.Port, uint(cfg.Gateway.Workers), eng)
		reporters = append(reporters, gateway)
	}
	eng.SetReporter(reporters)

	gen := feed.New(eng, cfg.Feed.TickInterval, cfg.Feed.TradeProbability, utils.RealClock{})

	t, ctx := tomb.WithContext(ctx)
	t.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	t.Go(func() error {
		return srv.Run(ctx, cfg.Server.HTTPAddr)
	})
	if gateway != nil {
		t.Go(func() error {
			return gateway.Run(ctx)
		})
	}
	if cfg.Feed.Enabled {
		if err := gen.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("unable to start feed")
		}
	}

	srv.SetReady(true)
	log.Info().
		Str("symbol", asset.Symbol).
		Str("reference_price", asset.ReferencePrice.String()).
		Msg("market open")

	// Block until a signal or a component failure.
	<-t.Dying()
	if err := gen.Stop(); err != nil {
		log.Error().Err(err).Msg("feed stop failed")
	}
	stop()
	if err := t.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
		os.Exit(1)
	}
	log.Info().Msg("market closed")
}
