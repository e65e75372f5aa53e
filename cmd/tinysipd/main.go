package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tinysip/internal/callmap"
	"tinysip/internal/config"
	"tinysip/internal/dialog"
	"tinysip/internal/location"
	"tinysip/internal/server"
	"tinysip/internal/status"
	"tinysip/internal/transport"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(level).
		With().Timestamp().Logger()

	calls := callmap.New()
	locations := location.NewTable(cfg.ServerHost)

	metrics := status.NewMetrics(prometheus.DefaultRegisterer, calls)
	sender := transport.Sender{}
	engine := dialog.New(calls, locations, sender, metrics, cfg.ServerHost, cfg.ServerPort, log)

	statusServer, err := status.NewServer(calls, locations, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build status server")
	}

	srv := server.New(cfg.Addr, cfg.Workers, cfg.QueueCapacity, &location.Registrar{Table: locations}, engine, metrics, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.StatusAddr).Msg("starting status server")
		if err := statusServer.Run(cfg.StatusAddr); err != nil {
			log.Warn().Err(err).Msg("status server stopped")
			return err
		}
		return nil
	})

	g.Go(func() error {
		return srv.Run(gCtx)
	})

	log.Info().Msg("tinysip started, press Ctrl+C to stop")

	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("tinysip shut down with error")
	} else {
		log.Info().Msg("tinysip shut down cleanly")
	}
}
