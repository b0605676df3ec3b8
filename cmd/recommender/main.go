// v1
// cmd/recommender/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"nrgchamp/recommender/internal/activity"
	"nrgchamp/recommender/internal/bands"
	"nrgchamp/recommender/internal/config"
	"nrgchamp/recommender/internal/engine"
	"nrgchamp/recommender/internal/httpapi"
	"nrgchamp/recommender/internal/ingest"
	"nrgchamp/recommender/internal/learning"
	"nrgchamp/recommender/internal/logging"
	"nrgchamp/recommender/internal/persist"
	"nrgchamp/recommender/internal/rooms"
)

func main() {
	logger, logFile := logging.Init()
	defer logFile.Close()

	cfg, err := config.LoadEnvAndFiles()
	if err != nil {
		logger.Error("config_load_failed", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("service_boot",
		slog.String("http_bind", cfg.HTTPBind),
		slog.String("kafka_brokers", strings.Join(cfg.KafkaBrokers, ",")),
		slog.String("interaction_topic", cfg.InteractionTopic),
		slog.String("snapshot_path", cfg.SnapshotPath),
		slog.String("window_duration", cfg.WindowDuration.String()),
		slog.Bool("activity_enabled", cfg.ActivityEnabled),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("service_terminated", slog.Any("err", err))
		os.Exit(1)
	}
	logger.Info("service_stopped")
}

func run(cfg *config.AppConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params, err := learning.NewParams(cfg.Learning)
	if err != nil {
		return err
	}
	store, err := learning.NewStore(params, logger)
	if err != nil {
		return err
	}

	gateway, err := persist.New(persist.Config{Path: cfg.SnapshotPath}, logger)
	if err != nil {
		return err
	}

	publisher, err := activity.NewPublisher(activity.Config{
		Enabled: cfg.ActivityEnabled,
		Topic:   cfg.ActivityTopic,
		Brokers: cfg.KafkaBrokers,
	}, logger)
	if err != nil {
		return err
	}

	roomProvider := rooms.New(rooms.Config{
		BaseURL:  cfg.RoomServiceURL,
		CacheTTL: cfg.RoomCacheTTL,
	}, logger)

	disc := bands.NewDiscretizer(cfg.OutdoorBands, cfg.TargetBands)

	eng, err := engine.New(engine.Config{WindowDuration: cfg.WindowDuration}, store, disc, gateway, publisher, roomProvider, logger)
	if err != nil {
		return err
	}

	server, err := httpapi.NewServer(httpapi.Config{Bind: cfg.HTTPBind}, eng, logger)
	if err != nil {
		return err
	}

	if err := gateway.Start(ctx); err != nil {
		return err
	}
	if err := publisher.Start(ctx); err != nil {
		return err
	}
	eng.Initialize(ctx)
	server.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if len(cfg.KafkaBrokers) > 0 {
		consumer, err := ingest.NewConsumer(ingest.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.InteractionTopic,
			GroupID: cfg.ConsumerGroup,
		}, eng, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer consumer.Close()
			err := consumer.Run(gctx)
			if errors.Is(err, context.Canceled) || gctx.Err() != nil {
				return nil
			}
			return err
		})
	} else {
		logger.Info("ingest_disabled_no_brokers")
	}

	err = g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if perr := publisher.Stop(drainCtx); perr != nil {
		logger.Error("activity_stop_failed", slog.Any("err", perr))
	}
	if gerr := gateway.Stop(drainCtx); gerr != nil {
		logger.Error("gateway_stop_failed", slog.Any("err", gerr))
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
