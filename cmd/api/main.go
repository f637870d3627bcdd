package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/inventory-sync/api/controllers"
	"github.com/angelmondragon/inventory-sync/api/routes"
	"github.com/angelmondragon/inventory-sync/internal/alerts"
	"github.com/angelmondragon/inventory-sync/internal/automation"
	"github.com/angelmondragon/inventory-sync/internal/channel"
	"github.com/angelmondragon/inventory-sync/internal/dispatch"
	"github.com/angelmondragon/inventory-sync/internal/inventory"
	"github.com/angelmondragon/inventory-sync/internal/ledger"
	"github.com/angelmondragon/inventory-sync/internal/reservations"
	channelwebhook "github.com/angelmondragon/inventory-sync/internal/webhooks/channel"
	channelapi "github.com/angelmondragon/inventory-sync/pkg/channel"
	"github.com/angelmondragon/inventory-sync/pkg/config"
	"github.com/angelmondragon/inventory-sync/pkg/db"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
	"github.com/angelmondragon/inventory-sync/pkg/metrics"
	"github.com/angelmondragon/inventory-sync/pkg/migrate"
	"github.com/angelmondragon/inventory-sync/pkg/pubsub"
	"github.com/angelmondragon/inventory-sync/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

// topicPinger checks the automation topic for readiness.
type topicPinger struct {
	client *pubsub.Client
	topic  string
}

func (p topicPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx, p.topic)
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	readiness := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
	}

	var publishers automation.PublisherSource
	if strings.EqualFold(cfg.Automation.Driver, config.AutomationDriverPubSub) {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, []string{cfg.Automation.Topic}, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		publishers = psClient
		readiness["pubsub"] = topicPinger{client: psClient, topic: cfg.Automation.Topic}
	}

	sink, err := automation.NewSink(cfg.Automation, publishers, logg)
	if err != nil {
		logg.Error(ctx, "failed to create automation sink", err)
		os.Exit(1)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logg.Error(context.Background(), "error closing automation sink", err)
		}
	}()

	registry := prometheus.DefaultRegisterer
	pool, err := dispatch.NewPool(
		dispatch.OptionsFromConfig(cfg.Dispatch),
		dispatch.NewDeadLetterRepository(dbClient.DB()),
		logg,
		metrics.NewDispatchMetrics(registry),
	)
	if err != nil {
		logg.Error(ctx, "failed to create dispatch pool", err)
		os.Exit(1)
	}
	pool.Start()

	inventoryDeps := inventory.Deps{
		Repo:       ledger.NewRepository(dbClient.DB()),
		Tx:         dbClient,
		Dispatcher: pool,
		Sink:       sink,
		Cache:      redisClient,
		Logger:     logg,
		Metrics:    metrics.NewLedgerMetrics(registry),
	}
	if cfg.Channel.PushEnabled() {
		client, err := channelapi.NewClient(cfg.Channel, logg)
		if err != nil {
			logg.Error(ctx, "failed to create channel client", err)
			os.Exit(1)
		}
		pusher, err := channel.NewPusher(client, cfg.Channel.DefaultLocationID, logg)
		if err != nil {
			logg.Error(ctx, "failed to create channel pusher", err)
			os.Exit(1)
		}
		inventoryDeps.Pusher = pusher
	} else {
		logg.Warn(ctx, "channel push disabled: no api base url configured")
	}
	if cfg.Cache.RevalidateURL != "" {
		revalidator, err := inventory.NewHTTPRevalidator(cfg.Cache.RevalidateURL, cfg.Channel.RequestTimeout)
		if err != nil {
			logg.Error(ctx, "failed to create cache revalidator", err)
			os.Exit(1)
		}
		inventoryDeps.Revalidator = revalidator
	}

	inventoryService, err := inventory.NewService(inventoryDeps, inventory.Options{
		Thresholds: alerts.Thresholds{
			LowStock: cfg.Alerts.LowStockThreshold,
			Restock:  cfg.Alerts.RestockThreshold,
		},
		WatchThreshold: cfg.Alerts.WatchThreshold,
		CacheTTL:       cfg.Cache.ItemTTL,
	})
	if err != nil {
		logg.Error(ctx, "failed to create inventory service", err)
		os.Exit(1)
	}

	reservationService, err := reservations.NewService(
		reservations.NewRepository(dbClient.DB()),
		inventoryDeps.Repo,
		cfg.Reservation.TTL,
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create reservations service", err)
		os.Exit(1)
	}

	guard, err := channelwebhook.NewDeliveryGuard(redisClient, cfg.Webhook.DedupeTTL)
	if err != nil {
		logg.Error(ctx, "failed to create webhook delivery guard", err)
		os.Exit(1)
	}
	webhookService, err := channelwebhook.NewService(channelwebhook.ServiceParams{
		Secret:     cfg.Channel.WebhookSecret,
		Encoding:   cfg.Channel.SignatureEncoding,
		Repo:       channelwebhook.NewRepository(dbClient.DB()),
		Inventory:  inventoryService,
		Dispatcher: pool,
		Sink:       sink,
		Guard:      guard,
		Logger:     logg,
		Metrics:    metrics.NewWebhookMetrics(registry),
	})
	if err != nil {
		logg.Error(ctx, "failed to create channel webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			Inventory:        inventoryService,
			Reservations:     reservationService,
			ChannelWebhooks:  webhookService,
			IdempotencyStore: redisClient,
			Readiness:        readiness,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(groupCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "http server shutdown failed", err)
		}
		// in-flight pushes and alerts drain before the stores close
		return pool.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
