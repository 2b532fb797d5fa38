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

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/chat"
	"github.com/fjod/go_cart/storefront/internal/config"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/messaging"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/poller"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/fjod/go_cart/storefront/pkg/logger"
)

func main() {
	cmd := &cli.Command{
		Name:   "storefront",
		Usage:  "wholesale cart and price calculator with chat order handoff",
		Flags:  config.Flags(),
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.FromCommand(cmd)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Options{Service: "storefront", Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	kv, closeKV, err := openCartStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeKV()

	repo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer repo.Close()
	if err := repo.RunMigrations(); err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	sender := chat.Sender{BaseURL: cfg.WhatsAppBaseURL, Recipient: cfg.WhatsAppPhone}

	var sink messaging.Sink = messaging.NewLogSink(log)
	if cfg.KafkaEnabled() {
		writer := messaging.NewKafkaWriter(cfg.KafkaBrokers...)
		kafkaSink := messaging.NewKafkaSink(writer, log)
		defer kafkaSink.Close()
		sink = kafkaSink
	}

	registry := cart.NewRegistry(cart.Options{
		Mirror:      store.NewCartMirror(kv),
		Sink:        sink,
		Sender:      sender,
		Metrics:     reg,
		Logger:      log,
		IdleTimeout: cfg.CartIdleTimeout,
	})
	go registry.RunEvictor(ctx, evictInterval(cfg.CartIdleTimeout))

	if cfg.KafkaEnabled() {
		p := poller.NewPoller(poller.NewKafkaReader(cfg.KafkaBrokers...), repo, registry, reg, log)
		defer p.Close()
		go p.Run(ctx)
		log.Info("add-item consumer started", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	router := h.NewRouter(h.RouterConfig{
		Products:       repo,
		Carts:          registry,
		Sender:         sender,
		Metrics:        reg,
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("storefront starting",
			zap.String("port", cfg.HTTPPort),
			zap.String("cart_backend", cfg.CartBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}

func evictInterval(idle time.Duration) time.Duration {
	if idle <= 0 {
		idle = cart.DefaultIdleTimeout
	}
	return min(idle/2, time.Minute)
}

func openCartStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.KV, func(), error) {
	switch cfg.CartBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store.NewRedisKV(client, cfg.CartTTL), func() { client.Close() }, nil

	case config.BackendPebble:
		kv, err := store.NewPebbleKV(cfg.PebbleDir)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() {
			if err := kv.Close(); err != nil {
				log.Error("failed to close pebble", zap.Error(err))
			}
		}, nil

	case config.BackendMongo:
		db, err := store.ConnectMongoDB(ctx, store.MongoOptions{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDBName,
			MaxPoolSize:    cfg.MongoMaxPool,
			MinPoolSize:    cfg.MongoMinPool,
			ConnectTimeout: 10 * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		kv := store.NewMongoKV(db)
		if err := kv.CreateIndexes(ctx); err != nil {
			return nil, nil, err
		}
		return kv, func() {
			if err := db.Client().Disconnect(context.Background()); err != nil {
				log.Error("failed to disconnect mongo", zap.Error(err))
			}
		}, nil

	default:
		return store.NewMemoryKV(), func() {}, nil
	}
}
