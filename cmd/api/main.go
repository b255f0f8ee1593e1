package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dejobratic/orderflow/internal/clients/cart"
	"github.com/dejobratic/orderflow/internal/clients/catalog"
	"github.com/dejobratic/orderflow/internal/clients/httpclient"
	"github.com/dejobratic/orderflow/internal/clients/identity"
	"github.com/dejobratic/orderflow/internal/clients/notifier"
	"github.com/dejobratic/orderflow/internal/config"
	"github.com/dejobratic/orderflow/internal/database"
	"github.com/dejobratic/orderflow/internal/discovery"
	idemmemory "github.com/dejobratic/orderflow/internal/idempotency/memory"
	idempostgres "github.com/dejobratic/orderflow/internal/idempotency/postgres"
	idemredis "github.com/dejobratic/orderflow/internal/idempotency/redis"
	"github.com/dejobratic/orderflow/internal/kafka"
	"github.com/dejobratic/orderflow/internal/orders/adapters"
	httpadapter "github.com/dejobratic/orderflow/internal/orders/adapters/http"
	orderspostgres "github.com/dejobratic/orderflow/internal/orders/adapters/postgres"
	ordersapp "github.com/dejobratic/orderflow/internal/orders/app"
	"github.com/dejobratic/orderflow/internal/orders/app/commands"
	"github.com/dejobratic/orderflow/internal/orders/app/followup"
	ordersmetrics "github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(telemetry.ParseLevel(cfg.Telemetry.LogLevel))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	meter := tel.Meter(cfg.Service.Name)

	var closers []namedCloser
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].close(); err != nil {
				logger.Error("failed to close dependency", "dependency", closers[i].name, "error", err)
			}
		}
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down telemetry", "error", err)
		}
	}()

	pool, err := database.NewPool(ctx, cfg.Database.URL, database.WithMaxConns(int32(cfg.Database.MaxConns)))
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	closers = append(closers, namedCloser{"postgres", func() error { pool.Close(); return nil }})

	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
		version, err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath)
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("migrations completed successfully", "schema_version", version)
	}

	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return err
	}
	repo := adapters.NewObservableRepository(orderspostgres.NewRepository(pool), dbMetrics)

	eventBus, err := newEventBus(cfg, meter, logger, &closers)
	if err != nil {
		return err
	}

	idemStore, err := newIdempotencyStore(ctx, cfg, pool, logger, &closers)
	if err != nil {
		return err
	}

	remote, err := newCollaborators(cfg, meter, &closers)
	if err != nil {
		return err
	}

	ordersMetrics, err := ordersmetrics.NewMetrics(meter)
	if err != nil {
		return err
	}

	dispatcher := followup.NewDispatcher(logger,
		followup.WithTimeout(cfg.Orders.FollowUpTimeout),
		followup.WithFailureRecorder(ordersMetrics),
	)

	service := ordersapp.NewService(repo, eventBus, idemStore, remote, dispatcher, logger, ordersMetrics,
		commands.WithMinDeliveryLead(cfg.Orders.MinDeliveryLead),
	)

	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return err
	}
	router := httpadapter.NewRouter(httpadapter.NewHandler(service, logger), httpMetrics, logger)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.CheckHealth(r.Context(), pool); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           httpadapter.WithTracing(router, cfg.Service.Name),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("http server stopped")
	}

	// Follow-ups outlive their requests; let in-flight ones finish before closing their dependencies.
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("abandoned in-flight follow-up tasks", "error", err)
	}

	return nil
}

type namedCloser struct {
	name  string
	close func() error
}

func newEventBus(cfg *config.Config, meter metric.Meter, logger *slog.Logger, closers *[]namedCloser) (ports.EventBus, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("no kafka brokers configured, order events will only be logged")
		return adapters.NewObservableEventBus(kafka.NewNoopEventBus()), nil
	}

	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		return nil, err
	}
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, kafkaMetrics)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	*closers = append(*closers, namedCloser{"kafka", producer.Close})

	return adapters.NewObservableEventBus(producer), nil
}

func newIdempotencyStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger, closers *[]namedCloser) (ports.IdempotencyStore, error) {
	switch cfg.Idempotency.Backend {
	case config.IdempotencyRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		*closers = append(*closers, namedCloser{"redis", client.Close})
		return idemredis.NewStore(client, cfg.Idempotency.TTL), nil
	case config.IdempotencyMemory:
		return idemmemory.NewStore(), nil
	default:
		store := idempostgres.NewStore(pool, cfg.Idempotency.TTL)
		go purgeExpiredKeys(ctx, store, cfg.Idempotency.TTL/4, logger)
		return store, nil
	}
}

func purgeExpiredKeys(ctx context.Context, store *idempostgres.Store, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Purge(ctx)
			if err != nil {
				logger.WarnContext(ctx, "failed to purge idempotency keys", "error", err)
				continue
			}
			logger.DebugContext(ctx, "purged idempotency keys", "removed", removed)
		}
	}
}

func newCollaborators(cfg *config.Config, meter metric.Meter, closers *[]namedCloser) (commands.Collaborators, error) {
	collab := cfg.Collaborators

	var resolver discovery.Resolver = discovery.Static{
		identity.ServiceName: collab.IdentityURL,
		catalog.ServiceName:  collab.CatalogURL,
		cart.ServiceName:     collab.CartURL,
		notifier.ServiceName: collab.NotifierURL,
	}
	if collab.ConsulAddr != "" {
		consul, err := discovery.NewConsul(collab.ConsulAddr)
		if err != nil {
			return commands.Collaborators{}, err
		}
		resolver = consul
	}

	clientMetrics, err := httpclient.NewMetrics(meter)
	if err != nil {
		return commands.Collaborators{}, err
	}
	clientCfg := httpclient.Config{Timeout: collab.Timeout, MaxRetries: collab.MaxRetries}
	newClient := func(service string) *httpclient.Client {
		return httpclient.New(service, resolver, clientCfg, clientMetrics)
	}

	var sender ports.Notifier
	switch collab.NotifierTransport {
	case config.NotifierAMQP:
		amqpNotifier, err := notifier.DialAMQP(cfg.RabbitMQ.URL)
		if err != nil {
			return commands.Collaborators{}, err
		}
		*closers = append(*closers, namedCloser{"rabbitmq", amqpNotifier.Close})
		sender = amqpNotifier
	default:
		sender = notifier.NewHTTP(newClient(notifier.ServiceName))
	}

	return commands.Collaborators{
		Identity: identity.New(newClient(identity.ServiceName)),
		Catalog:  catalog.New(newClient(catalog.ServiceName)),
		Cart:     cart.New(newClient(cart.ServiceName)),
		Notifier: sender,
	}, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
