package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/config"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/poller"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer l.Sync()

	if err := run(cfg, l); err != nil {
		l.Fatal("storefront stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, l *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	m := metrics.New()

	registryOpts := []session.RegistryOption{
		session.WithLogger(l),
		session.WithSessionGauge(m.ActiveSessions),
		session.WithStoreOptions(session.WithPolicy(cfg.Pricing)),
		session.WithOnOpen(func(s *session.Store) {
			s.Subscribe(session.ObserverFunc(func(ev session.Event) {
				m.CartMutation(string(ev.Kind))
			}))
		}),
	}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		l.Info("Redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		registryOpts = append(registryOpts, session.WithSessionCache(cache.NewRedisCache(redisClient, cfg.SessionTTL)))
	}

	registry := session.NewRegistry(cfg.SessionTTL, registryOpts...)
	defer registry.Close()

	checkoutOpts := []checkout.Option{
		checkout.WithLogger(l),
		checkout.WithMetrics(m),
		checkout.WithCurrency(cfg.Currency),
		checkout.WithOrigin(cfg.InstanceID),
	}
	if len(cfg.KafkaBrokers) > 0 {
		pub := publisher.NewKafkaPublisher(cfg.CheckoutTopic, l, cfg.KafkaBrokers...)
		defer pub.Close()
		checkoutOpts = append(checkoutOpts, checkout.WithPublisher(pub))

		p := poller.NewPoller(registry, cfg.InstanceID, cfg.CheckoutTopic,
			"storefront-"+cfg.InstanceID, l, cfg.KafkaBrokers...)
		defer p.Close()
		go p.Run(ctx)
		l.Info("checkout events enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.CheckoutTopic))
	}
	checkouts := checkout.NewService(checkoutOpts...)

	catalogClient, err := catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogTimeout,
		catalog.WithLogger(l),
		catalog.WithMetrics(m))
	if err != nil {
		return err
	}

	router := h.NewRouter(h.RouterConfig{
		Cart:           h.NewCartHandler(registry, catalogClient, cfg.RequestTimeout, l),
		Products:       h.NewProductHandler(catalogClient, cfg.RequestTimeout, l),
		Checkout:       h.NewCheckoutHandler(registry, checkouts, cfg.RequestTimeout, l),
		Metrics:        m.Handler(),
		Log:            l,
		RequestTimeout: cfg.RequestTimeout,
		SessionTTL:     cfg.SessionTTL,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// gRPC only serves health checks and reflection for probes
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	errCh := make(chan error, 2)
	go func() {
		l.Info("Storefront HTTP listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		l.Info("Storefront gRPC health listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	stop()

	l.Info("shutting down storefront...")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	l.Info("storefront stopped")
	return runErr
}
