package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NineNineAFK/verto/internal/cache"
	"github.com/NineNineAFK/verto/internal/config"
	"github.com/NineNineAFK/verto/internal/gateway"
	vertogrpc "github.com/NineNineAFK/verto/internal/grpc"
	h "github.com/NineNineAFK/verto/internal/http"
	"github.com/NineNineAFK/verto/internal/logging"
	"github.com/NineNineAFK/verto/internal/metrics"
	"github.com/NineNineAFK/verto/internal/publisher"
	"github.com/NineNineAFK/verto/internal/repository"
	"github.com/NineNineAFK/verto/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type settlementSink interface {
	service.SettlementPublisher
	Close() error
}

func main() {
	cfg := config.Load()

	logger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// Set up MongoDB connection
	ctx := context.Background()
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	logger.Info("connected to MongoDB", zap.String("database", cfg.MongoDBName))

	if err := repository.RunMigrations(mongoDB); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Shared gateway token cache; without Redis each instance keeps its own token
	var tokenCache cache.TokenCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, gateway tokens stay in process", zap.Error(err))
		} else {
			tokenCache = cache.NewRedisTokenCache(redisClient)
			logger.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		}
	}

	var events settlementSink = publisher.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		events = publisher.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...)
		logger.Info("publishing settlement events", zap.String("topic", cfg.KafkaTopic), zap.Strings("brokers", cfg.KafkaBrokers))
	}
	defer events.Close()

	m := metrics.New()

	gatewayClient := gateway.NewClient(gateway.Config{
		Env:           cfg.PhonePeEnv,
		ClientID:      cfg.PhonePeClientID,
		ClientSecret:  cfg.PhonePeClientSecret,
		ClientVersion: cfg.PhonePeClientVersion,
		Timeout:       cfg.GatewayTimeout,
	}, tokenCache, m)

	// Repositories
	uow := repository.NewMongoUnitOfWork(mongoDB)
	products := repository.NewMongoProductRepository(mongoDB)
	warehouses := repository.NewMongoWarehouseRepository(mongoDB)
	audits := repository.NewMongoAuditRepository(mongoDB)
	carts := repository.NewMongoCartRepository(mongoDB)
	users := repository.NewMongoUserRepository(mongoDB)
	orders := repository.NewMongoOrderRepository(mongoDB)

	// Services
	inventoryService := service.NewInventoryService(uow, products, warehouses, audits, m, cfg.AuditPageSize)
	warehouseService := service.NewWarehouseService(uow, warehouses, products, audits, m)
	cartService := service.NewCartService(uow, carts, users, products, cfg.LegacyCartFallback)
	paymentService := service.NewPaymentService(service.PaymentDeps{
		UnitOfWork:  uow,
		Orders:      orders,
		Products:    products,
		Carts:       carts,
		Users:       users,
		Audits:      audits,
		CartService: cartService,
		Gateway:     gatewayClient,
		Publisher:   events,
		Metrics:     m,
		RedirectURL: cfg.MerchantRedirectURL,
	})

	pingMongo := func(ctx context.Context) error {
		return mongoDB.Client().Ping(ctx, nil)
	}

	router := h.NewRouter(h.RouterConfig{
		Logger:         logger,
		Metrics:        m,
		RequestTimeout: cfg.RequestTimeout,
		ServiceName:    cfg.ServiceName,
		Ready: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pingMongo(ctx)
		},
	}, h.Handlers{
		Inventory: h.NewInventoryHandler(warehouseService, inventoryService, cfg.RequestTimeout),
		Cart:      h.NewCartHandler(cartService, cfg.RequestTimeout),
		Payment:   h.NewPaymentHandler(paymentService, cfg.ClientURL, cfg.RequestTimeout),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Health probe over gRPC
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCHealthPort))
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}
	healthServer := vertogrpc.NewServer(cfg.ServiceName, pingMongo)
	go func() {
		logger.Info("gRPC health server listening", zap.String("port", cfg.GRPCHealthPort))
		if err := healthServer.Serve(lis); err != nil {
			logger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	healthServer.GracefulStop()
	if err := mongoDB.Client().Disconnect(shutdownCtx); err != nil {
		logger.Error("failed to disconnect from MongoDB", zap.Error(err))
	}
	logger.Info("server exited")
}
