package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-settlement/internal/config"
	"ms-settlement/internal/database/migrations"
	"ms-settlement/internal/gateway"
	"ms-settlement/internal/gateway/card"
	"ms-settlement/internal/gateway/wallet"
	"ms-settlement/internal/kafka"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/pricing"
	"ms-settlement/internal/refund"
	"ms-settlement/internal/settlement"
	"ms-settlement/internal/settlement/db"
	"ms-settlement/internal/settlement/settlement_api"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Settlement Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, log)
		defer producer.Close()

		requiredTopics := []string{
			cfg.Kafka.Topics.PaymentCaptured,
			cfg.Kafka.Topics.PaymentFailed,
			cfg.Kafka.Topics.PaymentRefunded,
		}
		if !cfg.Kafka.MockMode {
			if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
				log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
			} else {
				log.Info("KAFKA", "Required topics ensured successfully")
			}
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, settlement events will not be published")
	}

	walletGateway := wallet.NewAdapter(cfg.Wallet, cfg.Pricing.Currency, wallet.NewRedisTokenCache(redisClient), log)

	cardGateway, err := card.NewAdapter(cfg.Card, cfg.Pricing.Currency, log)
	if err != nil {
		log.Fatal("GATEWAY", fmt.Sprintf("Card gateway initialization failed: %v", err))
	}

	gateways := map[string]gateway.PaymentGateway{
		models.GatewayWallet: walletGateway,
		models.GatewayCard:   cardGateway,
	}

	var publisher settlement.EventPublisher
	if producer != nil {
		publisher = producer
	}

	service := settlement.NewService(
		&db.DB{Bun: bunDB},
		gateways,
		publisher,
		pricing.NewEngine(cfg.Pricing),
		refund.DefaultPolicy(),
		cfg.Kafka.Topics,
		log,
	)

	handler := settlement_api.NewHandler(service, log)

	log.Info("HTTP", "Setting up router and middleware")
	router := settlement_api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Settlement Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	log.Info("APP", "Settlement Service stopped")
}
