package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/pollchain/pollchain-go/internal/api"
	"github.com/pollchain/pollchain-go/internal/cache"
	"github.com/pollchain/pollchain-go/internal/config"
	"github.com/pollchain/pollchain-go/internal/contract"
	"github.com/pollchain/pollchain-go/internal/events"
	"github.com/pollchain/pollchain-go/internal/logging"
	"github.com/pollchain/pollchain-go/internal/service"
	"github.com/pollchain/pollchain-go/internal/session"
	"github.com/pollchain/pollchain-go/internal/wallet"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		logger.Fatal("Failed to dial chain RPC", zap.Error(err))
	}
	defer client.Close()

	var provider wallet.Provider
	switch cfg.Wallet.Mode {
	case config.WalletModeRemote:
		provider, err = wallet.DialRemoteProvider(ctx, cfg.Wallet.AgentURL, cfg.Chain.ChainID, cfg.Wallet.PollInterval, logger)
	case config.WalletModeKeystore:
		provider, err = wallet.NewKeystoreProvider(cfg.Wallet.PrivateKey, cfg.Chain.ChainID)
	default:
		logger.Fatal("Unknown wallet mode", zap.String("mode", cfg.Wallet.Mode))
	}
	if err != nil {
		logger.Fatal("Failed to create wallet provider", zap.Error(err))
	}
	defer provider.Close()

	manager := wallet.NewManager(provider, logger)
	defer manager.Close()

	contractAddr := common.HexToAddress(cfg.Chain.ContractAddress)
	gateway, err := contract.NewGateway(client, manager, contractAddr, logger)
	if err != nil {
		logger.Fatal("Failed to create contract gateway", zap.Error(err))
	}

	tracker, err := contract.NewTracker(client, contractAddr, cfg.Chain.EventTimeout, logger)
	if err != nil {
		logger.Fatal("Failed to create event tracker", zap.Error(err))
	}

	aggregate := cache.NewAggregate(gateway, logger)

	backend, err := session.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)
	if err != nil {
		logger.Fatal("Failed to create backend client", zap.Error(err))
	}

	binder := session.NewBinder(backend, manager, aggregate, logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	publisher, err := events.NewRabbitMQPublisher(
		cfg.RabbitMQ.Host,
		cfg.RabbitMQ.Port,
		cfg.RabbitMQ.User,
		cfg.RabbitMQ.Password,
		cfg.RabbitMQ.VHost,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to create RabbitMQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	svc := service.New(gateway, tracker, aggregate, publisher, manager, logger)
	handler := api.NewHandler(svc, binder, backend, manager, rdb, logger)

	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if _, err := binder.EstablishSession(startupCtx); err != nil {
		logger.Info("No session restored at startup", zap.Error(err))
	}
	cancel()

	wrapped := logging.NewLogger(logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(wrapped.GinLogger())

	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
