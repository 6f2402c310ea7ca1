package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
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

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the pollchain gateway server",
	Long:  `Start the pollchain gateway server with the specified configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := GetConfig()

		zapLogger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer func() {
			if err := zapLogger.Sync(); err != nil {
				zapLogger.Error("Failed to sync logger", zap.Error(err))
			}
		}()

		logger := logging.NewLogger(zapLogger)

		client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fmt.Errorf("dial chain rpc: %w", err)
		}
		defer client.Close()

		provider, err := buildProvider(ctx, cfg, zapLogger)
		if err != nil {
			return fmt.Errorf("create wallet provider: %w", err)
		}
		if provider != nil {
			defer func() {
				if err := provider.Close(); err != nil {
					logger.Error("Failed to close wallet provider", err)
				}
			}()
		}

		manager := wallet.NewManager(provider, zapLogger)
		defer manager.Close()

		contractAddr := common.HexToAddress(cfg.Chain.ContractAddress)
		gateway, err := contract.NewGateway(client, manager, contractAddr, zapLogger)
		if err != nil {
			return fmt.Errorf("create contract gateway: %w", err)
		}

		tracker, err := contract.NewTracker(client, contractAddr, cfg.Chain.EventTimeout, zapLogger)
		if err != nil {
			return fmt.Errorf("create event tracker: %w", err)
		}

		aggregate := cache.NewAggregate(gateway, zapLogger)

		backend, err := session.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, zapLogger)
		if err != nil {
			return fmt.Errorf("create backend client: %w", err)
		}

		binder := session.NewBinder(backend, manager, aggregate, zapLogger)

		redisClient, err := connectRedis(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("Failed to close Redis connection", err)
			}
		}()
		logger.Info("Successfully connected to Redis")

		publisher, err := events.NewRabbitMQPublisher(
			cfg.RabbitMQ.Host,
			cfg.RabbitMQ.Port,
			cfg.RabbitMQ.User,
			cfg.RabbitMQ.Password,
			cfg.RabbitMQ.VHost,
			zapLogger,
		)
		if err != nil {
			return fmt.Errorf("create RabbitMQ publisher: %w", err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("Failed to close RabbitMQ publisher", err)
			}
		}()

		svc := service.New(gateway, tracker, aggregate, publisher, manager, zapLogger)
		handler := api.NewHandler(svc, binder, backend, manager, redisClient, zapLogger)

		// Best effort: a cold start without a stored session is normal.
		startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if _, err := binder.EstablishSession(startupCtx); err != nil {
			logger.Info("No session restored at startup", zap.Error(err))
		}
		cancel()

		if cfg.Server.Env == "production" {
			gin.SetMode(gin.ReleaseMode)
		}

		engine := gin.New()
		engine.Use(gin.Recovery())
		engine.Use(logger.GinLogger())
		handler.RegisterRoutes(engine)

		server := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: engine,
		}

		go func() {
			logger.Info("Starting server",
				zap.Int("port", cfg.Server.Port),
			)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("Failed to start server", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", err)
			return fmt.Errorf("server shutdown: %w", err)
		}

		logger.Info("Server exited properly")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func buildProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (wallet.Provider, error) {
	switch cfg.Wallet.Mode {
	case config.WalletModeRemote:
		return wallet.DialRemoteProvider(ctx, cfg.Wallet.AgentURL, cfg.Chain.ChainID, cfg.Wallet.PollInterval, logger)
	case config.WalletModeKeystore:
		return wallet.NewKeystoreProvider(cfg.Wallet.PrivateKey, cfg.Chain.ChainID)
	default:
		return nil, fmt.Errorf("unknown wallet mode %q", cfg.Wallet.Mode)
	}
}

func connectRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
