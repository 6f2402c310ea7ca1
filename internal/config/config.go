package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type ChainConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	ContractAddress string        `mapstructure:"contract_address"`
	ChainID         int64         `mapstructure:"chain_id"`
	EventTimeout    time.Duration `mapstructure:"event_timeout"`
}

// WalletConfig selects the signer-acquisition strategy. The two modes are
// mutually exclusive: "remote" talks to an external signing agent over
// JSON-RPC, "keystore" signs with a locally held private key.
type WalletConfig struct {
	Mode         string        `mapstructure:"mode"`
	AgentURL     string        `mapstructure:"agent_url"`
	PrivateKey   string        `mapstructure:"private_key"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RabbitMQConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
}

const (
	WalletModeRemote   = "remote"
	WalletModeKeystore = "keystore"
)

func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.env", "development")
	v.SetDefault("chain.event_timeout", 30*time.Second)
	v.SetDefault("wallet.mode", WalletModeRemote)
	v.SetDefault("wallet.poll_interval", 2*time.Second)
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.vhost", "/")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := bindEnvs(v); err != nil {
		return nil, fmt.Errorf("bind env vars: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func bindEnvs(v *viper.Viper) error {
	bindings := map[string]string{
		"server.port":            "POLLCHAIN_SERVER_PORT",
		"server.env":             "POLLCHAIN_SERVER_ENV",
		"chain.rpc_url":          "POLLCHAIN_CHAIN_RPC_URL",
		"chain.contract_address": "POLLCHAIN_CHAIN_CONTRACT_ADDRESS",
		"chain.chain_id":         "POLLCHAIN_CHAIN_ID",
		"chain.event_timeout":    "POLLCHAIN_CHAIN_EVENT_TIMEOUT",
		"wallet.mode":            "POLLCHAIN_WALLET_MODE",
		"wallet.agent_url":       "POLLCHAIN_WALLET_AGENT_URL",
		"wallet.private_key":     "POLLCHAIN_WALLET_PRIVATE_KEY",
		"wallet.poll_interval":   "POLLCHAIN_WALLET_POLL_INTERVAL",
		"backend.base_url":       "POLLCHAIN_BACKEND_BASE_URL",
		"backend.timeout":        "POLLCHAIN_BACKEND_TIMEOUT",
		"redis.host":             "POLLCHAIN_REDIS_HOST",
		"redis.port":             "POLLCHAIN_REDIS_PORT",
		"redis.password":         "POLLCHAIN_REDIS_PASSWORD",
		"redis.db":               "POLLCHAIN_REDIS_DB",
		"rabbitmq.host":          "POLLCHAIN_RABBITMQ_HOST",
		"rabbitmq.port":          "POLLCHAIN_RABBITMQ_PORT",
		"rabbitmq.user":          "POLLCHAIN_RABBITMQ_USER",
		"rabbitmq.password":      "POLLCHAIN_RABBITMQ_PASSWORD",
		"rabbitmq.vhost":         "POLLCHAIN_RABBITMQ_VHOST",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 {
		return fmt.Errorf("server.port must be greater than 0")
	}
	if cfg.Server.Env == "" {
		return fmt.Errorf("server.env is required")
	}

	if cfg.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if cfg.Chain.ContractAddress == "" {
		return fmt.Errorf("chain.contract_address is required")
	}
	if cfg.Chain.ChainID <= 0 {
		return fmt.Errorf("chain.chain_id must be greater than 0")
	}
	if cfg.Chain.EventTimeout <= 0 {
		return fmt.Errorf("chain.event_timeout must be greater than 0")
	}

	switch cfg.Wallet.Mode {
	case WalletModeRemote:
		if cfg.Wallet.AgentURL == "" {
			return fmt.Errorf("wallet.agent_url is required in remote mode")
		}
	case WalletModeKeystore:
		if cfg.Wallet.PrivateKey == "" {
			return fmt.Errorf("wallet.private_key is required in keystore mode")
		}
	default:
		return fmt.Errorf("wallet.mode must be %q or %q", WalletModeRemote, WalletModeKeystore)
	}

	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}

	if cfg.Redis.Host == "" {
		return fmt.Errorf("redis.host is required")
	}
	if cfg.Redis.Port <= 0 {
		return fmt.Errorf("redis.port must be greater than 0")
	}

	if cfg.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq.host is required")
	}
	if cfg.RabbitMQ.Port <= 0 {
		return fmt.Errorf("rabbitmq.port must be greater than 0")
	}
	if cfg.RabbitMQ.User == "" {
		return fmt.Errorf("rabbitmq.user is required")
	}

	return nil
}
