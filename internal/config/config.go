// Package config handles loading and validating configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"solana-swap-feed/internal/classifier"
	"solana-swap-feed/internal/solana"
)

// HeliusConfig holds chain data provider settings.
type HeliusConfig struct {
	APIKey     string `yaml:"api_key"`
	RPCURL     string `yaml:"rpc_url"`
	AuthHeader string `yaml:"auth_header"`
	RPCRetries int    `yaml:"rpc_retries"`
}

// TokenConfig identifies the tracked token.
type TokenConfig struct {
	MintAddress string  `yaml:"mint_address"`
	TotalSupply float64 `yaml:"total_supply"`
}

// SwapConfig controls classification and publishing.
type SwapConfig struct {
	SignificanceThresholdSOL float64 `yaml:"significance_threshold_sol"`
	SolAmountMode            string  `yaml:"sol_amount_mode"`
	StrictAddresses          bool    `yaml:"strict_addresses"`
	DedupCapacity            int     `yaml:"dedup_capacity"`
	FanoutQueueSize          int     `yaml:"fanout_queue_size"`
}

// PriceConfig controls the SOL/USD refresher.
type PriceConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	CoinGeckoURL    string        `yaml:"coingecko_url"`
	CoinGeckoAPIKey string        `yaml:"coingecko_api_key"`
}

// HoldersConfig controls the holder count cache.
type HoldersConfig struct {
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	StaleLimit time.Duration `yaml:"stale_limit"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Addr               string        `yaml:"addr"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig enables the Redis pub/sub sink when Addr is set.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// KafkaConfig enables the Kafka sink when Brokers is set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// BitqueryConfig enables the market cap endpoint when APIKey is set.
type BitqueryConfig struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
}

// Config aggregates all configuration.
type Config struct {
	Helius   HeliusConfig   `yaml:"helius"`
	Token    TokenConfig    `yaml:"token"`
	Swaps    SwapConfig     `yaml:"swaps"`
	Price    PriceConfig    `yaml:"price"`
	Holders  HoldersConfig  `yaml:"holders"`
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Bitquery BitqueryConfig `yaml:"bitquery"`
}

// Load builds configuration with priority: environment > .env file > YAML file > defaults.
// An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: unable to parse %s: %w", path, err)
		}
	}

	// Missing .env is fine; real environment variables are never overwritten.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns baseline configuration values.
func Default() Config {
	return Config{
		Helius: HeliusConfig{
			RPCRetries: 0,
		},
		Token: TokenConfig{
			TotalSupply: 1_000_000_000,
		},
		Swaps: SwapConfig{
			SignificanceThresholdSOL: 0.1,
			SolAmountMode:            string(classifier.AmountModeFiltered),
			DedupCapacity:            100_000,
			FanoutQueueSize:          1024,
		},
		Price: PriceConfig{
			RefreshInterval: 60 * time.Second,
			CoinGeckoURL:    "https://api.coingecko.com/api/v3",
		},
		Holders: HoldersConfig{
			CacheTTL:   10 * time.Minute,
			StaleLimit: time.Hour,
		},
		Server: ServerConfig{
			Addr:            ":3000",
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Channel: "swaps:live",
		},
		Kafka: KafkaConfig{
			Topic: "swaps",
		},
		Bitquery: BitqueryConfig{
			Endpoint: "https://graphql.bitquery.io/",
		},
	}
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Helius.RPCURL == "" && c.Helius.APIKey != "" {
		c.Helius.RPCURL = "https://mainnet.helius-rpc.com/?api-key=" + c.Helius.APIKey
	}
	if c.Token.TotalSupply <= 0 {
		c.Token.TotalSupply = def.Token.TotalSupply
	}
	if c.Swaps.SolAmountMode == "" {
		c.Swaps.SolAmountMode = def.Swaps.SolAmountMode
	}
	if c.Swaps.FanoutQueueSize <= 0 {
		c.Swaps.FanoutQueueSize = def.Swaps.FanoutQueueSize
	}
	if c.Price.RefreshInterval <= 0 {
		c.Price.RefreshInterval = def.Price.RefreshInterval
	}
	if c.Price.CoinGeckoURL == "" {
		c.Price.CoinGeckoURL = def.Price.CoinGeckoURL
	}
	if c.Holders.CacheTTL <= 0 {
		c.Holders.CacheTTL = def.Holders.CacheTTL
	}
	if c.Holders.StaleLimit < c.Holders.CacheTTL {
		c.Holders.StaleLimit = c.Holders.CacheTTL
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = def.Redis.Channel
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = def.Kafka.Topic
	}
	if c.Bitquery.Endpoint == "" {
		c.Bitquery.Endpoint = def.Bitquery.Endpoint
	}
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Token.MintAddress == "" {
		errs = append(errs, errors.New("TOKEN_MINT_ADDRESS is required"))
	} else if err := solana.ValidateAddress(c.Token.MintAddress); err != nil {
		errs = append(errs, fmt.Errorf("TOKEN_MINT_ADDRESS: %w", err))
	}

	if c.Helius.AuthHeader == "" {
		errs = append(errs, errors.New("HELIUS_AUTH_HEADER is required"))
	}
	if c.Helius.RPCURL == "" {
		errs = append(errs, errors.New("HELIUS_API_KEY or HELIUS_RPC_URL is required"))
	}
	if c.Helius.RPCRetries < 0 {
		errs = append(errs, errors.New("rpc retries must be >= 0"))
	}

	if c.Swaps.SignificanceThresholdSOL < 0 {
		errs = append(errs, errors.New("SIGNIFICANCE_THRESHOLD_SOL must be >= 0"))
	}
	if _, err := classifier.ParseAmountMode(c.Swaps.SolAmountMode); err != nil {
		errs = append(errs, fmt.Errorf("SOL_AMOUNT_MODE: %w", err))
	}
	if c.Swaps.DedupCapacity < 0 {
		errs = append(errs, errors.New("DEDUP_CAPACITY must be >= 0"))
	}

	if c.Kafka.Topic == "" && len(c.Kafka.Brokers) > 0 {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}

	return errors.Join(errs...)
}

// MaskedAPIKey returns the Helius API key with most characters hidden for logging.
func (c *Config) MaskedAPIKey() string {
	return maskSecret(c.Helius.APIKey)
}

// RedactedRPCURL returns the RPC URL with the api-key query value masked.
func (c *Config) RedactedRPCURL() string {
	if c.Helius.APIKey == "" {
		return c.Helius.RPCURL
	}
	return strings.ReplaceAll(c.Helius.RPCURL, c.Helius.APIKey, c.MaskedAPIKey())
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
