package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMint = "So11111111111111111111111111111111111111112"

var envKeys = []string{
	"HELIUS_API_KEY", "HELIUS_RPC_URL", "HELIUS_AUTH_HEADER", "HELIUS_RPC_RETRIES",
	"TOKEN_MINT_ADDRESS", "TOKEN_TOTAL_SUPPLY",
	"SIGNIFICANCE_THRESHOLD_SOL", "SOL_AMOUNT_MODE", "STRICT_ADDRESSES", "DEDUP_CAPACITY", "FANOUT_QUEUE_SIZE",
	"PRICE_REFRESH_INTERVAL", "COINGECKO_URL", "COINGECKO_API_KEY",
	"HOLDER_CACHE_TTL", "HOLDER_STALE_LIMIT",
	"HTTP_ADDR", "CORS_ALLOWED_ORIGINS", "SHUTDOWN_TIMEOUT",
	"REDIS_ADDR", "REDIS_CHANNEL", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"BITQUERY_API_KEY", "BITQUERY_ENDPOINT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.1, cfg.Swaps.SignificanceThresholdSOL)
	assert.Equal(t, "filtered", cfg.Swaps.SolAmountMode)
	assert.Equal(t, 100_000, cfg.Swaps.DedupCapacity)
	assert.Equal(t, 60*time.Second, cfg.Price.RefreshInterval)
	assert.Equal(t, 10*time.Minute, cfg.Holders.CacheTTL)
	assert.Equal(t, time.Hour, cfg.Holders.StaleLimit)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "swaps:live", cfg.Redis.Channel)
	assert.Empty(t, cfg.Helius.RPCURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HELIUS_API_KEY", "abcdef123456")
	t.Setenv("HELIUS_AUTH_HEADER", "Secret")
	t.Setenv("TOKEN_MINT_ADDRESS", testMint)
	t.Setenv("SIGNIFICANCE_THRESHOLD_SOL", "0.5")
	t.Setenv("PRICE_REFRESH_INTERVAL", "30")
	t.Setenv("HOLDER_CACHE_TTL", "2m")
	t.Setenv("STRICT_ADDRESSES", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://mainnet.helius-rpc.com/?api-key=abcdef123456", cfg.Helius.RPCURL)
	assert.Equal(t, 0.5, cfg.Swaps.SignificanceThresholdSOL)
	assert.Equal(t, 30*time.Second, cfg.Price.RefreshInterval)
	assert.Equal(t, 2*time.Minute, cfg.Holders.CacheTTL)
	assert.True(t, cfg.Swaps.StrictAddresses)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_InvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEDUP_CAPACITY", "lots")
	t.Setenv("HOLDER_CACHE_TTL", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEDUP_CAPACITY")
	assert.Contains(t, err.Error(), "HOLDER_CACHE_TTL")
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
helius:
  rpc_url: http://localhost:8899
  auth_header: FromFile
token:
  mint_address: ` + testMint + `
swaps:
  significance_threshold_sol: 1.25
  sol_amount_mode: net-delta
holders:
  cache_ttl: 5m
  stale_limit: 1m
server:
  addr: ":8080"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))
	t.Setenv("HTTP_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:8899", cfg.Helius.RPCURL)
	assert.Equal(t, "FromFile", cfg.Helius.AuthHeader)
	assert.Equal(t, 1.25, cfg.Swaps.SignificanceThresholdSOL)
	assert.Equal(t, "net-delta", cfg.Swaps.SolAmountMode)
	assert.Equal(t, 5*time.Minute, cfg.Holders.CacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.Holders.StaleLimit, "stale limit is raised to the TTL")
	assert.Equal(t, ":9090", cfg.Server.Addr, "environment wins over the file")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Helius.RPCURL = "http://localhost:8899"
		cfg.Helius.AuthHeader = "Secret"
		cfg.Token.MintAddress = testMint
		return cfg
	}

	cfg := valid()
	assert.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing mint", func(c *Config) { c.Token.MintAddress = "" }, "TOKEN_MINT_ADDRESS is required"},
		{"bad mint", func(c *Config) { c.Token.MintAddress = "not-base58!" }, "TOKEN_MINT_ADDRESS"},
		{"missing secret", func(c *Config) { c.Helius.AuthHeader = "" }, "HELIUS_AUTH_HEADER"},
		{"missing rpc", func(c *Config) { c.Helius.RPCURL = "" }, "HELIUS_RPC_URL"},
		{"negative threshold", func(c *Config) { c.Swaps.SignificanceThresholdSOL = -1 }, "SIGNIFICANCE_THRESHOLD_SOL"},
		{"bad mode", func(c *Config) { c.Swaps.SolAmountMode = "gross" }, "SOL_AMOUNT_MODE"},
		{"negative dedup", func(c *Config) { c.Swaps.DedupCapacity = -1 }, "DEDUP_CAPACITY"},
		{"kafka without topic", func(c *Config) {
			c.Kafka.Brokers = []string{"k:9092"}
			c.Kafka.Topic = ""
		}, "KAFKA_TOPIC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", maskSecret(""))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "abcd****3456", maskSecret("abcdef123456"))

	cfg := Default()
	cfg.Helius.APIKey = "abcdef123456"
	cfg.applyDefaults()
	assert.Equal(t, "https://mainnet.helius-rpc.com/?api-key=abcd****3456", cfg.RedactedRPCURL())
}
