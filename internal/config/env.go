package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overrides values with the environment variables that are set.
func (c *Config) applyEnv() error {
	var l envLoader

	l.str("HELIUS_API_KEY", &c.Helius.APIKey)
	l.str("HELIUS_RPC_URL", &c.Helius.RPCURL)
	l.str("HELIUS_AUTH_HEADER", &c.Helius.AuthHeader)
	l.integer("HELIUS_RPC_RETRIES", &c.Helius.RPCRetries)

	l.str("TOKEN_MINT_ADDRESS", &c.Token.MintAddress)
	l.float("TOKEN_TOTAL_SUPPLY", &c.Token.TotalSupply)

	l.float("SIGNIFICANCE_THRESHOLD_SOL", &c.Swaps.SignificanceThresholdSOL)
	l.str("SOL_AMOUNT_MODE", &c.Swaps.SolAmountMode)
	l.boolean("STRICT_ADDRESSES", &c.Swaps.StrictAddresses)
	l.integer("DEDUP_CAPACITY", &c.Swaps.DedupCapacity)
	l.integer("FANOUT_QUEUE_SIZE", &c.Swaps.FanoutQueueSize)

	l.duration("PRICE_REFRESH_INTERVAL", &c.Price.RefreshInterval)
	l.str("COINGECKO_URL", &c.Price.CoinGeckoURL)
	l.str("COINGECKO_API_KEY", &c.Price.CoinGeckoAPIKey)

	l.duration("HOLDER_CACHE_TTL", &c.Holders.CacheTTL)
	l.duration("HOLDER_STALE_LIMIT", &c.Holders.StaleLimit)

	l.str("HTTP_ADDR", &c.Server.Addr)
	l.list("CORS_ALLOWED_ORIGINS", &c.Server.CORSAllowedOrigins)
	l.duration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	l.str("REDIS_ADDR", &c.Redis.Addr)
	l.str("REDIS_CHANNEL", &c.Redis.Channel)

	l.list("KAFKA_BROKERS", &c.Kafka.Brokers)
	l.str("KAFKA_TOPIC", &c.Kafka.Topic)

	l.str("BITQUERY_API_KEY", &c.Bitquery.APIKey)
	l.str("BITQUERY_ENDPOINT", &c.Bitquery.Endpoint)

	return l.err()
}

// envLoader collects parse errors so every bad variable is reported at once.
type envLoader struct {
	errs []error
}

func (l *envLoader) err() error {
	return errors.Join(l.errs...)
}

func (l *envLoader) str(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (l *envLoader) list(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (l *envLoader) integer(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return
	}
	*dst = n
}

func (l *envLoader) float(key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return
	}
	*dst = f
}

func (l *envLoader) boolean(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return
	}
	*dst = b
}

// duration accepts Go durations ("90s", "10m") or plain seconds ("60").
func (l *envLoader) duration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return
	}
	*dst = d
}
