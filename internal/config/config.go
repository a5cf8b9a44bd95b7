package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names an optional YAML file applied over the defaults.
// Environment variables still win over the file.
const ConfigFileEnv = "TRACECTL_CONFIG"

const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

type Config struct {
	Ledger  LedgerConfig  `yaml:"ledger"`
	Session SessionConfig `yaml:"session"`
	Redis   RedisConfig   `yaml:"redis"`
	DB      DBConfig      `yaml:"db"`
	Cache   CacheConfig   `yaml:"cache"`
	Server  ServerConfig  `yaml:"server"`
	Tracing TracingConfig `yaml:"tracing"`
	Alert   AlertConfig   `yaml:"alert"`
	Log     LogConfig     `yaml:"log"`
}

type LedgerConfig struct {
	RPCURL               string        `yaml:"rpc_url"`
	AccessManagerAddress string        `yaml:"access_manager_address"`
	TraceabilityAddress  string        `yaml:"traceability_address"`
	FromBlock            uint64        `yaml:"from_block"`
	PrivateKey           string        `yaml:"private_key"`
	RPCTimeout           time.Duration `yaml:"rpc_timeout"`
	RateLimitRPS         float64       `yaml:"rate_limit_rps"`
	RateLimitBurst       int           `yaml:"rate_limit_burst"`
	BreakerFailures      int           `yaml:"breaker_failures"`
	BreakerOpenTimeout   time.Duration `yaml:"breaker_open_timeout"`
	ReceiptPollInterval  time.Duration `yaml:"receipt_poll_interval"`
	WatchInterval        time.Duration `yaml:"watch_interval"`
}

type SessionConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
}

type RedisConfig struct {
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
}

// DBConfig is optional; an empty URL disables the transaction journal.
type DBConfig struct {
	URL                string        `yaml:"url"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"conn_max_lifetime"`
	StatementTimeoutMS int           `yaml:"statement_timeout_ms"`
	PoolStatsInterval  time.Duration `yaml:"pool_stats_interval"`
}

type CacheConfig struct {
	AccountSize int           `yaml:"account_size"`
	AccountTTL  time.Duration `yaml:"account_ttl"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// WritesPerMinute caps ledger-submitting requests per client and route.
	WritesPerMinute int `yaml:"writes_per_minute"`
	// TrustProxy makes the API key clients by X-Forwarded-For / X-Real-IP.
	TrustProxy bool `yaml:"trust_proxy"`
	// AllowRemoteSigning permits a non-loopback Addr while a signer key is
	// configured. Every caller that reaches the API signs as that key.
	AllowRemoteSigning bool `yaml:"allow_remote_signing"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// AlertConfig is optional; with no URL set alerts are dropped.
type AlertConfig struct {
	SlackWebhookURL string        `yaml:"slack_webhook_url"`
	WebhookURL      string        `yaml:"webhook_url"`
	Cooldown        time.Duration `yaml:"cooldown"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() *Config {
	return &Config{
		Ledger: LedgerConfig{
			RPCURL:              "http://localhost:8545",
			RPCTimeout:          30 * time.Second,
			RateLimitRPS:        20,
			RateLimitBurst:      40,
			BreakerFailures:     5,
			BreakerOpenTimeout:  30 * time.Second,
			ReceiptPollInterval: time.Second,
			WatchInterval:       4 * time.Second,
		},
		Session: SessionConfig{
			Backend: SessionBackendMemory,
			TTL:     30 * 24 * time.Hour,
		},
		Redis: RedisConfig{
			URL:       "redis://localhost:6379",
			Namespace: "tracectl",
		},
		DB: DBConfig{
			MaxOpenConns:       10,
			MaxIdleConns:       2,
			ConnMaxLifetime:    30 * time.Minute,
			StatementTimeoutMS: 30000,
			PoolStatsInterval:  15 * time.Second,
		},
		Cache: CacheConfig{
			AccountSize: 256,
			AccountTTL:  30 * time.Second,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			WritesPerMinute: 20,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
		Alert: AlertConfig{
			Cooldown: 5 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by TRACECTL_CONFIG, then the environment.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.Ledger.RPCURL = getEnv("RPC_URL", c.Ledger.RPCURL)
	c.Ledger.AccessManagerAddress = getEnv("ACCESS_MANAGER_ADDRESS", c.Ledger.AccessManagerAddress)
	c.Ledger.TraceabilityAddress = getEnv("TRACEABILITY_ADDRESS", c.Ledger.TraceabilityAddress)
	c.Ledger.FromBlock = uint64(getEnvInt("LEDGER_FROM_BLOCK", int(c.Ledger.FromBlock)))
	c.Ledger.PrivateKey = getEnv("SIGNER_PRIVATE_KEY", c.Ledger.PrivateKey)
	c.Ledger.RPCTimeout = getEnvDuration("RPC_TIMEOUT", c.Ledger.RPCTimeout)
	c.Ledger.RateLimitRPS = getEnvFloat("RPC_RATE_LIMIT_RPS", c.Ledger.RateLimitRPS)
	c.Ledger.RateLimitBurst = getEnvInt("RPC_RATE_LIMIT_BURST", c.Ledger.RateLimitBurst)
	c.Ledger.BreakerFailures = getEnvInt("RPC_BREAKER_FAILURES", c.Ledger.BreakerFailures)
	c.Ledger.BreakerOpenTimeout = getEnvDuration("RPC_BREAKER_OPEN_TIMEOUT", c.Ledger.BreakerOpenTimeout)
	c.Ledger.ReceiptPollInterval = getEnvDuration("RECEIPT_POLL_INTERVAL", c.Ledger.ReceiptPollInterval)
	c.Ledger.WatchInterval = getEnvDuration("WALLET_WATCH_INTERVAL", c.Ledger.WatchInterval)

	c.Session.Backend = strings.ToLower(getEnv("SESSION_BACKEND", c.Session.Backend))
	c.Session.TTL = getEnvDuration("SESSION_TTL", c.Session.TTL)
	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.Namespace = getEnv("REDIS_NAMESPACE", c.Redis.Namespace)

	c.DB.URL = getEnv("DB_URL", c.DB.URL)
	c.DB.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.DB.MaxOpenConns)
	c.DB.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.DB.MaxIdleConns)
	c.DB.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", c.DB.ConnMaxLifetime)
	c.DB.StatementTimeoutMS = getEnvInt("DB_STATEMENT_TIMEOUT_MS", c.DB.StatementTimeoutMS)
	c.DB.PoolStatsInterval = getEnvDuration("DB_POOL_STATS_INTERVAL", c.DB.PoolStatsInterval)

	c.Cache.AccountSize = getEnvInt("ACCOUNT_CACHE_SIZE", c.Cache.AccountSize)
	c.Cache.AccountTTL = getEnvDuration("ACCOUNT_CACHE_TTL", c.Cache.AccountTTL)

	c.Server.Addr = getEnv("HTTP_ADDR", c.Server.Addr)
	c.Server.WritesPerMinute = getEnvInt("HTTP_WRITES_PER_MINUTE", c.Server.WritesPerMinute)
	c.Server.TrustProxy = getEnvBool("HTTP_TRUST_PROXY", c.Server.TrustProxy)
	c.Server.AllowRemoteSigning = getEnvBool("HTTP_ALLOW_REMOTE_SIGNING", c.Server.AllowRemoteSigning)

	c.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)
	c.Tracing.Insecure = getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", c.Tracing.Insecure)
	c.Tracing.SampleRatio = getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", c.Tracing.SampleRatio)

	c.Alert.SlackWebhookURL = getEnv("ALERT_SLACK_WEBHOOK_URL", c.Alert.SlackWebhookURL)
	c.Alert.WebhookURL = getEnv("ALERT_WEBHOOK_URL", c.Alert.WebhookURL)
	c.Alert.Cooldown = getEnvDuration("ALERT_COOLDOWN", c.Alert.Cooldown)

	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))
}

func (c *Config) validate() error {
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if err := validateAddress("ACCESS_MANAGER_ADDRESS", c.Ledger.AccessManagerAddress); err != nil {
		return err
	}
	if err := validateAddress("TRACEABILITY_ADDRESS", c.Ledger.TraceabilityAddress); err != nil {
		return err
	}
	if c.Ledger.RateLimitRPS <= 0 || c.Ledger.RateLimitBurst <= 0 {
		return fmt.Errorf("RPC_RATE_LIMIT_RPS and RPC_RATE_LIMIT_BURST must be positive")
	}
	if c.Ledger.BreakerFailures <= 0 {
		return fmt.Errorf("RPC_BREAKER_FAILURES must be positive")
	}
	if c.Ledger.RPCTimeout <= 0 {
		return fmt.Errorf("RPC_TIMEOUT must be positive")
	}
	if c.Ledger.WatchInterval <= 0 || c.Ledger.ReceiptPollInterval <= 0 {
		return fmt.Errorf("WALLET_WATCH_INTERVAL and RECEIPT_POLL_INTERVAL must be positive")
	}

	switch c.Session.Backend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", SessionBackendMemory, SessionBackendRedis, c.Session.Backend)
	}

	if c.Cache.AccountSize <= 0 {
		return fmt.Errorf("ACCOUNT_CACHE_SIZE must be positive")
	}
	if c.Server.WritesPerMinute <= 0 {
		return fmt.Errorf("HTTP_WRITES_PER_MINUTE must be positive")
	}
	if err := c.ValidateListen(); err != nil {
		return err
	}
	if c.DB.URL != "" && c.DB.StatementTimeoutMS < 0 {
		return fmt.Errorf("DB_STATEMENT_TIMEOUT_MS must be >= 0")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLE_RATIO must be within [0,1]")
	}
	if c.Alert.Cooldown < 0 {
		return fmt.Errorf("ALERT_COOLDOWN must be >= 0")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// ValidateListen refuses to expose the API beyond loopback while a signer key
// is configured, unless HTTP_ALLOW_REMOTE_SIGNING is set. Call it again after
// overriding Server.Addr.
func (c *Config) ValidateListen() error {
	if c.Ledger.PrivateKey == "" || c.Server.AllowRemoteSigning {
		return nil
	}
	host, _, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		return fmt.Errorf("HTTP_ADDR %q: %w", c.Server.Addr, err)
	}
	if isLoopback(host) {
		return nil
	}
	return fmt.Errorf("HTTP_ADDR %q is not loopback while SIGNER_PRIVATE_KEY is set; set HTTP_ALLOW_REMOTE_SIGNING=true to expose the signer", c.Server.Addr)
}

// isLoopback treats an empty or unspecified host as reachable from anywhere.
func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func validateAddress(key, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", key)
	}
	if !common.IsHexAddress(v) {
		return fmt.Errorf("%s is not a hex address: %q", key, v)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
