package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/neardonate/service/near"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// Required fields are validated at startup so misconfiguration fails fast.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// NEAR configuration
	NEARNetwork    string
	NEARRPCURL     string
	ContractName   string
	NEARAccountID  string
	NEARPrivateKey string
	NEARCallGas    uint64
	RPCTimeout     time.Duration

	// Database configuration (receipts are disabled when empty)
	DatabaseURL string

	// NATS configuration (donation events are disabled when empty)
	NATSURL string

	// Temporal configuration (confirmations are disabled when host is empty)
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
	ConfirmTimeout    time.Duration
}

// Known NEAR networks and their public RPC endpoints.
var networkRPCURLs = map[string]string{
	"testnet": near.TestnetRPCURL,
	"mainnet": near.MainnetRPCURL,
}

// DefaultRPCURL returns the public RPC endpoint for a known network.
func DefaultRPCURL(network string) (string, bool) {
	u, ok := networkRPCURLs[network]
	return u, ok
}

// LoadEnvFile loads variables from a dotenv file without overriding ones
// already present in the environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error listing every missing or invalid setting.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// NEAR configuration
	cfg.NEARNetwork = getEnvOrDefault("NEAR_NETWORK", "testnet")
	defaultRPC, known := DefaultRPCURL(cfg.NEARNetwork)
	if !known {
		errs = append(errs, fmt.Errorf("NEAR_NETWORK must be testnet or mainnet, got %q", cfg.NEARNetwork))
	}
	cfg.NEARRPCURL = getEnvOrDefault("NEAR_RPC_URL", defaultRPC)

	cfg.ContractName = os.Getenv("CONTRACT_NAME")

	cfg.NEARAccountID = os.Getenv("NEAR_ACCOUNT_ID")
	cfg.NEARPrivateKey = os.Getenv("NEAR_PRIVATE_KEY")

	gas, err := parseUint64("NEAR_CALL_GAS", 30_000_000_000_000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.NEARCallGas = gas
	}

	rpcTimeout, err := parseDuration("RPC_TIMEOUT", "20s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCTimeout = rpcTimeout
	}

	// Optional integrations
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Temporal configuration
	cfg.TemporalHost = os.Getenv("TEMPORAL_HOST")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "neardonate-confirmations")

	confirmTimeout, err := parseDuration("CONFIRM_TIMEOUT", "2m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmTimeout = confirmTimeout
	}

	errs = append(errs, cfg.validate()...)

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	if errs := c.validate(); len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

func (c *Config) validate() []error {
	var errs []error

	if c.ContractName == "" {
		errs = append(errs, fmt.Errorf("ContractName is required (set CONTRACT_NAME)"))
	}

	if c.NEARRPCURL == "" {
		errs = append(errs, fmt.Errorf("NEARRPCURL is required"))
	} else if u, err := url.Parse(c.NEARRPCURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("NEARRPCURL must be an http(s) URL, got %q", c.NEARRPCURL))
	}

	if (c.NEARAccountID == "") != (c.NEARPrivateKey == "") {
		errs = append(errs, fmt.Errorf("NEARAccountID and NEARPrivateKey must be set together"))
	}

	if c.NEARPrivateKey != "" && !strings.HasPrefix(c.NEARPrivateKey, "ed25519:") {
		errs = append(errs, fmt.Errorf("NEARPrivateKey must start with ed25519:"))
	}

	if c.NEARCallGas == 0 {
		errs = append(errs, fmt.Errorf("NEARCallGas must be positive"))
	}

	if c.RPCTimeout < time.Second {
		errs = append(errs, fmt.Errorf("RPCTimeout must be at least 1 second"))
	}

	if c.ConfirmationsEnabled() {
		if c.TemporalNamespace == "" {
			errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
		}
		if c.TemporalTaskQueue == "" {
			errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
		}
		if c.ConfirmTimeout < time.Second {
			errs = append(errs, fmt.Errorf("ConfirmTimeout must be at least 1 second"))
		}
	}

	return errs
}

// SigningEnabled reports whether donate calls can be signed server side.
func (c *Config) SigningEnabled() bool {
	return c.NEARAccountID != "" && c.NEARPrivateKey != ""
}

// ReceiptsEnabled reports whether donation receipts are persisted.
func (c *Config) ReceiptsEnabled() bool {
	return c.DatabaseURL != ""
}

// EventsEnabled reports whether donation events are published to NATS.
func (c *Config) EventsEnabled() bool {
	return c.NATSURL != ""
}

// ConfirmationsEnabled reports whether confirmation workflows are started.
func (c *Config) ConfirmationsEnabled() bool {
	return c.TemporalHost != ""
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseUint64 parses an unsigned integer from an environment variable or uses a default.
func parseUint64(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid unsigned integer %q: %w", key, value, err)
	}
	return result, nil
}
