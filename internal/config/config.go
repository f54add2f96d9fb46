package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// envPrefix is the prefix for all environment variable overrides.
const envPrefix = "LICENSEGATE"

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Client   ClientConfig   `yaml:"client" envconfig:"CLIENT"`
	Issuer   IssuerConfig   `yaml:"issuer" envconfig:"ISSUER"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// SecurityConfig contains the request-signing and rate-limiting configuration
// consumed by the server middleware chain.
type SecurityConfig struct {
	// SigningSecret is the shared secret for request signature verification.
	// The server refuses to start without it.
	SigningSecret string `yaml:"signing_secret" envconfig:"SIGNING_SECRET"`

	// MaxTimestampAge rejects requests whose timestamp is older than this.
	MaxTimestampAge time.Duration `yaml:"max_timestamp_age" envconfig:"MAX_TIMESTAMP_AGE"`
	// MaxClockSkew tolerates future-dated timestamps up to this much.
	MaxClockSkew time.Duration `yaml:"max_clock_skew" envconfig:"MAX_CLOCK_SKEW"`

	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains the sliding-window limiter configuration.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`

	// RPS and Burst feed the coarse token-bucket throttle that runs in
	// front of the per-key sliding windows.
	RPS   float64 `yaml:"rps" envconfig:"RPS"`
	Burst int     `yaml:"burst" envconfig:"BURST"`

	Activate LimitProfile `yaml:"activate" envconfig:"ACTIVATE"`
	CheckIn  LimitProfile `yaml:"checkin" envconfig:"CHECKIN"`
	Global   LimitProfile `yaml:"global" envconfig:"GLOBAL"`

	CleanupInterval time.Duration `yaml:"cleanup_interval" envconfig:"CLEANUP_INTERVAL"`

	// RedisAddr switches the limiter store from in-memory to Redis when
	// set. Clustered deployments need this; a single instance does not.
	RedisAddr string `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
}

// LimitProfile defines one endpoint class's sliding-window limits.
type LimitProfile struct {
	MaxAttempts   int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	Window        time.Duration `yaml:"window" envconfig:"WINDOW"`
	BlockDuration time.Duration `yaml:"block_duration" envconfig:"BLOCK_DURATION"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// ClientConfig contains the activation client configuration.
type ClientConfig struct {
	ServerURL  string        `yaml:"server_url" envconfig:"SERVER_URL"`
	AppCode    string        `yaml:"app_code" envconfig:"APP_CODE"`
	AppVersion string        `yaml:"app_version" envconfig:"APP_VERSION"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`

	// SigningSecret must match the server's SecurityConfig.SigningSecret.
	SigningSecret string `yaml:"signing_secret" envconfig:"SIGNING_SECRET"`

	// PublicKey is the base64-encoded Ed25519 public key used for offline
	// token verification.
	PublicKey string `yaml:"public_key" envconfig:"PUBLIC_KEY"`

	// EncryptToken stores the persisted token encrypted at rest, keyed by
	// material derived from the device identity.
	EncryptToken bool `yaml:"encrypt_token" envconfig:"ENCRYPT_TOKEN"`

	// RecheckInterval drives the periodic offline re-verification timer.
	RecheckInterval time.Duration `yaml:"recheck_interval" envconfig:"RECHECK_INTERVAL"`
}

// IssuerConfig configures the built-in signing issuer.
type IssuerConfig struct {
	// PrivateKey is the base64-encoded Ed25519 private key (seed or full
	// key) used to sign issued tokens.
	PrivateKey string `yaml:"private_key" envconfig:"PRIVATE_KEY"`

	// TokenTTL is the lifetime of issued tokens; short relative to the
	// license term so clients must check in periodically.
	TokenTTL time.Duration `yaml:"token_ttl" envconfig:"TOKEN_TTL"`
}

// Default returns the baseline configuration. YAML and environment overlays
// are applied on top of it, in that order.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			MaxTimestampAge: 5 * time.Minute,
			MaxClockSkew:    60 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:         true,
				RPS:             100,
				Burst:           50,
				Activate:        LimitProfile{MaxAttempts: 10, Window: time.Minute, BlockDuration: 15 * time.Minute},
				CheckIn:         LimitProfile{MaxAttempts: 30, Window: time.Minute, BlockDuration: 5 * time.Minute},
				Global:          LimitProfile{MaxAttempts: 50, Window: time.Minute, BlockDuration: 30 * time.Minute},
				CleanupInterval: time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/licensegate.log",
		},
		Client: ClientConfig{
			ServerURL:       "http://localhost:8090",
			AppCode:         "APP001",
			AppVersion:      "dev",
			Timeout:         30 * time.Second,
			RecheckInterval: time.Hour,
		},
		Issuer: IssuerConfig{
			TokenTTL: 24 * time.Hour,
		},
	}
}

// Load loads configuration: defaults, then an optional YAML file, then
// environment variables (env wins).
func Load() (*Config, error) {
	cfg := Default()

	configFile := configFilePath()
	if _, err := os.Stat(configFile); err == nil {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	for name, p := range map[string]LimitProfile{
		"activate": c.Security.RateLimit.Activate,
		"checkin":  c.Security.RateLimit.CheckIn,
		"global":   c.Security.RateLimit.Global,
	} {
		if p.MaxAttempts <= 0 {
			return fmt.Errorf("rate limit profile %s: max_attempts must be positive", name)
		}
		if p.Window <= 0 || p.BlockDuration <= 0 {
			return fmt.Errorf("rate limit profile %s: window and block_duration must be positive", name)
		}
	}
	if c.Security.MaxTimestampAge <= 0 || c.Security.MaxClockSkew < 0 {
		return fmt.Errorf("invalid signature tolerance windows")
	}
	return nil
}

// configFilePath returns the YAML config location, overridable via env.
func configFilePath() string {
	if p := os.Getenv(envPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}
	return "licensegate.yaml"
}
