package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	apisrv "github.com/compose-network/proof-actor/server/api"
	"github.com/compose-network/proof-actor/x/reqactor"
)

// Config holds the complete application configuration
type Config struct {
	API     apisrv.Config `mapstructure:"api"     yaml:"api"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig     `mapstructure:"log"     yaml:"log"`
	Actor   ActorConfig   `mapstructure:"actor"   yaml:"actor"`
	Engine  EngineConfig  `mapstructure:"engine"  yaml:"engine"`
	Chains  ChainsConfig  `mapstructure:"chains"  yaml:"chains"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// ActorConfig tunes the request actor.
type ActorConfig struct {
	MaxProvingConcurrency int64         `mapstructure:"max_proving_concurrency" yaml:"max_proving_concurrency" env:"ACTOR_MAX_PROVING_CONCURRENCY"`
	InternalChannelSize   int           `mapstructure:"internal_channel_size"   yaml:"internal_channel_size"   env:"INTERNAL_CHANNEL_SIZE"`
	RecheckInterval       time.Duration `mapstructure:"recheck_interval"        yaml:"recheck_interval"        env:"ACTOR_RECHECK_INTERVAL"`
	SignalRetryInterval   time.Duration `mapstructure:"signal_retry_interval"   yaml:"signal_retry_interval"   env:"ACTOR_SIGNAL_RETRY_INTERVAL"`
	// DrainTimeout bounds how long shutdown waits for in-flight proving.
	DrainTimeout time.Duration `mapstructure:"drain_timeout" yaml:"drain_timeout" env:"ACTOR_DRAIN_TIMEOUT"`
}

// EngineConfig points at the remote proving service.
type EngineConfig struct {
	BaseURL      string        `mapstructure:"base_url"      yaml:"base_url"      env:"ENGINE_BASE_URL"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" env:"ENGINE_POLL_INTERVAL"`
	Timeout      time.Duration `mapstructure:"timeout"       yaml:"timeout"       env:"ENGINE_TIMEOUT"`
}

type ChainsConfig struct {
	SpecFile string `mapstructure:"spec_file" yaml:"spec_file" env:"CHAINS_SPEC_FILE"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// The queue capacity keeps its historical env name.
	if err := v.BindEnv("actor.internal_channel_size", reqactor.InternalChannelSizeEnv); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", reqactor.InternalChannelSizeEnv, err)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.shutdown_timeout", "10s")
	v.SetDefault("api.max_header_bytes", 1048576)
	v.SetDefault("api.cors_origins", []string{})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("actor.max_proving_concurrency", reqactor.DefaultMaxProvingConcurrency)
	v.SetDefault("actor.internal_channel_size", reqactor.DefaultInternalChannelSize)
	v.SetDefault("actor.recheck_interval", reqactor.DefaultRecheckInterval.String())
	v.SetDefault("actor.signal_retry_interval", reqactor.DefaultSignalRetryInterval.String())
	v.SetDefault("actor.drain_timeout", "60s")

	v.SetDefault("engine.base_url", "")
	v.SetDefault("engine.poll_interval", "5s")
	v.SetDefault("engine.timeout", "60s")

	v.SetDefault("chains.spec_file", "prover-actor-app/configs/chains.yaml")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateActor(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Chains.SpecFile) == "" {
		return fmt.Errorf("chains.spec_file is required")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if strings.TrimSpace(c.API.ListenAddr) == "" {
		return fmt.Errorf("api.listen_addr is required")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	return nil
}

func (c *Config) validateActor() error {
	if c.Actor.MaxProvingConcurrency <= 0 {
		return fmt.Errorf("actor.max_proving_concurrency must be positive, got %d", c.Actor.MaxProvingConcurrency)
	}
	if c.Actor.InternalChannelSize <= 0 {
		return fmt.Errorf("actor.internal_channel_size must be positive, got %d", c.Actor.InternalChannelSize)
	}
	if c.Actor.RecheckInterval <= 0 {
		return fmt.Errorf("actor.recheck_interval must be positive")
	}
	if c.Actor.SignalRetryInterval <= 0 {
		return fmt.Errorf("actor.signal_retry_interval must be positive")
	}
	return nil
}

func (c *Config) validateEngine() error {
	raw := strings.TrimSpace(c.Engine.BaseURL)
	if raw == "" {
		return fmt.Errorf("engine.base_url is required")
	}
	if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("engine.base_url %q is not an absolute URL", raw)
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be positive")
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("engine.timeout must be positive")
	}
	return nil
}
