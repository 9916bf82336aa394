package reqactor

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/proof-actor/x/engine"
	"github.com/compose-network/proof-actor/x/reqpool"
)

// Config configures an Actor.
type Config struct {
	Pool       reqpool.Pool
	ChainSpecs engine.SupportedChainSpecs
	Engine     engine.Engine
	// Providers opens chain data providers for input generation.
	Providers engine.ProviderFactory

	// MaxProvingConcurrency bounds simultaneous engine invocations.
	MaxProvingConcurrency int64
	// InternalChannelSize is the recheck queue capacity. Zero reads INTERNAL_CHANNEL_SIZE.
	InternalChannelSize int
	RecheckInterval     time.Duration
	SignalRetryInterval time.Duration

	// Metrics is optional.
	Metrics *Metrics
	Logger  zerolog.Logger
}

// DefaultConfig returns a config with default intervals; collaborators are set by the caller.
func DefaultConfig(logger zerolog.Logger) Config {
	return Config{
		MaxProvingConcurrency: DefaultMaxProvingConcurrency,
		InternalChannelSize:   InternalChannelSizeFromEnv(),
		RecheckInterval:       DefaultRecheckInterval,
		SignalRetryInterval:   DefaultSignalRetryInterval,
		Logger:                logger.With().Str("component", "request-actor").Logger(),
	}
}

// Validate checks required collaborators and fills zero intervals with defaults.
func (c *Config) Validate() error {
	if c.Pool == nil {
		return errors.New("request pool is required")
	}
	if c.Engine == nil {
		return errors.New("proof engine is required")
	}
	if c.Providers == nil {
		return errors.New("block data provider factory is required")
	}
	if c.MaxProvingConcurrency <= 0 {
		return errors.New("max proving concurrency must be positive")
	}
	if c.InternalChannelSize <= 0 {
		c.InternalChannelSize = InternalChannelSizeFromEnv()
	}
	if c.RecheckInterval <= 0 {
		c.RecheckInterval = DefaultRecheckInterval
	}
	if c.SignalRetryInterval <= 0 {
		c.SignalRetryInterval = DefaultSignalRetryInterval
	}
	return nil
}

// InternalChannelSizeFromEnv reads INTERNAL_CHANNEL_SIZE, falling back to the default
// when unset or not a positive integer.
func InternalChannelSizeFromEnv() int {
	n, err := strconv.Atoi(os.Getenv(InternalChannelSizeEnv))
	if err != nil || n <= 0 {
		return DefaultInternalChannelSize
	}
	return n
}
