package reqactor

import "time"

const (
	// DefaultInternalChannelSize is the capacity of the internal recheck queue.
	DefaultInternalChannelSize = 1024
	// InternalChannelSizeEnv overrides DefaultInternalChannelSize.
	InternalChannelSizeEnv = "INTERNAL_CHANNEL_SIZE"

	// DefaultRecheckInterval delays work-in-progress polling and store-read retries.
	DefaultRecheckInterval = 3 * time.Second
	// DefaultSignalRetryInterval spaces attempts to push a recheck onto a full queue.
	DefaultSignalRetryInterval = 3 * time.Second

	DefaultMaxProvingConcurrency = 4
)

// MaxBatchBlocks bounds the L2 blocks a single batch proposal may span.
const MaxBatchBlocks = 1 << 14
