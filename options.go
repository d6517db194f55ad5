package arke

import (
	"log/slog"
	"time"

	"github.com/Arke-Institute/arke/codec"
	"github.com/Arke-Institute/arke/index"
	"github.com/Arke-Institute/arke/resource"
)

// Compression selects the codec applied to index snapshot chunks.
type Compression = index.Compression

const (
	CompressionNone = index.CompressionNone
	CompressionZstd = index.CompressionZstd
	CompressionLZ4  = index.CompressionLZ4
)

type options struct {
	codec             codec.Codec
	logger            *Logger
	metricsCollector  MetricsCollector
	clock             func() time.Time
	snapshotThreshold int
	chunkSize         int
	compression       Compression
	resourceConfig    resource.Config
	asyncIndexing     bool
}

// Option configures Registry constructor behavior.
type Option func(*options)

// WithCodec configures the codec used for canonical document encoding.
//
// Changing the codec changes the bytes, and therefore the CIDs, of
// every document written: pick one per deployment and stay with it.
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithClock configures the time source used for manifest and index
// timestamps. Intended for tests that need deterministic history.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithSnapshotThreshold configures how many hot-log entries accumulate
// before a background snapshot rebuild triggers.
func WithSnapshotThreshold(n int) Option {
	return func(o *options) {
		o.snapshotThreshold = n
	}
}

// WithChunkSize configures the number of index entries per snapshot
// chunk.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithCompression configures the compression applied to snapshot
// chunks. Chunks self-describe, so mixed generations decode fine after
// a change.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithResourceConfig bounds background work: rebuild worker slots, IO
// pacing of snapshot writes, memory accounted to caches.
func WithResourceConfig(cfg resource.Config) Option {
	return func(o *options) {
		o.resourceConfig = cfg
	}
}

// WithAsyncIndexing toggles asynchronous index and relationship
// notification after a committed write. The default (true) matches
// production behavior: the write path never blocks on, or fails
// because of, indexing. Tests that want to observe effects immediately
// pass false.
func WithAsyncIndexing(async bool) Option {
	return func(o *options) {
		o.asyncIndexing = async
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		clock:            time.Now,
		asyncIndexing:    true,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
