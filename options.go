package blockfs

import (
	"log/slog"

	"github.com/hupe1980/blockfs/resource"
)

const (
	// DefaultBlockSize is the default size of one data block in bytes.
	DefaultBlockSize = 4096

	// DefaultNumBlocks is the default number of blocks on a volume,
	// including the reserved block 0.
	DefaultNumBlocks = 1024
)

type options struct {
	blockSize uint32
	numBlocks uint32
	path      string // "" = in-memory region
	logger    *Logger
	metrics   MetricsCollector
	resources *resource.Controller
}

// Option configures volume construction.
type Option func(*options)

// WithBlockSize sets the data block size in bytes. The block size is the
// hard ceiling for a single file's content.
func WithBlockSize(size uint32) Option {
	return func(o *options) {
		o.blockSize = size
	}
}

// WithNumBlocks sets the total number of blocks on the volume, including
// the reserved block 0.
func WithNumBlocks(n uint32) Option {
	return func(o *options) {
		o.numBlocks = n
	}
}

// WithPath backs the storage region with a memory-mapped file at path.
// The file is created on first open and re-mapped on subsequent opens.
// Without this option the region lives on the heap and is lost on Close.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithLogger configures structured logging for data-path operations.
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
		o.metrics = mc
	}
}

// WithResourceController attaches a resource controller governing
// background work and snapshot IO throughput.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		blockSize: DefaultBlockSize,
		numBlocks: DefaultNumBlocks,
		logger:    NoopLogger(),
		metrics:   NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
