package kvlookup

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hupe1980/kvlookup/blobstore"
	"github.com/hupe1980/kvlookup/internal/fs"
	"github.com/hupe1980/kvlookup/resource"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	resources        *resource.Controller
	router           *blobstore.Router
	cacheDir         string
	verifyChecksum   bool
	fsys             fs.FileSystem
}

// Option configures stages and stores.
type Option func(*options)

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := kvlookup.NewJSONLogger(slog.LevelInfo)
//	stage, _ := kvlookup.NewStage(cfg, registry, true, kvlookup.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector.
// Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithResourceController sets the controller that bounds memory-mapped
// bytes and remote fetches. A memory-mapped store that does not fit the
// memory budget is opened in FileOnly mode instead.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithBlobStore registers store for store URLs starting with prefix,
// e.g. "s3://lookups". Remote stores are fetched into the cache directory
// before they are opened.
func WithBlobStore(prefix string, store blobstore.BlobStore) Option {
	return func(o *options) {
		if o.router == nil {
			o.router = blobstore.NewRouter()
		}
		o.router.Register(prefix, store)
	}
}

// WithCacheDir sets the directory for fetched remote stores.
// Defaults to <os.TempDir()>/kvlookup.
func WithCacheDir(dir string) Option {
	return func(o *options) {
		o.cacheDir = dir
	}
}

// WithVerifyChecksum verifies the store file checksum on open.
func WithVerifyChecksum(verify bool) Option {
	return func(o *options) {
		o.verifyChecksum = verify
	}
}

// WithFileSystem sets the file system used for FileOnly reads.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fsys = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		cacheDir:         filepath.Join(os.TempDir(), "kvlookup"),
		fsys:             fs.Default,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
