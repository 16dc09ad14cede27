package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hupe1980/kvlookup"
	"github.com/hupe1980/kvlookup/annotation"
	"github.com/hupe1980/kvlookup/annotation/gatexml"
	"github.com/hupe1980/kvlookup/blobstore"
	"github.com/hupe1980/kvlookup/metric"
	"github.com/hupe1980/kvlookup/pipeline"
	"github.com/hupe1980/kvlookup/resource"
	"github.com/hupe1980/kvlookup/sqlstore"
)

// RunCmd enriches GATE XML documents.
type RunCmd struct {
	Inputs   []string `arg:"" help:"GATE XML files or directories (*.xml, *.xml.xz)" type:"existingpath"`
	Out      string   `short:"o" required:"" help:"Output directory" type:"path"`
	Workers  int      `short:"w" help:"Number of stage duplicates (0 = number of CPUs)" default:"0"`
	Compress bool     `help:"Write .xml.xz output"`

	InputSet       string               `name:"input-set" help:"Input annotation set (empty = default set)"`
	InputType      string               `name:"input-type" help:"Input annotation type" default:"Lookup"`
	ContainingType string               `name:"containing-type" help:"Only process annotations inside annotations of this type"`
	KeyFeature     string               `name:"key-feature" help:"Feature holding the key (empty = covered text)"`
	ValueFeature   string               `name:"value-feature" help:"Feature receiving the value" default:"value"`
	Store          string               `help:"Store file path or s3:// / minio:// URL"`
	Mode           kvlookup.LoadingMode `help:"MEMORY_MAPPED or FILE_ONLY" default:"MEMORY_MAPPED"`
	MapName        string               `name:"map-name" help:"Map within the store" default:"map"`
	Verify         bool                 `help:"Verify the store checksum on open"`

	SQLURL         string            `name:"sql-url" help:"Connection-string template; selects the SQL backend" group:"SQL"`
	SQLDriver      string            `name:"sql-driver" help:"database/sql driver name" group:"SQL"`
	SQLDBDirectory string            `name:"sql-db-directory" help:"Value of ${dbdirectory}" group:"SQL"`
	SQLTable       string            `name:"sql-table" help:"Table holding the pairs" group:"SQL"`
	SQLKeyColumn   string            `name:"sql-key-column" default:"key" group:"SQL"`
	SQLValueColumn string            `name:"sql-value-column" default:"value" group:"SQL"`
	SQLProperty    map[string]string `name:"sql-property" help:"Values of $prop{name}" group:"SQL"`

	CacheDir       string `name:"cache-dir" help:"Cache directory for remote stores" type:"path"`
	MemoryLimit    int64  `name:"memory-limit" help:"Bytes of memory-mapped stores before falling back to FILE_ONLY (0 = unlimited)"`
	FetchRateLimit int64  `name:"fetch-rate-limit" help:"Remote fetch throughput in bytes per second (0 = unlimited)"`
	MaxFetches     int64  `name:"max-fetches" help:"Concurrent remote fetches" default:"1"`
	MetricsAddr    string `name:"metrics-addr" help:"Serve Prometheus metrics on this address, e.g. :9090"`
}

// Config assembles the stage configuration from the flags.
func (c *RunCmd) Config() kvlookup.Config {
	cfg := kvlookup.Config{
		InputAnnotationSet:       c.InputSet,
		InputAnnotationType:      c.InputType,
		ContainingAnnotationType: c.ContainingType,
		KeyFeature:               c.KeyFeature,
		ValueFeature:             c.ValueFeature,
		StoreURL:                 c.Store,
		LoadingMode:              c.Mode,
		MapName:                  c.MapName,
	}
	if c.SQLURL != "" {
		cfg.SQL = &sqlstore.Config{
			Driver:      c.SQLDriver,
			URL:         c.SQLURL,
			DBDirectory: c.SQLDBDirectory,
			Properties:  c.SQLProperty,
			Table:       c.SQLTable,
			KeyColumn:   c.SQLKeyColumn,
			ValueColumn: c.SQLValueColumn,
		}
	}
	return cfg
}

func (c *RunCmd) Run(g *Globals, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := g.Logger()
	cfg := c.Config()
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts := []kvlookup.Option{
		kvlookup.WithVerifyChecksum(c.Verify),
		kvlookup.WithResourceController(resource.NewController(resource.Config{
			MemoryLimitBytes:     c.MemoryLimit,
			MaxConcurrentFetches: c.MaxFetches,
			IOLimitBytesPerSec:   c.FetchRateLimit,
		})),
	}
	if c.CacheDir != "" {
		opts = append(opts, kvlookup.WithCacheDir(c.CacheDir))
	}
	if cfg.SQL == nil && blobstore.IsRemote(cfg.StoreURL) {
		target, err := dialRemote(ctx, cfg.StoreURL)
		if err != nil {
			return err
		}
		opts = append(opts, kvlookup.WithBlobStore(target.Prefix, target.Store))
	}

	if c.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector, err := metric.NewPrometheusCollector(reg, "")
		if err != nil {
			return err
		}
		opts = append(opts, kvlookup.WithMetricsCollector(collector))
		go func() {
			if err := metric.Serve(ctx, c.MetricsAddr, reg, nil); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	if err := os.MkdirAll(c.Out, 0o755); err != nil {
		return err
	}

	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	registry := kvlookup.NewRegistry()
	defer func() {
		if err := registry.Close(); err != nil {
			log.Error("registry close failed", "error", err)
		}
	}()

	docs, loadErr := c.documents()
	runner := pipeline.NewRunner(workers, pipeline.WithLogger(log.Logger))
	stats, err := runner.Run(ctx, docs, func(dup int) (pipeline.Processor, error) {
		dupOpts := slices.Concat(opts, []kvlookup.Option{kvlookup.WithLogger(log.WithDuplicate(dup))})
		stage, err := kvlookup.NewStage(cfg, registry, dup == 0, dupOpts...)
		if err != nil {
			return nil, err
		}
		return stage, nil
	}, c.write)
	if err != nil {
		return err
	}
	if err := loadErr(); err != nil {
		return err
	}

	fmt.Fprintf(out, "processed %d documents with %d duplicates in %s (run %s)\n",
		stats.Documents, stats.Duplicates, stats.Duration.Round(time.Millisecond), stats.RunID)
	return nil
}

// documents lazily loads every input document. Loading stops at the first
// error, which the returned function reports once the sequence is drained.
func (c *RunCmd) documents() (iter.Seq[*annotation.Document], func() error) {
	var loadErr error
	seq := func(yield func(*annotation.Document) bool) {
		for _, in := range c.Inputs {
			err := filepath.WalkDir(in, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !isDocument(path) {
					return nil
				}
				doc, err := gatexml.Open(path)
				if err != nil {
					return err
				}
				if !yield(doc) {
					return filepath.SkipAll
				}
				return nil
			})
			if err != nil {
				loadErr = err
				return
			}
		}
	}
	return seq, func() error { return loadErr }
}

func isDocument(path string) bool {
	return strings.HasSuffix(path, ".xml") || strings.HasSuffix(path, ".xml.xz")
}

func (c *RunCmd) write(doc *annotation.Document) error {
	name := doc.Name + ".xml"
	if c.Compress {
		name += ".xz"
	}
	return gatexml.WriteFile(filepath.Join(c.Out, name), doc)
}
