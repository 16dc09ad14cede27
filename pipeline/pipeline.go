package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/kvlookup/annotation"
)

// Interrupter reports whether the current run has been asked to stop.
type Interrupter interface {
	Interrupted() bool
}

// Flag is a per-run interruption flag. The zero value is not set.
type Flag struct {
	v atomic.Bool
}

// Set marks the run as interrupted.
func (f *Flag) Set() { f.v.Store(true) }

// Interrupted implements Interrupter.
func (f *Flag) Interrupted() bool { return f.v.Load() }

// Processor is one duplicate of a processing resource.
type Processor interface {
	OnRunStart(ctx context.Context) error
	OnDocument(ctx context.Context, doc *annotation.Document, intr Interrupter) error
	// OnRunEnd receives the run error, nil on success.
	OnRunEnd(ctx context.Context, runErr error) error
}

// Factory creates the processor for one duplicate.
type Factory func(duplicate int) (Processor, error)

// Sink receives each processed document. Calls are serialized.
type Sink func(doc *annotation.Document) error

// Stats summarizes a run.
type Stats struct {
	RunID      string
	Duplicates int
	Documents  int64
	Failed     int64
	Duration   time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithQueueSize sets the capacity of the document queue shared by the duplicates.
func WithQueueSize(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.queueSize = n
		}
	}
}

// Runner drives a fixed number of duplicates.
type Runner struct {
	duplicates int
	queueSize  int
	logger     *slog.Logger
}

// NewRunner creates a runner with the given number of duplicates (at least one).
func NewRunner(duplicates int, opts ...Option) *Runner {
	if duplicates < 1 {
		duplicates = 1
	}
	r := &Runner{
		duplicates: duplicates,
		queueSize:  duplicates,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Duplicates returns the configured duplicate count.
func (r *Runner) Duplicates() int { return r.duplicates }

// Run feeds docs to the duplicates and returns when all of them finished.
// Every duplicate completes OnRunStart before the first document is handed
// out. OnRunEnd is called for every duplicate whose OnRunStart succeeded, with a
// context that is not cancelled by the run failing, so shared resources are
// always released. sink may be nil.
func (r *Runner) Run(ctx context.Context, docs iter.Seq[*annotation.Document], factory Factory, sink Sink) (Stats, error) {
	start := time.Now()
	stats := Stats{RunID: uuid.NewString(), Duplicates: r.duplicates}
	log := r.logger.With("run_id", stats.RunID)

	procs := make([]Processor, r.duplicates)
	for i := range procs {
		p, err := factory(i)
		if err != nil {
			return stats, fmt.Errorf("create duplicate %d: %w", i, err)
		}
		procs[i] = p
	}

	flag := &Flag{}
	stop := context.AfterFunc(ctx, flag.Set)
	defer stop()

	log.InfoContext(ctx, "run started", "duplicates", r.duplicates)

	if err := r.start(ctx, log, procs); err != nil {
		flag.Set()
		stats.Duration = time.Since(start)
		log.ErrorContext(ctx, "run failed to start", "error", err)
		return stats, err
	}

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan *annotation.Document, r.queueSize)

	var (
		processed atomic.Int64
		failed    atomic.Int64
		sinkMu    sync.Mutex
	)

	g.Go(func() error {
		defer close(queue)
		for doc := range docs {
			select {
			case queue <- doc:
			case <-gctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for i, p := range procs {
		dlog := log.With("duplicate", i)
		g.Go(func() (err error) {
			defer func() {
				if endErr := p.OnRunEnd(context.WithoutCancel(ctx), err); endErr != nil {
					dlog.ErrorContext(ctx, "run end failed", "error", endErr)
					if err == nil {
						err = fmt.Errorf("duplicate %d: end: %w", i, endErr)
					}
				}
			}()

			for doc := range queue {
				if gctx.Err() != nil {
					// Drain so the feeder is never blocked.
					continue
				}
				if err := p.OnDocument(gctx, doc, flag); err != nil {
					failed.Add(1)
					flag.Set()
					dlog.ErrorContext(ctx, "document failed", "document", doc.Name, "error", err)
					return fmt.Errorf("duplicate %d: document %q: %w", i, doc.Name, err)
				}
				processed.Add(1)
				dlog.DebugContext(ctx, "document processed", "document", doc.Name)

				if sink != nil {
					sinkMu.Lock()
					err := sink(doc)
					sinkMu.Unlock()
					if err != nil {
						flag.Set()
						return fmt.Errorf("duplicate %d: sink %q: %w", i, doc.Name, err)
					}
				}
			}
			return nil
		})
	}

	err := g.Wait()
	stats.Documents = processed.Load()
	stats.Failed = failed.Load()
	stats.Duration = time.Since(start)

	if err != nil {
		log.ErrorContext(ctx, "run failed", "documents", stats.Documents, "error", err)
		return stats, err
	}
	log.InfoContext(ctx, "run finished", "documents", stats.Documents, "duration", stats.Duration)
	return stats, nil
}

// start runs OnRunStart on every duplicate concurrently and waits for all of
// them, so no document is processed before every duplicate holds its shared
// resources. If any start fails, the started duplicates are ended with the
// joined error.
func (r *Runner) start(ctx context.Context, log *slog.Logger, procs []Processor) error {
	errs := make([]error, len(procs))
	var wg sync.WaitGroup
	for i, p := range procs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.OnRunStart(ctx); err != nil {
				errs[i] = fmt.Errorf("duplicate %d: start: %w", i, err)
			}
		}()
	}
	wg.Wait()

	err := errors.Join(errs...)
	if err == nil {
		return nil
	}

	// Ends run concurrently: an opener may wait for the others to let go.
	endCtx := context.WithoutCancel(ctx)
	for i, p := range procs {
		if errs[i] != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if endErr := p.OnRunEnd(endCtx, err); endErr != nil {
				log.ErrorContext(ctx, "run end failed", "duplicate", i, "error", endErr)
			}
		}()
	}
	wg.Wait()
	return err
}
