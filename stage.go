package kvlookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/kvlookup/annotation"
	"github.com/hupe1980/kvlookup/blobstore"
	"github.com/hupe1980/kvlookup/pipeline"
	"github.com/hupe1980/kvlookup/sqlstore"
)

var _ pipeline.Processor = (*Stage)(nil)

// DocumentResult counts the outcomes of one document.
type DocumentResult struct {
	Annotations int
	Matched     int
	Unmatched   int
	Skipped     int
}

func (r *DocumentResult) add(o Outcome) {
	r.Annotations++
	switch o {
	case Matched:
		r.Matched++
	case Unmatched:
		r.Unmatched++
	default:
		r.Skipped++
	}
}

// Stage is one duplicate of the look-up processing resource.
//
// All duplicates of a stage share a Registry. Exactly one of them is built
// with opener set; it closes the shared store after every other duplicate
// released it.
type Stage struct {
	cfg      Config
	key      ResourceKey
	registry *Registry
	opener   bool
	opts     options

	handle *Handle
}

// NewStage validates cfg and creates a stage bound to registry.
func NewStage(cfg Config, registry *Registry, opener bool, optFns ...Option) (*Stage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, &ConfigurationError{Field: "registry", Message: "must not be nil"}
	}
	key, err := cfg.ResourceKey()
	if err != nil {
		return nil, err
	}
	return &Stage{
		cfg:      cfg,
		key:      key,
		registry: registry,
		opener:   opener,
		opts:     applyOptions(optFns),
	}, nil
}

// Opener reports whether this duplicate closes the shared store.
func (s *Stage) Opener() bool { return s.opener }

// Key returns the resource key of the configured store.
func (s *Stage) Key() ResourceKey { return s.key }

// Store returns the shared store, nil outside a run.
func (s *Stage) Store() Store {
	if s.handle == nil {
		return nil
	}
	return s.handle.Store()
}

// OnRunStart acquires the shared store, opening it if this is the first
// duplicate to ask. An open failure is a *StoreOpenError for every duplicate.
func (s *Stage) OnRunStart(ctx context.Context) error {
	start := time.Now()
	opened := false

	h, err := s.registry.Acquire(s.key, func() (Store, error) {
		opened = true
		return s.open(ctx)
	})
	d := time.Since(start)
	// A failed open counts as an open for every duplicate that waited on it.
	s.opts.metricsCollector.RecordStoreOpen(err == nil && !opened, d, err)
	if err != nil {
		if opened {
			s.opts.logger.LogStoreOpen(ctx, s.key, 0, d, err)
		}
		return err
	}

	if opened {
		s.opts.logger.LogStoreOpen(ctx, s.key, h.Store().Len(), d, nil)
	} else {
		s.opts.logger.LogStoreShared(ctx, s.key, s.registry.Refs(s.key))
	}
	s.handle = h
	return nil
}

func (s *Stage) open(ctx context.Context) (Store, error) {
	if s.cfg.SQL != nil {
		st, err := sqlstore.Open(ctx, *s.cfg.SQL)
		if err != nil {
			return nil, err
		}
		return st, nil
	}

	path, err := s.localPath(ctx)
	if err != nil {
		return nil, err
	}
	st, err := openFileStore(path, s.cfg.LoadingMode, s.cfg.MapName, s.opts)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// localPath returns the store file path, fetching remote stores into the
// cache directory first.
func (s *Stage) localPath(ctx context.Context) (string, error) {
	url := s.key.Location
	if !blobstore.IsRemote(url) {
		return url, nil
	}
	if s.opts.router == nil {
		return "", fmt.Errorf("%w for %q", blobstore.ErrNoStore, url)
	}
	store, name, err := s.opts.router.Resolve(url)
	if err != nil {
		return "", err
	}

	res, err := blobstore.Fetch(ctx, store, name, blobstore.CachePath(s.opts.cacheDir, url), s.opts.resources)
	if err != nil {
		return "", err
	}
	s.opts.logger.DebugContext(ctx, "remote store fetched",
		"location", url,
		"path", res.Path,
		"size", res.Size,
		"cached", res.Cached,
	)
	return res.Path, nil
}

// OnDocument implements pipeline.Processor.
func (s *Stage) OnDocument(ctx context.Context, doc *annotation.Document, intr pipeline.Interrupter) error {
	_, err := s.Process(ctx, doc, intr)
	return err
}

// Process enriches every selected annotation of doc. intr is polled after
// each annotation; once it reports an interruption the document is abandoned
// with an error wrapping ErrInterrupted. Features already written stay.
func (s *Stage) Process(ctx context.Context, doc *annotation.Document, intr pipeline.Interrupter) (DocumentResult, error) {
	var res DocumentResult
	if s.handle == nil {
		return res, fmt.Errorf("process %q: %w", doc.Name, ErrNotAcquired)
	}

	start := time.Now()
	err := s.process(ctx, doc, intr, &res)
	s.opts.metricsCollector.RecordDocument(res.Annotations, time.Since(start), err)
	s.opts.logger.LogDocument(ctx, doc.Name, res, err)
	return res, err
}

func (s *Stage) process(ctx context.Context, doc *annotation.Document, intr pipeline.Interrupter, res *DocumentResult) error {
	seq, err := Select(doc, s.cfg)
	if err != nil {
		return err
	}
	store := s.handle.Store()

	for ann := range seq {
		t := time.Now()
		outcome, err := Enrich(ctx, doc, ann, store, s.cfg)
		s.opts.metricsCollector.RecordLookup(outcome, time.Since(t), err)
		if err != nil {
			return fmt.Errorf("document %q, annotation %d: %w", doc.Name, ann.ID, err)
		}
		res.add(outcome)

		if intr != nil && intr.Interrupted() {
			return fmt.Errorf("%w: document %q after %d annotations", ErrInterrupted, doc.Name, res.Annotations)
		}
	}
	return nil
}

// OnRunEnd releases the shared store. The opener blocks until the other
// duplicates released theirs and then closes it; close failures are returned
// but leave processed documents untouched.
func (s *Stage) OnRunEnd(ctx context.Context, _ error) error {
	if s.handle == nil {
		return nil
	}
	s.handle = nil

	err := s.registry.Release(ctx, s.key, s.opener)
	if s.opener && !errors.Is(err, ErrNotAcquired) {
		s.opts.logger.LogStoreClose(ctx, s.key, err)
	}
	return err
}
