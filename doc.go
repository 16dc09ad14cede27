// Package kvlookup enriches text annotations with values looked up in a
// pre-built, read-only key-value store.
//
// A Stage is one duplicate of the look-up step of a document pipeline. Every
// duplicate of a stage shares a Registry, which opens the store once and
// hands the same Handle to all of them; the duplicate built as opener closes
// it after the others released their references.
//
// # Quick Start
//
//	cfg := kvlookup.DefaultConfig()
//	cfg.StoreURL = "countries.kvl"
//	cfg.ValueFeature = "country"
//
//	registry := kvlookup.NewRegistry()
//	defer registry.Close()
//
//	runner := pipeline.NewRunner(4)
//	stats, err := runner.Run(ctx, docs, func(dup int) (pipeline.Processor, error) {
//	    stage, err := kvlookup.NewStage(cfg, registry, dup == 0)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return stage, nil
//	}, nil)
//
// # Stores
//
// Store files are written with the kvlookup CLI ("kvlookup build") and read
// either memory-mapped (MemoryMapped) or with positional reads (FileOnly).
// Remote locations such as s3://bucket/countries.kvl are fetched into a
// local cache first:
//
//	s3Store, _ := s3.New(ctx, "bucket")
//	stage, _ := kvlookup.NewStage(cfg, registry, true,
//	    kvlookup.WithBlobStore("s3://bucket", s3Store),
//	    kvlookup.WithCacheDir("/fast/nvme"))
//
// Setting Config.SQL reads a table of a SQL database instead.
//
// # Look-up Rules
//
// The key of an annotation is its KeyFeature value, which must be a string,
// or its covered text with white space collapsed. Annotations without a key
// are skipped. A key missing from the store writes a null value, so the
// value feature exists on every annotation that had a key.
package kvlookup
