package kvlookup

import (
	"iter"

	"github.com/hupe1980/kvlookup/annotation"
)

// Select returns the annotations to enrich in doc.
//
// Without a containing type the result is every annotation of the input type
// in ascending ID order. With one, the containing annotations are walked in
// ID order and, for each, the input annotations whose span lies within it are
// yielded in their own order. An annotation inside several containing
// annotations is yielded once per containing annotation; one inside none is
// never yielded.
//
// The sequence is lazy and recomputed on every iteration.
func Select(doc *annotation.Document, cfg Config) (iter.Seq[*annotation.Annotation], error) {
	if cfg.InputAnnotationType == "" {
		return nil, &ConfigurationError{Field: "input_annotation_type", Message: "must not be empty"}
	}

	if !doc.HasAnnotationSet(cfg.InputAnnotationSet) {
		return func(func(*annotation.Annotation) bool) {}, nil
	}
	set := doc.AnnotationSet(cfg.InputAnnotationSet)

	if cfg.ContainingAnnotationType == "" {
		return func(yield func(*annotation.Annotation) bool) {
			for _, a := range set.Get(cfg.InputAnnotationType) {
				if !yield(a) {
					return
				}
			}
		}, nil
	}

	return func(yield func(*annotation.Annotation) bool) {
		inputs := set.Get(cfg.InputAnnotationType)
		for _, outer := range set.Get(cfg.ContainingAnnotationType) {
			for _, a := range annotation.Contained(inputs, outer.Span) {
				if !yield(a) {
					return
				}
			}
		}
	}, nil
}
