package kvlookup

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/kvlookup/annotation"
)

// Outcome is the result of enriching one annotation.
type Outcome int

const (
	// Skipped means no key could be derived; nothing was written.
	Skipped Outcome = iota
	// Matched means the value was found and written.
	Matched
	// Unmatched means the key was absent from the store; Null was written.
	Unmatched
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Matched:
		return "matched"
	case Unmatched:
		return "unmatched"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// CanonicalKey collapses runs of Unicode white space to a single space and
// trims both ends.
func CanonicalKey(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Enrich looks up the key of ann in store and writes the result into
// cfg.ValueFeature.
//
// The key is the string value of cfg.KeyFeature, or the canonicalized covered
// text when no key feature is configured. A missing or non-string key feature
// skips the annotation without writing. A key absent from the store writes
// annotation.Null, so the value feature always exists once a key was derived.
func Enrich(ctx context.Context, doc *annotation.Document, ann *annotation.Annotation, store Store, cfg Config) (Outcome, error) {
	key, ok, err := lookupKey(doc, ann, cfg.KeyFeature)
	if err != nil {
		return Skipped, err
	}
	if !ok {
		return Skipped, nil
	}

	v, found, err := store.Get(ctx, key)
	if err != nil {
		return Skipped, fmt.Errorf("look up %q: %w", key, err)
	}
	if !found {
		ann.Features.Put(cfg.ValueFeature, annotation.Null())
		return Unmatched, nil
	}
	ann.Features.Put(cfg.ValueFeature, v)
	return Matched, nil
}

func lookupKey(doc *annotation.Document, ann *annotation.Annotation, keyFeature string) (string, bool, error) {
	if keyFeature != "" {
		v, ok := ann.Features.Get(keyFeature)
		if !ok {
			return "", false, nil
		}
		s, ok := v.AsString()
		return s, ok, nil
	}

	text, err := doc.CoveredText(ann)
	if err != nil {
		return "", false, err
	}
	return CanonicalKey(text), true, nil
}
