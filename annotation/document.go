package annotation

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// Document owns the text and the annotation sets laid over it.
type Document struct {
	// Name identifies the document in logs and output file names.
	Name string

	text     string
	runes    []rune
	features *FeatureMap

	defaultSet *AnnotationSet
	named      map[string]*AnnotationSet

	ids    *roaring.Bitmap
	nextID uint32
}

// NewDocument creates a document over text.
func NewDocument(name, text string) *Document {
	d := &Document{
		Name:     name,
		text:     text,
		runes:    []rune(text),
		features: NewFeatureMap(),
		named:    make(map[string]*AnnotationSet),
		ids:      roaring.New(),
	}
	d.defaultSet = newAnnotationSet(d, "")
	return d
}

// Text returns the document text.
func (d *Document) Text() string { return d.text }

// Length returns the text length in code points.
func (d *Document) Length() int { return len(d.runes) }

// Features returns the document-level features.
func (d *Document) Features() *FeatureMap { return d.features }

// Annotations returns the default (unnamed) annotation set.
func (d *Document) Annotations() *AnnotationSet { return d.defaultSet }

// AnnotationSet returns the named set, creating it on first use.
// The empty name selects the default set.
func (d *Document) AnnotationSet(name string) *AnnotationSet {
	if name == "" {
		return d.defaultSet
	}
	s, ok := d.named[name]
	if !ok {
		s = newAnnotationSet(d, name)
		d.named[name] = s
	}
	return s
}

// HasAnnotationSet reports whether a named set exists.
func (d *Document) HasAnnotationSet(name string) bool {
	if name == "" {
		return true
	}
	_, ok := d.named[name]
	return ok
}

// AnnotationSetNames returns the names of the named sets, sorted.
func (d *Document) AnnotationSetNames() []string {
	names := make([]string, 0, len(d.named))
	for n := range d.named {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Content returns the text covered by span.
func (d *Document) Content(span Span) (string, error) {
	if span.Start < 0 || span.End < span.Start || span.End > len(d.runes) {
		return "", fmt.Errorf("%w: %s for document of length %d", ErrInvalidSpan, span, len(d.runes))
	}
	return string(d.runes[span.Start:span.End]), nil
}

// CoveredText returns the text covered by a.
func (d *Document) CoveredText(a *Annotation) (string, error) {
	return d.Content(a.Span)
}
