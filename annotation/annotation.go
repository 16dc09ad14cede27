package annotation

import (
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// ErrInvalidSpan is returned when a span is negative, reversed or out of the document.
var ErrInvalidSpan = errors.New("invalid span")

// Span is a half-open range [Start, End) of code point offsets.
type Span struct {
	Start int
	End   int
}

// Len returns the number of code points covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether o lies fully within s.
func (s Span) Contains(o Span) bool {
	return s.Start <= o.Start && o.End <= s.End
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}

// Annotation is a typed, feature-bearing span over the document text.
type Annotation struct {
	ID       uint32
	Type     string
	Span     Span
	Features *FeatureMap
}

// AnnotationSet is a named collection of annotations.
type AnnotationSet struct {
	name   string
	doc    *Document
	anns   map[uint32]*Annotation
	byType map[string]*roaring.Bitmap
	all    *roaring.Bitmap
}

func newAnnotationSet(doc *Document, name string) *AnnotationSet {
	return &AnnotationSet{
		name:   name,
		doc:    doc,
		anns:   make(map[uint32]*Annotation),
		byType: make(map[string]*roaring.Bitmap),
		all:    roaring.New(),
	}
}

// Name returns the set name ("" for the default set).
func (s *AnnotationSet) Name() string { return s.name }

// Len returns the number of annotations in the set.
func (s *AnnotationSet) Len() int { return len(s.anns) }

// Add creates a new annotation with the next free document-wide ID.
// A nil feature map is replaced by an empty one.
func (s *AnnotationSet) Add(typ string, span Span, fm *FeatureMap) (*Annotation, error) {
	return s.AddWithID(s.doc.nextID, typ, span, fm)
}

// AddWithID creates an annotation with an explicit ID, as needed when loading
// serialized documents. IDs must be unique within the document.
func (s *AnnotationSet) AddWithID(id uint32, typ string, span Span, fm *FeatureMap) (*Annotation, error) {
	if typ == "" {
		return nil, errors.New("annotation type must not be empty")
	}
	if span.Start < 0 || span.End < span.Start || span.End > s.doc.Length() {
		return nil, fmt.Errorf("%w: %s for document of length %d", ErrInvalidSpan, span, s.doc.Length())
	}
	if s.doc.ids.Contains(id) {
		return nil, fmt.Errorf("duplicate annotation id %d", id)
	}
	if fm == nil {
		fm = NewFeatureMap()
	}

	a := &Annotation{ID: id, Type: typ, Span: span, Features: fm}
	s.anns[id] = a
	s.all.Add(id)

	bm, ok := s.byType[typ]
	if !ok {
		bm = roaring.New()
		s.byType[typ] = bm
	}
	bm.Add(id)

	s.doc.ids.Add(id)
	if id >= s.doc.nextID {
		s.doc.nextID = id + 1
	}
	return a, nil
}

// Remove deletes an annotation from the set.
func (s *AnnotationSet) Remove(a *Annotation) bool {
	if _, ok := s.anns[a.ID]; !ok {
		return false
	}
	delete(s.anns, a.ID)
	s.all.Remove(a.ID)
	if bm, ok := s.byType[a.Type]; ok {
		bm.Remove(a.ID)
		if bm.IsEmpty() {
			delete(s.byType, a.Type)
		}
	}
	s.doc.ids.Remove(a.ID)
	return true
}

// ByID returns the annotation with the given ID.
func (s *AnnotationSet) ByID(id uint32) (*Annotation, bool) {
	a, ok := s.anns[id]
	return a, ok
}

// Get returns all annotations of the given type in ascending ID order.
func (s *AnnotationSet) Get(typ string) []*Annotation {
	bm, ok := s.byType[typ]
	if !ok {
		return nil
	}
	out := make([]*Annotation, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, s.anns[it.Next()])
	}
	return out
}

// Count returns the number of annotations of the given type.
func (s *AnnotationSet) Count(typ string) int {
	bm, ok := s.byType[typ]
	if !ok {
		return 0
	}
	return int(bm.GetCardinality())
}

// All iterates over every annotation of the set in ascending ID order.
func (s *AnnotationSet) All() iter.Seq[*Annotation] {
	return func(yield func(*Annotation) bool) {
		it := s.all.Iterator()
		for it.HasNext() {
			if !yield(s.anns[it.Next()]) {
				return
			}
		}
	}
}

// Types returns the annotation types present in the set, sorted.
func (s *AnnotationSet) Types() []string {
	types := make([]string, 0, len(s.byType))
	for t := range s.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Contained returns the annotations of anns whose span lies within outer,
// preserving the order of anns.
func Contained(anns []*Annotation, outer Span) []*Annotation {
	var out []*Annotation
	for _, a := range anns {
		if outer.Contains(a.Span) {
			out = append(out, a)
		}
	}
	return out
}
