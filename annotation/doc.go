// Package annotation provides the stand-off annotation model consumed by the
// lookup stage.
//
// # Core Types
//
//   - Document: text plus a default (unnamed) and any number of named annotation sets
//   - AnnotationSet: a named collection of annotations indexed by type
//   - Annotation: a typed span over the document text carrying a FeatureMap
//   - FeatureMap: insertion-ordered mapping from feature name to Value
//   - Value: tagged variant (null, string, int, float, bool, other)
//
// # Offsets
//
// Spans are expressed in Unicode code points, not bytes. Document.Content and
// Document.CoveredText slice the text accordingly.
//
// # Enumeration Order
//
// Annotation IDs are unique per document and assigned in increasing order.
// AnnotationSet.Get enumerates annotations of a type in ascending ID order,
// backed by a roaring bitmap per type.
//
// # Thread Safety
//
// Documents are not safe for concurrent mutation. A pipeline hands each
// document to exactly one worker at a time.
package annotation
