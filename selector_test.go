package kvlookup

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kvlookup/annotation"
)

func ids(t *testing.T, doc *annotation.Document, cfg Config) []uint32 {
	t.Helper()
	seq, err := Select(doc, cfg)
	require.NoError(t, err)
	var out []uint32
	for a := range seq {
		out = append(out, a.ID)
	}
	return out
}

func TestSelect_NoContainingTypeIsIdentity(t *testing.T) {
	doc := annotation.NewDocument("d", "one two three four")
	set := doc.Annotations()
	// Added out of offset order: the result follows IDs, not offsets.
	c, _ := set.Add("Lookup", annotation.Span{Start: 8, End: 13}, nil)
	_, _ = set.Add("Token", annotation.Span{Start: 0, End: 3}, nil)
	a, _ := set.Add("Lookup", annotation.Span{Start: 0, End: 3}, nil)
	b, _ := set.Add("Lookup", annotation.Span{Start: 4, End: 7}, nil)

	cfg := DefaultConfig()
	want := []uint32{c.ID, a.ID, b.ID}
	assert.Equal(t, want, ids(t, doc, cfg))

	var fromSet []uint32
	for _, x := range set.Get("Lookup") {
		fromSet = append(fromSet, x.ID)
	}
	assert.Equal(t, fromSet, ids(t, doc, cfg))
}

func TestSelect_ContainingType(t *testing.T) {
	doc, first, _ := scenarioDoc(t)
	_, err := doc.Annotations().Add("Sentence", annotation.Span{Start: 0, End: 9}, nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ContainingAnnotationType = "Sentence"
	assert.Equal(t, []uint32{first.ID}, ids(t, doc, cfg))
}

func TestSelect_GroupedByContainingAnnotation(t *testing.T) {
	doc := annotation.NewDocument("d", "aaa bbb ccc ddd")
	set := doc.Annotations()
	a, _ := set.Add("Lookup", annotation.Span{Start: 0, End: 3}, nil)
	b, _ := set.Add("Lookup", annotation.Span{Start: 4, End: 7}, nil)
	c, _ := set.Add("Lookup", annotation.Span{Start: 8, End: 11}, nil)
	_, _ = set.Add("Lookup", annotation.Span{Start: 10, End: 15}, nil) // crosses both sentences
	// The later sentence has the lower ID, so it is walked first.
	_, _ = set.Add("Sentence", annotation.Span{Start: 8, End: 11}, nil)
	_, _ = set.Add("Sentence", annotation.Span{Start: 0, End: 7}, nil)

	cfg := DefaultConfig()
	cfg.ContainingAnnotationType = "Sentence"
	assert.Equal(t, []uint32{c.ID, a.ID, b.ID}, ids(t, doc, cfg))
}

func TestSelect_OverlappingContainersVisitTwice(t *testing.T) {
	doc := annotation.NewDocument("d", "aaa bbb ccc")
	set := doc.Annotations()
	a, _ := set.Add("Lookup", annotation.Span{Start: 4, End: 7}, nil)
	_, _ = set.Add("Sentence", annotation.Span{Start: 0, End: 7}, nil)
	_, _ = set.Add("Sentence", annotation.Span{Start: 4, End: 11}, nil)

	cfg := DefaultConfig()
	cfg.ContainingAnnotationType = "Sentence"
	got := ids(t, doc, cfg)
	assert.Equal(t, []uint32{a.ID, a.ID}, got)

	for _, id := range got {
		inner, _ := set.ByID(id)
		contained := slices.ContainsFunc(set.Get("Sentence"), func(s *annotation.Annotation) bool {
			return s.Span.Contains(inner.Span)
		})
		assert.True(t, contained)
	}
}

func TestSelect_NamedSet(t *testing.T) {
	doc := annotation.NewDocument("d", "paris")
	_, _ = doc.Annotations().Add("Lookup", annotation.Span{Start: 0, End: 5}, nil)
	k, _ := doc.AnnotationSet("Key").Add("Lookup", annotation.Span{Start: 0, End: 5}, nil)

	cfg := DefaultConfig()
	cfg.InputAnnotationSet = "Key"
	assert.Equal(t, []uint32{k.ID}, ids(t, doc, cfg))

	cfg.InputAnnotationSet = "Missing"
	assert.Empty(t, ids(t, doc, cfg))
	assert.False(t, doc.HasAnnotationSet("Missing"), "selecting must not create sets")
}

func TestSelect_EmptyInputType(t *testing.T) {
	doc := annotation.NewDocument("d", "x")
	cfg := DefaultConfig()
	cfg.InputAnnotationType = ""

	_, err := Select(doc, cfg)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "input_annotation_type", ce.Field)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSelect_Restartable(t *testing.T) {
	doc, _, _ := scenarioDoc(t)
	seq, err := Select(doc, DefaultConfig())
	require.NoError(t, err)

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())
	_, _ = doc.Annotations().Add("Lookup", annotation.Span{Start: 6, End: 9}, nil)
	assert.Equal(t, 3, count(), "each iteration re-reads the set")
}
