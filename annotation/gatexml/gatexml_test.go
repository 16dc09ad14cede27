package gatexml

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kvlookup/annotation"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<GateDocument version="3">
<GateDocumentFeatures>
<Feature><Name className="java.lang.String">source</Name><Value className="java.lang.String">unit-test</Value></Feature>
</GateDocumentFeatures>
<TextWithNodes><Node id="0"/>paris<Node id="5"/> and <Node id="10"/>tokyo<Node id="15"/></TextWithNodes>
<AnnotationSet>
<Annotation Id="1" Type="Lookup" StartNode="0" EndNode="5">
<Feature><Name className="java.lang.String">rank</Name><Value className="java.lang.Integer">3</Value></Feature>
</Annotation>
<Annotation Id="2" Type="Lookup" StartNode="10" EndNode="15"></Annotation>
</AnnotationSet>
<AnnotationSet Name="Key">
<Annotation Id="3" Type="Sentence" StartNode="0" EndNode="15">
<Feature><Name className="java.lang.String">gold</Name><Value className="java.lang.Boolean">true</Value></Feature>
</Annotation>
</AnnotationSet>
</GateDocument>`

func TestRead(t *testing.T) {
	doc, err := Read(strings.NewReader(sample), "sample")
	require.NoError(t, err)

	assert.Equal(t, "sample", doc.Name)
	assert.Equal(t, "paris and tokyo", doc.Text())

	src, ok := doc.Features().Get("source")
	require.True(t, ok)
	assert.Equal(t, annotation.String("unit-test"), src)

	lookups := doc.Annotations().Get("Lookup")
	require.Len(t, lookups, 2)
	assert.Equal(t, annotation.Span{Start: 0, End: 5}, lookups[0].Span)
	assert.Equal(t, annotation.Span{Start: 10, End: 15}, lookups[1].Span)

	rank, ok := lookups[0].Features.Get("rank")
	require.True(t, ok)
	assert.Equal(t, annotation.Int(3), rank)

	covered, err := doc.CoveredText(lookups[1])
	require.NoError(t, err)
	assert.Equal(t, "tokyo", covered)

	sentences := doc.AnnotationSet("Key").Get("Sentence")
	require.Len(t, sentences, 1)
	gold, _ := sentences[0].Features.Get("gold")
	assert.Equal(t, annotation.Bool(true), gold)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not xml", "<<<"},
		{"no root", `<Other/>`},
		{"no text", `<GateDocument></GateDocument>`},
		{"bad span", `<GateDocument><TextWithNodes>ab</TextWithNodes><AnnotationSet><Annotation Id="1" Type="X" StartNode="0" EndNode="9"/></AnnotationSet></GateDocument>`},
		{"bad id", `<GateDocument><TextWithNodes>ab</TextWithNodes><AnnotationSet><Annotation Id="x" Type="X" StartNode="0" EndNode="1"/></AnnotationSet></GateDocument>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input), tt.name)
			var pe *ParseError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	doc := annotation.NewDocument("rt", "Zürich & Genève <3")
	set := doc.Annotations()
	a, err := set.Add("Lookup", annotation.Span{Start: 0, End: 6}, nil)
	require.NoError(t, err)
	a.Features.Put("country", annotation.String("CH"))
	a.Features.Put("missing", annotation.Null())
	a.Features.Put("score", annotation.Float(0.5))
	_, err = doc.AnnotationSet("Key").Add("Lookup", annotation.Span{Start: 9, End: 15}, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, doc))

	got, err := Read(&buf, "rt")
	require.NoError(t, err)
	assert.Equal(t, doc.Text(), got.Text())

	anns := got.Annotations().Get("Lookup")
	require.Len(t, anns, 1)
	assert.Equal(t, a.ID, anns[0].ID)
	assert.Equal(t, a.Span, anns[0].Span)
	assert.Equal(t, []string{"country", "missing", "score"}, anns[0].Features.Keys())

	country, _ := anns[0].Features.Get("country")
	assert.Equal(t, annotation.String("CH"), country)
	missing, ok := anns[0].Features.Get("missing")
	require.True(t, ok)
	assert.True(t, missing.IsNull())
	score, _ := anns[0].Features.Get("score")
	assert.Equal(t, annotation.Float(0.5), score)

	key := got.AnnotationSet("Key").Get("Lookup")
	require.Len(t, key, 1)
	covered, err := got.CoveredText(key[0])
	require.NoError(t, err)
	assert.Equal(t, "Genève", covered)
}

func TestWriteFile_XZ(t *testing.T) {
	doc := annotation.NewDocument("compressed", "paris")
	_, err := doc.Annotations().Add("Lookup", annotation.Span{Start: 0, End: 5}, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "compressed.xml.xz")
	require.NoError(t, WriteFile(path, doc))

	got, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "compressed", got.Name)
	assert.Equal(t, "paris", got.Text())
	assert.Equal(t, 1, got.Annotations().Count("Lookup"))
}

func TestDocumentName(t *testing.T) {
	assert.Equal(t, "doc", DocumentName("/a/b/doc.xml"))
	assert.Equal(t, "doc", DocumentName("doc.xml.xz"))
	assert.Equal(t, "doc.txt", DocumentName("doc.txt"))
}
