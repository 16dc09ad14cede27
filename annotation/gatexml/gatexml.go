// Package gatexml reads and writes documents in the GATE XML document format.
//
// The format stores the text inside <TextWithNodes>, interleaved with empty
// <Node id="N"/> markers at every offset referenced by an annotation, followed
// by one <AnnotationSet> element per set:
//
//	<GateDocument version="3">
//	  <GateDocumentFeatures>...</GateDocumentFeatures>
//	  <TextWithNodes><Node id="0"/>paris<Node id="5"/> and tokyo</TextWithNodes>
//	  <AnnotationSet>
//	    <Annotation Id="1" Type="Lookup" StartNode="0" EndNode="5">
//	      <Feature><Name className="java.lang.String">country</Name><Value className="java.lang.String">FR</Value></Feature>
//	    </Annotation>
//	  </AnnotationSet>
//	</GateDocument>
//
// Files ending in ".xz" are transparently decompressed on read and compressed
// on write.
package gatexml

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/ulikunitz/xz"

	"github.com/hupe1980/kvlookup/annotation"
)

const (
	classString  = "java.lang.String"
	classLong    = "java.lang.Long"
	classInteger = "java.lang.Integer"
	classDouble  = "java.lang.Double"
	classFloat   = "java.lang.Float"
	classBoolean = "java.lang.Boolean"
	classObject  = "java.lang.Object"
)

var (
	rootExpr        = xpath.MustCompile("/GateDocument")
	textExpr        = xpath.MustCompile("TextWithNodes")
	docFeaturesExpr = xpath.MustCompile("GateDocumentFeatures/Feature")
	setExpr         = xpath.MustCompile("AnnotationSet")
	annotationExpr  = xpath.MustCompile("Annotation")
	featureExpr     = xpath.MustCompile("Feature")
	nameExpr        = xpath.MustCompile("Name")
	valueExpr       = xpath.MustCompile("Value")
)

// ParseError describes malformed input.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse GATE XML at %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse GATE XML: %s", e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Read parses a GATE XML document from r.
func Read(r io.Reader, name string) (*annotation.Document, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, &ParseError{Path: name, Message: "invalid XML", Err: err}
	}

	gd := xmlquery.QuerySelector(root, rootExpr)
	if gd == nil {
		return nil, &ParseError{Path: name, Message: "missing GateDocument element"}
	}

	twn := xmlquery.QuerySelector(gd, textExpr)
	if twn == nil {
		return nil, &ParseError{Path: name, Message: "missing TextWithNodes element"}
	}
	text, nodes, err := readTextWithNodes(twn)
	if err != nil {
		return nil, &ParseError{Path: name, Message: err.Error(), Err: err}
	}

	doc := annotation.NewDocument(name, text)
	for _, f := range xmlquery.QuerySelectorAll(gd, docFeaturesExpr) {
		k, v := readFeature(f)
		if k != "" {
			doc.Features().Put(k, v)
		}
	}

	for _, setNode := range xmlquery.QuerySelectorAll(gd, setExpr) {
		set := doc.AnnotationSet(setNode.SelectAttr("Name"))
		for _, an := range xmlquery.QuerySelectorAll(setNode, annotationExpr) {
			if err := readAnnotation(set, an, nodes); err != nil {
				return nil, &ParseError{Path: name, Message: err.Error(), Err: err}
			}
		}
	}
	return doc, nil
}

// Open reads a GATE XML document from a file; ".xz" files are decompressed.
// The document name is the file name without ".xz" and ".xml" extensions.
func Open(path string) (*annotation.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xzr, err := xz.NewReader(f)
		if err != nil {
			return nil, &ParseError{Path: path, Message: "invalid xz stream", Err: err}
		}
		r = xzr
	}
	return Read(r, DocumentName(path))
}

// DocumentName derives a document name from a file path.
func DocumentName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".xz")
	return strings.TrimSuffix(base, ".xml")
}

func readTextWithNodes(twn *xmlquery.Node) (string, map[string]int, error) {
	var sb strings.Builder
	nodes := make(map[string]int)
	offset := 0
	for c := twn.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			sb.WriteString(c.Data)
			offset += utf8.RuneCountInString(c.Data)
		case xmlquery.ElementNode:
			if c.Data != "Node" {
				return "", nil, fmt.Errorf("unexpected element <%s> in TextWithNodes", c.Data)
			}
			id := c.SelectAttr("id")
			if id == "" {
				return "", nil, fmt.Errorf("node without id at offset %d", offset)
			}
			nodes[id] = offset
		}
	}
	return sb.String(), nodes, nil
}

func readAnnotation(set *annotation.AnnotationSet, n *xmlquery.Node, nodes map[string]int) error {
	id, err := strconv.ParseUint(n.SelectAttr("Id"), 10, 32)
	if err != nil {
		return fmt.Errorf("annotation id %q: %w", n.SelectAttr("Id"), err)
	}
	start, err := nodeOffset(n.SelectAttr("StartNode"), nodes)
	if err != nil {
		return fmt.Errorf("annotation %d: %w", id, err)
	}
	end, err := nodeOffset(n.SelectAttr("EndNode"), nodes)
	if err != nil {
		return fmt.Errorf("annotation %d: %w", id, err)
	}

	fm := annotation.NewFeatureMap()
	for _, f := range xmlquery.QuerySelectorAll(n, featureExpr) {
		k, v := readFeature(f)
		if k != "" {
			fm.Put(k, v)
		}
	}

	_, err = set.AddWithID(uint32(id), n.SelectAttr("Type"), annotation.Span{Start: start, End: end}, fm)
	return err
}

// nodeOffset resolves a node reference. Unknown node IDs fall back to the
// numeric ID, which GATE uses as the offset.
func nodeOffset(ref string, nodes map[string]int) (int, error) {
	if off, ok := nodes[ref]; ok {
		return off, nil
	}
	off, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("unknown node %q", ref)
	}
	return off, nil
}

func readFeature(f *xmlquery.Node) (string, annotation.Value) {
	nameNode := xmlquery.QuerySelector(f, nameExpr)
	if nameNode == nil {
		return "", annotation.Null()
	}
	name := nameNode.InnerText()

	valueNode := xmlquery.QuerySelector(f, valueExpr)
	if valueNode == nil || valueNode.SelectAttr("isNull") == "true" {
		return name, annotation.Null()
	}
	return name, decodeValue(valueNode.SelectAttr("className"), valueNode.InnerText())
}

func decodeValue(className, text string) annotation.Value {
	switch className {
	case classLong, classInteger:
		if i, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64); err == nil {
			return annotation.Int(i)
		}
	case classDouble, classFloat:
		if f, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
			return annotation.Float(f)
		}
	case classBoolean:
		if b, err := strconv.ParseBool(strings.TrimSpace(text)); err == nil {
			return annotation.Bool(b)
		}
	}
	return annotation.String(text)
}
