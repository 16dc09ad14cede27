package gatexml

import (
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/ulikunitz/xz"

	"github.com/hupe1980/kvlookup/annotation"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// Write serializes doc as GATE XML.
func Write(w io.Writer, doc *annotation.Document) error {
	root := element("GateDocument")
	xmlquery.AddAttr(root, "version", "3")

	feats := element("GateDocumentFeatures")
	appendFeatures(feats, doc.Features())
	xmlquery.AddChild(root, feats)

	xmlquery.AddChild(root, textWithNodes(doc))

	xmlquery.AddChild(root, annotationSet(doc.Annotations()))
	for _, name := range doc.AnnotationSetNames() {
		xmlquery.AddChild(root, annotationSet(doc.AnnotationSet(name)))
	}

	if _, err := io.WriteString(w, xmlHeader); err != nil {
		return err
	}
	_, err := io.WriteString(w, root.OutputXML(true))
	return err
}

// WriteFile writes doc to path; ".xz" paths are compressed.
func WriteFile(path string, doc *annotation.Document) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if !strings.HasSuffix(path, ".xz") {
		return Write(f, doc)
	}
	xzw, err := xz.NewWriter(f)
	if err != nil {
		return err
	}
	if err := Write(xzw, doc); err != nil {
		_ = xzw.Close()
		return err
	}
	return xzw.Close()
}

func element(name string) *xmlquery.Node {
	return &xmlquery.Node{Type: xmlquery.ElementNode, Data: name}
}

func text(s string) *xmlquery.Node {
	return &xmlquery.Node{Type: xmlquery.TextNode, Data: s}
}

// textWithNodes emits the text with a Node marker at every annotation boundary.
func textWithNodes(doc *annotation.Document) *xmlquery.Node {
	twn := element("TextWithNodes")
	xmlquery.AddAttr(twn, "xml:space", "preserve")

	seen := make(map[int]struct{})
	var offsets []int
	collect := func(set *annotation.AnnotationSet) {
		for a := range set.All() {
			for _, off := range []int{a.Span.Start, a.Span.End} {
				if _, ok := seen[off]; !ok {
					seen[off] = struct{}{}
					offsets = append(offsets, off)
				}
			}
		}
	}
	collect(doc.Annotations())
	for _, name := range doc.AnnotationSetNames() {
		collect(doc.AnnotationSet(name))
	}
	slices.Sort(offsets)

	runes := []rune(doc.Text())
	prev := 0
	for _, off := range offsets {
		if off > prev {
			xmlquery.AddChild(twn, text(string(runes[prev:off])))
		}
		node := element("Node")
		xmlquery.AddAttr(node, "id", strconv.Itoa(off))
		xmlquery.AddChild(twn, node)
		prev = off
	}
	if prev < len(runes) {
		xmlquery.AddChild(twn, text(string(runes[prev:])))
	}
	return twn
}

func annotationSet(set *annotation.AnnotationSet) *xmlquery.Node {
	n := element("AnnotationSet")
	if set.Name() != "" {
		xmlquery.AddAttr(n, "Name", set.Name())
	}
	for a := range set.All() {
		an := element("Annotation")
		xmlquery.AddAttr(an, "Id", strconv.FormatUint(uint64(a.ID), 10))
		xmlquery.AddAttr(an, "Type", a.Type)
		xmlquery.AddAttr(an, "StartNode", strconv.Itoa(a.Span.Start))
		xmlquery.AddAttr(an, "EndNode", strconv.Itoa(a.Span.End))
		appendFeatures(an, a.Features)
		xmlquery.AddChild(n, an)
	}
	return n
}

func appendFeatures(parent *xmlquery.Node, fm *annotation.FeatureMap) {
	for k, v := range fm.All() {
		f := element("Feature")

		name := element("Name")
		xmlquery.AddAttr(name, "className", classString)
		xmlquery.AddChild(name, text(k))
		xmlquery.AddChild(f, name)

		val := element("Value")
		if v.IsNull() {
			xmlquery.AddAttr(val, "className", classObject)
			xmlquery.AddAttr(val, "isNull", "true")
		} else {
			xmlquery.AddAttr(val, "className", className(v))
			xmlquery.AddChild(val, text(v.String()))
		}
		xmlquery.AddChild(f, val)
		xmlquery.AddChild(parent, f)
	}
}

func className(v annotation.Value) string {
	switch v.Kind() {
	case annotation.KindString:
		return classString
	case annotation.KindInt:
		return classLong
	case annotation.KindFloat:
		return classDouble
	case annotation.KindBool:
		return classBoolean
	default:
		return classObject
	}
}
