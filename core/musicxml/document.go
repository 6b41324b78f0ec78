// Package musicxml reads, rewrites, and writes MusicXML scores.
//
// Documents are held as xmlquery trees. Transpose never mutates its input:
// it works on a deep copy made by Clone and returns that copy.
//
// Security Notes:
//   - xmlquery parses with Go's encoding/xml, which never fetches external
//     entities, so DOCTYPE references to the MusicXML DTD are not resolved.
package musicxml

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/ScoreShift/core/errors"
	"github.com/FocuswithJustin/ScoreShift/core/pitch"
)

// Precompiled selectors for the elements the rewriter touches.
var (
	pitchExpr       = xpath.MustCompile("//pitch")
	fifthsExpr      = xpath.MustCompile("//key/fifths")
	modeExpr        = xpath.MustCompile("//key/mode")
	noteExpr        = xpath.MustCompile("//note")
	stemExpr        = xpath.MustCompile("//stem")
	midiProgramExpr = xpath.MustCompile("//midi-instrument/midi-program")
	titleExpr       = xpath.MustCompile("//work/work-title | //movement-title")
	partExpr        = xpath.MustCompile("//part-list/score-part")
)

// Document is a parsed MusicXML score.
type Document struct {
	root *xmlquery.Node
}

// Parse parses MusicXML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader parses MusicXML from r.
func ParseReader(r io.Reader) (*Document, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, errors.NewParse("MusicXML", "", err.Error())
	}
	return &Document{root: root}, nil
}

// Clone returns a deep copy of d. Changes to the copy never reach d.
func (d *Document) Clone() *Document {
	if d == nil || d.root == nil {
		return &Document{}
	}
	return &Document{root: cloneNode(d.root)}
}

func cloneNode(n *xmlquery.Node) *xmlquery.Node {
	c := new(xmlquery.Node)
	*c = *n
	c.Parent, c.FirstChild, c.LastChild, c.PrevSibling, c.NextSibling = nil, nil, nil, nil, nil
	if n.Attr != nil {
		c.Attr = append([]xmlquery.Attr(nil), n.Attr...)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		xmlquery.AddChild(c, cloneNode(child))
	}
	return c
}

// Serialize converts the document back to XML bytes.
func (d *Document) Serialize() []byte {
	if d == nil || d.root == nil {
		return nil
	}
	return []byte(d.root.OutputXML(true))
}

// RootName returns the name of the root element ("score-partwise" or
// "score-timewise" for MusicXML), or "" for an empty document.
func (d *Document) RootName() string {
	if d == nil || d.root == nil {
		return ""
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return child.Data
		}
	}
	return ""
}

// KeySignature returns the fifths value of the first key signature.
func (d *Document) KeySignature() (int, error) {
	if d == nil || d.root == nil {
		return 0, errors.ErrMissingKeySignature
	}
	n := xmlquery.QuerySelector(d.root, fifthsExpr)
	if n == nil {
		return 0, errors.ErrMissingKeySignature
	}
	return parseFifths(n)
}

// Mode returns the mode of the first key signature, defaulting to "major".
func (d *Document) Mode() string {
	if d == nil || d.root == nil {
		return "major"
	}
	if n := xmlquery.QuerySelector(d.root, modeExpr); n != nil {
		if mode := strings.TrimSpace(n.InnerText()); mode != "" {
			return mode
		}
	}
	return "major"
}

// Title returns the work or movement title, if any.
func (d *Document) Title() string {
	if d == nil || d.root == nil {
		return ""
	}
	if n := xmlquery.QuerySelector(d.root, titleExpr); n != nil {
		return strings.TrimSpace(n.InnerText())
	}
	return ""
}

// Parts returns the number of parts declared in the part list.
func (d *Document) Parts() int {
	if d == nil || d.root == nil {
		return 0
	}
	return len(xmlquery.QuerySelectorAll(d.root, partExpr))
}

// Pitches returns every pitch in document order.
func (d *Document) Pitches() ([]pitch.Pitch, error) {
	if d == nil || d.root == nil {
		return nil, nil
	}
	nodes := xmlquery.QuerySelectorAll(d.root, pitchExpr)
	out := make([]pitch.Pitch, 0, len(nodes))
	for _, n := range nodes {
		p, err := readPitch(n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Query runs an XPath expression against the document and returns the
// inner text of every match.
func (d *Document) Query(expr string) ([]string, error) {
	if d == nil || d.root == nil {
		return nil, nil
	}
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	nodes := xmlquery.QuerySelectorAll(d.root, compiled)
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = strings.TrimSpace(n.InnerText())
	}
	return out, nil
}

func parseFifths(n *xmlquery.Node) (int, error) {
	text := strings.TrimSpace(n.InnerText())
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, errors.NewUnknownKeySignature(text)
	}
	return v, nil
}

// childElement returns the first child element of n with the given name.
func childElement(n *xmlquery.Node, name string) *xmlquery.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == name {
			return child
		}
	}
	return nil
}

// setText replaces the children of n with a single text node.
func setText(n *xmlquery.Node, text string) {
	n.FirstChild, n.LastChild = nil, nil
	xmlquery.AddChild(n, &xmlquery.Node{Type: xmlquery.TextNode, Data: text})
}

func newElement(name, text string) *xmlquery.Node {
	el := &xmlquery.Node{Type: xmlquery.ElementNode, Data: name}
	xmlquery.AddChild(el, &xmlquery.Node{Type: xmlquery.TextNode, Data: text})
	return el
}

// insertAfter links n into the tree as the next sibling of prev.
func insertAfter(prev, n *xmlquery.Node) {
	n.Parent = prev.Parent
	n.PrevSibling = prev
	n.NextSibling = prev.NextSibling
	if prev.NextSibling != nil {
		prev.NextSibling.PrevSibling = n
	} else if prev.Parent != nil {
		prev.Parent.LastChild = n
	}
	prev.NextSibling = n
}
