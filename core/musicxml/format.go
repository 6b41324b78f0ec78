package musicxml

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/FocuswithJustin/ScoreShift/core/encoding"
)

// ValidationResult contains the result of checking a MusicXML file.
type ValidationResult struct {
	Valid  bool
	Root   string
	Errors []ValidationError
}

// ValidationError represents a single validation problem.
type ValidationError struct {
	Line    int
	Column  int
	Message string
}

// FormatOptions controls XML formatting behavior.
type FormatOptions struct {
	Indent string // Indentation string (e.g., "  " or "\t")
}

// Validate checks that data is well-formed XML whose root element is a
// MusicXML score (score-partwise or score-timewise). It does not validate
// against the MusicXML schema.
//
// Entity expansion is disabled (CWE-611).
func Validate(data []byte) ValidationResult {
	result := ValidationResult{Valid: true}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Entity = map[string]string{}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, col := decoder.InputPos()
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Line:    line,
				Column:  col,
				Message: err.Error(),
			})
			return result
		}
		if start, ok := tok.(xml.StartElement); ok && result.Root == "" {
			result.Root = start.Name.Local
		}
	}

	switch result.Root {
	case "score-partwise", "score-timewise":
	case "":
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{Line: 1, Message: "document has no root element"})
	default:
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Line:    1,
			Message: "root element <" + result.Root + "> is not a MusicXML score",
		})
	}
	return result
}

// Format pretty-prints a document.
func Format(d *Document, opts FormatOptions) []byte {
	if d == nil || d.root == nil {
		return nil
	}
	if opts.Indent == "" {
		opts.Indent = "  "
	}
	var buf bytes.Buffer
	formatNode(&buf, d.root, 0, opts.Indent)
	return buf.Bytes()
}

func formatNode(w *bytes.Buffer, n *xmlquery.Node, depth int, indent string) {
	switch n.Type {
	case xmlquery.DocumentNode:
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			formatNode(w, child, depth, indent)
		}

	case xmlquery.DeclarationNode:
		w.WriteString("<?xml")
		for _, attr := range n.Attr {
			w.WriteString(" ")
			w.WriteString(attr.Name.Local)
			w.WriteString("=\"")
			w.WriteString(encoding.EscapeXMLAttr(attr.Value))
			w.WriteString("\"")
		}
		w.WriteString("?>\n")

	case xmlquery.NotationNode:
		w.WriteString("<!")
		w.WriteString(n.Data)
		w.WriteString(">\n")

	case xmlquery.ElementNode:
		writeIndent(w, depth, indent)
		w.WriteString("<")
		writeName(w, n.Prefix, n.Data)
		for _, attr := range n.Attr {
			w.WriteString(" ")
			writeName(w, attr.Name.Space, attr.Name.Local)
			w.WriteString("=\"")
			w.WriteString(encoding.EscapeXMLAttr(attr.Value))
			w.WriteString("\"")
		}

		hasElementChildren := false
		hasContent := false
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			switch child.Type {
			case xmlquery.ElementNode, xmlquery.CommentNode:
				hasElementChildren = true
				hasContent = true
			case xmlquery.TextNode, xmlquery.CharDataNode:
				if strings.TrimSpace(child.Data) != "" {
					hasContent = true
				}
			}
		}

		if !hasContent {
			w.WriteString("/>\n")
			return
		}
		w.WriteString(">")
		if hasElementChildren {
			w.WriteString("\n")
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			switch child.Type {
			case xmlquery.ElementNode, xmlquery.CommentNode:
				formatNode(w, child, depth+1, indent)
			case xmlquery.TextNode:
				text := strings.TrimSpace(child.Data)
				if text == "" {
					continue
				}
				if hasElementChildren {
					writeIndent(w, depth+1, indent)
				}
				w.WriteString(encoding.EscapeXMLText(text))
				if hasElementChildren {
					w.WriteString("\n")
				}
			case xmlquery.CharDataNode:
				w.WriteString("<![CDATA[")
				w.WriteString(child.Data)
				w.WriteString("]]>")
			}
		}
		if hasElementChildren {
			writeIndent(w, depth, indent)
		}
		w.WriteString("</")
		writeName(w, n.Prefix, n.Data)
		w.WriteString(">\n")

	case xmlquery.CommentNode:
		writeIndent(w, depth, indent)
		w.WriteString("<!--")
		w.WriteString(encoding.EscapeComment(n.Data))
		w.WriteString("-->\n")
	}
}

func writeName(w *bytes.Buffer, prefix, local string) {
	if prefix != "" {
		w.WriteString(prefix)
		w.WriteString(":")
	}
	w.WriteString(local)
}

func writeIndent(w *bytes.Buffer, depth int, indent string) {
	for i := 0; i < depth; i++ {
		w.WriteString(indent)
	}
}
