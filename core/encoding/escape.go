// Package encoding escapes text for the XML that ScoreShift writes.
package encoding

import "strings"

var (
	textReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrReplacer = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"\n", "&#xA;",
		"\r", "&#xD;",
		"\t", "&#x9;",
	)
)

// EscapeXMLText escapes the basic XML entities for element content.
func EscapeXMLText(s string) string {
	return textReplacer.Replace(s)
}

// EscapeXMLAttr escapes s for a double-quoted attribute value. Whitespace
// control characters become character references so that attribute-value
// normalisation does not turn them into spaces on the next parse.
func EscapeXMLAttr(s string) string {
	return attrReplacer.Replace(s)
}

// EscapeComment makes s safe inside <!-- -->: "--" may not appear in a
// comment and it may not end with "-".
func EscapeComment(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "- -")
	}
	if strings.HasSuffix(s, "-") {
		s += " "
	}
	return s
}
