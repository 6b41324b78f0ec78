package musicxml

import (
	"errors"
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"

	scerrors "github.com/FocuswithJustin/ScoreShift/core/errors"
)

// TestParseInvalidXML verifies error handling for malformed XML.
func TestParseInvalidXML(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"unclosed tag", "<score-partwise><part></score-partwise>"},
		{"mismatched tags", "<score-partwise></other>"},
		{"invalid chars", "<score-partwise>\x00</score-partwise>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.xml))
			if err == nil {
				t.Fatal("Parse should fail for invalid XML")
			}
			if !errors.Is(err, scerrors.ErrInvalidInput) {
				t.Errorf("error %v should be invalid input", err)
			}
		})
	}
}

func TestDocumentMetadata(t *testing.T) {
	doc := mustParse(t, scaleScore)

	if got := doc.RootName(); got != "score-partwise" {
		t.Errorf("RootName() = %q", got)
	}
	if got := doc.Title(); got != "Scale" {
		t.Errorf("Title() = %q", got)
	}
	if got := doc.Parts(); got != 1 {
		t.Errorf("Parts() = %d", got)
	}
	if got := doc.Mode(); got != "major" {
		t.Errorf("Mode() = %q", got)
	}
	fifths, err := doc.KeySignature()
	if err != nil || fifths != 0 {
		t.Errorf("KeySignature() = %d, %v", fifths, err)
	}

	minor := mustParse(t, `<score-partwise><movement-title> Lament </movement-title>
<part id="P1"><measure><attributes><key><fifths>-3</fifths><mode>minor</mode></key></attributes></measure></part></score-partwise>`)
	if got := minor.Mode(); got != "minor" {
		t.Errorf("minor Mode() = %q", got)
	}
	if got := minor.Title(); got != "Lament" {
		t.Errorf("movement Title() = %q", got)
	}
}

func TestNilDocument(t *testing.T) {
	var doc *Document
	if doc.RootName() != "" || doc.Title() != "" || doc.Parts() != 0 {
		t.Error("nil document should report empty metadata")
	}
	if _, err := doc.KeySignature(); !errors.Is(err, scerrors.ErrMissingKeySignature) {
		t.Errorf("KeySignature() error = %v", err)
	}
	if doc.Serialize() != nil {
		t.Error("Serialize() of nil document should be nil")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	doc := mustParse(t, scaleScore)
	clone := doc.Clone()

	for _, n := range queryNodes(clone, "//pitch/step") {
		setText(n, "G")
	}

	if got := strings.Join(mustQuery(t, doc, "//pitch/step"), ""); got != "CFB" {
		t.Errorf("original steps = %s, want CFB", got)
	}
	if got := strings.Join(mustQuery(t, clone, "//pitch/step"), ""); got != "GGG" {
		t.Errorf("clone steps = %s, want GGG", got)
	}
	if clone.Title() != doc.Title() {
		t.Error("clone lost metadata")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	doc := mustParse(t, scaleScore)
	out, _, err := Transpose(doc, Options{Semitones: 3})
	if err != nil {
		t.Fatal(err)
	}

	again := mustParse(t, string(out.Serialize()))
	if got, want := strings.Join(mustPitches(t, again), " "), "Eb4 A4 Db4"; got != want {
		t.Errorf("reparsed pitches = %s, want %s", got, want)
	}
	if fifths, _ := again.KeySignature(); fifths != -3 {
		t.Errorf("reparsed fifths = %d, want -3", fifths)
	}
}

func TestQuery(t *testing.T) {
	doc := mustParse(t, scaleScore)

	got := mustQuery(t, doc, "//score-part/@id")
	if len(got) != 1 || got[0] != "P1" {
		t.Errorf("attribute query = %v", got)
	}
	if got := mustQuery(t, doc, "//note[rest]"); len(got) != 1 {
		t.Errorf("rest query = %v", got)
	}
	if _, err := doc.Query("//["); err == nil {
		t.Error("invalid xpath should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		xml   string
		valid bool
		root  string
	}{
		{"partwise", scaleScore, true, "score-partwise"},
		{"timewise", `<score-timewise version="4.0"/>`, true, "score-timewise"},
		{"other root", `<opus/>`, false, "opus"},
		{"empty", ``, false, ""},
		{"malformed", "<score-partwise>\n<part>\n</score-partwise>", false, "score-partwise"},
		{"entity", `<!DOCTYPE x [<!ENTITY e "boom">]><score-partwise>&e;</score-partwise>`, false, "score-partwise"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate([]byte(tt.xml))
			if result.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v (errors %v)", result.Valid, tt.valid, result.Errors)
			}
			if result.Root != tt.root {
				t.Errorf("Root = %q, want %q", result.Root, tt.root)
			}
			if !tt.valid && len(result.Errors) == 0 {
				t.Error("invalid document should report an error")
			}
		})
	}
}

func TestValidateErrorPosition(t *testing.T) {
	result := Validate([]byte("<score-partwise>\n<part>\n</score-partwise>"))
	if result.Valid || len(result.Errors) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if result.Errors[0].Line != 3 {
		t.Errorf("error line = %d, want 3", result.Errors[0].Line)
	}
}

func TestFormat(t *testing.T) {
	doc := mustParse(t, `<?xml version="1.0"?><score-partwise version="4.0"><part id="P1"><measure number="1"><note><pitch><step>C</step><octave>4</octave></pitch><rest/></note></measure></part></score-partwise>`)

	formatted := string(Format(doc, FormatOptions{Indent: "\t"}))

	for _, want := range []string{
		"<?xml version=\"1.0\"?>\n",
		"<score-partwise version=\"4.0\">\n",
		"\t<part id=\"P1\">\n",
		"\t\t\t\t<pitch>\n",
		"\t\t\t\t\t<step>C</step>\n",
		"\t\t\t\t<rest/>\n",
	} {
		if !strings.Contains(formatted, want) {
			t.Errorf("formatted output missing %q:\n%s", want, formatted)
		}
	}

	again := mustParse(t, formatted)
	if got := strings.Join(mustPitches(t, again), " "); got != "C4" {
		t.Errorf("formatted output reparsed to %s", got)
	}

	if Format(nil, FormatOptions{}) != nil {
		t.Error("Format(nil) should return nil")
	}
}

func TestFormatKeepsDoctype(t *testing.T) {
	out, _, err := Transpose(mustParse(t, scaleScore), Options{Semitones: 2})
	if err != nil {
		t.Fatal(err)
	}
	const doctype = `<!DOCTYPE score-partwise PUBLIC "-//Recordare//DTD MusicXML 4.0 Partwise//EN" "http://www.musicxml.org/dtds/partwise.dtd">`

	formatted := string(Format(out, FormatOptions{}))
	if !strings.Contains(formatted, doctype+"\n<score-partwise") {
		t.Errorf("formatted output lost the DOCTYPE:\n%s", formatted)
	}
	if !strings.Contains(string(out.Serialize()), doctype) {
		t.Error("serialized output lost the DOCTYPE")
	}
	if got, want := mustPitches(t, mustParse(t, formatted)), mustPitches(t, out); strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("formatted pitches = %v, want %v", got, want)
	}
}

func TestFormatEscapes(t *testing.T) {
	doc := mustParse(t, `<score-partwise><work><work-title>Salt &amp; "Pepper" &lt;3</work-title></work></score-partwise>`)
	formatted := string(Format(doc, FormatOptions{}))
	if !strings.Contains(formatted, "<work-title>Salt &amp; \"Pepper\" &lt;3</work-title>") {
		t.Errorf("text not escaped:\n%s", formatted)
	}
	if got := mustParse(t, formatted).Title(); got != `Salt & "Pepper" <3` {
		t.Errorf("reparsed title = %q", got)
	}
}

func TestParseInstrument(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"church_organ", 20, false},
		{"Choir_Aahs", 53, false},
		{" 42 ", 42, false},
		{"0", 0, true},
		{"129", 0, true},
		{"kazoo", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInstrument(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseInstrument(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}

	names := InstrumentNames()
	if len(names) != len(Instruments) || names[0] != "Acoustic_Grand_Piano" || names[len(names)-1] != "Pad_1_new_age" {
		t.Errorf("InstrumentNames() = %v", names)
	}
}

func queryNodes(doc *Document, expr string) []*xmlquery.Node {
	return xmlquery.Find(doc.root, expr)
}
