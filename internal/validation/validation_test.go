package validation

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizePath(t *testing.T) {
	baseDir := "/srv/sheets"

	tests := []struct {
		name      string
		baseDir   string
		userPath  string
		want      string
		wantError error
	}{
		{"simple valid path", baseDir, "chouon-001-grand-staff.musicxml", "chouon-001-grand-staff.musicxml", nil},
		{"nested valid path", baseDir, "lesson1/a.xml", filepath.Join("lesson1", "a.xml"), nil},
		{"redundant separators", baseDir, "lesson1//a.xml", filepath.Join("lesson1", "a.xml"), nil},
		{"dot component", baseDir, "./a.xml", "a.xml", nil},
		{"traversal with dotdot", baseDir, "../etc/passwd", "", ErrPathTraversal},
		{"traversal in middle", baseDir, "lesson1/../../etc/passwd", "", ErrPathTraversal},
		{"absolute path", baseDir, "/etc/passwd", "", ErrPathTraversal},
		{"empty path", baseDir, "", "", ErrEmptyPath},
		{"very long path", baseDir, strings.Repeat("a/", 2048) + "a.xml", "", ErrPathTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizePath(tt.baseDir, tt.userPath)
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Errorf("SanitizePath() error = %v, want %v", err, tt.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("SanitizePath() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("SanitizePath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{"valid", "scale.musicxml", false},
		{"unicode", "長音-001.xml", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"slash", "a/b.xml", true},
		{"backslash", `a\b.xml`, true},
		{"null byte", "a\x00.xml", true},
		{"control", "a\n.xml", true},
		{"leading hyphen", "-rf.xml", true},
		{"too long", strings.Repeat("a", MaxFilenameLength+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilename(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	if err := ValidatePath("out/scale.musicxml"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePath(""); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("empty path error = %v", err)
	}
	if err := ValidatePath("a\x00b"); !errors.Is(err, ErrInvalidCharacter) {
		t.Errorf("null byte error = %v", err)
	}
}

const scoreXML = `<?xml version="1.0"?><score-partwise version="4.0"></score-partwise>`

func TestValidateScore(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"musicxml", []byte(scoreXML), nil},
		{"plain xml", []byte(`<?xml version="1.0"?><html/>`), ErrUnsupportedType},
		{"mxl", []byte{0x50, 0x4b, 0x03, 0x04, 1, 2}, ErrUnsupportedType},
		{"gzip", []byte{0x1f, 0x8b, 8, 0}, ErrUnsupportedType},
		{"binary", append([]byte{0, 1, 2}, []byte("<score-partwise>")...), ErrUnsupportedType},
		{"too large", bytes.Repeat([]byte(" "), MaxScoreSize+1), ErrScoreTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScore(tt.data)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestValidateFileType(t *testing.T) {
	xzMagic := []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00, 0, 0}
	gzMagic := []byte{0x1f, 0x8b, 8, 0}

	tests := []struct {
		name     string
		data     []byte
		filename string
		want     FileType
		wantErr  bool
	}{
		{"musicxml", []byte(scoreXML), "a.musicxml", FileTypeMusicXML, false},
		{"xml", []byte(scoreXML), "a.xml", FileTypeMusicXML, false},
		{"tar.xz bundle", xzMagic, "set.tar.xz", FileTypeTarXZ, false},
		{"txz bundle", xzMagic, "set.txz", FileTypeTarXZ, false},
		{"tar.gz bundle", gzMagic, "set.tar.gz", FileTypeTarGZ, false},
		{"gz score", gzMagic, "a.xml.gz", FileTypeGzip, false},
		{"xz score", xzMagic, "a.musicxml.xz", FileTypeXZ, false},
		{"history db", []byte("SQLite format 3\x00"), "history.db", FileTypeSQLite, false},
		{"mxl", []byte{0x50, 0x4b, 0x03, 0x04}, "a.mxl", FileTypeZip, false},
		{"binary named xml", []byte{0, 0, 0, 1}, "a.xml", FileTypeUnknown, true},
		{"gzip named xml", gzMagic, "a.musicxml", FileTypeUnknown, true},
		{"xz named tar.gz", xzMagic, "set.tar.gz", FileTypeUnknown, true},
		{"unknown extension", []byte("hello"), "notes.txt", FileTypeUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateFileType(bytes.NewReader(tt.data), tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ValidateFileType() = %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := ValidateFileType(errorReader{}, "a.xml"); err == nil {
		t.Error("read error should be reported")
	}
}

func TestIsLikelyText(t *testing.T) {
	if !isLikelyText([]byte(scoreXML)) {
		t.Error("XML should be text")
	}
	if isLikelyText(nil) || isLikelyText([]byte{0x00, 'a'}) {
		t.Error("empty and NUL-containing buffers are not text")
	}
	if isLikelyText(bytes.Repeat([]byte{0x01}, 100)) {
		t.Error("control bytes are not text")
	}
}
