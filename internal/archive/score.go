package archive

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/ScoreShift/core/errors"
)

// scoreExts are the uncompressed MusicXML extensions, most specific first.
var scoreExts = []string{".musicxml", ".xml"}

// ScoreCompression returns the compression of a single score file by extension.
func ScoreCompression(path string) Compression {
	switch {
	case strings.HasSuffix(path, ".xz"):
		return XZ
	case strings.HasSuffix(path, ".gz"):
		return Gzip
	}
	return None
}

// IsScoreName reports whether name looks like a (possibly compressed) MusicXML file.
func IsScoreName(name string) bool {
	base := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(name), ".gz"), ".xz")
	for _, ext := range scoreExts {
		if strings.HasSuffix(base, ext) && len(base) > len(ext) {
			return true
		}
	}
	return false
}

// ScoreID strips directory, compression and MusicXML extensions from name:
// "sheets/chouon-001-grand-staff.musicxml.xz" becomes "chouon-001-grand-staff".
func ScoreID(name string) string {
	id := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(name), ".gz"), ".xz")
	for _, ext := range scoreExts {
		if strings.HasSuffix(id, ext) {
			return strings.TrimSuffix(id, ext)
		}
	}
	return id
}

// BundleID strips bundle extensions from a filename.
func BundleID(filename string) string {
	base := filepath.Base(filename)
	for _, ext := range []string{".tar.xz", ".tar.gz", ".txz", ".tgz", ".tar"} {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// ReadScore reads a single score file, decompressing .gz and .xz files.
func ReadScore(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("score", path)
		}
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()

	data, err := Decompress(f, ScoreCompression(path))
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	return data, nil
}

// Compress returns data compressed with c.
func Compress(data []byte, c Compression) ([]byte, error) {
	if c == None {
		return data, nil
	}
	var buf bytes.Buffer
	w, err := compress(&buf, c)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reads all of r, decompressing it with c.
func Decompress(r io.Reader, c Compression) ([]byte, error) {
	dr, closer, err := decompress(r, c)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}
	return io.ReadAll(dr)
}

// WriteScore writes data to path, compressing according to its extension.
func WriteScore(path string, data []byte) error {
	out, err := Compress(data, ScoreCompression(path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewIO("create", dir, err)
		}
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return errors.NewIO("write", path, err)
	}
	return nil
}
