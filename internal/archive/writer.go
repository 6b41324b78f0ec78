package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/ScoreShift/core/errors"
)

// Writer writes a compressed tar bundle.
type Writer struct {
	tw         *tar.Writer
	compressor io.WriteCloser
	file       *os.File
	modTime    time.Time
}

// compress wraps w according to c.
func compress(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case XZ:
		xzw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		return xzw, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	}
	return nopWriteCloser{w}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter creates the bundle at path (.tar.gz, .tgz, .tar.xz or .txz),
// creating parent directories as needed.
func NewWriter(path string) (*Writer, error) {
	c, err := bundleCompression(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.NewIO("create", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.NewIO("create", path, err)
	}
	cw, err := compress(f, c)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{
		tw:         tar.NewWriter(cw),
		compressor: cw,
		file:       f,
		modTime:    time.Now().Truncate(time.Second),
	}, nil
}

// Add writes one regular file entry. All entries share one timestamp.
func (w *Writer) Add(name string, data []byte) error {
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0644,
		Size:     int64(len(data)),
		ModTime:  w.modTime,
	}
	if err := w.tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}
	if _, err := w.tw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// AddEntry copies an entry read from another bundle.
func (w *Writer) AddEntry(header *tar.Header, content io.Reader) error {
	h := *header
	h.ModTime = w.modTime
	if err := w.tw.WriteHeader(&h); err != nil {
		return fmt.Errorf("write header %s: %w", h.Name, err)
	}
	if h.Typeflag == tar.TypeReg {
		if _, err := io.Copy(w.tw, content); err != nil {
			return fmt.Errorf("write %s: %w", h.Name, err)
		}
	}
	return nil
}

// Close flushes the tar stream, the compressor and the file.
func (w *Writer) Close() error {
	err := w.tw.Close()
	if cerr := w.compressor.Close(); err == nil {
		err = cerr
	}
	if ferr := w.file.Close(); err == nil {
		err = ferr
	}
	return err
}
