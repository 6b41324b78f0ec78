// Package archive reads and writes score bundles (.tar.gz / .tar.xz) and
// single compressed score files (.gz / .xz).
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/ScoreShift/core/errors"
)

// Compression identifies how a file is compressed.
type Compression int

const (
	None Compression = iota
	Gzip
	XZ
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case XZ:
		return "xz"
	}
	return "none"
}

// IsBundle reports whether path names a tar bundle this package can read.
func IsBundle(path string) bool {
	_, err := bundleCompression(path)
	return err == nil
}

func bundleCompression(path string) (Compression, error) {
	switch {
	case strings.HasSuffix(path, ".tar.xz"), strings.HasSuffix(path, ".txz"):
		return XZ, nil
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return Gzip, nil
	}
	return None, errors.NewUnsupported("bundle format", path)
}

// decompress wraps r according to c. The returned closer may be nil.
func decompress(r io.Reader, c Compression) (io.Reader, io.Closer, error) {
	switch c {
	case XZ:
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz reader: %w", err)
		}
		return xzr, nil, nil
	case Gzip:
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gzr, gzr, nil
	}
	return r, nil, nil
}

// Reader wraps a tar.Reader over a compressed bundle.
type Reader struct {
	*tar.Reader
	file         *os.File
	decompressor io.Closer
}

// NewReader opens the bundle at path, picking the decompressor from its extension.
func NewReader(path string) (*Reader, error) {
	c, err := bundleCompression(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	r, closer, err := decompress(f, c)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{
		Reader:       tar.NewReader(r),
		file:         f,
		decompressor: closer,
	}, nil
}

// Close closes the bundle and any decompressor.
func (r *Reader) Close() error {
	var first error
	if r.decompressor != nil {
		first = r.decompressor.Close()
	}
	if err := r.file.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Visitor is called for each bundle entry. Return true to stop iteration.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks every entry in the bundle, calling visitor for each.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}

		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// IterateBundle opens the bundle at path and iterates its entries.
func IterateBundle(path string, visitor Visitor) error {
	r, err := NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Iterate(visitor)
}

// ReadFile returns the content of the named entry. A leading directory in
// the entry name is ignored, so "sheets/a.musicxml" matches "a.musicxml".
func ReadFile(bundlePath, name string) ([]byte, error) {
	var content []byte
	err := IterateBundle(bundlePath, func(header *tar.Header, r io.Reader) (bool, error) {
		entry := header.Name
		if idx := strings.Index(entry, "/"); idx >= 0 {
			entry = entry[idx+1:]
		}
		if entry == name || header.Name == name {
			var err error
			content, err = io.ReadAll(r)
			return true, err
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, errors.NewNotFound("bundle entry", name)
	}
	return content, nil
}

// ScoreNames lists the MusicXML entries of a bundle in archive order.
func ScoreNames(bundlePath string) ([]string, error) {
	var names []string
	err := IterateBundle(bundlePath, func(header *tar.Header, _ io.Reader) (bool, error) {
		if header.Typeflag == tar.TypeReg && IsScoreName(header.Name) {
			names = append(names, header.Name)
		}
		return false, nil
	})
	return names, err
}
