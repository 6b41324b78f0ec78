// Package cas keeps scores in a content-addressed store.
// Every score is stored once under its SHA-256 digest; a BLAKE3 pointer
// lets callers that only know the BLAKE3 digest find it again.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	scerrors "github.com/FocuswithJustin/ScoreShift/core/errors"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileWrite is a function variable for writing to temp files (for testing).
var tempFileWrite = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

// ErrInvalidHash is returned when a digest is not 64 lowercase hex characters.
var ErrInvalidHash = fmt.Errorf("invalid hash format: %w", scerrors.ErrInvalidInput)

// ErrCorrupt is returned when a stored score no longer matches its digest.
var ErrCorrupt = errors.New("stored score is corrupt")

var hexDigest = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Ref identifies a stored score.
type Ref struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
	Size   int64  `json:"size"`
}

// Store is a content-addressed score store rooted at a directory:
//
//	<root>/scores/sha256/<ab>/<sha256>
//	<root>/scores/blake3/<ab>/<blake3>.json
type Store struct {
	root string
}

// NewStore opens (creating if needed) a store at root.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{"sha256", "blake3"} {
		if err := os.MkdirAll(filepath.Join(root, "scores", dir), 0755); err != nil {
			return nil, scerrors.NewIO("create", root, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the directory the store lives in.
func (s *Store) Root() string { return s.root }

// Put stores data and returns its reference. Storing the same bytes twice
// is a no-op that returns the same Ref.
func (s *Store) Put(data []byte) (Ref, error) {
	ref := Ref{SHA256: Hash(data), BLAKE3: Blake3Hash(data), Size: int64(len(data))}

	path := s.scorePath(ref.SHA256)
	if _, err := os.Stat(path); err != nil {
		if err := writeAtomic(path, data); err != nil {
			return Ref{}, fmt.Errorf("storing score %s: %w", ref.SHA256, err)
		}
	}
	if err := s.writePointer(ref); err != nil {
		return Ref{}, fmt.Errorf("storing blake3 pointer for %s: %w", ref.SHA256, err)
	}
	return ref, nil
}

// Get returns the score with the given SHA-256 digest. The content is
// re-hashed on read; a mismatch yields ErrCorrupt.
func (s *Store) Get(sha string) ([]byte, error) {
	if !IsValidHash(sha) {
		return nil, ErrInvalidHash
	}
	data, err := os.ReadFile(s.scorePath(sha))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, scerrors.NewNotFound("score", sha)
		}
		return nil, scerrors.NewIO("read", sha, err)
	}
	if Hash(data) != sha {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, sha)
	}
	return data, nil
}

// Has reports whether a score with the given SHA-256 digest is stored.
func (s *Store) Has(sha string) bool {
	if !IsValidHash(sha) {
		return false
	}
	_, err := os.Stat(s.scorePath(sha))
	return err == nil
}

// Resolve maps either digest of a stored score to its SHA-256 digest.
func (s *Store) Resolve(digest string) (string, error) {
	if !IsValidHash(digest) {
		return "", ErrInvalidHash
	}
	if s.Has(digest) {
		return digest, nil
	}
	ref, err := s.LookupBlake3(digest)
	if err != nil {
		return "", err
	}
	return ref.SHA256, nil
}

func (s *Store) scorePath(sha string) string {
	return filepath.Join(s.root, "scores", "sha256", sha[:2], sha)
}

// writeAtomic writes data to a temp file next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tempFileWrite(tmp, data); err != nil {
		tempFileClose(tmp)
		os.Remove(tmpPath)
		return err
	}
	if err := tempFileClose(tmp); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := osRename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// IsValidHash reports whether s looks like a hex SHA-256 or BLAKE3 digest.
func IsValidHash(s string) bool {
	return hexDigest.MatchString(s)
}

// Hash returns the hex SHA-256 digest of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
