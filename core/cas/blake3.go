package cas

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	scerrors "github.com/FocuswithJustin/ScoreShift/core/errors"
)

// writePointer records ref under its BLAKE3 digest. Existing pointers are kept.
func (s *Store) writePointer(ref Ref) error {
	path := s.pointerPath(ref.BLAKE3)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("failed to marshal pointer: %w", err)
	}
	return writeAtomic(path, data)
}

// LookupBlake3 returns the reference recorded for a BLAKE3 digest.
func (s *Store) LookupBlake3(digest string) (Ref, error) {
	if !IsValidHash(digest) {
		return Ref{}, ErrInvalidHash
	}
	data, err := os.ReadFile(s.pointerPath(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return Ref{}, scerrors.NewNotFound("score", digest)
		}
		return Ref{}, scerrors.NewIO("read", digest, err)
	}
	var ref Ref
	if err := json.Unmarshal(data, &ref); err != nil {
		return Ref{}, scerrors.NewParse("blake3 pointer", digest, err.Error())
	}
	return ref, nil
}

func (s *Store) pointerPath(digest string) string {
	return filepath.Join(s.root, "scores", "blake3", digest[:2], digest+".json")
}

// Blake3Hash returns the hex BLAKE3-256 digest of data.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Blake3Key derives a cache key from data and any number of option strings.
// Equal inputs with equal options always produce the same key.
func Blake3Key(data []byte, opts ...string) string {
	h := blake3.New()
	h.Write(data)
	for _, o := range opts {
		h.Write([]byte{0})
		h.Write([]byte(o))
	}
	return hex.EncodeToString(h.Sum(nil))
}
