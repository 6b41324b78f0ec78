package cas

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	scerrors "github.com/FocuswithJustin/ScoreShift/core/errors"
)

const score = `<score-partwise version="4.0"><part id="P1"/></score-partwise>`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func TestPutAndGet(t *testing.T) {
	s := newTestStore(t)

	ref, err := s.Put([]byte(score))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if ref.SHA256 != Hash([]byte(score)) || ref.BLAKE3 != Blake3Hash([]byte(score)) {
		t.Errorf("ref = %+v", ref)
	}
	if ref.Size != int64(len(score)) {
		t.Errorf("size = %d", ref.Size)
	}

	got, err := s.Get(ref.SHA256)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte(score)) {
		t.Errorf("Get returned %q", got)
	}
	if !s.Has(ref.SHA256) {
		t.Error("Has should report the stored score")
	}
}

func TestPutDeduplicates(t *testing.T) {
	s := newTestStore(t)

	a, err := s.Put([]byte(score))
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Put([]byte(score))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("refs differ: %+v vs %+v", a, b)
	}

	entries, err := os.ReadDir(filepath.Join(s.Root(), "scores", "sha256", a.SHA256[:2]))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected one file, found %d", len(entries))
	}
}

func TestKnownDigests(t *testing.T) {
	// Digests of the empty input.
	if got := Hash(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Hash(nil) = %s", got)
	}
	if got := Blake3Hash(nil); got != "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262" {
		t.Errorf("Blake3Hash(nil) = %s", got)
	}
}

func TestGetErrors(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Get("not-a-hash"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("invalid hash error = %v", err)
	}
	if _, err := s.Get("ABCDEF0000000000000000000000000000000000000000000000000000000000"); !errors.Is(err, scerrors.ErrInvalidInput) {
		t.Errorf("uppercase hash error = %v", err)
	}
	missing := Hash([]byte("missing"))
	if _, err := s.Get(missing); !errors.Is(err, scerrors.ErrNotFound) {
		t.Errorf("missing score error = %v", err)
	}
	if s.Has(missing) || s.Has("bogus") {
		t.Error("Has should be false for unknown digests")
	}
}

func TestGetDetectsCorruption(t *testing.T) {
	s := newTestStore(t)
	ref, err := s.Put([]byte(score))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.scorePath(ref.SHA256), []byte("tampered"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ref.SHA256); !errors.Is(err, ErrCorrupt) {
		t.Errorf("error = %v, want ErrCorrupt", err)
	}
}

func TestBlake3Lookup(t *testing.T) {
	s := newTestStore(t)
	ref, err := s.Put([]byte(score))
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.LookupBlake3(ref.BLAKE3)
	if err != nil {
		t.Fatalf("LookupBlake3 failed: %v", err)
	}
	if got != ref {
		t.Errorf("LookupBlake3 = %+v, want %+v", got, ref)
	}

	data, err := s.Get(got.SHA256)
	if err != nil || string(data) != score {
		t.Errorf("Get(%s) = %q, %v", got.SHA256, data, err)
	}

	if _, err := s.LookupBlake3(Blake3Hash([]byte("other"))); !errors.Is(err, scerrors.ErrNotFound) {
		t.Errorf("unknown blake3 error = %v", err)
	}
	if _, err := s.LookupBlake3("xyz"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("invalid blake3 error = %v", err)
	}
}

func TestResolve(t *testing.T) {
	s := newTestStore(t)
	ref, err := s.Put([]byte(score))
	if err != nil {
		t.Fatal(err)
	}

	for _, digest := range []string{ref.SHA256, ref.BLAKE3} {
		got, err := s.Resolve(digest)
		if err != nil || got != ref.SHA256 {
			t.Errorf("Resolve(%s) = %s, %v", digest, got, err)
		}
	}
	if _, err := s.Resolve(Hash([]byte("nothing"))); !errors.Is(err, scerrors.ErrNotFound) {
		t.Errorf("unknown digest error = %v", err)
	}
}

func TestBlake3Key(t *testing.T) {
	data := []byte(score)
	a := Blake3Key(data, "semitones=2", "stems=false")
	if a != Blake3Key(data, "semitones=2", "stems=false") {
		t.Error("key should be deterministic")
	}
	tests := []string{
		Blake3Key(data, "semitones=3", "stems=false"),
		Blake3Key(data, "semitones=2stems=false"),
		Blake3Key([]byte("other"), "semitones=2", "stems=false"),
		Blake3Key(data),
	}
	for i, k := range tests {
		if k == a {
			t.Errorf("key %d collides with base key", i)
		}
	}
}

func TestPutRenameFailure(t *testing.T) {
	s := newTestStore(t)

	orig := osRename
	osRename = func(string, string) error { return os.ErrPermission }
	defer func() { osRename = orig }()

	if _, err := s.Put([]byte(score)); !errors.Is(err, os.ErrPermission) {
		t.Fatalf("error = %v, want permission error", err)
	}
	if s.Has(Hash([]byte(score))) {
		t.Error("failed Put should not leave a score behind")
	}
	leftovers, _ := filepath.Glob(filepath.Join(s.Root(), "scores", "sha256", "*", ".tmp-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestPutWriteFailure(t *testing.T) {
	s := newTestStore(t)

	orig := tempFileWrite
	tempFileWrite = func(*os.File, []byte) (int, error) { return 0, os.ErrClosed }
	defer func() { tempFileWrite = orig }()

	if _, err := s.Put([]byte(score)); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("error = %v, want write error", err)
	}
}

func TestNewStoreFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(file); err == nil {
		t.Error("NewStore on a regular file should fail")
	}
}
