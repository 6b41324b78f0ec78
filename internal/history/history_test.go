package history

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	scerrors "github.com/FocuswithJustin/ScoreShift/core/errors"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { base = base.Add(time.Minute); return base }

	for i, semis := range []int{2, -5, 7} {
		e, err := l.Record(ctx, Entry{
			Source:       "chouon-001-grand-staff.musicxml",
			InputBlake3:  "in",
			OutputSHA256: "out",
			Semitones:    semis,
			FromFifths:   0,
			ToFifths:     semis,
			Pitches:      10 + i,
		})
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if e.ID != int64(i+1) {
			t.Errorf("ID = %d, want %d", e.ID, i+1)
		}
	}

	all, err := l.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List returned %d entries", len(all))
	}
	if all[0].Semitones != 7 || all[2].Semitones != 2 {
		t.Errorf("List order = %d, %d, %d; want newest first", all[0].Semitones, all[1].Semitones, all[2].Semitones)
	}
	if want := time.Date(2026, 3, 1, 12, 3, 0, 0, time.UTC); !all[0].CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", all[0].CreatedAt, want)
	}
	if all[1].Pitches != 11 || all[1].Source != "chouon-001-grand-staff.musicxml" {
		t.Errorf("entry = %+v", all[1])
	}

	two, err := l.List(ctx, 2)
	if err != nil || len(two) != 2 {
		t.Errorf("List(2) = %d entries, %v", len(two), err)
	}
}

func TestForInput(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	for _, in := range []string{"a", "b", "a"} {
		if _, err := l.Record(ctx, Entry{InputBlake3: in, Source: in}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := l.ForInput(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Errorf("ForInput(a) = %+v", got)
	}
	none, err := l.ForInput(ctx, "zzz")
	if err != nil || len(none) != 0 {
		t.Errorf("ForInput(zzz) = %v, %v", none, err)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	l, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Record(ctx, Entry{Source: "x", Semitones: 3}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	l, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer l.Close()
	got, err := l.List(ctx, 0)
	if err != nil || len(got) != 1 || got[0].Semitones != 3 {
		t.Errorf("after reopen: %+v, %v", got, err)
	}
}

func TestConcurrentRecord(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := l.Record(ctx, Entry{Source: "job", Semitones: n}); err != nil {
				t.Errorf("Record failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := l.List(ctx, 0)
	if err != nil || len(got) != 20 {
		t.Errorf("List = %d entries, %v", len(got), err)
	}
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	if _, err := OpenReadOnly(path); !errors.Is(err, scerrors.ErrNotFound) {
		t.Fatalf("missing ledger error = %v, want not found", err)
	}

	l, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Record(ctx, Entry{Source: "a.musicxml", InputBlake3: "in", OutputSHA256: "out", Semitones: 3}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly failed: %v", err)
	}
	defer ro.Close()
	entries, err := ro.List(ctx, 10)
	if err != nil || len(entries) != 1 || entries[0].Semitones != 3 {
		t.Fatalf("List = %+v, %v", entries, err)
	}
	if _, err := ro.Record(ctx, Entry{Source: "b.musicxml"}); err == nil {
		t.Error("Record on a read-only ledger should fail")
	}
}
