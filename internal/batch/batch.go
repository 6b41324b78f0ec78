// Package batch transposes every score in a bundle.
package batch

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"math/rand/v2"
	"os"

	"github.com/FocuswithJustin/ScoreShift/core/errors"
	"github.com/FocuswithJustin/ScoreShift/core/musicxml"
	"github.com/FocuswithJustin/ScoreShift/core/shift"
	"github.com/FocuswithJustin/ScoreShift/internal/archive"
	"github.com/FocuswithJustin/ScoreShift/internal/logging"
)

// Options controls a batch run.
type Options struct {
	Shift          shift.Expr
	DropStemLayout bool
	MIDIProgram    int
	// Rand drives "random" shifts; nil uses the package-level generator.
	// Each score draws its own shift.
	Rand *rand.Rand
}

// Progress reports how far a run has got. Done counts processed entries.
type Progress struct {
	Entry string
	Done  int
	Total int
}

// ProgressFunc receives a Progress after every entry.
type ProgressFunc func(Progress)

// ScoreResult records what happened to one score.
type ScoreResult struct {
	Name   string           `json:"name"`
	Result *musicxml.Result `json:"result"`
}

// Summary is the outcome of a completed run.
type Summary struct {
	Scores []ScoreResult `json:"scores"`
	Copied int           `json:"copied"`
}

// Run reads the bundle at in and writes a bundle at out in which every
// MusicXML entry is transposed and every other entry is copied unchanged.
// The first failing score aborts the run; its name is in the error and
// the partial output bundle is removed.
func Run(ctx context.Context, in, out string, opts Options, progress ProgressFunc) (*Summary, error) {
	names, err := archive.ScoreNames(in)
	if err != nil {
		return nil, err
	}
	total, err := countEntries(in)
	if err != nil {
		return nil, err
	}
	logging.Info("batch started", "input", in, "output", out, "scores", len(names), "shift", opts.Shift.String())

	w, err := archive.NewWriter(out)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	done := 0
	runErr := archive.IterateBundle(in, func(h *tar.Header, r io.Reader) (bool, error) {
		if err := ctx.Err(); err != nil {
			return true, err
		}

		if h.Typeflag == tar.TypeReg && archive.IsScoreName(h.Name) {
			data, res, err := transposeEntry(h.Name, r, opts)
			if err != nil {
				return true, err
			}
			if err := w.Add(h.Name, data); err != nil {
				return true, err
			}
			summary.Scores = append(summary.Scores, ScoreResult{Name: h.Name, Result: res})
		} else {
			if err := w.AddEntry(h, r); err != nil {
				return true, err
			}
			summary.Copied++
		}

		done++
		if progress != nil {
			progress(Progress{Entry: h.Name, Done: done, Total: total})
		}
		return false, nil
	})

	if err := w.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		os.Remove(out)
		logging.Warn("batch failed", "input", in, "error", runErr)
		return nil, runErr
	}

	logging.Info("batch finished", "input", in, "scores", len(summary.Scores), "copied", summary.Copied)
	return summary, nil
}

func transposeEntry(name string, r io.Reader, opts Options) ([]byte, *musicxml.Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, name)
	}
	compression := archive.ScoreCompression(name)
	data, err := archive.Decompress(bytes.NewReader(raw), compression)
	if err != nil {
		return nil, nil, errors.Wrap(err, name)
	}

	doc, err := musicxml.Parse(data)
	if err != nil {
		return nil, nil, errors.Wrap(err, name)
	}
	fifths, err := keyFor(doc, opts.Shift)
	if err != nil {
		return nil, nil, errors.Wrap(err, name)
	}
	semitones, err := opts.Shift.ResolveIn(fifths, doc.Mode(), opts.Rand)
	if err != nil {
		return nil, nil, errors.Wrap(err, name)
	}

	outDoc, res, err := musicxml.Transpose(doc, musicxml.Options{
		Semitones:      semitones,
		DropStemLayout: opts.DropStemLayout,
		MIDIProgram:    opts.MIDIProgram,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, name)
	}
	logging.TransposeEvent(name, semitones, res.FromFifths, res.ToFifths, res.Pitches)

	packed, err := archive.Compress(outDoc.Serialize(), compression)
	if err != nil {
		return nil, nil, errors.Wrap(err, name)
	}
	return packed, res, nil
}

// keyFor returns the document key only when the shift needs it, so that
// keyless scores still fail in Transpose with the usual error.
func keyFor(doc *musicxml.Document, e shift.Expr) (int, error) {
	if !e.NeedsKey() {
		return 0, nil
	}
	return doc.KeySignature()
}

func countEntries(path string) (int, error) {
	n := 0
	err := archive.IterateBundle(path, func(*tar.Header, io.Reader) (bool, error) {
		n++
		return false, nil
	})
	return n, err
}
