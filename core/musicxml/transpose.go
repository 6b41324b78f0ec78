package musicxml

import (
	"strconv"

	"github.com/antchfx/xmlquery"

	"github.com/FocuswithJustin/ScoreShift/core/errors"
	"github.com/FocuswithJustin/ScoreShift/core/pitch"
	"github.com/FocuswithJustin/ScoreShift/core/transpose"
	"github.com/FocuswithJustin/ScoreShift/internal/logging"
)

// Options controls a single transposition.
type Options struct {
	// Semitones to move every pitch; negative moves down.
	Semitones int
	// DropStemLayout removes <stem> elements so renderers recompute them.
	DropStemLayout bool
	// MIDIProgram, when 1..128, replaces every midi-instrument program.
	MIDIProgram int
}

// Result summarises what Transpose changed.
type Result struct {
	Semitones     int           `json:"semitones"`
	Interval      pitch.Lattice `json:"interval"`
	FromFifths    int           `json:"from_fifths"`
	ToFifths      int           `json:"to_fifths"`
	Pitches       int           `json:"pitches"`
	KeySignatures int           `json:"key_signatures"`
	Accidentals   int           `json:"accidentals"`
	StemsRemoved  int           `json:"stems_removed,omitempty"`
	Instruments   int           `json:"instruments,omitempty"`
}

// Transpose returns a copy of doc with every pitch moved by opts.Semitones.
//
// The lattice vector is derived once from the first key signature of doc
// and then applied to pitches, key signatures and accidentals alike. Notes
// that carry an <accidental> get it rewritten from their new alteration;
// notes without one are left without one. doc is never modified, and on
// error no document is returned.
func Transpose(doc *Document, opts Options) (*Document, *Result, error) {
	fifths, err := doc.KeySignature()
	if err != nil {
		return nil, nil, err
	}
	interval, err := transpose.Interval(fifths, opts.Semitones)
	if err != nil {
		return nil, nil, err
	}
	if opts.MIDIProgram < 0 || opts.MIDIProgram > 128 {
		return nil, nil, errors.NewValidation("midi_program", "must be between 1 and 128")
	}

	out := doc.Clone()
	res := &Result{
		Semitones:  opts.Semitones,
		Interval:   interval,
		FromFifths: fifths,
		ToFifths:   fifths + interval.Fifth,
	}

	alters := make(map[*xmlquery.Node]int)
	for _, n := range xmlquery.QuerySelectorAll(out.root, pitchExpr) {
		p, err := readPitch(n)
		if err != nil {
			return nil, nil, err
		}
		moved, err := pitch.Transpose(p, interval)
		if err != nil {
			return nil, nil, err
		}
		writePitch(n, moved)
		alters[n] = moved.Alter
		res.Pitches++
	}

	for _, n := range xmlquery.QuerySelectorAll(out.root, fifthsExpr) {
		v, err := parseFifths(n)
		if err != nil {
			return nil, nil, err
		}
		setText(n, strconv.Itoa(v+interval.Fifth))
		res.KeySignatures++
	}

	for _, note := range xmlquery.QuerySelectorAll(out.root, noteExpr) {
		acc := childElement(note, "accidental")
		if acc == nil {
			continue
		}
		p := childElement(note, "pitch")
		if p == nil {
			continue
		}
		text, err := pitch.AccidentalFor(alters[p])
		if err != nil {
			return nil, nil, err
		}
		setText(acc, text)
		res.Accidentals++
	}

	if opts.DropStemLayout {
		for _, n := range xmlquery.QuerySelectorAll(out.root, stemExpr) {
			xmlquery.RemoveFromTree(n)
			res.StemsRemoved++
		}
	}

	if opts.MIDIProgram > 0 {
		program := strconv.Itoa(opts.MIDIProgram)
		for _, n := range xmlquery.QuerySelectorAll(out.root, midiProgramExpr) {
			setText(n, program)
			res.Instruments++
		}
	}

	logging.Debug("score transposed",
		"semitones", opts.Semitones,
		"from_fifths", res.FromFifths,
		"to_fifths", res.ToFifths,
		"pitches", res.Pitches,
		"accidentals", res.Accidentals)

	return out, res, nil
}
