// Package pitch converts between spelled pitches (letter, alteration, octave)
// and coordinates on the line-of-fifths × octave lattice.
//
// A Lattice value encodes a spelled pitch exactly: its semitone distance from
// middle C is 12·Octave + 7·Fifth. Every enharmonic spelling of a sounding
// pitch maps to a different Fifth, so transposing by adding lattice vectors
// carries spelling forward arithmetically instead of re-guessing it from a
// semitone number.
package pitch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/ScoreShift/core/errors"
)

// Step is one of the seven natural letter names.
type Step int

const (
	C Step = iota
	D
	E
	F
	G
	A
	B
)

var stepNames = [...]string{C: "C", D: "D", E: "E", F: "F", G: "G", A: "A", B: "B"}

// String returns the letter name.
func (s Step) String() string {
	if !s.Valid() {
		return "Step(" + strconv.Itoa(int(s)) + ")"
	}
	return stepNames[s]
}

// Valid reports whether s is one of the seven letters.
func (s Step) Valid() bool {
	return s >= C && s <= B
}

// ParseStep parses a MusicXML step value ("C" through "B").
func ParseStep(s string) (Step, error) {
	switch strings.TrimSpace(s) {
	case "C":
		return C, nil
	case "D":
		return D, nil
	case "E":
		return E, nil
	case "F":
		return F, nil
	case "G":
		return G, nil
	case "A":
		return A, nil
	case "B":
		return B, nil
	}
	return 0, errors.NewMalformedPitch("step", s, "not one of C D E F G A B")
}

// Lattice is a point on the line-of-fifths × octave lattice.
type Lattice struct {
	Fifth  int `json:"fifth"`
	Octave int `json:"octave"`
}

// Add returns the component-wise sum of l and o.
func (l Lattice) Add(o Lattice) Lattice {
	return Lattice{Fifth: l.Fifth + o.Fifth, Octave: l.Octave + o.Octave}
}

// Sub returns the component-wise difference l - o.
func (l Lattice) Sub(o Lattice) Lattice {
	return Lattice{Fifth: l.Fifth - o.Fifth, Octave: l.Octave - o.Octave}
}

// Semitones returns the exact semitone value of l relative to middle C.
func (l Lattice) Semitones() int {
	return 12*l.Octave + 7*l.Fifth
}

func (l Lattice) String() string {
	return fmt.Sprintf("(%d,%d)", l.Fifth, l.Octave)
}

// Pitch is the document-level representation of a spelled pitch.
// Octave follows scientific pitch notation (middle C is C4).
type Pitch struct {
	Step   Step `json:"step"`
	Alter  int  `json:"alter"`
	Octave int  `json:"octave"`
}

var stepSemitones = [...]int{C: 0, D: 2, E: 4, F: 5, G: 7, A: 9, B: 11}

// MIDI returns the MIDI note number of p (C4 = 60).
func (p Pitch) MIDI() int {
	return (p.Octave+1)*12 + stepSemitones[p.Step] + p.Alter
}

// Name spells p without its octave, e.g. "C", "F#", "Bbb", "Gx".
func (p Pitch) Name() string {
	switch {
	case p.Alter == 2:
		return p.Step.String() + "x"
	case p.Alter > 0:
		return p.Step.String() + strings.Repeat("#", p.Alter)
	case p.Alter < 0:
		return p.Step.String() + strings.Repeat("b", -p.Alter)
	}
	return p.Step.String()
}

// String formats p as e.g. "C4", "F#3", "Bbb5", "Gx2".
func (p Pitch) String() string {
	return p.Name() + strconv.Itoa(p.Octave)
}
