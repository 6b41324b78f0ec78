// Package transpose computes the lattice vector that moves a score from its
// current key to the key a given number of semitones away.
//
// Spelling follows the target key: the vector is the difference between the
// two tonics as they are conventionally spelled, so a score in C moved up a
// semitone lands in Db (five flats) rather than C# (seven sharps).
package transpose

import (
	"strconv"

	"github.com/FocuswithJustin/ScoreShift/core/errors"
	"github.com/FocuswithJustin/ScoreShift/core/pitch"
)

// KeyEntry is one chromatic key position: the number of fifths in its key
// signature and the lattice coordinate of its tonic relative to C.
type KeyEntry struct {
	Fifths int           `json:"fifths"`
	Tonic  pitch.Lattice `json:"tonic"`
}

// KeyTable lists the twelve major keys indexed by semitones above C.
type KeyTable [12]KeyEntry

// Row 6 (the tritone) is the only place the two tables differ.
var (
	flatKeys = KeyTable{
		{Fifths: 0, Tonic: pitch.Lattice{Fifth: 0, Octave: 0}},   // C
		{Fifths: -5, Tonic: pitch.Lattice{Fifth: -5, Octave: 3}}, // Db
		{Fifths: 2, Tonic: pitch.Lattice{Fifth: 2, Octave: -1}},  // D
		{Fifths: -3, Tonic: pitch.Lattice{Fifth: -3, Octave: 2}}, // Eb
		{Fifths: 4, Tonic: pitch.Lattice{Fifth: 4, Octave: -2}},  // E
		{Fifths: -1, Tonic: pitch.Lattice{Fifth: -1, Octave: 1}}, // F
		{Fifths: -6, Tonic: pitch.Lattice{Fifth: -6, Octave: 4}}, // Gb
		{Fifths: 1, Tonic: pitch.Lattice{Fifth: 1, Octave: 0}},   // G
		{Fifths: -4, Tonic: pitch.Lattice{Fifth: -4, Octave: 3}}, // Ab
		{Fifths: 3, Tonic: pitch.Lattice{Fifth: 3, Octave: -1}},  // A
		{Fifths: -2, Tonic: pitch.Lattice{Fifth: -2, Octave: 2}}, // Bb
		{Fifths: 5, Tonic: pitch.Lattice{Fifth: 5, Octave: -2}},  // B
	}

	sharpKeys = func() KeyTable {
		t := flatKeys
		t[6] = KeyEntry{Fifths: 6, Tonic: pitch.Lattice{Fifth: 6, Octave: -3}} // F#
		return t
	}()
)

// TableFor returns the key table used for a score whose key signature has
// the given number of fifths: the flat-preferring table for fifths <= 0,
// the sharp-preferring one otherwise.
func TableFor(fifths int) KeyTable {
	if fifths <= 0 {
		return flatKeys
	}
	return sharpKeys
}

// Index returns the row whose key signature has the given fifths.
func (t KeyTable) Index(fifths int) (int, bool) {
	for i, e := range t {
		if e.Fifths == fifths {
			return i, true
		}
	}
	return 0, false
}

// Interval returns the lattice vector that transposes a score in the key
// with the given fifths by the given number of semitones. The vector's
// semitone value always equals semitones exactly, including whole-octave
// wraps, and its Fifth is the change to apply to every key signature.
func Interval(fifths, semitones int) (pitch.Lattice, error) {
	table := TableFor(fifths)
	origin, ok := table.Index(fifths)
	if !ok {
		return pitch.Lattice{}, errors.NewUnknownKeySignature(strconv.Itoa(fifths))
	}

	shifted := origin + semitones
	target := ((shifted % 12) + 12) % 12

	v := table[target].Tonic.Sub(table[origin].Tonic)
	v.Octave += floorDiv(shifted, 12)
	return v, nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
