package pitch

import (
	"github.com/FocuswithJustin/ScoreShift/core/errors"
)

// stepOrigin is the lattice coordinate of each natural letter in octave 0.
// Adding the octave number to Octave places the letter in that octave.
var stepOrigin = [...]Lattice{
	C: {Fifth: 0, Octave: -4},
	D: {Fifth: 2, Octave: -5},
	E: {Fifth: 4, Octave: -6},
	F: {Fifth: -1, Octave: -3},
	G: {Fifth: 1, Octave: -4},
	A: {Fifth: 3, Octave: -5},
	B: {Fifth: 5, Octave: -6},
}

// One unit of alteration: 7 fifths up, 4 octaves down, net +1 semitone.
var alterUnit = Lattice{Fifth: 7, Octave: -4}

// naturalBand holds the letters whose Fifth lies in [-1, 5], indexed by Fifth+1.
var naturalBand = [7]Step{F, C, G, D, A, E, B}

// Encode converts a spelled pitch to its lattice coordinate.
func Encode(p Pitch) (Lattice, error) {
	if !p.Step.Valid() {
		return Lattice{}, errors.NewMalformedPitch("step", p.Step.String(), "not one of C D E F G A B")
	}
	l := stepOrigin[p.Step]
	l.Octave += p.Octave
	l.Fifth += alterUnit.Fifth * p.Alter
	l.Octave += alterUnit.Octave * p.Alter
	return l, nil
}

// Decode converts a lattice coordinate back to a spelled pitch.
//
// Fifth is folded into [-1, 5] by whole alteration units; each unit moved
// becomes one sharp (or flat) on the resulting letter. Every finite
// coordinate decodes, so Decode has no error path.
func Decode(l Lattice) Pitch {
	units := floorDiv(l.Fifth+1, 7)
	fifth := l.Fifth - alterUnit.Fifth*units
	octave := l.Octave - alterUnit.Octave*units

	step := naturalBand[fifth+1]
	return Pitch{
		Step:   step,
		Alter:  units,
		Octave: octave - stepOrigin[step].Octave,
	}
}

// Transpose moves p by the lattice vector by.
func Transpose(p Pitch, by Lattice) (Pitch, error) {
	l, err := Encode(p)
	if err != nil {
		return Pitch{}, err
	}
	return Decode(l.Add(by)), nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
