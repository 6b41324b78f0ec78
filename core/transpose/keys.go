package transpose

import (
	"fmt"

	"github.com/FocuswithJustin/ScoreShift/core/pitch"
)

var (
	majorNames = [...]string{"Cb", "Gb", "Db", "Ab", "Eb", "Bb", "F", "C", "G", "D", "A", "E", "B", "F#", "C#"}
	minorNames = [...]string{"Ab", "Eb", "Bb", "F", "C", "G", "D", "A", "E", "B", "F#", "C#", "G#", "D#", "A#"}
)

// KeyName names the key with the given fifths, e.g. "Eb major" or "C# minor".
// Mode is "major" or "minor"; anything else is treated as major.
func KeyName(fifths int, mode string) string {
	if fifths < -7 || fifths > 7 {
		return fmt.Sprintf("%+d fifths", fifths)
	}
	if mode == "minor" {
		return minorNames[fifths+7] + " minor"
	}
	return majorNames[fifths+7] + " major"
}

// Tonic returns the spelled tonic (in octave 4) of the major key with the
// given fifths. Moving fifths by one moves the tonic by one perfect fifth.
func Tonic(fifths int) pitch.Pitch {
	tonic := pitch.Decode(pitch.Lattice{Fifth: fifths})
	tonic.Octave = 4
	return tonic
}

// Semitone returns the pitch class (0-11, C = 0) of the major tonic for fifths.
func Semitone(fifths int) int {
	return ((7*fifths)%12 + 12) % 12
}
